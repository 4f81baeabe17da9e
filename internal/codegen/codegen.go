// Package codegen renders the assembled server representation into a
// runnable Go program.
package codegen

import (
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/funcwire/mcpgen/internal/assemble"
	"github.com/funcwire/mcpgen/internal/config"
)

// runtimeModule is the module providing the server runtime the generated
// code links against.
const runtimeModule = "github.com/funcwire/mcpgen"

// Generator renders one server.
type Generator struct {
	Config config.Config
	Server *assemble.Server
}

// Generate renders every output file, keyed by file name relative to the
// output directory. Go sources are gofmt-formatted.
func (g Generator) Generate() (map[string][]byte, error) {
	files := map[string][]byte{
		"main.go":       nil,
		"server_gen.go": nil,
	}

	mainSrc, err := g.renderMain()
	if err != nil {
		return nil, err
	}
	files["main.go"], err = formatSource("main.go", mainSrc)
	if err != nil {
		return nil, err
	}

	serverSrc, err := g.renderServer()
	if err != nil {
		return nil, err
	}
	files["server_gen.go"], err = formatSource("server_gen.go", serverSrc)
	if err != nil {
		return nil, err
	}

	if g.Config.Module != "" {
		files["go.mod"] = g.renderGoMod()
	}

	manifest, err := g.renderManifest()
	if err != nil {
		return nil, err
	}
	files["mcp.json"] = manifest

	return files, nil
}

// Write materializes the rendered files under dir, creating it as needed.
func Write(dir string, files map[string][]byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	for _, name := range sortedNames(files) {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, files[name], 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

// Check compares the rendered files against what is on disk and returns a
// unified-style diff per changed file. An empty result means the output is
// up to date.
func Check(dir string, files map[string][]byte) (string, error) {
	dmp := diffmatchpatch.New()

	var report strings.Builder
	for _, name := range sortedNames(files) {
		existing, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Fprintf(&report, "--- %s (missing)\n", name)
				continue
			}
			return "", fmt.Errorf("read %s: %w", name, err)
		}
		if string(existing) == string(files[name]) {
			continue
		}

		diffs := dmp.DiffMain(string(existing), string(files[name]), true)
		diffs = dmp.DiffCleanupSemantic(diffs)
		fmt.Fprintf(&report, "--- %s\n%s\n", name, dmp.DiffPrettyText(diffs))
	}
	return report.String(), nil
}

func formatSource(name string, src []byte) ([]byte, error) {
	out, err := format.Source(src)
	if err != nil {
		return nil, fmt.Errorf("format %s: %w\n%s", name, err, src)
	}
	return out, nil
}

func sortedNames(files map[string][]byte) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
