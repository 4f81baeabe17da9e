package codegen_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/funcwire/mcpgen/internal/assemble"
	"github.com/funcwire/mcpgen/internal/codegen"
	"github.com/funcwire/mcpgen/internal/config"
	"github.com/funcwire/mcpgen/internal/extract"
	"github.com/funcwire/mcpgen/internal/source"
)

const fixtureSrc = `package fixture

import (
	"context"
	"iter"
)

// Add returns the sum of two numbers.
//
// @param a first operand
// @param b second operand
func Add(a, b float64) float64 { return a + b }

// Repeat repeats a word.
//
// @param word the word
// @param times optional repeat count
func Repeat(word string, times *int) []string { return nil }

// Greet builds a greeting.
//
// @prompt
// @param name who to greet
func Greet(ctx context.Context, name string) (string, error) {
	_ = ctx
	return "hi " + name, nil
}

// Note reads a note by id.
//
// @uri note://{id}
// @mimeType text/markdown
// @param id the note identifier
func Note(ctx context.Context, id string) (string, error) { return "", nil }

func NoteList(ctx context.Context) ([]string, error) { return nil, nil }

func NoteSubscribe(ctx context.Context) iter.Seq[int] { return nil }
`

func generate(t *testing.T, cfg config.Config) map[string][]byte {
	t.Helper()
	pkg, err := source.LoadString(fixtureSrc)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	fns, err := extract.Functions(pkg, extract.Filter{})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	srv, err := assemble.Build(pkg, fns)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	files, err := codegen.Generator{Config: cfg, Server: srv}.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return files
}

func TestGenerateServer(t *testing.T) {
	files := generate(t, config.Default())

	src := string(files["server_gen.go"])
	for _, want := range []string{
		"// Code generated by mcpgen. DO NOT EDIT.",
		"func tools() []mcpserve.ToolDefinition",
		`Name:        "add"`,
		`fixture.Add(mcpserve.NumberArg(args, "a"), mcpserve.NumberArg(args, "b"))`,
		`fixture.Repeat(mcpserve.StringArg(args, "word"), mcpserve.OptIntArg(args, "times"))`,
		`fixture.Greet(ctx, mcpserve.PromptArg(args, "name"))`,
		`URI:         "note://{id}"`,
		`MimeType:    "text/markdown"`,
		"mcpserve.EntriesFromStrings(uris)",
		"Updates: func(ctx context.Context) iter.Seq[struct{}]",
		"for range fixture.NoteSubscribe(ctx)",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("server_gen.go missing %q", want)
		}
	}

	main := string(files["main.go"])
	for _, want := range []string{
		"godotenv.Load()",
		`flag.String("port", os.Getenv("MCP_PORT")`,
		"mcpserve.NewStdIO(os.Stdin, os.Stdout)",
		`mcpserve.NewStreamableHTTP("/mcp")`,
		`Info{Name: "fixture", Version: "0.1.0"}`,
	} {
		if !strings.Contains(main, want) {
			t.Errorf("main.go missing %q", want)
		}
	}
}

func TestGenerateGoMod(t *testing.T) {
	files := generate(t, config.Default())
	if _, ok := files["go.mod"]; ok {
		t.Error("go.mod should only render when a module path is configured")
	}

	cfg := config.Default()
	cfg.Module = "example.com/noteserver"
	files = generate(t, cfg)
	mod := string(files["go.mod"])
	if !strings.HasPrefix(mod, "module example.com/noteserver\n") {
		t.Errorf("unexpected go.mod:\n%s", mod)
	}
}

func TestGenerateManifest(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Name = "notes"
	cfg.Server.Version = "2.0.0"
	files := generate(t, cfg)

	var m struct {
		Name            string `json:"name"`
		Version         string `json:"version"`
		ProtocolVersion string `json:"protocolVersion"`
		Tools           []struct {
			Name string `json:"name"`
		} `json:"tools"`
		Resources []struct {
			Name      string `json:"name"`
			URI       string `json:"uri"`
			Subscribe bool   `json:"subscribe"`
		} `json:"resources"`
	}
	if err := json.Unmarshal(files["mcp.json"], &m); err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	if m.Name != "notes" || m.Version != "2.0.0" {
		t.Errorf("manifest identity = %s %s", m.Name, m.Version)
	}
	if m.ProtocolVersion != "2025-03-26" {
		t.Errorf("protocol version = %q", m.ProtocolVersion)
	}
	if len(m.Tools) != 2 {
		t.Errorf("manifest tools = %d, want 2", len(m.Tools))
	}
	if len(m.Resources) != 1 || !m.Resources[0].Subscribe {
		t.Errorf("unexpected manifest resources: %+v", m.Resources)
	}
}

func TestWriteAndCheck(t *testing.T) {
	dir := t.TempDir()
	files := generate(t, config.Default())

	if err := codegen.Write(dir, files); err != nil {
		t.Fatalf("write: %v", err)
	}
	for name := range files {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing output file %s: %v", name, err)
		}
	}

	report, err := codegen.Check(dir, files)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if report != "" {
		t.Errorf("fresh output should be clean, got:\n%s", report)
	}

	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	report, err = codegen.Check(dir, files)
	if err != nil {
		t.Fatalf("check after edit: %v", err)
	}
	if !strings.Contains(report, "--- main.go") {
		t.Errorf("stale main.go not reported:\n%s", report)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	first := generate(t, config.Default())
	second := generate(t, config.Default())
	for name := range first {
		if string(first[name]) != string(second[name]) {
			t.Errorf("%s differs between runs", name)
		}
	}
}
