package codegen

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/funcwire/mcpgen/mcpserve"
)

var mainTemplate = template.Must(template.New("main").Parse(`// Code generated by mcpgen. DO NOT EDIT.

package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"{{.RuntimeModule}}/mcpserve"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	port := flag.String("port", os.Getenv("MCP_PORT"),
		"serve the streamable HTTP transport on this port; empty serves stdio")
	flag.Parse()

	info := mcpserve.Info{Name: {{printf "%q" .Name}}, Version: {{printf "%q" .Version}}}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *port == "" {
		serveStdIO(ctx, info, logger)
		return
	}
	serveHTTP(ctx, info, logger, *port)
}

func serveStdIO(ctx context.Context, info mcpserve.Info, logger *slog.Logger) {
	transport := mcpserve.NewStdIO(os.Stdin, os.Stdout)
	srv := newServer(info, transport, logger)

	go func() {
		<-ctx.Done()
		shutdown(srv, logger)
	}()

	srv.Serve()
}

func serveHTTP(ctx context.Context, info mcpserve.Info, logger *slog.Logger, port string) {
	transport := mcpserve.NewStreamableHTTP("/mcp")
	srv := newServer(info, transport, logger)

	httpSrv := &http.Server{
		Addr:    ":" + port,
		Handler: transport.Router(),
	}
	go func() {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		shutdown(srv, logger)
		if err := httpSrv.Shutdown(stopCtx); err != nil {
			logger.Error("failed to shutdown http server", "err", err)
		}
	}()

	go srv.Serve()

	logger.Info("serving", "addr", httpSrv.Addr, "path", "/mcp")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "err", err)
		os.Exit(1)
	}
}

func newServer(info mcpserve.Info, transport mcpserve.ServerTransport, logger *slog.Logger) mcpserve.Server {
	return mcpserve.NewServer(info, transport,
		mcpserve.WithLogger(logger),
		mcpserve.WithTools(tools()...),
		mcpserve.WithPrompts(prompts()...),
		mcpserve.WithResources(resources()...),
	)
}

func shutdown(srv mcpserve.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown server", "err", err)
	}
}
`))

type mainData struct {
	RuntimeModule string
	Name          string
	Version       string
}

func (g Generator) renderMain() ([]byte, error) {
	var buf bytes.Buffer
	err := mainTemplate.Execute(&buf, mainData{
		RuntimeModule: runtimeModule,
		Name:          g.Config.ServerName(g.Server.PkgName),
		Version:       g.Config.Server.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("render main.go: %w", err)
	}
	return buf.Bytes(), nil
}

// renderGoMod emits a minimal module file; the source package dependency
// is resolved by go mod tidy in the output directory.
func (g Generator) renderGoMod() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "module %s\n\ngo 1.23\n\nrequire (\n", g.Config.Module)
	fmt.Fprintf(&buf, "\tgithub.com/joho/godotenv v1.5.1\n")
	fmt.Fprintf(&buf, "\t%s v0.1.0\n", runtimeModule)
	buf.WriteString(")\n")
	return buf.Bytes()
}

// manifest mirrors what the generated server advertises, for clients that
// configure servers from a catalog file.
type manifest struct {
	Name            string             `json:"name"`
	Version         string             `json:"version"`
	ProtocolVersion string             `json:"protocolVersion"`
	Tools           []manifestItem     `json:"tools,omitempty"`
	Prompts         []manifestItem     `json:"prompts,omitempty"`
	Resources       []manifestResource `json:"resources,omitempty"`
}

type manifestItem struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type manifestResource struct {
	Name        string `json:"name"`
	URI         string `json:"uri"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	Subscribe   bool   `json:"subscribe,omitempty"`
}

func (g Generator) renderManifest() ([]byte, error) {
	m := manifest{
		Name:            g.Config.ServerName(g.Server.PkgName),
		Version:         g.Config.Server.Version,
		ProtocolVersion: mcpserve.ProtocolVersion,
	}
	for _, t := range g.Server.Tools {
		m.Tools = append(m.Tools, manifestItem{Name: t.Name, Description: t.Description})
	}
	for _, p := range g.Server.Prompts {
		m.Prompts = append(m.Prompts, manifestItem{Name: p.Name, Description: p.Description})
	}
	for _, r := range g.Server.Resources {
		m.Resources = append(m.Resources, manifestResource{
			Name:        r.Name,
			URI:         r.URI,
			Description: r.Description,
			MimeType:    r.MimeType,
			Subscribe:   r.Mode != mcpserve.SubscribeNone,
		})
	}

	bs, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render manifest: %w", err)
	}
	return append(bs, '\n'), nil
}
