package assemble_test

import (
	"strings"
	"testing"

	"github.com/funcwire/mcpgen/internal/assemble"
	"github.com/funcwire/mcpgen/internal/extract"
	"github.com/funcwire/mcpgen/internal/source"
	"github.com/funcwire/mcpgen/mcpserve"
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

// Greet builds a greeting.
//
// @prompt
// @param name who to greet
func Greet(name string) string { return "hi " + name }

// Note reads a note by id.
//
// @uri note://{id}
// @mimeType text/markdown
// @param id the note identifier
func Note(ctx context.Context, id string) (string, error) { return "", nil }

func NoteList(ctx context.Context) ([]string, error) { return nil, nil }

func NoteSubscribe(ctx context.Context) iter.Seq[string] { return nil }

// Status reports server status.
//
// @uri status://current
func Status() string { return "ok" }

func StatusSubscribe(ctx context.Context) error { return nil }

// Fetch resolves a url asynchronously.
//
// @param url what to fetch
func Fetch(ctx context.Context, url string) <-chan string { return nil }
`

func build(t *testing.T, src string) (*assemble.Server, error) {
	t.Helper()
	pkg, err := source.LoadString(src)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	fns, err := extract.Functions(pkg, extract.Filter{})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	return assemble.Build(pkg, fns)
}

func TestBuild(t *testing.T) {
	srv, err := build(t, fixtureSrc)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if len(srv.Tools) != 2 {
		t.Fatalf("tools = %d, want 2", len(srv.Tools))
	}
	if len(srv.Prompts) != 1 {
		t.Fatalf("prompts = %d, want 1", len(srv.Prompts))
	}
	if len(srv.Resources) != 2 {
		t.Fatalf("resources = %d, want 2", len(srv.Resources))
	}

	add := srv.Tools[0]
	if add.Name != "add" || add.FuncName != "Add" {
		t.Errorf("unexpected first tool: %+v", add)
	}
	if add.ReturnsError || !add.HasResult || add.Async {
		t.Errorf("Add result shape: %+v", add)
	}
	if add.Output.Kind != mcpserve.KindNumber {
		t.Errorf("Add output kind = %v, want number", add.Output.Kind)
	}

	fetch := srv.Tools[1]
	if fetch.Name != "fetch" || !fetch.Async || !fetch.HasContext {
		t.Errorf("unexpected async tool: %+v", fetch)
	}
	if fetch.Output.Kind != mcpserve.KindString {
		t.Errorf("Fetch output kind = %v, want string", fetch.Output.Kind)
	}
}

func TestBuildResourceCompanions(t *testing.T) {
	srv, err := build(t, fixtureSrc)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	byName := map[string]assemble.Resource{}
	for _, r := range srv.Resources {
		byName[r.Name] = r
	}

	note := byName["note"]
	if note.URI != "note://{id}" || note.MimeType != "text/markdown" {
		t.Errorf("unexpected note resource: %+v", note)
	}
	if note.ListFunc != "NoteList" {
		t.Errorf("note list companion = %q, want NoteList", note.ListFunc)
	}
	if note.SubscribeFunc != "NoteSubscribe" || note.Mode != mcpserve.SubscribeGenerator {
		t.Errorf("note subscribe companion = %q mode %v, want NoteSubscribe generator",
			note.SubscribeFunc, note.Mode)
	}

	status := byName["status"]
	if status.ListFunc != "" {
		t.Errorf("status should have no list companion, got %q", status.ListFunc)
	}
	if status.SubscribeFunc != "StatusSubscribe" || status.Mode != mcpserve.SubscribePoll {
		t.Errorf("status subscribe companion = %q mode %v, want StatusSubscribe poll",
			status.SubscribeFunc, status.Mode)
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "empty set",
			src:  "package fixture\n\nfunc internal() {}\n",
			want: "no annotated exported functions",
		},
		{
			name: "duplicate name",
			src: `package fixture

// A does a thing.
//
// @tool same
func A() string { return "" }

// B does a thing.
//
// @tool same
func B() string { return "" }
`,
			want: "declared by both",
		},
		{
			name: "placeholder without parameter",
			src: `package fixture

// Note reads a note.
//
// @uri note://{id}
func Note() string { return "" }
`,
			want: "placeholder {id}",
		},
		{
			name: "non string prompt argument",
			src: `package fixture

// Greet builds a greeting.
//
// @prompt
// @param times repeat count
func Greet(times int) string { return "" }
`,
			want: "strings only",
		},
		{
			name: "extra result",
			src: `package fixture

// Pair returns two values.
func Pair() (int, int) { return 0, 0 }
`,
			want: "want error",
		},
		{
			name: "bad subscribe shape",
			src: `package fixture

import "context"

// Status reports status.
//
// @uri status://current
func Status() string { return "" }

func StatusSubscribe(ctx context.Context) (string, error) { return "", nil }
`,
			want: "subscribe companion returns 2 values",
		},
		{
			name: "subscribe without context",
			src: `package fixture

// Status reports status.
//
// @uri status://current
func Status() string { return "" }

func StatusSubscribe() error { return nil }
`,
			want: "takes no context.Context",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := build(t, tt.src)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
