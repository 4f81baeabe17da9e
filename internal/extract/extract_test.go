package extract_test

import (
	"testing"

	"github.com/funcwire/mcpgen/internal/extract"
	"github.com/funcwire/mcpgen/internal/source"
	"github.com/funcwire/mcpgen/mcpserve"
)

func TestParseDoc(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		wantOK   bool
		wantKind extract.Kind
		wantName string
		wantURI  string
		wantMime string
		wantDesc string
	}{
		{
			name:   "empty",
			doc:    "",
			wantOK: false,
		},
		{
			name:   "tags only",
			doc:    "@param a first operand\n",
			wantOK: false,
		},
		{
			name:     "plain tool",
			doc:      "Adds two numbers.\n",
			wantOK:   true,
			wantKind: extract.KindTool,
			wantDesc: "Adds two numbers.",
		},
		{
			name:     "tool with rename",
			doc:      "Adds two numbers.\n@tool add\n",
			wantOK:   true,
			wantKind: extract.KindTool,
			wantName: "add",
			wantDesc: "Adds two numbers.",
		},
		{
			name:     "prompt outranks tool",
			doc:      "Builds a greeting.\n@tool greet\n@prompt greeting\n",
			wantOK:   true,
			wantKind: extract.KindPrompt,
			wantName: "greeting",
			wantDesc: "Builds a greeting.",
		},
		{
			name:     "resource outranks prompt",
			doc:      "Reads a file.\n@prompt file\n@uri file:///{path}\n@mimeType \"text/plain\"\n",
			wantOK:   true,
			wantKind: extract.KindResource,
			wantName: "file",
			wantURI:  "file:///{path}",
			wantMime: "text/plain",
			wantDesc: "Reads a file.",
		},
		{
			name:     "multi line description",
			doc:      "Adds two numbers\nand returns the sum.\n@param a first operand\n",
			wantOK:   true,
			wantKind: extract.KindTool,
			wantDesc: "Adds two numbers and returns the sum.",
		},
		{
			name:     "description continues after tags",
			doc:      "Adds two numbers.\n@param a first operand\nReturns their sum.\n",
			wantOK:   true,
			wantKind: extract.KindTool,
			wantDesc: "Adds two numbers. Returns their sum.",
		},
		{
			name:     "block comment stars",
			doc:      " * Lists open issues.\n * @resource\n * @uri issues://open\n",
			wantOK:   true,
			wantKind: extract.KindResource,
			wantURI:  "issues://open",
			wantDesc: "Lists open issues.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ann, ok := extract.ParseDoc(tt.doc)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if ann.Kind != tt.wantKind {
				t.Errorf("kind = %v, want %v", ann.Kind, tt.wantKind)
			}
			if ann.Name != tt.wantName {
				t.Errorf("name = %q, want %q", ann.Name, tt.wantName)
			}
			if ann.URI != tt.wantURI {
				t.Errorf("uri = %q, want %q", ann.URI, tt.wantURI)
			}
			if ann.MimeType != tt.wantMime {
				t.Errorf("mimeType = %q, want %q", ann.MimeType, tt.wantMime)
			}
			if ann.Description != tt.wantDesc {
				t.Errorf("description = %q, want %q", ann.Description, tt.wantDesc)
			}
		})
	}
}

func TestParseDocParamDocs(t *testing.T) {
	ann, ok := extract.ParseDoc("Adds numbers.\n@param a first operand\n@param b second operand\n")
	if !ok {
		t.Fatal("expected annotation")
	}
	if got := ann.ParamDocs["a"]; got != "first operand" {
		t.Errorf("param a doc = %q, want %q", got, "first operand")
	}
	if got := ann.ParamDocs["b"]; got != "second operand" {
		t.Errorf("param b doc = %q, want %q", got, "second operand")
	}
}

const fixtureSrc = `package fixture

import "context"

// Add returns the sum of two numbers.
//
// @param a first operand
// @param b second operand
func Add(a, b float64) float64 { return a + b }

// Greet builds a greeting for a person.
//
// @prompt
// @param name who to greet
// @param tone optional tone of voice
func Greet(ctx context.Context, name string, tone *string) string {
	_ = ctx
	return "hi " + name
}

// Sum adds any number of values.
//
// @param values the values to add
func Sum(values ...float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

// HTTPStatus describes a status code.
func HTTPStatus(code int) string { return "" }

func Undocumented(a int) int { return a }

// unexported is never a candidate.
func unexported() {}
`

func loadFixture(t *testing.T) []extract.Function {
	t.Helper()
	pkg, err := source.LoadString(fixtureSrc)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	fns, err := extract.Functions(pkg, extract.Filter{})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	return fns
}

func TestFunctions(t *testing.T) {
	fns := loadFixture(t)

	byName := map[string]extract.Function{}
	for _, fn := range fns {
		byName[fn.FuncName] = fn
	}

	if len(fns) != 4 {
		t.Fatalf("extracted %d functions, want 4", len(fns))
	}
	if _, ok := byName["Undocumented"]; ok {
		t.Error("undocumented function was not excluded")
	}

	add, ok := byName["Add"]
	if !ok {
		t.Fatal("Add not extracted")
	}
	if add.PublicName != "add" {
		t.Errorf("Add public name = %q, want %q", add.PublicName, "add")
	}
	if add.HasContext {
		t.Error("Add should not report a context parameter")
	}
	if len(add.Params) != 2 {
		t.Fatalf("Add has %d params, want 2", len(add.Params))
	}
	a := add.Params[0].Desc
	if a.Name != "a" || a.Type != mcpserve.ParamNumber || !a.Required {
		t.Errorf("unexpected first param: %+v", a)
	}
	if a.Description != "first operand" {
		t.Errorf("first param description = %q", a.Description)
	}

	status, ok := byName["HTTPStatus"]
	if !ok {
		t.Fatal("HTTPStatus not extracted")
	}
	if status.PublicName != "httpStatus" {
		t.Errorf("HTTPStatus public name = %q, want %q", status.PublicName, "httpStatus")
	}
}

func TestFunctionsOptionalParams(t *testing.T) {
	fns := loadFixture(t)

	for _, fn := range fns {
		switch fn.FuncName {
		case "Greet":
			if fn.Kind != extract.KindPrompt {
				t.Errorf("Greet kind = %v, want prompt", fn.Kind)
			}
			if !fn.HasContext {
				t.Error("Greet should report a context parameter")
			}
			if len(fn.Params) != 2 {
				t.Fatalf("Greet has %d params, want 2", len(fn.Params))
			}
			if fn.Params[0].Desc.Name != "name" || !fn.Params[0].Desc.Required {
				t.Errorf("unexpected name param: %+v", fn.Params[0].Desc)
			}
			if fn.Params[1].Desc.Name != "tone" || fn.Params[1].Desc.Required {
				t.Errorf("pointer param should be optional: %+v", fn.Params[1].Desc)
			}
		case "Sum":
			if len(fn.Params) != 1 {
				t.Fatalf("Sum has %d params, want 1", len(fn.Params))
			}
			p := fn.Params[0]
			if !p.Variadic || p.Desc.Required || p.Desc.Type != mcpserve.ParamArray {
				t.Errorf("unexpected variadic param: %+v", p.Desc)
			}
		}
	}
}

func TestFilter(t *testing.T) {
	f, err := extract.NewFilter([]string{"Add*"}, []string{"*Internal"})
	if err != nil {
		t.Fatalf("compile filter: %v", err)
	}

	if !f.Match("AddNumbers") {
		t.Error("AddNumbers should match")
	}
	if f.Match("Greet") {
		t.Error("Greet should not match")
	}
	if f.Match("AddInternal") {
		t.Error("exclude should win over include")
	}

	if _, err := extract.NewFilter([]string{"[bad"}, nil); err == nil {
		t.Error("expected error for malformed pattern")
	}
}
