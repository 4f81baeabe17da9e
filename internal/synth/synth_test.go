package synth_test

import (
	"go/types"
	"reflect"
	"testing"

	"github.com/funcwire/mcpgen/internal/source"
	"github.com/funcwire/mcpgen/internal/synth"
	"github.com/funcwire/mcpgen/mcpserve"
)

const fixtureSrc = `package fixture

import (
	"regexp"
	"time"
)

type Issue struct {
	Title    string   ` + "`json:\"title\"`" + `
	Count    int      ` + "`json:\"count,omitempty\"`" + `
	Tags     []string ` + "`json:\"tags\"`" + `
	Assignee *string  ` + "`json:\"assignee\"`" + `
	Created  time.Time
	Pattern  *regexp.Regexp
	Secret   string ` + "`json:\"-\"`" + `
	internal int
}

type Meta struct {
	Owner string ` + "`json:\"owner\"`" + `
}

type Tagged struct {
	Meta
	Label string ` + "`json:\"label\"`" + `
}

type Node struct {
	Name     string ` + "`json:\"name\"`" + `
	Children []Node ` + "`json:\"children\"`" + `
	Parent   *Node  ` + "`json:\"parent\"`" + `
}

type Empty struct {
	When time.Time
	err  error
}

type Labels map[string]string

func ReturnsIssue() Issue      { return Issue{} }
func ReturnsTagged() Tagged    { return Tagged{} }
func ReturnsNode() Node        { return Node{} }
func ReturnsEmpty() Empty      { return Empty{} }
func ReturnsLabels() Labels    { return nil }
func ReturnsStrings() []string { return nil }
func ReturnsBytes() []byte     { return nil }
func ReturnsChan() <-chan int  { return nil }
func ReturnsFloat() float64    { return 0 }
func ReturnsBool() bool        { return false }
func ReturnsAny() any          { return nil }
func ReturnsComplex() complex128 { return 0 }
`

func resultType(t *testing.T, pkg *source.Package, fnName string) types.Type {
	t.Helper()
	obj := pkg.Types.Scope().Lookup(fnName)
	if obj == nil {
		t.Fatalf("function %s not found", fnName)
	}
	sig := obj.Type().(*types.Signature)
	if sig.Results().Len() != 1 {
		t.Fatalf("function %s has %d results", fnName, sig.Results().Len())
	}
	return sig.Results().At(0).Type()
}

func TestSynthesizePrimitives(t *testing.T) {
	pkg, err := source.LoadString(fixtureSrc)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}

	tests := []struct {
		fn   string
		kind mcpserve.SchemaKind
	}{
		{"ReturnsFloat", mcpserve.KindNumber},
		{"ReturnsBool", mcpserve.KindBoolean},
		{"ReturnsBytes", mcpserve.KindString},
		{"ReturnsStrings", mcpserve.KindArray},
		{"ReturnsLabels", mcpserve.KindRecord},
		{"ReturnsAny", mcpserve.KindString},
		{"ReturnsChan", mcpserve.KindNumber},
		{"ReturnsComplex", mcpserve.KindString},
	}
	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			node := synth.Synthesize(resultType(t, pkg, tt.fn))
			if node.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", node.Kind, tt.kind)
			}
		})
	}
}

func TestSynthesizeStruct(t *testing.T) {
	pkg, err := source.LoadString(fixtureSrc)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}

	node := synth.Synthesize(resultType(t, pkg, "ReturnsIssue"))
	if node.Kind != mcpserve.KindObject {
		t.Fatalf("kind = %v, want object", node.Kind)
	}

	var names []string
	optional := map[string]bool{}
	kinds := map[string]mcpserve.SchemaKind{}
	for _, p := range node.Properties {
		names = append(names, p.Name)
		optional[p.Name] = p.Optional
		kinds[p.Name] = p.Schema.Kind
	}

	// Opaque, skipped, and unexported fields drop; the rest keep
	// declaration order under their json names.
	want := []string{"title", "count", "tags", "assignee"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("properties = %v, want %v", names, want)
	}
	if !optional["count"] {
		t.Error("omitempty field should be optional")
	}
	if !optional["assignee"] {
		t.Error("pointer field should be optional")
	}
	if optional["title"] {
		t.Error("plain field should be required")
	}
	if kinds["tags"] != mcpserve.KindArray {
		t.Errorf("tags kind = %v, want array", kinds["tags"])
	}
}

func TestSynthesizeEmbedded(t *testing.T) {
	pkg, err := source.LoadString(fixtureSrc)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}

	node := synth.Synthesize(resultType(t, pkg, "ReturnsTagged"))
	if node.Kind != mcpserve.KindObject {
		t.Fatalf("kind = %v, want object", node.Kind)
	}
	var names []string
	for _, p := range node.Properties {
		names = append(names, p.Name)
	}
	want := []string{"owner", "label"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("properties = %v, want %v", names, want)
	}
}

func TestSynthesizeCycle(t *testing.T) {
	pkg, err := source.LoadString(fixtureSrc)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}

	node := synth.Synthesize(resultType(t, pkg, "ReturnsNode"))
	if node.Kind != mcpserve.KindObject {
		t.Fatalf("kind = %v, want object", node.Kind)
	}
	// The self references drop: the recursive slice falls back to string
	// items and the recursive pointer field disappears.
	var names []string
	for _, p := range node.Properties {
		names = append(names, p.Name)
	}
	want := []string{"name", "children"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("properties = %v, want %v", names, want)
	}
}

func TestSynthesizeAllOpaque(t *testing.T) {
	pkg, err := source.LoadString(fixtureSrc)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}

	node := synth.Synthesize(resultType(t, pkg, "ReturnsEmpty"))
	if !node.IsNone() {
		t.Fatalf("kind = %v, want none", node.Kind)
	}
}

func TestSynthesizeDeterministic(t *testing.T) {
	pkg, err := source.LoadString(fixtureSrc)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}

	rt := resultType(t, pkg, "ReturnsIssue")
	first := synth.Synthesize(rt)
	for i := 0; i < 5; i++ {
		if got := synth.Synthesize(rt); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
}
