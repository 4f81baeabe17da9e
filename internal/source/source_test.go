package source_test

import (
	"testing"

	"github.com/funcwire/mcpgen/internal/source"
)

func TestLoadString(t *testing.T) {
	pkg, err := source.LoadString(`package demo

// Greet greets.
func Greet(name string) string { return "hi " + name }
`)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if pkg.Name != "demo" {
		t.Errorf("name = %q", pkg.Name)
	}
	if len(pkg.Syntax) != 1 {
		t.Fatalf("syntax files = %d", len(pkg.Syntax))
	}
	if pkg.Types.Scope().Lookup("Greet") == nil {
		t.Error("Greet not in package scope")
	}
}

func TestLoadStringErrors(t *testing.T) {
	if _, err := source.LoadString("package demo\n\nfunc broken( {"); err == nil {
		t.Error("expected parse error")
	}
	if _, err := source.LoadString("package demo\n\nfunc f() int { return \"no\" }"); err == nil {
		t.Error("expected type error")
	}
}
