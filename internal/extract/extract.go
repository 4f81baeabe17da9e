// Package extract reads the structured doc comments and signatures off a
// source package's exported functions.
package extract

import (
	"fmt"
	"go/ast"
	"go/types"
	"strings"
	"unicode"

	"github.com/funcwire/mcpgen/internal/source"
	"github.com/funcwire/mcpgen/mcpserve"
)

// Kind classifies an annotated function.
type Kind int

// Kind values.
const (
	KindTool Kind = iota
	KindPrompt
	KindResource
)

func (k Kind) String() string {
	switch k {
	case KindPrompt:
		return "prompt"
	case KindResource:
		return "resource"
	default:
		return "tool"
	}
}

// Annotation is the parsed form of one structured doc comment.
type Annotation struct {
	Kind        Kind
	Name        string // explicit name override, "" for the default
	Description string
	URI         string
	MimeType    string
	ParamDocs   map[string]string
}

// Param is one declared protocol parameter of an annotated function.
type Param struct {
	Desc mcpserve.ParameterDescriptor
	// Type is the declared Go type, pointers unwrapped.
	Type types.Type
	// Variadic marks the trailing variadic parameter.
	Variadic bool
}

// Function is one extracted candidate: an exported function carrying a
// structured comment block with a non-empty description.
type Function struct {
	Annotation

	// FuncName is the Go identifier of the source function.
	FuncName string
	// PublicName is the name the definition is exposed under.
	PublicName string
	Params     []Param

	// HasContext reports a leading context.Context parameter.
	HasContext bool

	Sig *types.Signature
}

// Functions walks the package and returns every annotated exported
// function passing the filter. Functions without a comment block, or whose
// accumulated description is empty, are silently excluded.
func Functions(pkg *source.Package, filter Filter) ([]Function, error) {
	var out []Function
	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			fd, ok := decl.(*ast.FuncDecl)
			if !ok || fd.Recv != nil || !fd.Name.IsExported() {
				continue
			}
			if !filter.Match(fd.Name.Name) {
				continue
			}

			ann, ok := ParseDoc(docText(fd))
			if !ok {
				continue
			}

			obj, ok := pkg.TypesInfo.Defs[fd.Name].(*types.Func)
			if !ok {
				return nil, fmt.Errorf("missing type information for %s", fd.Name.Name)
			}
			sig, ok := obj.Type().(*types.Signature)
			if !ok {
				return nil, fmt.Errorf("unexpected type for %s: %T", fd.Name.Name, obj.Type())
			}

			fn := Function{
				Annotation: ann,
				FuncName:   fd.Name.Name,
				PublicName: ann.Name,
				Sig:        sig,
			}
			if fn.PublicName == "" {
				fn.PublicName = lowerCamel(fd.Name.Name)
			}

			params, hasCtx := deriveParams(sig, ann.ParamDocs)
			fn.Params = params
			fn.HasContext = hasCtx

			out = append(out, fn)
		}
	}
	return out, nil
}

func docText(fd *ast.FuncDecl) string {
	if fd.Doc == nil {
		return ""
	}
	return fd.Doc.Text()
}

// deriveParams maps the function's declared parameter list into protocol
// parameter descriptors. A leading context.Context is not a protocol
// parameter; a pointer or variadic parameter is optional.
func deriveParams(sig *types.Signature, docs map[string]string) ([]Param, bool) {
	tuple := sig.Params()
	start := 0
	hasCtx := false
	if tuple.Len() > 0 && isContext(tuple.At(0).Type()) {
		start = 1
		hasCtx = true
	}

	var params []Param
	for i := start; i < tuple.Len(); i++ {
		v := tuple.At(i)
		name := v.Name()
		if name == "" || name == "_" {
			name = fmt.Sprintf("arg%d", i-start)
		}

		t := v.Type()
		required := true
		if ptr, ok := t.(*types.Pointer); ok {
			t = ptr.Elem()
			required = false
		}
		variadic := sig.Variadic() && i == tuple.Len()-1
		if variadic {
			required = false
		}

		params = append(params, Param{
			Desc: mcpserve.ParameterDescriptor{
				Name:        name,
				Type:        classify(t),
				Description: docs[name],
				Required:    required,
			},
			Type:     t,
			Variadic: variadic,
		})
	}
	return params, hasCtx
}

// classify collapses a Go type into the primitive parameter vocabulary.
func classify(t types.Type) mcpserve.ParamType {
	switch u := t.Underlying().(type) {
	case *types.Basic:
		info := u.Info()
		switch {
		case info&types.IsString != 0:
			return mcpserve.ParamString
		case info&types.IsBoolean != 0:
			return mcpserve.ParamBoolean
		case info&types.IsNumeric != 0:
			return mcpserve.ParamNumber
		}
	case *types.Slice, *types.Array:
		return mcpserve.ParamArray
	}
	return mcpserve.ParamObject
}

func isContext(t types.Type) bool {
	named, ok := t.(*types.Named)
	if !ok {
		return false
	}
	obj := named.Obj()
	return obj.Pkg() != nil && obj.Pkg().Path() == "context" && obj.Name() == "Context"
}

func lowerCamel(name string) string {
	if name == "" {
		return name
	}
	runes := []rune(name)
	// Lowercase the leading run of capitals, keeping the last one when it
	// starts a new word (HTTPServer -> httpServer).
	i := 0
	for i < len(runes) && unicode.IsUpper(runes[i]) {
		i++
	}
	if i == 0 {
		return name
	}
	if i < len(runes) && i > 1 {
		i--
	}
	return strings.ToLower(string(runes[:i])) + string(runes[i:])
}
