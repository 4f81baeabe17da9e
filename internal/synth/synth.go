// Package synth derives protocol schemas from Go result types.
package synth

import (
	"go/types"
	"reflect"
	"strings"

	"github.com/funcwire/mcpgen/mcpserve"
)

// opaque types carry no generatable structure and collapse to None.
var opaque = map[string]bool{
	"time.Time":       true,
	"regexp.Regexp":   true,
	"context.Context": true,
}

// Synthesize maps a Go type onto a schema node. Types with no sensible
// protocol shape come back as None; callers decide whether that is fatal.
func Synthesize(t types.Type) mcpserve.SchemaNode {
	return synthesize(t, map[types.Type]bool{})
}

func synthesize(t types.Type, visited map[types.Type]bool) mcpserve.SchemaNode {
	// A type revisited inside its own expansion would recurse forever.
	if visited[t] {
		return mcpserve.SchemaNode{Kind: mcpserve.KindNone}
	}

	switch u := t.(type) {
	case *types.Pointer:
		return synthesize(u.Elem(), visited)
	case *types.Chan:
		if u.Dir() == types.RecvOnly {
			return synthesize(u.Elem(), visited)
		}
		return mcpserve.SchemaNode{Kind: mcpserve.KindNone}
	case *types.Named:
		if isOpaque(u) {
			return mcpserve.SchemaNode{Kind: mcpserve.KindNone}
		}
		if isError(u) {
			return mcpserve.SchemaNode{Kind: mcpserve.KindNone}
		}
		if st, ok := u.Underlying().(*types.Struct); ok {
			visited[t] = true
			defer delete(visited, t)
			return structSchema(st, visited)
		}
		return synthesize(u.Underlying(), visited)
	}

	switch u := t.Underlying().(type) {
	case *types.Basic:
		return basicSchema(u)
	case *types.Slice:
		if isByteSlice(u) {
			return mcpserve.SchemaNode{Kind: mcpserve.KindString}
		}
		return arraySchema(u.Elem(), visited)
	case *types.Array:
		return arraySchema(u.Elem(), visited)
	case *types.Map:
		return mapSchema(u, visited)
	case *types.Struct:
		visited[t] = true
		defer delete(visited, t)
		return structSchema(u, visited)
	case *types.Interface:
		if u.Empty() {
			return mcpserve.SchemaNode{Kind: mcpserve.KindString}
		}
		return mcpserve.SchemaNode{Kind: mcpserve.KindNone}
	}

	// Unclassifiable falls back to the loosest primitive.
	return mcpserve.SchemaNode{Kind: mcpserve.KindString}
}

func basicSchema(b *types.Basic) mcpserve.SchemaNode {
	info := b.Info()
	switch {
	case info&types.IsString != 0:
		return mcpserve.SchemaNode{Kind: mcpserve.KindString}
	case info&types.IsBoolean != 0:
		return mcpserve.SchemaNode{Kind: mcpserve.KindBoolean}
	case info&types.IsComplex != 0:
		// Complex values have no JSON encoding; stringify like any other
		// unclassifiable value.
		return mcpserve.SchemaNode{Kind: mcpserve.KindString}
	case info&types.IsNumeric != 0:
		return mcpserve.SchemaNode{Kind: mcpserve.KindNumber}
	}
	return mcpserve.SchemaNode{Kind: mcpserve.KindString}
}

func arraySchema(elem types.Type, visited map[types.Type]bool) mcpserve.SchemaNode {
	item := synthesize(elem, visited)
	if item.IsNone() {
		item = mcpserve.SchemaNode{Kind: mcpserve.KindString}
	}
	return mcpserve.SchemaNode{Kind: mcpserve.KindArray, Items: &item}
}

func mapSchema(m *types.Map, visited map[types.Type]bool) mcpserve.SchemaNode {
	key, ok := m.Key().Underlying().(*types.Basic)
	if !ok || key.Info()&types.IsString == 0 {
		return mcpserve.SchemaNode{Kind: mcpserve.KindNone}
	}
	value := synthesize(m.Elem(), visited)
	if value.IsNone() {
		value = mcpserve.SchemaNode{Kind: mcpserve.KindString}
	}
	return mcpserve.SchemaNode{Kind: mcpserve.KindRecord, Value: &value}
}

// structSchema builds an object schema from the exported fields, in
// declaration order. Embedded structs flatten into the parent; a struct
// whose every field collapses to None is itself None.
func structSchema(st *types.Struct, visited map[types.Type]bool) mcpserve.SchemaNode {
	props := structProperties(st, visited)
	if len(props) == 0 {
		return mcpserve.SchemaNode{Kind: mcpserve.KindNone}
	}
	return mcpserve.SchemaNode{Kind: mcpserve.KindObject, Properties: props}
}

func structProperties(st *types.Struct, visited map[types.Type]bool) []mcpserve.SchemaProperty {
	var props []mcpserve.SchemaProperty
	for i := 0; i < st.NumFields(); i++ {
		field := st.Field(i)
		if !field.Exported() {
			continue
		}

		name, omitEmpty, skip := jsonName(st.Tag(i))
		if skip {
			continue
		}
		if name == "" {
			name = field.Name()
		}

		ft := field.Type()
		optional := omitEmpty
		if ptr, ok := ft.(*types.Pointer); ok {
			ft = ptr.Elem()
			optional = true
		}

		if field.Embedded() && name == field.Name() {
			if embedded, ok := ft.Underlying().(*types.Struct); ok {
				if visited[ft] {
					continue
				}
				visited[ft] = true
				props = append(props, structProperties(embedded, visited)...)
				delete(visited, ft)
				continue
			}
		}

		schema := synthesize(ft, visited)
		if schema.IsNone() {
			continue
		}
		props = append(props, mcpserve.SchemaProperty{
			Name:     name,
			Schema:   schema,
			Optional: optional,
		})
	}
	return props
}

// jsonName reads the field's json tag. skip reports a "-" tag.
func jsonName(tag string) (name string, omitEmpty, skip bool) {
	jt, ok := reflect.StructTag(tag).Lookup("json")
	if !ok {
		return "", false, false
	}
	parts := strings.Split(jt, ",")
	if parts[0] == "-" && len(parts) == 1 {
		return "", false, true
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitEmpty = true
		}
	}
	return parts[0], omitEmpty, false
}

func isByteSlice(s *types.Slice) bool {
	b, ok := s.Elem().Underlying().(*types.Basic)
	return ok && b.Kind() == types.Byte
}

func isOpaque(n *types.Named) bool {
	obj := n.Obj()
	if obj.Pkg() == nil {
		return false
	}
	return opaque[obj.Pkg().Path()+"."+obj.Name()]
}

func isError(t types.Type) bool {
	named, ok := t.(*types.Named)
	if !ok {
		return false
	}
	obj := named.Obj()
	return obj.Pkg() == nil && obj.Name() == "error"
}
