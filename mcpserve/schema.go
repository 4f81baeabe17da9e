package mcpserve

import (
	"encoding/json"
	"fmt"
)

// SchemaKind classifies a SchemaNode.
type SchemaKind int

// SchemaKind values. KindNone marks an unrepresentable or void shape; a
// zero-valued SchemaNode is None.
const (
	KindNone SchemaKind = iota
	KindString
	KindNumber
	KindBoolean
	KindArray
	KindRecord
	KindObject
)

// SchemaNode is a structural description of a value's shape, used both to
// advertise tool schemas and to validate structured results. It is a tagged
// variant: Items is set for KindArray, Value for KindRecord (a string-keyed
// map), and Properties for KindObject.
type SchemaNode struct {
	Kind       SchemaKind
	Items      *SchemaNode
	Value      *SchemaNode
	Properties []SchemaProperty
}

// SchemaProperty is one named member of a KindObject node.
type SchemaProperty struct {
	Name     string
	Schema   SchemaNode
	Optional bool
}

// IsNone reports whether the node describes no representable shape.
func (n SchemaNode) IsNone() bool {
	return n.Kind == KindNone
}

func (k SchemaKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindArray:
		return "array"
	case KindRecord, KindObject:
		return "object"
	default:
		return "none"
	}
}

// MarshalJSON renders the node as a JSON Schema fragment.
func (n SchemaNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.schema())
}

func (n SchemaNode) schema() map[string]any {
	switch n.Kind {
	case KindString, KindNumber, KindBoolean:
		return map[string]any{"type": n.Kind.String()}
	case KindArray:
		items := SchemaNode{Kind: KindString}
		if n.Items != nil {
			items = *n.Items
		}
		return map[string]any{
			"type":  "array",
			"items": items.schema(),
		}
	case KindRecord:
		value := SchemaNode{Kind: KindString}
		if n.Value != nil {
			value = *n.Value
		}
		return map[string]any{
			"type":                 "object",
			"additionalProperties": value.schema(),
		}
	case KindObject:
		props := make(map[string]any, len(n.Properties))
		var required []string
		for _, p := range n.Properties {
			props[p.Name] = p.Schema.schema()
			if !p.Optional {
				required = append(required, p.Name)
			}
		}
		s := map[string]any{
			"type":       "object",
			"properties": props,
		}
		if len(required) > 0 {
			s["required"] = required
		}
		return s
	default:
		return map[string]any{}
	}
}

// Validate checks a decoded JSON value against the node. The value is
// expected in encoding/json's untyped form: string, float64, bool, []any,
// map[string]any.
func (n SchemaNode) Validate(v any) error {
	switch n.Kind {
	case KindNone:
		return nil
	case KindString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
	case KindNumber:
		switch v.(type) {
		case float64, int, int64, float32:
		default:
			return fmt.Errorf("expected number, got %T", v)
		}
	case KindBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", v)
		}
	case KindArray:
		items, ok := v.([]any)
		if !ok {
			return fmt.Errorf("expected array, got %T", v)
		}
		if n.Items == nil {
			return nil
		}
		for i, item := range items {
			if err := n.Items.Validate(item); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
	case KindRecord:
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("expected object, got %T", v)
		}
		if n.Value == nil {
			return nil
		}
		for key, val := range m {
			if err := n.Value.Validate(val); err != nil {
				return fmt.Errorf("key %q: %w", key, err)
			}
		}
	case KindObject:
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("expected object, got %T", v)
		}
		for _, p := range n.Properties {
			val, present := m[p.Name]
			if !present {
				if p.Optional {
					continue
				}
				return fmt.Errorf("missing required property %q", p.Name)
			}
			if val == nil {
				continue
			}
			if err := p.Schema.Validate(val); err != nil {
				return fmt.Errorf("property %q: %w", p.Name, err)
			}
		}
	}
	return nil
}
