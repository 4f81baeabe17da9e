package mcpserve_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/funcwire/mcpgen/mcpserve"
)

func TestSchemaNodeMarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		node mcpserve.SchemaNode
		want string
	}{
		{
			name: "string",
			node: mcpserve.SchemaNode{Kind: mcpserve.KindString},
			want: `{"type":"string"}`,
		},
		{
			name: "array defaults items to string",
			node: mcpserve.SchemaNode{Kind: mcpserve.KindArray},
			want: `{"items":{"type":"string"},"type":"array"}`,
		},
		{
			name: "record",
			node: mcpserve.SchemaNode{
				Kind:  mcpserve.KindRecord,
				Value: &mcpserve.SchemaNode{Kind: mcpserve.KindNumber},
			},
			want: `{"additionalProperties":{"type":"number"},"type":"object"}`,
		},
		{
			name: "object",
			node: mcpserve.SchemaNode{
				Kind: mcpserve.KindObject,
				Properties: []mcpserve.SchemaProperty{
					{Name: "title", Schema: mcpserve.SchemaNode{Kind: mcpserve.KindString}},
					{Name: "count", Schema: mcpserve.SchemaNode{Kind: mcpserve.KindNumber}, Optional: true},
				},
			},
			want: `{"properties":{"count":{"type":"number"},"title":{"type":"string"}},"required":["title"],"type":"object"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bs, err := json.Marshal(tt.node)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			// Re-marshal both sides so key order does not matter.
			var got, want any
			if err := json.Unmarshal(bs, &got); err != nil {
				t.Fatalf("unmarshal produced schema: %v", err)
			}
			if err := json.Unmarshal([]byte(tt.want), &want); err != nil {
				t.Fatalf("unmarshal expected schema: %v", err)
			}
			gotBs, _ := json.Marshal(got)
			wantBs, _ := json.Marshal(want)
			if string(gotBs) != string(wantBs) {
				t.Errorf("schema = %s, want %s", gotBs, wantBs)
			}
		})
	}
}

func TestSchemaNodeValidate(t *testing.T) {
	object := mcpserve.SchemaNode{
		Kind: mcpserve.KindObject,
		Properties: []mcpserve.SchemaProperty{
			{Name: "title", Schema: mcpserve.SchemaNode{Kind: mcpserve.KindString}},
			{Name: "tags", Schema: mcpserve.SchemaNode{
				Kind:  mcpserve.KindArray,
				Items: &mcpserve.SchemaNode{Kind: mcpserve.KindString},
			}, Optional: true},
		},
	}

	tests := []struct {
		name    string
		node    mcpserve.SchemaNode
		value   any
		wantErr string
	}{
		{
			name:  "valid object",
			node:  object,
			value: map[string]any{"title": "hi", "tags": []any{"a", "b"}},
		},
		{
			name:  "optional property absent",
			node:  object,
			value: map[string]any{"title": "hi"},
		},
		{
			name:    "missing required property",
			node:    object,
			value:   map[string]any{"tags": []any{}},
			wantErr: "missing required property",
		},
		{
			name:    "wrong item type",
			node:    object,
			value:   map[string]any{"title": "hi", "tags": []any{1.0}},
			wantErr: "item 0",
		},
		{
			name:    "number mismatch",
			node:    mcpserve.SchemaNode{Kind: mcpserve.KindNumber},
			value:   "five",
			wantErr: "expected number",
		},
		{
			name:  "none accepts anything",
			node:  mcpserve.SchemaNode{},
			value: map[string]any{"whatever": true},
		},
		{
			name: "record value type",
			node: mcpserve.SchemaNode{
				Kind:  mcpserve.KindRecord,
				Value: &mcpserve.SchemaNode{Kind: mcpserve.KindBoolean},
			},
			value:   map[string]any{"on": true, "off": "no"},
			wantErr: "key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.node.Validate(tt.value)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %v does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestInputSchema(t *testing.T) {
	raw := mcpserve.InputSchema([]mcpserve.ParameterDescriptor{
		{Name: "zone", Type: mcpserve.ParamString, Description: "time zone", Required: true},
		{Name: "verbose", Type: mcpserve.ParamBoolean},
		{Name: "values", Type: mcpserve.ParamArray, Required: true},
	})

	var schema struct {
		Type       string `json:"type"`
		Properties map[string]struct {
			Type        string          `json:"type"`
			Description string          `json:"description"`
			Items       json.RawMessage `json:"items"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(raw, &schema); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if schema.Type != "object" {
		t.Errorf("type = %q", schema.Type)
	}
	if len(schema.Properties) != 3 {
		t.Fatalf("properties = %d, want 3", len(schema.Properties))
	}
	if schema.Properties["zone"].Description != "time zone" {
		t.Errorf("zone description = %q", schema.Properties["zone"].Description)
	}
	if schema.Properties["values"].Items == nil {
		t.Error("array property has no items")
	}
	if len(schema.Required) != 2 {
		t.Errorf("required = %v", schema.Required)
	}
}
