package mcpserve

import (
	"context"
	"encoding/json"
	"iter"
	"strings"
)

// ParamType is the primitive classification of a parameter.
type ParamType string

// ParamType values.
const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
	ParamArray   ParamType = "array"
	ParamObject  ParamType = "object"
)

// ParameterDescriptor describes one declared parameter of a tool, prompt,
// or resource. Required is false iff the source parameter is optional.
type ParameterDescriptor struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
}

// ToolHandler invokes the underlying implementation with arguments that
// have already been validated against the tool's parameter descriptors.
// The returned value is the raw result; the server renders and wraps it
// according to the tool's output schema.
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

// PromptHandler invokes the underlying prompt implementation. The returned
// value is either a plain string, which the server normalizes into a single
// user-role text message, or a []PromptMessage passed through unchanged.
type PromptHandler func(ctx context.Context, args map[string]string) (any, error)

// ReadFunc reads one resource. args carries the values of the URI template
// placeholders; it is empty for resources at a literal address. The result
// may be a string, a []byte blob, a ResourceContents, or a
// []ResourceContents; the server normalizes it into the contents envelope.
type ReadFunc func(ctx context.Context, uri string, args map[string]string) (any, error)

// ListFunc enumerates the concrete entries of a listable resource. Entries
// with an empty Name or MimeType are filled in by the server.
type ListFunc func(ctx context.Context) ([]ResourceEntry, error)

// UpdatesFunc is the producer-sequence subscription slot: each yielded
// element signals one update of the resource. The sequence should stop
// yielding when ctx is cancelled.
type UpdatesFunc func(ctx context.Context) iter.Seq[struct{}]

// PollFunc is the poll-driven subscription slot: it blocks until the next
// update of the resource, or returns an error when ctx is cancelled or the
// source is exhausted.
type PollFunc func(ctx context.Context) error

// ResourceEntry is one enumerated entry of a listable resource.
type ResourceEntry struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// SubscribeMode classifies how a resource's updates are driven.
type SubscribeMode int

// SubscribeMode values.
const (
	SubscribeNone SubscribeMode = iota
	SubscribeGenerator
	SubscribePoll
)

// ToolDefinition is the assembled definition record for one tool.
type ToolDefinition struct {
	Name        string
	Description string
	Params      []ParameterDescriptor
	Output      SchemaNode
	Handler     ToolHandler
}

// PromptDefinition is the assembled definition record for one prompt.
type PromptDefinition struct {
	Name        string
	Description string
	Params      []ParameterDescriptor
	Handler     PromptHandler
}

// ResourceDefinition is the assembled definition record for one resource.
// Read is the only required operation slot; List and one of Updates/Poll
// are optional capabilities.
type ResourceDefinition struct {
	Name        string
	Description string
	URI         string
	MimeType    string
	Params      []ParameterDescriptor

	Read    ReadFunc
	List    ListFunc
	Updates UpdatesFunc
	Poll    PollFunc
}

// SubscribeMode reports how this resource's subscription, if any, is driven.
func (r ResourceDefinition) SubscribeMode() SubscribeMode {
	switch {
	case r.Updates != nil:
		return SubscribeGenerator
	case r.Poll != nil:
		return SubscribePoll
	default:
		return SubscribeNone
	}
}

// Listable reports whether the resource carries a list operation.
func (r ResourceDefinition) Listable() bool {
	return r.List != nil
}

// Templated reports whether the resource address contains placeholders.
func (r ResourceDefinition) Templated() bool {
	return strings.Contains(r.URI, "{")
}

// InputSchema builds the JSON Schema advertised for a parameter list.
func InputSchema(params []ParameterDescriptor) json.RawMessage {
	props := make(map[string]any, len(params))
	var required []string
	for _, p := range params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Type == ParamArray {
			prop["items"] = map[string]any{"type": "string"}
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
		if p.Required {
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
	bs, _ := json.Marshal(s)
	return bs
}

// Argument accessors used by generated adapters. Arguments are validated
// against the parameter descriptors before the handler runs, so the
// accessors only need to convert, not to check.

// StringArg returns a string argument, or "" when absent.
func StringArg(args map[string]any, name string) string {
	v, _ := args[name].(string)
	return v
}

// NumberArg returns a numeric argument as float64, or 0 when absent.
func NumberArg(args map[string]any, name string) float64 {
	switch v := args[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

// IntArg returns a numeric argument truncated to int, or 0 when absent.
func IntArg(args map[string]any, name string) int {
	return int(NumberArg(args, name))
}

// BoolArg returns a boolean argument, or false when absent.
func BoolArg(args map[string]any, name string) bool {
	v, _ := args[name].(bool)
	return v
}

// OptStringArg returns a pointer to a string argument, or nil when absent.
func OptStringArg(args map[string]any, name string) *string {
	if _, ok := args[name]; !ok {
		return nil
	}
	v := StringArg(args, name)
	return &v
}

// OptNumberArg returns a pointer to a numeric argument, or nil when absent.
func OptNumberArg(args map[string]any, name string) *float64 {
	if _, ok := args[name]; !ok {
		return nil
	}
	v := NumberArg(args, name)
	return &v
}

// OptIntArg returns a pointer to a numeric argument truncated to int, or
// nil when absent.
func OptIntArg(args map[string]any, name string) *int {
	if _, ok := args[name]; !ok {
		return nil
	}
	v := IntArg(args, name)
	return &v
}

// OptBoolArg returns a pointer to a boolean argument, or nil when absent.
func OptBoolArg(args map[string]any, name string) *bool {
	if _, ok := args[name]; !ok {
		return nil
	}
	v := BoolArg(args, name)
	return &v
}

// StringSliceArg returns an array argument as []string, skipping non-string
// elements.
func StringSliceArg(args map[string]any, name string) []string {
	raw, _ := args[name].([]any)
	if raw == nil {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// NumberSliceArg returns an array argument as []float64, skipping
// non-numeric elements.
func NumberSliceArg(args map[string]any, name string) []float64 {
	raw, _ := args[name].([]any)
	if raw == nil {
		return nil
	}
	out := make([]float64, 0, len(raw))
	for _, e := range raw {
		if f, ok := e.(float64); ok {
			out = append(out, f)
		}
	}
	return out
}

// ObjectArg returns an object argument as a map, or nil when absent.
func ObjectArg(args map[string]any, name string) map[string]any {
	v, _ := args[name].(map[string]any)
	return v
}

// Arg decodes an argument into an arbitrary Go type via a JSON round trip.
// Generated adapters use it for structured parameter types.
func Arg[T any](args map[string]any, name string) T {
	var out T
	raw, ok := args[name]
	if !ok {
		return out
	}
	bs, err := json.Marshal(raw)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(bs, &out)
	return out
}

// PromptArg returns a prompt argument, or "" when absent.
func PromptArg(args map[string]string, name string) string {
	return args[name]
}

// OptPromptArg returns a pointer to a prompt argument, or nil when absent.
func OptPromptArg(args map[string]string, name string) *string {
	v, ok := args[name]
	if !ok {
		return nil
	}
	return &v
}

// EntriesFromStrings converts bare addresses into resource entries.
func EntriesFromStrings(uris []string) []ResourceEntry {
	out := make([]ResourceEntry, 0, len(uris))
	for _, uri := range uris {
		out = append(out, ResourceEntry{URI: uri})
	}
	return out
}
