package mcpserve

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// resultsField is the envelope field an array-shaped tool result is wrapped
// under, both in the advertised output schema and in the response payload.
const resultsField = "results"

// outputSchema returns the output validator schema advertised for a tool,
// or nil when the tool returns only text. An array output is wrapped in an
// object with a single results field; an object output is advertised as is.
func outputSchema(out SchemaNode) json.RawMessage {
	switch out.Kind {
	case KindObject:
		bs, _ := json.Marshal(out)
		return bs
	case KindArray:
		env := SchemaNode{
			Kind: KindObject,
			Properties: []SchemaProperty{
				{Name: resultsField, Schema: out},
			},
		}
		bs, _ := json.Marshal(env)
		return bs
	default:
		return nil
	}
}

// toolResult renders a raw handler result according to the tool's output
// schema. Object outputs carry the result as structured content alongside a
// textual rendering; array outputs are wrapped under the results field;
// everything else is rendered as text only.
func toolResult(out SchemaNode, raw any) (CallToolResult, error) {
	switch out.Kind {
	case KindObject:
		structured, err := toPlainObject(raw)
		if err != nil {
			return CallToolResult{}, err
		}
		if err := out.Validate(structured); err != nil {
			return CallToolResult{}, fmt.Errorf("output validation failed: %w", err)
		}
		text, _ := json.Marshal(structured)
		return CallToolResult{
			Content:           []Content{{Type: ContentTypeText, Text: string(text)}},
			StructuredContent: structured,
		}, nil
	case KindArray:
		plain, err := toPlainValue(raw)
		if err != nil {
			return CallToolResult{}, err
		}
		if plain == nil {
			plain = []any{}
		}
		structured := map[string]any{resultsField: plain}
		env := SchemaNode{
			Kind: KindObject,
			Properties: []SchemaProperty{
				{Name: resultsField, Schema: out},
			},
		}
		if err := env.Validate(structured); err != nil {
			return CallToolResult{}, fmt.Errorf("output validation failed: %w", err)
		}
		text, _ := json.Marshal(structured)
		return CallToolResult{
			Content:           []Content{{Type: ContentTypeText, Text: string(text)}},
			StructuredContent: structured,
		}, nil
	default:
		return CallToolResult{
			Content: []Content{{Type: ContentTypeText, Text: stringify(raw)}},
		}, nil
	}
}

// stringify renders a raw result as text: strings pass through, everything
// else takes its JSON rendering.
func stringify(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		bs, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bs)
	}
}

func toPlainObject(raw any) (map[string]any, error) {
	plain, err := toPlainValue(raw)
	if err != nil {
		return nil, err
	}
	m, ok := plain.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object result, got %T", plain)
	}
	return m, nil
}

// toPlainValue converts an arbitrary Go value into encoding/json's untyped
// form via a marshal round trip.
func toPlainValue(raw any) (any, error) {
	bs, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	var plain any
	if err := json.Unmarshal(bs, &plain); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return plain, nil
}

// promptResult normalizes a prompt handler return into a prompt result. A
// plain string becomes a single user-role text message; message lists pass
// through unchanged after envelope validation.
func promptResult(description string, raw any) (GetPromptResult, error) {
	switch v := raw.(type) {
	case string:
		return GetPromptResult{
			Description: description,
			Messages: []PromptMessage{
				{Role: RoleUser, Content: Content{Type: ContentTypeText, Text: v}},
			},
		}, nil
	case []PromptMessage:
		for i, m := range v {
			if err := validatePromptMessage(m); err != nil {
				return GetPromptResult{}, fmt.Errorf("message %d: %w", i, err)
			}
		}
		return GetPromptResult{Description: description, Messages: v}, nil
	case GetPromptResult:
		for i, m := range v.Messages {
			if err := validatePromptMessage(m); err != nil {
				return GetPromptResult{}, fmt.Errorf("message %d: %w", i, err)
			}
		}
		return v, nil
	default:
		return GetPromptResult{}, fmt.Errorf("unsupported prompt result type %T", raw)
	}
}

func validatePromptMessage(m PromptMessage) error {
	if m.Role != RoleUser && m.Role != RoleAssistant {
		return fmt.Errorf("invalid role %q", m.Role)
	}
	switch m.Content.Type {
	case ContentTypeText:
		if m.Content.Text == "" {
			return fmt.Errorf("empty text content")
		}
	case ContentTypeImage:
		if m.Content.Data == "" {
			return fmt.Errorf("empty image content")
		}
	case ContentTypeResource:
		if m.Content.Resource == nil {
			return fmt.Errorf("missing resource content")
		}
	default:
		return fmt.Errorf("invalid content type %q", m.Content.Type)
	}
	return nil
}

// readResult normalizes a resource read return into the contents envelope,
// defaulting the MIME type when the entry omits one.
func readResult(uri, defaultMime string, raw any) (ReadResourceResult, error) {
	if defaultMime == "" {
		defaultMime = "text/plain"
	}
	switch v := raw.(type) {
	case string:
		return ReadResourceResult{
			Contents: []ResourceContents{{URI: uri, MimeType: defaultMime, Text: v}},
		}, nil
	case []byte:
		return ReadResourceResult{
			Contents: []ResourceContents{{
				URI:      uri,
				MimeType: defaultMime,
				Blob:     base64.StdEncoding.EncodeToString(v),
			}},
		}, nil
	case ResourceContents:
		return ReadResourceResult{Contents: []ResourceContents{fillContents(uri, defaultMime, v)}}, nil
	case []ResourceContents:
		out := make([]ResourceContents, 0, len(v))
		for _, c := range v {
			out = append(out, fillContents(uri, defaultMime, c))
		}
		return ReadResourceResult{Contents: out}, nil
	default:
		return ReadResourceResult{}, fmt.Errorf("unsupported resource result type %T", raw)
	}
}

func fillContents(uri, defaultMime string, c ResourceContents) ResourceContents {
	if c.URI == "" {
		c.URI = uri
	}
	if c.MimeType == "" {
		c.MimeType = defaultMime
	}
	return c
}

// displayEntry maps one enumerated entry of a listable resource into a
// display record, deriving a name from the address's final path segment
// when absent and filling the default MIME type.
func displayEntry(def ResourceDefinition, e ResourceEntry) Resource {
	name := e.Name
	if name == "" {
		name = lastPathSegment(e.URI)
	}
	mime := e.MimeType
	if mime == "" {
		mime = def.MimeType
	}
	return Resource{
		URI:         e.URI,
		Name:        name,
		Description: e.Description,
		MimeType:    mime,
	}
}

func lastPathSegment(uri string) string {
	trimmed := strings.TrimRight(uri, "/")
	if i := strings.LastIndexAny(trimmed, "/:"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
