package mcpserve

import (
	"encoding/json"
	"fmt"
)

// decodeArgs unmarshals a raw argument object and validates it against the
// declared parameter list. A nil raw value is treated as an empty object.
func decodeArgs(raw json.RawMessage, params []ParameterDescriptor) (map[string]any, error) {
	args := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("failed to unmarshal arguments: %w", err)
		}
	}
	if err := validateArgs(args, params); err != nil {
		return nil, err
	}
	return args, nil
}

func validateArgs(args map[string]any, params []ParameterDescriptor) error {
	for _, p := range params {
		v, present := args[p.Name]
		if !present {
			if p.Required {
				return fmt.Errorf("missing required argument %q", p.Name)
			}
			continue
		}
		if err := validateArg(v, p.Type); err != nil {
			return fmt.Errorf("argument %q: %w", p.Name, err)
		}
	}
	return nil
}

func validateArg(v any, t ParamType) error {
	switch t {
	case ParamString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
	case ParamNumber:
		if _, ok := v.(float64); !ok {
			return fmt.Errorf("expected number, got %T", v)
		}
	case ParamBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", v)
		}
	case ParamArray:
		if _, ok := v.([]any); !ok {
			return fmt.Errorf("expected array, got %T", v)
		}
	case ParamObject:
		if _, ok := v.(map[string]any); !ok {
			return fmt.Errorf("expected object, got %T", v)
		}
	}
	return nil
}

// validatePromptArgs checks prompt arguments, which are always strings on
// the wire, against the declared parameter list.
func validatePromptArgs(args map[string]string, params []ParameterDescriptor) error {
	for _, p := range params {
		if _, present := args[p.Name]; !present && p.Required {
			return fmt.Errorf("missing required argument %q", p.Name)
		}
	}
	return nil
}
