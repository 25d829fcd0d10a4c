package tools

import (
	"fmt"
	"math"
)

// ValidationError reports arguments that do not satisfy a tool's spec.
type ValidationError struct {
	Tool   string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Detail)
}

// ValidateArgs checks args against spec and returns a coerced copy: JSON
// numbers (float64) are narrowed to int64 for integer parameters, and
// unknown arguments are dropped rather than rejected since models routinely
// add extras. Missing required parameters and uncoercible types fail.
func ValidateArgs(spec Spec, args map[string]any) (map[string]any, error) {
	coerced := make(map[string]any, len(spec.Params))

	for _, p := range spec.Params {
		raw, present := args[p.Name]
		if !present || raw == nil {
			if p.Required {
				return nil, &ValidationError{Tool: spec.Name, Detail: fmt.Sprintf("missing required parameter %q", p.Name)}
			}
			continue
		}

		v, err := coerce(p, raw)
		if err != nil {
			return nil, &ValidationError{Tool: spec.Name, Detail: err.Error()}
		}
		coerced[p.Name] = v
	}

	return coerced, nil
}

func coerce(p Param, raw any) (any, error) {
	switch p.Type {
	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("parameter %q must be a string, got %T", p.Name, raw)
		}
		return s, nil

	case TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("parameter %q must be a boolean, got %T", p.Name, raw)
		}
		return b, nil

	case TypeNumber:
		switch n := raw.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
		return nil, fmt.Errorf("parameter %q must be a number, got %T", p.Name, raw)

	case TypeInteger:
		switch n := raw.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("parameter %q must be an integer, got %g", p.Name, n)
			}
			return int64(n), nil
		}
		return nil, fmt.Errorf("parameter %q must be an integer, got %T", p.Name, raw)
	}

	return nil, fmt.Errorf("parameter %q has unsupported type %q", p.Name, p.Type)
}

// StringArg extracts a string argument from validated args, with "" when
// absent.
func StringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

// IntArg extracts an integer argument from validated args, with fallback
// when absent.
func IntArg(args map[string]any, name string, fallback int64) int64 {
	if n, ok := args[name].(int64); ok {
		return n
	}
	return fallback
}

// FloatArg extracts a number argument from validated args, with fallback
// when absent.
func FloatArg(args map[string]any, name string, fallback float64) float64 {
	if n, ok := args[name].(float64); ok {
		return n
	}
	return fallback
}
