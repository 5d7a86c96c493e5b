package condition

import (
	"encoding/json"
	"reflect"
	"strings"
)

// decodeJSONValue unwraps string values that look like embedded JSON
// documents; everything else passes through. Stored values frequently carry
// serialised arrays (multi-select widgets persist their selections as JSON
// strings).
func decodeJSONValue(value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	trimmed := strings.TrimSpace(s)
	if len(trimmed) == 0 {
		return value
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return value
	}
	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return value
	}
	return decoded
}

// asList normalises the supported list shapes into []any.
func asList(value any) ([]any, bool) {
	switch typed := value.(type) {
	case []any:
		return typed, true
	case []string:
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = v
		}
		return out, true
	default:
		return nil, false
	}
}

// looseEqual compares values the way JSON round-trips compare: numeric
// types are normalised before comparison (YAML decodes integers where JSON
// decodes float64), everything else compares structurally. String "5" and
// number 5 stay distinct.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if na, ok := coerceNumber(a); ok {
		if nb, ok := coerceNumber(b); ok {
			return na == nb
		}
	}
	if sa, ok := byteString(a); ok {
		if sb, ok := byteString(b); ok {
			return sa == sb
		}
	}
	return reflect.DeepEqual(a, b)
}

func byteString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	default:
		return "", false
	}
}

func coerceNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
