package utils

import "fmt"

// GetMapField safely gets a field from a map[string]any and asserts its type.
func GetMapField[T any](m map[string]any, key string) (T, error) {
	var zero T
	value, exists := m[key]
	if !exists {
		return zero, fmt.Errorf("field '%s' not found in map", key)
	}

	if typedValue, ok := value.(T); ok {
		return typedValue, nil
	}

	return zero, fmt.Errorf("field '%s' expected type %T, got %T", key, zero, value)
}

// GetMapFieldOr safely gets a field from a map[string]any with a default value.
func GetMapFieldOr[T any](m map[string]any, key string, defaultValue T) T {
	if value, err := GetMapField[T](m, key); err == nil {
		return value
	}
	return defaultValue
}

// StringField reads a text field that may arrive as string or raw bytes.
// Binary wire codecs often deliver strings as []byte.
func StringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// StringMap converts a map with arbitrary key types into map[string]any,
// stringifying keys and nested maps along the way.
func StringMap(value any) (map[string]any, bool) {
	switch m := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = normalizeNested(v)
		}
		return out, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[fmt.Sprint(k)] = normalizeNested(v)
		}
		return out, true
	default:
		return nil, false
	}
}

func normalizeNested(v any) any {
	if m, ok := StringMap(v); ok {
		return m
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
