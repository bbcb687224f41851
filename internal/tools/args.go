package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// Args are the raw tool arguments as decoded from the MCP request.
type Args map[string]interface{}

// Has reports whether key is present with a non-null, non-blank value.
func (a Args) Has(key string) bool {
	v, ok := a[key]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// String returns the value as trimmed text. Numbers are formatted without
// a trailing ".0".
func (a Args) String(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}

// Bool returns the value as a boolean, accepting "true"/"false" strings.
func (a Args) Bool(key string, def bool) (bool, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return def, nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return def, fmt.Errorf("%s must be a boolean, got %q", key, t)
		}
		return b, nil
	default:
		return def, fmt.Errorf("%s must be a boolean, got %T", key, v)
	}
}

// Int returns the value as an integer; ok is false when absent.
func (a Args) Int(key string) (int, bool, error) {
	if !a.Has(key) {
		return 0, false, nil
	}
	switch t := a[key].(type) {
	case float64:
		if t != math.Trunc(t) {
			return 0, false, fmt.Errorf("%s must be an integer, got %v", key, t)
		}
		return int(t), true, nil
	case int:
		return t, true, nil
	case int64:
		return int(t), true, nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, false, fmt.Errorf("%s must be an integer: %w", key, err)
		}
		return int(n), true, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false, fmt.Errorf("%s must be an integer, got %q", key, t)
		}
		return n, true, nil
	default:
		return 0, false, fmt.Errorf("%s must be an integer, got %T", key, t)
	}
}

// Object returns a JSON object argument. Clients may send it either as an
// object or as a JSON-encoded string.
func (a Args) Object(key string) (map[string]interface{}, bool, error) {
	if !a.Has(key) {
		return nil, false, nil
	}
	switch t := a[key].(type) {
	case map[string]interface{}:
		return t, true, nil
	case string:
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(t), &obj); err != nil {
			return nil, false, err
		}
		if obj == nil {
			return nil, false, fmt.Errorf("expected a JSON object")
		}
		return obj, true, nil
	default:
		return nil, false, fmt.Errorf("%s must be a JSON object, got %T", key, t)
	}
}

// StringList returns a list of strings from an array, a JSON array string
// or a comma separated string.
func (a Args) StringList(key string) ([]string, error) {
	if !a.Has(key) {
		return nil, nil
	}
	var items []interface{}
	switch t := a[key].(type) {
	case []interface{}:
		items = t
	case []string:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		if strings.HasPrefix(s, "[") {
			if err := json.Unmarshal([]byte(s), &items); err != nil {
				return nil, fmt.Errorf("%s is not a valid JSON array: %w", key, err)
			}
		} else {
			for _, part := range strings.Split(s, ",") {
				if part = strings.TrimSpace(part); part != "" {
					items = append(items, part)
				}
			}
		}
	default:
		return nil, fmt.Errorf("%s must be a list of strings, got %T", key, t)
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s must contain only strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}

// Query copies the named arguments that are present into query parameters.
// Absent or blank arguments are skipped so no empty filter reaches the agent.
func (a Args) Query(keys ...string) url.Values {
	q := url.Values{}
	for _, k := range keys {
		if a.Has(k) {
			q.Set(k, a.String(k))
		}
	}
	return q
}
