package posting

import (
	"strconv"
	"strings"
)

// Accessor pulls one candidate value out of a decoded JSON object.
type Accessor func(map[string]any) (any, bool)

// Path walks nested objects by key. Any missing or non-object hop yields false.
func Path(keys ...string) Accessor {
	return func(m map[string]any) (any, bool) {
		var cur any = m
		for _, key := range keys {
			obj, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			cur, ok = obj[key]
			if !ok {
				return nil, false
			}
		}
		return cur, cur != nil
	}
}

// FirstString tries the accessors in order and returns the first non-blank
// scalar rendered as a trimmed string, or "" when none match.
func FirstString(m map[string]any, accessors ...Accessor) string {
	if m == nil {
		return ""
	}
	for _, get := range accessors {
		v, ok := get(m)
		if !ok {
			continue
		}
		if s := scalarString(v); s != "" {
			return s
		}
	}
	return ""
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
