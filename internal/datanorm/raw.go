package datanorm

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Raw is one supplier record as decoded from JSON. Nothing about its shape
// is trusted: every accessor reports absence instead of failing.
type Raw map[string]any

// AsRaw converts a decoded JSON value into a Raw if it is an object.
func AsRaw(v any) (Raw, bool) {
	switch m := v.(type) {
	case Raw:
		return m, true
	case map[string]any:
		return Raw(m), true
	}
	return nil, false
}

// Map returns the nested object at key.
func (r Raw) Map(key string) (Raw, bool) {
	if r == nil {
		return nil, false
	}
	return AsRaw(r[key])
}

// MapOrEmpty is Map with an empty default.
func (r Raw) MapOrEmpty(key string) Raw {
	if m, ok := r.Map(key); ok {
		return m
	}
	return Raw{}
}

// Path follows nested objects, e.g. Path("info", "productInfo").
func (r Raw) Path(keys ...string) (Raw, bool) {
	cur := r
	for _, k := range keys {
		next, ok := cur.Map(k)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// List returns the array at key.
func (r Raw) List(key string) ([]any, bool) {
	if r == nil {
		return nil, false
	}
	l, ok := r[key].([]any)
	return l, ok
}

// Has reports whether key is present, even with a null value.
func (r Raw) Has(key string) bool {
	if r == nil {
		return false
	}
	_, ok := r[key]
	return ok
}

// Str returns key stringified when it holds a scalar. Objects, arrays and
// null yield "".
func (r Raw) Str(key string) string {
	if r == nil {
		return ""
	}
	s, _ := scalarString(r[key])
	return s
}

// StrOr returns Str(key), or def when that is empty.
func (r Raw) StrOr(key, def string) string {
	if s := r.Str(key); s != "" {
		return s
	}
	return def
}

// Int returns key as an integer when it is numeric or a numeric string.
func (r Raw) Int(key string) (int, bool) {
	if r == nil {
		return 0, false
	}
	return toInt(r[key])
}

// Truthy mirrors JSON-ish truthiness: absent, null, false, 0, "" and empty
// containers are false.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	case float64:
		return t != 0
	case int:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	case Raw:
		return len(t) > 0
	}
	return true
}

// First returns the first truthy value among keys.
func (r Raw) First(keys ...string) any {
	for _, k := range keys {
		if v, ok := r[k]; ok && Truthy(v) {
			return v
		}
	}
	return nil
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10), true
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i), true
		}
		if f, err := t.Float64(); err == nil {
			return int(f), true
		}
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		for _, c := range s {
			if c < '0' || c > '9' {
				return 0, false
			}
		}
		i, err := strconv.Atoi(s)
		return i, err == nil
	}
	return 0, false
}

// objects returns the elements of l that are objects, dropping the rest.
func objects(l []any) []Raw {
	out := make([]Raw, 0, len(l))
	for _, v := range l {
		if m, ok := AsRaw(v); ok {
			out = append(out, m)
		}
	}
	return out
}
