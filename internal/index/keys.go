package index

import (
	"fmt"
	"strings"

	"github.com/kartikbazzad/bunbase/docstore/internal/util"
	"github.com/kartikbazzad/bunbase/docstore/storage"
)

// ParseAttributes accepts an ordered list of dotted paths ([]string or
// []interface{} of strings) or a comma-separated string. Order is preserved.
func ParseAttributes(spec interface{}) ([]string, error) {
	var raw []string
	switch s := spec.(type) {
	case string:
		raw = strings.Split(s, ",")
	case []string:
		raw = s
	case []interface{}:
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: attribute %v is not a string", util.ErrInvalidIndexSpec, item)
			}
			raw = append(raw, str)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported attribute spec %T", util.ErrInvalidIndexSpec, spec)
	}

	attrs := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, a := range raw {
		a = strings.TrimSpace(a)
		if a == "" {
			return nil, fmt.Errorf("%w: empty attribute name", util.ErrInvalidIndexSpec)
		}
		if seen[a] {
			return nil, fmt.Errorf("%w: attribute %q listed twice", util.ErrInvalidIndexSpec, a)
		}
		seen[a] = true
		attrs = append(attrs, a)
	}
	if len(attrs) == 0 {
		return nil, fmt.Errorf("%w: no attributes", util.ErrInvalidIndexSpec)
	}
	return attrs, nil
}

// CompositeKey turns attribute values into an index key. A single value keeps
// its (normalized) type; several values are joined with commas, which makes
// multi-attribute keys order lexicographically as strings.
func CompositeKey(values []interface{}) interface{} {
	if len(values) == 1 {
		return NormalizeKey(values[0])
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = storage.FormatScalar(v)
	}
	return strings.Join(parts, ",")
}

// NormalizeKey maps a value onto the key domain shared by both index kinds:
// nil, bool, float64 or string. Containers and other opaque values become
// their canonical string so they stay hashable.
func NormalizeKey(v interface{}) interface{} {
	switch val := v.(type) {
	case nil, bool, string:
		return val
	case storage.ObjectID, storage.Ref:
		return storage.StringOf(val)
	}
	if f, ok := storage.ToFloat(v); ok {
		return f
	}
	return storage.Canonical(v)
}

// alternatives returns v followed by its elements when v is an array.
func alternatives(v interface{}) []interface{} {
	list, ok := storage.AsList(v)
	if !ok {
		return []interface{}{v}
	}
	return append([]interface{}{v}, list...)
}
