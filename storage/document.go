package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// IDField is the reserved key holding a document's unique identifier.
const IDField = "_id"

// Document represents a schema-less JSON-like document
type Document map[string]interface{}

// Serialize converts a document to JSON bytes
func (d Document) Serialize() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize document: %w", err)
	}
	return data, nil
}

// DeserializeDocument creates a document from JSON bytes
func DeserializeDocument(data []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to deserialize document: %w", err)
	}
	return d, nil
}

// GetID returns the document ID in its string form if it exists
func (d Document) GetID() (string, bool) {
	id, exists := d[IDField]
	if !exists || id == nil {
		return "", false
	}

	switch v := id.(type) {
	case string:
		return v, v != ""
	case ObjectID:
		return string(v), v != ""
	case fmt.Stringer:
		s := v.String()
		return s, s != ""
	}
	return "", false
}

// SetID sets the document ID
func (d Document) SetID(id ObjectID) {
	d[IDField] = id
}

// Clone creates a deep copy of the document
func (d Document) Clone() Document {
	clone := make(Document, len(d))
	for k, v := range d {
		clone[k] = deepCopyValue(v)
	}
	return clone
}

// deepCopyValue creates a deep copy of a value
func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case Document:
		return val.Clone()
	case map[string]interface{}:
		return map[string]interface{}(Document(val).Clone())
	case []interface{}:
		cp := make([]interface{}, len(val))
		for i, item := range val {
			cp[i] = deepCopyValue(item)
		}
		return cp
	default:
		// Primitives (string, number, bool) and opaque identifiers are copied by value
		return val
	}
}

// CopyValue returns a deep copy of an arbitrary document value.
func CopyValue(v interface{}) interface{} {
	return deepCopyValue(v)
}

// AsMap returns v as a plain map if it is any document-shaped value.
func AsMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Document:
		return m, true
	}
	return nil, false
}

// AsList widens the slice kinds documents carry to []interface{}.
func AsList(v interface{}) ([]interface{}, bool) {
	switch list := v.(type) {
	case []interface{}:
		return list, true
	case []string:
		out := make([]interface{}, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]interface{}, len(list))
		for i, f := range list {
			out[i] = f
		}
		return out, true
	case []int:
		out := make([]interface{}, len(list))
		for i, n := range list {
			out[i] = n
		}
		return out, true
	case []map[string]interface{}:
		out := make([]interface{}, len(list))
		for i, m := range list {
			out[i] = m
		}
		return out, true
	}
	return nil, false
}

// Lookup resolves a dotted path ("a.b.0.c") against a document.
// Numeric segments index into arrays.
func Lookup(doc map[string]interface{}, path string) (interface{}, bool) {
	var current interface{} = doc
	for _, key := range SplitPath(path) {
		switch node := current.(type) {
		case map[string]interface{}:
			val, ok := node[key]
			if !ok {
				return nil, false
			}
			current = val
		case Document:
			val, ok := node[key]
			if !ok {
				return nil, false
			}
			current = val
		case []interface{}:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			current = node[i]
		default:
			return nil, false
		}
	}
	return current, true
}

// Parent resolves the container holding the last segment of path and returns
// it together with the leaf key. Missing intermediate objects are created when
// create is true; otherwise a missing or non-object hop reports ok=false.
func Parent(doc map[string]interface{}, path string, create bool) (map[string]interface{}, string, bool) {
	keys := SplitPath(path)
	if len(keys) == 0 || keys[0] == "" {
		return nil, "", false
	}

	current := doc
	for _, key := range keys[:len(keys)-1] {
		val, exists := current[key]
		if !exists {
			if !create {
				return nil, "", false
			}
			next := make(map[string]interface{})
			current[key] = next
			current = next
			continue
		}

		next, ok := AsMap(val)
		if !ok {
			return nil, "", false
		}
		current = next
	}
	return current, keys[len(keys)-1], true
}

// SplitPath splits a dotted attribute path into its segments.
func SplitPath(path string) []string {
	return strings.Split(path, ".")
}
