package query

import (
	"github.com/kartikbazzad/bunbase/docstore/storage"
)

// Query is a query document in normalized form.
type Query map[string]interface{}

// Canonical renders the query with sorted keys; structurally identical
// queries render byte-identically.
func (q Query) Canonical() string {
	return storage.Canonical(map[string]interface{}(q))
}

// Normalize rewrites a raw query so that every field maps to an operator
// document. Bare values, regexps and identifiers become {$eq: value};
// $and/$or/$nor lists and $elemMatch sub-queries are normalized recursively.
// Normalize is idempotent.
func Normalize(raw map[string]interface{}) Query {
	out := make(Query, len(raw))
	for key, val := range raw {
		switch {
		case IsLogical(Operator(key)):
			out[key] = normalizeList(val)
		case IsOperatorKey(key):
			// unknown top-level operators pass through; the compiler skips them
			out[key] = val
		default:
			out[key] = normalizeField(val)
		}
	}
	return out
}

func normalizeList(val interface{}) interface{} {
	list, ok := toList(val)
	if !ok {
		return val
	}
	out := make([]interface{}, len(list))
	for i, item := range list {
		if m, ok := storage.AsMap(item); ok {
			out[i] = map[string]interface{}(Normalize(m))
		} else {
			out[i] = item
		}
	}
	return out
}

// normalizeField returns the operator document for one field's value.
func normalizeField(val interface{}) map[string]interface{} {
	m, ok := storage.AsMap(val)
	if !ok || !hasOperatorKeys(m) {
		return map[string]interface{}{string(OpEq): val}
	}

	ops := make(map[string]interface{}, len(m))
	for op, operand := range m {
		switch Operator(op) {
		case OpElemMatch:
			ops[op] = normalizeElemMatch(operand)
		case OpNot:
			ops[op] = normalizeField(operand)
		default:
			ops[op] = operand
		}
	}
	return ops
}

// normalizeElemMatch keeps operator-form sub-queries ({$gt: 5}, matched
// against each element) apart from document-form ones ({a: 1}, matched
// against each element's fields).
func normalizeElemMatch(operand interface{}) interface{} {
	m, ok := storage.AsMap(operand)
	if !ok {
		return operand
	}
	if isOperatorDocument(m) {
		return normalizeField(m)
	}
	return map[string]interface{}(Normalize(m))
}

func hasOperatorKeys(m map[string]interface{}) bool {
	for k := range m {
		if IsOperatorKey(k) {
			return true
		}
	}
	return false
}

// isOperatorDocument reports whether every key is a non-logical operator.
func isOperatorDocument(m map[string]interface{}) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !IsOperatorKey(k) || IsLogical(Operator(k)) {
			return false
		}
	}
	return true
}
