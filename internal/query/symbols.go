// Package query implements the query language: normalization of raw query
// documents, compilation into cached predicate and update programs, and the
// operator library those programs call.
//
// Queries are plain maps such as `{"age": {"$gt": 25}, "status": "active"}`.
// Normalization rewrites every comparison into explicit `{field: {$op: value}}`
// form; the compiler turns that form into a clause tree evaluated directly
// against documents.
package query

import "strings"

// Operator is a query or update operator symbol.
type Operator string

// The closed operator symbol table.
const (
	OpAnd Operator = "$and"
	OpOr  Operator = "$or"
	OpNor Operator = "$nor"
	OpNot Operator = "$not"

	OpLt  Operator = "$lt"
	OpLte Operator = "$lte"
	OpGt  Operator = "$gt"
	OpGte Operator = "$gte"
	OpEq  Operator = "$eq"
	OpNe  Operator = "$ne"

	OpAll       Operator = "$all"
	OpIn        Operator = "$in"
	OpNin       Operator = "$nin"
	OpElemMatch Operator = "$elemMatch"
	OpSize      Operator = "$size"
	OpExists    Operator = "$exists"

	OpWithin Operator = "$within"
	OpNear   Operator = "$near"

	OpSet     Operator = "$set"
	OpInc     Operator = "$inc"
	OpUnset   Operator = "$unset"
	OpPull    Operator = "$pull"
	OpPullAll Operator = "$pullAll"
	OpPop     Operator = "$pop"
	OpPush    Operator = "$push"
	OpPushAll Operator = "$pushAll"
	OpRename  Operator = "$rename"
)

// IsOperatorKey reports whether a document key names an operator.
func IsOperatorKey(key string) bool {
	return strings.HasPrefix(key, "$")
}

// IsRange reports whether op bounds a value from one side.
func IsRange(op Operator) bool {
	switch op {
	case OpLt, OpLte, OpGt, OpGte:
		return true
	}
	return false
}

// IsLogical reports whether op combines sub-queries.
func IsLogical(op Operator) bool {
	switch op {
	case OpAnd, OpOr, OpNor:
		return true
	}
	return false
}
