package query

import (
	"fmt"
	"strings"

	"github.com/kartikbazzad/bunbase/docstore/storage"
)

// Matcher is a compiled predicate over whole documents.
type Matcher interface {
	Matches(doc map[string]interface{}) bool
	String() string
}

// valueTest is a compiled predicate over one resolved field value.
type valueTest interface {
	test(actual interface{}, present bool) bool
	String() string
}

// LogicalNode combines child matchers with $and, $or or $nor.
type LogicalNode struct {
	Operator Operator
	Children []Matcher
}

func (n *LogicalNode) Matches(doc map[string]interface{}) bool {
	switch n.Operator {
	case OpAnd:
		for _, child := range n.Children {
			if !child.Matches(doc) {
				return false
			}
		}
		return true
	case OpOr:
		for _, child := range n.Children {
			if child.Matches(doc) {
				return true
			}
		}
		return false
	case OpNor:
		for _, child := range n.Children {
			if child.Matches(doc) {
				return false
			}
		}
		return true
	}
	return false
}

func (n *LogicalNode) String() string {
	parts := make([]string, len(n.Children))
	for i, child := range n.Children {
		parts[i] = child.String()
	}
	return fmt.Sprintf("%s(%s)", n.Operator, strings.Join(parts, ", "))
}

// FieldNode resolves a dotted path and ANDs its operator tests.
type FieldNode struct {
	Field string
	tests []valueTest
}

func (n *FieldNode) Matches(doc map[string]interface{}) bool {
	val, present := storage.Lookup(doc, n.Field)
	for _, t := range n.tests {
		if !t.test(val, present) {
			return false
		}
	}
	return true
}

func (n *FieldNode) String() string {
	parts := make([]string, len(n.tests))
	for i, t := range n.tests {
		parts[i] = t.String()
	}
	return fmt.Sprintf("%s{%s}", n.Field, strings.Join(parts, ", "))
}

// matchAll is the predicate of an empty query.
type matchAll struct{}

func (matchAll) Matches(map[string]interface{}) bool { return true }
func (matchAll) String() string                      { return "true" }

type opTest struct {
	op      Operator
	operand interface{}
	fn      opFunc
}

func (t *opTest) test(actual interface{}, present bool) bool {
	return t.fn(actual, present, t.operand)
}

func (t *opTest) String() string {
	return fmt.Sprintf("%s %s", t.op, storage.Canonical(t.operand))
}

// notTest negates the conjunction of its tests.
type notTest struct {
	tests []valueTest
}

func (t *notTest) test(actual interface{}, present bool) bool {
	for _, inner := range t.tests {
		if !inner.test(actual, present) {
			return true
		}
	}
	return false
}

func (t *notTest) String() string {
	parts := make([]string, len(t.tests))
	for i, inner := range t.tests {
		parts[i] = inner.String()
	}
	return fmt.Sprintf("$not{%s}", strings.Join(parts, ", "))
}

// elemMatchTest matches arrays with at least one element satisfying either
// value tests (operator form) or a document matcher (query form).
type elemMatchTest struct {
	values []valueTest
	doc    Matcher
}

func (t *elemMatchTest) test(actual interface{}, present bool) bool {
	list, ok := toList(actual)
	if !present || !ok {
		return false
	}
	for _, item := range list {
		if t.element(item) {
			return true
		}
	}
	return false
}

func (t *elemMatchTest) element(item interface{}) bool {
	if t.doc != nil {
		m, ok := storage.AsMap(item)
		return ok && t.doc.Matches(m)
	}
	for _, v := range t.values {
		if !v.test(item, true) {
			return false
		}
	}
	return true
}

func (t *elemMatchTest) String() string {
	if t.doc != nil {
		return fmt.Sprintf("$elemMatch %s", t.doc.String())
	}
	parts := make([]string, len(t.values))
	for i, v := range t.values {
		parts[i] = v.String()
	}
	return fmt.Sprintf("$elemMatch{%s}", strings.Join(parts, ", "))
}
