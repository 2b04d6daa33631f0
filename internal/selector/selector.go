// Package selector narrows a query's candidate documents through the
// collection's indexes.
//
// Only indexes whose attribute set equals the query's indexable attributes
// are used, and the compiled predicate still runs over the narrowed set.
// Exact lookups and single-attribute ranges return a superset of the final
// result. Ranges over a composite index compare comma-joined string keys,
// so they can miss documents whose fields lie inside every per-field bound
// (a=10 falls outside "5,1".."20,3" as a string).
package selector

import (
	"fmt"
	"sort"

	"github.com/kartikbazzad/bunbase/docstore/internal/btree"
	"github.com/kartikbazzad/bunbase/docstore/internal/index"
	"github.com/kartikbazzad/bunbase/docstore/internal/query"
	"github.com/kartikbazzad/bunbase/docstore/internal/util"
	"github.com/kartikbazzad/bunbase/docstore/storage"
)

// Attributes splits a query's fields by how an index could serve them.
type Attributes struct {
	Range []string // fields bounded by $lt/$lte/$gt/$gte
	Exact []string // fields compared with a non-pattern $eq
}

// Plan records which indexes narrowed a query.
type Plan struct {
	Indexes []string
}

// PopulateAttributes classifies the fields of a normalized query. Logical
// operators nested inside a field's operator document cannot be served by an
// index and fail with ErrSubExpressionIndex.
func PopulateAttributes(q query.Query) (Attributes, error) {
	var attrs Attributes
	for field, val := range q {
		if query.IsOperatorKey(field) {
			continue
		}
		ops, ok := storage.AsMap(val)
		if !ok {
			continue
		}

		var ranged, exact bool
		for op, operand := range ops {
			switch o := query.Operator(op); {
			case query.IsLogical(o):
				return Attributes{}, fmt.Errorf("%w: %s under field %q", util.ErrSubExpressionIndex, op, field)
			case query.IsRange(o):
				ranged = true
			case o == query.OpEq && indexable(operand):
				exact = true
			}
		}
		switch {
		case ranged:
			attrs.Range = append(attrs.Range, field)
		case exact:
			attrs.Exact = append(attrs.Exact, field)
		}
	}
	sort.Strings(attrs.Range)
	sort.Strings(attrs.Exact)
	return attrs, nil
}

// indexable reports whether an $eq operand can be looked up by key. Patterns
// and containers match more than their key.
func indexable(operand interface{}) bool {
	switch operand.(type) {
	case nil, bool, string, storage.ObjectID, storage.Ref:
		return true
	}
	_, ok := storage.ToFloat(operand)
	return ok
}

// Resolve returns the candidates the indexes can narrow the query to. ok is
// false when no index applies and the caller must scan the collection.
// indices are expected most specific first; the first full match for an
// attribute set wins.
func Resolve(indices []index.Index, q query.Query) ([]storage.Document, *Plan, bool, error) {
	attrs, err := PopulateAttributes(q)
	if err != nil {
		return nil, nil, false, err
	}

	plan := &Plan{}
	var lists [][]storage.Document

	if len(attrs.Exact) > 0 {
		if idx := pick(indices, attrs.Exact, false); idx != nil {
			lists = append(lists, idx.Search(exactKey(idx, q)))
			plan.Indexes = append(plan.Indexes, idx.Name())
		}
	}
	if len(attrs.Range) > 0 {
		if idx := pick(indices, attrs.Range, true); idx != nil {
			min, max, incMin, incMax := bounds(idx, q)
			docs, err := idx.Range(min, max, incMin, incMax)
			if err != nil {
				return nil, nil, false, err
			}
			lists = append(lists, docs)
			plan.Indexes = append(plan.Indexes, idx.Name())
		}
	}

	switch len(lists) {
	case 0:
		return nil, plan, false, nil
	case 1:
		return lists[0], plan, true, nil
	}
	return Intersect(lists...), plan, true, nil
}

func pick(indices []index.Index, attrs []string, isRange bool) index.Index {
	for _, idx := range indices {
		if m, ok := idx.Applies(attrs, isRange); ok && !m.Partial {
			return idx
		}
	}
	return nil
}

func operand(q query.Query, field string, op query.Operator) (interface{}, bool) {
	ops, ok := storage.AsMap(q[field])
	if !ok {
		return nil, false
	}
	v, ok := ops[string(op)]
	return v, ok
}

func exactKey(idx index.Index, q query.Query) interface{} {
	attrs := idx.Attributes()
	values := make([]interface{}, len(attrs))
	for i, attr := range attrs {
		values[i], _ = operand(q, attr, query.OpEq)
	}
	return index.CompositeKey(values)
}

// bounds builds the range endpoints in index attribute order. $gte wins over
// $gt and $lte over $lt. A side any attribute leaves open is Unbounded.
// Composite endpoints are always inclusive. Their joined string keys order
// lexicographically, so a composite range may drop true matches.
func bounds(idx index.Index, q query.Query) (min, max interface{}, incMin, incMax bool) {
	attrs := idx.Attributes()
	lows := make([]interface{}, 0, len(attrs))
	highs := make([]interface{}, 0, len(attrs))
	incMin, incMax = true, true

	for _, attr := range attrs {
		if v, ok := operand(q, attr, query.OpGte); ok {
			lows = append(lows, v)
		} else if v, ok := operand(q, attr, query.OpGt); ok {
			lows = append(lows, v)
			incMin = false
		}
		if v, ok := operand(q, attr, query.OpLte); ok {
			highs = append(highs, v)
		} else if v, ok := operand(q, attr, query.OpLt); ok {
			highs = append(highs, v)
			incMax = false
		}
	}

	min, max = btree.Unbounded, btree.Unbounded
	if len(lows) == len(attrs) {
		min = index.CompositeKey(lows)
	}
	if len(highs) == len(attrs) {
		max = index.CompositeKey(highs)
	}
	if len(attrs) > 1 {
		incMin, incMax = true, true
	}
	return min, max, incMin, incMax
}

// Intersect returns the documents present in every list, by _id, in the
// order of the shortest list. Duplicates within a list count once.
func Intersect(lists ...[]storage.Document) []storage.Document {
	if len(lists) == 0 {
		return nil
	}
	shortest := 0
	for i, l := range lists {
		if len(l) < len(lists[shortest]) {
			shortest = i
		}
	}

	counts := make(map[string]int, len(lists[shortest]))
	for _, doc := range lists[shortest] {
		if id, ok := doc.GetID(); ok {
			counts[id] = 1
		}
	}
	for i, l := range lists {
		if i == shortest {
			continue
		}
		seen := make(map[string]bool, len(l))
		for _, doc := range l {
			id, ok := doc.GetID()
			if !ok || seen[id] {
				continue
			}
			seen[id] = true
			if _, probe := counts[id]; probe {
				counts[id]++
			}
		}
	}

	out := make([]storage.Document, 0, len(counts))
	for _, doc := range lists[shortest] {
		id, ok := doc.GetID()
		if !ok || counts[id] != len(lists) {
			continue
		}
		out = append(out, doc)
		// emit each id once
		counts[id] = 0
	}
	return out
}
