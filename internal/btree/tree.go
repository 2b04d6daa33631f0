// Package btree implements the in-memory B+tree behind ordered indexes.
//
// Leaves hold sorted entries and are chained left/right so range scans walk
// the bottom level without re-descending. Interior nodes hold separator keys:
// keys[i] bounds children[i] from above and children[i+1] from below, so for
// every separator k, all keys on its left are < k and all keys on its right
// are >= k.
//
// A hashing tree stores a Bucket per key instead of a single value, which is
// what non-unique secondary indexes need.
package btree

import (
	"fmt"

	"github.com/kartikbazzad/bunbase/docstore/internal/util"
)

const (
	// DefaultOrder is the maximum number of entries per node.
	DefaultOrder = 32
	minOrder     = 3
)

// Comparator returns -1, 0 or 1.
type Comparator func(a, b interface{}) int

// Entry is a key/value pair stored in a leaf.
type Entry struct {
	Key   interface{}
	Value interface{}
}

type unbounded struct{}

// Unbounded passed as a Range bound leaves that end of the range open.
var Unbounded interface{} = unbounded{}

// SplitResult describes a node that overflowed: Left keeps the lower half,
// Right holds the upper half and Key is the first key reachable through Right.
type SplitResult struct {
	Left  node
	Key   interface{}
	Right node
}

// Operation names a structural change performed while removing a key.
type Operation int

const (
	OpMerge Operation = iota
	OpRedistribute
)

// Stats counts structural changes since the tree was created.
type Stats struct {
	Splits          int
	Merges          int
	Redistributions int
}

type node interface {
	insert(key interface{}, put putFunc) *SplitResult
	remove(key interface{}) bool
	search(key interface{}) (*Entry, bool)
	findLeaf(key interface{}) *leafNode
	leftmost() *leafNode
	size() int
}

// putFunc writes into an entry; created reports whether the entry is new.
type putFunc func(e *Entry, created bool)

// Tree is an in-memory B+tree.
type Tree struct {
	root      node
	order     int
	threshold int
	cmp       Comparator
	hashing   bool
	count     int
	stats     Stats
}

// New creates a tree whose leaves hold one value per key.
// A threshold of 0 selects order/2.
func New(order, threshold int, cmp Comparator) (*Tree, error) {
	return newTree(order, threshold, cmp, false)
}

// NewHashing creates a tree whose leaves hold a Bucket per key.
func NewHashing(order, threshold int, cmp Comparator) (*Tree, error) {
	return newTree(order, threshold, cmp, true)
}

func newTree(order, threshold int, cmp Comparator, hashing bool) (*Tree, error) {
	if order == 0 {
		order = DefaultOrder
	}
	if order < minOrder {
		return nil, fmt.Errorf("%w: order %d is below %d", util.ErrInvalidIndexSpec, order, minOrder)
	}
	if threshold == 0 {
		threshold = order / 2
	}
	// merging two underfull siblings must never overflow a node
	if threshold < 1 || threshold >= order || 2*threshold > order {
		return nil, fmt.Errorf("%w: merge threshold %d does not fit order %d", util.ErrInvalidIndexSpec, threshold, order)
	}
	if cmp == nil {
		return nil, fmt.Errorf("%w: comparator is required", util.ErrInvalidIndexSpec)
	}

	t := &Tree{
		order:     order,
		threshold: threshold,
		cmp:       cmp,
		hashing:   hashing,
	}
	t.root = t.newLeaf(nil)
	return t, nil
}

// Order returns the maximum number of entries per node.
func (t *Tree) Order() int { return t.order }

// Threshold returns the occupancy below which removal rebalances.
func (t *Tree) Threshold() int { return t.threshold }

// Hashing reports whether leaves hold buckets.
func (t *Tree) Hashing() bool { return t.hashing }

// Len returns the number of distinct keys.
func (t *Tree) Len() int { return t.count }

// Stats returns structural change counters.
func (t *Tree) Stats() Stats { return t.stats }

// Height returns the number of levels, 1 for a single leaf.
func (t *Tree) Height() int {
	h := 1
	for n := t.root; ; h++ {
		in, ok := n.(*interiorNode)
		if !ok {
			return h
		}
		n = in.children[0]
	}
}

// Insert stores value under key, replacing the previous value.
func (t *Tree) Insert(key, value interface{}) {
	t.insert(key, func(e *Entry, created bool) {
		e.Value = value
	})
}

// Add places (id, value) in the bucket stored under key, creating the bucket
// when the key is new, and returns that bucket.
func (t *Tree) Add(key interface{}, id string, value interface{}) (*Bucket, error) {
	if !t.hashing {
		return nil, fmt.Errorf("%w: Add on a non-hashing tree", util.ErrUnsupportedOperation)
	}

	var bucket *Bucket
	t.insert(key, func(e *Entry, created bool) {
		if created {
			e.Value = NewBucket()
		}
		bucket = e.Value.(*Bucket)
		bucket.Put(id, value)
	})
	return bucket, nil
}

func (t *Tree) insert(key interface{}, put putFunc) {
	created := false
	split := t.root.insert(key, func(e *Entry, isNew bool) {
		created = isNew
		put(e, isNew)
	})
	if created {
		t.count++
	}
	if split != nil {
		t.root = &interiorNode{
			tree:     t,
			keys:     []interface{}{split.Key},
			children: []node{split.Left, split.Right},
		}
	}
}

// Remove deletes key and reports whether it was present.
func (t *Tree) Remove(key interface{}) bool {
	if !t.root.remove(key) {
		return false
	}
	t.count--

	// an interior root left with a single child hands the root to it
	if in, ok := t.root.(*interiorNode); ok && len(in.keys) == 0 {
		t.root = in.children[0]
	}
	return true
}

// Search returns the value stored under key. ok is false when the key is
// absent, which is distinct from a present but empty bucket.
func (t *Tree) Search(key interface{}) (value interface{}, ok bool) {
	e, ok := t.root.search(key)
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// Bucket returns the bucket stored under key on a hashing tree.
func (t *Tree) Bucket(key interface{}) (*Bucket, bool) {
	v, ok := t.Search(key)
	if !ok {
		return nil, false
	}
	b, ok := v.(*Bucket)
	return b, ok
}

// Range returns, in key order, the entries whose key lies between min and max.
// Either bound may be Unbounded. The scan descends once to the leaf holding
// min and then follows right sibling links.
func (t *Tree) Range(min, max interface{}, includeMin, includeMax bool) []Entry {
	var leaf *leafNode
	if min == Unbounded {
		leaf = t.root.leftmost()
	} else {
		leaf = t.root.findLeaf(min)
	}

	above := t.lowerBound(min, includeMin)
	below := t.upperBound(max, includeMax)

	var out []Entry
	for ; leaf != nil; leaf = leaf.right {
		for _, e := range leaf.entries {
			if !above(e.Key) {
				continue
			}
			if !below(e.Key) {
				return out
			}
			out = append(out, *e)
		}
	}
	return out
}

func (t *Tree) lowerBound(min interface{}, inclusive bool) func(interface{}) bool {
	switch {
	case min == Unbounded:
		return func(interface{}) bool { return true }
	case inclusive:
		return func(k interface{}) bool { return t.cmp(k, min) >= 0 }
	default:
		return func(k interface{}) bool { return t.cmp(k, min) > 0 }
	}
}

func (t *Tree) upperBound(max interface{}, inclusive bool) func(interface{}) bool {
	switch {
	case max == Unbounded:
		return func(interface{}) bool { return true }
	case inclusive:
		return func(k interface{}) bool { return t.cmp(k, max) <= 0 }
	default:
		return func(k interface{}) bool { return t.cmp(k, max) < 0 }
	}
}

// Ascend calls fn for every entry in key order until fn returns false.
func (t *Tree) Ascend(fn func(e Entry) bool) {
	for leaf := t.root.leftmost(); leaf != nil; leaf = leaf.right {
		for _, e := range leaf.entries {
			if !fn(*e) {
				return
			}
		}
	}
}

// Keys returns every key in order.
func (t *Tree) Keys() []interface{} {
	keys := make([]interface{}, 0, t.count)
	t.Ascend(func(e Entry) bool {
		keys = append(keys, e.Key)
		return true
	})
	return keys
}

// Clear drops every entry.
func (t *Tree) Clear() {
	t.root = t.newLeaf(nil)
	t.count = 0
}
