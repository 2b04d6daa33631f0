package btree

import (
	"reflect"
	"sort"
)

// leafNode holds sorted entries plus a lookup side-table for O(1) point
// lookups. left/right link every leaf on the bottom level into one list.
type leafNode struct {
	tree    *Tree
	entries []*Entry
	lookup  map[interface{}]*Entry
	left    *leafNode
	right   *leafNode
}

func (t *Tree) newLeaf(entries []*Entry) *leafNode {
	l := &leafNode{
		tree:    t,
		entries: entries,
		lookup:  make(map[interface{}]*Entry, len(entries)),
	}
	for _, e := range entries {
		l.remember(e)
	}
	return l
}

// hashable reports whether k can key the lookup table. Keys of other kinds
// are still stored; they are just found by binary search.
func hashable(k interface{}) bool {
	return k == nil || reflect.TypeOf(k).Comparable()
}

func (l *leafNode) remember(e *Entry) {
	if hashable(e.Key) {
		l.lookup[e.Key] = e
	}
}

func (l *leafNode) forget(e *Entry) {
	if hashable(e.Key) {
		delete(l.lookup, e.Key)
	}
}

func (l *leafNode) size() int { return len(l.entries) }

// indexSearch returns the position of the first entry whose key is >= key.
func (l *leafNode) indexSearch(key interface{}) int {
	return sort.Search(len(l.entries), func(i int) bool {
		return l.tree.cmp(l.entries[i].Key, key) >= 0
	})
}

func (l *leafNode) find(key interface{}) (int, bool) {
	i := l.indexSearch(key)
	return i, i < len(l.entries) && l.tree.cmp(l.entries[i].Key, key) == 0
}

func (l *leafNode) insert(key interface{}, put putFunc) *SplitResult {
	if hashable(key) {
		if e, ok := l.lookup[key]; ok {
			put(e, false)
			return nil
		}
	}

	i, found := l.find(key)
	if found {
		put(l.entries[i], false)
		return nil
	}

	e := &Entry{Key: key}
	put(e, true)
	l.entries = append(l.entries, nil)
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = e
	l.remember(e)

	if len(l.entries) > l.tree.order {
		return l.split()
	}
	return nil
}

// split keeps the lower half in l, moves the upper half into a new right
// sibling spliced into the leaf chain, and returns the new separator.
func (l *leafNode) split() *SplitResult {
	mid := len(l.entries) / 2

	upper := make([]*Entry, len(l.entries)-mid)
	copy(upper, l.entries[mid:])
	lower := make([]*Entry, mid, l.tree.order+1)
	copy(lower, l.entries[:mid])

	for _, e := range upper {
		l.forget(e)
	}
	l.entries = lower

	right := l.tree.newLeaf(upper)
	right.right = l.right
	if l.right != nil {
		l.right.left = right
	}
	right.left = l
	l.right = right

	l.tree.stats.Splits++
	return &SplitResult{Left: l, Key: right.entries[0].Key, Right: right}
}

func (l *leafNode) remove(key interface{}) bool {
	i, found := l.find(key)
	if !found {
		return false
	}
	l.forget(l.entries[i])
	l.entries = append(l.entries[:i], l.entries[i+1:]...)
	return true
}

func (l *leafNode) search(key interface{}) (*Entry, bool) {
	if hashable(key) {
		if e, ok := l.lookup[key]; ok {
			return e, true
		}
	}
	i, found := l.find(key)
	if !found {
		return nil, false
	}
	return l.entries[i], true
}

func (l *leafNode) findLeaf(interface{}) *leafNode { return l }

func (l *leafNode) leftmost() *leafNode { return l }

// unlink splices l out of the leaf chain.
func (l *leafNode) unlink() {
	if l.left != nil {
		l.left.right = l.right
	}
	if l.right != nil {
		l.right.left = l.left
	}
	l.left, l.right = nil, nil
}

// absorb appends every entry of other, which must hold larger keys.
func (l *leafNode) absorb(other *leafNode) {
	for _, e := range other.entries {
		l.entries = append(l.entries, e)
		l.remember(e)
	}
	other.entries = nil
	other.lookup = nil
}

func (l *leafNode) popFront() *Entry {
	e := l.entries[0]
	l.entries = append(l.entries[:0], l.entries[1:]...)
	l.forget(e)
	return e
}

func (l *leafNode) popBack() *Entry {
	e := l.entries[len(l.entries)-1]
	l.entries = l.entries[:len(l.entries)-1]
	l.forget(e)
	return e
}

func (l *leafNode) pushFront(e *Entry) {
	l.entries = append(l.entries, nil)
	copy(l.entries[1:], l.entries)
	l.entries[0] = e
	l.remember(e)
}

func (l *leafNode) pushBack(e *Entry) {
	l.entries = append(l.entries, e)
	l.remember(e)
}
