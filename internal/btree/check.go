package btree

import (
	"fmt"

	"github.com/kartikbazzad/bunbase/docstore/internal/util"
)

// Check walks the whole tree and reports the first structural invariant it
// finds broken: key order inside nodes, separator bounds, node occupancy,
// uniform leaf depth and a leaf chain that matches the in-order leaves in
// both directions.
func (t *Tree) Check() error {
	var leaves []*leafNode
	depth := -1
	count := 0

	var walk func(n node, lo, hi interface{}, level int, isRoot bool) error
	walk = func(n node, lo, hi interface{}, level int, isRoot bool) error {
		switch nd := n.(type) {
		case *leafNode:
			if depth == -1 {
				depth = level
			} else if depth != level {
				return invariant("leaf at depth %d, expected %d", level, depth)
			}
			if len(nd.entries) > t.order {
				return invariant("leaf holds %d entries, order is %d", len(nd.entries), t.order)
			}
			if !isRoot && len(nd.entries) < t.threshold {
				return invariant("leaf holds %d entries, threshold is %d", len(nd.entries), t.threshold)
			}
			for i, e := range nd.entries {
				if i > 0 && t.cmp(nd.entries[i-1].Key, e.Key) >= 0 {
					return invariant("leaf keys %v, %v out of order", nd.entries[i-1].Key, e.Key)
				}
				if lo != Unbounded && t.cmp(e.Key, lo) < 0 {
					return invariant("key %v below separator %v", e.Key, lo)
				}
				if hi != Unbounded && t.cmp(e.Key, hi) >= 0 {
					return invariant("key %v not below separator %v", e.Key, hi)
				}
				if hashable(e.Key) && nd.lookup[e.Key] != e {
					return invariant("lookup table misses key %v", e.Key)
				}
			}
			if len(nd.lookup) > len(nd.entries) {
				return invariant("lookup table holds %d keys for %d entries", len(nd.lookup), len(nd.entries))
			}
			count += len(nd.entries)
			leaves = append(leaves, nd)
			return nil

		case *interiorNode:
			if len(nd.children) != len(nd.keys)+1 {
				return invariant("interior node has %d keys and %d children", len(nd.keys), len(nd.children))
			}
			if len(nd.keys) > t.order {
				return invariant("interior node holds %d keys, order is %d", len(nd.keys), t.order)
			}
			if isRoot && len(nd.keys) == 0 {
				return invariant("interior root without separators")
			}
			if !isRoot && len(nd.keys) < t.threshold {
				return invariant("interior node holds %d keys, threshold is %d", len(nd.keys), t.threshold)
			}
			for i := 1; i < len(nd.keys); i++ {
				if t.cmp(nd.keys[i-1], nd.keys[i]) >= 0 {
					return invariant("separators %v, %v out of order", nd.keys[i-1], nd.keys[i])
				}
			}
			for i, child := range nd.children {
				clo, chi := lo, hi
				if i > 0 {
					clo = nd.keys[i-1]
				}
				if i < len(nd.keys) {
					chi = nd.keys[i]
				}
				if err := walk(child, clo, chi, level+1, false); err != nil {
					return err
				}
			}
			return nil
		}
		return invariant("unknown node type %T", n)
	}

	if err := walk(t.root, Unbounded, Unbounded, 0, true); err != nil {
		return err
	}
	if count != t.count {
		return invariant("tree counts %d keys, leaves hold %d", t.count, count)
	}

	// forward and backward sibling walks must visit exactly the in-order leaves
	if len(leaves) > 0 && leaves[0].left != nil {
		return invariant("leftmost leaf has a left sibling")
	}
	i := 0
	for l := t.root.leftmost(); l != nil; l = l.right {
		if i >= len(leaves) || leaves[i] != l {
			return invariant("leaf chain diverges from tree order at position %d", i)
		}
		if l.right != nil && l.right.left != l {
			return invariant("leaf chain back link broken at position %d", i)
		}
		if l.right != nil && len(l.entries) > 0 && len(l.right.entries) > 0 &&
			t.cmp(l.entries[len(l.entries)-1].Key, l.right.entries[0].Key) >= 0 {
			return invariant("leaf chain keys out of order at position %d", i)
		}
		i++
	}
	if i != len(leaves) {
		return invariant("leaf chain visits %d of %d leaves", i, len(leaves))
	}
	return nil
}

func invariant(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", util.ErrTreeInvariant, fmt.Sprintf(format, args...))
}
