package btree

import "sort"

// interiorNode routes lookups: children[i] holds keys below keys[i] and
// children[i+1] holds keys at or above it. len(children) == len(keys)+1.
type interiorNode struct {
	tree     *Tree
	keys     []interface{}
	children []node
}

func (n *interiorNode) size() int { return len(n.keys) }

// indexSearch returns the child to descend into: the position of the first
// separator strictly greater than key.
func (n *interiorNode) indexSearch(key interface{}) int {
	return sort.Search(len(n.keys), func(i int) bool {
		return n.tree.cmp(n.keys[i], key) > 0
	})
}

func (n *interiorNode) insert(key interface{}, put putFunc) *SplitResult {
	i := n.indexSearch(key)
	split := n.children[i].insert(key, put)
	if split == nil {
		return nil
	}

	// split.Left is children[i]; the new right half goes after it
	n.keys = append(n.keys, nil)
	copy(n.keys[i+1:], n.keys[i:])
	n.keys[i] = split.Key

	n.children = append(n.children, nil)
	copy(n.children[i+2:], n.children[i+1:])
	n.children[i+1] = split.Right

	if len(n.keys) > n.tree.order {
		return n.split()
	}
	return nil
}

// split promotes the middle separator; it lives on only in the parent.
func (n *interiorNode) split() *SplitResult {
	mid := len(n.keys) / 2
	promoted := n.keys[mid]

	right := &interiorNode{
		tree:     n.tree,
		keys:     append([]interface{}(nil), n.keys[mid+1:]...),
		children: append([]node(nil), n.children[mid+1:]...),
	}
	n.keys = append([]interface{}(nil), n.keys[:mid]...)
	n.children = append([]node(nil), n.children[:mid+1]...)

	n.tree.stats.Splits++
	return &SplitResult{Left: n, Key: promoted, Right: right}
}

func (n *interiorNode) remove(key interface{}) bool {
	i := n.indexSearch(key)
	child := n.children[i]
	if !child.remove(key) {
		return false
	}
	if child.size() < n.tree.threshold {
		n.rebalance(i)
	}
	return true
}

// identifySiblings returns the neighbours of children[i] under this node.
func (n *interiorNode) identifySiblings(i int) (left, right node) {
	if i > 0 {
		left = n.children[i-1]
	}
	if i+1 < len(n.children) {
		right = n.children[i+1]
	}
	return left, right
}

// rebalance fixes an underfull children[i] by borrowing one entry from a
// sibling with entries to spare, or else merging with a sibling (left first).
func (n *interiorNode) rebalance(i int) Operation {
	left, right := n.identifySiblings(i)
	switch {
	case left != nil && left.size() > n.tree.threshold:
		n.borrowFromLeft(i)
		n.tree.stats.Redistributions++
		return OpRedistribute
	case right != nil && right.size() > n.tree.threshold:
		n.borrowFromRight(i)
		n.tree.stats.Redistributions++
		return OpRedistribute
	case left != nil:
		n.mergeChildren(i - 1)
	case right != nil:
		n.mergeChildren(i)
	default:
		// only child: nothing to rebalance against, the tree collapses the root
		return OpMerge
	}
	n.tree.stats.Merges++
	return OpMerge
}

func (n *interiorNode) borrowFromLeft(i int) {
	switch c := n.children[i].(type) {
	case *leafNode:
		ls := n.children[i-1].(*leafNode)
		c.pushFront(ls.popBack())
		n.keys[i-1] = c.entries[0].Key
	case *interiorNode:
		ls := n.children[i-1].(*interiorNode)
		last := len(ls.keys) - 1

		c.keys = append([]interface{}{n.keys[i-1]}, c.keys...)
		c.children = append([]node{ls.children[last+1]}, c.children...)
		n.keys[i-1] = ls.keys[last]

		ls.keys = ls.keys[:last]
		ls.children = ls.children[:last+1]
	}
}

func (n *interiorNode) borrowFromRight(i int) {
	switch c := n.children[i].(type) {
	case *leafNode:
		rs := n.children[i+1].(*leafNode)
		c.pushBack(rs.popFront())
		n.keys[i] = rs.entries[0].Key
	case *interiorNode:
		rs := n.children[i+1].(*interiorNode)

		c.keys = append(c.keys, n.keys[i])
		c.children = append(c.children, rs.children[0])
		n.keys[i] = rs.keys[0]

		rs.keys = append(rs.keys[:0], rs.keys[1:]...)
		rs.children = append(rs.children[:0], rs.children[1:]...)
	}
}

// mergeChildren folds children[j+1] into children[j] and drops the separator
// between them.
func (n *interiorNode) mergeChildren(j int) {
	switch survivor := n.children[j].(type) {
	case *leafNode:
		victim := n.children[j+1].(*leafNode)
		survivor.absorb(victim)
		victim.unlink()
	case *interiorNode:
		victim := n.children[j+1].(*interiorNode)
		survivor.keys = append(survivor.keys, n.keys[j])
		survivor.keys = append(survivor.keys, victim.keys...)
		survivor.children = append(survivor.children, victim.children...)
	}

	n.keys = append(n.keys[:j], n.keys[j+1:]...)
	n.children = append(n.children[:j+1], n.children[j+2:]...)
}

func (n *interiorNode) search(key interface{}) (*Entry, bool) {
	return n.children[n.indexSearch(key)].search(key)
}

func (n *interiorNode) findLeaf(key interface{}) *leafNode {
	return n.children[n.indexSearch(key)].findLeaf(key)
}

func (n *interiorNode) leftmost() *leafNode {
	return n.children[0].leftmost()
}
