package index

import (
	"fmt"

	"github.com/kartikbazzad/bunbase/docstore/internal/btree"
	"github.com/kartikbazzad/bunbase/docstore/internal/metrics"
	"github.com/kartikbazzad/bunbase/docstore/storage"
)

// BPlusTreeIndex files documents in a hashing B+tree and supports ranges.
type BPlusTreeIndex struct {
	base
	tree *btree.Tree
}

// NewBPlusTreeIndex creates an empty B+tree index over the given attributes.
func NewBPlusTreeIndex(attributes interface{}, opts Options) (*BPlusTreeIndex, error) {
	tree, err := btree.NewHashing(opts.Order, opts.MergeThreshold, storage.Compare)
	if err != nil {
		return nil, err
	}

	idx := &BPlusTreeIndex{tree: tree}
	b, err := newBase(BTree, attributes, treeStructure{tree})
	if err != nil {
		return nil, err
	}
	idx.base = b
	return idx, nil
}

// Range returns the documents whose key lies between min and max. Pass
// btree.Unbounded to leave an end open.
func (i *BPlusTreeIndex) Range(min, max interface{}, includeMin, includeMax bool) ([]storage.Document, error) {
	if min != btree.Unbounded {
		min = NormalizeKey(min)
	}
	if max != btree.Unbounded {
		max = NormalizeKey(max)
	}

	entries := i.tree.Range(min, max, includeMin, includeMax)
	tables := make([]*btree.Bucket, 0, len(entries))
	for _, e := range entries {
		tables = append(tables, e.Value.(*btree.Bucket))
	}
	metrics.IndexOperations.WithLabelValues(string(BTree), "range").Inc()
	return documents(tables...), nil
}

// Tree exposes the backing tree, mostly for invariant checks.
func (i *BPlusTreeIndex) Tree() *btree.Tree {
	return i.tree
}

func (i *BPlusTreeIndex) String() string {
	return fmt.Sprintf("%s(%s)", BTree, i.name)
}

type treeStructure struct {
	tree *btree.Tree
}

func (s treeStructure) add(key interface{}, id string, doc storage.Document) *btree.Bucket {
	// Add only fails on non-hashing trees
	b, _ := s.tree.Add(key, id, doc)
	return b
}

func (s treeStructure) bucket(key interface{}) (*btree.Bucket, bool) {
	return s.tree.Bucket(key)
}

func (s treeStructure) drop(key interface{}) {
	s.tree.Remove(key)
}

func (s treeStructure) clear() {
	s.tree.Clear()
}
