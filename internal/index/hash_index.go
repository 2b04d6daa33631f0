package index

import (
	"fmt"

	"github.com/kartikbazzad/bunbase/docstore/internal/btree"
	"github.com/kartikbazzad/bunbase/docstore/internal/util"
	"github.com/kartikbazzad/bunbase/docstore/storage"
)

// HashTableIndex files documents in buckets keyed by the composite attribute
// value. It answers point lookups only.
type HashTableIndex struct {
	base
}

// NewHashTableIndex creates an empty hash index over the given attributes.
func NewHashTableIndex(attributes interface{}) (*HashTableIndex, error) {
	table := hashStructure{buckets: make(map[interface{}]*btree.Bucket)}
	b, err := newBase(Hash, attributes, table)
	if err != nil {
		return nil, err
	}
	return &HashTableIndex{base: b}, nil
}

// Range always fails: hash buckets carry no order.
func (i *HashTableIndex) Range(min, max interface{}, includeMin, includeMax bool) ([]storage.Document, error) {
	return nil, fmt.Errorf("%w: range scan on %s index %q", util.ErrUnsupportedOperation, Hash, i.name)
}

func (i *HashTableIndex) String() string {
	return fmt.Sprintf("%s(%s)", Hash, i.name)
}

type hashStructure struct {
	buckets map[interface{}]*btree.Bucket
}

func (s hashStructure) add(key interface{}, id string, doc storage.Document) *btree.Bucket {
	b, ok := s.buckets[key]
	if !ok {
		b = btree.NewBucket()
		s.buckets[key] = b
	}
	b.Put(id, doc)
	return b
}

func (s hashStructure) bucket(key interface{}) (*btree.Bucket, bool) {
	b, ok := s.buckets[key]
	return b, ok
}

func (s hashStructure) drop(key interface{}) {
	delete(s.buckets, key)
}

func (s hashStructure) clear() {
	clear(s.buckets)
}
