// Package index implements secondary indexes over collection documents.
//
// An index concatenates the values of one or more dotted attribute paths into
// a key and maps every key to the bucket of documents sharing it. Two
// backings exist: a hashing B+tree (supports range scans) and a plain hash
// table (point lookups only). Array values are multikey: the document is
// filed under the whole array and under each element.
package index

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kartikbazzad/bunbase/docstore/internal/btree"
	"github.com/kartikbazzad/bunbase/docstore/internal/metrics"
	"github.com/kartikbazzad/bunbase/docstore/internal/util"
	"github.com/kartikbazzad/bunbase/docstore/storage"
)

// Type tags the backing structure of an index.
type Type string

const (
	BTree Type = "BTREE"
	Hash  Type = "HASH"
)

// ParseType accepts the type names case-insensitively.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(BTree), "BPLUSTREE", "TREE":
		return BTree, nil
	case string(Hash), "HASHTABLE":
		return Hash, nil
	}
	return "", fmt.Errorf("%w: unknown index type %q", util.ErrInvalidIndexSpec, s)
}

// Index is the contract every secondary index fulfils.
type Index interface {
	Type() Type
	// Attributes returns the attribute paths in key order.
	Attributes() []string
	// Name is the order-insensitive identity: sorted attributes joined by commas.
	Name() string
	// Applies tests whether the index can serve a query over attrs.
	Applies(attrs []string, isRange bool) (Match, bool)
	GenerateKey(doc storage.Document) interface{}
	// GenerateKeys returns every key the document is filed under.
	GenerateKeys(doc storage.Document) []interface{}
	Index(doc storage.Document) error
	Remove(doc storage.Document) bool
	RemoveKey(key interface{}) int
	Search(key interface{}) []storage.Document
	Range(min, max interface{}, includeMin, includeMax bool) ([]storage.Document, error)
	Clear()
	// Len returns the number of indexed documents.
	Len() int
}

// Match describes how an index overlaps a query's attribute set. A partial
// match must not be used to narrow candidates.
type Match struct {
	Matched []string
	Partial bool
}

// Options configures index construction.
type Options struct {
	// Order is the B+tree node capacity (BTREE only, 0 = default).
	Order int
	// MergeThreshold is the B+tree underflow bound (BTREE only, 0 = Order/2).
	MergeThreshold int
}

// New builds an empty index of the given type.
func New(typ Type, attributes interface{}, opts Options) (Index, error) {
	switch typ {
	case BTree:
		return NewBPlusTreeIndex(attributes, opts)
	case Hash:
		return NewHashTableIndex(attributes)
	}
	return nil, fmt.Errorf("%w: unknown index type %q", util.ErrInvalidIndexSpec, typ)
}

// structure is the backing container: key -> bucket of documents.
type structure interface {
	add(key interface{}, id string, doc storage.Document) *btree.Bucket
	bucket(key interface{}) (*btree.Bucket, bool)
	drop(key interface{})
	clear()
}

// leafRef remembers one place a document was filed so removal needs no
// lookup.
type leafRef struct {
	table *btree.Bucket
	key   interface{}
}

// base carries everything both index kinds share.
type base struct {
	typ        Type
	attributes []string
	astrings   map[string]struct{}
	name       string
	leaves     map[string][]leafRef
	structure  structure
}

func newBase(typ Type, spec interface{}, s structure) (base, error) {
	attrs, err := ParseAttributes(spec)
	if err != nil {
		return base{}, err
	}

	sorted := append([]string(nil), attrs...)
	sort.Strings(sorted)
	set := make(map[string]struct{}, len(attrs))
	for _, a := range attrs {
		set[a] = struct{}{}
	}

	return base{
		typ:        typ,
		attributes: attrs,
		astrings:   set,
		name:       strings.Join(sorted, ","),
		leaves:     make(map[string][]leafRef),
		structure:  s,
	}, nil
}

func (b *base) Type() Type { return b.typ }

func (b *base) Attributes() []string {
	return append([]string(nil), b.attributes...)
}

func (b *base) Name() string { return b.name }

func (b *base) Len() int { return len(b.leaves) }

func (b *base) Applies(attrs []string, isRange bool) (Match, bool) {
	if isRange && b.typ == Hash {
		return Match{}, false
	}
	if len(attrs) < len(b.attributes) {
		return Match{}, false
	}

	var matched []string
	for _, a := range attrs {
		if _, ok := b.astrings[a]; ok {
			matched = append(matched, a)
		}
	}
	if len(matched) == 0 {
		return Match{}, false
	}
	return Match{Matched: matched, Partial: len(matched) != len(attrs)}, true
}

func (b *base) GenerateKey(doc storage.Document) interface{} {
	values := make([]interface{}, len(b.attributes))
	for i, attr := range b.attributes {
		values[i], _ = storage.Lookup(doc, attr)
	}
	return CompositeKey(values)
}

// GenerateKeys expands array values: an array contributes its whole key and
// the key of each element, and several attributes combine as the cross
// product. The first key is always GenerateKey's.
func (b *base) GenerateKeys(doc storage.Document) []interface{} {
	combos := [][]interface{}{{}}
	for _, attr := range b.attributes {
		v, _ := storage.Lookup(doc, attr)
		alts := alternatives(v)
		next := make([][]interface{}, 0, len(combos)*len(alts))
		for _, combo := range combos {
			for _, alt := range alts {
				row := make([]interface{}, len(combo), len(combo)+1)
				copy(row, combo)
				next = append(next, append(row, alt))
			}
		}
		combos = next
	}

	keys := make([]interface{}, 0, len(combos))
	seen := make(map[interface{}]struct{}, len(combos))
	for _, combo := range combos {
		key := CompositeKey(combo)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

func (b *base) Index(doc storage.Document) error {
	id, ok := doc.GetID()
	if !ok {
		return fmt.Errorf("%w: document has no %s", util.ErrInvalidOperand, storage.IDField)
	}
	if _, indexed := b.leaves[id]; indexed {
		b.Remove(doc)
	}

	keys := b.GenerateKeys(doc)
	refs := make([]leafRef, 0, len(keys))
	for _, key := range keys {
		refs = append(refs, leafRef{table: b.structure.add(key, id, doc), key: key})
	}
	b.leaves[id] = refs
	metrics.IndexOperations.WithLabelValues(string(b.typ), "index").Inc()
	return nil
}

func (b *base) Remove(doc storage.Document) bool {
	id, ok := doc.GetID()
	if !ok {
		return false
	}
	refs, ok := b.leaves[id]
	if !ok {
		return false
	}

	for _, ref := range refs {
		ref.table.Delete(id)
		if ref.table.Len() == 0 {
			b.structure.drop(ref.key)
		}
	}
	delete(b.leaves, id)
	metrics.IndexOperations.WithLabelValues(string(b.typ), "remove").Inc()
	return true
}

func (b *base) RemoveKey(key interface{}) int {
	key = NormalizeKey(key)
	table, ok := b.structure.bucket(key)
	if !ok {
		return 0
	}

	ids := table.IDs()
	for _, id := range ids {
		kept := b.leaves[id][:0]
		for _, ref := range b.leaves[id] {
			if ref.table != table {
				kept = append(kept, ref)
			}
		}
		if len(kept) == 0 {
			delete(b.leaves, id)
		} else {
			b.leaves[id] = kept
		}
	}
	b.structure.drop(key)
	return len(ids)
}

func (b *base) Search(key interface{}) []storage.Document {
	table, ok := b.structure.bucket(NormalizeKey(key))
	if !ok {
		return nil
	}
	metrics.IndexOperations.WithLabelValues(string(b.typ), "search").Inc()
	return documents(table)
}

func (b *base) Clear() {
	b.structure.clear()
	b.leaves = make(map[string][]leafRef)
}

// documents flattens buckets, emitting a document filed under several of
// them once.
func documents(tables ...*btree.Bucket) []storage.Document {
	n := 0
	for _, t := range tables {
		n += t.Len()
	}
	out := make([]storage.Document, 0, n)
	var seen map[string]struct{}
	if len(tables) > 1 {
		seen = make(map[string]struct{}, n)
	}
	for _, t := range tables {
		t.Each(func(id string, v interface{}) bool {
			if seen != nil {
				if _, dup := seen[id]; dup {
					return true
				}
				seen[id] = struct{}{}
			}
			out = append(out, v.(storage.Document))
			return true
		})
	}
	return out
}
