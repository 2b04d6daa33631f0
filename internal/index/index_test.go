package index

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartikbazzad/bunbase/docstore/internal/btree"
	"github.com/kartikbazzad/bunbase/docstore/internal/util"
	"github.com/kartikbazzad/bunbase/docstore/storage"
)

func seed(t *testing.T, idx Index, n int) []storage.Document {
	t.Helper()
	docs := make([]storage.Document, n)
	for i := 0; i < n; i++ {
		docs[i] = storage.Document{"_id": fmt.Sprintf("doc-%d", i), "a": i % 10, "i": i}
		require.NoError(t, idx.Index(docs[i]))
	}
	return docs
}

func TestBPlusTreeIndexSearch(t *testing.T) {
	idx, err := NewBPlusTreeIndex("a", Options{Order: 5})
	require.NoError(t, err)
	seed(t, idx, 300)

	found := idx.Search(3)
	require.Len(t, found, 30)
	for _, doc := range found {
		assert.Equal(t, 3, doc["a"])
	}
	assert.Empty(t, idx.Search(42))
	assert.Equal(t, 300, idx.Len())
	require.NoError(t, idx.Tree().Check())
}

func TestBPlusTreeIndexRange(t *testing.T) {
	idx, err := NewBPlusTreeIndex("i", Options{Order: 4})
	require.NoError(t, err)
	seed(t, idx, 100)

	docs, err := idx.Range(10, 20, true, false)
	require.NoError(t, err)
	assert.Len(t, docs, 10)

	docs, err = idx.Range(btree.Unbounded, 4, true, true)
	require.NoError(t, err)
	assert.Len(t, docs, 5)

	docs, err = idx.Range(95, btree.Unbounded, false, true)
	require.NoError(t, err)
	assert.Len(t, docs, 4)
}

func TestHashTableIndex(t *testing.T) {
	idx, err := NewHashTableIndex([]string{"a"})
	require.NoError(t, err)
	seed(t, idx, 300)

	found := idx.Search(3)
	require.Len(t, found, 30)
	for _, doc := range found {
		assert.Equal(t, 3, doc["a"])
	}

	_, err = idx.Range(1, 5, true, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, util.ErrUnsupportedOperation))
}

func TestIndexRemoveRoundTrip(t *testing.T) {
	for _, typ := range []Type{BTree, Hash} {
		idx, err := New(typ, "a", Options{Order: 4})
		require.NoError(t, err)
		docs := seed(t, idx, 50)

		doc := docs[7]
		key := idx.GenerateKey(doc)
		assert.Contains(t, idx.Search(key), doc)

		require.True(t, idx.Remove(doc))
		assert.NotContains(t, idx.Search(key), doc)
		assert.False(t, idx.Remove(doc), "second removal of %s", typ)
		assert.Equal(t, 49, idx.Len())
	}
}

func TestIndexRemoveDropsEmptyBuckets(t *testing.T) {
	idx, err := NewBPlusTreeIndex("a", Options{Order: 4})
	require.NoError(t, err)
	docs := seed(t, idx, 20)

	for _, doc := range docs {
		if doc["a"] == 3 {
			idx.Remove(doc)
		}
	}
	_, ok := idx.Tree().Search(3.0)
	assert.False(t, ok)
	assert.Equal(t, 9, idx.Tree().Len())
}

func TestIndexReindexAfterMutation(t *testing.T) {
	idx, err := NewBPlusTreeIndex("a", Options{Order: 4})
	require.NoError(t, err)
	docs := seed(t, idx, 20)

	doc := docs[3]
	idx.Remove(doc)
	doc["a"] = 99
	require.NoError(t, idx.Index(doc))

	assert.Len(t, idx.Search(3), 1)
	assert.Equal(t, []storage.Document{doc}, idx.Search(99))
}

func TestRemoveKey(t *testing.T) {
	idx, err := NewHashTableIndex("a")
	require.NoError(t, err)
	seed(t, idx, 100)

	assert.Equal(t, 10, idx.RemoveKey(4))
	assert.Empty(t, idx.Search(4))
	assert.Equal(t, 90, idx.Len())
	assert.Equal(t, 0, idx.RemoveKey(4))
}

func TestCompositeKeys(t *testing.T) {
	idx, err := NewBPlusTreeIndex("b, a", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, idx.Attributes())
	assert.Equal(t, "a,b", idx.Name())

	doc := storage.Document{"_id": "x", "a": 1, "b": "two", "c": map[string]interface{}{"d": 3}}
	assert.Equal(t, "two,1", idx.GenerateKey(doc))

	nested, err := NewHashTableIndex([]interface{}{"c.d"})
	require.NoError(t, err)
	assert.Equal(t, 3.0, nested.GenerateKey(doc))
}

func TestParseAttributesRejectsBadSpecs(t *testing.T) {
	for _, spec := range []interface{}{"", "a,,b", "a,a", 12, []interface{}{"a", 3}} {
		_, err := ParseAttributes(spec)
		assert.True(t, errors.Is(err, util.ErrInvalidIndexSpec), "spec %v", spec)
	}
}

func TestApplies(t *testing.T) {
	single, _ := NewBPlusTreeIndex("a", Options{})
	pair, _ := NewBPlusTreeIndex("a,b", Options{})
	hash, _ := NewHashTableIndex("a")

	m, ok := single.Applies([]string{"a"}, true)
	require.True(t, ok)
	assert.False(t, m.Partial)

	m, ok = single.Applies([]string{"a", "b"}, true)
	require.True(t, ok)
	assert.True(t, m.Partial)

	_, ok = pair.Applies([]string{"a"}, false)
	assert.False(t, ok, "too few query attributes for a composite index")

	m, ok = pair.Applies([]string{"b", "a"}, false)
	require.True(t, ok)
	assert.False(t, m.Partial)

	_, ok = single.Applies([]string{"z"}, false)
	assert.False(t, ok)

	_, ok = hash.Applies([]string{"a"}, true)
	assert.False(t, ok, "hash indexes never serve ranges")
	_, ok = hash.Applies([]string{"a"}, false)
	assert.True(t, ok)
}

func TestParseType(t *testing.T) {
	typ, err := ParseType("btree")
	require.NoError(t, err)
	assert.Equal(t, BTree, typ)
	typ, err = ParseType("hash")
	require.NoError(t, err)
	assert.Equal(t, Hash, typ)
	_, err = ParseType("bitmap")
	assert.Error(t, err)
}

func TestArrayValuesAreMultikey(t *testing.T) {
	both := storage.Document{"_id": "both", "tags": []interface{}{"x", "y"}}
	single := storage.Document{"_id": "single", "tags": "x"}

	tree, err := NewBPlusTreeIndex("tags", Options{Order: 4})
	require.NoError(t, err)
	hash, err := NewHashTableIndex("tags")
	require.NoError(t, err)

	for _, idx := range []Index{tree, hash} {
		require.NoError(t, idx.Index(both))
		require.NoError(t, idx.Index(single))

		assert.Len(t, idx.Search("x"), 2, "%s", idx.Type())
		assert.Len(t, idx.Search("y"), 1, "%s", idx.Type())
		assert.Len(t, idx.Search([]interface{}{"x", "y"}), 1, "%s", idx.Type())
		assert.Equal(t, 2, idx.Len())

		require.True(t, idx.Remove(both))
		assert.Empty(t, idx.Search("y"))
		assert.Empty(t, idx.Search([]interface{}{"x", "y"}))
		require.Len(t, idx.Search("x"), 1)
		assert.Equal(t, "single", idx.Search("x")[0]["_id"])
	}
	assert.Equal(t, 1, tree.Tree().Len())
	require.NoError(t, tree.Tree().Check())
}

func TestRangeEmitsMultikeyDocumentsOnce(t *testing.T) {
	idx, err := NewBPlusTreeIndex("tags", Options{Order: 4})
	require.NoError(t, err)
	require.NoError(t, idx.Index(storage.Document{"_id": "a", "tags": []interface{}{"m", "n", "o"}}))
	require.NoError(t, idx.Index(storage.Document{"_id": "b", "tags": "n"}))

	docs, err := idx.Range("a", "z", true, true)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestGenerateKeysCrossProduct(t *testing.T) {
	idx, err := NewHashTableIndex("tags, n")
	require.NoError(t, err)

	doc := storage.Document{"_id": "x", "tags": []interface{}{"x", "y", "x"}, "n": 1}
	keys := idx.GenerateKeys(doc)
	require.Len(t, keys, 3)
	assert.Equal(t, idx.GenerateKey(doc), keys[0])
	assert.Contains(t, keys, "x,1")
	assert.Contains(t, keys, "y,1")

	require.NoError(t, idx.Index(doc))
	assert.Len(t, idx.Search("y,1"), 1)
}

func TestRemoveKeyKeepsOtherMultikeyEntries(t *testing.T) {
	idx, err := NewHashTableIndex("tags")
	require.NoError(t, err)
	both := storage.Document{"_id": "both", "tags": []interface{}{"x", "y"}}
	require.NoError(t, idx.Index(both))
	require.NoError(t, idx.Index(storage.Document{"_id": "single", "tags": "x"}))

	assert.Equal(t, 2, idx.RemoveKey("x"))
	assert.Equal(t, 1, idx.Len())
	assert.Len(t, idx.Search("y"), 1)

	require.True(t, idx.Remove(both))
	assert.Zero(t, idx.Len())
	assert.Empty(t, idx.Search("y"))
}
