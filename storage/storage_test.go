package storage

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartikbazzad/bunbase/docstore/internal/util"
)

func TestLookupDottedPaths(t *testing.T) {
	doc := Document{
		"a": map[string]interface{}{
			"b": Document{"c": 3},
		},
		"list": []interface{}{"x", map[string]interface{}{"y": true}},
	}

	v, ok := Lookup(doc, "a.b.c")
	require.True(t, ok)
	assert.Equal(t, 3, v)

	v, ok = Lookup(doc, "list.1.y")
	require.True(t, ok)
	assert.Equal(t, true, v)

	_, ok = Lookup(doc, "a.missing")
	assert.False(t, ok)
	_, ok = Lookup(doc, "list.9")
	assert.False(t, ok)
}

func TestParentCreatesOnlyWhenAsked(t *testing.T) {
	doc := Document{"a": 1}

	_, _, ok := Parent(doc, "x.y", false)
	assert.False(t, ok)

	parent, key, ok := Parent(doc, "x.y", true)
	require.True(t, ok)
	assert.Equal(t, "y", key)
	parent[key] = 5

	v, ok := Lookup(doc, "x.y")
	require.True(t, ok)
	assert.Equal(t, 5, v)

	// "a" is a scalar and cannot hold children
	_, _, ok = Parent(doc, "a.b", true)
	assert.False(t, ok)
}

func TestCloneIsDeep(t *testing.T) {
	doc := Document{"tags": []interface{}{"a"}, "meta": map[string]interface{}{"n": 1}}
	cp := doc.Clone()
	cp["tags"].([]interface{})[0] = "changed"
	cp["meta"].(map[string]interface{})["n"] = 2

	assert.Equal(t, "a", doc["tags"].([]interface{})[0])
	assert.Equal(t, 1, doc["meta"].(map[string]interface{})["n"])
}

func TestCompareOrdering(t *testing.T) {
	assert.Equal(t, 0, Compare(3, 3.0))
	assert.Equal(t, -1, Compare(int64(2), 2.5))
	assert.Equal(t, 1, Compare("b", "a"))
	assert.Equal(t, -1, Compare(nil, false))
	assert.Equal(t, -1, Compare(true, 0))
	assert.Equal(t, -1, Compare(100, "1"))
	assert.Equal(t, 0, Compare(ObjectID("abc"), "abc"))
}

func TestEqualAndCanonical(t *testing.T) {
	a := map[string]interface{}{"x": 1, "y": []interface{}{"a", 2.0}}
	b := Document{"y": []interface{}{"a", 2}, "x": 1.0}
	assert.True(t, Equal(a, b))
	assert.Equal(t, Canonical(a), Canonical(b))
	assert.False(t, Equal("1", 1))
	assert.NotEqual(t, Canonical("x"), Canonical(regexp.MustCompile("x")))
}

func TestNewRefRequiresFields(t *testing.T) {
	_, err := NewRef("", "1")
	assert.True(t, errors.Is(err, util.ErrInvalidRef))
	_, err = NewRef("users", "")
	assert.True(t, errors.Is(err, util.ErrInvalidRef))

	ref, err := NewRef("users", "1")
	require.NoError(t, err)
	assert.Equal(t, "users/1", ref.String())
}

func testEngineRoundTrip(t *testing.T, engine Engine) {
	ctx := context.Background()
	docs := []Document{
		{"_id": "1", "n": 1.0},
		{"_id": "2", "n": 2.0, "tags": []interface{}{"a"}},
	}
	require.NoError(t, engine.Commit(ctx, "items", docs))

	loaded, err := engine.Load(ctx, "items")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "1", loaded[0]["_id"])
	assert.Equal(t, []interface{}{"a"}, loaded[1]["tags"])

	require.NoError(t, engine.Commit(ctx, "items", docs[:1]))
	loaded, err = engine.Load(ctx, "items")
	require.NoError(t, err)
	assert.Len(t, loaded, 1)

	require.NoError(t, engine.Drop(ctx, "items"))
	loaded, err = engine.Load(ctx, "items")
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestMemoryEngine(t *testing.T) {
	testEngineRoundTrip(t, NewMemoryEngine())
}

func TestSQLiteEngine(t *testing.T) {
	engine, err := OpenSQLiteEngine(filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	defer engine.Close()

	testEngineRoundTrip(t, engine)
}

func TestSQLiteEngineReportsCorruption(t *testing.T) {
	engine, err := OpenSQLiteEngine(filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	defer engine.Close()

	_, err = engine.db.Exec(`INSERT INTO documents (collection, seq, body) VALUES (?, ?, ?)`,
		"broken", 0, []byte("{not json"))
	require.NoError(t, err)

	_, err = engine.Load(context.Background(), "broken")
	require.Error(t, err)
	assert.True(t, errors.Is(err, util.ErrDataCorrupt))
}
