package query

import (
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartikbazzad/bunbase/docstore/internal/index"
	"github.com/kartikbazzad/bunbase/docstore/internal/util"
	"github.com/kartikbazzad/bunbase/docstore/storage"
)

func TestNormalizeWrapsBareValues(t *testing.T) {
	q := Normalize(map[string]interface{}{
		"a": 1,
		"b": map[string]interface{}{"$gt": 2},
		"c": map[string]interface{}{"x": 1},
		"$or": []interface{}{
			map[string]interface{}{"d": "x"},
		},
	})

	assert.Equal(t, map[string]interface{}{"$eq": 1}, q["a"])
	assert.Equal(t, map[string]interface{}{"$gt": 2}, q["b"])
	assert.Equal(t, map[string]interface{}{"$eq": map[string]interface{}{"x": 1}}, q["c"])
	assert.Equal(t, []interface{}{
		map[string]interface{}{"d": map[string]interface{}{"$eq": "x"}},
	}, q["$or"])
}

func TestNormalizeIsIdempotent(t *testing.T) {
	raw := map[string]interface{}{
		"name": regexp.MustCompile("^st"),
		"tags": map[string]interface{}{"$elemMatch": map[string]interface{}{"k": "v"}},
		"nums": map[string]interface{}{"$elemMatch": map[string]interface{}{"$gt": 3}},
		"age":  map[string]interface{}{"$not": 30},
		"$nor": []interface{}{map[string]interface{}{"x": nil}},
	}
	once := Normalize(raw)
	twice := Normalize(once)
	assert.Equal(t, once.Canonical(), twice.Canonical())
	assert.Equal(t, once, twice)
}

func TestCanonicalIgnoresKeyOrder(t *testing.T) {
	a := Normalize(map[string]interface{}{"a": 1, "b": map[string]interface{}{"$lt": 3, "$gt": 1}})
	b := Normalize(map[string]interface{}{"b": map[string]interface{}{"$gt": 1, "$lt": 3}, "a": 1.0})
	assert.Equal(t, a.Canonical(), b.Canonical())
}

func TestCompilerCachesPrograms(t *testing.T) {
	for _, size := range []int{0, 16} {
		c := NewCompiler(size)
		cond := Conditions{Limit: 3}
		p1 := c.CompileQuery(map[string]interface{}{"a": 1, "b": 2}, cond)
		p2 := c.CompileQuery(map[string]interface{}{"b": 2, "a": 1}, cond)
		assert.Same(t, p1, p2, "cache size %d", size)

		p3 := c.CompileQuery(map[string]interface{}{"a": 1, "b": 2}, Conditions{Limit: 4})
		assert.NotSame(t, p1, p3)

		u1, err := c.CompileUpdate(map[string]interface{}{"$set": map[string]interface{}{"a": 1}}, false)
		require.NoError(t, err)
		u2, err := c.CompileUpdate(map[string]interface{}{"$set": map[string]interface{}{"a": 1}}, false)
		require.NoError(t, err)
		assert.Same(t, u1, u2)
		u3, err := c.CompileUpdate(map[string]interface{}{"$set": map[string]interface{}{"a": 1}}, true)
		require.NoError(t, err)
		assert.NotSame(t, u1, u3)
	}
}

func match(t *testing.T, q map[string]interface{}, doc map[string]interface{}) bool {
	t.Helper()
	return NewCompiler(0).CompileQuery(q, Conditions{}).Matches(doc)
}

func TestComparisonOperators(t *testing.T) {
	doc := map[string]interface{}{
		"n":    5,
		"s":    "steve",
		"id":   storage.ObjectID("abc"),
		"tags": []interface{}{"a", "b", "c"},
		"sub":  map[string]interface{}{"x": 1.5},
	}

	cases := []struct {
		q    map[string]interface{}
		want bool
	}{
		{map[string]interface{}{"n": 5.0}, true},
		{map[string]interface{}{"n": map[string]interface{}{"$ne": 5}}, false},
		{map[string]interface{}{"n": map[string]interface{}{"$gt": 4, "$lte": 5}}, true},
		{map[string]interface{}{"n": map[string]interface{}{"$lt": 5}}, false},
		{map[string]interface{}{"n": map[string]interface{}{"$gte": "1"}}, false},
		{map[string]interface{}{"s": regexp.MustCompile("^st")}, true},
		{map[string]interface{}{"id": "abc"}, true},
		{map[string]interface{}{"tags": "b"}, true},
		{map[string]interface{}{"sub.x": map[string]interface{}{"$gt": 1}}, true},
		{map[string]interface{}{"missing": map[string]interface{}{"$ne": 1}}, true},
		{map[string]interface{}{"missing": map[string]interface{}{"$gt": 1}}, false},
		{map[string]interface{}{"n": map[string]interface{}{"$not": map[string]interface{}{"$gt": 6}}}, true},
		{map[string]interface{}{"n": map[string]interface{}{"$not": 5}}, false},
		{map[string]interface{}{"n": map[string]interface{}{"$bogus": 1}}, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, match(t, tc.q, doc), "query %v", tc.q)
	}
}

func TestSetOperators(t *testing.T) {
	doc := map[string]interface{}{
		"tags":  []interface{}{"a", "b", "c"},
		"score": 2,
		"obj":   map[string]interface{}{"k": 1, "j": 2},
	}

	assert.True(t, match(t, map[string]interface{}{"score": map[string]interface{}{"$in": []interface{}{1, 2}}}, doc))
	assert.False(t, match(t, map[string]interface{}{"score": map[string]interface{}{"$nin": []interface{}{1, 2}}}, doc))
	assert.True(t, match(t, map[string]interface{}{"tags": map[string]interface{}{"$all": []interface{}{"c", "a"}}}, doc))
	assert.False(t, match(t, map[string]interface{}{"tags": map[string]interface{}{"$all": []interface{}{"a", "z"}}}, doc))
	assert.True(t, match(t, map[string]interface{}{"tags": map[string]interface{}{"$size": 3}}, doc))
	assert.True(t, match(t, map[string]interface{}{"obj": map[string]interface{}{"$size": 2}}, doc))
	assert.True(t, match(t, map[string]interface{}{"obj.k": map[string]interface{}{"$exists": true}}, doc))
	assert.True(t, match(t, map[string]interface{}{"nope": map[string]interface{}{"$exists": false}}, doc))
	assert.False(t, match(t, map[string]interface{}{"score": map[string]interface{}{"$exists": false}}, doc))
}

func TestElemMatch(t *testing.T) {
	doc := map[string]interface{}{
		"nums":  []interface{}{1, 4, 9},
		"items": []interface{}{map[string]interface{}{"k": "a", "v": 1}, map[string]interface{}{"k": "b", "v": 7}},
	}
	assert.True(t, match(t, map[string]interface{}{"nums": map[string]interface{}{"$elemMatch": map[string]interface{}{"$gt": 3, "$lt": 5}}}, doc))
	assert.False(t, match(t, map[string]interface{}{"nums": map[string]interface{}{"$elemMatch": map[string]interface{}{"$gt": 9}}}, doc))
	assert.True(t, match(t, map[string]interface{}{"items": map[string]interface{}{"$elemMatch": map[string]interface{}{"k": "b", "v": map[string]interface{}{"$gt": 5}}}}, doc))
	assert.False(t, match(t, map[string]interface{}{"items": map[string]interface{}{"$elemMatch": map[string]interface{}{"k": "a", "v": 7}}}, doc))
}

func TestLogicalOperators(t *testing.T) {
	doc := map[string]interface{}{"a": 1, "b": 2}
	or := map[string]interface{}{"$or": []interface{}{
		map[string]interface{}{"a": 3},
		map[string]interface{}{"b": 2},
	}}
	nor := map[string]interface{}{"$nor": []interface{}{
		map[string]interface{}{"a": 3},
		map[string]interface{}{"b": 2},
	}}
	and := map[string]interface{}{"$and": []interface{}{
		map[string]interface{}{"a": 1},
		map[string]interface{}{"b": map[string]interface{}{"$gt": 1}},
	}}
	assert.True(t, match(t, or, doc))
	assert.False(t, match(t, nor, doc))
	assert.True(t, match(t, and, doc))
	assert.True(t, match(t, map[string]interface{}{}, doc))
}

func TestGeoOperators(t *testing.T) {
	doc := map[string]interface{}{
		"pos": []interface{}{3.0, 4.0},
		// Paris
		"loc": []interface{}{48.8566, 2.3522},
	}
	within := map[string]interface{}{"pos": map[string]interface{}{"$within": map[string]interface{}{
		"center": []interface{}{0, 0}, "distance": 5,
	}}}
	assert.True(t, match(t, within, doc))
	within["pos"].(map[string]interface{})["$within"].(map[string]interface{})["distance"] = 4.9
	assert.False(t, match(t, within, doc))

	// London is roughly 344km from Paris
	near := func(km float64) map[string]interface{} {
		return map[string]interface{}{"loc": map[string]interface{}{"$near": map[string]interface{}{
			"center": []interface{}{51.5074, -0.1278}, "distance": km,
		}}}
	}
	assert.True(t, match(t, near(400), doc))
	assert.False(t, match(t, near(300), doc))
	assert.InDelta(t, 343.5, Haversine(48.8566, 2.3522, 51.5074, -0.1278), 2)
}

func sequential(n int) []storage.Document {
	docs := make([]storage.Document, n)
	for i := range docs {
		docs[i] = storage.Document{"_id": storage.NewObjectID(), "i": i}
	}
	return docs
}

func TestConditionsSkipSortLimit(t *testing.T) {
	cond, err := ParseConditions(map[string]interface{}{
		"$skip":  5,
		"$limit": 10,
		"$sort":  map[string]interface{}{"i": -1},
	})
	require.NoError(t, err)
	require.NotNil(t, cond.Sort)
	assert.Equal(t, -1, cond.Sort.Direction)

	p := NewCompiler(0).CompileQuery(map[string]interface{}{}, cond)
	docs := sequential(100)
	out := p.Run(docs)
	require.Len(t, out, 10)
	assert.Equal(t, 99, out[0]["i"])
	assert.Equal(t, 90, out[9]["i"])
	assert.Equal(t, 0, docs[0]["i"], "input order untouched")

	_, err = ParseConditions(map[string]interface{}{"$sort": map[string]interface{}{"a": 1, "b": 1}})
	assert.True(t, errors.Is(err, util.ErrInvalidQuery))
	_, err = ParseConditions(map[string]interface{}{"$top": 1})
	assert.True(t, errors.Is(err, util.ErrInvalidQuery))
}

func TestExplainSource(t *testing.T) {
	p := NewCompiler(0).CompileQuery(map[string]interface{}{"i": map[string]interface{}{"$gte": 5}, "n": 3}, Conditions{Limit: 2})
	assert.Equal(t, `$and(i{$gte 5}, n{$eq 3}) | skip=0;limit=2`, p.Source())
}

func TestUpdateMutators(t *testing.T) {
	c := NewCompiler(0)
	doc := storage.Document{
		"_id":  "x",
		"n":    1,
		"f":    1.5,
		"tags": []interface{}{"a", "b", "a", "c"},
		"sub":  map[string]interface{}{"k": "v"},
	}
	prog, err := c.CompileUpdate(map[string]interface{}{
		"$inc":     map[string]interface{}{"n": 2, "f": nil, "new": 1},
		"$pull":    map[string]interface{}{"tags": "a"},
		"$set":     map[string]interface{}{"sub.k": "w", "absent": true},
		"$push":    map[string]interface{}{"list": 1},
		"$rename":  map[string]interface{}{"sub.k": "moved.k"},
		"$unknown": map[string]interface{}{"n": 1},
	}, false)
	require.NoError(t, err)
	prog.Apply(doc)

	assert.Equal(t, 3, doc["n"])
	assert.Equal(t, 2.5, doc["f"])
	assert.NotContains(t, doc, "new")
	assert.NotContains(t, doc, "absent")
	assert.NotContains(t, doc, "list")
	assert.Equal(t, []interface{}{"b", "c"}, doc["tags"])
	// $rename runs before $set, so sub.k is gone by the time $set looks
	assert.Equal(t, map[string]interface{}{}, doc["sub"])
	assert.Equal(t, map[string]interface{}{"k": "v"}, doc["moved"])
}

func TestUpdateUpsertCreatesFields(t *testing.T) {
	c := NewCompiler(0)
	doc := storage.Document{"_id": "x", "arr": []interface{}{1, 2, 3}}
	prog, err := c.CompileUpdate(map[string]interface{}{
		"$set":     map[string]interface{}{"a.b": 1},
		"$inc":     map[string]interface{}{"count": 4},
		"$push":    map[string]interface{}{"list": "x"},
		"$pushAll": map[string]interface{}{"more": []interface{}{1, 2}},
		"$pop":     map[string]interface{}{"arr": 1},
		"$pullAll": map[string]interface{}{"arr": []interface{}{1.0}},
		"$unset":   map[string]interface{}{"nothing": 1},
	}, true)
	require.NoError(t, err)
	prog.Apply(doc)

	assert.Equal(t, map[string]interface{}{"b": 1}, doc["a"])
	assert.Equal(t, 4, doc["count"])
	assert.Equal(t, []interface{}{"x"}, doc["list"])
	assert.Equal(t, []interface{}{1, 2}, doc["more"])
	assert.Equal(t, []interface{}{2}, doc["arr"])
}

func TestUpdateRejectsBadOperands(t *testing.T) {
	c := NewCompiler(0)
	for _, update := range []map[string]interface{}{
		{"$pullAll": map[string]interface{}{"tags": "a"}},
		{"$pushAll": map[string]interface{}{"tags": 1}},
		{"$inc": map[string]interface{}{"n": "one"}},
		{"$rename": map[string]interface{}{"a": 3}},
		{"$set": 1},
	} {
		_, err := c.CompileUpdate(update, false)
		assert.True(t, errors.Is(err, util.ErrInvalidOperand), "update %v", update)
	}
}

func TestUpdateReindexes(t *testing.T) {
	idx, err := index.NewBPlusTreeIndex("n", index.Options{Order: 4})
	require.NoError(t, err)
	docs := sequential(10)
	for _, d := range docs {
		d["n"] = 0
		require.NoError(t, idx.Index(d))
	}

	prog, err := NewCompiler(0).CompileUpdate(map[string]interface{}{"$set": map[string]interface{}{"n": 10}}, false)
	require.NoError(t, err)
	require.NoError(t, prog.Run(docs[:4], []index.Index{idx}))

	assert.Len(t, idx.Search(10), 4)
	assert.Len(t, idx.Search(0), 6)
	assert.Equal(t, 10, idx.Len())
}
