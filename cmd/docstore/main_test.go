package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartikbazzad/bunbase/docstore"
)

func writeSeed(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func sequentialJSON(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf(`{"_id":"j%03d","i":%d,"n":%d}`, i, i, i%10)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func TestLoadFilesKeepsFileOrder(t *testing.T) {
	dir := t.TempDir()
	a := writeSeed(t, dir, "a.json", sequentialJSON(3))
	b := writeSeed(t, dir, "b.yaml", "- _id: y1\n  i: 100\n- _id: y2\n  i: 101\n")
	c := writeSeed(t, dir, "c.yml", "_id: single\ni: 200\n")

	docs, err := loadFiles([]string{a, b, c})
	require.NoError(t, err)
	require.Len(t, docs, 6)
	assert.Equal(t, "j000", docs[0]["_id"])
	assert.Equal(t, "y1", docs[3]["_id"])
	assert.Equal(t, 101, docs[4]["i"])
	assert.Equal(t, "single", docs[5]["_id"])

	bad := writeSeed(t, dir, "bad.json", `[1, 2]`)
	_, err = loadFiles([]string{a, bad})
	assert.Error(t, err)

	_, err = loadFiles([]string{filepath.Join(dir, "missing.json")})
	assert.Error(t, err)
}

func TestParseFlags(t *testing.T) {
	typ, attrs, err := parseIndexSpec("hash:a,b")
	require.NoError(t, err)
	assert.Equal(t, docstore.Hash, typ)
	assert.Equal(t, "a,b", attrs)

	typ, attrs, err = parseIndexSpec("i")
	require.NoError(t, err)
	assert.Equal(t, docstore.BTree, typ)
	assert.Equal(t, "i", attrs)

	_, _, err = parseIndexSpec("bitmap:a")
	assert.Error(t, err)

	var opts docstore.QueryOptions
	require.NoError(t, parseSort("i:desc", &opts))
	assert.Equal(t, "i", opts.SortField)
	assert.True(t, opts.SortDesc)
	assert.Error(t, parseSort("i:sideways", &opts))
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	t.Setenv("DOCSTORE_LOG_LEVEL", "ERROR")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestFindCommand(t *testing.T) {
	seed := writeSeed(t, t.TempDir(), "seed.json", sequentialJSON(100))
	out := run(t, "find", `{}`, "--data", seed, "--skip", "5", "--limit", "10", "--sort", "i:desc")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 11)
	assert.Contains(t, lines[0], `"i":99`)
	assert.Equal(t, "10 documents", lines[10])
}

func TestCountAndExplainCommands(t *testing.T) {
	seed := writeSeed(t, t.TempDir(), "seed.json", sequentialJSON(100))
	out := run(t, "count", `{"n":3}`, "--data", seed, "--index", "hash:n")
	assert.Equal(t, "10\n", out)

	out = run(t, "explain", `{"i":{"$gte":90}}`, "--data", seed, "--index", "btree:i")
	assert.Contains(t, out, "plan: index[i] (10 candidates)")
}

func TestUpdateCommand(t *testing.T) {
	seed := writeSeed(t, t.TempDir(), "seed.json", sequentialJSON(100))
	out := run(t, "update", `{"i":{"$lte":90}}`, `{"$set":{"tag":"x"}}`, "--data", seed, "--upsert")
	assert.Equal(t, "91 documents updated\n", out)
}

func TestSessionExec(t *testing.T) {
	cfg := docstore.DefaultConfig()
	cfg.Log.Level = "ERROR"
	db, err := docstore.Open(cfg, docstore.NewRegistry())
	require.NoError(t, err)
	defer db.Close()
	coll, err := db.Collection("shell")
	require.NoError(t, err)

	var out bytes.Buffer
	s := &session{db: db, coll: coll, out: &out}

	for i := 0; i < 5; i++ {
		require.NoError(t, s.exec(fmt.Sprintf(`save {"_id":"s%d","i":%d}`, i, i)))
	}
	require.NoError(t, s.exec("index btree i"))
	out.Reset()

	require.NoError(t, s.exec(`count {"i":{"$gt":1}}`))
	assert.Equal(t, "3\n", out.String())
	out.Reset()

	require.NoError(t, s.exec(`find {"i":{"$gt":1}} {"$sort":{"i":-1},"$limit":1}`))
	assert.Equal(t, "{\"_id\":\"s4\",\"i\":4}\n1 document\n", out.String())
	out.Reset()

	require.NoError(t, s.exec(`update {"i":0} {"$set":{"flag":true}} upsert`))
	assert.Equal(t, "1 document updated\n", out.String())
	out.Reset()

	require.NoError(t, s.exec(`remove {"i":{"$lt":2}}`))
	assert.Equal(t, "2 documents removed\n", out.String())
	out.Reset()

	s.exec("indexes")
	assert.Contains(t, out.String(), "3 documents")

	assert.Error(t, s.exec("frobnicate"))
	assert.Error(t, s.exec(`update {"i":0}`))
	assert.Error(t, s.exec(`find {not json`))
	require.NoError(t, s.exec("commit"))
}
