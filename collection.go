package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/kartikbazzad/bunbase/docstore/internal/index"
	"github.com/kartikbazzad/bunbase/docstore/internal/util"
	"github.com/kartikbazzad/bunbase/docstore/storage"
)

// Collection represents a logical grouping of documents. It owns the primary
// document table, kept in insertion order, and every secondary index. All
// methods take the collection lock.
type Collection struct {
	name         string
	db           *Database
	mu           sync.Mutex
	table        map[string]*row
	seq          int
	ordered      []storage.Document // cached table order, nil when stale
	indexes      []index.Index      // most attributes first
	schemaLoader *gojsonschema.Schema
}

type row struct {
	seq int
	doc storage.Document
}

func newCollection(name string, db *Database) *Collection {
	return &Collection{
		name:  name,
		db:    db,
		table: make(map[string]*row),
	}
}

// Name returns the collection name
func (c *Collection) Name() string {
	return c.name
}

// SetSchema compiles a JSON schema every saved or updated document must
// satisfy. An empty string removes the schema.
func (c *Collection) SetSchema(schemaStr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if schemaStr == "" {
		c.schemaLoader = nil
		return nil
	}

	loader := gojsonschema.NewStringLoader(schemaStr)
	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return fmt.Errorf("invalid json schema: %w", err)
	}
	c.schemaLoader = schema
	return nil
}

// validate checks a document against the schema. Caller holds c.mu.
func (c *Collection) validate(doc storage.Document) error {
	if c.schemaLoader == nil {
		return nil
	}

	result, err := c.schemaLoader.Validate(gojsonschema.NewGoLoader(map[string]interface{}(doc)))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return fmt.Errorf("%w: %s", util.ErrSchemaViolation, strings.Join(errs, "; "))
	}
	return nil
}

// Save inserts or replaces a document and returns its id. A missing _id is
// assigned. The collection keeps its own copy.
func (c *Collection) Save(doc storage.Document) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc = doc.Clone()
	id, ok := doc.GetID()
	if !ok {
		oid := storage.NewObjectID()
		doc.SetID(oid)
		id = oid.String()
	}
	if err := c.validate(doc); err != nil {
		return "", err
	}

	if err := c.putLocked(id, doc); err != nil {
		return "", err
	}
	return id, nil
}

func (c *Collection) putLocked(id string, doc storage.Document) error {
	if existing, ok := c.table[id]; ok {
		for _, idx := range c.indexes {
			idx.Remove(existing.doc)
		}
		existing.doc = doc
	} else {
		c.table[id] = &row{seq: c.seq, doc: doc}
		c.seq++
	}
	c.ordered = nil

	for _, idx := range c.indexes {
		if err := idx.Index(doc); err != nil {
			return fmt.Errorf("index %s: %w", idx.Name(), err)
		}
	}
	return nil
}

// Get returns a copy of the document with the given id.
func (c *Collection) Get(id string) (storage.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.table[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", util.ErrDocumentNotFound, c.name, id)
	}
	return r.doc.Clone(), nil
}

// Find returns copies of the documents matching the query.
func (c *Collection) Find(q map[string]interface{}, opts ...QueryOptions) ([]storage.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	docs, err := c.db.interp.Interpret(view{c}, q, options(opts).conditions())
	if err != nil {
		return nil, err
	}
	out := make([]storage.Document, len(docs))
	for i, doc := range docs {
		out[i] = doc.Clone()
	}
	return out, nil
}

// FindOne returns the first match or ErrDocumentNotFound.
func (c *Collection) FindOne(q map[string]interface{}, opts ...QueryOptions) (storage.Document, error) {
	o := options(opts)
	o.Limit = 1
	docs, err := c.Find(q, o)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no match in %s", util.ErrDocumentNotFound, c.name)
	}
	return docs[0], nil
}

// Count returns the number of matching documents.
func (c *Collection) Count(q map[string]interface{}) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	docs, err := c.db.interp.Interpret(view{c}, q, QueryOptions{}.conditions())
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// Len returns the number of stored documents.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.table)
}

// Explain returns the plan and program text for the query without running it.
func (c *Collection) Explain(q map[string]interface{}, opts ...QueryOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.interp.Explain(view{c}, q, options(opts).conditions())
}

// Update applies the update document to every match and returns how many
// documents were updated. upsert lets the operators create missing fields.
func (c *Collection) Update(q, update map[string]interface{}, upsert bool) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.schemaLoader != nil {
		return c.db.interp.Update(schemaView{view{c}}, q, update, upsert)
	}
	return c.db.interp.Update(view{c}, q, update, upsert)
}

// Remove deletes every match and returns how many were removed.
func (c *Collection) Remove(q map[string]interface{}) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	docs, err := c.db.interp.Interpret(view{c}, q, QueryOptions{}.conditions())
	if err != nil {
		return 0, err
	}
	for _, doc := range docs {
		id, _ := doc.GetID()
		for _, idx := range c.indexes {
			idx.Remove(doc)
		}
		delete(c.table, id)
	}
	if len(docs) > 0 {
		c.ordered = nil
	}
	return len(docs), nil
}

// EnsureIndex creates an index over the attributes and backfills it. A
// second call for the same attribute set is a no-op.
func (c *Collection) EnsureIndex(typ IndexType, attributes interface{}, opts ...IndexOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	attrs, err := index.ParseAttributes(attributes)
	if err != nil {
		return err
	}
	name := indexName(attrs)
	for _, idx := range c.indexes {
		if idx.Name() == name {
			return nil
		}
	}

	o := index.Options{Order: c.db.cfg.Index.Order, MergeThreshold: c.db.cfg.Index.MergeThreshold}
	if len(opts) > 0 && opts[0].Order > 0 {
		o.Order = opts[0].Order
		o.MergeThreshold = 0
	}
	idx, err := index.New(typ, attrs, o)
	if err != nil {
		return err
	}
	for _, doc := range c.documentsLocked() {
		if err := idx.Index(doc); err != nil {
			return fmt.Errorf("backfill %s: %w", name, err)
		}
	}

	c.indexes = append(c.indexes, idx)
	sort.SliceStable(c.indexes, func(i, j int) bool {
		return len(c.indexes[i].Attributes()) > len(c.indexes[j].Attributes())
	})
	c.db.logger.Info("index created", "collection", c.name, "index", name, "type", typ, "documents", idx.Len())
	return nil
}

// DropIndex removes the index over exactly the given attribute set.
func (c *Collection) DropIndex(attributes interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	attrs, err := index.ParseAttributes(attributes)
	if err != nil {
		return err
	}
	name := indexName(attrs)
	for i, idx := range c.indexes {
		if idx.Name() == name {
			c.indexes = append(c.indexes[:i], c.indexes[i+1:]...)
			c.db.logger.Info("index dropped", "collection", c.name, "index", name)
			return nil
		}
	}
	return fmt.Errorf("%w: no index on %s", util.ErrInvalidIndexSpec, name)
}

// Indexes describes the registered indexes, most attributes first.
func (c *Collection) Indexes() []IndexInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]IndexInfo, len(c.indexes))
	for i, idx := range c.indexes {
		out[i] = IndexInfo{Type: idx.Type(), Attributes: idx.Attributes(), Name: idx.Name(), Documents: idx.Len()}
	}
	return out
}

// Clear removes every document. Indexes stay registered but empty.
func (c *Collection) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table = make(map[string]*row)
	c.ordered = nil
	for _, idx := range c.indexes {
		idx.Clear()
	}
	c.db.logger.Info("collection cleared", "collection", c.name)
}

// Open replaces the contents with the documents the storage engine holds
// and reindexes them. Engine errors, including ErrDataCorrupt, are returned
// wrapped but unchanged.
func (c *Collection) Open(ctx context.Context) error {
	docs, err := c.db.engine.Load(ctx, c.name)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.table = make(map[string]*row, len(docs))
	c.seq = 0
	c.ordered = nil
	for _, idx := range c.indexes {
		idx.Clear()
	}
	for _, doc := range docs {
		id, ok := doc.GetID()
		if !ok {
			return fmt.Errorf("open %s: %w: document without %s", c.name, util.ErrDataCorrupt, storage.IDField)
		}
		if err := c.putLocked(id, doc); err != nil {
			return err
		}
	}
	c.db.logger.Info("collection opened", "collection", c.name, "documents", len(docs))
	return nil
}

// Commit writes a snapshot of the table, in order, to the storage engine.
// The snapshot is taken under the lock; the engine only sees copies.
func (c *Collection) Commit(ctx context.Context) error {
	c.mu.Lock()
	live := c.documentsLocked()
	docs := make([]storage.Document, len(live))
	for i, doc := range live {
		docs[i] = doc.Clone()
	}
	c.mu.Unlock()

	if err := c.db.engine.Commit(ctx, c.name, docs); err != nil {
		return fmt.Errorf("commit %s: %w", c.name, err)
	}
	c.db.logger.Info("collection committed", "collection", c.name, "documents", len(docs))
	return nil
}

// documentsLocked returns the table in insertion order. Caller holds c.mu.
func (c *Collection) documentsLocked() []storage.Document {
	if c.ordered != nil {
		return c.ordered
	}
	rows := make([]*row, 0, len(c.table))
	for _, r := range c.table {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	c.ordered = make([]storage.Document, len(rows))
	for i, r := range rows {
		c.ordered[i] = r.doc
	}
	return c.ordered
}

func indexName(attrs []string) string {
	sorted := append([]string(nil), attrs...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

func options(opts []QueryOptions) QueryOptions {
	if len(opts) > 0 {
		return opts[0]
	}
	return QueryOptions{}
}

// view exposes a locked collection to the interpreter.
type view struct {
	c *Collection
}

func (v view) Name() string                  { return v.c.name }
func (v view) Documents() []storage.Document { return v.c.documentsLocked() }
func (v view) Indices() []index.Index        { return v.c.indexes }

func (v view) Position(id string) (int, bool) {
	r, ok := v.c.table[id]
	if !ok {
		return 0, false
	}
	return r.seq, true
}

// schemaView additionally lets the interpreter check updates against the
// schema before mutating anything.
type schemaView struct {
	view
}

func (v schemaView) Validate(doc storage.Document) error { return v.c.validate(doc) }
