package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/kartikbazzad/bunbase/docstore/internal/util"
)

// Engine persists whole collections. The query core never talks to an engine
// directly; collections load from it on Open and write back on Commit.
type Engine interface {
	// Load returns every stored document of a collection in insertion order.
	Load(ctx context.Context, collection string) ([]Document, error)
	// Commit replaces the stored contents of a collection.
	Commit(ctx context.Context, collection string, docs []Document) error
	// Drop removes a collection from the engine.
	Drop(ctx context.Context, collection string) error
	Close() error
}

// MemoryEngine keeps serialized snapshots in process memory.
type MemoryEngine struct {
	mu          sync.RWMutex
	collections map[string][][]byte
}

// NewMemoryEngine creates an empty in-memory engine
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{collections: make(map[string][][]byte)}
}

func (m *MemoryEngine) Load(ctx context.Context, collection string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	rows := m.collections[collection]
	m.mu.RUnlock()

	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		doc, err := DeserializeDocument(row)
		if err != nil {
			return nil, corrupt(collection, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (m *MemoryEngine) Commit(ctx context.Context, collection string, docs []Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rows := make([][]byte, 0, len(docs))
	for _, doc := range docs {
		data, err := doc.Serialize()
		if err != nil {
			return err
		}
		rows = append(rows, data)
	}

	m.mu.Lock()
	m.collections[collection] = rows
	m.mu.Unlock()
	return nil
}

func (m *MemoryEngine) Drop(ctx context.Context, collection string) error {
	m.mu.Lock()
	delete(m.collections, collection)
	m.mu.Unlock()
	return nil
}

func (m *MemoryEngine) Close() error {
	return nil
}

// corrupt marks a decode failure as data corruption.
func corrupt(collection string, err error) error {
	return fmt.Errorf("collection %s: %w: %v", collection, util.ErrDataCorrupt, err)
}
