// Package docstore is an embeddable document store. Collections hold
// schema-less documents queried with a MongoDB-like expression language and
// narrowed through hash and B+tree secondary indexes.
//
// Architecture:
//  1. Database: opens collections on a storage engine from a Registry.
//  2. Collection: the ordered document table and its indexes.
//  3. Interpreter: index selection, compiled query programs, updates.
//  4. Storage: pluggable persistence (memory, SQLite).
package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/kartikbazzad/bunbase/docstore/internal/config"
	"github.com/kartikbazzad/bunbase/docstore/internal/interpreter"
	"github.com/kartikbazzad/bunbase/docstore/internal/logger"
	"github.com/kartikbazzad/bunbase/docstore/internal/util"
	"github.com/kartikbazzad/bunbase/docstore/storage"
)

// Config is the database configuration.
type Config = config.Config

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfig reads an optional config file and PREFIX_* environment
// variables over the defaults.
func LoadConfig(prefix, file string) (*Config, error) {
	return config.Load(prefix, file)
}

// Database represents a docstore database instance.
type Database struct {
	cfg         *Config
	engine      storage.Engine
	ownsEngine  bool
	interp      *interpreter.Interpreter
	logger      *slog.Logger
	collections map[string]*Collection
	mu          sync.RWMutex
	closed      bool
}

// Open builds a database on the engine cfg.Storage.Engine names. The sqlite
// engine is opened at cfg.Storage.Path when the registry has none.
// Databases opened from one registry share its program cache, sized by the
// first Open; cfg.Query.ProgramCacheSize of later ones only draws a warning.
func Open(cfg *Config, registry *Registry) (*Database, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if registry == nil {
		registry = NewRegistry()
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	engine, err := registry.Engine(cfg.Storage.Engine)
	owns := false
	if err != nil {
		if cfg.Storage.Engine != "sqlite" {
			return nil, err
		}
		sqlite, err := storage.OpenSQLiteEngine(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		engine, owns = sqlite, true
	}

	log.Info("database opened", "engine", cfg.Storage.Engine, "index_order", cfg.Index.Order)
	return &Database{
		cfg:         cfg,
		engine:      engine,
		ownsEngine:  owns,
		interp:      interpreter.New(registry.Compiler(cfg.Query.ProgramCacheSize), log),
		logger:      log,
		collections: make(map[string]*Collection),
	}, nil
}

// Collection returns the named collection, creating it empty on first use.
func (db *Database) Collection(name string) (*Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty collection name", util.ErrInvalidQuery)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, util.ErrDatabaseClosed
	}
	if c, ok := db.collections[name]; ok {
		return c, nil
	}
	c := newCollection(name, db)
	db.collections[name] = c
	return c, nil
}

// Drop removes the collection and its persisted documents.
func (db *Database) Drop(ctx context.Context, name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return util.ErrDatabaseClosed
	}
	if _, ok := db.collections[name]; !ok {
		return fmt.Errorf("%w: %s", util.ErrCollectionNotFound, name)
	}
	if err := db.engine.Drop(ctx, name); err != nil {
		return fmt.Errorf("drop %s: %w", name, err)
	}
	delete(db.collections, name)
	db.logger.Info("collection dropped", "collection", name)
	return nil
}

// Names lists the open collections.
func (db *Database) Names() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	names := make([]string, 0, len(db.collections))
	for name := range db.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases the engine if the database opened it.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	if db.ownsEngine {
		return db.engine.Close()
	}
	return nil
}
