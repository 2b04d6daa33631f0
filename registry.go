package docstore

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kartikbazzad/bunbase/docstore/internal/logger"
	"github.com/kartikbazzad/bunbase/docstore/internal/query"
	"github.com/kartikbazzad/bunbase/docstore/internal/util"
	"github.com/kartikbazzad/bunbase/docstore/storage"
)

// Registry holds the storage engines by name and the compiled program cache
// every database opened from it shares. Build one at startup and pass it to
// Open.
type Registry struct {
	mu       sync.RWMutex
	engines  map[string]storage.Engine
	once      sync.Once
	compiler  *query.Compiler
	cacheSize int
}

// NewRegistry returns a registry with the in-memory engine registered as
// "memory".
func NewRegistry() *Registry {
	return &Registry{
		engines: map[string]storage.Engine{
			"memory": storage.NewMemoryEngine(),
		},
	}
}

// RegisterEngine makes an engine available under name, replacing any
// previous one.
func (r *Registry) RegisterEngine(name string, engine storage.Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[name] = engine
}

// Engine looks up a registered engine.
func (r *Registry) Engine(name string) (storage.Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	engine, ok := r.engines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", util.ErrEngineNotFound, name)
	}
	return engine, nil
}

// Engines lists the registered engine names.
func (r *Registry) Engines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compiler returns the shared compiler. The cache size of the first call
// sticks; a later call asking for another size gets the existing cache and
// a warning.
func (r *Registry) Compiler(cacheSize int) *query.Compiler {
	r.once.Do(func() {
		r.compiler = query.NewCompiler(cacheSize)
		r.cacheSize = cacheSize
	})
	if cacheSize != r.cacheSize {
		logger.Warn("program cache already sized by an earlier database",
			"requested", cacheSize, "size", r.cacheSize)
	}
	return r.compiler
}

