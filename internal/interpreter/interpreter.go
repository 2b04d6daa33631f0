// Package interpreter drives a query against a collection: it narrows the
// candidates through the indexes, fetches the compiled program and runs it.
package interpreter

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/kartikbazzad/bunbase/docstore/internal/index"
	"github.com/kartikbazzad/bunbase/docstore/internal/metrics"
	"github.com/kartikbazzad/bunbase/docstore/internal/query"
	"github.com/kartikbazzad/bunbase/docstore/internal/selector"
	"github.com/kartikbazzad/bunbase/docstore/storage"
)

// Collection is what the interpreter needs from a collection.
type Collection interface {
	Name() string
	// Documents returns the primary table in insertion order.
	Documents() []storage.Document
	// Indices returns the registered indexes, most specific first.
	Indices() []index.Index
	// Position returns a document's insertion sequence in the table.
	Position(id string) (int, bool)
}

// Validator is implemented by collections that check documents before an
// update is allowed to mutate them.
type Validator interface {
	Validate(doc storage.Document) error
}

// Interpreter runs queries and updates against collections.
type Interpreter struct {
	compiler *query.Compiler
	logger   *slog.Logger
}

// New returns an interpreter over compiler. A nil logger means slog.Default.
func New(compiler *query.Compiler, logger *slog.Logger) *Interpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{compiler: compiler, logger: logger}
}

// Compiler returns the program cache shared by every collection.
func (in *Interpreter) Compiler() *query.Compiler { return in.compiler }

type execution struct {
	program    *query.Program
	candidates []storage.Document
	plan       *selector.Plan
	indexed    bool
}

func (in *Interpreter) prepare(c Collection, raw map[string]interface{}, cond query.Conditions) (*execution, error) {
	program := in.compiler.CompileQuery(raw, cond)
	candidates, plan, indexed, err := selector.Resolve(c.Indices(), query.Normalize(raw))
	if err != nil {
		return nil, err
	}
	if !indexed {
		candidates = c.Documents()
	} else {
		// index buckets carry no order; restore the table's
		candidates = tableOrder(c, candidates)
	}
	return &execution{program: program, candidates: candidates, plan: plan, indexed: indexed}, nil
}

func (e *execution) planName() string {
	if e.indexed {
		return "index"
	}
	return "scan"
}

// Interpret returns the documents matching the query after conditions.
func (in *Interpreter) Interpret(c Collection, raw map[string]interface{}, cond query.Conditions) ([]storage.Document, error) {
	return in.run(c, "find", raw, cond)
}

func (in *Interpreter) run(c Collection, operation string, raw map[string]interface{}, cond query.Conditions) ([]storage.Document, error) {
	start := time.Now()
	exec, err := in.prepare(c, raw, cond)
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", operation, c.Name(), err)
	}

	in.logger.Debug("query plan",
		"collection", c.Name(),
		"operation", operation,
		"plan", exec.planName(),
		"indexes", exec.plan.Indexes,
		"candidates", len(exec.candidates),
	)
	docs := exec.program.Run(exec.candidates)

	metrics.QueriesTotal.WithLabelValues(operation, exec.planName()).Inc()
	metrics.QueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	return docs, nil
}

// Explain returns the chosen plan and the program source instead of running
// the query.
func (in *Interpreter) Explain(c Collection, raw map[string]interface{}, cond query.Conditions) (string, error) {
	exec, err := in.prepare(c, raw, cond)
	if err != nil {
		return "", fmt.Errorf("explain on %s: %w", c.Name(), err)
	}
	plan := exec.planName()
	if exec.indexed {
		plan += "[" + strings.Join(exec.plan.Indexes, " & ") + "]"
	}
	return fmt.Sprintf("plan: %s (%d candidates)\nprogram: %s", plan, len(exec.candidates), exec.program.Source()), nil
}

// Update applies the update document to every match and reindexes it.
// When the collection validates documents, every match is checked against a
// mutated copy first so a rejected update changes nothing.
func (in *Interpreter) Update(c Collection, raw, update map[string]interface{}, upsert bool) (int, error) {
	program, err := in.compiler.CompileUpdate(update, upsert)
	if err != nil {
		return 0, fmt.Errorf("update on %s: %w", c.Name(), err)
	}
	matched, err := in.run(c, "update", raw, query.Conditions{})
	if err != nil {
		return 0, err
	}

	if v, ok := c.(Validator); ok {
		for _, doc := range matched {
			preview := doc.Clone()
			program.Apply(preview)
			if err := v.Validate(preview); err != nil {
				return 0, fmt.Errorf("update on %s: %w", c.Name(), err)
			}
		}
	}

	if err := program.Run(matched, c.Indices()); err != nil {
		return 0, fmt.Errorf("update on %s: %w", c.Name(), err)
	}
	return len(matched), nil
}

// tableOrder sorts index candidates by their position in the table.
func tableOrder(c Collection, candidates []storage.Document) []storage.Document {
	type positioned struct {
		pos int
		doc storage.Document
	}
	items := make([]positioned, 0, len(candidates))
	for _, doc := range candidates {
		id, ok := doc.GetID()
		if !ok {
			continue
		}
		if pos, ok := c.Position(id); ok {
			items = append(items, positioned{pos: pos, doc: doc})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].pos < items[j].pos })

	out := make([]storage.Document, len(items))
	for i, it := range items {
		out[i] = it.doc
	}
	return out
}
