package query

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kartikbazzad/bunbase/docstore/internal/metrics"
	"github.com/kartikbazzad/bunbase/docstore/storage"
)

// Program is a compiled query plus its post-filter conditions.
type Program struct {
	matcher   Matcher
	cond      Conditions
	canonical string
}

// Matches reports whether doc satisfies the query.
func (p *Program) Matches(doc map[string]interface{}) bool {
	return p.matcher.Matches(doc)
}

// Conditions returns the skip/sort/limit stage of the program.
func (p *Program) Conditions() Conditions { return p.cond }

// Source renders the predicate and conditions for explain output.
func (p *Program) Source() string {
	if p.cond.Empty() {
		return p.matcher.String()
	}
	return p.matcher.String() + " | " + p.cond.Canonical()
}

// Run filters candidates and applies the conditions. The input slice is not
// modified.
func (p *Program) Run(candidates []storage.Document) []storage.Document {
	out := make([]storage.Document, 0, len(candidates))
	for _, doc := range candidates {
		if p.matcher.Matches(doc) {
			out = append(out, doc)
		}
	}
	return p.cond.Apply(out)
}

// programCache maps a content hash to a compiled program.
type programCache interface {
	get(key uint64) (interface{}, bool)
	add(key uint64, program interface{})
}

type mapCache struct {
	mu       sync.RWMutex
	programs map[uint64]interface{}
}

func (c *mapCache) get(key uint64) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.programs[key]
	return p, ok
}

func (c *mapCache) add(key uint64, program interface{}) {
	c.mu.Lock()
	c.programs[key] = program
	c.mu.Unlock()
}

type lruCache struct {
	programs *lru.Cache[uint64, interface{}]
}

func (c *lruCache) get(key uint64) (interface{}, bool) { return c.programs.Get(key) }
func (c *lruCache) add(key uint64, program interface{}) { c.programs.Add(key, program) }

// Compiler turns normalized queries and updates into programs and caches
// them by a hash of their canonical text.
type Compiler struct {
	cache programCache
}

// NewCompiler returns a compiler whose cache grows without bound when size
// is zero and evicts least recently used programs otherwise.
func NewCompiler(size int) *Compiler {
	if size > 0 {
		if c, err := lru.New[uint64, interface{}](size); err == nil {
			return &Compiler{cache: &lruCache{programs: c}}
		}
	}
	return &Compiler{cache: &mapCache{programs: make(map[uint64]interface{})}}
}

// CompileQuery returns the cached program for the query and conditions,
// compiling it on first use.
func (c *Compiler) CompileQuery(raw map[string]interface{}, cond Conditions) *Program {
	q := Normalize(raw)
	canonical := "q:" + q.Canonical() + "|" + cond.Canonical()
	key := xxhash.Sum64String(canonical)

	if cached, ok := c.cache.get(key); ok {
		if p, ok := cached.(*Program); ok && p.canonical == canonical {
			metrics.ProgramCacheTotal.WithLabelValues("hit").Inc()
			return p
		}
	}
	metrics.ProgramCacheTotal.WithLabelValues("miss").Inc()

	p := &Program{matcher: compileQuery(q), cond: cond, canonical: canonical}
	c.cache.add(key, p)
	return p
}

// CompileUpdate returns the cached update program, compiling it on first use.
func (c *Compiler) CompileUpdate(update map[string]interface{}, upsert bool) (*UpdateProgram, error) {
	canonical := "u:" + storage.Canonical(update)
	if upsert {
		canonical += "|upsert"
	}
	key := xxhash.Sum64String(canonical)

	if cached, ok := c.cache.get(key); ok {
		if p, ok := cached.(*UpdateProgram); ok && p.canonical == canonical {
			metrics.ProgramCacheTotal.WithLabelValues("hit").Inc()
			return p, nil
		}
	}
	metrics.ProgramCacheTotal.WithLabelValues("miss").Inc()

	p, err := compileUpdate(update, upsert)
	if err != nil {
		return nil, err
	}
	p.canonical = canonical
	c.cache.add(key, p)
	return p, nil
}

// compileQuery builds the matcher tree. Top-level clauses are ANDed;
// unknown operators are left out.
func compileQuery(q Query) Matcher {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var children []Matcher
	for _, key := range keys {
		val := q[key]
		switch {
		case IsLogical(Operator(key)):
			children = append(children, compileLogical(Operator(key), val))
		case IsOperatorKey(key):
			continue
		default:
			ops, ok := storage.AsMap(val)
			if !ok {
				continue
			}
			tests := compileTests(ops)
			if len(tests) == 0 {
				continue
			}
			children = append(children, &FieldNode{Field: key, tests: tests})
		}
	}

	switch len(children) {
	case 0:
		return matchAll{}
	case 1:
		return children[0]
	}
	return &LogicalNode{Operator: OpAnd, Children: children}
}

func compileLogical(op Operator, val interface{}) Matcher {
	list, _ := toList(val)
	node := &LogicalNode{Operator: op, Children: make([]Matcher, 0, len(list))}
	for _, item := range list {
		sub, ok := storage.AsMap(item)
		if !ok {
			continue
		}
		node.Children = append(node.Children, compileQuery(Normalize(sub)))
	}
	return node
}

func compileTests(ops map[string]interface{}) []valueTest {
	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)

	tests := make([]valueTest, 0, len(names))
	for _, name := range names {
		operand := ops[name]
		switch op := Operator(name); op {
		case OpNot:
			inner, ok := storage.AsMap(operand)
			if !ok {
				continue
			}
			if sub := compileTests(inner); len(sub) > 0 {
				tests = append(tests, &notTest{tests: sub})
			}
		case OpElemMatch:
			sub, ok := storage.AsMap(operand)
			if !ok {
				continue
			}
			if isOperatorDocument(sub) {
				tests = append(tests, &elemMatchTest{values: compileTests(sub)})
			} else {
				tests = append(tests, &elemMatchTest{doc: compileQuery(Normalize(sub))})
			}
		default:
			fn, ok := operators[op]
			if !ok {
				continue
			}
			tests = append(tests, &opTest{op: op, operand: operand, fn: fn})
		}
	}
	return tests
}
