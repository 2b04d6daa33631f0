package query

import (
	"fmt"
	"sort"

	"github.com/kartikbazzad/bunbase/docstore/internal/index"
	"github.com/kartikbazzad/bunbase/docstore/internal/util"
	"github.com/kartikbazzad/bunbase/docstore/storage"
)

// mutator applies one update operator to the leaf key of parent.
type mutator func(parent map[string]interface{}, key string, operand interface{}, upsert bool)

var mutators = map[Operator]mutator{
	OpSet:     Set,
	OpUnset:   Unset,
	OpInc:     Inc,
	OpPull:    Pull,
	OpPullAll: PullAll,
	OpPop:     Pop,
	OpPush:    Push,
	OpPushAll: PushAll,
}

type mutation struct {
	op      Operator
	path    string
	operand interface{}
	fn      mutator
}

// UpdateProgram is a compiled update document.
type UpdateProgram struct {
	mutations []mutation
	upsert    bool
	source    string
	canonical string
}

// Source renders the mutation list for explain output.
func (p *UpdateProgram) Source() string { return p.source }

// Apply mutates one document in place without touching any index.
func (p *UpdateProgram) Apply(doc storage.Document) {
	for _, m := range p.mutations {
		if m.op == OpRename {
			rename(doc, m.path, m.operand.(string))
			continue
		}
		parent, key, ok := storage.Parent(doc, m.path, p.upsert)
		if !ok {
			continue
		}
		m.fn(parent, key, m.operand, p.upsert)
	}
}

// Run applies the update to every document and files each one again under
// every index.
func (p *UpdateProgram) Run(docs []storage.Document, indices []index.Index) error {
	for _, doc := range docs {
		p.Apply(doc)
		for _, idx := range indices {
			idx.Remove(doc)
			if err := idx.Index(doc); err != nil {
				return fmt.Errorf("reindex %s: %w", idx.Name(), err)
			}
		}
	}
	return nil
}

// compileUpdate validates operands up front so that a bad update never
// leaves a partially mutated document behind.
func compileUpdate(update map[string]interface{}, upsert bool) (*UpdateProgram, error) {
	ops := make([]string, 0, len(update))
	for op := range update {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	p := &UpdateProgram{upsert: upsert}
	for _, op := range ops {
		fields, ok := storage.AsMap(update[op])
		if !ok {
			return nil, fmt.Errorf("%w: %s takes a document of fields", util.ErrInvalidOperand, op)
		}
		fn, known := mutators[Operator(op)]
		if !known && Operator(op) != OpRename {
			continue
		}

		paths := make([]string, 0, len(fields))
		for path := range fields {
			paths = append(paths, path)
		}
		sort.Strings(paths)

		for _, path := range paths {
			operand := fields[path]
			if err := checkOperand(Operator(op), path, operand); err != nil {
				return nil, err
			}
			if Operator(op) == OpInc && operand == nil {
				operand = 1
			}
			p.mutations = append(p.mutations, mutation{op: Operator(op), path: path, operand: operand, fn: fn})
		}
	}

	p.source = renderMutations(p.mutations, upsert)
	return p, nil
}

func checkOperand(op Operator, path string, operand interface{}) error {
	switch op {
	case OpPullAll, OpPushAll:
		if _, ok := toList(operand); !ok {
			return fmt.Errorf("%w: %s on %q requires an array, got %T", util.ErrInvalidOperand, op, path, operand)
		}
	case OpInc:
		if operand == nil {
			return nil
		}
		if _, ok := storage.ToFloat(operand); !ok {
			return fmt.Errorf("%w: $inc on %q requires a number, got %T", util.ErrInvalidOperand, path, operand)
		}
	case OpRename:
		if s, ok := operand.(string); !ok || s == "" {
			return fmt.Errorf("%w: $rename on %q requires a target path", util.ErrInvalidOperand, path)
		}
	}
	return nil
}

func renderMutations(ms []mutation, upsert bool) string {
	out := fmt.Sprintf("update(upsert=%t)", upsert)
	for _, m := range ms {
		out += fmt.Sprintf("; %s %s %s", m.op, m.path, storage.Canonical(m.operand))
	}
	return out
}

// Set assigns a copy of the operand when the field exists or upsert is set.
func Set(parent map[string]interface{}, key string, operand interface{}, upsert bool) {
	if _, exists := parent[key]; exists || upsert {
		parent[key] = storage.CopyValue(operand)
	}
}

func Unset(parent map[string]interface{}, key string, _ interface{}, _ bool) {
	delete(parent, key)
}

// Inc adds the operand to a numeric field. Integer fields stay integers when
// the operand is integral.
func Inc(parent map[string]interface{}, key string, operand interface{}, upsert bool) {
	current, exists := parent[key]
	if !exists {
		if upsert {
			parent[key] = operand
		}
		return
	}
	if a, ok := current.(int); ok {
		if b, ok := operand.(int); ok {
			parent[key] = a + b
			return
		}
	}
	a, ok := storage.ToFloat(current)
	if !ok {
		return
	}
	b, _ := storage.ToFloat(operand)
	parent[key] = a + b
}

// Pull removes every element equal to the operand.
func Pull(parent map[string]interface{}, key string, operand interface{}, _ bool) {
	list, ok := toList(parent[key])
	if !ok {
		return
	}
	kept := make([]interface{}, 0, len(list))
	for _, item := range list {
		if !storage.Equal(item, operand) {
			kept = append(kept, item)
		}
	}
	parent[key] = kept
}

// PullAll removes every element present in the operand array.
func PullAll(parent map[string]interface{}, key string, operand interface{}, _ bool) {
	list, ok := toList(parent[key])
	if !ok {
		return
	}
	remove, _ := toList(operand)
	members := membership(remove)
	kept := make([]interface{}, 0, len(list))
	for _, item := range list {
		if _, drop := members[storage.Canonical(item)]; !drop {
			kept = append(kept, item)
		}
	}
	parent[key] = kept
}

// Pop removes the last element.
func Pop(parent map[string]interface{}, key string, _ interface{}, _ bool) {
	list, ok := toList(parent[key])
	if !ok || len(list) == 0 {
		return
	}
	parent[key] = list[:len(list)-1]
}

// Push appends a copy of the operand, creating the array on upsert.
func Push(parent map[string]interface{}, key string, operand interface{}, upsert bool) {
	current, exists := parent[key]
	if !exists {
		if upsert {
			parent[key] = []interface{}{storage.CopyValue(operand)}
		}
		return
	}
	if list, ok := toList(current); ok {
		parent[key] = append(list, storage.CopyValue(operand))
	}
}

// PushAll appends every operand element, or stores a copy of the operand
// array when the field is missing and upsert is set.
func PushAll(parent map[string]interface{}, key string, operand interface{}, upsert bool) {
	values, _ := toList(operand)
	current, exists := parent[key]
	if !exists {
		if upsert {
			parent[key] = storage.CopyValue(values)
		}
		return
	}
	list, ok := toList(current)
	if !ok {
		return
	}
	for _, v := range values {
		list = append(list, storage.CopyValue(v))
	}
	parent[key] = list
}

// rename moves the value at from to the path to, creating parents of to.
func rename(doc storage.Document, from, to string) {
	src, key, ok := storage.Parent(doc, from, false)
	if !ok {
		return
	}
	val, exists := src[key]
	if !exists {
		return
	}
	dst, dkey, ok := storage.Parent(doc, to, true)
	if !ok {
		return
	}
	delete(src, key)
	dst[dkey] = val
}
