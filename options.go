package docstore

import (
	"github.com/kartikbazzad/bunbase/docstore/internal/index"
	"github.com/kartikbazzad/bunbase/docstore/internal/query"
)

// QueryOptions represents query options like sort, limit and skip.
// Skip is applied before the sort, then the limit.
type QueryOptions struct {
	SortField string
	SortDesc  bool
	Limit     int
	Skip      int
}

func (o QueryOptions) conditions() query.Conditions {
	cond := query.Conditions{Skip: o.Skip, Limit: o.Limit}
	if o.SortField != "" {
		cond.Sort = &query.SortSpec{Field: o.SortField, Direction: 1}
		if o.SortDesc {
			cond.Sort.Direction = -1
		}
	}
	return cond
}

// OptionsFromMap reads {$skip: n, $limit: n, $sort: {field: 1|-1}}.
func OptionsFromMap(raw map[string]interface{}) (QueryOptions, error) {
	cond, err := query.ParseConditions(raw)
	if err != nil {
		return QueryOptions{}, err
	}
	opts := QueryOptions{Skip: cond.Skip, Limit: cond.Limit}
	if cond.Sort != nil {
		opts.SortField = cond.Sort.Field
		opts.SortDesc = cond.Sort.Direction < 0
	}
	return opts, nil
}

// IndexType selects the structure backing an index.
type IndexType = index.Type

const (
	BTree = index.BTree
	Hash  = index.Hash
)

// ParseIndexType accepts "btree" or "hash" in any case.
func ParseIndexType(s string) (IndexType, error) {
	return index.ParseType(s)
}

// IndexOptions configures EnsureIndex.
type IndexOptions struct {
	// Order is the B+tree node capacity (BTREE only, 0 = database default).
	Order int
}

// IndexInfo describes a registered index.
type IndexInfo struct {
	Type       IndexType
	Attributes []string
	Name       string
	Documents  int
}
