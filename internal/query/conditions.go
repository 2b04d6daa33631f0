package query

import (
	"fmt"
	"sort"

	"github.com/kartikbazzad/bunbase/docstore/internal/util"
	"github.com/kartikbazzad/bunbase/docstore/storage"
)

// SortSpec orders results by one field. Direction is 1 (ascending) or -1.
type SortSpec struct {
	Field     string
	Direction int
}

// Conditions post-process a filtered result: skip, then sort, then limit.
type Conditions struct {
	Skip  int
	Limit int // 0 = no limit
	Sort  *SortSpec
}

// ParseConditions reads {$skip: n, $limit: n, $sort: {field: dir}}.
func ParseConditions(raw map[string]interface{}) (Conditions, error) {
	var cond Conditions
	for key, val := range raw {
		switch key {
		case "$skip":
			n, err := count(key, val)
			if err != nil {
				return cond, err
			}
			cond.Skip = n
		case "$limit":
			n, err := count(key, val)
			if err != nil {
				return cond, err
			}
			cond.Limit = n
		case "$sort":
			spec, ok := storage.AsMap(val)
			if !ok || len(spec) != 1 {
				return cond, fmt.Errorf("%w: $sort takes exactly one field", util.ErrInvalidQuery)
			}
			for field, dir := range spec {
				d, ok := storage.ToFloat(dir)
				if !ok || d == 0 {
					return cond, fmt.Errorf("%w: $sort direction for %q must be 1 or -1", util.ErrInvalidQuery, field)
				}
				cond.Sort = &SortSpec{Field: field, Direction: 1}
				if d < 0 {
					cond.Sort.Direction = -1
				}
			}
		default:
			return cond, fmt.Errorf("%w: unknown condition %q", util.ErrInvalidQuery, key)
		}
	}
	return cond, nil
}

func count(key string, val interface{}) (int, error) {
	f, ok := storage.ToFloat(val)
	if !ok || f < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative number", util.ErrInvalidQuery, key)
	}
	return int(f), nil
}

// Canonical renders the conditions for the program cache key.
func (c Conditions) Canonical() string {
	if c.Sort == nil {
		return fmt.Sprintf("skip=%d;limit=%d", c.Skip, c.Limit)
	}
	return fmt.Sprintf("skip=%d;limit=%d;sort=%q:%d", c.Skip, c.Limit, c.Sort.Field, c.Sort.Direction)
}

// Empty reports whether the conditions leave a result untouched.
func (c Conditions) Empty() bool {
	return c.Skip == 0 && c.Limit == 0 && c.Sort == nil
}

// Apply runs skip, sort and limit in that order.
func (c Conditions) Apply(docs []storage.Document) []storage.Document {
	if c.Skip > 0 {
		if c.Skip >= len(docs) {
			return docs[:0]
		}
		docs = docs[c.Skip:]
	}
	if c.Sort != nil {
		field, dir := c.Sort.Field, c.Sort.Direction
		sort.SliceStable(docs, func(i, j int) bool {
			a, _ := storage.Lookup(docs[i], field)
			b, _ := storage.Lookup(docs[j], field)
			return storage.Compare(a, b)*dir < 0
		})
	}
	if c.Limit > 0 && len(docs) > c.Limit {
		docs = docs[:c.Limit]
	}
	return docs
}
