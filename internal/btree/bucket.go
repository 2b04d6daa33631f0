package btree

// Bucket is the small hash table a hashing leaf keeps per key: every document
// sharing one index key lives here, addressed by its unique identifier.
type Bucket struct {
	ids    []string
	values map[string]interface{}
	pos    map[string]int
}

// NewBucket creates an empty bucket
func NewBucket() *Bucket {
	return &Bucket{
		values: make(map[string]interface{}),
		pos:    make(map[string]int),
	}
}

// Put stores value under id, replacing any previous value for the same id.
func (b *Bucket) Put(id string, value interface{}) {
	if _, exists := b.values[id]; !exists {
		b.pos[id] = len(b.ids)
		b.ids = append(b.ids, id)
	}
	b.values[id] = value
}

// Get returns the value stored for id.
func (b *Bucket) Get(id string) (interface{}, bool) {
	v, ok := b.values[id]
	return v, ok
}

// Delete removes id from the bucket and reports whether it was present.
func (b *Bucket) Delete(id string) bool {
	i, ok := b.pos[id]
	if !ok {
		return false
	}

	last := len(b.ids) - 1
	if i != last {
		moved := b.ids[last]
		b.ids[i] = moved
		b.pos[moved] = i
	}
	b.ids = b.ids[:last]
	delete(b.pos, id)
	delete(b.values, id)
	return true
}

// Len returns the number of members.
func (b *Bucket) Len() int {
	return len(b.ids)
}

// IDs returns the member identifiers.
func (b *Bucket) IDs() []string {
	out := make([]string, len(b.ids))
	copy(out, b.ids)
	return out
}

// Values returns the member values in bucket order.
func (b *Bucket) Values() []interface{} {
	out := make([]interface{}, 0, len(b.ids))
	for _, id := range b.ids {
		out = append(out, b.values[id])
	}
	return out
}

// Each calls fn for every member until fn returns false.
func (b *Bucket) Each(fn func(id string, value interface{}) bool) {
	for _, id := range b.ids {
		if !fn(id, b.values[id]) {
			return
		}
	}
}
