package storage

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/kartikbazzad/bunbase/docstore/internal/util"
)

// ObjectID is an opaque unique document identifier.
type ObjectID string

// NewObjectID generates a fresh random identifier.
func NewObjectID() ObjectID {
	return ObjectID(uuid.NewString())
}

func (id ObjectID) String() string {
	return string(id)
}

// Ref points at a document in another collection.
type Ref struct {
	Collection string `json:"$ref"`
	ID         string `json:"$id"`
}

// NewRef builds a reference. Both fields are required.
func NewRef(collection, id string) (Ref, error) {
	if collection == "" {
		return Ref{}, fmt.Errorf("%w: collection is required", util.ErrInvalidRef)
	}
	if id == "" {
		return Ref{}, fmt.Errorf("%w: id is required", util.ErrInvalidRef)
	}
	return Ref{Collection: collection, ID: id}, nil
}

func (r Ref) String() string {
	return r.Collection + "/" + r.ID
}

// type ranks used for cross-type ordering
const (
	rankNil = iota
	rankBool
	rankNumber
	rankString
	rankOther
)

func rank(v interface{}) int {
	switch v.(type) {
	case nil:
		return rankNil
	case bool:
		return rankBool
	case string, ObjectID, Ref:
		return rankString
	}
	if _, ok := ToFloat(v); ok {
		return rankNumber
	}
	return rankOther
}

// Compare returns -1 if a < b, 0 if a == b, 1 if a > b.
// Values of different kinds order as nil < bool < number < string < other.
// Identifiers compare by their string form.
func Compare(a, b interface{}) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmpInt(ra, rb)
	}

	switch ra {
	case rankNil:
		return 0
	case rankBool:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	case rankNumber:
		fa, _ := ToFloat(a)
		fb, _ := ToFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case rankString:
		return strings.Compare(StringOf(a), StringOf(b))
	}
	return strings.Compare(Canonical(a), Canonical(b))
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Comparable reports whether a and b are of the same ordering kind, which is
// what range operators require before comparing.
func Comparable(a, b interface{}) bool {
	ra := rank(a)
	return ra == rank(b) && ra != rankOther
}

// Equal reports value equality. Numbers compare numerically, identifiers by
// string form and containers structurally.
func Equal(a, b interface{}) bool {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return false
	}
	if ra == rankOther {
		return Canonical(a) == Canonical(b)
	}
	return Compare(a, b) == 0
}

// StringOf returns the string form of strings and identifiers.
func StringOf(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case ObjectID:
		return string(s)
	case Ref:
		return s.String()
	case fmt.Stringer:
		return s.String()
	}
	return fmt.Sprintf("%v", v)
}

// ToFloat converts any numeric kind to float64.
func ToFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Canonical renders v as a deterministic, type-tagged string. Object keys are
// sorted so structurally identical values always render identically.
func Canonical(v interface{}) string {
	var sb strings.Builder
	writeCanonical(&sb, v)
	return sb.String()
}

func writeCanonical(sb *strings.Builder, v interface{}) {
	if m, ok := AsMap(v); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Quote(k))
			sb.WriteByte(':')
			writeCanonical(sb, m[k])
		}
		sb.WriteByte('}')
		return
	}

	switch val := v.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		sb.WriteString(strconv.FormatBool(val))
	case string:
		sb.WriteString(strconv.Quote(val))
	case ObjectID:
		sb.WriteString("oid(")
		sb.WriteString(strconv.Quote(string(val)))
		sb.WriteByte(')')
	case Ref:
		sb.WriteString("ref(")
		sb.WriteString(strconv.Quote(val.String()))
		sb.WriteByte(')')
	case *regexp.Regexp:
		sb.WriteString("re(")
		sb.WriteString(strconv.Quote(val.String()))
		sb.WriteByte(')')
	case []interface{}:
		sb.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, item)
		}
		sb.WriteByte(']')
	default:
		if f, ok := ToFloat(v); ok {
			sb.WriteString(formatNumber(f))
			return
		}
		sb.WriteString(strconv.Quote(fmt.Sprintf("%v", v)))
	}
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// FormatScalar renders a scalar the way composite keys join it: numbers
// without a trailing fraction, strings bare, nil as the empty string.
func FormatScalar(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case ObjectID, Ref:
		return StringOf(val)
	}
	if f, ok := ToFloat(v); ok {
		return formatNumber(f)
	}
	return Canonical(v)
}
