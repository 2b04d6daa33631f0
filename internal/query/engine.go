package query

import (
	"math"
	"regexp"

	"github.com/kartikbazzad/bunbase/docstore/storage"
)

// earthRadiusKm is the sphere radius used by $near.
const earthRadiusKm = 6371.0

// opFunc evaluates one operator against a field value. present is false when
// the path did not resolve.
type opFunc func(actual interface{}, present bool, operand interface{}) bool

// operators is the dispatch table for value operators. $not and $elemMatch
// take compiled sub-trees and are handled by the compiler.
var operators = map[Operator]opFunc{
	OpEq:     Eq,
	OpNe:     Ne,
	OpGt:     Gt,
	OpGte:    Gte,
	OpLt:     Lt,
	OpLte:    Lte,
	OpIn:     In,
	OpNin:    Nin,
	OpAll:    All,
	OpSize:   Size,
	OpExists: Exists,
	OpWithin: Within,
	OpNear:   Near,
}

// Eq matches equal values. A regexp operand tests string values; an array
// value matches when any element is equal.
func Eq(actual interface{}, present bool, operand interface{}) bool {
	if !present {
		return operand == nil
	}
	if re, ok := operand.(*regexp.Regexp); ok {
		if s, ok := actual.(string); ok {
			return re.MatchString(s)
		}
		if list, ok := toList(actual); ok {
			for _, item := range list {
				if s, ok := item.(string); ok && re.MatchString(s) {
					return true
				}
			}
		}
		return false
	}
	if storage.Equal(actual, operand) {
		return true
	}
	if _, isList := toList(operand); isList {
		return false
	}
	if list, ok := toList(actual); ok {
		for _, item := range list {
			if storage.Equal(item, operand) {
				return true
			}
		}
	}
	return false
}

func Ne(actual interface{}, present bool, operand interface{}) bool {
	return !Eq(actual, present, operand)
}

func Gt(actual interface{}, present bool, operand interface{}) bool {
	return ordered(actual, present, operand, func(c int) bool { return c > 0 })
}

func Gte(actual interface{}, present bool, operand interface{}) bool {
	return ordered(actual, present, operand, func(c int) bool { return c >= 0 })
}

func Lt(actual interface{}, present bool, operand interface{}) bool {
	return ordered(actual, present, operand, func(c int) bool { return c < 0 })
}

func Lte(actual interface{}, present bool, operand interface{}) bool {
	return ordered(actual, present, operand, func(c int) bool { return c <= 0 })
}

// ordered compares values of the same kind only: 5 is never less than "6".
func ordered(actual interface{}, present bool, operand interface{}, ok func(int) bool) bool {
	if !present || !storage.Comparable(actual, operand) {
		return false
	}
	return ok(storage.Compare(actual, operand))
}

// In matches when the value equals any element of the operand array.
func In(actual interface{}, present bool, operand interface{}) bool {
	list, ok := toList(operand)
	if !ok {
		list = []interface{}{operand}
	}
	for _, candidate := range list {
		if Eq(actual, present, candidate) {
			return true
		}
	}
	return false
}

func Nin(actual interface{}, present bool, operand interface{}) bool {
	return !In(actual, present, operand)
}

// All matches arrays containing every element of the operand array.
func All(actual interface{}, present bool, operand interface{}) bool {
	values, ok := toList(actual)
	if !present || !ok {
		return false
	}
	wanted, ok := toList(operand)
	if !ok {
		wanted = []interface{}{operand}
	}
	members := membership(values)
	for _, w := range wanted {
		if _, found := members[storage.Canonical(w)]; !found {
			return false
		}
	}
	return true
}

// Size matches arrays by length and objects by key count.
func Size(actual interface{}, present bool, operand interface{}) bool {
	if !present {
		return false
	}
	want, ok := storage.ToFloat(operand)
	if !ok {
		return false
	}
	if list, ok := toList(actual); ok {
		return float64(len(list)) == want
	}
	if m, ok := storage.AsMap(actual); ok {
		return float64(len(m)) == want
	}
	return false
}

// Exists matches on presence when the operand is true, absence otherwise.
func Exists(_ interface{}, present bool, operand interface{}) bool {
	return present == truthy(operand)
}

// Within matches [x, y] points whose planar distance from operand.center is
// at most operand.distance.
func Within(actual interface{}, present bool, operand interface{}) bool {
	if !present {
		return false
	}
	x, y, ok := point(actual)
	if !ok {
		return false
	}
	cx, cy, max, ok := geoOperand(operand)
	if !ok {
		return false
	}
	return math.Hypot(x-cx, y-cy) <= max
}

// Near matches [lat, lng] points (degrees) within operand.distance
// kilometres of operand.center along the great circle.
func Near(actual interface{}, present bool, operand interface{}) bool {
	if !present {
		return false
	}
	lat, lng, ok := point(actual)
	if !ok {
		return false
	}
	clat, clng, max, ok := geoOperand(operand)
	if !ok {
		return false
	}
	return Haversine(lat, lng, clat, clng) <= max
}

// Haversine returns the great-circle distance in kilometres between two
// points given in degrees.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func geoOperand(operand interface{}) (x, y, distance float64, ok bool) {
	m, ok := storage.AsMap(operand)
	if !ok {
		return 0, 0, 0, false
	}
	x, y, ok = point(m["center"])
	if !ok {
		return 0, 0, 0, false
	}
	distance, ok = storage.ToFloat(m["distance"])
	return x, y, distance, ok
}

func point(v interface{}) (float64, float64, bool) {
	list, ok := toList(v)
	if !ok || len(list) != 2 {
		return 0, 0, false
	}
	x, okx := storage.ToFloat(list[0])
	y, oky := storage.ToFloat(list[1])
	return x, y, okx && oky
}

// toList accepts the slice shapes documents and Go callers produce.
func toList(v interface{}) ([]interface{}, bool) {
	return storage.AsList(v)
}

func membership(values []interface{}) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[storage.Canonical(v)] = struct{}{}
	}
	return set
}

func truthy(v interface{}) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		return b != ""
	}
	if f, ok := storage.ToFloat(v); ok {
		return f != 0
	}
	return true
}
