package event

import (
	"slices"
)

// Value is a sealed interface over the constrained canonical value types.
// Only Null, String, Int, Bool, Array, and Object implement it. There is no
// float variant: floats have no stable canonical text form and are forbidden
// everywhere in the wire format.
type Value interface {
	value() // sealed
}

// Null is the explicit null value. Absent optional fields are encoded as
// Null rather than omitted, so presence is always visible in the bytes.
type Null struct{}

func (Null) value() {}

// String is a canonical string value.
type String string

func (String) value() {}

// Int is a canonical integer value. Always int64.
type Int int64

func (Int) value() {}

// Bool is a canonical boolean value.
type Bool bool

func (Bool) value() {}

// Array is an ordered list of canonical values.
type Array []Value

func (Array) value() {}

// Object maps string keys to canonical values. Iterate via SortedKeys.
type Object map[string]Value

func (Object) value() {}

// SortedKeys returns the object's keys in ascending byte-wise order.
// This is the ordering used by the canonical encoding: plain string
// comparison, no locale or UTF-16 transformation.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// optString encodes an optional string field: explicit null when empty.
func optString(s string) Value {
	if s == "" {
		return Null{}
	}
	return String(s)
}
