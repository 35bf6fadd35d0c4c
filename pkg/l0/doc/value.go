package doc

import (
	"math"
	"strconv"
)

// Kind is the type tag of a Value.
type Kind uint8

// Value kinds.
const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindMap
	KindArray
)

var kindNames = [...]string{"nil", "bool", "int", "uint", "float", "string", "map", "array"}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a tagged variant. The zero Value is nil.
type Value struct {
	kind Kind
	bits uint64
	str  string
	m    *Document
	arr  []Value
}

// Nil returns a nil Value.
func Nil() Value { return Value{} }

// Bool returns a boolean Value.
func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.bits = 1
	}
	return v
}

// Int returns a signed integer Value.
func Int(n int64) Value { return Value{kind: KindInt, bits: uint64(n)} }

// Uint returns an unsigned integer Value.
func Uint(n uint64) Value { return Value{kind: KindUint, bits: n} }

// Float returns a floating point Value.
func Float(f float64) Value { return Value{kind: KindFloat, bits: math.Float64bits(f)} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Map returns a nested Document Value. A nil d is an empty map.
func Map(d *Document) Value {
	if d == nil {
		d = New()
	}
	return Value{kind: KindMap, m: d}
}

// Array returns an array Value.
func Array(items ...Value) Value { return Value{kind: KindArray, arr: items} }

// Kind returns the type tag.
func (v Value) Kind() Kind { return v.kind }

// IsNil indicates a nil Value.
func (v Value) IsNil() bool { return v.kind == KindNil }

// IsNumber indicates an integer or floating point Value.
func (v Value) IsNumber() bool {
	return v.kind == KindInt || v.kind == KindUint || v.kind == KindFloat
}

// AsBool returns the boolean.
func (v Value) AsBool() (bool, bool) {
	return v.bits != 0, v.kind == KindBool
}

// AsInt returns the value as int64. Floats are truncated, unsigned values
// above math.MaxInt64 are rejected.
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case KindInt:
		return int64(v.bits), true
	case KindUint:
		return int64(v.bits), v.bits <= math.MaxInt64
	case KindFloat:
		f := math.Float64frombits(v.bits)
		if math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}

// AsUint returns the value as uint64. Negative values are rejected.
func (v Value) AsUint() (uint64, bool) {
	switch v.kind {
	case KindUint:
		return v.bits, true
	case KindInt:
		return v.bits, int64(v.bits) >= 0
	case KindFloat:
		f := math.Float64frombits(v.bits)
		if math.IsNaN(f) || f < 0 || f >= math.MaxUint64 {
			return 0, false
		}
		return uint64(f), true
	}
	return 0, false
}

// AsFloat returns any number as float64.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return math.Float64frombits(v.bits), true
	case KindInt:
		return float64(int64(v.bits)), true
	case KindUint:
		return float64(v.bits), true
	}
	return 0, false
}

// AsString returns the string.
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsMap returns the nested Document.
func (v Value) AsMap() (*Document, bool) {
	return v.m, v.kind == KindMap
}

// AsArray returns the array items.
func (v Value) AsArray() ([]Value, bool) {
	return v.arr, v.kind == KindArray
}

// Equal compares values. Integers compare numerically regardless of
// signedness, since the wire encoding doesn't keep it.
func (v Value) Equal(o Value) bool {
	if v.isInteger() && o.isInteger() {
		if v.kind == o.kind || (int64(v.bits) >= 0 && int64(o.bits) >= 0) {
			return v.bits == o.bits
		}
		return false
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindBool:
		return v.bits == o.bits
	case KindFloat:
		return math.Float64frombits(v.bits) == math.Float64frombits(o.bits)
	case KindString:
		return v.str == o.str
	case KindMap:
		return v.m.Equal(o.m)
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) isInteger() bool {
	return v.kind == KindInt || v.kind == KindUint
}
