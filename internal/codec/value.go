// Package codec converts raw stream frames into a generic value tree
// with byte fields rendered as base58 or UTF-8 text.
package codec

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrShape is returned by typed accessors when a value does not have the
// requested kind or a referenced key/index is absent.
var ErrShape = errors.New("value shape mismatch")

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	}
	return "unknown"
}

// Value is a closed tagged-variant tree decoded once at the stream boundary.
// Accessors fail explicitly on shape mismatch instead of returning zero values.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	raw  []byte
	list []Value
	m    map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a bool.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Int wraps a signed integer.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float wraps a float.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// String wraps a string.
func String(v string) Value { return Value{kind: KindString, s: v} }

// Bytes wraps a raw byte slice that has not been rendered through the
// base58/UTF-8 rule. The slice is copied.
func Bytes(v []byte) Value {
	cp := make([]byte, len(v))
	copy(cp, v)
	return Value{kind: KindBytes, raw: cp}
}

// List wraps a slice of values.
func List(v []Value) Value { return Value{kind: KindList, list: v} }

// Map wraps a map of values.
func Map(v map[string]Value) Value { return Value{kind: KindMap, m: v} }

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is the null variant.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the bool payload.
func (v Value) Bool() (bool, error) {
	if v.kind != KindBool {
		return false, fmt.Errorf("%w: want bool, have %s", ErrShape, v.kind)
	}
	return v.b, nil
}

// Int64 returns the integer payload.
func (v Value) Int64() (int64, error) {
	if v.kind != KindInt {
		return 0, fmt.Errorf("%w: want int, have %s", ErrShape, v.kind)
	}
	return v.i, nil
}

// Uint64 returns the integer payload as an unsigned value.
func (v Value) Uint64() (uint64, error) {
	n, err := v.Int64()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative value %d for unsigned field", ErrShape, n)
	}
	return uint64(n), nil
}

// Float64 returns the float payload.
func (v Value) Float64() (float64, error) {
	if v.kind != KindFloat {
		return 0, fmt.Errorf("%w: want float, have %s", ErrShape, v.kind)
	}
	return v.f, nil
}

// Str returns the string payload.
func (v Value) Str() (string, error) {
	if v.kind != KindString {
		return "", fmt.Errorf("%w: want string, have %s", ErrShape, v.kind)
	}
	return v.s, nil
}

// RawBytes returns the bytes payload.
func (v Value) RawBytes() ([]byte, error) {
	if v.kind != KindBytes {
		return nil, fmt.Errorf("%w: want bytes, have %s", ErrShape, v.kind)
	}
	return v.raw, nil
}

// Len returns the number of elements of a list or map.
func (v Value) Len() (int, error) {
	switch v.kind {
	case KindList:
		return len(v.list), nil
	case KindMap:
		return len(v.m), nil
	}
	return 0, fmt.Errorf("%w: want list or map, have %s", ErrShape, v.kind)
}

// Index returns the i-th element of a list.
func (v Value) Index(i int) (Value, error) {
	if v.kind != KindList {
		return Value{}, fmt.Errorf("%w: want list, have %s", ErrShape, v.kind)
	}
	if i < 0 || i >= len(v.list) {
		return Value{}, fmt.Errorf("%w: index %d out of range (len %d)", ErrShape, i, len(v.list))
	}
	return v.list[i], nil
}

// Elems returns the elements of a list.
func (v Value) Elems() ([]Value, error) {
	if v.kind != KindList {
		return nil, fmt.Errorf("%w: want list, have %s", ErrShape, v.kind)
	}
	return v.list, nil
}

// Get returns the value stored under key in a map.
func (v Value) Get(key string) (Value, error) {
	if v.kind != KindMap {
		return Value{}, fmt.Errorf("%w: want map, have %s (key %q)", ErrShape, v.kind, key)
	}
	child, ok := v.m[key]
	if !ok {
		return Value{}, fmt.Errorf("%w: missing key %q", ErrShape, key)
	}
	return child, nil
}

// Has reports whether a map value contains key. Non-map values never contain keys.
func (v Value) Has(key string) bool {
	if v.kind != KindMap {
		return false
	}
	_, ok := v.m[key]
	return ok
}

// At walks a chain of map keys and returns the leaf value.
func (v Value) At(path ...string) (Value, error) {
	cur := v
	for _, key := range path {
		child, err := cur.Get(key)
		if err != nil {
			return Value{}, fmt.Errorf("at %v: %w", path, err)
		}
		cur = child
	}
	return cur, nil
}

// Strings returns a list value as a string slice.
func (v Value) Strings() ([]string, error) {
	elems, err := v.Elems()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(elems))
	for i, e := range elems {
		s, err := e.Str()
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// AmountUint64 reads a numeric amount that the wire may carry either as an
// integer or as a decimal string (token amounts arrive as strings).
func (v Value) AmountUint64() (uint64, error) {
	switch v.kind {
	case KindInt:
		return v.Uint64()
	case KindString:
		n, err := strconv.ParseUint(v.s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: amount %q is not an unsigned integer", ErrShape, v.s)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: want int or string amount, have %s", ErrShape, v.kind)
}
