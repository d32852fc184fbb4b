package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrKindMismatch is returned when two values of different kinds are compared
// or when a value is read through an accessor for another kind.
var ErrKindMismatch = errors.New("value kind mismatch")

// ErrUnordered is returned by Compare when a float operand is NaN.
var ErrUnordered = errors.New("unordered comparison")

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindUInt
	KindInt
	KindFloat
	KindDouble
	KindBool
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindUInt:
		return "uint"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindBool:
		return "bool"
	case KindText:
		return "text"
	default:
		return "invalid"
	}
}

// Value is a decoded field value. The zero Value is invalid.
type Value struct {
	kind Kind
	u    uint64
	i    int64
	f    float64
	b    bool
	s    string
}

func UInt(v uint64) Value    { return Value{kind: KindUInt, u: v} }
func Int(v int64) Value      { return Value{kind: KindInt, i: v} }
func Float(v float32) Value  { return Value{kind: KindFloat, f: float64(v)} }
func Double(v float64) Value { return Value{kind: KindDouble, f: v} }
func Bool(v bool) Value      { return Value{kind: KindBool, b: v} }
func Text(v string) Value    { return Value{kind: KindText, s: v} }

// Zero returns the zero value of kind k.
func Zero(k Kind) Value { return Value{kind: k} }

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsValid() bool { return v.kind != KindInvalid }

func (v Value) AsUInt() (uint64, error) {
	if v.kind != KindUInt {
		return 0, v.mismatch(KindUInt)
	}
	return v.u, nil
}

func (v Value) AsInt() (int64, error) {
	if v.kind != KindInt {
		return 0, v.mismatch(KindInt)
	}
	return v.i, nil
}

func (v Value) AsFloat() (float32, error) {
	if v.kind != KindFloat {
		return 0, v.mismatch(KindFloat)
	}
	return float32(v.f), nil
}

func (v Value) AsDouble() (float64, error) {
	if v.kind != KindDouble {
		return 0, v.mismatch(KindDouble)
	}
	return v.f, nil
}

func (v Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, v.mismatch(KindBool)
	}
	return v.b, nil
}

func (v Value) AsText() (string, error) {
	if v.kind != KindText {
		return "", v.mismatch(KindText)
	}
	return v.s, nil
}

func (v Value) mismatch(want Kind) error {
	return fmt.Errorf("%w: have %s, want %s", ErrKindMismatch, v.kind, want)
}

// Compare orders v against other. Both values must carry the same kind.
// Booleans order false before true, text compares bytewise. NaN has no
// order and yields ErrUnordered.
func (v Value) Compare(other Value) (int, error) {
	if v.kind != other.kind || v.kind == KindInvalid {
		return 0, fmt.Errorf("%w: %s vs %s", ErrKindMismatch, v.kind, other.kind)
	}
	if v.IsNaN() || other.IsNaN() {
		return 0, fmt.Errorf("%w: %s vs %s", ErrUnordered, v, other)
	}
	switch v.kind {
	case KindUInt:
		return cmpOrdered(v.u, other.u), nil
	case KindInt:
		return cmpOrdered(v.i, other.i), nil
	case KindFloat:
		return cmpOrdered(float32(v.f), float32(other.f)), nil
	case KindDouble:
		return cmpOrdered(v.f, other.f), nil
	case KindBool:
		return cmpOrdered(boolRank(v.b), boolRank(other.b)), nil
	default:
		return cmpOrdered(v.s, other.s), nil
	}
}

// IsNaN reports whether v is a float or double NaN.
func (v Value) IsNaN() bool {
	return (v.kind == KindFloat || v.kind == KindDouble) && math.IsNaN(v.f)
}

func (v Value) String() string {
	switch v.kind {
	case KindUInt:
		return strconv.FormatUint(v.u, 10)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 32)
	case KindDouble:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindText:
		return strconv.Quote(v.s)
	default:
		return "<invalid>"
	}
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func cmpOrdered[T ~int | ~int64 | ~uint64 | ~float32 | ~float64 | ~string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
