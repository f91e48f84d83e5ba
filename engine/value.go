package engine

import (
	"math"
	"strconv"
)

// ValueType tags a Value. It is also the wire/ABI tag written into the
// caller-supplied out_tag slot by a compiled native image (see native.Image).
type ValueType uint8

const (
	Integer ValueType = iota
	Float
	Uninitialised

	// NoneType marks a Command's declared Type for Service instructions,
	// which do not consume/produce operand-stack values and therefore
	// select no stack. It is never used to tag an actual Value.
	NoneType
)

func (t ValueType) String() string {
	switch t {
	case Integer:
		return "int"
	case Float:
		return "float"
	case Uninitialised:
		return "uninitialised"
	case NoneType:
		return "none"
	default:
		return "?unknown-type?"
	}
}

// Value is a tagged scalar: an Integer (i64), a Float (f64), or Uninitialised.
// Reading a Value always requires a matching expected tag unless the caller
// explicitly allows an uninitialised read.
type Value struct {
	tag  ValueType
	bits uint64
}

// NewValue returns the zero value for tag (0 for Integer/Float, still tagged
// Uninitialised when tag is Uninitialised).
func NewValue(tag ValueType) Value {
	return Value{tag: tag}
}

func FromInt(v int64) Value {
	return Value{tag: Integer, bits: uint64(v)}
}

func FromFloat(v float64) Value {
	return Value{tag: Float, bits: math.Float64bits(v)}
}

func (v Value) Type() ValueType { return v.tag }

// Expect returns v's payload if v.tag matches tag, or if allowUninit is true
// and v is Uninitialised (in which case the returned Value is the zero value
// for tag). Any other mismatch is a TypeError.
func (v Value) Expect(tag ValueType, allowUninit bool) (Value, error) {
	if v.tag == tag {
		return v, nil
	}
	if allowUninit && v.tag == Uninitialised {
		return NewValue(tag), nil
	}
	return Value{}, &EngineError{Kind: ErrTypeError, Message: "expected " + tag.String() + ", got " + v.tag.String()}
}

// Int returns v's integer payload. v must already be tag-checked by the
// caller (typically via Expect) — Int performs no check of its own so it can
// be used on already-verified values without repeating the error path.
func (v Value) Int() int64 { return int64(v.bits) }

func (v Value) Float() float64 { return math.Float64frombits(v.bits) }

// ToABI packs v into the fixed-width 64-bit wire encoding: low 64 bits of
// the two's-complement representation for Integer, the f64 bit pattern for
// Float. Uninitialised has an arbitrary return value — callers must consult
// the separate out-of-band tag.
func (v Value) ToABI() uint64 { return v.bits }

// FromABI is the inverse of ToABI for a known tag.
func FromABI(bits uint64, tag ValueType) Value {
	return Value{tag: tag, bits: bits}
}

// ParseInt parses a base-10 or 0x-prefixed integer literal.
func ParseInt(s string) (Value, error) {
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return Value{}, &EngineError{Kind: ErrFormatError, Message: "bad integer literal: " + s}
	}
	return FromInt(n), nil
}

// ParseFloat parses a floating literal, rejecting NaN, infinity, and
// subnormal values via an fpclassify-style filter.
func ParseFloat(s string) (Value, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, &EngineError{Kind: ErrFormatError, Message: "bad float literal: " + s}
	}
	if isRejectedFloat(f) {
		return Value{}, &EngineError{Kind: ErrFormatError, Message: "NaN/Inf/subnormal float literal rejected: " + s}
	}
	return FromFloat(f), nil
}

func isRejectedFloat(f float64) bool {
	switch math.Float64bits(f) {
	case 0, 0x8000000000000000:
		return false // +0, -0 are fine
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return true
	}
	const minNormal = 2.2250738585072014e-308 // smallest positive normal float64
	abs := math.Abs(f)
	return abs != 0 && abs < minNormal
}
