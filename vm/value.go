package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Type tags the variant held by a Value. Booleans carry their value in the
// tag, the way the constant pool distinguishes them.
type Type uint8

const (
	TypeNil Type = iota
	TypeFalse
	TypeTrue
	TypeInt
	TypeFloat
	TypeString
)

var typeNames = [...]string{"nil", "false", "true", "integer", "float", "string"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Value is a constant a prototype can hold: nil, a boolean, a number or an
// interned string. Only the field selected by Type is meaningful.
type Value struct {
	Type  Type
	Int   int64
	Float float64
	Str   *String
}

// Nil is the nil constant.
var Nil = Value{Type: TypeNil}

func Bool(b bool) Value {
	if b {
		return Value{Type: TypeTrue}
	}
	return Value{Type: TypeFalse}
}

func Int(i int64) Value     { return Value{Type: TypeInt, Int: i} }
func Float(f float64) Value { return Value{Type: TypeFloat, Float: f} }
func Str(s *String) Value   { return Value{Type: TypeString, Str: s} }

func (v Value) IsNil() bool    { return v.Type == TypeNil }
func (v Value) IsNumber() bool { return v.Type == TypeInt || v.Type == TypeFloat }

// IsShortString reports whether v is a string short enough to be used as a
// field key operand.
func (v Value) IsShortString() bool {
	return v.Type == TypeString && v.Str.IsShort()
}

// Number returns v as a float, converting integers.
func (v Value) Number() float64 {
	if v.Type == TypeInt {
		return float64(v.Int)
	}
	return v.Float
}

// RawEqual compares two values without metamethods. Values of different
// types are never equal, so the integer 1 and the float 1.0 differ here.
func RawEqual(a, b Value) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case TypeInt:
		return a.Int == b.Int
	case TypeFloat:
		return a.Float == b.Float
	case TypeString:
		return a.Str == b.Str
	default:
		return true
	}
}

// FloatToInteger converts f to an integer when it has an exact integer
// representation.
func FloatToInteger(f float64) (int64, bool) {
	if math.Floor(f) != f {
		return 0, false
	}
	if f >= -(1<<63) && f < 1<<63 {
		return int64(f), true
	}
	return 0, false
}

// ToInteger converts numbers with an exact integer value.
func (v Value) ToInteger() (int64, bool) {
	switch v.Type {
	case TypeInt:
		return v.Int, true
	case TypeFloat:
		return FloatToInteger(v.Float)
	}
	return 0, false
}

// FormatFloat renders a float the way the language's tostring does,
// keeping a ".0" suffix on integral values.
func FormatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	s := strconv.FormatFloat(f, 'g', 14, 64)
	if !strings.ContainsAny(s, ".en") {
		s += ".0"
	}
	return s
}

func (v Value) String() string {
	switch v.Type {
	case TypeNil:
		return "nil"
	case TypeFalse:
		return "false"
	case TypeTrue:
		return "true"
	case TypeInt:
		return strconv.FormatInt(v.Int, 10)
	case TypeFloat:
		return FormatFloat(v.Float)
	case TypeString:
		return strconv.Quote(v.Str.String())
	}
	return fmt.Sprintf("<%s>", v.Type)
}
