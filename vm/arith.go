package vm

import "math"

// ArithOp enumerates the arithmetic and bitwise operators in the order the
// arithmetic opcodes are laid out.
type ArithOp int

const (
	ArithAdd ArithOp = iota
	ArithSub
	ArithMul
	ArithMod
	ArithPow
	ArithDiv
	ArithIDiv
	ArithBAnd
	ArithBOr
	ArithBXor
	ArithShl
	ArithShr
	ArithUnm
	ArithBNot
)

// IsBitwise reports whether op needs integer operands.
func (op ArithOp) IsBitwise() bool {
	switch op {
	case ArithBAnd, ArithBOr, ArithBXor, ArithShl, ArithShr, ArithBNot:
		return true
	}
	return false
}

// RawArith applies op to two numbers without metamethods. It reports false
// when the operands are not numbers or a bitwise operand has no integer
// representation. Integer division and modulo by zero must be excluded by
// the caller.
func RawArith(op ArithOp, a, b Value) (Value, bool) {
	if !a.IsNumber() || !b.IsNumber() {
		return Nil, false
	}
	if op.IsBitwise() {
		x, ok1 := a.ToInteger()
		y, ok2 := b.ToInteger()
		if !ok1 || !ok2 {
			return Nil, false
		}
		return Int(intArith(op, x, y)), true
	}
	if op != ArithDiv && op != ArithPow && a.Type == TypeInt && b.Type == TypeInt {
		return Int(intArith(op, a.Int, b.Int)), true
	}
	return Float(floatArith(op, a.Number(), b.Number())), true
}

func intArith(op ArithOp, x, y int64) int64 {
	switch op {
	case ArithAdd:
		return x + y
	case ArithSub:
		return x - y
	case ArithMul:
		return x * y
	case ArithMod:
		return IntMod(x, y)
	case ArithIDiv:
		return IntDiv(x, y)
	case ArithBAnd:
		return x & y
	case ArithBOr:
		return x | y
	case ArithBXor:
		return x ^ y
	case ArithShl:
		return ShiftLeft(x, y)
	case ArithShr:
		return ShiftLeft(x, 0-y)
	case ArithUnm:
		return 0 - x
	case ArithBNot:
		return ^x
	}
	return 0
}

func floatArith(op ArithOp, x, y float64) float64 {
	switch op {
	case ArithAdd:
		return x + y
	case ArithSub:
		return x - y
	case ArithMul:
		return x * y
	case ArithDiv:
		return x / y
	case ArithPow:
		if y == 2 {
			return x * x
		}
		return math.Pow(x, y)
	case ArithIDiv:
		return math.Floor(x / y)
	case ArithUnm:
		return -x
	case ArithMod:
		return FloatMod(x, y)
	}
	return 0
}

// IntMod is the floored integer modulo. y must not be zero.
func IntMod(x, y int64) int64 {
	if y == -1 {
		return 0 // avoids overflow with MinInt64 % -1
	}
	r := x % y
	if r != 0 && (r^y) < 0 {
		r += y
	}
	return r
}

// IntDiv is the floored integer division. y must not be zero.
func IntDiv(x, y int64) int64 {
	if y == -1 {
		return 0 - x
	}
	q := x / y
	if (x%y != 0) && (x^y) < 0 {
		q--
	}
	return q
}

// FloatMod is the floored float modulo.
func FloatMod(x, y float64) float64 {
	m := math.Mod(x, y)
	if (m > 0 && y < 0) || (m < 0 && y > 0) {
		m += y
	}
	return m
}

// ShiftLeft shifts x left by y bits, shifting right for negative y. Shifts
// of 64 bits or more yield zero.
func ShiftLeft(x, y int64) int64 {
	if y < 0 {
		if y <= -64 {
			return 0
		}
		return int64(uint64(x) >> uint64(-y))
	}
	if y >= 64 {
		return 0
	}
	return int64(uint64(x) << uint64(y))
}
