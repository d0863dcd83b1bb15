package compiler

import (
	"math"

	"github.com/chazu/lunac/vm"
)

// ---------------------------------------------------------------------------
// Constant pool
// ---------------------------------------------------------------------------

// addk returns the index of v in the constant pool, appending it when the
// cache has no matching entry. The cached index is only trusted when the
// stored constant has the same type and raw value, so key collisions cost a
// duplicate entry and never a wrong constant.
func (fs *funcState) addk(key any, v vm.Value) int {
	f := fs.f
	if k, ok := fs.kcache[key]; ok {
		if k < len(f.K) && f.K[k].Type == v.Type && vm.RawEqual(f.K[k], v) {
			return k
		}
	}
	k := len(f.K)
	if k >= vm.MaxArgAx {
		fs.errorLimit(vm.MaxArgAx, "constants")
	}
	fs.kcache[key] = k
	f.K = append(f.K, v)
	if v.Type == vm.TypeString {
		fs.p.barrier.ObjectBarrier(f, v.Str)
	}
	return k
}

func (fs *funcState) stringK(s *vm.String) int { return fs.addk(s, vm.Str(s)) }

func (fs *funcState) intK(n int64) int { return fs.addk(n, vm.Int(n)) }

// numberK adds a float constant. Integral floats are keyed by a slightly
// perturbed value so they never share a key with the equal integer.
func (fs *funcState) numberK(r float64) int {
	if _, ok := vm.FloatToInteger(r); !ok {
		return fs.addk(r, vm.Float(r))
	}
	if r == 0 {
		return fs.addk(fs.f, vm.Float(r))
	}
	const q = 1.0 / (1 << (53 - 1)) // 2^-(mantissa digits - 1)
	return fs.addk(r+r*q, vm.Float(r))
}

func (fs *funcState) boolK(b bool) int { return fs.addk(b, vm.Bool(b)) }

// nilK keys nil by the function state itself, since nil cannot be a key.
func (fs *funcState) nilK() int { return fs.addk(fs, vm.Nil) }

// fitsC reports whether i fits the signed C operand.
func fitsC(i int64) bool {
	return uint64(i)+vm.OffsetSC <= vm.MaxArgC
}

// fitsBx reports whether i fits the signed Bx operand.
func fitsBx(i int64) bool {
	return -vm.OffsetSBx <= i && i <= vm.MaxArgBx-vm.OffsetSBx
}

func int2sC(i int) int { return i + vm.OffsetSC }

// loadInt emits a load of integer i into reg.
func (fs *funcState) loadInt(reg int, i int64) {
	if fitsBx(i) {
		fs.codeAsBx(vm.OpLoadI, reg, int(i))
	} else {
		fs.codeK(reg, fs.intK(i))
	}
}

func (fs *funcState) loadFloat(reg int, f float64) {
	if fi, ok := vm.FloatToInteger(f); ok && fitsBx(fi) {
		fs.codeAsBx(vm.OpLoadF, reg, int(fi))
	} else {
		fs.codeK(reg, fs.numberK(f))
	}
}

// constToExp turns a compile-time constant back into an expression.
func constToExp(v vm.Value, e *expDesc) {
	switch v.Type {
	case vm.TypeInt:
		e.kind, e.intVal = vKInt, v.Int
	case vm.TypeFloat:
		e.kind, e.numVal = vKFlt, v.Float
	case vm.TypeFalse:
		e.kind = vFalse
	case vm.TypeTrue:
		e.kind = vTrue
	case vm.TypeNil:
		e.kind = vNil
	case vm.TypeString:
		e.kind, e.strVal = vKStr, v.Str
	}
}

// expToConst returns the value of e when it is a compile-time constant.
func (fs *funcState) expToConst(e *expDesc) (vm.Value, bool) {
	if e.hasJumps() {
		return vm.Nil, false
	}
	switch e.kind {
	case vFalse:
		return vm.Bool(false), true
	case vTrue:
		return vm.Bool(true), true
	case vNil:
		return vm.Nil, true
	case vKStr:
		return vm.Str(e.strVal), true
	case vConst:
		return fs.p.dyd.actVar[e.info].k, true
	}
	return e.numeral()
}

// str2K moves a string constant into the pool.
func (fs *funcState) str2K(e *expDesc) {
	e.info = fs.stringK(e.strVal)
	e.kind = vK
}

// isKstr reports whether e is a short string constant usable as a key
// operand.
func (fs *funcState) isKstr(e *expDesc) bool {
	return e.kind == vK && !e.hasJumps() && e.info <= vm.MaxArgB &&
		fs.f.K[e.info].IsShortString()
}

func isKint(e *expDesc) bool { return e.kind == vKInt && !e.hasJumps() }

// isCint reports whether e is an integer constant fitting the C operand.
func isCint(e *expDesc) bool {
	return isKint(e) && uint64(e.intVal) <= vm.MaxArgC
}

// isSCint reports whether e is an integer constant fitting a signed C
// operand.
func isSCint(e *expDesc) bool { return isKint(e) && fitsC(e.intVal) }

// isSCnumber reports whether e is a number with an integral value that fits
// a signed immediate, returning the encoded immediate.
func isSCnumber(e *expDesc) (imm int, isFloat bool, ok bool) {
	var i int64
	switch {
	case e.kind == vKInt:
		i = e.intVal
	case e.kind == vKFlt:
		fi, exact := vm.FloatToInteger(e.numVal)
		if !exact {
			return 0, false, false
		}
		i, isFloat = fi, true
	default:
		return 0, false, false
	}
	if e.hasJumps() || !fitsC(i) {
		return 0, false, false
	}
	return int2sC(int(i)), isFloat, true
}

// ---------------------------------------------------------------------------
// Constant folding
// ---------------------------------------------------------------------------

// validFold reports whether folding op over v1 and v2 cannot hide a
// run-time error.
func validFold(op vm.ArithOp, v1, v2 vm.Value) bool {
	switch {
	case op.IsBitwise():
		_, ok1 := v1.ToInteger()
		_, ok2 := v2.ToInteger()
		return ok1 && ok2
	case op == vm.ArithDiv, op == vm.ArithIDiv, op == vm.ArithMod:
		return v2.Number() != 0
	}
	return true
}

// constFolding tries to replace e1 by the result of "e1 op e2".
func (fs *funcState) constFolding(op vm.ArithOp, e1, e2 *expDesc) bool {
	v1, ok1 := e1.numeral()
	v2, ok2 := e2.numeral()
	if !ok1 || !ok2 || !validFold(op, v1, v2) {
		return false
	}
	res, ok := vm.RawArith(op, v1, v2)
	if !ok {
		return false
	}
	if res.Type == vm.TypeInt {
		e1.kind, e1.intVal = vKInt, res.Int
		return true
	}
	// NaN and zero are left alone so -0.0 is never produced here.
	if n := res.Float; math.IsNaN(n) || n == 0 {
		return false
	}
	e1.kind, e1.numVal = vKFlt, res.Float
	return true
}
