package compiler

import "github.com/chazu/lunac/vm"

// binOpr enumerates binary operators. The arithmetic and bitwise ones are
// in vm.ArithOp order.
type binOpr int

const (
	oprAdd binOpr = iota
	oprSub
	oprMul
	oprMod
	oprPow
	oprDiv
	oprIDiv
	oprBAnd
	oprBOr
	oprBXor
	oprShl
	oprShr
	oprConcat
	oprEq
	oprLt
	oprLe
	oprNe
	oprGt
	oprGe
	oprAnd
	oprOr
	oprNoBinOpr
)

type unOpr int

const (
	oprMinus unOpr = iota
	oprBNot
	oprNot
	oprLen
	oprNoUnOpr
)

// foldable reports whether constant operands of op can be folded.
func (op binOpr) foldable() bool { return op <= oprShr }

func (op binOpr) arith() vm.ArithOp { return vm.ArithOp(op - oprAdd) }

func (op binOpr) event() vm.Event { return vm.Event(int(op-oprAdd) + int(vm.EventAdd)) }

// opcode maps op to the opcode of the family starting at base.
func (op binOpr) opcode(first binOpr, base vm.Opcode) vm.Opcode {
	return vm.Opcode(int(op-first) + int(base))
}

// ---------------------------------------------------------------------------
// Unary operators
// ---------------------------------------------------------------------------

func (fs *funcState) codeUnExpVal(op vm.Opcode, e *expDesc, line int) {
	r := fs.exp2AnyReg(e)
	fs.freeExp(e)
	e.info = fs.codeABC(op, 0, r, 0)
	e.kind = vReloc
	fs.fixLine(line)
}

// prefix applies a unary operator to e.
func (fs *funcState) prefix(op unOpr, e *expDesc, line int) {
	fake := expDesc{kind: vKInt, t: noJump, f: noJump}
	fs.dischargeVars(e)
	switch op {
	case oprMinus:
		if fs.constFolding(vm.ArithUnm, e, &fake) {
			return
		}
		fs.codeUnExpVal(vm.OpUnm, e, line)
	case oprBNot:
		if fs.constFolding(vm.ArithBNot, e, &fake) {
			return
		}
		fs.codeUnExpVal(vm.OpBNot, e, line)
	case oprLen:
		fs.codeUnExpVal(vm.OpLen, e, line)
	case oprNot:
		fs.codeNot(e)
	}
}

// ---------------------------------------------------------------------------
// Binary operators
// ---------------------------------------------------------------------------

// infix prepares the left operand v before the right one is read.
func (fs *funcState) infix(op binOpr, v *expDesc) {
	fs.dischargeVars(v)
	switch op {
	case oprAnd:
		fs.goIfTrue(v)
	case oprOr:
		fs.goIfFalse(v)
	case oprConcat:
		fs.exp2NextReg(v)
	case oprAdd, oprSub, oprMul, oprDiv, oprIDiv, oprMod, oprPow,
		oprBAnd, oprBOr, oprBXor, oprShl, oprShr:
		// numerals may still be folded or become immediates
		if !v.isNumeral() {
			fs.exp2AnyReg(v)
		}
	case oprEq, oprNe:
		if !v.isNumeral() {
			fs.exp2RK(v)
		}
	case oprLt, oprLe, oprGt, oprGe:
		if _, _, ok := isSCnumber(v); !ok {
			fs.exp2AnyReg(v)
		}
	}
}

// posfix finishes "e1 op e2", leaving the result in e1.
func (fs *funcState) posfix(op binOpr, e1, e2 *expDesc, line int) {
	fs.dischargeVars(e2)
	if op.foldable() && fs.constFolding(op.arith(), e1, e2) {
		return
	}
	switch op {
	case oprAnd:
		fs.concat(&e2.f, e1.f)
		*e1 = *e2
	case oprOr:
		fs.concat(&e2.t, e1.t)
		*e1 = *e2
	case oprConcat:
		fs.exp2NextReg(e2)
		fs.codeConcat(e1, e2, line)
	case oprAdd, oprMul:
		fs.codeCommutative(op, e1, e2, line)
	case oprSub:
		if fs.finishBinExpNeg(e1, e2, vm.OpAddI, line, vm.EventSub) {
			break // coded as r1 + -I
		}
		fs.codeArith(op, e1, e2, false, line)
	case oprDiv, oprIDiv, oprMod, oprPow:
		fs.codeArith(op, e1, e2, false, line)
	case oprBAnd, oprBOr, oprBXor:
		fs.codeBitwise(op, e1, e2, line)
	case oprShl:
		switch {
		case isSCint(e1):
			*e1, *e2 = *e2, *e1
			fs.codeBinI(vm.OpShlI, e1, e2, true, line, vm.EventShl) // I << r2
		case fs.finishBinExpNeg(e1, e2, vm.OpShrI, line, vm.EventShl):
			// coded as r1 >> -I
		default:
			fs.codeBinExpVal(op, e1, e2, line)
		}
	case oprShr:
		if isSCint(e2) {
			fs.codeBinI(vm.OpShrI, e1, e2, false, line, vm.EventShr)
		} else {
			fs.codeBinExpVal(op, e1, e2, line)
		}
	case oprEq, oprNe:
		fs.codeEq(op, e1, e2)
	case oprGt, oprGe:
		// a > b is b < a, a >= b is b <= a
		*e1, *e2 = *e2, *e1
		fs.codeOrder(op-oprGt+oprLt, e1, e2)
	case oprLt, oprLe:
		fs.codeOrder(op, e1, e2)
	}
}

// codeConcat emits e1 .. e2, extending a CONCAT that produced e2.
func (fs *funcState) codeConcat(e1, e2 *expDesc, line int) {
	if ie2 := fs.previousInstruction(); ie2 != nil && ie2.Opcode() == vm.OpConcat {
		n := ie2.B()
		fs.freeExp(e2)
		ie2.SetA(e1.info)
		ie2.SetB(n + 1)
		return
	}
	fs.codeABC(vm.OpConcat, e1.info, 2, 0)
	fs.freeExp(e2)
	fs.fixLine(line)
}

// finishBinExpVal emits an arithmetic instruction followed by its
// metamethod fallback.
func (fs *funcState) finishBinExpVal(e1, e2 *expDesc, op vm.Opcode, v2 int, flip bool, line int, mmop vm.Opcode, event vm.Event) {
	v1 := fs.exp2AnyReg(e1)
	pc := fs.codeABC(op, 0, v1, v2)
	fs.freeExps(e1, e2)
	e1.info = pc
	e1.kind = vReloc
	fs.fixLine(line)
	fs.codeABCk(mmop, v1, v2, int(event), b2i(flip))
	fs.fixLine(line)
}

// codeBinExpVal emits the register-register form.
func (fs *funcState) codeBinExpVal(op binOpr, e1, e2 *expDesc, line int) {
	v2 := fs.exp2AnyReg(e2)
	fs.finishBinExpVal(e1, e2, op.opcode(oprAdd, vm.OpAdd), v2, false, line, vm.OpMMBin, op.event())
}

// codeBinI emits the immediate form; e2 is a small integer constant.
func (fs *funcState) codeBinI(op vm.Opcode, e1, e2 *expDesc, flip bool, line int, event vm.Event) {
	v2 := int2sC(int(e2.intVal))
	fs.finishBinExpVal(e1, e2, op, v2, flip, line, vm.OpMMBinI, event)
}

// codeBinK emits the constant form; e2 is a K expression.
func (fs *funcState) codeBinK(op binOpr, e1, e2 *expDesc, flip bool, line int) {
	fs.finishBinExpVal(e1, e2, op.opcode(oprAdd, vm.OpAddK), e2.info, flip, line, vm.OpMMBinK, op.event())
}

// finishBinExpNeg codes "e1 op e2" as the immediate op with -e2, for
// subtraction and left shift by small constants.
func (fs *funcState) finishBinExpNeg(e1, e2 *expDesc, op vm.Opcode, line int, event vm.Event) bool {
	if !isKint(e2) {
		return false
	}
	i2 := e2.intVal
	if !fitsC(i2) || !fitsC(-i2) {
		return false
	}
	v2 := int(i2)
	fs.finishBinExpVal(e1, e2, op, int2sC(-v2), false, line, vm.OpMMBinI, event)
	// the metamethod sees the original operand
	fs.f.Code[fs.pc()-1].SetB(int2sC(v2))
	return true
}

func (fs *funcState) codeArith(op binOpr, e1, e2 *expDesc, flip bool, line int) {
	if e2.isNumeral() && fs.exp2K(e2) {
		fs.codeBinK(op, e1, e2, flip, line)
		return
	}
	if flip {
		*e1, *e2 = *e2, *e1 // back to source order
	}
	fs.codeBinExpVal(op, e1, e2, line)
}

// codeCommutative moves a numeric first operand to the second position,
// remembering the swap for the metamethod.
func (fs *funcState) codeCommutative(op binOpr, e1, e2 *expDesc, line int) {
	flip := false
	if e1.isNumeral() {
		*e1, *e2 = *e2, *e1
		flip = true
	}
	if op == oprAdd && isSCint(e2) {
		fs.codeBinI(vm.OpAddI, e1, e2, flip, line, vm.EventAdd)
		return
	}
	fs.codeArith(op, e1, e2, flip, line)
}

func (fs *funcState) codeBitwise(op binOpr, e1, e2 *expDesc, line int) {
	flip := false
	if e1.kind == vKInt {
		*e1, *e2 = *e2, *e1
		flip = true
	}
	if e2.kind == vKInt && fs.exp2K(e2) {
		fs.codeBinK(op, e1, e2, flip, line)
		return
	}
	if flip {
		*e1, *e2 = *e2, *e1
	}
	fs.codeBinExpVal(op, e1, e2, line)
}

// codeOrder emits "<" or "<=", using an immediate when either side is a
// small number.
func (fs *funcState) codeOrder(op binOpr, e1, e2 *expDesc) {
	var r1, r2 int
	var vop vm.Opcode
	isFloat := false
	if im, fl, ok := isSCnumber(e2); ok {
		r1 = fs.exp2AnyReg(e1)
		r2, isFloat = im, fl
		vop = op.opcode(oprLt, vm.OpLtI)
	} else if im, fl, ok := isSCnumber(e1); ok {
		// A < B becomes B > A, A <= B becomes B >= A
		r1 = fs.exp2AnyReg(e2)
		r2, isFloat = im, fl
		vop = op.opcode(oprLt, vm.OpGtI)
	} else {
		r1 = fs.exp2AnyReg(e1)
		r2 = fs.exp2AnyReg(e2)
		vop = op.opcode(oprLt, vm.OpLt)
	}
	fs.freeExps(e1, e2)
	e1.info = fs.condJump(vop, r1, r2, b2i(isFloat), 1)
	e1.kind = vJmp
}

// codeEq emits "==" or "~=". A constant left operand was kept by infix and
// is swapped to the right.
func (fs *funcState) codeEq(op binOpr, e1, e2 *expDesc) {
	var r2 int
	var vop vm.Opcode
	isFloat := false
	if e1.kind != vNonReloc {
		*e1, *e2 = *e2, *e1
	}
	r1 := fs.exp2AnyReg(e1)
	if im, fl, ok := isSCnumber(e2); ok {
		vop, r2, isFloat = vm.OpEqI, im, fl
	} else if fs.exp2RK(e2) {
		vop, r2 = vm.OpEqK, e2.info
	} else {
		vop, r2 = vm.OpEq, fs.exp2AnyReg(e2)
	}
	fs.freeExps(e1, e2)
	e1.info = fs.condJump(vop, r1, r2, b2i(isFloat), b2i(op == oprEq))
	e1.kind = vJmp
}
