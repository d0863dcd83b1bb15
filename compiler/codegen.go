package compiler

import (
	"math/bits"

	"github.com/chazu/lunac/vm"
)

// Line information limits.
const (
	MaxIWthAbs  = 128  // maximum run of relative line entries
	LimLineDiff = 0x80 // relative line deltas must stay below this
)

// maxIndexRK is the largest constant index usable as an RK operand.
const maxIndexRK = vm.MaxArgB

// ---------------------------------------------------------------------------
// Emitting instructions
// ---------------------------------------------------------------------------

// code appends i, recording the line of the last token read.
func (fs *funcState) code(i vm.Instruction) int {
	fs.f.Code = append(fs.f.Code, i)
	fs.saveLineInfo(fs.p.lx.lastLine)
	return fs.pc() - 1
}

func (fs *funcState) codeABCk(op vm.Opcode, a, b, c, k int) int {
	return fs.code(vm.CreateABCk(op, a, b, c, k))
}

func (fs *funcState) codeABC(op vm.Opcode, a, b, c int) int {
	return fs.codeABCk(op, a, b, c, 0)
}

func (fs *funcState) codeVABCk(op vm.Opcode, a, b, c, k int) int {
	return fs.code(vm.CreateVABCk(op, a, b, c, k))
}

func (fs *funcState) codeABx(op vm.Opcode, a, bx int) int {
	return fs.code(vm.CreateABx(op, a, bx))
}

func (fs *funcState) codeAsBx(op vm.Opcode, a, sbx int) int {
	return fs.code(vm.CreateAsBx(op, a, sbx))
}

func (fs *funcState) codesJ(op vm.Opcode, sj, k int) int {
	return fs.code(vm.CreateSJ(op, sj, k))
}

func (fs *funcState) codeExtraArg(a int) int {
	return fs.code(vm.CreateAx(vm.OpExtraArg, a))
}

// codeK loads constant k into reg, through an extra argument when the
// index does not fit Bx.
func (fs *funcState) codeK(reg, k int) int {
	if k <= vm.MaxArgBx {
		return fs.codeABx(vm.OpLoadK, reg, k)
	}
	p := fs.codeABx(vm.OpLoadKX, reg, 0)
	fs.codeExtraArg(k)
	return p
}

// previousInstruction returns the last instruction when it cannot be a
// jump target, so it is safe to merge with.
func (fs *funcState) previousInstruction() *vm.Instruction {
	if fs.pc() > fs.lastTarget {
		return &fs.f.Code[fs.pc()-1]
	}
	return nil
}

// loadNil sets n registers starting at from to nil, merging with a
// preceding LOADNIL over an adjacent range.
func (fs *funcState) loadNil(from, n int) {
	l := from + n - 1
	if prev := fs.previousInstruction(); prev != nil && prev.Opcode() == vm.OpLoadNil {
		pfrom := prev.A()
		pl := pfrom + prev.B()
		if (pfrom <= from && from <= pl+1) || (from <= pfrom && pfrom <= l+1) {
			from = min(from, pfrom)
			l = max(l, pl)
			prev.SetA(from)
			prev.SetB(l - from)
			return
		}
	}
	fs.codeABC(vm.OpLoadNil, from, n-1, 0)
}

func (fs *funcState) ret(first, nret int) {
	var op vm.Opcode
	switch nret {
	case 0:
		op = vm.OpReturn0
	case 1:
		op = vm.OpReturn1
	default:
		op = vm.OpReturn
	}
	fs.codeABC(op, first, nret+1, 0)
}

// ---------------------------------------------------------------------------
// Line information
// ---------------------------------------------------------------------------

func (fs *funcState) saveLineInfo(line int) {
	f := fs.f
	lineDiff := line - fs.previousLine
	pc := fs.pc() - 1
	abs := lineDiff >= LimLineDiff || lineDiff <= -LimLineDiff
	if abs || fs.iwthabs >= MaxIWthAbs {
		f.AbsLineInfo = append(f.AbsLineInfo, vm.AbsLineInfo{PC: pc, Line: line})
		f.LineInfo = append(f.LineInfo, vm.AbsLineInfoMarker)
		fs.iwthabs = 1
	} else {
		fs.iwthabs++
		f.LineInfo = append(f.LineInfo, int8(lineDiff))
	}
	fs.previousLine = line
}

// removeLastLineInfo undoes the line information of the last instruction.
func (fs *funcState) removeLastLineInfo() {
	f := fs.f
	pc := len(f.LineInfo) - 1
	if d := f.LineInfo[pc]; d != vm.AbsLineInfoMarker {
		fs.previousLine -= int(d)
		fs.iwthabs--
	} else {
		f.AbsLineInfo = f.AbsLineInfo[:len(f.AbsLineInfo)-1]
		fs.iwthabs = MaxIWthAbs + 1 // force the next entry to be absolute
	}
	f.LineInfo = f.LineInfo[:pc]
}

func (fs *funcState) removeLastInstruction() {
	fs.removeLastLineInfo()
	fs.f.Code = fs.f.Code[:fs.pc()-1]
}

// fixLine changes the line of the last instruction.
func (fs *funcState) fixLine(line int) {
	fs.removeLastLineInfo()
	fs.saveLineInfo(line)
}

// ---------------------------------------------------------------------------
// Discharging expressions
// ---------------------------------------------------------------------------

// setReturns fixes the result count of an open call or vararg.
func (fs *funcState) setReturns(e *expDesc, nresults int) {
	pc := &fs.f.Code[e.info]
	pc.SetC(nresults + 1)
	if e.kind == vVararg {
		pc.SetA(fs.freeReg)
		fs.reserveRegs(1)
	}
}

func (fs *funcState) setMultRet(e *expDesc) { fs.setReturns(e, vm.MultRet) }

// setOneRet makes an open call or vararg produce exactly one value.
func (fs *funcState) setOneRet(e *expDesc) {
	switch e.kind {
	case vCall:
		e.kind = vNonReloc
		e.info = fs.f.Code[e.info].A()
	case vVararg:
		fs.f.Code[e.info].SetC(2)
		e.kind = vReloc
	}
}

// dischargeVars turns a variable reference into a value.
func (fs *funcState) dischargeVars(e *expDesc) {
	switch e.kind {
	case vConst:
		constToExp(fs.p.dyd.actVar[e.info].k, e)
	case vLocal:
		e.info = e.register
		e.kind = vNonReloc
	case vUpval:
		e.info = fs.codeABC(vm.OpGetUpval, 0, e.info, 0)
		e.kind = vReloc
	case vIndexUp:
		e.info = fs.codeABC(vm.OpGetTabUp, 0, e.table, e.index)
		e.kind = vReloc
	case vIndexI:
		fs.freeRegister(e.table)
		e.info = fs.codeABC(vm.OpGetI, 0, e.table, e.index)
		e.kind = vReloc
	case vIndexStr:
		fs.freeRegister(e.table)
		e.info = fs.codeABC(vm.OpGetField, 0, e.table, e.index)
		e.kind = vReloc
	case vIndexed:
		fs.freeRegs(e.table, e.index)
		e.info = fs.codeABC(vm.OpGetTable, 0, e.table, e.index)
		e.kind = vReloc
	case vVararg, vCall:
		fs.setOneRet(e)
	}
}

// discharge2Reg puts the value of e in reg, ignoring its jump lists.
func (fs *funcState) discharge2Reg(e *expDesc, reg int) {
	fs.dischargeVars(e)
	switch e.kind {
	case vNil:
		fs.loadNil(reg, 1)
	case vFalse:
		fs.codeABC(vm.OpLoadFalse, reg, 0, 0)
	case vTrue:
		fs.codeABC(vm.OpLoadTrue, reg, 0, 0)
	case vKStr:
		fs.str2K(e)
		fs.codeK(reg, e.info)
	case vK:
		fs.codeK(reg, e.info)
	case vKFlt:
		fs.loadFloat(reg, e.numVal)
	case vKInt:
		fs.loadInt(reg, e.intVal)
	case vReloc:
		fs.f.Code[e.info].SetA(reg)
	case vNonReloc:
		if reg != e.info {
			fs.codeABC(vm.OpMove, reg, e.info, 0)
		}
	default: // vJmp: nothing to do yet
		return
	}
	e.info = reg
	e.kind = vNonReloc
}

func (fs *funcState) discharge2AnyReg(e *expDesc) {
	if e.kind != vNonReloc {
		fs.reserveRegs(1)
		fs.discharge2Reg(e, fs.freeReg-1)
	}
}

func (fs *funcState) codeLoadBool(a int, op vm.Opcode) int {
	fs.getLabel() // these may be jump targets
	return fs.codeABC(op, a, 0, 0)
}

// exp2Reg puts the final value of e, jump lists included, in reg.
func (fs *funcState) exp2Reg(e *expDesc, reg int) {
	fs.discharge2Reg(e, reg)
	if e.kind == vJmp {
		fs.concat(&e.t, e.info)
	}
	if e.hasJumps() {
		pf, pt := noJump, noJump // positions of the boolean loads
		if fs.needValue(e.t) || fs.needValue(e.f) {
			fj := noJump
			if e.kind != vJmp {
				fj = fs.jump()
			}
			pf = fs.codeLoadBool(reg, vm.OpLFalseSkip)
			pt = fs.codeLoadBool(reg, vm.OpLoadTrue)
			fs.patchToHere(fj)
		}
		final := fs.getLabel()
		fs.patchListAux(e.f, final, reg, pf)
		fs.patchListAux(e.t, final, reg, pt)
	}
	e.f, e.t = noJump, noJump
	e.info = reg
	e.kind = vNonReloc
}

// exp2NextReg puts the value of e in the next free register.
func (fs *funcState) exp2NextReg(e *expDesc) {
	fs.dischargeVars(e)
	fs.freeExp(e)
	fs.reserveRegs(1)
	fs.exp2Reg(e, fs.freeReg-1)
}

// exp2AnyReg puts the value of e in some register and returns it.
func (fs *funcState) exp2AnyReg(e *expDesc) int {
	fs.dischargeVars(e)
	if e.kind == vNonReloc {
		if !e.hasJumps() {
			return e.info
		}
		if e.info >= fs.nVarStack() { // not a local: reuse its register
			fs.exp2Reg(e, e.info)
			return e.info
		}
	}
	fs.exp2NextReg(e)
	return e.info
}

// exp2AnyRegUp is exp2AnyReg, except that upvalues may stay upvalues.
func (fs *funcState) exp2AnyRegUp(e *expDesc) {
	if e.kind != vUpval || e.hasJumps() {
		fs.exp2AnyReg(e)
	}
}

// exp2Val makes e a value in a register or a constant.
func (fs *funcState) exp2Val(e *expDesc) {
	if e.hasJumps() {
		fs.exp2AnyReg(e)
	} else {
		fs.dischargeVars(e)
	}
}

// exp2K turns a constant e into a pool entry usable as an RK operand.
func (fs *funcState) exp2K(e *expDesc) bool {
	if e.hasJumps() {
		return false
	}
	var info int
	switch e.kind {
	case vTrue:
		info = fs.boolK(true)
	case vFalse:
		info = fs.boolK(false)
	case vNil:
		info = fs.nilK()
	case vKInt:
		info = fs.intK(e.intVal)
	case vKFlt:
		info = fs.numberK(e.numVal)
	case vKStr:
		info = fs.stringK(e.strVal)
	case vK:
		info = e.info
	default:
		return false
	}
	if info > maxIndexRK {
		return false
	}
	e.kind = vK
	e.info = info
	return true
}

// exp2RK returns true with e as a constant operand, or false with e in a
// register.
func (fs *funcState) exp2RK(e *expDesc) bool {
	if fs.exp2K(e) {
		return true
	}
	fs.exp2AnyReg(e)
	return false
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (fs *funcState) codeABRK(op vm.Opcode, a, b int, ec *expDesc) {
	k := fs.exp2RK(ec)
	fs.codeABCk(op, a, b, ec.info, b2i(k))
}

// ---------------------------------------------------------------------------
// Variables and tables
// ---------------------------------------------------------------------------

// storeVar emits the assignment of ex to the variable var.
func (fs *funcState) storeVar(v, ex *expDesc) {
	switch v.kind {
	case vLocal:
		fs.freeExp(ex)
		fs.exp2Reg(ex, v.register)
		return
	case vUpval:
		e := fs.exp2AnyReg(ex)
		fs.codeABC(vm.OpSetUpval, e, v.info, 0)
	case vIndexUp:
		fs.codeABRK(vm.OpSetTabUp, v.table, v.index, ex)
	case vIndexI:
		fs.codeABRK(vm.OpSetI, v.table, v.index, ex)
	case vIndexStr:
		fs.codeABRK(vm.OpSetField, v.table, v.index, ex)
	case vIndexed:
		fs.codeABRK(vm.OpSetTable, v.table, v.index, ex)
	default:
		panic("compiler: storeVar on a non-variable")
	}
	fs.freeExp(ex)
}

// self emits "e:key" as SELF, leaving the method and receiver in two
// consecutive registers.
func (fs *funcState) self(e, key *expDesc) {
	fs.exp2AnyReg(e)
	ereg := e.info
	fs.freeExp(e)
	e.info = fs.freeReg
	e.kind = vNonReloc
	fs.reserveRegs(2)
	fs.codeABRK(vm.OpSelf, e.info, ereg, key)
	fs.freeExp(key)
}

// indexed turns t into the indexed expression t[k]. t must be a local, a
// register or an upvalue.
func (fs *funcState) indexed(t, k *expDesc) {
	if k.kind == vKStr {
		fs.str2K(k)
	}
	t.readOnly = false
	t.keyStr = -1
	if k.kind == vK && fs.f.K[k.info].Type == vm.TypeString {
		t.keyStr = k.info
	}
	if t.kind == vUpval && !fs.isKstr(k) {
		fs.exp2AnyReg(t) // upvalue indexed by a non-constant key
	}
	if t.kind == vUpval {
		t.table = t.info
		t.index = k.info
		t.kind = vIndexUp
		return
	}
	if t.kind == vLocal {
		t.table = t.register
	} else {
		t.table = t.info
	}
	switch {
	case fs.isKstr(k):
		t.index = k.info
		t.kind = vIndexStr
	case isCint(k):
		t.index = int(k.intVal)
		t.kind = vIndexI
	default:
		t.index = fs.exp2AnyReg(k)
		t.kind = vIndexed
	}
}

// setTableSize fills in the NEWTABLE at pc and its extra argument.
func (fs *funcState) setTableSize(pc, ra, asize, hsize int) {
	extra := asize / (vm.MaxArgVC + 1)
	rc := asize % (vm.MaxArgVC + 1)
	if hsize != 0 {
		hsize = ceilLog2(uint(hsize)) + 1
	}
	fs.f.Code[pc] = vm.CreateVABCk(vm.OpNewTable, ra, hsize, rc, b2i(extra > 0))
	fs.f.Code[pc+1] = vm.CreateAx(vm.OpExtraArg, extra)
}

func ceilLog2(x uint) int { return bits.Len(x - 1) }

// setList stores tostore pending list items into the table at base,
// nelems being the number of items already stored.
func (fs *funcState) setList(base, nelems, tostore int) {
	if tostore == vm.MultRet {
		tostore = 0
	}
	if nelems <= vm.MaxArgVC {
		fs.codeVABCk(vm.OpSetList, base, tostore, nelems, 0)
	} else {
		extra := nelems / (vm.MaxArgVC + 1)
		nelems %= vm.MaxArgVC + 1
		fs.codeVABCk(vm.OpSetList, base, tostore, nelems, 1)
		fs.codeExtraArg(extra)
	}
	fs.freeReg = base + 1
}

// checkGlobal emits the run-time check that the global in v is still
// undefined; k is the constant index of its name.
func (fs *funcState) checkGlobal(v *expDesc, k, line int) {
	fs.exp2AnyReg(v)
	fs.fixLine(line)
	if k >= vm.MaxArgBx {
		k = 0
	} else {
		k++
	}
	fs.codeABx(vm.OpErrNNil, v.info, k)
	fs.fixLine(line)
	fs.freeExp(v)
}

// ---------------------------------------------------------------------------
// Final pass
// ---------------------------------------------------------------------------

// finish adjusts returns for functions that close upvalues or take
// varargs and retargets jumps to their final destination.
func (fs *funcState) finish() {
	p := fs.f
	for i := range p.Code {
		pc := &p.Code[i]
		switch pc.Opcode() {
		case vm.OpReturn0, vm.OpReturn1:
			if !fs.needClose && !p.IsVararg() {
				break
			}
			pc.SetOpcode(vm.OpReturn)
			fs.markReturn(pc)
		case vm.OpReturn, vm.OpTailCall:
			fs.markReturn(pc)
		case vm.OpJmp:
			fs.fixJump(i, fs.finalTarget(i))
		}
	}
}

func (fs *funcState) markReturn(pc *vm.Instruction) {
	if fs.needClose {
		pc.SetK(1)
	}
	if fs.f.IsVararg() {
		pc.SetC(fs.f.NumParams + 1)
	}
}
