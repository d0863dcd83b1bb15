package compiler

import "github.com/chazu/lunac/vm"

// ---------------------------------------------------------------------------
// Jump lists
// ---------------------------------------------------------------------------
//
// A pending jump list is threaded through the sJ fields of its jumps: each
// member holds the offset to the next one and the last holds noJump.

// getJump returns the next member of the list after pc.
func (fs *funcState) getJump(pc int) int {
	offset := fs.f.Code[pc].SJ()
	if offset == noJump {
		return noJump
	}
	return pc + 1 + offset
}

// fixJump points the jump at pc to dest.
func (fs *funcState) fixJump(pc, dest int) {
	offset := dest - (pc + 1)
	if !(-vm.OffsetSJ <= offset && offset <= vm.MaxArgSJ-vm.OffsetSJ) {
		fs.syntaxError("control structure too long")
	}
	fs.f.Code[pc].SetSJ(offset)
}

// concat appends list l2 to the list in *l1.
func (fs *funcState) concat(l1 *int, l2 int) {
	switch {
	case l2 == noJump:
	case *l1 == noJump:
		*l1 = l2
	default:
		list := *l1
		for next := fs.getJump(list); next != noJump; next = fs.getJump(list) {
			list = next
		}
		fs.fixJump(list, l2)
	}
}

// jump emits an unconditional jump to be patched later.
func (fs *funcState) jump() int {
	return fs.codesJ(vm.OpJmp, noJump, 0)
}

func (fs *funcState) jumpTo(target int) {
	fs.patchList(fs.jump(), target)
}

func (fs *funcState) condJump(op vm.Opcode, a, b, c, k int) int {
	fs.codeABCk(op, a, b, c, k)
	return fs.jump()
}

// getLabel marks the current pc as a jump target and returns it.
func (fs *funcState) getLabel() int {
	fs.lastTarget = fs.pc()
	return fs.lastTarget
}

// jumpControl returns the instruction that controls the jump at pc: the
// preceding test, if any, or the jump itself.
func (fs *funcState) jumpControl(pc int) *vm.Instruction {
	if pc >= 1 && fs.f.Code[pc-1].IsTest() {
		return &fs.f.Code[pc-1]
	}
	return &fs.f.Code[pc]
}

// patchTestReg makes the TESTSET controlling node store into reg, or turns
// it into a plain TEST when no value is wanted. It reports false for any
// other controlling instruction.
func (fs *funcState) patchTestReg(node, reg int) bool {
	i := fs.jumpControl(node)
	if i.Opcode() != vm.OpTestSet {
		return false
	}
	if reg != vm.NoReg && reg != i.B() {
		i.SetA(reg)
	} else {
		*i = vm.CreateABCk(vm.OpTest, i.B(), 0, 0, i.K())
	}
	return true
}

// removeValues drops the values produced by every test in list.
func (fs *funcState) removeValues(list int) {
	for ; list != noJump; list = fs.getJump(list) {
		fs.patchTestReg(list, vm.NoReg)
	}
}

// patchListAux sends value-producing tests to vtarget with their value in
// reg, and every other jump to dtarget.
func (fs *funcState) patchListAux(list, vtarget, reg, dtarget int) {
	for list != noJump {
		next := fs.getJump(list)
		if fs.patchTestReg(list, reg) {
			fs.fixJump(list, vtarget)
		} else {
			fs.fixJump(list, dtarget)
		}
		list = next
	}
}

func (fs *funcState) patchList(list, target int) {
	fs.patchListAux(list, target, vm.NoReg, target)
}

func (fs *funcState) patchToHere(list int) {
	fs.patchList(list, fs.getLabel())
}

// needValue reports whether some jump in list is not a TESTSET, and so
// needs a boolean materialized for it.
func (fs *funcState) needValue(list int) bool {
	for ; list != noJump; list = fs.getJump(list) {
		if fs.jumpControl(list).Opcode() != vm.OpTestSet {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Conditions
// ---------------------------------------------------------------------------

func (fs *funcState) negateCondition(e *expDesc) {
	pc := fs.jumpControl(e.info)
	pc.SetK(pc.K() ^ 1)
}

// jumpOnCond emits a jump taken when e is cond.
func (fs *funcState) jumpOnCond(e *expDesc, cond int) int {
	if e.kind == vReloc {
		ie := fs.f.Code[e.info]
		if ie.Opcode() == vm.OpNot {
			fs.removeLastInstruction()
			return fs.condJump(vm.OpTest, ie.B(), 0, 0, cond^1)
		}
	}
	fs.discharge2AnyReg(e)
	fs.freeExp(e)
	return fs.condJump(vm.OpTestSet, vm.NoReg, e.info, 0, cond)
}

// goIfTrue emits code to fall through when e is true and jump otherwise.
func (fs *funcState) goIfTrue(e *expDesc) {
	var pc int
	fs.dischargeVars(e)
	switch e.kind {
	case vJmp:
		fs.negateCondition(e)
		pc = e.info
	case vK, vKFlt, vKInt, vKStr, vTrue:
		pc = noJump // always true
	default:
		pc = fs.jumpOnCond(e, 0)
	}
	fs.concat(&e.f, pc)
	fs.patchToHere(e.t)
	e.t = noJump
}

// goIfFalse emits code to fall through when e is false and jump otherwise.
func (fs *funcState) goIfFalse(e *expDesc) {
	var pc int
	fs.dischargeVars(e)
	switch e.kind {
	case vJmp:
		pc = e.info
	case vNil, vFalse:
		pc = noJump // always false
	default:
		pc = fs.jumpOnCond(e, 1)
	}
	fs.concat(&e.t, pc)
	fs.patchToHere(e.f)
	e.f = noJump
}

func (fs *funcState) codeNot(e *expDesc) {
	switch e.kind {
	case vNil, vFalse:
		e.kind = vTrue
	case vK, vKFlt, vKInt, vKStr, vTrue:
		e.kind = vFalse
	case vJmp:
		fs.negateCondition(e)
	case vReloc, vNonReloc:
		fs.discharge2AnyReg(e)
		fs.freeExp(e)
		e.info = fs.codeABC(vm.OpNot, 0, e.info, 0)
		e.kind = vReloc
	default:
		panic("compiler: codeNot on unexpected expression")
	}
	e.f, e.t = e.t, e.f
	fs.removeValues(e.f)
	fs.removeValues(e.t)
}

// finalTarget follows a chain of jumps from pc.
func (fs *funcState) finalTarget(i int) int {
	for count := 0; count < 100; count++ {
		pc := fs.f.Code[i]
		if pc.Opcode() != vm.OpJmp {
			break
		}
		i += pc.SJ() + 1
	}
	return i
}
