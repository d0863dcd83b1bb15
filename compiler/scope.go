package compiler

import (
	"fmt"

	"github.com/chazu/lunac/vm"
)

// ---------------------------------------------------------------------------
// Variable declarations
// ---------------------------------------------------------------------------

// newVarKind declares a variable that becomes visible once activated. It
// returns the variable's index relative to the function's first local.
func (p *parser) newVarKind(name *vm.String, kind varKind) int {
	fs := p.fs
	p.dyd.actVar = append(p.dyd.actVar, varDesc{kind: kind, name: name})
	return len(p.dyd.actVar) - 1 - fs.firstLocal
}

func (p *parser) newLocalVar(name *vm.String) int {
	return p.newVarKind(name, varRegular)
}

func (p *parser) newLocalVarLiteral(name string) int {
	return p.newLocalVar(p.lx.strings.Intern(name))
}

// registerLocalVar records debug information for a new local.
func (fs *funcState) registerLocalVar(name *vm.String) int {
	f := fs.f
	f.LocVars = append(f.LocVars, vm.LocVar{Name: name, StartPC: fs.pc()})
	fs.p.barrier.ObjectBarrier(f, name)
	return len(f.LocVars) - 1
}

// localDebugInfo returns the debug entry of a local, or nil for
// compile-time constants.
func (fs *funcState) localDebugInfo(vidx int) *vm.LocVar {
	vd := fs.localVarDesc(vidx)
	if !vd.kind.inRegister() {
		return nil
	}
	return &fs.f.LocVars[vd.pidx]
}

// adjustLocalVars activates the last nvars declared variables.
func (p *parser) adjustLocalVars(nvars int) {
	fs := p.fs
	level := fs.nVarStack()
	for i := 0; i < nvars; i++ {
		vidx := fs.nActVar
		fs.nActVar++
		vd := fs.localVarDesc(vidx)
		vd.reg = level
		level++
		vd.pidx = fs.registerLocalVar(vd.name)
		fs.checkLimit(level, MaxVars, "local variables")
	}
}

// removeVars closes the scope of variables down to level tolevel.
func (fs *funcState) removeVars(tolevel int) {
	dyd := fs.p.dyd
	n := fs.nActVar - tolevel
	for fs.nActVar > tolevel {
		fs.nActVar--
		if lv := fs.localDebugInfo(fs.nActVar); lv != nil {
			lv.EndPC = fs.pc()
		}
	}
	// descriptors are dropped only after their debug entries are closed
	dyd.actVar = dyd.actVar[:len(dyd.actVar)-n]
}

// ---------------------------------------------------------------------------
// Blocks
// ---------------------------------------------------------------------------

func (fs *funcState) enterBlock(bl *blockCnt, isLoop int) {
	dyd := fs.p.dyd
	bl.isLoop = isLoop
	bl.nActVar = fs.nActVar
	bl.firstLabel = len(dyd.label)
	bl.firstGoto = len(dyd.gt)
	bl.upval = false
	bl.insideTBC = fs.bl != nil && fs.bl.insideTBC
	bl.previous = fs.bl
	fs.bl = bl
	if fs.freeReg != fs.nVarStack() {
		panic("compiler: temporaries live across a block boundary")
	}
}

func (fs *funcState) leaveBlock() {
	bl := fs.bl
	p := fs.p
	stkLevel := fs.regLevel(bl.nActVar)
	if bl.previous != nil && bl.upval {
		fs.codeABC(vm.OpClose, stkLevel, 0, 0)
	}
	fs.freeReg = stkLevel
	if bl.isLoop == 2 {
		p.createLabel(p.breakName, 0, true)
	}
	// gotos are solved while the block's locals are still known, so a
	// scope error can name them
	p.solveGotos(bl)
	fs.removeVars(bl.nActVar)
	if bl.previous == nil && bl.firstGoto < len(p.dyd.gt) {
		p.undefGoto(&p.dyd.gt[bl.firstGoto])
	}
	fs.bl = bl.previous
}

// markUpval flags the block declaring local level as having a captured
// variable.
func (fs *funcState) markUpval(level int) {
	bl := fs.bl
	for bl.nActVar > level {
		bl = bl.previous
	}
	bl.upval = true
	fs.needClose = true
}

// markToBeClosed flags the current block as owning a to-be-closed
// variable.
func (fs *funcState) markToBeClosed() {
	bl := fs.bl
	bl.upval = true
	bl.insideTBC = true
	fs.needClose = true
}

func (p *parser) checkToClose(level int) {
	if level != -1 {
		fs := p.fs
		fs.markToBeClosed()
		fs.codeABC(vm.OpTBC, fs.regLevel(level), 0, 0)
	}
}

// ---------------------------------------------------------------------------
// Labels and gotos
// ---------------------------------------------------------------------------

func (p *parser) semError(format string, args ...any) {
	p.lx.fail(ErrSemantic, fmt.Sprintf(format, args...), "")
}

func (p *parser) undefGoto(gt *labelDesc) {
	p.semError("no visible label '%s' for <goto> at line %d", gt.name, gt.line)
}

func (p *parser) jumpScopeError(gt *labelDesc) {
	name := "*"
	if vd := p.fs.localVarDesc(gt.nActVar); vd.name != nil {
		name = vd.name.String()
	}
	p.semError("<goto %s> at line %d jumps into the scope of local '%s'", gt.name, gt.line, name)
}

// findLabel searches the visible labels from index ilb on.
func (p *parser) findLabel(name *vm.String, ilb int) *labelDesc {
	for i := ilb; i < len(p.dyd.label); i++ {
		if p.dyd.label[i].name == name {
			return &p.dyd.label[i]
		}
	}
	return nil
}

func (p *parser) newLabelEntry(list *[]labelDesc, name *vm.String, line, pc int) int {
	*list = append(*list, labelDesc{name: name, line: line, nActVar: p.fs.nActVar, pc: pc})
	return len(*list) - 1
}

// newGotoEntry emits a jump followed by a dead CLOSE that is replaced if
// the goto turns out to need one.
func (p *parser) newGotoEntry(name *vm.String, line int) {
	fs := p.fs
	pc := fs.jump()
	fs.codeABC(vm.OpClose, 0, 1, 0)
	p.newLabelEntry(&p.dyd.gt, name, line, pc)
}

// createLabel adds a label at the current position. A label that is the
// last statement of its block sees the block's locals as out of scope.
func (p *parser) createLabel(name *vm.String, line int, last bool) {
	fs := p.fs
	l := p.newLabelEntry(&p.dyd.label, name, line, fs.getLabel())
	if last {
		p.dyd.label[l].nActVar = fs.bl.nActVar
	}
}

// solveGoto patches pending goto g to label lb and removes it from the
// pending list. bup tells whether the label's block has captured
// variables.
func (p *parser) solveGoto(g int, lb *labelDesc, bup bool) {
	fs := p.fs
	gt := &p.dyd.gt[g]
	if gt.nActVar < lb.nActVar {
		p.jumpScopeError(gt)
	}
	if gt.close || (lb.nActVar < gt.nActVar && bup) {
		stkLevel := fs.regLevel(lb.nActVar)
		fs.f.Code[gt.pc+1] = fs.f.Code[gt.pc]
		fs.f.Code[gt.pc] = vm.CreateABCk(vm.OpClose, stkLevel, 0, 0, 0)
		gt.pc++
	}
	fs.patchList(gt.pc, lb.pc)
	p.dyd.gt = append(p.dyd.gt[:g], p.dyd.gt[g+1:]...)
}

// solveGotos resolves the pending gotos of a closing block against its
// labels and moves the rest out to the enclosing block.
func (p *parser) solveGotos(bl *blockCnt) {
	fs := p.fs
	outLevel := fs.regLevel(bl.nActVar)
	for igt := bl.firstGoto; igt < len(p.dyd.gt); {
		gt := &p.dyd.gt[igt]
		if lb := p.findLabel(gt.name, bl.firstLabel); lb != nil {
			p.solveGoto(igt, lb, bl.upval)
			continue
		}
		if bl.upval && fs.regLevel(gt.nActVar) > outLevel {
			gt.close = true
		}
		gt.nActVar = bl.nActVar
		igt++
	}
	p.dyd.label = p.dyd.label[:bl.firstLabel]
}

// ---------------------------------------------------------------------------
// Name resolution
// ---------------------------------------------------------------------------

// searchUpvalue returns the index of upvalue name, or -1.
func (fs *funcState) searchUpvalue(name *vm.String) int {
	for i, up := range fs.f.Upvalues {
		if up.Name == name {
			return i
		}
	}
	return -1
}

func (fs *funcState) allocUpvalue() *vm.UpvalueDesc {
	fs.checkLimit(len(fs.f.Upvalues)+1, MaxUpval, "upvalues")
	fs.f.Upvalues = append(fs.f.Upvalues, vm.UpvalueDesc{})
	return &fs.f.Upvalues[len(fs.f.Upvalues)-1]
}

// newUpvalue adds an upvalue for v, a local or upvalue of the enclosing
// function.
func (fs *funcState) newUpvalue(name *vm.String, v *expDesc) int {
	up := fs.allocUpvalue()
	prev := fs.prev
	if v.kind == vLocal {
		up.InStack = true
		up.Index = v.register
		up.Kind = uint8(prev.localVarDesc(v.varIndex).kind)
	} else {
		up.InStack = false
		up.Index = v.info
		up.Kind = prev.f.Upvalues[v.info].Kind
	}
	up.Name = name
	fs.p.barrier.ObjectBarrier(fs.f, name)
	return len(fs.f.Upvalues) - 1
}

// initVar makes e refer to local vidx.
func (fs *funcState) initVar(e *expDesc, vidx int) {
	e.init(vLocal, 0)
	e.varIndex = vidx
	e.register = fs.localVarDesc(vidx).reg
}

// searchVar looks name up among the active declarations of fs. On entry
// var must be a vGlobal; while scanning global declarations its info
// tracks the default: -1 when no declaration was seen, -2 when a named
// global declaration makes undeclared names an error, or the index of the
// innermost wildcard. It returns the kind found, or -1.
func (fs *funcState) searchVar(name *vm.String, v *expDesc) int {
	for i := fs.nActVar - 1; i >= 0; i-- {
		vd := fs.localVarDesc(i)
		if vd.kind.isGlobal() {
			switch {
			case vd.name == nil:
				if v.info < 0 {
					v.info = fs.firstLocal + i
				}
			case vd.name == name:
				v.init(vGlobal, fs.firstLocal+i)
				return int(vGlobal)
			case v.info == -1:
				v.info = -2
			}
			continue
		}
		if vd.name == name {
			if vd.kind == varCompTime {
				v.init(vConst, fs.firstLocal+i)
			} else {
				fs.initVar(v, i)
			}
			return int(v.kind)
		}
	}
	return -1
}

// singleVarAux resolves name in fs and its enclosing functions, creating
// upvalues along the way. base is false when fs is an enclosing function
// of the one where name was used.
func (fs *funcState) singleVarAux(name *vm.String, v *expDesc, base bool) {
	if k := fs.searchVar(name, v); k >= 0 {
		if expKind(k) == vLocal && !base {
			fs.markUpval(v.varIndex)
		}
		return
	}
	idx := fs.searchUpvalue(name)
	if idx < 0 {
		if fs.prev != nil {
			fs.prev.singleVarAux(name, v, false)
		}
		if v.kind != vLocal && v.kind != vUpval {
			return // global or compile-time constant
		}
		idx = fs.newUpvalue(name, v)
	}
	v.init(vUpval, idx)
}

// buildGlobal makes v the access _ENV[name].
func (p *parser) buildGlobal(name *vm.String, v *expDesc) {
	fs := p.fs
	v.init(vGlobal, -1)
	fs.singleVarAux(p.envName, v, true)
	if v.kind == vGlobal {
		p.semError("_ENV is global when accessing variable '%s'", name)
	}
	fs.exp2AnyRegUp(v)
	key := newStringExp(name)
	fs.indexed(v, &key)
}

// buildVar resolves a variable name, checking global declarations.
func (p *parser) buildVar(name *vm.String, v *expDesc) {
	v.init(vGlobal, -1)
	p.fs.singleVarAux(name, v, true)
	if v.kind != vGlobal {
		return
	}
	info := v.info
	if info == -2 {
		p.semError("variable '%s' not declared", name)
	}
	p.buildGlobal(name, v)
	if info != -1 && p.dyd.actVar[info].kind == globalConst {
		v.readOnly = true
	}
}

// checkReadOnly rejects assignment to const variables.
func (p *parser) checkReadOnly(e *expDesc) {
	fs := p.fs
	var name *vm.String
	switch e.kind {
	case vConst:
		name = p.dyd.actVar[e.info].name
	case vLocal:
		if vd := fs.localVarDesc(e.varIndex); vd.kind != varRegular {
			name = vd.name
		}
	case vUpval:
		if up := fs.f.Upvalues[e.info]; varKind(up.Kind) != varRegular {
			name = up.Name
		}
	case vIndexUp, vIndexStr, vIndexed:
		if e.readOnly {
			name = fs.f.K[e.keyStr].Str
		}
	default:
		return
	}
	if name != nil {
		p.semError("attempt to assign to const variable '%s'", name)
	}
}
