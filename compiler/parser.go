package compiler

import (
	"fmt"

	"github.com/chazu/lunac/vm"
)

// ---------------------------------------------------------------------------
// Parser: syntax-directed translation, one pass
// ---------------------------------------------------------------------------

type parser struct {
	lx        *lexer
	fs        *funcState
	dyd       *dynData
	envName   *vm.String // "_ENV"
	breakName *vm.String // label name used by break
	barrier   vm.Barrier
	level     int // nesting of syntactic structures
}

func (p *parser) enterLevel() {
	p.level++
	if p.level >= MaxCCalls {
		p.lx.fail(ErrLimit, "C stack overflow", p.lx.currentNear())
	}
}

func (p *parser) leaveLevel() { p.level-- }

func (p *parser) errorExpected(tok TokenType) {
	p.lx.syntaxError(tok.String() + " expected")
}

func (p *parser) testNext(tok TokenType) bool {
	if p.lx.t.Type == tok {
		p.lx.next()
		return true
	}
	return false
}

func (p *parser) check(tok TokenType) {
	if p.lx.t.Type != tok {
		p.errorExpected(tok)
	}
}

func (p *parser) checkNext(tok TokenType) {
	p.check(tok)
	p.lx.next()
}

func (p *parser) checkCondition(ok bool, msg string) {
	if !ok {
		p.lx.syntaxError(msg)
	}
}

// checkMatch consumes what, the closing pair of who opened at line where.
func (p *parser) checkMatch(what, who TokenType, where int) {
	if p.testNext(what) {
		return
	}
	if where == p.lx.lineNumber {
		p.errorExpected(what)
	}
	p.lx.syntaxError(fmt.Sprintf("%s expected (to close %s at line %d)", what, who, where))
}

func (p *parser) strCheckName() *vm.String {
	p.check(TokenName)
	s := p.lx.t.Str
	p.lx.next()
	return s
}

func (p *parser) codeName(e *expDesc) {
	*e = newStringExp(p.strCheckName())
}

// blockFollow reports whether the current token ends a block.
func (p *parser) blockFollow(withUntil bool) bool {
	switch p.lx.t.Type {
	case TokenElse, TokenElseif, TokenEnd, TokenEOS:
		return true
	case TokenUntil:
		return withUntil
	}
	return false
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

func (p *parser) openFunc(fs *funcState, bl *blockCnt) {
	f := fs.f
	fs.prev = p.fs
	fs.p = p
	p.fs = fs
	fs.previousLine = f.LineDefined
	fs.firstLocal = len(p.dyd.actVar)
	fs.firstLabel = len(p.dyd.label)
	fs.kcache = make(map[any]int)
	f.Source = p.lx.source
	p.barrier.ObjectBarrier(f, f.Source)
	f.MaxStackSize = 2 // registers 0 and 1 are always valid
	fs.enterBlock(bl, 0)
}

func (p *parser) closeFunc() {
	fs := p.fs
	fs.ret(fs.nVarStack(), 0)
	fs.leaveBlock()
	fs.finish()
	f := fs.f
	f.Code = clip(f.Code)
	f.LineInfo = clip(f.LineInfo)
	f.AbsLineInfo = clip(f.AbsLineInfo)
	f.K = clip(f.K)
	f.Prototypes = clip(f.Prototypes)
	f.LocVars = clip(f.LocVars)
	f.Upvalues = clip(f.Upvalues)
	p.fs = fs.prev
}

// clip trims a slice to its exact length.
func clip[S ~[]E, E any](s S) S {
	if len(s) == 0 {
		return nil
	}
	return s[:len(s):len(s)]
}

// addPrototype creates the prototype of a nested function.
func (p *parser) addPrototype() *vm.Prototype {
	fs := p.fs
	f := fs.f
	if len(f.Prototypes) >= vm.MaxArgBx {
		fs.errorLimit(vm.MaxArgBx, "functions")
	}
	clp := &vm.Prototype{}
	f.Prototypes = append(f.Prototypes, clp)
	p.barrier.ObjectBarrier(f, clp)
	return clp
}

// codeClosure emits the CLOSURE for the last nested prototype in the
// enclosing function.
func (p *parser) codeClosure(v *expDesc) {
	fs := p.fs.prev
	v.init(vReloc, fs.codeABx(vm.OpClosure, 0, len(fs.f.Prototypes)-1))
	fs.exp2NextReg(v)
}

func (fs *funcState) setVararg(nparams int) {
	fs.f.Flag |= vm.FlagVararg
	fs.codeABC(vm.OpVarargPrep, nparams, 0, 0)
}

// mainFunc compiles the main chunk: a vararg function with _ENV as its
// only upvalue.
func (p *parser) mainFunc(fs *funcState) {
	var bl blockCnt
	p.openFunc(fs, &bl)
	fs.setVararg(0)
	env := fs.allocUpvalue()
	env.InStack = true
	env.Index = 0
	env.Kind = uint8(varRegular)
	env.Name = p.envName
	p.barrier.ObjectBarrier(fs.f, env.Name)
	p.lx.next()
	p.statList()
	p.check(TokenEOS)
	p.closeFunc()
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *parser) statList() {
	for !p.blockFollow(true) {
		if p.lx.t.Type == TokenReturn {
			p.statement()
			return // must be the last statement
		}
		p.statement()
	}
}

func (p *parser) statement() {
	line := p.lx.lineNumber
	p.enterLevel()
	switch p.lx.t.Type {
	case ';':
		p.lx.next()
	case TokenIf:
		p.ifStat(line)
	case TokenWhile:
		p.whileStat(line)
	case TokenDo:
		p.lx.next()
		p.block()
		p.checkMatch(TokenEnd, TokenDo, line)
	case TokenFor:
		p.forStat(line)
	case TokenRepeat:
		p.repeatStat(line)
	case TokenFunction:
		p.funcStat(line)
	case TokenLocal:
		p.lx.next()
		if p.testNext(TokenFunction) {
			p.localFunc()
		} else {
			p.localStat()
		}
	case TokenGlobal:
		p.globalStatFunc(line)
	case TokenDBColon:
		p.lx.next()
		p.labelStat(p.strCheckName(), line)
	case TokenReturn:
		p.lx.next()
		p.retStat()
	case TokenBreak:
		p.breakStat(line)
	case TokenGoto:
		p.lx.next()
		p.newGotoEntry(p.strCheckName(), line)
	default:
		p.exprStat()
	}
	fs := p.fs
	if fs.f.MaxStackSize < fs.freeReg || fs.freeReg < fs.nVarStack() {
		panic("compiler: register level out of range after statement")
	}
	fs.freeReg = fs.nVarStack() // free temporaries
	p.leaveLevel()
}

func (p *parser) block() {
	var bl blockCnt
	p.fs.enterBlock(&bl, 0)
	p.statList()
	p.fs.leaveBlock()
}

// cond parses a condition and returns its false exit list.
func (p *parser) cond() int {
	var v expDesc
	p.expr(&v)
	if v.kind == vNil {
		v.kind = vFalse // falses are all equal here
	}
	p.fs.goIfTrue(&v)
	return v.f
}

func (p *parser) testThenBlock(escapeList *int) {
	fs := p.fs
	p.lx.next() // skip if or elseif
	condFalse := p.cond()
	p.checkNext(TokenThen)
	p.block()
	if t := p.lx.t.Type; t == TokenElse || t == TokenElseif {
		fs.concat(escapeList, fs.jump())
	}
	fs.patchToHere(condFalse)
}

func (p *parser) ifStat(line int) {
	escapeList := noJump
	p.testThenBlock(&escapeList)
	for p.lx.t.Type == TokenElseif {
		p.testThenBlock(&escapeList)
	}
	if p.testNext(TokenElse) {
		p.block()
	}
	p.checkMatch(TokenEnd, TokenIf, line)
	p.fs.patchToHere(escapeList)
}

func (p *parser) whileStat(line int) {
	fs := p.fs
	var bl blockCnt
	p.lx.next()
	whileInit := fs.getLabel()
	condExit := p.cond()
	fs.enterBlock(&bl, 1)
	p.checkNext(TokenDo)
	p.block()
	fs.jumpTo(whileInit)
	p.checkMatch(TokenEnd, TokenWhile, line)
	fs.leaveBlock()
	fs.patchToHere(condExit)
}

func (p *parser) repeatStat(line int) {
	fs := p.fs
	repeatInit := fs.getLabel()
	var bl1, bl2 blockCnt
	fs.enterBlock(&bl1, 1) // loop block
	fs.enterBlock(&bl2, 0) // scope block
	p.lx.next()
	p.statList()
	p.checkMatch(TokenUntil, TokenRepeat, line)
	condExit := p.cond() // the condition sees the body's locals
	fs.leaveBlock()
	if bl2.upval {
		exit := fs.jump() // normal exit jumps over the fix
		fs.patchToHere(condExit)
		fs.codeABC(vm.OpClose, fs.regLevel(bl2.nActVar), 0, 0)
		condExit = fs.jump() // repeat after closing upvalues
		fs.patchToHere(exit)
	}
	fs.patchList(condExit, repeatInit)
	fs.leaveBlock()
}

// exp1 parses an expression into the next register.
func (p *parser) exp1() {
	var e expDesc
	p.expr(&e)
	p.fs.exp2NextReg(&e)
}

// fixForJump points the for instruction at pc to dest.
func (fs *funcState) fixForJump(pc, dest int, back bool) {
	offset := dest - (pc + 1)
	if back {
		offset = -offset
	}
	if offset > vm.MaxArgBx {
		fs.syntaxError("control structure too long")
	}
	fs.f.Code[pc].SetBx(offset)
}

func (p *parser) forBody(base, line, nvars int, isGen bool) {
	fs := p.fs
	prepOp, loopOp := vm.OpForPrep, vm.OpForLoop
	if isGen {
		prepOp, loopOp = vm.OpTForPrep, vm.OpTForLoop
	}
	var bl blockCnt
	p.checkNext(TokenDo)
	prep := fs.codeABx(prepOp, base, 0)
	fs.enterBlock(&bl, 0) // scope for declared variables
	p.adjustLocalVars(nvars)
	fs.reserveRegs(nvars)
	p.block()
	fs.leaveBlock()
	fs.fixForJump(prep, fs.getLabel(), false)
	if isGen {
		fs.codeABC(vm.OpTForCall, base, 0, nvars)
		fs.fixLine(line)
	}
	endFor := fs.codeABx(loopOp, base, 0)
	fs.fixForJump(endFor, prep+1, true)
	fs.fixLine(line)
}

func (p *parser) forNum(varName *vm.String, line int) {
	fs := p.fs
	base := fs.freeReg
	p.newLocalVarLiteral("(for state)")
	p.newLocalVarLiteral("(for state)")
	p.newLocalVarLiteral("(for state)")
	p.newVarKind(varName, varConst)
	p.checkNext('=')
	p.exp1() // initial value
	p.checkNext(',')
	p.exp1() // limit
	if p.testNext(',') {
		p.exp1() // step
	} else {
		fs.loadInt(fs.freeReg, 1)
		fs.reserveRegs(1)
	}
	p.adjustLocalVars(3) // internal state
	p.forBody(base, line, 1, false)
}

func (p *parser) forList(indexName *vm.String) {
	fs := p.fs
	var e expDesc
	nvars := 5 // generator, state, control, closing, indexName
	base := fs.freeReg
	p.newLocalVarLiteral("(for state)")
	p.newLocalVarLiteral("(for state)")
	p.newLocalVarLiteral("(for state)")
	p.newLocalVarLiteral("(for state)")
	p.newVarKind(indexName, varConst)
	for p.testNext(',') {
		p.newLocalVar(p.strCheckName())
		nvars++
	}
	p.checkNext(TokenIn)
	line := p.lx.lineNumber
	p.adjustAssign(4, p.exprList(&e), &e)
	p.adjustLocalVars(4) // internal state
	fs.markToBeClosed()  // the closing value must be closed
	fs.checkStack(3)     // room to call the generator
	p.forBody(base, line, nvars-4, true)
}

func (p *parser) forStat(line int) {
	fs := p.fs
	var bl blockCnt
	fs.enterBlock(&bl, 1) // loop scope, where break jumps to
	p.lx.next()
	varName := p.strCheckName()
	switch p.lx.t.Type {
	case '=':
		p.forNum(varName, line)
	case ',', TokenIn:
		p.forList(varName)
	default:
		p.lx.syntaxError("'=' or 'in' expected")
	}
	p.checkMatch(TokenEnd, TokenFor, line)
	fs.leaveBlock()
}

func (p *parser) funcName(v *expDesc) bool {
	isMethod := false
	p.singleVar(v)
	for p.lx.t.Type == '.' {
		p.fieldSel(v)
	}
	if p.lx.t.Type == ':' {
		isMethod = true
		p.fieldSel(v)
	}
	return isMethod
}

func (p *parser) funcStat(line int) {
	var v, b expDesc
	p.lx.next()
	isMethod := p.funcName(&v)
	p.checkReadOnly(&v)
	p.body(&b, isMethod, line)
	p.fs.storeVar(&v, &b)
	p.fs.fixLine(line) // the definition happens in the first line
}

func (p *parser) localFunc() {
	var b expDesc
	fs := p.fs
	fvar := fs.nActVar
	p.newLocalVar(p.strCheckName())
	p.adjustLocalVars(1) // visible inside its own body
	p.body(&b, false, p.lx.lineNumber)
	// debug information only sees the variable from here on
	fs.localDebugInfo(fvar).StartPC = fs.pc()
}

// varAttribute reads an optional <const> or <close> attribute.
func (p *parser) varAttribute(def varKind) varKind {
	if !p.testNext('<') {
		return def
	}
	attr := p.strCheckName()
	p.checkNext('>')
	switch attr.String() {
	case "const":
		return varConst
	case "close":
		return varToClose
	}
	p.semError("unknown attribute '%s'", attr)
	return def
}

func (p *parser) globalAttribute(def varKind) varKind {
	switch k := p.varAttribute(def); k {
	case varToClose:
		p.semError("global variables cannot be to-be-closed")
	case varConst:
		return globalConst
	default:
		return k
	}
	return def
}

func (p *parser) localStat() {
	fs := p.fs
	toClose := -1
	var vidx, nvars, nexps int
	var e expDesc
	defKind := p.varAttribute(varRegular)
	for {
		name := p.strCheckName()
		kind := p.varAttribute(defKind)
		vidx = p.newVarKind(name, kind)
		if kind == varToClose {
			if toClose != -1 {
				p.semError("multiple to-be-closed variables in local list")
			}
			toClose = fs.nActVar + nvars
		}
		nvars++
		if !p.testNext(',') {
			break
		}
	}
	if p.testNext('=') {
		nexps = p.exprList(&e)
	} else {
		e.init(vVoid, 0)
	}
	last := fs.localVarDesc(vidx)
	if nvars == nexps && last.kind == varConst {
		if k, ok := fs.expToConst(&e); ok {
			last.kind = varCompTime
			last.k = k
			p.adjustLocalVars(nvars - 1) // all but the constant
			fs.nActVar++                 // which is still visible
			p.checkToClose(toClose)
			return
		}
	}
	p.adjustAssign(nvars, nexps, &e)
	p.adjustLocalVars(nvars)
	p.checkToClose(toClose)
}

// ---------------------------------------------------------------------------
// Global declarations
// ---------------------------------------------------------------------------

func (p *parser) globalStatFunc(line int) {
	p.lx.next()
	if p.testNext(TokenFunction) {
		p.globalFunc(line)
	} else {
		p.globalStat()
	}
}

// globalStat parses "global [attrib] *" or a list of global names.
func (p *parser) globalStat() {
	defKind := p.globalAttribute(globalRegular)
	if !p.testNext('*') {
		p.globalNames(defKind)
		return
	}
	p.newVarKind(nil, defKind) // a nil name stands for "*"
	p.fs.nActVar++
}

func (p *parser) globalNames(defKind varKind) {
	fs := p.fs
	nvars := 0
	lastIdx := 0
	for {
		name := p.strCheckName()
		kind := p.globalAttribute(defKind)
		lastIdx = p.newVarKind(name, kind)
		nvars++
		if !p.testNext(',') {
			break
		}
	}
	if p.testNext('=') {
		p.initGlobal(nvars, lastIdx-nvars+1, 0, p.lx.lineNumber)
	}
	fs.nActVar += nvars // declarations take effect after the initializers
}

// initGlobal builds the targets of "global a, b = ..." recursively so the
// values are stored last to first after the run-time checks.
func (p *parser) initGlobal(nvars, firstIdx, n, line int) {
	fs := p.fs
	if n == nvars {
		var e expDesc
		nexps := p.exprList(&e)
		p.adjustAssign(nvars, nexps, &e)
		return
	}
	var v expDesc
	name := fs.localVarDesc(firstIdx + n).name
	p.buildGlobal(name, &v)
	p.enterLevel()
	p.initGlobal(nvars, firstIdx, n+1, line)
	p.leaveLevel()
	p.checkGlobal(name, line)
	p.storeVarTop(&v)
}

// checkGlobal emits the check that global name is still nil before its
// initialization.
func (p *parser) checkGlobal(name *vm.String, line int) {
	var v expDesc
	p.buildGlobal(name, &v)
	p.fs.checkGlobal(&v, v.keyStr, line)
}

// storeVarTop assigns the value on top of the stack to v.
func (p *parser) storeVarTop(v *expDesc) {
	fs := p.fs
	var e expDesc
	e.init(vNonReloc, fs.freeReg-1)
	fs.storeVar(v, &e)
}

func (p *parser) globalFunc(line int) {
	var v, b expDesc
	fs := p.fs
	name := p.strCheckName()
	p.newVarKind(name, globalRegular)
	fs.nActVar++ // visible inside its own body
	p.buildGlobal(name, &v)
	p.body(&b, false, p.lx.lineNumber)
	p.checkGlobal(name, line)
	fs.storeVar(&v, &b)
	fs.fixLine(line)
}

// ---------------------------------------------------------------------------
// Labels, jumps and returns
// ---------------------------------------------------------------------------

func (p *parser) checkRepeated(name *vm.String) {
	if lb := p.findLabel(name, p.fs.firstLabel); lb != nil {
		p.semError("label '%s' already defined on line %d", name, lb.line)
	}
}

func (p *parser) labelStat(name *vm.String, line int) {
	p.checkNext(TokenDBColon)
	for t := p.lx.t.Type; t == ';' || t == TokenDBColon; t = p.lx.t.Type {
		p.statement() // skip other no-op statements
	}
	p.checkRepeated(name)
	p.createLabel(name, line, p.blockFollow(false))
}

func (p *parser) breakStat(line int) {
	bl := p.fs.bl
	for bl != nil && bl.isLoop == 0 {
		bl = bl.previous
	}
	if bl == nil {
		p.lx.syntaxError("break outside a loop")
	}
	bl.isLoop = 2 // the loop has pending breaks
	p.lx.next()
	p.newGotoEntry(p.breakName, line)
}

func (p *parser) retStat() {
	fs := p.fs
	var e expDesc
	first := fs.nVarStack()
	var nret int
	if p.blockFollow(true) || p.lx.t.Type == ';' {
		nret = 0
	} else {
		nret = p.exprList(&e)
		if e.kind.hasMultRet() {
			fs.setMultRet(&e)
			if e.kind == vCall && nret == 1 && !fs.bl.insideTBC {
				fs.f.Code[e.info].SetOpcode(vm.OpTailCall)
			}
			nret = vm.MultRet
		} else if nret == 1 {
			first = fs.exp2AnyReg(&e) // can use the original slot
		} else {
			fs.exp2NextReg(&e)
		}
	}
	fs.ret(first, nret)
	p.testNext(';')
}

// ---------------------------------------------------------------------------
// Assignment
// ---------------------------------------------------------------------------

// lhsAssign is one target of a multiple assignment.
type lhsAssign struct {
	prev *lhsAssign
	v    expDesc
}

// checkConflict copies v to a fresh register when an earlier target of
// the same assignment uses it as table or key, since the assignments run
// right to left.
func (p *parser) checkConflict(lh *lhsAssign, v *expDesc) {
	fs := p.fs
	extra := fs.freeReg
	conflict := false
	for ; lh != nil; lh = lh.prev {
		if !lh.v.kind.isIndexed() {
			continue
		}
		if lh.v.kind == vIndexUp {
			if v.kind == vUpval && lh.v.table == v.info {
				conflict = true
				lh.v.kind = vIndexStr
				lh.v.table = extra
			}
			continue
		}
		if v.kind == vLocal && lh.v.table == v.register {
			conflict = true
			lh.v.table = extra
		}
		if lh.v.kind == vIndexed && v.kind == vLocal && lh.v.index == v.register {
			conflict = true
			lh.v.index = extra
		}
	}
	if conflict {
		if v.kind == vLocal {
			fs.codeABC(vm.OpMove, extra, v.register, 0)
		} else {
			fs.codeABC(vm.OpGetUpval, extra, v.info, 0)
		}
		fs.reserveRegs(1)
	}
}

// adjustAssign makes nexps expressions produce nvars values.
func (p *parser) adjustAssign(nvars, nexps int, e *expDesc) {
	fs := p.fs
	needed := nvars - nexps
	if e.kind.hasMultRet() {
		fs.setReturns(e, max(needed+1, 0))
	} else {
		if e.kind != vVoid {
			fs.exp2NextReg(e)
		}
		if needed > 0 {
			fs.loadNil(fs.freeReg, needed)
		}
	}
	if needed > 0 {
		fs.reserveRegs(needed)
	} else {
		fs.freeReg += needed // drop extra values
	}
}

func (p *parser) restAssign(lh *lhsAssign, nvars int) {
	fs := p.fs
	var e expDesc
	p.checkCondition(lh.v.kind.isVar(), "syntax error")
	p.checkReadOnly(&lh.v)
	if p.testNext(',') {
		nv := &lhsAssign{prev: lh}
		p.suffixedExp(&nv.v)
		if !nv.v.kind.isIndexed() {
			p.checkConflict(lh, &nv.v)
		}
		p.enterLevel()
		p.restAssign(nv, nvars+1)
		p.leaveLevel()
	} else {
		p.checkNext('=')
		nexps := p.exprList(&e)
		if nexps != nvars {
			p.adjustAssign(nvars, nexps, &e)
		} else {
			fs.setOneRet(&e)
			fs.storeVar(&lh.v, &e)
			return
		}
	}
	e.init(vNonReloc, fs.freeReg-1) // default assignment
	fs.storeVar(&lh.v, &e)
}

func (p *parser) exprStat() {
	fs := p.fs
	v := &lhsAssign{}
	p.suffixedExp(&v.v)
	if t := p.lx.t.Type; t == '=' || t == ',' {
		p.restAssign(v, 1)
		return
	}
	p.checkCondition(v.v.kind == vCall, "syntax error")
	fs.f.Code[v.v.info].SetC(1) // call statement uses no results
}
