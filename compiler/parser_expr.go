package compiler

import (
	"github.com/chazu/lunac/vm"
)

// ---------------------------------------------------------------------------
// Variables and indexing
// ---------------------------------------------------------------------------

func (p *parser) singleVar(v *expDesc) {
	p.buildVar(p.strCheckName(), v)
}

// fieldSel parses ".name" or ":name".
func (p *parser) fieldSel(v *expDesc) {
	var key expDesc
	p.fs.exp2AnyRegUp(v)
	p.lx.next() // skip the dot or colon
	p.codeName(&key)
	p.fs.indexed(v, &key)
}

// yIndex parses "[exp]".
func (p *parser) yIndex(v *expDesc) {
	p.lx.next() // skip the '['
	p.expr(v)
	p.fs.exp2Val(v)
	p.checkNext(']')
}

// ---------------------------------------------------------------------------
// Table constructors
// ---------------------------------------------------------------------------

type consControl struct {
	v          expDesc  // last list item read
	t          *expDesc // table descriptor
	nh         int      // record elements
	na         int      // array elements already stored
	toStore    int      // array elements pending
	maxToStore int      // flush threshold
}

// maxToStore limits how many list items wait in registers before a
// SETLIST, keeping registers for nested expressions when they are scarce.
func (fs *funcState) maxToStore() int {
	free := MaxRegs - fs.freeReg
	switch {
	case free >= 160:
		return free / 5
	case free >= 80:
		return 10
	}
	return 1
}

func (p *parser) recField(cc *consControl) {
	fs := p.fs
	reg := fs.freeReg
	var tab, key, val expDesc
	if p.lx.t.Type == TokenName {
		p.codeName(&key)
	} else {
		p.yIndex(&key)
	}
	cc.nh++
	fs.checkLimit(cc.nh, maxConsItems, "items in a constructor")
	p.checkNext('=')
	tab = *cc.t
	fs.indexed(&tab, &key)
	p.expr(&val)
	fs.storeVar(&tab, &val)
	fs.freeReg = reg
}

func (p *parser) closeListField(cc *consControl) {
	fs := p.fs
	if cc.v.kind == vVoid {
		return
	}
	fs.exp2NextReg(&cc.v)
	cc.v.kind = vVoid
	if cc.toStore >= cc.maxToStore {
		fs.setList(cc.t.info, cc.na, cc.toStore)
		cc.na += cc.toStore
		cc.toStore = 0
	}
}

func (p *parser) lastListField(cc *consControl) {
	fs := p.fs
	if cc.toStore == 0 {
		return
	}
	if cc.v.kind.hasMultRet() {
		fs.setMultRet(&cc.v)
		fs.setList(cc.t.info, cc.na, vm.MultRet)
		cc.na-- // the open item has no known count
	} else {
		if cc.v.kind != vVoid {
			fs.exp2NextReg(&cc.v)
		}
		fs.setList(cc.t.info, cc.na, cc.toStore)
	}
	cc.na += cc.toStore
}

func (p *parser) listField(cc *consControl) {
	p.expr(&cc.v)
	cc.toStore++
	p.fs.checkLimit(cc.na+cc.toStore, maxConsItems, "items in a constructor")
}

func (p *parser) field(cc *consControl) {
	switch p.lx.t.Type {
	case TokenName:
		if p.lx.lookahead() != '=' {
			p.listField(cc)
		} else {
			p.recField(cc)
		}
	case '[':
		p.recField(cc)
	default:
		p.listField(cc)
	}
}

func (p *parser) constructor(t *expDesc) {
	fs := p.fs
	line := p.lx.lineNumber
	pc := fs.codeVABCk(vm.OpNewTable, 0, 0, 0, 0)
	fs.code(0) // room for the extra argument
	cc := consControl{t: t}
	t.init(vNonReloc, fs.freeReg) // the table sits on the stack top
	fs.reserveRegs(1)
	cc.v.init(vVoid, 0)
	p.checkNext('{')
	cc.maxToStore = fs.maxToStore()
	for p.lx.t.Type != '}' {
		p.closeListField(&cc)
		p.field(&cc)
		if !p.testNext(',') && !p.testNext(';') {
			break
		}
	}
	p.checkMatch('}', '{', line)
	p.lastListField(&cc)
	fs.setTableSize(pc, t.info, cc.na, cc.nh)
}

// ---------------------------------------------------------------------------
// Function bodies
// ---------------------------------------------------------------------------

func (p *parser) parList() {
	fs := p.fs
	f := fs.f
	nparams := 0
	isVararg := false
	if p.lx.t.Type != ')' {
		for {
			switch p.lx.t.Type {
			case TokenName:
				p.newLocalVar(p.strCheckName())
				nparams++
			case TokenDots:
				p.lx.next()
				isVararg = true
			default:
				p.lx.syntaxError("<name> or '...' expected")
			}
			if isVararg || !p.testNext(',') {
				break
			}
		}
	}
	p.adjustLocalVars(nparams)
	f.NumParams = fs.nActVar
	if isVararg {
		fs.setVararg(f.NumParams)
	}
	fs.reserveRegs(fs.nActVar)
}

// body parses a function body and leaves its closure in e.
func (p *parser) body(e *expDesc, isMethod bool, line int) {
	var bl blockCnt
	nfs := &funcState{f: p.addPrototype()}
	nfs.f.LineDefined = line
	p.openFunc(nfs, &bl)
	p.checkNext('(')
	if isMethod {
		p.newLocalVarLiteral("self")
		p.adjustLocalVars(1)
	}
	p.parList()
	p.checkNext(')')
	p.statList()
	nfs.f.LastLineDefined = p.lx.lineNumber
	p.checkMatch(TokenEnd, TokenFunction, line)
	p.codeClosure(e)
	p.closeFunc()
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// exprList parses a comma separated list, leaving all but the last value
// in consecutive registers. It returns the number of expressions.
func (p *parser) exprList(v *expDesc) int {
	n := 1
	p.expr(v)
	for p.testNext(',') {
		p.fs.exp2NextReg(v)
		p.expr(v)
		n++
	}
	return n
}

func (p *parser) funcArgs(f *expDesc, line int) {
	fs := p.fs
	var args expDesc
	switch p.lx.t.Type {
	case '(':
		p.lx.next()
		if p.lx.t.Type == ')' {
			args.init(vVoid, 0)
		} else {
			p.exprList(&args)
			if args.kind.hasMultRet() {
				fs.setMultRet(&args)
			}
		}
		p.checkMatch(')', '(', line)
	case '{':
		p.constructor(&args)
	case TokenString:
		args = newStringExp(p.lx.t.Str)
		p.lx.next()
	default:
		p.lx.syntaxError("function arguments expected")
	}
	base := f.info
	var nparams int
	if args.kind.hasMultRet() {
		nparams = vm.MultRet
	} else {
		if args.kind != vVoid {
			fs.exp2NextReg(&args)
		}
		nparams = fs.freeReg - (base + 1)
	}
	f.init(vCall, fs.codeABC(vm.OpCall, base, nparams+1, 2))
	fs.fixLine(line)
	fs.freeReg = base + 1 // the call leaves one result in base
}

func (p *parser) primaryExp(v *expDesc) {
	switch p.lx.t.Type {
	case '(':
		line := p.lx.lineNumber
		p.lx.next()
		p.expr(v)
		p.checkMatch(')', '(', line)
		p.fs.dischargeVars(v)
	case TokenName:
		p.singleVar(v)
	default:
		p.lx.syntaxError("unexpected symbol")
	}
}

// suffixedExp parses primaryexp { '.' NAME | '[' exp ']' | ':' NAME funcargs | funcargs }.
func (p *parser) suffixedExp(v *expDesc) {
	fs := p.fs
	line := p.lx.lineNumber
	p.primaryExp(v)
	for {
		switch p.lx.t.Type {
		case '.':
			p.fieldSel(v)
		case '[':
			var key expDesc
			fs.exp2AnyRegUp(v)
			p.yIndex(&key)
			fs.indexed(v, &key)
		case ':':
			var key expDesc
			p.lx.next()
			p.codeName(&key)
			fs.self(v, &key)
			p.funcArgs(v, line)
		case '(', TokenString, '{':
			fs.exp2NextReg(v)
			p.funcArgs(v, line)
		default:
			return
		}
	}
}

func (p *parser) simpleExp(v *expDesc) {
	t := &p.lx.t
	switch t.Type {
	case TokenFloat:
		v.init(vKFlt, 0)
		v.numVal = t.Num
	case TokenInteger:
		v.init(vKInt, 0)
		v.intVal = t.Int
	case TokenString:
		*v = newStringExp(t.Str)
	case TokenNil:
		v.init(vNil, 0)
	case TokenTrue:
		v.init(vTrue, 0)
	case TokenFalse:
		v.init(vFalse, 0)
	case TokenDots:
		fs := p.fs
		p.checkCondition(fs.f.IsVararg(), "cannot use '...' outside a vararg function")
		v.init(vVararg, fs.codeABC(vm.OpVararg, 0, 0, 1))
	case '{':
		p.constructor(v)
		return
	case TokenFunction:
		p.lx.next()
		p.body(v, false, p.lx.lineNumber)
		return
	default:
		p.suffixedExp(v)
		return
	}
	p.lx.next()
}

func unaryOp(tok TokenType) unOpr {
	switch tok {
	case TokenNot:
		return oprNot
	case '-':
		return oprMinus
	case '~':
		return oprBNot
	case '#':
		return oprLen
	}
	return oprNoUnOpr
}

func binaryOp(tok TokenType) binOpr {
	switch tok {
	case '+':
		return oprAdd
	case '-':
		return oprSub
	case '*':
		return oprMul
	case '%':
		return oprMod
	case '^':
		return oprPow
	case '/':
		return oprDiv
	case TokenIDiv:
		return oprIDiv
	case '&':
		return oprBAnd
	case '|':
		return oprBOr
	case '~':
		return oprBXor
	case TokenShl:
		return oprShl
	case TokenShr:
		return oprShr
	case TokenConcat:
		return oprConcat
	case TokenNE:
		return oprNe
	case TokenEq:
		return oprEq
	case '<':
		return oprLt
	case TokenLE:
		return oprLe
	case '>':
		return oprGt
	case TokenGE:
		return oprGe
	case TokenAnd:
		return oprAnd
	case TokenOr:
		return oprOr
	}
	return oprNoBinOpr
}

// priority holds the left and right binding power of each binary
// operator, in binOpr order.
var priority = [...]struct{ left, right int }{
	{10, 10}, {10, 10}, // + -
	{11, 11}, {11, 11}, // * %
	{14, 13},           // ^ (right associative)
	{11, 11}, {11, 11}, // / //
	{6, 6}, {4, 4},     // & |
	{5, 5},             // ~
	{7, 7}, {7, 7},     // << >>
	{9, 8},             // .. (right associative)
	{3, 3}, {3, 3},     // == <
	{3, 3}, {3, 3},     // <= ~=
	{3, 3}, {3, 3},     // > >=
	{2, 2}, {1, 1},     // and or
}

const unaryPriority = 12

// subExpr parses an expression whose binary operators bind tighter than
// limit and returns the first operator it did not consume.
func (p *parser) subExpr(v *expDesc, limit int) binOpr {
	p.enterLevel()
	if uop := unaryOp(p.lx.t.Type); uop != oprNoUnOpr {
		line := p.lx.lineNumber
		p.lx.next()
		p.subExpr(v, unaryPriority)
		p.fs.prefix(uop, v, line)
	} else {
		p.simpleExp(v)
	}
	op := binaryOp(p.lx.t.Type)
	for op != oprNoBinOpr && priority[op].left > limit {
		var v2 expDesc
		line := p.lx.lineNumber
		p.lx.next()
		p.fs.infix(op, v)
		next := p.subExpr(&v2, priority[op].right)
		p.fs.posfix(op, v, &v2, line)
		op = next
	}
	p.leaveLevel()
	return op
}

func (p *parser) expr(v *expDesc) {
	p.subExpr(v, 0)
}
