package compiler

import "github.com/chazu/lunac/vm"

// expKind selects which payload of an expDesc is valid.
type expKind uint8

const (
	vVoid     expKind = iota // empty expression list, or no value
	vNil                     // constant nil
	vTrue                    // constant true
	vFalse                   // constant false
	vK                       // constant in K; info = index
	vKFlt                    // floating constant; numVal
	vKInt                    // integer constant; intVal
	vKStr                    // string constant; strVal
	vNonReloc                // value in a fixed register; info = register
	vLocal                   // local variable; register, varIndex
	vGlobal                  // global variable; info = declaration index or -1/-2
	vUpval                   // upvalue; info = upvalue index
	vConst                   // compile-time constant; info = absolute actvar index
	vIndexed                 // table in register, key in register
	vIndexUp                 // table in upvalue, key is a short string constant
	vIndexI                  // table in register, key is an integer immediate
	vIndexStr                // table in register, key is a short string constant
	vJmp                     // test or comparison; info = pc of its jump
	vReloc                   // result register still to be set; info = pc
	vCall                    // open call; info = pc
	vVararg                  // vararg expression; info = pc
)

// isVar reports whether the expression can be assigned to.
func (k expKind) isVar() bool { return vLocal <= k && k <= vIndexStr }

func (k expKind) isIndexed() bool { return vIndexed <= k && k <= vIndexStr }

func (k expKind) hasMultRet() bool { return k == vCall || k == vVararg }

const noJump = -1

// expDesc describes an expression that has not been fully emitted yet.
type expDesc struct {
	kind expKind

	info   int
	intVal int64
	numVal float64
	strVal *vm.String

	// indexed access
	table    int  // table register or upvalue
	index    int  // key register, constant or immediate
	readOnly bool // indexed global declared const
	keyStr   int  // K index of a string key, or -1

	// local variable
	register int
	varIndex int // index relative to the function's first local

	t, f int // patch lists for "exit when true" and "exit when false"
}

func (e *expDesc) init(k expKind, info int) {
	e.kind = k
	e.info = info
	e.t = noJump
	e.f = noJump
}

func (e *expDesc) hasJumps() bool { return e.t != e.f }

// numeral returns the value of a numeric constant expression without
// pending jumps.
func (e *expDesc) numeral() (vm.Value, bool) {
	if e.hasJumps() {
		return vm.Nil, false
	}
	switch e.kind {
	case vKInt:
		return vm.Int(e.intVal), true
	case vKFlt:
		return vm.Float(e.numVal), true
	}
	return vm.Nil, false
}

func (e *expDesc) isNumeral() bool {
	_, ok := e.numeral()
	return ok
}

func newStringExp(s *vm.String) expDesc {
	return expDesc{kind: vKStr, strVal: s, t: noJump, f: noJump}
}
