package compiler

import (
	"fmt"
	"math"

	"github.com/chazu/lunac/vm"
)

// Compiler limits.
const (
	MaxVars   = 200 // local variables per function
	MaxUpval  = 255 // upvalues per function
	MaxRegs   = 255 // registers per function
	MaxCCalls = 200 // nesting of syntactic structures
)

// maxConsItems bounds the record items, and separately the list items, of
// one table constructor.
var maxConsItems = math.MaxInt32 / 2

// varKind classifies an active variable declaration.
type varKind uint8

const (
	varRegular  varKind = iota // regular local
	varConst                   // local <const>
	varToClose                 // local <close>
	varCompTime                // local <const> whose value is known at compile time
	globalRegular              // global declaration
	globalConst                // global <const>
)

// inRegister reports whether variables of this kind live in a register.
func (k varKind) inRegister() bool { return k <= varToClose }

func (k varKind) isGlobal() bool { return k == globalRegular || k == globalConst }

// varDesc is an active variable or global declaration. A nil name is the
// "global *" wildcard.
type varDesc struct {
	kind varKind
	reg  int      // register holding the variable
	pidx int      // index into the prototype's LocVars
	name *vm.String
	k    vm.Value // value of a compile-time constant
}

// labelDesc is a pending goto or a visible label.
type labelDesc struct {
	name    *vm.String
	pc      int
	line    int
	nActVar int  // active variables at this point
	close   bool // goto escapes the scope of a captured variable
}

// dynData holds the per-compilation lists shared by all nested functions.
// Each function addresses its own part by offset.
type dynData struct {
	actVar []varDesc
	gt     []labelDesc
	label  []labelDesc
}

// blockCnt is one entry of a function's chain of open blocks.
type blockCnt struct {
	previous   *blockCnt
	firstLabel int
	firstGoto  int
	nActVar    int
	upval      bool // some variable in the block is captured
	isLoop     int  // 1 for loops, 2 for loops with pending breaks
	insideTBC  bool // inside the scope of a to-be-closed variable
}

// funcState is the code generator state of one function being compiled.
type funcState struct {
	f    *vm.Prototype
	prev *funcState
	p    *parser
	bl   *blockCnt

	lastTarget   int // pc of the last jump target
	previousLine int // line of the last instruction with line info
	iwthabs      int // instructions since the last absolute line info
	firstLocal   int // index of the first local in dynData.actVar
	firstLabel   int // index of the first label in dynData.label
	nActVar      int
	freeReg      int
	needClose    bool

	kcache map[any]int
}

func (fs *funcState) pc() int { return len(fs.f.Code) }

func (fs *funcState) localVarDesc(vidx int) *varDesc {
	return &fs.p.dyd.actVar[fs.firstLocal+vidx]
}

// regLevel returns the number of registers used by the first nvar
// active variables.
func (fs *funcState) regLevel(nvar int) int {
	for nvar > 0 {
		nvar--
		if vd := fs.localVarDesc(nvar); vd.kind.inRegister() {
			return vd.reg + 1
		}
	}
	return 0
}

// nVarStack is the register level of all active variables.
func (fs *funcState) nVarStack() int { return fs.regLevel(fs.nActVar) }

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func (fs *funcState) syntaxError(msg string) { fs.p.lx.syntaxError(msg) }

// errorLimit reports that a per-function limit was exceeded.
func (fs *funcState) errorLimit(limit int, what string) {
	where := "main function"
	if line := fs.f.LineDefined; line != 0 {
		where = fmt.Sprintf("function at line %d", line)
	}
	lx := fs.p.lx
	lx.fail(ErrLimit, fmt.Sprintf("too many %s (limit is %d) in %s", what, limit, where), lx.currentNear())
}

func (fs *funcState) checkLimit(v, limit int, what string) {
	if v > limit {
		fs.errorLimit(limit, what)
	}
}

// ---------------------------------------------------------------------------
// Register allocation
// ---------------------------------------------------------------------------

// checkStack makes sure n more registers fit in the frame.
func (fs *funcState) checkStack(n int) {
	newStack := fs.freeReg + n
	if newStack > fs.f.MaxStackSize {
		if newStack >= MaxRegs {
			fs.p.lx.fail(ErrLimit, "function or expression needs too many registers", fs.p.lx.currentNear())
		}
		fs.f.MaxStackSize = newStack
	}
}

func (fs *funcState) reserveRegs(n int) {
	fs.checkStack(n)
	fs.freeReg += n
}

// freeRegister releases reg unless it holds an active local. Registers are
// released in stack order.
func (fs *funcState) freeRegister(reg int) {
	if reg >= fs.nVarStack() {
		fs.freeReg--
		if reg != fs.freeReg {
			panic(fmt.Sprintf("compiler: register %d freed out of order (top %d)", reg, fs.freeReg))
		}
	}
}

// freeRegs releases two registers, the higher one first.
func (fs *funcState) freeRegs(r1, r2 int) {
	if r1 > r2 {
		fs.freeRegister(r1)
		fs.freeRegister(r2)
	} else {
		fs.freeRegister(r2)
		fs.freeRegister(r1)
	}
}

func (fs *funcState) freeExp(e *expDesc) {
	if e.kind == vNonReloc {
		fs.freeRegister(e.info)
	}
}

func (fs *funcState) freeExps(e1, e2 *expDesc) {
	r1, r2 := -1, -1
	if e1.kind == vNonReloc {
		r1 = e1.info
	}
	if e2.kind == vNonReloc {
		r2 = e2.info
	}
	fs.freeRegs(r1, r2)
}
