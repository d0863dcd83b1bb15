package vm

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode is the 7-bit operation field of an Instruction.
type Opcode uint8

// Loads and moves
const (
	OpMove       Opcode = iota // R[A] := R[B]
	OpLoadI                    // R[A] := sBx
	OpLoadF                    // R[A] := (float)sBx
	OpLoadK                    // R[A] := K[Bx]
	OpLoadKX                   // R[A] := K[extra arg]
	OpLoadFalse                // R[A] := false
	OpLFalseSkip               // R[A] := false; pc++
	OpLoadTrue                 // R[A] := true
	OpLoadNil                  // R[A], R[A+1], ..., R[A+B] := nil
	OpGetUpval                 // R[A] := UpValue[B]
	OpSetUpval                 // UpValue[B] := R[A]

	OpGetTabUp  // R[A] := UpValue[B][K[C]:shortstring]
	OpGetTable  // R[A] := R[B][R[C]]
	OpGetI      // R[A] := R[B][C]
	OpGetField  // R[A] := R[B][K[C]:shortstring]
	OpSetTabUp  // UpValue[A][K[B]:shortstring] := RK(C)
	OpSetTable  // R[A][R[B]] := RK(C)
	OpSetI      // R[A][B] := RK(C)
	OpSetField  // R[A][K[B]:shortstring] := RK(C)
	OpNewTable  // R[A] := {}
	OpSelf      // R[A+1] := R[B]; R[A] := R[B][RK(C):string]
	OpAddI      // R[A] := R[B] + sC
	OpAddK      // R[A] := R[B] + K[C]:number
	OpSubK      // R[A] := R[B] - K[C]:number
	OpMulK      // R[A] := R[B] * K[C]:number
	OpModK      // R[A] := R[B] % K[C]:number
	OpPowK      // R[A] := R[B] ^ K[C]:number
	OpDivK      // R[A] := R[B] / K[C]:number
	OpIDivK     // R[A] := R[B] // K[C]:number
	OpBAndK     // R[A] := R[B] & K[C]:integer
	OpBOrK      // R[A] := R[B] | K[C]:integer
	OpBXorK     // R[A] := R[B] ~ K[C]:integer
	OpShrI      // R[A] := R[B] >> sC
	OpShlI      // R[A] := sC << R[B]
	OpAdd       // R[A] := R[B] + R[C]
	OpSub       // R[A] := R[B] - R[C]
	OpMul       // R[A] := R[B] * R[C]
	OpMod       // R[A] := R[B] % R[C]
	OpPow       // R[A] := R[B] ^ R[C]
	OpDiv       // R[A] := R[B] / R[C]
	OpIDiv      // R[A] := R[B] // R[C]
	OpBAnd      // R[A] := R[B] & R[C]
	OpBOr       // R[A] := R[B] | R[C]
	OpBXor      // R[A] := R[B] ~ R[C]
	OpShl       // R[A] := R[B] << R[C]
	OpShr       // R[A] := R[B] >> R[C]
	OpMMBin     // call C metamethod over R[A] and R[B]
	OpMMBinI    // call C metamethod over R[A] and sB
	OpMMBinK    // call C metamethod over R[A] and K[B]
	OpUnm       // R[A] := -R[B]
	OpBNot      // R[A] := ~R[B]
	OpNot       // R[A] := not R[B]
	OpLen       // R[A] := #R[B] (length operator)
	OpConcat    // R[A] := R[A].. ... ..R[A + B - 1]
	OpClose     // close all upvalues >= R[A]
	OpTBC       // mark variable A "to be closed"
	OpJmp       // pc += sJ
	OpEq        // if ((R[A] == R[B]) ~= k) then pc++
	OpLt        // if ((R[A] <  R[B]) ~= k) then pc++
	OpLe        // if ((R[A] <= R[B]) ~= k) then pc++
	OpEqK       // if ((R[A] == K[B]) ~= k) then pc++
	OpEqI       // if ((R[A] == sB) ~= k) then pc++
	OpLtI       // if ((R[A] < sB) ~= k) then pc++
	OpLeI       // if ((R[A] <= sB) ~= k) then pc++
	OpGtI       // if ((R[A] > sB) ~= k) then pc++
	OpGeI       // if ((R[A] >= sB) ~= k) then pc++
	OpTest      // if (not R[A] == k) then pc++
	OpTestSet   // if (not R[B] == k) then pc++ else R[A] := R[B]
	OpCall      // R[A], ... ,R[A+C-2] := R[A](R[A+1], ... ,R[A+B-1])
	OpTailCall  // return R[A](R[A+1], ... ,R[A+B-1])
	OpReturn    // return R[A], ... ,R[A+B-2]
	OpReturn0   // return
	OpReturn1   // return R[A]
	OpForLoop   // update counters; if loop continues then pc-=Bx
	OpForPrep   // check values and prepare counters; if not to run then pc+=Bx+1
	OpTForPrep  // create upvalue for R[A + 3]; pc+=Bx
	OpTForCall  // R[A+4], ... ,R[A+3+C] := R[A](R[A+1], R[A+2])
	OpTForLoop  // if R[A+2] ~= nil then { R[A]=R[A+2]; pc -= Bx }
	OpSetList   // R[A][vC+i] := R[A+i], 1 <= i <= vB
	OpClosure   // R[A] := closure(KPROTO[Bx])
	OpVararg    // R[A], R[A+1], ..., R[A+C-2] = vararg
	OpGetVarg   // R[A] := R[B][R[C]], R[B] is vararg parameter
	OpErrNNil   // raise error if R[A] ~= nil (K[Bx - 1] is global name)
	OpVarargPrep
	OpExtraArg // extra (larger) argument for previous opcode

	NumOpcodes = int(OpExtraArg) + 1
)

// OpMode is the operand layout of an opcode.
type OpMode uint8

const (
	ModeABC  OpMode = iota // C(8) | B(8) | k(1) | A(8) | Op(7)
	ModeVABC               // vC(10) | vB(6) | k(1) | A(8) | Op(7)
	ModeABx                // Bx(17) | A(8) | Op(7)
	ModeAsBx               // sBx(17) | A(8) | Op(7)
	ModeAx                 // Ax(25) | Op(7)
	ModeSJ                 // sJ(25) | Op(7)
)

var modeNames = [...]string{"iABC", "ivABC", "iABx", "iAsBx", "iAx", "isJ"}

func (m OpMode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("OpMode(%d)", uint8(m))
}

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo describes an opcode's name, layout and side effects.
type OpcodeInfo struct {
	Name       string
	Mode       OpMode
	SetsA      bool // instruction writes register A
	Test       bool // next instruction is a jump
	UsesTop    bool // reads the stack top set by the previous instruction (B == 0)
	SetsTop    bool // leaves a variable number of results (C == 0)
	Metamethod bool // metamethod fallback following an arithmetic opcode
}

var opcodeTable = [NumOpcodes]OpcodeInfo{
	OpMove:       {Name: "MOVE", Mode: ModeABC, SetsA: true},
	OpLoadI:      {Name: "LOADI", Mode: ModeAsBx, SetsA: true},
	OpLoadF:      {Name: "LOADF", Mode: ModeAsBx, SetsA: true},
	OpLoadK:      {Name: "LOADK", Mode: ModeABx, SetsA: true},
	OpLoadKX:     {Name: "LOADKX", Mode: ModeABx, SetsA: true},
	OpLoadFalse:  {Name: "LOADFALSE", Mode: ModeABC, SetsA: true},
	OpLFalseSkip: {Name: "LFALSESKIP", Mode: ModeABC, SetsA: true},
	OpLoadTrue:   {Name: "LOADTRUE", Mode: ModeABC, SetsA: true},
	OpLoadNil:    {Name: "LOADNIL", Mode: ModeABC, SetsA: true},
	OpGetUpval:   {Name: "GETUPVAL", Mode: ModeABC, SetsA: true},
	OpSetUpval:   {Name: "SETUPVAL", Mode: ModeABC},
	OpGetTabUp:   {Name: "GETTABUP", Mode: ModeABC, SetsA: true},
	OpGetTable:   {Name: "GETTABLE", Mode: ModeABC, SetsA: true},
	OpGetI:       {Name: "GETI", Mode: ModeABC, SetsA: true},
	OpGetField:   {Name: "GETFIELD", Mode: ModeABC, SetsA: true},
	OpSetTabUp:   {Name: "SETTABUP", Mode: ModeABC},
	OpSetTable:   {Name: "SETTABLE", Mode: ModeABC},
	OpSetI:       {Name: "SETI", Mode: ModeABC},
	OpSetField:   {Name: "SETFIELD", Mode: ModeABC},
	OpNewTable:   {Name: "NEWTABLE", Mode: ModeVABC, SetsA: true},
	OpSelf:       {Name: "SELF", Mode: ModeABC, SetsA: true},
	OpAddI:       {Name: "ADDI", Mode: ModeABC, SetsA: true},
	OpAddK:       {Name: "ADDK", Mode: ModeABC, SetsA: true},
	OpSubK:       {Name: "SUBK", Mode: ModeABC, SetsA: true},
	OpMulK:       {Name: "MULK", Mode: ModeABC, SetsA: true},
	OpModK:       {Name: "MODK", Mode: ModeABC, SetsA: true},
	OpPowK:       {Name: "POWK", Mode: ModeABC, SetsA: true},
	OpDivK:       {Name: "DIVK", Mode: ModeABC, SetsA: true},
	OpIDivK:      {Name: "IDIVK", Mode: ModeABC, SetsA: true},
	OpBAndK:      {Name: "BANDK", Mode: ModeABC, SetsA: true},
	OpBOrK:       {Name: "BORK", Mode: ModeABC, SetsA: true},
	OpBXorK:      {Name: "BXORK", Mode: ModeABC, SetsA: true},
	OpShrI:       {Name: "SHRI", Mode: ModeABC, SetsA: true},
	OpShlI:       {Name: "SHLI", Mode: ModeABC, SetsA: true},
	OpAdd:        {Name: "ADD", Mode: ModeABC, SetsA: true},
	OpSub:        {Name: "SUB", Mode: ModeABC, SetsA: true},
	OpMul:        {Name: "MUL", Mode: ModeABC, SetsA: true},
	OpMod:        {Name: "MOD", Mode: ModeABC, SetsA: true},
	OpPow:        {Name: "POW", Mode: ModeABC, SetsA: true},
	OpDiv:        {Name: "DIV", Mode: ModeABC, SetsA: true},
	OpIDiv:       {Name: "IDIV", Mode: ModeABC, SetsA: true},
	OpBAnd:       {Name: "BAND", Mode: ModeABC, SetsA: true},
	OpBOr:        {Name: "BOR", Mode: ModeABC, SetsA: true},
	OpBXor:       {Name: "BXOR", Mode: ModeABC, SetsA: true},
	OpShl:        {Name: "SHL", Mode: ModeABC, SetsA: true},
	OpShr:        {Name: "SHR", Mode: ModeABC, SetsA: true},
	OpMMBin:      {Name: "MMBIN", Mode: ModeABC, Metamethod: true},
	OpMMBinI:     {Name: "MMBINI", Mode: ModeABC, Metamethod: true},
	OpMMBinK:     {Name: "MMBINK", Mode: ModeABC, Metamethod: true},
	OpUnm:        {Name: "UNM", Mode: ModeABC, SetsA: true},
	OpBNot:       {Name: "BNOT", Mode: ModeABC, SetsA: true},
	OpNot:        {Name: "NOT", Mode: ModeABC, SetsA: true},
	OpLen:        {Name: "LEN", Mode: ModeABC, SetsA: true},
	OpConcat:     {Name: "CONCAT", Mode: ModeABC, SetsA: true},
	OpClose:      {Name: "CLOSE", Mode: ModeABC},
	OpTBC:        {Name: "TBC", Mode: ModeABC},
	OpJmp:        {Name: "JMP", Mode: ModeSJ},
	OpEq:         {Name: "EQ", Mode: ModeABC, Test: true},
	OpLt:         {Name: "LT", Mode: ModeABC, Test: true},
	OpLe:         {Name: "LE", Mode: ModeABC, Test: true},
	OpEqK:        {Name: "EQK", Mode: ModeABC, Test: true},
	OpEqI:        {Name: "EQI", Mode: ModeABC, Test: true},
	OpLtI:        {Name: "LTI", Mode: ModeABC, Test: true},
	OpLeI:        {Name: "LEI", Mode: ModeABC, Test: true},
	OpGtI:        {Name: "GTI", Mode: ModeABC, Test: true},
	OpGeI:        {Name: "GEI", Mode: ModeABC, Test: true},
	OpTest:       {Name: "TEST", Mode: ModeABC, Test: true},
	OpTestSet:    {Name: "TESTSET", Mode: ModeABC, SetsA: true, Test: true},
	OpCall:       {Name: "CALL", Mode: ModeABC, SetsA: true, UsesTop: true, SetsTop: true},
	OpTailCall:   {Name: "TAILCALL", Mode: ModeABC, SetsA: true, UsesTop: true, SetsTop: true},
	OpReturn:     {Name: "RETURN", Mode: ModeABC, UsesTop: true},
	OpReturn0:    {Name: "RETURN0", Mode: ModeABC},
	OpReturn1:    {Name: "RETURN1", Mode: ModeABC},
	OpForLoop:    {Name: "FORLOOP", Mode: ModeABx, SetsA: true},
	OpForPrep:    {Name: "FORPREP", Mode: ModeABx, SetsA: true},
	OpTForPrep:   {Name: "TFORPREP", Mode: ModeABx},
	OpTForCall:   {Name: "TFORCALL", Mode: ModeABC},
	OpTForLoop:   {Name: "TFORLOOP", Mode: ModeABx, SetsA: true},
	OpSetList:    {Name: "SETLIST", Mode: ModeVABC, UsesTop: true},
	OpClosure:    {Name: "CLOSURE", Mode: ModeABx, SetsA: true},
	OpVararg:     {Name: "VARARG", Mode: ModeABC, SetsA: true, SetsTop: true},
	OpGetVarg:    {Name: "GETVARG", Mode: ModeABC, SetsA: true},
	OpErrNNil:    {Name: "ERRNNIL", Mode: ModeABx},
	OpVarargPrep: {Name: "VARARGPREP", Mode: ModeABC, UsesTop: true},
	OpExtraArg:   {Name: "EXTRAARG", Mode: ModeAx},
}

// Info returns metadata about an opcode.
func (op Opcode) Info() OpcodeInfo {
	if int(op) < NumOpcodes {
		return opcodeTable[op]
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(%d)", uint8(op)), Mode: ModeABC}
}

// Name returns the opcode's mnemonic.
func (op Opcode) Name() string {
	return op.Info().Name
}

// Mode returns the operand layout of the opcode.
func (op Opcode) Mode() OpMode {
	return op.Info().Mode
}

func (op Opcode) String() string {
	return op.Name()
}

// ---------------------------------------------------------------------------
// Metamethod events used by MMBIN* operands
// ---------------------------------------------------------------------------

// Event identifies the metamethod an MMBIN instruction falls back to.
type Event uint8

const (
	EventIndex Event = iota
	EventNewIndex
	EventGC
	EventMode
	EventLen
	EventEq
	EventAdd
	EventSub
	EventMul
	EventMod
	EventPow
	EventDiv
	EventIDiv
	EventBAnd
	EventBOr
	EventBXor
	EventShl
	EventShr
	EventUnm
	EventBNot
	EventLt
	EventLe
	EventConcat
	EventCall
	EventClose
)

var eventNames = [...]string{
	"__index", "__newindex", "__gc", "__mode", "__len", "__eq",
	"__add", "__sub", "__mul", "__mod", "__pow", "__div", "__idiv",
	"__band", "__bor", "__bxor", "__shl", "__shr", "__unm", "__bnot",
	"__lt", "__le", "__concat", "__call", "__close",
}

func (e Event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("Event(%d)", uint8(e))
}
