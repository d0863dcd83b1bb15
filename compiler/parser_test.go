package compiler

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/chazu/lunac/vm"
)

func compile(t *testing.T, src string) *vm.Prototype {
	t.Helper()
	p, err := CompileString(src, "=test")
	if err != nil {
		t.Fatalf("compile %q: %v", src, err)
	}
	return p
}

func compileError(t *testing.T, src string) *Error {
	t.Helper()
	_, err := CompileString(src, "=test")
	if err == nil {
		t.Fatalf("compile %q: expected an error", src)
	}
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("compile %q: error %v is not a *Error", src, err)
	}
	return ce
}

func opcodes(p *vm.Prototype) []vm.Opcode {
	ops := make([]vm.Opcode, len(p.Code))
	for i, in := range p.Code {
		ops[i] = in.Opcode()
	}
	return ops
}

func expectOps(t *testing.T, p *vm.Prototype, want ...vm.Opcode) {
	t.Helper()
	if got := opcodes(p); !slices.Equal(got, want) {
		t.Fatalf("opcodes = %v, want %v", got, want)
	}
}

func TestParserMainFunction(t *testing.T) {
	p := compile(t, "")
	expectOps(t, p, vm.OpVarargPrep, vm.OpReturn)
	if !p.IsVararg() {
		t.Error("main function should be vararg")
	}
	if len(p.Upvalues) != 1 || p.Upvalues[0].Name.String() != "_ENV" {
		t.Fatalf("upvalues = %+v, want a single _ENV", p.Upvalues)
	}
	if up := p.Upvalues[0]; !up.InStack || up.Index != 0 {
		t.Errorf("_ENV upvalue = %+v, want in stack at 0", up)
	}
	if p.MaxStackSize != 2 {
		t.Errorf("MaxStackSize = %d, want 2", p.MaxStackSize)
	}
	if ret := p.Code[1]; ret.A() != 0 || ret.B() != 1 || ret.C() != 1 {
		t.Errorf("return = A%d B%d C%d, want 0 1 1", ret.A(), ret.B(), ret.C())
	}
}

func TestParserLocalFolding(t *testing.T) {
	p := compile(t, "local x = 1 + 2")
	expectOps(t, p, vm.OpVarargPrep, vm.OpLoadI, vm.OpReturn)
	if in := p.Code[1]; in.A() != 0 || in.SBx() != 3 {
		t.Errorf("load = A%d sBx%d, want 0 3", in.A(), in.SBx())
	}
	if len(p.K) != 0 {
		t.Errorf("constants = %v, want none", p.K)
	}
}

func TestParserImmediateAdd(t *testing.T) {
	p := compile(t, "local x = 0\nx = x + 1")
	expectOps(t, p, vm.OpVarargPrep, vm.OpLoadI, vm.OpAddI, vm.OpMMBinI, vm.OpReturn)
	add := p.Code[2]
	if add.A() != 0 || add.B() != 0 || add.SC() != 1 {
		t.Errorf("ADDI = A%d B%d sC%d, want 0 0 1", add.A(), add.B(), add.SC())
	}
	mm := p.Code[3]
	if mm.A() != 0 || mm.SB() != 1 || vm.Event(mm.C()) != vm.EventAdd || mm.K() != 0 {
		t.Errorf("MMBINI = A%d sB%d C%d k%d", mm.A(), mm.SB(), mm.C(), mm.K())
	}
	if len(p.K) != 0 {
		t.Errorf("constants = %v, want none", p.K)
	}
}

func TestParserNumericFor(t *testing.T) {
	p := compile(t, "for i = 1, 10 do end")
	expectOps(t, p,
		vm.OpVarargPrep, vm.OpLoadI, vm.OpLoadI, vm.OpLoadI,
		vm.OpForPrep, vm.OpForLoop, vm.OpReturn)
	prep, loop := p.Code[4], p.Code[5]
	if prep.A() != 0 || prep.Bx() != 0 {
		t.Errorf("FORPREP = A%d Bx%d, want 0 0", prep.A(), prep.Bx())
	}
	// FORLOOP jumps back to the instruction after FORPREP
	if target := 5 + 1 - loop.Bx(); target != 5 {
		t.Errorf("FORLOOP target = %d, want 5", target)
	}
	if p.Code[3].SBx() != 1 {
		t.Errorf("default step = %d, want 1", p.Code[3].SBx())
	}
}

func TestParserForControlIsReadOnly(t *testing.T) {
	err := compileError(t, "for i = 1, 10 do i = 2 end")
	if err.Msg != "attempt to assign to const variable 'i'" {
		t.Errorf("msg = %q", err.Msg)
	}
	err = compileError(t, "for k, v in next, {} do k = 1 end")
	if err.Msg != "attempt to assign to const variable 'k'" {
		t.Errorf("msg = %q", err.Msg)
	}
}

func TestParserGenericFor(t *testing.T) {
	p := compile(t, "for k, v in pairs(t) do end")
	expectOps(t, p,
		vm.OpVarargPrep, vm.OpGetTabUp, vm.OpGetTabUp, vm.OpCall,
		vm.OpTForPrep, vm.OpTForCall, vm.OpTForLoop, vm.OpClose, vm.OpReturn)
	if c := p.Code[3].C(); c != 5 {
		t.Errorf("iterator call C = %d, want 5 (four results)", c)
	}
	if c := p.Code[5].C(); c != 2 {
		t.Errorf("TFORCALL C = %d, want 2", c)
	}
	if bx := p.Code[6].Bx(); bx != 2 {
		t.Errorf("TFORLOOP Bx = %d, want 2", bx)
	}
	if p.Code[8].K() != 1 {
		t.Error("return should close upvalues after a to-be-closed loop")
	}
}

func TestParserGotoForward(t *testing.T) {
	p := compile(t, "goto done; do local y = 1 end ::done::")
	expectOps(t, p, vm.OpVarargPrep, vm.OpJmp, vm.OpClose, vm.OpLoadI, vm.OpReturn)
	if sj := p.Code[1].SJ(); sj != 2 {
		t.Errorf("goto offset = %d, want 2", sj)
	}
}

func TestParserGotoBackward(t *testing.T) {
	p := compile(t, "::top:: goto top")
	expectOps(t, p, vm.OpVarargPrep, vm.OpJmp, vm.OpClose, vm.OpReturn)
	if sj := p.Code[1].SJ(); sj != -1 {
		t.Errorf("goto offset = %d, want -1", sj)
	}
}

func TestParserGotoClosesCapturedLocals(t *testing.T) {
	src := `do
  local x
  local f = function() return x end
  goto out
end
::out::`
	p := compile(t, src)
	expectOps(t, p,
		vm.OpVarargPrep, vm.OpLoadNil, vm.OpClosure,
		vm.OpClose, vm.OpJmp, vm.OpClose, vm.OpReturn)
	if a := p.Code[3].A(); a != 0 {
		t.Errorf("goto CLOSE A = %d, want 0", a)
	}
	if sj := p.Code[4].SJ(); sj != 1 {
		t.Errorf("goto offset = %d, want 1", sj)
	}
}

func TestParserUpvalueClose(t *testing.T) {
	p := compile(t, "do local a = 1; g = function() return a end end")
	expectOps(t, p,
		vm.OpVarargPrep, vm.OpLoadI, vm.OpClosure, vm.OpSetTabUp, vm.OpClose, vm.OpReturn)
	if a := p.Code[4].A(); a != 0 {
		t.Errorf("CLOSE A = %d, want 0", a)
	}
	if p.Code[5].K() != 1 {
		t.Error("return should be marked as closing upvalues")
	}

	if len(p.Prototypes) != 1 {
		t.Fatalf("nested prototypes = %d, want 1", len(p.Prototypes))
	}
	f := p.Prototypes[0]
	expectOps(t, f, vm.OpGetUpval, vm.OpReturn1, vm.OpReturn0)
	if len(f.Upvalues) != 1 {
		t.Fatalf("upvalues = %d, want 1", len(f.Upvalues))
	}
	if up := f.Upvalues[0]; up.Name.String() != "a" || !up.InStack || up.Index != 0 {
		t.Errorf("upvalue = %+v, want a in stack at 0", up)
	}
	if f.LineDefined != 1 || f.LastLineDefined != 1 {
		t.Errorf("lines = %d-%d, want 1-1", f.LineDefined, f.LastLineDefined)
	}
}

func TestParserUpvalueChain(t *testing.T) {
	p := compile(t, `local a
local function f()
  return function() return a end
end`)
	f := p.Prototypes[0]
	g := f.Prototypes[0]
	if up := f.Upvalues[0]; up.Name.String() != "a" || !up.InStack {
		t.Errorf("middle upvalue = %+v, want a from the stack", up)
	}
	if up := g.Upvalues[0]; up.Name.String() != "a" || up.InStack || up.Index != 0 {
		t.Errorf("inner upvalue = %+v, want a from enclosing upvalue 0", up)
	}
}

func TestParserTooManyLocals(t *testing.T) {
	err := compileError(t, strings.Repeat("local v\n", MaxVars+1))
	if err.Kind != ErrLimit {
		t.Errorf("kind = %v, want limit", err.Kind)
	}
	if !strings.Contains(err.Msg, "too many local variables (limit is 200) in main function") {
		t.Errorf("msg = %q", err.Msg)
	}
	compile(t, strings.Repeat("local v\n", MaxVars))
}

// Global declarations take no register and do not count as locals.
func TestParserGlobalsOutsideLocalLimit(t *testing.T) {
	var b strings.Builder
	for i := range 150 {
		fmt.Fprintf(&b, "global g%d\n", i)
	}
	for i := range MaxVars {
		fmt.Fprintf(&b, "local l%d\n", i)
	}
	p := compile(t, b.String())
	if len(p.LocVars) != MaxVars {
		t.Errorf("locals = %d, want %d", len(p.LocVars), MaxVars)
	}

	err := compileError(t, b.String()+"local extra\n")
	if err.Kind != ErrLimit || !strings.Contains(err.Msg, "too many local variables (limit is 200)") {
		t.Errorf("err = %v (%v)", err, err.Kind)
	}
}

func TestParserConstructorItemLimit(t *testing.T) {
	saved := maxConsItems
	maxConsItems = 3
	t.Cleanup(func() { maxConsItems = saved })

	compile(t, "t = {1, 2, 3, a = 1, b = 2, c = 3}")
	for _, src := range []string{"t = {1, 2, 3, 4}", "t = {a = 1, b = 2, [3] = 3, d = 4}"} {
		err := compileError(t, src)
		if err.Kind != ErrLimit {
			t.Errorf("%q: kind = %v, want limit", src, err.Kind)
		}
		if !strings.Contains(err.Msg, "too many items in a constructor (limit is 3) in main function") {
			t.Errorf("%q: msg = %q", src, err.Msg)
		}
	}
}

func TestParserLimitInNestedFunction(t *testing.T) {
	src := "\nlocal function f()\n" + strings.Repeat("local v\n", MaxVars+1) + "end"
	err := compileError(t, src)
	if !strings.Contains(err.Msg, "in function at line 2") {
		t.Errorf("msg = %q", err.Msg)
	}
}

func TestParserNestingDepth(t *testing.T) {
	src := "x = " + strings.Repeat("(", MaxCCalls) + "1" + strings.Repeat(")", MaxCCalls)
	err := compileError(t, src)
	if err.Kind != ErrLimit || err.Msg != "C stack overflow" {
		t.Errorf("err = %v (%v)", err, err.Kind)
	}
	compile(t, "x = "+strings.Repeat("(", 50)+"1"+strings.Repeat(")", 50))
}

func TestParserCompileTimeConstant(t *testing.T) {
	p := compile(t, "local x <const> = 10\nlocal y = x")
	expectOps(t, p, vm.OpVarargPrep, vm.OpLoadI, vm.OpReturn)
	if in := p.Code[1]; in.A() != 0 || in.SBx() != 10 {
		t.Errorf("load = A%d sBx%d, want 0 10", in.A(), in.SBx())
	}
	if len(p.LocVars) != 1 || p.LocVars[0].Name.String() != "y" {
		t.Errorf("locals = %+v, want only y", p.LocVars)
	}
}

func TestParserConstNotFoldable(t *testing.T) {
	// a const initialized by a call lives in a register
	p := compile(t, "local x <const> = f()")
	if len(p.LocVars) != 1 || p.LocVars[0].Name.String() != "x" {
		t.Errorf("locals = %+v, want x", p.LocVars)
	}
}

func TestParserToBeClosed(t *testing.T) {
	p := compile(t, "do local x <close> = f() end")
	ops := opcodes(p)
	if !slices.Contains(ops, vm.OpTBC) {
		t.Errorf("opcodes %v should mark the variable to be closed", ops)
	}
	if !slices.Contains(ops, vm.OpClose) {
		t.Errorf("opcodes %v should close the block", ops)
	}
}

func TestParserReturnInsideToBeClosedIsNotTailCall(t *testing.T) {
	p := compile(t, "local x <close> = f()\nreturn g()")
	if slices.Contains(opcodes(p), vm.OpTailCall) {
		t.Error("a call inside a to-be-closed scope must not be a tail call")
	}
}

func TestParserTailCall(t *testing.T) {
	p := compile(t, "return f(1)")
	expectOps(t, p,
		vm.OpVarargPrep, vm.OpGetTabUp, vm.OpLoadI, vm.OpTailCall, vm.OpReturn, vm.OpReturn)
	tc := p.Code[3]
	if tc.A() != 0 || tc.B() != 2 || tc.C() != 1 {
		t.Errorf("TAILCALL = A%d B%d C%d, want 0 2 1", tc.A(), tc.B(), tc.C())
	}
	if ret := p.Code[4]; ret.B() != 0 {
		t.Errorf("RETURN B = %d, want 0 (multiple results)", ret.B())
	}
}

func TestParserMethodCall(t *testing.T) {
	p := compile(t, "local t; t:m(1)")
	expectOps(t, p,
		vm.OpVarargPrep, vm.OpLoadNil, vm.OpSelf, vm.OpLoadI, vm.OpCall, vm.OpReturn)
	self := p.Code[2]
	if self.A() != 1 || self.B() != 0 || self.K() != 1 || p.K[self.C()].Str.String() != "m" {
		t.Errorf("SELF = A%d B%d C%d k%d", self.A(), self.B(), self.C(), self.K())
	}
	call := p.Code[4]
	if call.A() != 1 || call.B() != 3 || call.C() != 1 {
		t.Errorf("CALL = A%d B%d C%d, want 1 3 1", call.A(), call.B(), call.C())
	}
}

func TestParserVarargAdjust(t *testing.T) {
	p := compile(t, "local a, b = ...")
	expectOps(t, p, vm.OpVarargPrep, vm.OpVararg, vm.OpReturn)
	if in := p.Code[1]; in.A() != 0 || in.C() != 3 {
		t.Errorf("VARARG = A%d C%d, want 0 3", in.A(), in.C())
	}
	if p.MaxStackSize < 2 {
		t.Errorf("MaxStackSize = %d", p.MaxStackSize)
	}
}

func TestParserVarargFunction(t *testing.T) {
	p := compile(t, "local function f(a, ...) return ... end")
	f := p.Prototypes[0]
	if !f.IsVararg() || f.NumParams != 1 {
		t.Errorf("flags = %d params = %d", f.Flag, f.NumParams)
	}
	if f.Code[0].Opcode() != vm.OpVarargPrep || f.Code[0].A() != 1 {
		t.Errorf("first instruction = %v", f.Code[0].Opcode())
	}
}

func TestParserMethodDefinition(t *testing.T) {
	p := compile(t, "local obj = {}\nfunction obj:get(k) return self[k] end")
	f := p.Prototypes[0]
	if f.NumParams != 2 {
		t.Errorf("params = %d, want 2 (self and k)", f.NumParams)
	}
	if name := f.LocVars[0].Name.String(); name != "self" {
		t.Errorf("first local = %q, want self", name)
	}
	if f.LineDefined != 2 {
		t.Errorf("LineDefined = %d, want 2", f.LineDefined)
	}
}

func TestParserConstructor(t *testing.T) {
	p := compile(t, "local t = {1, 2, 3, x = 4}")
	expectOps(t, p,
		vm.OpVarargPrep, vm.OpNewTable, vm.OpExtraArg,
		vm.OpLoadI, vm.OpLoadI, vm.OpLoadI, vm.OpSetField, vm.OpSetList, vm.OpReturn)
	nt := p.Code[1]
	if nt.A() != 0 || nt.VB() != 1 || nt.VC() != 3 {
		t.Errorf("NEWTABLE = A%d vB%d vC%d, want 0 1 3", nt.A(), nt.VB(), nt.VC())
	}
	sl := p.Code[7]
	if sl.A() != 0 || sl.VB() != 3 || sl.VC() != 0 {
		t.Errorf("SETLIST = A%d vB%d vC%d, want 0 3 0", sl.A(), sl.VB(), sl.VC())
	}
	sf := p.Code[6]
	if sf.K() != 1 || p.K[sf.B()].Str.String() != "x" || p.K[sf.C()].Int != 4 {
		t.Errorf("SETFIELD = B%d C%d k%d", sf.B(), sf.C(), sf.K())
	}
}

func TestParserConstructorFlush(t *testing.T) {
	items := make([]string, 60)
	for i := range items {
		items[i] = "1"
	}
	p := compile(t, "local t = {"+strings.Join(items, ", ")+"}")
	var sets []vm.Instruction
	for _, in := range p.Code {
		if in.Opcode() == vm.OpSetList {
			sets = append(sets, in)
		}
	}
	if len(sets) != 2 {
		t.Fatalf("SETLIST count = %d, want 2", len(sets))
	}
	if sets[0].VB() != 50 || sets[0].VC() != 0 {
		t.Errorf("first flush = vB%d vC%d, want 50 0", sets[0].VB(), sets[0].VC())
	}
	if sets[1].VB() != 10 || sets[1].VC() != 50 {
		t.Errorf("second flush = vB%d vC%d, want 10 50", sets[1].VB(), sets[1].VC())
	}
}

func TestParserConstructorOpenItem(t *testing.T) {
	p := compile(t, "local t = {f()}")
	var sl vm.Instruction
	for _, in := range p.Code {
		if in.Opcode() == vm.OpSetList {
			sl = in
		}
	}
	if sl.VB() != 0 {
		t.Errorf("SETLIST vB = %d, want 0 (up to top)", sl.VB())
	}
}

func TestParserGlobalInitializer(t *testing.T) {
	p := compile(t, "global x = 1")
	expectOps(t, p,
		vm.OpVarargPrep, vm.OpLoadI, vm.OpGetTabUp, vm.OpErrNNil, vm.OpSetTabUp, vm.OpReturn)
	chk := p.Code[3]
	if chk.A() != 1 || chk.Bx() != 1 {
		t.Errorf("ERRNNIL = A%d Bx%d, want 1 1", chk.A(), chk.Bx())
	}
	if p.K[0].Str.String() != "x" {
		t.Errorf("K[0] = %v, want \"x\"", p.K[0])
	}
}

func TestParserGlobalDeclarations(t *testing.T) {
	ok := []string{
		"global *; y = 1",
		"global x; global *; y = 1",
		"global *; global x; y = 1",
		"global x; x = 1",
		"global function f() return f end",
		"global x, y = 1, 2",
		"local x; global y; x = 1",
		"global x; do local y; y = 1 end",
	}
	for _, src := range ok {
		if _, err := CompileString(src, "=test"); err != nil {
			t.Errorf("compile %q: %v", src, err)
		}
	}

	bad := []struct {
		src string
		msg string
	}{
		{"global x; y = 1", "variable 'y' not declared"},
		{"global x, g; function g() y = 1 end", "variable 'y' not declared"},
		{"global x <const>; x = 1", "attempt to assign to const variable 'x'"},
		{"global <const> *; z = 1", "attempt to assign to const variable 'z'"},
		{"global x <close>", "global variables cannot be to-be-closed"},
		{"global x; function y() end", "variable 'y' not declared"},
	}
	for _, tc := range bad {
		err := compileError(t, tc.src)
		if err.Kind != ErrSemantic || err.Msg != tc.msg {
			t.Errorf("compile %q: %v (%v), want %q", tc.src, err, err.Kind, tc.msg)
		}
	}
}

func TestParserBreak(t *testing.T) {
	p := compile(t, "while true do break end")
	expectOps(t, p, vm.OpVarargPrep, vm.OpJmp, vm.OpClose, vm.OpJmp, vm.OpReturn)
	if sj := p.Code[1].SJ(); sj != 2 {
		t.Errorf("break offset = %d, want 2", sj)
	}
	// the back jump lands on the break and is retargeted to the exit
	if sj := p.Code[3].SJ(); sj != 0 {
		t.Errorf("loop offset = %d, want 0", sj)
	}

	err := compileError(t, "do break end")
	if err.Error() != "test:1: break outside a loop near 'break'" {
		t.Errorf("err = %v", err)
	}
}

func TestParserRepeatSeesBodyLocals(t *testing.T) {
	compile(t, "repeat local done = true until done")
	p := compile(t, "repeat local x; f = function() return x end until x")
	// the body's scope closes first, then the repeat path gets its own CLOSE
	expectOps(t, p, vm.OpVarargPrep, vm.OpLoadNil, vm.OpClosure, vm.OpSetTabUp,
		vm.OpTest, vm.OpJmp, vm.OpClose, vm.OpJmp, vm.OpClose, vm.OpJmp, vm.OpReturn)
	for _, j := range []struct{ pc, target int }{{5, 8}, {7, 10}, {9, 1}} {
		if got := j.pc + 1 + p.Code[j.pc].SJ(); got != j.target {
			t.Errorf("jump at pc %d goes to %d, want %d", j.pc, got, j.target)
		}
	}
	expectLocals(t, p, localSpan{"x", 2, 7})
}

type localSpan struct {
	name       string
	start, end int
}

func expectLocals(t *testing.T, p *vm.Prototype, want ...localSpan) {
	t.Helper()
	got := make([]localSpan, len(p.LocVars))
	for i, lv := range p.LocVars {
		got[i] = localSpan{lv.Name.String(), lv.StartPC, lv.EndPC}
	}
	if !slices.Equal(got, want) {
		t.Errorf("locals = %v, want %v", got, want)
	}
}

func TestParserLocalScopesClose(t *testing.T) {
	p := compile(t, "local x = 1 + 2")
	expectOps(t, p, vm.OpVarargPrep, vm.OpLoadI, vm.OpReturn)
	expectLocals(t, p, localSpan{"x", 2, 3})

	p = compile(t, "do local y = 1 end local z = 2")
	expectLocals(t, p, localSpan{"y", 2, 2}, localSpan{"z", 3, 4})
	if p.Code[2].A() != 0 {
		t.Errorf("z in register %d, want y's register 0", p.Code[2].A())
	}

	p = compile(t, "local function f(a) local b = a end")
	expectLocals(t, p, localSpan{"f", 2, 3})
	expectLocals(t, p.Prototypes[0], localSpan{"a", 0, 2}, localSpan{"b", 1, 2})
}

func TestParserMultipleAssignmentConflict(t *testing.T) {
	// t[i] must use the old value of t
	p := compile(t, "local t, i; t[i], t = 1, 2")
	if !slices.Contains(opcodes(p), vm.OpMove) {
		t.Errorf("opcodes %v should save the table before reassigning it", opcodes(p))
	}
}

func TestParserLineInfo(t *testing.T) {
	p := compile(t, "local a = 1\n\nlocal b = 2")
	if l := p.Line(1); l != 1 {
		t.Errorf("line of pc 1 = %d, want 1", l)
	}
	if l := p.Line(2); l != 3 {
		t.Errorf("line of pc 2 = %d, want 3", l)
	}
}

func TestParserLocalDebugInfo(t *testing.T) {
	p := compile(t, "local a = 1\ndo local b = 2 end\nlocal c = 3")
	names := make([]string, len(p.LocVars))
	for i, lv := range p.LocVars {
		names[i] = lv.Name.String()
	}
	if !slices.Equal(names, []string{"a", "b", "c"}) {
		t.Fatalf("locals = %v", names)
	}
	b := p.LocVars[1]
	if b.StartPC != 3 || b.EndPC != 3 {
		t.Errorf("b live range = [%d, %d), want [3, 3)", b.StartPC, b.EndPC)
	}
	if a := p.LocVars[0]; a.StartPC != 2 || a.EndPC != len(p.Code) {
		t.Errorf("a live range = [%d, %d)", a.StartPC, a.EndPC)
	}
}
