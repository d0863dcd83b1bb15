package vm

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Opcode metadata tests
// ---------------------------------------------------------------------------

func TestOpcodeInfo(t *testing.T) {
	tests := []struct {
		op   Opcode
		name string
		mode OpMode
	}{
		{OpMove, "MOVE", ModeABC},
		{OpLoadI, "LOADI", ModeAsBx},
		{OpLoadK, "LOADK", ModeABx},
		{OpNewTable, "NEWTABLE", ModeVABC},
		{OpAddI, "ADDI", ModeABC},
		{OpMMBinK, "MMBINK", ModeABC},
		{OpJmp, "JMP", ModeSJ},
		{OpForPrep, "FORPREP", ModeABx},
		{OpSetList, "SETLIST", ModeVABC},
		{OpErrNNil, "ERRNNIL", ModeABx},
		{OpExtraArg, "EXTRAARG", ModeAx},
	}

	for _, tt := range tests {
		info := tt.op.Info()
		if info.Name != tt.name {
			t.Errorf("%d: Name = %q, want %q", tt.op, info.Name, tt.name)
		}
		if info.Mode != tt.mode {
			t.Errorf("%s: Mode = %s, want %s", tt.op, info.Mode, tt.mode)
		}
	}
}

func TestOpcodeTableComplete(t *testing.T) {
	for op := 0; op < NumOpcodes; op++ {
		if Opcode(op).Name() == "" {
			t.Errorf("opcode %d has no name", op)
		}
	}
}

func TestArithmeticOpcodeOrder(t *testing.T) {
	// Operator lowering computes opcodes by offset from ADD and ADDK.
	if OpAdd+Opcode(ArithShr) != OpShr {
		t.Errorf("register arithmetic opcodes out of order")
	}
	if OpAddK+Opcode(ArithBXor) != OpBXorK {
		t.Errorf("constant arithmetic opcodes out of order")
	}
	if OpLt+1 != OpLe || OpLtI+1 != OpLeI || OpGtI+1 != OpGeI {
		t.Errorf("comparison opcodes out of order")
	}
}

func TestUnknownOpcode(t *testing.T) {
	op := Opcode(0x7F)
	if !strings.HasPrefix(op.Info().Name, "UNKNOWN(") {
		t.Errorf("unknown opcode should have UNKNOWN prefix, got %q", op.Info().Name)
	}
}

// ---------------------------------------------------------------------------
// Instruction encoding tests
// ---------------------------------------------------------------------------

func TestCreateABCk(t *testing.T) {
	i := CreateABCk(OpAdd, 1, 200, 255, 1)
	if i.Opcode() != OpAdd || i.A() != 1 || i.B() != 200 || i.C() != 255 || i.K() != 1 {
		t.Errorf("decoded %s %d %d %d %d", i.Opcode(), i.A(), i.B(), i.C(), i.K())
	}
}

func TestCreateVABCk(t *testing.T) {
	i := CreateVABCk(OpNewTable, 3, MaxArgVB, MaxArgVC, 1)
	if i.A() != 3 || i.VB() != 63 || i.VC() != 1023 || i.K() != 1 {
		t.Errorf("decoded A=%d vB=%d vC=%d k=%d", i.A(), i.VB(), i.VC(), i.K())
	}
}

func TestSignedFields(t *testing.T) {
	tests := []int{0, 1, -1, OffsetSBx, -OffsetSBx}
	for _, v := range tests {
		if got := CreateAsBx(OpLoadI, 0, v).SBx(); got != v {
			t.Errorf("sBx %d decoded as %d", v, got)
		}
	}
	for _, v := range []int{0, -1, 5, OffsetSJ, -OffsetSJ} {
		if got := CreateSJ(OpJmp, v, 0).SJ(); got != v {
			t.Errorf("sJ %d decoded as %d", v, got)
		}
	}
}

func TestSetters(t *testing.T) {
	i := CreateABCk(OpTestSet, 5, 6, 0, 1)
	i.SetA(9)
	if i.A() != 9 || i.B() != 6 || i.K() != 1 {
		t.Errorf("SetA disturbed other fields: A=%d B=%d k=%d", i.A(), i.B(), i.K())
	}
	i.SetOpcode(OpTest)
	if i.Opcode() != OpTest || i.A() != 9 {
		t.Errorf("SetOpcode: %s A=%d", i.Opcode(), i.A())
	}
	j := CreateSJ(OpJmp, -1, 0)
	j.SetSJ(42)
	if j.SJ() != 42 || j.Opcode() != OpJmp {
		t.Errorf("SetSJ: %s %d", j.Opcode(), j.SJ())
	}
	x := CreateAx(OpExtraArg, MaxArgAx)
	if x.Ax() != MaxArgAx || x.Opcode() != OpExtraArg {
		t.Errorf("Ax round trip failed: %d", x.Ax())
	}
}

func TestTopFlags(t *testing.T) {
	if !CreateABCk(OpCall, 0, 1, 0, 0).SetsTop() {
		t.Error("CALL with C=0 should leave an open result list")
	}
	if CreateABCk(OpCall, 0, 1, 2, 0).SetsTop() {
		t.Error("CALL with C=2 has fixed results")
	}
	if !CreateABCk(OpReturn, 0, 0, 0, 0).UsesTop() {
		t.Error("RETURN with B=0 consumes the open list")
	}
	if !CreateABCk(OpEq, 0, 1, 0, 0).IsTest() {
		t.Error("EQ is a test")
	}
}
