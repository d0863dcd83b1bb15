package vm

import (
	"strings"
	"testing"
)

func sampleProto() *Prototype {
	st := NewStringTable()
	x := st.Intern("x")
	return &Prototype{
		Source:       "@sample.lua",
		Flag:         FlagVararg,
		MaxStackSize: 2,
		Code: []Instruction{
			CreateABCk(OpVarargPrep, 0, 0, 0, 0),
			CreateAsBx(OpLoadI, 0, 3),
			CreateABCk(OpAddI, 1, 0, 1+OffsetSC, 0),
			CreateABCk(OpMMBinI, 0, 1+OffsetSC, int(EventAdd), 0),
			CreateABCk(OpSetTabUp, 0, 0, 1, 0),
			CreateABCk(OpReturn, 1, 1, 1, 0),
		},
		K:           []Value{Str(x)},
		Upvalues:    []UpvalueDesc{{Name: st.Intern("_ENV"), InStack: true}},
		LineInfo:    []int8{1, 0, 1, 0, 0, 0},
		LocVars:     []LocVar{{Name: x, StartPC: 2, EndPC: 6}},
	}
}

func TestListing(t *testing.T) {
	var sb strings.Builder
	if err := Listing(&sb, sampleProto(), true); err != nil {
		t.Fatal(err)
	}
	out := sb.String()
	for _, want := range []string{
		"main <sample.lua:0,0> (6 instructions)",
		"0+ params, 2 slots, 1 upvalue, 1 local, 1 constant, 0 functions",
		"\t2\t[1]\tLOADI    \t0 3",
		"ADDI     \t1 0 1",
		"; __add",
		"; _ENV \"x\"",
		"constants (1):",
		"\t0\tS\t\"x\"",
		"locals (1):",
		"\t0\tx\t3\t7",
		"upvalues (1):",
		"\t0\t_ENV\t1\t0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q:\n%s", want, out)
		}
	}
}

func TestPrototypeLine(t *testing.T) {
	p := &Prototype{
		LineDefined: 10,
		Code:        make([]Instruction, 4),
		LineInfo:    []int8{1, 2, AbsLineInfoMarker, -1},
		AbsLineInfo: []AbsLineInfo{{PC: 2, Line: 500}},
	}
	want := []int{11, 13, 500, 499}
	for pc, w := range want {
		if got := p.Line(pc); got != w {
			t.Errorf("Line(%d) = %d, want %d", pc, got, w)
		}
	}
}

func TestStrip(t *testing.T) {
	p := sampleProto()
	child := sampleProto()
	p.Prototypes = []*Prototype{child}
	Strip(p)
	for _, q := range []*Prototype{p, child} {
		if q.LineInfo != nil || q.LocVars != nil || q.Upvalues[0].Name != nil {
			t.Errorf("debug information survived Strip")
		}
		if len(q.Code) != 6 {
			t.Errorf("Strip must not touch code")
		}
	}
}

func TestStringTableInterning(t *testing.T) {
	st := NewStringTable()
	a := st.Intern("hello")
	b := st.InternBytes([]byte("hello"))
	if a != b {
		t.Error("equal strings should intern to the same pointer")
	}
	st.MarkReserved([]string{"and", "break"})
	if st.Intern("break").Reserved() != 2 {
		t.Errorf("reserved index = %d, want 2", st.Intern("break").Reserved())
	}
	if a.Reserved() != 0 {
		t.Error("ordinary names are not reserved")
	}
	if _, ok := st.Lookup("missing"); ok {
		t.Error("Lookup should not intern")
	}
}
