package vm

// ---------------------------------------------------------------------------
// Prototype: a compiled function
// ---------------------------------------------------------------------------

// Prototype flag bits.
const (
	FlagVararg    uint8 = 1 << iota // function takes hidden vararg arguments
	FlagVarargTab                   // function packs its varargs in a table
)

// AbsLineInfoMarker in LineInfo means the line for that instruction is
// recorded in AbsLineInfo.
const AbsLineInfoMarker int8 = -0x80

// Prototype is everything the interpreter needs to instantiate a closure.
type Prototype struct {
	Source          string
	LineDefined     int
	LastLineDefined int
	NumParams       int
	Flag            uint8
	MaxStackSize    int

	Code       []Instruction
	K          []Value
	Prototypes []*Prototype
	Upvalues   []UpvalueDesc

	// Debug information
	LineInfo    []int8
	AbsLineInfo []AbsLineInfo
	LocVars     []LocVar
}

// UpvalueDesc describes where a closure finds an upvalue when it is created.
type UpvalueDesc struct {
	Name    *String
	InStack bool // captured from the enclosing function's registers
	Index   int  // register or enclosing upvalue index
	Kind    uint8
}

// LocVar is a local variable's name and live range.
type LocVar struct {
	Name    *String
	StartPC int // first instruction where the variable is active
	EndPC   int // first instruction where the variable is dead
}

// AbsLineInfo records an absolute line for instruction PC.
type AbsLineInfo struct {
	PC   int
	Line int
}

// IsVararg reports whether the function accepts variable arguments.
func (p *Prototype) IsVararg() bool {
	return p.Flag&FlagVararg != 0
}

// Line returns the source line of instruction pc, or -1 without line info.
func (p *Prototype) Line(pc int) int {
	if len(p.LineInfo) == 0 {
		return -1
	}
	base, basePC := p.LineDefined, -1
	if n := len(p.AbsLineInfo); n > 0 && pc >= p.AbsLineInfo[0].PC {
		// last checkpoint at or before pc
		i := 0
		for i+1 < n && p.AbsLineInfo[i+1].PC <= pc {
			i++
		}
		basePC, base = p.AbsLineInfo[i].PC, p.AbsLineInfo[i].Line
	}
	for basePC < pc {
		basePC++
		if p.LineInfo[basePC] != AbsLineInfoMarker {
			base += int(p.LineInfo[basePC])
		}
	}
	return base
}

// LocalName returns the name of the n-th (1-based) local active at pc.
func (p *Prototype) LocalName(n, pc int) (string, bool) {
	for _, lv := range p.LocVars {
		if lv.StartPC > pc {
			break
		}
		if pc < lv.EndPC {
			n--
			if n == 0 {
				return lv.Name.String(), true
			}
		}
	}
	return "", false
}

// Walk calls fn for p and every nested prototype, depth first.
func (p *Prototype) Walk(fn func(*Prototype)) {
	fn(p)
	for _, c := range p.Prototypes {
		c.Walk(fn)
	}
}

// Strip removes debug information from p and its nested prototypes.
func Strip(p *Prototype) {
	p.Walk(func(q *Prototype) {
		q.LineInfo = nil
		q.AbsLineInfo = nil
		q.LocVars = nil
		q.Source = "=?"
		for i := range q.Upvalues {
			q.Upvalues[i].Name = nil
		}
	})
}

// ---------------------------------------------------------------------------
// Write barrier
// ---------------------------------------------------------------------------

// Barrier is notified whenever a collectable object is stored into a
// prototype, so an incremental collector can keep its invariants.
type Barrier interface {
	ObjectBarrier(owner *Prototype, child any)
}

type noBarrier struct{}

func (noBarrier) ObjectBarrier(*Prototype, any) {}

// NoBarrier ignores all notifications.
var NoBarrier Barrier = noBarrier{}
