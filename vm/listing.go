package vm

import (
	"fmt"
	"io"
	"strings"
)

// ---------------------------------------------------------------------------
// Listing
// ---------------------------------------------------------------------------

// Listing writes a human-readable listing of p and its nested prototypes.
// With full set, constants, locals and upvalues are listed too.
func Listing(w io.Writer, p *Prototype, full bool) error {
	var sb strings.Builder
	listFunction(&sb, p, full)
	_, err := io.WriteString(w, sb.String())
	return err
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func displaySource(src string) string {
	switch {
	case src == "":
		return "=?"
	case src[0] == '@' || src[0] == '=':
		return src[1:]
	default:
		return "(string)"
	}
}

func listFunction(sb *strings.Builder, p *Prototype, full bool) {
	kind := "function"
	if p.LineDefined == 0 {
		kind = "main"
	}
	fmt.Fprintf(sb, "\n%s <%s:%d,%d> (%d instruction%s)\n", kind, displaySource(p.Source),
		p.LineDefined, p.LastLineDefined, len(p.Code), plural(len(p.Code)))
	vararg := ""
	if p.IsVararg() {
		vararg = "+"
	}
	fmt.Fprintf(sb, "%d%s param%s, %d slot%s, %d upvalue%s, ", p.NumParams, vararg, plural(p.NumParams),
		p.MaxStackSize, plural(p.MaxStackSize), len(p.Upvalues), plural(len(p.Upvalues)))
	fmt.Fprintf(sb, "%d local%s, %d constant%s, %d function%s\n", len(p.LocVars), plural(len(p.LocVars)),
		len(p.K), plural(len(p.K)), len(p.Prototypes), plural(len(p.Prototypes)))
	for pc := range p.Code {
		sb.WriteString(FormatInstruction(p, pc))
		sb.WriteByte('\n')
	}
	if full {
		listDebug(sb, p)
	}
	for _, c := range p.Prototypes {
		listFunction(sb, c, full)
	}
}

func listDebug(sb *strings.Builder, p *Prototype) {
	fmt.Fprintf(sb, "constants (%d):\n", len(p.K))
	for i, k := range p.K {
		fmt.Fprintf(sb, "\t%d\t%s\t%s\n", i, constantTag(k), k)
	}
	fmt.Fprintf(sb, "locals (%d):\n", len(p.LocVars))
	for i, lv := range p.LocVars {
		fmt.Fprintf(sb, "\t%d\t%s\t%d\t%d\n", i, lv.Name, lv.StartPC+1, lv.EndPC+1)
	}
	fmt.Fprintf(sb, "upvalues (%d):\n", len(p.Upvalues))
	for i, uv := range p.Upvalues {
		fmt.Fprintf(sb, "\t%d\t%s\t%d\t%d\n", i, upvalueName(p, i), boolInt(uv.InStack), uv.Index)
	}
}

func constantTag(v Value) string {
	switch v.Type {
	case TypeNil:
		return "N"
	case TypeFalse, TypeTrue:
		return "B"
	case TypeInt:
		return "I"
	case TypeFloat:
		return "F"
	case TypeString:
		return "S"
	}
	return "?"
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func upvalueName(p *Prototype, i int) string {
	if i < len(p.Upvalues) && p.Upvalues[i].Name != nil {
		return p.Upvalues[i].Name.String()
	}
	return "-"
}

func constantText(p *Prototype, i int) string {
	if i < len(p.K) {
		return p.K[i].String()
	}
	return "?"
}

// FormatInstruction renders instruction pc of p as one listing line:
// position, source line, mnemonic, operands and an explanatory comment.
func FormatInstruction(p *Prototype, pc int) string {
	i := p.Code[pc]
	op := i.Opcode()
	a, b, c, k := i.A(), i.B(), i.C(), i.K()
	line := "[-]"
	if l := p.Line(pc); l > 0 {
		line = fmt.Sprintf("[%d]", l)
	}
	var operands, comment string
	switch op.Mode() {
	case ModeABC:
		operands = fmt.Sprintf("%d %d %d", a, b, c)
	case ModeVABC:
		operands = fmt.Sprintf("%d %d %d", a, i.VB(), i.VC())
	case ModeABx:
		operands = fmt.Sprintf("%d %d", a, i.Bx())
	case ModeAsBx:
		operands = fmt.Sprintf("%d %d", a, i.SBx())
	case ModeAx:
		operands = fmt.Sprintf("%d", i.Ax())
	case ModeSJ:
		operands = fmt.Sprintf("%d", i.SJ())
	}
	switch op {
	case OpMove, OpUnm, OpBNot, OpNot, OpLen, OpGetTable, OpGetI, OpSetTable, OpSetI,
		OpAdd, OpSub, OpMul, OpMod, OpPow, OpDiv, OpIDiv, OpBAnd, OpBOr, OpBXor, OpShl, OpShr:
		operands = fmt.Sprintf("%d %d %d", a, b, c)
		if op == OpMove || op == OpUnm || op == OpBNot || op == OpNot || op == OpLen {
			operands = fmt.Sprintf("%d %d", a, b)
		}
		if k != 0 && (op == OpSetTable || op == OpSetI) {
			operands += "k"
			comment = constantText(p, c)
		}
	case OpLoadK:
		comment = constantText(p, i.Bx())
	case OpLoadFalse, OpLFalseSkip, OpLoadTrue, OpClose, OpTBC, OpReturn1:
		operands = fmt.Sprintf("%d", a)
	case OpReturn0:
		operands = ""
	case OpLoadNil:
		operands = fmt.Sprintf("%d %d", a, b)
		comment = fmt.Sprintf("%d out", b+1)
	case OpGetUpval, OpSetUpval:
		operands = fmt.Sprintf("%d %d", a, b)
		comment = upvalueName(p, b)
	case OpGetTabUp:
		comment = upvalueName(p, b) + " " + constantText(p, c)
	case OpGetField:
		comment = constantText(p, c)
	case OpSetTabUp:
		comment = upvalueName(p, a) + " " + constantText(p, b)
		if k != 0 {
			operands += "k"
			comment += " " + constantText(p, c)
		}
	case OpSetField:
		comment = constantText(p, b)
		if k != 0 {
			operands += "k"
			comment += " " + constantText(p, c)
		}
	case OpSelf:
		if k != 0 {
			operands += "k"
			comment = constantText(p, c)
		}
	case OpAddI, OpShrI, OpShlI:
		operands = fmt.Sprintf("%d %d %d", a, b, i.SC())
	case OpAddK, OpSubK, OpMulK, OpModK, OpPowK, OpDivK, OpIDivK, OpBAndK, OpBOrK, OpBXorK:
		comment = constantText(p, c)
	case OpMMBin:
		comment = Event(c).String()
	case OpMMBinI:
		operands = fmt.Sprintf("%d %d %d %d", a, i.SB(), c, k)
		comment = Event(c).String()
	case OpMMBinK:
		operands = fmt.Sprintf("%d %d %d %d", a, b, c, k)
		comment = Event(c).String() + " " + constantText(p, b)
	case OpConcat:
		operands = fmt.Sprintf("%d %d", a, b)
	case OpJmp:
		comment = fmt.Sprintf("to %d", i.SJ()+pc+2)
	case OpEq, OpLt, OpLe, OpTest:
		if op == OpTest {
			operands = fmt.Sprintf("%d %d", a, k)
		} else {
			operands = fmt.Sprintf("%d %d %d", a, b, k)
		}
	case OpEqK:
		operands = fmt.Sprintf("%d %d %d", a, b, k)
		comment = constantText(p, b)
	case OpEqI, OpLtI, OpLeI, OpGtI, OpGeI:
		operands = fmt.Sprintf("%d %d %d", a, i.SB(), k)
	case OpTestSet:
		operands = fmt.Sprintf("%d %d %d", a, b, k)
	case OpCall, OpTailCall:
		comment = callComment(b, c)
		if op == OpTailCall {
			comment = callComment(b, 0)
		}
	case OpReturn:
		if k != 0 {
			operands += "k"
		}
		if b == 0 {
			comment = "all out"
		} else {
			comment = fmt.Sprintf("%d out", b-1)
		}
	case OpForLoop, OpTForLoop:
		comment = fmt.Sprintf("to %d", pc-i.Bx()+2)
	case OpForPrep:
		comment = fmt.Sprintf("exit to %d", pc+i.Bx()+3)
	case OpTForPrep:
		comment = fmt.Sprintf("to %d", pc+i.Bx()+2)
	case OpTForCall:
		operands = fmt.Sprintf("%d %d", a, c)
	case OpSetList:
		if k != 0 {
			operands += "k"
		}
		if i.VB() == 0 {
			comment = "all in"
		} else {
			comment = fmt.Sprintf("%d in", i.VB())
		}
	case OpNewTable:
		if k != 0 {
			operands += "k"
		}
	case OpClosure:
		if bx := i.Bx(); bx < len(p.Prototypes) {
			comment = fmt.Sprintf("function <%d>", p.Prototypes[bx].LineDefined)
		}
	case OpVararg:
		operands = fmt.Sprintf("%d %d", a, c)
		if c == 0 {
			comment = "all out"
		} else {
			comment = fmt.Sprintf("%d out", c-1)
		}
	case OpVarargPrep:
		operands = fmt.Sprintf("%d", a)
	case OpErrNNil:
		if bx := i.Bx(); bx > 0 {
			comment = constantText(p, bx-1)
		}
	}
	s := fmt.Sprintf("\t%d\t%s\t%-9s\t%s", pc+1, line, op.Name(), operands)
	if comment != "" {
		s += "\t; " + comment
	}
	return s
}

func callComment(b, c int) string {
	in := "all in"
	if b > 0 {
		in = fmt.Sprintf("%d in", b-1)
	}
	out := "all out"
	if c > 0 {
		out = fmt.Sprintf("%d out", c-1)
	}
	return in + " " + out
}
