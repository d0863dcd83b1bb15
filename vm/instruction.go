package vm

// ---------------------------------------------------------------------------
// Instruction layout
// ---------------------------------------------------------------------------

// Instruction is one fixed-width bytecode word.
//
//	iABC   C(8)  | B(8)  | k(1) | A(8) | Op(7)
//	ivABC  vC(10) | vB(6) | k(1) | A(8) | Op(7)
//	iABx   Bx(17)        | A(8)        | Op(7)
//	iAsBx  sBx(17)       | A(8)        | Op(7)
//	iAx    Ax(25)                      | Op(7)
//	isJ    sJ(25)                      | Op(7)
type Instruction uint32

const (
	SizeOp = 7
	SizeA  = 8
	SizeB  = 8
	SizeC  = 8
	SizeK  = 1
	SizeVB = 6
	SizeVC = 10
	SizeBx = SizeC + SizeB + SizeK
	SizeAx = SizeBx + SizeA
	SizeSJ = SizeBx + SizeA

	PosOp = 0
	PosA  = PosOp + SizeOp
	PosK  = PosA + SizeA
	PosB  = PosK + SizeK
	PosC  = PosB + SizeB
	PosVB = PosK + SizeK
	PosVC = PosVB + SizeVB
	PosBx = PosK
	PosAx = PosA
	PosSJ = PosA
)

const (
	MaxArgA  = 1<<SizeA - 1
	MaxArgB  = 1<<SizeB - 1
	MaxArgC  = 1<<SizeC - 1
	MaxArgVB = 1<<SizeVB - 1
	MaxArgVC = 1<<SizeVC - 1
	MaxArgBx = 1<<SizeBx - 1
	MaxArgAx = 1<<SizeAx - 1
	MaxArgSJ = 1<<SizeSJ - 1

	OffsetSBx = MaxArgBx >> 1
	OffsetSJ  = MaxArgSJ >> 1
	OffsetSC  = MaxArgC >> 1

	// NoReg marks "no register" in test instructions.
	NoReg = MaxArgA

	// MultRet is the result count of an open call or vararg.
	MultRet = -1
)

func mask1(n, p uint) Instruction { return ^(^Instruction(0) << n) << p }

func (i Instruction) arg(pos, size uint) int {
	return int(i>>pos) & int(^(^uint32(0) << size))
}

func (i *Instruction) setArg(v int, pos, size uint) {
	*i = *i&^mask1(size, pos) | Instruction(v)<<pos&mask1(size, pos)
}

func (i Instruction) Opcode() Opcode { return Opcode(i & (1<<SizeOp - 1)) }
func (i Instruction) A() int         { return i.arg(PosA, SizeA) }
func (i Instruction) B() int         { return i.arg(PosB, SizeB) }
func (i Instruction) C() int         { return i.arg(PosC, SizeC) }
func (i Instruction) K() int         { return i.arg(PosK, SizeK) }
func (i Instruction) VB() int        { return i.arg(PosVB, SizeVB) }
func (i Instruction) VC() int        { return i.arg(PosVC, SizeVC) }
func (i Instruction) Bx() int        { return i.arg(PosBx, SizeBx) }
func (i Instruction) SBx() int       { return i.arg(PosBx, SizeBx) - OffsetSBx }
func (i Instruction) Ax() int        { return i.arg(PosAx, SizeAx) }
func (i Instruction) SJ() int        { return i.arg(PosSJ, SizeSJ) - OffsetSJ }

// SB and SC read B and C as excess-K signed immediates.
func (i Instruction) SB() int { return i.B() - OffsetSC }
func (i Instruction) SC() int { return i.C() - OffsetSC }

func (i *Instruction) SetOpcode(op Opcode) { i.setArg(int(op), PosOp, SizeOp) }
func (i *Instruction) SetA(v int)          { i.setArg(v, PosA, SizeA) }
func (i *Instruction) SetB(v int)          { i.setArg(v, PosB, SizeB) }
func (i *Instruction) SetC(v int)          { i.setArg(v, PosC, SizeC) }
func (i *Instruction) SetK(v int)          { i.setArg(v, PosK, SizeK) }
func (i *Instruction) SetBx(v int)         { i.setArg(v, PosBx, SizeBx) }
func (i *Instruction) SetSBx(v int)        { i.setArg(v+OffsetSBx, PosBx, SizeBx) }
func (i *Instruction) SetSJ(v int)         { i.setArg(v+OffsetSJ, PosSJ, SizeSJ) }

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

func CreateABCk(op Opcode, a, b, c, k int) Instruction {
	return Instruction(op) | Instruction(a)<<PosA | Instruction(b)<<PosB |
		Instruction(c)<<PosC | Instruction(k)<<PosK
}

func CreateVABCk(op Opcode, a, b, c, k int) Instruction {
	return Instruction(op) | Instruction(a)<<PosA | Instruction(b)<<PosVB |
		Instruction(c)<<PosVC | Instruction(k)<<PosK
}

func CreateABx(op Opcode, a, bx int) Instruction {
	return Instruction(op) | Instruction(a)<<PosA | Instruction(bx)<<PosBx
}

func CreateAsBx(op Opcode, a, sbx int) Instruction {
	return CreateABx(op, a, sbx+OffsetSBx)
}

func CreateAx(op Opcode, ax int) Instruction {
	return Instruction(op) | Instruction(ax)<<PosAx
}

func CreateSJ(op Opcode, sj, k int) Instruction {
	return Instruction(op) | Instruction(sj+OffsetSJ)<<PosSJ | Instruction(k)<<PosK
}

// IsTest reports whether the instruction must be followed by a jump.
func (i Instruction) IsTest() bool { return i.Opcode().Info().Test }

// SetsTop reports whether the instruction leaves an open result list.
func (i Instruction) SetsTop() bool {
	info := i.Opcode().Info()
	return info.SetsTop && i.C() == 0 || i.Opcode() == OpTailCall
}

// UsesTop reports whether the instruction consumes an open result list.
func (i Instruction) UsesTop() bool {
	info := i.Opcode().Info()
	return info.UsesTop && i.B() == 0
}
