package cache

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/lunac/vm"
)

// cborEncMode uses canonical mode so equal prototypes encode to equal
// bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cache: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// wireProto is the stored form of a vm.Prototype. Interned strings travel
// as plain text; an empty name stands for a stripped one.
type wireProto struct {
	Source          string      `cbor:"1,keyasint"`
	LineDefined     int         `cbor:"2,keyasint,omitempty"`
	LastLineDefined int         `cbor:"3,keyasint,omitempty"`
	NumParams       int         `cbor:"4,keyasint,omitempty"`
	Flag            uint8       `cbor:"5,keyasint,omitempty"`
	MaxStackSize    int         `cbor:"6,keyasint"`
	Code            []uint32    `cbor:"7,keyasint"`
	K               []wireValue `cbor:"8,keyasint,omitempty"`
	Protos          []wireProto `cbor:"9,keyasint,omitempty"`
	Upvalues        []wireUpval `cbor:"10,keyasint,omitempty"`
	LineInfo        []int8      `cbor:"11,keyasint,omitempty"`
	AbsLineInfo     [][2]int    `cbor:"12,keyasint,omitempty"`
	LocVars         []wireLocal `cbor:"13,keyasint,omitempty"`
}

type wireValue struct {
	Type  uint8   `cbor:"1,keyasint"`
	Int   int64   `cbor:"2,keyasint,omitempty"`
	Float float64 `cbor:"3,keyasint,omitempty"`
	Str   string  `cbor:"4,keyasint,omitempty"`
}

type wireUpval struct {
	Name    string `cbor:"1,keyasint,omitempty"`
	InStack bool   `cbor:"2,keyasint,omitempty"`
	Index   int    `cbor:"3,keyasint"`
	Kind    uint8  `cbor:"4,keyasint,omitempty"`
}

type wireLocal struct {
	Name    string `cbor:"1,keyasint"`
	StartPC int    `cbor:"2,keyasint"`
	EndPC   int    `cbor:"3,keyasint"`
}

// MarshalPrototype serializes a prototype tree to CBOR bytes.
func MarshalPrototype(p *vm.Prototype) ([]byte, error) {
	return cborEncMode.Marshal(toWire(p))
}

// UnmarshalPrototype deserializes a prototype tree, interning its strings
// in strs.
func UnmarshalPrototype(data []byte, strs *vm.StringTable) (*vm.Prototype, error) {
	var w wireProto
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("cache: unmarshal prototype: %w", err)
	}
	return fromWire(&w, strs)
}

func nameOf(s *vm.String) string {
	if s == nil {
		return ""
	}
	return s.String()
}

func toWire(p *vm.Prototype) wireProto {
	w := wireProto{
		Source:          p.Source,
		LineDefined:     p.LineDefined,
		LastLineDefined: p.LastLineDefined,
		NumParams:       p.NumParams,
		Flag:            p.Flag,
		MaxStackSize:    p.MaxStackSize,
		Code:            make([]uint32, len(p.Code)),
		LineInfo:        p.LineInfo,
	}
	for i, in := range p.Code {
		w.Code[i] = uint32(in)
	}
	for _, k := range p.K {
		w.K = append(w.K, wireValue{Type: uint8(k.Type), Int: k.Int, Float: k.Float, Str: nameOf(k.Str)})
	}
	for _, c := range p.Prototypes {
		w.Protos = append(w.Protos, toWire(c))
	}
	for _, up := range p.Upvalues {
		w.Upvalues = append(w.Upvalues, wireUpval{Name: nameOf(up.Name), InStack: up.InStack, Index: up.Index, Kind: up.Kind})
	}
	for _, a := range p.AbsLineInfo {
		w.AbsLineInfo = append(w.AbsLineInfo, [2]int{a.PC, a.Line})
	}
	for _, lv := range p.LocVars {
		w.LocVars = append(w.LocVars, wireLocal{Name: nameOf(lv.Name), StartPC: lv.StartPC, EndPC: lv.EndPC})
	}
	return w
}

func fromWire(w *wireProto, strs *vm.StringTable) (*vm.Prototype, error) {
	p := &vm.Prototype{
		Source:          w.Source,
		LineDefined:     w.LineDefined,
		LastLineDefined: w.LastLineDefined,
		NumParams:       w.NumParams,
		Flag:            w.Flag,
		MaxStackSize:    w.MaxStackSize,
		Code:            make([]vm.Instruction, len(w.Code)),
		LineInfo:        w.LineInfo,
	}
	for i, in := range w.Code {
		p.Code[i] = vm.Instruction(in)
	}
	if len(p.LineInfo) != 0 && len(p.LineInfo) != len(p.Code) {
		return nil, fmt.Errorf("cache: %d line entries for %d instructions", len(p.LineInfo), len(p.Code))
	}

	intern := func(s string) *vm.String {
		if s == "" {
			return nil
		}
		return strs.Intern(s)
	}

	for _, k := range w.K {
		v := vm.Value{Type: vm.Type(k.Type), Int: k.Int, Float: k.Float}
		switch v.Type {
		case vm.TypeNil, vm.TypeFalse, vm.TypeTrue, vm.TypeInt, vm.TypeFloat:
		case vm.TypeString:
			v.Str = strs.Intern(k.Str) // "" is a valid string constant
		default:
			return nil, fmt.Errorf("cache: bad constant type %d", k.Type)
		}
		p.K = append(p.K, v)
	}
	for i := range w.Protos {
		c, err := fromWire(&w.Protos[i], strs)
		if err != nil {
			return nil, err
		}
		p.Prototypes = append(p.Prototypes, c)
	}
	for _, up := range w.Upvalues {
		p.Upvalues = append(p.Upvalues, vm.UpvalueDesc{Name: intern(up.Name), InStack: up.InStack, Index: up.Index, Kind: up.Kind})
	}
	for _, a := range w.AbsLineInfo {
		p.AbsLineInfo = append(p.AbsLineInfo, vm.AbsLineInfo{PC: a[0], Line: a[1]})
	}
	for _, lv := range w.LocVars {
		p.LocVars = append(p.LocVars, vm.LocVar{Name: intern(lv.Name), StartPC: lv.StartPC, EndPC: lv.EndPC})
	}
	return p, nil
}
