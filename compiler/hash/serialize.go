package hash

import (
	"encoding/binary"
	"math"

	"github.com/chazu/lunac/vm"
)

// ---------------------------------------------------------------------------
// Deterministic binary serialization of a prototype tree.
//
// Encoding conventions:
//   - First byte: HashVersion (0x01)
//   - Integers: big-endian fixed-width (int64=8B, uint32=4B)
//   - Floats: IEEE 754 big-endian 8B
//   - Strings: uint32 big-endian length + raw bytes
//   - Small header fields: single byte
//   - Nested prototypes: serialized inline, in order
// ---------------------------------------------------------------------------

// Serialize produces a deterministic byte serialization of p and its nested
// prototypes. The returned bytes are suitable for hashing with SHA-256.
func Serialize(p *vm.Prototype) []byte {
	s := &serializer{buf: make([]byte, 0, 256)}
	s.writeByte(HashVersion)
	s.serializeProto(p)
	return s.buf
}

type serializer struct {
	buf []byte
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeFloat64(v float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeBool(v bool) {
	if v {
		s.writeByte(1)
	} else {
		s.writeByte(0)
	}
}

func (s *serializer) serializeProto(p *vm.Prototype) {
	s.writeByte(TagPrototype)
	s.writeByte(byte(p.NumParams))
	s.writeByte(p.Flag)
	s.writeByte(byte(p.MaxStackSize))

	s.writeByte(TagCode)
	s.writeUint32(uint32(len(p.Code)))
	for _, in := range p.Code {
		s.writeUint32(uint32(in))
	}

	s.writeByte(TagConstants)
	s.writeUint32(uint32(len(p.K)))
	for _, k := range p.K {
		s.serializeValue(k)
	}

	s.writeByte(TagUpvalues)
	s.writeUint32(uint32(len(p.Upvalues)))
	for _, up := range p.Upvalues {
		s.writeBool(up.InStack)
		s.writeByte(byte(up.Index))
		s.writeByte(byte(up.Kind))
	}

	s.writeByte(TagChildren)
	s.writeUint32(uint32(len(p.Prototypes)))
	for _, c := range p.Prototypes {
		s.serializeProto(c)
	}
}

func (s *serializer) serializeValue(v vm.Value) {
	switch v.Type {
	case vm.TypeNil:
		s.writeByte(TagNil)
	case vm.TypeFalse:
		s.writeByte(TagFalse)
	case vm.TypeTrue:
		s.writeByte(TagTrue)
	case vm.TypeInt:
		s.writeByte(TagInt)
		s.writeInt64(v.Int)
	case vm.TypeFloat:
		s.writeByte(TagFloat)
		s.writeFloat64(v.Float)
	case vm.TypeString:
		s.writeByte(TagString)
		s.writeString(v.Str.String())
	}
}
