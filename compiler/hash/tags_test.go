package hash

import (
	"testing"

	"github.com/chazu/lunac/vm"
)

func TestTagUniqueness(t *testing.T) {
	seen := make(map[byte]bool, len(allTags))
	for _, tag := range allTags {
		if seen[tag] {
			t.Errorf("duplicate tag: 0x%02X", tag)
		}
		seen[tag] = true
	}
}

func TestTagRanges(t *testing.T) {
	sections := []byte{TagPrototype, TagCode, TagConstants, TagUpvalues, TagChildren}
	for _, tag := range sections {
		if tag == TagReservedZero || tag > 0x0F {
			t.Errorf("section tag 0x%02X outside 0x01-0x0F", tag)
		}
	}
	values := []byte{TagNil, TagFalse, TagTrue, TagInt, TagFloat, TagString}
	for _, tag := range values {
		if tag < 0x10 || tag >= 0xFE {
			t.Errorf("value tag 0x%02X outside 0x10-0xFD", tag)
		}
	}
}

// Every constant type a prototype can hold has its own value tag.
func TestValueTagPerConstantType(t *testing.T) {
	p := &vm.Prototype{K: []vm.Value{
		vm.Nil, vm.Bool(false), vm.Bool(true), vm.Int(1), vm.Float(1),
		vm.Str(vm.NewStringTable().Intern("s")),
	}}
	data := Serialize(p)
	for _, tag := range []byte{TagNil, TagFalse, TagTrue, TagInt, TagFloat, TagString} {
		found := false
		for _, b := range data {
			if b == tag {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("value tag 0x%02X missing from serialization", tag)
		}
	}
}

func TestHashVersionNonZero(t *testing.T) {
	if HashVersion == 0 {
		t.Error("HashVersion must be non-zero")
	}
}
