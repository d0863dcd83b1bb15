package hash

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/chazu/lunac/vm"
)

// Fingerprint computes the SHA-256 content hash of a compiled chunk.
//
// The hash covers code, constants, upvalue layout and nested prototypes,
// but no debug information: renaming locals, moving code to other lines or
// compiling under another chunk name leaves it unchanged.
func Fingerprint(p *vm.Prototype) [32]byte {
	return sha256.Sum256(Serialize(p))
}

// Hex returns the fingerprint of p as a hex string.
func Hex(p *vm.Prototype) string {
	h := Fingerprint(p)
	return hex.EncodeToString(h[:])
}
