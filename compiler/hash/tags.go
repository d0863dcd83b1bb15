package hash

// ---------------------------------------------------------------------------
// Frozen tag bytes for the prototype serialization format.
//
// IMPORTANT: These tags are FROZEN. Once assigned, a tag byte must never
// change meaning. Adding new tags is fine; changing existing ones breaks
// all previously computed fingerprints.
// ---------------------------------------------------------------------------

// HashVersion is the version prefix for the serialization format.
// Bumping this invalidates all existing fingerprints.
const HashVersion byte = 1

// Section tags.
const (
	TagReservedZero byte = 0x00 // version prefix / reserved

	TagPrototype byte = 0x01
	TagCode      byte = 0x02
	TagConstants byte = 0x03
	TagUpvalues  byte = 0x04
	TagChildren  byte = 0x05

	// Reserved 0x06-0x0F

	// Constant values
	TagNil    byte = 0x10
	TagFalse  byte = 0x11
	TagTrue   byte = 0x12
	TagInt    byte = 0x13
	TagFloat  byte = 0x14
	TagString byte = 0x15

	// Reserved 0xFE-0xFF
)

// allTags lists every defined tag for uniqueness verification in tests.
var allTags = []byte{
	TagReservedZero,
	TagPrototype, TagCode, TagConstants, TagUpvalues, TagChildren,
	TagNil, TagFalse, TagTrue, TagInt, TagFloat, TagString,
}
