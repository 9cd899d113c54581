package vm

import "fmt"

// ---------------------------------------------------------------------------
// Version profiles
// ---------------------------------------------------------------------------

// Feature is a bit set of version-dependent capabilities.
type Feature uint16

const (
	// FeatureAbbreviations: z-char 1 introduces an abbreviation (v2+).
	FeatureAbbreviations Feature = 1 << iota
	// FeatureFullAbbreviations: z-chars 1-3 introduce abbreviations (v3+).
	FeatureFullAbbreviations
	// FeatureStatusLine: the interpreter draws the status line (v1-3).
	FeatureStatusLine
	FeatureSound
	FeatureColor
	FeatureGraphics
	FeatureUnicode
	FeatureExtendedOpcodes
	// FeatureRoutineOffsets: packed addresses carry header offsets (v6-7).
	FeatureRoutineOffsets
	// FeatureShiftLock: z-chars 2-5 are v1/v2 shift and shift-lock codes.
	FeatureShiftLock
)

// Profile holds the static, per-version layout constants. Every component
// that touches raw story bytes consults a Profile instead of branching on
// the version number.
type Profile struct {
	Version           byte
	MaxObjects        int
	AttributeBits     int // 32 or 48
	ObjectRecordSize  int // bytes per object record
	PropertyDefaults  int // words in the property defaults block
	MaxPropertyLength int
	PackDivisor       uint32
	DictWordBytes     int // encoded text bytes per dictionary entry
	ZCharBudget       int // z-chars per encoded dictionary word
	FileLengthScale   uint32
	Features          Feature
}

// Has reports whether the profile supports every feature in f.
func (p Profile) Has(f Feature) bool {
	return p.Features&f == f
}

// AttributeBytes returns the size of the attribute field in an object record.
func (p Profile) AttributeBytes() int {
	return p.AttributeBits / 8
}

// LinkBytes returns the width of a parent/sibling/child link.
func (p Profile) LinkBytes() int {
	if p.Version <= 3 {
		return 1
	}
	return 2
}

// MaxLocals is fixed across versions but kept here with the rest of the layout.
const MaxLocals = 15

var (
	smallLayout = Profile{
		MaxObjects:        255,
		AttributeBits:     32,
		ObjectRecordSize:  9,
		PropertyDefaults:  31,
		MaxPropertyLength: 8,
		DictWordBytes:     4,
		ZCharBudget:       6,
	}
	largeLayout = Profile{
		MaxObjects:        65535,
		AttributeBits:     48,
		ObjectRecordSize:  14,
		PropertyDefaults:  63,
		MaxPropertyLength: 64,
		DictWordBytes:     6,
		ZCharBudget:       9,
	}
)

var profiles = func() map[byte]Profile {
	m := make(map[byte]Profile, 8)
	add := func(v byte, base Profile, divisor, scale uint32, f Feature) {
		p := base
		p.Version = v
		p.PackDivisor = divisor
		p.FileLengthScale = scale
		p.Features = f
		m[v] = p
	}
	add(1, smallLayout, 2, 2, FeatureStatusLine|FeatureShiftLock)
	add(2, smallLayout, 2, 2, FeatureStatusLine|FeatureShiftLock|FeatureAbbreviations)
	add(3, smallLayout, 2, 2, FeatureStatusLine|FeatureAbbreviations|FeatureFullAbbreviations|FeatureSound)
	full := FeatureAbbreviations | FeatureFullAbbreviations | FeatureSound
	add(4, largeLayout, 4, 4, full)
	ext := full | FeatureColor | FeatureUnicode | FeatureExtendedOpcodes
	add(5, largeLayout, 4, 4, ext)
	add(6, largeLayout, 4, 8, ext|FeatureGraphics|FeatureRoutineOffsets)
	add(7, largeLayout, 4, 8, ext|FeatureRoutineOffsets)
	add(8, largeLayout, 8, 8, ext)
	return m
}()

// ProfileFor returns the profile for a version byte. An unknown version
// means the story file is corrupt.
func ProfileFor(version byte) (Profile, error) {
	p, ok := profiles[version]
	if !ok {
		return Profile{}, corrupted("unsupported story version %d", version)
	}
	return p, nil
}

// MustProfile is ProfileFor for versions known to be valid.
func MustProfile(version byte) Profile {
	p, err := ProfileFor(version)
	if err != nil {
		panic(fmt.Sprintf("vm: %v", err))
	}
	return p
}

// Versions lists every supported version in ascending order.
func Versions() []byte {
	return []byte{1, 2, 3, 4, 5, 6, 7, 8}
}

// ---------------------------------------------------------------------------
// Packed addresses
// ---------------------------------------------------------------------------

// Pack converts a byte address to a packed address by truncating division.
// The low-order bits are lost; Unpack never tries to recover them.
func Pack(addr uint32, version byte) uint16 {
	return uint16(addr / MustProfile(version).PackDivisor)
}

// Unpack converts a packed address back to a byte address.
func Unpack(packed uint16, version byte) uint32 {
	return uint32(packed) * MustProfile(version).PackDivisor
}
