package vm

import (
	"fmt"
	"strings"
)

// Header field offsets.
const (
	hdrVersion          = 0x00
	hdrFlags1           = 0x01
	hdrRelease          = 0x02
	hdrHighBase         = 0x04
	hdrInitialPC        = 0x06
	hdrDictionary       = 0x08
	hdrObjectTable      = 0x0A
	hdrGlobals          = 0x0C
	hdrStaticBase       = 0x0E
	hdrFlags2           = 0x10
	hdrSerial           = 0x12
	hdrAbbreviations    = 0x18
	hdrFileLength       = 0x1A
	hdrChecksum         = 0x1C
	hdrInterpreterNum   = 0x1E
	hdrInterpreterVer   = 0x1F
	hdrScreenLines      = 0x20
	hdrScreenColumns    = 0x21
	hdrScreenWidth      = 0x22
	hdrScreenHeight     = 0x24
	hdrFontWidth        = 0x26 // v5: width; v6: height
	hdrFontHeight       = 0x27
	hdrRoutineOffset    = 0x28
	hdrStringOffset     = 0x2A
	hdrDefaultBG        = 0x2C
	hdrDefaultFG        = 0x2D
	hdrTerminatingChars = 0x2E
	hdrStandardRevision = 0x32
	hdrAlphabetTable    = 0x34
	hdrExtensionTable   = 0x36
)

// Flags 1 bits the interpreter sets.
const (
	flags1V3StatusUnavailable = 1 << 4
	flags1V3SplitScreen       = 1 << 5
	flags1V3VariableFont      = 1 << 6
	flags1Colors              = 1 << 0
	flags1Bold                = 1 << 2
	flags1Italic              = 1 << 3
	flags1FixedSpace          = 1 << 4
	flags1TimedInput          = 1 << 7
)

// Flags 2 bits.
const (
	flags2Transcript = 1 << 0
	flags2FixedPitch = 1 << 1
	flags2Undo       = 1 << 4
)

// Header is the parsed 64-byte story header. It is read once at load; the
// few fields the program may rewrite are read live from memory.
type Header struct {
	Version          byte
	Flags1           byte
	Release          uint16
	HighBase         uint16
	InitialPC        uint16
	Dictionary       uint16
	ObjectTable      uint16
	Globals          uint16
	StaticBase       uint16
	Flags2           uint16
	Serial           string
	Abbreviations    uint16
	FileLength       uint32 // in bytes, already scaled by version
	Checksum         uint16
	RoutineOffset    uint16
	StringOffset     uint16
	TerminatingChars uint16
	AlphabetTable    uint16
	ExtensionTable   uint16
}

func be16(b []byte, off int) uint16 {
	return uint16(b[off])<<8 | uint16(b[off+1])
}

// ParseHeader decodes the header fields of a story file.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, corrupted("story file is %d bytes, shorter than the %d-byte header", len(data), HeaderSize)
	}
	p, err := ProfileFor(data[hdrVersion])
	if err != nil {
		return Header{}, err
	}

	serial := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7E {
			return '?'
		}
		return r
	}, string(data[hdrSerial:hdrSerial+6]))

	return Header{
		Version:          data[hdrVersion],
		Flags1:           data[hdrFlags1],
		Release:          be16(data, hdrRelease),
		HighBase:         be16(data, hdrHighBase),
		InitialPC:        be16(data, hdrInitialPC),
		Dictionary:       be16(data, hdrDictionary),
		ObjectTable:      be16(data, hdrObjectTable),
		Globals:          be16(data, hdrGlobals),
		StaticBase:       be16(data, hdrStaticBase),
		Flags2:           be16(data, hdrFlags2),
		Serial:           serial,
		Abbreviations:    be16(data, hdrAbbreviations),
		FileLength:       uint32(be16(data, hdrFileLength)) * p.FileLengthScale,
		Checksum:         be16(data, hdrChecksum),
		RoutineOffset:    be16(data, hdrRoutineOffset),
		StringOffset:     be16(data, hdrStringOffset),
		TerminatingChars: be16(data, hdrTerminatingChars),
		AlphabetTable:    be16(data, hdrAlphabetTable),
		ExtensionTable:   be16(data, hdrExtensionTable),
	}, nil
}

type headerTable struct {
	name string
	addr uint16
}

// validate checks that every non-zero table pointer in the header lands
// inside the image. Tables that run past the end are caught by the bounds
// checks on the reads that use them.
func (h Header) validate(p Profile, size uint32) error {
	tables := []headerTable{
		{"object table", h.ObjectTable},
		{"globals table", h.Globals},
		{"dictionary", h.Dictionary},
	}
	if p.Has(FeatureAbbreviations) {
		tables = append(tables, headerTable{"abbreviation table", h.Abbreviations})
	}
	if p.Version >= 5 {
		tables = append(tables,
			headerTable{"alphabet table", h.AlphabetTable},
			headerTable{"extension table", h.ExtensionTable},
			headerTable{"terminating characters table", h.TerminatingChars},
		)
	}
	for _, t := range tables {
		if t.addr != 0 && uint32(t.addr) >= size {
			return corrupted("%s address 0x%04x outside the %d-byte image", t.name, t.addr, size)
		}
	}
	return nil
}

// StoryID identifies a particular build of a story: release, serial and
// checksum together.
type StoryID struct {
	Release  uint16
	Serial   string
	Checksum uint16
}

// String formats the id as release.serial.checksum.
func (id StoryID) String() string {
	return fmt.Sprintf("%d.%s.%04x", id.Release, id.Serial, id.Checksum)
}

// ID returns the StoryID of the header.
func (h Header) ID() StoryID {
	return StoryID{Release: h.Release, Serial: h.Serial, Checksum: h.Checksum}
}
