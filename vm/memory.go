package vm

// ---------------------------------------------------------------------------
// Regions
// ---------------------------------------------------------------------------

// Region names a part of the story file's address space.
type Region int

const (
	RegionHeader Region = iota
	RegionDynamic
	RegionStatic
	RegionHigh
	RegionOutside
)

func (r Region) String() string {
	switch r {
	case RegionHeader:
		return "header"
	case RegionDynamic:
		return "dynamic"
	case RegionStatic:
		return "static"
	case RegionHigh:
		return "high"
	default:
		return "outside"
	}
}

// HeaderSize is the fixed size of the story file header.
const HeaderSize = 64

// Header bytes the running program may rewrite (Flags 2).
const (
	flags2Hi = 0x10
	flags2Lo = 0x11
)

// ---------------------------------------------------------------------------
// Image: the story file's flat memory
// ---------------------------------------------------------------------------

// Image is the flat story-file byte buffer plus its region boundaries.
// All accessors are bounds-checked. Writes are only legal in dynamic memory
// (and the Flags 2 header word); anything else is a fatal error.
type Image struct {
	data       []byte
	staticBase uint32
	highBase   uint32

	journal *journal // records writes while a step is in flight
}

// NewImage copies data into a new Image. The buffer must hold at least a
// header and its static-memory base must lie inside the buffer.
func NewImage(data []byte) (*Image, error) {
	if len(data) < HeaderSize {
		return nil, corrupted("story file is %d bytes, shorter than the %d-byte header", len(data), HeaderSize)
	}
	staticBase := uint32(data[hdrStaticBase])<<8 | uint32(data[hdrStaticBase+1])
	if staticBase > uint32(len(data)) {
		return nil, corrupted("static memory base 0x%04x beyond file length 0x%05x", staticBase, len(data))
	}
	if staticBase < HeaderSize {
		return nil, corrupted("static memory base 0x%04x inside the header", staticBase)
	}
	highBase := uint32(data[hdrHighBase])<<8 | uint32(data[hdrHighBase+1])
	if highBase > uint32(len(data)) {
		return nil, corrupted("high memory base 0x%04x beyond file length 0x%05x", highBase, len(data))
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	return &Image{
		data:       buf,
		staticBase: staticBase,
		highBase:   highBase,
	}, nil
}

// Len returns the size of the image in bytes.
func (m *Image) Len() uint32 {
	return uint32(len(m.data))
}

// StaticBase returns the first address of static memory.
func (m *Image) StaticBase() uint32 {
	return m.staticBase
}

// HighBase returns the first address of high memory.
func (m *Image) HighBase() uint32 {
	return m.highBase
}

// RegionOf classifies an address. High memory may overlap static memory in
// real story files; the overlap is reported as high. With no high base
// everything past dynamic memory is static.
func (m *Image) RegionOf(addr uint32) Region {
	switch {
	case addr >= uint32(len(m.data)):
		return RegionOutside
	case addr < HeaderSize:
		return RegionHeader
	case addr < m.staticBase:
		return RegionDynamic
	case addr >= m.highBase && m.highBase != 0:
		return RegionHigh
	default:
		return RegionStatic
	}
}

// ReadByte returns the byte at addr.
func (m *Image) ReadByte(addr uint32) (byte, error) {
	if addr >= uint32(len(m.data)) {
		return 0, memoryError(addr, "read past end of memory (0x%05x bytes)", len(m.data))
	}
	return m.data[addr], nil
}

// ReadWord returns the big-endian word at addr.
func (m *Image) ReadWord(addr uint32) (uint16, error) {
	if addr+1 >= uint32(len(m.data)) || addr+1 < addr {
		return 0, memoryError(addr, "word read past end of memory (0x%05x bytes)", len(m.data))
	}
	return uint16(m.data[addr])<<8 | uint16(m.data[addr+1]), nil
}

// ReadBytes returns a copy of n bytes starting at addr.
func (m *Image) ReadBytes(addr uint32, n int) ([]byte, error) {
	end := uint64(addr) + uint64(n)
	if n < 0 || end > uint64(len(m.data)) {
		return nil, memoryError(addr, "read of %d bytes past end of memory", n)
	}
	out := make([]byte, n)
	copy(out, m.data[addr:end])
	return out, nil
}

// checkWrite validates that addr may be written by the running program.
func (m *Image) checkWrite(addr uint32) error {
	switch r := m.RegionOf(addr); r {
	case RegionDynamic:
		return nil
	case RegionHeader:
		if addr == flags2Hi || addr == flags2Lo {
			return nil
		}
		return writeViolation(addr, r)
	default:
		return writeViolation(addr, r)
	}
}

// WriteByte stores a byte in dynamic memory.
func (m *Image) WriteByte(addr uint32, v byte) error {
	if err := m.checkWrite(addr); err != nil {
		return err
	}
	m.poke(addr, v)
	return nil
}

// WriteWord stores a big-endian word in dynamic memory. Both bytes are
// validated before either is written.
func (m *Image) WriteWord(addr uint32, v uint16) error {
	if err := m.checkWrite(addr); err != nil {
		return err
	}
	if err := m.checkWrite(addr + 1); err != nil {
		return err
	}
	m.poke(addr, byte(v>>8))
	m.poke(addr+1, byte(v))
	return nil
}

// poke writes without region checks. Used for interpreter-owned header
// fields and by WriteByte/WriteWord after validation.
func (m *Image) poke(addr uint32, v byte) {
	if m.journal != nil {
		m.journal.recordByte(addr, m.data[addr])
	}
	m.data[addr] = v
}

// pokeWord writes a word without region checks.
func (m *Image) pokeWord(addr uint32, v uint16) {
	m.poke(addr, byte(v>>8))
	m.poke(addr+1, byte(v))
}

// byteAt and wordAt read without bounds errors; callers have validated addr.
func (m *Image) byteAt(addr uint32) byte {
	return m.data[addr]
}

func (m *Image) wordAt(addr uint32) uint16 {
	return uint16(m.data[addr])<<8 | uint16(m.data[addr+1])
}

// Dynamic returns a copy of dynamic memory (header included).
func (m *Image) Dynamic() []byte {
	out := make([]byte, m.staticBase)
	copy(out, m.data[:m.staticBase])
	return out
}

// restoreDynamic overwrites dynamic memory from a saved copy.
func (m *Image) restoreDynamic(dyn []byte) error {
	if uint32(len(dyn)) != m.staticBase {
		return malformed("dynamic memory is %d bytes, image expects %d", len(dyn), m.staticBase)
	}
	if m.journal != nil {
		m.journal.record(journalEntry{op: jDynamic, block: m.Dynamic()})
	}
	copy(m.data[:m.staticBase], dyn)
	return nil
}

// Bytes returns the live buffer. Callers must not retain it across steps.
func (m *Image) Bytes() []byte {
	return m.data
}
