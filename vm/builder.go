package vm

import (
	"bytes"
	"sort"

	"github.com/pkg/errors"
)

// ---------------------------------------------------------------------------
// Story builder
// ---------------------------------------------------------------------------

// StoryBuilder assembles a story file in memory: header, globals, object
// table, dictionary and code. Data is laid out first, so code bodies can
// refer to data addresses directly; routine and string addresses are
// patched once all code is placed.
type StoryBuilder struct {
	profile Profile
	enc     *Codec

	globals  [240]uint16
	defaults []uint16
	objects  []ObjectSpec
	abbrevs  map[int]string
	arrays   []array
	dictSeps string
	words    []string
	hasDict  bool

	main     func(c *Code)
	routines []routineSpec

	addrs        map[string]uint32
	routineAddrs map[string]uint32
	recordBase   uint32
}

// ObjectSpec describes one object. Properties are written in descending
// id order whatever the map order.
type ObjectSpec struct {
	Name       string
	Attributes []int
	Parent     uint16
	Sibling    uint16
	Child      uint16
	Properties map[uint8][]byte
}

type array struct {
	name string
	data []byte
}

type routineSpec struct {
	name   string
	locals []uint16
	body   func(c *Code)
}

// NewStoryBuilder starts a story for version.
func NewStoryBuilder(version byte) *StoryBuilder {
	p := MustProfile(version)
	enc, _ := NewCodec(nil, p, 0, 0, nil)
	return &StoryBuilder{
		profile:      p,
		enc:          enc,
		defaults:     make([]uint16, p.PropertyDefaults),
		abbrevs:      map[int]string{},
		addrs:        map[string]uint32{},
		routineAddrs: map[string]uint32{},
	}
}

// Global sets the initial value of global g (0-239).
func (b *StoryBuilder) Global(g int, v uint16) *StoryBuilder {
	b.globals[g] = v
	return b
}

// PropertyDefault sets the default value of property n.
func (b *StoryBuilder) PropertyDefault(n uint8, v uint16) *StoryBuilder {
	b.defaults[n-1] = v
	return b
}

// Object appends an object and returns its id.
func (b *StoryBuilder) Object(o ObjectSpec) uint16 {
	b.objects = append(b.objects, o)
	return uint16(len(b.objects))
}

// Abbreviation sets abbreviation i (0-95).
func (b *StoryBuilder) Abbreviation(i int, text string) *StoryBuilder {
	b.abbrevs[i] = text
	return b
}

// Array reserves a named block of dynamic memory.
func (b *StoryBuilder) Array(name string, data []byte) *StoryBuilder {
	b.arrays = append(b.arrays, array{name: name, data: data})
	return b
}

// Dictionary sets the word separators and words.
func (b *StoryBuilder) Dictionary(separators string, words ...string) *StoryBuilder {
	b.hasDict = true
	b.dictSeps = separators
	b.words = words
	return b
}

// Main sets the code executed first. In v6 it becomes the main routine.
func (b *StoryBuilder) Main(body func(c *Code)) *StoryBuilder {
	b.main = body
	return b
}

// Routine adds a named routine with the given local initial values.
// Initial values are only stored in v1-4.
func (b *StoryBuilder) Routine(name string, locals []uint16, body func(c *Code)) *StoryBuilder {
	b.routines = append(b.routines, routineSpec{name: name, locals: locals, body: body})
	return b
}

// Addr returns the address of a named array, valid once layout has run.
func (b *StoryBuilder) Addr(name string) uint32 {
	return b.addrs[name]
}

// RoutineAddr returns the byte address of a routine after Build.
func (b *StoryBuilder) RoutineAddr(name string) uint32 {
	return b.routineAddrs[name]
}

// ObjectRecordAddr returns the address of object id's record after Build.
func (b *StoryBuilder) ObjectRecordAddr(id uint16) uint32 {
	return b.recordBase + uint32(id-1)*uint32(b.profile.ObjectRecordSize)
}

type storyBuffer struct {
	data []byte
}

func (s *storyBuffer) pos() uint32 { return uint32(len(s.data)) }

func (s *storyBuffer) put(p ...byte) { s.data = append(s.data, p...) }

func (s *storyBuffer) putWord(w uint16) { s.data = append(s.data, byte(w>>8), byte(w)) }

func (s *storyBuffer) setWord(at uint32, w uint16) {
	s.data[at] = byte(w >> 8)
	s.data[at+1] = byte(w)
}

func (s *storyBuffer) align(n uint32) {
	for s.pos()%n != 0 {
		s.data = append(s.data, 0)
	}
}

// Build lays out and returns the story file.
func (b *StoryBuilder) Build() ([]byte, error) {
	p := b.profile
	s := &storyBuffer{data: make([]byte, HeaderSize)}

	globals := s.pos()
	for _, g := range b.globals {
		s.putWord(g)
	}

	for _, a := range b.arrays {
		b.addrs[a.name] = s.pos()
		s.put(a.data...)
	}

	s.align(2)
	objectTable := s.pos()
	for _, d := range b.defaults {
		s.putWord(d)
	}
	b.recordBase = s.pos()
	records := s.pos()
	// a zeroed record after the last object ends the table
	s.put(make([]byte, (len(b.objects)+1)*p.ObjectRecordSize)...)
	for i, o := range b.objects {
		rec := records + uint32(i*p.ObjectRecordSize)
		if err := b.writeRecord(s, rec, o); err != nil {
			return nil, err
		}
	}

	var abbrevTable uint32
	if p.Has(FeatureAbbreviations) {
		s.align(2)
		abbrevTable = s.pos()
		s.put(make([]byte, 96*2)...)
	}

	s.align(2)
	staticBase := s.pos()

	for i, text := range b.abbrevs {
		if i < 0 || i >= 96 || abbrevTable == 0 {
			return nil, errors.Errorf("abbreviation %d not supported", i)
		}
		s.align(2)
		s.setWord(abbrevTable+2*uint32(i), uint16(s.pos()/2))
		s.put(b.enc.Encode(text)...)
	}

	var dictionary uint32
	if b.hasDict {
		dictionary = s.pos()
		b.writeDictionary(s)
	}

	// high memory
	s.align(p.PackDivisor)
	highBase := s.pos()
	var fixups []codeFixup
	var strs []string

	place := func(c *Code) uint32 {
		at := s.pos()
		for _, f := range c.fixups {
			f.pos += at
			fixups = append(fixups, f)
		}
		s.put(c.buf...)
		return at
	}

	mainCode := b.newCode()
	var initialPC uint32
	if p.Version == 6 {
		mainCode.buf = append(mainCode.buf, 0)
	}
	if b.main != nil {
		b.main(mainCode)
	}
	if err := mainCode.resolveLabels(); err != nil {
		return nil, errors.Wrap(err, "main")
	}
	initialPC = place(mainCode)

	for _, r := range b.routines {
		c := b.newCode()
		c.buf = append(c.buf, byte(len(r.locals)))
		if p.Version <= 4 {
			for _, l := range r.locals {
				c.buf = append(c.buf, byte(l>>8), byte(l))
			}
		}
		r.body(c)
		if err := c.resolveLabels(); err != nil {
			return nil, errors.Wrapf(err, "routine %s", r.name)
		}
		s.align(p.PackDivisor)
		b.routineAddrs[r.name] = place(c)
	}

	stringAddrs := map[string]uint32{}
	for _, f := range fixups {
		if f.kind == fixString {
			if _, ok := stringAddrs[f.target]; !ok {
				strs = append(strs, f.target)
				stringAddrs[f.target] = 0
			}
		}
	}
	for _, text := range strs {
		s.align(p.PackDivisor)
		stringAddrs[text] = s.pos()
		s.put(b.enc.Encode(text)...)
	}

	for _, f := range fixups {
		var addr uint32
		switch f.kind {
		case fixRoutine:
			a, ok := b.routineAddrs[f.target]
			if !ok {
				return nil, errors.Errorf("unknown routine %q", f.target)
			}
			addr = a
		case fixString:
			addr = stringAddrs[f.target]
		}
		s.setWord(f.pos, uint16(addr/p.PackDivisor))
	}

	s.align(p.FileLengthScale)
	if s.pos() > uint32(0xFFFF)*p.FileLengthScale {
		return nil, errors.Errorf("story too large: %d bytes", s.pos())
	}

	d := s.data
	d[hdrVersion] = p.Version
	s.setWord(hdrRelease, 1)
	s.setWord(hdrHighBase, uint16(highBase))
	if p.Version == 6 {
		s.setWord(hdrInitialPC, uint16(initialPC/p.PackDivisor))
	} else {
		s.setWord(hdrInitialPC, uint16(initialPC))
	}
	s.setWord(hdrDictionary, uint16(dictionary))
	s.setWord(hdrObjectTable, uint16(objectTable))
	s.setWord(hdrGlobals, uint16(globals))
	s.setWord(hdrStaticBase, uint16(staticBase))
	copy(d[hdrSerial:hdrSerial+6], "260101")
	s.setWord(hdrAbbreviations, uint16(abbrevTable))
	s.setWord(hdrFileLength, uint16(s.pos()/p.FileLengthScale))
	var sum uint16
	for _, c := range d[HeaderSize:] {
		sum += uint16(c)
	}
	s.setWord(hdrChecksum, sum)
	return d, nil
}

func (b *StoryBuilder) writeRecord(s *storyBuffer, rec uint32, o ObjectSpec) error {
	p := b.profile
	var attrs uint64
	for _, n := range o.Attributes {
		if n < 0 || n >= p.AttributeBits {
			return errors.Errorf("object %q: attribute %d out of range", o.Name, n)
		}
		attrs |= uint64(1) << uint64(p.AttributeBits-1-n)
	}
	width := p.AttributeBytes()
	for i := 0; i < width; i++ {
		s.data[rec+uint32(i)] = byte(attrs >> uint64(8*(width-1-i)))
	}
	links := rec + uint32(width)
	for i, l := range []uint16{o.Parent, o.Sibling, o.Child} {
		if p.LinkBytes() == 1 {
			s.data[links+uint32(i)] = byte(l)
		} else {
			s.setWord(links+uint32(2*i), l)
		}
	}

	table := s.pos()
	s.setWord(rec+uint32(p.ObjectRecordSize)-2, uint16(table))
	if o.Name == "" {
		s.put(0)
	} else {
		name := b.enc.Encode(o.Name)
		s.put(byte(len(name) / 2))
		s.put(name...)
	}

	nums := make([]int, 0, len(o.Properties))
	for n := range o.Properties {
		nums = append(nums, int(n))
	}
	sort.Sort(sort.Reverse(sort.IntSlice(nums)))
	for _, n := range nums {
		data := o.Properties[uint8(n)]
		l := len(data)
		if n < 1 || n > p.PropertyDefaults || l < 1 || l > p.MaxPropertyLength {
			return errors.Errorf("object %q: property %d with %d bytes", o.Name, n, l)
		}
		switch {
		case p.Version <= 3:
			s.put(byte(32*(l-1) + n))
		case l == 1:
			s.put(byte(n))
		case l == 2:
			s.put(0x40 | byte(n))
		default:
			s.put(0x80|byte(n), 0x80|byte(l&0x3F))
		}
		s.put(data...)
	}
	s.put(0)
	return nil
}

func (b *StoryBuilder) writeDictionary(s *storyBuffer) {
	wb := b.profile.DictWordBytes
	s.put(byte(len(b.dictSeps)))
	for _, r := range b.dictSeps {
		s.put(byte(r))
	}
	s.put(byte(wb + 3))

	keys := make([][]byte, 0, len(b.words))
	for _, w := range b.words {
		keys = append(keys, b.enc.EncodeWordString(w))
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
	s.putWord(uint16(len(keys)))
	for _, k := range keys {
		s.put(k...)
		s.put(0, 0, 0)
	}
}

// ---------------------------------------------------------------------------
// Code assembly
// ---------------------------------------------------------------------------

// Arg is an instruction operand as written in a Code body.
type Arg struct {
	Operand
	routine string
	str     string
}

// Small is a 1-byte constant operand.
func Small(v byte) Arg { return Arg{Operand: Operand{Type: OperandSmall, Value: uint16(v)}} }

// Large is a 2-byte constant operand.
func Large(v uint16) Arg { return Arg{Operand: Operand{Type: OperandLarge, Value: v}} }

// Var is a variable operand: 0 stack, 1-15 locals, 16-255 globals.
func Var(n uint8) Arg { return Arg{Operand: Operand{Type: OperandVariable, Value: uint16(n)}} }

// RoutineArg is the packed address of a named routine.
func RoutineArg(name string) Arg {
	return Arg{Operand: Operand{Type: OperandLarge}, routine: name}
}

// StringArg is the packed address of a string placed in high memory.
func StringArg(text string) Arg {
	return Arg{Operand: Operand{Type: OperandLarge}, str: text}
}

type fixKind int

const (
	fixRoutine fixKind = iota
	fixString
	fixBranch
	fixJump
)

type codeFixup struct {
	kind   fixKind
	pos    uint32
	target string
	onTrue bool
}

// Code accumulates the bytes of one routine.
type Code struct {
	b      *StoryBuilder
	buf    []byte
	labels map[string]uint32
	local  []codeFixup
	fixups []codeFixup
}

func (b *StoryBuilder) newCode() *Code {
	return &Code{b: b, labels: map[string]uint32{}}
}

// Addr is a large constant holding a named array's address.
func (c *Code) Addr(name string) Arg {
	return Large(uint16(c.b.Addr(name)))
}

// Op emits an instruction in the most compact form for its kind.
func (c *Code) Op(kind OpKind, number uint8, args ...Arg) *Code {
	switch kind {
	case Kind0OP:
		c.buf = append(c.buf, 0xB0|number)
	case Kind1OP:
		c.buf = append(c.buf, 0x80|byte(args[0].Type)<<4|number)
	case Kind2OP:
		if len(args) == 2 && args[0].Type != OperandLarge && args[1].Type != OperandLarge {
			op := number
			if args[0].Type == OperandVariable {
				op |= 0x40
			}
			if args[1].Type == OperandVariable {
				op |= 0x20
			}
			c.buf = append(c.buf, op)
			for _, a := range args {
				c.buf = append(c.buf, byte(a.Value))
			}
			return c
		}
		c.buf = append(c.buf, 0xC0|number)
		c.types(args, 4)
	case KindVAR:
		c.buf = append(c.buf, 0xE0|number)
		n := 4
		if number == 0x0C || number == 0x1A {
			n = 8
		}
		c.types(args, n)
	case KindEXT:
		c.buf = append(c.buf, 0xBE, number)
		c.types(args, 4)
	}
	c.operands(args)
	return c
}

func (c *Code) types(args []Arg, slots int) {
	for start := 0; start < slots; start += 4 {
		t := byte(0)
		for i := 0; i < 4; i++ {
			ot := OperandOmitted
			if start+i < len(args) {
				ot = args[start+i].Type
			}
			t = t<<2 | byte(ot)
		}
		c.buf = append(c.buf, t)
	}
}

func (c *Code) operands(args []Arg) {
	for _, a := range args {
		switch {
		case a.routine != "":
			c.fixups = append(c.fixups, codeFixup{kind: fixRoutine, pos: uint32(len(c.buf)), target: a.routine})
			c.buf = append(c.buf, 0, 0)
		case a.str != "":
			c.fixups = append(c.fixups, codeFixup{kind: fixString, pos: uint32(len(c.buf)), target: a.str})
			c.buf = append(c.buf, 0, 0)
		case a.Type == OperandLarge:
			c.buf = append(c.buf, byte(a.Value>>8), byte(a.Value))
		default:
			c.buf = append(c.buf, byte(a.Value))
		}
	}
}

// Store appends a store byte.
func (c *Code) Store(v uint8) *Code {
	c.buf = append(c.buf, v)
	return c
}

// Branch appends a two-byte branch descriptor to label. The labels
// "rtrue" and "rfalse" produce the return forms.
func (c *Code) Branch(onTrue bool, label string) *Code {
	polarity := byte(0)
	if onTrue {
		polarity = 0x80
	}
	switch label {
	case "rfalse":
		c.buf = append(c.buf, polarity|0x40)
	case "rtrue":
		c.buf = append(c.buf, polarity|0x41)
	default:
		c.local = append(c.local, codeFixup{kind: fixBranch, pos: uint32(len(c.buf)), target: label, onTrue: onTrue})
		c.buf = append(c.buf, polarity, 0)
	}
	return c
}

// Text appends an inline string for print and print_ret.
func (c *Code) Text(s string) *Code {
	c.buf = append(c.buf, c.b.enc.Encode(s)...)
	return c
}

// Raw appends bytes verbatim.
func (c *Code) Raw(p ...byte) *Code {
	c.buf = append(c.buf, p...)
	return c
}

// Label marks the current position.
func (c *Code) Label(name string) *Code {
	c.labels[name] = uint32(len(c.buf))
	return c
}

// Jump emits an unconditional jump to label.
func (c *Code) Jump(label string) *Code {
	c.buf = append(c.buf, 0x8C)
	c.local = append(c.local, codeFixup{kind: fixJump, pos: uint32(len(c.buf)), target: label})
	c.buf = append(c.buf, 0, 0)
	return c
}

func (c *Code) resolveLabels() error {
	for _, f := range c.local {
		target, ok := c.labels[f.target]
		if !ok {
			return errors.Errorf("unknown label %q", f.target)
		}
		off := int32(target) - int32(f.pos)
		switch f.kind {
		case fixBranch:
			if off < -8192 || off > 8191 {
				return errors.Errorf("branch to %q out of range", f.target)
			}
			c.buf[f.pos] |= byte(uint16(off)>>8) & 0x3F
			c.buf[f.pos+1] = byte(off)
		case fixJump:
			c.buf[f.pos] = byte(uint16(off) >> 8)
			c.buf[f.pos+1] = byte(off)
		}
	}
	return nil
}

// Common instructions.

// Quit emits quit.
func (c *Code) Quit() *Code { return c.Op(Kind0OP, 0x0A) }

// Print emits print with inline text.
func (c *Code) Print(s string) *Code { return c.Op(Kind0OP, 0x02).Text(s) }

// NewLine emits new_line.
func (c *Code) NewLine() *Code { return c.Op(Kind0OP, 0x0B) }

// Rtrue emits rtrue.
func (c *Code) Rtrue() *Code { return c.Op(Kind0OP, 0x00) }

// Ret emits ret.
func (c *Code) Ret(a Arg) *Code { return c.Op(Kind1OP, 0x0B, a) }

// PrintNum emits print_num.
func (c *Code) PrintNum(a Arg) *Code { return c.Op(KindVAR, 0x06, a) }

// Call emits the version's storing call to routine.
func (c *Code) Call(routine string, store uint8, args ...Arg) *Code {
	all := append([]Arg{RoutineArg(routine)}, args...)
	return c.Op(KindVAR, 0x00, all...).Store(store)
}
