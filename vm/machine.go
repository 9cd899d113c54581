package vm

import (
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/tliron/commonlog"
)

// ErrHalted is returned by Step once the program has quit.
var ErrHalted = errors.New("machine halted")

// Machine owns one story's memory, object tree, call stack and the engine
// that mutates them. A Machine is not safe for concurrent use.
type Machine struct {
	header   Header
	profile  Profile
	image    *Image
	original []byte

	zscii   *ZSCII
	codec   *Codec
	objects *ObjectTree
	dict    *Dictionary
	stack   *CallStack
	decoder *decoder
	journal *journal

	pc     uint32
	halted bool
	fatal  error
	steps  uint64

	out     streams
	in      Input
	pending []uint16
	font    uint16

	// text printed by the current step, delivered when it commits
	screenQueue     []byte
	transcriptQueue []byte

	persist   Persistence
	undo      []*Snapshot
	undoDepth int
	rng       *randomSource

	screenWidth  int
	screenHeight int

	log     commonlog.Logger
	tracing bool
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load validates a story file and prepares a machine to run it.
func Load(data []byte, opts ...Option) (*Machine, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	p := MustProfile(h.Version)
	img, err := NewImage(data)
	if err != nil {
		return nil, err
	}
	if err := h.validate(p, img.Len()); err != nil {
		return nil, err
	}

	m := &Machine{
		header:       h,
		profile:      p,
		image:        img,
		original:     append([]byte(nil), data...),
		out:          streams{screen: true, screenOut: cfg.output, transcript: cfg.transcript},
		in:           cfg.input,
		font:         1,
		persist:      cfg.persistence,
		undoDepth:    cfg.undoDepth,
		rng:          newRandomSource(cfg.seed),
		screenWidth:  cfg.screenWidth,
		screenHeight: cfg.screenHeight,
		log:          cfg.logger,
		tracing:      cfg.trace,
	}

	entry := m.entryPoint()
	switch img.RegionOf(entry) {
	case RegionDynamic, RegionHigh:
	default:
		return nil, corrupted("initial program counter 0x%05x is in %s memory", entry, img.RegionOf(entry))
	}

	if m.zscii, err = loadZSCII(img, p, uint32(h.ExtensionTable)); err != nil {
		return nil, err
	}
	var alphabet uint32
	if p.Version >= 5 {
		alphabet = uint32(h.AlphabetTable)
	}
	if m.codec, err = NewCodec(img, p, uint32(h.Abbreviations), alphabet, m.zscii); err != nil {
		return nil, err
	}
	m.codec.log = m.log
	if m.objects, err = LoadObjectTree(img, p, m.codec, uint32(h.ObjectTable), uint32(h.StaticBase), uint32(h.Dictionary)); err != nil {
		return nil, err
	}
	if h.Dictionary != 0 {
		if m.dict, err = LoadDictionary(img, m.codec, uint32(h.Dictionary)); err != nil {
			return nil, err
		}
	}

	m.stack = NewCallStack(img, uint32(h.Globals), cfg.maxCallDepth, cfg.maxEvalStack)
	m.journal = m.stack.journal
	img.journal = m.journal
	m.decoder = &decoder{img: img, profile: p, codec: m.codec}

	m.applyHeader()
	if err := m.start(); err != nil {
		return nil, err
	}
	m.log.Infof("loaded story %s (version %d, %d bytes, %d objects)", h.ID(), h.Version, img.Len(), m.objects.Count())
	return m, nil
}

// LoadFile reads and loads a story file from disk.
func LoadFile(path string, opts ...Option) (*Machine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read story file %s", path)
	}
	m, err := Load(data, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return m, nil
}

// entryPoint returns the byte address of the first instruction, or for v6
// the address of the main routine's header.
func (m *Machine) entryPoint() uint32 {
	if m.profile.Version == 6 {
		return m.unpackRoutine(m.header.InitialPC)
	}
	return uint32(m.header.InitialPC)
}

// start resets the call stack to the main routine.
func (m *Machine) start() error {
	entry := m.entryPoint()
	if m.profile.Version != 6 {
		if err := m.stack.PushFrame(0, nil, discardResult, 0); err != nil {
			return err
		}
		m.pc = entry
		return nil
	}
	n, err := m.image.ReadByte(entry)
	if err != nil {
		return err
	}
	if n > MaxLocals {
		return corrupted("main routine declares %d locals", n)
	}
	if err := m.stack.PushFrame(0, make([]uint16, n), discardResult, 0); err != nil {
		return err
	}
	m.pc = entry + 1
	return nil
}

// applyHeader writes the interpreter-owned header fields.
func (m *Machine) applyHeader() {
	v := m.profile.Version
	flags1 := m.image.byteAt(hdrFlags1)
	if v <= 3 {
		flags1 &^= flags1V3StatusUnavailable | flags1V3SplitScreen | flags1V3VariableFont
		if _, ok := m.out.screenOut.(StatusLine); !ok {
			flags1 |= flags1V3StatusUnavailable
		}
	} else {
		flags1 &^= flags1Colors | flags1Bold | flags1Italic | flags1TimedInput
		flags1 |= flags1FixedSpace
	}
	m.image.poke(hdrFlags1, flags1)

	if v >= 5 && m.undoDepth <= 0 {
		m.image.poke(flags2Lo, m.image.byteAt(flags2Lo)&^flags2Undo)
	}

	if v >= 4 {
		m.image.poke(hdrInterpreterNum, 6)
		m.image.poke(hdrInterpreterVer, 'S')
		m.image.poke(hdrScreenLines, clampByte(m.screenHeight))
		m.image.poke(hdrScreenColumns, clampByte(m.screenWidth))
	}
	if v >= 5 {
		m.image.pokeWord(hdrScreenWidth, uint16(m.screenWidth))
		m.image.pokeWord(hdrScreenHeight, uint16(m.screenHeight))
		m.image.poke(hdrFontWidth, 1)
		m.image.poke(hdrFontHeight, 1)
		m.image.poke(hdrDefaultBG, 2)
		m.image.poke(hdrDefaultFG, 9)
	}
	m.image.poke(hdrStandardRevision, 1)
	m.image.poke(hdrStandardRevision+1, 1)
}

func clampByte(n int) byte {
	switch {
	case n < 0:
		return 0
	case n > 255:
		return 255
	default:
		return byte(n)
	}
}

// restart reloads dynamic memory from the original file and re-enters
// the main routine. Transcript and fixed-pitch bits survive.
func (m *Machine) restart() error {
	keep := m.image.byteAt(flags2Lo) & (flags2Transcript | flags2FixedPitch)
	if err := m.image.restoreDynamic(m.original[:m.image.StaticBase()]); err != nil {
		return err
	}
	m.image.poke(flags2Lo, m.image.byteAt(flags2Lo)|keep)
	m.applyHeader()
	m.stack.replace(make([]*Frame, 0, 16))
	m.out.tables = nil
	m.pending = nil
	m.log.Infof("restarting story %s", m.header.ID())
	return m.start()
}

func (m *Machine) halt() {
	m.halted = true
	m.log.Infof("story %s halted after %d steps", m.header.ID(), m.steps)
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// Step executes one instruction. A failing instruction leaves memory, the
// stack and the PC as they were, and its text never reaches the output or
// transcript writers. Text printed before an input request is delivered
// when the input is read. After a fatal error every Step returns that error.
func (m *Machine) Step() error {
	if m.fatal != nil {
		return m.fatal
	}
	if m.halted {
		return ErrHalted
	}

	pc := m.pc
	saved := m.saveStreams()
	pending := m.pending
	m.journal.begin()
	err := m.execute()
	if err == nil {
		err = m.flushOutput()
	}
	if err != nil {
		m.discardOutput()
		m.journal.rollback(m.image, m.stack)
		m.pc = pc
		m.restoreStreams(saved)
		m.pending = pending
		if IsFatal(err) {
			m.fatal = err
			m.halted = true
			m.log.Errorf("fatal error at 0x%05x: %s", pc, err)
		}
		return err
	}
	m.journal.commit()
	m.steps++
	return nil
}

// Run steps until the program quits, input runs out, ctx is done or an
// error that is not a warning occurs. Warnings are logged and the
// offending instruction is skipped.
func (m *Machine) Run(ctx context.Context) error {
	if m.fatal != nil {
		return m.fatal
	}
	for !m.halted {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := m.Step()
		if err == nil {
			continue
		}
		if SeverityOf(err) != SeverityWarning {
			return err
		}
		m.log.Warningf("0x%05x: %s", m.pc, err)
		if err := m.SkipInstruction(); err != nil {
			return err
		}
	}
	return nil
}

// SkipInstruction advances the PC past the current instruction without
// executing it.
func (m *Machine) SkipInstruction() error {
	if m.fatal != nil {
		return m.fatal
	}
	in, err := m.decoder.decode(m.pc)
	if err != nil {
		return err
	}
	m.pc = in.Next()
	return nil
}

// ---------------------------------------------------------------------------
// Query surface
// ---------------------------------------------------------------------------

// Version returns the story's format version.
func (m *Machine) Version() byte { return m.profile.Version }

// Profile returns the version profile.
func (m *Machine) Profile() Profile { return m.profile }

// PC returns the address of the next instruction.
func (m *Machine) PC() uint32 { return m.pc }

// Halted reports whether the machine has stopped.
func (m *Machine) Halted() bool { return m.halted }

// Err returns the fatal error that stopped the machine, if any.
func (m *Machine) Err() error { return m.fatal }

// Steps returns the number of instructions completed.
func (m *Machine) Steps() uint64 { return m.steps }

// Header returns the header as loaded, with Flags 2 read live.
func (m *Machine) Header() Header {
	h := m.header
	h.Flags2 = m.image.wordAt(hdrFlags2)
	return h
}

// Memory returns the memory image.
func (m *Machine) Memory() *Image { return m.image }

// Objects returns the object tree.
func (m *Machine) Objects() *ObjectTree { return m.objects }

// Dictionary returns the story's main dictionary, or nil.
func (m *Machine) Dictionary() *Dictionary { return m.dict }

// Codec returns the text codec.
func (m *Machine) Codec() *Codec { return m.codec }

// CallDepth returns the number of active frames.
func (m *Machine) CallDepth() int { return m.stack.Depth() }

// ReadVariable returns variable n. Variable 0 peeks at the stack top
// without popping it.
func (m *Machine) ReadVariable(n uint8) (uint16, error) {
	return m.stack.PeekVariable(n)
}

// Checksum returns the computed checksum of the original file.
func (m *Machine) Checksum() uint16 { return m.checksum() }

// ---------------------------------------------------------------------------
// Self check
// ---------------------------------------------------------------------------

// SelfCheck validates every object's links and property table against the
// header. It reports all problems found in one error.
func (m *Machine) SelfCheck() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, malformed(format, args...).Message)
	}

	t := m.objects
	static := m.image.StaticBase()
	for id := uint16(1); int(id) <= t.Count(); id++ {
		o, err := t.Object(id)
		if err != nil {
			add("object %d: %v", id, err)
			continue
		}
		if o.PropertyTable == 0 || o.PropertyTable >= static {
			add("object %d: property table 0x%04x outside dynamic memory", id, o.PropertyTable)
			continue
		}
		for _, link := range []struct {
			name string
			id   uint16
		}{{"parent", o.Parent}, {"sibling", o.Sibling}, {"child", o.Child}} {
			if link.id != 0 && !t.Valid(link.id) {
				add("object %d: %s %d does not exist", id, link.name, link.id)
			}
		}
		props, err := t.Properties(id)
		if err != nil {
			add("object %d: %v", id, err)
			continue
		}
		prev := 256
		for _, p := range props {
			if int(p.ID) >= prev {
				add("object %d: property %d out of order", id, p.ID)
			}
			prev = int(p.ID)
			if p.Length > m.profile.MaxPropertyLength {
				add("object %d: property %d is %d bytes", id, p.ID, p.Length)
			}
			if p.Address+uint32(p.Length) > static {
				add("object %d: property %d extends past dynamic memory", id, p.ID)
			}
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return malformed("%d problems: %s", len(problems), strings.Join(problems, "; "))
}
