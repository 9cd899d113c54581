package vm

// ---------------------------------------------------------------------------
// Snapshots
// ---------------------------------------------------------------------------

// Snapshot captures everything needed to resume a machine: dynamic memory,
// the call stack and the program counter.
type Snapshot struct {
	Story   StoryID
	Version byte
	// PC is the next instruction, or with Resume set the store or branch
	// byte of the save instruction that took the snapshot.
	PC      uint32
	Resume  bool
	Dynamic []byte
	Frames  []Frame
}

// DefaultUndoDepth is the number of save_undo states kept.
const DefaultUndoDepth = 8

func (m *Machine) capture(pc uint32, resume bool) *Snapshot {
	frames := make([]Frame, len(m.stack.frames))
	for i, f := range m.stack.frames {
		frames[i] = *f.clone()
	}
	return &Snapshot{
		Story:   m.header.ID(),
		Version: m.profile.Version,
		PC:      pc,
		Resume:  resume,
		Dynamic: m.image.Dynamic(),
		Frames:  frames,
	}
}

// validateSnapshot checks that s belongs to this story and fits its
// memory layout.
func (m *Machine) validateSnapshot(s *Snapshot) error {
	if s == nil {
		return malformed("no snapshot")
	}
	if s.Story != m.header.ID() || s.Version != m.profile.Version {
		return malformed("snapshot is for story %s v%d, running %s v%d", s.Story, s.Version, m.header.ID(), m.profile.Version)
	}
	if uint32(len(s.Dynamic)) != m.image.StaticBase() {
		return malformed("snapshot holds %d bytes of dynamic memory, story has %d", len(s.Dynamic), m.image.StaticBase())
	}
	if len(s.Frames) == 0 {
		return malformed("snapshot has no frames")
	}
	if m.image.RegionOf(s.PC) == RegionOutside {
		return memoryError(s.PC, "snapshot resumes outside memory")
	}
	for i, f := range s.Frames {
		if len(f.Locals) > MaxLocals {
			return malformed("snapshot frame %d has %d locals", i, len(f.Locals))
		}
	}
	return nil
}

// apply replaces the machine state with s. The transcript and fixed-pitch
// bits of Flags 2 survive, as do the interpreter-owned header fields.
func (m *Machine) apply(s *Snapshot) error {
	if err := m.validateSnapshot(s); err != nil {
		return err
	}
	keep := m.image.byteAt(flags2Lo) & (flags2Transcript | flags2FixedPitch)
	if err := m.image.restoreDynamic(s.Dynamic); err != nil {
		return err
	}
	flags := m.image.byteAt(flags2Lo)&^(flags2Transcript|flags2FixedPitch) | keep
	m.image.poke(flags2Lo, flags)
	m.applyHeader()

	frames := make([]*Frame, len(s.Frames))
	for i := range s.Frames {
		frames[i] = s.Frames[i].clone()
	}
	m.stack.replace(frames)
	m.pc = s.PC

	if !s.Resume {
		return nil
	}
	return m.finishSave(2)
}

// finishSave completes the save instruction whose result byte is at the PC:
// stores v (v4+) or branches on true (v1-3).
func (m *Machine) finishSave(v uint16) error {
	c := &cursor{img: m.image, pc: m.pc}
	in := &Instruction{Address: m.pc}
	if m.profile.Version <= 3 {
		in.Branch = decodeBranch(c)
	} else {
		in.Store = true
		in.StoreVar = c.byte()
	}
	if c.err != nil {
		return c.err
	}
	in.Length = c.pc - m.pc
	m.pc = c.pc
	if in.Store {
		return m.store(in, v)
	}
	return m.branch(in, true)
}

// Snapshot captures the current state between instructions.
func (m *Machine) Snapshot() *Snapshot {
	return m.capture(m.pc, false)
}

// RestoreSnapshot replaces the machine state with s. The restore is
// atomic: on error nothing changes.
func (m *Machine) RestoreSnapshot(s *Snapshot) error {
	if m.fatal != nil {
		return m.fatal
	}
	m.journal.begin()
	if err := m.apply(s); err != nil {
		m.journal.rollback(m.image, m.stack)
		return err
	}
	m.journal.commit()
	m.halted = false
	return nil
}
