package vm

// opCall covers every call_* variant; the descriptor decides whether the
// result is stored.
func opCall(m *Machine, in *Instruction, a []uint16) error {
	return m.call(a[0], a[1:], storeTarget(in))
}

func opRet(m *Machine, in *Instruction, a []uint16) error {
	return m.ret(a[0])
}

func opRtrue(m *Machine, in *Instruction, a []uint16) error {
	return m.ret(1)
}

func opRfalse(m *Machine, in *Instruction, a []uint16) error {
	return m.ret(0)
}

func opRetPopped(m *Machine, in *Instruction, a []uint16) error {
	v, err := m.stack.PopValue()
	if err != nil {
		return err
	}
	return m.ret(v)
}

// opJump is an unconditional signed jump relative to the next instruction.
func opJump(m *Machine, in *Instruction, a []uint16) error {
	m.pc = uint32(int64(in.Next()) + int64(int16(a[0])) - 2)
	return nil
}

// opCatch stores the current frame depth for a later throw.
func opCatch(m *Machine, in *Instruction, a []uint16) error {
	return m.store(in, uint16(m.stack.Depth()))
}

// opThrow unwinds to the frame recorded by catch and returns from it.
func opThrow(m *Machine, in *Instruction, a []uint16) error {
	depth := int(a[1])
	if depth < 1 || depth > m.stack.Depth() {
		return stackUnderflow("throw to frame %d with %d frames active", depth, m.stack.Depth())
	}
	if err := m.stack.unwindTo(depth); err != nil {
		return err
	}
	return m.ret(a[0])
}

func opCheckArgCount(m *Machine, in *Instruction, a []uint16) error {
	f, err := m.stack.Current()
	if err != nil {
		return err
	}
	return m.branch(in, int(a[0]) <= f.ArgCount)
}

func opRestart(m *Machine, in *Instruction, a []uint16) error {
	return m.restart()
}

func opQuit(m *Machine, in *Instruction, a []uint16) error {
	m.halt()
	return nil
}

// opNoop serves the presentation opcodes this machine accepts but does
// not render: windows, cursors, styles, colours, sound and pictures.
func opNoop(m *Machine, in *Instruction, a []uint16) error {
	return nil
}

func opStoreZero(m *Machine, in *Instruction, a []uint16) error {
	return m.store(in, 0)
}

func opBranchFalse(m *Machine, in *Instruction, a []uint16) error {
	return m.branch(in, false)
}

// opPictureData reports that no pictures exist. Picture 0 asks for the
// picture count, which is written as zero.
func opPictureData(m *Machine, in *Instruction, a []uint16) error {
	if a[0] == 0 {
		if err := m.image.WriteWord(uint32(a[1]), 0); err != nil {
			return err
		}
		if err := m.image.WriteWord(uint32(a[1])+2, 0); err != nil {
			return err
		}
	}
	return m.branch(in, false)
}

// opSetFont accepts the normal and fixed-pitch fonts and returns the
// previous font; anything else is refused with 0. Font 0 queries.
func opSetFont(m *Machine, in *Instruction, a []uint16) error {
	prev := m.font
	switch a[0] {
	case 0:
		return m.store(in, prev)
	case 1, 4:
		m.font = a[0]
		return m.store(in, prev)
	default:
		return m.store(in, 0)
	}
}

// opGetCursor writes row and column 1,1: there is no screen model.
func opGetCursor(m *Machine, in *Instruction, a []uint16) error {
	if err := m.image.WriteWord(uint32(a[0]), 1); err != nil {
		return err
	}
	return m.image.WriteWord(uint32(a[0])+2, 1)
}
