package vm

// Array offsets are unsigned; the resulting address must fit in memory.

func opLoadw(m *Machine, in *Instruction, a []uint16) error {
	v, err := m.image.ReadWord(uint32(a[0]) + 2*uint32(a[1]))
	if err != nil {
		return err
	}
	return m.store(in, v)
}

func opLoadb(m *Machine, in *Instruction, a []uint16) error {
	v, err := m.image.ReadByte(uint32(a[0]) + uint32(a[1]))
	if err != nil {
		return err
	}
	return m.store(in, uint16(v))
}

func opStorew(m *Machine, in *Instruction, a []uint16) error {
	return m.image.WriteWord(uint32(a[0])+2*uint32(a[1]), a[2])
}

func opStoreb(m *Machine, in *Instruction, a []uint16) error {
	return m.image.WriteByte(uint32(a[0])+uint32(a[1]), byte(a[2]))
}

// opCopyTable copies size bytes from first to second. A zero destination
// zeroes the source; a negative size forces a forward copy even when the
// tables overlap.
func opCopyTable(m *Machine, in *Instruction, a []uint16) error {
	src, dst := uint32(a[0]), uint32(a[1])
	size := int16(a[2])
	if dst == 0 {
		for i := uint32(0); i < uint32(abs16(size)); i++ {
			if err := m.image.WriteByte(src+i, 0); err != nil {
				return err
			}
		}
		return nil
	}
	n := uint32(abs16(size))
	data, err := m.image.ReadBytes(src, int(n))
	if err != nil {
		return err
	}
	if size < 0 {
		for i := uint32(0); i < n; i++ {
			b, err := m.image.ReadByte(src + i)
			if err != nil {
				return err
			}
			if err := m.image.WriteByte(dst+i, b); err != nil {
				return err
			}
		}
		return nil
	}
	for i := uint32(0); i < n; i++ {
		if err := m.image.WriteByte(dst+i, data[i]); err != nil {
			return err
		}
	}
	return nil
}

func abs16(v int16) int32 {
	if v < 0 {
		return -int32(v)
	}
	return int32(v)
}

// opScanTable searches len fields for x. The optional form byte gives the
// field length (low 7 bits) and whether fields are words (bit 7).
func opScanTable(m *Machine, in *Instruction, a []uint16) error {
	x, table, n := a[0], uint32(a[1]), int(a[2])
	form := uint16(0x82)
	if len(a) > 3 {
		form = a[3]
	}
	width := uint32(form & 0x7F)
	words := form&0x80 != 0
	if width == 0 {
		width = 1
		if words {
			width = 2
		}
	}
	for i := 0; i < n; i++ {
		addr := table + uint32(i)*width
		var v uint16
		if words {
			w, err := m.image.ReadWord(addr)
			if err != nil {
				return err
			}
			v = w
		} else {
			b, err := m.image.ReadByte(addr)
			if err != nil {
				return err
			}
			v = uint16(b)
		}
		if v == x {
			if err := m.store(in, uint16(addr)); err != nil {
				return err
			}
			return m.branch(in, true)
		}
	}
	if err := m.store(in, 0); err != nil {
		return err
	}
	return m.branch(in, false)
}

// opVerify compares the header checksum against the sum of the original
// file bytes from 0x40 to the declared file length.
func opVerify(m *Machine, in *Instruction, a []uint16) error {
	return m.branch(in, m.checksum() == m.header.Checksum)
}

func (m *Machine) checksum() uint16 {
	end := m.header.FileLength
	if end == 0 || end > uint32(len(m.original)) {
		end = uint32(len(m.original))
	}
	var sum uint16
	for _, b := range m.original[HeaderSize:end] {
		sum += uint16(b)
	}
	return sum
}

// opPiracy always reports a genuine copy.
func opPiracy(m *Machine, in *Instruction, a []uint16) error {
	return m.branch(in, true)
}

// ---------------------------------------------------------------------------
// v6 user stacks
// ---------------------------------------------------------------------------

// A user stack is a table whose first word counts the free slots; values
// sit above it, growing downward.

func (m *Machine) popUserStack(stack uint32) (uint16, error) {
	free, err := m.image.ReadWord(stack)
	if err != nil {
		return 0, err
	}
	free++
	v, err := m.image.ReadWord(stack + 2*uint32(free))
	if err != nil {
		return 0, err
	}
	return v, m.image.WriteWord(stack, free)
}

func opPushStack(m *Machine, in *Instruction, a []uint16) error {
	stack := uint32(a[1])
	free, err := m.image.ReadWord(stack)
	if err != nil {
		return err
	}
	if free == 0 {
		return m.branch(in, false)
	}
	if err := m.image.WriteWord(stack+2*uint32(free), a[0]); err != nil {
		return err
	}
	if err := m.image.WriteWord(stack, free-1); err != nil {
		return err
	}
	return m.branch(in, true)
}

func opPopStack(m *Machine, in *Instruction, a []uint16) error {
	if len(a) > 1 && a[1] != 0 {
		stack := uint32(a[1])
		free, err := m.image.ReadWord(stack)
		if err != nil {
			return err
		}
		return m.image.WriteWord(stack, free+a[0])
	}
	for i := uint16(0); i < a[0]; i++ {
		if _, err := m.stack.PopValue(); err != nil {
			return err
		}
	}
	return nil
}
