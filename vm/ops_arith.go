package vm

// Arithmetic is 16-bit two's complement: operands are reinterpreted as
// int16 and results wrap.

func opAdd(m *Machine, in *Instruction, a []uint16) error {
	return m.store(in, uint16(int16(a[0])+int16(a[1])))
}

func opSub(m *Machine, in *Instruction, a []uint16) error {
	return m.store(in, uint16(int16(a[0])-int16(a[1])))
}

func opMul(m *Machine, in *Instruction, a []uint16) error {
	return m.store(in, uint16(int16(a[0])*int16(a[1])))
}

// opDiv truncates toward zero. -32768 / -1 wraps to -32768.
func opDiv(m *Machine, in *Instruction, a []uint16) error {
	if a[1] == 0 {
		return divisionByZero("div")
	}
	return m.store(in, uint16(int16(a[0])/int16(a[1])))
}

// opMod takes the sign of the dividend.
func opMod(m *Machine, in *Instruction, a []uint16) error {
	if a[1] == 0 {
		return divisionByZero("mod")
	}
	return m.store(in, uint16(int16(a[0])%int16(a[1])))
}

func opAnd(m *Machine, in *Instruction, a []uint16) error {
	return m.store(in, a[0]&a[1])
}

func opOr(m *Machine, in *Instruction, a []uint16) error {
	return m.store(in, a[0]|a[1])
}

func opNot(m *Machine, in *Instruction, a []uint16) error {
	return m.store(in, ^a[0])
}

// LogicalShift shifts left for positive places and right, zero-filling,
// for negative places.
func LogicalShift(v uint16, places int16) uint16 {
	switch {
	case places >= 16 || places <= -16:
		return 0
	case places >= 0:
		return v << uint(places)
	default:
		return v >> uint(-places)
	}
}

// ArithmeticShift is LogicalShift with sign-preserving right shifts.
func ArithmeticShift(v uint16, places int16) uint16 {
	s := int16(v)
	switch {
	case places >= 16:
		return 0
	case places <= -16:
		if s < 0 {
			return 0xFFFF
		}
		return 0
	case places >= 0:
		return uint16(s << uint(places))
	default:
		return uint16(s >> uint(-places))
	}
}

func opLogShift(m *Machine, in *Instruction, a []uint16) error {
	return m.store(in, LogicalShift(a[0], int16(a[1])))
}

func opArtShift(m *Machine, in *Instruction, a []uint16) error {
	return m.store(in, ArithmeticShift(a[0], int16(a[1])))
}

// ---------------------------------------------------------------------------
// Comparisons
// ---------------------------------------------------------------------------

// opJe branches if the first operand equals any of the others.
func opJe(m *Machine, in *Instruction, a []uint16) error {
	if len(a) < 2 {
		return malformed("je at 0x%05x needs at least 2 operands", in.Address)
	}
	eq := false
	for _, v := range a[1:] {
		if a[0] == v {
			eq = true
			break
		}
	}
	return m.branch(in, eq)
}

func opJl(m *Machine, in *Instruction, a []uint16) error {
	return m.branch(in, int16(a[0]) < int16(a[1]))
}

func opJg(m *Machine, in *Instruction, a []uint16) error {
	return m.branch(in, int16(a[0]) > int16(a[1]))
}

func opJz(m *Machine, in *Instruction, a []uint16) error {
	return m.branch(in, a[0] == 0)
}

func opTest(m *Machine, in *Instruction, a []uint16) error {
	return m.branch(in, a[0]&a[1] == a[1])
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

// The first operand of inc, dec, inc_chk, dec_chk, load, store and pull
// names a variable. The stack is read and written in place.

func opInc(m *Machine, in *Instruction, a []uint16) error {
	_, err := m.adjust(uint8(a[0]), 1)
	return err
}

func opDec(m *Machine, in *Instruction, a []uint16) error {
	_, err := m.adjust(uint8(a[0]), -1)
	return err
}

func opIncChk(m *Machine, in *Instruction, a []uint16) error {
	v, err := m.adjust(uint8(a[0]), 1)
	if err != nil {
		return err
	}
	return m.branch(in, v > int16(a[1]))
}

func opDecChk(m *Machine, in *Instruction, a []uint16) error {
	v, err := m.adjust(uint8(a[0]), -1)
	if err != nil {
		return err
	}
	return m.branch(in, v < int16(a[1]))
}

func (m *Machine) adjust(n uint8, delta int16) (int16, error) {
	v, err := m.stack.PeekVariable(n)
	if err != nil {
		return 0, err
	}
	next := int16(v) + delta
	return next, m.stack.PokeVariable(n, uint16(next))
}

func opLoad(m *Machine, in *Instruction, a []uint16) error {
	v, err := m.stack.PeekVariable(uint8(a[0]))
	if err != nil {
		return err
	}
	return m.store(in, v)
}

func opStore(m *Machine, in *Instruction, a []uint16) error {
	return m.stack.PokeVariable(uint8(a[0]), a[1])
}

func opPush(m *Machine, in *Instruction, a []uint16) error {
	return m.stack.PushValue(a[0])
}

// opPull pops into a variable. The v6 form pops from an optional user
// stack and stores the value.
func opPull(m *Machine, in *Instruction, a []uint16) error {
	if m.profile.Version == 6 {
		if len(a) > 0 && a[0] != 0 {
			v, err := m.popUserStack(uint32(a[0]))
			if err != nil {
				return err
			}
			return m.store(in, v)
		}
		v, err := m.stack.PopValue()
		if err != nil {
			return err
		}
		return m.store(in, v)
	}
	v, err := m.stack.PopValue()
	if err != nil {
		return err
	}
	return m.stack.PokeVariable(uint8(a[0]), v)
}

func opPop(m *Machine, in *Instruction, a []uint16) error {
	_, err := m.stack.PopValue()
	return err
}

// ---------------------------------------------------------------------------
// Random numbers
// ---------------------------------------------------------------------------

// opRandom returns 1..n for positive n. Zero or negative n reseeds (random
// for 0, predictable for negative) and returns 0.
func opRandom(m *Machine, in *Instruction, a []uint16) error {
	n := int16(a[0])
	if n > 0 {
		return m.store(in, m.rng.next(uint16(n)))
	}
	m.rng.seed(int(-int32(n)))
	return m.store(in, 0)
}
