package vm

// ---------------------------------------------------------------------------
// Instruction engine
// ---------------------------------------------------------------------------

// execute runs one instruction against the current state. The caller owns
// the journal; execute only mutates through journaled paths.
func (m *Machine) execute() error {
	in, err := m.decoder.decode(m.pc)
	if err != nil {
		return err
	}
	if in.op == nil {
		if anyVariant(in.Kind, in.Number) == nil {
			return unsupported(in.Name(), "illegal opcode at 0x%05x", in.Address)
		}
		return unsupported(in.Name(), "not available in version %d", m.profile.Version)
	}
	if len(in.Operands) < in.op.minArgs {
		return malformed("%s at 0x%05x has %d operands, needs %d", in.op.name, in.Address, len(in.Operands), in.op.minArgs)
	}

	args, err := m.evaluate(in.Operands)
	if err != nil {
		return err
	}
	if m.tracing {
		m.log.Debugf("%05x  %s %v", in.Address, in.op.name, args)
	}

	m.pc = in.Next()
	return in.op.exec(m, in, args)
}

// evaluate reads operand values left to right. Variable operands read
// (and, for the stack, pop) their variable.
func (m *Machine) evaluate(ops []Operand) ([]uint16, error) {
	args := make([]uint16, len(ops))
	for i, o := range ops {
		if o.Type != OperandVariable {
			args[i] = o.Value
			continue
		}
		v, err := m.stack.ReadVariable(uint8(o.Value))
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// store writes the instruction's result to its store variable.
func (m *Machine) store(in *Instruction, v uint16) error {
	if !in.Store {
		return nil
	}
	return m.stack.WriteVariable(in.StoreVar, v)
}

// branch applies the branch descriptor when cond matches its polarity.
func (m *Machine) branch(in *Instruction, cond bool) error {
	br := in.Branch
	if br == nil || cond != br.OnTrue {
		return nil
	}
	switch br.Offset {
	case 0:
		return m.ret(0)
	case 1:
		return m.ret(1)
	default:
		m.pc = in.BranchTarget()
		return nil
	}
}

// ---------------------------------------------------------------------------
// Calls and returns
// ---------------------------------------------------------------------------

// unpackRoutine converts a packed routine address to a byte address.
func (m *Machine) unpackRoutine(packed uint16) uint32 {
	addr := uint32(packed) * m.profile.PackDivisor
	if m.profile.Has(FeatureRoutineOffsets) {
		addr += 8 * uint32(m.header.RoutineOffset)
	}
	return addr
}

// unpackString converts a packed string address to a byte address.
func (m *Machine) unpackString(packed uint16) uint32 {
	addr := uint32(packed) * m.profile.PackDivisor
	if m.profile.Has(FeatureRoutineOffsets) {
		addr += 8 * uint32(m.header.StringOffset)
	}
	return addr
}

// call enters the routine at packed address routine. store is the result
// variable or discardResult. A call to address 0 does nothing but produce
// false.
func (m *Machine) call(routine uint16, args []uint16, store int) error {
	if routine == 0 {
		if store == discardResult {
			return nil
		}
		return m.stack.WriteVariable(uint8(store), 0)
	}
	addr := m.unpackRoutine(routine)
	if m.image.RegionOf(addr) == RegionOutside {
		return memoryError(addr, "call to routine outside memory")
	}
	n, err := m.image.ReadByte(addr)
	if err != nil {
		return err
	}
	if n > MaxLocals {
		return malformed("routine at 0x%05x declares %d locals", addr, n)
	}
	addr++

	locals := make([]uint16, n)
	if m.profile.Version <= 4 {
		for i := range locals {
			w, err := m.image.ReadWord(addr)
			if err != nil {
				return err
			}
			locals[i] = w
			addr += 2
		}
	}
	argc := len(args)
	if argc > int(n) {
		argc = int(n)
	}
	copy(locals, args[:argc])

	if err := m.stack.PushFrame(m.pc, locals, store, len(args)); err != nil {
		return err
	}
	m.pc = addr
	return nil
}

// ret returns v from the current routine.
func (m *Machine) ret(v uint16) error {
	if m.stack.Depth() <= 1 {
		return stackUnderflow("return from the main routine")
	}
	pc, store, err := m.stack.PopFrame()
	if err != nil {
		return err
	}
	m.pc = pc
	if store == discardResult {
		return nil
	}
	return m.stack.WriteVariable(uint8(store), v)
}

// storeTarget returns the frame store target for a call instruction.
func storeTarget(in *Instruction) int {
	if in.Store {
		return int(in.StoreVar)
	}
	return discardResult
}
