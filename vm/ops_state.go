package vm

// saveResult reports a save or restore outcome in the instruction's own
// form: a branch in v1-3, a stored value later.
func (m *Machine) saveResult(in *Instruction, ok bool) error {
	if in.Branch != nil {
		return m.branch(in, ok)
	}
	if ok {
		return m.store(in, 1)
	}
	return m.store(in, 0)
}

func opSave(m *Machine, in *Instruction, a []uint16) error {
	if len(a) > 0 {
		m.log.Warningf("save: auxiliary table saves are not supported")
		return m.saveResult(in, false)
	}
	if m.persist == nil {
		return m.saveResult(in, false)
	}
	snap := m.capture(in.ResultPos, true)
	if err := m.persist.Save(snap); err != nil {
		m.log.Warningf("save failed: %s", err)
		return m.saveResult(in, false)
	}
	m.log.Infof("saved game at 0x%05x", in.Address)
	return m.saveResult(in, true)
}

// opRestore replaces the state with the last save. On success execution
// continues after the original save instruction, which reports 2.
func opRestore(m *Machine, in *Instruction, a []uint16) error {
	if len(a) > 0 {
		m.log.Warningf("restore: auxiliary table restores are not supported")
		return m.store(in, 0)
	}
	if m.persist == nil {
		return m.saveResult(in, false)
	}
	snap, err := m.persist.Restore(m.header.ID())
	if err != nil {
		m.log.Warningf("restore failed: %s", err)
		return m.saveResult(in, false)
	}
	if err := m.validateSnapshot(snap); err != nil {
		m.log.Warningf("restore rejected: %s", err)
		return m.saveResult(in, false)
	}
	m.log.Infof("restored game saved at 0x%05x", snap.PC)
	return m.apply(snap)
}

// opSaveUndo pushes the state onto the undo ring; -1 means undo is
// unavailable.
func opSaveUndo(m *Machine, in *Instruction, a []uint16) error {
	if m.undoDepth <= 0 {
		return m.store(in, 0xFFFF)
	}
	m.undo = append(m.undo, m.capture(in.ResultPos, true))
	if len(m.undo) > m.undoDepth {
		m.undo = m.undo[len(m.undo)-m.undoDepth:]
	}
	return m.store(in, 1)
}

func opRestoreUndo(m *Machine, in *Instruction, a []uint16) error {
	if len(m.undo) == 0 {
		return m.store(in, 0)
	}
	snap := m.undo[len(m.undo)-1]
	if err := m.apply(snap); err != nil {
		return err
	}
	m.undo = m.undo[:len(m.undo)-1]
	return nil
}
