package vm

func opJin(m *Machine, in *Instruction, a []uint16) error {
	parent, err := m.objects.Parent(a[0])
	if err != nil {
		return err
	}
	return m.branch(in, parent == a[1])
}

func opTestAttr(m *Machine, in *Instruction, a []uint16) error {
	set, err := m.objects.Attribute(a[0], int(a[1]))
	if err != nil {
		return err
	}
	return m.branch(in, set)
}

func opSetAttr(m *Machine, in *Instruction, a []uint16) error {
	return m.objects.SetAttribute(a[0], int(a[1]), true)
}

func opClearAttr(m *Machine, in *Instruction, a []uint16) error {
	return m.objects.SetAttribute(a[0], int(a[1]), false)
}

func opInsertObj(m *Machine, in *Instruction, a []uint16) error {
	return m.objects.Move(a[0], a[1])
}

func opRemoveObj(m *Machine, in *Instruction, a []uint16) error {
	return m.objects.Remove(a[0])
}

func opGetSibling(m *Machine, in *Instruction, a []uint16) error {
	s, err := m.objects.Sibling(a[0])
	if err != nil {
		return err
	}
	if err := m.store(in, s); err != nil {
		return err
	}
	return m.branch(in, s != 0)
}

func opGetChild(m *Machine, in *Instruction, a []uint16) error {
	c, err := m.objects.Child(a[0])
	if err != nil {
		return err
	}
	if err := m.store(in, c); err != nil {
		return err
	}
	return m.branch(in, c != 0)
}

func opGetParent(m *Machine, in *Instruction, a []uint16) error {
	p, err := m.objects.Parent(a[0])
	if err != nil {
		return err
	}
	return m.store(in, p)
}

func opGetProp(m *Machine, in *Instruction, a []uint16) error {
	v, err := m.objects.PropertyValue(a[0], uint8(a[1]))
	if err != nil {
		return err
	}
	return m.store(in, v)
}

func opGetPropAddr(m *Machine, in *Instruction, a []uint16) error {
	addr, err := m.objects.PropertyAddress(a[0], uint8(a[1]))
	if err != nil {
		return err
	}
	return m.store(in, uint16(addr))
}

func opGetNextProp(m *Machine, in *Instruction, a []uint16) error {
	n, err := m.objects.NextProperty(a[0], uint8(a[1]))
	if err != nil {
		return err
	}
	return m.store(in, uint16(n))
}

func opGetPropLen(m *Machine, in *Instruction, a []uint16) error {
	n, err := m.objects.PropertyLength(uint32(a[0]))
	if err != nil {
		return err
	}
	return m.store(in, uint16(n))
}

func opPutProp(m *Machine, in *Instruction, a []uint16) error {
	return m.objects.PutProperty(a[0], uint8(a[1]), a[2])
}

func opPrintObj(m *Machine, in *Instruction, a []uint16) error {
	addr, err := m.objects.shortNameAddr(a[0])
	if err != nil || addr == 0 {
		return err
	}
	return m.printString(addr)
}
