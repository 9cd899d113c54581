package vm

// Property is one entry of an object's property table.
type Property struct {
	ID      uint8
	Address uint32 // first data byte
	Length  int
	Data    []byte
}

// propertyHeader decodes the size byte(s) at addr. It returns the property
// number, data length and data address; num 0 marks the end of the table.
func (t *ObjectTree) propertyHeader(addr uint32) (num uint8, length int, data uint32, err error) {
	b, err := t.img.ReadByte(addr)
	if err != nil {
		return 0, 0, 0, err
	}
	if b == 0 {
		return 0, 0, 0, nil
	}
	if t.profile.Version <= 3 {
		return b & 0x1F, int(b>>5) + 1, addr + 1, nil
	}
	num = b & 0x3F
	if b&0x80 == 0 {
		length = 1
		if b&0x40 != 0 {
			length = 2
		}
		return num, length, addr + 1, nil
	}
	b2, err := t.img.ReadByte(addr + 1)
	if err != nil {
		return 0, 0, 0, err
	}
	length = int(b2 & 0x3F)
	if length == 0 {
		length = 64
	}
	return num, length, addr + 2, nil
}

// firstProperty returns the address of the first size byte of id's table.
func (t *ObjectTree) firstProperty(id uint16) (uint32, error) {
	rec, err := t.check(id)
	if err != nil {
		return 0, err
	}
	table := t.propertyTableAt(rec)
	n, err := t.img.ReadByte(table)
	if err != nil {
		return 0, err
	}
	return table + 1 + 2*uint32(n), nil
}

// walk calls fn for each property of id until fn returns false. The table
// ends at a zero size byte.
func (t *ObjectTree) walk(id uint16, fn func(num uint8, length int, data uint32) bool) error {
	addr, err := t.firstProperty(id)
	if err != nil {
		return err
	}
	for steps := 0; steps < 256; steps++ {
		num, length, data, err := t.propertyHeader(addr)
		if err != nil {
			return err
		}
		if num == 0 {
			return nil
		}
		if !fn(num, length, data) {
			return nil
		}
		addr = data + uint32(length)
	}
	return objectError(id, "property table does not terminate")
}

// Properties lists every property of id in table order.
func (t *ObjectTree) Properties(id uint16) ([]Property, error) {
	var out []Property
	var rerr error
	err := t.walk(id, func(num uint8, length int, data uint32) bool {
		raw, err := t.img.ReadBytes(data, length)
		if err != nil {
			rerr = err
			return false
		}
		out = append(out, Property{ID: num, Address: data, Length: length, Data: raw})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, rerr
}

// find locates property num of id. ok is false when the object lacks it.
func (t *ObjectTree) find(id uint16, num uint8) (data uint32, length int, ok bool, err error) {
	err = t.walk(id, func(n uint8, l int, d uint32) bool {
		if n == num {
			data, length, ok = d, l, true
			return false
		}
		// descending order: nothing smaller can match
		return n > num
	})
	return data, length, ok, err
}

func (t *ObjectTree) checkPropertyNumber(id uint16, num uint8) error {
	if num == 0 || int(num) > t.profile.PropertyDefaults {
		return objectError(id, "property %d out of range (1-%d)", num, t.profile.PropertyDefaults)
	}
	return nil
}

// DefaultProperty returns the default value for property num.
func (t *ObjectTree) DefaultProperty(num uint8) (uint16, error) {
	if num == 0 || int(num) > t.profile.PropertyDefaults {
		return 0, objectError(0, "property %d out of range (1-%d)", num, t.profile.PropertyDefaults)
	}
	if t.tableAddr == 0 {
		return 0, objectError(0, "property %d default read with no object table", num)
	}
	return t.img.ReadWord(t.tableAddr + 2*uint32(num-1))
}

// Property returns property num of id. ok is false if the object does not
// have it.
func (t *ObjectTree) Property(id uint16, num uint8) (p Property, ok bool, err error) {
	if err := t.checkPropertyNumber(id, num); err != nil {
		return Property{}, false, err
	}
	data, length, ok, err := t.find(id, num)
	if err != nil || !ok {
		return Property{}, false, err
	}
	raw, err := t.img.ReadBytes(data, length)
	if err != nil {
		return Property{}, false, err
	}
	return Property{ID: num, Address: data, Length: length, Data: raw}, true, nil
}

// PropertyValue implements get_prop: a 1-byte property yields its byte, a
// longer one its first word, a missing one the default.
func (t *ObjectTree) PropertyValue(id uint16, num uint8) (uint16, error) {
	if err := t.checkPropertyNumber(id, num); err != nil {
		return 0, err
	}
	data, length, ok, err := t.find(id, num)
	if err != nil {
		return 0, err
	}
	if !ok {
		return t.DefaultProperty(num)
	}
	if length == 1 {
		b, err := t.img.ReadByte(data)
		return uint16(b), err
	}
	if length > 2 {
		log.Warningf("get_prop on %d-byte property %d of object %d", length, num, id)
	}
	return t.img.ReadWord(data)
}

// SetProperty overwrites the leading bytes of property num. The property
// must exist and be at least len(value) bytes long.
func (t *ObjectTree) SetProperty(id uint16, num uint8, value []byte) error {
	if err := t.checkPropertyNumber(id, num); err != nil {
		return err
	}
	data, length, ok, err := t.find(id, num)
	if err != nil {
		return err
	}
	if !ok {
		return objectError(id, "has no property %d", num)
	}
	if len(value) > length {
		return objectError(id, "property %d is %d bytes, cannot hold %d", num, length, len(value))
	}
	for i, b := range value {
		if err := t.img.WriteByte(data+uint32(i), b); err != nil {
			return err
		}
	}
	return nil
}

// PutProperty implements put_prop: a byte for 1-byte properties, otherwise
// the first word.
func (t *ObjectTree) PutProperty(id uint16, num uint8, v uint16) error {
	if err := t.checkPropertyNumber(id, num); err != nil {
		return err
	}
	_, length, ok, err := t.find(id, num)
	if err != nil {
		return err
	}
	if !ok {
		return objectError(id, "has no property %d", num)
	}
	if length == 1 {
		return t.SetProperty(id, num, []byte{byte(v)})
	}
	return t.SetProperty(id, num, []byte{byte(v >> 8), byte(v)})
}

// PropertyAddress returns the data address of property num, or 0.
func (t *ObjectTree) PropertyAddress(id uint16, num uint8) (uint32, error) {
	if num == 0 {
		return 0, nil
	}
	data, _, ok, err := t.find(id, num)
	if err != nil || !ok {
		return 0, err
	}
	return data, nil
}

// PropertyLength returns the length of the property whose data starts at
// data. Address 0 yields 0.
func (t *ObjectTree) PropertyLength(data uint32) (int, error) {
	if data == 0 {
		return 0, nil
	}
	b, err := t.img.ReadByte(data - 1)
	if err != nil {
		return 0, err
	}
	if t.profile.Version <= 3 {
		return int(b>>5) + 1, nil
	}
	if b&0x80 != 0 {
		n := int(b & 0x3F)
		if n == 0 {
			n = 64
		}
		return n, nil
	}
	if b&0x40 != 0 {
		return 2, nil
	}
	return 1, nil
}

// NextProperty implements get_next_prop: num 0 yields the first property,
// otherwise the one after num; 0 means no more.
func (t *ObjectTree) NextProperty(id uint16, num uint8) (uint8, error) {
	var next uint8
	found := num == 0
	err := t.walk(id, func(n uint8, _ int, _ uint32) bool {
		if found {
			next = n
			return false
		}
		if n == num {
			found = true
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, objectError(id, "has no property %d", num)
	}
	return next, nil
}
