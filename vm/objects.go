package vm

// ---------------------------------------------------------------------------
// Object records
// ---------------------------------------------------------------------------

// Object is a snapshot of one object record.
type Object struct {
	ID            uint16
	Attributes    uint64 // attribute 0 is bit AttributeBits-1
	Parent        uint16
	Sibling       uint16
	Child         uint16
	PropertyTable uint32
}

// ObjectTree is the object table layered over the image. Records are read
// and written in place; the tree itself only remembers where the table is
// and how many objects it holds.
type ObjectTree struct {
	img        *Image
	profile    Profile
	codec      *Codec
	tableAddr  uint32 // property defaults block
	records    uint32 // record for object 1
	staticBase uint32
	dictionary uint32
	count      int
}

// LoadObjectTree scans the object table. Objects are densely packed, so the
// first record whose property table address is 0 or not below staticBase
// ends the table, as does the end of the image. A story with no object
// table has no objects.
func LoadObjectTree(img *Image, p Profile, codec *Codec, objectTableAddr, staticBase, dictionaryAddr uint32) (*ObjectTree, error) {
	if objectTableAddr >= img.Len() {
		return nil, corrupted("object table address 0x%04x outside the image", objectTableAddr)
	}
	if staticBase > img.Len() {
		return nil, corrupted("static base 0x%04x beyond the image", staticBase)
	}
	t := &ObjectTree{
		img:        img,
		profile:    p,
		codec:      codec,
		tableAddr:  objectTableAddr,
		records:    objectTableAddr + uint32(p.PropertyDefaults)*2,
		staticBase: staticBase,
		dictionary: dictionaryAddr,
	}
	if objectTableAddr == 0 {
		log.Debugf("story has no object table")
		return t, nil
	}

	for id := 1; id <= p.MaxObjects; id++ {
		end := t.recordAddr(uint16(id)) + uint32(p.ObjectRecordSize)
		if end > img.Len() {
			break
		}
		props := uint32(img.wordAt(end - 2))
		if props == 0 || props >= staticBase {
			break
		}
		t.count = id
	}
	log.Debugf("object table at 0x%04x: %d objects", objectTableAddr, t.count)
	return t, nil
}

// Count returns the number of materialized objects.
func (t *ObjectTree) Count() int {
	return t.count
}

// Profile returns the layout the tree was loaded with.
func (t *ObjectTree) Profile() Profile {
	return t.profile
}

// Valid reports whether id names a materialized object.
func (t *ObjectTree) Valid(id uint16) bool {
	return id >= 1 && int(id) <= t.count
}

func (t *ObjectTree) recordAddr(id uint16) uint32 {
	return t.records + uint32(id-1)*uint32(t.profile.ObjectRecordSize)
}

func (t *ObjectTree) check(id uint16) (uint32, error) {
	if !t.Valid(id) {
		return 0, objectError(id, "no such object (table holds %d)", t.count)
	}
	return t.recordAddr(id), nil
}

func (t *ObjectTree) linkAddr(rec uint32, which int) uint32 {
	return rec + uint32(t.profile.AttributeBytes()+which*t.profile.LinkBytes())
}

func (t *ObjectTree) readLink(rec uint32, which int) uint16 {
	a := t.linkAddr(rec, which)
	if t.profile.LinkBytes() == 1 {
		return uint16(t.img.byteAt(a))
	}
	return t.img.wordAt(a)
}

func (t *ObjectTree) writeLink(rec uint32, which int, v uint16) error {
	a := t.linkAddr(rec, which)
	if t.profile.LinkBytes() == 1 {
		return t.img.WriteByte(a, byte(v))
	}
	return t.img.WriteWord(a, v)
}

const (
	linkParent = iota
	linkSibling
	linkChild
)

func (t *ObjectTree) propertyTableAt(rec uint32) uint32 {
	return uint32(t.img.wordAt(rec + uint32(t.profile.ObjectRecordSize) - 2))
}

// Object returns the current record for id.
func (t *ObjectTree) Object(id uint16) (Object, error) {
	rec, err := t.check(id)
	if err != nil {
		return Object{}, err
	}
	return Object{
		ID:            id,
		Attributes:    t.attributes(rec),
		Parent:        t.readLink(rec, linkParent),
		Sibling:       t.readLink(rec, linkSibling),
		Child:         t.readLink(rec, linkChild),
		PropertyTable: t.propertyTableAt(rec),
	}, nil
}

// ---------------------------------------------------------------------------
// Attributes
// ---------------------------------------------------------------------------

// attributes reads the attribute field as a big-endian integer in a uint64.
func (t *ObjectTree) attributes(rec uint32) uint64 {
	var v uint64
	for i := 0; i < t.profile.AttributeBytes(); i++ {
		v = v<<8 | uint64(t.img.byteAt(rec+uint32(i)))
	}
	return v
}

func (t *ObjectTree) attributeMask(n int) uint64 {
	return uint64(1) << uint64(t.profile.AttributeBits-1-n)
}

func (t *ObjectTree) checkAttribute(id uint16, n int) error {
	if n < 0 || n >= t.profile.AttributeBits {
		return objectError(id, "attribute %d out of range (0-%d)", n, t.profile.AttributeBits-1)
	}
	return nil
}

// Attribute reports whether attribute n of object id is set.
func (t *ObjectTree) Attribute(id uint16, n int) (bool, error) {
	rec, err := t.check(id)
	if err != nil {
		return false, err
	}
	if err := t.checkAttribute(id, n); err != nil {
		return false, err
	}
	return t.attributes(rec)&t.attributeMask(n) != 0, nil
}

// SetAttribute sets or clears attribute n of object id. Only the byte that
// holds the attribute is rewritten.
func (t *ObjectTree) SetAttribute(id uint16, n int, value bool) error {
	rec, err := t.check(id)
	if err != nil {
		return err
	}
	if err := t.checkAttribute(id, n); err != nil {
		return err
	}
	old := t.attributes(rec)
	next := old &^ t.attributeMask(n)
	if value {
		next |= t.attributeMask(n)
	}
	width := t.profile.AttributeBytes()
	for i := 0; i < width; i++ {
		shift := uint64(8 * (width - 1 - i))
		if byte(old>>shift) != byte(next>>shift) {
			if err := t.img.WriteByte(rec+uint32(i), byte(next>>shift)); err != nil {
				return err
			}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Relationships
// ---------------------------------------------------------------------------

// Parent returns the parent of id (0 for none).
func (t *ObjectTree) Parent(id uint16) (uint16, error) {
	rec, err := t.check(id)
	if err != nil {
		return 0, err
	}
	return t.readLink(rec, linkParent), nil
}

// Sibling returns the next sibling of id (0 for none).
func (t *ObjectTree) Sibling(id uint16) (uint16, error) {
	rec, err := t.check(id)
	if err != nil {
		return 0, err
	}
	return t.readLink(rec, linkSibling), nil
}

// Child returns the first child of id (0 for none).
func (t *ObjectTree) Child(id uint16) (uint16, error) {
	rec, err := t.check(id)
	if err != nil {
		return 0, err
	}
	return t.readLink(rec, linkChild), nil
}

// Children lists the children of id in chain order.
func (t *ObjectTree) Children(id uint16) ([]uint16, error) {
	c, err := t.Child(id)
	if err != nil {
		return nil, err
	}
	var out []uint16
	for c != 0 {
		if len(out) > t.count {
			return nil, objectError(id, "sibling chain does not terminate")
		}
		out = append(out, c)
		if c, err = t.Sibling(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Remove detaches id from its parent. The remaining siblings keep their
// order; id keeps its own children.
func (t *ObjectTree) Remove(id uint16) error {
	rec, err := t.check(id)
	if err != nil {
		return err
	}
	parent := t.readLink(rec, linkParent)
	if parent == 0 {
		return nil
	}
	prec, err := t.check(parent)
	if err != nil {
		return err
	}
	next := t.readLink(rec, linkSibling)

	if first := t.readLink(prec, linkChild); first == id {
		if err := t.writeLink(prec, linkChild, next); err != nil {
			return err
		}
	} else {
		prev := first
		for steps := 0; ; steps++ {
			if prev == 0 || steps > t.count {
				return objectError(id, "not found among the children of object %d", parent)
			}
			pr, err := t.check(prev)
			if err != nil {
				return err
			}
			sib := t.readLink(pr, linkSibling)
			if sib == id {
				if err := t.writeLink(pr, linkSibling, next); err != nil {
					return err
				}
				break
			}
			prev = sib
		}
	}
	if err := t.writeLink(rec, linkParent, 0); err != nil {
		return err
	}
	return t.writeLink(rec, linkSibling, 0)
}

// Move detaches id and makes it the first child of newParent. A
// newParent of 0 leaves it detached.
func (t *ObjectTree) Move(id, newParent uint16) error {
	rec, err := t.check(id)
	if err != nil {
		return err
	}
	if newParent == 0 {
		return t.Remove(id)
	}
	prec, err := t.check(newParent)
	if err != nil {
		return err
	}
	for a, steps := newParent, 0; a != 0; steps++ {
		if a == id {
			return objectError(id, "cannot move into its own descendant %d", newParent)
		}
		if steps > t.count {
			return objectError(newParent, "parent chain does not terminate")
		}
		if a, err = t.Parent(a); err != nil {
			return err
		}
	}
	if err := t.Remove(id); err != nil {
		return err
	}
	if err := t.writeLink(rec, linkSibling, t.readLink(prec, linkChild)); err != nil {
		return err
	}
	if err := t.writeLink(rec, linkParent, newParent); err != nil {
		return err
	}
	return t.writeLink(prec, linkChild, id)
}

// ---------------------------------------------------------------------------
// Short names
// ---------------------------------------------------------------------------

// ShortName decodes the name stored at the head of the property table.
func (t *ObjectTree) ShortName(id uint16) (string, error) {
	rec, err := t.check(id)
	if err != nil {
		return "", err
	}
	table := t.propertyTableAt(rec)
	n, err := t.img.ReadByte(table)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	name, _, err := t.codec.DecodeAt(table + 1)
	return name, err
}

// shortNameAddr returns the address of the encoded short name, or 0.
func (t *ObjectTree) shortNameAddr(id uint16) (uint32, error) {
	rec, err := t.check(id)
	if err != nil {
		return 0, err
	}
	table := t.propertyTableAt(rec)
	n, err := t.img.ReadByte(table)
	if err != nil || n == 0 {
		return 0, err
	}
	return table + 1, nil
}
