package vm

import "fmt"

// ---------------------------------------------------------------------------
// Instruction forms and operands
// ---------------------------------------------------------------------------

// Form is the encoding shape of an instruction.
type Form uint8

const (
	FormLong Form = iota
	FormShort
	FormVariable
	FormExtended
)

func (f Form) String() string {
	switch f {
	case FormLong:
		return "long"
	case FormShort:
		return "short"
	case FormVariable:
		return "variable"
	default:
		return "extended"
	}
}

// OpKind is the operand-count class an opcode number belongs to.
type OpKind uint8

const (
	Kind0OP OpKind = iota
	Kind1OP
	Kind2OP
	KindVAR
	KindEXT
)

func (k OpKind) String() string {
	switch k {
	case Kind0OP:
		return "0OP"
	case Kind1OP:
		return "1OP"
	case Kind2OP:
		return "2OP"
	case KindVAR:
		return "VAR"
	default:
		return "EXT"
	}
}

// OperandType is the 2-bit operand type code.
type OperandType uint8

const (
	OperandLarge    OperandType = 0
	OperandSmall    OperandType = 1
	OperandVariable OperandType = 2
	OperandOmitted  OperandType = 3
)

// Operand is one decoded operand. For OperandVariable, Value is the
// variable number.
type Operand struct {
	Type  OperandType
	Value uint16
}

func (o Operand) String() string {
	switch o.Type {
	case OperandVariable:
		return variableName(uint8(o.Value))
	case OperandSmall:
		return fmt.Sprintf("#%02x", o.Value)
	default:
		return fmt.Sprintf("#%04x", o.Value)
	}
}

func variableName(n uint8) string {
	switch {
	case n == 0:
		return "sp"
	case n < 16:
		return fmt.Sprintf("L%02d", n-1)
	default:
		return fmt.Sprintf("G%02x", n-16)
	}
}

// Branch is a decoded branch descriptor.
type Branch struct {
	OnTrue bool
	Offset int16 // 0 = return false, 1 = return true
}

// Instruction is one fully decoded instruction.
type Instruction struct {
	Address  uint32
	Form     Form
	Kind     OpKind
	Number   uint8
	Operands []Operand

	Store     bool
	StoreVar  uint8
	Branch    *Branch
	TextAddr  uint32 // inline string for print/print_ret
	ResultPos uint32 // address of the store or branch byte
	Length    uint32

	op *opcode // nil when no variant exists for the version
}

// Next returns the address of the following instruction.
func (in *Instruction) Next() uint32 {
	return in.Address + in.Length
}

// Name returns the opcode name. Opcodes not defined for the decoded
// version report the name they have elsewhere.
func (in *Instruction) Name() string {
	if in.op != nil {
		return in.op.name
	}
	if op := anyVariant(in.Kind, in.Number); op != nil {
		return op.name
	}
	return fmt.Sprintf("%s_%02x", in.Kind, in.Number)
}

// BranchTarget returns the destination of a taken branch that is not a
// return.
func (in *Instruction) BranchTarget() uint32 {
	return uint32(int64(in.Next()) + int64(in.Branch.Offset) - 2)
}

// ---------------------------------------------------------------------------
// Decoder
// ---------------------------------------------------------------------------

type decoder struct {
	img     *Image
	profile Profile
	codec   *Codec
}

type cursor struct {
	img *Image
	pc  uint32
	err error
}

func (c *cursor) byte() byte {
	if c.err != nil {
		return 0
	}
	b, err := c.img.ReadByte(c.pc)
	if err != nil {
		c.err = err
		return 0
	}
	c.pc++
	return b
}

func (c *cursor) word() uint16 {
	hi := c.byte()
	lo := c.byte()
	return uint16(hi)<<8 | uint16(lo)
}

// decode reads the instruction at addr.
func (d *decoder) decode(addr uint32) (*Instruction, error) {
	c := &cursor{img: d.img, pc: addr}
	in := &Instruction{Address: addr}

	b := c.byte()
	var types []OperandType
	switch {
	case b == 0xBE && d.profile.Has(FeatureExtendedOpcodes):
		in.Form, in.Kind = FormExtended, KindEXT
		in.Number = c.byte()
		types = unpackTypes(c.byte(), nil)

	case b&0xC0 == 0xC0:
		in.Form = FormVariable
		in.Kind = Kind2OP
		if b&0x20 != 0 {
			in.Kind = KindVAR
		}
		in.Number = b & 0x1F
		types = unpackTypes(c.byte(), nil)
		if in.Kind == KindVAR && (in.Number == 0x0C || in.Number == 0x1A) {
			second := c.byte()
			if len(types) == 4 {
				types = unpackTypes(second, types)
			}
		}

	case b&0xC0 == 0x80:
		in.Form = FormShort
		in.Number = b & 0x0F
		t := OperandType(b>>4) & 3
		if t == OperandOmitted {
			in.Kind = Kind0OP
		} else {
			in.Kind = Kind1OP
			types = []OperandType{t}
		}

	default:
		in.Form, in.Kind = FormLong, Kind2OP
		in.Number = b & 0x1F
		types = []OperandType{OperandSmall, OperandSmall}
		if b&0x40 != 0 {
			types[0] = OperandVariable
		}
		if b&0x20 != 0 {
			types[1] = OperandVariable
		}
	}

	in.Operands = make([]Operand, 0, len(types))
	for _, t := range types {
		var v uint16
		if t == OperandLarge {
			v = c.word()
		} else {
			v = uint16(c.byte())
		}
		in.Operands = append(in.Operands, Operand{Type: t, Value: v})
	}
	if c.err != nil {
		return nil, c.err
	}

	in.op = lookupOpcode(in.Kind, in.Number, d.profile.Version)
	shape := in.op
	if shape == nil {
		shape = anyVariant(in.Kind, in.Number)
	}
	if shape != nil {
		in.ResultPos = c.pc
		if shape.store {
			in.Store = true
			in.StoreVar = c.byte()
		}
		if shape.branch {
			in.Branch = decodeBranch(c)
		}
		if shape.text {
			in.TextAddr = c.pc
			_, end, err := d.codec.ZChars(c.pc)
			if err != nil {
				return nil, err
			}
			c.pc = end
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	in.Length = c.pc - addr
	return in, nil
}

// unpackTypes appends the operand types of one type byte, stopping at the
// first omitted operand.
func unpackTypes(b byte, into []OperandType) []OperandType {
	for shift := 6; shift >= 0; shift -= 2 {
		t := OperandType(b>>uint(shift)) & 3
		if t == OperandOmitted {
			break
		}
		into = append(into, t)
	}
	return into
}

func decodeBranch(c *cursor) *Branch {
	b := c.byte()
	br := &Branch{OnTrue: b&0x80 != 0}
	if b&0x40 != 0 {
		br.Offset = int16(b & 0x3F)
		return br
	}
	off := uint16(b&0x3F)<<8 | uint16(c.byte())
	if off&0x2000 != 0 {
		off |= 0xC000
	}
	br.Offset = int16(off)
	return br
}
