package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction renders one decoded instruction.
func (m *Machine) DisassembleInstruction(in *Instruction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%05x  %-14s", in.Address, strings.ToUpper(in.Name()))
	for i, o := range in.Operands {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte(' ')
		b.WriteString(o.String())
	}
	if in.TextAddr != 0 {
		text, _, err := m.codec.DecodeAt(in.TextAddr)
		if err != nil {
			text = "<" + err.Error() + ">"
		}
		fmt.Fprintf(&b, " %q", text)
	}
	if in.Store {
		fmt.Fprintf(&b, " -> %s", variableName(in.StoreVar))
	}
	if br := in.Branch; br != nil {
		b.WriteString(" ?")
		if !br.OnTrue {
			b.WriteByte('~')
		}
		switch br.Offset {
		case 0:
			b.WriteString("RFALSE")
		case 1:
			b.WriteString("RTRUE")
		default:
			fmt.Fprintf(&b, "%05x", in.BranchTarget())
		}
	}
	return b.String()
}

// Disassemble decodes count instructions starting at addr. Decoding stops
// early at the first undecodable byte.
func (m *Machine) Disassemble(addr uint32, count int) ([]string, error) {
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		in, err := m.decoder.decode(addr)
		if err != nil {
			return out, err
		}
		out = append(out, m.DisassembleInstruction(in))
		addr = in.Next()
	}
	return out, nil
}

// Decode returns the instruction at addr without executing it.
func (m *Machine) Decode(addr uint32) (*Instruction, error) {
	return m.decoder.decode(addr)
}
