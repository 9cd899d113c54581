package vm

import (
	"io"
	"strconv"

	"github.com/pkg/errors"
)

func opPrint(m *Machine, in *Instruction, a []uint16) error {
	return m.printString(in.TextAddr)
}

func opPrintRet(m *Machine, in *Instruction, a []uint16) error {
	if err := m.printString(in.TextAddr); err != nil {
		return err
	}
	if err := m.printZSCII([]uint16{zsciiNewline}); err != nil {
		return err
	}
	return m.ret(1)
}

func opNewLine(m *Machine, in *Instruction, a []uint16) error {
	return m.printZSCII([]uint16{zsciiNewline})
}

func opPrintAddr(m *Machine, in *Instruction, a []uint16) error {
	return m.printString(uint32(a[0]))
}

func opPrintPaddr(m *Machine, in *Instruction, a []uint16) error {
	return m.printString(m.unpackString(a[0]))
}

func opPrintNum(m *Machine, in *Instruction, a []uint16) error {
	return m.print(strconv.Itoa(int(int16(a[0]))))
}

func opPrintChar(m *Machine, in *Instruction, a []uint16) error {
	c := a[0]
	if !m.zscii.Printable(c) {
		m.log.Warningf("print_char: ZSCII %d is not printable", c)
		c = '?'
	}
	return m.printZSCII([]uint16{c})
}

// opPrintUnicode prints a Unicode character, substituting '?' for one
// outside the displayable set.
func opPrintUnicode(m *Machine, in *Instruction, a []uint16) error {
	r := rune(a[0])
	if !m.zscii.Displayable(r) {
		m.log.Warningf("print_unicode: U+%04X is not displayable", r)
		return m.print("?")
	}
	if len(m.out.tables) > 0 {
		return m.print(string(r))
	}
	return m.writeRune(r)
}

// writeRune bypasses ZSCII for characters the story has no code for.
func (m *Machine) writeRune(r rune) error {
	if c, ok := m.zscii.FromRune(r); ok {
		return m.printZSCII([]uint16{c})
	}
	m.emit(string(r), false)
	return nil
}

// opCheckUnicode stores bit 0 (can print) and bit 1 (can read).
func opCheckUnicode(m *Machine, in *Instruction, a []uint16) error {
	if m.zscii.Displayable(rune(a[0])) {
		return m.store(in, 3)
	}
	return m.store(in, 0)
}

// opPrintTable prints a height x width block of ZSCII, skipping skip bytes
// after each row.
func opPrintTable(m *Machine, in *Instruction, a []uint16) error {
	addr, width := uint32(a[0]), uint32(a[1])
	height, skip := uint32(1), uint32(0)
	if len(a) > 2 {
		height = uint32(a[2])
	}
	if len(a) > 3 {
		skip = uint32(a[3])
	}
	for row := uint32(0); row < height; row++ {
		if row > 0 {
			if err := m.printZSCII([]uint16{zsciiNewline}); err != nil {
				return err
			}
		}
		raw, err := m.image.ReadBytes(addr, int(width))
		if err != nil {
			return err
		}
		codes := make([]uint16, len(raw))
		for i, b := range raw {
			codes[i] = uint16(b)
		}
		if err := m.printZSCII(codes); err != nil {
			return err
		}
		addr += width + skip
	}
	return nil
}

func opOutputStream(m *Machine, in *Instruction, a []uint16) error {
	var table uint32
	if len(a) > 1 {
		table = uint32(a[1])
	}
	return m.selectStream(int16(a[0]), table)
}

func opShowStatus(m *Machine, in *Instruction, a []uint16) error {
	if !m.profile.Has(FeatureStatusLine) {
		return nil
	}
	return m.showStatus()
}

// showStatus draws the v1-3 status line from globals 0-2 when the output
// can display one.
func (m *Machine) showStatus() error {
	sl, ok := m.out.screenOut.(StatusLine)
	if !ok {
		return nil
	}
	if err := m.flushOutput(); err != nil {
		return err
	}
	var vals [3]uint16
	for i := range vals {
		v, err := m.stack.ReadVariable(uint8(16 + i))
		if err != nil {
			return err
		}
		vals[i] = v
	}
	st := Status{
		Score:    int16(vals[1]),
		Moves:    int16(vals[2]),
		TimeGame: m.profile.Version == 3 && m.header.Flags1&0x02 != 0,
	}
	if m.objects.Valid(vals[0]) {
		name, err := m.objects.ShortName(vals[0])
		if err != nil {
			return err
		}
		st.Location = name
	}
	return errors.Wrap(sl.ShowStatus(st), "show status")
}

// ---------------------------------------------------------------------------
// Input
// ---------------------------------------------------------------------------

// readLine fetches the next input line. ok is false once input is
// exhausted, which ends the session.
func (m *Machine) readLine() (line string, ok bool, err error) {
	if m.in == nil {
		return "", false, nil
	}
	if err := m.flushOutput(); err != nil {
		return "", false, err
	}
	line, err = m.in.ReadLine()
	if err == io.EOF {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "read input")
	}
	m.log.Debugf("input: %q", line)
	return line, true, nil
}

// typeable converts an input line to lower-case ZSCII, dropping characters
// the story cannot receive.
func (m *Machine) typeable(line string) []uint16 {
	out := make([]uint16, 0, len(line))
	for _, r := range line {
		c, ok := m.zscii.FromRune(r)
		if !ok || c == zsciiNewline || c < 32 {
			continue
		}
		out = append(out, m.zscii.Lower(c))
	}
	return out
}

// opRead implements sread (v1-4) and aread (v5+).
func opRead(m *Machine, in *Instruction, a []uint16) error {
	text := uint32(a[0])
	var parse uint32
	if len(a) > 1 {
		parse = uint32(a[1])
	}
	if m.profile.Has(FeatureStatusLine) {
		if err := m.showStatus(); err != nil {
			return err
		}
	}

	capacity, err := m.image.ReadByte(text)
	if err != nil {
		return err
	}
	line, ok, err := m.readLine()
	if err != nil {
		return err
	}
	if !ok {
		m.halt()
		return nil
	}
	codes := m.typeable(line)

	start := text + 1
	limit := int(capacity)
	if m.profile.Version <= 4 {
		limit--
	} else {
		start = text + 2
	}
	if limit < 0 {
		limit = 0
	}
	if len(codes) > limit {
		codes = codes[:limit]
	}

	for i, c := range codes {
		if err := m.image.WriteByte(start+uint32(i), byte(c)); err != nil {
			return err
		}
	}
	if m.profile.Version <= 4 {
		if err := m.image.WriteByte(start+uint32(len(codes)), 0); err != nil {
			return err
		}
	} else {
		if err := m.image.WriteByte(text+1, byte(len(codes))); err != nil {
			return err
		}
	}

	if parse != 0 {
		if m.dict == nil {
			return malformed("read with a parse buffer but the story has no dictionary")
		}
		if err := m.tokenise(codes, start-text, parse, m.dict, false); err != nil {
			return err
		}
	}
	return m.store(in, zsciiNewline)
}

// opReadChar returns one typed character. A line is read when none is
// pending; its end is delivered as a newline.
func opReadChar(m *Machine, in *Instruction, a []uint16) error {
	if len(m.pending) == 0 {
		line, ok, err := m.readLine()
		if err != nil {
			return err
		}
		if !ok {
			m.halt()
			return nil
		}
		for _, r := range line {
			if c, ok := m.zscii.FromRune(r); ok {
				m.pending = append(m.pending, c)
			}
		}
		m.pending = append(m.pending, zsciiNewline)
	}
	c := m.pending[0]
	m.pending = m.pending[1:]
	return m.store(in, c)
}

// ---------------------------------------------------------------------------
// Lexical analysis
// ---------------------------------------------------------------------------

// tokenise fills a parse buffer from codes. offset is the position of the
// first character relative to the text buffer. With flag set, words not in
// the dictionary leave their parse block untouched.
func (m *Machine) tokenise(codes []uint16, offset uint32, parse uint32, dict *Dictionary, flag bool) error {
	limit, err := m.image.ReadByte(parse)
	if err != nil {
		return err
	}
	tokens := dict.Tokenise(codes)
	if len(tokens) > int(limit) {
		tokens = tokens[:limit]
	}
	for i, t := range tokens {
		entry := dict.LookupWord(t.Text)
		if flag && entry == 0 {
			continue
		}
		block := parse + 2 + 4*uint32(i)
		if err := m.image.WriteWord(block, uint16(entry)); err != nil {
			return err
		}
		if err := m.image.WriteByte(block+2, byte(t.Length)); err != nil {
			return err
		}
		if err := m.image.WriteByte(block+3, byte(uint32(t.Start)+offset)); err != nil {
			return err
		}
	}
	return m.image.WriteByte(parse+1, byte(len(tokens)))
}

// textBuffer reads the typed characters out of a text buffer.
func (m *Machine) textBuffer(text uint32) ([]uint16, uint32, error) {
	if m.profile.Version >= 5 {
		n, err := m.image.ReadByte(text + 1)
		if err != nil {
			return nil, 0, err
		}
		raw, err := m.image.ReadBytes(text+2, int(n))
		if err != nil {
			return nil, 0, err
		}
		codes := make([]uint16, len(raw))
		for i, b := range raw {
			codes[i] = uint16(b)
		}
		return codes, 2, nil
	}
	capacity, err := m.image.ReadByte(text)
	if err != nil {
		return nil, 0, err
	}
	var codes []uint16
	for i := uint32(0); i < uint32(capacity); i++ {
		b, err := m.image.ReadByte(text + 1 + i)
		if err != nil {
			return nil, 0, err
		}
		if b == 0 {
			break
		}
		codes = append(codes, uint16(b))
	}
	return codes, 1, nil
}

func opTokenise(m *Machine, in *Instruction, a []uint16) error {
	codes, offset, err := m.textBuffer(uint32(a[0]))
	if err != nil {
		return err
	}
	dict := m.dict
	if len(a) > 2 && a[2] != 0 {
		if dict, err = LoadDictionary(m.image, m.codec, uint32(a[2])); err != nil {
			return err
		}
	}
	if dict == nil {
		return malformed("tokenise without a dictionary")
	}
	flag := len(a) > 3 && a[3] != 0
	return m.tokenise(codes, offset, uint32(a[1]), dict, flag)
}

// opEncodeText encodes length characters at text+from into dictionary
// form at coded.
func opEncodeText(m *Machine, in *Instruction, a []uint16) error {
	raw, err := m.image.ReadBytes(uint32(a[0])+uint32(a[2]), int(a[1]))
	if err != nil {
		return err
	}
	word := make([]uint16, len(raw))
	for i, b := range raw {
		word[i] = uint16(b)
	}
	encoded := m.codec.EncodeWord(word)
	for i, b := range encoded {
		if err := m.image.WriteByte(uint32(a[3])+uint32(i), b); err != nil {
			return err
		}
	}
	return nil
}
