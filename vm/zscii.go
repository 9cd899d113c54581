package vm

import "unicode"

// ---------------------------------------------------------------------------
// ZSCII <-> Unicode
// ---------------------------------------------------------------------------

// ZSCII codes with special meaning.
const (
	zsciiNull      = 0
	zsciiDelete    = 8
	zsciiTab       = 9
	zsciiSentence  = 11
	zsciiNewline   = 13
	zsciiEscape    = 27
	zsciiExtraLow  = 155
	zsciiExtraHigh = 251
)

// defaultExtraChars maps ZSCII 155..223 when the story supplies no table.
const defaultExtraChars = "äöüÄÖÜß»«ëïÿËÏáéíóúýÁÉÍÓÚÝàèìòùÀÈÌÒÙâêîôûÂÊÎÔÛåÅøØãñõÃÑÕæÆçÇþðÞÐ£œŒ¡¿"

// ZSCII translates between ZSCII codes and Unicode runes for one story.
type ZSCII struct {
	extra   []rune // ZSCII 155.. in order
	reverse map[rune]uint16
}

// DefaultZSCII returns the translation used when a story has no Unicode
// table.
func DefaultZSCII() *ZSCII {
	return newZSCII([]rune(defaultExtraChars))
}

func newZSCII(extra []rune) *ZSCII {
	z := &ZSCII{extra: extra, reverse: make(map[rune]uint16, len(extra))}
	for i, r := range extra {
		if _, dup := z.reverse[r]; !dup {
			z.reverse[r] = uint16(zsciiExtraLow + i)
		}
	}
	return z
}

// loadZSCII reads the optional Unicode translation table referenced from
// word 3 of the header extension table (v5+).
func loadZSCII(img *Image, p Profile, extTable uint32) (*ZSCII, error) {
	if !p.Has(FeatureUnicode) || extTable == 0 {
		return DefaultZSCII(), nil
	}
	n, err := img.ReadWord(extTable)
	if err != nil {
		return nil, err
	}
	if n < 3 {
		return DefaultZSCII(), nil
	}
	tableAddr, err := img.ReadWord(extTable + 6)
	if err != nil {
		return nil, err
	}
	if tableAddr == 0 {
		return DefaultZSCII(), nil
	}
	count, err := img.ReadByte(uint32(tableAddr))
	if err != nil {
		return nil, err
	}
	if int(count) > zsciiExtraHigh-zsciiExtraLow+1 {
		return nil, corrupted("unicode table declares %d characters", count)
	}
	extra := make([]rune, count)
	for i := range extra {
		w, err := img.ReadWord(uint32(tableAddr) + 1 + 2*uint32(i))
		if err != nil {
			return nil, err
		}
		extra[i] = rune(w)
	}
	return newZSCII(extra), nil
}

// ToRune converts a ZSCII output code. ok is false for codes that have no
// printable form.
func (z *ZSCII) ToRune(c uint16) (r rune, ok bool) {
	switch {
	case c == zsciiNewline:
		return '\n', true
	case c == zsciiTab:
		return '\t', true
	case c == zsciiSentence:
		return ' ', true
	case c >= 32 && c <= 126:
		return rune(c), true
	case c >= zsciiExtraLow && int(c-zsciiExtraLow) < len(z.extra):
		return z.extra[c-zsciiExtraLow], true
	default:
		return '?', false
	}
}

// FromRune converts a Unicode rune to ZSCII. ok is false when the rune has
// no ZSCII code.
func (z *ZSCII) FromRune(r rune) (c uint16, ok bool) {
	switch {
	case r == '\n' || r == '\r':
		return zsciiNewline, true
	case r == '\b':
		return zsciiDelete, true
	case r == 0x1b:
		return zsciiEscape, true
	case r >= 32 && r <= 126:
		return uint16(r), true
	}
	c, ok = z.reverse[r]
	return c, ok
}

// Printable reports whether c can be printed by print_char.
func (z *ZSCII) Printable(c uint16) bool {
	if c == zsciiNull {
		return true
	}
	_, ok := z.ToRune(c)
	return ok
}

// Displayable reports whether a Unicode character can be both printed and
// typed. Characters inside the Latin-1 printable range are always accepted;
// beyond that only the story's translation table counts.
func (z *ZSCII) Displayable(r rune) bool {
	if r >= 32 && r <= 126 {
		return true
	}
	if _, ok := z.reverse[r]; ok {
		return true
	}
	return r >= 0xA1 && r <= 0xFF
}

// Lower maps upper-case ZSCII letters to lower case, including the
// accented pairs from the default table.
func (z *ZSCII) Lower(c uint16) uint16 {
	if c >= 'A' && c <= 'Z' {
		return c + 32
	}
	r, ok := z.ToRune(c)
	if !ok || c < zsciiExtraLow {
		return c
	}
	lr := unicode.ToLower(r)
	if lr == r {
		return c
	}
	if lc, ok := z.reverse[lr]; ok {
		return lc
	}
	return c
}
