package vm

import (
	"strings"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Alphabets
// ---------------------------------------------------------------------------

const (
	alphabetA0 = "abcdefghijklmnopqrstuvwxyz"
	alphabetA1 = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	// A2 position 0 (z-char 6) is always the 10-bit escape; the
	// placeholder space is never emitted.
	alphabetA2V1 = " 0123456789.,!?_#'\"/\\<-:()"
	alphabetA2   = " \n0123456789.,!?_#'\"/\\-:()"
)

// abbreviationFiller replaces an abbreviation whose table entry is zero.
const abbreviationFiller = '?'

type alphaSlot struct {
	alphabet int
	zchar    byte
}

// ---------------------------------------------------------------------------
// Codec
// ---------------------------------------------------------------------------

// Codec decodes and encodes z-character text for one story.
type Codec struct {
	img       *Image
	profile   Profile
	zscii     *ZSCII
	alphabets [3][26]uint16
	slots     map[uint16]alphaSlot
	abbrevs   uint32
	log       commonlog.Logger
}

// NewCodec builds a codec. abbrevAddr is the abbreviation table (0 if none)
// and alphabetAddr the v5+ custom alphabet table (0 for the default).
func NewCodec(img *Image, p Profile, abbrevAddr, alphabetAddr uint32, z *ZSCII) (*Codec, error) {
	if z == nil {
		z = DefaultZSCII()
	}
	c := &Codec{
		img:     img,
		profile: p,
		zscii:   z,
		abbrevs: abbrevAddr,
		log:     log,
	}
	if !p.Has(FeatureAbbreviations) {
		c.abbrevs = 0
	}

	a2 := alphabetA2
	if p.Version == 1 {
		a2 = alphabetA2V1
	}
	for i := 0; i < 26; i++ {
		c.alphabets[0][i] = uint16(alphabetA0[i])
		c.alphabets[1][i] = uint16(alphabetA1[i])
		c.alphabets[2][i] = uint16(a2[i])
	}
	if p.Version >= 2 {
		c.alphabets[2][1] = zsciiNewline
	}

	if p.Version >= 5 && alphabetAddr != 0 {
		raw, err := img.ReadBytes(alphabetAddr, 78)
		if err != nil {
			return nil, corrupted("alphabet table at 0x%04x: %v", alphabetAddr, err)
		}
		for a := 0; a < 3; a++ {
			for i := 0; i < 26; i++ {
				if a == 2 && i < 2 {
					continue
				}
				c.alphabets[a][i] = uint16(raw[a*26+i])
			}
		}
	}

	c.slots = make(map[uint16]alphaSlot, 78)
	for a := 0; a < 3; a++ {
		for i := 0; i < 26; i++ {
			if a == 2 && (i == 0 || (i == 1 && p.Version >= 2)) {
				continue
			}
			ch := c.alphabets[a][i]
			if _, seen := c.slots[ch]; !seen {
				c.slots[ch] = alphaSlot{alphabet: a, zchar: byte(i + 6)}
			}
		}
	}
	return c, nil
}

// ZSCII returns the character translation in use.
func (c *Codec) ZSCII() *ZSCII {
	return c.zscii
}

// ZChars unpacks the z-characters of the string at addr and returns the
// address just past its final word.
func (c *Codec) ZChars(addr uint32) ([]byte, uint32, error) {
	var out []byte
	for {
		w, err := c.img.ReadWord(addr)
		if err != nil {
			return nil, 0, err
		}
		addr += 2
		out = append(out, byte(w>>10)&0x1F, byte(w>>5)&0x1F, byte(w)&0x1F)
		if w&0x8000 != 0 {
			return out, addr, nil
		}
	}
}

// DecodeAt decodes the string at addr and returns it with the address of
// the word following it.
func (c *Codec) DecodeAt(addr uint32) (string, uint32, error) {
	codes, end, err := c.DecodeZSCIIAt(addr)
	if err != nil {
		return "", 0, err
	}
	return c.ToString(codes), end, nil
}

// DecodeZSCIIAt is DecodeAt without the Unicode conversion.
func (c *Codec) DecodeZSCIIAt(addr uint32) ([]uint16, uint32, error) {
	zs, end, err := c.ZChars(addr)
	if err != nil {
		return nil, 0, err
	}
	codes, err := c.expand(zs, 0, nil)
	if err != nil {
		return nil, 0, err
	}
	return codes, end, nil
}

// Decode converts already-unpacked z-characters to text.
func (c *Codec) Decode(zs []byte) (string, error) {
	codes, err := c.expand(zs, 0, nil)
	if err != nil {
		return "", err
	}
	return c.ToString(codes), nil
}

// ToString converts ZSCII output codes to a Unicode string.
func (c *Codec) ToString(codes []uint16) string {
	var b strings.Builder
	for _, code := range codes {
		if code == zsciiNull {
			continue
		}
		r, _ := c.zscii.ToRune(code)
		b.WriteRune(r)
	}
	return b.String()
}

func (c *Codec) isAbbreviation(z byte) bool {
	switch {
	case z == 0 || z > 3:
		return false
	case c.profile.Has(FeatureFullAbbreviations):
		return true
	case c.profile.Has(FeatureAbbreviations):
		return z == 1
	default:
		return false
	}
}

// expand turns z-characters into ZSCII. depth is 1 while inside an
// abbreviation; abbreviations found there are skipped.
func (c *Codec) expand(zs []byte, depth int, out []uint16) ([]uint16, error) {
	v := c.profile.Version
	lock, shift := 0, -1

	for i := 0; i < len(zs); i++ {
		z := zs[i]
		alpha := lock
		if shift >= 0 {
			alpha, shift = shift, -1
		}

		switch {
		case z == 0:
			out = append(out, ' ')

		case z == 1 && v == 1:
			out = append(out, zsciiNewline)

		case c.isAbbreviation(z):
			if i+1 >= len(zs) {
				return out, nil
			}
			index := 32*uint32(z-1) + uint32(zs[i+1])
			i++
			if depth > 0 {
				c.log.Warningf("nested abbreviation %d not expanded", index)
				continue
			}
			var err error
			out, err = c.abbreviation(index, out)
			if err != nil {
				return nil, err
			}

		case z >= 2 && z <= 5 && c.profile.Has(FeatureShiftLock):
			switch z {
			case 2:
				shift = (lock + 1) % 3
			case 3:
				shift = (lock + 2) % 3
			case 4:
				lock = (lock + 1) % 3
			case 5:
				lock = (lock + 2) % 3
			}

		case z == 4:
			shift = 1
		case z == 5:
			shift = 2

		case alpha == 2 && z == 6:
			if i+2 >= len(zs) {
				return out, nil
			}
			out = append(out, uint16(zs[i+1])<<5|uint16(zs[i+2]))
			i += 2

		default:
			out = append(out, c.alphabets[alpha][z-6])
		}
	}
	return out, nil
}

func (c *Codec) abbreviation(index uint32, out []uint16) ([]uint16, error) {
	if c.abbrevs == 0 {
		c.log.Warningf("abbreviation %d used without an abbreviation table", index)
		return append(out, abbreviationFiller), nil
	}
	entry, err := c.img.ReadWord(c.abbrevs + 2*index)
	if err != nil {
		return nil, err
	}
	if entry == 0 {
		c.log.Warningf("abbreviation %d is empty", index)
		return append(out, abbreviationFiller), nil
	}
	zs, _, err := c.ZChars(uint32(entry) * 2)
	if err != nil {
		return nil, err
	}
	return c.expand(zs, 1, out)
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// zcharsFor returns the z-characters that produce ZSCII code ch starting
// from alphabet A0.
func (c *Codec) zcharsFor(ch uint16) []byte {
	if ch == ' ' {
		return []byte{0}
	}
	if slot, ok := c.slots[ch]; ok {
		switch slot.alphabet {
		case 0:
			return []byte{slot.zchar}
		case 1:
			return []byte{c.shiftCode(1), slot.zchar}
		default:
			return []byte{c.shiftCode(2), slot.zchar}
		}
	}
	return []byte{c.shiftCode(2), 6, byte(ch>>5) & 0x1F, byte(ch) & 0x1F}
}

func (c *Codec) shiftCode(alphabet int) byte {
	if c.profile.Has(FeatureShiftLock) {
		return byte(alphabet + 1) // 2 = next, 3 = previous
	}
	return byte(alphabet + 3) // 4 = A1, 5 = A2
}

// EncodeWord encodes ZSCII text the way dictionary entries are stored:
// lower-cased, truncated or padded with 5s to the version's z-char budget.
func (c *Codec) EncodeWord(word []uint16) []byte {
	budget := c.profile.ZCharBudget
	zs := make([]byte, 0, budget+4)
	for _, ch := range word {
		if len(zs) >= budget {
			break
		}
		zs = append(zs, c.zcharsFor(c.zscii.Lower(ch))...)
	}
	if len(zs) > budget {
		zs = zs[:budget]
	}
	for len(zs) < budget {
		zs = append(zs, 5)
	}
	return packZChars(zs)
}

// EncodeWordString is EncodeWord for a Unicode string.
func (c *Codec) EncodeWordString(s string) []byte {
	return c.EncodeWord(c.FromString(s))
}

// Encode packs arbitrary text with no length limit.
func (c *Codec) Encode(s string) []byte {
	var zs []byte
	for _, ch := range c.FromString(s) {
		zs = append(zs, c.zcharsFor(ch)...)
	}
	for len(zs) == 0 || len(zs)%3 != 0 {
		zs = append(zs, 5)
	}
	return packZChars(zs)
}

// FromString converts Unicode text to ZSCII; unknown runes become '?'.
func (c *Codec) FromString(s string) []uint16 {
	out := make([]uint16, 0, len(s))
	for _, r := range s {
		code, ok := c.zscii.FromRune(r)
		if !ok {
			code = '?'
		}
		out = append(out, code)
	}
	return out
}

// packZChars packs z-characters (a multiple of three) into big-endian words
// and sets the end bit on the last word.
func packZChars(zs []byte) []byte {
	out := make([]byte, 0, len(zs)/3*2)
	for i := 0; i+2 < len(zs); i += 3 {
		w := uint16(zs[i]&0x1F)<<10 | uint16(zs[i+1]&0x1F)<<5 | uint16(zs[i+2]&0x1F)
		if i+3 >= len(zs) {
			w |= 0x8000
		}
		out = append(out, byte(w>>8), byte(w))
	}
	return out
}
