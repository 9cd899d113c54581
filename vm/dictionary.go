package vm

import (
	"bytes"
	"sort"
)

// Dictionary is a read-only view of a dictionary table: word separators,
// then fixed-width entries whose leading bytes are the encoded word.
type Dictionary struct {
	img         *Image
	codec       *Codec
	addr        uint32
	separators  []uint16
	entryLength int
	count       int
	sorted      bool
	entries     uint32
}

// DictionaryEntry is one decoded dictionary word.
type DictionaryEntry struct {
	Address uint32
	Word    string
	Data    []byte // bytes following the encoded word
}

// Token is one word found by Tokenise. Start is the index of its first
// character in the tokenised text.
type Token struct {
	Text   []uint16
	Start  int
	Length int
}

// LoadDictionary reads the dictionary header at addr. A negative entry
// count marks an unsorted (user) dictionary.
func LoadDictionary(img *Image, codec *Codec, addr uint32) (*Dictionary, error) {
	n, err := img.ReadByte(addr)
	if err != nil {
		return nil, corrupted("dictionary at 0x%04x: %v", addr, err)
	}
	seps, err := img.ReadBytes(addr+1, int(n))
	if err != nil {
		return nil, corrupted("dictionary separators at 0x%04x: %v", addr+1, err)
	}
	p := addr + 1 + uint32(n)
	entryLength, err := img.ReadByte(p)
	if err != nil {
		return nil, corrupted("dictionary entry length: %v", err)
	}
	rawCount, err := img.ReadWord(p + 1)
	if err != nil {
		return nil, corrupted("dictionary entry count: %v", err)
	}

	d := &Dictionary{
		img:         img,
		codec:       codec,
		addr:        addr,
		entryLength: int(entryLength),
		count:       int(int16(rawCount)),
		sorted:      true,
		entries:     p + 3,
	}
	if d.count < 0 {
		d.count = -d.count
		d.sorted = false
	}
	if d.entryLength < codec.profile.DictWordBytes {
		return nil, corrupted("dictionary entries are %d bytes, words need %d", d.entryLength, codec.profile.DictWordBytes)
	}
	end := uint64(d.entries) + uint64(d.count)*uint64(d.entryLength)
	if end > uint64(img.Len()) {
		return nil, corrupted("dictionary of %d entries runs past end of memory", d.count)
	}
	for _, s := range seps {
		d.separators = append(d.separators, uint16(s))
	}
	return d, nil
}

// Address returns the table address.
func (d *Dictionary) Address() uint32 { return d.addr }

// Len returns the number of entries.
func (d *Dictionary) Len() int { return d.count }

// Sorted reports whether entries are in ascending order.
func (d *Dictionary) Sorted() bool { return d.sorted }

// Separators returns the word-separator ZSCII codes.
func (d *Dictionary) Separators() []uint16 { return d.separators }

// EntryLength returns the size of each entry in bytes.
func (d *Dictionary) EntryLength() int { return d.entryLength }

func (d *Dictionary) entryAddr(i int) uint32 {
	return d.entries + uint32(i*d.entryLength)
}

func (d *Dictionary) key(i int) []byte {
	a := d.entryAddr(i)
	return d.img.data[a : a+uint32(d.codec.profile.DictWordBytes)]
}

// Lookup returns the address of the entry whose encoded word equals
// encoded, or 0.
func (d *Dictionary) Lookup(encoded []byte) uint32 {
	if d.sorted {
		i := sort.Search(d.count, func(i int) bool {
			return bytes.Compare(d.key(i), encoded) >= 0
		})
		if i < d.count && bytes.Equal(d.key(i), encoded) {
			return d.entryAddr(i)
		}
		return 0
	}
	for i := 0; i < d.count; i++ {
		if bytes.Equal(d.key(i), encoded) {
			return d.entryAddr(i)
		}
	}
	return 0
}

// LookupWord encodes and looks up a ZSCII word.
func (d *Dictionary) LookupWord(word []uint16) uint32 {
	return d.Lookup(d.codec.EncodeWord(word))
}

// Entries decodes every entry in table order.
func (d *Dictionary) Entries() ([]DictionaryEntry, error) {
	out := make([]DictionaryEntry, 0, d.count)
	wb := d.codec.profile.DictWordBytes
	for i := 0; i < d.count; i++ {
		a := d.entryAddr(i)
		word, _, err := d.codec.DecodeAt(a)
		if err != nil {
			return nil, err
		}
		data := append([]byte(nil), d.img.data[a+uint32(wb):a+uint32(d.entryLength)]...)
		out = append(out, DictionaryEntry{Address: a, Word: word, Data: data})
	}
	return out, nil
}

func (d *Dictionary) isSeparator(c uint16) bool {
	for _, s := range d.separators {
		if s == c {
			return true
		}
	}
	return false
}

// Tokenise splits text into words. Spaces divide words and are dropped;
// separators divide words and are words themselves.
func (d *Dictionary) Tokenise(text []uint16) []Token {
	var out []Token
	start := -1
	flush := func(end int) {
		if start >= 0 {
			out = append(out, Token{Text: text[start:end], Start: start, Length: end - start})
			start = -1
		}
	}
	for i, c := range text {
		switch {
		case c == ' ':
			flush(i)
		case d.isSeparator(c):
			flush(i)
			out = append(out, Token{Text: text[i : i+1], Start: i, Length: 1})
		default:
			if start < 0 {
				start = i
			}
		}
	}
	flush(len(text))
	return out
}
