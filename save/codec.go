package save

import (
	"github.com/chazu/storyvm/vm"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// formatVersion is bumped whenever the record layout changes.
const formatVersion = 1

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic("save: failed to create CBOR enc mode: " + err.Error())
	}
	cborEncMode = em
}

// record is the on-disk form of a vm.Snapshot.
type record struct {
	Format   int     `cbor:"1,keyasint"`
	Release  uint16  `cbor:"2,keyasint"`
	Serial   string  `cbor:"3,keyasint"`
	Checksum uint16  `cbor:"4,keyasint"`
	Version  byte    `cbor:"5,keyasint"`
	PC       uint32  `cbor:"6,keyasint"`
	Resume   bool    `cbor:"7,keyasint"`
	Length   int     `cbor:"8,keyasint"`
	Memory   []byte  `cbor:"9,keyasint"`
	Frames   []frame `cbor:"10,keyasint"`
}

type frame struct {
	ReturnPC uint32   `cbor:"1,keyasint"`
	Store    int      `cbor:"2,keyasint"`
	Locals   []uint16 `cbor:"3,keyasint,omitempty"`
	Stack    []uint16 `cbor:"4,keyasint,omitempty"`
	ArgCount int      `cbor:"5,keyasint"`
}

// Marshal encodes a snapshot. Dynamic memory is stored as its difference
// from the story file's original contents, so story must be the file the
// snapshot was taken from.
func Marshal(s *vm.Snapshot, story []byte) ([]byte, error) {
	if s == nil {
		return nil, errors.New("save: nil snapshot")
	}
	if len(story) < len(s.Dynamic) {
		return nil, errors.Errorf("save: story is %d bytes, dynamic memory is %d", len(story), len(s.Dynamic))
	}
	r := record{
		Format:   formatVersion,
		Release:  s.Story.Release,
		Serial:   s.Story.Serial,
		Checksum: s.Story.Checksum,
		Version:  s.Version,
		PC:       s.PC,
		Resume:   s.Resume,
		Length:   len(s.Dynamic),
		Memory:   compress(s.Dynamic, story),
	}
	for _, f := range s.Frames {
		r.Frames = append(r.Frames, frame{
			ReturnPC: f.ReturnPC,
			Store:    f.Store,
			Locals:   f.Locals,
			Stack:    f.Stack,
			ArgCount: f.ArgCount,
		})
	}
	data, err := cborEncMode.Marshal(&r)
	if err != nil {
		return nil, errors.Wrap(err, "save: marshal snapshot")
	}
	return data, nil
}

// Unmarshal decodes a snapshot written by Marshal against the same story.
func Unmarshal(data []byte, story []byte) (*vm.Snapshot, error) {
	var r record
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "save: unmarshal snapshot")
	}
	if r.Format != formatVersion {
		return nil, errors.Errorf("save: unknown format %d", r.Format)
	}
	if r.Length < 0 || r.Length > len(story) {
		return nil, errors.Errorf("save: dynamic memory of %d bytes does not fit a %d byte story", r.Length, len(story))
	}
	dynamic, err := decompress(r.Memory, story[:r.Length])
	if err != nil {
		return nil, err
	}
	s := &vm.Snapshot{
		Story:   vm.StoryID{Release: r.Release, Serial: r.Serial, Checksum: r.Checksum},
		Version: r.Version,
		PC:      r.PC,
		Resume:  r.Resume,
		Dynamic: dynamic,
	}
	for _, f := range r.Frames {
		s.Frames = append(s.Frames, vm.Frame{
			ReturnPC: f.ReturnPC,
			Store:    f.Store,
			Locals:   f.Locals,
			Stack:    f.Stack,
			ArgCount: f.ArgCount,
		})
	}
	return s, nil
}

// compress XORs dynamic memory against the original and run-length encodes
// the zero bytes: a zero is followed by the number of further zeros (0-255).
// Trailing zeros are dropped.
func compress(dynamic, original []byte) []byte {
	var out []byte
	zeros := 0
	flush := func() {
		for zeros > 0 {
			n := zeros
			if n > 256 {
				n = 256
			}
			out = append(out, 0, byte(n-1))
			zeros -= n
		}
	}
	for i, b := range dynamic {
		d := b ^ original[i]
		if d == 0 {
			zeros++
			continue
		}
		flush()
		out = append(out, d)
	}
	return out
}

func decompress(data, original []byte) ([]byte, error) {
	out := make([]byte, len(original))
	copy(out, original)
	pos := 0
	for i := 0; i < len(data); i++ {
		if data[i] != 0 {
			if pos >= len(out) {
				return nil, errors.New("save: compressed memory overruns the story")
			}
			out[pos] ^= data[i]
			pos++
			continue
		}
		if i+1 >= len(data) {
			return nil, errors.New("save: truncated zero run")
		}
		i++
		pos += int(data[i]) + 1
		if pos > len(out) {
			return nil, errors.New("save: compressed memory overruns the story")
		}
	}
	return out, nil
}
