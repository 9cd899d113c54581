package save

import (
	"bytes"
	"testing"

	"github.com/chazu/storyvm/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressRoundTrip(t *testing.T) {
	original := make([]byte, 700)
	for i := range original {
		original[i] = byte(i * 7)
	}
	tests := []struct {
		name   string
		mutate func([]byte)
		max    int
	}{
		{"unchanged", func([]byte) {}, 0},
		{"one byte", func(b []byte) { b[3] ^= 0xFF }, 6},
		{"long zero run", func(b []byte) { b[0]++; b[650]++ }, 10},
		{"last byte", func(b []byte) { b[699] = 0 }, 8},
		{"everything", func(b []byte) {
			for i := range b {
				b[i] = ^b[i]
			}
		}, 700},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dynamic := append([]byte(nil), original...)
			tt.mutate(dynamic)
			packed := compress(dynamic, original)
			assert.LessOrEqual(t, len(packed), tt.max)
			got, err := decompress(packed, original)
			require.NoError(t, err)
			assert.Equal(t, dynamic, got)
		})
	}
}

func TestDecompressRejectsOverrun(t *testing.T) {
	original := make([]byte, 4)
	_, err := decompress([]byte{0, 3, 1}, original)
	assert.Error(t, err)
	_, err = decompress([]byte{0, 200}, original)
	assert.Error(t, err)
	_, err = decompress([]byte{1, 0}, original)
	assert.Error(t, err)
}

func testSnapshot(t *testing.T) (*vm.Snapshot, []byte) {
	t.Helper()
	b := vm.NewStoryBuilder(5).Main(func(c *vm.Code) {
		c.Op(vm.Kind2OP, 0x0D, vm.Small(0x10), vm.Small(42))
		c.Op(vm.KindVAR, 0x08, vm.Small(7))
		c.Quit()
	})
	story, err := b.Build()
	require.NoError(t, err)
	m, err := vm.Load(story)
	require.NoError(t, err)
	require.NoError(t, m.Step())
	require.NoError(t, m.Step())
	return m.Snapshot(), story
}

func TestMarshalSnapshot(t *testing.T) {
	snap, story := testSnapshot(t)
	data, err := Marshal(snap, story)
	require.NoError(t, err)
	assert.Less(t, len(data), len(snap.Dynamic))

	again, err := Marshal(snap, story)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, again), "encoding is deterministic")

	got, err := Unmarshal(data, story)
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestUnmarshalErrors(t *testing.T) {
	snap, story := testSnapshot(t)
	data, err := Marshal(snap, story)
	require.NoError(t, err)

	_, err = Unmarshal(data[:len(data)/2], story)
	assert.Error(t, err)
	_, err = Unmarshal(data, story[:10])
	assert.Error(t, err)
	_, err = Unmarshal([]byte{0xA1, 0x01, 0x09}, story)
	assert.Error(t, err, "unknown format")

	_, err = Marshal(nil, story)
	assert.Error(t, err)
}
