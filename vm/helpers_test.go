package vm

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	g0 = 0x10 // first global variable
	g1 = 0x11
	g2 = 0x12
	g3 = 0x13
)

func buildStory(t *testing.T, b *StoryBuilder) []byte {
	t.Helper()
	data, err := b.Build()
	require.NoError(t, err)
	return data
}

func loadStory(t *testing.T, b *StoryBuilder, opts ...Option) (*Machine, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	m, err := Load(buildStory(t, b), append([]Option{WithOutput(out), WithRandomSeed(1)}, opts...)...)
	require.NoError(t, err)
	return m, out
}

// runStory loads the story, runs it to completion and returns the output.
func runStory(t *testing.T, b *StoryBuilder, opts ...Option) (*Machine, string) {
	t.Helper()
	m, out := loadStory(t, b, opts...)
	require.NoError(t, m.Run(context.Background()))
	require.True(t, m.Halted())
	return m, out.String()
}

func global(t *testing.T, m *Machine, v uint8) uint16 {
	t.Helper()
	x, err := m.ReadVariable(v)
	require.NoError(t, err)
	return x
}

type memoryPersistence struct {
	saved *Snapshot
	saves int
}

func (p *memoryPersistence) Save(s *Snapshot) error {
	p.saved = s
	p.saves++
	return nil
}

func (p *memoryPersistence) Restore(story StoryID) (*Snapshot, error) {
	if p.saved == nil {
		return nil, ErrInvalidMemoryAccess
	}
	return p.saved, nil
}

type statusRecorder struct {
	bytes.Buffer
	statuses []Status
}

func (s *statusRecorder) ShowStatus(st Status) error {
	s.statuses = append(s.statuses, st)
	return nil
}
