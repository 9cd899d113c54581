package vm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// saveRestoreV5 saves, changes g0, restores and prints g0.
func saveRestoreV5() *StoryBuilder {
	return NewStoryBuilder(5).Main(func(c *Code) {
		c.Op(Kind2OP, 0x0D, Small(g0), Small(1))
		c.Op(KindEXT, 0x00).Store(g1)
		c.Op(Kind2OP, 0x01, Var(g1), Small(2)).Branch(true, "restored")
		c.Op(Kind2OP, 0x0D, Small(g0), Small(7))
		c.Op(KindEXT, 0x01).Store(g2)
		c.Print("restore failed")
		c.Quit()
		c.Label("restored")
		c.PrintNum(Var(g0))
		c.Quit()
	})
}

func TestSaveRestoreV5(t *testing.T) {
	p := &memoryPersistence{}
	m, out := runStory(t, saveRestoreV5(), WithPersistence(p))
	assert.Equal(t, "1", out)
	assert.Equal(t, uint16(2), global(t, m, g1))
	assert.Equal(t, 1, p.saves)
	require.NotNil(t, p.saved)
	assert.True(t, p.saved.Resume)
	assert.Equal(t, m.Header().ID(), p.saved.Story)
	assert.Equal(t, byte(5), p.saved.Version)
	assert.Len(t, p.saved.Dynamic, int(m.Memory().StaticBase()))
}

func TestSaveWithoutPersistenceFails(t *testing.T) {
	m, out := runStory(t, saveRestoreV5())
	assert.Equal(t, "restore failed", out)
	assert.Equal(t, uint16(0), global(t, m, g1))
	assert.Equal(t, uint16(0), global(t, m, g2))
}

func TestAuxiliarySaveFails(t *testing.T) {
	p := &memoryPersistence{}
	b := NewStoryBuilder(5).Array("aux", make([]byte, 8))
	b.Main(func(c *Code) {
		c.Op(KindEXT, 0x00, c.Addr("aux"), Small(8), Small(0)).Store(g0)
		c.Quit()
	})
	m, _ := runStory(t, b, WithPersistence(p))
	assert.Equal(t, uint16(0), global(t, m, g0))
	assert.Zero(t, p.saves)
}

func TestSaveRestoreV3(t *testing.T) {
	b := NewStoryBuilder(3).Main(func(c *Code) {
		c.Op(Kind1OP, 0x00, Var(g3)).Branch(false, "restoring")
		c.Op(Kind2OP, 0x0D, Small(g0), Small(5))
		c.Op(Kind0OP, 0x05).Branch(true, "saved")
		c.Print("save failed")
		c.Quit()
		c.Label("saved")
		c.PrintNum(Var(g0))
		c.NewLine()
		c.Quit()
		c.Label("restoring")
		c.Op(Kind2OP, 0x0D, Small(g0), Small(9))
		c.Op(Kind0OP, 0x06).Branch(false, "failed")
		c.Label("failed")
		c.Print("restore failed")
		c.Quit()
	})
	data := buildStory(t, b)
	p := &memoryPersistence{}

	m, err := Load(data, WithPersistence(p))
	require.NoError(t, err)
	require.NoError(t, m.Run(context.Background()))
	require.NotNil(t, p.saved)

	// a second session sets g3 so it takes the restore path
	rec := &statusRecorder{}
	m2, err := Load(data, WithPersistence(p), WithOutput(rec))
	require.NoError(t, err)
	require.NoError(t, m2.Memory().WriteWord(uint32(m2.Header().Globals)+6, 1))
	require.NoError(t, m2.Run(context.Background()))
	assert.Equal(t, "5\n", rec.String())
	assert.Equal(t, uint16(0), global(t, m2, g3))
}

func TestRestoreRejectsOtherStory(t *testing.T) {
	p := &memoryPersistence{}
	_, _ = runStory(t, saveRestoreV5(), WithPersistence(p))
	require.NotNil(t, p.saved)
	p.saved.Story.Release = 99

	m, out := loadStory(t, NewStoryBuilder(5).Main(func(c *Code) {
		c.Op(KindEXT, 0x01).Store(g2)
		c.Quit()
	}), WithPersistence(p))
	require.NoError(t, m.Run(context.Background()))
	assert.Empty(t, out.String())
	assert.Equal(t, uint16(0), global(t, m, g2))
}

func TestUndo(t *testing.T) {
	b := func() *StoryBuilder {
		return NewStoryBuilder(5).Main(func(c *Code) {
			c.Op(Kind2OP, 0x0D, Small(g0), Small(1))
			c.Op(KindEXT, 0x09).Store(g1)
			c.Op(Kind2OP, 0x01, Var(g1), Small(2)).Branch(true, "undone")
			c.Op(Kind2OP, 0x0D, Small(g0), Small(3))
			c.Op(KindEXT, 0x0A).Store(g2)
			c.Print("undo failed")
			c.Quit()
			c.Label("undone")
			c.PrintNum(Var(g0))
			c.Quit()
		})
	}

	_, out := runStory(t, b())
	assert.Equal(t, "1", out)

	m, out := runStory(t, b(), WithUndoDepth(0))
	assert.Equal(t, "undo failed", out)
	assert.Equal(t, uint16(0xFFFF), global(t, m, g1))
	assert.Equal(t, uint16(0), global(t, m, g2))
	flags, _ := m.Memory().ReadByte(flags2Lo)
	assert.Zero(t, flags&flags2Undo)
}

func TestUndoRingDepth(t *testing.T) {
	b := NewStoryBuilder(5).Main(func(c *Code) {
		for i := 0; i < 5; i++ {
			c.Op(KindEXT, 0x09).Store(g1)
		}
		c.Quit()
	})
	m, _ := runStory(t, b, WithUndoDepth(3))
	assert.Len(t, m.undo, 3)
}

func TestSnapshotRoundTrip(t *testing.T) {
	b := NewStoryBuilder(5).Main(func(c *Code) {
		c.Op(KindVAR, 0x08, Small(11))
		c.Op(Kind2OP, 0x0D, Small(g0), Small(4))
		c.Op(Kind2OP, 0x0D, Small(g0), Small(8))
		c.Quit()
	})
	m, _ := loadStory(t, b)
	require.NoError(t, m.Step())
	require.NoError(t, m.Step())
	snap := m.Snapshot()
	assert.False(t, snap.Resume)
	require.NoError(t, m.Step())
	assert.Equal(t, uint16(8), global(t, m, g0))

	require.NoError(t, m.RestoreSnapshot(snap))
	assert.Equal(t, uint16(4), global(t, m, g0))
	assert.Equal(t, snap.PC, m.PC())
	top, err := m.ReadVariable(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(11), top)

	// a bad snapshot leaves the machine untouched
	bad := *snap
	bad.Dynamic = bad.Dynamic[:10]
	require.NoError(t, m.Step())
	assert.Error(t, m.RestoreSnapshot(&bad))
	assert.Equal(t, uint16(8), global(t, m, g0))

	bad = *snap
	bad.Frames = nil
	assert.ErrorIs(t, m.RestoreSnapshot(&bad), ErrCorruptedStoryFile)
}

func TestTranscriptSurvivesRestore(t *testing.T) {
	b := NewStoryBuilder(5).Main(func(c *Code) {
		c.Op(KindEXT, 0x09).Store(g1)
		c.Op(Kind2OP, 0x01, Var(g1), Small(2)).Branch(true, "done")
		c.Op(KindVAR, 0x13, Small(2))
		c.Op(KindEXT, 0x0A).Store(g2)
		c.Label("done")
		c.Print("x")
		c.Quit()
	})
	transcript := &statusRecorder{}
	m, out := runStory(t, b, WithTranscript(transcript))
	assert.Equal(t, "x", out)
	assert.Equal(t, "x", transcript.String())
	flags, _ := m.Memory().ReadByte(flags2Lo)
	assert.Equal(t, byte(flags2Transcript), flags&flags2Transcript)
}
