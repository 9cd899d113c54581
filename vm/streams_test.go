package vm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStream(t *testing.T) {
	b := NewStoryBuilder(5).
		Array("outer", make([]byte, 16)).
		Array("inner", make([]byte, 16))
	b.Main(func(c *Code) {
		c.Op(KindVAR, 0x13, Small(3), c.Addr("outer"))
		c.Print("ab")
		c.Op(KindVAR, 0x13, Small(3), c.Addr("inner"))
		c.Print("xyz")
		c.Op(KindVAR, 0x13, Large(0xFFFD))
		c.Print("c")
		c.Op(KindVAR, 0x13, Large(0xFFFD))
		c.Print("done")
		// closing with nothing open is harmless
		c.Op(KindVAR, 0x13, Large(0xFFFD))
		c.Quit()
	})
	m, out := runStory(t, b)
	assert.Equal(t, "done", out)

	mem := m.Memory()
	n, _ := mem.ReadWord(b.Addr("outer"))
	assert.Equal(t, uint16(3), n)
	got, _ := mem.ReadBytes(b.Addr("outer")+2, 3)
	assert.Equal(t, "abc", string(got))
	n, _ = mem.ReadWord(b.Addr("inner"))
	assert.Equal(t, uint16(3), n)
	got, _ = mem.ReadBytes(b.Addr("inner")+2, 3)
	assert.Equal(t, "xyz", string(got))
}

func TestMemoryStreamNestingLimit(t *testing.T) {
	b := NewStoryBuilder(5).Array("buf", make([]byte, 8))
	b.Main(func(c *Code) {
		for i := 0; i <= MaxMemoryStreams; i++ {
			c.Op(KindVAR, 0x13, Small(3), c.Addr("buf"))
		}
		c.Quit()
	})
	m, _ := loadStory(t, b)
	for i := 0; i < MaxMemoryStreams; i++ {
		require.NoError(t, m.Step())
	}
	err := m.Step()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptedStoryFile)
	assert.Len(t, m.out.tables, MaxMemoryStreams)
}

func TestMemoryStreamOutsideDynamicMemory(t *testing.T) {
	b := NewStoryBuilder(5).Main(func(c *Code) {
		c.Op(KindVAR, 0x13, Small(3), Large(0xFFF0))
		c.Quit()
	})
	m, _ := loadStory(t, b)
	assert.ErrorIs(t, m.Step(), ErrInvalidMemoryAccess)
	assert.Empty(t, m.out.tables)
}

func TestScreenStreamAndTranscript(t *testing.T) {
	b := NewStoryBuilder(5).Main(func(c *Code) {
		c.Print("a")
		c.Op(KindVAR, 0x13, Large(0xFFFF))
		c.Print("hidden")
		c.Op(KindVAR, 0x13, Small(1))
		c.Op(KindVAR, 0x13, Small(2))
		c.Print("b")
		c.Op(KindVAR, 0x13, Large(0xFFFE))
		c.Print("c")
		c.Quit()
	})
	transcript := &statusRecorder{}
	_, out := runStory(t, b, WithTranscript(transcript))
	assert.Equal(t, "abc", out)
	assert.Equal(t, "b", transcript.String())
}

func TestPrintOpcodes(t *testing.T) {
	b := NewStoryBuilder(5).Array("tbl", []byte("abcXYdef"))
	b.Main(func(c *Code) {
		c.Op(KindVAR, 0x05, Small('A'))
		c.Op(KindVAR, 0x05, Small(1))
		c.PrintNum(Large(0xFFFB))
		c.Op(KindEXT, 0x0B, Large('é'))
		c.Op(KindEXT, 0x0B, Large('€'))
		c.Op(Kind1OP, 0x0D, StringArg("paged"))
		c.Op(KindVAR, 0x1E, c.Addr("tbl"), Small(3), Small(2), Small(2))
		c.Op(KindEXT, 0x0C, Large('é')).Store(g0)
		c.Op(KindEXT, 0x0C, Large('€')).Store(g1)
		c.Quit()
	})
	m, out := runStory(t, b)
	assert.Equal(t, "A?-5é?pagedabc\ndef", out)
	assert.Equal(t, uint16(3), global(t, m, g0))
	assert.Equal(t, uint16(0), global(t, m, g1))
}

func TestPrintRet(t *testing.T) {
	b := NewStoryBuilder(3).
		Routine("say", nil, func(c *Code) {
			c.Op(Kind0OP, 0x03).Text("bye")
		}).
		Main(func(c *Code) {
			c.Call("say", g0)
			c.PrintNum(Var(g0))
			c.Quit()
		})
	_, out := runStory(t, b)
	assert.Equal(t, "bye\n1", out)
}

func TestStatusLine(t *testing.T) {
	b := NewStoryBuilder(3).
		Global(0, 1).
		Global(1, 0xFFF6).
		Global(2, 12).
		Array("text", append([]byte{10}, make([]byte, 10)...))
	b.Object(ObjectSpec{Name: "West of House"})
	b.Main(func(c *Code) {
		c.Op(Kind0OP, 0x0C)
		c.Op(Kind2OP, 0x0D, Small(g0), Small(0))
		c.Op(KindVAR, 0x04, c.Addr("text"), Small(0))
		c.Quit()
	})
	rec := &statusRecorder{}
	_, _ = runStory(t, b, WithOutput(rec), WithInput(&ScriptInput{Lines: []string{"look"}}))
	require.Len(t, rec.statuses, 2)
	assert.Equal(t, Status{Location: "West of House", Score: -10, Moves: 12}, rec.statuses[0])
	assert.Equal(t, Status{Score: -10, Moves: 12}, rec.statuses[1])
}

func TestStatusLineIgnoredAfterV3(t *testing.T) {
	b := NewStoryBuilder(4).Global(0, 1)
	b.Object(ObjectSpec{Name: "hall"})
	b.Main(func(c *Code) {
		c.Op(Kind0OP, 0x0C)
		c.Quit()
	})
	rec := &statusRecorder{}
	_, _ = runStory(t, b, WithOutput(rec))
	assert.Empty(t, rec.statuses)
}

func TestObjectOpcodes(t *testing.T) {
	b := worldStory(3)
	b.Main(func(c *Code) {
		num := func(a Arg) {
			c.PrintNum(a)
			c.Print(" ")
		}
		c.Op(Kind2OP, 0x06, Small(2), Small(1)).Branch(true, "in")
		c.Print("X")
		c.Label("in")

		c.Op(Kind1OP, 0x02, Small(1)).Store(g0).Branch(true, "child")
		c.Print("X")
		c.Label("child")
		num(Var(g0))

		c.Op(Kind1OP, 0x01, Small(3)).Store(g1).Branch(false, "last")
		c.Print("X")
		c.Label("last")

		c.Op(Kind1OP, 0x03, Small(4)).Store(g2)
		num(Var(g2))

		c.Op(Kind2OP, 0x0E, Small(4), Small(1))
		c.Op(Kind1OP, 0x02, Small(1)).Store(g0).Branch(true, "moved")
		c.Label("moved")
		num(Var(g0))

		c.Op(Kind1OP, 0x0A, Small(4))
		c.Print(" ")

		c.Op(Kind2OP, 0x0A, Small(2), Small(5)).Branch(true, "attr")
		c.Print("X")
		c.Label("attr")
		c.Op(Kind2OP, 0x0C, Small(2), Small(5))
		c.Op(Kind2OP, 0x0A, Small(2), Small(5)).Branch(true, "cleared")
		c.Print("- ")
		c.Label("cleared")
		c.Op(Kind2OP, 0x0B, Small(3), Small(9))

		c.Op(Kind2OP, 0x11, Small(2), Small(3)).Store(g3)
		num(Var(g3))
		c.Op(KindVAR, 0x03, Small(2), Small(1), Small(99))
		c.Op(Kind2OP, 0x11, Small(2), Small(1)).Store(g3)
		num(Var(g3))
		c.Op(Kind2OP, 0x12, Small(2), Small(4)).Store(g3)
		c.Op(Kind1OP, 0x04, Var(g3)).Store(g3)
		num(Var(g3))
		c.Op(Kind2OP, 0x13, Small(2), Small(0)).Store(g3)
		num(Var(g3))

		c.Op(Kind1OP, 0x09, Small(2))
		c.Op(Kind1OP, 0x03, Small(2)).Store(g3)
		num(Var(g3))
		c.Quit()
	})
	m, out := runStory(t, b)
	assert.Equal(t, "2 3 4 coin - 4660 99 2 7 0 ", out)

	set, err := m.Objects().Attribute(3, 9)
	require.NoError(t, err)
	assert.True(t, set)
	assert.NoError(t, m.SelfCheck())
}

func TestInvalidObjectOperand(t *testing.T) {
	b := worldStory(5)
	b.Main(func(c *Code) {
		c.Op(Kind1OP, 0x03, Small(0)).Store(g0)
		c.Quit()
	})
	m, _ := loadStory(t, b)
	err := m.Step()
	assert.ErrorIs(t, err, ErrInvalidObjectAccess)
	assert.False(t, m.Halted())
}

func TestFailedInstructionPrintsNothing(t *testing.T) {
	b := NewStoryBuilder(5).Main(func(c *Code) {
		c.Op(KindVAR, 0x13, Small(2))
		c.Print("ok ")
		// print_ret in the main routine prints, then fails to return
		c.Op(Kind0OP, 0x03).Text("lost")
	})
	transcript := &statusRecorder{}
	m, out := loadStory(t, b, WithTranscript(transcript))
	err := m.Run(context.Background())
	assert.ErrorIs(t, err, ErrStackUnderflow)
	assert.Equal(t, "ok ", out.String())
	assert.Equal(t, "ok ", transcript.String())
}

// promptCheck records what had been written when input was requested.
type promptCheck struct {
	out     *statusRecorder
	prompts []string
}

func (p *promptCheck) ReadLine() (string, error) {
	p.prompts = append(p.prompts, p.out.String())
	return "look", nil
}

func TestPromptReachesOutputBeforeInput(t *testing.T) {
	b := NewStoryBuilder(5).
		Array("text", append([]byte{10, 0}, make([]byte, 10)...))
	b.Main(func(c *Code) {
		c.Print(">")
		c.Op(KindVAR, 0x04, c.Addr("text"), Small(0)).Store(g0)
		c.Quit()
	})
	rec := &statusRecorder{}
	in := &promptCheck{out: rec}
	_, _ = runStory(t, b, WithOutput(rec), WithInput(in))
	assert.Equal(t, []string{">"}, in.prompts)
}
