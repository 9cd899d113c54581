package vm

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelloEveryVersion(t *testing.T) {
	for _, v := range Versions() {
		b := NewStoryBuilder(v).Main(func(c *Code) {
			c.Print("Hello, world!").NewLine().Quit()
		})
		m, out := runStory(t, b)
		assert.Equal(t, "Hello, world!\n", out, "v%d", v)
		assert.Equal(t, uint64(3), m.Steps(), "v%d", v)
		assert.ErrorIs(t, m.Step(), ErrHalted)
	}
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name string
		op   uint8
		a, b int16
		want int16
	}{
		{"add", 0x14, 3, 4, 7},
		{"add wraps", 0x14, 32767, 1, -32768},
		{"sub", 0x15, 3, 5, -2},
		{"mul", 0x16, -6, 7, -42},
		{"mul wraps", 0x16, 300, 300, 24464},
		{"div truncates", 0x17, -7, 2, -3},
		{"div", 0x17, 7, -2, -3},
		{"mod sign follows dividend", 0x18, -7, 2, -1},
		{"mod", 0x18, 7, -2, 1},
		{"and", 0x09, 0x0F0F, 0x00FF, 0x000F},
		{"or", 0x08, 0x0F00, 0x00F0, 0x0FF0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewStoryBuilder(5).Main(func(c *Code) {
				c.Op(Kind2OP, tt.op, Large(uint16(tt.a)), Large(uint16(tt.b))).Store(g0)
				c.Quit()
			})
			m, _ := runStory(t, b)
			assert.Equal(t, tt.want, int16(global(t, m, g0)))
		})
	}
}

func TestNot(t *testing.T) {
	b := NewStoryBuilder(3).Main(func(c *Code) {
		c.Op(Kind1OP, 0x0F, Large(0x00FF)).Store(g0)
		c.Quit()
	})
	m, _ := runStory(t, b)
	assert.Equal(t, uint16(0xFF00), global(t, m, g0))

	b = NewStoryBuilder(5).Main(func(c *Code) {
		c.Op(KindVAR, 0x18, Large(0x00FF)).Store(g0)
		c.Quit()
	})
	m, _ = runStory(t, b)
	assert.Equal(t, uint16(0xFF00), global(t, m, g0))
}

func TestDivisionByZeroIsFatal(t *testing.T) {
	for _, op := range []uint8{0x17, 0x18} {
		b := NewStoryBuilder(5).Main(func(c *Code) {
			c.Op(Kind2OP, 0x0D, Small(g0), Small(9))
			c.Op(Kind2OP, op, Small(1), Small(0)).Store(g0)
			c.Quit()
		})
		m, _ := loadStory(t, b)
		require.NoError(t, m.Step())
		pc := m.PC()

		err := m.Step()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDivisionByZero)
		assert.True(t, IsFatal(err))
		assert.True(t, m.Halted())
		assert.Equal(t, pc, m.PC())
		assert.Equal(t, uint16(9), global(t, m, g0))
		assert.Equal(t, err, m.Step())
		assert.Equal(t, err, m.Err())
		assert.Equal(t, err, m.Run(context.Background()))
	}
}

func TestShifts(t *testing.T) {
	assert.Equal(t, uint16(32), LogicalShift(8, 2))
	assert.Equal(t, uint16(8), LogicalShift(32, -2))
	assert.Equal(t, uint16(0x3FF8), LogicalShift(0xFFE0, -2))
	assert.Equal(t, uint16(0), LogicalShift(1, 16))
	assert.Equal(t, uint16(0xFFF8), ArithmeticShift(0xFFE0, -2))
	assert.Equal(t, uint16(0xFFFF), ArithmeticShift(0x8000, -20))
	assert.Equal(t, uint16(0), ArithmeticShift(0x4000, -20))

	b := NewStoryBuilder(5).Main(func(c *Code) {
		c.Op(KindEXT, 0x02, Small(8), Small(2)).Store(g0)
		c.Op(KindEXT, 0x02, Small(32), Large(0xFFFE)).Store(g1)
		c.Op(KindEXT, 0x03, Large(0xFFE0), Large(0xFFFE)).Store(g2)
		c.Quit()
	})
	m, _ := runStory(t, b)
	assert.Equal(t, uint16(32), global(t, m, g0))
	assert.Equal(t, uint16(8), global(t, m, g1))
	assert.Equal(t, int16(-8), int16(global(t, m, g2)))
}

func TestBranches(t *testing.T) {
	b := NewStoryBuilder(5)
	b.Routine("isZero", []uint16{0}, func(c *Code) {
		c.Op(Kind1OP, 0x00, Var(1)).Branch(true, "rtrue")
		c.Op(Kind0OP, 0x01)
	})
	b.Routine("isNonZero", []uint16{0}, func(c *Code) {
		c.Op(Kind1OP, 0x00, Var(1)).Branch(false, "rtrue")
		c.Op(Kind0OP, 0x01)
	})
	b.Routine("falseOnZero", []uint16{0}, func(c *Code) {
		c.Op(Kind1OP, 0x00, Var(1)).Branch(true, "rfalse")
		c.Rtrue()
	})
	b.Main(func(c *Code) {
		c.Call("isZero", g0, Small(0))
		c.Call("isZero", g1, Small(5))
		c.Call("isNonZero", g2, Small(5))
		c.Call("falseOnZero", g3, Small(0))
		c.Call("falseOnZero", 0x14, Small(2))
		// je against several values
		c.Op(Kind2OP, 0x01, Small(7), Small(1), Small(2), Small(7)).Branch(true, "hit")
		c.Print("miss")
		c.Label("hit")
		c.Op(Kind2OP, 0x02, Large(0xFFFF), Small(1)).Branch(true, "less")
		c.Print("unsigned")
		c.Label("less")
		c.Op(Kind2OP, 0x07, Large(0x0F0F), Large(0x0303)).Branch(false, "end")
		c.Print("test")
		c.Label("end")
		c.Quit()
	})
	m, out := runStory(t, b)
	assert.Equal(t, uint16(1), global(t, m, g0))
	assert.Equal(t, uint16(0), global(t, m, g1))
	assert.Equal(t, uint16(1), global(t, m, g2))
	assert.Equal(t, uint16(0), global(t, m, g3))
	assert.Equal(t, uint16(1), global(t, m, 0x14))
	assert.Equal(t, "test", out)
}

func TestBackwardJumpLoop(t *testing.T) {
	b := NewStoryBuilder(3).Main(func(c *Code) {
		c.Label("top")
		c.PrintNum(Var(g0))
		c.Op(Kind2OP, 0x05, Small(g0), Small(4)).Branch(false, "top")
		c.Quit()
	})
	_, out := runStory(t, b)
	assert.Equal(t, "01234", out)
}

func TestVariables(t *testing.T) {
	b := NewStoryBuilder(5).Global(0, 10).Main(func(c *Code) {
		c.Op(Kind1OP, 0x05, Small(g0))           // inc g0 -> 11
		c.Op(Kind1OP, 0x06, Small(g1))           // dec g1 -> -1
		c.Op(KindVAR, 0x08, Small(40))           // push 40
		c.Op(KindVAR, 0x08, Small(50))           // push 50
		c.Op(Kind1OP, 0x05, Small(0))            // inc the stack top in place -> 51
		c.Op(Kind1OP, 0x0E, Small(0)).Store(g2)  // load sp without popping
		c.Op(KindVAR, 0x09, Small(g3))           // pull -> g3 = 51
		c.Op(Kind2OP, 0x0D, Small(0), Small(77)) // store replaces the top: 77
		c.Op(Kind2OP, 0x04, Small(g0), Small(20)).Branch(true, "ok")
		c.Print("dec_chk")
		c.Label("ok")
		c.Quit()
	})
	m, out := runStory(t, b)
	assert.Empty(t, out)
	assert.Equal(t, uint16(10), global(t, m, g0))
	assert.Equal(t, uint16(0xFFFF), global(t, m, g1))
	assert.Equal(t, uint16(51), global(t, m, g2))
	assert.Equal(t, uint16(51), global(t, m, g3))
	top, err := m.ReadVariable(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(77), top)
	top, err = m.ReadVariable(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(77), top, "facade reads of the stack do not pop")
}

func TestCallsV3(t *testing.T) {
	b := NewStoryBuilder(3).Global(2, 99)
	b.Routine("sum", []uint16{10, 20}, func(c *Code) {
		c.Op(Kind2OP, 0x14, Var(1), Var(2)).Store(0)
		c.Op(Kind0OP, 0x08)
	})
	b.Main(func(c *Code) {
		c.Call("sum", g0)
		c.Call("sum", g1, Small(1))
		c.Op(KindVAR, 0x00, Large(0)).Store(g2)
		c.Quit()
	})
	m, _ := runStory(t, b)
	assert.Equal(t, uint16(30), global(t, m, g0))
	assert.Equal(t, uint16(21), global(t, m, g1))
	assert.Equal(t, uint16(0), global(t, m, g2))
	assert.Equal(t, 1, m.CallDepth())
}

func TestCallsV5(t *testing.T) {
	b := NewStoryBuilder(5)
	b.Routine("sum", []uint16{10, 20}, func(c *Code) {
		c.Op(Kind2OP, 0x14, Var(1), Var(2)).Store(0)
		c.Op(Kind0OP, 0x08)
	})
	b.Routine("hasTwo", []uint16{0, 0, 0}, func(c *Code) {
		c.Op(KindVAR, 0x1F, Small(2)).Branch(true, "rtrue")
		c.Op(Kind0OP, 0x01)
	})
	b.Routine("side", nil, func(c *Code) {
		c.Print("side")
		c.Rtrue()
	})
	b.Main(func(c *Code) {
		c.Call("sum", g0)
		c.Call("sum", g1, Small(3), Small(4), Small(5))
		c.Call("hasTwo", g2, Small(1))
		c.Call("hasTwo", g3, Small(1), Small(2))
		c.Op(KindVAR, 0x19, RoutineArg("side"))
		c.Op(Kind2OP, 0x1A, RoutineArg("side"), Small(1))
		c.Op(Kind1OP, 0x0F, RoutineArg("side"))
		c.Op(KindVAR, 0x0C, RoutineArg("sum"), Small(1), Small(2), Small(3), Small(4), Small(5)).Store(0x14)
		c.Quit()
	})
	m, out := runStory(t, b)
	assert.Equal(t, uint16(0), global(t, m, g0), "v5 locals start at zero")
	assert.Equal(t, uint16(7), global(t, m, g1))
	assert.Equal(t, uint16(0), global(t, m, g2))
	assert.Equal(t, uint16(1), global(t, m, g3))
	assert.Equal(t, uint16(3), global(t, m, 0x14))
	assert.Equal(t, "sidesideside", out)
}

func TestReturnFromMainIsFatal(t *testing.T) {
	b := NewStoryBuilder(3).Main(func(c *Code) { c.Rtrue() })
	m, _ := loadStory(t, b)
	err := m.Run(context.Background())
	assert.ErrorIs(t, err, ErrStackUnderflow)
	assert.True(t, IsFatal(err))
}

func TestCallDepthLimit(t *testing.T) {
	b := NewStoryBuilder(5)
	b.Routine("deep", nil, func(c *Code) {
		c.Call("deep", 0)
		c.Rtrue()
	})
	b.Main(func(c *Code) {
		c.Call("deep", g0)
		c.Quit()
	})
	m, _ := loadStory(t, b, WithMaxCallDepth(10))
	err := m.Run(context.Background())
	assert.ErrorIs(t, err, ErrStackOverflow)
	assert.Equal(t, 10, m.CallDepth())
}

func TestEvalStackLimit(t *testing.T) {
	b := NewStoryBuilder(5).Main(func(c *Code) {
		c.Label("top")
		c.Op(KindVAR, 0x08, Small(1))
		c.Jump("top")
	})
	m, _ := loadStory(t, b, WithMaxEvalStack(16))
	err := m.Run(context.Background())
	assert.ErrorIs(t, err, ErrStackOverflow)
}

func TestStackUnderflow(t *testing.T) {
	b := NewStoryBuilder(5).Main(func(c *Code) {
		c.Op(Kind2OP, 0x14, Var(0), Small(1)).Store(g0)
		c.Quit()
	})
	m, _ := loadStory(t, b)
	err := m.Step()
	assert.ErrorIs(t, err, ErrStackUnderflow)
	assert.True(t, IsFatal(err))
}

func TestCatchThrow(t *testing.T) {
	b := NewStoryBuilder(5)
	b.Routine("outer", []uint16{0}, func(c *Code) {
		c.Op(Kind0OP, 0x09).Store(1)
		c.Op(KindVAR, 0x19, RoutineArg("inner"), Var(1))
		c.Print("not reached")
		c.Ret(Small(1))
	})
	b.Routine("inner", []uint16{0}, func(c *Code) {
		c.Op(Kind2OP, 0x1C, Small(42), Var(1))
	})
	b.Main(func(c *Code) {
		c.Call("outer", g0)
		c.Quit()
	})
	m, out := runStory(t, b)
	assert.Equal(t, uint16(42), global(t, m, g0))
	assert.Empty(t, out)
	assert.Equal(t, 1, m.CallDepth())
}

func TestMemoryOpcodes(t *testing.T) {
	b := NewStoryBuilder(5).Array("table", []byte{0x12, 0x34, 0x56, 0x78, 0, 0, 0, 0})
	b.Main(func(c *Code) {
		tbl := c.Addr("table")
		c.Op(Kind2OP, 0x0F, tbl, Small(1)).Store(g0)          // loadw table[1]
		c.Op(Kind2OP, 0x10, tbl, Small(1)).Store(g1)          // loadb table[1]
		c.Op(KindVAR, 0x01, tbl, Small(2), Large(0xBEEF))     // storew table[2]
		c.Op(KindVAR, 0x02, tbl, Small(6), Small(0x99))       // storeb table[6]
		c.Op(KindVAR, 0x17, Small(0x56), tbl, Small(8), Small(1)).Store(g2).Branch(false, "end")
		c.Op(KindVAR, 0x17, Large(0xBEEF), tbl, Small(4)).Store(g3).Branch(false, "end")
		c.Label("end")
		c.Quit()
	})
	m, _ := runStory(t, b)
	table := b.Addr("table")
	assert.Equal(t, uint16(0x5678), global(t, m, g0))
	assert.Equal(t, uint16(0x34), global(t, m, g1))
	assert.Equal(t, uint16(table+2), global(t, m, g2))
	assert.Equal(t, uint16(table+4), global(t, m, g3))
	got, _ := m.Memory().ReadBytes(table, 8)
	assert.Equal(t, []byte{0x12, 0x34, 0x56, 0x78, 0xBE, 0xEF, 0x99, 0}, got)
}

func TestCopyTable(t *testing.T) {
	b := NewStoryBuilder(5).Array("t", []byte{1, 2, 3, 4, 5, 6, 7, 8})
	b.Main(func(c *Code) {
		tbl := c.Addr("t")
		// overlapping forward copy with a negative size smears the first byte
		c.Op(KindVAR, 0x1D, tbl, Large(uint16(b.Addr("t")+1)), Large(uint16(0xFFFD)))
		c.Quit()
	})
	m, _ := runStory(t, b)
	got, _ := m.Memory().ReadBytes(b.Addr("t"), 8)
	assert.Equal(t, []byte{1, 1, 1, 1, 5, 6, 7, 8}, got)

	b = NewStoryBuilder(5).Array("t", []byte{1, 2, 3, 4, 5, 6, 7, 8})
	b.Main(func(c *Code) {
		tbl := c.Addr("t")
		c.Op(KindVAR, 0x1D, tbl, Large(uint16(b.Addr("t")+2)), Small(4))
		c.Op(KindVAR, 0x1D, Large(uint16(b.Addr("t")+6)), Small(0), Small(2))
		c.Quit()
	})
	m, _ = runStory(t, b)
	got, _ = m.Memory().ReadBytes(b.Addr("t"), 8)
	assert.Equal(t, []byte{1, 2, 1, 2, 3, 4, 0, 0}, got)
}

func TestFailedInstructionRollsBack(t *testing.T) {
	b := NewStoryBuilder(5).Array("src", []byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA})
	var static uint32
	b.Main(func(c *Code) {
		c.Op(KindVAR, 0x1D, c.Addr("src"), Large(0), Small(8)) // patched below
		c.Quit()
	})
	data := buildStory(t, b)
	static = uint32(data[hdrStaticBase])<<8 | uint32(data[hdrStaticBase+1])
	// point copy_table's destination four bytes before static memory
	pc := uint32(data[hdrInitialPC])<<8 | uint32(data[hdrInitialPC+1])
	dst := static - 4
	data[pc+4], data[pc+5] = byte(dst>>8), byte(dst)

	m, err := Load(data)
	require.NoError(t, err)
	before, _ := m.Memory().ReadBytes(dst, 4)

	err = m.Step()
	assert.ErrorIs(t, err, ErrInvalidMemoryAccess)
	assert.True(t, IsFatal(err))
	after, _ := m.Memory().ReadBytes(dst, 4)
	assert.Equal(t, before, after)
	assert.Equal(t, pc, m.PC())
}

func TestNonFatalErrorLeavesStateIntact(t *testing.T) {
	b := NewStoryBuilder(5).Main(func(c *Code) {
		c.Op(KindVAR, 0x08, Small(5))
		c.Op(Kind2OP, 0x14, Var(0), Var(5)).Store(g0)
		c.Quit()
	})
	m, _ := loadStory(t, b)
	require.NoError(t, m.Step())
	pc := m.PC()

	err := m.Step()
	assert.ErrorIs(t, err, ErrInvalidMemoryAccess)
	assert.Equal(t, SeverityError, SeverityOf(err))
	assert.False(t, m.Halted())
	assert.Equal(t, pc, m.PC())
	top, err := m.ReadVariable(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(5), top, "the popped operand is pushed back")
	assert.Error(t, m.Step(), "the same instruction fails again")
}

func TestUnsupportedOperations(t *testing.T) {
	for _, v := range []byte{5, 6} {
		b := NewStoryBuilder(v).Main(func(c *Code) {
			c.Op(KindEXT, 0x05, Small(1))
			c.Print("ok")
			c.Quit()
		})
		m, _ := loadStory(t, b)
		err := m.Step()
		if v == 5 {
			assert.ErrorIs(t, err, ErrUnsupportedOperation)
			assert.Equal(t, SeverityWarning, SeverityOf(err))
			assert.Contains(t, err.Error(), "draw_picture")
			require.NoError(t, m.SkipInstruction())
		} else {
			assert.NoError(t, err)
		}
		require.NoError(t, m.Run(context.Background()))
	}

	// Run skips the warning itself
	b := NewStoryBuilder(5).Main(func(c *Code) {
		c.Op(KindEXT, 0x05, Small(1))
		c.Op(KindEXT, 0x1F, Small(1))
		c.Print("ok")
		c.Quit()
	})
	_, out := runStory(t, b)
	assert.Equal(t, "ok", out)
}

func TestRandom(t *testing.T) {
	b := NewStoryBuilder(5).Main(func(c *Code) {
		c.Op(KindVAR, 0x07, Large(0xFFFD)).Store(g0) // seed -3: sequential
		for i := 0; i < 4; i++ {
			c.Op(KindVAR, 0x07, Small(10)).Store(0)
			c.Op(KindVAR, 0x06, Var(0))
		}
		c.Op(KindVAR, 0x07, Large(0xF000)).Store(g1) // large seed
		c.Op(KindVAR, 0x07, Small(6)).Store(g2)
		c.Quit()
	})
	m, out := runStory(t, b)
	assert.Equal(t, uint16(0), global(t, m, g0))
	assert.Equal(t, "1231", out)
	r := global(t, m, g2)
	assert.True(t, r >= 1 && r <= 6)
}

func TestRestart(t *testing.T) {
	b := NewStoryBuilder(3).Global(0, 7).Main(func(c *Code) {
		c.Op(Kind2OP, 0x0D, Small(g0), Small(99))
		c.Op(Kind0OP, 0x07)
	})
	m, _ := loadStory(t, b)
	entry := m.PC()
	require.NoError(t, m.Step())
	assert.Equal(t, uint16(99), global(t, m, g0))
	require.NoError(t, m.Step())
	assert.Equal(t, uint16(7), global(t, m, g0))
	assert.Equal(t, entry, m.PC())
	assert.Equal(t, 1, m.CallDepth())
}

func TestVerifyAndChecksum(t *testing.T) {
	b := NewStoryBuilder(3).Main(func(c *Code) {
		c.Op(Kind0OP, 0x0D).Branch(false, "bad")
		c.Print("ok")
		c.Label("bad")
		c.Quit()
	})
	m, out := runStory(t, b)
	assert.Equal(t, "ok", out)
	assert.Equal(t, m.Header().Checksum, m.Checksum())

	data := buildStory(t, b)
	data[hdrChecksum]++
	rec := &statusRecorder{}
	m, err := Load(data, WithOutput(rec))
	require.NoError(t, err)
	require.NoError(t, m.Run(context.Background()))
	assert.Empty(t, rec.String())
}

func TestLoadRejectsCorruptFiles(t *testing.T) {
	good := buildStory(t, NewStoryBuilder(3).Main(func(c *Code) { c.Quit() }))

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"short", func(d []byte) []byte { return d[:20] }},
		{"version", func(d []byte) []byte { d[hdrVersion] = 9; return d }},
		{"static base", func(d []byte) []byte { d[hdrStaticBase] = 0xFF; return d }},
		{"object table outside", func(d []byte) []byte { d[hdrObjectTable], d[hdrObjectTable+1] = 0xFF, 0xF0; return d }},
		{"globals outside", func(d []byte) []byte { d[hdrGlobals], d[hdrGlobals+1] = 0xFF, 0xF0; return d }},
		{"entry in static memory", func(d []byte) []byte {
			static := be16(d, hdrStaticBase)
			high := static + 2
			d[hdrHighBase], d[hdrHighBase+1] = byte(high>>8), byte(high)
			d[hdrInitialPC], d[hdrInitialPC+1] = byte(static>>8), byte(static)
			return d
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(append([]byte(nil), good...))
			_, err := Load(data)
			assert.ErrorIs(t, err, ErrCorruptedStoryFile)
		})
	}
}

// minimalV3 is a 128-byte story: a quit at 0x60 where static and high
// memory both begin, with the globals and object table at 0x40.
func minimalV3() []byte {
	d := make([]byte, 128)
	d[hdrVersion] = 3
	d[hdrHighBase+1] = 0x60
	d[hdrInitialPC+1] = 0x60
	d[hdrStaticBase+1] = 0x60
	d[hdrGlobals+1] = 0x40
	d[hdrObjectTable+1] = 0x40
	d[0x60] = 0xBA
	return d
}

func TestLoadMinimalStory(t *testing.T) {
	m, err := Load(minimalV3())
	require.NoError(t, err)
	assert.Equal(t, byte(3), m.Version())
	assert.Equal(t, 0, m.Objects().Count())
	require.NoError(t, m.Step())
	assert.True(t, m.Halted())
}

func TestLoadWithoutTables(t *testing.T) {
	d := minimalV3()
	d[hdrGlobals+1] = 0
	d[hdrObjectTable+1] = 0
	m, err := Load(d)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Objects().Count())

	_, err = m.ReadVariable(g0)
	assert.ErrorIs(t, err, ErrInvalidMemoryAccess)
	_, err = m.Objects().DefaultProperty(1)
	assert.ErrorIs(t, err, ErrInvalidObjectAccess)
	require.NoError(t, m.Step())
}

func TestHeaderFields(t *testing.T) {
	b := NewStoryBuilder(5).Main(func(c *Code) {
		c.Op(KindVAR, 0x13, Small(2))
		c.Quit()
	})
	m, _ := runStory(t, b, WithScreenSize(100, 40))
	h := m.Header()
	assert.Equal(t, byte(5), h.Version)
	assert.Equal(t, uint16(1), h.Release)
	assert.Equal(t, "260101", h.Serial)
	assert.Equal(t, uint16(flags2Transcript), h.Flags2&0xFF, "flags 2 is read live")

	mem := m.Memory()
	cols, _ := mem.ReadByte(hdrScreenColumns)
	lines, _ := mem.ReadByte(hdrScreenLines)
	width, _ := mem.ReadWord(hdrScreenWidth)
	rev, _ := mem.ReadWord(hdrStandardRevision)
	assert.Equal(t, byte(100), cols)
	assert.Equal(t, byte(40), lines)
	assert.Equal(t, uint16(100), width)
	assert.Equal(t, uint16(0x0101), rev)
	assert.Equal(t, fmt.Sprintf("1.260101.%04x", h.Checksum), h.ID().String())
}

func TestDisassemble(t *testing.T) {
	b := NewStoryBuilder(3).Main(func(c *Code) {
		c.Op(Kind2OP, 0x14, Var(g0), Small(1)).Store(0)
		c.Op(Kind1OP, 0x00, Var(0)).Branch(true, "rtrue")
		c.Print("hi")
		c.Quit()
	})
	m, _ := loadStory(t, b)
	lines, err := m.Disassemble(m.PC(), 4)
	require.NoError(t, err)
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "ADD")
	assert.Contains(t, lines[0], "G00")
	assert.Contains(t, lines[0], "-> sp")
	assert.Contains(t, lines[1], "JZ")
	assert.Contains(t, lines[1], "?RTRUE")
	assert.Contains(t, lines[2], `"hi"`)
	assert.Contains(t, lines[3], "QUIT")

	in, err := m.Decode(m.PC())
	require.NoError(t, err)
	assert.Equal(t, FormLong, in.Form)
	assert.Equal(t, Kind2OP, in.Kind)
	assert.Equal(t, "add", in.Name())
	assert.Equal(t, uint32(4), in.Length)
}

func TestOpcodeTable(t *testing.T) {
	names := func(v byte) map[string]bool {
		out := map[string]bool{}
		for _, o := range Opcodes(v) {
			out[o.Name] = true
		}
		return out
	}
	v3, v5, v6 := names(3), names(5), names(6)
	assert.True(t, v3["pop"])
	assert.False(t, v3["catch"])
	assert.True(t, v5["catch"])
	assert.False(t, v5["draw_picture"])
	assert.True(t, v6["draw_picture"])
	assert.False(t, v3["call_vs2"])
	assert.True(t, v5["save_undo"])
}
