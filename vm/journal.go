package vm

// ---------------------------------------------------------------------------
// Step journal
// ---------------------------------------------------------------------------
//
// Every mutation made while an instruction executes is recorded so that a
// failing instruction leaves the machine exactly as it found it. Entries
// are undone in reverse order.

type journalOp uint8

const (
	jByte      journalOp = iota // memory byte overwritten
	jPush                       // value pushed onto a frame's stack
	jPop                        // value popped from a frame's stack
	jLocal                      // local variable overwritten
	jFramePush                  // frame pushed
	jFramePop                   // frame popped
	jDynamic                    // dynamic memory replaced wholesale
	jFrames                     // frame list replaced wholesale
)

type journalEntry struct {
	op     journalOp
	addr   uint32
	old    byte
	value  uint16
	index  int
	frame  *Frame
	block  []byte
	frames []*Frame
}

type journal struct {
	active  bool
	entries []journalEntry
}

func (j *journal) begin() {
	j.active = true
	j.entries = j.entries[:0]
}

func (j *journal) commit() {
	j.active = false
	j.entries = j.entries[:0]
}

func (j *journal) record(e journalEntry) {
	if j.active {
		j.entries = append(j.entries, e)
	}
}

func (j *journal) recordByte(addr uint32, old byte) {
	if j.active {
		j.entries = append(j.entries, journalEntry{op: jByte, addr: addr, old: old})
	}
}

// rollback undoes every recorded entry and closes the journal.
func (j *journal) rollback(img *Image, cs *CallStack) {
	for i := len(j.entries) - 1; i >= 0; i-- {
		e := j.entries[i]
		switch e.op {
		case jByte:
			img.data[e.addr] = e.old
		case jPush:
			e.frame.Stack = e.frame.Stack[:len(e.frame.Stack)-1]
		case jPop:
			e.frame.Stack = append(e.frame.Stack, e.value)
		case jLocal:
			e.frame.Locals[e.index] = e.value
		case jFramePush:
			cs.frames = cs.frames[:len(cs.frames)-1]
		case jFramePop:
			cs.frames = append(cs.frames, e.frame)
		case jDynamic:
			copy(img.data[:len(e.block)], e.block)
		case jFrames:
			cs.frames = e.frames
		}
	}
	j.commit()
}
