package vm

// ---------------------------------------------------------------------------
// Frame: one routine activation
// ---------------------------------------------------------------------------

// discardResult is the store target of a frame whose result is thrown away.
const discardResult = -1

// Frame holds the state of a single routine call.
type Frame struct {
	ReturnPC uint32   // where execution resumes in the caller
	Store    int      // variable receiving the result, or discardResult
	Locals   []uint16 // locals 1..len(Locals)
	Stack    []uint16 // private evaluation stack
	ArgCount int      // arguments actually supplied by the caller
}

// Discards reports whether the frame's result is thrown away.
func (f *Frame) Discards() bool {
	return f.Store == discardResult
}

// clone deep-copies a frame for snapshots.
func (f *Frame) clone() *Frame {
	c := *f
	c.Locals = append([]uint16(nil), f.Locals...)
	c.Stack = append([]uint16(nil), f.Stack...)
	return &c
}

// ---------------------------------------------------------------------------
// CallStack
// ---------------------------------------------------------------------------

// Default bounds for the call stack.
const (
	DefaultMaxCallDepth = 1024
	DefaultMaxEvalStack = 1024
)

// CallStack is a bounded sequence of frames plus variable resolution:
// variable 0 is the current frame's stack top, 1-15 are its locals and
// 16-255 are globals stored in the image.
type CallStack struct {
	frames   []*Frame
	maxDepth int
	maxStack int

	image   *Image
	globals uint32

	journal *journal
}

// NewCallStack creates an empty call stack resolving globals at globalsAddr.
func NewCallStack(img *Image, globalsAddr uint32, maxDepth, maxStack int) *CallStack {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxCallDepth
	}
	if maxStack <= 0 {
		maxStack = DefaultMaxEvalStack
	}
	return &CallStack{
		frames:   make([]*Frame, 0, 16),
		maxDepth: maxDepth,
		maxStack: maxStack,
		image:    img,
		globals:  globalsAddr,
		journal:  &journal{},
	}
}

// Depth returns the number of frames.
func (cs *CallStack) Depth() int {
	return len(cs.frames)
}

// Current returns the active frame.
func (cs *CallStack) Current() (*Frame, error) {
	if len(cs.frames) == 0 {
		return nil, stackUnderflow("no active frame")
	}
	return cs.frames[len(cs.frames)-1], nil
}

// Frames returns the frames bottom-first. The slice must not be modified.
func (cs *CallStack) Frames() []*Frame {
	return cs.frames
}

// PushFrame activates a new routine. Exceeding the maximum depth is fatal.
func (cs *CallStack) PushFrame(returnPC uint32, locals []uint16, store int, argCount int) error {
	if len(cs.frames) >= cs.maxDepth {
		return stackOverflow("call depth exceeds %d frames", cs.maxDepth)
	}
	if len(locals) > MaxLocals {
		return malformed("routine declares %d locals", len(locals))
	}
	f := &Frame{
		ReturnPC: returnPC,
		Store:    store,
		Locals:   locals,
		Stack:    make([]uint16, 0, 8),
		ArgCount: argCount,
	}
	cs.frames = append(cs.frames, f)
	cs.journal.record(journalEntry{op: jFramePush})
	return nil
}

// PopFrame removes the active frame and returns its return linkage.
func (cs *CallStack) PopFrame() (returnPC uint32, store int, err error) {
	if len(cs.frames) == 0 {
		return 0, 0, stackUnderflow("return with no active frame")
	}
	f := cs.frames[len(cs.frames)-1]
	cs.frames = cs.frames[:len(cs.frames)-1]
	cs.journal.record(journalEntry{op: jFramePop, frame: f})
	return f.ReturnPC, f.Store, nil
}

// PushValue pushes onto the active frame's evaluation stack.
func (cs *CallStack) PushValue(v uint16) error {
	f, err := cs.Current()
	if err != nil {
		return err
	}
	if len(f.Stack) >= cs.maxStack {
		return stackOverflow("evaluation stack exceeds %d values", cs.maxStack)
	}
	f.Stack = append(f.Stack, v)
	cs.journal.record(journalEntry{op: jPush, frame: f})
	return nil
}

// PopValue pops from the active frame's evaluation stack.
func (cs *CallStack) PopValue() (uint16, error) {
	f, err := cs.Current()
	if err != nil {
		return 0, err
	}
	if len(f.Stack) == 0 {
		return 0, stackUnderflow("pop from empty evaluation stack")
	}
	v := f.Stack[len(f.Stack)-1]
	f.Stack = f.Stack[:len(f.Stack)-1]
	cs.journal.record(journalEntry{op: jPop, frame: f, value: v})
	return v, nil
}

// PeekValue returns the top of the evaluation stack without popping.
func (cs *CallStack) PeekValue() (uint16, error) {
	f, err := cs.Current()
	if err != nil {
		return 0, err
	}
	if len(f.Stack) == 0 {
		return 0, stackUnderflow("peek at empty evaluation stack")
	}
	return f.Stack[len(f.Stack)-1], nil
}

// setTop replaces the top of the evaluation stack in place.
func (cs *CallStack) setTop(v uint16) error {
	if _, err := cs.PopValue(); err != nil {
		return err
	}
	return cs.PushValue(v)
}

func (cs *CallStack) globalAddr(n uint8) (uint32, error) {
	if cs.globals == 0 {
		return 0, memoryError(0, "global %d read with no global variable table", n-16)
	}
	return cs.globals + 2*uint32(n-16), nil
}

func (cs *CallStack) local(n uint8) (*Frame, int, error) {
	f, err := cs.Current()
	if err != nil {
		return nil, 0, err
	}
	idx := int(n) - 1
	if idx >= len(f.Locals) {
		return nil, 0, memoryError(uint32(n), "local variable %d out of range (routine has %d)", n, len(f.Locals))
	}
	return f, idx, nil
}

// ReadVariable reads variable n. Variable 0 pops the stack.
func (cs *CallStack) ReadVariable(n uint8) (uint16, error) {
	switch {
	case n == 0:
		return cs.PopValue()
	case n < 16:
		f, idx, err := cs.local(n)
		if err != nil {
			return 0, err
		}
		return f.Locals[idx], nil
	default:
		addr, err := cs.globalAddr(n)
		if err != nil {
			return 0, err
		}
		return cs.image.ReadWord(addr)
	}
}

// WriteVariable writes variable n. Variable 0 pushes onto the stack.
func (cs *CallStack) WriteVariable(n uint8, v uint16) error {
	switch {
	case n == 0:
		return cs.PushValue(v)
	case n < 16:
		f, idx, err := cs.local(n)
		if err != nil {
			return err
		}
		cs.journal.record(journalEntry{op: jLocal, frame: f, index: idx, value: f.Locals[idx]})
		f.Locals[idx] = v
		return nil
	default:
		addr, err := cs.globalAddr(n)
		if err != nil {
			return err
		}
		return cs.image.WriteWord(addr, v)
	}
}

// PeekVariable reads variable n without popping the stack. Indirect
// variable operands (inc, dec, load, store, pull) use these semantics.
func (cs *CallStack) PeekVariable(n uint8) (uint16, error) {
	if n == 0 {
		return cs.PeekValue()
	}
	return cs.ReadVariable(n)
}

// PokeVariable writes variable n, replacing the stack top in place.
func (cs *CallStack) PokeVariable(n uint8, v uint16) error {
	if n == 0 {
		return cs.setTop(v)
	}
	return cs.WriteVariable(n, v)
}

// replace swaps the whole frame list (restore, restart).
func (cs *CallStack) replace(frames []*Frame) {
	cs.journal.record(journalEntry{op: jFrames, frames: cs.frames})
	cs.frames = frames
}

// unwindTo pops frames until depth frames remain.
func (cs *CallStack) unwindTo(depth int) error {
	for len(cs.frames) > depth {
		if _, _, err := cs.PopFrame(); err != nil {
			return err
		}
	}
	return nil
}
