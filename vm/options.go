package vm

import (
	"io"

	"github.com/tliron/commonlog"
)

// Option configures a Machine at load time.
type Option func(*config)

type config struct {
	output       io.Writer
	transcript   io.Writer
	input        Input
	persistence  Persistence
	maxCallDepth int
	maxEvalStack int
	undoDepth    int
	seed         int64
	screenWidth  int
	screenHeight int
	logger       commonlog.Logger
	trace        bool
}

func defaultConfig() config {
	return config{
		maxCallDepth: DefaultMaxCallDepth,
		maxEvalStack: DefaultMaxEvalStack,
		undoDepth:    DefaultUndoDepth,
		screenWidth:  80,
		screenHeight: 25,
		logger:       log,
	}
}

// WithOutput sets the screen output. If w implements StatusLine it also
// receives v1-3 status lines.
func WithOutput(w io.Writer) Option {
	return func(c *config) { c.output = w }
}

// WithTranscript sets the writer for output stream 2.
func WithTranscript(w io.Writer) Option {
	return func(c *config) { c.transcript = w }
}

// WithInput sets the source of player input.
func WithInput(in Input) Option {
	return func(c *config) { c.input = in }
}

// WithPersistence enables save and restore.
func WithPersistence(p Persistence) Option {
	return func(c *config) { c.persistence = p }
}

// WithMaxCallDepth bounds the number of nested routine calls.
func WithMaxCallDepth(n int) Option {
	return func(c *config) { c.maxCallDepth = n }
}

// WithMaxEvalStack bounds each frame's evaluation stack.
func WithMaxEvalStack(n int) Option {
	return func(c *config) { c.maxEvalStack = n }
}

// WithUndoDepth sets how many save_undo states are kept; 0 disables undo.
func WithUndoDepth(n int) Option {
	return func(c *config) { c.undoDepth = n }
}

// WithRandomSeed makes the random opcode deterministic.
func WithRandomSeed(seed int64) Option {
	return func(c *config) { c.seed = seed }
}

// WithScreenSize sets the dimensions reported in the header.
func WithScreenSize(width, height int) Option {
	return func(c *config) {
		c.screenWidth = width
		c.screenHeight = height
	}
}

// WithLogger replaces the package logger.
func WithLogger(l commonlog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithTrace logs every executed instruction at debug level.
func WithTrace(on bool) Option {
	return func(c *config) { c.trace = on }
}
