package server

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/chazu/storyvm/vm"
)

// event is one frame sent from a machine to its client.
type event struct {
	Type     string `json:"type"`
	Session  string `json:"session,omitempty"`
	Story    string `json:"story,omitempty"`
	Text     string `json:"text,omitempty"`
	Location string `json:"location,omitempty"`
	Score    int16  `json:"score,omitempty"`
	Moves    int16  `json:"moves,omitempty"`
	TimeGame bool   `json:"time_game,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Event types.
const (
	eventHello  = "hello"
	eventOutput = "output"
	eventStatus = "status"
	eventHalt   = "halt"
	eventError  = "error"
)

// machineWorker owns a Machine on a dedicated goroutine. The interpreter is
// single-threaded; the connection handlers only reach it through the input
// and events channels. It serves as the machine's Input, its output writer
// and its status line.
type machineWorker struct {
	ctx    context.Context
	input  chan string
	events chan event

	mu  sync.Mutex
	out bytes.Buffer
}

func newMachineWorker(ctx context.Context) *machineWorker {
	return &machineWorker{
		ctx:    ctx,
		input:  make(chan string),
		events: make(chan event, 16),
	}
}

// send queues ev unless the session is over.
func (w *machineWorker) send(ev event) bool {
	select {
	case w.events <- ev:
		return true
	case <-w.ctx.Done():
		return false
	}
}

// flush sends buffered output as one frame.
func (w *machineWorker) flush() {
	w.mu.Lock()
	text := w.out.String()
	w.out.Reset()
	w.mu.Unlock()
	if text != "" {
		w.send(event{Type: eventOutput, Text: text})
	}
}

func (w *machineWorker) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Write(p)
}

func (w *machineWorker) ShowStatus(st vm.Status) error {
	w.flush()
	w.send(event{Type: eventStatus, Location: st.Location, Score: st.Score, Moves: st.Moves, TimeGame: st.TimeGame})
	return nil
}

// ReadLine flushes pending output and waits for the player. A closed
// session reads as end of input, which halts the machine.
func (w *machineWorker) ReadLine() (string, error) {
	w.flush()
	select {
	case line := <-w.input:
		return line, nil
	case <-w.ctx.Done():
		return "", io.EOF
	}
}

// submit hands a line to the machine, waiting until it asks for one.
func (w *machineWorker) submit(line string) bool {
	select {
	case w.input <- line:
		return true
	case <-w.ctx.Done():
		return false
	}
}

// run executes m until it halts or fails, then closes the event stream.
func (w *machineWorker) run(m *vm.Machine) error {
	defer close(w.events)
	err := m.Run(w.ctx)
	w.flush()
	if err != nil {
		w.send(event{Type: eventError, Message: err.Error()})
		return err
	}
	w.send(event{Type: eventHalt})
	return nil
}
