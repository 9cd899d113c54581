package vm

import (
	"bufio"
	"io"
	"strings"
)

// Input supplies lines typed by the player. io.EOF ends the session.
type Input interface {
	ReadLine() (string, error)
}

type lineInput struct {
	r *bufio.Reader
}

// NewLineInput reads newline-terminated lines from r.
func NewLineInput(r io.Reader) Input {
	return &lineInput{r: bufio.NewReader(r)}
}

func (l *lineInput) ReadLine() (string, error) {
	line, err := l.r.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ScriptInput replays a fixed list of lines, then reports io.EOF.
type ScriptInput struct {
	Lines []string
}

// ReadLine returns the next scripted line.
func (s *ScriptInput) ReadLine() (string, error) {
	if len(s.Lines) == 0 {
		return "", io.EOF
	}
	line := s.Lines[0]
	s.Lines = s.Lines[1:]
	return line, nil
}

// Status is the v1-3 status line content.
type Status struct {
	Location string
	Score    int16 // hours, for time games
	Moves    int16 // minutes, for time games
	TimeGame bool
}

// StatusLine is implemented by outputs that can draw the status line.
type StatusLine interface {
	ShowStatus(Status) error
}

// Persistence stores and retrieves save-game snapshots. Restore is given
// the running story's identity and must not return another story's state.
type Persistence interface {
	Save(s *Snapshot) error
	Restore(story StoryID) (*Snapshot, error)
}
