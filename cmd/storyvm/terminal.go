package main

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/chazu/storyvm/vm"
)

// terminal is the line-mode screen: story output goes straight through and
// the status line is drawn as one bracketed line.
type terminal struct {
	w     io.Writer
	width int
}

func (t *terminal) Write(p []byte) (int, error) {
	return t.w.Write(p)
}

func (t *terminal) ShowStatus(st vm.Status) error {
	right := fmt.Sprintf("Score: %d  Moves: %d", st.Score, st.Moves)
	if st.TimeGame {
		right = fmt.Sprintf("Time: %d:%02d", st.Score, st.Moves)
	}
	gap := t.width - 2 - utf8.RuneCountInString(st.Location) - len(right)
	if gap < 2 {
		gap = 2
	}
	_, err := fmt.Fprintf(t.w, "[%s%s%s]\n", st.Location, strings.Repeat(" ", gap), right)
	return err
}
