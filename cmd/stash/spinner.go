package main

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Spinner configuration constants
const (
	spinnerFrameWidth = 2                     // Unicode braille characters render ~2 columns
	spinnerAnimDelay  = 80 * time.Millisecond // Animation frame delay
	spinnerClearPad   = 5                     // Extra clearance for terminal variations
)

// lineSpinner animates a single-line progress indicator while a blocking
// operation (sync, export, import) runs. Stop signaling uses an atomic bool
// so the animation goroutine never blocks shutdown.
type lineSpinner struct {
	frames   []string
	current  int
	message  string
	done     atomic.Bool
	w        io.Writer
	clearLen int // length needed to clear the line
}

func newLineSpinner(w io.Writer, message string) *lineSpinner {
	return &lineSpinner{
		frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		message:  message,
		w:        w,
		clearLen: spinnerFrameWidth + 1 + len(message),
	}
}

func (s *lineSpinner) Start() {
	if !isTTY() {
		fmt.Fprintf(s.w, "%s...\n", s.message)
		return
	}

	go func() {
		spinnerStyle := lipgloss.NewStyle().Foreground(colorPrimary)
		for !s.done.Load() {
			frame := s.frames[s.current%len(s.frames)]
			fmt.Fprintf(s.w, "\r%s %s", spinnerStyle.Render(frame), s.message)
			s.current++
			time.Sleep(spinnerAnimDelay)
		}
	}()
}

func (s *lineSpinner) Stop() {
	s.done.Store(true)
	if isTTY() {
		clearStr := "\r" + strings.Repeat(" ", s.clearLen+spinnerClearPad) + "\r"
		fmt.Fprint(s.w, clearStr)
	}
}

// runWithSpinner runs an operation behind an animated spinner. The spinner
// line is cleared when the operation returns, whatever the outcome.
func runWithSpinner(w io.Writer, message string, operation func() error) error {
	spin := newLineSpinner(w, message)
	spin.Start()
	err := operation()
	spin.Stop()
	return err
}
