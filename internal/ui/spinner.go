package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// Spinner displays an animated spinner with a message while a slow call
// runs. On a non-terminal writer it prints the message once.
type Spinner struct {
	w       io.Writer
	message string
	frames  []string
	done    chan struct{}
	wg      sync.WaitGroup
	tty     bool
	once    sync.Once
}

// Default spinner frames (dots style)
var defaultFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// NewSpinner creates a spinner that draws on w.
func NewSpinner(w io.Writer, message string) *Spinner {
	f, ok := w.(*os.File)
	return &Spinner{
		w:       w,
		message: message,
		frames:  defaultFrames,
		done:    make(chan struct{}),
		tty:     ok && isatty.IsTerminal(f.Fd()),
	}
}

// Start begins the spinner animation.
func (s *Spinner) Start() {
	if !s.tty {
		fmt.Fprintf(s.w, "%s...\n", s.message)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for current := 0; ; current++ {
			select {
			case <-s.done:
				// Clear the spinner line
				fmt.Fprint(s.w, "\r\033[K")
				return
			case <-ticker.C:
				frame := s.frames[current%len(s.frames)]
				fmt.Fprintf(s.w, "\r%s %s", Bold.Render(frame), s.message)
			}
		}
	}()
}

// Stop stops the spinner. It is safe to call more than once.
func (s *Spinner) Stop() {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}
