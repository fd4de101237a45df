// Package terminal renders a running job in the terminal with bubbletea.
package terminal

import (
	"fmt"
	"io"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/JakeFAU/asyncjob/internal/asyncjob"
)

var (
	_ asyncjob.Surface      = (*Surface)(nil)
	_ asyncjob.Binder       = (*Surface)(nil)
	_ asyncjob.ErrorDisplay = (*Surface)(nil)
)

// Surface is an asyncjob.Surface backed by a bubbletea program. Calls made
// before Present update the initial view; calls after Destroy are dropped.
type Surface struct {
	in  io.Reader
	out io.Writer

	mu      sync.Mutex
	model   model
	program *tea.Program
	done    chan struct{}
	closed  bool
}

// Option configures a Surface.
type Option func(*Surface)

// WithInput reads key presses from r instead of stdin.
func WithInput(r io.Reader) Option {
	return func(s *Surface) { s.in = r }
}

// WithOutput renders to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(s *Surface) { s.out = w }
}

// New returns a Surface that has not been presented yet.
func New(opts ...Option) *Surface {
	s := &Surface{out: os.Stdout, model: newModel()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bind routes ctrl+c and the cancel key to r.
func (s *Surface) Bind(r asyncjob.Requester) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model.requester = r
}

// Present starts the bubbletea program.
func (s *Surface) Present() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.program != nil || s.closed {
		return
	}
	opts := []tea.ProgramOption{tea.WithOutput(s.out)}
	if s.in != nil {
		opts = append(opts, tea.WithInput(s.in))
	}
	p := tea.NewProgram(s.model, opts...)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.Run()
	}()
	s.program = p
	s.done = done
}

// Destroy stops the program and waits for the terminal to be restored.
func (s *Surface) Destroy() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	p, done := s.program, s.done
	s.mu.Unlock()
	if p == nil {
		return
	}
	p.Quit()
	<-done
}

func (s *Surface) send(msg tea.Msg) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.program == nil {
		next, _ := s.model.Update(msg)
		s.model = next.(model)
		s.mu.Unlock()
		return
	}
	p := s.program
	s.mu.Unlock()
	p.Send(msg)
}

func (s *Surface) SetCursorBusy()              { s.send(busyMsg{}) }
func (s *Surface) SetTitle(title string)       { s.send(titleMsg(title)) }
func (s *Surface) SetLabelText(text string)    { s.send(labelMsg(text)) }
func (s *Surface) ShowWarning(text string)     { s.send(warningMsg{text: text, visible: true}) }
func (s *Surface) HideWarning()                { s.send(warningMsg{}) }
func (s *Surface) Pulse()                      { s.send(pulseMsg{}) }
func (s *Surface) SetFraction(frac float64)    { s.send(fractionMsg(frac)) }
func (s *Surface) SetProgressText(text string) { s.send(progressTextMsg(text)) }
func (s *Surface) SetStageText(text string)    { s.send(stageMsg(text)) }
func (s *Surface) SetCancelVisible(v bool)     { s.send(cancelVisibleMsg(v)) }

// ConfirmBeforeClosing asks on screen and blocks for y or n. It answers
// false when the program is not running.
func (s *Surface) ConfirmBeforeClosing() bool {
	s.mu.Lock()
	p, done, closed := s.program, s.done, s.closed
	s.mu.Unlock()
	if p == nil || closed {
		return false
	}
	reply := make(chan bool, 1)
	p.Send(confirmMsg{reply: reply})
	select {
	case ok := <-reply:
		return ok
	case <-done:
		return false
	}
}

// ShowError prints a failed run below the finished view.
func (s *Surface) ShowError(summary, details string) {
	_, _ = fmt.Fprintln(s.out, errorStyle.Render(summary))
	if details != "" {
		_, _ = fmt.Fprintln(s.out, hintStyle.Render(details))
	}
}
