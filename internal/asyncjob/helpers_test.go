package asyncjob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JakeFAU/asyncjob/internal/progress"
)

const testTick = 5 * time.Millisecond

type recordingSurface struct {
	mu       sync.Mutex
	calls    []string
	confirm  bool
	requests Requester
	errors   []string
}

func (s *recordingSurface) record(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

// Calls returns recorded calls whose name starts with prefix.
func (s *recordingSurface) Calls(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (s *recordingSurface) Has(call string) bool {
	for _, c := range s.Calls(call) {
		if c == call {
			return true
		}
	}
	return false
}

func (s *recordingSurface) Present()                    { s.record("Present") }
func (s *recordingSurface) SetCursorBusy()              { s.record("SetCursorBusy") }
func (s *recordingSurface) Destroy()                    { s.record("Destroy") }
func (s *recordingSurface) SetTitle(title string)       { s.record("SetTitle:%s", title) }
func (s *recordingSurface) SetLabelText(text string)    { s.record("SetLabelText:%s", text) }
func (s *recordingSurface) ShowWarning(text string)     { s.record("ShowWarning:%s", text) }
func (s *recordingSurface) HideWarning()                { s.record("HideWarning") }
func (s *recordingSurface) Pulse()                      { s.record("Pulse") }
func (s *recordingSurface) SetFraction(frac float64)    { s.record("SetFraction:%.2f", frac) }
func (s *recordingSurface) SetProgressText(text string) { s.record("SetProgressText:%s", text) }
func (s *recordingSurface) SetStageText(text string)    { s.record("SetStageText:%s", text) }
func (s *recordingSurface) SetCancelVisible(v bool)     { s.record("SetCancelVisible:%t", v) }

func (s *recordingSurface) ConfirmBeforeClosing() bool {
	s.record("ConfirmBeforeClosing")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirm
}

func (s *recordingSurface) Bind(r Requester) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = r
}

type displaySurface struct {
	NopSurface
	mu     sync.Mutex
	shown  []string
	detail []string
}

func (d *displaySurface) ShowError(summary, details string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shown = append(d.shown, summary)
	d.detail = append(d.detail, details)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *recordingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) Stages() []progress.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]progress.Stage, 0, len(e.events))
	for _, evt := range e.events {
		out = append(out, evt.Stage)
	}
	return out
}

type reporterCall struct {
	kind     string
	frac     float64
	progress string
	stage    string
}

func recordingReporter(calls *[]reporterCall) ReporterFuncs {
	return ReporterFuncs{
		OnPulse: func(p, s string) {
			*calls = append(*calls, reporterCall{kind: "pulse", progress: p, stage: s})
		},
		OnFraction: func(f float64, p, s string) {
			*calls = append(*calls, reporterCall{kind: "fraction", frac: f, progress: p, stage: s})
		},
		OnDone: func(p, s string) {
			*calls = append(*calls, reporterCall{kind: "done", progress: p, stage: s})
		},
	}
}

// fixedClock never advances, so tick-based throttling holds every
// indeterminate update after the first.
type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// overlapSurface records the highest number of goroutines inside it at once.
type overlapSurface struct {
	NopSurface
	inside  atomic.Int32
	maxSeen atomic.Int32
}

func (s *overlapSurface) enter() {
	n := s.inside.Add(1)
	for {
		seen := s.maxSeen.Load()
		if n <= seen || s.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(50 * time.Microsecond)
	s.inside.Add(-1)
}

func (s *overlapSurface) SetStageText(string)    { s.enter() }
func (s *overlapSurface) SetProgressText(string) { s.enter() }
func (s *overlapSurface) HideWarning()           { s.enter() }

func (s *overlapSurface) ConfirmBeforeClosing() bool {
	s.enter()
	return false
}

// stageSink counts stages and sleeps on every batch.
type stageSink struct {
	delay  time.Duration
	mu     sync.Mutex
	stages map[progress.Stage]int
}

func (s *stageSink) Consume(_ context.Context, batch []progress.Event) error {
	time.Sleep(s.delay)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stages == nil {
		s.stages = make(map[progress.Stage]int)
	}
	for _, evt := range batch {
		s.stages[evt.Stage]++
	}
	return nil
}

func (s *stageSink) Close(context.Context) error { return nil }

func (s *stageSink) Count(stage progress.Stage) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stages[stage]
}
