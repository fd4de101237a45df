package asyncjob

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
)

// Reporter receives normalized progress from a Meter. progress is a short
// amount label and stage the text describing the unit of work.
type Reporter interface {
	Pulse(progress, stage string)
	Fraction(frac float64, progress, stage string)
	Done(progress, stage string)
}

// ReporterFuncs adapts three functions to Reporter. Nil fields are skipped.
type ReporterFuncs struct {
	OnPulse    func(progress, stage string)
	OnFraction func(frac float64, progress, stage string)
	OnDone     func(progress, stage string)
}

// Pulse calls OnPulse.
func (r ReporterFuncs) Pulse(progress, stage string) {
	if r.OnPulse != nil {
		r.OnPulse(progress, stage)
	}
}

// Fraction calls OnFraction.
func (r ReporterFuncs) Fraction(frac float64, progress, stage string) {
	if r.OnFraction != nil {
		r.OnFraction(frac, progress, stage)
	}
}

// Done calls OnDone.
func (r ReporterFuncs) Done(progress, stage string) {
	if r.OnDone != nil {
		r.OnDone(progress, stage)
	}
}

// Meter translates start/update/end notifications of a unit of work into
// Reporter calls. A size <= 0 means the total is unknown and every call
// becomes a pulse.
//
// Meter is an io.Writer: writing to it advances the amount read, so it can
// sit behind io.TeeReader or io.MultiWriter. The Reporter is called with the
// meter's lock held and must not call back into the Meter.
type Meter struct {
	mu       sync.Mutex
	reporter Reporter
	basename string
	text     string
	size     int64
	read     int64
	started  bool
	// ending is set while End reports so reporters can tell the final call
	// from an ordinary update.
	ending bool
}

// NewMeter returns an inactive Meter reporting to r.
func NewMeter(r Reporter) *Meter {
	if r == nil {
		r = ReporterFuncs{}
	}
	return &Meter{reporter: r}
}

// Start begins a unit of work. text is preferred over basename as the label.
func (m *Meter) Start(basename, text string, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.basename = basename
	m.text = text
	m.size = size
	m.read = 0
	m.started = true
	if m.size <= 0 {
		m.reporter.Pulse(formatAmount(0), m.label())
		return
	}
	m.reporter.Fraction(0, formatPercent(0, 0), m.label())
}

// Update records the total amount read so far.
func (m *Meter) Update(amountRead int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.update(amountRead)
}

func (m *Meter) update(amountRead int64) {
	m.read = amountRead
	if m.size <= 0 {
		m.reporter.Pulse(formatAmount(amountRead), m.label())
		return
	}
	frac := float64(amountRead) / float64(m.size)
	m.reporter.Fraction(frac, formatPercent(frac*100, amountRead), m.label())
}

// End finishes the unit of work and deactivates the meter.
func (m *Meter) End(amountRead int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.read = amountRead
	m.ending = true
	if m.size <= 0 {
		m.reporter.Pulse(formatAmount(amountRead), m.label())
	} else {
		m.reporter.Done(formatPercent(100, amountRead), m.label())
	}
	m.ending = false
	m.started = false
}

// Add advances the amount read by n.
func (m *Meter) Add(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.update(m.read + n)
}

// Write implements io.Writer by counting len(p).
func (m *Meter) Write(p []byte) (int, error) {
	m.Add(int64(len(p)))
	return len(p), nil
}

// Active reports whether Start was called without a matching End.
func (m *Meter) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// AmountRead returns the last recorded amount.
func (m *Meter) AmountRead() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read
}

// Size returns the total passed to Start.
func (m *Meter) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

func (m *Meter) label() string {
	if m.text != "" {
		return m.text
	}
	return m.basename
}

func formatAmount(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func formatPercent(pct float64, n int64) string {
	return fmt.Sprintf("%3d%% %s", int(pct), formatAmount(n))
}
