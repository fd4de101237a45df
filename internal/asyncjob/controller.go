package asyncjob

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/asyncjob/internal/clock/system"
	idgen "github.com/JakeFAU/asyncjob/internal/id/uuid"
	"github.com/JakeFAU/asyncjob/internal/progress"
)

const (
	// DefaultTick is the supervising loop interval.
	DefaultTick = 100 * time.Millisecond

	stageProcessing = "Processing..."
	stageCompleted  = "Completed"
	stageCancelling = "Cancelling job..."
)

var tracer = otel.Tracer("github.com/JakeFAU/asyncjob/internal/asyncjob")

// JobFunc is the long operation. It runs on the worker goroutine in async
// mode and receives the controller for progress reporting.
type JobFunc func(job *Controller, args ...any) error

// Mode selects where the job runs.
type Mode int

// Supported modes. The zero value runs the job on a worker goroutine.
const (
	ModeAsync Mode = iota
	ModeSync
)

func (m Mode) String() string {
	if m == ModeSync {
		return "sync"
	}
	return "async"
}

// ParseMode accepts "async" or "sync", case-insensitively. Empty means async.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "async":
		return ModeAsync, nil
	case "sync":
		return ModeSync, nil
	}
	return ModeAsync, fmt.Errorf("unknown job mode %q", s)
}

// State is the lifecycle position of a Controller.
type State int32

// Controller states in lifecycle order.
const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateFailed
	StateCleaned
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCleaned:
		return "cleaned"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// CancelHandler is invoked on the supervising loop when the user asks to
// cancel. It should call job.SetCanceled once it has arranged for the job
// to stop.
type CancelHandler struct {
	Func func(job *Controller, args ...any)
	Args []any
}

// Clock supplies event timestamps.
type Clock interface {
	Now() time.Time
}

// IDGenerator supplies job IDs.
type IDGenerator interface {
	NewJobID() (uuid.UUID, error)
}

// Requester is the subset of Controller a Surface needs to forward user
// requests.
type Requester interface {
	RequestClose()
	RequestCancel()
}

// Binder is implemented by surfaces that forward user requests back to the
// controller presenting through them.
type Binder interface {
	Bind(r Requester)
}

// Options configures a Controller. The zero value is an async run with the
// progress surface shown and no cancel support.
type Options struct {
	Mode         Mode
	HideProgress bool
	Cancel       *CancelHandler
	// Tick is the supervising loop interval; zero means DefaultTick.
	Tick    time.Duration
	Logger  *zap.Logger
	Emitter progress.Emitter
	Clock   Clock
	IDs     IDGenerator
}

// Controller runs one job and reports it through a Surface. A Controller
// can be run once.
type Controller struct {
	id           uuid.UUID
	title        string
	mode         Mode
	showProgress bool
	interval     time.Duration
	surface      Surface
	logger       *zap.Logger
	emitter      progress.Emitter
	clock        Clock
	queue        *taskQueue
	ctx          context.Context

	state           atomic.Int32
	canceled        atomic.Bool
	pulsing         atomic.Bool
	cancelAnnounced atomic.Bool

	// surfaceMu serializes surface access in sync mode, where cancel
	// requests arrive on goroutines other than the job's.
	surfaceMu sync.Mutex

	// Guarded by the meter's lock: the reporter is only called with it held.
	lastPct        int
	lastProgressAt time.Time

	mu       sync.Mutex
	worker   *worker
	cancel   *CancelHandler
	meter    *Meter
	released bool
	result   *JobError
	finished bool
	extra    any
}

// New prepares a controller for fn(job, args...). owner is the surface to
// present through; nil or HideProgress selects NopSurface. The surface
// receives the title, label, and cancel visibility immediately.
func New(fn JobFunc, args []any, title, label string, owner Surface, opts Options) *Controller {
	surface := owner
	if surface == nil || opts.HideProgress {
		surface = NopSurface{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = progress.NopEmitter{}
	}
	clk := opts.Clock
	if clk == nil {
		clk = system.New()
	}
	ids := opts.IDs
	if ids == nil {
		ids = idgen.New()
	}
	interval := opts.Tick
	if interval <= 0 {
		interval = DefaultTick
	}
	cancel := opts.Cancel
	if cancel != nil && cancel.Func == nil {
		cancel = nil
	}
	id, err := ids.NewJobID()
	if err != nil {
		logger.Warn("job id generation failed, using random id", zap.Error(err))
		id = uuid.New()
	}

	c := &Controller{
		id:           id,
		title:        title,
		mode:         opts.Mode,
		showProgress: !opts.HideProgress,
		interval:     interval,
		surface:      surface,
		logger:       logger,
		emitter:      emitter,
		clock:        clk,
		queue:        newTaskQueue(),
		ctx:          context.Background(),
		worker:       newWorker(fn, args),
		cancel:       cancel,
		lastPct:      -1,
	}
	c.pulsing.Store(true)

	logger.Debug("creating async job",
		zap.String("job_id", id.String()),
		zap.String("func", funcName(fn)),
		zap.Int("args", len(args)),
	)

	surface.SetTitle(title)
	surface.SetLabelText(label)
	surface.SetCancelVisible(cancel != nil)
	if b, ok := surface.(Binder); ok {
		b.Bind(c)
	}
	return c
}

// Run executes the job and blocks until it finishes or ctx ends. It returns
// nil on success or a *JobError describing the failure. In async mode the
// calling goroutine runs the supervising loop. If ctx ends while the worker
// is still running the worker is left to finish on its own and Run reports
// the run as abandoned.
func (c *Controller) Run(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyRun
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracer.Start(ctx, "asyncjob.run", trace.WithAttributes(
		attribute.String("job.id", c.id.String()),
		attribute.String("job.mode", c.mode.String()),
		attribute.String("job.title", c.title),
	))
	defer span.End()
	c.ctx = ctx

	started := c.clock.Now()
	c.emit(progress.Event{Stage: progress.StageJobStart, Title: c.title})
	c.logger.Debug("starting async job",
		zap.String("job_id", c.id.String()),
		zap.Stringer("mode", c.mode),
	)

	if c.showProgress {
		cancelable := c.CanCancel()
		c.onSurface(func() {
			c.surface.Present()
			if !cancelable {
				c.surface.SetCursorBusy()
			}
		})
	}

	c.mu.Lock()
	w := c.worker
	c.mu.Unlock()

	var abandoned error
	if c.mode == ModeSync {
		w.run(c)
	} else {
		go w.run(c)
		if !c.loop(ctx, w) {
			abandoned = ctx.Err()
		}
	}

	res := c.finish(started, abandoned)
	c.cleanup()
	if res == nil {
		span.SetStatus(codes.Ok, "")
		return nil
	}
	span.RecordError(res)
	span.SetStatus(codes.Error, res.Message)
	return res
}

// loop supervises the worker. It reports false when ctx ended first.
func (c *Controller) loop(ctx context.Context, w *worker) bool {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.queue.wake:
			c.queue.runPending()
		case <-ticker.C:
			if !c.tick(w) {
				c.queue.runAll()
				return true
			}
		case <-ctx.Done():
			if !w.alive() {
				c.queue.runAll()
				return true
			}
			c.logger.Debug("forcing exit from async job",
				zap.String("job_id", c.id.String()),
				zap.Error(ctx.Err()),
			)
			return false
		}
	}
}

// tick pulses the surface while the worker runs and reports whether it
// still does.
func (c *Controller) tick(w *worker) bool {
	if !w.alive() {
		return false
	}
	if c.pulsing.Load() && c.showProgress {
		c.surface.Pulse()
	}
	return true
}

func (c *Controller) finish(started time.Time, abandoned error) *JobError {
	c.mu.Lock()
	if abandoned != nil && c.result == nil {
		c.result = &JobError{
			Message: "job abandoned: " + abandoned.Error(),
			Details: "the job was still running when its context ended; it was not stopped",
		}
	}
	c.finished = true
	res := c.result
	c.mu.Unlock()

	dur := c.clock.Now().Sub(started)
	if dur < 0 {
		dur = 0
	}
	evt := progress.Event{Dur: dur}
	if res == nil {
		c.state.Store(int32(StateCompleted))
		evt.Stage = progress.StageJobDone
		c.logger.Debug("async job completed", zap.String("job_id", c.id.String()), zap.Duration("dur", dur))
	} else {
		c.state.Store(int32(StateFailed))
		evt.Stage = progress.StageJobError
		evt.Note = res.Message
		c.logger.Info("async job failed",
			zap.String("job_id", c.id.String()),
			zap.String("error", res.Message),
			zap.Duration("dur", dur),
		)
	}
	c.emit(evt)
	return res
}

func (c *Controller) cleanup() {
	c.queue.close()
	c.onSurface(c.surface.Destroy)
	c.mu.Lock()
	c.worker = nil
	c.cancel = nil
	c.meter = nil
	c.released = true
	c.mu.Unlock()
	c.state.Store(int32(StateCleaned))
}

// dispatch runs fn where the surface may be touched: queued for the loop in
// async mode, inline in sync mode. Calls after cleanup are dropped.
func (c *Controller) dispatch(fn func()) {
	if c.mode == ModeSync {
		if !c.queue.isClosed() {
			c.onSurface(fn)
		}
		return
	}
	c.queue.push(fn)
}

// onSurface runs fn holding surfaceMu in sync mode. In async mode only the
// loop goroutine reaches the surface.
func (c *Controller) onSurface(fn func()) {
	if c.mode != ModeSync {
		fn()
		return
	}
	c.surfaceMu.Lock()
	defer c.surfaceMu.Unlock()
	fn()
}

// request runs a cancel or close request: on the loop in async mode, inline
// in sync mode. The request itself takes surfaceMu around surface calls so
// the cancel handler runs unlocked.
func (c *Controller) request(fn func()) {
	if c.mode == ModeSync {
		if !c.queue.isClosed() {
			fn()
		}
		return
	}
	c.queue.push(fn)
}

// ID returns the job ID carried by lifecycle events.
func (c *Controller) ID() uuid.UUID {
	return c.id
}

// Title returns the title given to New.
func (c *Controller) Title() string {
	return c.title
}

// Mode returns the execution mode.
func (c *Controller) Mode() Mode {
	return c.mode
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Context returns the context passed to Run, or context.Background before
// Run. Jobs should watch it for teardown.
func (c *Controller) Context() context.Context {
	return c.ctx
}

// Meter returns the controller's meter, creating it on first use. Once the
// run is cleaned up it returns a meter that reports nowhere.
func (c *Controller) Meter() *Meter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return NewMeter(nil)
	}
	if c.meter == nil {
		m := &Meter{}
		m.reporter = surfaceReporter{job: c, meter: m}
		c.meter = m
	}
	return c.meter
}

// SetStageText replaces the stage line. It is ignored once the run is
// canceled so the cancelling notice stays visible.
func (c *Controller) SetStageText(text string) {
	c.dispatch(func() { c.setStageText(text, false) })
}

func (c *Controller) setStageText(text string, canceling bool) {
	if c.canceled.Load() && !canceling {
		return
	}
	c.surface.SetStageText(text)
}

// ShowWarning displays a transient notice next to the progress.
func (c *Controller) ShowWarning(text string) {
	c.dispatch(func() { c.surface.ShowWarning(text) })
}

// HideWarning removes the notice.
func (c *Controller) HideWarning() {
	c.dispatch(c.surface.HideWarning)
}

// SetExtraData stores an arbitrary value for the caller to read after Run.
func (c *Controller) SetExtraData(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extra = v
}

// ExtraData returns the value stored by SetExtraData.
func (c *Controller) ExtraData() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.extra
}

// CanCancel reports whether a cancel handler is configured.
func (c *Controller) CanCancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Canceled reports whether SetCanceled was called.
func (c *Controller) Canceled() bool {
	return c.canceled.Load()
}

// SetCanceled marks the run canceled. Jobs poll Canceled to stop early.
func (c *Controller) SetCanceled() {
	c.canceled.Store(true)
}

// RequestCancel asks the cancel handler to stop the job. It is a no-op
// without a handler.
func (c *Controller) RequestCancel() {
	c.request(c.cancelJob)
}

// RequestClose is the view-closing path: it asks the surface to confirm and
// then cancels like RequestCancel. It is a no-op without a handler or once
// the worker has finished.
func (c *Controller) RequestClose() {
	c.request(c.closeJob)
}

func (c *Controller) closeJob() {
	if !c.CanCancel() || !c.jobActive() {
		return
	}
	var confirmed bool
	c.onSurface(func() { confirmed = c.surface.ConfirmBeforeClosing() })
	if !confirmed {
		return
	}
	if !c.jobActive() {
		return
	}
	c.cancelJob()
}

func (c *Controller) cancelJob() {
	c.mu.Lock()
	h := c.cancel
	c.mu.Unlock()
	if h == nil {
		return
	}
	if !c.invokeCancel(h) {
		return
	}
	if !c.canceled.Load() || !c.cancelAnnounced.CompareAndSwap(false, true) {
		return
	}
	c.onSurface(func() {
		c.surface.HideWarning()
		c.setStageText(stageCancelling, true)
	})
	c.emit(progress.Event{Stage: progress.StageJobCancel})
	c.logger.Info("async job canceled", zap.String("job_id", c.id.String()))
}

// invokeCancel calls h and reports whether it returned normally. Handler
// panics are logged and swallowed.
func (c *Controller) invokeCancel(h *CancelHandler) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("cancel handler panicked",
				zap.String("job_id", c.id.String()),
				zap.Any("panic", r),
			)
			ok = false
		}
	}()
	h.Func(c, h.Args...)
	return true
}

func (c *Controller) jobActive() bool {
	c.mu.Lock()
	w := c.worker
	c.mu.Unlock()
	if w == nil {
		return false
	}
	return c.mode == ModeSync || w.alive()
}

func (c *Controller) suppressed(err error) bool {
	return IsOperationError(err) && c.CanCancel() && c.Canceled()
}

func (c *Controller) setError(message, details string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		c.logger.Warn("dropping failure from abandoned job",
			zap.String("job_id", c.id.String()),
			zap.String("error", message),
		)
		return
	}
	c.result = &JobError{Message: message, Details: details}
}

func (c *Controller) emit(evt progress.Event) {
	evt.JobID = progress.UUIDToBytes(c.id)
	if evt.TS.IsZero() {
		evt.TS = c.clock.Now()
	}
	c.emitter.Emit(evt)
}

func (c *Controller) pulse(progressText, stage string) {
	c.pulsing.Store(true)
	if stage == "" {
		stage = stageProcessing
	}
	c.surface.SetProgressText(progressText)
	c.setStageText(stage, false)
}

func (c *Controller) fraction(frac float64, progressText, stage string) {
	c.pulsing.Store(false)
	if stage == "" {
		stage = stageProcessing
	}
	c.surface.SetProgressText(progressText)
	c.setStageText(stage, false)
	c.surface.SetFraction(clampFraction(frac))
}

func (c *Controller) done(progressText, stage string) {
	c.pulsing.Store(false)
	if stage == "" {
		stage = stageCompleted
	}
	c.surface.SetProgressText(progressText)
	c.setStageText(stage, false)
	c.surface.SetFraction(1)
}

func clampFraction(frac float64) float64 {
	switch {
	case frac < 0:
		return 0
	case frac > 1:
		return 1
	}
	return frac
}

// surfaceReporter routes meter output to the controller. Meter calls it with
// its lock held, so reading meter.read directly is safe.
type surfaceReporter struct {
	job   *Controller
	meter *Meter
}

func (r surfaceReporter) Pulse(progressText, stage string) {
	r.job.emitProgress(progress.Indeterminate, r.meter.read, stage, r.meter.ending)
	r.job.dispatch(func() { r.job.pulse(progressText, stage) })
}

func (r surfaceReporter) Fraction(frac float64, progressText, stage string) {
	r.job.emitProgress(clampFraction(frac), r.meter.read, stage, r.meter.ending)
	r.job.dispatch(func() { r.job.fraction(frac, progressText, stage) })
}

func (r surfaceReporter) Done(progressText, stage string) {
	r.job.emitProgress(1, r.meter.read, stage, true)
	r.job.dispatch(func() { r.job.done(progressText, stage) })
}

// emitProgress publishes a progress event when the whole percent changes,
// or at most once per tick for unknown sizes. The final report of a meter
// is always published.
func (c *Controller) emitProgress(frac float64, bytes int64, text string, final bool) {
	if c.queue.isClosed() {
		return
	}
	now := c.clock.Now()
	if !final && !c.progressDue(frac, now) {
		return
	}
	c.lastProgressAt = now
	c.emit(progress.Event{TS: now, Stage: progress.StageJobProgress, Fraction: frac, Bytes: bytes, Text: text})
}

func (c *Controller) progressDue(frac float64, now time.Time) bool {
	if frac == progress.Indeterminate {
		c.lastPct = -1
		return c.lastProgressAt.IsZero() || now.Sub(c.lastProgressAt) >= c.interval
	}
	pct := int(frac * 100)
	if pct == c.lastPct {
		return false
	}
	c.lastPct = pct
	return true
}

func funcName(fn JobFunc) string {
	if fn == nil {
		return ""
	}
	return runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name()
}
