package asyncjob

import (
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
)

// worker runs one JobFunc. done is closed after the outcome is recorded.
type worker struct {
	fn   JobFunc
	args []any
	done chan struct{}
}

func newWorker(fn JobFunc, args []any) *worker {
	return &worker{fn: fn, args: args, done: make(chan struct{})}
}

func (w *worker) run(job *Controller) {
	defer close(w.done)
	capture(job, func() error {
		return w.fn(job, w.args...)
	})
}

func (w *worker) alive() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// capture runs call and records a returned error or panic on job. Operation
// errors from a canceled run are dropped.
func capture(job *Controller, call func() error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if err, ok := r.(error); ok && job.suppressed(err) {
			job.logger.Debug("dropping operation panic from canceled job", zap.Error(err))
			return
		}
		job.setError(fmt.Sprint(r), fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack()))
	}()
	err := call()
	if err == nil {
		return
	}
	if job.suppressed(err) {
		job.logger.Debug("dropping operation error from canceled job", zap.Error(err))
		return
	}
	job.setError(err.Error(), formatTrace(err))
}
