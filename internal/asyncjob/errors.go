package asyncjob

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// ErrAlreadyRun is returned when Run is called a second time.
var ErrAlreadyRun = errors.New("asyncjob: controller already run")

// JobError is the terminal failure of a run.
type JobError struct {
	// Message is the one-line summary, e.g. the error text.
	Message string
	// Details holds the captured trace.
	Details string
}

func (e *JobError) Error() string {
	return e.Message
}

// OperationError marks a failure the job raised on purpose, for example in
// response to cancellation. It is dropped when the run was canceled.
type OperationError struct {
	Op  string
	Err error
}

// NewOperationError wraps err as an operation failure of op and records the
// caller's stack.
func NewOperationError(op string, err error) error {
	if err == nil {
		err = errors.New("operation failed")
	}
	return &OperationError{Op: op, Err: pkgerrors.WithStack(err)}
}

func (e *OperationError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// IsOperationError reports whether err has an *OperationError in its chain.
func IsOperationError(err error) bool {
	var opErr *OperationError
	return errors.As(err, &opErr)
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// formatTrace renders err followed by the first stack found in its chain. Errors
// without one get the stack of the capture site.
func formatTrace(err error) string {
	var st stackTracer
	if !errors.As(err, &st) {
		st = pkgerrors.WithStack(err).(stackTracer)
	}
	return fmt.Sprintf("%s%+v", err.Error(), st.StackTrace())
}
