// Package asyncjob runs long operations on a worker goroutine while the
// caller's goroutine drives a supervising event loop that keeps a
// presentation Surface responsive.
//
// A Controller owns one run. The job receives the Controller and reports
// through it: Meter for byte-oriented progress, SetStageText for free-form
// status, ShowWarning for transient notices. In async mode those calls are
// queued and replayed on the loop in emission order, so the Surface is only
// ever touched from one goroutine. Errors and panics raised by the job are
// captured at the worker boundary and surface once, as the *JobError
// returned by Run.
//
// Cancellation is cooperative. When a CancelHandler is configured the
// Surface may call RequestCancel or RequestClose; the handler decides what
// cancel means and marks the run with SetCanceled. The controller never
// stops the worker itself.
package asyncjob
