// Package progress carries async job lifecycle events from controllers to
// pluggable sinks. Controllers emit through the Emitter interface; the Hub
// buffers events on a background goroutine, batches them, and fans each
// batch out to sinks such as logs, Prometheus collectors, a run store, or a
// message topic. Emitting never blocks the job.
package progress
