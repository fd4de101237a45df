// Package sinks implements progress.Sink consumers for job events: structured
// logs, Prometheus collectors, a run repository, and a message publisher.
package sinks
