package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/asyncjob/internal/progress"
)

// PrometheusSink exports async job metrics. It owns collectors for runs
// started, finished, running, canceled, and per-run transfer volume.
type PrometheusSink struct {
	jobsStarted   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobsCanceled  prometheus.Counter
	jobRuntime    *prometheus.HistogramVec
	progressTotal prometheus.Counter
	bytesTotal    prometheus.Counter

	mu      sync.Mutex
	running map[[16]byte]int64
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "asyncjob_jobs_started_total",
			Help: "Total async jobs that have started.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asyncjob_jobs_completed_total",
			Help: "Total async jobs finished partitioned by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "asyncjob_jobs_running",
			Help: "Current number of running async jobs.",
		}),
		jobsCanceled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "asyncjob_jobs_canceled_total",
			Help: "Cancel requests accepted by running jobs.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "asyncjob_job_runtime_seconds",
			Help:    "Wall time per finished job.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		}, []string{"result"}),
		progressTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "asyncjob_progress_updates_total",
			Help: "Meter updates observed across all jobs.",
		}),
		bytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "asyncjob_bytes_processed_total",
			Help: "Bytes processed as reported by job meters.",
		}),
		running: make(map[[16]byte]int64),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobsRunning,
		s.jobsCanceled,
		s.jobRuntime,
		s.progressTotal,
		s.bytesTotal,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register job collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageJobStart:
		s.jobsStarted.Inc()
		if s.start(evt.JobID) {
			s.jobsRunning.Inc()
		}
	case progress.StageJobProgress:
		s.progressTotal.Inc()
		if delta := s.advance(evt.JobID, evt.Bytes); delta > 0 {
			s.bytesTotal.Add(float64(delta))
		}
	case progress.StageJobCancel:
		s.jobsCanceled.Inc()
	case progress.StageJobDone:
		s.finish(evt, "success")
	case progress.StageJobError:
		s.finish(evt, "error")
	}
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	s.jobsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.jobRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	s.mu.Lock()
	_, ok := s.running[evt.JobID]
	delete(s.running, evt.JobID)
	s.mu.Unlock()
	if ok {
		s.jobsRunning.Dec()
	}
}

func (s *PrometheusSink) start(id [16]byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.running[id]; ok {
		return false
	}
	s.running[id] = 0
	return true
}

// advance stores the running byte count for id and returns the increase.
// Meters restart at zero for each transfer, so a smaller value starts over.
func (s *PrometheusSink) advance(id [16]byte, bytes int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.running[id]
	if !ok {
		return 0
	}
	s.running[id] = bytes
	if bytes < last {
		return bytes
	}
	return bytes - last
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
