package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/jobscout/internal/progress"
)

// PrometheusSink tracks in-flight runs and their latest progress.
type PrometheusSink struct {
	runsStarted prometheus.Counter
	runsRunning prometheus.Gauge
	runProgress *prometheus.GaugeVec
	matches     prometheus.Histogram

	mu      sync.Mutex
	running map[string]struct{}
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobscout_runs_started_total",
			Help: "Pipeline runs that started.",
		}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobscout_runs_running",
			Help: "Pipeline runs currently in flight.",
		}),
		runProgress: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jobscout_run_progress_percent",
			Help: "Latest reported progress per in-flight task.",
		}, []string{"task_id"}),
		matches: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jobscout_run_matches",
			Help:    "Matching postings per completed run.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		running: make(map[string]struct{}),
	}
	for _, c := range []prometheus.Collector{s.runsStarted, s.runsRunning, s.runProgress, s.matches} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume implements progress.Sink.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
			if _, ok := s.running[evt.TaskID]; !ok {
				s.running[evt.TaskID] = struct{}{}
				s.runsRunning.Inc()
			}
		case progress.StageProgress:
			if _, ok := s.running[evt.TaskID]; ok {
				s.runProgress.WithLabelValues(evt.TaskID).Set(float64(evt.Percent))
			}
		case progress.StageRunDone, progress.StageRunError:
			if evt.Stage == progress.StageRunDone {
				s.matches.Observe(float64(evt.Count))
			}
			if _, ok := s.running[evt.TaskID]; ok {
				delete(s.running, evt.TaskID)
				s.runsRunning.Dec()
				s.runProgress.DeleteLabelValues(evt.TaskID)
			}
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
