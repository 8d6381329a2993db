// Package metrics defines the index worker's prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"pyrock/internal/domain"
)

// Walk holds the metrics of one index worker run.
type Walk struct {
	Registry *prometheus.Registry

	ModulesVisited  prometheus.Counter
	ImportFailures  prometheus.Counter
	Denylisted      prometheus.Counter
	EntriesRecorded prometheus.Gauge
	WalkDuration    prometheus.Histogram
	LastSuccess     prometheus.Gauge
}

func NewWalk() *Walk {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Walk{
		Registry: reg,
		ModulesVisited: f.NewCounter(prometheus.CounterOpts{
			Name: "pyrock_modules_visited_total",
			Help: "Modules opened during the walk.",
		}),
		ImportFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "pyrock_import_failures_total",
			Help: "Modules that failed to open.",
		}),
		Denylisted: f.NewCounter(prometheus.CounterOpts{
			Name: "pyrock_denylisted_modules_total",
			Help: "Top-level modules skipped by the denylist.",
		}),
		EntriesRecorded: f.NewGauge(prometheus.GaugeOpts{
			Name: "pyrock_index_entries",
			Help: "Entries in the saved import index.",
		}),
		WalkDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pyrock_walk_seconds",
			Help:    "Time spent walking the module tree.",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
		}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "pyrock_last_success_timestamp_seconds",
			Help: "Unix time of the last successful index build.",
		}),
	}
}

// Observe records the totals of a finished walk.
func (w *Walk) Observe(stats domain.WalkStats, took time.Duration) {
	w.ModulesVisited.Add(float64(stats.ModulesOpened))
	w.ImportFailures.Add(float64(stats.ImportFailures))
	w.Denylisted.Add(float64(stats.Denylisted))
	w.EntriesRecorded.Set(float64(stats.EntriesRecorded))
	w.WalkDuration.Observe(took.Seconds())
}

// MarkSuccess sets the last-success timestamp to now.
func (w *Walk) MarkSuccess() {
	w.LastSuccess.SetToCurrentTime()
}

// WriteTextfile writes the metrics in the node-exporter textfile format.
func (w *Walk) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, w.Registry)
}
