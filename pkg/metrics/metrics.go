// Package metrics provides Prometheus metrics for cleanup runs.
//
// Metrics are registered on a caller-supplied registry; the CLI serves them
// on /metrics when --metrics-addr is set.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "bulkclean"
	subsystem = "run"
)

// Metrics holds the collectors updated by a Cleaner.
type Metrics struct {
	// KeysScanned counts keys returned by SCAN, duplicates included.
	KeysScanned prometheus.Counter

	// KeysMatched counts scanned keys that matched the pattern set.
	KeysMatched prometheus.Counter

	// KeysDeleted counts keys the store reported as removed.
	KeysDeleted prometheus.Counter

	// Batches counts SCAN steps.
	Batches prometheus.Counter

	// CheckpointSaves counts checkpoint writes by outcome (ok, error).
	CheckpointSaves *prometheus.CounterVec

	// Progress is the converted cursor position of the current run.
	Progress prometheus.Gauge

	// BatchDuration observes the wall time of one scan-filter-delete step.
	BatchDuration prometheus.Histogram
}

// New creates metrics registered with reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		KeysScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "keys_scanned_total",
			Help:      "Keys returned by SCAN, including duplicates.",
		}),
		KeysMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "keys_matched_total",
			Help:      "Scanned keys matching the pattern set.",
		}),
		KeysDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "keys_deleted_total",
			Help:      "Keys removed from the store.",
		}),
		Batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batches_total",
			Help:      "SCAN steps executed.",
		}),
		CheckpointSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "checkpoint_saves_total",
			Help:      "Checkpoint writes by result.",
		}, []string{"result"}),
		Progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cursor_progress",
			Help:      "Bit-reversed SCAN cursor of the current run.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batch_duration_seconds",
			Help:      "Duration of one scan, filter and delete step.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.KeysScanned,
			m.KeysMatched,
			m.KeysDeleted,
			m.Batches,
			m.CheckpointSaves,
			m.Progress,
			m.BatchDuration,
		)
	}
	return m
}

// RecordBatch records one SCAN step.
func (m *Metrics) RecordBatch(scanned, matched int, seconds float64) {
	if m == nil {
		return
	}
	m.Batches.Inc()
	m.KeysScanned.Add(float64(scanned))
	m.KeysMatched.Add(float64(matched))
	m.BatchDuration.Observe(seconds)
}

// RecordDeleted adds n deleted keys.
func (m *Metrics) RecordDeleted(n int64) {
	if m == nil {
		return
	}
	m.KeysDeleted.Add(float64(n))
}

// RecordProgress sets the progress gauge.
func (m *Metrics) RecordProgress(p uint64) {
	if m == nil {
		return
	}
	m.Progress.Set(float64(p))
}

// RecordCheckpoint counts a checkpoint write.
func (m *Metrics) RecordCheckpoint(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CheckpointSaves.WithLabelValues(result).Inc()
}
