// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "loglens"

// Result labels for the lines counter.
const (
	ResultParsed = "parsed"
	ResultFailed = "failed"
)

// Pipeline holds the collectors updated by a running pipeline.
// A nil *Pipeline is valid and records nothing.
type Pipeline struct {
	lines       *prometheus.CounterVec
	checkpoints prometheus.Counter
	runs        *prometheus.CounterVec
	index       prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Pipeline, error) {
	m := &Pipeline{
		lines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_total",
			Help:      "Lines processed, by parse result.",
		}, []string{"result"}),
		checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_total",
			Help:      "Checkpoints written.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs, by final state.",
		}, []string{"state"}),
		index: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "checkpoint_index",
			Help:      "Line index of the most recent checkpoint.",
		}),
	}

	for _, c := range []prometheus.Collector{m.lines, m.checkpoints, m.runs, m.index} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

// Line counts one processed line.
func (m *Pipeline) Line(result string) {
	if m == nil {
		return
	}
	m.lines.WithLabelValues(result).Inc()
}

// Checkpoint records a saved checkpoint.
func (m *Pipeline) Checkpoint(index uint64) {
	if m == nil {
		return
	}
	m.checkpoints.Inc()
	m.index.Set(float64(index))
}

// Run records a finished run.
func (m *Pipeline) Run(state string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(state).Inc()
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
