package report

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/systmms/felix/pkg/rotation"
)

// Metrics records run outcomes as Prometheus metrics on its own registry.
type Metrics struct {
	registry *prometheus.Registry
	textfile string

	rotations   *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	needsAction prometheus.Gauge
	lastRun     prometheus.Gauge
	lastSuccess prometheus.Gauge
}

// NewMetrics creates the metrics sink. When textfile is set every Publish
// rewrites it in the node_exporter textfile format.
func NewMetrics(textfile string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		textfile: textfile,
		rotations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "felix_rotations_total",
			Help: "Total number of identity rotations by service and status",
		}, []string{"service", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "felix_rotation_duration_seconds",
			Help:    "Duration of a single identity rotation",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
		needsAction: factory.NewGauge(prometheus.GaugeOpts{
			Name: "felix_rotations_needing_attention",
			Help: "Rotations in the last run that stopped after mutating keys",
		}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "felix_last_run_timestamp_seconds",
			Help: "Unix time the last rotation run finished",
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "felix_last_run_success",
			Help: "1 if every rotation in the last run succeeded, 0 otherwise",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Name identifies the sink in logs.
func (m *Metrics) Name() string {
	return "metrics"
}

// Publish updates the metrics from summary.
func (m *Metrics) Publish(_ context.Context, summary *rotation.Summary) error {
	attention := 0
	for _, r := range summary.Reports {
		service := r.Service
		if service == "" {
			service = "unknown"
		}
		m.rotations.WithLabelValues(service, string(r.Status)).Inc()
		m.duration.WithLabelValues(service).Observe(r.Duration().Seconds())
		if r.NeedsAttention() {
			attention++
		}
	}

	m.needsAction.Set(float64(attention))
	m.lastRun.Set(float64(summary.FinishedAt.Unix()))
	if summary.Status == rotation.AggregateSuccess {
		m.lastSuccess.Set(1)
	} else {
		m.lastSuccess.Set(0)
	}

	if m.textfile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(m.textfile, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
