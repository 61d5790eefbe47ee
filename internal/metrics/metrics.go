// Package metrics records thumbnail pass outcomes as Prometheus metrics.
//
// Passes are short-lived, so instead of serving /metrics the recorder keeps
// its own registry and can dump it in the node_exporter textfile format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tendant/site-thumbnailer/internal/process"
)

// Recorder implements process.Observer.
type Recorder struct {
	registry *prometheus.Registry

	EntriesTotal      *prometheus.CounterVec
	PassesTotal       prometheus.Counter
	PlannedEntries    prometheus.Gauge
	LastPassDuration  prometheus.Gauge
	LastPassTimestamp prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		EntriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "site_thumbnailer_entries_total",
				Help: "Total number of planned thumbnails by resize and outcome",
			},
			[]string{"resize", "outcome"},
		),
		PassesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "site_thumbnailer_passes_total",
				Help: "Total number of completed thumbnail passes",
			},
		),
		PlannedEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "site_thumbnailer_last_pass_planned_entries",
				Help: "Number of thumbnails planned by the last pass",
			},
		),
		LastPassDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "site_thumbnailer_last_pass_duration_seconds",
				Help: "Duration of the last thumbnail pass in seconds",
			},
		),
		LastPassTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "site_thumbnailer_last_pass_timestamp_seconds",
				Help: "Unix timestamp of the last completed thumbnail pass",
			},
		),
	}
	r.registry.MustRegister(r.EntriesTotal, r.PassesTotal, r.PlannedEntries, r.LastPassDuration, r.LastPassTimestamp)
	return r
}

// Registry exposes the private registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) ObserveEntry(_ string, e *process.Entry) {
	r.EntriesTotal.WithLabelValues(e.Resize, string(e.State)).Inc()
}

func (r *Recorder) ObservePass(rep *process.Report) {
	r.PassesTotal.Inc()
	r.PlannedEntries.Set(float64(len(rep.Entries)))
	r.LastPassDuration.Set(rep.Duration.Seconds())
	r.LastPassTimestamp.Set(float64(rep.StartedAt.Add(rep.Duration).Unix()))
}

// WriteTextfile writes all metrics to path, replacing it atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
