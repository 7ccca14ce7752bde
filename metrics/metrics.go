// Package metrics records build outcomes.
//
// Builds usually run from cron or a post-commit hook rather than a long lived
// server, so besides the usual registry the Prometheus implementation can
// write its samples to a node_exporter textfile.
package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "zipbuilder"

// Metrics defines the build counters.
type Metrics interface {
	IncVersions(status, kind string)
	IncBatches(status string)
	ObserveArchiveBytes(n int64)
	ObserveBuildDuration(seconds float64)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncVersions(string, string)   {}
func (Noop) IncBatches(string)            {}
func (Noop) ObserveArchiveBytes(int64)    {}
func (Noop) ObserveBuildDuration(float64) {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	versions     *prometheus.CounterVec
	batches      *prometheus.CounterVec
	archiveBytes prometheus.Histogram
	duration     prometheus.Histogram

	registry *prometheus.Registry
	once     sync.Once
	err      error
}

var _ Metrics = (*Prom)(nil)

// NewProm creates collectors under namespace and registers them with a
// private registry, exposed through Registry.
func NewProm(namespace string) (*Prom, error) {
	if namespace == "" {
		namespace = Namespace
	}
	p := &Prom{
		versions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "versions_total",
			Help:      "Version builds by outcome and version kind",
		}, []string{"status", "kind"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batch builds by outcome",
		}, []string{"status"}),
		archiveBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "archive_bytes",
			Help:      "Size of written archives",
			Buckets:   prometheus.ExponentialBuckets(16*1024, 4, 8),
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Wall time of batch builds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		registry: prometheus.NewRegistry(),
	}
	if err := p.register(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Prom) register() error {
	p.once.Do(func() {
		for _, c := range []prometheus.Collector{p.versions, p.batches, p.archiveBytes, p.duration} {
			if err := p.registry.Register(c); err != nil {
				p.err = fmt.Errorf("register metrics: %w", err)
				return
			}
		}
	})
	return p.err
}

// Registry returns the registry holding the collectors.
func (p *Prom) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Prom) IncVersions(status, kind string) {
	p.versions.WithLabelValues(status, kind).Inc()
}

func (p *Prom) IncBatches(status string) {
	p.batches.WithLabelValues(status).Inc()
}

func (p *Prom) ObserveArchiveBytes(n int64) {
	p.archiveBytes.Observe(float64(n))
}

func (p *Prom) ObserveBuildDuration(seconds float64) {
	p.duration.Observe(seconds)
}

// WriteTextfile writes the current samples to path in the text exposition
// format. The file is replaced atomically.
func (p *Prom) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
