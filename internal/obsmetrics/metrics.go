// Package obsmetrics wires pack/unpack/progress-engine observability into a
// prometheus registry: bytes moved, chunk counts, slab high-water-mark, and
// request latency. Kept as its own small package (rather than scattering
// prometheus calls through internal/progress) so a caller can register a
// custom *prometheus.Registry or fall back to the default global one.
package obsmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the prometheus counters, gauge and histogram a Context
// registers. The progress engine's issue/reap path updates ChunksIssued,
// ChunksRetired, SlabHighWater and RequestsFailed; PackBytes, UnpackBytes
// and RequestLatency are registered but nothing in this module updates
// them.
type Metrics struct {
	PackBytes   prometheus.Counter
	UnpackBytes prometheus.Counter
	ChunksIssued prometheus.Counter
	ChunksRetired prometheus.Counter
	SlabHighWater *prometheus.GaugeVec
	RequestLatency prometheus.Histogram
	RequestsFailed prometheus.Counter
}

// New constructs a Metrics bundle and registers it with reg. Passing nil
// registers with prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		PackBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dtpack",
			Name:      "pack_bytes_total",
			Help:      "Total bytes packed from a typed buffer into a packed stream.",
		}),
		UnpackBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dtpack",
			Name:      "unpack_bytes_total",
			Help:      "Total bytes unpacked from a packed stream into a typed buffer.",
		}),
		ChunksIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dtpack",
			Name:      "chunks_issued_total",
			Help:      "Total subrequest chunks issued by the progress engine.",
		}),
		ChunksRetired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dtpack",
			Name:      "chunks_retired_total",
			Help:      "Total subrequest chunks retired (events observed complete) by the progress engine.",
		}),
		SlabHighWater: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dtpack",
			Name:      "slab_high_water_bytes",
			Help:      "High-water mark of bytes reserved in a temp-buffer slab.",
		}, []string{"slab"}),
		RequestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dtpack",
			Name:      "request_latency_seconds",
			Help:      "Wall-clock time from request issue to request_wait completion.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
		RequestsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dtpack",
			Name:      "requests_failed_total",
			Help:      "Total requests that completed with a non-nil backend or internal error.",
		}),
	}

	reg.MustRegister(
		m.PackBytes, m.UnpackBytes, m.ChunksIssued, m.ChunksRetired,
		m.SlabHighWater, m.RequestLatency, m.RequestsFailed,
	)
	return m
}

// ObserveLatency records the duration between issue and completion.
func (m *Metrics) ObserveLatency(d time.Duration) {
	m.RequestLatency.Observe(d.Seconds())
}

// ObserveSlabHighWater sets the gauge for a named slab
// ("gpu:<driver>:<device>" or "host:<driver>") to bytes, unconditionally:
// it does not compare against the gauge's existing value. The progress
// engine calls it with the slab's tail offset after every reservation, so
// the gauge holds the most recent tail offset, not a running maximum.
func (m *Metrics) ObserveSlabHighWater(slab string, bytes uint64) {
	m.SlabHighWater.WithLabelValues(slab).Set(float64(bytes))
}
