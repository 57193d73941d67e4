package dtpack

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the request-latency histogram buckets in
// nanoseconds, covering 1us to 10s with logarithmic spacing. These back
// Metrics' cheap in-process snapshot; internal/obsmetrics keeps the richer
// prometheus histogram for external scraping.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Metrics is a Context-scoped bundle of lock-free counters a caller can
// read synchronously without going through a prometheus registry —
// cheap enough to check on every Request.Wait if a caller wants to.
type Metrics struct {
	PackOps       atomic.Uint64
	UnpackOps     atomic.Uint64
	AccumulateOps atomic.Uint64

	PackBytes   atomic.Uint64
	UnpackBytes atomic.Uint64

	H2HOps     atomic.Uint64
	GPUOps     atomic.Uint64
	FailedOps  atomic.Uint64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
}

// NewMetrics constructs a Metrics bundle stamped with the current time.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// recordPack records a pack operation's byte count and latency. H2H packs
// are recorded after the copy; GPU-routed packs are recorded when they are
// enqueued, so their latency covers only the enqueue.
func (m *Metrics) recordPack(bytes uint64, latency time.Duration, h2h, failed bool) {
	m.PackOps.Add(1)
	m.PackBytes.Add(bytes)
	m.recordCommon(latency, h2h, failed)
}

// recordUnpack records an unpack or accumulate-unpack operation, with the
// same timing as recordPack.
func (m *Metrics) recordUnpack(bytes uint64, latency time.Duration, h2h, failed bool, accumulate bool) {
	m.UnpackOps.Add(1)
	if accumulate {
		m.AccumulateOps.Add(1)
	}
	m.UnpackBytes.Add(bytes)
	m.recordCommon(latency, h2h, failed)
}

func (m *Metrics) recordCommon(latency time.Duration, h2h, failed bool) {
	if h2h {
		m.H2HOps.Add(1)
	} else {
		m.GPUOps.Add(1)
	}
	if failed {
		m.FailedOps.Add(1)
	}
	ns := uint64(latency.Nanoseconds())
	m.TotalLatencyNs.Add(ns)
	m.OpCount.Add(1)
	for i, bound := range LatencyBuckets {
		if ns <= bound {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Snapshot is a point-in-time, non-atomic copy of Metrics suitable for
// logging or a CLI's printed summary.
type Snapshot struct {
	PackOps, UnpackOps, AccumulateOps uint64
	PackBytes, UnpackBytes            uint64
	H2HOps, GPUOps, FailedOps         uint64
	MeanLatencyNs                     uint64
	Uptime                            time.Duration
}

// Snapshot reads every counter once and returns a consistent-enough copy
// for display; individual fields may race by a handful of nanoseconds
// against concurrent operations, which is acceptable for observability.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		PackOps:       m.PackOps.Load(),
		UnpackOps:     m.UnpackOps.Load(),
		AccumulateOps: m.AccumulateOps.Load(),
		PackBytes:     m.PackBytes.Load(),
		UnpackBytes:   m.UnpackBytes.Load(),
		H2HOps:        m.H2HOps.Load(),
		GPUOps:        m.GPUOps.Load(),
		FailedOps:     m.FailedOps.Load(),
		Uptime:        time.Since(time.Unix(0, m.StartTime.Load())),
	}
	if n := m.OpCount.Load(); n > 0 {
		s.MeanLatencyNs = m.TotalLatencyNs.Load() / n
	}
	return s
}
