package rpc

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics accumulates per-operation request/error counts and total
// latency, the same atomic-counter shape internal/command.LeaderElector
// uses for its own election state; a mutex guards the per-operation map
// and is taken on every RecordRequest and RecordError as well as by
// Snapshot.
type Metrics struct {
	requests atomic.Int64
	errors   atomic.Int64

	mu   sync.Mutex
	byOp map[string]*opCounters
}

type opCounters struct {
	requests     atomic.Int64
	errors       atomic.Int64
	totalLatency atomic.Int64 // nanoseconds
}

// NewMetrics builds an empty Metrics.
func NewMetrics() *Metrics {
	return &Metrics{byOp: make(map[string]*opCounters)}
}

// RecordRequest records one completed call to op and how long it took.
func (m *Metrics) RecordRequest(op string, latency time.Duration) {
	m.requests.Add(1)
	c := m.counters(op)
	c.requests.Add(1)
	c.totalLatency.Add(int64(latency))
}

// RecordError records one failed call to op, in addition to whatever
// RecordRequest already recorded for it.
func (m *Metrics) RecordError(op string) {
	m.errors.Add(1)
	m.counters(op).errors.Add(1)
}

func (m *Metrics) counters(op string) *opCounters {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byOp[op]
	if !ok {
		c = &opCounters{}
		m.byOp[op] = c
	}
	return c
}

// OperationStats summarizes one operation's recorded activity.
type OperationStats struct {
	Requests      int64         `json:"requests"`
	Errors        int64         `json:"errors"`
	AverageLatency time.Duration `json:"average_latency"`
}

// MetricsSnapshot is a point-in-time copy of Metrics, safe to marshal.
type MetricsSnapshot struct {
	TotalRequests int64                      `json:"total_requests"`
	TotalErrors   int64                      `json:"total_errors"`
	ByOperation   map[string]OperationStats `json:"by_operation"`
}

// Snapshot copies the current counters. The copy is not atomic across
// operations (a request recorded mid-snapshot may or may not be
// included), which is fine for a metrics endpoint.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	byOp := make(map[string]OperationStats, len(m.byOp))
	for op, c := range m.byOp {
		reqs := c.requests.Load()
		var avg time.Duration
		if reqs > 0 {
			avg = time.Duration(c.totalLatency.Load() / reqs)
		}
		byOp[op] = OperationStats{
			Requests:      reqs,
			Errors:        c.errors.Load(),
			AverageLatency: avg,
		}
	}
	return MetricsSnapshot{
		TotalRequests: m.requests.Load(),
		TotalErrors:   m.errors.Load(),
		ByOperation:   byOp,
	}
}
