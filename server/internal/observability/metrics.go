package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects in-process counters for handler operations and
// extraction outcomes.
type Metrics struct {
	mu sync.Mutex

	requestTotal  atomic.Int64
	requestFailed atomic.Int64
	recoveries    atomic.Int64
	truncations   atomic.Int64

	operations map[string]*OperationMetrics
	outcomes   map[string]int64
}

// OperationMetrics represents metrics for a single operation.
type OperationMetrics struct {
	count         atomic.Int64
	totalDuration atomic.Int64 // milliseconds
	errorCount    atomic.Int64
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		operations: make(map[string]*OperationMetrics),
		outcomes:   make(map[string]int64),
	}
}

// RecordRequest records a finished request for operation.
func (m *Metrics) RecordRequest(operation string, duration time.Duration, failed bool) {
	m.requestTotal.Add(1)
	om := m.operation(operation)
	om.count.Add(1)
	om.totalDuration.Add(duration.Milliseconds())
	if failed {
		m.requestFailed.Add(1)
		om.errorCount.Add(1)
	}
}

// RecordOutcome counts an extraction outcome.
func (m *Metrics) RecordOutcome(outcome string) {
	m.mu.Lock()
	m.outcomes[outcome]++
	m.mu.Unlock()
}

// RecordRecovery counts a follow-up completion request.
func (m *Metrics) RecordRecovery() {
	m.recoveries.Add(1)
}

// RecordTruncation counts a session token that dropped its items.
func (m *Metrics) RecordTruncation() {
	m.truncations.Add(1)
}

func (m *Metrics) operation(name string) *OperationMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	om, ok := m.operations[name]
	if !ok {
		om = &OperationMetrics{}
		m.operations[name] = om
	}
	return om
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	ops := make(map[string]*OperationSnapshot, len(m.operations))
	for name, om := range m.operations {
		count := om.count.Load()
		var avg int64
		if count > 0 {
			avg = om.totalDuration.Load() / count
		}
		ops[name] = &OperationSnapshot{
			Count:           count,
			ErrorCount:      om.errorCount.Load(),
			AverageDuration: avg,
		}
	}
	outcomes := make(map[string]int64, len(m.outcomes))
	for k, v := range m.outcomes {
		outcomes[k] = v
	}

	return &MetricsSnapshot{
		RequestTotal:  m.requestTotal.Load(),
		RequestFailed: m.requestFailed.Load(),
		Recoveries:    m.recoveries.Load(),
		Truncations:   m.truncations.Load(),
		Operations:    ops,
		Outcomes:      outcomes,
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	RequestTotal  int64                         `json:"request_total"`
	RequestFailed int64                         `json:"request_failed"`
	Recoveries    int64                         `json:"recoveries"`
	Truncations   int64                         `json:"truncations"`
	Operations    map[string]*OperationSnapshot `json:"operations"`
	Outcomes      map[string]int64              `json:"outcomes"`
}

// OperationSnapshot represents metrics for a specific operation.
type OperationSnapshot struct {
	Count           int64 `json:"count"`
	ErrorCount      int64 `json:"error_count"`
	AverageDuration int64 `json:"average_duration_ms"`
}

// SuccessRate returns the success rate as a percentage (0-100).
func (s *MetricsSnapshot) SuccessRate() float64 {
	if s.RequestTotal == 0 {
		return 100.0
	}
	return float64(s.RequestTotal-s.RequestFailed) / float64(s.RequestTotal) * 100.0
}
