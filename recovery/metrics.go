package recovery

import (
	"sync"
	"time"
)

// Metrics aggregates process-wide recovery counters. Initialized at engine
// construction, mutated on every handled error, and reset only by explicit
// caller action. Not persisted across restarts.
type Metrics struct {
	mu                    sync.Mutex
	totalErrors           int64
	errorsByKind          map[Kind]int64
	errorsByModel         map[string]int64
	recoveryAttempts      int64
	successfulRecoveries  int64
	totalRecoveryDuration time.Duration
}

// MetricsSnapshot is a deep-copied, read-only view of the counters.
type MetricsSnapshot struct {
	TotalErrors             int64
	ErrorsByKind            map[Kind]int64
	ErrorsByModel           map[string]int64
	RecoveryAttempts        int64
	SuccessfulRecoveries    int64
	AverageRecoveryDuration time.Duration
}

func newMetrics() *Metrics {
	return &Metrics{
		errorsByKind:  make(map[Kind]int64),
		errorsByModel: make(map[string]int64),
	}
}

func (m *Metrics) recordError(record *ErrorRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalErrors++
	m.errorsByKind[record.Kind]++
	if record.OriginModel != "" {
		m.errorsByModel[record.OriginModel]++
	}
}

func (m *Metrics) recordAttempt() {
	m.mu.Lock()
	m.recoveryAttempts++
	m.mu.Unlock()
}

func (m *Metrics) recordRecovery(duration time.Duration) {
	m.mu.Lock()
	m.successfulRecoveries++
	m.totalRecoveryDuration += duration
	m.mu.Unlock()
}

// Snapshot returns deep copies of all counters; mutating the returned maps
// does not affect the live metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	byKind := make(map[Kind]int64, len(m.errorsByKind))
	for k, v := range m.errorsByKind {
		byKind[k] = v
	}
	byModel := make(map[string]int64, len(m.errorsByModel))
	for k, v := range m.errorsByModel {
		byModel[k] = v
	}

	var avg time.Duration
	if m.successfulRecoveries > 0 {
		avg = m.totalRecoveryDuration / time.Duration(m.successfulRecoveries)
	}

	return MetricsSnapshot{
		TotalErrors:             m.totalErrors,
		ErrorsByKind:            byKind,
		ErrorsByModel:           byModel,
		RecoveryAttempts:        m.recoveryAttempts,
		SuccessfulRecoveries:    m.successfulRecoveries,
		AverageRecoveryDuration: avg,
	}
}

// Reset zeroes every counter.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalErrors = 0
	m.errorsByKind = make(map[Kind]int64)
	m.errorsByModel = make(map[string]int64)
	m.recoveryAttempts = 0
	m.successfulRecoveries = 0
	m.totalRecoveryDuration = 0
}
