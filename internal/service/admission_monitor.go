package service

import (
	"slices"
	"sync"
	"time"
)

// AdmissionResult classifies how an Admit call ended
type AdmissionResult string

const (
	AdmissionAllowed AdmissionResult = "allowed"
	AdmissionDenied  AdmissionResult = "denied"
	AdmissionBusy    AdmissionResult = "busy"
	AdmissionFailed  AdmissionResult = "failed"
)

// slowLockWait marks a lock wait worth counting separately
const slowLockWait = 100 * time.Millisecond

// AdmissionMonitor tracks admission outcomes and how long callers waited for
// the per-account lock. It keeps the last maxSamples waits.
type AdmissionMonitor struct {
	mu         sync.Mutex
	counts     map[AdmissionResult]int64
	waits      []time.Duration
	slowWaits  int64
	maxSamples int
}

// NewAdmissionMonitor creates a new admission monitor
func NewAdmissionMonitor() *AdmissionMonitor {
	return &AdmissionMonitor{
		counts:     make(map[AdmissionResult]int64),
		waits:      make([]time.Duration, 0, 1000),
		maxSamples: 1000,
	}
}

// Record adds one admission attempt
func (m *AdmissionMonitor) Record(result AdmissionResult, wait time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counts[result]++
	m.waits = append(m.waits, wait)
	if len(m.waits) > m.maxSamples {
		m.waits = m.waits[len(m.waits)-m.maxSamples:]
	}
	if wait > slowLockWait {
		m.slowWaits++
	}
}

// AdmissionStats contains admission statistics
type AdmissionStats struct {
	Total         int64   `json:"total"`
	Allowed       int64   `json:"allowed"`
	Denied        int64   `json:"denied"`
	Busy          int64   `json:"busy"`
	Failed        int64   `json:"failed"`
	SlowWaits     int64   `json:"slowWaits"`
	AvgLockWaitMs float64 `json:"avgLockWaitMs"`
	P95LockWaitMs float64 `json:"p95LockWaitMs"`
	P99LockWaitMs float64 `json:"p99LockWaitMs"`
}

// GetStats returns current admission statistics
func (m *AdmissionMonitor) GetStats() *AdmissionStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &AdmissionStats{
		Allowed:   m.counts[AdmissionAllowed],
		Denied:    m.counts[AdmissionDenied],
		Busy:      m.counts[AdmissionBusy],
		Failed:    m.counts[AdmissionFailed],
		SlowWaits: m.slowWaits,
	}
	stats.Total = stats.Allowed + stats.Denied + stats.Busy + stats.Failed

	if len(m.waits) == 0 {
		return stats
	}

	var total time.Duration
	for _, d := range m.waits {
		total += d
	}
	stats.AvgLockWaitMs = ms(total) / float64(len(m.waits))

	sorted := slices.Clone(m.waits)
	slices.Sort(sorted)
	stats.P95LockWaitMs = ms(sorted[int(float64(len(sorted)-1)*0.95)])
	stats.P99LockWaitMs = ms(sorted[int(float64(len(sorted)-1)*0.99)])

	return stats
}

// Reset clears all counters
func (m *AdmissionMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counts = make(map[AdmissionResult]int64)
	m.waits = make([]time.Duration, 0, 1000)
	m.slowWaits = 0
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
