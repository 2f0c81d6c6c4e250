package infra

import (
	"sync/atomic"
	"time"

	"virtual_market/internal/domain"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Market
	quotesServed atomic.Uint64
	driftSteps   atomic.Uint64

	// Orders
	buysFilled        atomic.Uint64
	sellsFilled       atomic.Uint64
	ordersRejected    atomic.Uint64
	compensations     atomic.Uint64
	reconciliationErr atomic.Uint64
	storeErrors       atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	inFlightRequests atomic.Int32
}

// RecordQuote records a served quote.
func (m *Metrics) RecordQuote() {
	m.quotesServed.Add(1)
}

// RecordDriftSteps records applied price drift steps.
func (m *Metrics) RecordDriftSteps(n int) {
	m.driftSteps.Add(uint64(n))
}

// RecordOrderFilled records a filled order with its latency.
func (m *Metrics) RecordOrderFilled(side string, latency time.Duration) {
	if side == domain.SideSell {
		m.sellsFilled.Add(1)
	} else {
		m.buysFilled.Add(1)
	}
	m.latencySumNs.Add(latency.Nanoseconds())
	m.latencyCount.Add(1)
}

// RecordRejection records an order refused for business reasons.
func (m *Metrics) RecordRejection() {
	m.ordersRejected.Add(1)
}

// RecordCompensation records a refunded debit.
func (m *Metrics) RecordCompensation() {
	m.compensations.Add(1)
}

// RecordReconciliationFailure records an order left applied on one side only.
func (m *Metrics) RecordReconciliationFailure() {
	m.reconciliationErr.Add(1)
}

// RecordStoreError records a failed store call.
func (m *Metrics) RecordStoreError() {
	m.storeErrors.Add(1)
}

// IncrementInFlight increments in-flight requests by 1.
func (m *Metrics) IncrementInFlight() {
	m.inFlightRequests.Add(1)
}

// DecrementInFlight decrements in-flight requests by 1.
func (m *Metrics) DecrementInFlight() {
	m.inFlightRequests.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	QuotesServed           uint64    `json:"quotesServed"`
	DriftSteps             uint64    `json:"driftSteps"`
	BuysFilled             uint64    `json:"buysFilled"`
	SellsFilled            uint64    `json:"sellsFilled"`
	OrdersRejected         uint64    `json:"ordersRejected"`
	Compensations          uint64    `json:"compensations"`
	ReconciliationFailures uint64    `json:"reconciliationFailures"`
	StoreErrors            uint64    `json:"storeErrors"`
	AvgOrderLatencyNs      int64     `json:"avgOrderLatencyNs"`
	InFlightRequests       int32     `json:"inFlightRequests"`
	Timestamp              time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		QuotesServed:           m.quotesServed.Load(),
		DriftSteps:             m.driftSteps.Load(),
		BuysFilled:             m.buysFilled.Load(),
		SellsFilled:            m.sellsFilled.Load(),
		OrdersRejected:         m.ordersRejected.Load(),
		Compensations:          m.compensations.Load(),
		ReconciliationFailures: m.reconciliationErr.Load(),
		StoreErrors:            m.storeErrors.Load(),
		AvgOrderLatencyNs:      avgLatency,
		InFlightRequests:       m.inFlightRequests.Load(),
		Timestamp:              time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.quotesServed.Store(0)
	m.driftSteps.Store(0)
	m.buysFilled.Store(0)
	m.sellsFilled.Store(0)
	m.ordersRejected.Store(0)
	m.compensations.Store(0)
	m.reconciliationErr.Store(0)
	m.storeErrors.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.inFlightRequests.Store(0)
}
