package infra

import (
	"testing"
	"time"

	"virtual_market/internal/domain"
)

func TestMetrics_RecordOrderFilled(t *testing.T) {
	m := &Metrics{}

	m.RecordOrderFilled(domain.SideBuy, 1000)
	m.RecordOrderFilled(domain.SideBuy, 2000)
	m.RecordOrderFilled(domain.SideSell, 3000*time.Nanosecond)

	snap := m.Snapshot()

	if snap.BuysFilled != 2 {
		t.Errorf("Expected 2 buys, got %d", snap.BuysFilled)
	}
	if snap.SellsFilled != 1 {
		t.Errorf("Expected 1 sell, got %d", snap.SellsFilled)
	}

	// Average latency: (1000 + 2000 + 3000) / 3 = 2000
	if snap.AvgOrderLatencyNs != 2000 {
		t.Errorf("Expected avg latency 2000, got %d", snap.AvgOrderLatencyNs)
	}
}

func TestMetrics_MarketActivity(t *testing.T) {
	m := &Metrics{}

	m.RecordQuote()
	m.RecordQuote()
	m.RecordDriftSteps(5)
	m.RecordDriftSteps(1)

	snap := m.Snapshot()
	if snap.QuotesServed != 2 {
		t.Errorf("Expected 2 quotes, got %d", snap.QuotesServed)
	}
	if snap.DriftSteps != 6 {
		t.Errorf("Expected 6 drift steps, got %d", snap.DriftSteps)
	}
}

func TestMetrics_InFlight(t *testing.T) {
	m := &Metrics{}

	m.IncrementInFlight()
	m.IncrementInFlight()
	m.IncrementInFlight()

	snap := m.Snapshot()
	if snap.InFlightRequests != 3 {
		t.Errorf("Expected 3 in-flight requests, got %d", snap.InFlightRequests)
	}

	m.DecrementInFlight()
	snap = m.Snapshot()
	if snap.InFlightRequests != 2 {
		t.Errorf("Expected 2 in-flight requests, got %d", snap.InFlightRequests)
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := &Metrics{}

	m.RecordOrderFilled(domain.SideBuy, 1000)
	m.RecordRejection()
	m.RecordCompensation()
	m.RecordReconciliationFailure()
	m.RecordStoreError()
	m.IncrementInFlight()

	m.Reset()
	snap := m.Snapshot()

	if snap.BuysFilled != 0 {
		t.Error("Expected 0 buys after reset")
	}
	if snap.OrdersRejected != 0 || snap.Compensations != 0 || snap.ReconciliationFailures != 0 {
		t.Error("Expected order counters cleared after reset")
	}
	if snap.StoreErrors != 0 {
		t.Error("Expected 0 store errors after reset")
	}
	if snap.InFlightRequests != 0 {
		t.Error("Expected 0 in-flight requests after reset")
	}
}
