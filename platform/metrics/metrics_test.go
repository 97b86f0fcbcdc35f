package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDealMetricsCountsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDealMetrics(reg)

	m.ObserveEvent("quote_sent", ResultApplied, 10*time.Millisecond)
	m.ObserveEvent("quote_sent", ResultReplayed, time.Millisecond)
	m.ObserveEvent("quote_sent", ResultReplayed, time.Millisecond)
	m.AutoClosed()

	if got := testutil.ToFloat64(m.eventsProcessed.WithLabelValues("quote_sent", ResultReplayed)); got != 2 {
		t.Fatalf("expected 2 replays, got %v", got)
	}
	if got := testutil.ToFloat64(m.autoClosed); got != 1 {
		t.Fatalf("expected 1 auto close, got %v", got)
	}
}

func TestNilDealMetricsIsSafe(t *testing.T) {
	var m *DealMetrics
	m.ObserveEvent("quote_sent", ResultApplied, time.Second)
	m.DealCreated()
	m.AutoClosed()
	m.IdempotencyConflict()
	m.DedupeRetry()
}
