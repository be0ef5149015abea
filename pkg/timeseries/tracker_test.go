package timeseries

import (
	"testing"
	"time"

	"github.com/loadpulse/loadpulse/pkg/types"
)

func TestTrackerObserveFirstPointHasZeroDeltaBasedRPS(t *testing.T) {
	tr := New()
	point := tr.Observe(types.TestMetrics{RequestsCompleted: 0, AverageResponseTimeMs: 0})
	if point.RequestsPerSecond != 0 {
		t.Errorf("expected 0 rps on first observation with 0 completed, got %f", point.RequestsPerSecond)
	}
}

func TestTrackerObserveComputesDeltaBasedRPS(t *testing.T) {
	tr := New()
	tr.Observe(types.TestMetrics{RequestsCompleted: 10})

	time.Sleep(50 * time.Millisecond)
	point := tr.Observe(types.TestMetrics{RequestsCompleted: 20, AverageResponseTimeMs: 5, ErrorRate: 1})

	if point.RequestsPerSecond <= 0 {
		t.Errorf("expected positive rps after 10 more completions, got %f", point.RequestsPerSecond)
	}
	if point.AverageResponseTimeMs != 5 || point.ErrorRate != 1 {
		t.Errorf("expected carried-through fields, got %+v", point)
	}
}

func TestTrackerHistoryEvictsOldestBeyondCapacity(t *testing.T) {
	tr := New()
	for i := 0; i < ringCapacity+10; i++ {
		tr.Observe(types.TestMetrics{RequestsCompleted: int64(i), ErrorRate: float64(i)})
	}
	history := tr.History()
	if len(history) != ringCapacity {
		t.Fatalf("expected history capped at %d, got %d", ringCapacity, len(history))
	}
	if history[0].ErrorRate != 10 || history[ringCapacity-1].ErrorRate != float64(ringCapacity+9) {
		t.Errorf("expected the 10 oldest points evicted, got first=%v last=%v", history[0].ErrorRate, history[ringCapacity-1].ErrorRate)
	}
}

func TestTrackerResetClearsState(t *testing.T) {
	tr := New()
	tr.Observe(types.TestMetrics{RequestsCompleted: 5})
	tr.Reset()
	if len(tr.History()) != 0 {
		t.Error("expected empty history after Reset")
	}
	point := tr.Observe(types.TestMetrics{RequestsCompleted: 5})
	if point.RequestsPerSecond != 0 {
		t.Errorf("expected 0 rps for first observation after reset, got %f", point.RequestsPerSecond)
	}
}
