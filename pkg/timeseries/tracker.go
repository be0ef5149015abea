// Package timeseries converts monotonic TestMetrics snapshots into
// rate-based TimeSeriesPoints and retains a bounded ring of the most
// recent ones for charting.
package timeseries

import (
	"sync"
	"time"

	"github.com/loadpulse/loadpulse/pkg/types"
)

// ringCapacity bounds retained points to at most 100 per spec.md §4.C.
const ringCapacity = 100

// Tracker derives TimeSeriesPoints from successive TestMetrics snapshots
// and retains the last ringCapacity of them, oldest evicted first.
type Tracker struct {
	mu           sync.Mutex
	prevMetrics  *types.TestMetrics
	prevEmitTime time.Time
	startTime    time.Time
	ring         [ringCapacity]types.TimeSeriesPoint
	head         int
	size         int
}

// New returns a freshly reset Tracker.
func New() *Tracker {
	t := &Tracker{}
	t.Reset()
	return t
}

// Reset clears all tracked state; called at test start.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prevMetrics = nil
	now := time.Now()
	t.prevEmitTime = now
	t.startTime = now
	t.head = 0
	t.size = 0
	t.ring = [ringCapacity]types.TimeSeriesPoint{}
}

// Observe derives a TimeSeriesPoint from the delta between metrics and
// the previous snapshot, retains it in the ring, and returns it.
func (t *Tracker) Observe(metrics types.TestMetrics) types.TimeSeriesPoint {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()

	var deltaRequests int64
	if t.prevMetrics != nil {
		deltaRequests = metrics.RequestsCompleted - t.prevMetrics.RequestsCompleted
	}

	var deltaSeconds float64
	if !t.prevEmitTime.IsZero() {
		deltaSeconds = now.Sub(t.prevEmitTime).Seconds()
	}
	if deltaSeconds <= 0 {
		deltaSeconds = now.Sub(t.startTime).Seconds()
	}

	var rps float64
	if deltaSeconds > 0 {
		rps = float64(deltaRequests) / deltaSeconds
	}

	point := types.TimeSeriesPoint{
		TimestampMs:           now.UnixMilli(),
		RequestsPerSecond:     rps,
		AverageResponseTimeMs: metrics.AverageResponseTimeMs,
		ErrorRate:             metrics.ErrorRate,
	}

	t.append(point)
	prev := metrics
	t.prevMetrics = &prev
	t.prevEmitTime = now

	return point
}

// append pushes point into the ring, evicting the oldest entry on overflow.
func (t *Tracker) append(point types.TimeSeriesPoint) {
	idx := (t.head + t.size) % ringCapacity
	if t.size < ringCapacity {
		t.ring[idx] = point
		t.size++
		return
	}
	t.ring[t.head] = point
	t.head = (t.head + 1) % ringCapacity
}

// History returns the currently retained points in chronological order.
func (t *Tracker) History() []types.TimeSeriesPoint {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]types.TimeSeriesPoint, t.size)
	for i := 0; i < t.size; i++ {
		out[i] = t.ring[(t.head+i)%ringCapacity]
	}
	return out
}
