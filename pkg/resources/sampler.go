// Package resources samples ambient process health — goroutine count,
// GOMAXPROCS, and heap figures — for the control plane's metrics
// endpoint. It is operational visibility alongside a test run, not part
// of the driver/aggregator core.
package resources

import (
	"runtime"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Snapshot is one point-in-time read of process resource usage.
type Snapshot struct {
	Goroutines  int     `json:"goroutines"`
	GOMAXPROCS  int     `json:"gomaxprocs"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	HeapSysMB   float64 `json:"heap_sys_mb"`
	NumGC       uint32  `json:"num_gc"`
}

// Sampler produces resource Snapshots.
type Sampler interface {
	Sample() Snapshot
}

// RuntimeSampler reads runtime.NumGoroutine/GOMAXPROCS/MemStats, capped
// by rate.Sometimes to at most once per 250ms: GET /api/metrics can be
// hammered by a dashboard poller, and runtime.ReadMemStats briefly stops
// the world, so repeated calls within the window replay the last
// reading instead of resampling.
type RuntimeSampler struct {
	mu       sync.Mutex
	sometime rate.Sometimes
	last     Snapshot
}

// NewRuntimeSampler returns a sampler gated to once per 250ms.
func NewRuntimeSampler() *RuntimeSampler {
	return &RuntimeSampler{
		sometime: rate.Sometimes{Interval: sampleInterval},
	}
}

const sampleInterval = 250 * time.Millisecond

func (s *RuntimeSampler) Sample() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sometime.Do(func() {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		s.last = Snapshot{
			Goroutines:  runtime.NumGoroutine(),
			GOMAXPROCS:  runtime.GOMAXPROCS(0),
			HeapAllocMB: float64(mem.HeapAlloc) / (1024 * 1024),
			HeapSysMB:   float64(mem.HeapSys) / (1024 * 1024),
			NumGC:       mem.NumGC,
		}
	})
	return s.last
}
