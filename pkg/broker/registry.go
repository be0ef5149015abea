// Package broker holds the in-memory test-result registry, the
// single-test-running gate, and the single-slot live-telemetry viewer.
package broker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/loadpulse/loadpulse/pkg/types"
)

// Registry is a map[test_id]*TestResult behind a mutex, mirroring the
// teacher's tenant-map convention: insert on registration, update only by
// the owning controller, list as a snapshot copy.
type Registry struct {
	mu      sync.Mutex
	results map[string]*types.TestResult
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{results: make(map[string]*types.TestResult)}
}

// Insert registers a new TestResult, typically Pending/progress=0.
func (r *Registry) Insert(result types.TestResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.results[result.ID]; !exists {
		r.order = append(r.order, result.ID)
	}
	copied := result
	r.results[result.ID] = &copied
}

// Update replaces the record identified by id via fn, which receives a
// copy of the current record and returns the replacement.
func (r *Registry) Update(id string, fn func(types.TestResult) types.TestResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.results[id]
	if !ok {
		return
	}
	updated := fn(*current)
	r.results[id] = &updated
}

// Get returns a copy of the record for id, or false if absent.
func (r *Registry) Get(id string) (types.TestResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result, ok := r.results[id]
	if !ok {
		return types.TestResult{}, false
	}
	return *result, true
}

// List returns a snapshot copy of all records in insertion order.
func (r *Registry) List() []types.TestResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.TestResult, 0, len(r.order))
	for _, id := range r.order {
		if result, ok := r.results[id]; ok {
			out = append(out, *result)
		}
	}
	return out
}

// RunFlag is a CAS gate enforcing at most one concurrently running test,
// grounded on the teacher worker pool's atomic.Bool stopped flag.
type RunFlag struct {
	running atomic.Bool
}

// NewRunFlag returns a released flag.
func NewRunFlag() *RunFlag {
	return &RunFlag{}
}

// TryAcquire attempts a CAS from false to true; false means a test is
// already running.
func (f *RunFlag) TryAcquire() bool {
	return f.running.CompareAndSwap(false, true)
}

// Release clears the flag; safe to call unconditionally on any terminal path.
func (f *RunFlag) Release() {
	f.running.Store(false)
}

// IsRunning reports the current state without mutating it.
func (f *RunFlag) IsRunning() bool {
	return f.running.Load()
}

// DeadlineFrom computes the wall-clock instant a stress run's soft cancel
// fires at; kept here since Registry/RunFlag/deadline construction are the
// state primitives controllers compose.
func DeadlineFrom(start time.Time, durationSecs int) time.Time {
	return start.Add(time.Duration(durationSecs) * time.Second)
}
