// Package aggregator drains per-request outcomes into a running
// accumulator and emits throttled metric snapshots to an Emitter
// (normally pkg/controllers' live emitter), applying a per-test-kind
// success rule.
package aggregator

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/loadpulse/loadpulse/pkg/types"
)

// SuccessFunc classifies one outcome as success or failure and, on
// failure, returns a human-readable note appended to the next envelope.
type SuccessFunc func(types.RequestOutcome) (ok bool, note string)

// LoadOrStressSuccess implements the transport-only success rule: any
// delivered response counts as success, a transport error is the only
// failure. The status code itself is never a success criterion.
func LoadOrStressSuccess() SuccessFunc {
	return func(o types.RequestOutcome) (bool, string) {
		return o.Ok(), ""
	}
}

// APISuccess implements the stricter API rule: transport must succeed,
// the observed status must equal the per-request expected_status, and
// (if present) expected_body must structurally equal the parsed body.
func APISuccess() SuccessFunc {
	return func(o types.RequestOutcome) (bool, string) {
		name := "request"
		if o.Expectation != nil && o.Expectation.Name != "" {
			name = o.Expectation.Name
		}
		if !o.Ok() {
			return false, fmt.Sprintf("%s: %v", name, o.Err)
		}
		if o.Expectation == nil {
			return true, ""
		}
		exp := o.Expectation
		if o.Status != exp.ExpectedStatus {
			return false, fmt.Sprintf("%s: expected status %d, got %d", name, exp.ExpectedStatus, o.Status)
		}
		if exp.ExpectedBody != nil && !reflect.DeepEqual(exp.ExpectedBody, o.Body) {
			return false, fmt.Sprintf("%s: response body did not match expected_body", name)
		}
		return true, ""
	}
}

// ProgressFunc derives the [0,100] progress figure for the current
// accumulator state; each test kind supplies its own.
type ProgressFunc func(completed int64) float32

// LoadProgress caps at 100 · completed / numRequests.
func LoadProgress(numRequests int) ProgressFunc {
	return func(completed int64) float32 {
		if numRequests <= 0 {
			return 100
		}
		p := 100 * float32(completed) / float32(numRequests)
		if p > 100 {
			p = 100
		}
		return p
	}
}

// APIProgress caps at 100 · completed / totalTests.
func APIProgress(totalTests int) ProgressFunc {
	return LoadProgress(totalTests)
}

// TimeProgress caps at 100 · elapsed / durationSecs, evaluated at call time.
func TimeProgress(start time.Time, durationSecs int) ProgressFunc {
	return func(int64) float32 {
		if durationSecs <= 0 {
			return 100
		}
		p := 100 * float32(time.Since(start).Seconds()) / float32(durationSecs)
		if p > 100 {
			p = 100
		}
		return p
	}
}

// Emitter receives every snapshot the aggregator publishes — implemented
// in production by pkg/controllers' liveEmitter (which publishes through
// pkg/broker) and by a recording stub in tests.
type Emitter interface {
	Emit(snapshot types.TestMetrics, progress float32, notes []string)
}

// Aggregator owns the RunningMetrics accumulator for exactly one test run.
type Aggregator struct {
	mu           sync.RWMutex
	metrics      *types.RunningMetrics
	successFunc  SuccessFunc
	progressFunc ProgressFunc
	emitInterval time.Duration
	lastEmit     time.Time
	emitter      Emitter
	logger       *slog.Logger
	notes        []string
}

// New builds an Aggregator with the given success/progress rules and
// emission cadence (100ms load, 500ms stress/API per spec).
func New(emitter Emitter, successFunc SuccessFunc, progressFunc ProgressFunc, emitInterval time.Duration, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		metrics:      types.NewRunningMetrics(),
		successFunc:  successFunc,
		progressFunc: progressFunc,
		emitInterval: emitInterval,
		emitter:      emitter,
		logger:       logger,
	}
}

// Run drains outcomes until the channel closes, folding each into the
// accumulator and emitting throttled (or immediate-on-failure) snapshots.
// It always emits exactly one terminal snapshot after drain.
func (a *Aggregator) Run(outcomes <-chan types.RequestOutcome) {
	a.lastEmit = time.Now()
	for outcome := range outcomes {
		failed := a.record(outcome)
		if failed || time.Since(a.lastEmit) >= a.emitInterval {
			a.emit(false)
		}
	}
	a.emit(true)
}

// record folds one outcome into the accumulator and returns whether it
// counted as a failure, so Run can emit promptly on failure per policy.
func (a *Aggregator) record(outcome types.RequestOutcome) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	ok, note := a.successFunc(outcome)
	if ok {
		a.metrics.RecordSuccess(outcome.Status, outcome.Duration)
		return false
	}
	a.metrics.RecordFailure()
	if note != "" {
		a.notes = append(a.notes, note)
	}
	return true
}

// Snapshot returns the current derived metrics without side effects.
func (a *Aggregator) Snapshot() types.TestMetrics {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.metrics.Snapshot()
}

// emit derives a snapshot, hands it to the emitter, and resets the
// throttle clock. terminal callers have already drained the channel.
func (a *Aggregator) emit(terminal bool) {
	a.mu.Lock()
	snapshot := a.metrics.Snapshot()
	completed := a.metrics.RequestsCompleted
	notes := append([]string(nil), a.notes...)
	a.mu.Unlock()

	progress := a.progressFunc(completed)
	if terminal {
		progress = 100
	}

	if a.emitter != nil {
		a.emitter.Emit(snapshot, progress, notes)
	}
	a.lastEmit = time.Now()
}

// Failed reports whether any outcome has been classified a failure so
// far — used by the controller to pick the terminal status.
func (a *Aggregator) Failed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.metrics.FailedRequests > 0
}
