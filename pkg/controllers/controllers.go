// Package controllers implements the per-test-kind lifecycle: validate
// config, reserve the single-test-running slot, spawn the driver and
// aggregator, and publish terminal status — the same wiring shape as the
// teacher's Service.New, adapted from "ingest pipeline" to "test run".
package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/loadpulse/loadpulse/pkg/aggregator"
	"github.com/loadpulse/loadpulse/pkg/broker"
	"github.com/loadpulse/loadpulse/pkg/driver"
	"github.com/loadpulse/loadpulse/pkg/timeseries"
	"github.com/loadpulse/loadpulse/pkg/types"
)

// Controller owns the shared state a test run needs: the result
// registry, the single-test-running gate, the live broker, and the
// time-series tracker. One Controller serves the whole process since at
// most one test may run at a time.
type Controller struct {
	Registry *broker.Registry
	RunFlag  *broker.RunFlag
	Live     *broker.LiveBroker
	Tracker  *timeseries.Tracker
	logger   *slog.Logger
}

// New wires a Controller from its component parts.
func New(registry *broker.Registry, runFlag *broker.RunFlag, live *broker.LiveBroker, tracker *timeseries.Tracker, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{Registry: registry, RunFlag: runFlag, Live: live, Tracker: tracker, logger: logger}
}

// StartLoad begins a load test against targetURL for exactly numRequests
// requests at concurrentUsers in flight.
func (c *Controller) StartLoad(ctx context.Context, targetURL string, numRequests, concurrentUsers int) (string, error) {
	cfg := types.NewLoadConfig(targetURL, numRequests, concurrentUsers)
	return c.start(ctx, cfg)
}

// StartStress begins a stress test against targetURL for durationSecs
// wall-clock seconds at concurrentUsers in flight.
func (c *Controller) StartStress(ctx context.Context, targetURL string, durationSecs, concurrentUsers int, sitemapPath string) (string, error) {
	cfg := types.NewStressConfig(targetURL, durationSecs, concurrentUsers, sitemapPath)
	return c.start(ctx, cfg)
}

// StartAPI begins an API-assertion test against an already-parsed suite.
func (c *Controller) StartAPI(ctx context.Context, tests []types.ApiTest, concurrentUsers int) (string, error) {
	cfg := types.NewAPIConfig(tests, concurrentUsers)
	return c.start(ctx, cfg)
}

// StartAPIFromFile loads the suite from a JSON file before starting, per
// spec.md §4.E's "API-test controller": a load/parse failure registers a
// terminal Error result (progress 0) rather than rejecting synchronously,
// since a test_id is still meaningful for a UI to look up.
func (c *Controller) StartAPIFromFile(ctx context.Context, path string, concurrentUsers int) (string, error) {
	if !strings.HasSuffix(path, ".json") {
		return "", types.NewAppError(types.ErrorKindConfigInvalid, "api test suite path must end in .json", nil)
	}
	if !c.RunFlag.TryAcquire() {
		return "", types.ErrTestAlreadyRunning
	}

	id := uuid.NewString()
	now := time.Now()
	c.Tracker.Reset()
	c.Registry.Insert(types.TestResult{ID: id, Kind: types.KindAPI, Status: types.StatusPending, StartTime: now})

	tests, err := LoadAPISuite(path)
	if err != nil {
		c.failPreflight(id, now, err)
		return id, nil
	}
	cfg := types.NewAPIConfig(tests, concurrentUsers)
	if err := cfg.Validate(); err != nil {
		c.failPreflight(id, now, err)
		return id, nil
	}

	c.markStarted(id)
	go c.run(ctx, id, cfg)
	return id, nil
}

// LoadAPISuite reads path and parses it as a JSON array of ApiTest,
// grounded on the original api_test_controller's suite-loading step.
func LoadAPISuite(path string) ([]types.ApiTest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewAppError(types.ErrorKindFileNotReadable, "reading api test suite", err)
	}
	var tests []types.ApiTest
	if err := json.Unmarshal(data, &tests); err != nil {
		return nil, types.NewAppError(types.ErrorKindJSONMalformed, "parsing api test suite", err)
	}
	return tests, nil
}

// start runs the common procedure of spec.md §4.E steps 1-7: validate,
// acquire the run flag, register, publish Started, and spawn in the
// background, returning the test_id synchronously.
func (c *Controller) start(ctx context.Context, cfg types.TestConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	if !c.RunFlag.TryAcquire() {
		return "", types.ErrTestAlreadyRunning
	}

	id := uuid.NewString()
	now := time.Now()
	c.Tracker.Reset()
	c.Registry.Insert(types.TestResult{ID: id, Kind: cfg.Kind, Status: types.StatusPending, StartTime: now})
	c.markStarted(id)

	go c.run(ctx, id, cfg)
	return id, nil
}

// markStarted transitions Pending -> Started and publishes the envelope.
func (c *Controller) markStarted(id string) {
	c.Registry.Update(id, func(r types.TestResult) types.TestResult {
		r.Status = types.StatusStarted
		return r
	})
	if result, ok := c.Registry.Get(id); ok {
		c.Live.Publish(broker.NewTestUpdate(result))
	}
}

// failPreflight marks a registered-but-not-yet-spawned test as Error and
// releases the running flag, used by suite-loading/validation failures
// that occur after registration but before the driver spawns.
func (c *Controller) failPreflight(id string, now time.Time, err error) {
	end := time.Now()
	c.Registry.Update(id, func(r types.TestResult) types.TestResult {
		r.Status = types.StatusError
		r.Error = err.Error()
		r.Progress = 0
		r.EndTime = &end
		return r
	})
	if result, ok := c.Registry.Get(id); ok {
		c.Live.Publish(broker.NewTestUpdate(result))
	}
	c.RunFlag.Release()
	_ = now
}

// run drives the test to completion in the background: builds the
// success/progress rules for cfg.Kind, spawns the driver and aggregator
// linked by a capacity-1024 channel, and persists the terminal result.
// The running flag is released on every exit path, including a panic
// recovered on this goroutine.
func (c *Controller) run(ctx context.Context, id string, cfg types.TestConfig) {
	// The run outlives the call that started it (an HTTP handler's request
	// context is cancelled as soon as the handler returns), so only the
	// caller's values are kept, not its cancellation.
	ctx = context.WithoutCancel(ctx)
	defer c.RunFlag.Release()
	defer func() {
		if r := recover(); r != nil {
			c.finishWithPanic(id, r)
		}
	}()

	client := driver.NewClient()
	outcomes := make(chan types.RequestOutcome, types.OutcomeChannelCapacity)
	var stopFlag atomic.Bool

	// Stress's deadline is a soft cancel: stopFlag tells the feeder to stop
	// enqueuing new requests, but ctx itself carries no deadline, so
	// requests already in flight run to completion (bounded by the
	// client's own timeout) and still land real outcomes, per spec.md
	// §4.A/§5 instead of aborting them as transport failures.
	if cfg.Kind == types.KindStress {
		deadline := broker.DeadlineFrom(time.Now(), cfg.DurationSecs)
		timer := time.AfterFunc(time.Until(deadline), func() {
			stopFlag.Store(true)
		})
		defer timer.Stop()
	}

	successFunc, progressFunc, emitInterval := c.strategyFor(cfg)
	emitter := &liveEmitter{registry: c.Registry, live: c.Live, tracker: c.Tracker, id: id}
	agg := aggregator.New(emitter, successFunc, progressFunc, emitInterval, c.logger)
	d := driver.New(c.logger)

	var driverErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(outcomes)
		driverErr = d.Run(ctx, cfg, client, outcomes, &stopFlag)
	}()

	agg.Run(outcomes)
	<-done

	c.finish(id, agg, driverErr)
}

// strategyFor returns the success predicate, progress formula, and
// emission cadence for cfg's kind, per spec.md §4.B/§9's "polymorphism
// over test kind, not inheritance."
func (c *Controller) strategyFor(cfg types.TestConfig) (aggregator.SuccessFunc, aggregator.ProgressFunc, time.Duration) {
	switch cfg.Kind {
	case types.KindLoad:
		return aggregator.LoadOrStressSuccess(), aggregator.LoadProgress(cfg.NumRequests), types.LoadEmitInterval
	case types.KindStress:
		return aggregator.LoadOrStressSuccess(), aggregator.TimeProgress(time.Now(), cfg.DurationSecs), types.StressOrAPIEmitInterval
	case types.KindAPI:
		return aggregator.APISuccess(), aggregator.APIProgress(len(cfg.APITests)), types.StressOrAPIEmitInterval
	default:
		return aggregator.LoadOrStressSuccess(), aggregator.LoadProgress(1), types.LoadEmitInterval
	}
}

// finish persists the terminal TestResult per spec.md §4.B's terminal
// rule: Error if any failures were observed or the driver itself
// errored, Completed otherwise.
func (c *Controller) finish(id string, agg *aggregator.Aggregator, driverErr error) {
	status := types.StatusCompleted
	errMsg := ""
	if driverErr != nil {
		status = types.StatusError
		errMsg = driverErr.Error()
	} else if agg.Failed() {
		status = types.StatusError
	}

	snapshot := agg.Snapshot()
	end := time.Now()
	c.Registry.Update(id, func(r types.TestResult) types.TestResult {
		r.Status = status
		r.Progress = 100
		r.Metrics = &snapshot
		r.Error = errMsg
		r.EndTime = &end
		return r
	})
	if result, ok := c.Registry.Get(id); ok {
		c.Live.Publish(broker.NewTestUpdate(result))
	}
}

// finishWithPanic marks id as a terminal Error after a panic recovered on
// the run goroutine (the aggregator and its emitter). The driver runs on
// goroutines of its own, and a panic there is not recovered.
func (c *Controller) finishWithPanic(id string, recovered any) {
	c.logger.Error("recovered panic during test run", "test_id", id, "panic", recovered)
	end := time.Now()
	c.Registry.Update(id, func(r types.TestResult) types.TestResult {
		r.Status = types.StatusError
		r.Error = fmt.Sprintf("internal panic: %v", recovered)
		r.Progress = 100
		r.EndTime = &end
		return r
	})
	if result, ok := c.Registry.Get(id); ok {
		c.Live.Publish(broker.NewTestUpdate(result))
	}
}

// liveEmitter adapts the aggregator's per-snapshot callback into registry
// updates and live-broker publishes, advancing the time-series tracker
// on every emission.
type liveEmitter struct {
	registry *broker.Registry
	live     *broker.LiveBroker
	tracker  *timeseries.Tracker
	id       string
}

func (e *liveEmitter) Emit(snapshot types.TestMetrics, progress float32, notes []string) {
	e.registry.Update(e.id, func(r types.TestResult) types.TestResult {
		if r.Status == types.StatusPending || r.Status == types.StatusStarted {
			r.Status = types.StatusRunning
		}
		m := snapshot
		r.Metrics = &m
		r.Progress = progress
		r.Notes = notes
		return r
	})

	if result, ok := e.registry.Get(e.id); ok {
		e.live.Publish(broker.NewTestUpdate(result))
	}
	point := e.tracker.Observe(snapshot)
	e.live.Publish(broker.NewTimeSeries(point))
}
