// Package types holds the data model shared by the driver, aggregator,
// broker, and control plane: test configuration, per-request outcomes,
// running and derived metrics, and the persisted test result.
package types

import (
	"fmt"
	"math"
	"time"
)

// TestKind tags which of the three test variants a TestConfig describes.
type TestKind string

const (
	KindLoad   TestKind = "load"
	KindStress TestKind = "stress"
	KindAPI    TestKind = "api"
)

// TestStatus is the monotone lifecycle of a TestResult: Pending -> Started
// -> Running -> {Completed, Error}. No transition leaves a terminal state.
type TestStatus string

const (
	StatusPending   TestStatus = "pending"
	StatusStarted   TestStatus = "started"
	StatusRunning   TestStatus = "running"
	StatusCompleted TestStatus = "completed"
	StatusError     TestStatus = "error"
)

// IsTerminal reports whether s is Completed or Error.
func (s TestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

const (
	DefaultConcurrentUsers  = 10
	DefaultAPIConcurrency   = 100
	MaxConcurrentUsers      = 10_000
	OutcomeChannelCapacity  = 1024
	LoadEmitInterval        = 100 * time.Millisecond
	StressOrAPIEmitInterval = 500 * time.Millisecond
)

// TestConfig is the immutable per-run configuration. Exactly one of
// DurationSecs/NumRequests is nonzero for the active Kind.
type TestConfig struct {
	Kind            TestKind  `json:"kind"`
	TargetURL       string    `json:"target_url"`
	ConcurrentUsers int       `json:"concurrent_users"`
	DurationSecs    int       `json:"duration_secs"`
	NumRequests     int       `json:"num_requests"`
	SitemapPath     string    `json:"sitemap_path,omitempty"`
	APITests        []ApiTest `json:"api_tests,omitempty"`
}

// NewLoadConfig applies §4.E's load-controller defaults.
func NewLoadConfig(targetURL string, numRequests, concurrentUsers int) TestConfig {
	if concurrentUsers <= 0 {
		concurrentUsers = DefaultConcurrentUsers
	}
	return TestConfig{
		Kind:            KindLoad,
		TargetURL:       targetURL,
		ConcurrentUsers: concurrentUsers,
		NumRequests:     numRequests,
	}
}

// NewStressConfig builds a stress config as given; it applies no defaults,
// so a zero concurrentUsers fails Validate.
func NewStressConfig(targetURL string, durationSecs, concurrentUsers int, sitemapPath string) TestConfig {
	return TestConfig{
		Kind:            KindStress,
		TargetURL:       targetURL,
		ConcurrentUsers: concurrentUsers,
		DurationSecs:    durationSecs,
		SitemapPath:     sitemapPath,
	}
}

// NewAPIConfig applies §4.E's API-controller defaults (concurrency 100 if unset).
func NewAPIConfig(tests []ApiTest, concurrentUsers int) TestConfig {
	if concurrentUsers <= 0 {
		concurrentUsers = DefaultAPIConcurrency
	}
	return TestConfig{
		Kind:            KindAPI,
		ConcurrentUsers: concurrentUsers,
		APITests:        tests,
	}
}

// Validate checks the invariants of spec §3 / §6.
func (c TestConfig) Validate() error {
	switch c.Kind {
	case KindLoad:
		if c.TargetURL == "" {
			return fmt.Errorf("%w: target_url is required", ErrConfigInvalid)
		}
		if !hasHTTPScheme(c.TargetURL) {
			return fmt.Errorf("%w: target_url must begin with http:// or https://", ErrConfigInvalid)
		}
		if c.NumRequests <= 0 {
			return fmt.Errorf("%w: num_requests must be > 0 for a load test", ErrConfigInvalid)
		}
		if c.DurationSecs != 0 {
			return fmt.Errorf("%w: duration_secs must be 0 for a load test", ErrConfigInvalid)
		}
	case KindStress:
		if c.TargetURL == "" && c.SitemapPath == "" {
			return fmt.Errorf("%w: target_url or sitemap_path is required", ErrConfigInvalid)
		}
		if c.TargetURL != "" && !hasHTTPScheme(c.TargetURL) {
			return fmt.Errorf("%w: target_url must begin with http:// or https://", ErrConfigInvalid)
		}
		if c.DurationSecs <= 0 {
			return fmt.Errorf("%w: duration_secs must be > 0 for a stress test", ErrConfigInvalid)
		}
		if c.NumRequests != 0 {
			return fmt.Errorf("%w: num_requests must be 0 for a stress test", ErrConfigInvalid)
		}
	case KindAPI:
		if len(c.APITests) == 0 {
			return fmt.Errorf("%w: api test suite is empty", ErrConfigInvalid)
		}
		for i, t := range c.APITests {
			if err := t.Validate(); err != nil {
				return fmt.Errorf("%w: test[%d] %s: %v", ErrConfigInvalid, i, t.Name, err)
			}
		}
	default:
		return fmt.Errorf("%w: unknown test kind %q", ErrConfigInvalid, c.Kind)
	}
	if c.ConcurrentUsers < 1 || c.ConcurrentUsers > MaxConcurrentUsers {
		return fmt.Errorf("%w: concurrent_users must be in [1, %d]", ErrConfigInvalid, MaxConcurrentUsers)
	}
	return nil
}

func hasHTTPScheme(url string) bool {
	return len(url) >= 7 && (url[:7] == "http://" || (len(url) >= 8 && url[:8] == "https://"))
}

// HTTPMethod enumerates the methods an ApiTest may exercise.
type HTTPMethod string

const (
	MethodGET     HTTPMethod = "GET"
	MethodPOST    HTTPMethod = "POST"
	MethodPUT     HTTPMethod = "PUT"
	MethodDELETE  HTTPMethod = "DELETE"
	MethodPATCH   HTTPMethod = "PATCH"
	MethodHEAD    HTTPMethod = "HEAD"
	MethodOPTIONS HTTPMethod = "OPTIONS"
)

// ApiTest is one scripted entry of an API-test suite.
type ApiTest struct {
	Name           string            `json:"name"`
	Method         HTTPMethod        `json:"method"`
	URL            string            `json:"url"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           any               `json:"body,omitempty"`
	ExpectedStatus int               `json:"expected_status"`
	ExpectedBody   any               `json:"expected_body,omitempty"`
}

func (t ApiTest) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	if t.URL == "" {
		return fmt.Errorf("url is required")
	}
	switch t.Method {
	case MethodGET, MethodPOST, MethodPUT, MethodDELETE, MethodPATCH, MethodHEAD, MethodOPTIONS:
	default:
		return fmt.Errorf("unsupported method %q", t.Method)
	}
	if t.ExpectedStatus < 100 || t.ExpectedStatus > 599 {
		return fmt.Errorf("expected_status must be in [100, 599]")
	}
	return nil
}

// TransportError describes a per-request I/O or protocol failure.
type TransportError struct {
	Op      string `json:"op"`
	Message string `json:"message"`
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// RequestOutcome is a per-request record produced by the driver.
// Expectation carries the originating ApiTest for API-kind outcomes so the
// aggregator can apply the expected-status/expected-body success rule; it
// is nil for load/stress outcomes and never serialized.
type RequestOutcome struct {
	Status      int             `json:"status"`
	Duration    time.Duration   `json:"duration"`
	Body        any             `json:"body,omitempty"`
	Err         *TransportError `json:"error,omitempty"`
	Expectation *ApiTest        `json:"-"`
}

// Ok reports whether the request completed at the transport level
// (it may still be a non-2xx status — load/stress treat any delivered
// response as transport-successful, per spec §3).
func (o RequestOutcome) Ok() bool {
	return o.Err == nil
}

// RunningMetrics is the aggregator-local accumulator for one test.
type RunningMetrics struct {
	RequestsCompleted  int64
	SuccessfulRequests int64
	FailedRequests     int64
	ResponseTimeSumMs  float64
	TotalDuration      time.Duration
	MinResponseTimeMs  float64
	MaxResponseTimeMs  float64
	StatusCodes        map[int]int64
}

// NewRunningMetrics returns a zeroed accumulator with MinResponseTimeMs at +Inf.
func NewRunningMetrics() *RunningMetrics {
	return &RunningMetrics{
		MinResponseTimeMs: math.Inf(1),
		StatusCodes:       make(map[int]int64),
	}
}

// RecordSuccess folds a successful outcome into the accumulator.
func (m *RunningMetrics) RecordSuccess(status int, d time.Duration) {
	m.RequestsCompleted++
	m.SuccessfulRequests++
	ms := float64(d.Microseconds()) / 1000.0
	m.ResponseTimeSumMs += ms
	m.TotalDuration += d
	if ms < m.MinResponseTimeMs {
		m.MinResponseTimeMs = ms
	}
	if ms > m.MaxResponseTimeMs {
		m.MaxResponseTimeMs = ms
	}
	m.StatusCodes[status]++
}

// RecordFailure folds a failed outcome into the accumulator.
func (m *RunningMetrics) RecordFailure() {
	m.RequestsCompleted++
	m.FailedRequests++
}

// Snapshot derives a TestMetrics from the current accumulator state per §3.
func (m *RunningMetrics) Snapshot() TestMetrics {
	ts := TestMetrics{
		RequestsCompleted:  m.RequestsCompleted,
		SuccessfulRequests: m.SuccessfulRequests,
		FailedRequests:     m.FailedRequests,
		StatusCodes:        cloneStatusCodes(m.StatusCodes),
	}
	if m.SuccessfulRequests > 0 {
		ts.AverageResponseTimeMs = m.ResponseTimeSumMs / float64(m.SuccessfulRequests)
		ts.MinResponseTimeMs = m.MinResponseTimeMs
	}
	ts.MaxResponseTimeMs = m.MaxResponseTimeMs
	if m.RequestsCompleted > 0 {
		ts.ErrorRate = 100.0 * float64(m.FailedRequests) / float64(m.RequestsCompleted)
	}
	// Per-successful-request throughput, not wall-clock throughput — see
	// spec §9 open question (ii). Carried forward intentionally.
	if totalSecs := m.TotalDuration.Seconds(); totalSecs > 0 {
		ts.RequestsPerSecond = float64(m.SuccessfulRequests) / totalSecs
	}
	return ts
}

func cloneStatusCodes(in map[int]int64) map[int]int64 {
	out := make(map[int]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// TestMetrics is the derived snapshot transported to the viewer.
type TestMetrics struct {
	RequestsCompleted     int64         `json:"requests_completed"`
	SuccessfulRequests    int64         `json:"successful_requests"`
	FailedRequests        int64         `json:"failed_requests"`
	AverageResponseTimeMs float64       `json:"average_response_time_ms"`
	MinResponseTimeMs     float64       `json:"min_response_time_ms"`
	MaxResponseTimeMs     float64       `json:"max_response_time_ms"`
	ErrorRate             float64       `json:"error_rate"`
	RequestsPerSecond     float64       `json:"requests_per_second"`
	StatusCodes           map[int]int64 `json:"status_codes"`
}

// TimeSeriesPoint is a rate signal derived from two successive snapshots.
type TimeSeriesPoint struct {
	TimestampMs           int64   `json:"timestamp_ms"`
	RequestsPerSecond     float64 `json:"requests_per_second"`
	AverageResponseTimeMs float64 `json:"average_response_time_ms"`
	ErrorRate             float64 `json:"error_rate"`
}

// TestResult is the persisted, per-test summary owned by the registry.
type TestResult struct {
	ID        string       `json:"id"`
	Kind      TestKind     `json:"kind"`
	Status    TestStatus   `json:"status"`
	Progress  float32      `json:"progress"`
	Metrics   *TestMetrics `json:"metrics,omitempty"`
	Error     string       `json:"error,omitempty"`
	Notes     []string     `json:"notes,omitempty"`
	StartTime time.Time    `json:"start_time"`
	EndTime   *time.Time   `json:"end_time,omitempty"`
}

// APIResponse is the uniform control-plane envelope of spec §6.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}
