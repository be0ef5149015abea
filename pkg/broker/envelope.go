package broker

import "github.com/loadpulse/loadpulse/pkg/types"

// Envelope tags are the self-describing records carried on the live channel.
const (
	EnvelopeTestUpdate        = "test_update"
	EnvelopeTimeSeries        = "time_series"
	EnvelopeTimeSeriesHistory = "time_series_history"
	EnvelopePing              = "ping"
	EnvelopePong              = "pong"
)

// Envelope is the wire shape of every frame sent to the live viewer.
type Envelope struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// TestUpdatePayload is Data for an EnvelopeTestUpdate frame.
type TestUpdatePayload = types.TestResult

// NewTestUpdate wraps a TestResult as a test_update envelope.
func NewTestUpdate(result types.TestResult) Envelope {
	return Envelope{Type: EnvelopeTestUpdate, Data: result}
}

// NewTimeSeries wraps a single point as a time_series envelope.
func NewTimeSeries(point types.TimeSeriesPoint) Envelope {
	return Envelope{Type: EnvelopeTimeSeries, Data: point}
}

// NewTimeSeriesHistory wraps the retained ring as a time_series_history
// envelope, sent once on attach.
func NewTimeSeriesHistory(points []types.TimeSeriesPoint) Envelope {
	return Envelope{Type: EnvelopeTimeSeriesHistory, Data: points}
}
