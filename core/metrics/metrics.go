package metrics

import "time"

// Sheet event kinds.
const (
	KindSubmitted = "submitted"
	KindUpdated   = "updated"
	KindApproved  = "approved"
	KindRejected  = "rejected"
)

// SheetEvent is a lifecycle step of an expense sheet.
type SheetEvent struct {
	Kind       string
	SheetID    string
	Department string
	Amount     float64
	Time       time.Time
}

// MetricsSink records sheet lifecycle events.
type MetricsSink interface {
	RecordSheetEvent(ev SheetEvent) error
}

// DSFEvent is the outcome of one DSF delivery attempt.
type DSFEvent struct {
	SheetID    string
	Department string
	Success    bool
	Amount     float64
	Pages      int
	Time       time.Time
}

// DSFRecorder records DSF deliveries.
type DSFRecorder interface {
	RecordDSF(ev DSFEvent) error
}

// HTTPRequest is one served API request.
type HTTPRequest struct {
	Route    string
	Code     int
	Duration time.Duration
}

// HTTPRecorder records API traffic.
type HTTPRecorder interface {
	RecordHTTPRequest(r HTTPRequest) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordSheetEvent(SheetEvent) error   { return nil }
func (NopSink) RecordDSF(DSFEvent) error            { return nil }
func (NopSink) RecordHTTPRequest(HTTPRequest) error { return nil }
