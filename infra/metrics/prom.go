package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/ndf/core/metrics"
)

// PromSink records expense events in Prometheus metrics.
type PromSink struct {
	submitted  *prometheus.CounterVec
	decided    *prometheus.CounterVec
	reimbursed *prometheus.CounterVec
	dsf        *prometheus.CounterVec
	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewPromSink registers the metrics on the default Prometheus registerer.
// The /metrics endpoint is served separately on Config.PrometheusAddr.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Metrics
// already registered are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ndf_sheets_submitted_total",
			Help: "Expense sheets submitted",
		}, []string{"department"}),
		decided: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ndf_sheets_decided_total",
			Help: "Expense sheets approved or rejected",
		}, []string{"department", "decision"}),
		reimbursed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ndf_reimbursed_amount_euros_total",
			Help: "Sum of approved sheet totals",
		}, []string{"department"}),
		dsf: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ndf_dsf_dispatch_total",
			Help: "DSF bundle deliveries by result",
		}, []string{"result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ndf_http_requests_total",
			Help: "API requests by route and status code",
		}, []string{"route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ndf_http_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	var err error
	if s.submitted, err = registerVec(reg, s.submitted); err != nil {
		return nil, err
	}
	if s.decided, err = registerVec(reg, s.decided); err != nil {
		return nil, err
	}
	if s.reimbursed, err = registerVec(reg, s.reimbursed); err != nil {
		return nil, err
	}
	if s.dsf, err = registerVec(reg, s.dsf); err != nil {
		return nil, err
	}
	if s.requests, err = registerVec(reg, s.requests); err != nil {
		return nil, err
	}
	if s.duration, err = registerVec(reg, s.duration); err != nil {
		return nil, err
	}
	return s, nil
}

func registerVec[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordSheetEvent counts submissions and decisions. Approved amounts add
// to the reimbursed total.
func (s *PromSink) RecordSheetEvent(ev coremetrics.SheetEvent) error {
	switch ev.Kind {
	case coremetrics.KindSubmitted:
		s.submitted.WithLabelValues(ev.Department).Inc()
	case coremetrics.KindApproved:
		s.decided.WithLabelValues(ev.Department, ev.Kind).Inc()
		if ev.Amount > 0 {
			s.reimbursed.WithLabelValues(ev.Department).Add(ev.Amount)
		}
	case coremetrics.KindRejected:
		s.decided.WithLabelValues(ev.Department, ev.Kind).Inc()
	}
	return nil
}

// RecordDSF counts deliveries by result.
func (s *PromSink) RecordDSF(ev coremetrics.DSFEvent) error {
	result := "failure"
	if ev.Success {
		result = "success"
	}
	s.dsf.WithLabelValues(result).Inc()
	return nil
}

// RecordHTTPRequest counts a request and observes its latency.
func (s *PromSink) RecordHTTPRequest(r coremetrics.HTTPRequest) error {
	s.requests.WithLabelValues(r.Route, strconv.Itoa(r.Code)).Inc()
	s.duration.WithLabelValues(r.Route).Observe(r.Duration.Seconds())
	return nil
}
