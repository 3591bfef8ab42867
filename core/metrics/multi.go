package metrics

import "errors"

// MultiSink fans records out to several sinks. Optional recorders are only
// forwarded to sinks implementing them.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordSheetEvent forwards to every sink and joins their errors.
func (m *MultiSink) RecordSheetEvent(ev SheetEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordSheetEvent(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordDSF forwards DSF outcomes.
func (m *MultiSink) RecordDSF(ev DSFEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(DSFRecorder); ok {
			if err := rec.RecordDSF(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordHTTPRequest forwards API traffic.
func (m *MultiSink) RecordHTTPRequest(r HTTPRequest) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(HTTPRecorder); ok {
			if err := rec.RecordHTTPRequest(r); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes the sinks holding resources.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
