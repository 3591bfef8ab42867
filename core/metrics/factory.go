package metrics

import "github.com/kilianp07/ndf/core/factory"

// Sinks holds the sink implementations selectable from metrics.sinks.
var Sinks = factory.NewRegistry[MetricsSink]("metrics sink")

// NewMetricsSink builds the configured sinks. No sink yields NopSink and
// several sinks are fanned out through a MultiSink.
func NewMetricsSink(specs []factory.Spec) (MetricsSink, error) {
	switch len(specs) {
	case 0:
		return NopSink{}, nil
	case 1:
		return Sinks.Build(specs[0])
	}
	sinks := make([]MetricsSink, 0, len(specs))
	for _, s := range specs {
		sink, err := Sinks.Build(s)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	return NewMultiSink(sinks...), nil
}
