package metrics

import (
	"github.com/kilianp07/ndf/core/factory"
	coremetrics "github.com/kilianp07/ndf/core/metrics"
)

func init() {
	coremetrics.Sinks.MustRegister("nop", func(map[string]any) (coremetrics.MetricsSink, error) {
		return coremetrics.NopSink{}, nil
	})
	coremetrics.Sinks.MustRegister("prometheus", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		// no settings; Decode still rejects stray keys
		if err := factory.Decode(conf, &struct{}{}); err != nil {
			return nil, err
		}
		return NewPromSink()
	})
	coremetrics.Sinks.MustRegister("influx", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c InfluxConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return OpenInfluxSink(c)
	})
}
