package metrics

import (
	"fmt"

	"github.com/kilianp07/ndf/core/factory"
)

// Config lists the sinks fed by the event collector.
type Config struct {
	Sinks []factory.Spec `json:"sinks"`
	// PrometheusAddr serves /metrics when set, e.g. ":9100".
	PrometheusAddr string `json:"prometheus_addr"`
}

// Validate checks that every sink names a type.
func (c Config) Validate() error {
	for i, s := range c.Sinks {
		if s.Type == "" {
			return fmt.Errorf("sinks[%d]: type is required", i)
		}
	}
	return nil
}
