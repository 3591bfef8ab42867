// Package metrics defines the sinks recording expense workflow metrics.
// Sinks such as PromSink and InfluxSink live in infra/metrics, register
// themselves in the factory registry and are combined by MultiSink when
// several are configured.
package metrics
