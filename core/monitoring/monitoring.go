// Package monitoring holds the process-wide error reporter used by
// background jobs and the HTTP recovery middleware.
package monitoring

import (
	"fmt"
	"sync"
	"time"
)

// Monitor reports errors and panics to an external tracker.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	// Recover reports a panic and re-raises it. It must be deferred directly.
	Recover()
	Flush(timeout time.Duration)
}

// NopMonitor discards everything.
type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Recover()                                  {}
func (NopMonitor) Flush(time.Duration)                       {}

var (
	mu      sync.RWMutex
	current Monitor = NopMonitor{}
)

// Init installs m as the process monitor. nil is ignored.
func Init(m Monitor) {
	if m == nil {
		return
	}
	mu.Lock()
	current = m
	mu.Unlock()
}

// Current returns the process monitor.
func Current() Monitor {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// CaptureException reports err through the process monitor.
func CaptureException(err error, tags map[string]string) {
	Current().CaptureException(err, tags)
}

// Flush waits for buffered events.
func Flush(d time.Duration) { Current().Flush(d) }

// Swallow reports a panic to m, or to the process monitor when m is nil,
// and stops it. It must be deferred directly.
func Swallow(m Monitor, tags map[string]string) {
	if r := recover(); r != nil {
		if m == nil {
			m = Current()
		}
		m.CaptureException(fmt.Errorf("panic: %v", r), tags)
	}
}
