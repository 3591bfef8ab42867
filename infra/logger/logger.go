// Package logger writes the service logs through zerolog.
package logger

import corelogger "github.com/kilianp07/ndf/core/logger"

type (
	Logger    = corelogger.Logger
	NopLogger = corelogger.Nop
)

// New returns the zerolog logger tagged with component.
func New(component string) Logger {
	return NewZerologLogger(component)
}
