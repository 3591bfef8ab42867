package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Off disables a job.
const Off = "off"

// Config holds the cron specs of the jobs. Specs use the standard five
// fields or descriptors such as @every 15m.
type Config struct {
	DSFRetry        string `json:"dsf_retry" yaml:"dsf_retry"`
	PendingReminder string `json:"pending_reminder" yaml:"pending_reminder"`
	// Timezone is an IANA name. Empty means the host zone.
	Timezone string `json:"timezone" yaml:"timezone"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.DSFRetry == "" {
		c.DSFRetry = "@every 15m"
	}
	if c.PendingReminder == "" {
		c.PendingReminder = "0 8 * * 1-5"
	}
}

// Validate parses every enabled spec.
func (c Config) Validate() error {
	for name, spec := range map[string]string{"dsf_retry": c.DSFRetry, "pending_reminder": c.PendingReminder} {
		if spec == Off || spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}
