package config

import (
	"fmt"

	"github.com/rs/zerolog"
)

// LoggingConfig controls the zerolog output and the audit trail file.
type LoggingConfig struct {
	// Level is a zerolog level name: debug, info, warn or error.
	Level string `json:"level"`
	// Format is "json" or "console". APP_ENV=dev forces console.
	Format string `json:"format"`
	// Path is the JSON lines audit trail. Empty disables the trail.
	Path string `json:"path"`
	// MaxSizeMB rotates the trail once it grows past this size.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups and MaxAgeDays bound the rotated files kept; 0 keeps all.
	MaxBackups int `json:"max_backups"`
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = 10
	}
}

// Validate checks mandatory fields.
func (c LoggingConfig) Validate() error {
	if _, err := zerolog.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("level: %w", err)
	}
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("unknown format %s", c.Format)
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return fmt.Errorf("audit rotation limits must not be negative")
	}
	return nil
}

// AuditEnabled reports whether the audit trail is written.
func (c LoggingConfig) AuditEnabled() bool { return c.Path != "" }
