package config

import (
	"fmt"
	"time"
)

// HTTPConfig defines the REST API listener.
type HTTPConfig struct {
	Addr                string `json:"addr"`
	ReadTimeoutSeconds  int    `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `json:"write_timeout_seconds"`
	// RatePerSecond and RateBurst bound requests per user or client IP.
	// A zero rate disables limiting.
	RatePerSecond float64 `json:"rate_per_second"`
	RateBurst     int     `json:"rate_burst"`
}

// SetDefaults applies sane defaults.
func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadTimeoutSeconds <= 0 {
		c.ReadTimeoutSeconds = 15
	}
	if c.WriteTimeoutSeconds <= 0 {
		c.WriteTimeoutSeconds = 60
	}
	if c.RatePerSecond > 0 && c.RateBurst <= 0 {
		c.RateBurst = int(c.RatePerSecond * 2)
		if c.RateBurst < 1 {
			c.RateBurst = 1
		}
	}
}

// Validate checks mandatory fields.
func (c HTTPConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.RatePerSecond < 0 {
		return fmt.Errorf("rate_per_second must not be negative")
	}
	return nil
}

func (c HTTPConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

func (c HTTPConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// AuthConfig holds the bearer token settings.
type AuthConfig struct {
	// Secret is the HS256 key. It is required to serve or issue tokens.
	Secret        string `json:"secret"`
	Issuer        string `json:"issuer"`
	TokenTTLHours int    `json:"token_ttl_hours"`
}

// SetDefaults applies sane defaults.
func (c *AuthConfig) SetDefaults() {
	if c.Issuer == "" {
		c.Issuer = "ndf"
	}
	if c.TokenTTLHours <= 0 {
		c.TokenTTLHours = 720
	}
}

// Validate checks mandatory fields.
func (c AuthConfig) Validate() error {
	if c.Secret != "" && len(c.Secret) < 16 {
		return fmt.Errorf("secret must be at least 16 bytes")
	}
	return nil
}

func (c AuthConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

// RedisConfig enables the shared DSF lock. An empty address selects the
// in-process lock.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}
