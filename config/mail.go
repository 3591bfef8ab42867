package config

import (
	"fmt"
	"net/mail"
	"time"

	"github.com/kilianp07/ndf/auth"
)

// MailConfig defines the SMTP relay. An empty host disables mail delivery.
type MailConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
	// TLS is "mandatory", "opportunistic" or "none".
	TLS string `json:"tls"`
	// Auth is an SMTP auth mechanism understood by go-mail: plain, login,
	// cram-md5, xoauth2 or none.
	Auth           string    `json:"auth"`
	TimeoutSeconds int       `json:"timeout_seconds"`
	OAuth2         auth.Conf `json:"oauth2"`
}

// SetDefaults applies sane defaults.
func (c *MailConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = 587
	}
	if c.TLS == "" {
		c.TLS = "mandatory"
	}
	if c.Auth == "" {
		if c.Username != "" {
			c.Auth = "plain"
		} else {
			c.Auth = "none"
		}
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
}

// Validate checks mandatory fields.
func (c MailConfig) Validate() error {
	if c.Host == "" {
		return nil
	}
	if _, err := mail.ParseAddress(c.From); err != nil {
		return fmt.Errorf("from: %w", err)
	}
	switch c.TLS {
	case "mandatory", "opportunistic", "none":
	default:
		return fmt.Errorf("unknown tls policy %s", c.TLS)
	}
	if c.Auth == "xoauth2" {
		if err := c.OAuth2.Validate(); err != nil {
			return fmt.Errorf("oauth2: %w", err)
		}
	}
	return nil
}

// Enabled reports whether an SMTP relay is configured.
func (c MailConfig) Enabled() bool { return c.Host != "" }

func (c MailConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DSFConfig drives the finance bundle delivery.
type DSFConfig struct {
	// Recipients override the e-mail of the DSF department.
	Recipients     []string `json:"recipients"`
	SubjectPrefix  string   `json:"subject_prefix"`
	Author         string   `json:"author"`
	LockTTLSeconds int      `json:"lock_ttl_seconds"`
}

// SetDefaults applies sane defaults.
func (c *DSFConfig) SetDefaults() {
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "[NDF] "
	}
	if c.Author == "" {
		c.Author = "ndf"
	}
	if c.LockTTLSeconds <= 0 {
		c.LockTTLSeconds = 300
	}
}

// Validate checks mandatory fields.
func (c DSFConfig) Validate() error {
	for _, r := range c.Recipients {
		if _, err := mail.ParseAddress(r); err != nil {
			return fmt.Errorf("recipient %q: %w", r, err)
		}
	}
	return nil
}

func (c DSFConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}
