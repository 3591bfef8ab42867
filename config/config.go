package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/ndf/core/metrics"
	"github.com/kilianp07/ndf/core/scheduler"
	"github.com/kilianp07/ndf/infra/mqtt"
)

// Config is the root configuration of the ndf service.
type Config struct {
	HTTP      HTTPConfig       `json:"http"`
	Auth      AuthConfig       `json:"auth"`
	Database  DatabaseConfig   `json:"database"`
	Storage   StorageConfig    `json:"storage"`
	Mail      MailConfig       `json:"mail"`
	DSF       DSFConfig        `json:"dsf"`
	MQTT      mqtt.Config      `json:"mqtt"`
	Metrics   metrics.Config   `json:"metrics"`
	Logging   LoggingConfig    `json:"logging"`
	Sentry    SentryConfig     `json:"sentry"`
	Scheduler scheduler.Config `json:"scheduler"`
	Redis     RedisConfig      `json:"redis"`
}

type section interface {
	Validate() error
}

// Load reads a YAML or JSON file, applies K_ environment overrides
// (K_DATABASE__DSN sets database.dsn), then defaults and validation.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section with its defaults.
func (c *Config) SetDefaults() {
	c.HTTP.SetDefaults()
	c.Auth.SetDefaults()
	c.Database.SetDefaults()
	c.Storage.SetDefaults()
	c.Mail.SetDefaults()
	c.DSF.SetDefaults()
	c.MQTT.SetDefaults()
	c.Logging.SetDefaults()
	c.Scheduler.SetDefaults()
}

// Validate checks every section and joins the failures.
func (c Config) Validate() error {
	sections := map[string]section{
		"http":      c.HTTP,
		"auth":      c.Auth,
		"database":  c.Database,
		"storage":   c.Storage,
		"mail":      c.Mail,
		"dsf":       c.DSF,
		"mqtt":      c.MQTT,
		"logging":   c.Logging,
		"scheduler": c.Scheduler,
		"metrics":   c.Metrics,
		"sentry":    c.Sentry,
	}
	var errs []error
	for _, name := range []string{"http", "auth", "database", "storage", "mail", "dsf", "mqtt", "logging", "scheduler", "metrics", "sentry"} {
		if err := sections[name].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
