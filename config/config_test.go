package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

//nolint:gocyclo
func TestLoad(t *testing.T) {
	path := writeFile(t, "config.yaml", `http:
  addr: ":9000"
  rate_per_second: 5
auth:
  secret: "0123456789abcdef0123"
database:
  driver: "postgres"
  dsn: "postgres://ndf@localhost/ndf"
mail:
  host: "smtp.example.org"
  username: "ndf"
  password: "pw"
  from: "ndf@example.org"
dsf:
  recipients: ["compta@example.org"]
mqtt:
  broker: "tcp://localhost:1883"
  client_id: "cli"
metrics:
  sinks:
    - type: "nop"
scheduler:
  dsf_retry: "off"
logging:
  path: "var/audit.jsonl"
  max_backups: 3
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"http.addr", cfg.HTTP.Addr, ":9000"},
		{"http.rate_burst default", cfg.HTTP.RateBurst > 0, true},
		{"http.read_timeout", cfg.HTTP.ReadTimeout(), 15 * time.Second},
		{"auth.issuer", cfg.Auth.Issuer, "ndf"},
		{"auth.ttl", cfg.Auth.TokenTTL(), 720 * time.Hour},
		{"database.driver", cfg.Database.Driver, "postgres"},
		{"database.dsn", cfg.Database.DSN, "postgres://ndf@localhost/ndf"},
		{"storage.root", cfg.Storage.Root, "data/attachments"},
		{"storage.max", cfg.Storage.MaxUploadBytes(), int64(10 << 20)},
		{"mail.port", cfg.Mail.Port, 587},
		{"mail.auth", cfg.Mail.Auth, "plain"},
		{"mail.tls", cfg.Mail.TLS, "mandatory"},
		{"mail.enabled", cfg.Mail.Enabled(), true},
		{"dsf.recipient", cfg.DSF.Recipients[0], "compta@example.org"},
		{"dsf.subject_prefix", cfg.DSF.SubjectPrefix, "[NDF] "},
		{"dsf.lock_ttl", cfg.DSF.LockTTL(), 5 * time.Minute},
		{"mqtt.broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"mqtt.client_id", cfg.MQTT.ClientID, "cli"},
		{"mqtt.topic_prefix", cfg.MQTT.TopicPrefix, "ndf"},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"logging.level", cfg.Logging.Level, "info"},
		{"logging.path", cfg.Logging.Path, "var/audit.jsonl"},
		{"logging.max_size_mb", cfg.Logging.MaxSizeMB, 10},
		{"logging.max_backups", cfg.Logging.MaxBackups, 3},
		{"logging.audit", cfg.Logging.AuditEnabled(), true},
		{"scheduler.dsf_retry", cfg.Scheduler.DSFRetry, "off"},
		{"scheduler.reminder", cfg.Scheduler.PendingReminder, "0 8 * * 1-5"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: got %v want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoadJSONDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.json", `{}`))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "ndf.db" {
		t.Fatalf("unexpected database defaults %+v", cfg.Database)
	}
	if cfg.Mail.Enabled() || cfg.MQTT.Enabled() {
		t.Fatalf("mail and mqtt must be disabled without host")
	}
	if cfg.Mail.Auth != "none" {
		t.Fatalf("mail auth %s", cfg.Mail.Auth)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("K_DATABASE__DSN", "override.db")
	t.Setenv("K_LOGGING__LEVEL", "debug")
	cfg, err := Load(writeFile(t, "config.yaml", "database:\n  dsn: file.db\n"))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Database.DSN != "override.db" {
		t.Fatalf("env override not applied: %s", cfg.Database.DSN)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("logging level %s", cfg.Logging.Level)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"database": "database:\n  driver: mysql\n",
		"auth":     "auth:\n  secret: short\n",
		"mail":     "mail:\n  host: smtp.example.org\n  from: not-an-address\n",
		"logging":  "logging:\n  level: loud\n",
		"audit":    "logging:\n  path: audit.jsonl\n  max_backups: -1\n",
		"schedule": "scheduler:\n  dsf_retry: every now and then\n",
		"mqtt":     "mqtt:\n  broker: tcp://b:1883\n  qos: 7\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.yaml", data))
			if err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	_, err := Load(writeFile(t, "config.toml", ""))
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
}
