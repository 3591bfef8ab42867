package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config defines the broker connection of the notifier. The notifier is
// disabled while Broker is empty.
type Config struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	QoS         byte   `json:"qos"`

	UseTLS     bool   `json:"use_tls"`
	ClientCert string `json:"client_cert"`
	ClientKey  string `json:"client_key"`
	CABundle   string `json:"ca_bundle"`

	// StatusTopic receives a retained "online" on connect and "offline" on
	// disconnect or as last will. Defaults to {prefix}/server/status.
	StatusTopic string `json:"status_topic"`

	MaxRetries       int `json:"max_retries"`
	BackoffMS        int `json:"backoff_ms"`
	ConnectTimeoutMS int `json:"connect_timeout_ms"`
	PublishTimeoutMS int `json:"publish_timeout_ms"`

	TLSConfig *tls.Config `json:"-"`
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool { return c.Broker != "" }

func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "ndf-server"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "ndf"
	}
	if c.StatusTopic == "" {
		c.StatusTopic = c.TopicPrefix + "/server/status"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS == 0 {
		c.BackoffMS = 100
	}
	if c.ConnectTimeoutMS == 0 {
		c.ConnectTimeoutMS = 10000
	}
	if c.PublishTimeoutMS == 0 {
		c.PublishTimeoutMS = 5000
	}
}

func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	var errs []error
	if c.QoS > 2 {
		errs = append(errs, errors.New("qos must be 0, 1 or 2"))
	}
	for _, t := range []string{c.TopicPrefix, c.StatusTopic} {
		if strings.ContainsAny(t, "#+") || strings.HasSuffix(t, "/") {
			errs = append(errs, fmt.Errorf("invalid topic %q", t))
		}
	}
	if c.MaxRetries < 0 || c.BackoffMS < 0 || c.ConnectTimeoutMS < 0 || c.PublishTimeoutMS < 0 {
		errs = append(errs, errors.New("retries, backoff and timeouts must be >= 0"))
	}
	if c.UseTLS && c.TLSConfig == nil && (c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "") {
		errs = append(errs, errors.New("use_tls requires client_cert, client_key and ca_bundle"))
	}
	return errors.Join(errs...)
}

func (c Config) connectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
}

func (c Config) publishTimeout() time.Duration {
	if c.PublishTimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.PublishTimeoutMS) * time.Millisecond
}

// LoadTLSConfig builds the mutual TLS configuration from the PEM files.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("no certificate in %s", c.CABundle)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}
