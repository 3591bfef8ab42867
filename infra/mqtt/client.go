// Package mqtt pushes expense notifications to the mobile client over MQTT.
package mqtt

import (
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremon "github.com/kilianp07/ndf/core/monitoring"
	"github.com/kilianp07/ndf/infra/logger"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"
)

// ErrTimeout is returned when the broker did not acknowledge in time.
var ErrTimeout = errors.New("mqtt: broker timeout")

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// PahoClient publishes notifications with bounded retries and keeps a
// retained presence flag on the status topic.
type PahoClient struct {
	cli    pahoClient
	cfg    Config
	log    logger.Logger
	sleep  func(time.Duration)
	status string
}

// NewPahoClient connects to the broker.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	pc := &PahoClient{cfg: cfg, log: logger.New("mqtt"), sleep: time.Sleep, status: cfg.StatusTopic}
	opts.OnConnect = func(c paho.Client) {
		pc.log.Infof("connected to %s", cfg.Broker)
		// presence is refreshed on every reconnect, the will cleared it
		c.Publish(pc.status, 1, true, statusOnline)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		pc.log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(paho.Client, *paho.ClientOptions) {
		pc.log.Warnf("reconnecting to %s", cfg.Broker)
	}
	c := newMQTTClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(cfg.connectTimeout()) {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, ErrTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, err)
	}
	pc.cli = c
	return pc, nil
}

// NewClientOptions maps Config to paho options, including the offline
// last will on the status topic.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.connectTimeout())
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.StatusTopic != "" {
		opts.SetWill(cfg.StatusTopic, statusOffline, 1, true)
	}
	return opts, nil
}

// Publish sends payload on topic at the configured QoS, retrying with
// exponential backoff. The last error is reported to the monitor.
func (p *PahoClient) Publish(topic string, payload []byte) error {
	retries := max(p.cfg.MaxRetries, 0)
	backoff := time.Duration(p.cfg.BackoffMS) * time.Millisecond
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if err = p.publishOnce(topic, payload, false); err == nil {
			p.log.Debugf("published %d bytes on %s", len(payload), topic)
			return nil
		}
		p.log.Warnf("publish attempt %d on %s failed: %v", attempt+1, topic, err)
		if attempt < retries {
			p.sleep(backoff << attempt)
		}
	}
	coremon.CaptureException(err, map[string]string{"module": "mqtt", "topic": topic})
	return err
}

func (p *PahoClient) publishOnce(topic string, payload any, retained bool) error {
	tok := p.cli.Publish(topic, p.cfg.QoS, retained, payload)
	if !tok.WaitTimeout(p.cfg.publishTimeout()) {
		return ErrTimeout
	}
	return tok.Error()
}

// Disconnect marks the server offline and closes the connection.
func (p *PahoClient) Disconnect() {
	if p.cli == nil || !p.cli.IsConnected() {
		return
	}
	if p.status != "" {
		if err := p.publishOnce(p.status, statusOffline, true); err != nil {
			p.log.Warnf("status offline: %v", err)
		}
	}
	p.cli.Disconnect(250)
}
