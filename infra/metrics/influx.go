package metrics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/ndf/core/metrics"
	"github.com/kilianp07/ndf/infra/logger"
)

// InfluxConfig is the conf block of an "influx" sink.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
	// Measurement defaults to expense_event.
	Measurement string        `json:"measurement"`
	Timeout     time.Duration `json:"timeout"`
	// Strict fails startup instead of falling back to a NopSink when the
	// instance is unhealthy.
	Strict bool `json:"strict"`
}

func (c *InfluxConfig) setDefaults() {
	c.URL = strings.TrimSuffix(c.URL, "/api/v2/write")
	if c.Measurement == "" {
		c.Measurement = "expense_event"
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
}

func (c InfluxConfig) validate() error {
	if c.URL == "" || c.Org == "" || c.Bucket == "" {
		return errors.New("url, org and bucket are required")
	}
	return nil
}

// InfluxSink writes one point per expense event, tagged by department and
// event kind.
type InfluxSink struct {
	cfg      InfluxConfig
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink connects lazily to the configured bucket.
func NewInfluxSink(cfg InfluxConfig) (*InfluxSink, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	return &InfluxSink{
		cfg:      cfg,
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}, nil
}

// OpenInfluxSink checks the instance health first. An unhealthy instance
// yields a NopSink unless cfg.Strict is set.
func OpenInfluxSink(cfg InfluxConfig) (coremetrics.MetricsSink, error) {
	sink, err := NewInfluxSink(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), sink.cfg.Timeout)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err == nil && health.Status != "pass" {
		err = fmt.Errorf("status %s", health.Status)
	}
	if err == nil {
		return sink, nil
	}
	sink.client.Close()
	if cfg.Strict {
		return nil, fmt.Errorf("influx health: %w", err)
	}
	sink.log.Errorf("influx unavailable, metrics disabled: %v", err)
	return coremetrics.NopSink{}, nil
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSheetEvent writes one point per lifecycle step.
func (s *InfluxSink) RecordSheetEvent(ev coremetrics.SheetEvent) error {
	p := write.NewPointWithMeasurement(s.cfg.Measurement).
		AddTag("department", ev.Department).
		AddTag("event", "sheet_"+ev.Kind).
		AddField("sheet_id", ev.SheetID).
		AddField("amount", round2(ev.Amount)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordDSF writes the delivery outcome.
func (s *InfluxSink) RecordDSF(ev coremetrics.DSFEvent) error {
	event := "dsf_failed"
	if ev.Success {
		event = "dsf_dispatched"
	}
	p := write.NewPointWithMeasurement(s.cfg.Measurement).
		AddTag("department", ev.Department).
		AddTag("event", event).
		AddField("sheet_id", ev.SheetID).
		AddField("amount", round2(ev.Amount)).
		AddField("pages", ev.Pages).
		SetTime(ev.Time)
	return s.write(p)
}

// Close releases the HTTP client.
func (s *InfluxSink) Close() { s.client.Close() }

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
