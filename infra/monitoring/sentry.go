// Package monitoring reports errors and panics to Sentry.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/kilianp07/ndf/config"
	coremon "github.com/kilianp07/ndf/core/monitoring"
)

// scrubbed request headers carry bearer tokens or session material.
var scrubbed = []string{"Authorization", "Cookie", "Set-Cookie", "X-Api-Key"}

// NewSentryMonitor initializes Sentry. An empty DSN yields a NopMonitor.
func NewSentryMonitor(cfg config.SentryConfig) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	rate := cfg.SampleRate
	if rate == 0 {
		rate = 1
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       rate,
		TracesSampleRate: cfg.TracesSampleRate,
		Debug:            cfg.Debug,
		AttachStacktrace: true,
		BeforeSend:       scrub,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry init: %w", err)
	}
	hub := sentry.NewHub(client, sentry.NewScope())
	hub.Scope().SetTag("service", "ndf")
	return &sentryMonitor{hub: hub}, nil
}

// scrub drops cancellations and strips credentials and e-mail addresses
// before an event leaves the process.
func scrub(ev *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if hint != nil && hint.OriginalException != nil && ignored(hint.OriginalException) {
		return nil
	}
	if ev.Request != nil {
		for _, h := range scrubbed {
			delete(ev.Request.Headers, h)
			delete(ev.Request.Headers, http.CanonicalHeaderKey(h))
		}
		ev.Request.Cookies = ""
	}
	ev.User.Email = ""
	ev.User.IPAddress = ""
	return ev
}

func ignored(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, http.ErrServerClosed)
}

type sentryMonitor struct {
	hub *sentry.Hub
}

func (s *sentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		s.hub.CaptureException(err)
	})
}

func (s *sentryMonitor) Recover() {
	if r := recover(); r != nil {
		s.hub.Recover(r)
		s.hub.Flush(2 * time.Second)
		panic(r)
	}
}

func (s *sentryMonitor) Flush(timeout time.Duration) { s.hub.Flush(timeout) }
