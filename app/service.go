// Package app wires the stores, the workflow services and the servers of
// the ndf service.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/ndf/api"
	"github.com/kilianp07/ndf/auth"
	"github.com/kilianp07/ndf/config"
	coreaudit "github.com/kilianp07/ndf/core/audit"
	"github.com/kilianp07/ndf/core/dsf"
	"github.com/kilianp07/ndf/core/expense"
	"github.com/kilianp07/ndf/core/forms"
	coremetrics "github.com/kilianp07/ndf/core/metrics"
	coremon "github.com/kilianp07/ndf/core/monitoring"
	"github.com/kilianp07/ndf/core/report"
	"github.com/kilianp07/ndf/core/scheduler"
	infraaudit "github.com/kilianp07/ndf/infra/audit"
	"github.com/kilianp07/ndf/infra/lock"
	"github.com/kilianp07/ndf/infra/logger"
	"github.com/kilianp07/ndf/infra/mail"
	"github.com/kilianp07/ndf/infra/metrics"
	"github.com/kilianp07/ndf/infra/monitoring"
	"github.com/kilianp07/ndf/infra/mqtt"
	"github.com/kilianp07/ndf/infra/pdf"
	"github.com/kilianp07/ndf/infra/storage"
	"github.com/kilianp07/ndf/infra/store"
	"github.com/kilianp07/ndf/internal/eventbus"
)

// Service holds every component of a running ndf instance.
type Service struct {
	cfg *config.Config
	log logger.Logger

	Store      *store.Store
	Files      *storage.Disk
	Bus        *eventbus.Bus
	Sheets     *expense.Service
	Org        *expense.Organisation
	Forms      *forms.Service
	Reports    *report.Service
	Mailer     *mail.Mailer
	Dispatcher *dsf.Dispatcher
	Monitor    coremon.Monitor
	Sink       coremetrics.MetricsSink
	// Audit is nil when logging.path is empty.
	Audit coreaudit.Store

	closers []func() error
}

// OpenStore connects to the configured database and applies migrations
// when database.auto_migrate is set.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (*store.Store, error) {
	st, err := store.Open(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.AutoMigrate {
		if _, err := st.Migrate(store.Up); err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	return st, nil
}

// New builds the service from the configuration. Nothing listens until Run.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	s := &Service{cfg: cfg, log: logger.New("service")}
	if err := s.init(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) init(ctx context.Context) error {
	cfg := s.cfg
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)
	s.Monitor = mon

	if s.Store, err = OpenStore(ctx, cfg.Database); err != nil {
		return err
	}
	s.closers = append(s.closers, s.Store.Close)
	if s.Files, err = storage.NewDisk(cfg.Storage.Root); err != nil {
		return err
	}

	s.Bus = eventbus.NewWithBuffer(64)
	if cfg.Logging.AuditEnabled() {
		trail, err := infraaudit.NewJSONLStore(cfg.Logging.Path, infraaudit.Options{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		})
		if err != nil {
			return fmt.Errorf("audit trail: %w", err)
		}
		s.Audit = trail
		s.closers = append(s.closers, trail.Close)
	}
	s.Sheets = expense.NewService(s.Store, s.Store, s.Store, s.Files, s.Bus, logger.New("expense"))
	s.Sheets.SetMaxUpload(cfg.Storage.MaxUploadBytes())
	s.Org = expense.NewOrganisation(s.Store)
	s.Forms = forms.NewService(s.Store, logger.New("forms"))
	s.Reports = report.NewService(s.Store, s.Store)

	if s.Sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
		return fmt.Errorf("metrics sinks: %w", err)
	}

	var tokens mail.TokenSource
	if cfg.Mail.Auth == "xoauth2" {
		tokens = auth.NewClientCred(cfg.Mail.OAuth2)
	}
	if s.Mailer, err = mail.New(cfg.Mail, tokens, logger.New("mail")); err != nil {
		return fmt.Errorf("mailer: %w", err)
	}
	lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	locker, closeLock, err := lock.New(lockCtx, cfg.Redis)
	cancel()
	if err != nil {
		return fmt.Errorf("dsf lock: %w", err)
	}
	s.closers = append(s.closers, closeLock)

	s.Dispatcher = dsf.NewDispatcher(dsf.Deps{
		Sheets:    s.Store,
		Directory: s.Store,
		Forms:     s.Store,
		Compiler:  pdf.NewRenderer(s.Files, cfg.DSF.Author, logger.New("pdf")),
		Mailer:    s.Mailer,
		Locker:    locker,
		Bus:       s.Bus,
		Monitor:   mon,
		Log:       logger.New("dsf"),
	}, dsf.Config{
		Recipients:    cfg.DSF.Recipients,
		SubjectPrefix: cfg.DSF.SubjectPrefix,
		LockTTL:       cfg.DSF.LockTTL(),
	})
	s.Sheets.AddApprovalHook(s.Dispatcher)
	return nil
}

// APIDeps assembles the dependencies of the API router.
func (s *Service) APIDeps() (*api.Deps, error) {
	verifier, err := auth.NewVerifier(s.cfg.Auth.Secret, s.cfg.Auth.Issuer)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	var rec coremetrics.HTTPRecorder = coremetrics.NopSink{}
	if r, ok := s.Sink.(coremetrics.HTTPRecorder); ok {
		rec = r
	}
	return &api.Deps{
		Sheets:        s.Sheets,
		Forms:         s.Forms,
		Org:           s.Org,
		Reports:       s.Reports,
		DSF:           s.Dispatcher,
		Audit:         s.Audit,
		Users:         s.Store,
		Verifier:      verifier,
		Metrics:       rec,
		Monitor:       s.Monitor,
		Log:           logger.New("api"),
		Health:        s.Store.Ping,
		MaxUpload:     s.cfg.Storage.MaxUploadBytes(),
		RatePerSecond: s.cfg.HTTP.RatePerSecond,
		RateBurst:     s.cfg.HTTP.RateBurst,
	}, nil
}

// Scheduler registers the cron jobs.
func (s *Service) Scheduler() (*scheduler.Scheduler, error) {
	loc, err := s.cfg.Scheduler.Location()
	if err != nil {
		return nil, err
	}
	sch := scheduler.New(loc, logger.New("scheduler"), s.Monitor)
	if err := sch.Add("dsf_retry", s.cfg.Scheduler.DSFRetry, scheduler.DSFRetry(s.Dispatcher, logger.New("dsf_retry"))); err != nil {
		return nil, err
	}
	if s.cfg.Mail.Enabled() {
		rem := scheduler.Reminder{Users: s.Store, Pending: s.Sheets, Mailer: s.Mailer, Log: logger.New("reminder")}
		if err := sch.Add("pending_reminder", s.cfg.Scheduler.PendingReminder, rem.Run); err != nil {
			return nil, err
		}
	} else {
		s.log.Infof("mail disabled, pending reminders off")
	}
	return sch, nil
}

// Run serves the API, the metrics endpoint, the notifiers and the
// scheduler until ctx is canceled or one of them fails.
func (s *Service) Run(ctx context.Context) error {
	deps, err := s.APIDeps()
	if err != nil {
		return err
	}
	sch, err := s.Scheduler()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	collector := metrics.StartEventCollector(ctx, s.Bus, s.Sink)
	trail := coreaudit.Start(ctx, s.Bus, s.Audit, logger.New("audit"))
	if s.cfg.MQTT.Enabled() {
		client, err := mqtt.NewPahoClient(s.cfg.MQTT)
		if err != nil {
			return fmt.Errorf("mqtt client: %w", err)
		}
		defer client.Disconnect()
		notifier := mqtt.NewNotifier(client, s.cfg.MQTT.TopicPrefix, logger.New("notifier"))
		wg := notifier.Start(ctx, s.Bus)
		defer wg.Wait()
	}
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		g.Go(func() error { return metrics.StartPromServer(ctx, addr, nil) })
	}
	g.Go(func() error { return sch.Run(ctx) })
	srv := api.NewServer(s.cfg.HTTP, api.NewRouter(*deps), logger.New("http"))
	g.Go(func() error { return srv.Run(ctx) })

	err = g.Wait()
	s.Dispatcher.Wait()
	collector.Wait()
	trail.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases resources in reverse order of acquisition.
func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	if s.Bus != nil {
		s.Bus.Close()
	}
	if c, ok := s.Sink.(interface{ Close() }); ok {
		c.Close()
	}
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
