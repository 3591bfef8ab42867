package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kilianp07/ndf/core/logger"
	"github.com/kilianp07/ndf/core/monitoring"
)

// JobFunc is one run of a job.
type JobFunc func(ctx context.Context) error

// Scheduler runs jobs on cron specs until its context is cancelled.
type Scheduler struct {
	cron *cron.Cron
	log  logger.Logger
	mon  monitoring.Monitor

	mu  sync.Mutex
	ctx context.Context
}

func New(loc *time.Location, log logger.Logger, mon monitoring.Monitor) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if mon == nil {
		mon = monitoring.NopMonitor{}
	}
	return &Scheduler{
		cron: cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:  log,
		mon:  mon,
		ctx:  context.Background(),
	}
}

// Add registers fn under name. The spec Off or an empty spec skips it.
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	if spec == Off || spec == "" {
		s.log.Infof("job %s disabled", name)
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() { s.run(name, fn) })
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	s.log.Infof("job %s scheduled (%s)", name, spec)
	return nil
}

func (s *Scheduler) run(name string, fn JobFunc) {
	defer monitoring.Swallow(s.mon, map[string]string{"job": name})
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	start := time.Now()
	if err := fn(ctx); err != nil {
		s.log.Errorf("job %s failed: %v", name, err)
		s.mon.CaptureException(err, map[string]string{"job": name})
		return
	}
	s.log.Debugw("job done", map[string]any{"job": name, "duration_ms": time.Since(start).Milliseconds()})
}

// Run starts the cron loop and blocks until ctx is done. Running jobs are
// awaited before it returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

// Entries reports the number of scheduled jobs.
func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }
