// Package scheduler runs the periodic overdue sweep.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kendall-kelly/field-service-api/logger"
	"github.com/kendall-kelly/field-service-api/services"
	"github.com/robfig/cron/v3"
)

// Sweeper is the work the scheduler triggers
type Sweeper interface {
	Sweep(ctx context.Context) (services.SweepResult, error)
}

// Scheduler triggers a Sweeper on a cron schedule. Runs never overlap; a
// tick that arrives while a sweep is still going is skipped.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	log     *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

// New parses spec (standard five-field cron or a descriptor such as
// "@every 5m") and prepares a stopped scheduler.
func New(sweeper Sweeper, spec string, log *logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.L()
	}
	cronLog := cronLogger{log: log}

	s := &Scheduler{
		sweeper: sweeper,
		log:     log,
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		s.cancel()
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins triggering sweeps in the background
func (s *Scheduler) Start() {
	s.log.Info("overdue sweep scheduler started", "next_run", s.cron.Entries()[0].Schedule.Next(time.Now()))
	s.cron.Start()
}

// Stop halts the schedule, cancels an in-flight sweep and waits for it to
// return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()

	select {
	case <-done.Done():
		s.log.Info("overdue sweep scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for sweep to finish: %w", ctx.Err())
	}
}

// Run starts the scheduler and blocks until ctx is cancelled, then stops it
// within timeout.
func (s *Scheduler) Run(ctx context.Context, timeout time.Duration) error {
	s.Start()
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Stop(stopCtx)
}

// RunNow performs one sweep synchronously, serialized with scheduled runs
func (s *Scheduler) RunNow(ctx context.Context) (services.SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweeper.Sweep(ctx)
}

func (s *Scheduler) run() {
	if _, err := s.RunNow(s.ctx); err != nil {
		s.log.Error("overdue sweep failed", "error", err)
	}
}

// cronLogger adapts logger.Logger to cron.Logger
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
