package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tuannvm/jira-dashboard/internal/logging"
)

// Scheduler runs a refresh cycle at a fixed interval. A tick that fires
// while the previous scheduled cycle is still running is skipped.
type Scheduler struct {
	cron      *cron.Cron
	refresher *Refresher
	interval  time.Duration

	// scheduled cycles run on ctx, cancelled first by Stop
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler for r
func NewScheduler(r *Refresher, interval time.Duration) *Scheduler {
	logger := cronLogger{}
	ctx, cancel := context.WithCancel(r.ctx)
	return &Scheduler{
		cron:      cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		refresher: r,
		interval:  interval,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start registers the job, fires an immediate refresh and starts the cron loop
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		return fmt.Errorf("scheduler: interval must be positive, got %s", s.interval)
	}
	spec := fmt.Sprintf("@every %s", s.interval)
	_, err := s.cron.AddFunc(spec, func() {
		if _, err := s.refresher.Refresh(s.ctx); err != nil && !errors.Is(err, ErrSuperseded) && s.ctx.Err() == nil {
			logging.Warnf("Scheduled refresh failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q: %w", spec, err)
	}

	s.cron.Start()
	logging.Infof("Refresh scheduler started (every %s)", s.interval)
	s.refresher.Trigger()
	return nil
}

// Run starts the scheduler and blocks until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop cancels the cycle in flight and waits for running jobs to return
func (s *Scheduler) Stop() {
	s.cancel()
	s.refresher.CancelInFlight()
	<-s.cron.Stop().Done()
	logging.Infof("Refresh scheduler stopped")
}

// cronLogger routes cron's own logging through zap
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logging.Debugw("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logging.Logger.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
