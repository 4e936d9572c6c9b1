package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs ReconcileAll on a cron schedule. Overlapping runs are
// skipped.
type Scheduler struct {
	cron       *cron.Cron
	reconciler *Reconciler
	timeout    time.Duration
	logger     *slog.Logger
}

// NewScheduler accepts standard cron specs and descriptors such as
// "@every 5m". Each pass is bounded by timeout.
func NewScheduler(schedule string, reconciler *Reconciler, timeout time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		reconciler: reconciler,
		timeout:    timeout,
		logger:     logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.RunOnce); err != nil {
		return nil, err
	}
	return s, nil
}

// RunOnce performs one reconciliation pass.
func (s *Scheduler) RunOnce() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	summary, err := s.reconciler.ReconcileAll(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduled reconciliation failed", "error", err)
		return
	}
	s.logger.InfoContext(ctx, "scheduled reconciliation finished",
		"checked", summary.Checked,
		"failed", summary.Failed,
		"confirmed", summary.Outcomes[OutcomeConfirmed],
		"unconfirmed", summary.Outcomes[OutcomeUnconfirmed],
	)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running pass or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
