package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"ddl-cache/internal/service/scan"
)

// Scheduler runs audits on a cron schedule. A tick that fires while the
// previous run is still going is skipped.
type Scheduler struct {
	cron   *cron.Cron
	svc    *Service
	opts   scan.Options
	logger *slog.Logger

	mu      sync.Mutex
	entry   cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// NewScheduler creates a scheduler running svc with opts.
func NewScheduler(svc *Service, opts scan.Options, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		svc:    svc,
		opts:   opts,
		logger: logger,
	}
}

// Start registers schedule (standard 5-field cron syntax) and starts the
// scheduler. Runs use a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context, schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("audit scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	entry, err := s.cron.AddFunc(schedule, s.tick)
	if err != nil {
		s.cancel()
		s.cancel = nil
		return fmt.Errorf("invalid audit schedule %q: %w", schedule, err)
	}
	s.entry = entry
	s.cron.Start()
	s.logger.Info("audit scheduler started", "schedule", schedule)
	return nil
}

// Stop cancels any in-flight run and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.running.Wait()
	s.logger.Info("audit scheduler stopped")
}

// Next reports when the next run is due.
func (s *Scheduler) Next() (next string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == 0 {
		return "", false
	}
	return s.cron.Entry(s.entry).Next.String(), true
}

func (s *Scheduler) tick() {
	s.running.Add(1)
	defer s.running.Done()

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	run, err := s.svc.Run(ctx, s.opts)
	if err != nil {
		s.logger.Warn("scheduled audit failed", "error", err)
		return
	}
	if run.BrokenCount > 0 {
		s.logger.Warn("scheduled audit found broken columns", "run_id", run.ID, "broken", run.BrokenCount)
	}
}
