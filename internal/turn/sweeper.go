package turn

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/stagehandhq/stagehand/internal/batch"
)

// Sweeper periodically re-arms persisted batches whose quiet deadline has
// passed but whose in-process timer is gone, which happens after a restart.
// It runs once at startup and then on the configured interval.
type Sweeper struct {
	logger    *slog.Logger
	store     batch.Store
	scheduler *Scheduler
	cron      *cron.Cron
	interval  time.Duration
}

// NewSweeper creates a maintenance sweeper.
func NewSweeper(log *slog.Logger, store batch.Store, scheduler *Scheduler, interval time.Duration) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{
		logger:    log.With(slog.String("component", "sweeper")),
		store:     store,
		scheduler: scheduler,
		cron:      cron.New(),
		interval:  interval,
	}
}

// Start runs one immediate sweep and schedules the recurring one.
func (s *Sweeper) Start() error {
	s.sweep()
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the recurring sweep and waits for a running one.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) sweep() {
	due, err := s.store.ListDue(context.Background(), time.Now())
	if err != nil {
		s.logger.Error("list due batches failed", slog.Any("error", err))
		return
	}
	for _, b := range due {
		s.logger.Info("re-arming overdue batch",
			slog.String("key", b.Key.String()),
			slog.Int64("epoch", b.Epoch))
		s.scheduler.Rearm(b.Key, b.Epoch, 0)
	}
}
