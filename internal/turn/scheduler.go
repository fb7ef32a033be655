// Package turn drives one full processing cycle per conversation: a coalesced
// batch of inbound text, one dialogue invocation, one dispatched reply, one
// durable state update.
package turn

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stagehandhq/stagehand/internal/batch"
	"github.com/stagehandhq/stagehand/internal/conversation"
)

// Runner processes a quiesced batch. The scheduler guarantees it is invoked
// at most once per batch epoch.
type Runner interface {
	Run(ctx context.Context, b batch.PendingBatch) error
}

// Scheduler coalesces bursts of inbound messages per conversation key. Each
// append pushes the quiet deadline forward and re-arms a deferred callback
// carrying the batch's current epoch; a callback whose epoch has been
// superseded by a later append takes nothing from the store and exits
// silently. Exactly one callback wins each batch.
type Scheduler struct {
	logger *slog.Logger
	store  batch.Store
	runner Runner
	window time.Duration

	mu     sync.Mutex
	timers map[conversation.Key]*time.Timer
	closed bool

	wg sync.WaitGroup
}

// NewScheduler creates a scheduler with the given quiet window.
func NewScheduler(log *slog.Logger, store batch.Store, runner Runner, window time.Duration) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if window <= 0 {
		window = 4 * time.Second
	}
	return &Scheduler{
		logger: log.With(slog.String("component", "scheduler")),
		store:  store,
		runner: runner,
		window: window,
		timers: make(map[conversation.Key]*time.Timer),
	}
}

// Window returns the configured quiet window.
func (s *Scheduler) Window() time.Duration {
	return s.window
}

// Enqueue buffers one inbound message and (re)arms the quiet-window timer.
func (s *Scheduler) Enqueue(ctx context.Context, key conversation.Key, displayName, text string) error {
	b, err := s.store.Append(ctx, key, displayName, text, time.Now().Add(s.window))
	if err != nil {
		return err
	}
	s.arm(key, b.Epoch, time.Until(b.QuietUntil))
	return nil
}

// Rearm schedules processing for an already-persisted batch; the maintenance
// sweep uses it to recover batches whose timers were lost to a restart.
func (s *Scheduler) Rearm(key conversation.Key, epoch int64, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	s.arm(key, epoch, delay)
}

// arm accounts every timer in the wait group up front; whoever retires a timer
// (its own callback, a replacement here, or Close) is responsible for the
// matching Done. Adding before the timer exists keeps Close's Wait from racing
// a callback that has fired but not yet registered itself.
func (s *Scheduler) arm(key conversation.Key, epoch int64, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if prev, ok := s.timers[key]; ok {
		if prev.Stop() {
			s.wg.Done()
		}
	}
	s.wg.Add(1)
	s.timers[key] = time.AfterFunc(delay, func() {
		s.fire(key, epoch)
	})
}

// fire is the deferred callback. It re-reads the batch through Take, which
// only succeeds when the armed epoch is still current; otherwise a later
// append owns the batch and this callback is stale.
func (s *Scheduler) fire(key conversation.Key, epoch int64) {
	defer s.wg.Done()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.timers, key)
	s.mu.Unlock()

	ctx := context.Background()
	b, ok, err := s.store.Take(ctx, key, epoch)
	if err != nil {
		s.logger.Error("take batch failed",
			slog.String("key", key.String()), slog.Any("error", err))
		return
	}
	if !ok {
		// Superseded epoch; a later callback will do the work.
		return
	}

	// The batch is already cleared: a failing pipeline must not block future
	// bursts for this key.
	if err := s.runner.Run(ctx, b); err != nil {
		s.logger.Error("turn failed",
			slog.String("key", key.String()),
			slog.Int("messages", len(b.Messages)),
			slog.Any("error", err))
	}
}

// Close stops all armed timers and waits for in-flight callbacks.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for key, t := range s.timers {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.timers, key)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
