package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stagehandhq/stagehand/internal/batch"
	"github.com/stagehandhq/stagehand/internal/conversation"
	"github.com/stagehandhq/stagehand/internal/dialogue"
	"github.com/stagehandhq/stagehand/internal/provider"
	"github.com/stagehandhq/stagehand/internal/reply"
	"github.com/stagehandhq/stagehand/internal/route"
	"github.com/stagehandhq/stagehand/internal/script"
)

// Pipeline runs one turn end to end: acquire the conversation, compile the
// instruction, invoke the dialogue, parse the output, dispatch the items, and
// persist the resulting state in one final update.
type Pipeline struct {
	logger        *slog.Logger
	routes        route.Reader
	conversations conversation.Store
	registry      *provider.Registry
	invoker       dialogue.Invoker
	dispatcher    *Dispatcher
	turnTimeout   time.Duration
}

// NewPipeline creates a turn pipeline. turnTimeout bounds the advisory lock.
func NewPipeline(
	log *slog.Logger,
	routes route.Reader,
	conversations conversation.Store,
	registry *provider.Registry,
	invoker dialogue.Invoker,
	turnTimeout time.Duration,
) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if turnTimeout <= 0 {
		turnTimeout = 90 * time.Second
	}
	return &Pipeline{
		logger:        log.With(slog.String("component", "pipeline")),
		routes:        routes,
		conversations: conversations,
		registry:      registry,
		invoker:       invoker,
		dispatcher:    NewDispatcher(log),
		turnTimeout:   turnTimeout,
	}
}

// Run implements Runner.
func (p *Pipeline) Run(ctx context.Context, b batch.PendingBatch) error {
	key := b.Key
	log := p.logger.With(slog.String("key", key.String()))

	rt, err := p.routes.Get(ctx, key.RouteID)
	if err != nil {
		return fmt.Errorf("resolve route: %w", err)
	}

	rec, err := p.conversations.AcquireTurn(ctx, key, b.DisplayName, p.turnTimeout)
	if errors.Is(err, conversation.ErrHandedOff) {
		// No automated turn, but the messages must stay visible to the
		// operator handling the conversation.
		if _, recErr := p.conversations.RecordInbound(ctx, key, b.DisplayName, b.CombinedText()); recErr != nil {
			log.Error("record inbound during handoff", slog.Any("error", recErr))
		}
		log.Info("turn skipped: human handoff active")
		return nil
	}
	if errors.Is(err, conversation.ErrTurnLocked) {
		log.Info("turn skipped: lock held by in-flight turn")
		return nil
	}
	if err != nil {
		return fmt.Errorf("acquire turn: %w", err)
	}

	def := script.Parse(rt.Script)
	instruction := script.Compile(script.CompileInput{Definition: def, Record: rec})
	utterance := b.CombinedText()

	raw, err := p.invoker.Invoke(ctx, dialogue.Request{
		SystemInstruction: instruction,
		UserUtterance:     utterance,
		Model:             rt.Model,
	})
	if err != nil {
		// No reply is sent; the lock is released so the next inbound message
		// can retrigger a fresh turn.
		if relErr := p.conversations.ReleaseLock(ctx, key); relErr != nil {
			log.Error("release lock after invocation failure", slog.Any("error", relErr))
		}
		return fmt.Errorf("dialogue invocation: %w", err)
	}

	parsed := reply.Parse(log, raw, def.Stages)
	if parsed.Degraded {
		log.Warn("model output malformed, using degraded reply")
	}

	sender, err := p.senderFor(rt)
	if err != nil {
		if relErr := p.conversations.ReleaseLock(ctx, key); relErr != nil {
			log.Error("release lock after sender failure", slog.Any("error", relErr))
		}
		return fmt.Errorf("build sender: %w", err)
	}

	result := p.dispatcher.Dispatch(ctx, sender, key.SenderID, parsed.Items)
	if result.Failed > 0 {
		log.Warn("partial delivery",
			slog.Int("sent", result.Sent), slog.Int("failed", result.Failed))
	}

	if _, err := p.conversations.PersistTurn(ctx, key, conversation.TurnUpdate{
		Stage:          parsed.Stage,
		CapturedDetail: parsed.CapturedDetail,
		InboundText:    utterance,
		ReplyText:      result.ReplyText,
	}); err != nil {
		return fmt.Errorf("persist turn: %w", err)
	}

	log.Info("turn completed",
		slog.Int("messages", len(b.Messages)),
		slog.Int("items", len(parsed.Items)),
		slog.String("stage", parsed.Stage))
	return nil
}

func (p *Pipeline) senderFor(rt route.Route) (provider.Sender, error) {
	adapter, ok := p.registry.Get(rt.ProviderKind)
	if !ok {
		return nil, fmt.Errorf("no adapter for provider kind %q", rt.ProviderKind)
	}
	return adapter.NewSender(rt.Credentials)
}
