package turn

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/stagehandhq/stagehand/internal/provider"
	"github.com/stagehandhq/stagehand/internal/reply"
)

// Dispatcher sends reply content items through a provider sender, in order.
// A failed item is skipped after one retry; subsequent items are still
// attempted, and the turn persists regardless. Partial delivery is reported,
// not rolled back: the user may see a reply without an expected media item.
type Dispatcher struct {
	logger *slog.Logger
	// retryDelay is the base delay before the single retry; jittered up to 2x.
	retryDelay time.Duration
	sleep      func(time.Duration)
}

// DispatchResult summarizes one dispatch pass.
type DispatchResult struct {
	Sent      int
	Failed    int
	ReplyText string
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		logger:     log.With(slog.String("component", "dispatch")),
		retryDelay: 500 * time.Millisecond,
		sleep:      time.Sleep,
	}
}

// Dispatch sends the items to recipient strictly in order. ReplyText collects
// the text payloads (and media captions) for the conversation's short-term
// history.
func (d *Dispatcher) Dispatch(ctx context.Context, sender provider.Sender, recipient string, items []reply.ContentItem) DispatchResult {
	var result DispatchResult
	var replyParts []string

	for i, item := range items {
		msgID, err := d.sendWithRetry(ctx, sender, recipient, item)
		if err != nil {
			result.Failed++
			d.logger.Error("send failed, item skipped",
				slog.Int("item", i),
				slog.String("kind", string(item.Kind)),
				slog.Any("error", err))
			continue
		}
		result.Sent++
		d.logger.Debug("item sent",
			slog.Int("item", i),
			slog.String("kind", string(item.Kind)),
			slog.String("provider_message_id", msgID))

		switch item.Kind {
		case reply.KindText:
			replyParts = append(replyParts, item.Payload)
		default:
			if item.Caption != "" {
				replyParts = append(replyParts, item.Caption)
			}
		}
	}

	result.ReplyText = strings.Join(replyParts, "\n")
	return result
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, sender provider.Sender, recipient string, item reply.ContentItem) (string, error) {
	msgID, err := d.send(ctx, sender, recipient, item)
	if err == nil || ctx.Err() != nil {
		return msgID, err
	}
	// One bounded retry with jitter. Sender errors are opaque, so every
	// failure gets the same single second attempt.
	d.sleep(d.retryDelay + time.Duration(rand.Int63n(int64(d.retryDelay))))
	return d.send(ctx, sender, recipient, item)
}

func (d *Dispatcher) send(ctx context.Context, sender provider.Sender, recipient string, item reply.ContentItem) (string, error) {
	switch item.Kind {
	case reply.KindImage:
		return sender.SendImage(ctx, recipient, item.Payload, item.Caption)
	case reply.KindVideo:
		return sender.SendVideo(ctx, recipient, item.Payload, item.Caption)
	case reply.KindAudio:
		return sender.SendAudio(ctx, recipient, item.Payload)
	default:
		return sender.SendText(ctx, recipient, item.Payload)
	}
}
