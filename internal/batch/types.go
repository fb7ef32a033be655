// Package batch stores pending inbound-message batches while a conversation's
// coalescing window is open. Batches are durable: a restart loses the armed
// timer but not the messages, and the maintenance sweep re-arms overdue ones.
package batch

import (
	"context"
	"strings"
	"time"

	"github.com/stagehandhq/stagehand/internal/conversation"
)

// Message is one buffered inbound message.
type Message struct {
	Text      string    `json:"text"`
	ArrivedAt time.Time `json:"arrived_at"`
}

// PendingBatch accumulates a burst of messages for one conversation key.
// Epoch increases on every append; a deferred callback armed with an older
// epoch is stale and must not process the batch.
type PendingBatch struct {
	Key         conversation.Key
	DisplayName string
	Messages    []Message
	QuietUntil  time.Time
	Epoch       int64
}

// CombinedText joins the buffered texts, in arrival order, into the single
// utterance the dialogue sees.
func (b PendingBatch) CombinedText() string {
	parts := make([]string, 0, len(b.Messages))
	for _, m := range b.Messages {
		parts = append(parts, m.Text)
	}
	return strings.Join(parts, "\n")
}

// Store is the pending-batch storage contract. All operations are atomic per
// key; the epoch comparison in Take is the stale-callback guard.
type Store interface {
	// Append adds text to the key's batch, creating it if absent, pushes the
	// quiet deadline forward, and increments the epoch. Returns the updated
	// batch.
	Append(ctx context.Context, key conversation.Key, displayName, text string, quietUntil time.Time) (PendingBatch, error)

	// Take removes and returns the batch if its epoch still equals epoch AND
	// its quiet deadline has passed. Epoch numbering restarts when a batch is
	// recreated after a take, so the epoch alone cannot distinguish a stale
	// token from a fresh batch that happens to share the number; the quiet
	// deadline check closes that hole. A false second return means the batch
	// is gone, superseded, or still inside its window; the caller must exit
	// silently.
	Take(ctx context.Context, key conversation.Key, epoch int64) (PendingBatch, bool, error)

	// ListDue returns batches whose quiet deadline is at or before now; used
	// by the maintenance sweep to re-arm timers lost to a restart.
	ListDue(ctx context.Context, now time.Time) ([]PendingBatch, error)
}
