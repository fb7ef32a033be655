package batch

import (
	"context"
	"sync"
	"time"

	"github.com/stagehandhq/stagehand/internal/conversation"
)

// MemoryStore is an in-memory batch store for tests and single-process use.
type MemoryStore struct {
	mu      sync.Mutex
	batches map[conversation.Key]*PendingBatch
}

// NewMemoryStore creates an empty in-memory batch store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{batches: make(map[conversation.Key]*PendingBatch)}
}

func (s *MemoryStore) Append(ctx context.Context, key conversation.Key, displayName, text string, quietUntil time.Time) (PendingBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[key]
	if !ok {
		b = &PendingBatch{Key: key}
		s.batches[key] = b
	}
	if displayName != "" {
		b.DisplayName = displayName
	}
	b.Messages = append(b.Messages, Message{Text: text, ArrivedAt: time.Now()})
	b.QuietUntil = quietUntil
	b.Epoch++
	return cloneBatch(*b), nil
}

func (s *MemoryStore) Take(ctx context.Context, key conversation.Key, epoch int64) (PendingBatch, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[key]
	if !ok || b.Epoch != epoch || b.QuietUntil.After(time.Now()) {
		return PendingBatch{}, false, nil
	}
	delete(s.batches, key)
	return cloneBatch(*b), true, nil
}

func (s *MemoryStore) ListDue(ctx context.Context, now time.Time) ([]PendingBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PendingBatch, 0)
	for _, b := range s.batches {
		if !b.QuietUntil.After(now) {
			out = append(out, cloneBatch(*b))
		}
	}
	return out, nil
}

func cloneBatch(b PendingBatch) PendingBatch {
	msgs := make([]Message, len(b.Messages))
	copy(msgs, b.Messages)
	b.Messages = msgs
	return b
}
