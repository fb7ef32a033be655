package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and single-process development.
type MemoryStore struct {
	mu      sync.Mutex
	records map[Key]*Record
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[Key]*Record),
		now:     time.Now,
	}
}

// SetClock overrides the store's clock; for tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) AcquireTurn(ctx context.Context, key Key, displayName string, lockTTL time.Duration) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, ok := s.records[key]
	if !ok {
		rec = &Record{
			ID:          uuid.NewString(),
			RouteID:     key.RouteID,
			SenderID:    key.SenderID,
			DisplayName: displayName,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		s.records[key] = rec
	}
	if rec.HumanHandoff {
		return Record{}, ErrHandedOff
	}
	if !rec.LockedUntil.IsZero() && rec.LockedUntil.After(now) {
		return Record{}, ErrTurnLocked
	}
	if displayName != "" {
		rec.DisplayName = displayName
	}
	rec.LockedUntil = now.Add(lockTTL)
	rec.UpdatedAt = now
	return *rec, nil
}

func (s *MemoryStore) PersistTurn(ctx context.Context, key Key, update TurnUpdate) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	if update.Stage != "" {
		rec.Stage = update.Stage
	}
	if update.CapturedDetail != "" {
		rec.CapturedDetail = update.CapturedDetail
	}
	rec.LastInboundText = update.InboundText
	rec.LastReplyText = update.ReplyText
	rec.LockedUntil = time.Time{}
	rec.UpdatedAt = s.now()
	return *rec, nil
}

func (s *MemoryStore) ReleaseLock(ctx context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return ErrNotFound
	}
	rec.LockedUntil = time.Time{}
	rec.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) RecordInbound(ctx context.Context, key Key, displayName, text string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	if displayName != "" {
		rec.DisplayName = displayName
	}
	if rec.LastInboundText == "" {
		rec.LastInboundText = text
	} else {
		rec.LastInboundText = rec.LastInboundText + "\n" + text
	}
	rec.UpdatedAt = s.now()
	return *rec, nil
}

func (s *MemoryStore) Get(ctx context.Context, key Key) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.ID == id {
			return *rec, nil
		}
	}
	return Record{}, ErrNotFound
}

func (s *MemoryStore) ListByRoute(ctx context.Context, routeID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0)
	for _, rec := range s.records {
		if rec.RouteID == routeID {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SenderID < out[j].SenderID })
	return out, nil
}

func (s *MemoryStore) SetHandoff(ctx context.Context, key Key, handoff bool) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	if !rec.LockedUntil.IsZero() && rec.LockedUntil.After(s.now()) {
		return Record{}, ErrTurnLocked
	}
	rec.HumanHandoff = handoff
	rec.UpdatedAt = s.now()
	return *rec, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return ErrNotFound
	}
	if !rec.LockedUntil.IsZero() && rec.LockedUntil.After(s.now()) {
		return ErrTurnLocked
	}
	delete(s.records, key)
	return nil
}
