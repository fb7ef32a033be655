package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stagehandhq/stagehand/internal/conversation"
)

// DBStore is the Postgres-backed batch store. It shares a pool with the
// conversation store but callers must not assume co-location.
type DBStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewDBStore creates a batch store over the given pool.
func NewDBStore(log *slog.Logger, pool *pgxpool.Pool) *DBStore {
	if log == nil {
		log = slog.Default()
	}
	return &DBStore{
		pool:   pool,
		logger: log.With(slog.String("service", "batch")),
	}
}

func (s *DBStore) Append(ctx context.Context, key conversation.Key, displayName, text string, quietUntil time.Time) (PendingBatch, error) {
	entry, err := json.Marshal([]Message{{Text: text, ArrivedAt: time.Now().UTC()}})
	if err != nil {
		return PendingBatch{}, fmt.Errorf("encode batch entry: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO pending_batches (route_id, sender_id, display_name, messages, quiet_until, epoch)
		VALUES ($1, $2, $3, $4::jsonb, $5, 1)
		ON CONFLICT (route_id, sender_id) DO UPDATE
		SET messages = pending_batches.messages || excluded.messages,
		    display_name = CASE WHEN excluded.display_name <> '' THEN excluded.display_name ELSE pending_batches.display_name END,
		    quiet_until = excluded.quiet_until,
		    epoch = pending_batches.epoch + 1
		RETURNING display_name, messages, quiet_until, epoch`,
		key.RouteID, key.SenderID, displayName, entry, quietUntil.UTC())

	b := PendingBatch{Key: key}
	var raw []byte
	if err := row.Scan(&b.DisplayName, &raw, &b.QuietUntil, &b.Epoch); err != nil {
		return PendingBatch{}, fmt.Errorf("append batch: %w", err)
	}
	if err := json.Unmarshal(raw, &b.Messages); err != nil {
		return PendingBatch{}, fmt.Errorf("decode batch messages: %w", err)
	}
	return b, nil
}

func (s *DBStore) Take(ctx context.Context, key conversation.Key, epoch int64) (PendingBatch, bool, error) {
	row := s.pool.QueryRow(ctx, `
		DELETE FROM pending_batches
		WHERE route_id = $1 AND sender_id = $2 AND epoch = $3 AND quiet_until <= now()
		RETURNING display_name, messages, quiet_until, epoch`,
		key.RouteID, key.SenderID, epoch)

	b := PendingBatch{Key: key}
	var raw []byte
	err := row.Scan(&b.DisplayName, &raw, &b.QuietUntil, &b.Epoch)
	if errors.Is(err, pgx.ErrNoRows) {
		return PendingBatch{}, false, nil
	}
	if err != nil {
		return PendingBatch{}, false, fmt.Errorf("take batch: %w", err)
	}
	if err := json.Unmarshal(raw, &b.Messages); err != nil {
		return PendingBatch{}, false, fmt.Errorf("decode batch messages: %w", err)
	}
	return b, true, nil
}

func (s *DBStore) ListDue(ctx context.Context, now time.Time) ([]PendingBatch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT route_id, sender_id, display_name, messages, quiet_until, epoch
		FROM pending_batches WHERE quiet_until <= $1`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("list due batches: %w", err)
	}
	defer rows.Close()

	out := make([]PendingBatch, 0)
	for rows.Next() {
		var b PendingBatch
		var raw []byte
		if err := rows.Scan(&b.Key.RouteID, &b.Key.SenderID, &b.DisplayName, &raw, &b.QuietUntil, &b.Epoch); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		if err := json.Unmarshal(raw, &b.Messages); err != nil {
			return nil, fmt.Errorf("decode batch messages: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
