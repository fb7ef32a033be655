package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBStore is the Postgres-backed conversation store.
type DBStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewDBStore creates a conversation store over the given pool.
func NewDBStore(log *slog.Logger, pool *pgxpool.Pool) *DBStore {
	if log == nil {
		log = slog.Default()
	}
	return &DBStore{
		pool:   pool,
		logger: log.With(slog.String("service", "conversation")),
	}
}

const recordColumns = `id, route_id, sender_id, display_name, stage,
	last_inbound_text, last_reply_text, captured_detail, human_handoff,
	coalesce(locked_until, 'epoch'::timestamptz), created_at, updated_at`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.RouteID, &rec.SenderID, &rec.DisplayName,
		&rec.Stage, &rec.LastInboundText, &rec.LastReplyText, &rec.CapturedDetail,
		&rec.HumanHandoff, &rec.LockedUntil, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	if rec.LockedUntil.Unix() <= 0 {
		rec.LockedUntil = time.Time{}
	}
	return rec, nil
}

func (s *DBStore) AcquireTurn(ctx context.Context, key Key, displayName string, lockTTL time.Duration) (Record, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (route_id, sender_id, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (route_id, sender_id) DO NOTHING`,
		key.RouteID, key.SenderID, displayName)
	if err != nil {
		return Record{}, fmt.Errorf("ensure conversation: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE conversations
		SET locked_until = now() + make_interval(secs => $3),
		    display_name = CASE WHEN $4 <> '' THEN $4 ELSE display_name END,
		    updated_at = now()
		WHERE route_id = $1 AND sender_id = $2
		  AND human_handoff = false
		  AND (locked_until IS NULL OR locked_until <= now())
		RETURNING `+recordColumns,
		key.RouteID, key.SenderID, lockTTL.Seconds(), displayName)
	rec, err := scanRecord(row)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("acquire turn: %w", err)
	}

	// The conditional update matched nothing: handed off or locked.
	existing, getErr := s.Get(ctx, key)
	if getErr != nil {
		return Record{}, fmt.Errorf("acquire turn: %w", getErr)
	}
	if existing.HumanHandoff {
		return Record{}, ErrHandedOff
	}
	return Record{}, ErrTurnLocked
}

func (s *DBStore) PersistTurn(ctx context.Context, key Key, update TurnUpdate) (Record, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE conversations
		SET stage = CASE WHEN $3 <> '' THEN $3 ELSE stage END,
		    captured_detail = CASE WHEN $4 <> '' THEN $4 ELSE captured_detail END,
		    last_inbound_text = $5,
		    last_reply_text = $6,
		    locked_until = NULL,
		    updated_at = now()
		WHERE route_id = $1 AND sender_id = $2
		RETURNING `+recordColumns,
		key.RouteID, key.SenderID, update.Stage, update.CapturedDetail,
		update.InboundText, update.ReplyText)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("persist turn: %w", err)
	}
	return rec, nil
}

func (s *DBStore) ReleaseLock(ctx context.Context, key Key) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations SET locked_until = NULL, updated_at = now()
		WHERE route_id = $1 AND sender_id = $2`,
		key.RouteID, key.SenderID)
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *DBStore) RecordInbound(ctx context.Context, key Key, displayName, text string) (Record, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE conversations
		SET last_inbound_text = CASE WHEN last_inbound_text = '' THEN $3
		                             ELSE last_inbound_text || E'\n' || $3 END,
		    display_name = CASE WHEN $4 <> '' THEN $4 ELSE display_name END,
		    updated_at = now()
		WHERE route_id = $1 AND sender_id = $2
		RETURNING `+recordColumns,
		key.RouteID, key.SenderID, text, displayName)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("record inbound: %w", err)
	}
	return rec, nil
}

func (s *DBStore) Get(ctx context.Context, key Key) (Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+` FROM conversations
		WHERE route_id = $1 AND sender_id = $2`,
		key.RouteID, key.SenderID)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get conversation: %w", err)
	}
	return rec, nil
}

func (s *DBStore) GetByID(ctx context.Context, id string) (Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+` FROM conversations WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get conversation by id: %w", err)
	}
	return rec, nil
}

func (s *DBStore) ListByRoute(ctx context.Context, routeID string) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+` FROM conversations
		WHERE route_id = $1 ORDER BY updated_at DESC`, routeID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *DBStore) SetHandoff(ctx context.Context, key Key, handoff bool) (Record, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE conversations
		SET human_handoff = $3, updated_at = now()
		WHERE route_id = $1 AND sender_id = $2
		  AND (locked_until IS NULL OR locked_until <= now())
		RETURNING `+recordColumns,
		key.RouteID, key.SenderID, handoff)
	rec, err := scanRecord(row)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("set handoff: %w", err)
	}
	if _, getErr := s.Get(ctx, key); getErr != nil {
		return Record{}, getErr
	}
	return Record{}, ErrTurnLocked
}

func (s *DBStore) Delete(ctx context.Context, key Key) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM conversations
		WHERE route_id = $1 AND sender_id = $2
		  AND (locked_until IS NULL OR locked_until <= now())`,
		key.RouteID, key.SenderID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, key); getErr != nil {
			return getErr
		}
		return ErrTurnLocked
	}
	return nil
}
