package route

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stagehandhq/stagehand/internal/provider"
)

// DBService is the Postgres-backed route service.
type DBService struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a route service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *DBService {
	if log == nil {
		log = slog.Default()
	}
	return &DBService{
		pool:   pool,
		logger: log.With(slog.String("service", "route")),
	}
}

const routeColumns = `id, name, provider_kind, webhook_secret, credentials, script, model, created_at, updated_at`

func scanRoute(row pgx.Row) (Route, error) {
	var r Route
	var kind string
	var creds []byte
	err := row.Scan(&r.ID, &r.Name, &kind, &r.WebhookSecret, &creds, &r.Script, &r.Model, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return Route{}, err
	}
	r.ProviderKind = provider.Kind(kind)
	if len(creds) > 0 {
		if err := json.Unmarshal(creds, &r.Credentials); err != nil {
			return Route{}, fmt.Errorf("decode route credentials: %w", err)
		}
	}
	return r, nil
}

func (s *DBService) Get(ctx context.Context, id string) (Route, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+routeColumns+` FROM routes WHERE id = $1`, id)
	r, err := scanRoute(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Route{}, ErrNotFound
	}
	if err != nil {
		return Route{}, fmt.Errorf("get route: %w", err)
	}
	return r, nil
}

func (s *DBService) List(ctx context.Context) ([]Route, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+routeColumns+` FROM routes ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	defer rows.Close()

	out := make([]Route, 0)
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *DBService) Create(ctx context.Context, input UpsertInput) (Route, error) {
	kind, creds, err := validateInput(input)
	if err != nil {
		return Route{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO routes (name, provider_kind, webhook_secret, credentials, script, model)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6)
		RETURNING `+routeColumns,
		input.Name, kind.String(), input.WebhookSecret, creds, input.Script, input.Model)
	r, err := scanRoute(row)
	if err != nil {
		return Route{}, fmt.Errorf("create route: %w", err)
	}
	s.logger.Info("route created", slog.String("route_id", r.ID), slog.String("provider", kind.String()))
	return r, nil
}

func (s *DBService) Update(ctx context.Context, id string, input UpsertInput) (Route, error) {
	kind, creds, err := validateInput(input)
	if err != nil {
		return Route{}, err
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE routes
		SET name = $2, provider_kind = $3, webhook_secret = $4,
		    credentials = $5::jsonb, script = $6, model = $7, updated_at = now()
		WHERE id = $1
		RETURNING `+routeColumns,
		id, input.Name, kind.String(), input.WebhookSecret, creds, input.Script, input.Model)
	r, err := scanRoute(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Route{}, ErrNotFound
	}
	if err != nil {
		return Route{}, fmt.Errorf("update route: %w", err)
	}
	return r, nil
}

func (s *DBService) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM routes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete route: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func validateInput(input UpsertInput) (provider.Kind, []byte, error) {
	kind, ok := provider.ParseKind(input.ProviderKind)
	if !ok {
		return "", nil, fmt.Errorf("unknown provider kind: %s", input.ProviderKind)
	}
	creds := input.Credentials
	if creds == nil {
		creds = map[string]string{}
	}
	encoded, err := json.Marshal(creds)
	if err != nil {
		return "", nil, fmt.Errorf("encode credentials: %w", err)
	}
	return kind, encoded, nil
}
