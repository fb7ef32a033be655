// Package route manages webhook routes: one route binds a provider account,
// its credentials, and an operator script to a webhook path.
package route

import (
	"context"
	"errors"
	"time"

	"github.com/stagehandhq/stagehand/internal/provider"
)

// ErrNotFound means no route exists for the id.
var ErrNotFound = errors.New("route not found")

// Route is one configured webhook route.
type Route struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	ProviderKind  provider.Kind     `json:"provider_kind"`
	WebhookSecret string            `json:"-"`
	Credentials   map[string]string `json:"-"`
	Script        string            `json:"script"`
	Model         string            `json:"model,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// UpsertInput is the input for creating or updating a route.
type UpsertInput struct {
	Name          string            `json:"name" validate:"required"`
	ProviderKind  string            `json:"provider_kind" validate:"required"`
	WebhookSecret string            `json:"webhook_secret" validate:"required"`
	Credentials   map[string]string `json:"credentials"`
	Script        string            `json:"script"`
	Model         string            `json:"model"`
}

// Reader is the read surface the inbound pipeline needs.
type Reader interface {
	Get(ctx context.Context, id string) (Route, error)
}

// Service is the full route management contract.
type Service interface {
	Reader
	List(ctx context.Context) ([]Route, error)
	Create(ctx context.Context, input UpsertInput) (Route, error)
	Update(ctx context.Context, id string, input UpsertInput) (Route, error)
	Delete(ctx context.Context, id string) error
}
