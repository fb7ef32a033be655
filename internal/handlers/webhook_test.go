package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/stagehandhq/stagehand/internal/batch"
	"github.com/stagehandhq/stagehand/internal/handlers"
	"github.com/stagehandhq/stagehand/internal/provider"
	"github.com/stagehandhq/stagehand/internal/provider/telegram"
	"github.com/stagehandhq/stagehand/internal/route"
	"github.com/stagehandhq/stagehand/internal/turn"
)

type fakeRoutes struct {
	routes map[string]route.Route
}

func (f *fakeRoutes) Get(ctx context.Context, id string) (route.Route, error) {
	rt, ok := f.routes[id]
	if !ok {
		return route.Route{}, route.ErrNotFound
	}
	return rt, nil
}

type noopRunner struct{}

func (noopRunner) Run(ctx context.Context, b batch.PendingBatch) error { return nil }

type webhookFixture struct {
	echo  *echo.Echo
	store *batch.MemoryStore
	sched *turn.Scheduler
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	routes := &fakeRoutes{routes: map[string]route.Route{
		"route-a": {
			ID:            "route-a",
			ProviderKind:  provider.KindTelegram,
			WebhookSecret: "s3cret",
		},
	}}
	registry := provider.NewRegistry()
	registry.MustRegister(telegram.NewAdapter(nil))

	store := batch.NewMemoryStore()
	sched := turn.NewScheduler(nil, store, noopRunner{}, time.Hour)
	t.Cleanup(sched.Close)

	e := echo.New()
	handlers.NewWebhookHandler(nil, routes, registry, sched).Register(e)
	return &webhookFixture{echo: e, store: store, sched: sched}
}

const telegramUpdate = `{
	"update_id": 1,
	"message": {
		"from": {"id": 555, "is_bot": false, "first_name": "Alice"},
		"chat": {"id": 987, "type": "private"},
		"text": "Hi"
	}
}`

func (f *webhookFixture) post(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func TestReceiveEnqueuesTextMessage(t *testing.T) {
	t.Parallel()
	f := newWebhookFixture(t)

	rec := f.post("/hooks/route-a/s3cret", telegramUpdate)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	due, err := f.store.ListDue(context.Background(), time.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("batches = %d, want 1", len(due))
	}
	b := due[0]
	if b.Key.RouteID != "route-a" || b.Key.SenderID != "987" {
		t.Fatalf("key = %+v", b.Key)
	}
	if b.CombinedText() != "Hi" || b.DisplayName != "Alice" {
		t.Fatalf("batch = %+v", b)
	}
}

func TestReceiveWrongSecretIs404(t *testing.T) {
	t.Parallel()
	f := newWebhookFixture(t)

	rec := f.post("/hooks/route-a/wrong", telegramUpdate)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	rec = f.post("/hooks/missing/s3cret", telegramUpdate)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestReceiveAcksNonTextEvents(t *testing.T) {
	t.Parallel()
	f := newWebhookFixture(t)

	rec := f.post("/hooks/route-a/s3cret", `{"update_id":2,"callback_query":{"id":"x"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	due, err := f.store.ListDue(context.Background(), time.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("non-text event must not be buffered: %+v", due)
	}
}

func TestReceiveAcksGarbagePayload(t *testing.T) {
	t.Parallel()
	f := newWebhookFixture(t)

	rec := f.post("/hooks/route-a/s3cret", "not json at all")
	if rec.Code != http.StatusOK {
		t.Fatalf("malformed payload must still be acked, status = %d", rec.Code)
	}
}

func TestVerifyEchoesChallenge(t *testing.T) {
	t.Parallel()
	f := newWebhookFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/hooks/route-a/s3cret?hub.mode=subscribe&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "12345" {
		t.Fatalf("challenge = %q", rec.Body.String())
	}
}
