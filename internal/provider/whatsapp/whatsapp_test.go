package whatsapp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

const inboundTextPayload = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"id": "100",
		"changes": [{
			"field": "messages",
			"value": {
				"contacts": [{"wa_id": "15551234567", "profile": {"name": "Alice"}}],
				"messages": [{
					"from": "15551234567:12@s.whatsapp.net",
					"id": "wamid.abc",
					"type": "text",
					"text": {"body": "Hi, are you open today?"}
				}]
			}
		}]
	}]
}`

func TestNormalizeTextMessage(t *testing.T) {
	t.Parallel()
	a := NewAdapter(nil)

	msg, err := a.Normalize([]byte(inboundTextPayload))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if msg == nil {
		t.Fatalf("expected a message")
	}
	if msg.SenderID != "15551234567" {
		t.Fatalf("sender id not canonicalized: %q", msg.SenderID)
	}
	if msg.DisplayName != "Alice" || msg.Text != "Hi, are you open today?" {
		t.Fatalf("message = %+v", msg)
	}
}

func TestNormalizeIgnoresStatusCallbacks(t *testing.T) {
	t.Parallel()
	a := NewAdapter(nil)
	raw := `{"entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.abc","status":"delivered"}]}}]}]}`

	msg, err := a.Normalize([]byte(raw))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if msg != nil {
		t.Fatalf("status callback must yield nil, got %+v", msg)
	}
}

func TestNormalizeIgnoresNonTextMessages(t *testing.T) {
	t.Parallel()
	a := NewAdapter(nil)
	raw := `{"entry":[{"changes":[{"value":{"messages":[{"from":"1555","type":"image","image":{"id":"m1"}}]}}]}]}`

	msg, err := a.Normalize([]byte(raw))
	if err != nil || msg != nil {
		t.Fatalf("non-text message must yield nil, got %+v, %v", msg, err)
	}
}

func TestCanonicalSenderID(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"15551234567":                   "15551234567",
		"15551234567:12@s.whatsapp.net": "15551234567",
		"15551234567@s.whatsapp.net":    "15551234567",
		" 15551234567:3 ":               "15551234567",
	}
	for raw, want := range cases {
		if got := CanonicalSenderID(raw); got != want {
			t.Fatalf("CanonicalSenderID(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestSenderPostsToGraphAPI(t *testing.T) {
	t.Parallel()
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.sent1"}]}`))
	}))
	defer srv.Close()

	a := NewAdapter(nil)
	sender, err := a.NewSender(map[string]string{
		"access_token":    "tok",
		"phone_number_id": "4242",
		"base_url":        srv.URL,
	})
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}

	msgID, err := sender.SendText(context.Background(), "15551234567", "Hello!")
	if err != nil {
		t.Fatalf("send text: %v", err)
	}
	if msgID != "wamid.sent1" {
		t.Fatalf("message id = %q", msgID)
	}
	if gotPath != "/4242/messages" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotBody["type"] != "text" || gotBody["to"] != "15551234567" {
		t.Fatalf("body = %v", gotBody)
	}
}

func TestSenderMediaCaption(t *testing.T) {
	t.Parallel()
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.sent2"}]}`))
	}))
	defer srv.Close()

	a := NewAdapter(nil)
	sender, err := a.NewSender(map[string]string{
		"access_token":    "tok",
		"phone_number_id": "4242",
		"base_url":        srv.URL,
	})
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	if _, err := sender.SendImage(context.Background(), "1555", "https://cdn.example.com/a.jpg", "menu"); err != nil {
		t.Fatalf("send image: %v", err)
	}
	image, _ := gotBody["image"].(map[string]any)
	if image["link"] != "https://cdn.example.com/a.jpg" || image["caption"] != "menu" {
		t.Fatalf("image object = %v", image)
	}
}

func TestSenderSurfacesAPIError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad token","code":190}}`))
	}))
	defer srv.Close()

	a := NewAdapter(nil)
	sender, err := a.NewSender(map[string]string{
		"access_token":    "tok",
		"phone_number_id": "4242",
		"base_url":        srv.URL,
	})
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	if _, err := sender.SendText(context.Background(), "1555", "hi"); err == nil {
		t.Fatalf("expected API error to surface")
	}
}

func TestNewSenderRequiresCredentials(t *testing.T) {
	t.Parallel()
	a := NewAdapter(nil)
	if _, err := a.NewSender(map[string]string{"access_token": "tok"}); err == nil {
		t.Fatalf("missing phone_number_id must fail")
	}
	if _, err := a.NewSender(map[string]string{"phone_number_id": "4242"}); err == nil {
		t.Fatalf("missing access_token must fail")
	}
}
