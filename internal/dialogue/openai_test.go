package dialogue_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stagehandhq/stagehand/internal/dialogue"
)

func TestInvokeSendsSystemAndUserMessages(t *testing.T) {
	t.Parallel()
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"stage\":\"Greeting\"}"}}]}`))
	}))
	defer srv.Close()

	c := dialogue.NewOpenAIClient(nil, srv.URL, "sk-test", "gpt-4o-mini", time.Second)
	out, err := c.Invoke(context.Background(), dialogue.Request{
		SystemInstruction: "You are the bakery assistant.",
		UserUtterance:     "Hi",
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out != `{"stage":"Greeting"}` {
		t.Fatalf("output = %q", out)
	}
	if gotPath != "/chat/completions" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotBody["model"] != "gpt-4o-mini" {
		t.Fatalf("model = %v", gotBody["model"])
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", msgs)
	}
	first, _ := msgs[0].(map[string]any)
	second, _ := msgs[1].(map[string]any)
	if first["role"] != "system" || first["content"] != "You are the bakery assistant." {
		t.Fatalf("system message = %v", first)
	}
	if second["role"] != "user" || second["content"] != "Hi" {
		t.Fatalf("user message = %v", second)
	}
}

func TestInvokePerRequestModelOverride(t *testing.T) {
	t.Parallel()
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := dialogue.NewOpenAIClient(nil, srv.URL, "", "default-model", time.Second)
	if _, err := c.Invoke(context.Background(), dialogue.Request{Model: "route-model", UserUtterance: "hi"}); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if gotBody["model"] != "route-model" {
		t.Fatalf("model = %v", gotBody["model"])
	}
}

func TestInvokeSurfacesAPIError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	c := dialogue.NewOpenAIClient(nil, srv.URL, "", "m", time.Second)
	if _, err := c.Invoke(context.Background(), dialogue.Request{UserUtterance: "hi"}); err == nil {
		t.Fatalf("expected error on 429")
	}
}

func TestInvokeEmptyChoices(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := dialogue.NewOpenAIClient(nil, srv.URL, "", "m", time.Second)
	if _, err := c.Invoke(context.Background(), dialogue.Request{UserUtterance: "hi"}); err == nil {
		t.Fatalf("expected error on empty choices")
	}
}
