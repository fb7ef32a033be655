package telegram

import "testing"

func TestNormalizeTextMessage(t *testing.T) {
	t.Parallel()
	a := NewAdapter(nil)
	raw := []byte(`{
		"update_id": 10001,
		"message": {
			"message_id": 42,
			"from": {"id": 555, "is_bot": false, "first_name": "Alice", "last_name": "Smith"},
			"chat": {"id": 987654321, "type": "private"},
			"date": 1700000000,
			"text": "  Hi, are you open today?  "
		}
	}`)

	msg, err := a.Normalize(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if msg == nil {
		t.Fatalf("expected a message")
	}
	if msg.SenderID != "987654321" {
		t.Fatalf("sender id = %q", msg.SenderID)
	}
	if msg.DisplayName != "Alice Smith" {
		t.Fatalf("display name = %q", msg.DisplayName)
	}
	if msg.Text != "Hi, are you open today?" {
		t.Fatalf("text = %q", msg.Text)
	}
}

func TestNormalizeIgnoresNonUserEvents(t *testing.T) {
	t.Parallel()
	a := NewAdapter(nil)
	for name, raw := range map[string]string{
		"callback query": `{"update_id":1,"callback_query":{"id":"x"}}`,
		"bot sender":     `{"update_id":2,"message":{"from":{"id":1,"is_bot":true},"chat":{"id":2},"text":"hi"}}`,
		"media only":     `{"update_id":3,"message":{"from":{"id":1,"is_bot":false},"chat":{"id":2},"photo":[{"file_id":"p"}]}}`,
		"blank text":     `{"update_id":4,"message":{"from":{"id":1,"is_bot":false},"chat":{"id":2},"text":"   "}}`,
	} {
		msg, err := a.Normalize([]byte(raw))
		if err != nil {
			t.Fatalf("%s: normalize: %v", name, err)
		}
		if msg != nil {
			t.Fatalf("%s: expected nil message, got %+v", name, msg)
		}
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	t.Parallel()
	a := NewAdapter(nil)
	if _, err := a.Normalize([]byte("not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestDisplayNameFallsBackToUsername(t *testing.T) {
	t.Parallel()
	a := NewAdapter(nil)
	raw := []byte(`{
		"update_id": 5,
		"message": {
			"from": {"id": 1, "is_bot": false, "username": "alice_s"},
			"chat": {"id": 2, "type": "private"},
			"text": "hello"
		}
	}`)
	msg, err := a.Normalize(raw)
	if err != nil || msg == nil {
		t.Fatalf("normalize: %v, %v", msg, err)
	}
	if msg.DisplayName != "alice_s" {
		t.Fatalf("display name = %q", msg.DisplayName)
	}
}

func TestNewSenderRequiresToken(t *testing.T) {
	t.Parallel()
	a := NewAdapter(nil)
	if _, err := a.NewSender(map[string]string{}); err == nil {
		t.Fatalf("expected error for missing bot_token")
	}
}
