// Package provider abstracts the third-party messaging networks stagehand
// receives webhooks from and replies through. Each network is a Kind with one
// adapter implementation; adapters are selected per route at configuration
// time, never per message.
package provider

import (
	"context"
	"strings"
)

// Kind identifies a messaging provider ("telegram", "whatsapp").
type Kind string

const (
	KindTelegram Kind = "telegram"
	KindWhatsApp Kind = "whatsapp"
)

// String returns the kind as a plain string.
func (k Kind) String() string {
	return string(k)
}

// Valid reports whether the kind is a known provider.
func (k Kind) Valid() bool {
	switch k {
	case KindTelegram, KindWhatsApp:
		return true
	}
	return false
}

// ParseKind normalizes and validates a provider kind string.
func ParseKind(raw string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	return k, k.Valid()
}

// InboundMessage is the canonical form of a user-authored text message. The
// sender ID is stable across retried or duplicate webhook deliveries: adapters
// strip whatever suffixes the network appends to device or session variants.
type InboundMessage struct {
	SenderID    string
	DisplayName string
	Text        string
}

// Adapter normalizes a provider's webhook payloads and builds senders for it.
type Adapter interface {
	Kind() Kind

	// Normalize translates a raw decoded webhook body into an InboundMessage.
	// A nil message with nil error means the event is not a user-authored text
	// message (delivery receipt, group event, unsupported media) and must be
	// acknowledged and ignored.
	Normalize(raw []byte) (*InboundMessage, error)

	// NewSender builds a Sender from per-route credentials.
	NewSender(credentials map[string]string) (Sender, error)
}

// Sender delivers reply content to a recipient on the provider network. Each
// call returns the opaque provider message id on success.
type Sender interface {
	SendText(ctx context.Context, recipient, text string) (string, error)
	SendImage(ctx context.Context, recipient, url, caption string) (string, error)
	SendVideo(ctx context.Context, recipient, url, caption string) (string, error)
	SendAudio(ctx context.Context, recipient, url string) (string, error)
}
