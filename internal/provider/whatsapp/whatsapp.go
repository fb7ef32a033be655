// Package whatsapp implements the provider adapter for the WhatsApp Cloud API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stagehandhq/stagehand/internal/provider"
)

// Type is the provider kind handled by this adapter.
const Type = provider.KindWhatsApp

// DefaultBaseURL is the Graph API endpoint; overridable per route for tests.
const DefaultBaseURL = "https://graph.facebook.com/v19.0"

// Adapter implements provider.Adapter for the WhatsApp Cloud API.
type Adapter struct {
	logger *slog.Logger
	client *http.Client
}

// NewAdapter creates a WhatsApp adapter.
func NewAdapter(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger: log.With(slog.String("adapter", "whatsapp")),
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Kind returns the WhatsApp provider kind.
func (a *Adapter) Kind() provider.Kind {
	return Type
}

// webhookPayload mirrors the subset of the Cloud API webhook body we consume.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					From string `json:"from"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// Normalize extracts a user-authored text message from a Cloud API webhook.
// Status callbacks and non-text message types yield nil.
func (a *Adapter) Normalize(raw []byte) (*provider.InboundMessage, error) {
	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode whatsapp webhook: %w", err)
	}
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			for _, msg := range value.Messages {
				if msg.Type != "text" {
					continue
				}
				text := strings.TrimSpace(msg.Text.Body)
				if text == "" {
					continue
				}
				name := ""
				if len(value.Contacts) > 0 {
					name = strings.TrimSpace(value.Contacts[0].Profile.Name)
				}
				return &provider.InboundMessage{
					SenderID:    CanonicalSenderID(msg.From),
					DisplayName: name,
					Text:        text,
				}, nil
			}
		}
	}
	return nil, nil
}

// CanonicalSenderID strips the device and server suffixes some deliveries
// append to the wa_id ("15551234567:12@s.whatsapp.net" -> "15551234567"), so
// retried and duplicate webhooks map to the same conversation.
func CanonicalSenderID(raw string) string {
	id := strings.TrimSpace(raw)
	if at := strings.IndexByte(id, '@'); at >= 0 {
		id = id[:at]
	}
	if colon := strings.IndexByte(id, ':'); colon >= 0 {
		id = id[:colon]
	}
	return id
}

// NewSender builds a Sender from route credentials. Requires "access_token"
// and "phone_number_id"; "base_url" overrides the Graph API endpoint.
func (a *Adapter) NewSender(credentials map[string]string) (provider.Sender, error) {
	token := strings.TrimSpace(credentials["access_token"])
	phoneID := strings.TrimSpace(credentials["phone_number_id"])
	if token == "" || phoneID == "" {
		return nil, fmt.Errorf("whatsapp: access_token and phone_number_id are required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(credentials["base_url"]), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &sender{
		client:  a.client,
		logger:  a.logger,
		baseURL: baseURL,
		token:   token,
		phoneID: phoneID,
	}, nil
}

type sender struct {
	client  *http.Client
	logger  *slog.Logger
	baseURL string
	token   string
	phoneID string
}

type mediaObject struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

func (s *sender) SendText(ctx context.Context, recipient, text string) (string, error) {
	return s.post(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                recipient,
		"type":              "text",
		"text":              map[string]string{"body": text},
	})
}

func (s *sender) SendImage(ctx context.Context, recipient, url, caption string) (string, error) {
	return s.post(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                recipient,
		"type":              "image",
		"image":             mediaObject{Link: url, Caption: caption},
	})
}

func (s *sender) SendVideo(ctx context.Context, recipient, url, caption string) (string, error) {
	return s.post(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                recipient,
		"type":              "video",
		"video":             mediaObject{Link: url, Caption: caption},
	})
}

func (s *sender) SendAudio(ctx context.Context, recipient, url string) (string, error) {
	return s.post(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                recipient,
		"type":              "audio",
		"audio":             mediaObject{Link: url},
	})
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (s *sender) post(ctx context.Context, body map[string]any) (string, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("whatsapp: encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/%s/messages", s.baseURL, s.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whatsapp send: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("whatsapp send: read response: %w", err)
	}
	var parsed sendResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("whatsapp send: decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := ""
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return "", fmt.Errorf("whatsapp send: status %d: %s", resp.StatusCode, msg)
	}
	if len(parsed.Messages) == 0 {
		return "", fmt.Errorf("whatsapp send: no message id in response")
	}
	return parsed.Messages[0].ID, nil
}
