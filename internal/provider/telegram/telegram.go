// Package telegram implements the provider adapter for Telegram bots.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/stagehandhq/stagehand/internal/provider"
)

// Type is the provider kind handled by this adapter.
const Type = provider.KindTelegram

// Adapter implements provider.Adapter for Telegram. Bot clients are cached per
// token so routes sharing a bot reuse one API client.
type Adapter struct {
	logger *slog.Logger
	mu     sync.RWMutex
	bots   map[string]*tgbotapi.BotAPI
}

// NewAdapter creates a Telegram adapter.
func NewAdapter(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger: log.With(slog.String("adapter", "telegram")),
		bots:   make(map[string]*tgbotapi.BotAPI),
	}
}

// Kind returns the Telegram provider kind.
func (a *Adapter) Kind() provider.Kind {
	return Type
}

// Normalize extracts a user-authored text message from a Telegram update.
// Edited messages, channel posts, callbacks, and media-only messages yield nil.
func (a *Adapter) Normalize(raw []byte) (*provider.InboundMessage, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(raw, &update); err != nil {
		return nil, fmt.Errorf("decode telegram update: %w", err)
	}
	msg := update.Message
	if msg == nil || msg.From == nil || msg.From.IsBot {
		return nil, nil
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil, nil
	}
	return &provider.InboundMessage{
		SenderID:    strconv.FormatInt(msg.Chat.ID, 10),
		DisplayName: displayName(msg.From),
		Text:        text,
	}, nil
}

func displayName(user *tgbotapi.User) string {
	name := strings.TrimSpace(strings.TrimSpace(user.FirstName) + " " + strings.TrimSpace(user.LastName))
	if name != "" {
		return name
	}
	return strings.TrimSpace(user.UserName)
}

// NewSender builds a Sender from route credentials. Requires "bot_token".
func (a *Adapter) NewSender(credentials map[string]string) (provider.Sender, error) {
	token := strings.TrimSpace(credentials["bot_token"])
	if token == "" {
		return nil, fmt.Errorf("telegram: bot_token is required")
	}
	bot, err := a.getOrCreateBot(token)
	if err != nil {
		return nil, err
	}
	return &sender{bot: bot, logger: a.logger}, nil
}

func (a *Adapter) getOrCreateBot(token string) (*tgbotapi.BotAPI, error) {
	a.mu.RLock()
	bot, ok := a.bots[token]
	a.mu.RUnlock()
	if ok {
		return bot, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if bot, ok := a.bots[token]; ok {
		return bot, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		a.logger.Error("create bot failed", slog.Any("error", err))
		return nil, err
	}
	a.bots[token] = bot
	return bot, nil
}

type sender struct {
	bot    *tgbotapi.BotAPI
	logger *slog.Logger
}

func parseChatID(recipient string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(recipient), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: invalid chat id %q: %w", recipient, err)
	}
	return id, nil
}

func (s *sender) SendText(ctx context.Context, recipient, text string) (string, error) {
	chatID, err := parseChatID(recipient)
	if err != nil {
		return "", err
	}
	return s.send(tgbotapi.NewMessage(chatID, text))
}

func (s *sender) SendImage(ctx context.Context, recipient, url, caption string) (string, error) {
	chatID, err := parseChatID(recipient)
	if err != nil {
		return "", err
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(url))
	photo.Caption = caption
	return s.send(photo)
}

func (s *sender) SendVideo(ctx context.Context, recipient, url, caption string) (string, error) {
	chatID, err := parseChatID(recipient)
	if err != nil {
		return "", err
	}
	video := tgbotapi.NewVideo(chatID, tgbotapi.FileURL(url))
	video.Caption = caption
	return s.send(video)
}

func (s *sender) SendAudio(ctx context.Context, recipient, url string) (string, error) {
	chatID, err := parseChatID(recipient)
	if err != nil {
		return "", err
	}
	return s.send(tgbotapi.NewAudio(chatID, tgbotapi.FileURL(url)))
}

func (s *sender) send(c tgbotapi.Chattable) (string, error) {
	sent, err := s.bot.Send(c)
	if err != nil {
		return "", fmt.Errorf("telegram send: %w", err)
	}
	return strconv.Itoa(sent.MessageID), nil
}
