package notify

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// telegramMaxText is the Bot API limit for one message.
const telegramMaxText = 4096

// TelegramConfig holds bot settings.
type TelegramConfig struct {
	Token  string
	ChatID string

	// Endpoint overrides tgbotapi.APIEndpoint (tests).
	Endpoint string
}

// TelegramNotifier posts messages to one chat. The bot client is created on first
// use because construction calls getMe.
type TelegramNotifier struct {
	cfg    TelegramConfig
	chatID int64

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// NewTelegramNotifier validates cfg and creates the notifier.
func NewTelegramNotifier(cfg TelegramConfig) (*TelegramNotifier, error) {
	if cfg.Token == "" || cfg.ChatID == "" {
		return nil, fmt.Errorf("%w: telegram token and chat id are required", ErrNotConfigured)
	}
	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: telegram chat id %q: %v", ErrNotConfigured, cfg.ChatID, err)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = tgbotapi.APIEndpoint
	}
	return &TelegramNotifier{cfg: cfg, chatID: chatID}, nil
}

func (t *TelegramNotifier) client() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(t.cfg.Token, t.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}
	t.bot = bot
	return bot, nil
}

// Send posts subject and body as plain text, split into API-sized chunks.
// The Bot API client has no context support; ctx is checked between chunks.
func (t *TelegramNotifier) Send(ctx context.Context, subject, body string) error {
	bot, err := t.client()
	if err != nil {
		return err
	}

	for _, chunk := range splitText(subject+"\n\n"+body, telegramMaxText) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(t.chatID, chunk)
		msg.DisableWebPagePreview = true
		if _, err := bot.Send(msg); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

// splitText cuts s into pieces of at most limit runes, preferring line breaks.
func splitText(s string, limit int) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		out = append(out, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

var _ Notifier = (*TelegramNotifier)(nil)
