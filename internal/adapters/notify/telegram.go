package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/okian/crease/internal/domain/events"
	"github.com/okian/crease/pkg/logger"
)

// DefaultSendInterval keeps a chat under the Telegram rate limit.
const DefaultSendInterval = 2 * time.Second

// Sender is the part of the bot API the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts dispute alerts to one chat.
type Telegram struct {
	bot      Sender
	chatID   int64
	interval time.Duration
	log      logger.Logger

	mu       sync.Mutex
	lastSend time.Time
}

// TelegramOption configures a Telegram notifier.
type TelegramOption func(*Telegram)

// WithSendInterval sets the minimum gap between two messages.
func WithSendInterval(d time.Duration) TelegramOption {
	return func(t *Telegram) {
		if d >= 0 {
			t.interval = d
		}
	}
}

// WithTelegramLogger sets the notifier logger.
func WithTelegramLogger(l logger.Logger) TelegramOption {
	return func(t *Telegram) {
		if l != nil {
			t.log = l
		}
	}
}

// NewTelegram wraps an existing bot.
func NewTelegram(bot Sender, chatID int64, opts ...TelegramOption) *Telegram {
	t := &Telegram{bot: bot, chatID: chatID, interval: DefaultSendInterval}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = logger.Get().Named("telegram")
	}
	return t
}

// DialTelegram connects a bot with token and checks it with GetMe.
func DialTelegram(token string, chatID int64, opts ...TelegramOption) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	bot.Debug = false
	if _, err := bot.GetMe(); err != nil {
		return nil, fmt.Errorf("telegram get me: %w", err)
	}
	return NewTelegram(bot, chatID, opts...), nil
}

// Name implements worker.Sink.
func (t *Telegram) Name() string { return "notify_telegram" }

// Handle implements worker.Sink.
func (t *Telegram) Handle(ctx context.Context, e events.Event) error {
	text, ok := Format(e)
	if !ok {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if wait := t.interval - time.Since(t.lastSend); !t.lastSend.IsZero() && wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	_, err := t.bot.Send(msg)
	t.lastSend = time.Now()
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	t.log.Info(ctx, "dispute alert sent",
		logger.MatchID(e.MatchID),
		logger.String("event_type", string(e.Type)),
		logger.Int64("chat_id", t.chatID))
	return nil
}
