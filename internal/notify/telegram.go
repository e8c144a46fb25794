package notify

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v3"

	"claims-engine/internal/config"
)

// TelegramSink posts public events (wars, nation founding and disbanding)
// to a Telegram chat. Other kinds are ignored.
type TelegramSink struct {
	bot     *tele.Bot
	chat    tele.ChatID
	limiter *rate.Limiter
}

const defaultPerMinute = 20

// NewTelegramSink creates a sink for cfg. The bot runs offline: it only
// sends messages and never polls for updates.
func NewTelegramSink(cfg config.TelegramConfig) (*TelegramSink, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram chat id is required")
	}

	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	perMinute := cfg.PerMinute
	if perMinute <= 0 {
		perMinute = defaultPerMinute
	}
	return &TelegramSink{
		bot:     b,
		chat:    tele.ChatID(cfg.ChatID),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}, nil
}

// Notify blocks until the chat's send budget allows another message.
func (s *TelegramSink) Notify(ctx context.Context, target string, kind Kind, payload Payload) error {
	if !kind.Public() {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram announcement dropped: %w", err)
	}
	if _, err := s.bot.Send(s.chat, Format(target, kind, payload)); err != nil {
		return fmt.Errorf("failed to send telegram announcement: %w", err)
	}
	return nil
}
