package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramChannel sends alerts to a single Telegram chat, the one concrete
// external-facing channel SPEC_FULL §C ships as a demonstrator alongside the
// always-on log channel.
type TelegramChannel struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramChannel builds a TelegramChannel authenticated with botToken,
// posting to chatID.
func NewTelegramChannel(botToken string, chatID int64) (*TelegramChannel, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &TelegramChannel{bot: bot, chatID: chatID}, nil
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Send(ctx context.Context, alert Payload) error {
	text := fmt.Sprintf("[%s] %s\n%s\n%s", alert.Level, alert.Title, alert.Message, alert.StrategyID)
	msg := tgbotapi.NewMessage(c.chatID, text)

	done := make(chan error, 1)
	go func() {
		_, err := c.bot.Send(msg)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Channel = (*TelegramChannel)(nil)
