package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/weeasd57/stockroom-wind-sub003/internal/config"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*Notifier)(nil)

// Notifier announces subscription transitions to an ops channel. Delivery is
// best-effort; a failed send is logged and swallowed so it can never block a
// state change that already committed.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *zerolog.Logger
}

func NewNotifier(cfg *config.TelegramConfig, log *zerolog.Logger) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Notifier{bot: bot, chatID: cfg.OpsChatID, log: log}, nil
}

func (n *Notifier) NotifySubscriptionChange(ctx context.Context, change adapter.SubscriptionChange) error {
	text := fmt.Sprintf("Subscription change\nuser: %s\nplan: %s -> %s\nstatus: %s",
		change.UserID, change.FromPlan, change.ToPlan, change.Status)
	if change.Reason != "" {
		text += "\nreason: " + change.Reason
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.log.Warn().Err(err).Str("user_id", change.UserID).Msg("telegram notify failed")
		return err
	}
	return nil
}

// NoopNotifier is used when telegram is disabled.
type NoopNotifier struct{}

var _ adapter.Notifier = (*NoopNotifier)(nil)

func (NoopNotifier) NotifySubscriptionChange(ctx context.Context, change adapter.SubscriptionChange) error {
	return nil
}
