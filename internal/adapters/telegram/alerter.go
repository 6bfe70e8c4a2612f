package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"seoul-housing-ingest/internal/domain"
	"seoul-housing-ingest/internal/infra/metrics"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Alerter отправляет алерты операторам в чат Telegram.
type Alerter struct {
	bot    sender
	chatID int64
	prefix string
	logger zerolog.Logger
}

var _ domain.Alerter = (*Alerter)(nil)

// NewAlerter авторизуется по token. prefix добавляется к каждому алерту, например "[prod]".
func NewAlerter(token string, chatID int64, prefix string, logger zerolog.Logger) (*Alerter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	return newAlerter(bot, chatID, prefix, logger), nil
}

func newAlerter(bot sender, chatID int64, prefix string, logger zerolog.Logger) *Alerter {
	return &Alerter{bot: bot, chatID: chatID, prefix: prefix, logger: logger}
}

func (a *Alerter) Alert(ctx context.Context, text string) error {
	if a.prefix != "" {
		text = a.prefix + " " + text
	}
	for _, part := range SplitMessage(text) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(a.chatID, part)
		msg.DisableWebPagePreview = true
		start := time.Now()
		_, err := a.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(a.chatID, 10), start, err)
		if err != nil {
			a.logger.Error().Err(err).Int64("chat", a.chatID).Msg("telegram: alert not sent")
			return fmt.Errorf("send alert: %w", err)
		}
	}
	return nil
}
