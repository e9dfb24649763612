package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"lightning-sats-bot/internal/domain/ports/adapter"
)

var _ adapter.TelegramBotAdapter = (*NoopBotAdapter)(nil)

// NoopBotAdapter logs outbound calls instead of sending them. Used in noop mode for local runs.
type NoopBotAdapter struct {
	log *zerolog.Logger
}

func NewNoopBotAdapter(logger *zerolog.Logger) *NoopBotAdapter {
	l := logger.With().Str("component", "NoopBot").Logger()
	return &NoopBotAdapter{log: &l}
}

func (b *NoopBotAdapter) SendMessage(ctx context.Context, p adapter.SendMessageParams) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev := b.log.Info().Int64("chat_id", p.ChatID).Str("text", p.Text)
	if p.ReplyMarkup != nil {
		ev = ev.Int("keyboard_rows", len(p.ReplyMarkup.Buttons)).Bool("inline", p.ReplyMarkup.IsInline)
	}
	ev.Msg("[noop-telegram] sendMessage")
	return nil
}

func (b *NoopBotAdapter) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	b.log.Info().Str("callback_id", callbackID).Str("text", text).Bool("alert", alert).Msg("[noop-telegram] answerCallback")
	return nil
}

func (b *NoopBotAdapter) EditMessage(ctx context.Context, p adapter.EditMessageParams) error {
	b.log.Info().Int64("chat_id", p.ChatID).Int("message_id", p.MessageID).Str("text", p.Text).Msg("[noop-telegram] editMessage")
	return nil
}
