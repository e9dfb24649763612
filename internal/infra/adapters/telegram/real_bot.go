package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"lightning-sats-bot/internal/config"
	"lightning-sats-bot/internal/domain"
	"lightning-sats-bot/internal/domain/ports/adapter"
	"lightning-sats-bot/internal/infra/metrics"
)

var _ adapter.TelegramBotAdapter = (*RealTelegramBotAdapter)(nil)

// botAPI is the subset of *tgbotapi.BotAPI the adapter uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// RealTelegramBotAdapter talks to the Bot API. Outbound calls go through a circuit
// breaker so a failing API fails fast instead of tying up workers.
type RealTelegramBotAdapter struct {
	api     botAPI
	breaker *gobreaker.CircuitBreaker
	log     *zerolog.Logger
}

func NewRealTelegramBotAdapter(cfg *config.BotConfig, logger *zerolog.Logger) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	return newAdapter(api, logger), nil
}

func newAdapter(api botAPI, logger *zerolog.Logger) *RealTelegramBotAdapter {
	l := logger.With().Str("component", "TelegramBot").Logger()
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "telegram",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
		// Bot API error replies (blocked bot, bad chat) do not count against the breaker.
		IsSuccessful: func(err error) bool {
			var apiErr *tgbotapi.Error
			return err == nil || errors.As(err, &apiErr)
		},
	})
	return &RealTelegramBotAdapter{api: api, breaker: cb, log: &l}
}

func (r *RealTelegramBotAdapter) call(ctx context.Context, method string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := r.breaker.Execute(func() (any, error) { return nil, fn() })
	if err != nil {
		metrics.IncSendFailure(method)
		return fmt.Errorf("%w: %s: %v", domain.ErrTransport, method, err)
	}
	return nil
}

func (r *RealTelegramBotAdapter) SendMessage(ctx context.Context, p adapter.SendMessageParams) error {
	msg := tgbotapi.NewMessage(p.ChatID, p.Text)
	msg.ParseMode = p.ParseMode
	msg.DisableWebPagePreview = true
	if p.ReplyMarkup != nil {
		msg.ReplyMarkup = toMarkup(p.ReplyMarkup)
	}
	return r.call(ctx, "sendMessage", func() error {
		_, err := r.api.Send(msg)
		return err
	})
}

func (r *RealTelegramBotAdapter) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	cfg := tgbotapi.NewCallback(callbackID, text)
	cfg.ShowAlert = alert
	return r.call(ctx, "answerCallbackQuery", func() error {
		_, err := r.api.Request(cfg)
		return err
	})
}

func (r *RealTelegramBotAdapter) EditMessage(ctx context.Context, p adapter.EditMessageParams) error {
	edit := tgbotapi.NewEditMessageText(p.ChatID, p.MessageID, p.Text)
	if p.ReplyMarkup != nil && p.ReplyMarkup.IsInline {
		kb := inlineKeyboard(p.ReplyMarkup.Buttons)
		edit.ReplyMarkup = &kb
	}
	return r.call(ctx, "editMessageText", func() error {
		_, err := r.api.Send(edit)
		if err != nil && strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return err
	})
}

func toMarkup(m *adapter.ReplyMarkup) any {
	if m.IsInline {
		return inlineKeyboard(m.Buttons)
	}
	rows := make([][]tgbotapi.KeyboardButton, 0, len(m.Buttons))
	for _, row := range m.Buttons {
		if len(row) == 0 {
			continue
		}
		kr := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, b := range row {
			kr = append(kr, tgbotapi.NewKeyboardButton(b.Text))
		}
		rows = append(rows, kr)
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.OneTimeKeyboard = m.OneTime
	return kb
}

// inlineKeyboard: URL buttons open a link, Data buttons send a callback,
// anything else falls back to its label as callback data.
func inlineKeyboard(buttons [][]adapter.Button) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, row := range buttons {
		if len(row) == 0 {
			continue
		}
		kr := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			label := strings.TrimSpace(b.Text)
			if label == "" {
				label = "•"
			}
			switch {
			case b.URL != "":
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonURL(label, b.URL))
			case b.Data != "":
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonData(label, b.Data))
			default:
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonData(label, label))
			}
		}
		rows = append(rows, kr)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// SetWebhook registers url with the Bot API for message and callback updates.
func (r *RealTelegramBotAdapter) SetWebhook(ctx context.Context, url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("webhook url: %w", err)
	}
	wh.AllowedUpdates = []string{"message", "callback_query"}
	return r.call(ctx, "setWebhook", func() error {
		_, err := r.api.Request(wh)
		return err
	})
}

// StartPolling long-polls updates and hands them to d until ctx is done.
func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context, d *Dispatcher) error {
	if _, err := r.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		r.log.Warn().Err(err).Msg("failed to delete webhook before polling")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "callback_query"}
	updates := r.api.GetUpdatesChan(u)
	r.log.Info().Msg("polling started")

	for {
		select {
		case <-ctx.Done():
			r.api.StopReceivingUpdates()
			r.log.Info().Msg("polling stopped")
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			d.Dispatch(ctx, up)
		}
	}
}
