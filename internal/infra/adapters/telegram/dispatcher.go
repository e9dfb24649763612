package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"lightning-sats-bot/internal/config"
	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/infra/metrics"
	red "lightning-sats-bot/internal/infra/redis"
	"lightning-sats-bot/internal/infra/worker"
)

// Handler consumes decoded inbound events.
type Handler interface {
	Handle(ctx context.Context, ev model.InboundEvent) error
}

// Limiter is the per-user inbound rate limit; redis.RateLimiter satisfies it.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Dispatcher decodes updates, applies the rate limit and queues events on the
// worker pool keyed by chat so one chat's updates stay in order.
type Dispatcher struct {
	handler Handler
	pool    *worker.Pool
	limiter Limiter
	limit   int
	window  time.Duration
	log     *zerolog.Logger
}

// NewDispatcher builds a dispatcher; limiter may be nil to disable rate limiting.
func NewDispatcher(h Handler, pool *worker.Pool, limiter Limiter, cfg *config.BotConfig, logger *zerolog.Logger) *Dispatcher {
	l := logger.With().Str("component", "TelegramDispatcher").Logger()
	d := &Dispatcher{handler: h, pool: pool, log: &l}
	if limiter != nil && cfg.RateLimit > 0 {
		d.limiter = limiter
		d.limit = cfg.RateLimit
		d.window = cfg.RateWindow
	}
	return d
}

// DecodeUpdate maps a Bot API update onto an InboundEvent. Only private-chat text
// messages and callback queries are accepted.
func DecodeUpdate(up tgbotapi.Update) (model.InboundEvent, bool) {
	if q := up.CallbackQuery; q != nil {
		if q.From == nil {
			return model.InboundEvent{}, false
		}
		chatID := q.From.ID
		msgID := 0
		if q.Message != nil {
			msgID = q.Message.MessageID
			if q.Message.Chat != nil {
				chatID = q.Message.Chat.ID
			}
		}
		return model.InboundEvent{
			ChatID:   chatID,
			From:     profile(q.From),
			Callback: &model.CallbackQuery{ID: q.ID, Data: q.Data, MessageID: msgID},
		}, true
	}

	m := up.Message
	if m == nil || m.From == nil || m.Chat == nil || !m.Chat.IsPrivate() || m.Text == "" {
		return model.InboundEvent{}, false
	}
	return model.InboundEvent{ChatID: m.Chat.ID, From: profile(m.From), Text: m.Text}, true
}

func profile(u *tgbotapi.User) model.TelegramProfile {
	return model.TelegramProfile{
		TelegramID: u.ID,
		Username:   u.UserName,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
	}
}

// Dispatch queues one update. It never blocks on the handler.
func (d *Dispatcher) Dispatch(ctx context.Context, up tgbotapi.Update) {
	ev, ok := DecodeUpdate(up)
	if !ok {
		metrics.IncTelegramUpdate("ignored")
		return
	}
	if ev.IsCallback() {
		metrics.IncTelegramUpdate("callback")
	} else {
		metrics.IncTelegramUpdate("message")
	}

	if d.limiter != nil {
		allowed, err := d.limiter.Allow(ctx, red.UserUpdateKey(ev.From.TelegramID), d.limit, d.window)
		if err != nil {
			d.log.Warn().Err(err).Msg("rate limiter unavailable, allowing update")
		} else if !allowed {
			metrics.IncRateLimitTriggered()
			d.log.Debug().Int64("tg_id", ev.From.TelegramID).Msg("update dropped by rate limit")
			return
		}
	}

	err := d.pool.Submit(ev.ChatID, func(ctx context.Context) error {
		return d.handler.Handle(ctx, ev)
	})
	switch {
	case errors.Is(err, worker.ErrQueueFull):
		d.log.Warn().Int64("chat_id", ev.ChatID).Msg("update queue full, dropping update")
	case err != nil:
		d.log.Warn().Err(err).Msg("update not queued")
	}
}

// WebhookHandler accepts Bot API webhook posts.
func (d *Dispatcher) WebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var up tgbotapi.Update
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&up); err != nil {
			http.Error(w, "bad update", http.StatusBadRequest)
			return
		}
		// The request context ends with the response; the pool runs on its own.
		d.Dispatch(context.WithoutCancel(r.Context()), up)
		w.WriteHeader(http.StatusOK)
	}
}
