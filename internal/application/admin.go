package application

import (
	"context"

	"lightning-sats-bot/internal/infra/metrics"
)

func (e *Engine) isAdmin(tgID int64) bool {
	return e.cfg.AdminID != 0 && tgID == e.cfg.AdminID
}

func (e *Engine) adminOnly(cmd Command, next commandHandler) commandHandler {
	return func(ctx context.Context, t *turn) error {
		if !e.isAdmin(t.ev.From.TelegramID) {
			metrics.IncAdminCommand("/"+cmd.String(), "unauthorized")
			e.reply(ctx, t.chatID(), e.t.T("not_authorized"), e.mainMenu())
			return nil
		}
		metrics.IncAdminCommand("/"+cmd.String(), "authorized")
		return next(ctx, t)
	}
}

func (e *Engine) handleStats(ctx context.Context, t *turn) error {
	st, err := e.stats.AppStats(ctx)
	if err != nil {
		return err
	}
	e.reply(ctx, t.chatID(), e.stats.Render(st), e.statsInline())
	return nil
}

// handleBroadcast acknowledges immediately and sends in the background; the
// summary reaches the admin when the run completes.
func (e *Engine) handleBroadcast(ctx context.Context, t *turn) error {
	if t.arg == "" {
		e.reply(ctx, t.chatID(), e.t.T("broadcast_usage"), e.mainMenu())
		return nil
	}
	e.reply(ctx, t.chatID(), e.t.T("broadcast_started"), e.mainMenu())

	msg := t.arg
	bctx := context.WithoutCancel(ctx)
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		if _, err := e.broadcasts.Broadcast(bctx, msg); err != nil {
			e.log.Error().Err(err).Msg("Broadcast failed")
		}
	}()
	return nil
}
