package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lightning-sats-bot/internal/domain"
	"lightning-sats-bot/internal/domain/model"
)

type callbackHandler func(ctx context.Context, ev model.InboundEvent) error

func (e *Engine) callbackRoutes() map[string]callbackHandler {
	return map[string]callbackHandler{
		cbRefreshStats:  e.refreshStatsCB,
		cbConfirmPayout: e.confirmPayoutCB,
		cbCancelPayout:  e.cancelPayoutCB,
	}
}

func (e *Engine) handleCallback(ctx context.Context, ev model.InboundEvent) error {
	data := ev.Callback.Data
	if fn, ok := e.callbackRoutes()[data]; ok {
		return fn(ctx, ev)
	}
	if methodID, ok := strings.CutPrefix(data, cbPayoutPrefix); ok {
		return e.selectMethodCB(ctx, ev, methodID)
	}
	e.answer(ctx, ev.Callback.ID, "", false)
	return nil
}

func (e *Engine) refreshStatsCB(ctx context.Context, ev model.InboundEvent) error {
	if !e.isAdmin(ev.From.TelegramID) {
		e.answer(ctx, ev.Callback.ID, e.t.T("not_authorized"), true)
		return nil
	}
	st, err := e.stats.AppStats(ctx)
	if err != nil {
		return err
	}
	e.answer(ctx, ev.Callback.ID, e.t.T("stats_refreshed"), false)
	e.edit(ctx, ev.ChatID, ev.Callback.MessageID, e.stats.Render(st), e.statsInline())
	return nil
}

// callbackTurn resolves the user and session for a callback.
func (e *Engine) callbackTurn(ctx context.Context, ev model.InboundEvent) (*turn, error) {
	user, isNew, err := e.users.RegisterOrFetch(ctx, ev.From)
	if err != nil {
		return nil, fmt.Errorf("register user: %w", err)
	}
	sess, err := e.sessions.Get(ctx, ev.ChatID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &turn{ev: ev, user: user, isNew: isNew, sess: sess}, nil
}

func (e *Engine) selectMethodCB(ctx context.Context, ev model.InboundEvent, methodID string) error {
	t, err := e.callbackTurn(ctx, ev)
	if err != nil {
		return err
	}
	m, amount, err := e.payouts.CheckEligibility(t.user, methodID)
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		e.answer(ctx, ev.Callback.ID, e.t.T("payout_min_alert", m.Name, m.MinWithdrawal), true)
		return nil
	case errors.Is(err, domain.ErrNotFound):
		e.answer(ctx, ev.Callback.ID, e.t.T("payout_unknown_method"), true)
		return nil
	case err != nil:
		return err
	}
	if err := e.saveSession(ctx, t, model.NewPayoutSession(ev.ChatID, m.ID, amount)); err != nil {
		return err
	}
	e.answer(ctx, ev.Callback.ID, e.t.T("payout_details_alert"), false)
	e.edit(ctx, ev.ChatID, ev.Callback.MessageID, e.payoutPrompt(m, amount), nil)
	return nil
}

func (e *Engine) confirmPayoutCB(ctx context.Context, ev model.InboundEvent) error {
	t, err := e.callbackTurn(ctx, ev)
	if err != nil {
		return err
	}
	if !t.sess.AwaitingPayoutConfirmation() {
		e.answer(ctx, ev.Callback.ID, e.t.T("payout_expired_alert"), true)
		return nil
	}
	text, ok, err := e.confirmPayout(ctx, t)
	if err != nil {
		return err
	}
	alert := ""
	if ok {
		alert = e.t.T("payout_success_alert")
	}
	e.answer(ctx, ev.Callback.ID, alert, false)
	e.edit(ctx, ev.ChatID, ev.Callback.MessageID, text, nil)
	return nil
}

func (e *Engine) cancelPayoutCB(ctx context.Context, ev model.InboundEvent) error {
	if err := e.sessions.Clear(ctx, ev.ChatID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	e.answer(ctx, ev.Callback.ID, e.t.T("payout_cancelled_alert"), false)
	e.edit(ctx, ev.ChatID, ev.Callback.MessageID, e.t.T("payout_cancelled"), nil)
	return nil
}
