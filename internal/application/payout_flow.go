package application

import (
	"context"
	"errors"

	"lightning-sats-bot/internal/domain"
	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/infra/logging"
	"lightning-sats-bot/internal/usecase"
)

func (e *Engine) handleCashout(ctx context.Context, t *turn) error {
	balance := t.user.WithdrawBalance
	if balance <= 0 {
		e.reply(ctx, t.chatID(), e.t.T("cashout_no_balance", balance), e.mainMenu())
		return nil
	}
	e.reply(ctx, t.chatID(), e.t.T("cashout_select", balance), e.cashoutMenu())
	return nil
}

// handlePaymentMethod starts (or restarts) the payout flow for the method in t.arg.
func (e *Engine) handlePaymentMethod(ctx context.Context, t *turn) error {
	m, amount, err := e.payouts.CheckEligibility(t.user, t.arg)
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		e.reply(ctx, t.chatID(), e.t.T("payout_min", m.Name, m.MinWithdrawal, amount), cashoutInline(e.payouts.Methods()))
		return nil
	case err != nil:
		return err
	}
	if err := e.saveSession(ctx, t, model.NewPayoutSession(t.chatID(), m.ID, amount)); err != nil {
		return err
	}
	e.reply(ctx, t.chatID(), e.payoutPrompt(m, amount), e.detailsMenu())
	return nil
}

func (e *Engine) payoutPrompt(m model.PaymentMethod, amount float64) string {
	if key := "payout_prompt_" + m.ID; e.t.Has(key) {
		return e.t.T(key, amount, m.MinWithdrawal)
	}
	return e.t.T("payout_prompt_default", amount, m.MinWithdrawal, m.Name)
}

// handlePayoutDetails validates free text as payment details. Invalid input keeps
// the session at AwaitingDetails.
func (e *Engine) handlePayoutDetails(ctx context.Context, t *turn, text string) error {
	p := t.sess.Payout
	m, ok := e.payouts.Method(p.MethodID)
	if !ok {
		if err := e.clearSession(ctx, t); err != nil {
			return err
		}
		e.reply(ctx, t.chatID(), e.t.T("payout_unknown_method"), e.mainMenu())
		return nil
	}

	clean, err := usecase.ValidatePaymentDetails(m.ID, text)
	if err != nil {
		key := "invalid_details_" + m.ID
		if !e.t.Has(key) {
			key = "invalid_details_default"
		}
		e.reply(ctx, t.chatID(), e.t.T(key), e.detailsMenu())
		return nil
	}

	next := t.sess.Clone()
	next.Step = model.StepAwaitingConfirmation
	next.Payout.Details = clean
	if err := e.saveSession(ctx, t, next); err != nil {
		return err
	}
	logging.With(ctx, e.log).Info().
		Str("method", m.ID).
		Str("details", logging.Redact(clean, e.cfg.Dev)).
		Msg("Payout awaiting confirmation")
	e.reply(ctx, t.chatID(), e.t.T("payout_confirm", m.Emoji, m.Name, p.Amount, clean), e.confirmInline())
	return nil
}

func (e *Engine) handleConfirm(ctx context.Context, t *turn) error {
	if !t.sess.AwaitingPayoutConfirmation() {
		return e.showDefaultMenu(ctx, t)
	}
	text, _, err := e.confirmPayout(ctx, t)
	if err != nil {
		return err
	}
	e.reply(ctx, t.chatID(), text, e.mainMenu())
	return nil
}

// confirmPayout clears the session before invoking the payout so a failure can
// never leave a confirmable request behind. It returns the reply text and whether
// the request was accepted.
func (e *Engine) confirmPayout(ctx context.Context, t *turn) (string, bool, error) {
	p := *t.sess.Payout
	if err := e.clearSession(ctx, t); err != nil {
		return "", false, err
	}
	m, _ := e.payouts.Method(p.MethodID)

	res, err := e.payouts.RequestPayout(ctx, t.user, p.MethodID, p.Amount, p.Details)
	if err != nil {
		logging.With(ctx, e.log).Error().Err(err).Str("method", p.MethodID).Msg("Payout request failed")
		return e.t.T("payout_error"), false, nil
	}
	if !res.Success {
		return e.t.T("payout_failed", res.Message), false, nil
	}
	return e.t.T("payout_success", m.Name), true, nil
}

func (e *Engine) handleCancel(ctx context.Context, t *turn) error {
	wasPayout := t.sess != nil && t.sess.Flow == model.FlowPayout
	if err := e.clearSession(ctx, t); err != nil {
		return err
	}
	text := e.t.T("operation_cancelled")
	if wasPayout {
		text = e.t.T("payout_cancelled")
	}
	e.reply(ctx, t.chatID(), text, e.mainMenu())
	return nil
}

func (e *Engine) handleBack(ctx context.Context, t *turn) error {
	if err := e.clearSession(ctx, t); err != nil {
		return err
	}
	e.reply(ctx, t.chatID(), e.t.T("menu_back"), e.mainMenu())
	return nil
}
