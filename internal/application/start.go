package application

import (
	"context"
	"errors"
	"strings"

	"lightning-sats-bot/internal/domain"
	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/usecase"
)

const claimPrefix = "claim_"

// handleStart covers "/start", "/start <referralCode>" and "/start claim_<promotionID>".
func (e *Engine) handleStart(ctx context.Context, t *turn) error {
	if id, ok := strings.CutPrefix(t.arg, claimPrefix); ok && id != "" {
		return e.handleClaim(ctx, t, id)
	}
	if t.isNew && t.arg != "" {
		if _, err := e.users.ApplyReferral(ctx, t.user, t.arg); err != nil {
			// Referral bookkeeping never blocks onboarding.
			e.log.Warn().Err(err).Str("user_id", t.user.ID).Msg("Referral not applied")
		}
	}
	return e.sendWelcome(ctx, t)
}

func (e *Engine) handleStartEarning(ctx context.Context, t *turn) error {
	return e.sendWelcome(ctx, t)
}

func (e *Engine) sendWelcome(ctx context.Context, t *turn) error {
	if kb := e.welcomeInline(); kb != nil {
		e.reply(ctx, t.chatID(), e.t.T("welcome"), kb)
		e.reply(ctx, t.chatID(), e.t.T("menu_default"), e.mainMenu())
		return nil
	}
	e.reply(ctx, t.chatID(), e.t.T("welcome"), e.mainMenu())
	return nil
}

func (e *Engine) handleClaim(ctx context.Context, t *turn, promotionID string) error {
	chatID := t.chatID()
	promo, err := e.claims.StartClaim(ctx, t.user, promotionID, func(ctx context.Context, res *model.TaskResult) {
		text := e.t.T("claim_reward", res.Message)
		if !res.Success {
			text = e.t.T("claim_failed", res.Message)
		}
		e.reply(ctx, chatID, text, e.mainMenu())
	})
	switch {
	case errors.Is(err, domain.ErrNotFound):
		e.reply(ctx, chatID, e.t.T("claim_not_found"), e.mainMenu())
		return nil
	case errors.Is(err, domain.ErrPromotionInactive):
		e.reply(ctx, chatID, e.t.T("claim_expired"), e.mainMenu())
		return nil
	case errors.Is(err, domain.ErrAlreadyClaimed):
		e.reply(ctx, chatID, e.t.T("claim_already"), e.mainMenu())
		return nil
	case err != nil:
		e.log.Error().Err(err).Str("promotion_id", promotionID).Msg("Claim failed to start")
		e.reply(ctx, chatID, e.t.T("claim_error"), e.mainMenu())
		return nil
	}

	secs := int(e.claims.VerifyDelay().Seconds())
	key := "claim_subscribe"
	if promo.Type == model.PromotionBot {
		key = "claim_bot"
	}
	e.reply(ctx, chatID, e.t.T(key, promo.URL, secs), e.mainMenu())
	return nil
}

func (e *Engine) handleAccount(ctx context.Context, t *turn) error {
	acc, err := e.users.Account(ctx, t.user)
	if err != nil {
		e.log.Error().Err(err).Str("user_id", t.user.ID).Msg("Account summary failed")
		e.reply(ctx, t.chatID(), e.t.T("account_error"), e.mainMenu())
		return nil
	}
	u := acc.User
	text := e.t.T("account_dashboard",
		u.Handle(), u.TelegramID,
		acc.InvitedCount, u.TotalEarned, u.WithdrawBalance, acc.ReferralEarnings,
		u.CreatedAt.Format("2006-01-02"),
	)
	e.reply(ctx, t.chatID(), text, e.mainMenu())
	return nil
}

func (e *Engine) handleAffiliates(ctx context.Context, t *turn) error {
	u, err := e.users.EnsureReferralCode(ctx, t.user)
	if err != nil {
		return err
	}
	e.reply(ctx, t.chatID(), e.t.T("affiliates", usecase.InviteLink(e.cfg.BotUsername, u.ReferralCode)), e.mainMenu())
	return nil
}

func (e *Engine) handleHowTo(ctx context.Context, t *turn) error {
	e.reply(ctx, t.chatID(), e.t.T("howto"), e.mainMenu())
	return nil
}

func (e *Engine) handleAddFunds(ctx context.Context, t *turn) error {
	support := e.cfg.SupportLink
	if support == "" {
		support = "-"
	}
	e.reply(ctx, t.chatID(), e.t.T("add_funds", support, t.user.MainBalance), e.mainMenu())
	return nil
}
