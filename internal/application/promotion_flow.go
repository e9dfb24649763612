package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"lightning-sats-bot/internal/domain"
	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/usecase"
)

func (e *Engine) handlePromotionMenu(ctx context.Context, t *turn) error {
	e.reply(ctx, t.chatID(), e.t.T("promotion_menu"), e.promotionMenu())
	return nil
}

// handlePromotionType opens the URL step for the sub-type picked from the promotion menu.
// Funding is checked only once a URL arrives.
func (e *Engine) handlePromotionType(ctx context.Context, t *turn) error {
	typ := model.PromotionSubscribe
	if t.cmd == CmdBot {
		typ = model.PromotionBot
	}
	params, ok := e.promotions.Params(typ)
	if !ok {
		return fmt.Errorf("%w: promotion type %s", domain.ErrNotFound, typ)
	}

	if err := e.saveSession(ctx, t, model.NewPromotionSession(t.chatID(), params)); err != nil {
		return err
	}
	prompt := e.t.T("promotion_channel_prompt", e.cfg.BotUsername, params.AdCost)
	if typ == model.PromotionBot {
		prompt = e.t.T("promotion_bot_prompt", params.AdCost)
	}
	e.reply(ctx, t.chatID(), prompt, e.backMenu())
	return nil
}

// handlePromotionURL creates the campaign. The session is cleared whatever the outcome,
// except for an invalid URL which may be retried.
func (e *Engine) handlePromotionURL(ctx context.Context, t *turn, text string) error {
	url, err := usecase.ValidatePromotionURL(text)
	if err != nil {
		e.reply(ctx, t.chatID(), e.t.T("promotion_invalid_url"), e.backMenu())
		return nil
	}
	params := t.sess.Promotion.Params()
	if err := e.clearSession(ctx, t); err != nil {
		return err
	}

	promo, err := e.promotions.Create(ctx, t.user, params, url)
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		balance := t.user.MainBalance
		if fresh, ferr := e.users.GetByID(ctx, t.user.ID); ferr == nil {
			balance = fresh.MainBalance
		}
		e.reply(ctx, t.chatID(), e.t.T("promotion_insufficient", balance, params.AdCost), e.mainMenu())
		return nil
	case err != nil:
		e.log.Error().Err(err).Str("user_id", t.user.ID).Msg("Promotion creation failed")
		e.reply(ctx, t.chatID(), e.t.T("promotion_failed"), e.mainMenu())
		return nil
	}

	reward := strconv.FormatFloat(promo.RewardAmount, 'f', -1, 64)
	e.reply(ctx, t.chatID(), e.t.T("promotion_created", promo.Title, promo.URL, promo.TotalSlots, reward), e.mainMenu())
	return nil
}
