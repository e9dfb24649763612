package usecase

import (
	"context"
	"time"

	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/domain/ports/adapter"
	"lightning-sats-bot/internal/domain/ports/repository"
	"lightning-sats-bot/internal/infra/i18n"
	"lightning-sats-bot/internal/infra/metrics"

	"github.com/rs/zerolog"
)

type BroadcastUseCase interface {
	// Broadcast sends message to every known user, pausing between sends, and reports
	// the tally to the admin chat. One failed delivery never stops the rest.
	Broadcast(ctx context.Context, message string) (*model.BroadcastResult, error)
}

type broadcastUC struct {
	users   repository.UserRepository
	bot     adapter.TelegramBotAdapter
	t       *i18n.Translator
	delay   time.Duration
	adminID int64
	log     *zerolog.Logger
}

func NewBroadcastUseCase(
	users repository.UserRepository,
	bot adapter.TelegramBotAdapter,
	translator *i18n.Translator,
	delay time.Duration,
	adminID int64,
	logger *zerolog.Logger,
) BroadcastUseCase {
	return &broadcastUC{
		users:   users,
		bot:     bot,
		t:       translator,
		delay:   delay,
		adminID: adminID,
		log:     logger,
	}
}

func (uc *broadcastUC) Broadcast(ctx context.Context, message string) (*model.BroadcastResult, error) {
	allUsers, err := uc.users.List(ctx, repository.NoTX, 0, 0)
	if err != nil {
		uc.log.Error().Err(err).Msg("Failed to fetch all users for broadcast")
		return nil, err
	}

	res := &model.BroadcastResult{Total: len(allUsers)}
	uc.log.Info().Int("user_count", res.Total).Msg("Starting broadcast")

	for i, user := range allUsers {
		if i > 0 && uc.delay > 0 {
			// Throttle to respect Telegram's API limits.
			select {
			case <-ctx.Done():
				res.Failed += res.Total - i
				metrics.AddBroadcast(res.Success, res.Failed)
				return res, ctx.Err()
			case <-time.After(uc.delay):
			}
		}
		if user.TelegramID == 0 {
			res.Failed++
			continue
		}
		err := uc.bot.SendMessage(ctx, adapter.SendMessageParams{ChatID: user.TelegramID, Text: message})
		if err != nil {
			uc.log.Warn().Err(err).Int64("tg_id", user.TelegramID).Msg("Failed to send broadcast message to user")
			res.Failed++
			continue
		}
		res.Success++
	}

	metrics.AddBroadcast(res.Success, res.Failed)
	uc.log.Info().Int("success", res.Success).Int("failed", res.Failed).Msg("Broadcast finished")

	if uc.adminID != 0 {
		summary := uc.t.T("broadcast_summary", res.Success, res.Failed, res.Total)
		if err := uc.bot.SendMessage(ctx, adapter.SendMessageParams{ChatID: uc.adminID, Text: summary}); err != nil {
			uc.log.Warn().Err(err).Msg("Failed to send broadcast summary to admin")
		}
	}
	return res, nil
}
