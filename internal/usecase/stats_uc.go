package usecase

import (
	"context"

	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/domain/ports/adapter"
	"lightning-sats-bot/internal/domain/ports/repository"
	"lightning-sats-bot/internal/infra/i18n"
	"lightning-sats-bot/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

type StatsUseCase interface {
	AppStats(ctx context.Context) (*model.AppStats, error)
	// Render formats stats for a chat message.
	Render(s *model.AppStats) string
	// SendDigest posts the current stats to the admin chat.
	SendDigest(ctx context.Context) error
}

type statsUC struct {
	stats   repository.StatsRepository
	bot     adapter.TelegramBotAdapter
	t       *i18n.Translator
	adminID int64
	log     *zerolog.Logger
}

func NewStatsUseCase(stats repository.StatsRepository, bot adapter.TelegramBotAdapter, translator *i18n.Translator, adminID int64, logger *zerolog.Logger) *statsUC {
	return &statsUC{stats: stats, bot: bot, t: translator, adminID: adminID, log: logger}
}

func (s *statsUC) AppStats(ctx context.Context) (*model.AppStats, error) {
	defer logging.TraceDuration(s.log, "StatsUC.AppStats")()
	return s.stats.AppStats(ctx, repository.NoTX)
}

func (s *statsUC) Render(st *model.AppStats) string {
	return s.t.T("stats",
		st.TotalUsers, st.ActiveUsersToday, st.TotalInvites,
		st.TotalEarnings, st.TotalReferralEarnings, st.TotalPayouts,
		st.NewUsersLast24h,
	)
}

func (s *statsUC) SendDigest(ctx context.Context) error {
	if s.adminID == 0 {
		return nil
	}
	st, err := s.AppStats(ctx)
	if err != nil {
		return err
	}
	return s.bot.SendMessage(ctx, adapter.SendMessageParams{
		ChatID: s.adminID,
		Text:   s.t.T("stats_digest") + "\n\n" + s.Render(st),
	})
}
