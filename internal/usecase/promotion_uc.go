package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"

	"lightning-sats-bot/internal/domain"
	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/domain/ports/adapter"
	"lightning-sats-bot/internal/domain/ports/repository"
	"lightning-sats-bot/internal/infra/i18n"
	"lightning-sats-bot/internal/infra/logging"
	"lightning-sats-bot/internal/infra/metrics"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

var _ PromotionUseCase = (*promotionUC)(nil)

type PromotionUseCase interface {
	// Params returns the fixed economics for a promotion sub-type.
	Params(t model.PromotionType) (model.PromotionParams, bool)
	// Create stores the promotion and debits AdCost from the creator's main balance in one transaction,
	// then posts the promotion to the public channel. It fails with ErrInsufficientFunds without side effects.
	Create(ctx context.Context, creator *model.User, p model.PromotionParams, url string) (*model.Promotion, error)
	Get(ctx context.Context, id string) (*model.Promotion, error)
}

// ChannelSettings controls where new promotions are announced.
type ChannelSettings struct {
	ChannelID   int64
	BotUsername string
}

type promotionUC struct {
	users   repository.UserRepository
	promos  repository.PromotionRepository
	tm      repository.TransactionManager
	bot     adapter.TelegramBotAdapter
	t       *i18n.Translator
	log     *zerolog.Logger
	params  map[model.PromotionType]model.PromotionParams
	channel ChannelSettings
}

func NewPromotionUseCase(
	users repository.UserRepository,
	promos repository.PromotionRepository,
	tm repository.TransactionManager,
	bot adapter.TelegramBotAdapter,
	translator *i18n.Translator,
	params []model.PromotionParams,
	channel ChannelSettings,
	logger *zerolog.Logger,
) *promotionUC {
	uc := &promotionUC{
		users:   users,
		promos:  promos,
		tm:      tm,
		bot:     bot,
		t:       translator,
		log:     logger,
		params:  make(map[model.PromotionType]model.PromotionParams, len(params)),
		channel: channel,
	}
	for _, p := range params {
		uc.params[p.Type] = p
	}
	return uc
}

func (uc *promotionUC) Params(t model.PromotionType) (model.PromotionParams, bool) {
	p, ok := uc.params[t]
	return p, ok
}

func (uc *promotionUC) Get(ctx context.Context, id string) (*model.Promotion, error) {
	defer logging.TraceDuration(uc.log, "PromotionUC.Get")()
	return uc.promos.FindByID(ctx, repository.NoTX, id)
}

func (uc *promotionUC) Create(ctx context.Context, creator *model.User, p model.PromotionParams, url string) (*model.Promotion, error) {
	defer logging.TraceDuration(uc.log, "PromotionUC.Create")()

	clean, err := ValidatePromotionURL(url)
	if err != nil {
		return nil, err
	}
	if err := CheckFunding(creator.MainBalance, p.AdCost); err != nil {
		return nil, err
	}
	promo, err := model.NewPromotion(creator.ID, p, clean)
	if err != nil {
		return nil, err
	}

	err = uc.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.promos.Create(ctx, tx, promo); err != nil {
			return err
		}
		return uc.users.DeductMainBalance(ctx, tx, creator.ID, p.AdCost)
	})
	if errors.Is(err, domain.ErrInsufficientFunds) {
		metrics.IncDomainAction("promotion", "rejected")
		return nil, err
	}
	if err != nil {
		metrics.IncDomainAction("promotion", "error")
		uc.log.Error().Err(err).Str("user_id", creator.ID).Msg("Promotion creation failed")
		return nil, fmt.Errorf("%w: create promotion: %v", domain.ErrDomainActionFailed, err)
	}

	metrics.IncDomainAction("promotion", "success")
	uc.log.Info().Str("promotion_id", promo.ID).Str("user_id", creator.ID).Str("type", string(promo.Type)).Msg("Promotion created")
	uc.postToChannel(ctx, promo)
	return promo, nil
}

// ClaimLink is the deep link that starts a claim for promotionID.
func ClaimLink(botUsername, promotionID string) string {
	return fmt.Sprintf("https://t.me/%s?start=claim_%s", botUsername, promotionID)
}

// InviteLink is the deep link carrying a referral code.
func InviteLink(botUsername, code string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", botUsername, code)
}

func (uc *promotionUC) postToChannel(ctx context.Context, p *model.Promotion) {
	if uc.channel.ChannelID == 0 {
		return
	}
	// The announcement shows the reward scaled to a per-mille figure.
	display := fmt.Sprintf("%.2f", math.Round(p.RewardAmount*100000)/100)
	err := uc.bot.SendMessage(ctx, adapter.SendMessageParams{
		ChatID: uc.channel.ChannelID,
		Text:   uc.t.T("channel_post", display, p.TotalSlots, p.URL),
		ReplyMarkup: &adapter.ReplyMarkup{
			IsInline: true,
			Buttons: [][]adapter.Button{{
				{Text: uc.t.T("btn_grab_crypto"), URL: ClaimLink(uc.channel.BotUsername, p.ID)},
			}},
		},
	})
	if err != nil {
		uc.log.Warn().Err(err).Str("promotion_id", p.ID).Msg("Failed to post promotion to channel")
	}
}
