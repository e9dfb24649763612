package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"lightning-sats-bot/internal/domain"
	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/domain/ports/adapter"
	"lightning-sats-bot/internal/domain/ports/repository"
	"lightning-sats-bot/internal/infra/logging"
	"lightning-sats-bot/internal/infra/metrics"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

var _ ClaimUseCase = (*claimUC)(nil)

// ClaimUseCase runs the delayed auto-verification of promotion tasks.
type ClaimUseCase interface {
	// StartClaim checks eligibility and schedules the deferred completion for (promotion, user).
	// A repeated claim replaces the pending task. onDone runs only when the task produced a result.
	StartClaim(ctx context.Context, u *model.User, promotionID string, onDone func(ctx context.Context, res *model.TaskResult)) (*model.Promotion, error)
	// Complete credits the reward if the claim still qualifies; a nil result means nothing was done.
	Complete(ctx context.Context, promotionID string, u *model.User) (*model.TaskResult, error)
	// CancelPromotion drops every pending verification for promotionID.
	CancelPromotion(promotionID string) int
	VerifyDelay() time.Duration
}

type claimUC struct {
	users  repository.UserRepository
	promos repository.PromotionRepository
	tm     repository.TransactionManager
	sched  adapter.DelayScheduler
	events adapter.EventPublisher
	delay  time.Duration
	log    *zerolog.Logger
}

func NewClaimUseCase(
	users repository.UserRepository,
	promos repository.PromotionRepository,
	tm repository.TransactionManager,
	sched adapter.DelayScheduler,
	events adapter.EventPublisher,
	delay time.Duration,
	logger *zerolog.Logger,
) *claimUC {
	return &claimUC{
		users:  users,
		promos: promos,
		tm:     tm,
		sched:  sched,
		events: events,
		delay:  delay,
		log:    logger,
	}
}

func claimKey(promotionID, userID string) string {
	return "claim:" + promotionID + ":" + userID
}

func (uc *claimUC) VerifyDelay() time.Duration { return uc.delay }

func (uc *claimUC) StartClaim(ctx context.Context, u *model.User, promotionID string, onDone func(ctx context.Context, res *model.TaskResult)) (*model.Promotion, error) {
	defer logging.TraceDuration(uc.log, "ClaimUC.StartClaim")()

	promo, err := uc.promos.FindByID(ctx, repository.NoTX, promotionID)
	if err != nil {
		return nil, err
	}
	if !promo.Claimable() {
		return promo, fmt.Errorf("%w: %s", domain.ErrPromotionInactive, promotionID)
	}
	done, err := uc.promos.HasCompleted(ctx, repository.NoTX, promotionID, u.ID)
	if err != nil {
		return nil, err
	}
	if done {
		return promo, fmt.Errorf("%w: %s", domain.ErrAlreadyClaimed, promotionID)
	}

	user := *u
	uc.sched.Schedule(claimKey(promotionID, u.ID), uc.delay, func(ctx context.Context) {
		res, err := uc.Complete(ctx, promotionID, &user)
		if err != nil {
			uc.log.Error().Err(err).Str("promotion_id", promotionID).Str("user_id", user.ID).Msg("Claim verification failed")
			res = &model.TaskResult{Message: err.Error()}
		}
		if res != nil && onDone != nil {
			onDone(ctx, res)
		}
	})
	metrics.AddClaims("scheduled", 1)
	return promo, nil
}

func (uc *claimUC) Complete(ctx context.Context, promotionID string, u *model.User) (*model.TaskResult, error) {
	defer logging.TraceDuration(uc.log, "ClaimUC.Complete")()

	promo, err := uc.promos.FindByID(ctx, repository.NoTX, promotionID)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.AddClaims("skipped", 1)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !promo.Claimable() {
		metrics.AddClaims("skipped", 1)
		return nil, nil
	}

	err = uc.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.promos.RecordCompletion(ctx, tx, promotionID, u.ID, promo.RewardAmount); err != nil {
			return err
		}
		return uc.users.CreditReward(ctx, tx, u.ID, promo.RewardAmount)
	})
	if errors.Is(err, domain.ErrAlreadyClaimed) || errors.Is(err, domain.ErrPromotionInactive) || errors.Is(err, domain.ErrNotFound) {
		metrics.AddClaims("skipped", 1)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: complete task: %v", domain.ErrDomainActionFailed, err)
	}

	metrics.AddClaims("credited", 1)
	uc.log.Info().Str("promotion_id", promotionID).Str("user_id", u.ID).Float64("reward", promo.RewardAmount).Msg("Task completed")

	if err := uc.events.Publish(ctx, model.OutboundEvent{
		Type:   model.EventAdReward,
		UserID: u.ID,
		Amount: model.FormatAmount(promo.RewardAmount),
	}); err != nil {
		uc.log.Warn().Err(err).Str("user_id", u.ID).Msg("Failed to publish ad_reward")
	}
	return &model.TaskResult{Success: true, Message: strconv.FormatFloat(promo.RewardAmount, 'f', -1, 64)}, nil
}

func (uc *claimUC) CancelPromotion(promotionID string) int {
	n := uc.sched.CancelPrefix("claim:" + promotionID + ":")
	if n > 0 {
		metrics.AddClaims("cancelled", n)
		uc.log.Info().Str("promotion_id", promotionID).Int("cancelled", n).Msg("Pending claims cancelled")
	}
	return n
}
