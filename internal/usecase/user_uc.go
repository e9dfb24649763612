package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lightning-sats-bot/internal/domain"
	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/domain/ports/adapter"
	"lightning-sats-bot/internal/domain/ports/repository"
	"lightning-sats-bot/internal/infra/i18n"
	"lightning-sats-bot/internal/infra/logging"
	"lightning-sats-bot/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ UserUseCase = (*userUC)(nil)

// UserUseCase exposes user and referral operations used by bot and web flows.
type UserUseCase interface {
	// RegisterOrFetch upserts by Telegram id and reports whether the user was created now.
	RegisterOrFetch(ctx context.Context, p model.TelegramProfile) (*model.User, bool, error)
	GetByTelegramID(ctx context.Context, tgID int64) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	Account(ctx context.Context, u *model.User) (*model.AccountSummary, error)
	// EnsureReferralCode generates and stores a code for users created without one.
	EnsureReferralCode(ctx context.Context, u *model.User) (*model.User, error)
	// ApplyReferral links referee to the owner of code. It reports whether a referral was recorded;
	// unknown codes, self-referral and existing referrals are no-ops.
	ApplyReferral(ctx context.Context, referee *model.User, code string) (bool, error)
}

type userUC struct {
	users     repository.UserRepository
	referrals repository.ReferralRepository
	bot       adapter.TelegramBotAdapter
	t         *i18n.Translator
	log       *zerolog.Logger
}

func NewUserUseCase(
	users repository.UserRepository,
	referrals repository.ReferralRepository,
	bot adapter.TelegramBotAdapter,
	translator *i18n.Translator,
	logger *zerolog.Logger,
) *userUC {
	return &userUC{
		users:     users,
		referrals: referrals,
		bot:       bot,
		t:         translator,
		log:       logger,
	}
}

func (u *userUC) RegisterOrFetch(ctx context.Context, p model.TelegramProfile) (*model.User, bool, error) {
	defer logging.TraceDuration(u.log, "UserUC.RegisterOrFetch")()

	candidate, err := model.NewUser("", p)
	if err != nil {
		return nil, false, err
	}
	user, created, err := u.users.UpsertByTelegramID(ctx, repository.NoTX, candidate)
	if err != nil {
		u.log.Error().Err(err).Int64("tg_id", p.TelegramID).Msg("Failed to upsert user")
		return nil, false, fmt.Errorf("upsert user: %w", err)
	}
	if created {
		metrics.IncUsersRegistered()
		u.log.Info().Str("user_id", user.ID).Int64("tg_id", user.TelegramID).Msg("New user registered")
	}
	return user, created, nil
}

func (u *userUC) GetByTelegramID(ctx context.Context, tgID int64) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.GetByTelegramID")()
	return u.users.FindByTelegramID(ctx, repository.NoTX, tgID)
}

func (u *userUC) GetByID(ctx context.Context, id string) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.GetByID")()
	return u.users.FindByID(ctx, repository.NoTX, id)
}

func (u *userUC) Account(ctx context.Context, user *model.User) (*model.AccountSummary, error) {
	defer logging.TraceDuration(u.log, "UserUC.Account")()

	invited, err := u.referrals.CountByReferrer(ctx, repository.NoTX, user.ID)
	if err != nil {
		return nil, fmt.Errorf("count referrals: %w", err)
	}
	earnings, err := u.referrals.EarningsByReferrer(ctx, repository.NoTX, user.ID)
	if err != nil {
		return nil, fmt.Errorf("referral earnings: %w", err)
	}
	return &model.AccountSummary{User: user, InvitedCount: invited, ReferralEarnings: earnings}, nil
}

func (u *userUC) EnsureReferralCode(ctx context.Context, user *model.User) (*model.User, error) {
	if user.ReferralCode != "" {
		return user, nil
	}
	code := model.NewReferralCode()
	if err := u.users.SetReferralCode(ctx, repository.NoTX, user.ID, code); err != nil {
		return user, fmt.Errorf("set referral code: %w", err)
	}
	cp := *user
	cp.ReferralCode = code
	return &cp, nil
}

func (u *userUC) ApplyReferral(ctx context.Context, referee *model.User, code string) (bool, error) {
	defer logging.TraceDuration(u.log, "UserUC.ApplyReferral")()

	code = strings.TrimSpace(code)
	if code == "" || referee.IsZero() {
		return false, nil
	}
	referrer, err := u.users.FindByReferralCode(ctx, repository.NoTX, code)
	if errors.Is(err, domain.ErrNotFound) {
		u.log.Info().Str("code", code).Msg("Unknown referral code")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("resolve referral code: %w", err)
	}
	if referrer.ID == referee.ID {
		u.log.Debug().Str("user_id", referee.ID).Msg("Self-referral ignored")
		return false, nil
	}

	if _, err := u.referrals.Create(ctx, repository.NoTX, referrer.ID, referee.ID); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return false, nil
		}
		return false, fmt.Errorf("create referral: %w", err)
	}
	u.log.Info().Str("referrer_id", referrer.ID).Str("referee_id", referee.ID).Msg("Referral recorded")

	// The referral stands even if the referrer cannot be reached.
	err = u.bot.SendMessage(ctx, adapter.SendMessageParams{
		ChatID: referrer.TelegramID,
		Text:   u.t.T("referral_notify", referee.DisplayName()),
	})
	if err != nil {
		u.log.Warn().Err(err).Int64("tg_id", referrer.TelegramID).Msg("Failed to notify referrer")
	}
	return true, nil
}
