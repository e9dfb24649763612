package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lightning-sats-bot/internal/domain"
	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/domain/ports/adapter"
	"lightning-sats-bot/internal/domain/ports/repository"
	"lightning-sats-bot/internal/infra/i18n"
	"lightning-sats-bot/internal/infra/logging"
	"lightning-sats-bot/internal/infra/metrics"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

var _ PayoutUseCase = (*payoutUC)(nil)

type PayoutUseCase interface {
	Methods() []model.PaymentMethod
	Method(id string) (model.PaymentMethod, bool)
	// MethodByButton resolves a reply-keyboard label ("<emoji> <name>").
	MethodByButton(text string) (model.PaymentMethod, bool)
	// CheckEligibility returns the method and the amount to withdraw, or ErrInsufficientFunds
	// when the withdrawable balance is below the method minimum.
	CheckEligibility(u *model.User, methodID string) (model.PaymentMethod, float64, error)
	// RequestPayout debits the withdrawable balance and records a pending request.
	// Business rejections come back as a PayoutResult with Success=false; err is reserved for failures.
	RequestPayout(ctx context.Context, u *model.User, methodID string, amount float64, details string) (*model.PayoutResult, error)
}

type payoutUC struct {
	users   repository.UserRepository
	payouts repository.PayoutRepository
	tm      repository.TransactionManager
	events  adapter.EventPublisher
	bot     adapter.TelegramBotAdapter
	t       *i18n.Translator
	log     *zerolog.Logger

	methods []model.PaymentMethod
	byID    map[string]model.PaymentMethod
	byText  map[string]model.PaymentMethod
	adminID int64
}

func NewPayoutUseCase(
	users repository.UserRepository,
	payouts repository.PayoutRepository,
	tm repository.TransactionManager,
	events adapter.EventPublisher,
	bot adapter.TelegramBotAdapter,
	translator *i18n.Translator,
	methods []model.PaymentMethod,
	adminID int64,
	logger *zerolog.Logger,
) *payoutUC {
	uc := &payoutUC{
		users:   users,
		payouts: payouts,
		tm:      tm,
		events:  events,
		bot:     bot,
		t:       translator,
		log:     logger,
		methods: methods,
		byID:    make(map[string]model.PaymentMethod, len(methods)),
		byText:  make(map[string]model.PaymentMethod, len(methods)),
		adminID: adminID,
	}
	for _, m := range methods {
		uc.byID[m.ID] = m
		uc.byText[m.ButtonText()] = m
	}
	return uc
}

func (uc *payoutUC) Methods() []model.PaymentMethod {
	out := make([]model.PaymentMethod, len(uc.methods))
	copy(out, uc.methods)
	return out
}

func (uc *payoutUC) Method(id string) (model.PaymentMethod, bool) {
	m, ok := uc.byID[id]
	return m, ok
}

func (uc *payoutUC) MethodByButton(text string) (model.PaymentMethod, bool) {
	m, ok := uc.byText[text]
	return m, ok
}

func (uc *payoutUC) CheckEligibility(u *model.User, methodID string) (model.PaymentMethod, float64, error) {
	m, ok := uc.byID[methodID]
	if !ok {
		return model.PaymentMethod{}, 0, fmt.Errorf("%w: payment method %q", domain.ErrNotFound, methodID)
	}
	if err := CheckMinimum(m, u.WithdrawBalance); err != nil {
		return m, u.WithdrawBalance, err
	}
	return m, u.WithdrawBalance, nil
}

var errPendingPayout = errors.New("pending payout exists")

func (uc *payoutUC) RequestPayout(ctx context.Context, u *model.User, methodID string, amount float64, details string) (*model.PayoutResult, error) {
	defer logging.TraceDuration(uc.log, "PayoutUC.RequestPayout")()

	m, ok := uc.byID[methodID]
	if !ok {
		return &model.PayoutResult{Message: uc.t.T("payout_unknown_method")}, nil
	}
	clean, err := ValidatePaymentDetails(methodID, details)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return &model.PayoutResult{Message: uc.t.T("payout_insufficient")}, nil
	}

	req := &model.PayoutRequest{
		ID:        ulid.Make().String(),
		UserID:    u.ID,
		Amount:    amount,
		MethodID:  m.ID,
		Details:   clean,
		Status:    model.PayoutStatusPending,
		CreatedAt: time.Now(),
	}
	err = uc.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		pending, err := uc.payouts.HasPending(ctx, tx, u.ID)
		if err != nil {
			return err
		}
		if pending {
			return errPendingPayout
		}
		if err := uc.users.DeductWithdrawBalance(ctx, tx, u.ID, amount); err != nil {
			return err
		}
		return uc.payouts.Create(ctx, tx, req)
	})
	switch {
	case errors.Is(err, errPendingPayout):
		metrics.IncDomainAction("payout", "rejected")
		return &model.PayoutResult{Message: uc.t.T("payout_pending_exists")}, nil
	case errors.Is(err, domain.ErrInsufficientFunds):
		metrics.IncDomainAction("payout", "rejected")
		return &model.PayoutResult{Message: uc.t.T("payout_insufficient")}, nil
	case err != nil:
		metrics.IncDomainAction("payout", "error")
		uc.log.Error().Err(err).Str("user_id", u.ID).Msg("Payout request failed")
		return nil, fmt.Errorf("%w: create payout: %v", domain.ErrDomainActionFailed, err)
	}

	metrics.IncDomainAction("payout", "success")
	uc.log.Info().Str("user_id", u.ID).Str("request_id", req.ID).Str("method", m.ID).Float64("amount", amount).Msg("Payout requested")

	if err := uc.events.Publish(ctx, model.OutboundEvent{
		Type:   model.EventWithdrawalRequested,
		UserID: u.ID,
		Amount: model.FormatAmount(amount),
	}); err != nil {
		uc.log.Warn().Err(err).Str("user_id", u.ID).Msg("Failed to publish withdrawal_requested")
	}
	uc.notifyAdmin(ctx, u, m, amount, clean)

	return &model.PayoutResult{Success: true, RequestID: req.ID}, nil
}

func (uc *payoutUC) notifyAdmin(ctx context.Context, u *model.User, m model.PaymentMethod, amount float64, details string) {
	if uc.adminID == 0 {
		return
	}
	text := uc.t.T("payout_admin", u.DisplayName(), u.TelegramID, amount, m.Name, details, time.Now().UTC().Format("2006-01-02 15:04:05 UTC"))
	if err := uc.bot.SendMessage(ctx, adapter.SendMessageParams{ChatID: uc.adminID, Text: text}); err != nil {
		uc.log.Warn().Err(err).Msg("Failed to notify admin about payout")
	}
}
