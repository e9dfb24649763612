package repository

import (
	"context"

	"lightning-sats-bot/internal/domain/model"
)

type UserRepository interface {
	// UpsertByTelegramID creates the user when missing and reports whether it was created.
	UpsertByTelegramID(ctx context.Context, qx Tx, u *model.User) (*model.User, bool, error)
	FindByID(ctx context.Context, qx Tx, id string) (*model.User, error)
	FindByTelegramID(ctx context.Context, qx Tx, tgID int64) (*model.User, error)
	FindByReferralCode(ctx context.Context, qx Tx, code string) (*model.User, error)
	SetReferralCode(ctx context.Context, qx Tx, userID, code string) error
	// DeductMainBalance fails with domain.ErrInsufficientFunds and leaves the balance unchanged.
	DeductMainBalance(ctx context.Context, qx Tx, userID string, amount float64) error
	DeductWithdrawBalance(ctx context.Context, qx Tx, userID string, amount float64) error
	CreditReward(ctx context.Context, qx Tx, userID string, amount float64) error
	// List returns users ordered by creation; limit <= 0 means all.
	List(ctx context.Context, qx Tx, offset, limit int) ([]*model.User, error)
}

type ReferralRepository interface {
	// Create fails with domain.ErrAlreadyExists when the referee already has a referrer.
	Create(ctx context.Context, qx Tx, referrerID, refereeID string) (*model.Referral, error)
	CountByReferrer(ctx context.Context, qx Tx, referrerID string) (int, error)
	EarningsByReferrer(ctx context.Context, qx Tx, referrerID string) (float64, error)
}

type PayoutRepository interface {
	HasPending(ctx context.Context, qx Tx, userID string) (bool, error)
	Create(ctx context.Context, qx Tx, req *model.PayoutRequest) error
}

type PromotionRepository interface {
	Create(ctx context.Context, qx Tx, p *model.Promotion) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.Promotion, error)
	HasCompleted(ctx context.Context, qx Tx, promotionID, userID string) (bool, error)
	// RecordCompletion takes one slot and records the user; it fails with
	// domain.ErrAlreadyClaimed or domain.ErrPromotionInactive.
	RecordCompletion(ctx context.Context, qx Tx, promotionID, userID string, reward float64) error
}

type StatsRepository interface {
	AppStats(ctx context.Context, qx Tx) (*model.AppStats, error)
}
