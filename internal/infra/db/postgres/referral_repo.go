package postgres

import (
	"context"
	"fmt"
	"time"

	"lightning-sats-bot/internal/domain"
	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"
)

var _ repository.ReferralRepository = (*ReferralRepo)(nil)

type ReferralRepo struct {
	pool *pgxpool.Pool
}

func NewReferralRepo(pool *pgxpool.Pool) *ReferralRepo {
	return &ReferralRepo{pool: pool}
}

func (r *ReferralRepo) Create(ctx context.Context, qx repository.Tx, referrerID, refereeID string) (*model.Referral, error) {
	if referrerID == "" || refereeID == "" || referrerID == refereeID {
		return nil, domain.ErrInvalidArgument
	}
	exec, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	ref := &model.Referral{
		ID:         ulid.Make().String(),
		ReferrerID: referrerID,
		RefereeID:  refereeID,
		Status:     "pending",
		CreatedAt:  time.Now().UTC(),
	}
	tag, err := exec.Exec(ctx, `
INSERT INTO referrals (id, referrer_id, referee_id, status, reward_amount, created_at)
VALUES ($1,$2,$3,$4,0,$5)
ON CONFLICT (referee_id) DO NOTHING;`,
		ref.ID, ref.ReferrerID, ref.RefereeID, ref.Status, ref.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create referral: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrAlreadyExists
	}
	return ref, nil
}

func (r *ReferralRepo) CountByReferrer(ctx context.Context, qx repository.Tx, referrerID string) (int, error) {
	exec, err := getExecutor(r.pool, qx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := exec.QueryRow(ctx, `SELECT COUNT(*) FROM referrals WHERE referrer_id=$1;`, referrerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count referrals: %w", err)
	}
	return n, nil
}

func (r *ReferralRepo) EarningsByReferrer(ctx context.Context, qx repository.Tx, referrerID string) (float64, error) {
	exec, err := getExecutor(r.pool, qx)
	if err != nil {
		return 0, err
	}
	var sum float64
	if err := exec.QueryRow(ctx,
		`SELECT COALESCE(SUM(reward_amount), 0)::float8 FROM referrals WHERE referrer_id=$1;`, referrerID,
	).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum referral earnings: %w", err)
	}
	return sum, nil
}
