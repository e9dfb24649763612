package postgres

import (
	"context"
	"fmt"

	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.PayoutRepository = (*PayoutRepo)(nil)

type PayoutRepo struct {
	pool *pgxpool.Pool
}

func NewPayoutRepo(pool *pgxpool.Pool) *PayoutRepo {
	return &PayoutRepo{pool: pool}
}

func (r *PayoutRepo) HasPending(ctx context.Context, qx repository.Tx, userID string) (bool, error) {
	exec, err := getExecutor(r.pool, qx)
	if err != nil {
		return false, err
	}
	var ok bool
	err = exec.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payout_requests WHERE user_id=$1 AND status=$2);`,
		userID, model.PayoutStatusPending,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check pending payout: %w", err)
	}
	return ok, nil
}

func (r *PayoutRepo) Create(ctx context.Context, qx repository.Tx, req *model.PayoutRequest) error {
	exec, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	_, err = exec.Exec(ctx, `
INSERT INTO payout_requests (id, user_id, amount, method_id, details, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7);`,
		req.ID, req.UserID, req.Amount, req.MethodID, req.Details, req.Status, req.CreatedAt)
	if err != nil {
		return fmt.Errorf("create payout request: %w", err)
	}
	return nil
}
