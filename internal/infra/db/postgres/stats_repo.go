package postgres

import (
	"context"
	"fmt"

	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.StatsRepository = (*StatsRepo)(nil)

type StatsRepo struct {
	pool *pgxpool.Pool
}

func NewStatsRepo(pool *pgxpool.Pool) *StatsRepo {
	return &StatsRepo{pool: pool}
}

// AppStats counts "today" from UTC midnight and rejected payouts are excluded from the payout total.
func (r *StatsRepo) AppStats(ctx context.Context, qx repository.Tx) (*model.AppStats, error) {
	exec, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT
  (SELECT COUNT(*) FROM users),
  (SELECT COUNT(*) FROM users WHERE last_active_at >= date_trunc('day', now() AT TIME ZONE 'UTC') AT TIME ZONE 'UTC'),
  (SELECT COUNT(*) FROM referrals),
  (SELECT COUNT(*) FROM users WHERE created_at > now() - interval '24 hours'),
  (SELECT COALESCE(SUM(total_earned), 0)::float8 FROM users),
  (SELECT COALESCE(SUM(reward_amount), 0)::float8 FROM referrals),
  (SELECT COALESCE(SUM(amount), 0)::float8 FROM payout_requests WHERE status <> 'rejected');`

	var s model.AppStats
	if err := exec.QueryRow(ctx, q).Scan(
		&s.TotalUsers, &s.ActiveUsersToday, &s.TotalInvites, &s.NewUsersLast24h,
		&s.TotalEarnings, &s.TotalReferralEarnings, &s.TotalPayouts,
	); err != nil {
		return nil, fmt.Errorf("app stats: %w", err)
	}
	return &s, nil
}
