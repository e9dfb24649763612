package postgres

import (
	"context"
	"fmt"

	"lightning-sats-bot/internal/domain"
	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.UserRepository = (*UserRepo)(nil)

const userColumns = `id, telegram_id, username, first_name, last_name, referral_code,
       withdraw_balance, main_balance, total_earned, created_at, last_active_at`

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func scanUser(row pgx.Row, extra ...interface{}) (*model.User, error) {
	var u model.User
	dest := []interface{}{
		&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName, &u.ReferralCode,
		&u.WithdrawBalance, &u.MainBalance, &u.TotalEarned, &u.CreatedAt, &u.LastActiveAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if noRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// UpsertByTelegramID inserts u or refreshes the stored profile. Empty profile fields never
// overwrite stored ones. A referral code collision on insert is retried with a fresh code.
func (r *UserRepo) UpsertByTelegramID(ctx context.Context, qx repository.Tx, u *model.User) (*model.User, bool, error) {
	exec, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, false, err
	}
	const q = `
INSERT INTO users (id, telegram_id, username, first_name, last_name, referral_code, created_at, last_active_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (telegram_id) DO UPDATE SET
  username       = COALESCE(NULLIF(EXCLUDED.username, ''), users.username),
  first_name     = COALESCE(NULLIF(EXCLUDED.first_name, ''), users.first_name),
  last_name      = COALESCE(NULLIF(EXCLUDED.last_name, ''), users.last_name),
  last_active_at = now()
RETURNING ` + userColumns + `, (xmax = 0) AS inserted;`

	code := u.ReferralCode
	if code == "" {
		code = model.NewReferralCode()
	}
	for attempt := 0; ; attempt++ {
		var inserted bool
		out, err := scanUser(exec.QueryRow(ctx, q,
			u.ID, u.TelegramID, u.Username, u.FirstName, u.LastName, code, u.CreatedAt, u.LastActiveAt,
		), &inserted)
		if err == nil {
			return out, inserted, nil
		}
		if violates(err, "users_referral_code_key") && attempt < 3 {
			code = model.NewReferralCode()
			continue
		}
		return nil, false, fmt.Errorf("upsert user: %w", err)
	}
}

func (r *UserRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.User, error) {
	return r.findOne(ctx, qx, `SELECT `+userColumns+` FROM users WHERE id=$1;`, id)
}

func (r *UserRepo) FindByTelegramID(ctx context.Context, qx repository.Tx, tgID int64) (*model.User, error) {
	return r.findOne(ctx, qx, `SELECT `+userColumns+` FROM users WHERE telegram_id=$1;`, tgID)
}

func (r *UserRepo) FindByReferralCode(ctx context.Context, qx repository.Tx, code string) (*model.User, error) {
	return r.findOne(ctx, qx, `SELECT `+userColumns+` FROM users WHERE referral_code=$1;`, code)
}

func (r *UserRepo) findOne(ctx context.Context, qx repository.Tx, q string, arg interface{}) (*model.User, error) {
	exec, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	return scanUser(exec.QueryRow(ctx, q, arg))
}

func (r *UserRepo) SetReferralCode(ctx context.Context, qx repository.Tx, userID, code string) error {
	exec, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	tag, err := exec.Exec(ctx, `UPDATE users SET referral_code=$2 WHERE id=$1;`, userID, code)
	if violates(err, "") {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("set referral code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserRepo) DeductMainBalance(ctx context.Context, qx repository.Tx, userID string, amount float64) error {
	return r.deduct(ctx, qx, "main_balance", userID, amount)
}

func (r *UserRepo) DeductWithdrawBalance(ctx context.Context, qx repository.Tx, userID string, amount float64) error {
	return r.deduct(ctx, qx, "withdraw_balance", userID, amount)
}

// deduct decrements column only when the balance covers amount.
func (r *UserRepo) deduct(ctx context.Context, qx repository.Tx, column, userID string, amount float64) error {
	exec, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`UPDATE users SET %[1]s = %[1]s - $2 WHERE id=$1 AND %[1]s >= $2;`, column)
	tag, err := exec.Exec(ctx, q, userID, amount)
	if err != nil {
		return fmt.Errorf("deduct %s: %w", column, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := exec.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id=$1);`, userID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrInsufficientFunds
}

func (r *UserRepo) CreditReward(ctx context.Context, qx repository.Tx, userID string, amount float64) error {
	exec, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	tag, err := exec.Exec(ctx, `
UPDATE users SET withdraw_balance = withdraw_balance + $2, total_earned = total_earned + $2
 WHERE id=$1;`, userID, amount)
	if err != nil {
		return fmt.Errorf("credit reward: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserRepo) List(ctx context.Context, qx repository.Tx, offset, limit int) ([]*model.User, error) {
	exec, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	var lim interface{}
	if limit > 0 {
		lim = limit
	}
	rows, err := exec.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id OFFSET $1 LIMIT $2;`, offset, lim)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
