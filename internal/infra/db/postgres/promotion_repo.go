package postgres

import (
	"context"
	"fmt"

	"lightning-sats-bot/internal/domain"
	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.PromotionRepository = (*PromotionRepo)(nil)

type PromotionRepo struct {
	pool *pgxpool.Pool
}

func NewPromotionRepo(pool *pgxpool.Pool) *PromotionRepo {
	return &PromotionRepo{pool: pool}
}

func (r *PromotionRepo) Create(ctx context.Context, qx repository.Tx, p *model.Promotion) error {
	exec, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	_, err = exec.Exec(ctx, `
INSERT INTO promotions (
  id, creator_id, type, title, description, url,
  reward_amount, ad_cost, total_slots, completed_count, is_active, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);`,
		p.ID, p.CreatorID, string(p.Type), p.Title, p.Description, p.URL,
		p.RewardAmount, p.AdCost, p.TotalSlots, p.CompletedCount, p.IsActive, p.CreatedAt)
	if violates(err, "promotions_pkey") {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create promotion: %w", err)
	}
	return nil
}

func (r *PromotionRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.Promotion, error) {
	exec, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	var (
		p     model.Promotion
		ptype string
	)
	err = exec.QueryRow(ctx, `
SELECT id, creator_id, type, title, description, url,
       reward_amount, ad_cost, total_slots, completed_count, is_active, created_at
  FROM promotions WHERE id=$1;`, id).Scan(
		&p.ID, &p.CreatorID, &ptype, &p.Title, &p.Description, &p.URL,
		&p.RewardAmount, &p.AdCost, &p.TotalSlots, &p.CompletedCount, &p.IsActive, &p.CreatedAt,
	)
	if noRows(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find promotion: %w", err)
	}
	p.Type = model.PromotionType(ptype)
	return &p, nil
}

func (r *PromotionRepo) HasCompleted(ctx context.Context, qx repository.Tx, promotionID, userID string) (bool, error) {
	exec, err := getExecutor(r.pool, qx)
	if err != nil {
		return false, err
	}
	var ok bool
	err = exec.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM task_completions WHERE promotion_id=$1 AND user_id=$2);`,
		promotionID, userID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check completion: %w", err)
	}
	return ok, nil
}

// RecordCompletion takes a slot and inserts the completion in one statement; the promotion
// deactivates when its last slot is taken. A concurrent duplicate hits the primary key and
// rolls the slot back with the statement.
func (r *PromotionRepo) RecordCompletion(ctx context.Context, qx repository.Tx, promotionID, userID string, reward float64) error {
	exec, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	tag, err := exec.Exec(ctx, `
WITH slot AS (
  UPDATE promotions
     SET completed_count = completed_count + 1,
         is_active = completed_count + 1 < total_slots
   WHERE id = $1 AND is_active AND completed_count < total_slots
     AND NOT EXISTS (SELECT 1 FROM task_completions WHERE promotion_id = $1 AND user_id = $2)
  RETURNING id
)
INSERT INTO task_completions (promotion_id, user_id, reward, completed_at)
SELECT id, $2, $3, now() FROM slot;`, promotionID, userID, reward)
	if violates(err, "task_completions_pkey") {
		return domain.ErrAlreadyClaimed
	}
	if err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Nothing inserted: report why.
	p, err := r.FindByID(ctx, qx, promotionID)
	if err != nil {
		return err
	}
	done, err := r.HasCompleted(ctx, qx, promotionID, userID)
	if err != nil {
		return err
	}
	if done {
		return domain.ErrAlreadyClaimed
	}
	if !p.Claimable() {
		return domain.ErrPromotionInactive
	}
	return fmt.Errorf("record completion: %w", domain.ErrDomainActionFailed)
}
