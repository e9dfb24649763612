package postgres

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/domain/ports/repository"
	red "lightning-sats-bot/internal/infra/redis"

	"github.com/rs/zerolog"
)

var _ repository.UserRepository = (*userRepoCacheDecorator)(nil)

// userRepoCacheDecorator caches users by id and the immutable telegram id -> id mapping.
// Reads inside a transaction bypass the cache and writes invalidate the user entry. A reader racing
// an uncommitted write can re-cache the old row, so the ttl bounds staleness.
type userRepoCacheDecorator struct {
	inner repository.UserRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewUserRepoCacheDecorator(inner repository.UserRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.UserRepository {
	l := logger.With().Str("component", "UserCache").Logger()
	return &userRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: &l}
}

func userIDKey(id string) string  { return "user:id:" + id }
func userTgKey(tgID int64) string { return "user:tg:" + strconv.FormatInt(tgID, 10) }

func (d *userRepoCacheDecorator) invalidate(ctx context.Context, id string) {
	if err := d.cache.Del(ctx, userIDKey(id)); err != nil {
		d.log.Warn().Err(err).Str("user_id", id).Msg("cache invalidation failed")
	}
}

func (d *userRepoCacheDecorator) store(ctx context.Context, u *model.User) {
	b, err := json.Marshal(u)
	if err != nil {
		return
	}
	_ = d.cache.Set(ctx, userIDKey(u.ID), b, d.ttl)
	_ = d.cache.Set(ctx, userTgKey(u.TelegramID), u.ID, d.ttl)
}

func (d *userRepoCacheDecorator) UpsertByTelegramID(ctx context.Context, qx repository.Tx, u *model.User) (*model.User, bool, error) {
	out, created, err := d.inner.UpsertByTelegramID(ctx, qx, u)
	if err == nil {
		d.invalidate(ctx, out.ID)
	}
	return out, created, err
}

func (d *userRepoCacheDecorator) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.User, error) {
	if qx != nil {
		return d.inner.FindByID(ctx, qx, id)
	}
	if s, err := d.cache.Get(ctx, userIDKey(id)); err == nil {
		var u model.User
		if json.Unmarshal([]byte(s), &u) == nil {
			return &u, nil
		}
	}
	u, err := d.inner.FindByID(ctx, qx, id)
	if err != nil {
		return nil, err
	}
	d.store(ctx, u)
	return u, nil
}

func (d *userRepoCacheDecorator) FindByTelegramID(ctx context.Context, qx repository.Tx, tgID int64) (*model.User, error) {
	if qx != nil {
		return d.inner.FindByTelegramID(ctx, qx, tgID)
	}
	if id, err := d.cache.Get(ctx, userTgKey(tgID)); err == nil && id != "" {
		return d.FindByID(ctx, qx, id)
	}
	u, err := d.inner.FindByTelegramID(ctx, qx, tgID)
	if err != nil {
		return nil, err
	}
	d.store(ctx, u)
	return u, nil
}

func (d *userRepoCacheDecorator) FindByReferralCode(ctx context.Context, qx repository.Tx, code string) (*model.User, error) {
	return d.inner.FindByReferralCode(ctx, qx, code)
}

func (d *userRepoCacheDecorator) SetReferralCode(ctx context.Context, qx repository.Tx, userID, code string) error {
	defer d.invalidate(ctx, userID)
	return d.inner.SetReferralCode(ctx, qx, userID, code)
}

func (d *userRepoCacheDecorator) DeductMainBalance(ctx context.Context, qx repository.Tx, userID string, amount float64) error {
	defer d.invalidate(ctx, userID)
	return d.inner.DeductMainBalance(ctx, qx, userID, amount)
}

func (d *userRepoCacheDecorator) DeductWithdrawBalance(ctx context.Context, qx repository.Tx, userID string, amount float64) error {
	defer d.invalidate(ctx, userID)
	return d.inner.DeductWithdrawBalance(ctx, qx, userID, amount)
}

func (d *userRepoCacheDecorator) CreditReward(ctx context.Context, qx repository.Tx, userID string, amount float64) error {
	defer d.invalidate(ctx, userID)
	return d.inner.CreditReward(ctx, qx, userID, amount)
}

func (d *userRepoCacheDecorator) List(ctx context.Context, qx repository.Tx, offset, limit int) ([]*model.User, error) {
	return d.inner.List(ctx, qx, offset, limit)
}
