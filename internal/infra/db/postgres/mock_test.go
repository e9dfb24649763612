//go:build !integration

package postgres

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"lightning-sats-bot/internal/domain"
	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/domain/ports/repository"
	red "lightning-sats-bot/internal/infra/redis"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// mockInnerUserRepo mocks the database repository that the cache decorator wraps.
type mockInnerUserRepo struct {
	FindByIDFunc         func(ctx context.Context, tx repository.Tx, id string) (*model.User, error)
	FindByTelegramIDFunc func(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error)
	CreditRewardFunc     func(ctx context.Context, tx repository.Tx, userID string, amount float64) error
	UpsertFunc           func(ctx context.Context, tx repository.Tx, u *model.User) (*model.User, bool, error)
}

func (m *mockInnerUserRepo) UpsertByTelegramID(ctx context.Context, tx repository.Tx, u *model.User) (*model.User, bool, error) {
	return m.UpsertFunc(ctx, tx, u)
}
func (m *mockInnerUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerUserRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	return m.FindByTelegramIDFunc(ctx, tx, tgID)
}
func (m *mockInnerUserRepo) FindByReferralCode(ctx context.Context, tx repository.Tx, code string) (*model.User, error) {
	return nil, domain.ErrNotFound
}
func (m *mockInnerUserRepo) SetReferralCode(ctx context.Context, tx repository.Tx, userID, code string) error {
	return nil
}
func (m *mockInnerUserRepo) DeductMainBalance(ctx context.Context, tx repository.Tx, userID string, amount float64) error {
	return nil
}
func (m *mockInnerUserRepo) DeductWithdrawBalance(ctx context.Context, tx repository.Tx, userID string, amount float64) error {
	return nil
}
func (m *mockInnerUserRepo) CreditReward(ctx context.Context, tx repository.Tx, userID string, amount float64) error {
	return m.CreditRewardFunc(ctx, tx, userID, amount)
}
func (m *mockInnerUserRepo) List(ctx context.Context, tx repository.Tx, offset, limit int) ([]*model.User, error) {
	return nil, nil
}

// memRedis is a map-backed RedisClient.
type memRedis struct {
	mu   sync.Mutex
	data map[string]string
	dels []string
}

var _ red.RedisClient = (*memRedis)(nil)

func newMemRedis() *memRedis { return &memRedis{data: map[string]string{}} }

func (m *memRedis) Ping(ctx context.Context) error { return nil }
func (m *memRedis) Close() error                   { return nil }

func (m *memRedis) Set(ctx context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	default:
		m.data[key] = fmt.Sprint(v)
	}
	return nil
}

func (m *memRedis) SetNX(ctx context.Context, key string, value interface{}, exp time.Duration) (bool, error) {
	m.mu.Lock()
	_, ok := m.data[key]
	m.mu.Unlock()
	if ok {
		return false, nil
	}
	return true, m.Set(ctx, key, value, exp)
}

func (m *memRedis) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memRedis) Incr(ctx context.Context, key string) (int64, error) { return 0, nil }
func (m *memRedis) Expire(ctx context.Context, key string, _ time.Duration) error {
	return nil
}

func (m *memRedis) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
		m.dels = append(m.dels, k)
	}
	return nil
}
