//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/domain/ports/adapter"
	"lightning-sats-bot/internal/domain/ports/repository"
	"lightning-sats-bot/internal/infra/db/memory"
	"lightning-sats-bot/internal/infra/i18n"
)

// =============================
// Adapters
// =============================

// ---- Mock TelegramBotAdapter ----

type MockTelegramBot struct {
	mu   sync.Mutex
	Sent []adapter.SendMessageParams

	SendMessageFunc    func(ctx context.Context, params adapter.SendMessageParams) error
	AnswerCallbackFunc func(ctx context.Context, callbackID, text string, alert bool) error
	EditMessageFunc    func(ctx context.Context, params adapter.EditMessageParams) error
}

var _ adapter.TelegramBotAdapter = (*MockTelegramBot)(nil)

func (m *MockTelegramBot) SendMessage(ctx context.Context, params adapter.SendMessageParams) error {
	m.mu.Lock()
	m.Sent = append(m.Sent, params)
	m.mu.Unlock()
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, params)
	}
	return nil
}

func (m *MockTelegramBot) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	if m.AnswerCallbackFunc != nil {
		return m.AnswerCallbackFunc(ctx, callbackID, text, alert)
	}
	return nil
}

func (m *MockTelegramBot) EditMessage(ctx context.Context, params adapter.EditMessageParams) error {
	if m.EditMessageFunc != nil {
		return m.EditMessageFunc(ctx, params)
	}
	return nil
}

// SentTo returns messages addressed to chatID.
func (m *MockTelegramBot) SentTo(chatID int64) []adapter.SendMessageParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []adapter.SendMessageParams
	for _, p := range m.Sent {
		if p.ChatID == chatID {
			out = append(out, p)
		}
	}
	return out
}

// ---- Mock EventPublisher ----

type MockPublisher struct {
	mu     sync.Mutex
	Events []model.OutboundEvent

	PublishFunc func(ctx context.Context, ev model.OutboundEvent) error
}

var _ adapter.EventPublisher = (*MockPublisher)(nil)

func (m *MockPublisher) Publish(ctx context.Context, ev model.OutboundEvent) error {
	m.mu.Lock()
	m.Events = append(m.Events, ev)
	m.mu.Unlock()
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, ev)
	}
	return nil
}

func (m *MockPublisher) Types() []model.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.EventType, len(m.Events))
	for i, e := range m.Events {
		out[i] = e.Type
	}
	return out
}

// ---- Mock DelayScheduler ----

// MockScheduler keeps tasks until the test fires them.
type MockScheduler struct {
	mu     sync.Mutex
	Tasks  map[string]func(ctx context.Context)
	Delays map[string]time.Duration
}

var _ adapter.DelayScheduler = (*MockScheduler)(nil)

func NewMockScheduler() *MockScheduler {
	return &MockScheduler{Tasks: map[string]func(ctx context.Context){}, Delays: map[string]time.Duration{}}
}

func (m *MockScheduler) Schedule(key string, delay time.Duration, task func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tasks[key] = task
	m.Delays[key] = delay
}

func (m *MockScheduler) Cancel(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Tasks[key]
	delete(m.Tasks, key)
	return ok
}

func (m *MockScheduler) CancelPrefix(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.Tasks {
		if strings.HasPrefix(k, prefix) {
			delete(m.Tasks, k)
			n++
		}
	}
	return n
}

// Fire runs and removes the task stored under key.
func (m *MockScheduler) Fire(ctx context.Context, key string) bool {
	m.mu.Lock()
	task, ok := m.Tasks[key]
	delete(m.Tasks, key)
	m.mu.Unlock()
	if ok {
		task(ctx)
	}
	return ok
}

// =============================
// Repositories
// =============================

// ---- Mock PayoutRepository ----

// MockPayoutRepo delegates to the in-memory store unless a Func is set.
type MockPayoutRepo struct {
	*memory.Payouts

	HasPendingFunc func(ctx context.Context, tx repository.Tx, userID string) (bool, error)
	CreateFunc     func(ctx context.Context, tx repository.Tx, req *model.PayoutRequest) error
}

func (m *MockPayoutRepo) HasPending(ctx context.Context, tx repository.Tx, userID string) (bool, error) {
	if m.HasPendingFunc != nil {
		return m.HasPendingFunc(ctx, tx, userID)
	}
	return m.Payouts.HasPending(ctx, tx, userID)
}

func (m *MockPayoutRepo) Create(ctx context.Context, tx repository.Tx, req *model.PayoutRequest) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, req)
	}
	return m.Payouts.Create(ctx, tx, req)
}

// ---- Mock PromotionRepository ----

type MockPromotionRepo struct {
	*memory.Promotions

	CreateFunc func(ctx context.Context, tx repository.Tx, p *model.Promotion) error
}

func (m *MockPromotionRepo) Create(ctx context.Context, tx repository.Tx, p *model.Promotion) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, p)
	}
	return m.Promotions.Create(ctx, tx, p)
}

// =============================
// Fixtures
// =============================

type fixture struct {
	db        *memory.DB
	users     *memory.Users
	referrals *memory.Referrals
	payouts   *MockPayoutRepo
	promos    *MockPromotionRepo
	stats     *memory.Stats
	tm        *memory.TxManager
	bot       *MockTelegramBot
	events    *MockPublisher
	sched     *MockScheduler
}

func newFixture() *fixture {
	db := memory.New()
	return &fixture{
		db:        db,
		users:     memory.NewUsers(db),
		referrals: memory.NewReferrals(db),
		payouts:   &MockPayoutRepo{Payouts: memory.NewPayouts(db)},
		promos:    &MockPromotionRepo{Promotions: memory.NewPromotions(db)},
		stats:     memory.NewStats(db),
		tm:        memory.NewTxManager(db),
		bot:       &MockTelegramBot{},
		events:    &MockPublisher{},
		sched:     NewMockScheduler(),
	}
}

// seedUser stores a user with the given balances and returns it.
func (f *fixture) seedUser(t *testing.T, tgID int64, name string, withdraw, main float64) *model.User {
	t.Helper()
	u, err := model.NewUser("", model.TelegramProfile{TelegramID: tgID, FirstName: name})
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	u.WithdrawBalance = withdraw
	u.MainBalance = main
	f.users.Put(u)
	return u
}

func (f *fixture) reload(t *testing.T, id string) *model.User {
	t.Helper()
	u, err := f.users.FindByID(context.Background(), repository.NoTX, id)
	if err != nil {
		t.Fatalf("reload user %s: %v", id, err)
	}
	return u
}

func testMethods() []model.PaymentMethod {
	return []model.PaymentMethod{
		{ID: model.MethodTelegramStars, Name: "Telegram Stars", Emoji: "⭐", MinWithdrawal: 1.00},
		{ID: model.MethodTetherPolygon, Name: "Tether (Polygon)", Emoji: "🔶", MinWithdrawal: 0.50},
		{ID: model.MethodTonCoin, Name: "TON Coin", Emoji: "💎", MinWithdrawal: 0.35},
		{ID: model.MethodLitecoin, Name: "Litecoin", Emoji: "🪙", MinWithdrawal: 0.05},
	}
}

func testPromotionParams() []model.PromotionParams {
	return []model.PromotionParams{
		{Type: model.PromotionSubscribe, AdCost: 0.01, RewardAmount: 0.00025, TotalSlots: 1000},
		{Type: model.PromotionBot, AdCost: 0.01, RewardAmount: 0.00035, TotalSlots: 1000},
	}
}

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func newTestTranslator(t *testing.T) *i18n.Translator {
	t.Helper()
	tr, err := i18n.Default()
	if err != nil {
		t.Fatalf("load translator: %v", err)
	}
	return tr
}
