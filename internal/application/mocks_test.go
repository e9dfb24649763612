//go:build !integration

package application_test

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"lightning-sats-bot/internal/application"
	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/domain/ports/adapter"
	"lightning-sats-bot/internal/domain/ports/repository"
	"lightning-sats-bot/internal/infra/db/memory"
	"lightning-sats-bot/internal/infra/i18n"
	"lightning-sats-bot/internal/infra/metrics"
	"lightning-sats-bot/internal/infra/session"
	"lightning-sats-bot/internal/usecase"
)

const (
	adminID     = int64(999)
	channelID   = int64(-100123)
	botUsername = "LightningSatsbot"
)

// ---- Mock TelegramBotAdapter ----

type answered struct {
	ID, Text string
	Alert    bool
}

type MockTelegramBot struct {
	mu      sync.Mutex
	Sent    []adapter.SendMessageParams
	Edits   []adapter.EditMessageParams
	Answers []answered

	SendMessageFunc func(ctx context.Context, params adapter.SendMessageParams) error
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
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Answers = append(m.Answers, answered{ID: callbackID, Text: text, Alert: alert})
	return nil
}

func (m *MockTelegramBot) EditMessage(ctx context.Context, params adapter.EditMessageParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Edits = append(m.Edits, params)
	return nil
}

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

func (m *MockTelegramBot) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent, m.Edits, m.Answers = nil, nil, nil
}

// ---- Mock EventPublisher ----

type MockPublisher struct {
	mu     sync.Mutex
	Events []model.OutboundEvent
}

func (m *MockPublisher) Publish(ctx context.Context, ev model.OutboundEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, ev)
	return nil
}

// ---- Mock DelayScheduler ----

type MockScheduler struct {
	mu    sync.Mutex
	Tasks map[string]func(ctx context.Context)
}

func (m *MockScheduler) Schedule(key string, delay time.Duration, task func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tasks[key] = task
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

func (m *MockScheduler) FireAll(ctx context.Context) {
	m.mu.Lock()
	tasks := m.Tasks
	m.Tasks = map[string]func(ctx context.Context){}
	m.mu.Unlock()
	for _, task := range tasks {
		task(ctx)
	}
}

// ---- Repository overrides ----

type MockPayoutRepo struct {
	*memory.Payouts

	CreateFunc func(ctx context.Context, tx repository.Tx, req *model.PayoutRequest) error
}

func (m *MockPayoutRepo) Create(ctx context.Context, tx repository.Tx, req *model.PayoutRequest) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, req)
	}
	return m.Payouts.Create(ctx, tx, req)
}

type MockSessionStore struct {
	*session.MemoryStore

	GetFunc func(ctx context.Context, chatID int64) (*model.ConversationSession, error)
}

func (m *MockSessionStore) Get(ctx context.Context, chatID int64) (*model.ConversationSession, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, chatID)
	}
	return m.MemoryStore.Get(ctx, chatID)
}

// =============================
// Harness
// =============================

type harness struct {
	users     *memory.Users
	referrals *memory.Referrals
	payouts   *MockPayoutRepo
	promos    *memory.Promotions
	sessions  *MockSessionStore
	bot       *MockTelegramBot
	events    *MockPublisher
	sched     *MockScheduler
	engine    *application.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := memory.New()
	h := &harness{
		users:     memory.NewUsers(db),
		referrals: memory.NewReferrals(db),
		payouts:   &MockPayoutRepo{Payouts: memory.NewPayouts(db)},
		promos:    memory.NewPromotions(db),
		sessions:  &MockSessionStore{MemoryStore: session.NewMemoryStore(0)},
		bot:       &MockTelegramBot{},
		events:    &MockPublisher{},
		sched:     &MockScheduler{Tasks: map[string]func(ctx context.Context){}},
	}
	tm := memory.NewTxManager(db)
	tr, err := i18n.Default()
	if err != nil {
		t.Fatalf("load translator: %v", err)
	}
	logger := newTestLogger()

	methods := []model.PaymentMethod{
		{ID: model.MethodTelegramStars, Name: "Telegram Stars", Emoji: "⭐", MinWithdrawal: 1.00},
		{ID: model.MethodTetherPolygon, Name: "Tether (Polygon)", Emoji: "🔶", MinWithdrawal: 0.50},
		{ID: model.MethodTonCoin, Name: "TON Coin", Emoji: "💎", MinWithdrawal: 0.35},
		{ID: model.MethodLitecoin, Name: "Litecoin", Emoji: "🪙", MinWithdrawal: 0.05},
	}
	params := []model.PromotionParams{
		{Type: model.PromotionSubscribe, AdCost: 0.01, RewardAmount: 0.00025, TotalSlots: 1000},
		{Type: model.PromotionBot, AdCost: 0.01, RewardAmount: 0.00035, TotalSlots: 1000},
	}

	uc := application.UseCases{
		Users:   usecase.NewUserUseCase(h.users, h.referrals, h.bot, tr, logger),
		Payouts: usecase.NewPayoutUseCase(h.users, h.payouts, tm, h.events, h.bot, tr, methods, adminID, logger),
		Promotions: usecase.NewPromotionUseCase(h.users, h.promos, tm, h.bot, tr, params,
			usecase.ChannelSettings{ChannelID: channelID, BotUsername: botUsername}, logger),
		Claims:     usecase.NewClaimUseCase(h.users, h.promos, tm, h.sched, h.events, 3*time.Second, logger),
		Broadcasts: usecase.NewBroadcastUseCase(h.users, h.bot, tr, 0, adminID, logger),
		Stats:      usecase.NewStatsUseCase(memory.NewStats(db), h.bot, tr, adminID, logger),
	}
	h.engine = application.NewEngine(uc, h.sessions, session.NewKeyedMutex(), h.bot, tr, application.Settings{
		AdminID:     adminID,
		BotUsername: botUsername,
		WebAppURL:   "https://app.example.com",
		ChannelLink: "https://t.me/lightning_news",
		SupportLink: "https://t.me/lightning_support",
	}, logger)
	return h
}

func (h *harness) send(t *testing.T, tgID int64, text string) {
	t.Helper()
	ev := model.InboundEvent{
		ChatID: tgID,
		From:   model.TelegramProfile{TelegramID: tgID, FirstName: "user"},
		Text:   text,
	}
	if err := h.engine.Handle(context.Background(), ev); err != nil {
		t.Fatalf("Handle(%q): %v", text, err)
	}
}

func (h *harness) click(t *testing.T, tgID int64, data string) {
	t.Helper()
	ev := model.InboundEvent{
		ChatID:   tgID,
		From:     model.TelegramProfile{TelegramID: tgID, FirstName: "user"},
		Callback: &model.CallbackQuery{ID: "cb-" + data, Data: data, MessageID: 77},
	}
	if err := h.engine.Handle(context.Background(), ev); err != nil {
		t.Fatalf("Handle(callback %q): %v", data, err)
	}
}

// lastText is the most recent message sent to chatID.
func (h *harness) lastText(t *testing.T, chatID int64) string {
	t.Helper()
	msgs := h.bot.SentTo(chatID)
	if len(msgs) == 0 {
		t.Fatalf("no message sent to %d", chatID)
	}
	return msgs[len(msgs)-1].Text
}

func (h *harness) session(t *testing.T, chatID int64) *model.ConversationSession {
	t.Helper()
	s, err := h.sessions.Get(context.Background(), chatID)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	return s
}

// seed registers tgID through the engine and sets balances directly.
func (h *harness) seed(t *testing.T, tgID int64, withdraw, main float64) *model.User {
	t.Helper()
	h.send(t, tgID, "/start")
	u, err := h.users.FindByTelegramID(context.Background(), repository.NoTX, tgID)
	if err != nil {
		t.Fatalf("seed %d: %v", tgID, err)
	}
	u.WithdrawBalance, u.MainBalance = withdraw, main
	h.users.Put(u)
	h.bot.Reset()
	return u
}

func (h *harness) user(t *testing.T, id string) *model.User {
	t.Helper()
	u, err := h.users.FindByID(context.Background(), repository.NoTX, id)
	if err != nil {
		t.Fatalf("user %s: %v", id, err)
	}
	return u
}

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// counterValue reads a counter from the default registry; absent series read as zero.
func counterValue(t *testing.T, name, label, value string) float64 {
	t.Helper()
	metrics.MustRegister()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
