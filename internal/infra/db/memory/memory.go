// Package memory is a process-local storage backend for development and tests.
// It mirrors the Postgres repositories' semantics, including rollback on WithTx errors.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"lightning-sats-bot/internal/domain"
	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
)

type state struct {
	users       map[string]*model.User
	byTgID      map[int64]string
	byCode      map[string]string
	referrals   map[string]*model.Referral // by referee
	payouts     []*model.PayoutRequest
	promos      map[string]*model.Promotion
	completions map[string]map[string]float64 // promotion -> user -> reward
}

func newState() state {
	return state{
		users:       make(map[string]*model.User),
		byTgID:      make(map[int64]string),
		byCode:      make(map[string]string),
		referrals:   make(map[string]*model.Referral),
		promos:      make(map[string]*model.Promotion),
		completions: make(map[string]map[string]float64),
	}
}

func (s state) clone() state {
	c := newState()
	for k, v := range s.users {
		u := *v
		c.users[k] = &u
	}
	for k, v := range s.byTgID {
		c.byTgID[k] = v
	}
	for k, v := range s.byCode {
		c.byCode[k] = v
	}
	for k, v := range s.referrals {
		r := *v
		c.referrals[k] = &r
	}
	c.payouts = make([]*model.PayoutRequest, len(s.payouts))
	for i, v := range s.payouts {
		p := *v
		c.payouts[i] = &p
	}
	for k, v := range s.promos {
		p := *v
		c.promos[k] = &p
	}
	for k, v := range s.completions {
		m := make(map[string]float64, len(v))
		for u, r := range v {
			m[u] = r
		}
		c.completions[k] = m
	}
	return c
}

// DB holds all tables. Repositories created from the same DB share data.
type DB struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	st   state
}

func New() *DB {
	return &DB{st: newState()}
}

var _ repository.TransactionManager = (*TxManager)(nil)

// TxManager serializes transactions and restores the previous state when fn fails.
type TxManager struct{ db *DB }

func NewTxManager(db *DB) *TxManager { return &TxManager{db: db} }

func (m *TxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.db.txMu.Lock()
	defer m.db.txMu.Unlock()

	m.db.mu.RLock()
	snap := m.db.st.clone()
	m.db.mu.RUnlock()

	if err := fn(ctx, m.db); err != nil {
		m.db.mu.Lock()
		m.db.st = snap
		m.db.mu.Unlock()
		return err
	}
	return nil
}

// ---- users ----

var _ repository.UserRepository = (*Users)(nil)

type Users struct{ db *DB }

func NewUsers(db *DB) *Users { return &Users{db: db} }

// Put stores u as-is, replacing any user with the same ID. Used for seeding.
func (r *Users) Put(u *model.User) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *u
	r.db.st.users[u.ID] = &cp
	r.db.st.byTgID[u.TelegramID] = u.ID
	if u.ReferralCode != "" {
		r.db.st.byCode[u.ReferralCode] = u.ID
	}
}

func (r *Users) UpsertByTelegramID(ctx context.Context, _ repository.Tx, u *model.User) (*model.User, bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if id, ok := r.db.st.byTgID[u.TelegramID]; ok {
		cur := r.db.st.users[id]
		cur.Apply(model.TelegramProfile{TelegramID: u.TelegramID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName})
		cur.Touch()
		cp := *cur
		return &cp, false, nil
	}

	cp := *u
	for cp.ReferralCode == "" || r.db.st.byCode[cp.ReferralCode] != "" {
		cp.ReferralCode = model.NewReferralCode()
	}
	r.db.st.users[cp.ID] = &cp
	r.db.st.byTgID[cp.TelegramID] = cp.ID
	r.db.st.byCode[cp.ReferralCode] = cp.ID
	out := cp
	return &out, true, nil
}

func (r *Users) find(id string) (*model.User, error) {
	u, ok := r.db.st.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

func (r *Users) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	u, err := r.find(id)
	if err != nil {
		return nil, err
	}
	cp := *u
	return &cp, nil
}

func (r *Users) FindByTelegramID(ctx context.Context, qx repository.Tx, tgID int64) (*model.User, error) {
	r.db.mu.RLock()
	id, ok := r.db.st.byTgID[tgID]
	r.db.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.FindByID(ctx, qx, id)
}

func (r *Users) FindByReferralCode(ctx context.Context, qx repository.Tx, code string) (*model.User, error) {
	r.db.mu.RLock()
	id, ok := r.db.st.byCode[code]
	r.db.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.FindByID(ctx, qx, id)
}

func (r *Users) SetReferralCode(ctx context.Context, _ repository.Tx, userID, code string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, err := r.find(userID)
	if err != nil {
		return err
	}
	if owner, ok := r.db.st.byCode[code]; ok && owner != userID {
		return domain.ErrAlreadyExists
	}
	delete(r.db.st.byCode, u.ReferralCode)
	u.ReferralCode = code
	r.db.st.byCode[code] = userID
	return nil
}

func (r *Users) DeductMainBalance(ctx context.Context, _ repository.Tx, userID string, amount float64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, err := r.find(userID)
	if err != nil {
		return err
	}
	if u.MainBalance < amount {
		return domain.ErrInsufficientFunds
	}
	u.MainBalance -= amount
	return nil
}

func (r *Users) DeductWithdrawBalance(ctx context.Context, _ repository.Tx, userID string, amount float64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, err := r.find(userID)
	if err != nil {
		return err
	}
	if u.WithdrawBalance < amount {
		return domain.ErrInsufficientFunds
	}
	u.WithdrawBalance -= amount
	return nil
}

func (r *Users) CreditReward(ctx context.Context, _ repository.Tx, userID string, amount float64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, err := r.find(userID)
	if err != nil {
		return err
	}
	u.WithdrawBalance += amount
	u.TotalEarned += amount
	return nil
}

func (r *Users) List(ctx context.Context, _ repository.Tx, offset, limit int) ([]*model.User, error) {
	r.db.mu.RLock()
	out := make([]*model.User, 0, len(r.db.st.users))
	for _, u := range r.db.st.users {
		cp := *u
		out = append(out, &cp)
	}
	r.db.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// ---- referrals ----

var _ repository.ReferralRepository = (*Referrals)(nil)

type Referrals struct{ db *DB }

func NewReferrals(db *DB) *Referrals { return &Referrals{db: db} }

func (r *Referrals) Create(ctx context.Context, _ repository.Tx, referrerID, refereeID string) (*model.Referral, error) {
	if referrerID == "" || refereeID == "" || referrerID == refereeID {
		return nil, domain.ErrInvalidArgument
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.st.referrals[refereeID]; ok {
		return nil, domain.ErrAlreadyExists
	}
	ref := &model.Referral{
		ID:         ulid.Make().String(),
		ReferrerID: referrerID,
		RefereeID:  refereeID,
		Status:     "pending",
		CreatedAt:  time.Now(),
	}
	r.db.st.referrals[refereeID] = ref
	cp := *ref
	return &cp, nil
}

func (r *Referrals) CountByReferrer(ctx context.Context, _ repository.Tx, referrerID string) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	n := 0
	for _, ref := range r.db.st.referrals {
		if ref.ReferrerID == referrerID {
			n++
		}
	}
	return n, nil
}

func (r *Referrals) EarningsByReferrer(ctx context.Context, _ repository.Tx, referrerID string) (float64, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var sum float64
	for _, ref := range r.db.st.referrals {
		if ref.ReferrerID == referrerID {
			sum += ref.RewardAmount
		}
	}
	return sum, nil
}

// ---- payouts ----

var _ repository.PayoutRepository = (*Payouts)(nil)

type Payouts struct{ db *DB }

func NewPayouts(db *DB) *Payouts { return &Payouts{db: db} }

func (r *Payouts) HasPending(ctx context.Context, _ repository.Tx, userID string) (bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, p := range r.db.st.payouts {
		if p.UserID == userID && p.Status == model.PayoutStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (r *Payouts) Create(ctx context.Context, _ repository.Tx, req *model.PayoutRequest) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *req
	r.db.st.payouts = append(r.db.st.payouts, &cp)
	return nil
}

// All returns a copy of every stored request in insertion order.
func (r *Payouts) All() []model.PayoutRequest {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := make([]model.PayoutRequest, len(r.db.st.payouts))
	for i, p := range r.db.st.payouts {
		out[i] = *p
	}
	return out
}

// ---- promotions ----

var _ repository.PromotionRepository = (*Promotions)(nil)

type Promotions struct{ db *DB }

func NewPromotions(db *DB) *Promotions { return &Promotions{db: db} }

func (r *Promotions) Create(ctx context.Context, _ repository.Tx, p *model.Promotion) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.st.promos[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *p
	r.db.st.promos[p.ID] = &cp
	return nil
}

// Len reports how many promotions exist.
func (r *Promotions) Len() int {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return len(r.db.st.promos)
}

func (r *Promotions) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.Promotion, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	p, ok := r.db.st.promos[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *Promotions) HasCompleted(ctx context.Context, _ repository.Tx, promotionID, userID string) (bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	_, ok := r.db.st.completions[promotionID][userID]
	return ok, nil
}

func (r *Promotions) RecordCompletion(ctx context.Context, _ repository.Tx, promotionID, userID string, reward float64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.st.promos[promotionID]
	if !ok {
		return domain.ErrNotFound
	}
	if _, done := r.db.st.completions[promotionID][userID]; done {
		return domain.ErrAlreadyClaimed
	}
	if !p.Claimable() {
		return domain.ErrPromotionInactive
	}
	if r.db.st.completions[promotionID] == nil {
		r.db.st.completions[promotionID] = make(map[string]float64)
	}
	r.db.st.completions[promotionID][userID] = reward
	p.CompletedCount++
	if p.CompletedCount >= p.TotalSlots {
		p.IsActive = false
	}
	return nil
}

// ---- stats ----

var _ repository.StatsRepository = (*Stats)(nil)

type Stats struct{ db *DB }

func NewStats(db *DB) *Stats { return &Stats{db: db} }

func (r *Stats) AppStats(ctx context.Context, _ repository.Tx) (*model.AppStats, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayAgo := now.Add(-24 * time.Hour)

	s := &model.AppStats{TotalUsers: len(r.db.st.users), TotalInvites: len(r.db.st.referrals)}
	for _, u := range r.db.st.users {
		if !u.LastActiveAt.Before(today) {
			s.ActiveUsersToday++
		}
		if u.CreatedAt.After(dayAgo) {
			s.NewUsersLast24h++
		}
		s.TotalEarnings += u.TotalEarned
	}
	for _, ref := range r.db.st.referrals {
		s.TotalReferralEarnings += ref.RewardAmount
	}
	for _, p := range r.db.st.payouts {
		if p.Status != model.PayoutStatusRejected {
			s.TotalPayouts += p.Amount
		}
	}
	return s, nil
}
