//go:build !integration

package memory

import (
	"context"
	"errors"
	"testing"

	"lightning-sats-bot/internal/domain"
	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
)

func newUser(t *testing.T, tgID int64, name string) *model.User {
	t.Helper()
	u, err := model.NewUser("", model.TelegramProfile{TelegramID: tgID, FirstName: name})
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	return u
}

func TestUsers_UpsertByTelegramID(t *testing.T) {
	ctx := context.Background()
	users := NewUsers(New())

	first, created, err := users.UpsertByTelegramID(ctx, repository.NoTX, newUser(t, 100, "Ann"))
	if err != nil || !created {
		t.Fatalf("first upsert: created=%v err=%v", created, err)
	}

	again := newUser(t, 100, "")
	again.Username = "ann_new"
	second, created, err := users.UpsertByTelegramID(ctx, repository.NoTX, again)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created {
		t.Error("expected existing user on second upsert")
	}
	if second.ID != first.ID || second.ReferralCode != first.ReferralCode {
		t.Errorf("identity changed: %+v vs %+v", first, second)
	}
	if second.Username != "ann_new" || second.FirstName != "Ann" {
		t.Errorf("profile not merged: %+v", second)
	}

	byCode, err := users.FindByReferralCode(ctx, repository.NoTX, first.ReferralCode)
	if err != nil || byCode.ID != first.ID {
		t.Errorf("FindByReferralCode = %v, %v", byCode, err)
	}
	if _, err := users.FindByTelegramID(ctx, repository.NoTX, 999); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUsers_Balances(t *testing.T) {
	ctx := context.Background()
	users := NewUsers(New())
	u := newUser(t, 1, "Bob")
	u.MainBalance = 0.02
	u.WithdrawBalance = 0.5
	users.Put(u)

	if err := users.DeductMainBalance(ctx, nil, u.ID, 0.05); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := users.DeductMainBalance(ctx, nil, u.ID, 0.01); err != nil {
		t.Fatalf("deduct main: %v", err)
	}
	if err := users.DeductWithdrawBalance(ctx, nil, u.ID, 0.5); err != nil {
		t.Fatalf("deduct withdraw: %v", err)
	}
	if err := users.CreditReward(ctx, nil, u.ID, 0.00025); err != nil {
		t.Fatalf("credit: %v", err)
	}

	got, _ := users.FindByID(ctx, nil, u.ID)
	if got.MainBalance < 0.0099 || got.MainBalance > 0.0101 {
		t.Errorf("main balance = %v", got.MainBalance)
	}
	if got.WithdrawBalance != 0.00025 || got.TotalEarned != 0.00025 {
		t.Errorf("withdraw=%v earned=%v", got.WithdrawBalance, got.TotalEarned)
	}
}

func TestTxManager_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := New()
	users, promos := NewUsers(db), NewPromotions(db)
	u := newUser(t, 1, "Cat")
	users.Put(u)

	p, _ := model.NewPromotion(u.ID, model.PromotionParams{Type: model.PromotionBot, AdCost: 0.01, RewardAmount: 0.00035, TotalSlots: 10}, "https://t.me/x_bot")
	err := NewTxManager(db).WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := promos.Create(ctx, tx, p); err != nil {
			return err
		}
		return users.DeductMainBalance(ctx, tx, u.ID, 0.01)
	})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := promos.FindByID(ctx, nil, p.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("promotion survived rollback: %v", err)
	}
}

func TestReferrals_Create(t *testing.T) {
	ctx := context.Background()
	refs := NewReferrals(New())

	if _, err := refs.Create(ctx, nil, "a", "a"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("self referral: %v", err)
	}
	if _, err := refs.Create(ctx, nil, "a", "b"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := refs.Create(ctx, nil, "c", "b"); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("second referrer: %v", err)
	}
	if n, _ := refs.CountByReferrer(ctx, nil, "a"); n != 1 {
		t.Errorf("count = %d", n)
	}
}

func TestPromotions_RecordCompletion(t *testing.T) {
	ctx := context.Background()
	promos := NewPromotions(New())
	p, _ := model.NewPromotion("creator", model.PromotionParams{Type: model.PromotionSubscribe, AdCost: 0.01, RewardAmount: 0.00025, TotalSlots: 2}, "https://t.me/chan")
	_ = promos.Create(ctx, nil, p)

	if err := promos.RecordCompletion(ctx, nil, p.ID, "u1", p.RewardAmount); err != nil {
		t.Fatalf("u1: %v", err)
	}
	if err := promos.RecordCompletion(ctx, nil, p.ID, "u1", p.RewardAmount); !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Errorf("u1 again: %v", err)
	}
	if err := promos.RecordCompletion(ctx, nil, p.ID, "u2", p.RewardAmount); err != nil {
		t.Fatalf("u2: %v", err)
	}
	if err := promos.RecordCompletion(ctx, nil, p.ID, "u3", p.RewardAmount); !errors.Is(err, domain.ErrPromotionInactive) {
		t.Errorf("u3 after slots filled: %v", err)
	}

	got, _ := promos.FindByID(ctx, nil, p.ID)
	if got.IsActive || got.CompletedCount != 2 {
		t.Errorf("promotion = %+v", got)
	}
	if done, _ := promos.HasCompleted(ctx, nil, p.ID, "u2"); !done {
		t.Error("HasCompleted(u2) = false")
	}
}

func TestStats_AppStats(t *testing.T) {
	ctx := context.Background()
	db := New()
	users := NewUsers(db)
	for i := int64(1); i <= 3; i++ {
		u := newUser(t, i, "u")
		u.TotalEarned = 1
		users.Put(u)
	}
	_ = NewPayouts(db).Create(ctx, nil, &model.PayoutRequest{ID: "p", UserID: "x", Amount: 0.5, Status: model.PayoutStatusPending})

	s, err := NewStats(db).AppStats(ctx, nil)
	if err != nil {
		t.Fatalf("AppStats: %v", err)
	}
	if s.TotalUsers != 3 || s.NewUsersLast24h != 3 || s.ActiveUsersToday != 3 {
		t.Errorf("user counts = %+v", s)
	}
	if s.TotalEarnings != 3 || s.TotalPayouts != 0.5 {
		t.Errorf("sums = %+v", s)
	}
}
