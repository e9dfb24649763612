//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"lightning-sats-bot/internal/domain"
	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/usecase"
)

func seedPromotion(t *testing.T, f *fixture, slots int) *model.Promotion {
	t.Helper()
	p, err := model.NewPromotion("creator", model.PromotionParams{Type: model.PromotionSubscribe, AdCost: 0.01, RewardAmount: 0.00025, TotalSlots: slots}, "https://t.me/chan")
	if err != nil {
		t.Fatalf("NewPromotion: %v", err)
	}
	if err := f.promos.Create(context.Background(), nil, p); err != nil {
		t.Fatalf("store promotion: %v", err)
	}
	return p
}

func TestClaimUseCase_StartClaim(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown promotion", func(t *testing.T) {
		f := newFixture()
		uc := usecase.NewClaimUseCase(f.users, f.promos, f.tm, f.sched, f.events, 3*time.Second, newTestLogger())
		u := f.seedUser(t, 1, "Ann", 0, 0)

		if _, err := uc.StartClaim(ctx, u, "missing", nil); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("already claimed", func(t *testing.T) {
		f := newFixture()
		uc := usecase.NewClaimUseCase(f.users, f.promos, f.tm, f.sched, f.events, 3*time.Second, newTestLogger())
		u := f.seedUser(t, 1, "Ann", 0, 0)
		p := seedPromotion(t, f, 10)
		_ = f.promos.RecordCompletion(ctx, nil, p.ID, u.ID, p.RewardAmount)

		if _, err := uc.StartClaim(ctx, u, p.ID, nil); !errors.Is(err, domain.ErrAlreadyClaimed) {
			t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
		}
		if len(f.sched.Tasks) != 0 {
			t.Error("nothing should be scheduled")
		}
	})

	t.Run("no free slots", func(t *testing.T) {
		f := newFixture()
		uc := usecase.NewClaimUseCase(f.users, f.promos, f.tm, f.sched, f.events, 3*time.Second, newTestLogger())
		u := f.seedUser(t, 1, "Ann", 0, 0)
		p := seedPromotion(t, f, 1)
		_ = f.promos.RecordCompletion(ctx, nil, p.ID, "someone", p.RewardAmount)

		if _, err := uc.StartClaim(ctx, u, p.ID, nil); !errors.Is(err, domain.ErrPromotionInactive) {
			t.Fatalf("expected ErrPromotionInactive, got %v", err)
		}
	})

	t.Run("deferred completion credits reward once", func(t *testing.T) {
		f := newFixture()
		uc := usecase.NewClaimUseCase(f.users, f.promos, f.tm, f.sched, f.events, 3*time.Second, newTestLogger())
		u := f.seedUser(t, 1, "Ann", 0, 0)
		p := seedPromotion(t, f, 10)

		var results []*model.TaskResult
		onDone := func(ctx context.Context, res *model.TaskResult) { results = append(results, res) }

		if _, err := uc.StartClaim(ctx, u, p.ID, onDone); err != nil {
			t.Fatalf("StartClaim failed: %v", err)
		}
		key := "claim:" + p.ID + ":" + u.ID
		if f.sched.Delays[key] != 3*time.Second {
			t.Fatalf("task not scheduled under %q: %v", key, f.sched.Delays)
		}
		// Re-claiming before it fires replaces the pending task.
		if _, err := uc.StartClaim(ctx, u, p.ID, onDone); err != nil {
			t.Fatalf("second StartClaim failed: %v", err)
		}
		if len(f.sched.Tasks) != 1 {
			t.Fatalf("expected one pending task, got %d", len(f.sched.Tasks))
		}

		f.sched.Fire(ctx, key)

		if len(results) != 1 || !results[0].Success || results[0].Message != "0.00025" {
			t.Fatalf("results = %+v", results)
		}
		got := f.reload(t, u.ID)
		if got.WithdrawBalance != 0.00025 || got.TotalEarned != 0.00025 {
			t.Errorf("balance after reward = %+v", got)
		}
		if types := f.events.Types(); len(types) != 1 || types[0] != model.EventAdReward {
			t.Errorf("events = %v", types)
		}
	})

	t.Run("task that no longer qualifies is a no-op", func(t *testing.T) {
		f := newFixture()
		uc := usecase.NewClaimUseCase(f.users, f.promos, f.tm, f.sched, f.events, 3*time.Second, newTestLogger())
		u := f.seedUser(t, 1, "Ann", 0, 0)
		p := seedPromotion(t, f, 1)

		called := false
		if _, err := uc.StartClaim(ctx, u, p.ID, func(context.Context, *model.TaskResult) { called = true }); err != nil {
			t.Fatalf("StartClaim failed: %v", err)
		}
		// Someone else takes the last slot before verification fires.
		_ = f.promos.RecordCompletion(ctx, nil, p.ID, "other", p.RewardAmount)
		f.sched.Fire(ctx, "claim:"+p.ID+":"+u.ID)

		if called {
			t.Error("onDone must not run for a skipped claim")
		}
		if got := f.reload(t, u.ID); got.WithdrawBalance != 0 {
			t.Errorf("reward credited on skipped claim: %v", got.WithdrawBalance)
		}
		if len(f.events.Events) != 0 {
			t.Errorf("unexpected events %v", f.events.Types())
		}
	})
}

func TestClaimUseCase_CancelPromotion(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	uc := usecase.NewClaimUseCase(f.users, f.promos, f.tm, f.sched, f.events, time.Second, newTestLogger())
	p := seedPromotion(t, f, 10)
	other := seedPromotion(t, f, 10)
	a := f.seedUser(t, 1, "A", 0, 0)
	b := f.seedUser(t, 2, "B", 0, 0)

	for _, u := range []*model.User{a, b} {
		if _, err := uc.StartClaim(ctx, u, p.ID, nil); err != nil {
			t.Fatalf("StartClaim: %v", err)
		}
	}
	if _, err := uc.StartClaim(ctx, a, other.ID, nil); err != nil {
		t.Fatalf("StartClaim: %v", err)
	}

	if n := uc.CancelPromotion(p.ID); n != 2 {
		t.Errorf("cancelled %d, want 2", n)
	}
	if len(f.sched.Tasks) != 1 {
		t.Errorf("claims for other promotions must survive, pending=%d", len(f.sched.Tasks))
	}
}
