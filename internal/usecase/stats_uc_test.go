//go:build !integration

package usecase_test

import (
	"context"
	"strings"
	"testing"

	"lightning-sats-bot/internal/usecase"
)

func TestStatsUseCase(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seedUser(t, 1, "a", 0, 0)
	f.seedUser(t, 2, "b", 0, 0)
	uc := usecase.NewStatsUseCase(f.stats, f.bot, newTestTranslator(t), adminChat, newTestLogger())

	st, err := uc.AppStats(ctx)
	if err != nil {
		t.Fatalf("AppStats: %v", err)
	}
	if st.TotalUsers != 2 {
		t.Errorf("TotalUsers = %d", st.TotalUsers)
	}
	if text := uc.Render(st); !strings.Contains(text, "Total Registered Users: 2") {
		t.Errorf("Render = %q", text)
	}

	if err := uc.SendDigest(ctx); err != nil {
		t.Fatalf("SendDigest: %v", err)
	}
	if msgs := f.bot.SentTo(adminChat); len(msgs) != 1 || !strings.Contains(msgs[0].Text, "Daily digest") {
		t.Errorf("digest = %+v", msgs)
	}
}
