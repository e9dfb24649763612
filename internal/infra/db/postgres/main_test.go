//go:build integration

package postgres

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"testing"

	"lightning-sats-bot/internal/domain/model"

	"github.com/jackc/pgx/v4/pgxpool"
)

var testPool *pgxpool.Pool

// findProjectRoot walks up from the working directory to the directory holding go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.New("could not find project root containing go.mod")
}

// TestMain applies deploy/postgres/init.sql to TEST_DATABASE_URL. Without the variable the
// package is skipped.
func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		log.Println("TEST_DATABASE_URL not set, skipping postgres integration tests")
		os.Exit(0)
	}
	ctx := context.Background()

	var err error
	testPool, err = pgxpool.Connect(ctx, dsn)
	if err != nil {
		log.Fatalf("connect test database: %v", err)
	}

	root, err := findProjectRoot()
	if err != nil {
		log.Fatalf("find project root: %v", err)
	}
	schema, err := os.ReadFile(filepath.Join(root, "deploy", "postgres", "init.sql"))
	if err != nil {
		log.Fatalf("read init.sql: %v", err)
	}
	if _, err := testPool.Exec(ctx, string(schema)); err != nil {
		log.Fatalf("apply schema: %v", err)
	}

	code := m.Run()
	testPool.Close()
	os.Exit(code)
}

func cleanup(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(),
		`TRUNCATE users, referrals, payout_requests, promotions, task_completions CASCADE`)
	if err != nil {
		t.Fatalf("failed to clean up database: %v", err)
	}
}

func seedUser(t *testing.T, repo *UserRepo, tgID int64, username string) *model.User {
	t.Helper()
	u, err := model.NewUser("", model.TelegramProfile{TelegramID: tgID, Username: username, FirstName: username})
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	out, created, err := repo.UpsertByTelegramID(context.Background(), nil, u)
	if err != nil || !created {
		t.Fatalf("seed user: created=%v err=%v", created, err)
	}
	return out
}
