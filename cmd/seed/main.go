// seed applies the Postgres schema and optionally funds a test account so promotions can be
// created end to end without a real deposit flow.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"lightning-sats-bot/internal/config"
	"lightning-sats-bot/internal/domain/model"
	pg "lightning-sats-bot/internal/infra/db/postgres"
	"lightning-sats-bot/internal/infra/logging"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	schema := flag.String("schema", "deploy/postgres/init.sql", "schema file to apply; empty skips it")
	tgID := flag.Int64("tg", 0, "telegram id of the account to fund")
	username := flag.String("username", "", "username for a newly created account")
	mainBalance := flag.Float64("main", 0.05, "main balance to set on the funded account")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, true)
	if cfg.Database.Driver != "postgres" {
		logger.Fatal().Str("driver", cfg.Database.Driver).Msg("seed only works against postgres")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := pg.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	if *schema != "" {
		sql, err := os.ReadFile(*schema)
		if err != nil {
			logger.Fatal().Err(err).Msg("read schema")
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			logger.Fatal().Err(err).Msg("apply schema")
		}
		logger.Info().Str("file", *schema).Msg("schema applied")
	}

	if *tgID == 0 {
		return
	}
	users := pg.NewUserRepo(pool)
	u, err := model.NewUser("", model.TelegramProfile{TelegramID: *tgID, Username: *username})
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid account")
	}
	u, created, err := users.UpsertByTelegramID(ctx, nil, u)
	if err != nil {
		logger.Fatal().Err(err).Msg("upsert account")
	}
	if _, err := pool.Exec(ctx, `UPDATE users SET main_balance=$2 WHERE id=$1`, u.ID, *mainBalance); err != nil {
		logger.Fatal().Err(err).Msg("fund account")
	}
	logger.Info().
		Str("user_id", u.ID).
		Bool("created", created).
		Str("referral_code", u.ReferralCode).
		Str("main_balance", model.FormatAmount(*mainBalance)).
		Msg("account funded")
}
