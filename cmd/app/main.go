package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lightning-sats-bot/internal/application"
	"lightning-sats-bot/internal/config"
	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/domain/ports/adapter"
	"lightning-sats-bot/internal/domain/ports/repository"
	tele "lightning-sats-bot/internal/infra/adapters/telegram"
	"lightning-sats-bot/internal/infra/db/memory"
	pg "lightning-sats-bot/internal/infra/db/postgres"
	"lightning-sats-bot/internal/infra/events"
	"lightning-sats-bot/internal/infra/i18n"
	"lightning-sats-bot/internal/infra/logging"
	"lightning-sats-bot/internal/infra/metrics"
	"lightning-sats-bot/internal/infra/push"
	red "lightning-sats-bot/internal/infra/redis"
	"lightning-sats-bot/internal/infra/scheduler"
	"lightning-sats-bot/internal/infra/session"
	"lightning-sats-bot/internal/infra/web"
	"lightning-sats-bot/internal/infra/worker"
	"lightning-sats-bot/internal/usecase"

	"github.com/joho/godotenv"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

type repos struct {
	users      repository.UserRepository
	referrals  repository.ReferralRepository
	payouts    repository.PayoutRepository
	promotions repository.PromotionRepository
	stats      repository.StatsRepository
	tm         repository.TransactionManager
}

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode: console logs, unredacted payout details, generated JWT secret")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Str("mode", cfg.Bot.Mode).Str("db", cfg.Database.Driver).Msg("starting")

	if cfg.HTTP.JWTSecret == "" {
		cfg.HTTP.JWTSecret = randomSecret()
		logger.Warn().Msg("[DEV MODE] http.jwt_secret not set; using a random secret, tokens will not survive restarts")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Redis (optional) ----
	var rc *red.Client
	if cfg.Redis.URL != "" {
		rc, err = red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer rc.Close()
	}

	// ---- Storage ----
	var st repos
	switch cfg.Database.Driver {
	case "memory":
		db := memory.New()
		st = repos{
			users:      memory.NewUsers(db),
			referrals:  memory.NewReferrals(db),
			payouts:    memory.NewPayouts(db),
			promotions: memory.NewPromotions(db),
			stats:      memory.NewStats(db),
			tm:         memory.NewTxManager(db),
		}
		logger.Warn().Msg("using in-memory storage; data is lost on restart")
	default:
		pool, err := pg.Connect(ctx, &cfg.Database, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres")
		}
		defer pool.Close()
		go pg.ReportPoolStats(ctx, pool, 15*time.Second)
		st = repos{
			users:      pg.NewUserRepo(pool),
			referrals:  pg.NewReferralRepo(pool),
			payouts:    pg.NewPayoutRepo(pool),
			promotions: pg.NewPromotionRepo(pool),
			stats:      pg.NewStatsRepo(pool),
			tm:         pg.NewTxManager(pool),
		}
		if rc != nil && cfg.Redis.UserCacheTTL > 0 {
			st.users = pg.NewUserRepoCacheDecorator(st.users, rc, cfg.Redis.UserCacheTTL, logger)
		}
	}

	// ---- Sessions ----
	var (
		sessions repository.SessionStore
		locker   repository.ChatLocker
		memStore *session.MemoryStore
	)
	if cfg.Redis.Sessions {
		sessions = red.NewSessionStore(rc, cfg.Sessions.IdleTTL)
		locker = red.NewLocker(rc, 30*time.Second, logging.Component(logger, "ChatLock"))
	} else {
		memStore = session.NewMemoryStore(cfg.Sessions.IdleTTL)
		sessions = memStore
		locker = session.NewKeyedMutex()
	}

	// ---- Telegram outbound ----
	var (
		bot     adapter.TelegramBotAdapter
		realBot *tele.RealTelegramBotAdapter
	)
	if cfg.Bot.Mode == "noop" {
		bot = tele.NewNoopBotAdapter(logger)
	} else {
		realBot, err = tele.NewRealTelegramBotAdapter(&cfg.Bot, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram")
		}
		bot = realBot
	}

	translator, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Bot.Language)
	if err != nil {
		logger.Fatal().Err(err).Msg("i18n")
	}

	// ---- Events ----
	hub := push.NewHub(cfg.Push, logger)
	bus := events.NewBus(logger)
	bus.Attach("push", hub)
	if cfg.AMQP.URL != "" {
		sink, err := events.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("amqp")
		}
		defer sink.Close()
		bus.Attach("amqp", sink)
	}

	delays := scheduler.NewDelayQueue(ctx, logger)

	// ---- Use cases ----
	userUC := usecase.NewUserUseCase(st.users, st.referrals, bot, translator, logging.Component(logger, "UserUC"))
	payoutUC := usecase.NewPayoutUseCase(st.users, st.payouts, st.tm, bus, bot, translator,
		paymentMethods(cfg.Payments), cfg.Bot.AdminID, logging.Component(logger, "PayoutUC"))
	promotionUC := usecase.NewPromotionUseCase(st.users, st.promotions, st.tm, bot, translator,
		promotionParams(cfg.Promotions),
		usecase.ChannelSettings{ChannelID: cfg.Bot.ChannelID, BotUsername: cfg.Bot.Username},
		logging.Component(logger, "PromotionUC"))
	claimUC := usecase.NewClaimUseCase(st.users, st.promotions, st.tm, delays, bus,
		cfg.Claims.VerifyDelay, logging.Component(logger, "ClaimUC"))
	broadcastUC := usecase.NewBroadcastUseCase(st.users, bot, translator, cfg.Broadcast.Delay,
		cfg.Bot.AdminID, logging.Component(logger, "BroadcastUC"))
	statsUC := usecase.NewStatsUseCase(st.stats, bot, translator, cfg.Bot.AdminID, logging.Component(logger, "StatsUC"))

	engine := application.NewEngine(
		application.UseCases{
			Users:      userUC,
			Payouts:    payoutUC,
			Promotions: promotionUC,
			Claims:     claimUC,
			Broadcasts: broadcastUC,
			Stats:      statsUC,
		},
		sessions, locker, bot, translator,
		application.Settings{
			AdminID:     cfg.Bot.AdminID,
			BotUsername: cfg.Bot.Username,
			WebAppURL:   cfg.Bot.WebAppURL,
			ChannelLink: cfg.Bot.ChannelLink,
			SupportLink: cfg.Bot.SupportLink,
			Dev:         cfg.Runtime.Dev,
		},
		logger,
	)

	// ---- Inbound ----
	pool := worker.NewPool(cfg.Bot.Workers, cfg.Bot.Workers*64, logger)
	pool.Start(ctx)
	var limiter tele.Limiter
	if rc != nil && cfg.Bot.RateLimit > 0 {
		limiter = red.NewRateLimiter(rc)
	}
	dispatcher := tele.NewDispatcher(engine, pool, limiter, &cfg.Bot, logger)

	// ---- Push + HTTP ----
	var jti push.JTIStore = push.NewMemoryJTIStore()
	if rc != nil {
		jti = red.NewTokenStore(rc)
	}
	issuer := push.NewTokenIssuer(cfg.HTTP.JWTSecret, cfg.Push.TokenTTL, jti)
	deps := web.Deps{
		Users:      userUC,
		Broadcasts: broadcastUC,
		Stats:      statsUC,
		Events:     bus,
		Claims:     claimUC,
		Tokens:     issuer,
		Auth:       web.NewAuthManager(cfg.HTTP.JWTSecret, cfg.HTTP.SecureCookie, cfg.HTTP.AccessTTL),
		Push:       push.NewGateway(hub, issuer, logger),
	}
	if cfg.Bot.Mode == "webhook" {
		deps.Webhook = dispatcher.WebhookHandler()
	}
	webSrv := web.NewServer(deps, web.Options{
		BotToken:      cfg.Bot.Token,
		AdminID:       cfg.Bot.AdminID,
		AdminAPIKey:   cfg.HTTP.AdminAPIKey,
		WebhookSecret: cfg.Bot.WebhookSecret,
	}, logger)
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           webSrv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", httpSrv.Addr).Msg("http listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	// ---- Periodic jobs ----
	sched := scheduler.NewScheduler(0, logger)
	if spec := cfg.Scheduler.StatsDigestCron; spec != "" && cfg.Bot.AdminID != 0 {
		if err := sched.Add(spec, scheduler.JobFunc{JobName: "stats_digest", Fn: statsUC.SendDigest}); err != nil {
			logger.Fatal().Err(err).Msg("scheduler")
		}
	}
	if memStore != nil && cfg.Sessions.IdleTTL > 0 {
		_ = sched.Add("@every 1m", scheduler.JobFunc{JobName: "session_sweep", Fn: func(context.Context) error {
			if n := memStore.Sweep(); n > 0 {
				logger.Debug().Int("expired", n).Msg("sessions swept")
			}
			return nil
		}})
	}
	sched.Start(ctx)

	// ---- Telegram inbound ----
	switch cfg.Bot.Mode {
	case "polling":
		go func() {
			if err := realBot.StartPolling(ctx, dispatcher); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("telegram polling stopped")
				stop()
			}
		}()
	case "webhook":
		hookURL := strings.TrimRight(cfg.HTTP.PublicURL, "/") + "/telegram/webhook/" + cfg.Bot.WebhookSecret
		if err := realBot.SetWebhook(ctx, hookURL); err != nil {
			logger.Fatal().Err(err).Msg("set webhook")
		}
		logger.Info().Str("url", strings.TrimRight(cfg.HTTP.PublicURL, "/")+"/telegram/webhook/***").Msg("webhook registered")
	}

	<-ctx.Done()
	logger.Info().Msg("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	pool.Stop()
	engine.Wait()
	webSrv.Wait()
	sched.Stop()
	delays.Stop()
	hub.Close()
	logger.Info().Msg("bye")
}

func paymentMethods(in []config.PaymentMethodConfig) []model.PaymentMethod {
	out := make([]model.PaymentMethod, 0, len(in))
	for _, m := range in {
		out = append(out, model.PaymentMethod{ID: m.ID, Name: m.Name, Emoji: m.Emoji, MinWithdrawal: m.MinWithdrawal})
	}
	return out
}

func promotionParams(c config.PromotionsConfig) []model.PromotionParams {
	return []model.PromotionParams{
		{Type: model.PromotionSubscribe, AdCost: c.Subscribe.AdCost, RewardAmount: c.Subscribe.RewardAmount, TotalSlots: c.Subscribe.TotalSlots},
		{Type: model.PromotionBot, AdCost: c.Bot.AdCost, RewardAmount: c.Bot.RewardAmount, TotalSlots: c.Bot.TotalSlots},
	}
}

func randomSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
