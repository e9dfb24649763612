package web

import (
	"net/http"
	"sync"
	"time"

	"lightning-sats-bot/internal/domain/ports/adapter"
	"lightning-sats-bot/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// SessionTokenIssuer mints push session tokens.
type SessionTokenIssuer interface {
	Issue(userID string) (string, error)
}

type Options struct {
	BotToken      string
	AdminID       int64
	AdminAPIKey   string
	WebhookSecret string
	InitDataTTL   time.Duration
}

type Deps struct {
	Users      usecase.UserUseCase
	Broadcasts usecase.BroadcastUseCase
	Stats      usecase.StatsUseCase
	Events     adapter.EventPublisher
	Claims     ClaimCanceller // nil leaves pending claims alone
	Tokens     SessionTokenIssuer
	Auth       *AuthManager
	Push       http.Handler // websocket gateway
	Webhook    http.Handler // nil outside webhook mode
}

// ClaimCanceller drops deferred claim verifications for a promotion.
type ClaimCanceller interface {
	CancelPromotion(promotionID string) int
}

// Server is the HTTP surface: web app login, push gateway, admin API, webhook and metrics.
type Server struct {
	Deps
	opts   Options
	apiKey string
	bg     sync.WaitGroup
	log    *zerolog.Logger
}

func NewServer(deps Deps, opts Options, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "HTTP").Logger()
	if opts.InitDataTTL == 0 {
		opts.InitDataTTL = 24 * time.Hour
	}
	return &Server{Deps: deps, opts: opts, apiKey: opts.AdminAPIKey, log: &l}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(traceID, recoverer(s.log), requestLog(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/telegram", s.telegramLogin)
		r.Post("/logout", s.logout)
		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Get("/user", s.currentUser)
			r.Get("/session-token", s.sessionToken)
		})
	})

	if s.Push != nil {
		r.Get("/ws", s.Push.ServeHTTP)
	}
	if s.Webhook != nil && s.opts.WebhookSecret != "" {
		r.Post("/telegram/webhook/{secret}", s.webhook)
	}

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Get("/stats", s.adminStats)
		r.Post("/broadcast", s.adminBroadcast)
		r.Post("/events", s.adminPublishEvent)
	})
	return r
}

// Wait blocks until background work started by handlers has finished.
func (s *Server) Wait() { s.bg.Wait() }
