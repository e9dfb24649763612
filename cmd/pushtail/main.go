// pushtail connects to the push gateway as a logged-in web user and prints every event it receives.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lightning-sats-bot/internal/config"
	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/infra/logging"
	"lightning-sats-bot/internal/infra/push"

	"github.com/caarlos0/env/v11"
	"github.com/cenkalti/backoff/v4"
	"github.com/joho/godotenv"
)

type options struct {
	Server      string `env:"PUSHTAIL_SERVER" envDefault:"http://localhost:8080"`
	AccessToken string `env:"PUSHTAIL_ACCESS_TOKEN"`
}

func main() {
	_ = godotenv.Load()

	var opts options
	if err := env.Parse(&opts); err != nil {
		fmt.Fprintf(os.Stderr, "env: %v\n", err)
		os.Exit(2)
	}
	flag.StringVar(&opts.Server, "server", opts.Server, "base URL of the bot HTTP server")
	flag.StringVar(&opts.AccessToken, "token", opts.AccessToken, "access token from POST /api/auth/telegram")
	retry := flag.Duration("retry", 3*time.Second, "reconnect delay")
	verbose := flag.Bool("v", false, "log connection state changes")
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	logger := logging.New(config.LogConfig{Level: level, Format: "console"}, true)

	if opts.AccessToken == "" {
		logger.Fatal().Msg("an access token is required (-token or PUSHTAIL_ACCESS_TOKEN)")
	}
	wsURL, err := websocketURL(opts.Server)
	if err != nil {
		logger.Fatal().Err(err).Msg("bad server url")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hc := &http.Client{Timeout: 10 * time.Second}
	client := push.NewClient(push.ClientConfig{
		URL:   wsURL,
		Token: push.HTTPTokenSource(strings.TrimRight(opts.Server, "/")+"/api/auth/session-token", opts.AccessToken, hc),
		OnEvent: func(ev model.OutboundEvent) {
			logger.Info().
				Str("type", string(ev.Type)).
				Str("amount", ev.Amount).
				Str("title", ev.Title).
				Str("message", ev.Message).
				Msg("event")
		},
		OnState: func(s push.State) {
			logger.Debug().Str("state", s.String()).Msg("connection")
		},
		Retry: backoff.NewConstantBackOff(*retry),
	}, logger)

	logger.Info().Str("url", wsURL).Msg("tailing push events")
	_ = client.Run(ctx)
}

// websocketURL maps http(s)://host to ws(s)://host/ws.
func websocketURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}
