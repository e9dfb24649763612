package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"lightning-sats-bot/internal/domain"
	"lightning-sats-bot/internal/domain/model"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type State int32

const (
	StateDisconnected State = iota
	StateAuthenticating
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// TokenSource fetches a fresh session token; it is called once per connection attempt.
type TokenSource func(ctx context.Context) (string, error)

type ClientConfig struct {
	URL         string
	Token       TokenSource
	OnEvent     func(model.OutboundEvent)
	OnState     func(State)
	Retry       backoff.BackOff // defaults to a constant 3s policy
	AuthTimeout time.Duration
	Dialer      *websocket.Dialer
}

// Client keeps one authenticated push connection alive and hands events to OnEvent.
type Client struct {
	cfg   ClientConfig
	state atomic.Int32
	log   *zerolog.Logger
}

func NewClient(cfg ClientConfig, logger *zerolog.Logger) *Client {
	if cfg.Retry == nil {
		cfg.Retry = backoff.NewConstantBackOff(3 * time.Second)
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 10 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.OnEvent == nil {
		cfg.OnEvent = func(model.OutboundEvent) {}
	}
	l := logger.With().Str("component", "PushClient").Logger()
	return &Client{cfg: cfg, log: &l}
}

func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	c.log.Debug().Str("state", s.String()).Msg("push client state")
	if c.cfg.OnState != nil {
		c.cfg.OnState(s)
	}
}

// Run connects and reconnects until ctx is done. It returns ctx.Err().
func (c *Client) Run(ctx context.Context) error {
	defer c.setState(StateDisconnected)
	op := func() error {
		err := c.session(ctx)
		c.setState(StateDisconnected)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err == nil {
			err = errors.New("connection closed")
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.log.Info().Err(err).Dur("retry_in", wait).Msg("push connection lost")
	}
	err := backoff.RetryNotify(op, backoff.WithContext(c.cfg.Retry, ctx), notify)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Client) session(ctx context.Context) error {
	c.setState(StateAuthenticating)
	token, err := c.cfg.Token(ctx)
	if err != nil {
		return fmt.Errorf("fetch session token: %w", err)
	}
	ws, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: dial: %v", domain.ErrTransport, err)
	}
	defer ws.Close()

	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()

	if err := ws.WriteJSON(AuthFrame{Type: "auth", SessionToken: token}); err != nil {
		return fmt.Errorf("%w: send auth: %v", domain.ErrTransport, err)
	}
	_ = ws.SetReadDeadline(time.Now().Add(c.cfg.AuthTimeout))
	var reply model.OutboundEvent
	if err := ws.ReadJSON(&reply); err != nil {
		return fmt.Errorf("%w: read auth reply: %v", domain.ErrTransport, err)
	}
	switch reply.Type {
	case model.EventConnected:
	case model.EventAuthError:
		return fmt.Errorf("%w: %s", domain.ErrAuth, reply.Message)
	default:
		return fmt.Errorf("%w: unexpected handshake frame %q", domain.ErrTransport, reply.Type)
	}
	_ = ws.SetReadDeadline(time.Time{})
	c.setState(StateConnected)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: read: %v", domain.ErrTransport, err)
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var ev model.OutboundEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		c.log.Debug().Err(err).Msg("undecodable push frame")
		return
	}
	t, ok := model.ParseEventType(string(ev.Type))
	if !ok || t == model.EventConnected || t == model.EventAuthError {
		c.log.Debug().Str("type", string(ev.Type)).Msg("ignoring push frame")
		return
	}
	ev.Type = t
	c.cfg.OnEvent(ev)
}

// HTTPTokenSource fetches tokens from the session-token endpoint using a bearer access token.
func HTTPTokenSource(endpoint, accessToken string, hc *http.Client) TokenSource {
	if hc == nil {
		hc = http.DefaultClient
	}
	return func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return "", err
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		resp, err := hc.Do(req)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrTransport, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("%w: session token endpoint returned %d", domain.ErrAuth, resp.StatusCode)
		}
		var body struct {
			SessionToken string `json:"sessionToken"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", fmt.Errorf("decode session token: %w", err)
		}
		if body.SessionToken == "" {
			return "", fmt.Errorf("%w: empty session token", domain.ErrAuth)
		}
		return body.SessionToken, nil
	}
}
