package push

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/infra/metrics"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const maxFrameSize = 4096

// AuthFrame is the first frame a client must send.
type AuthFrame struct {
	Type         string `json:"type"`
	SessionToken string `json:"sessionToken"`
}

// TokenRedeemer resolves a session token to a user id.
type TokenRedeemer interface {
	Redeem(ctx context.Context, token string) (string, error)
}

// Gateway upgrades /ws requests and registers connections with the hub once they authenticate.
type Gateway struct {
	hub      *Hub
	tokens   TokenRedeemer
	upgrader websocket.Upgrader
	log      *zerolog.Logger
}

func NewGateway(hub *Hub, tokens TokenRedeemer, logger *zerolog.Logger) *Gateway {
	l := logger.With().Str("component", "PushGateway").Logger()
	g := &Gateway{hub: hub, tokens: tokens, log: &l}
	allowed := hub.cfg.AllowedOrigins
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowed) == 0 {
				return true
			}
			for _, o := range allowed {
				if strings.EqualFold(o, origin) {
					return true
				}
			}
			g.log.Warn().Str("origin", origin).Msg("rejected websocket origin")
			return false
		},
	}
	return g
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	userID, err := g.authenticate(r.Context(), ws)
	if err != nil {
		g.reject(ws, err)
		return
	}

	c := newConn(userID, ws, g.hub.cfg.SendBuffer)
	_ = ws.SetWriteDeadline(time.Now().Add(g.hub.cfg.WriteWait))
	if err := ws.WriteJSON(model.OutboundEvent{Type: model.EventConnected}); err != nil {
		_ = ws.Close()
		return
	}
	metrics.IncPushHandshake("ok")
	g.hub.register(c)
	go g.hub.writePump(c)
	g.hub.readPump(c)
}

var (
	errAuthTimeout  = errors.New("authentication timeout")
	errMalformed    = errors.New("malformed auth frame")
	errAuthRequired = errors.New("authentication required")
)

func (g *Gateway) authenticate(ctx context.Context, ws *websocket.Conn) (string, error) {
	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(g.hub.cfg.AuthTimeout))
	var frame AuthFrame
	if err := ws.ReadJSON(&frame); err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return "", errAuthTimeout
		}
		return "", errMalformed
	}
	if frame.Type != "auth" || frame.SessionToken == "" {
		return "", errAuthRequired
	}
	userID, err := g.tokens.Redeem(ctx, frame.SessionToken)
	if err != nil {
		return "", err
	}
	_ = ws.SetReadDeadline(time.Time{})
	return userID, nil
}

func (g *Gateway) reject(ws *websocket.Conn, cause error) {
	defer ws.Close()
	result, msg := "auth_error", "invalid session token"
	switch {
	case errors.Is(cause, errAuthTimeout):
		result, msg = "timeout", cause.Error()
	case errors.Is(cause, errMalformed), errors.Is(cause, errAuthRequired):
		msg = cause.Error()
	}
	metrics.IncPushHandshake(result)
	g.log.Debug().Err(cause).Msg("push handshake rejected")

	deadline := time.Now().Add(g.hub.cfg.WriteWait)
	_ = ws.SetWriteDeadline(deadline)
	if err := ws.WriteJSON(model.OutboundEvent{Type: model.EventAuthError, Message: msg}); err != nil {
		return
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, msg), deadline)
}
