package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"lightning-sats-bot/internal/domain"
	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/infra/logging"

	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(v)
}

type userView struct {
	ID              string    `json:"id"`
	TelegramID      int64     `json:"telegramId"`
	Username        string    `json:"username,omitempty"`
	FirstName       string    `json:"firstName,omitempty"`
	ReferralCode    string    `json:"referralCode,omitempty"`
	WithdrawBalance string    `json:"withdrawBalance"`
	MainBalance     string    `json:"mainBalance"`
	TotalEarned     string    `json:"totalEarned"`
	CreatedAt       time.Time `json:"createdAt"`
}

func newUserView(u *model.User) userView {
	return userView{
		ID:              u.ID,
		TelegramID:      u.TelegramID,
		Username:        u.Username,
		FirstName:       u.FirstName,
		ReferralCode:    u.ReferralCode,
		WithdrawBalance: model.FormatAmount(u.WithdrawBalance),
		MainBalance:     model.FormatAmount(u.MainBalance),
		TotalEarned:     model.FormatAmount(u.TotalEarned),
		CreatedAt:       u.CreatedAt,
	}
}

// telegramLogin exchanges signed WebApp initData for an access token.
func (s *Server) telegramLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InitData string `json:"initData"`
	}
	if err := decodeBody(w, r, &req); err != nil || req.InitData == "" {
		writeError(w, http.StatusBadRequest, "initData is required")
		return
	}
	profile, err := ValidateInitData(req.InitData, s.opts.BotToken, s.opts.InitDataTTL, time.Now())
	if err != nil {
		logging.With(r.Context(), s.log).Debug().Err(err).Msg("web app login rejected")
		writeError(w, http.StatusUnauthorized, "invalid init data")
		return
	}
	user, _, err := s.Users.RegisterOrFetch(r.Context(), profile)
	if err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Int64("tg_id", profile.TelegramID).Msg("web app login failed")
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	role := RoleUser
	if s.opts.AdminID != 0 && profile.TelegramID == s.opts.AdminID {
		role = RoleAdmin
	}
	token, err := s.Auth.Mint(w, user.ID, user.TelegramID, role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": newUserView(user)})
}

func (s *Server) logout(w http.ResponseWriter, _ *http.Request) {
	s.Auth.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	user, err := s.Users.GetByID(r.Context(), claims.Subject)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to load user")
	default:
		writeJSON(w, http.StatusOK, newUserView(user))
	}
}

// sessionToken issues the single-use token the web client sends as its first push frame.
func (s *Server) sessionToken(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	tok, err := s.Tokens.Issue(claims.Subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue session token")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]string{"sessionToken": tok})
}

func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	if subtle.ConstantTimeCompare([]byte(chi.URLParam(r, "secret")), []byte(s.opts.WebhookSecret)) != 1 {
		http.NotFound(w, r)
		return
	}
	s.Webhook.ServeHTTP(w, r)
}

func (s *Server) adminStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.Stats.AppStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		TotalUsers            int    `json:"totalUsers"`
		ActiveUsersToday      int    `json:"activeUsersToday"`
		NewUsersLast24h       int    `json:"newUsersLast24h"`
		TotalInvites          int    `json:"totalInvites"`
		TotalEarnings         string `json:"totalEarnings"`
		TotalReferralEarnings string `json:"totalReferralEarnings"`
		TotalPayouts          string `json:"totalPayouts"`
	}{
		TotalUsers:            st.TotalUsers,
		ActiveUsersToday:      st.ActiveUsersToday,
		NewUsersLast24h:       st.NewUsersLast24h,
		TotalInvites:          st.TotalInvites,
		TotalEarnings:         model.FormatAmount(st.TotalEarnings),
		TotalReferralEarnings: model.FormatAmount(st.TotalReferralEarnings),
		TotalPayouts:          model.FormatAmount(st.TotalPayouts),
	})
}

// adminBroadcast starts a broadcast in the background; the tally goes to the admin chat.
func (s *Server) adminBroadcast(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := decodeBody(w, r, &req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	ctx := context.WithoutCancel(r.Context())
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		res, err := s.Broadcasts.Broadcast(ctx, req.Message)
		l := logging.With(ctx, s.log)
		if err != nil {
			l.Error().Err(err).Msg("admin broadcast failed")
			return
		}
		l.Info().Int("success", res.Success).Int("failed", res.Failed).Msg("admin broadcast finished")
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

type eventRequest struct {
	UserID       string `json:"userId"`
	Type         string `json:"type"`
	Message      string `json:"message"`
	Amount       string `json:"amount"`
	Title        string `json:"title"`
	Refunded     bool   `json:"refunded"`
	RefundAmount string `json:"refundAmount"`
	PromotionID  string `json:"promotionId"`
}

// adminPublishEvent lets external ledger actions (approvals, rejections, referral bonuses) push to a user.
// Events that retire a promotion also cancel its pending claim verifications.
func (s *Server) adminPublishEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	t, ok := model.ParseEventType(req.Type)
	if !ok || t == model.EventConnected || t == model.EventAuthError {
		writeError(w, http.StatusBadRequest, "unknown event type")
		return
	}
	ev := model.OutboundEvent{
		Type:         t,
		UserID:       req.UserID,
		Message:      req.Message,
		Amount:       req.Amount,
		Title:        req.Title,
		Refunded:     req.Refunded,
		RefundAmount: req.RefundAmount,
		PromotionID:  req.PromotionID,
	}
	if err := ev.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ev.EndsPromotion() && s.Claims != nil {
		n := s.Claims.CancelPromotion(ev.PromotionID)
		s.log.Info().Str("promotion_id", ev.PromotionID).Str("type", string(ev.Type)).Int("cancelled", n).Msg("promotion retired")
	}
	err := s.Events.Publish(r.Context(), ev)
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrTransport):
		writeError(w, http.StatusBadGateway, "event delivery failed")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "event delivery failed")
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "published"})
	}
}
