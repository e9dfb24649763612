//go:build !integration

package web

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"lightning-sats-bot/internal/domain"
	"lightning-sats-bot/internal/domain/model"

	"github.com/rs/zerolog"
)

const (
	testBotToken = "123456:TEST-TOKEN"
	testAPIKey   = "test-admin-key"
	testAdminTG  = int64(999)
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// ---- hand-written mocks ----

type MockUserUC struct {
	RegisterOrFetchFunc func(ctx context.Context, p model.TelegramProfile) (*model.User, bool, error)
	GetByIDFunc         func(ctx context.Context, id string) (*model.User, error)
}

func (m *MockUserUC) RegisterOrFetch(ctx context.Context, p model.TelegramProfile) (*model.User, bool, error) {
	return m.RegisterOrFetchFunc(ctx, p)
}
func (m *MockUserUC) GetByTelegramID(ctx context.Context, tgID int64) (*model.User, error) {
	return nil, domain.ErrNotFound
}
func (m *MockUserUC) GetByID(ctx context.Context, id string) (*model.User, error) {
	return m.GetByIDFunc(ctx, id)
}
func (m *MockUserUC) Account(ctx context.Context, u *model.User) (*model.AccountSummary, error) {
	return nil, nil
}
func (m *MockUserUC) EnsureReferralCode(ctx context.Context, u *model.User) (*model.User, error) {
	return u, nil
}
func (m *MockUserUC) ApplyReferral(ctx context.Context, referee *model.User, code string) (bool, error) {
	return false, nil
}

type MockBroadcastUC struct {
	mu       sync.Mutex
	messages []string
}

func (m *MockBroadcastUC) Broadcast(ctx context.Context, message string) (*model.BroadcastResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message)
	return &model.BroadcastResult{Success: 1, Total: 1}, nil
}

type MockStatsUC struct{}

func (MockStatsUC) AppStats(ctx context.Context) (*model.AppStats, error) {
	return &model.AppStats{TotalUsers: 42, TotalPayouts: 1.5}, nil
}
func (MockStatsUC) Render(s *model.AppStats) string       { return "" }
func (MockStatsUC) SendDigest(ctx context.Context) error { return nil }

type MockPublisher struct {
	Events      []model.OutboundEvent
	PublishFunc func(ctx context.Context, ev model.OutboundEvent) error
}

func (m *MockPublisher) Publish(ctx context.Context, ev model.OutboundEvent) error {
	m.Events = append(m.Events, ev)
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, ev)
	}
	return ev.Validate()
}

type MockClaims struct {
	mu        sync.Mutex
	cancelled []string
}

func (m *MockClaims) CancelPromotion(promotionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, promotionID)
	return 1
}

type fakeIssuer struct{}

func (fakeIssuer) Issue(userID string) (string, error) { return "session-for-" + userID, nil }

// ---- harness ----

type harness struct {
	srv        *Server
	ts         *httptest.Server
	auth       *AuthManager
	users      map[string]*model.User
	broadcasts *MockBroadcastUC
	events     *MockPublisher
	claims     *MockClaims
	webhookHit int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		auth:       NewAuthManager("jwt-secret", false, time.Hour),
		users:      map[string]*model.User{},
		broadcasts: &MockBroadcastUC{},
		events:     &MockPublisher{},
		claims:     &MockClaims{},
	}
	users := &MockUserUC{
		RegisterOrFetchFunc: func(ctx context.Context, p model.TelegramProfile) (*model.User, bool, error) {
			id := "u" + strconv.FormatInt(p.TelegramID, 10)
			if u, ok := h.users[id]; ok {
				return u, false, nil
			}
			u, _ := model.NewUser(id, p)
			h.users[id] = u
			return u, true, nil
		},
		GetByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			if u, ok := h.users[id]; ok {
				return u, nil
			}
			return nil, domain.ErrNotFound
		},
	}
	h.srv = NewServer(Deps{
		Users:      users,
		Broadcasts: h.broadcasts,
		Stats:      MockStatsUC{},
		Events:     h.events,
		Claims:     h.claims,
		Tokens:     fakeIssuer{},
		Auth:       h.auth,
		Push: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
		Webhook: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.webhookHit++
			w.WriteHeader(http.StatusOK)
		}),
	}, Options{
		BotToken:      testBotToken,
		AdminID:       testAdminTG,
		AdminAPIKey:   testAPIKey,
		WebhookSecret: "hook-secret",
	}, newTestLogger())
	h.ts = httptest.NewServer(h.srv.Router())
	t.Cleanup(h.ts.Close)
	return h
}

func (h *harness) do(t *testing.T, method, path, bearer, body string) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, h.ts.URL+path, rd)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func signInitData(token string, vals url.Values) string {
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+vals.Get(k))
	}
	secret := hmacSHA256([]byte("WebAppData"), []byte(token))
	vals.Set("hash", hex.EncodeToString(hmacSHA256(secret, []byte(strings.Join(lines, "\n")))))
	return vals.Encode()
}

func initDataFor(tgID int64, at time.Time) string {
	return signInitData(testBotToken, url.Values{
		"auth_date": {strconv.FormatInt(at.Unix(), 10)},
		"query_id":  {"AAH"},
		"user":      {`{"id":` + strconv.FormatInt(tgID, 10) + `,"first_name":"Ann","username":"ann"}`},
	})
}

func loginBody(initData string) string {
	b, _ := json.Marshal(map[string]string{"initData": initData})
	return string(b)
}

// ---- tests ----

func TestValidateInitData(t *testing.T) {
	now := time.Now()

	t.Run("valid", func(t *testing.T) {
		p, err := ValidateInitData(initDataFor(5, now), testBotToken, time.Hour, now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.TelegramID != 5 || p.Username != "ann" || p.FirstName != "Ann" {
			t.Errorf("profile = %+v", p)
		}
	})

	tests := []struct {
		name string
		data string
	}{
		{"wrong bot token", signInitData("other", url.Values{"auth_date": {"1"}, "user": {`{"id":5}`}})},
		{"tampered", strings.Replace(initDataFor(5, now), "ann", "eve", 1)},
		{"expired", initDataFor(5, now.Add(-2*time.Hour))},
		{"no hash", "auth_date=1&user=%7B%22id%22%3A5%7D"},
		{"no user", signInitData(testBotToken, url.Values{"auth_date": {strconv.FormatInt(now.Unix(), 10)}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateInitData(tt.data, testBotToken, time.Hour, now); !errors.Is(err, domain.ErrAuth) {
				t.Errorf("expected ErrAuth, got %v", err)
			}
		})
	}
}

func TestAuthFlow(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, http.MethodPost, "/api/auth/telegram", "", loginBody(initDataFor(5, time.Now())))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d body=%v", resp.StatusCode, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("login returned no token")
	}
	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "lightning_session" {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly {
		t.Errorf("session cookie = %+v", cookie)
	}

	t.Run("current user", func(t *testing.T) {
		resp, body := h.do(t, http.MethodGet, "/api/auth/user", token, "")
		if resp.StatusCode != http.StatusOK || body["telegramId"] != float64(5) || body["withdrawBalance"] != "0.00000" {
			t.Errorf("status=%d body=%v", resp.StatusCode, body)
		}
	})

	t.Run("session token", func(t *testing.T) {
		resp, body := h.do(t, http.MethodGet, "/api/auth/session-token", token, "")
		if resp.StatusCode != http.StatusOK || body["sessionToken"] != "session-for-u5" {
			t.Errorf("status=%d body=%v", resp.StatusCode, body)
		}
		if resp.Header.Get("Cache-Control") != "no-store" {
			t.Error("session token must not be cached")
		}
	})

	t.Run("session token needs login", func(t *testing.T) {
		if resp, _ := h.do(t, http.MethodGet, "/api/auth/session-token", "", ""); resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})

	t.Run("forged init data", func(t *testing.T) {
		bad := strings.Replace(initDataFor(6, time.Now()), "ann", "eve", 1)
		if resp, _ := h.do(t, http.MethodPost, "/api/auth/telegram", "", loginBody(bad)); resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})

	t.Run("missing body", func(t *testing.T) {
		if resp, _ := h.do(t, http.MethodPost, "/api/auth/telegram", "", "{}"); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})

	t.Run("user token cannot reach admin api", func(t *testing.T) {
		if resp, _ := h.do(t, http.MethodGet, "/api/admin/stats", token, ""); resp.StatusCode != http.StatusForbidden {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})
}

func TestAdminAPI(t *testing.T) {
	h := newHarness(t)

	t.Run("unauthenticated", func(t *testing.T) {
		if resp, _ := h.do(t, http.MethodGet, "/api/admin/stats", "", ""); resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d", resp.StatusCode)
		}
		if resp, _ := h.do(t, http.MethodGet, "/api/admin/stats", "wrong-key", ""); resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})

	t.Run("stats with api key", func(t *testing.T) {
		resp, body := h.do(t, http.MethodGet, "/api/admin/stats", testAPIKey, "")
		if resp.StatusCode != http.StatusOK || body["totalUsers"] != float64(42) || body["totalPayouts"] != "1.50000" {
			t.Errorf("status=%d body=%v", resp.StatusCode, body)
		}
	})

	t.Run("stats with admin login", func(t *testing.T) {
		_, body := h.do(t, http.MethodPost, "/api/auth/telegram", "", loginBody(initDataFor(testAdminTG, time.Now())))
		adminToken, _ := body["token"].(string)
		if resp, _ := h.do(t, http.MethodGet, "/api/admin/stats", adminToken, ""); resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})

	t.Run("broadcast runs in background", func(t *testing.T) {
		resp, body := h.do(t, http.MethodPost, "/api/admin/broadcast", testAPIKey, `{"message":"hello all"}`)
		if resp.StatusCode != http.StatusAccepted || body["status"] != "started" {
			t.Fatalf("status=%d body=%v", resp.StatusCode, body)
		}
		h.srv.Wait()
		if len(h.broadcasts.messages) != 1 || h.broadcasts.messages[0] != "hello all" {
			t.Errorf("broadcasts = %v", h.broadcasts.messages)
		}
	})

	t.Run("empty broadcast", func(t *testing.T) {
		if resp, _ := h.do(t, http.MethodPost, "/api/admin/broadcast", testAPIKey, `{"message":"  "}`); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})

	t.Run("publish event", func(t *testing.T) {
		resp, _ := h.do(t, http.MethodPost, "/api/admin/events", testAPIKey,
			`{"userId":"u5","type":"withdrawal_approved","amount":"0.50000"}`)
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		last := h.events.Events[len(h.events.Events)-1]
		if last.Type != model.EventWithdrawalApproved || last.UserID != "u5" || last.Amount != "0.50000" {
			t.Errorf("event = %+v", last)
		}
	})

	t.Run("publish event rejects bad input", func(t *testing.T) {
		cases := map[string]string{
			"unknown type":      `{"userId":"u5","type":"bogus"}`,
			"handshake type":    `{"userId":"u5","type":"connected"}`,
			"missing amount":    `{"userId":"u5","type":"ad_reward"}`,
			"malformed payload": `{`,
		}
		for name, body := range cases {
			if resp, _ := h.do(t, http.MethodPost, "/api/admin/events", testAPIKey, body); resp.StatusCode != http.StatusBadRequest {
				t.Errorf("%s: status = %d", name, resp.StatusCode)
			}
		}
	})

	t.Run("retiring a promotion cancels pending claims", func(t *testing.T) {
		bodies := []string{
			`{"userId":"u5","type":"task_removed","promotionId":"p1"}`,
			`{"userId":"u5","type":"task_deleted","title":"Ad","refunded":true,"refundAmount":"0.01000","promotionId":"p2"}`,
			`{"userId":"u5","type":"promotion_rejected","title":"Ad","promotionId":"p3"}`,
			`{"userId":"u5","type":"promotion_approved","title":"Ad","promotionId":"p4"}`,
			`{"userId":"u5","type":"promotion_rejected","title":"Ad"}`,
		}
		for _, body := range bodies {
			if resp, _ := h.do(t, http.MethodPost, "/api/admin/events", testAPIKey, body); resp.StatusCode != http.StatusAccepted {
				t.Fatalf("%s: status = %d", body, resp.StatusCode)
			}
		}
		want := []string{"p1", "p2", "p3"}
		if strings.Join(h.claims.cancelled, ",") != strings.Join(want, ",") {
			t.Errorf("cancelled = %v, want %v", h.claims.cancelled, want)
		}
	})

	t.Run("invalid events cancel nothing", func(t *testing.T) {
		before := len(h.claims.cancelled)
		resp, _ := h.do(t, http.MethodPost, "/api/admin/events", testAPIKey, `{"type":"task_removed","promotionId":"p9"}`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d", resp.StatusCode)
		}
		if len(h.claims.cancelled) != before {
			t.Errorf("cancelled = %v", h.claims.cancelled)
		}
	})

	t.Run("publish transport failure", func(t *testing.T) {
		h.events.PublishFunc = func(context.Context, model.OutboundEvent) error { return domain.ErrTransport }
		defer func() { h.events.PublishFunc = nil }()
		resp, _ := h.do(t, http.MethodPost, "/api/admin/events", testAPIKey, `{"userId":"u5","type":"reward","amount":"1"}`)
		if resp.StatusCode != http.StatusBadGateway {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})
}

func TestRoutes(t *testing.T) {
	h := newHarness(t)

	t.Run("healthz", func(t *testing.T) {
		resp, body := h.do(t, http.MethodGet, "/healthz", "", "")
		if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
			t.Errorf("status=%d body=%v", resp.StatusCode, body)
		}
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(h.ts.URL + "/metrics")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})

	t.Run("ws is routed to the push gateway", func(t *testing.T) {
		if resp, _ := h.do(t, http.MethodGet, "/ws", "", ""); resp.StatusCode != http.StatusTeapot {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})

	t.Run("webhook secret", func(t *testing.T) {
		if resp, _ := h.do(t, http.MethodPost, "/telegram/webhook/wrong", "", "{}"); resp.StatusCode != http.StatusNotFound {
			t.Errorf("wrong secret status = %d", resp.StatusCode)
		}
		if resp, _ := h.do(t, http.MethodPost, "/telegram/webhook/hook-secret", "", "{}"); resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d", resp.StatusCode)
		}
		if h.webhookHit != 1 {
			t.Errorf("webhook handler hit %d times", h.webhookHit)
		}
	})

	t.Run("recovers panics", func(t *testing.T) {
		h.srv.Stats = nil
		defer func() { h.srv.Stats = MockStatsUC{} }()
		if resp, _ := h.do(t, http.MethodGet, "/api/admin/stats", testAPIKey, ""); resp.StatusCode != http.StatusInternalServerError {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})
}
