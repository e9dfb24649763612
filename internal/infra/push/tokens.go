package push

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lightning-sats-bot/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const sessionPurpose = "push"

// JTIStore remembers consumed token ids. Consume reports false when jti was seen before.
type JTIStore interface {
	Consume(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}

// MemoryJTIStore is the single-instance JTIStore.
type MemoryJTIStore struct {
	mu   sync.Mutex
	used map[string]time.Time
	now  func() time.Time
}

func NewMemoryJTIStore() *MemoryJTIStore {
	return &MemoryJTIStore{used: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryJTIStore) Consume(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, exp := range s.used {
		if now.After(exp) {
			delete(s.used, id)
		}
	}
	if _, seen := s.used[jti]; seen {
		return false, nil
	}
	s.used[jti] = now.Add(ttl)
	return true, nil
}

type SessionClaims struct {
	Purpose string `json:"pur"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and redeems the short-lived tokens a web client presents on the push socket.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	store  JTIStore
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration, store JTIStore) *TokenIssuer {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, store: store, now: time.Now}
}

func (t *TokenIssuer) TTL() time.Duration { return t.ttl }

// Issue returns a signed token for userID.
func (t *TokenIssuer) Issue(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: empty user id", domain.ErrInvalidArgument)
	}
	now := t.now()
	claims := SessionClaims{
		Purpose: sessionPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Redeem validates token and consumes its id; a token is accepted at most once.
func (t *TokenIssuer) Redeem(ctx context.Context, token string) (string, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: invalid session token", domain.ErrAuth)
	}
	if claims.Purpose != sessionPurpose || claims.Subject == "" || claims.ID == "" {
		return "", fmt.Errorf("%w: not a session token", domain.ErrAuth)
	}
	ok, err := t.store.Consume(ctx, claims.ID, t.ttl)
	if err != nil {
		return "", fmt.Errorf("consume session token: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("%w: session token already used", domain.ErrAuth)
	}
	return claims.Subject, nil
}
