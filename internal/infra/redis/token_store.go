package redis

import (
	"context"
	"time"
)

// TokenStore records consumed push session token ids so a token works once
// across every instance.
type TokenStore struct {
	client RedisClient
}

func NewTokenStore(client RedisClient) *TokenStore {
	return &TokenStore{client: client}
}

// Consume marks jti used until ttl elapses. It reports false when the id was already used.
func (s *TokenStore) Consume(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return s.client.SetNX(ctx, "push_jti:"+jti, 1, ttl)
}
