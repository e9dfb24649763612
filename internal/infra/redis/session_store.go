package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lightning-sats-bot/internal/domain"
	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

var _ repository.SessionStore = (*SessionStore)(nil)

// SessionStore keeps conversation sessions in Redis so several bot instances
// can share them.
type SessionStore struct {
	client RedisClient
	ttl    time.Duration
}

// NewSessionStore returns a store; ttl <= 0 keeps sessions until cleared.
func NewSessionStore(client RedisClient, ttl time.Duration) *SessionStore {
	if ttl < 0 {
		ttl = 0
	}
	return &SessionStore{client: client, ttl: ttl}
}

func sessionKey(chatID int64) string {
	return fmt.Sprintf("conv_session:%d", chatID)
}

func (s *SessionStore) Set(ctx context.Context, sess *model.ConversationSession) error {
	if !sess.Valid() {
		return fmt.Errorf("%w: invalid session", domain.ErrInvalidSession)
	}
	c := sess.Clone()
	c.UpdatedAt = time.Now()
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKey(c.ChatID), data, s.ttl)
}

func (s *SessionStore) Get(ctx context.Context, chatID int64) (*model.ConversationSession, error) {
	data, err := s.client.Get(ctx, sessionKey(chatID))
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var sess model.ConversationSession
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, err
	}
	if !sess.Valid() {
		// Written by an incompatible version; treat as absent.
		_ = s.client.Del(ctx, sessionKey(chatID))
		return nil, nil
	}
	return &sess, nil
}

func (s *SessionStore) Clear(ctx context.Context, chatID int64) error {
	return s.client.Del(ctx, sessionKey(chatID))
}
