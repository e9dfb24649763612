package redis

import (
	"context"
	"fmt"
	"time"

	"lightning-sats-bot/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var _ repository.ChatLocker = (*RedisLocker)(nil)

// RedisLocker is a ChatLocker shared by every bot instance using the same Redis.
type RedisLocker struct {
	cli   *redis.Client
	ttl   time.Duration
	retry time.Duration
	log   *zerolog.Logger
}

func NewLocker(c *Client, ttl time.Duration, logger *zerolog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{cli: c.cli, ttl: ttl, retry: 50 * time.Millisecond, log: logger}
}

func chatLockKey(chatID int64) string {
	return fmt.Sprintf("chat_lock:%d", chatID)
}

// Lock polls until the chat key is acquired or ctx is done. The key expires
// after ttl so a crashed holder cannot block a chat forever.
func (l *RedisLocker) Lock(ctx context.Context, chatID int64) (func(), error) {
	key := chatLockKey(chatID)
	token := uuid.NewString()
	for {
		ok, err := l.cli.SetNX(ctx, key, token, l.ttl).Result()
		if err == nil && ok {
			break
		}
		if err != nil {
			l.log.Warn().Err(err).Int64("chat_id", chatID).Msg("Chat lock attempt failed")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
	return func() {
		// The caller's ctx may already be done; release with a fresh one.
		uctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := luaUnlock.Run(uctx, l.cli, []string{key}, token).Result(); err != nil {
			l.log.Warn().Err(err).Int64("chat_id", chatID).Msg("Chat unlock failed")
		}
	}, nil
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)
