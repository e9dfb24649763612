package session

import (
	"context"
	"sync"

	"lightning-sats-bot/internal/domain/ports/repository"
)

var _ repository.ChatLocker = (*KeyedMutex)(nil)

// KeyedMutex serializes work per chat. Different chats never contend.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*chatLock
}

type chatLock struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[int64]*chatLock)}
}

// Lock blocks until the chat is free or ctx is done.
func (k *KeyedMutex) Lock(ctx context.Context, chatID int64) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k.mu.Lock()
	l, ok := k.locks[chatID]
	if !ok {
		l = &chatLock{ch: make(chan struct{}, 1)}
		k.locks[chatID] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(chatID, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			k.release(chatID, l)
		})
	}, nil
}

func (k *KeyedMutex) release(chatID int64, l *chatLock) {
	k.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, chatID)
	}
	k.mu.Unlock()
}

// Len is the number of chats currently holding or waiting for a lock.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
