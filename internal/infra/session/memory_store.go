package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lightning-sats-bot/internal/domain"
	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/domain/ports/repository"
)

var _ repository.SessionStore = (*MemoryStore)(nil)

// MemoryStore keeps conversation sessions in process memory.
// Values are copied on the way in and out.
type MemoryStore struct {
	mu      sync.RWMutex
	byChat  map[int64]*model.ConversationSession
	idleTTL time.Duration
	now     func() time.Time
}

// NewMemoryStore returns a store; idleTTL <= 0 keeps sessions until cleared.
func NewMemoryStore(idleTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		byChat:  make(map[int64]*model.ConversationSession),
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, chatID int64) (*model.ConversationSession, error) {
	s.mu.RLock()
	sess, ok := s.byChat[chatID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if s.expired(sess) {
		s.mu.Lock()
		if cur, ok := s.byChat[chatID]; ok && cur == sess {
			delete(s.byChat, chatID)
		}
		s.mu.Unlock()
		return nil, nil
	}
	return sess.Clone(), nil
}

func (s *MemoryStore) Set(ctx context.Context, sess *model.ConversationSession) error {
	if !sess.Valid() {
		return fmt.Errorf("%w: invalid session", domain.ErrInvalidSession)
	}
	c := sess.Clone()
	c.UpdatedAt = s.now()
	s.mu.Lock()
	s.byChat[c.ChatID] = c
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, chatID int64) error {
	s.mu.Lock()
	delete(s.byChat, chatID)
	s.mu.Unlock()
	return nil
}

// Len reports the number of stored sessions, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byChat)
}

// Sweep drops idle sessions and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	if s.idleTTL <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.byChat {
		if s.expired(sess) {
			delete(s.byChat, id)
			n++
		}
	}
	return n
}

func (s *MemoryStore) expired(sess *model.ConversationSession) bool {
	return s.idleTTL > 0 && s.now().Sub(sess.UpdatedAt) > s.idleTTL
}
