package repository

import (
	"context"

	"lightning-sats-bot/internal/domain/model"
)

// SessionStore holds at most one ConversationSession per chat.
// Get returns (nil, nil) when no session exists.
type SessionStore interface {
	Get(ctx context.Context, chatID int64) (*model.ConversationSession, error)
	Set(ctx context.Context, sess *model.ConversationSession) error
	Clear(ctx context.Context, chatID int64) error
}

// ChatLocker serializes read-modify-write of one chat's session.
type ChatLocker interface {
	Lock(ctx context.Context, chatID int64) (unlock func(), err error)
}
