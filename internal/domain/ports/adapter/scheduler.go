package adapter

import (
	"context"
	"time"
)

// DelayScheduler runs cancellable deferred work keyed by a caller-chosen string.
// Scheduling an existing key replaces the pending task.
type DelayScheduler interface {
	Schedule(key string, delay time.Duration, task func(ctx context.Context))
	Cancel(key string) bool
	CancelPrefix(prefix string) int
}
