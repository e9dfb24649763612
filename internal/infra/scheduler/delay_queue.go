package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"lightning-sats-bot/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

var _ adapter.DelayScheduler = (*DelayQueue)(nil)

// DelayQueue runs keyed one-shot tasks after a delay. Scheduling a key that is
// already pending replaces the old task; a cancelled task never runs.
type DelayQueue struct {
	mu      sync.Mutex
	pending map[string]*delayed
	seq     uint64
	stopped bool
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	log    *zerolog.Logger
}

type delayed struct {
	gen   uint64
	timer *time.Timer
}

// NewDelayQueue derives the context handed to tasks from parent.
func NewDelayQueue(parent context.Context, logger *zerolog.Logger) *DelayQueue {
	ctx, cancel := context.WithCancel(parent)
	l := logger.With().Str("component", "DelayQueue").Logger()
	return &DelayQueue{
		pending: make(map[string]*delayed),
		ctx:     ctx,
		cancel:  cancel,
		log:     &l,
	}
}

func (q *DelayQueue) Schedule(key string, delay time.Duration, task func(ctx context.Context)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		q.log.Warn().Str("key", key).Msg("Schedule after stop ignored")
		return
	}
	if old, ok := q.pending[key]; ok {
		old.timer.Stop()
	}
	q.seq++
	gen := q.seq
	d := &delayed{gen: gen}
	d.timer = time.AfterFunc(delay, func() { q.fire(key, gen, task) })
	q.pending[key] = d
}

func (q *DelayQueue) fire(key string, gen uint64, task func(ctx context.Context)) {
	q.mu.Lock()
	cur, ok := q.pending[key]
	// A replaced or cancelled timer may still fire if Stop lost the race.
	if !ok || cur.gen != gen || q.stopped {
		q.mu.Unlock()
		return
	}
	delete(q.pending, key)
	q.wg.Add(1)
	q.mu.Unlock()

	defer q.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			q.log.Error().Interface("panic", r).Str("key", key).Msg("Delayed task panicked")
		}
	}()
	task(q.ctx)
}

func (q *DelayQueue) Cancel(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	d, ok := q.pending[key]
	if !ok {
		return false
	}
	d.timer.Stop()
	delete(q.pending, key)
	return true
}

func (q *DelayQueue) CancelPrefix(prefix string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for key, d := range q.pending {
		if strings.HasPrefix(key, prefix) {
			d.timer.Stop()
			delete(q.pending, key)
			n++
		}
	}
	return n
}

// Pending is the number of tasks waiting to fire.
func (q *DelayQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Stop drops pending tasks, cancels the task context and waits for running tasks.
func (q *DelayQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	for key, d := range q.pending {
		d.timer.Stop()
		delete(q.pending, key)
	}
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
	q.log.Info().Msg("Delay queue stopped")
}
