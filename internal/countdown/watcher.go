// Package countdown runs the single shared ticking clock behind every
// retry-lock countdown. One ticker serves all locked cards; it only runs
// while at least one locked order is on the board.
package countdown

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"fulfillment-board/internal/board"
	"fulfillment-board/internal/retrylock"
	"fulfillment-board/internal/telemetry"
)

// TickFunc receives the derived lock states on every shared tick.
type TickFunc func(now time.Time, locks map[string]retrylock.Lock)

// Watcher re-derives lock displays from the board cache on a shared ticker.
// Derivation never mutates retry state.
type Watcher struct {
	cache    *board.Cache
	interval time.Duration
	wake     chan struct{}
	nowFunc  func() time.Time

	mu       sync.Mutex
	displays map[string]retrylock.Lock
	subs     map[string]TickFunc
}

// NewWatcher builds a watcher ticking at interval (normally one second).
func NewWatcher(cache *board.Cache, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = time.Second
	}
	return &Watcher{
		cache:    cache,
		interval: interval,
		wake:     make(chan struct{}, 1),
		nowFunc:  time.Now,
		displays: make(map[string]retrylock.Lock),
		subs:     make(map[string]TickFunc),
	}
}

// SetNowFunc overrides the clock source, for tests.
func (w *Watcher) SetNowFunc(now func() time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nowFunc = now
}

// Subscribe registers fn for every shared tick and returns an unsubscribe
// func. All subscribers share the one ticker.
func (w *Watcher) Subscribe(fn TickFunc) func() {
	id := uuid.New().String()
	w.mu.Lock()
	w.subs[id] = fn
	w.mu.Unlock()
	return func() {
		w.mu.Lock()
		delete(w.subs, id)
		w.mu.Unlock()
	}
}

// Wake nudges an idle watcher after a cache change may have introduced a
// locked order. Safe to call from any goroutine; never blocks.
func (w *Watcher) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Displays returns the lock states derived on the most recent tick.
func (w *Watcher) Displays() map[string]retrylock.Lock {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]retrylock.Lock, len(w.displays))
	for id, l := range w.displays {
		out[id] = l
	}
	return out
}

// Run drives the shared ticker until ctx is cancelled. While no locked order
// remains the ticker is stopped and the watcher sleeps until woken.
func (w *Watcher) Run(ctx context.Context) error {
	w.tick()
	for {
		if w.cache.LockedCount() == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-w.wake:
				w.tick()
				continue
			}
		}

		ticker := time.NewTicker(w.interval)
		for w.cache.LockedCount() > 0 {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return ctx.Err()
			case <-ticker.C:
				w.tick()
			case <-w.wake:
				w.tick()
			}
		}
		ticker.Stop()
		// One last derivation so expired locks read "available now".
		w.tick()
	}
}

func (w *Watcher) tick() {
	w.mu.Lock()
	now := w.nowFunc()
	w.mu.Unlock()

	locks := w.cache.Locks(now)
	lockedCount := 0
	for _, l := range locks {
		if l.Locked {
			lockedCount++
		}
	}
	telemetry.LockedOrdersGauge.Set(float64(lockedCount))

	w.mu.Lock()
	w.displays = locks
	fns := make([]TickFunc, 0, len(w.subs))
	for _, fn := range w.subs {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn(now, locks)
	}
}
