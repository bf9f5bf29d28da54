// Package board holds the in-memory fulfillment board: an order cache keyed
// by id with positional ordering per status column, plus the transition
// rules that gate status changes behind retry locks.
package board

import (
	"errors"
	"sync"
	"time"

	"fulfillment-board/internal/models"
	"fulfillment-board/internal/retrylock"
)

var (
	// ErrNotFound means the order id is not in the cache (stale reference).
	ErrNotFound = errors.New("order not found in board cache")
	// ErrLocked means the order's retry cool-down has not elapsed.
	ErrLocked = errors.New("order is retry-locked")
	// ErrUnknownStatus means the target is outside the board enumeration.
	ErrUnknownStatus = errors.New("unknown board status")
	// ErrNoPending means Confirm/Rollback was called without a pending move.
	ErrNoPending = errors.New("no pending transition for order")
	// ErrDifferentColumn means a reorder crossed column boundaries.
	ErrDifferentColumn = errors.New("reorder requires both cards in the same column")
)

// ConfirmState tracks where an optimistic mutation stands relative to the
// external order service.
type ConfirmState string

const (
	StateConfirmed  ConfirmState = "confirmed"
	StatePending    ConfirmState = "pending"
	StateRolledBack ConfirmState = "rolled_back"
)

// snapshot is the last-confirmed record and position, kept while a
// transition awaits remote confirmation.
type snapshot struct {
	order  models.Order
	column string
	index  int
}

// Cache is the single source of truth for one board instance. All access is
// serialized by the mutex; the reconciler and the drag engine are the only
// writers.
type Cache struct {
	mu        sync.Mutex
	orders    map[string]*models.Order
	columns   map[string][]string
	confirm   map[string]ConfirmState
	snapshots map[string]snapshot
	nowFunc   func() time.Time
}

// NewCache returns an empty board cache.
func NewCache() *Cache {
	return &Cache{
		orders:    make(map[string]*models.Order),
		columns:   make(map[string][]string),
		confirm:   make(map[string]ConfirmState),
		snapshots: make(map[string]snapshot),
		nowFunc:   time.Now,
	}
}

// SetNowFunc overrides the clock source, for tests.
func (c *Cache) SetNowFunc(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nowFunc = now
}

// Load replaces the board contents, typically after a board load or filter
// change. Orders no longer matching the filter window simply fall out.
func (c *Cache) Load(orders []models.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.orders = make(map[string]*models.Order, len(orders))
	c.columns = make(map[string][]string)
	c.confirm = make(map[string]ConfirmState, len(orders))
	c.snapshots = make(map[string]snapshot)

	for i := range orders {
		o := orders[i]
		if _, dup := c.orders[o.ID]; dup {
			continue
		}
		c.orders[o.ID] = &o
		c.columns[o.Status] = append(c.columns[o.Status], o.ID)
		c.confirm[o.ID] = StateConfirmed
	}
}

// Get returns a copy of the order with the given id.
func (c *Cache) Get(id string) (models.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[id]
	if !ok {
		return models.Order{}, false
	}
	return *o, true
}

// Column returns the orders of one status column in positional order.
func (c *Cache) Column(status string) []models.Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := c.columns[status]
	out := make([]models.Order, 0, len(ids))
	for _, id := range ids {
		if o, ok := c.orders[id]; ok {
			out = append(out, *o)
		}
	}
	return out
}

// Move validates and applies a status transition. The mutation is optimistic:
// the caller is expected to confirm or roll it back once the external order
// service answers. The pre-mutation snapshot survives chained moves so a
// rollback always lands on the last-confirmed state.
func (c *Cache) Move(id, target string) (models.Order, error) {
	if !models.IsBoardStatus(target) {
		return models.Order{}, ErrUnknownStatus
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	o, ok := c.orders[id]
	if !ok {
		return models.Order{}, ErrNotFound
	}
	if lock := retrylock.Evaluate(c.nowFunc(), o.RetryState); lock.Locked {
		return models.Order{}, ErrLocked
	}

	if _, pending := c.snapshots[id]; !pending {
		c.snapshots[id] = snapshot{
			order:  *o,
			column: o.Status,
			index:  indexOf(c.columns[o.Status], id),
		}
	}

	c.columns[o.Status] = remove(c.columns[o.Status], id)
	c.columns[target] = append(c.columns[target], id)
	o.Status = target
	c.confirm[id] = StatePending
	return *o, nil
}

// Reorder moves id to targetID's index within their shared column. It is a
// pure positional change; neither status is touched.
func (c *Cache) Reorder(id, targetID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, ok := c.orders[id]
	if !ok {
		return ErrNotFound
	}
	t, ok := c.orders[targetID]
	if !ok {
		return ErrNotFound
	}
	if o.Status != t.Status {
		return ErrDifferentColumn
	}

	col := c.columns[o.Status]
	to := indexOf(col, targetID)
	col = remove(col, id)
	if to > len(col) {
		to = len(col)
	}
	col = append(col, "")
	copy(col[to+1:], col[to:])
	col[to] = id
	c.columns[o.Status] = col
	return nil
}

// Confirm marks a pending transition as persisted remotely.
func (c *Cache) Confirm(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.snapshots[id]; !ok {
		return ErrNoPending
	}
	delete(c.snapshots, id)
	c.confirm[id] = StateConfirmed
	return nil
}

// Rollback restores the last-confirmed record and position after the remote
// confirmation failed.
func (c *Cache) Rollback(id string) (models.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, ok := c.snapshots[id]
	if !ok {
		return models.Order{}, ErrNoPending
	}
	o, ok := c.orders[id]
	if !ok {
		return models.Order{}, ErrNotFound
	}

	c.columns[o.Status] = remove(c.columns[o.Status], id)
	restored := snap.order
	*o = restored

	col := c.columns[snap.column]
	at := snap.index
	if at > len(col) {
		at = len(col)
	}
	col = append(col, "")
	copy(col[at+1:], col[at:])
	col[at] = id
	c.columns[snap.column] = col

	delete(c.snapshots, id)
	c.confirm[id] = StateRolledBack
	return restored, nil
}

// ConfirmStateOf reports the confirmation state of an order's last mutation.
func (c *Cache) ConfirmStateOf(id string) (ConfirmState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.confirm[id]
	return s, ok
}

// Patch overwrites status and retry attempt count for a record updated by a
// push event. Unlike Move it bypasses lock checks: the external service owns
// the record's truth. Returns false when the id is absent.
func (c *Cache) Patch(id, status string, attempts int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[id]
	if !ok {
		return false
	}
	if o.Status != status && models.IsBoardStatus(status) {
		c.columns[o.Status] = remove(c.columns[o.Status], id)
		c.columns[status] = append(c.columns[status], id)
		o.Status = status
	}
	if o.RetryState != nil {
		o.RetryState.CurrentAttempt = attempts
	}
	return true
}

// Locked reports whether the order's retry cool-down is still running.
func (c *Cache) Locked(id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[id]
	if !ok {
		return false, ErrNotFound
	}
	return retrylock.Evaluate(c.nowFunc(), o.RetryState).Locked, nil
}

// LockedCount returns how many cached orders are currently retry-locked.
func (c *Cache) LockedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.nowFunc()
	n := 0
	for _, o := range c.orders {
		if retrylock.Evaluate(now, o.RetryState).Locked {
			n++
		}
	}
	return n
}

// Locks evaluates every retry-gated order at now, keyed by order id.
func (c *Cache) Locks(now time.Time) map[string]retrylock.Lock {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]retrylock.Lock)
	for id, o := range c.orders {
		if o.RetryState != nil {
			out[id] = retrylock.Evaluate(now, o.RetryState)
		}
	}
	return out
}

// Snapshot returns every column in positional order.
func (c *Cache) Snapshot() map[string][]models.Order {
	out := make(map[string][]models.Order, len(models.BoardStatuses))
	for _, status := range models.BoardStatuses {
		out[status] = c.Column(status)
	}
	return out
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return len(ids)
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
