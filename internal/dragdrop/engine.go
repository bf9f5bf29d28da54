// Package dragdrop turns finished drag gestures into board mutations: a
// status transition when the card lands on another column, a positional
// reorder when it lands on a card of the same status.
package dragdrop

import (
	"context"
	"errors"
	"sync"

	"fulfillment-board/internal/board"
	"fulfillment-board/internal/models"
	"fulfillment-board/internal/telemetry"
)

var (
	// ErrDragActive means a second gesture started while one is in flight.
	// Only one drag may be active per board instance.
	ErrDragActive = errors.New("another drag gesture is already active")
	// ErrNoDrag means Drop was called without a matching BeginDrag.
	ErrNoDrag = errors.New("no active drag gesture for order")
)

// TargetKind says what the gesture ended over.
type TargetKind string

const (
	TargetColumn TargetKind = "column"
	TargetCard   TargetKind = "card"
)

// DropTarget resolves where the card was released. Status is set for column
// drops, CardID for card drops.
type DropTarget struct {
	Kind   TargetKind
	Status string
	CardID string
}

// NoticeKind classifies engine notifications to the initiating actor.
type NoticeKind string

const (
	NoticeBlocked    NoticeKind = "blocked"
	NoticeConfirmed  NoticeKind = "confirmed"
	NoticeRolledBack NoticeKind = "rolled_back"
)

// Notification is surfaced to the actor; none of these are system failures.
type Notification struct {
	OrderID string
	Kind    NoticeKind
	Err     error
}

// StatusPersister sends the confirmed transition to the external order
// service. The engine never blocks the gesture on it.
type StatusPersister interface {
	PersistStatus(ctx context.Context, orderID, status string) error
}

// Engine coordinates one drag gesture at a time against the board cache.
type Engine struct {
	cache   *board.Cache
	persist StatusPersister
	notify  func(Notification)

	mu     sync.Mutex
	active string
	wg     sync.WaitGroup
}

// New builds an engine. notify may be nil when the caller does not care
// about actor-facing notices.
func New(cache *board.Cache, persist StatusPersister, notify func(Notification)) *Engine {
	if notify == nil {
		notify = func(Notification) {}
	}
	return &Engine{cache: cache, persist: persist, notify: notify}
}

// BeginDrag claims the single drag slot for orderID. A locked order is
// refused immediately, before any drop target exists.
func (e *Engine) BeginDrag(orderID string) error {
	locked, err := e.cache.Locked(orderID)
	if err != nil {
		return err
	}
	if locked {
		telemetry.MovesBlocked.Inc()
		e.notify(Notification{OrderID: orderID, Kind: NoticeBlocked, Err: board.ErrLocked})
		return board.ErrLocked
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != "" {
		return ErrDragActive
	}
	e.active = orderID
	return nil
}

// EndDrag releases the drag slot without a drop (gesture cancelled).
func (e *Engine) EndDrag(orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == orderID {
		e.active = ""
	}
}

// Drop resolves the target and applies the mutation optimistically. For a
// status change the cache is updated synchronously and the confirmation
// request runs in the background; on failure the move is rolled back to the
// last-confirmed snapshot and the actor notified.
func (e *Engine) Drop(ctx context.Context, orderID string, target DropTarget) (models.Order, error) {
	e.mu.Lock()
	if e.active != orderID {
		e.mu.Unlock()
		return models.Order{}, ErrNoDrag
	}
	e.active = ""
	e.mu.Unlock()

	// Re-check the lock at drop time; the cool-down may have started while
	// the gesture was in flight.
	locked, err := e.cache.Locked(orderID)
	if err != nil {
		return models.Order{}, err
	}
	if locked {
		telemetry.MovesBlocked.Inc()
		e.notify(Notification{OrderID: orderID, Kind: NoticeBlocked, Err: board.ErrLocked})
		return models.Order{}, board.ErrLocked
	}

	targetStatus := target.Status
	if target.Kind == TargetCard {
		card, ok := e.cache.Get(target.CardID)
		if !ok {
			return models.Order{}, board.ErrNotFound
		}
		dragged, ok := e.cache.Get(orderID)
		if !ok {
			return models.Order{}, board.ErrNotFound
		}
		if dragged.Status == card.Status {
			// Same column: pure reorder, nothing to persist.
			if err := e.cache.Reorder(orderID, target.CardID); err != nil {
				return models.Order{}, err
			}
			return dragged, nil
		}
		targetStatus = card.Status
	}

	updated, err := e.cache.Move(orderID, targetStatus)
	if err != nil {
		return models.Order{}, err
	}
	telemetry.MovesApplied.Inc()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.persist.PersistStatus(ctx, orderID, targetStatus); err != nil {
			telemetry.MovesRolledBack.Inc()
			if _, rbErr := e.cache.Rollback(orderID); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
			e.notify(Notification{OrderID: orderID, Kind: NoticeRolledBack, Err: err})
			return
		}
		_ = e.cache.Confirm(orderID)
		e.notify(Notification{OrderID: orderID, Kind: NoticeConfirmed})
	}()

	return updated, nil
}

// Wait blocks until in-flight confirmations settle. Used by tests and
// shutdown.
func (e *Engine) Wait() {
	e.wg.Wait()
}
