package board

import (
	"errors"
	"testing"
	"time"

	"fulfillment-board/internal/models"
)

var testNow = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func newTestCache(orders ...models.Order) *Cache {
	c := NewCache()
	c.SetNowFunc(func() time.Time { return testNow })
	c.Load(orders)
	return c
}

func order(id, status string) models.Order {
	return models.Order{ID: id, Status: status, DisplayNumber: "D-" + id, CustomerName: "customer " + id}
}

func lockedOrder(id, status string, remaining time.Duration) models.Order {
	o := order(id, status)
	o.RetryState = &models.RetryState{
		MaxAttempts:     3,
		CurrentAttempt:  1,
		IntervalMinutes: 5,
		LastAttemptTime: testNow.Add(remaining - 5*time.Minute),
		NextAttemptTime: testNow.Add(remaining),
	}
	return o
}

func columnIDs(c *Cache, status string) []string {
	var ids []string
	for _, o := range c.Column(status) {
		ids = append(ids, o.ID)
	}
	return ids
}

func TestMoveToColumn(t *testing.T) {
	c := newTestCache(order("1", models.StatusNew))

	got, err := c.Move("1", models.StatusPreparing)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if got.Status != models.StatusPreparing {
		t.Fatalf("status = %q, want preparing", got.Status)
	}
	if ids := columnIDs(c, models.StatusNew); len(ids) != 0 {
		t.Fatalf("new column should be empty, has %v", ids)
	}
	if ids := columnIDs(c, models.StatusPreparing); len(ids) != 1 || ids[0] != "1" {
		t.Fatalf("preparing column = %v, want [1]", ids)
	}
	if cs, _ := c.ConfirmStateOf("1"); cs != StatePending {
		t.Fatalf("confirm state = %q, want pending", cs)
	}
}

func TestMoveLockedRejected(t *testing.T) {
	c := newTestCache(lockedOrder("2", "preparing", 25*time.Second))

	for _, target := range models.BoardStatuses {
		if _, err := c.Move("2", target); !errors.Is(err, ErrLocked) {
			t.Fatalf("move to %s: err = %v, want ErrLocked", target, err)
		}
	}
	got, _ := c.Get("2")
	if got.Status != "preparing" {
		t.Fatalf("locked order status mutated to %q", got.Status)
	}
}

func TestMoveExpiredLockSucceeds(t *testing.T) {
	c := newTestCache(lockedOrder("3", models.StatusNew, -time.Second))
	if _, err := c.Move("3", models.StatusShipped); err != nil {
		t.Fatalf("expired lock should not block: %v", err)
	}
}

func TestMoveErrors(t *testing.T) {
	c := newTestCache(order("1", models.StatusNew))

	if _, err := c.Move("missing", models.StatusReady); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := c.Move("1", "warehouse"); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("err = %v, want ErrUnknownStatus", err)
	}
}

func TestMoveBackwardAllowed(t *testing.T) {
	// Operators correct mistakes by moving orders backward; nothing on the
	// board is terminal.
	c := newTestCache(order("1", models.StatusShipped))
	got, err := c.Move("1", models.StatusPreparing)
	if err != nil {
		t.Fatalf("backward move: %v", err)
	}
	if got.Status != models.StatusPreparing {
		t.Fatalf("status = %q, want preparing", got.Status)
	}
}

func TestReorderSameColumn(t *testing.T) {
	c := newTestCache(
		order("a", models.StatusReady),
		order("b", models.StatusReady),
		order("c", models.StatusReady),
	)

	if err := c.Reorder("a", "c"); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	ids := columnIDs(c, models.StatusReady)
	want := []string{"b", "c", "a"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("column = %v, want %v", ids, want)
		}
	}
	for _, id := range []string{"a", "b", "c"} {
		if o, _ := c.Get(id); o.Status != models.StatusReady {
			t.Fatalf("reorder changed status of %s to %q", id, o.Status)
		}
	}
}

func TestReorderAcrossColumnsRejected(t *testing.T) {
	c := newTestCache(order("a", models.StatusReady), order("b", models.StatusShipped))
	if err := c.Reorder("a", "b"); !errors.Is(err, ErrDifferentColumn) {
		t.Fatalf("err = %v, want ErrDifferentColumn", err)
	}
}

func TestConfirmAndRollback(t *testing.T) {
	c := newTestCache(
		order("x", models.StatusNew),
		order("y", models.StatusNew),
	)

	if _, err := c.Move("x", models.StatusReady); err != nil {
		t.Fatalf("move: %v", err)
	}
	if err := c.Confirm("x"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if cs, _ := c.ConfirmStateOf("x"); cs != StateConfirmed {
		t.Fatalf("confirm state = %q, want confirmed", cs)
	}
	if err := c.Confirm("x"); !errors.Is(err, ErrNoPending) {
		t.Fatalf("second confirm err = %v, want ErrNoPending", err)
	}

	// Second move, then roll back: must land on the confirmed state.
	if _, err := c.Move("x", models.StatusShipped); err != nil {
		t.Fatalf("move: %v", err)
	}
	restored, err := c.Rollback("x")
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if restored.Status != models.StatusReady {
		t.Fatalf("restored status = %q, want ready", restored.Status)
	}
	if cs, _ := c.ConfirmStateOf("x"); cs != StateRolledBack {
		t.Fatalf("confirm state = %q, want rolled_back", cs)
	}
	if ids := columnIDs(c, models.StatusShipped); len(ids) != 0 {
		t.Fatalf("shipped column should be empty, has %v", ids)
	}
	if ids := columnIDs(c, models.StatusReady); len(ids) != 1 || ids[0] != "x" {
		t.Fatalf("ready column = %v, want [x]", ids)
	}
}

func TestRollbackRestoresPosition(t *testing.T) {
	c := newTestCache(
		order("a", models.StatusNew),
		order("b", models.StatusNew),
		order("c", models.StatusNew),
	)

	if _, err := c.Move("b", models.StatusReady); err != nil {
		t.Fatalf("move: %v", err)
	}
	if _, err := c.Rollback("b"); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	ids := columnIDs(c, models.StatusNew)
	want := []string{"a", "b", "c"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("column = %v, want %v", ids, want)
		}
	}
}

func TestChainedMovesRollBackToLastConfirmed(t *testing.T) {
	c := newTestCache(order("a", models.StatusNew))

	if _, err := c.Move("a", models.StatusPreparing); err != nil {
		t.Fatalf("move: %v", err)
	}
	if _, err := c.Move("a", models.StatusReady); err != nil {
		t.Fatalf("move: %v", err)
	}
	restored, err := c.Rollback("a")
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if restored.Status != models.StatusNew {
		t.Fatalf("restored status = %q, want new (last confirmed)", restored.Status)
	}
}

func TestPatch(t *testing.T) {
	c := newTestCache(lockedOrder("r", models.StatusUnderReview, 30*time.Second))

	if ok := c.Patch("missing", models.StatusReady, 1); ok {
		t.Fatal("patch of absent id should be a no-op")
	}
	// The external service owns the truth; a patch lands even on a locked
	// order.
	if ok := c.Patch("r", models.StatusReady, 2); !ok {
		t.Fatal("patch should find the record")
	}
	got, _ := c.Get("r")
	if got.Status != models.StatusReady {
		t.Fatalf("status = %q, want ready", got.Status)
	}
	if got.RetryState.CurrentAttempt != 2 {
		t.Fatalf("current attempt = %d, want 2", got.RetryState.CurrentAttempt)
	}
	if got.DisplayNumber != "D-r" {
		t.Fatal("patch must not touch unrelated fields")
	}
}

func TestLockedCount(t *testing.T) {
	c := newTestCache(
		lockedOrder("1", models.StatusNew, time.Minute),
		lockedOrder("2", models.StatusNew, -time.Minute),
		order("3", models.StatusNew),
	)
	if n := c.LockedCount(); n != 1 {
		t.Fatalf("locked count = %d, want 1", n)
	}
	locked, err := c.Locked("1")
	if err != nil || !locked {
		t.Fatalf("Locked(1) = %v, %v; want true", locked, err)
	}
	if _, err := c.Locked("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLoadReplacesBoard(t *testing.T) {
	c := newTestCache(order("1", models.StatusNew), order("2", models.StatusReady))

	// A filter change drops order 2 out of the visible slice.
	c.Load([]models.Order{order("1", models.StatusNew)})
	if _, ok := c.Get("2"); ok {
		t.Fatal("order 2 should have been evicted")
	}
	if ids := columnIDs(c, models.StatusReady); len(ids) != 0 {
		t.Fatalf("ready column = %v, want empty", ids)
	}
}
