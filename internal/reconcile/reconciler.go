// Package reconcile merges pushed partial updates into the locally cached
// views by id, without disturbing unrelated records or forcing a re-fetch.
package reconcile

import (
	"fulfillment-board/internal/board"
	"fulfillment-board/internal/failedlist"
	"fulfillment-board/internal/models"
	"fulfillment-board/internal/push"
	"fulfillment-board/internal/telemetry"
)

// Reconciler is the only writer allowed to update records it did not
// originate locally. It patches the failed-order page and, when the id is
// also on the board, the board cache.
type Reconciler struct {
	list  *failedlist.Cache
	board *board.Cache
}

// New builds a reconciler over both caches. board may be nil when only the
// failed-order list is live.
func New(list *failedlist.Cache, b *board.Cache) *Reconciler {
	return &Reconciler{list: list, board: b}
}

// Apply merges one push event and reports whether anything was patched.
//
// Merge policy:
//   - only FAILED_ORDER_UPDATE events are consumed;
//   - a record absent from the current page is not queued: the next explicit
//     fetch picks the new state up;
//   - records already in a terminal state are left alone;
//   - the failed-order lifecycle only moves forward, so a patch whose status
//     ranks below the current one, or whose attempt count regresses within
//     the same rank, is stale and ignored.
//
// The patch is a pure field overwrite, so re-applying the same event is a
// no-op beyond the first application.
func (r *Reconciler) Apply(ev push.Event) bool {
	if ev.Type != push.EventFailedOrderUpdate {
		telemetry.PushDropped.Inc()
		return false
	}
	p := ev.Payload

	rec, onPage := r.list.Get(p.FailureID)
	if !onPage {
		telemetry.PushDropped.Inc()
		return false
	}
	if models.IsTerminalFailedStatus(rec.Status) {
		telemetry.PushDropped.Inc()
		return false
	}

	newRank, curRank := models.FailedStatusRank(p.Status), models.FailedStatusRank(rec.Status)
	if newRank < curRank || (newRank == curRank && p.Attempts < rec.RetryCount) {
		telemetry.PushDropped.Inc()
		return false
	}

	patched := r.list.ApplyPatch(p.FailureID, p.Status, p.Attempts)
	if r.board != nil {
		r.board.Patch(p.FailureID, p.Status, p.Attempts)
	}
	if patched {
		telemetry.PushApplied.Inc()
	}
	return patched
}
