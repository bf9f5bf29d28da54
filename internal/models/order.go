package models

import (
	"fmt"
	"time"
)

// Board statuses, one column each on the fulfillment board.
const (
	StatusNew         = "new"
	StatusUnderReview = "under_review"
	StatusPreparing   = "preparing"
	StatusReady       = "ready"
	StatusShipped     = "shipped"
	StatusDelivered   = "delivered"
	StatusCancelled   = "cancelled"
)

// BoardStatuses lists every legal board status in column order. Operators may
// move orders backward (e.g. shipped -> preparing), so no status is terminal.
var BoardStatuses = []string{
	StatusNew,
	StatusUnderReview,
	StatusPreparing,
	StatusReady,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
}

// Order priorities. Advisory only; they never gate a transition.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// IsBoardStatus reports whether s is one of the fixed board statuses.
func IsBoardStatus(s string) bool {
	for _, known := range BoardStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// RetryState tracks the automatic-retry cool-down attached to an order.
type RetryState struct {
	MaxAttempts     int       `json:"max_attempts"`
	CurrentAttempt  int       `json:"current_attempt"`
	IntervalMinutes int       `json:"interval_minutes"`
	LastAttemptTime time.Time `json:"last_attempt_time"`
	NextAttemptTime time.Time `json:"next_attempt_time"`
}

// Normalize derives NextAttemptTime from LastAttemptTime and the interval.
func (r *RetryState) Normalize() {
	r.NextAttemptTime = r.LastAttemptTime.Add(time.Duration(r.IntervalMinutes) * time.Minute)
}

// Validate checks the retry-state invariants.
func (r *RetryState) Validate() error {
	if r.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be > 0, got %d", r.MaxAttempts)
	}
	if r.CurrentAttempt < 0 || r.CurrentAttempt > r.MaxAttempts {
		return fmt.Errorf("current_attempt %d outside [0, %d]", r.CurrentAttempt, r.MaxAttempts)
	}
	if r.IntervalMinutes <= 0 {
		return fmt.Errorf("interval_minutes must be > 0, got %d", r.IntervalMinutes)
	}
	want := r.LastAttemptTime.Add(time.Duration(r.IntervalMinutes) * time.Minute)
	if !r.NextAttemptTime.Equal(want) {
		return fmt.Errorf("next_attempt_time %s != last_attempt_time + interval (%s)",
			r.NextAttemptTime.Format(time.RFC3339), want.Format(time.RFC3339))
	}
	return nil
}

// Order is a single card on the fulfillment board. Descriptive fields are
// owned by the external order service; only Status is mutated here.
type Order struct {
	ID             string      `json:"id"`
	DisplayNumber  string      `json:"display_number"`
	CustomerName   string      `json:"customer_name"`
	PhoneNumber    string      `json:"phone_number"`
	City           string      `json:"city"`
	ProductSummary string      `json:"product_summary"`
	Status         string      `json:"status"`
	Priority       string      `json:"priority"`
	AssignedDate   time.Time   `json:"assigned_date"`
	TodoCompleted  bool        `json:"todo_completed"`
	RetryState     *RetryState `json:"retry_state,omitempty"`
}
