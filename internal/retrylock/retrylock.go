// Package retrylock derives lock state and countdown displays from an
// order's retry cool-down. Everything here is a pure function of its inputs;
// the retry state itself is never mutated.
package retrylock

import (
	"fmt"
	"time"

	"fulfillment-board/internal/models"
)

// DisplayAvailable is shown once the cool-down has elapsed.
const DisplayAvailable = "available now"

// Lock is the derived lock state for one order at one instant.
type Lock struct {
	Locked    bool          `json:"locked"`
	Remaining time.Duration `json:"remaining"`
	Display   string        `json:"display"`
}

// Evaluate computes the lock state for rs at now. A nil retry state means the
// order is not retry-gated and is always unlocked.
func Evaluate(now time.Time, rs *models.RetryState) Lock {
	if rs == nil {
		return Lock{Display: ""}
	}
	if !now.Before(rs.NextAttemptTime) {
		return Lock{Display: DisplayAvailable}
	}
	remaining := rs.NextAttemptTime.Sub(now)
	return Lock{
		Locked:    true,
		Remaining: remaining,
		Display:   FormatRemaining(remaining),
	}
}

// FormatRemaining renders a countdown as minutes:seconds with zero-padded
// seconds, e.g. 2:05. Sub-second remainders round up so the countdown never
// shows 0:00 while still locked.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int((d + time.Second - 1) / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// Progress returns currentAttempt/maxAttempts clamped to [0, 1].
func Progress(rs *models.RetryState) float64 {
	if rs == nil || rs.MaxAttempts <= 0 {
		return 0
	}
	p := float64(rs.CurrentAttempt) / float64(rs.MaxAttempts)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
