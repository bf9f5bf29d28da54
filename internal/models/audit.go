package models

import "time"

// TransitionAudit is one row of the board's transition history.
type TransitionAudit struct {
	OrderID    string    `json:"order_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	Recorded   time.Time `json:"recorded_at"`
}
