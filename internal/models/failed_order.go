package models

import "time"

// Failed-order statuses. Transitions only move forward:
// pending -> retrying -> success | failed.
const (
	FailedStatusPending  = "pending"
	FailedStatusRetrying = "retrying"
	FailedStatusSuccess  = "success"
	FailedStatusFailed   = "failed"
)

// failedStatusRank orders failed-order statuses along their forward-only
// lifecycle. Unknown statuses rank below pending.
var failedStatusRank = map[string]int{
	FailedStatusPending:  1,
	FailedStatusRetrying: 2,
	FailedStatusSuccess:  3,
	FailedStatusFailed:   3,
}

// FailedStatusRank returns the lifecycle rank of a failed-order status.
func FailedStatusRank(status string) int {
	return failedStatusRank[status]
}

// IsTerminalFailedStatus reports whether no further transition is accepted.
func IsTerminalFailedStatus(status string) bool {
	return status == FailedStatusSuccess || status == FailedStatusFailed
}

// FailedOrderRecord is a row in the server-driven retry track.
type FailedOrderRecord struct {
	ID              string    `json:"id"`
	StoreRef        string    `json:"store_ref"`
	CustomerName    string    `json:"customer_name"`
	PhoneNumber     string    `json:"phone_number"`
	ExternalOrderID string    `json:"external_order_id"`
	ErrorReason     string    `json:"error_reason"`
	Status          string    `json:"status"`
	RetryCount      int       `json:"retry_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// FailedOrderQuery carries pagination and filters for the failed-order list.
// Filtering itself happens server-side; this is only the request shape.
type FailedOrderQuery struct {
	Page      int
	Limit     int
	Status    string
	StoreID   string
	Search    string
	StartDate time.Time
	EndDate   time.Time
}

// FailedOrderPage is one server-returned page of failed orders.
type FailedOrderPage struct {
	Records      []FailedOrderRecord `json:"records"`
	TotalRecords int                 `json:"total_records"`
	CurrentPage  int                 `json:"current_page"`
	PerPage      int                 `json:"per_page"`
}
