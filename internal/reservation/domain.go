package reservation

// Request is the caller-supplied part of a reservation.
type Request struct {
	UserID string  `json:"user_id"`
	ItemID string  `json:"item_id"`
	Amount float64 `json:"amount"`
}

// Reservation is the durable record written once the workflow reaches the
// persistence step. Never mutated after insert.
type Reservation struct {
	OrderID string  `json:"id"`
	UserID  string  `json:"user_id"`
	ItemID  string  `json:"item_id"`
	Amount  float64 `json:"amount"`
	Status  string  `json:"status"`
}

const StatusConfirmed = "CONFIRMED"

// Outcome is the workflow result returned to the caller. Status "pending"
// is the degraded path taken when the inventory breaker is open: the order
// is accepted for manual processing instead of failing hard.
type Outcome struct {
	Status      string `json:"status"`
	OrderID     string `json:"order_id"`
	EmailStatus string `json:"email_status,omitempty"`
	Message     string `json:"message,omitempty"`
}

const (
	OutcomeSuccess = "success"
	OutcomePending = "pending"

	EmailSent   = "sent"
	EmailFailed = "failed"
)
