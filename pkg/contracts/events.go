package contracts

import "time"

// Event is the audit record published after every reservation workflow run.
type Event struct {
	EventID   string         `json:"event_id"`
	OrderID   string         `json:"order_id"`
	CreatedAt time.Time      `json:"created_at"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
}

const (
	EventReservationConfirmed = "reservation.confirmed"
	EventReservationPending   = "reservation.pending"
	EventReservationRejected  = "reservation.rejected"
	EventReservationFailed    = "reservation.failed"
	EventNotificationFailed   = "notification.failed"
	EventChaosToggled         = "chaos.toggled"
)
