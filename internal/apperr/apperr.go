// Package apperr defines the stable error taxonomy of the reservation
// workflow. Business rejections, infrastructure failures and timeouts carry
// distinct kinds so callers can tell "rejected" from "try later" from
// "broken".
package apperr

import (
	"context"
	"errors"
	"net/http"
)

var (
	// Business outcomes. Terminal, never retried, never counted by the
	// circuit breaker.
	ErrSoldOut      = errors.New("sold out")
	ErrItemNotFound = errors.New("item not found")

	// Infrastructure failures.
	ErrInventoryDown        = errors.New("inventory unreachable")
	ErrPaymentTimeout       = errors.New("payment deadline exceeded")
	ErrPaymentGateway       = errors.New("payment gateway failure")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrPersistenceExhausted = errors.New("could not persist after retries")
	ErrNotificationDown     = errors.New("notification send failed")
)

// Transient reports whether a failure is worth retrying. Only the simulated
// storage flakiness qualifies; everything else is permanent for the request.
func Transient(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

func Kind(err error) string {
	switch {
	case err == nil:
		return ""

	case errors.Is(err, ErrSoldOut):
		return "sold_out"

	case errors.Is(err, ErrItemNotFound):
		return "item_not_found"

	case errors.Is(err, ErrInventoryDown):
		return "inventory_error"

	case errors.Is(err, ErrPaymentTimeout):
		return "payment_timeout"

	case errors.Is(err, ErrPaymentGateway):
		return "payment_gateway"

	case errors.Is(err, ErrPersistenceExhausted):
		return "persistence_exhausted"

	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"

	case errors.Is(err, ErrNotificationDown):
		return "notification_failed"

	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"

	case errors.Is(err, context.Canceled):
		return "canceled"

	default:
		return "internal"
	}
}

func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, ErrSoldOut):
		return http.StatusBadRequest

	case errors.Is(err, ErrItemNotFound):
		return http.StatusNotFound

	case errors.Is(err, ErrInventoryDown):
		return http.StatusServiceUnavailable

	case errors.Is(err, ErrPaymentTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	case errors.Is(err, ErrPaymentGateway):
		return http.StatusBadGateway

	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout

	default:
		return http.StatusInternalServerError
	}
}
