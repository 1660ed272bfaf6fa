// Package repository defines the MySQL data access layer and the error
// values shared across repositories.  Handlers and services match these
// with errors.Is to pick HTTP status codes.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own.  Handlers translate it into 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an update or delete cannot proceed because
// of the resource's state, such as deleting an event that already has
// orders.  Handlers translate it into 409.
var ErrConflict = errors.New("conflict")

var (
	ErrEventNotFound        = errors.New("event not found")
	ErrTicketTypeNotFound   = errors.New("ticket type not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrTicketNotFound       = errors.New("ticket not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrSoldOut means a lot does not have enough remaining tickets.
	ErrSoldOut = errors.New("not enough tickets available")
	// ErrSalesClosed means a lot is outside its sales window or the event
	// is not open for sale.
	ErrSalesClosed = errors.New("sales closed")
	// ErrStaleTransition means a conditional status update matched no row
	// because the order or ticket was no longer in the expected state.
	ErrStaleTransition = errors.New("status changed concurrently")
)
