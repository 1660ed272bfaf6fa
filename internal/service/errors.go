package service

import (
	"errors"
	"strconv"
	"time"
)

// ValidationError reports a request that is well-formed JSON but breaks a
// business rule the caller can fix.  Handlers answer 400 with Msg.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

func invalid(msg string) error { return &ValidationError{Msg: msg} }

var (
	// ErrNotRefundable is returned for refunds of unpaid orders, orders
	// whose event already started, or orders with scanned tickets.
	ErrNotRefundable = errors.New("order cannot be refunded")
	// ErrNotCancellable is returned when cancelling a non-pending order.
	ErrNotCancellable = errors.New("only pending orders can be cancelled")
	// ErrForgedTicket is returned for QR payloads whose signature fails.
	ErrForgedTicket = errors.New("ticket signature invalid")
	// ErrEventCancelled is returned when checking in to a cancelled event.
	ErrEventCancelled = errors.New("event is cancelled")
	// ErrTicketCancelled is returned when checking in a voided ticket.
	ErrTicketCancelled = errors.New("ticket is cancelled")
	// ErrOrderNotPaid is returned when checking in a ticket whose order is
	// no longer PAID, typically while a refund is in flight.
	ErrOrderNotPaid = errors.New("ticket's order is not paid")
	// ErrPlanLimit is returned when an organizer reached the event cap of
	// their plan.
	ErrPlanLimit = errors.New("event limit of current plan reached")
	// ErrAlreadySubscribed is returned when a live subscription exists.
	ErrAlreadySubscribed = errors.New("organizer already has an active subscription")
	// ErrUnknownPlan is returned for plan codes missing from the catalog.
	ErrUnknownPlan = errors.New("unknown plan")
	// ErrBillingUnavailable is returned when Stripe is not configured.
	ErrBillingUnavailable = errors.New("billing is not configured")
)

// AlreadyCheckedInError is returned by check-in for a ticket that was
// already used.
type AlreadyCheckedInError struct {
	At time.Time
}

func (e *AlreadyCheckedInError) Error() string {
	return "ticket already checked in at " + e.At.UTC().Format(time.RFC3339)
}

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }
