package model

import "time"

// Ticket statuses.
const (
	TicketValid     = "VALID"
	TicketUsed      = "USED"
	TicketCancelled = "CANCELLED"
)

// Ticket is a single admission issued when an order is paid.  Code is the
// random identifier embedded (signed) in the QR payload.
type Ticket struct {
	ID           uint64     `json:"id"`
	OrderID      uint64     `json:"order_id"`
	EventID      uint64     `json:"event_id"`
	TicketTypeID uint64     `json:"ticket_type_id"`
	UserID       uint64     `json:"user_id"`
	Code         string     `json:"code"`
	Status       string     `json:"status"`
	CheckedInAt  *time.Time `json:"checked_in_at,omitempty"`
	CheckedInBy  *uint64    `json:"checked_in_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TicketView joins a ticket with the event and type names for the
// customer dashboard.
type TicketView struct {
	Ticket
	EventTitle     string    `json:"event_title"`
	EventStartsAt  time.Time `json:"event_starts_at"`
	Venue          string    `json:"venue"`
	TicketTypeName string    `json:"ticket_type_name"`
}
