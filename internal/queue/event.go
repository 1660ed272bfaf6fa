// Package queue defines message payloads exchanged over the message broker.
package queue

// OrderPaidQueue is the durable queue carrying OrderPaidEvent messages.
const OrderPaidQueue = "order.paid"

// OrderPaidEvent is published once an order is paid and its tickets are
// issued.  It carries enough for downstream consumers to notify the buyer
// without querying the primary database.
type OrderPaidEvent struct {
	OrderID     uint64   `json:"order_id"`
	UserID      uint64   `json:"user_id"`
	UserEmail   string   `json:"user_email"`
	EventID     uint64   `json:"event_id"`
	EventTitle  string   `json:"event_title"`
	StartsAt    string   `json:"starts_at"`
	Venue       string   `json:"venue"`
	Provider    string   `json:"provider"`
	TotalCents  uint32   `json:"total_cents"`
	Currency    string   `json:"currency"`
	TicketCodes []string `json:"ticket_codes"`
	PaidAt      string   `json:"paid_at"`
}
