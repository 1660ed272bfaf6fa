package model

import "time"

// Order statuses.  PENDING is the only state a payment confirmation can
// move out of; every other transition is terminal except the refund path
// PAID -> REFUNDING -> REFUNDED (or back to PAID when the provider refuses).
// Tickets of an order that is not PAID cannot be checked in.
const (
	OrderPending   = "PENDING"
	OrderPaid      = "PAID"
	OrderRefunding = "REFUNDING"
	OrderFailed    = "FAILED"
	OrderCancelled = "CANCELLED"
	OrderExpired   = "EXPIRED"
	OrderRefunded  = "REFUNDED"
)

// Order groups the tickets a customer buys for one event in a single
// payment.
//
// Fields:
//  ID                – primary key identifier.
//  UserID            – buyer.
//  EventID           – event being purchased.
//  Status            – see the Order* constants.
//  Provider          – STRIPE, PAGARME or PAGSEGURO.
//  PaymentMethod     – CARD, PIX or BOLETO.
//  ProviderRef       – provider order / payment intent ID (nullable until the provider answers).
//  ProviderChargeRef – provider charge ID used for refunds (nullable).
//  TotalCents        – sum of item quantity * unit price.
//  Currency          – ISO currency code, lower case.
//  PaidAt            – when the payment was confirmed.
type Order struct {
	ID                uint64      `json:"id"`
	UserID            uint64      `json:"user_id"`
	EventID           uint64      `json:"event_id"`
	Status            string      `json:"status"`
	Provider          string      `json:"provider"`
	PaymentMethod     string      `json:"payment_method"`
	ProviderRef       *string     `json:"provider_ref,omitempty"`
	ProviderChargeRef *string     `json:"provider_charge_ref,omitempty"`
	TotalCents        uint32      `json:"total_cents"`
	Currency          string      `json:"currency"`
	PaidAt            *time.Time  `json:"paid_at,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
	Items             []OrderItem `json:"items,omitempty"`
}

// OrderItem is one ticket type line in an order.
type OrderItem struct {
	ID             uint64 `json:"id"`
	OrderID        uint64 `json:"order_id"`
	TicketTypeID   uint64 `json:"ticket_type_id"`
	TicketTypeName string `json:"ticket_type_name,omitempty"`
	Quantity       uint32 `json:"quantity"`
	UnitPriceCents uint32 `json:"unit_price_cents"`
}
