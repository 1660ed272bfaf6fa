package model

import "time"

// Event statuses.  Only PUBLISHED events are visible in discovery and can
// be sold.  CANCELLED events keep their orders for refunds and reporting.
const (
	EventDraft     = "DRAFT"
	EventPublished = "PUBLISHED"
	EventCancelled = "CANCELLED"
)

// Event represents something an organizer sells tickets for.  It
// corresponds to a row in the `events` table.
//
// Fields:
//  ID          – primary key identifier.
//  OrganizerID – user ID of the organizer who owns the event.
//  Title       – display title.
//  Description – free text shown on the event page.
//  Venue       – venue name.
//  City        – city used for discovery filters.
//  Category    – free-form category (music, theatre, sports...).
//  StartsAt    – when the event begins (UTC).
//  EndsAt      – when the event ends (UTC, after StartsAt).
//  Status      – DRAFT, PUBLISHED or CANCELLED.
//  ImageURL    – optional banner image.
type Event struct {
	ID          uint64    `json:"id"`
	OrganizerID uint64    `json:"organizer_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Venue       string    `json:"venue"`
	City        string    `json:"city"`
	Category    string    `json:"category"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Status      string    `json:"status"`
	ImageURL    *string   `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TicketType is a priced lot of tickets for an event ("Inteira",
// "Meia-entrada", "VIP - 1º lote").  QuantitySold never exceeds
// QuantityTotal; the checkout increments it under a row lock.
type TicketType struct {
	ID            uint64     `json:"id"`
	EventID       uint64     `json:"event_id"`
	Name          string     `json:"name"`
	PriceCents    uint32     `json:"price_cents"`
	QuantityTotal uint32     `json:"quantity_total"`
	QuantitySold  uint32     `json:"quantity_sold"`
	SalesStart    *time.Time `json:"sales_start,omitempty"`
	SalesEnd      *time.Time `json:"sales_end,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Remaining returns how many tickets of this type can still be sold.
func (t TicketType) Remaining() uint32 {
	if t.QuantitySold >= t.QuantityTotal {
		return 0
	}
	return t.QuantityTotal - t.QuantitySold
}

// OnSale reports whether the sales window is open at now.  Unset bounds
// are treated as open.
func (t TicketType) OnSale(now time.Time) bool {
	if t.SalesStart != nil && now.Before(*t.SalesStart) {
		return false
	}
	if t.SalesEnd != nil && !now.Before(*t.SalesEnd) {
		return false
	}
	return true
}
