package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/iliyamo/ticketing-platform/internal/analytics"
	"github.com/iliyamo/ticketing-platform/internal/clock"
	"github.com/iliyamo/ticketing-platform/internal/model"
	"github.com/iliyamo/ticketing-platform/internal/repository"
)

// ViewStore records and reads event views.
type ViewStore interface {
	Record(ctx context.Context, eventID uint64, viewerKey string, at time.Time) error
	TimestampsSince(ctx context.Context, eventID uint64, since time.Time) ([]time.Time, error)
}

// SalesSource aggregates paid orders.
type SalesSource interface {
	SalesByEvent(ctx context.Context, eventID uint64) (repository.EventSales, error)
}

// CheckInCounter counts admitted tickets.
type CheckInCounter interface {
	CheckedInByEvent(ctx context.Context, eventID uint64) (int64, error)
}

// OwnedEventLookup loads an event only for its organizer.
type OwnedEventLookup interface {
	GetByIDAndOrganizer(ctx context.Context, id, organizerID uint64) (model.Event, error)
}

// AnalyticsService records event page views and builds the organizer
// dashboard report.
type AnalyticsService struct {
	events   OwnedEventLookup
	views    ViewStore
	sales    SalesSource
	checkins CheckInCounter
	clock    clock.Clock
}

// NewAnalyticsService wires an AnalyticsService.
func NewAnalyticsService(events OwnedEventLookup, views ViewStore, sales SalesSource, checkins CheckInCounter, clk clock.Clock) *AnalyticsService {
	if clk == nil {
		clk = clock.System()
	}
	return &AnalyticsService{events: events, views: views, sales: sales, checkins: checkins, clock: clk}
}

// ViewerKey hashes whatever identifies a viewer so raw addresses are
// never stored.
func ViewerKey(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:16])
}

// RecordView stores one view of eventID by the viewer identified by
// identity.
func (s *AnalyticsService) RecordView(ctx context.Context, eventID uint64, identity string) error {
	return s.views.Record(ctx, eventID, ViewerKey(identity), s.clock.Now())
}

// Report is the organizer dashboard payload for one event.
type Report struct {
	EventID      uint64               `json:"event_id"`
	Days         int                  `json:"days"`
	Daily        []analytics.DayCount `json:"daily"`
	Views        int                  `json:"views"`
	Orders       int64                `json:"orders"`
	TicketsSold  int64                `json:"tickets_sold"`
	RevenueCents int64                `json:"revenue_cents"`
	CheckedIn    int64                `json:"checked_in"`
}

// EventReport builds the report of eventID over the last days days.  The
// window is clamped to what the dashboard supports.
func (s *AnalyticsService) EventReport(ctx context.Context, organizerID, eventID uint64, days int) (Report, error) {
	if _, err := s.events.GetByIDAndOrganizer(ctx, eventID, organizerID); err != nil {
		return Report{}, err
	}
	days = analytics.ClampDays(days)
	now := s.clock.Now()

	ts, err := s.views.TimestampsSince(ctx, eventID, analytics.WindowStart(now, days))
	if err != nil {
		return Report{}, err
	}
	sales, err := s.sales.SalesByEvent(ctx, eventID)
	if err != nil {
		return Report{}, err
	}
	checked, err := s.checkins.CheckedInByEvent(ctx, eventID)
	if err != nil {
		return Report{}, err
	}

	daily := analytics.DailyViews(now, days, ts)
	return Report{
		EventID:      eventID,
		Days:         days,
		Daily:        daily,
		Views:        analytics.Total(daily),
		Orders:       sales.Orders,
		TicketsSold:  sales.TicketsSold,
		RevenueCents: sales.RevenueCents,
		CheckedIn:    checked,
	}, nil
}
