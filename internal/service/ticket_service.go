package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/ticketing-platform/internal/clock"
	"github.com/iliyamo/ticketing-platform/internal/model"
	"github.com/iliyamo/ticketing-platform/internal/repository"
	"github.com/iliyamo/ticketing-platform/internal/utils"
)

// TicketStore is the ticket persistence used by TicketService.
type TicketStore interface {
	ListByUser(ctx context.Context, userID uint64) ([]model.TicketView, error)
	GetByIDForUser(ctx context.Context, id, userID uint64) (model.TicketView, error)
	GetByCode(ctx context.Context, code string) (model.Ticket, error)
	CheckIn(ctx context.Context, id, operatorID uint64, at time.Time) error
}

// EventLookup loads events by ID.
type EventLookup interface {
	GetByID(ctx context.Context, id uint64) (model.Event, error)
}

// TicketService serves the buyer's tickets and their QR codes, and checks
// tickets in at the door.
type TicketService struct {
	tickets TicketStore
	events  EventLookup
	secret  string
	clock   clock.Clock
}

// NewTicketService wires a TicketService.  secret signs QR payloads.
func NewTicketService(tickets TicketStore, events EventLookup, secret string, clk clock.Clock) *TicketService {
	if clk == nil {
		clk = clock.System()
	}
	return &TicketService{tickets: tickets, events: events, secret: secret, clock: clk}
}

// List returns the buyer's tickets.
func (s *TicketService) List(ctx context.Context, userID uint64) ([]model.TicketView, error) {
	return s.tickets.ListByUser(ctx, userID)
}

// QR renders the signed payload of one of the buyer's tickets as a PNG.
func (s *TicketService) QR(ctx context.Context, userID, ticketID uint64, size int) ([]byte, error) {
	t, err := s.tickets.GetByIDForUser(ctx, ticketID, userID)
	if err != nil {
		return nil, err
	}
	if t.Status == model.TicketCancelled {
		return nil, ErrTicketCancelled
	}
	return utils.QRPNG(utils.SignTicketCode(s.secret, t.Code), size)
}

// CheckInResult is what the door scanner shows after a successful scan.
type CheckInResult struct {
	Ticket     model.Ticket `json:"ticket"`
	EventTitle string       `json:"event_title"`
}

// CheckIn admits the holder of a scanned QR payload to an event owned by
// operatorID.  Each ticket is admitted at most once.
func (s *TicketService) CheckIn(ctx context.Context, operatorID uint64, payload string) (CheckInResult, error) {
	code, err := utils.VerifyTicketPayload(s.secret, payload)
	if err != nil {
		return CheckInResult{}, ErrForgedTicket
	}
	t, err := s.tickets.GetByCode(ctx, code)
	if err != nil {
		return CheckInResult{}, err
	}
	ev, err := s.events.GetByID(ctx, t.EventID)
	if err != nil {
		return CheckInResult{}, err
	}
	if ev.OrganizerID != operatorID {
		return CheckInResult{}, repository.ErrForbidden
	}
	if ev.Status == model.EventCancelled {
		return CheckInResult{}, ErrEventCancelled
	}
	if err := ticketAdmissible(t); err != nil {
		return CheckInResult{}, err
	}

	now := s.clock.Now()
	if err := s.tickets.CheckIn(ctx, t.ID, operatorID, now); err != nil {
		if !errors.Is(err, repository.ErrStaleTransition) {
			return CheckInResult{}, err
		}
		// Either another scanner won or the order left PAID (a refund is
		// in flight).  The ticket row tells which.
		fresh, ferr := s.tickets.GetByCode(ctx, code)
		if ferr != nil {
			return CheckInResult{}, &AlreadyCheckedInError{At: now}
		}
		if aerr := ticketAdmissible(fresh); aerr != nil {
			return CheckInResult{}, aerr
		}
		return CheckInResult{}, ErrOrderNotPaid
	}
	t.Status = model.TicketUsed
	t.CheckedInAt = &now
	t.CheckedInBy = &operatorID
	return CheckInResult{Ticket: t, EventTitle: ev.Title}, nil
}

func ticketAdmissible(t model.Ticket) error {
	switch t.Status {
	case model.TicketCancelled:
		return ErrTicketCancelled
	case model.TicketUsed:
		var at time.Time
		if t.CheckedInAt != nil {
			at = *t.CheckedInAt
		}
		return &AlreadyCheckedInError{At: at}
	}
	return nil
}
