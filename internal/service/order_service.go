package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/ticketing-platform/internal/clock"
	"github.com/iliyamo/ticketing-platform/internal/model"
	"github.com/iliyamo/ticketing-platform/internal/payment"
	"github.com/iliyamo/ticketing-platform/internal/queue"
	"github.com/iliyamo/ticketing-platform/internal/repository"
	"github.com/iliyamo/ticketing-platform/internal/utils"
)

// MaxTicketsPerOrder caps the total quantity of a single checkout.
const MaxTicketsPerOrder = 10

// CheckoutItem is one requested line: a ticket type and a quantity.
type CheckoutItem struct {
	TicketTypeID uint64 `json:"ticket_type_id"`
	Quantity     uint32 `json:"quantity"`
}

// CheckoutRequest is a buyer's purchase of tickets of one event.
type CheckoutRequest struct {
	UserID    uint64
	UserEmail string
	EventID   uint64
	Items     []CheckoutItem
	Provider  string
	Method    string
	CardToken string
	Customer  payment.Customer
}

// CheckoutResult is the created order and, for paid orders, what the
// buyer needs to complete payment.
type CheckoutResult struct {
	Order   model.Order           `json:"order"`
	Payment *payment.ChargeResult `json:"payment,omitempty"`
}

// Transactor runs fn inside one database transaction.  The transaction
// commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	InTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// InventoryStore locks, reserves and releases ticket type stock.
type InventoryStore interface {
	LockForCheckoutTx(ctx context.Context, tx *sql.Tx, ids []uint64) (map[uint64]model.TicketType, error)
	ReserveTx(ctx context.Context, tx *sql.Tx, id uint64, qty uint32) error
	ReleaseTx(ctx context.Context, tx *sql.Tx, items []model.OrderItem) error
}

// OrderStore persists orders and their conditional status transitions.
type OrderStore interface {
	CreateTx(ctx context.Context, tx *sql.Tx, o *model.Order) error
	CreateItemsBulkTx(ctx context.Context, tx *sql.Tx, orderID uint64, items []model.OrderItem) error
	GetByID(ctx context.Context, id uint64) (model.Order, error)
	GetByIDForUser(ctx context.Context, id, userID uint64) (model.Order, error)
	GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Order, error)
	GetByProviderRef(ctx context.Context, provider, ref string) (model.Order, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.Order, error)
	SetProviderRefs(ctx context.Context, id uint64, ref string, chargeRef *string) error
	SetChargeRef(ctx context.Context, id uint64, chargeRef string) error
	TransitionTx(ctx context.Context, tx *sql.Tx, id uint64, from, to string, paidAt *time.Time) error
	StalePendingIDs(ctx context.Context, cutoff time.Time, methods []string, limit int) ([]uint64, error)
}

// TicketIssuer issues and voids the tickets of an order.
type TicketIssuer interface {
	IssueTx(ctx context.Context, tx *sql.Tx, tickets []model.Ticket) error
	CancelByOrderTx(ctx context.Context, tx *sql.Tx, orderID uint64) (int64, error)
	CountUsedByOrderTx(ctx context.Context, tx *sql.Tx, orderID uint64) (int, error)
}

// UserLookup loads a user by ID.
type UserLookup interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// OrderService runs checkout and every order status transition.
// Inventory moves in the same transaction as the status change that
// causes it, and every transition is conditional on the source status.
type OrderService struct {
	tx        Transactor
	events    EventLookup
	types     InventoryStore
	orders    OrderStore
	tickets   TicketIssuer
	users     UserLookup
	gateways  payment.Registry
	publisher Publisher
	clock     clock.Clock
	currency  string
	orderTTL  time.Duration
	boletoTTL time.Duration
}

// OrderServiceDeps groups the collaborators of NewOrderService.
type OrderServiceDeps struct {
	Tx        Transactor
	Events    EventLookup
	Types     InventoryStore
	Orders    OrderStore
	Tickets   TicketIssuer
	Users     UserLookup
	Gateways  payment.Registry
	Publisher Publisher
	Clock     clock.Clock
	Currency  string
	OrderTTL  time.Duration
	BoletoTTL time.Duration
}

// NewOrderService wires an OrderService.  It panics when a store is
// missing since the server cannot work without them.
func NewOrderService(d OrderServiceDeps) *OrderService {
	if d.Tx == nil || d.Events == nil || d.Types == nil || d.Orders == nil || d.Tickets == nil || d.Users == nil {
		panic("nil store passed to NewOrderService")
	}
	if d.Clock == nil {
		d.Clock = clock.System()
	}
	if d.Gateways == nil {
		d.Gateways = payment.Registry{}
	}
	if d.Currency == "" {
		d.Currency = "brl"
	}
	if d.OrderTTL <= 0 {
		d.OrderTTL = 15 * time.Minute
	}
	if d.BoletoTTL <= 0 {
		d.BoletoTTL = 4 * 24 * time.Hour
	}
	return &OrderService{
		tx: d.Tx, events: d.Events, types: d.Types, orders: d.Orders, tickets: d.Tickets, users: d.Users,
		gateways: d.Gateways, publisher: d.Publisher, clock: d.Clock, currency: d.Currency,
		orderTTL: d.OrderTTL, boletoTTL: d.BoletoTTL,
	}
}

// normalizeItems merges duplicate ticket types, rejects zero quantities
// and enforces MaxTicketsPerOrder.  The result is sorted by ticket type
// ID so row locks are always taken in the same order.
func normalizeItems(items []CheckoutItem) ([]CheckoutItem, error) {
	if len(items) == 0 {
		return nil, invalid("at least one item is required")
	}
	merged := map[uint64]uint32{}
	var total uint32
	for _, it := range items {
		if it.TicketTypeID == 0 {
			return nil, invalid("ticket_type_id is required")
		}
		if it.Quantity == 0 {
			return nil, invalid("quantity must be at least 1")
		}
		if it.Quantity > MaxTicketsPerOrder || total+it.Quantity > MaxTicketsPerOrder {
			return nil, invalid(fmt.Sprintf("at most %d tickets per order", MaxTicketsPerOrder))
		}
		total += it.Quantity
		merged[it.TicketTypeID] += it.Quantity
	}
	out := make([]CheckoutItem, 0, len(merged))
	for id, q := range merged {
		out = append(out, CheckoutItem{TicketTypeID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketTypeID < out[j].TicketTypeID })
	return out, nil
}

// priceItems checks each requested line against the locked ticket types
// and returns the order items with their unit prices and the total.
func priceItems(eventID uint64, now time.Time, items []CheckoutItem, locked map[uint64]model.TicketType) ([]model.OrderItem, uint32, error) {
	out := make([]model.OrderItem, 0, len(items))
	var total uint64
	for _, it := range items {
		tt, ok := locked[it.TicketTypeID]
		if !ok || tt.EventID != eventID {
			return nil, 0, repository.ErrTicketTypeNotFound
		}
		if !tt.OnSale(now) {
			return nil, 0, fmt.Errorf("%w: %s", repository.ErrSalesClosed, tt.Name)
		}
		if tt.Remaining() < it.Quantity {
			return nil, 0, fmt.Errorf("%w: %s", repository.ErrSoldOut, tt.Name)
		}
		out = append(out, model.OrderItem{
			TicketTypeID:   tt.ID,
			TicketTypeName: tt.Name,
			Quantity:       it.Quantity,
			UnitPriceCents: tt.PriceCents,
		})
		total += uint64(tt.PriceCents) * uint64(it.Quantity)
		if total > math.MaxUint32 {
			return nil, 0, invalid("order total is too large")
		}
	}
	return out, uint32(total), nil
}

// Checkout reserves inventory and creates a PENDING order, then asks the
// provider for a payment.  Free orders are paid on the spot.
func (s *OrderService) Checkout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	items, err := normalizeItems(req.Items)
	if err != nil {
		return CheckoutResult{}, err
	}
	now := s.clock.Now()

	ev, err := s.events.GetByID(ctx, req.EventID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if ev.Status != model.EventPublished || !now.Before(ev.StartsAt) {
		return CheckoutResult{}, repository.ErrSalesClosed
	}

	ids := make([]uint64, len(items))
	for i, it := range items {
		ids[i] = it.TicketTypeID
	}

	var (
		order model.Order
		lines []model.OrderItem
		gw    payment.Gateway
		codes []string
	)
	err = s.tx.InTx(ctx, func(tx *sql.Tx) error {
		locked, err := s.types.LockForCheckoutTx(ctx, tx, ids)
		if err != nil {
			return err
		}
		var total uint32
		if lines, total, err = priceItems(ev.ID, now, items, locked); err != nil {
			return err
		}

		order = model.Order{
			UserID:        req.UserID,
			EventID:       ev.ID,
			TotalCents:    total,
			Currency:      s.currency,
			Provider:      payment.ProviderFree,
			PaymentMethod: payment.MethodNone,
		}
		if total > 0 {
			method, err := payment.NormalizeMethod(req.Method)
			if err != nil {
				return invalid("unsupported payment method")
			}
			if gw, err = s.gateways.Get(req.Provider); err != nil {
				return invalid("payment provider not available")
			}
			order.Provider = gw.Name()
			order.PaymentMethod = method
		}

		for _, l := range lines {
			if err := s.types.ReserveTx(ctx, tx, l.TicketTypeID, l.Quantity); err != nil {
				return err
			}
		}
		if err := s.orders.CreateTx(ctx, tx, &order); err != nil {
			return err
		}
		if err := s.orders.CreateItemsBulkTx(ctx, tx, order.ID, lines); err != nil {
			return err
		}
		order.Items = lines

		if total == 0 {
			codes, err = s.payTx(ctx, tx, &order, now)
			return err
		}
		return nil
	})
	if err != nil {
		return CheckoutResult{}, err
	}
	if order.TotalCents == 0 {
		s.publishPaid(ctx, order, ev, codes)
		return CheckoutResult{Order: order}, nil
	}

	charge := payment.ChargeRequest{
		OrderID:     order.ID,
		AmountCents: order.TotalCents,
		Currency:    s.currency,
		Method:      order.PaymentMethod,
		CardToken:   req.CardToken,
		Description: ev.Title,
		Customer:    req.Customer,
	}
	if charge.Customer.Email == "" {
		charge.Customer.Email = req.UserEmail
	}
	for _, l := range lines {
		charge.Items = append(charge.Items, payment.Item{
			Code:        "tt-" + formatID(l.TicketTypeID),
			Description: ev.Title + " - " + l.TicketTypeName,
			Quantity:    l.Quantity,
			UnitCents:   l.UnitPriceCents,
		})
	}

	res, err := gw.CreatePayment(ctx, charge)
	if err != nil {
		// No retry: the order fails and its inventory goes back on sale.
		if cerr := s.closePending(context.WithoutCancel(ctx), order.ID, model.OrderFailed); cerr != nil && !errors.Is(cerr, repository.ErrStaleTransition) {
			log.Printf("checkout: order %d: mark failed: %v", order.ID, cerr)
		}
		log.Printf("checkout: order %d: %s payment failed: %v", order.ID, order.Provider, err)
		return CheckoutResult{}, err
	}

	var chargeRef *string
	if res.ChargeRef != "" {
		chargeRef = &res.ChargeRef
	}
	if err := s.orders.SetProviderRefs(ctx, order.ID, res.ProviderRef, chargeRef); err != nil {
		return CheckoutResult{}, err
	}
	order.ProviderRef = &res.ProviderRef
	order.ProviderChargeRef = chargeRef

	if res.Status == payment.StatusPaid {
		if err := s.MarkPaid(ctx, order.ID, res.ChargeRef); err != nil && !errors.Is(err, repository.ErrStaleTransition) {
			return CheckoutResult{}, err
		}
		if fresh, err := s.orders.GetByID(ctx, order.ID); err == nil {
			order = fresh
		}
	}
	return CheckoutResult{Order: order, Payment: &res}, nil
}

// payTx flips a PENDING order to PAID and issues one ticket per unit.  It
// returns the ticket codes.
func (s *OrderService) payTx(ctx context.Context, tx *sql.Tx, order *model.Order, now time.Time) ([]string, error) {
	if err := s.orders.TransitionTx(ctx, tx, order.ID, model.OrderPending, model.OrderPaid, &now); err != nil {
		return nil, err
	}
	var tickets []model.Ticket
	var codes []string
	for _, it := range order.Items {
		for i := uint32(0); i < it.Quantity; i++ {
			code := utils.NewTicketCode()
			codes = append(codes, code)
			tickets = append(tickets, model.Ticket{
				OrderID:      order.ID,
				EventID:      order.EventID,
				TicketTypeID: it.TicketTypeID,
				UserID:       order.UserID,
				Code:         code,
			})
		}
	}
	if err := s.tickets.IssueTx(ctx, tx, tickets); err != nil {
		return nil, err
	}
	order.Status = model.OrderPaid
	order.PaidAt = &now
	return codes, nil
}

// MarkPaid confirms a PENDING order, issues its tickets and publishes
// order.paid.  A second confirmation yields ErrStaleTransition and issues
// nothing.
func (s *OrderService) MarkPaid(ctx context.Context, orderID uint64, chargeRef string) error {
	var (
		order model.Order
		codes []string
	)
	err := s.tx.InTx(ctx, func(tx *sql.Tx) error {
		var err error
		if order, err = s.orders.GetForUpdateTx(ctx, tx, orderID); err != nil {
			return err
		}
		if order.Status != model.OrderPending {
			if order.Status != model.OrderPaid && order.Status != model.OrderRefunding {
				log.Printf("orders: payment confirmed for order %d in status %s; needs manual refund", orderID, order.Status)
			}
			return repository.ErrStaleTransition
		}
		codes, err = s.payTx(ctx, tx, &order, s.clock.Now())
		return err
	})
	if err != nil {
		return err
	}

	if chargeRef != "" && order.ProviderChargeRef == nil {
		if err := s.orders.SetChargeRef(ctx, orderID, chargeRef); err != nil {
			log.Printf("orders: order %d: store charge ref: %v", orderID, err)
		}
	}
	if ev, err := s.events.GetByID(ctx, order.EventID); err == nil {
		s.publishPaid(ctx, order, ev, codes)
	}
	return nil
}

func (s *OrderService) publishPaid(ctx context.Context, order model.Order, ev model.Event, codes []string) {
	if s.publisher == nil {
		return
	}
	msg := queue.OrderPaidEvent{
		OrderID:     order.ID,
		UserID:      order.UserID,
		EventID:     ev.ID,
		EventTitle:  ev.Title,
		StartsAt:    ev.StartsAt.UTC().Format(time.RFC3339),
		Venue:       ev.Venue,
		Provider:    order.Provider,
		TotalCents:  order.TotalCents,
		Currency:    order.Currency,
		TicketCodes: codes,
		PaidAt:      s.clock.Now().Format(time.RFC3339),
	}
	if u, err := s.users.GetByID(ctx, order.UserID); err == nil {
		msg.UserEmail = u.Email
	}
	if err := s.publisher.PublishOrderPaid(ctx, msg); err != nil {
		log.Printf("orders: order %d: publish order.paid: %v", order.ID, err)
	}
}

// closePending moves a PENDING order to a terminal status and returns its
// items to inventory.
func (s *OrderService) closePending(ctx context.Context, orderID uint64, to string) error {
	return s.tx.InTx(ctx, func(tx *sql.Tx) error {
		order, err := s.orders.GetForUpdateTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := s.orders.TransitionTx(ctx, tx, orderID, model.OrderPending, to, nil); err != nil {
			return err
		}
		return s.types.ReleaseTx(ctx, tx, order.Items)
	})
}

// MarkFailed records a declined payment.
func (s *OrderService) MarkFailed(ctx context.Context, orderID uint64) error {
	return s.closePending(ctx, orderID, model.OrderFailed)
}

// MarkCancelled records a payment the provider cancelled before capture.
func (s *OrderService) MarkCancelled(ctx context.Context, orderID uint64) error {
	return s.closePending(ctx, orderID, model.OrderCancelled)
}

// MarkRefunded moves a PAID or REFUNDING order to REFUNDED, voids its
// unused tickets and returns the inventory.
func (s *OrderService) MarkRefunded(ctx context.Context, orderID uint64) error {
	return s.tx.InTx(ctx, func(tx *sql.Tx) error {
		order, err := s.orders.GetForUpdateTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != model.OrderPaid && order.Status != model.OrderRefunding {
			return repository.ErrStaleTransition
		}
		if err := s.orders.TransitionTx(ctx, tx, orderID, order.Status, model.OrderRefunded, nil); err != nil {
			return err
		}
		if _, err := s.tickets.CancelByOrderTx(ctx, tx, orderID); err != nil {
			return err
		}
		return s.types.ReleaseTx(ctx, tx, order.Items)
	})
}

// Get returns one order of the buyer.
func (s *OrderService) Get(ctx context.Context, userID, orderID uint64) (model.Order, error) {
	return s.orders.GetByIDForUser(ctx, orderID, userID)
}

// List returns the buyer's orders.
func (s *OrderService) List(ctx context.Context, userID uint64) ([]model.Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// Cancel lets a buyer abandon a PENDING order.
func (s *OrderService) Cancel(ctx context.Context, userID, orderID uint64) error {
	order, err := s.orders.GetByIDForUser(ctx, orderID, userID)
	if err != nil {
		return err
	}
	if order.Status != model.OrderPending {
		return ErrNotCancellable
	}
	err = s.closePending(ctx, orderID, model.OrderCancelled)
	if errors.Is(err, repository.ErrStaleTransition) {
		return ErrNotCancellable
	}
	return err
}

// Refund refunds a PAID order through its provider before the event
// starts, provided none of its tickets were scanned.  The order sits in
// REFUNDING while the provider is called, which blocks check-in; a failed
// provider call puts it back to PAID.
func (s *OrderService) Refund(ctx context.Context, userID, orderID uint64) (model.Order, error) {
	order, err := s.orders.GetByIDForUser(ctx, orderID, userID)
	if err != nil {
		return model.Order{}, err
	}
	if order.Status != model.OrderPaid {
		return model.Order{}, ErrNotRefundable
	}
	ev, err := s.events.GetByID(ctx, order.EventID)
	if err != nil {
		return model.Order{}, err
	}
	if !s.clock.Now().Before(ev.StartsAt) {
		return model.Order{}, ErrNotRefundable
	}
	var gw payment.Gateway
	if order.Provider != payment.ProviderFree {
		if gw, err = s.gateways.Get(order.Provider); err != nil {
			return model.Order{}, err
		}
	}

	err = s.tx.InTx(ctx, func(tx *sql.Tx) error {
		locked, err := s.orders.GetForUpdateTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if locked.Status != model.OrderPaid {
			return ErrNotRefundable
		}
		used, err := s.tickets.CountUsedByOrderTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if used > 0 {
			return ErrNotRefundable
		}
		err = s.orders.TransitionTx(ctx, tx, orderID, model.OrderPaid, model.OrderRefunding, nil)
		if errors.Is(err, repository.ErrStaleTransition) {
			return ErrNotRefundable
		}
		return err
	})
	if err != nil {
		return model.Order{}, err
	}

	if gw != nil {
		req := payment.RefundRequest{AmountCents: order.TotalCents}
		if order.ProviderRef != nil {
			req.ProviderRef = *order.ProviderRef
		}
		if order.ProviderChargeRef != nil {
			req.ChargeRef = *order.ProviderChargeRef
		}
		if err := gw.Refund(ctx, req); err != nil {
			bg := context.WithoutCancel(ctx)
			rerr := s.tx.InTx(bg, func(tx *sql.Tx) error {
				return s.orders.TransitionTx(bg, tx, orderID, model.OrderRefunding, model.OrderPaid, nil)
			})
			if rerr != nil {
				log.Printf("refund: order %d: restore PAID: %v", orderID, rerr)
			}
			log.Printf("refund: order %d: %s refund failed: %v", orderID, order.Provider, err)
			return model.Order{}, err
		}
	}
	if err := s.MarkRefunded(ctx, orderID); err != nil && !errors.Is(err, repository.ErrStaleTransition) {
		return model.Order{}, err
	}
	return s.orders.GetByIDForUser(ctx, orderID, userID)
}

// ExpirePending expires PENDING orders older than the order TTL (boleto
// orders get the longer boleto TTL) and returns how many were expired.
func (s *OrderService) ExpirePending(ctx context.Context) (int, error) {
	now := s.clock.Now()
	batches := []struct {
		cutoff  time.Time
		methods []string
	}{
		{now.Add(-s.orderTTL), []string{payment.MethodCard, payment.MethodPix, payment.MethodNone}},
		{now.Add(-s.boletoTTL), []string{payment.MethodBoleto}},
	}
	n := 0
	for _, b := range batches {
		ids, err := s.orders.StalePendingIDs(ctx, b.cutoff, b.methods, 200)
		if err != nil {
			return n, err
		}
		for _, id := range ids {
			err := s.closePending(ctx, id, model.OrderExpired)
			switch {
			case err == nil:
				n++
			case errors.Is(err, repository.ErrStaleTransition):
			default:
				return n, err
			}
		}
	}
	return n, nil
}

// RunSweeper calls ExpirePending every interval until ctx is done.
func (s *OrderService) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.ExpirePending(ctx)
			if err != nil && ctx.Err() == nil {
				log.Printf("sweeper: expire pending orders: %v", err)
			}
			if n > 0 {
				log.Printf("sweeper: expired %d pending orders", n)
			}
		}
	}
}

// ResolveOrder finds the order a provider notification refers to.  Our
// order code wins when present; it must belong to the same provider.
func (s *OrderService) ResolveOrder(ctx context.Context, n payment.Notification) (model.Order, error) {
	if n.OrderID != 0 {
		o, err := s.orders.GetByID(ctx, n.OrderID)
		if err != nil {
			return model.Order{}, err
		}
		if !strings.EqualFold(o.Provider, n.Provider) {
			return model.Order{}, repository.ErrOrderNotFound
		}
		return o, nil
	}
	if n.ProviderRef == "" {
		return model.Order{}, repository.ErrOrderNotFound
	}
	return s.orders.GetByProviderRef(ctx, n.Provider, n.ProviderRef)
}
