package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticketing-platform/internal/clock"
	"github.com/iliyamo/ticketing-platform/internal/model"
	"github.com/iliyamo/ticketing-platform/internal/payment"
	"github.com/iliyamo/ticketing-platform/internal/queue"
	"github.com/iliyamo/ticketing-platform/internal/repository"
)

// memShop keeps ticket types, orders and tickets in memory.  memTx
// snapshots it so a failed transaction leaves no trace.
type memShop struct {
	clk           clock.Clock
	nextOrder     uint64
	types         map[uint64]model.TicketType
	orders        map[uint64]model.Order
	tickets       []model.Ticket
	beforeReserve func(s *memShop, id uint64)
}

func newMemShop(clk clock.Clock) *memShop {
	return &memShop{clk: clk, types: map[uint64]model.TicketType{}, orders: map[uint64]model.Order{}}
}

func (s *memShop) snapshot() *memShop {
	cp := *s
	cp.types = make(map[uint64]model.TicketType, len(s.types))
	for k, v := range s.types {
		cp.types[k] = v
	}
	cp.orders = make(map[uint64]model.Order, len(s.orders))
	for k, v := range s.orders {
		cp.orders[k] = v
	}
	cp.tickets = append([]model.Ticket(nil), s.tickets...)
	return &cp
}

func (s *memShop) LockForCheckoutTx(ctx context.Context, tx *sql.Tx, ids []uint64) (map[uint64]model.TicketType, error) {
	out := map[uint64]model.TicketType{}
	for _, id := range ids {
		if tt, ok := s.types[id]; ok {
			out[id] = tt
		}
	}
	return out, nil
}

func (s *memShop) ReserveTx(ctx context.Context, tx *sql.Tx, id uint64, qty uint32) error {
	if s.beforeReserve != nil {
		s.beforeReserve(s, id)
	}
	tt := s.types[id]
	if tt.QuantitySold+qty > tt.QuantityTotal {
		return repository.ErrSoldOut
	}
	tt.QuantitySold += qty
	s.types[id] = tt
	return nil
}

func (s *memShop) ReleaseTx(ctx context.Context, tx *sql.Tx, items []model.OrderItem) error {
	for _, it := range items {
		tt := s.types[it.TicketTypeID]
		if tt.QuantitySold >= it.Quantity {
			tt.QuantitySold -= it.Quantity
		} else {
			tt.QuantitySold = 0
		}
		s.types[it.TicketTypeID] = tt
	}
	return nil
}

func (s *memShop) CreateTx(ctx context.Context, tx *sql.Tx, o *model.Order) error {
	s.nextOrder++
	o.ID = s.nextOrder
	o.Status = model.OrderPending
	o.CreatedAt = s.clk.Now()
	o.UpdatedAt = o.CreatedAt
	s.orders[o.ID] = *o
	return nil
}

func (s *memShop) CreateItemsBulkTx(ctx context.Context, tx *sql.Tx, orderID uint64, items []model.OrderItem) error {
	o := s.orders[orderID]
	o.Items = append([]model.OrderItem(nil), items...)
	s.orders[orderID] = o
	return nil
}

func (s *memShop) GetByID(ctx context.Context, id uint64) (model.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return model.Order{}, repository.ErrOrderNotFound
	}
	return o, nil
}

func (s *memShop) GetByIDForUser(ctx context.Context, id, userID uint64) (model.Order, error) {
	o, err := s.GetByID(ctx, id)
	if err != nil || o.UserID != userID {
		return model.Order{}, repository.ErrOrderNotFound
	}
	return o, nil
}

func (s *memShop) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Order, error) {
	return s.GetByID(ctx, id)
}

func (s *memShop) GetByProviderRef(ctx context.Context, provider, ref string) (model.Order, error) {
	for _, o := range s.orders {
		if o.Provider == provider && o.ProviderRef != nil && *o.ProviderRef == ref {
			return o, nil
		}
	}
	return model.Order{}, repository.ErrOrderNotFound
}

func (s *memShop) ListByUser(ctx context.Context, userID uint64) ([]model.Order, error) {
	var out []model.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *memShop) SetProviderRefs(ctx context.Context, id uint64, ref string, chargeRef *string) error {
	o := s.orders[id]
	o.ProviderRef = &ref
	o.ProviderChargeRef = chargeRef
	s.orders[id] = o
	return nil
}

func (s *memShop) SetChargeRef(ctx context.Context, id uint64, chargeRef string) error {
	o := s.orders[id]
	o.ProviderChargeRef = &chargeRef
	s.orders[id] = o
	return nil
}

func (s *memShop) TransitionTx(ctx context.Context, tx *sql.Tx, id uint64, from, to string, paidAt *time.Time) error {
	o, ok := s.orders[id]
	if !ok || o.Status != from {
		return repository.ErrStaleTransition
	}
	o.Status = to
	if paidAt != nil {
		o.PaidAt = paidAt
	}
	s.orders[id] = o
	return nil
}

func (s *memShop) StalePendingIDs(ctx context.Context, cutoff time.Time, methods []string, limit int) ([]uint64, error) {
	var ids []uint64
	for _, o := range s.orders {
		if o.Status != model.OrderPending || !o.CreatedAt.Before(cutoff) {
			continue
		}
		for _, m := range methods {
			if o.PaymentMethod == m {
				ids = append(ids, o.ID)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *memShop) IssueTx(ctx context.Context, tx *sql.Tx, tickets []model.Ticket) error {
	for _, t := range tickets {
		t.ID = uint64(len(s.tickets) + 1)
		t.Status = model.TicketValid
		t.CreatedAt = s.clk.Now()
		s.tickets = append(s.tickets, t)
	}
	return nil
}

func (s *memShop) CancelByOrderTx(ctx context.Context, tx *sql.Tx, orderID uint64) (int64, error) {
	var n int64
	for i, t := range s.tickets {
		if t.OrderID == orderID && t.Status == model.TicketValid {
			s.tickets[i].Status = model.TicketCancelled
			n++
		}
	}
	return n, nil
}

func (s *memShop) CountUsedByOrderTx(ctx context.Context, tx *sql.Tx, orderID uint64) (int, error) {
	n := 0
	for _, t := range s.tickets {
		if t.OrderID == orderID && t.Status == model.TicketUsed {
			n++
		}
	}
	return n, nil
}

func (s *memShop) ticketsOf(orderID uint64) []model.Ticket {
	var out []model.Ticket
	for _, t := range s.tickets {
		if t.OrderID == orderID {
			out = append(out, t)
		}
	}
	return out
}

type memTx struct {
	shop *memShop
}

func (m memTx) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	saved := m.shop.snapshot()
	if err := fn(nil); err != nil {
		*m.shop = *saved
		return err
	}
	return nil
}

type mockGateway struct {
	mock.Mock
	name string
}

func (g *mockGateway) Name() string { return g.name }

func (g *mockGateway) CreatePayment(ctx context.Context, req payment.ChargeRequest) (payment.ChargeResult, error) {
	args := g.Called(req.OrderID, req.AmountCents, req.Method)
	return args.Get(0).(payment.ChargeResult), args.Error(1)
}

func (g *mockGateway) Refund(ctx context.Context, req payment.RefundRequest) error {
	return g.Called(req.ProviderRef, req.ChargeRef, req.AmountCents).Error(0)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishOrderPaid(ctx context.Context, ev queue.OrderPaidEvent) error {
	return m.Called(ev.OrderID, len(ev.TicketCodes), ev.UserEmail).Error(0)
}

type orderFixture struct {
	svc  *OrderService
	shop *memShop
	gw   *mockGateway
	pub  *mockPublisher
	clk  *clock.Fixed
}

func newOrderFixture(t *testing.T) orderFixture {
	t.Helper()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(now)
	shop := newMemShop(clk)
	shop.types[1] = model.TicketType{ID: 1, EventID: 7, Name: "Inteira", PriceCents: 8000, QuantityTotal: 5}
	shop.types[2] = model.TicketType{ID: 2, EventID: 7, Name: "Cortesia", PriceCents: 0, QuantityTotal: 10}

	gw := &mockGateway{name: payment.ProviderPagarme}
	gateways := payment.Registry{}
	gateways.Register(gw)
	pub := &mockPublisher{}

	svc := NewOrderService(OrderServiceDeps{
		Tx:        memTx{shop: shop},
		Events:    memEvents{7: {ID: 7, Title: "Festival", Venue: "Arena", Status: model.EventPublished, StartsAt: now.Add(72 * time.Hour)}},
		Types:     shop,
		Orders:    shop,
		Tickets:   shop,
		Users:     memUsers{1: &model.User{ID: 1, Email: "ana@example.com"}},
		Gateways:  gateways,
		Publisher: pub,
		Clock:     clk,
	})
	return orderFixture{svc: svc, shop: shop, gw: gw, pub: pub, clk: clk}
}

// seedPaidOrder stores order 1: two Inteira tickets paid through Pagar.me.
func (f orderFixture) seedPaidOrder() {
	ref, charge := "or_1", "ch_1"
	paidAt := f.clk.Now()
	f.shop.nextOrder = 1
	f.shop.orders[1] = model.Order{
		ID: 1, UserID: 1, EventID: 7, Status: model.OrderPaid,
		Provider: payment.ProviderPagarme, PaymentMethod: payment.MethodCard,
		ProviderRef: &ref, ProviderChargeRef: &charge, TotalCents: 16000, Currency: "brl", PaidAt: &paidAt,
		Items: []model.OrderItem{{OrderID: 1, TicketTypeID: 1, Quantity: 2, UnitPriceCents: 8000}},
	}
	tt := f.shop.types[1]
	tt.QuantitySold = 2
	f.shop.types[1] = tt
	_ = f.shop.IssueTx(context.Background(), nil, []model.Ticket{
		{OrderID: 1, EventID: 7, TicketTypeID: 1, UserID: 1, Code: codeA},
		{OrderID: 1, EventID: 7, TicketTypeID: 1, UserID: 1, Code: codeB},
	})
}

func TestCheckoutFreeOrderIssuesTickets(t *testing.T) {
	f := newOrderFixture(t)
	f.pub.On("PublishOrderPaid", uint64(1), 3, "ana@example.com").Return(nil).Once()

	res, err := f.svc.Checkout(context.Background(), CheckoutRequest{
		UserID: 1, EventID: 7, Items: []CheckoutItem{{TicketTypeID: 2, Quantity: 3}},
	})
	require.NoError(t, err)
	assert.Nil(t, res.Payment)
	assert.Equal(t, model.OrderPaid, res.Order.Status)
	assert.Equal(t, payment.ProviderFree, res.Order.Provider)
	assert.Equal(t, uint32(0), res.Order.TotalCents)

	assert.Equal(t, model.OrderPaid, f.shop.orders[1].Status)
	assert.Len(t, f.shop.ticketsOf(1), 3)
	assert.Equal(t, uint32(3), f.shop.types[2].QuantitySold)
	f.pub.AssertExpectations(t)
	f.gw.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckoutProviderErrorFailsOrder(t *testing.T) {
	f := newOrderFixture(t)
	f.gw.On("CreatePayment", uint64(1), uint32(16000), payment.MethodPix).
		Return(payment.ChargeResult{}, errors.New("gateway timeout")).Once()

	_, err := f.svc.Checkout(context.Background(), CheckoutRequest{
		UserID: 1, EventID: 7, Provider: "pagarme", Method: "pix",
		Items: []CheckoutItem{{TicketTypeID: 1, Quantity: 2}},
	})
	require.Error(t, err)
	assert.Equal(t, model.OrderFailed, f.shop.orders[1].Status)
	assert.Equal(t, uint32(0), f.shop.types[1].QuantitySold, "inventory goes back on sale")
	assert.Empty(t, f.shop.tickets)
	f.pub.AssertNotCalled(t, "PublishOrderPaid", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckoutPendingThenPaidOnce(t *testing.T) {
	f := newOrderFixture(t)
	f.gw.On("CreatePayment", uint64(1), uint32(16000), payment.MethodCard).
		Return(payment.ChargeResult{ProviderRef: "or_1", Status: payment.StatusPending}, nil).Once()
	f.pub.On("PublishOrderPaid", uint64(1), 2, "ana@example.com").Return(nil).Once()

	ctx := context.Background()
	res, err := f.svc.Checkout(ctx, CheckoutRequest{
		UserID: 1, EventID: 7, Provider: "PAGARME", CardToken: "card_x",
		Items: []CheckoutItem{{TicketTypeID: 1, Quantity: 2}},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Payment)
	assert.Equal(t, model.OrderPending, res.Order.Status)
	assert.Equal(t, uint32(2), f.shop.types[1].QuantitySold, "reserved while pending")
	assert.Empty(t, f.shop.tickets)

	require.NoError(t, f.svc.MarkPaid(ctx, 1, "ch_1"))
	assert.ErrorIs(t, f.svc.MarkPaid(ctx, 1, "ch_1"), repository.ErrStaleTransition)

	o := f.shop.orders[1]
	assert.Equal(t, model.OrderPaid, o.Status)
	require.NotNil(t, o.ProviderChargeRef)
	assert.Equal(t, "ch_1", *o.ProviderChargeRef)
	assert.Len(t, f.shop.ticketsOf(1), 2, "a redelivered confirmation issues nothing")
	assert.Equal(t, uint32(2), f.shop.types[1].QuantitySold)
	f.pub.AssertExpectations(t)
}

func TestCheckoutRollsBackPartialReservation(t *testing.T) {
	f := newOrderFixture(t)
	f.shop.beforeReserve = func(s *memShop, id uint64) {
		if id == 2 {
			tt := s.types[2]
			tt.QuantitySold = tt.QuantityTotal
			s.types[2] = tt
		}
	}

	_, err := f.svc.Checkout(context.Background(), CheckoutRequest{
		UserID: 1, EventID: 7, Provider: "pagarme",
		Items: []CheckoutItem{{TicketTypeID: 1, Quantity: 1}, {TicketTypeID: 2, Quantity: 1}},
	})
	assert.ErrorIs(t, err, repository.ErrSoldOut)
	assert.Empty(t, f.shop.orders)
	assert.Equal(t, uint32(0), f.shop.types[1].QuantitySold)
	f.gw.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckoutRejectsOverflowingTotal(t *testing.T) {
	f := newOrderFixture(t)
	f.shop.types[3] = model.TicketType{ID: 3, EventID: 7, Name: "Camarote", PriceCents: 1 << 31, QuantityTotal: 5}

	_, err := f.svc.Checkout(context.Background(), CheckoutRequest{
		UserID: 1, EventID: 7, Provider: "pagarme",
		Items: []CheckoutItem{{TicketTypeID: 3, Quantity: 2}},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, f.shop.orders)
	assert.Empty(t, f.shop.tickets)
}

func TestExpirePendingUsesBoletoTTL(t *testing.T) {
	f := newOrderFixture(t)
	now := f.clk.Now()
	item := []model.OrderItem{{TicketTypeID: 1, Quantity: 1}}
	f.shop.orders[1] = model.Order{ID: 1, Status: model.OrderPending, PaymentMethod: payment.MethodCard, CreatedAt: now.Add(-20 * time.Minute), Items: item}
	f.shop.orders[2] = model.Order{ID: 2, Status: model.OrderPending, PaymentMethod: payment.MethodBoleto, CreatedAt: now.Add(-20 * time.Minute), Items: item}
	f.shop.orders[3] = model.Order{ID: 3, Status: model.OrderPending, PaymentMethod: payment.MethodBoleto, CreatedAt: now.Add(-5 * 24 * time.Hour), Items: item}
	f.shop.orders[4] = model.Order{ID: 4, Status: model.OrderPending, PaymentMethod: payment.MethodPix, CreatedAt: now.Add(-5 * time.Minute), Items: item}
	tt := f.shop.types[1]
	tt.QuantitySold = 4
	f.shop.types[1] = tt

	n, err := f.svc.ExpirePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, model.OrderExpired, f.shop.orders[1].Status)
	assert.Equal(t, model.OrderPending, f.shop.orders[2].Status)
	assert.Equal(t, model.OrderExpired, f.shop.orders[3].Status)
	assert.Equal(t, model.OrderPending, f.shop.orders[4].Status)
	assert.Equal(t, uint32(2), f.shop.types[1].QuantitySold)
}

func TestCancelOnlyPending(t *testing.T) {
	f := newOrderFixture(t)
	f.seedPaidOrder()
	assert.ErrorIs(t, f.svc.Cancel(context.Background(), 1, 1), ErrNotCancellable)

	f.shop.orders[2] = model.Order{ID: 2, UserID: 1, Status: model.OrderPending, PaymentMethod: payment.MethodPix,
		Items: []model.OrderItem{{TicketTypeID: 1, Quantity: 1}}}
	tt := f.shop.types[1]
	tt.QuantitySold++
	f.shop.types[1] = tt

	require.NoError(t, f.svc.Cancel(context.Background(), 1, 2))
	assert.Equal(t, model.OrderCancelled, f.shop.orders[2].Status)
	assert.Equal(t, uint32(2), f.shop.types[1].QuantitySold)
}

func TestRefundHoldsOrderDuringProviderCall(t *testing.T) {
	f := newOrderFixture(t)
	f.seedPaidOrder()
	f.gw.On("Refund", "or_1", "ch_1", uint32(16000)).Run(func(mock.Arguments) {
		assert.Equal(t, model.OrderRefunding, f.shop.orders[1].Status)
	}).Return(nil).Once()

	o, err := f.svc.Refund(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, model.OrderRefunded, o.Status)
	for _, tk := range f.shop.ticketsOf(1) {
		assert.Equal(t, model.TicketCancelled, tk.Status)
	}
	assert.Equal(t, uint32(0), f.shop.types[1].QuantitySold)
	f.gw.AssertExpectations(t)
}

func TestRefundRejectsScannedOrder(t *testing.T) {
	f := newOrderFixture(t)
	f.seedPaidOrder()
	f.shop.tickets[1].Status = model.TicketUsed

	_, err := f.svc.Refund(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrNotRefundable)
	assert.Equal(t, model.OrderPaid, f.shop.orders[1].Status)
	f.gw.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything)
}

func TestRefundProviderErrorRestoresPaid(t *testing.T) {
	f := newOrderFixture(t)
	f.seedPaidOrder()
	f.gw.On("Refund", "or_1", "ch_1", uint32(16000)).Return(errors.New("charge already disputed")).Once()

	_, err := f.svc.Refund(context.Background(), 1, 1)
	require.Error(t, err)
	assert.Equal(t, model.OrderPaid, f.shop.orders[1].Status)
	for _, tk := range f.shop.ticketsOf(1) {
		assert.Equal(t, model.TicketValid, tk.Status)
	}
	assert.Equal(t, uint32(2), f.shop.types[1].QuantitySold)
}

func TestRefundClosedOnceEventStarts(t *testing.T) {
	f := newOrderFixture(t)
	f.seedPaidOrder()
	f.clk.Advance(72 * time.Hour)

	_, err := f.svc.Refund(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrNotRefundable)
	assert.Equal(t, model.OrderPaid, f.shop.orders[1].Status)
	f.gw.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkRefundedFromNotification(t *testing.T) {
	f := newOrderFixture(t)
	f.seedPaidOrder()
	ctx := context.Background()

	require.NoError(t, f.svc.MarkRefunded(ctx, 1))
	assert.Equal(t, model.OrderRefunded, f.shop.orders[1].Status)
	assert.ErrorIs(t, f.svc.MarkRefunded(ctx, 1), repository.ErrStaleTransition)
	assert.Equal(t, uint32(0), f.shop.types[1].QuantitySold, "inventory released once")
}
