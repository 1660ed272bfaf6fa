package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticketing-platform/internal/config"
	"github.com/iliyamo/ticketing-platform/internal/model"
	"github.com/iliyamo/ticketing-platform/internal/payment"
	"github.com/iliyamo/ticketing-platform/internal/repository"
)

type memSubs struct {
	byUser map[uint64]model.Subscription
}

func (m *memSubs) Upsert(ctx context.Context, s model.Subscription) error {
	m.byUser[s.UserID] = s
	return nil
}

func (m *memSubs) Current(ctx context.Context, userID uint64) (model.Subscription, error) {
	s, ok := m.byUser[userID]
	if !ok {
		return model.Subscription{}, repository.ErrSubscriptionNotFound
	}
	return s, nil
}

func (m *memSubs) GetByProviderID(ctx context.Context, providerID string) (model.Subscription, error) {
	for _, s := range m.byUser {
		if s.ProviderSubscriptionID == providerID {
			return s, nil
		}
	}
	return model.Subscription{}, repository.ErrSubscriptionNotFound
}

func (m *memSubs) UpdateStatus(ctx context.Context, providerID, status string, periodEnd *time.Time) error {
	for uid, s := range m.byUser {
		if s.ProviderSubscriptionID == providerID {
			s.Status = status
			if periodEnd != nil {
				s.CurrentPeriodEnd = periodEnd
			}
			m.byUser[uid] = s
			return nil
		}
	}
	return repository.ErrSubscriptionNotFound
}

type memUsers map[uint64]*model.User

func (m memUsers) GetByID(ctx context.Context, id uint64) (model.User, error) {
	u, ok := m[id]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return *u, nil
}

func (m memUsers) GetByStripeCustomerID(ctx context.Context, customerID string) (model.User, error) {
	for _, u := range m {
		if u.StripeCustomerID != nil && *u.StripeCustomerID == customerID {
			return *u, nil
		}
	}
	return model.User{}, sql.ErrNoRows
}

func (m memUsers) SetStripeCustomerID(ctx context.Context, id uint64, customerID string) error {
	m[id].StripeCustomerID = &customerID
	return nil
}

type countEvents int

func (c countEvents) CountActiveByOrganizer(ctx context.Context, organizerID uint64) (int, error) {
	return int(c), nil
}

type mockBilling struct {
	mock.Mock
}

func (m *mockBilling) EnsureCustomer(ctx context.Context, email, name string, userID uint64) (string, error) {
	args := m.Called(email, userID)
	return args.String(0), args.Error(1)
}

func (m *mockBilling) Subscribe(ctx context.Context, customerID, planID string, userID uint64) (payment.SubscriptionUpdate, error) {
	args := m.Called(customerID, planID)
	return args.Get(0).(payment.SubscriptionUpdate), args.Error(1)
}

func (m *mockBilling) CancelSubscription(ctx context.Context, subscriptionID string) (payment.SubscriptionUpdate, error) {
	args := m.Called(subscriptionID)
	return args.Get(0).(payment.SubscriptionUpdate), args.Error(1)
}

var testPlans = config.PlanCatalog{
	"free": {Code: "free", Name: "Free", MaxEvents: 2},
	"pro":  {Code: "pro", Name: "Pro", StripePlanID: "plan_pro", PriceCents: 4990},
}

func TestSubscribeCreatesCustomerOnce(t *testing.T) {
	store := &memSubs{byUser: map[uint64]model.Subscription{}}
	users := memUsers{7: {ID: 7, Email: "org@example.com", Name: "Org", Role: model.RoleOrganizer}}
	billing := &mockBilling{}
	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	billing.On("EnsureCustomer", "org@example.com", uint64(7)).Return("cus_7", nil).Once()
	billing.On("Subscribe", "cus_7", "plan_pro").Return(payment.SubscriptionUpdate{ID: "sub_7", Status: "active", CurrentPeriodEnd: &end}, nil)

	svc := NewSubscriptionService(store, users, countEvents(0), testPlans, billing)
	ctx := context.Background()

	sub, err := svc.Subscribe(ctx, 7, "pro")
	require.NoError(t, err)
	assert.Equal(t, "sub_7", sub.ProviderSubscriptionID)
	assert.Equal(t, "cus_7", *users[7].StripeCustomerID)

	_, err = svc.Subscribe(ctx, 7, "pro")
	assert.ErrorIs(t, err, ErrAlreadySubscribed)

	cur, err := svc.Current(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "pro", cur.Plan.Code)
	billing.AssertExpectations(t)
}

func TestSubscribeRejections(t *testing.T) {
	store := &memSubs{byUser: map[uint64]model.Subscription{}}
	users := memUsers{7: {ID: 7}}

	_, err := NewSubscriptionService(store, users, countEvents(0), testPlans, &mockBilling{}).Subscribe(context.Background(), 7, "gold")
	assert.ErrorIs(t, err, ErrUnknownPlan)
	_, err = NewSubscriptionService(store, users, countEvents(0), testPlans, &mockBilling{}).Subscribe(context.Background(), 7, "free")
	assert.ErrorIs(t, err, ErrUnknownPlan, "the free plan is not billed")
	_, err = NewSubscriptionService(store, users, countEvents(0), testPlans, nil).Subscribe(context.Background(), 7, "pro")
	assert.ErrorIs(t, err, ErrBillingUnavailable)
}

func TestCancelKeepsPeriodEnd(t *testing.T) {
	end := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	store := &memSubs{byUser: map[uint64]model.Subscription{
		7: {UserID: 7, PlanCode: "pro", ProviderSubscriptionID: "sub_7", Status: "active", CurrentPeriodEnd: &end},
	}}
	billing := &mockBilling{}
	billing.On("CancelSubscription", "sub_7").Return(payment.SubscriptionUpdate{ID: "sub_7", Status: "active"}, nil)

	sub, err := NewSubscriptionService(store, memUsers{}, countEvents(0), testPlans, billing).Cancel(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "active", sub.Status)
	assert.Equal(t, end, *sub.CurrentPeriodEnd)
}

func TestSyncCreatesAndUpdates(t *testing.T) {
	cus := "cus_9"
	store := &memSubs{byUser: map[uint64]model.Subscription{}}
	users := memUsers{9: {ID: 9, StripeCustomerID: &cus}}
	svc := NewSubscriptionService(store, users, countEvents(0), testPlans, nil)
	ctx := context.Background()

	require.NoError(t, svc.Sync(ctx, payment.SubscriptionUpdate{ID: "sub_9", CustomerID: "cus_9", PlanID: "plan_pro", Status: "active"}))
	assert.Equal(t, "pro", store.byUser[9].PlanCode)

	require.NoError(t, svc.Sync(ctx, payment.SubscriptionUpdate{ID: "sub_9", Status: "past_due"}))
	assert.Equal(t, "past_due", store.byUser[9].Status)

	cur, err := svc.Current(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "free", cur.Plan.Code, "past_due subscriptions fall back to the free plan")

	require.NoError(t, svc.Sync(ctx, payment.SubscriptionUpdate{ID: "sub_x", CustomerID: "cus_unknown", PlanID: "plan_pro", Status: "active"}))
	assert.Len(t, store.byUser, 1)
}

func TestCanCreateEvent(t *testing.T) {
	store := &memSubs{byUser: map[uint64]model.Subscription{}}
	ctx := context.Background()

	assert.NoError(t, NewSubscriptionService(store, memUsers{}, countEvents(1), testPlans, nil).CanCreateEvent(ctx, 3))
	assert.ErrorIs(t, NewSubscriptionService(store, memUsers{}, countEvents(2), testPlans, nil).CanCreateEvent(ctx, 3), ErrPlanLimit)
	assert.NoError(t, NewSubscriptionService(store, memUsers{}, countEvents(50), nil, nil).CanCreateEvent(ctx, 3))

	store.byUser[3] = model.Subscription{UserID: 3, PlanCode: "pro", ProviderSubscriptionID: "sub_3", Status: "active"}
	assert.NoError(t, NewSubscriptionService(store, memUsers{}, countEvents(50), testPlans, nil).CanCreateEvent(ctx, 3))
}
