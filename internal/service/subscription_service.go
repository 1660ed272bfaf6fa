package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/iliyamo/ticketing-platform/internal/config"
	"github.com/iliyamo/ticketing-platform/internal/model"
	"github.com/iliyamo/ticketing-platform/internal/payment"
	"github.com/iliyamo/ticketing-platform/internal/repository"
)

// Billing is the subscription side of the Stripe gateway.
type Billing interface {
	EnsureCustomer(ctx context.Context, email, name string, userID uint64) (string, error)
	Subscribe(ctx context.Context, customerID, planID string, userID uint64) (payment.SubscriptionUpdate, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (payment.SubscriptionUpdate, error)
}

// SubscriptionStore persists organizer subscriptions.
type SubscriptionStore interface {
	Upsert(ctx context.Context, s model.Subscription) error
	Current(ctx context.Context, userID uint64) (model.Subscription, error)
	GetByProviderID(ctx context.Context, providerID string) (model.Subscription, error)
	UpdateStatus(ctx context.Context, providerID, status string, periodEnd *time.Time) error
}

// BillingUsers is the user lookup subscriptions need.
type BillingUsers interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (model.User, error)
	SetStripeCustomerID(ctx context.Context, id uint64, customerID string) error
}

// EventCounter counts an organizer's events that count against the plan.
type EventCounter interface {
	CountActiveByOrganizer(ctx context.Context, organizerID uint64) (int, error)
}

// SubscriptionService manages organizer plans billed through Stripe.
type SubscriptionService struct {
	store   SubscriptionStore
	users   BillingUsers
	events  EventCounter
	plans   config.PlanCatalog
	billing Billing
}

// NewSubscriptionService wires a SubscriptionService.  billing may be nil
// when Stripe is not configured; plans may be nil when no catalog exists.
func NewSubscriptionService(store SubscriptionStore, users BillingUsers, events EventCounter, plans config.PlanCatalog, billing Billing) *SubscriptionService {
	return &SubscriptionService{store: store, users: users, events: events, plans: plans, billing: billing}
}

// CurrentPlan is an organizer's effective plan and, when one exists, the
// subscription that grants it.
type CurrentPlan struct {
	Plan         config.Plan         `json:"plan"`
	Subscription *model.Subscription `json:"subscription,omitempty"`
}

// Plans lists the catalog.
func (s *SubscriptionService) Plans() []config.Plan {
	return s.plans.List()
}

// Current returns the effective plan of organizerID.  Without a live
// subscription it is the free plan.
func (s *SubscriptionService) Current(ctx context.Context, organizerID uint64) (CurrentPlan, error) {
	out := CurrentPlan{Plan: s.plans[config.FreePlanCode]}
	if out.Plan.Code == "" {
		out.Plan = config.Plan{Code: config.FreePlanCode, Name: "Free"}
	}
	sub, err := s.store.Current(ctx, organizerID)
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		return out, nil
	}
	if err != nil {
		return CurrentPlan{}, err
	}
	out.Subscription = &sub
	if p, ok := s.plans[sub.PlanCode]; ok && sub.Live() {
		out.Plan = p
	}
	return out, nil
}

// Subscribe starts a Stripe subscription of planCode for organizerID,
// creating the Stripe customer on first use.
func (s *SubscriptionService) Subscribe(ctx context.Context, organizerID uint64, planCode string) (model.Subscription, error) {
	plan, ok := s.plans[planCode]
	if !ok || plan.StripePlanID == "" {
		return model.Subscription{}, ErrUnknownPlan
	}
	if s.billing == nil {
		return model.Subscription{}, ErrBillingUnavailable
	}
	if cur, err := s.store.Current(ctx, organizerID); err == nil && (cur.Live() || cur.Status == model.SubscriptionPastDue) {
		return model.Subscription{}, ErrAlreadySubscribed
	} else if err != nil && !errors.Is(err, repository.ErrSubscriptionNotFound) {
		return model.Subscription{}, err
	}

	u, err := s.users.GetByID(ctx, organizerID)
	if err != nil {
		return model.Subscription{}, err
	}
	customerID := ""
	if u.StripeCustomerID != nil {
		customerID = *u.StripeCustomerID
	}
	if customerID == "" {
		if customerID, err = s.billing.EnsureCustomer(ctx, u.Email, u.Name, u.ID); err != nil {
			return model.Subscription{}, err
		}
		if err := s.users.SetStripeCustomerID(ctx, u.ID, customerID); err != nil {
			return model.Subscription{}, err
		}
	}

	upd, err := s.billing.Subscribe(ctx, customerID, plan.StripePlanID, u.ID)
	if err != nil {
		return model.Subscription{}, err
	}
	sub := model.Subscription{
		UserID:                 u.ID,
		PlanCode:               plan.Code,
		ProviderSubscriptionID: upd.ID,
		Status:                 upd.Status,
		CurrentPeriodEnd:       upd.CurrentPeriodEnd,
	}
	if err := s.store.Upsert(ctx, sub); err != nil {
		return model.Subscription{}, err
	}
	return sub, nil
}

// Cancel asks Stripe to end the organizer's subscription at the end of the
// paid period.  The local status follows through webhooks.
func (s *SubscriptionService) Cancel(ctx context.Context, organizerID uint64) (model.Subscription, error) {
	if s.billing == nil {
		return model.Subscription{}, ErrBillingUnavailable
	}
	sub, err := s.store.Current(ctx, organizerID)
	if err != nil {
		return model.Subscription{}, err
	}
	if sub.Status == model.SubscriptionCanceled {
		return model.Subscription{}, repository.ErrSubscriptionNotFound
	}
	upd, err := s.billing.CancelSubscription(ctx, sub.ProviderSubscriptionID)
	if err != nil {
		return model.Subscription{}, err
	}
	if err := s.store.UpdateStatus(ctx, sub.ProviderSubscriptionID, upd.Status, upd.CurrentPeriodEnd); err != nil {
		return model.Subscription{}, err
	}
	sub.Status = upd.Status
	if upd.CurrentPeriodEnd != nil {
		sub.CurrentPeriodEnd = upd.CurrentPeriodEnd
	}
	return sub, nil
}

// Sync applies a subscription webhook.  Unknown subscriptions are created
// when the Stripe customer maps to a local user.
func (s *SubscriptionService) Sync(ctx context.Context, upd payment.SubscriptionUpdate) error {
	if upd.ID == "" {
		return nil
	}
	_, err := s.store.GetByProviderID(ctx, upd.ID)
	if err == nil {
		return s.store.UpdateStatus(ctx, upd.ID, upd.Status, upd.CurrentPeriodEnd)
	}
	if !errors.Is(err, repository.ErrSubscriptionNotFound) {
		return err
	}
	if upd.CustomerID == "" || upd.Status == "" {
		return nil
	}
	u, err := s.users.GetByStripeCustomerID(ctx, upd.CustomerID)
	if err != nil {
		log.Printf("subscriptions: %s: no user for customer %s", upd.ID, upd.CustomerID)
		return nil
	}
	plan, ok := s.plans.ByStripePlan(upd.PlanID)
	if !ok {
		log.Printf("subscriptions: %s: plan %q not in catalog", upd.ID, upd.PlanID)
		return nil
	}
	return s.store.Upsert(ctx, model.Subscription{
		UserID:                 u.ID,
		PlanCode:               plan.Code,
		ProviderSubscriptionID: upd.ID,
		Status:                 upd.Status,
		CurrentPeriodEnd:       upd.CurrentPeriodEnd,
	})
}

// CanCreateEvent returns ErrPlanLimit when organizerID already has as
// many active events as their plan allows.
func (s *SubscriptionService) CanCreateEvent(ctx context.Context, organizerID uint64) error {
	if s.plans == nil {
		return nil
	}
	cur, err := s.Current(ctx, organizerID)
	if err != nil {
		return err
	}
	limit, ok := s.plans.EventLimit(cur.Plan.Code)
	if !ok {
		return nil
	}
	n, err := s.events.CountActiveByOrganizer(ctx, organizerID)
	if err != nil {
		return err
	}
	if n >= limit {
		return ErrPlanLimit
	}
	return nil
}
