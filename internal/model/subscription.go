package model

import "time"

// Subscription statuses mirror Stripe's subscription status values.
const (
	SubscriptionIncomplete = "incomplete"
	SubscriptionActive     = "active"
	SubscriptionTrialing   = "trialing"
	SubscriptionPastDue    = "past_due"
	SubscriptionCanceled   = "canceled"
	SubscriptionUnpaid     = "unpaid"
)

// Subscription is an organizer's paid plan.  ProviderSubscriptionID is the
// Stripe subscription ID and is unique.
type Subscription struct {
	ID                     uint64     `json:"id"`
	UserID                 uint64     `json:"user_id"`
	PlanCode               string     `json:"plan_code"`
	ProviderSubscriptionID string     `json:"provider_subscription_id"`
	Status                 string     `json:"status"`
	CurrentPeriodEnd       *time.Time `json:"current_period_end,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// Live reports whether the subscription grants plan benefits.
func (s Subscription) Live() bool {
	return s.Status == SubscriptionActive || s.Status == SubscriptionTrialing
}
