package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/stripe/stripe-go"
	"github.com/stripe/stripe-go/client"
	"github.com/stripe/stripe-go/webhook"
)

// Stripe charges cards through PaymentIntents and manages organizer plan
// subscriptions.  The browser confirms the intent with the returned
// client secret; the outcome arrives through the webhook.
type Stripe struct {
	api            *client.API
	publishableKey string
	webhookSecret  string
	currency       string
}

// StripeConfig configures NewStripe.
type StripeConfig struct {
	SecretKey      string
	PublishableKey string
	WebhookSecret  string
	Currency       string
}

// NewStripe returns nil when no secret key is configured.
func NewStripe(cfg StripeConfig) *Stripe {
	if cfg.SecretKey == "" {
		return nil
	}
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return &Stripe{
		api:            api,
		publishableKey: cfg.PublishableKey,
		webhookSecret:  cfg.WebhookSecret,
		currency:       cfg.Currency,
	}
}

func (s *Stripe) Name() string { return ProviderStripe }

// PublishableKey is handed to the browser for Stripe.js.
func (s *Stripe) PublishableKey() string { return s.publishableKey }

// CreatePayment creates a card PaymentIntent tagged with the order ID.
func (s *Stripe) CreatePayment(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if req.Method != MethodCard {
		return ChargeResult{}, ErrUnsupportedMethod
	}
	currency := req.Currency
	if currency == "" {
		currency = s.currency
	}
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(int64(req.AmountCents)),
		Currency:           stripe.String(currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Description:        stripe.String(req.Description),
	}
	if req.Customer.Email != "" {
		params.ReceiptEmail = stripe.String(req.Customer.Email)
	}
	params.AddMetadata("order_id", orderCode(req.OrderID))
	params.SetIdempotencyKey("order-" + orderCode(req.OrderID))
	params.Context = ctx

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return ChargeResult{}, stripeError(err)
	}
	return ChargeResult{
		ProviderRef:  pi.ID,
		Status:       StatusPending,
		ClientSecret: pi.ClientSecret,
	}, nil
}

// Refund refunds the whole PaymentIntent.
func (s *Stripe) Refund(ctx context.Context, req RefundRequest) error {
	if req.ProviderRef == "" {
		return &ProviderError{Provider: ProviderStripe, Status: http.StatusBadRequest, Message: "order has no payment intent"}
	}
	params := &stripe.RefundParams{PaymentIntent: stripe.String(req.ProviderRef)}
	params.SetIdempotencyKey("refund-" + req.ProviderRef)
	params.Context = ctx
	if _, err := s.api.Refunds.New(params); err != nil {
		return stripeError(err)
	}
	return nil
}

// EnsureCustomer creates a Stripe customer for an organizer.
func (s *Stripe) EnsureCustomer(ctx context.Context, email, name string, userID uint64) (string, error) {
	params := &stripe.CustomerParams{Email: stripe.String(email), Name: stripe.String(name)}
	params.AddMetadata("user_id", strconv.FormatUint(userID, 10))
	params.Context = ctx
	c, err := s.api.Customers.New(params)
	if err != nil {
		return "", stripeError(err)
	}
	return c.ID, nil
}

// Subscribe starts a subscription of customerID to a Stripe plan.
func (s *Stripe) Subscribe(ctx context.Context, customerID, planID string, userID uint64) (SubscriptionUpdate, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items:    []*stripe.SubscriptionItemsParams{{Plan: stripe.String(planID)}},
	}
	params.AddMetadata("user_id", strconv.FormatUint(userID, 10))
	params.Context = ctx
	sub, err := s.api.Subscriptions.New(params)
	if err != nil {
		return SubscriptionUpdate{}, stripeError(err)
	}
	return subscriptionUpdate(sub.ID, customerID, planID, string(sub.Status), sub.CurrentPeriodEnd), nil
}

// CancelSubscription stops renewal at the end of the current period.
func (s *Stripe) CancelSubscription(ctx context.Context, subscriptionID string) (SubscriptionUpdate, error) {
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
	params.Context = ctx
	sub, err := s.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return SubscriptionUpdate{}, stripeError(err)
	}
	return subscriptionUpdate(sub.ID, "", "", string(sub.Status), sub.CurrentPeriodEnd), nil
}

func subscriptionUpdate(id, customer, plan, status string, periodEnd int64) SubscriptionUpdate {
	u := SubscriptionUpdate{ID: id, CustomerID: customer, PlanID: plan, Status: status}
	if periodEnd > 0 {
		t := time.Unix(periodEnd, 0).UTC()
		u.CurrentPeriodEnd = &t
	}
	return u
}

func stripeError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return &ProviderError{Provider: ProviderStripe, Status: se.HTTPStatusCode, Message: se.Msg}
	}
	return err
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event.
func (s *Stripe) ParseWebhook(signature string, body []byte) (Notification, error) {
	ev, err := webhook.ConstructEvent(body, signature, s.webhookSecret)
	if err != nil {
		return Notification{}, ErrInvalidSignature
	}
	var raw json.RawMessage
	if ev.Data != nil {
		raw = ev.Data.Raw
	}
	return ParseStripeEvent(ev.ID, ev.Type, raw)
}

type stripeObject struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	Metadata      map[string]string `json:"metadata"`
	PaymentIntent string            `json:"payment_intent"`
	LatestCharge  string            `json:"latest_charge"`
	Charges       struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	} `json:"charges"`
	Customer         string `json:"customer"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
	Plan             *struct {
		ID string `json:"id"`
	} `json:"plan"`
	Subscription string `json:"subscription"`
}

// ParseStripeEvent maps a verified event's type and data.object to a
// Notification.  Types outside the handled set come back as KindIgnored.
func ParseStripeEvent(id, typ string, data json.RawMessage) (Notification, error) {
	n := Notification{EventID: id, Provider: ProviderStripe, Type: typ, Kind: KindIgnored}
	if len(data) == 0 {
		return n, nil
	}
	var envelope struct {
		Object stripeObject `json:"object"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return n, err
	}
	obj := envelope.Object

	switch typ {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
		n.ProviderRef = obj.ID
		n.OrderID = parseOrderCode(obj.Metadata["order_id"])
		n.ChargeRef = obj.LatestCharge
		if n.ChargeRef == "" && len(obj.Charges.Data) > 0 {
			n.ChargeRef = obj.Charges.Data[0].ID
		}
		switch typ {
		case "payment_intent.succeeded":
			n.Kind = KindPaid
		case "payment_intent.payment_failed":
			n.Kind = KindFailed
		default:
			n.Kind = KindCanceled
		}
	case "charge.refunded":
		n.Kind = KindRefunded
		n.ProviderRef = obj.PaymentIntent
		n.ChargeRef = obj.ID
		n.OrderID = parseOrderCode(obj.Metadata["order_id"])
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		n.Kind = KindSubscription
		plan := ""
		if obj.Plan != nil {
			plan = obj.Plan.ID
		}
		status := obj.Status
		if typ == "customer.subscription.deleted" {
			status = "canceled"
		}
		u := subscriptionUpdate(obj.ID, obj.Customer, plan, status, obj.CurrentPeriodEnd)
		n.Subscription = &u
	case "invoice.payment_failed":
		if obj.Subscription != "" {
			n.Kind = KindSubscription
			n.Subscription = &SubscriptionUpdate{ID: obj.Subscription, CustomerID: obj.Customer, Status: "past_due"}
		}
	}
	return n, nil
}
