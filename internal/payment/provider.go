// Package payment talks to the payment processors.  Each processor is a
// Gateway; the Registry holds the ones that are configured.  Webhook
// bodies are turned into provider-neutral Notifications by the Parse*
// functions in each provider file.
package payment

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Provider names as stored in orders.provider.
const (
	ProviderStripe    = "STRIPE"
	ProviderPagarme   = "PAGARME"
	ProviderPagSeguro = "PAGSEGURO"
	ProviderFree      = "FREE"
)

// Payment methods as stored in orders.payment_method.
const (
	MethodCard   = "CARD"
	MethodPix    = "PIX"
	MethodBoleto = "BOLETO"
	MethodNone   = "NONE"
)

// Outcome of a CreatePayment call as far as the provider knows right away.
const (
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusFailed  = "failed"
)

var (
	// ErrUnsupportedMethod is returned when a provider cannot charge with
	// the requested method.
	ErrUnsupportedMethod = errors.New("payment method not supported by provider")
	// ErrProviderUnavailable is returned by Registry.Get for providers that
	// are unknown or have no credentials configured.
	ErrProviderUnavailable = errors.New("payment provider not available")
	// ErrInvalidSignature is returned by the webhook parsers.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// ProviderError carries a non-2xx answer from a processor.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", strings.ToLower(e.Provider), e.Status, e.Message)
}

// Customer is the buyer data processors require for Brazilian payments.
type Customer struct {
	Name     string
	Email    string
	Document string // CPF or CNPJ, digits only
	Phone    string // digits only, with area code
}

// Item is one order line as sent to the processor.
type Item struct {
	Code        string
	Description string
	Quantity    uint32
	UnitCents   uint32
}

// ChargeRequest asks a processor to collect AmountCents for an order.
type ChargeRequest struct {
	OrderID     uint64
	AmountCents uint32
	Currency    string
	Method      string
	CardToken   string
	Description string
	Customer    Customer
	Items       []Item
}

// ChargeResult is what the buyer needs to complete the payment.  Only the
// fields relevant to the method are set.
type ChargeResult struct {
	ProviderRef   string     `json:"provider_ref"`
	ChargeRef     string     `json:"-"`
	Status        string     `json:"status"`
	ClientSecret  string     `json:"client_secret,omitempty"`
	PixQRCode     string     `json:"pix_qr_code,omitempty"`
	PixQRCodeURL  string     `json:"pix_qr_code_url,omitempty"`
	BoletoURL     string     `json:"boleto_url,omitempty"`
	BoletoBarcode string     `json:"boleto_barcode,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// RefundRequest identifies what to refund.  ChargeRef is preferred where
// the provider refunds charges rather than orders.
type RefundRequest struct {
	ProviderRef string
	ChargeRef   string
	AmountCents uint32
}

// Gateway is implemented by each processor client.
type Gateway interface {
	Name() string
	CreatePayment(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Refund(ctx context.Context, req RefundRequest) error
}

// Registry maps provider names to configured gateways.
type Registry map[string]Gateway

// Register adds g under its name.  A nil gateway, including a typed nil
// pointer from an unconfigured New* constructor, is ignored.
func (r Registry) Register(g Gateway) {
	if g == nil {
		return
	}
	if v := reflect.ValueOf(g); v.Kind() == reflect.Ptr && v.IsNil() {
		return
	}
	r[g.Name()] = g
}

// Get returns the gateway for provider or ErrProviderUnavailable.
func (r Registry) Get(provider string) (Gateway, error) {
	g, ok := r[NormalizeProvider(provider)]
	if !ok {
		return nil, ErrProviderUnavailable
	}
	return g, nil
}

// Names lists the configured providers in a stable order.
func (r Registry) Names() []string {
	out := []string{}
	for _, p := range []string{ProviderStripe, ProviderPagarme, ProviderPagSeguro} {
		if _, ok := r[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// NormalizeProvider maps request values like "pagarme" to stored names.
func NormalizeProvider(p string) string { return strings.ToUpper(strings.TrimSpace(p)) }

// NormalizeMethod maps "pix" to PIX and validates it.  An empty method
// defaults to card.
func NormalizeMethod(m string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(m)) {
	case "", MethodCard, "CREDIT_CARD":
		return MethodCard, nil
	case MethodPix:
		return MethodPix, nil
	case MethodBoleto:
		return MethodBoleto, nil
	}
	return "", ErrUnsupportedMethod
}

// Notification kinds.
const (
	KindPaid         = "paid"
	KindFailed       = "failed"
	KindCanceled     = "canceled"
	KindRefunded     = "refunded"
	KindSubscription = "subscription"
	KindIgnored      = "ignored"
)

// Notification is a verified webhook delivery reduced to what order and
// subscription bookkeeping needs.  OrderID is zero when the provider did
// not echo our order code; ProviderRef is then used for the lookup.
type Notification struct {
	EventID      string
	Provider     string
	Type         string
	Kind         string
	OrderID      uint64
	ProviderRef  string
	ChargeRef    string
	Subscription *SubscriptionUpdate
}

// SubscriptionUpdate mirrors the provider's view of a plan subscription.
type SubscriptionUpdate struct {
	ID               string
	CustomerID       string
	PlanID           string
	Status           string
	CurrentPeriodEnd *time.Time
}

func parseOrderCode(s string) uint64 {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func orderCode(id uint64) string { return strconv.FormatUint(id, 10) }
