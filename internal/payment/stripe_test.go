package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go"
)

func TestStripeRejectsBadSignature(t *testing.T) {
	s := NewStripe(StripeConfig{SecretKey: "sk_test_x", WebhookSecret: "whsec_x", Currency: "brl"})
	require.NotNil(t, s)
	_, err := s.ParseWebhook("t=1,v1=deadbeef", []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`))
	assert.ErrorIs(t, err, ErrInvalidSignature)
	_, err = s.ParseWebhook("", []byte(`{}`))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestStripeCardOnly(t *testing.T) {
	s := NewStripe(StripeConfig{SecretKey: "sk_test_x"})
	_, err := s.CreatePayment(context.Background(), ChargeRequest{OrderID: 1, Method: MethodPix})
	assert.ErrorIs(t, err, ErrUnsupportedMethod)
	assert.Nil(t, NewStripe(StripeConfig{}))
}

func TestStripeIdempotencyKeyPerOrder(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_42","object":"payment_intent","client_secret":"pi_42_secret"}`))
	}))
	defer srv.Close()

	s := NewStripe(StripeConfig{SecretKey: "sk_test_x", Currency: "brl"})
	s.api.Init("sk_test_x", &stripe.Backends{
		API: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{URL: srv.URL}),
	})

	req := ChargeRequest{OrderID: 42, AmountCents: 5000, Method: MethodCard}
	for i := 0; i < 2; i++ {
		res, err := s.CreatePayment(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "pi_42", res.ProviderRef)
	}
	req.OrderID = 43
	_, err := s.CreatePayment(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"order-42", "order-42", "order-43"}, keys)
}

func TestParseStripePaymentIntent(t *testing.T) {
	data := json.RawMessage(`{"object":{"id":"pi_1","status":"succeeded","metadata":{"order_id":"31"},"latest_charge":"ch_1"}}`)
	n, err := ParseStripeEvent("evt_1", "payment_intent.succeeded", data)
	require.NoError(t, err)
	assert.Equal(t, Notification{EventID: "evt_1", Provider: ProviderStripe, Type: "payment_intent.succeeded",
		Kind: KindPaid, OrderID: 31, ProviderRef: "pi_1", ChargeRef: "ch_1"}, n)

	legacy := json.RawMessage(`{"object":{"id":"pi_2","metadata":{"order_id":"32"},"charges":{"data":[{"id":"ch_2"}]}}}`)
	n, err = ParseStripeEvent("evt_2", "payment_intent.payment_failed", legacy)
	require.NoError(t, err)
	assert.Equal(t, KindFailed, n.Kind)
	assert.Equal(t, "ch_2", n.ChargeRef)
}

func TestParseStripeRefundAndSubscription(t *testing.T) {
	n, err := ParseStripeEvent("evt_3", "charge.refunded", json.RawMessage(`{"object":{"id":"ch_3","payment_intent":"pi_3","metadata":{}}}`))
	require.NoError(t, err)
	assert.Equal(t, KindRefunded, n.Kind)
	assert.Equal(t, "pi_3", n.ProviderRef)
	assert.Zero(t, n.OrderID)

	n, err = ParseStripeEvent("evt_4", "customer.subscription.updated",
		json.RawMessage(`{"object":{"id":"sub_1","status":"active","customer":"cus_1","current_period_end":1790000000,"plan":{"id":"plan_pro"}}}`))
	require.NoError(t, err)
	require.NotNil(t, n.Subscription)
	assert.Equal(t, KindSubscription, n.Kind)
	assert.Equal(t, "sub_1", n.Subscription.ID)
	assert.Equal(t, "plan_pro", n.Subscription.PlanID)
	assert.Equal(t, "active", n.Subscription.Status)
	require.NotNil(t, n.Subscription.CurrentPeriodEnd)
	assert.Equal(t, int64(1790000000), n.Subscription.CurrentPeriodEnd.Unix())

	n, err = ParseStripeEvent("evt_5", "customer.subscription.deleted", json.RawMessage(`{"object":{"id":"sub_1","status":"active"}}`))
	require.NoError(t, err)
	assert.Equal(t, "canceled", n.Subscription.Status)

	n, err = ParseStripeEvent("evt_6", "invoice.payment_failed", json.RawMessage(`{"object":{"id":"in_1","subscription":"sub_1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "past_due", n.Subscription.Status)

	n, err = ParseStripeEvent("evt_7", "product.created", json.RawMessage(`{"object":{"id":"prod_1"}}`))
	require.NoError(t, err)
	assert.Equal(t, KindIgnored, n.Kind)
}

func TestRegistry(t *testing.T) {
	r := Registry{}
	r.Register(nil)
	r.Register(NewPagarme(PagarmeConfig{}))
	r.Register(NewPagSeguro(PagSeguroConfig{Token: "tok", BaseURL: "http://x"}))
	r.Register(NewStripe(StripeConfig{SecretKey: "sk"}))
	assert.Equal(t, []string{ProviderStripe, ProviderPagSeguro}, r.Names())

	g, err := r.Get("pagseguro")
	require.NoError(t, err)
	assert.Equal(t, ProviderPagSeguro, g.Name())
	_, err = r.Get("pagarme")
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	m, err := NormalizeMethod(" pix ")
	require.NoError(t, err)
	assert.Equal(t, MethodPix, m)
	m, err = NormalizeMethod("")
	require.NoError(t, err)
	assert.Equal(t, MethodCard, m)
	_, err = NormalizeMethod("cash")
	assert.ErrorIs(t, err, ErrUnsupportedMethod)
}
