package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPagarmeTest(t *testing.T, h http.HandlerFunc) *Pagarme {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewPagarme(PagarmeConfig{SecretKey: "sk_test", PublicKey: "pk_test", BaseURL: srv.URL + "/", WebhookSecret: "whsec"})
}

func TestNewPagarmeWithoutKey(t *testing.T) {
	assert.Nil(t, NewPagarme(PagarmeConfig{}))
}

func TestPagarmeCreatePix(t *testing.T) {
	var got map[string]any
	p := newPagarmeTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "sk_test", user)
		assert.Empty(t, pass)
		assert.Equal(t, "order-77", r.Header.Get("Idempotency-Key"))
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &got))
		_, _ = w.Write([]byte(`{"id":"or_1","code":"77","status":"pending","charges":[{"id":"ch_1","status":"pending",
			"last_transaction":{"qr_code":"000201PIX","qr_code_url":"https://pix/qr.png","expires_at":"2026-10-19T12:30:00Z"}}]}`))
	})

	res, err := p.CreatePayment(context.Background(), ChargeRequest{
		OrderID: 77, AmountCents: 5000, Currency: "brl", Method: MethodPix,
		Customer: Customer{Name: "Ana", Email: "ana@example.com", Document: "12345678901", Phone: "11987654321"},
		Items:    []Item{{Code: "tt-3", Description: "Pista", Quantity: 2, UnitCents: 2500}},
	})
	require.NoError(t, err)
	assert.Equal(t, "or_1", res.ProviderRef)
	assert.Equal(t, "ch_1", res.ChargeRef)
	assert.Equal(t, StatusPending, res.Status)
	assert.Equal(t, "000201PIX", res.PixQRCode)
	assert.Equal(t, "https://pix/qr.png", res.PixQRCodeURL)
	require.NotNil(t, res.ExpiresAt)

	assert.Equal(t, "77", got["code"])
	payments := got["payments"].([]any)
	require.Len(t, payments, 1)
	assert.Equal(t, "pix", payments[0].(map[string]any)["payment_method"])
	customer := got["customer"].(map[string]any)
	assert.Equal(t, "individual", customer["type"])
	phone := customer["phones"].(map[string]any)["mobile_phone"].(map[string]any)
	assert.Equal(t, "11", phone["area_code"])
	assert.Equal(t, "987654321", phone["number"])
	items := got["items"].([]any)
	assert.EqualValues(t, 2500, items[0].(map[string]any)["amount"])
}

func TestPagarmeCardRequiresToken(t *testing.T) {
	p := newPagarmeTest(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := p.CreatePayment(context.Background(), ChargeRequest{OrderID: 1, Method: MethodCard})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusBadRequest, pe.Status)
}

func TestPagarmeCardPaidImmediately(t *testing.T) {
	p := newPagarmeTest(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"or_2","status":"paid","charges":[{"id":"ch_2","status":"paid"}]}`))
	})
	res, err := p.CreatePayment(context.Background(), ChargeRequest{OrderID: 2, Method: MethodCard, CardToken: "token_x"})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, res.Status)
}

func TestPagarmeDeclined(t *testing.T) {
	p := newPagarmeTest(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"or_3","status":"failed","charges":[{"id":"ch_3","status":"failed"}]}`))
	})
	_, err := p.CreatePayment(context.Background(), ChargeRequest{OrderID: 3, Method: MethodCard, CardToken: "token_x"})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusPaymentRequired, pe.Status)
}

func TestPagarmeErrorStatus(t *testing.T) {
	p := newPagarmeTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"The request is invalid."}`))
	})
	_, err := p.CreatePayment(context.Background(), ChargeRequest{OrderID: 4, Method: MethodBoleto})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusUnprocessableEntity, pe.Status)
	assert.Equal(t, "The request is invalid.", pe.Message)
	assert.Contains(t, err.Error(), "pagarme")
}

func TestPagarmeRefund(t *testing.T) {
	called := false
	p := newPagarmeTest(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/charges/ch_9", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"ch_9","status":"canceled"}`))
	})
	require.NoError(t, p.Refund(context.Background(), RefundRequest{ChargeRef: "ch_9"}))
	assert.True(t, called)

	err := p.Refund(context.Background(), RefundRequest{})
	assert.Error(t, err)
}

func TestPagarmeTokenize(t *testing.T) {
	p := newPagarmeTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tokens", r.URL.Path)
		assert.Equal(t, "pk_test", r.URL.Query().Get("appId"))
		assert.Empty(t, r.Header.Get("Authorization"))
		var in struct {
			Type string `json:"type"`
			Card Card   `json:"card"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "card", in.Type)
		assert.Equal(t, "4000000000000010", in.Card.Number)
		_, _ = w.Write([]byte(`{"id":"token_abc","type":"card"}`))
	})
	tok, err := p.Tokenize(context.Background(), Card{Number: "4000000000000010", HolderName: "ANA", ExpMonth: 1, ExpYear: 30, CVV: "123"})
	require.NoError(t, err)
	assert.Equal(t, "token_abc", tok)
	assert.Equal(t, "pk_test", p.PublicKey())
}

func TestPagarmeParseWebhook(t *testing.T) {
	p := NewPagarme(PagarmeConfig{SecretKey: "sk", WebhookSecret: "whsec"})
	body := []byte(`{"id":"hook_1","type":"order.paid","data":{"id":"or_5","code":"15","status":"paid","charges":[{"id":"ch_5"}]}}`)

	n, err := p.ParseWebhook(SignHubSignature("whsec", body), body)
	require.NoError(t, err)
	assert.Equal(t, Notification{EventID: "hook_1", Provider: ProviderPagarme, Type: "order.paid", Kind: KindPaid,
		OrderID: 15, ProviderRef: "or_5", ChargeRef: "ch_5"}, n)

	_, err = p.ParseWebhook("sha256=00", body)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	_, err = p.ParseWebhook("", body)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestParsePagarmeChargeEvent(t *testing.T) {
	n, err := ParsePagarmeEvent([]byte(`{"id":"hook_2","type":"charge.refunded","data":{"id":"ch_6","order":{"id":"or_6","code":"16"}}}`))
	require.NoError(t, err)
	assert.Equal(t, KindRefunded, n.Kind)
	assert.Equal(t, uint64(16), n.OrderID)
	assert.Equal(t, "or_6", n.ProviderRef)
	assert.Equal(t, "ch_6", n.ChargeRef)

	n, err = ParsePagarmeEvent([]byte(`{"id":"hook_3","type":"customer.created","data":{"id":"cus_1"}}`))
	require.NoError(t, err)
	assert.Equal(t, KindIgnored, n.Kind)

	_, err = ParsePagarmeEvent([]byte(`not json`))
	assert.Error(t, err)
}
