package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPagSeguroTest(t *testing.T, h http.HandlerFunc) *PagSeguro {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewPagSeguro(PagSeguroConfig{Token: "tok", BaseURL: srv.URL, NotifyURL: "https://example.com/webhooks/pagseguro"})
}

func TestPagSeguroCreatePix(t *testing.T) {
	p := newPagSeguroTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var in pagseguroOrder
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "42", in.ReferenceID)
		require.Len(t, in.QRCodes, 1)
		assert.Equal(t, uint32(1500), in.QRCodes[0].Amount.Value)
		assert.Empty(t, in.Charges)
		assert.Equal(t, []string{"https://example.com/webhooks/pagseguro"}, in.NotificationURLs)
		_, _ = w.Write([]byte(`{"id":"ORDE_1","reference_id":"42","qr_codes":[{"id":"QRCO_1","text":"00020101","expiration_date":"2026-10-19T10:00:00-03:00",
			"links":[{"rel":"QRCODE.PNG","href":"https://pix/png"},{"rel":"QRCODE.BASE64","href":"https://pix/b64"}]}]}`))
	})
	res, err := p.CreatePayment(context.Background(), ChargeRequest{OrderID: 42, AmountCents: 1500, Method: MethodPix})
	require.NoError(t, err)
	assert.Equal(t, "ORDE_1", res.ProviderRef)
	assert.Equal(t, StatusPending, res.Status)
	assert.Equal(t, "00020101", res.PixQRCode)
	assert.Equal(t, "https://pix/png", res.PixQRCodeURL)
	require.NotNil(t, res.ExpiresAt)
}

func TestPagSeguroCreateCard(t *testing.T) {
	p := newPagSeguroTest(t, func(w http.ResponseWriter, r *http.Request) {
		var in pagseguroOrder
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		require.Len(t, in.Charges, 1)
		require.NotNil(t, in.Charges[0].PaymentMethod)
		assert.Equal(t, "CREDIT_CARD", in.Charges[0].PaymentMethod.Type)
		assert.Equal(t, "enc-card", in.Charges[0].PaymentMethod.Card.Encrypted)
		assert.Equal(t, "BRL", in.Charges[0].Amount.Currency)
		_, _ = w.Write([]byte(`{"id":"ORDE_2","charges":[{"id":"CHAR_2","status":"PAID","amount":{"value":900}}]}`))
	})
	res, err := p.CreatePayment(context.Background(), ChargeRequest{OrderID: 2, AmountCents: 900, Currency: "brl", Method: MethodCard, CardToken: "enc-card"})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, res.Status)
	assert.Equal(t, "CHAR_2", res.ChargeRef)
}

func TestPagSeguroBoletoUnsupported(t *testing.T) {
	p := newPagSeguroTest(t, func(w http.ResponseWriter, r *http.Request) { t.Fatal("no request expected") })
	_, err := p.CreatePayment(context.Background(), ChargeRequest{OrderID: 1, Method: MethodBoleto})
	assert.ErrorIs(t, err, ErrUnsupportedMethod)
}

func TestPagSeguroErrorMessage(t *testing.T) {
	p := newPagSeguroTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error_messages":[{"code":"40002","description":"invalid_parameter","parameter_name":"customer.tax_id"}]}`))
	})
	_, err := p.CreatePayment(context.Background(), ChargeRequest{OrderID: 1, Method: MethodPix})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "customer.tax_id: invalid_parameter", pe.Message)
}

func TestPagSeguroRefund(t *testing.T) {
	p := newPagSeguroTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/charges/CHAR_7/cancel", r.URL.Path)
		var in struct {
			Amount pagseguroAmount `json:"amount"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, uint32(700), in.Amount.Value)
		_, _ = w.Write([]byte(`{"id":"CHAR_7","status":"CANCELED"}`))
	})
	require.NoError(t, p.Refund(context.Background(), RefundRequest{ChargeRef: "CHAR_7", AmountCents: 700}))
}

func TestPagSeguroParseWebhook(t *testing.T) {
	p := NewPagSeguro(PagSeguroConfig{Token: "tok", BaseURL: "http://unused"})
	body := []byte(`{"id":"ORDE_3","reference_id":"9","charges":[{"id":"CHAR_3","status":"PAID","amount":{"value":100}}]}`)

	n, err := p.ParseWebhook(PagSeguroAuthenticityToken("tok", body), body)
	require.NoError(t, err)
	assert.Equal(t, KindPaid, n.Kind)
	assert.Equal(t, uint64(9), n.OrderID)
	assert.Equal(t, "ORDE_3", n.ProviderRef)
	assert.Equal(t, "CHAR_3", n.ChargeRef)
	assert.NotEmpty(t, n.EventID)

	again, err := ParsePagSeguroEvent(body)
	require.NoError(t, err)
	assert.Equal(t, n.EventID, again.EventID)

	_, err = p.ParseWebhook(PagSeguroAuthenticityToken("other", body), body)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestParsePagSeguroStatuses(t *testing.T) {
	cases := map[string]string{"DECLINED": KindFailed, "CANCELED": KindRefunded, "AUTHORIZED": KindIgnored}
	for status, kind := range cases {
		n, err := ParsePagSeguroEvent([]byte(`{"id":"ORDE_4","reference_id":"4","charges":[{"id":"CHAR_4","status":"` + status + `","amount":{"value":1}}]}`))
		require.NoError(t, err)
		assert.Equal(t, kind, n.Kind, status)
	}
}
