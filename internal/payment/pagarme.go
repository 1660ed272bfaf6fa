package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Pagarme is a client for the Pagar.me core v5 API.  The secret key
// authenticates server calls with HTTP basic auth; the public key is only
// used for card tokenization, which Pagar.me accepts without a secret.
type Pagarme struct {
	rest          restClient
	publicKey     string
	webhookSecret string
	pixTTL        time.Duration
	boletoDueDays int
}

// PagarmeConfig configures NewPagarme.
type PagarmeConfig struct {
	SecretKey     string
	PublicKey     string
	BaseURL       string
	WebhookSecret string
	PixTTL        time.Duration // lifetime of Pix QR codes, 30m when zero
}

// NewPagarme returns nil when no secret key is configured.
func NewPagarme(cfg PagarmeConfig) *Pagarme {
	if cfg.SecretKey == "" {
		return nil
	}
	secret := cfg.SecretKey
	if cfg.PixTTL <= 0 {
		cfg.PixTTL = 30 * time.Minute
	}
	return &Pagarme{
		rest: newRESTClient(ProviderPagarme, strings.TrimRight(cfg.BaseURL, "/"), func(r *http.Request) {
			r.SetBasicAuth(secret, "")
		}),
		publicKey:     cfg.PublicKey,
		webhookSecret: cfg.WebhookSecret,
		pixTTL:        cfg.PixTTL,
		boletoDueDays: 3,
	}
}

func (p *Pagarme) Name() string { return ProviderPagarme }

// PublicKey is the key browsers use to tokenize cards.
func (p *Pagarme) PublicKey() string { return p.publicKey }

type pagarmePhone struct {
	CountryCode string `json:"country_code"`
	AreaCode    string `json:"area_code"`
	Number      string `json:"number"`
}

type pagarmePhones struct {
	Mobile pagarmePhone `json:"mobile_phone"`
}

type pagarmeItem struct {
	Amount      uint32 `json:"amount"`
	Description string `json:"description"`
	Quantity    uint32 `json:"quantity"`
	Code        string `json:"code"`
}

type pagarmeOrderRequest struct {
	Code     string        `json:"code"`
	Items    []pagarmeItem `json:"items"`
	Customer struct {
		Name     string         `json:"name"`
		Email    string         `json:"email"`
		Document string         `json:"document,omitempty"`
		Type     string         `json:"type"`
		Phones   *pagarmePhones `json:"phones,omitempty"`
	} `json:"customer"`
	Payments []map[string]any `json:"payments"`
}

type pagarmeOrder struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Status  string `json:"status"`
	Charges []struct {
		ID              string `json:"id"`
		Status          string `json:"status"`
		LastTransaction struct {
			Status    string     `json:"status"`
			QRCode    string     `json:"qr_code"`
			QRCodeURL string     `json:"qr_code_url"`
			URL       string     `json:"url"`
			PDF       string     `json:"pdf"`
			Line      string     `json:"line"`
			ExpiresAt *time.Time `json:"expires_at"`
		} `json:"last_transaction"`
	} `json:"charges"`
}

// CreatePayment creates a Pagar.me order whose code is our order ID, with a
// single payment of the requested method.
func (p *Pagarme) CreatePayment(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	var payment map[string]any
	switch req.Method {
	case MethodCard:
		if req.CardToken == "" {
			return ChargeResult{}, &ProviderError{Provider: ProviderPagarme, Status: http.StatusBadRequest, Message: "card_token is required"}
		}
		payment = map[string]any{
			"payment_method": "credit_card",
			"credit_card": map[string]any{
				"card_token":           req.CardToken,
				"installments":         1,
				"statement_descriptor": "TICKETS",
			},
		}
	case MethodPix:
		payment = map[string]any{
			"payment_method": "pix",
			"pix":            map[string]any{"expires_in": int(p.pixTTL.Seconds())},
		}
	case MethodBoleto:
		payment = map[string]any{
			"payment_method": "boleto",
			"boleto": map[string]any{
				"instructions": "Pagar até o vencimento",
				"due_at":       time.Now().UTC().AddDate(0, 0, p.boletoDueDays).Format(time.RFC3339),
			},
		}
	default:
		return ChargeResult{}, ErrUnsupportedMethod
	}

	var body pagarmeOrderRequest
	body.Code = orderCode(req.OrderID)
	for _, it := range req.Items {
		body.Items = append(body.Items, pagarmeItem{Amount: it.UnitCents, Description: it.Description, Quantity: it.Quantity, Code: it.Code})
	}
	body.Customer.Name = req.Customer.Name
	body.Customer.Email = req.Customer.Email
	body.Customer.Document = req.Customer.Document
	body.Customer.Type = "individual"
	if len(req.Customer.Document) == 14 {
		body.Customer.Type = "company"
	}
	if ph := req.Customer.Phone; len(ph) >= 10 {
		body.Customer.Phones = &pagarmePhones{Mobile: pagarmePhone{CountryCode: "55", AreaCode: ph[:2], Number: ph[2:]}}
	}
	body.Payments = []map[string]any{payment}

	var out pagarmeOrder
	if err := p.rest.do(ctx, http.MethodPost, "/orders", body, &out, map[string]string{"Idempotency-Key": "order-" + body.Code}); err != nil {
		return ChargeResult{}, err
	}

	res := ChargeResult{ProviderRef: out.ID, Status: pagarmeStatus(out.Status)}
	if len(out.Charges) > 0 {
		ch := out.Charges[0]
		tx := ch.LastTransaction
		res.ChargeRef = ch.ID
		res.PixQRCode = tx.QRCode
		res.PixQRCodeURL = tx.QRCodeURL
		res.BoletoURL = firstNonEmpty(tx.PDF, tx.URL)
		res.BoletoBarcode = tx.Line
		res.ExpiresAt = tx.ExpiresAt
		if ch.Status == "failed" {
			res.Status = StatusFailed
		}
	}
	if res.Status == StatusFailed {
		return res, &ProviderError{Provider: ProviderPagarme, Status: http.StatusPaymentRequired, Message: "payment declined"}
	}
	return res, nil
}

// Refund cancels the charge, which refunds it in full.
func (p *Pagarme) Refund(ctx context.Context, req RefundRequest) error {
	if req.ChargeRef == "" {
		return &ProviderError{Provider: ProviderPagarme, Status: http.StatusBadRequest, Message: "order has no charge to refund"}
	}
	return p.rest.do(ctx, http.MethodDelete, "/charges/"+url.PathEscape(req.ChargeRef), nil, nil, nil)
}

// Card is raw card data posted by the browser for tokenization.  It is
// forwarded to Pagar.me and never stored or logged.
type Card struct {
	Number     string `json:"number"`
	HolderName string `json:"holder_name"`
	ExpMonth   int    `json:"exp_month"`
	ExpYear    int    `json:"exp_year"`
	CVV        string `json:"cvv"`
}

// Tokenize exchanges card data for a single-use card token.
func (p *Pagarme) Tokenize(ctx context.Context, card Card) (string, error) {
	if p.publicKey == "" {
		return "", ErrProviderUnavailable
	}
	in := map[string]any{"type": "card", "card": card}
	var out struct {
		ID string `json:"id"`
	}
	// Tokenization authenticates with the public key only.
	tr := p.rest
	tr.auth = nil
	if err := tr.do(ctx, http.MethodPost, "/tokens?appId="+url.QueryEscape(p.publicKey), in, &out, nil); err != nil {
		return "", err
	}
	return out.ID, nil
}

func pagarmeStatus(s string) string {
	switch s {
	case "paid":
		return StatusPaid
	case "failed", "canceled":
		return StatusFailed
	}
	return StatusPending
}

// ParseWebhook verifies the X-Hub-Signature of body and decodes it.
func (p *Pagarme) ParseWebhook(signature string, body []byte) (Notification, error) {
	if !VerifyHubSignature(p.webhookSecret, signature, body) {
		return Notification{}, ErrInvalidSignature
	}
	return ParsePagarmeEvent(body)
}

// ParsePagarmeEvent decodes an already verified Pagar.me webhook body.
// Order events carry the order in data; charge events carry the charge
// with its order nested.
func ParsePagarmeEvent(body []byte) (Notification, error) {
	var ev struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			ID      string `json:"id"`
			Code    string `json:"code"`
			Charges []struct {
				ID string `json:"id"`
			} `json:"charges"`
			Order *struct {
				ID   string `json:"id"`
				Code string `json:"code"`
			} `json:"order"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &ev); err != nil {
		return Notification{}, err
	}
	n := Notification{EventID: ev.ID, Provider: ProviderPagarme, Type: ev.Type, Kind: KindIgnored}
	switch ev.Type {
	case "order.paid":
		n.Kind = KindPaid
	case "order.payment_failed":
		n.Kind = KindFailed
	case "order.canceled":
		n.Kind = KindCanceled
	case "charge.refunded":
		n.Kind = KindRefunded
	}
	if strings.HasPrefix(ev.Type, "charge.") {
		n.ChargeRef = ev.Data.ID
		if ev.Data.Order != nil {
			n.ProviderRef = ev.Data.Order.ID
			n.OrderID = parseOrderCode(ev.Data.Order.Code)
		}
	} else {
		n.ProviderRef = ev.Data.ID
		n.OrderID = parseOrderCode(ev.Data.Code)
		if len(ev.Data.Charges) > 0 {
			n.ChargeRef = ev.Data.Charges[0].ID
		}
	}
	return n, nil
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}
