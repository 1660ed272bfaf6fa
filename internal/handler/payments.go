package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-platform/internal/payment"
)

// maxWebhookBody caps how much of a webhook request is read.
const maxWebhookBody = 1 << 20

// PaymentsHandler exposes the client-side payment configuration and the
// Pagar.me card tokenization proxy.  Nil gateways are not configured.
type PaymentsHandler struct {
	Stripe    *payment.Stripe
	Pagarme   *payment.Pagarme
	PagSeguro *payment.PagSeguro
}

// Config handles GET /v1/payments/config.
func (h *PaymentsHandler) Config(c echo.Context) error {
	out := echo.Map{"providers": []string{}}
	var providers []string
	if h.Stripe != nil {
		providers = append(providers, strings.ToLower(payment.ProviderStripe))
		out["stripe_publishable_key"] = h.Stripe.PublishableKey()
	}
	if h.Pagarme != nil {
		providers = append(providers, strings.ToLower(payment.ProviderPagarme))
		out["pagarme_public_key"] = h.Pagarme.PublicKey()
	}
	if h.PagSeguro != nil {
		providers = append(providers, strings.ToLower(payment.ProviderPagSeguro))
	}
	if providers != nil {
		out["providers"] = providers
	}
	return c.JSON(http.StatusOK, out)
}

// PagarmePublicKey handles GET /v1/payments/pagarme/public-key.
func (h *PaymentsHandler) PagarmePublicKey(c echo.Context) error {
	if h.Pagarme == nil || h.Pagarme.PublicKey() == "" {
		return c.JSON(http.StatusNotFound, echo.Map{"error": payment.ErrProviderUnavailable.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"public_key": h.Pagarme.PublicKey()})
}

// PagarmeCardToken handles POST /v1/payments/pagarme/card-token.  Card
// data is forwarded to Pagar.me and never stored or logged.
func (h *PaymentsHandler) PagarmeCardToken(c echo.Context) error {
	if h.Pagarme == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": payment.ErrProviderUnavailable.Error()})
	}
	var card payment.Card
	if err := c.Bind(&card); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	card.Number = digits(card.Number)
	card.HolderName = strings.TrimSpace(card.HolderName)
	if len(card.Number) < 12 || card.HolderName == "" || card.ExpMonth < 1 || card.ExpMonth > 12 || card.ExpYear < 1 || len(card.CVV) < 3 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid card data"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()
	token, err := h.Pagarme.Tokenize(ctx, card)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"card_token": token})
}

// WebhookParser verifies and decodes one provider's webhook bodies.
type WebhookParser interface {
	ParseWebhook(signature string, body []byte) (payment.Notification, error)
}

// WebhookProcessor applies decoded notifications.
type WebhookProcessor interface {
	Process(ctx context.Context, n payment.Notification) error
}

type webhookSource struct {
	header string
	parser WebhookParser
}

// WebhookHandler receives provider callbacks.  Every body is verified
// against its signature header before anything is decoded.
type WebhookHandler struct {
	sources   map[string]webhookSource
	processor WebhookProcessor
}

// NewWebhookHandler returns a handler with no providers; add them with
// Register.
func NewWebhookHandler(p WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{sources: map[string]webhookSource{}, processor: p}
}

// Register routes provider's webhooks to parser, reading the signature
// from header.
func (h *WebhookHandler) Register(provider, header string, parser WebhookParser) {
	h.sources[payment.NormalizeProvider(provider)] = webhookSource{header: header, parser: parser}
}

// Receive returns the echo handler for provider's webhook endpoint.
// Invalid signatures answer 401, undecodable bodies 400 and processing
// failures 500 so the provider retries; everything else is 200.
func (h *WebhookHandler) Receive(provider string) echo.HandlerFunc {
	provider = payment.NormalizeProvider(provider)
	return func(c echo.Context) error {
		src, ok := h.sources[provider]
		if !ok {
			return c.JSON(http.StatusNotFound, echo.Map{"error": payment.ErrProviderUnavailable.Error()})
		}
		body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
		}
		n, err := src.parser.ParseWebhook(c.Request().Header.Get(src.header), body)
		if err != nil {
			if errors.Is(err, payment.ErrInvalidSignature) {
				c.Logger().Warnf("webhook %s: invalid signature from %s", provider, c.RealIP())
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid signature"})
			}
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
		}
		if err := h.processor.Process(c.Request().Context(), n); err != nil {
			c.Logger().Errorf("webhook %s %s (%s): %v", provider, n.Type, n.EventID, err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "processing failed"})
		}
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	}
}
