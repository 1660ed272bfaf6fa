package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-platform/internal/payment"
	"github.com/iliyamo/ticketing-platform/internal/repository"
	"github.com/iliyamo/ticketing-platform/internal/service"
	"github.com/iliyamo/ticketing-platform/internal/utils"
)

// CustomerHandler serves checkout and the buyer dashboard.
type CustomerHandler struct {
	Orders  *service.OrderService
	Tickets *service.TicketService
	Users   *repository.UserRepo
}

// NewCustomerHandler constructs a CustomerHandler and panics on nil services.
func NewCustomerHandler(orders *service.OrderService, tickets *service.TicketService, users *repository.UserRepo) *CustomerHandler {
	if orders == nil || tickets == nil || users == nil {
		panic("nil dependency passed to NewCustomerHandler")
	}
	return &CustomerHandler{Orders: orders, Tickets: tickets, Users: users}
}

type checkoutReq struct {
	EventID   uint64                 `json:"event_id"`
	Items     []service.CheckoutItem `json:"items"`
	Provider  string                 `json:"provider"` // stripe | pagarme | pagseguro
	Method    string                 `json:"method"`   // card | pix | boleto
	CardToken string                 `json:"card_token"`
	Customer  struct {
		Name     string `json:"name"`
		Document string `json:"document"` // CPF/CNPJ, digits only
		Phone    string `json:"phone"`
	} `json:"customer"`
}

// digits keeps only ASCII digits of s.
func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Checkout handles POST /v1/checkout.
func (h *CustomerHandler) Checkout(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body checkoutReq
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.EventID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_id is required"})
	}
	ctx := c.Request().Context()
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return unauthorized(c)
	}
	name := strings.TrimSpace(body.Customer.Name)
	if name == "" {
		name = u.Name
	}
	res, err := h.Orders.Checkout(ctx, service.CheckoutRequest{
		UserID:    uid,
		UserEmail: u.Email,
		EventID:   body.EventID,
		Items:     body.Items,
		Provider:  body.Provider,
		Method:    body.Method,
		CardToken: strings.TrimSpace(body.CardToken),
		Customer: payment.Customer{
			Name:     name,
			Email:    u.Email,
			Document: digits(body.Customer.Document),
			Phone:    digits(body.Customer.Phone),
		},
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// ListOrders handles GET /v1/my-orders.
func (h *CustomerHandler) ListOrders(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	orders, err := h.Orders.List(c.Request().Context(), uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": orders})
}

// GetOrder handles GET /v1/my-orders/:id.
func (h *CustomerHandler) GetOrder(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	o, err := h.Orders.Get(c.Request().Context(), uid, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

// CancelOrder handles DELETE /v1/my-orders/:id for pending orders.
func (h *CustomerHandler) CancelOrder(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	if err := h.Orders.Cancel(c.Request().Context(), uid, id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RefundOrder handles POST /v1/my-orders/:id/refund.
func (h *CustomerHandler) RefundOrder(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	o, err := h.Orders.Refund(c.Request().Context(), uid, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

// ListTickets handles GET /v1/my-tickets.
func (h *CustomerHandler) ListTickets(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	tickets, err := h.Tickets.List(c.Request().Context(), uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": tickets})
}

// TicketQR handles GET /v1/my-tickets/:id/qr and returns a PNG.
func (h *CustomerHandler) TicketQR(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	size := utils.DefaultQRSize
	if s, err := strconv.Atoi(c.QueryParam("size")); err == nil && s >= 128 && s <= 1024 {
		size = s
	}
	png, err := h.Tickets.QR(c.Request().Context(), uid, id, size)
	if err != nil {
		return respondError(c, err)
	}
	c.Response().Header().Set("Cache-Control", "private, no-store")
	return c.Blob(http.StatusOK, "image/png", png)
}
