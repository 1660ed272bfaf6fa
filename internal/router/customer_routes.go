package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-platform/internal/handler"
	"github.com/iliyamo/ticketing-platform/internal/middleware"
	"github.com/iliyamo/ticketing-platform/internal/model"
)

// RegisterCustomer registers the buyer endpoints under /v1.  Organizers
// can buy tickets too, so both roles are accepted.  Checkout has its own
// rate limiter.
func RegisterCustomer(e *echo.Echo, h *handler.CustomerHandler, jwtSecret string, checkoutLimit echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleCustomer, model.RoleOrganizer),
	)
	g.POST("/checkout", h.Checkout, checkoutLimit)

	g.GET("/my-orders", h.ListOrders)
	g.GET("/my-orders/:id", h.GetOrder)
	g.DELETE("/my-orders/:id", h.CancelOrder)
	g.POST("/my-orders/:id/refund", h.RefundOrder)

	g.GET("/my-tickets", h.ListTickets)
	g.GET("/my-tickets/:id/qr", h.TicketQR)
}
