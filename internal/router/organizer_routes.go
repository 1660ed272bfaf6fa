package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-platform/internal/handler"
	"github.com/iliyamo/ticketing-platform/internal/middleware"
	"github.com/iliyamo/ticketing-platform/internal/model"
)

// RegisterOrganizer registers ORGANIZER-scoped endpoints under
// /v1/organizer.  purge drops the public listing cache after writes.
func RegisterOrganizer(e *echo.Echo, o *handler.OrganizerHandler, s *handler.SubscriptionHandler, jwtSecret string, purge echo.MiddlewareFunc) {
	g := e.Group(
		"/v1/organizer",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleOrganizer),
		purge,
	)

	// ---- Events ----
	g.POST("/events", o.CreateEvent)
	g.GET("/events", o.ListEvents)
	g.GET("/events/:id", o.GetEvent)
	g.PUT("/events/:id", o.UpdateEvent)
	g.PATCH("/events/:id", o.UpdateEvent)
	g.POST("/events/:id/publish", o.PublishEvent)
	g.POST("/events/:id/unpublish", o.UnpublishEvent)
	g.POST("/events/:id/cancel", o.CancelEvent)
	g.DELETE("/events/:id", o.DeleteEvent)

	// ---- Ticket types (lots) ----
	g.POST("/events/:id/ticket-types", o.CreateTicketType)
	g.PUT("/events/:id/ticket-types/:type_id", o.UpdateTicketType)
	g.DELETE("/events/:id/ticket-types/:type_id", o.DeleteTicketType)

	// ---- Dashboard and door ----
	g.GET("/events/:id/analytics", o.EventAnalytics)
	g.POST("/checkin", o.CheckIn)

	// ---- Plan ----
	g.GET("/subscription", s.Current)
	g.POST("/subscription", s.Subscribe)
	g.DELETE("/subscription", s.Cancel)
}

// RegisterWebhooks mounts the provider callbacks.  They carry no JWT; each
// body is authenticated by its provider signature.
func RegisterWebhooks(e *echo.Echo, w *handler.WebhookHandler) {
	e.POST("/webhooks/stripe", w.Receive("stripe"))
	e.POST("/webhooks/pagarme", w.Receive("pagarme"))
	e.POST("/webhooks/pagseguro", w.Receive("pagseguro"))
}
