package router // router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-platform/internal/handler"
	"github.com/iliyamo/ticketing-platform/internal/middleware"
	"github.com/iliyamo/ticketing-platform/internal/model"
)

// RegisterRoutes registers the health checks, which need no authentication.
func RegisterRoutes(e *echo.Echo, ready *handler.ReadyHandler) {
	e.GET("/healthz", handler.Health)
	if ready != nil {
		e.GET("/readyz", ready.Ready)
	}
}

// RegisterAuth registers the session endpoints.  Register, login and
// refresh live under /v1/auth behind the auth rate limiter; /v1/me
// requires a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", limit)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// rotates the refresh token
	g.POST("/refresh", a.Refresh)
	// new access token only
	g.POST("/refresh-access", a.RefreshAccess)
	// accepts a refresh token in the body or a bearer token for all sessions
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleCustomer, model.RoleOrganizer),
	)
	auth.GET("/me", a.Me)
}

// RegisterPublic registers the unauthenticated discovery endpoints.  The
// listings go through the response cache.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, pay *handler.PaymentsHandler, cache, tokenLimit echo.MiddlewareFunc) {
	e.GET("/v1/events", p.ListEvents, cache)
	e.GET("/v1/events/:id", p.GetEvent)
	e.GET("/v1/plans", p.ListPlans, cache)

	e.GET("/v1/payments/config", pay.Config)
	e.GET("/v1/payments/pagarme/public-key", pay.PagarmePublicKey)
	// Card data goes straight to Pagar.me; throttled since it costs a provider call.
	e.POST("/v1/payments/pagarme/card-token", pay.PagarmeCardToken, tokenLimit)
}
