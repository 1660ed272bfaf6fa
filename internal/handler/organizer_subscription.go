package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-platform/internal/service"
)

// SubscriptionHandler lets organizers manage their plan.
type SubscriptionHandler struct {
	Plans *service.SubscriptionService
}

// Current handles GET /v1/organizer/subscription.
func (h *SubscriptionHandler) Current(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	cur, err := h.Plans.Current(c.Request().Context(), uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, cur)
}

type subscribeReq struct {
	PlanCode string `json:"plan_code"`
}

// Subscribe handles POST /v1/organizer/subscription.
func (h *SubscriptionHandler) Subscribe(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body subscribeReq
	if err := c.Bind(&body); err != nil || strings.TrimSpace(body.PlanCode) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "plan_code is required"})
	}
	sub, err := h.Plans.Subscribe(c.Request().Context(), uid, strings.TrimSpace(body.PlanCode))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, sub)
}

// Cancel handles DELETE /v1/organizer/subscription.
func (h *SubscriptionHandler) Cancel(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	sub, err := h.Plans.Cancel(c.Request().Context(), uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, sub)
}
