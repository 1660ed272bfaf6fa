// This file defines the public discovery API.  These routes allow
// unauthenticated users to browse published events and the organizer
// plans.  Organizer-only fields are left out of responses.

package handler

import (
    "context"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/ticketing-platform/internal/clock"
    "github.com/iliyamo/ticketing-platform/internal/model"
    "github.com/iliyamo/ticketing-platform/internal/repository"
    "github.com/iliyamo/ticketing-platform/internal/service"
)

// PublicHandler aggregates what unauthenticated browsing needs.
type PublicHandler struct {
    Events    *repository.EventRepo      // published events
    Types     *repository.TicketTypeRepo // lots with remaining quantity
    Analytics *service.AnalyticsService  // records detail page views
    Plans     *service.SubscriptionService
    Clock     clock.Clock // decides which lots are on sale
}

func (h *PublicHandler) now() time.Time {
    if h.Clock == nil {
        return clock.System().Now()
    }
    return h.Clock.Now()
}

// PublicTicketType is a lot as shown to buyers.
type PublicTicketType struct {
    ID         uint64     `json:"id"`
    Name       string     `json:"name"`
    PriceCents uint32     `json:"price_cents"`
    Remaining  uint32     `json:"remaining"`
    OnSale     bool       `json:"on_sale"`
    SalesStart *time.Time `json:"sales_start,omitempty"`
    SalesEnd   *time.Time `json:"sales_end,omitempty"`
}

// PublicEventDetail is the event page payload.
type PublicEventDetail struct {
    ID          uint64             `json:"id"`
    Title       string             `json:"title"`
    Description string             `json:"description"`
    Venue       string             `json:"venue"`
    City        string             `json:"city"`
    Category    string             `json:"category"`
    StartsAt    time.Time          `json:"starts_at"`
    EndsAt      time.Time          `json:"ends_at"`
    ImageURL    *string            `json:"image_url,omitempty"`
    TicketTypes []PublicTicketType `json:"ticket_types"`
}

// ListEvents handles GET /v1/events.
// time: "upcoming" (default, not yet ended) or "any"
func (h *PublicHandler) ListEvents(c echo.Context) error {
    timeFilter := strings.ToLower(strings.TrimSpace(c.QueryParam("time")))
    if timeFilter == "" {
        timeFilter = "upcoming"
    }

    page, _ := strconv.Atoi(c.QueryParam("page"))
    if page < 1 { page = 1 }
    ps, _ := strconv.Atoi(c.QueryParam("page_size"))
    if ps < 1 { ps = 20 }
    if ps > 100 { ps = 100 }

    q := repository.EventSearchQuery{
        Text:       strings.TrimSpace(c.QueryParam("q")),
        City:       strings.TrimSpace(c.QueryParam("city")),
        Category:   strings.TrimSpace(c.QueryParam("category")),
        TimeFilter: timeFilter,
        Page:       page,
        PageSize:   ps,
    }

    items, total, err := h.Events.SearchPublished(c.Request().Context(), q)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, echo.Map{
        "data":      items,
        "total":     total,
        "page":      page,
        "page_size": ps,
    })
}

// GetEvent handles GET /v1/events/:id.  Only published events are
// visible; the view is recorded best effort.
func (h *PublicHandler) GetEvent(c echo.Context) error {
    id, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    ctx := c.Request().Context()
    ev, err := h.Events.GetByID(ctx, id)
    if err != nil {
        return respondError(c, err)
    }
    if ev.Status != model.EventPublished {
        return c.JSON(http.StatusNotFound, echo.Map{"error": repository.ErrEventNotFound.Error()})
    }
    types, err := h.Types.ListByEvent(ctx, id)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }

    now := h.now()
    out := PublicEventDetail{
        ID: ev.ID, Title: ev.Title, Description: ev.Description, Venue: ev.Venue,
        City: ev.City, Category: ev.Category, StartsAt: ev.StartsAt, EndsAt: ev.EndsAt,
        ImageURL: ev.ImageURL, TicketTypes: make([]PublicTicketType, 0, len(types)),
    }
    for _, t := range types {
        out.TicketTypes = append(out.TicketTypes, PublicTicketType{
            ID: t.ID, Name: t.Name, PriceCents: t.PriceCents, Remaining: t.Remaining(),
            OnSale: t.OnSale(now) && now.Before(ev.StartsAt), SalesStart: t.SalesStart, SalesEnd: t.SalesEnd,
        })
    }

    if h.Analytics != nil {
        viewer := c.RealIP() + "|" + c.Request().UserAgent()
        vctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
        if err := h.Analytics.RecordView(vctx, ev.ID, viewer); err != nil {
            c.Logger().Warnf("record view of event %d: %v", ev.ID, err)
        }
        cancel()
    }
    return c.JSON(http.StatusOK, out)
}

// ListPlans handles GET /v1/plans.
func (h *PublicHandler) ListPlans(c echo.Context) error {
    if h.Plans == nil {
        return c.JSON(http.StatusOK, echo.Map{"items": []any{}})
    }
    return c.JSON(http.StatusOK, echo.Map{"items": h.Plans.Plans()})
}
