package handler // organizer-facing event and ticket type handlers

import (
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/ticketing-platform/internal/clock"
    "github.com/iliyamo/ticketing-platform/internal/model"
    "github.com/iliyamo/ticketing-platform/internal/repository"
    "github.com/iliyamo/ticketing-platform/internal/service"
)

// OrganizerHandler bundles what organizers need to run their events.
type OrganizerHandler struct {
    Events    *repository.EventRepo        // event persistence
    Types     *repository.TicketTypeRepo   // lot persistence
    Plans     *service.SubscriptionService // plan limits and billing
    Analytics *service.AnalyticsService    // dashboard report
    Tickets   *service.TicketService       // door check-in
    Clock     clock.Clock                  // start-time checks
}

// NewOrganizerHandler constructs an OrganizerHandler and panics if a repository is nil.
func NewOrganizerHandler(events *repository.EventRepo, types *repository.TicketTypeRepo, plans *service.SubscriptionService, analytics *service.AnalyticsService, tickets *service.TicketService, clk clock.Clock) *OrganizerHandler {
    if events == nil || types == nil {
        panic("nil repository passed to NewOrganizerHandler")
    }
    if clk == nil {
        clk = clock.System()
    }
    return &OrganizerHandler{Events: events, Types: types, Plans: plans, Analytics: analytics, Tickets: tickets, Clock: clk}
}

func (h *OrganizerHandler) now() time.Time {
    if h.Clock == nil {
        return clock.System().Now()
    }
    return h.Clock.Now()
}

type eventReq struct {
    Title       string  `json:"title"`
    Description string  `json:"description"`
    Venue       string  `json:"venue"`
    City        string  `json:"city"`
    Category    string  `json:"category"`
    StartsAt    string  `json:"starts_at"` // RFC3339
    EndsAt      string  `json:"ends_at"`   // RFC3339
    ImageURL    *string `json:"image_url"`
}

// toEvent validates the body and builds the event fields.
func (r eventReq) toEvent() (model.Event, string) {
    e := model.Event{
        Title:       strings.TrimSpace(r.Title),
        Description: strings.TrimSpace(r.Description),
        Venue:       strings.TrimSpace(r.Venue),
        City:        strings.TrimSpace(r.City),
        Category:    strings.ToLower(strings.TrimSpace(r.Category)),
        ImageURL:    r.ImageURL,
    }
    if e.Title == "" || e.Venue == "" {
        return e, "title and venue are required"
    }
    start, err := time.Parse(time.RFC3339, strings.TrimSpace(r.StartsAt))
    if err != nil {
        return e, "invalid starts_at format"
    }
    end, err := time.Parse(time.RFC3339, strings.TrimSpace(r.EndsAt))
    if err != nil {
        return e, "invalid ends_at format"
    }
    if !end.After(start) {
        return e, "ends_at must be after starts_at"
    }
    e.StartsAt, e.EndsAt = start.UTC(), end.UTC()
    return e, ""
}

// CreateEvent handles POST /v1/organizer/events.  New events start as DRAFT.
func (h *OrganizerHandler) CreateEvent(c echo.Context) error {
    orgID, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    var body eventReq
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    ev, msg := body.toEvent()
    if msg != "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
    }
    if !ev.StartsAt.After(h.now()) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "starts_at must be in the future"})
    }
    ctx := c.Request().Context()
    if h.Plans != nil {
        if err := h.Plans.CanCreateEvent(ctx, orgID); err != nil {
            return respondError(c, err)
        }
    }
    ev.OrganizerID = orgID
    if err := h.Events.Create(ctx, &ev); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create event"})
    }
    return c.JSON(http.StatusCreated, ev)
}

// ListEvents handles GET /v1/organizer/events.
func (h *OrganizerHandler) ListEvents(c echo.Context) error {
    orgID, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    events, err := h.Events.ListByOrganizer(c.Request().Context(), orgID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load events"})
    }
    return c.JSON(http.StatusOK, echo.Map{"items": events})
}

// GetEvent handles GET /v1/organizer/events/:id with its lots.
func (h *OrganizerHandler) GetEvent(c echo.Context) error {
    orgID, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    id, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    ev, err := h.Events.GetByIDAndOrganizer(c.Request().Context(), id, orgID)
    if err != nil {
        return respondError(c, err)
    }
    types, err := h.Types.ListByEvent(c.Request().Context(), id)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load ticket types"})
    }
    return c.JSON(http.StatusOK, echo.Map{"event": ev, "ticket_types": types})
}

// UpdateEvent handles PUT /v1/organizer/events/:id.
func (h *OrganizerHandler) UpdateEvent(c echo.Context) error {
    orgID, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    id, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    var body eventReq
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    ev, msg := body.toEvent()
    if msg != "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
    }
    ev.ID, ev.OrganizerID = id, orgID
    ctx := c.Request().Context()
    if err := h.Events.Update(ctx, ev); err != nil {
        return respondError(c, err)
    }
    fresh, err := h.Events.GetByID(ctx, id)
    if err != nil {
        return c.JSON(http.StatusOK, ev)
    }
    return c.JSON(http.StatusOK, fresh)
}

// PublishEvent handles POST /v1/organizer/events/:id/publish.  An event
// needs at least one ticket type and a future start to go on sale.
func (h *OrganizerHandler) PublishEvent(c echo.Context) error {
    orgID, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    id, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    ctx := c.Request().Context()
    ev, err := h.Events.GetByIDAndOrganizer(ctx, id, orgID)
    if err != nil {
        return respondError(c, err)
    }
    if !ev.StartsAt.After(h.now()) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "event already started"})
    }
    types, err := h.Types.ListByEvent(ctx, id)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load ticket types"})
    }
    if len(types) == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "add at least one ticket type before publishing"})
    }
    return h.setStatus(c, id, orgID, model.EventPublished)
}

// UnpublishEvent handles POST /v1/organizer/events/:id/unpublish.
func (h *OrganizerHandler) UnpublishEvent(c echo.Context) error {
    orgID, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    id, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    return h.setStatus(c, id, orgID, model.EventDraft)
}

// CancelEvent handles POST /v1/organizer/events/:id/cancel.  Paid orders
// stay as they are; buyers refund them from their dashboard.
func (h *OrganizerHandler) CancelEvent(c echo.Context) error {
    orgID, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    id, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    return h.setStatus(c, id, orgID, model.EventCancelled)
}

func (h *OrganizerHandler) setStatus(c echo.Context, id, orgID uint64, status string) error {
    ctx := c.Request().Context()
    if err := h.Events.SetStatus(ctx, id, orgID, status); err != nil {
        return respondError(c, err)
    }
    ev, err := h.Events.GetByID(ctx, id)
    if err != nil {
        return c.JSON(http.StatusOK, echo.Map{"id": id, "status": status})
    }
    return c.JSON(http.StatusOK, ev)
}

// DeleteEvent handles DELETE /v1/organizer/events/:id.
func (h *OrganizerHandler) DeleteEvent(c echo.Context) error {
    orgID, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    id, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    if err := h.Events.Delete(c.Request().Context(), id, orgID); err != nil {
        return respondError(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

type ticketTypeReq struct {
    Name          string  `json:"name"`
    PriceCents    *int64  `json:"price_cents"`
    QuantityTotal *int64  `json:"quantity_total"`
    SalesStart    *string `json:"sales_start"` // RFC3339, optional
    SalesEnd      *string `json:"sales_end"`   // RFC3339, optional
}

func parseOptionalTime(s *string) (*time.Time, bool) {
    if s == nil || strings.TrimSpace(*s) == "" {
        return nil, true
    }
    t, err := time.Parse(time.RFC3339, strings.TrimSpace(*s))
    if err != nil {
        return nil, false
    }
    t = t.UTC()
    return &t, true
}

// MaxTicketPriceCents caps a ticket type price so that a full order stays
// far below the uint32 range of order totals.
const MaxTicketPriceCents = 10000000

// toTicketType validates the body.  Prices are in cents and may be zero
// for free admission.
func (r ticketTypeReq) toTicketType() (model.TicketType, string) {
    t := model.TicketType{Name: strings.TrimSpace(r.Name)}
    if t.Name == "" {
        return t, "name is required"
    }
    if r.PriceCents == nil || *r.PriceCents < 0 {
        return t, "price_cents must be zero or positive"
    }
    if *r.PriceCents > MaxTicketPriceCents {
        return t, "price_cents must not exceed 10000000"
    }
    if r.QuantityTotal == nil || *r.QuantityTotal < 1 || *r.QuantityTotal > 1000000 {
        return t, "quantity_total must be at least 1"
    }
    t.PriceCents = uint32(*r.PriceCents)
    t.QuantityTotal = uint32(*r.QuantityTotal)
    var ok bool
    if t.SalesStart, ok = parseOptionalTime(r.SalesStart); !ok {
        return t, "invalid sales_start format"
    }
    if t.SalesEnd, ok = parseOptionalTime(r.SalesEnd); !ok {
        return t, "invalid sales_end format"
    }
    if t.SalesStart != nil && t.SalesEnd != nil && !t.SalesEnd.After(*t.SalesStart) {
        return t, "sales_end must be after sales_start"
    }
    return t, ""
}

// ownedEvent resolves :id to an event of the caller that can still be edited.
func (h *OrganizerHandler) ownedEvent(c echo.Context) (model.Event, error) {
    orgID, err := getUserID(c)
    if err != nil {
        return model.Event{}, repository.ErrForbidden
    }
    id, ok := pathID(c, "id")
    if !ok {
        return model.Event{}, repository.ErrEventNotFound
    }
    return h.Events.GetByIDAndOrganizer(c.Request().Context(), id, orgID)
}

// CreateTicketType handles POST /v1/organizer/events/:id/ticket-types.
func (h *OrganizerHandler) CreateTicketType(c echo.Context) error {
    ev, err := h.ownedEvent(c)
    if err != nil {
        return respondError(c, err)
    }
    if ev.Status == model.EventCancelled {
        return c.JSON(http.StatusConflict, echo.Map{"error": service.ErrEventCancelled.Error()})
    }
    var body ticketTypeReq
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    tt, msg := body.toTicketType()
    if msg != "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
    }
    tt.EventID = ev.ID
    if err := h.Types.Create(c.Request().Context(), &tt); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create ticket type"})
    }
    return c.JSON(http.StatusCreated, tt)
}

// UpdateTicketType handles PUT /v1/organizer/events/:id/ticket-types/:type_id.
func (h *OrganizerHandler) UpdateTicketType(c echo.Context) error {
    ev, err := h.ownedEvent(c)
    if err != nil {
        return respondError(c, err)
    }
    typeID, ok := pathID(c, "type_id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid type_id"})
    }
    var body ticketTypeReq
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    tt, msg := body.toTicketType()
    if msg != "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
    }
    tt.ID, tt.EventID = typeID, ev.ID
    ctx := c.Request().Context()
    if err := h.Types.Update(ctx, tt); err != nil {
        return respondError(c, err)
    }
    fresh, err := h.Types.GetByID(ctx, typeID)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, fresh)
}

// DeleteTicketType handles DELETE /v1/organizer/events/:id/ticket-types/:type_id.
func (h *OrganizerHandler) DeleteTicketType(c echo.Context) error {
    ev, err := h.ownedEvent(c)
    if err != nil {
        return respondError(c, err)
    }
    typeID, ok := pathID(c, "type_id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid type_id"})
    }
    if err := h.Types.Delete(c.Request().Context(), typeID, ev.ID); err != nil {
        return respondError(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// EventAnalytics handles GET /v1/organizer/events/:id/analytics?days=N.
func (h *OrganizerHandler) EventAnalytics(c echo.Context) error {
    orgID, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    id, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    days := 0
    if raw := c.QueryParam("days"); raw != "" {
        if err := echo.QueryParamsBinder(c).Int("days", &days).BindError(); err != nil || days < 1 {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "days must be a positive integer"})
        }
    }
    rep, err := h.Analytics.EventReport(c.Request().Context(), orgID, id, days)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, rep)
}

type checkInReq struct {
    Payload string `json:"payload"`
}

// CheckIn handles POST /v1/organizer/checkin with the scanned QR payload.
func (h *OrganizerHandler) CheckIn(c echo.Context) error {
    orgID, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    var body checkInReq
    if err := c.Bind(&body); err != nil || strings.TrimSpace(body.Payload) == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "payload is required"})
    }
    res, err := h.Tickets.CheckIn(c.Request().Context(), orgID, body.Payload)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, res)
}
