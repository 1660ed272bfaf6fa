// Package handler contains the echo HTTP handlers.  Handlers bind and
// validate input, call repositories or services and translate their
// sentinel errors to status codes with respondError.
package handler

import (
    "errors"  // errors.Is / errors.As for sentinel matching
    "net/http"
    "strconv" // strconv converts path params to integers
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/ticketing-platform/internal/payment"
    "github.com/iliyamo/ticketing-platform/internal/repository"
    "github.com/iliyamo/ticketing-platform/internal/service"
)

// getUserID extracts the user_id set by the JWT middleware and converts it to uint64
func getUserID(c echo.Context) (uint64, error) {
    v := c.Get("user_id") // fetch user_id from context
    switch t := v.(type) {
    case uint64:
        return t, nil
    case int:
        return uint64(t), nil
    case int64:
        return uint64(t), nil
    case float64:
        return uint64(t), nil
    case string:
        if n, err := strconv.ParseUint(t, 10, 64); err == nil {
            return n, nil
        }
    }
    return 0, errors.New("invalid user_id in context")
}

// pathID parses a positive integer path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    if err != nil || id == 0 {
        return 0, false
    }
    return id, true
}

func unauthorized(c echo.Context) error {
    return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

// respondError maps repository, service and payment errors to a JSON
// error response.  Anything unrecognised is logged and reported as 500.
func respondError(c echo.Context, err error) error {
    var verr *service.ValidationError
    var checked *service.AlreadyCheckedInError
    var perr *payment.ProviderError
    switch {
    case errors.As(err, &verr):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": verr.Msg})
    case errors.As(err, &checked):
        return c.JSON(http.StatusConflict, echo.Map{
            "error":         "ticket already checked in",
            "checked_in_at": checked.At.UTC().Format(time.RFC3339),
        })
    case errors.As(err, &perr):
        c.Logger().Warnf("payment provider error: %v", perr)
        return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment provider error", "message": perr.Message})

    case errors.Is(err, repository.ErrEventNotFound),
        errors.Is(err, repository.ErrTicketTypeNotFound),
        errors.Is(err, repository.ErrOrderNotFound),
        errors.Is(err, repository.ErrTicketNotFound),
        errors.Is(err, repository.ErrSubscriptionNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
    case errors.Is(err, repository.ErrForbidden), errors.Is(err, service.ErrPlanLimit):
        return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
    case errors.Is(err, service.ErrForgedTicket):
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
    case errors.Is(err, repository.ErrConflict),
        errors.Is(err, repository.ErrSoldOut),
        errors.Is(err, repository.ErrSalesClosed),
        errors.Is(err, repository.ErrStaleTransition),
        errors.Is(err, service.ErrNotRefundable),
        errors.Is(err, service.ErrNotCancellable),
        errors.Is(err, service.ErrEventCancelled),
        errors.Is(err, service.ErrTicketCancelled),
        errors.Is(err, service.ErrOrderNotPaid),
        errors.Is(err, service.ErrAlreadySubscribed):
        return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
    case errors.Is(err, payment.ErrUnsupportedMethod),
        errors.Is(err, payment.ErrProviderUnavailable),
        errors.Is(err, service.ErrUnknownPlan):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    case errors.Is(err, service.ErrBillingUnavailable):
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
    }
    c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
