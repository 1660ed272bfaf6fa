package handler // liveness and readiness checks

import (
    "context"
    "database/sql"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
)

// Health is the liveness check used by load balancers.  It returns a
// plain text "ok" with 200 as long as the process serves HTTP.
func Health(c echo.Context) error {
    return c.String(http.StatusOK, "ok")
}

// ReadyHandler reports whether the dependencies needed to sell tickets
// are reachable.
type ReadyHandler struct {
    DB    *sql.DB
    Redis *redis.Client // optional; a nil client is reported as disabled
}

// Ready handles GET /readyz.  MySQL is required; Redis only degrades
// caching, rate limiting and webhook de-duplication, so it never fails
// the check.
func (h *ReadyHandler) Ready(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
    defer cancel()

    status := http.StatusOK
    out := echo.Map{"mysql": "ok", "redis": "disabled"}
    if err := h.DB.PingContext(ctx); err != nil {
        status = http.StatusServiceUnavailable
        out["mysql"] = err.Error()
    }
    if h.Redis != nil {
        if err := h.Redis.Ping(ctx).Err(); err != nil {
            out["redis"] = err.Error()
        } else {
            out["redis"] = "ok"
        }
    }
    return c.JSON(status, out)
}
