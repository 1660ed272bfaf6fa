package middleware

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// callerKey identifies the authenticated caller for rate limit keys.  It
// returns "anon" before JWTAuth has run or for public routes.
func callerKey(c echo.Context) string {
    switch v := c.Get("user_id").(type) {
    case uint64:
        if v != 0 {
            return strconv.FormatUint(v, 10)
        }
    case string:
        if v != "" {
            return v
        }
    }
    return "anon"
}
