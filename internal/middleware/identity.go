package middleware

// identity.go holds helpers shared across middleware files. The rate
// limiter uses currentUserID to build user-scoped bucket keys; it falls
// back to "anon" for unauthenticated requests such as invite scans.

import (
	"fmt"

	"github.com/labstack/echo/v4"
)

// currentUserID returns a string form of the authenticated user ID from
// the context, or "anon" when no user is authenticated. JWTAuth stores
// the raw claim value, which for numeric subjects arrives as float64.
func currentUserID(c echo.Context) string {
	v := c.Get("user_id")
	if v == nil {
		return "anon"
	}
	switch t := v.(type) {
	case string:
		if t != "" {
			return t
		}
	case float64:
		return fmt.Sprintf("%.0f", t)
	case uint64:
		return fmt.Sprintf("%d", t)
	}
	return "anon"
}
