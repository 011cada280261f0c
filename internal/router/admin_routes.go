package router

import (
	"github.com/labstack/echo/v4"

	"github.com/koinonia/community/internal/handler"
	"github.com/koinonia/community/internal/middleware"
)

// RegisterAdmin registers endpoints restricted to the ADMIN role: the
// force-resolve override and the manual stale-request sweep. The sweep
// also runs on a timer in main; the endpoint exists so an operator can
// trigger it on demand.
func RegisterAdmin(e *echo.Echo, vh *handler.VerificationHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("ADMIN"),
	)
	g.POST("/requests/:id/resolve", vh.AdminResolve)
	g.POST("/requests/expire", vh.Expire)
}
