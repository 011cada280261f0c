// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/koinonia/community/internal/config"
	"github.com/koinonia/community/internal/handler"
	"github.com/koinonia/community/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently only a health check, used by load balancers to verify the
// service is up.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers authentication routes. Unauthenticated
// operations live under /v1/auth; the profile endpoint lives under /v1
// behind the JWT middleware.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Refresh rotates the refresh token: the old one is revoked and a
	// new pair is issued.
	g.POST("/refresh", a.Refresh)
	// Logout does not require a JWT; it accepts the refresh token in
	// the body and revokes it.
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
}

// RegisterPublic registers unauthenticated browse and referral
// endpoints. The community catalog is cacheable; the scan endpoint is
// rate limited per client IP since anyone on the internet can hit an
// invite link.
func RegisterPublic(e *echo.Echo, ch *handler.CommunityHandler, ih *handler.InviteHandler, rdb *redis.Client) {
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
	e.GET("/v1/communities", ch.List, cache)
	e.GET("/v1/communities/:id", ch.Get, cache)

	scanLimit := middleware.NewTokenBucket(config.ScanRateLimitConfig(), rdb)
	e.GET("/r/:code", ih.Scan, scanLimit)
}
