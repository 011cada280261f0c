package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/koinonia/community/internal/config"
	"github.com/koinonia/community/internal/handler"
	"github.com/koinonia/community/internal/middleware"
)

// RegisterMember registers member-scoped endpoints under /v1. All
// routes require a valid JWT; both MEMBER and ADMIN roles are accepted
// since admins are also regular members of the platform. Mutating
// endpoints share a per-user token bucket.
func RegisterMember(e *echo.Echo, ch *handler.CommunityHandler, vh *handler.VerificationHandler, ih *handler.InviteHandler, jwtSecret string, rdb *redis.Client) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("MEMBER", "ADMIN"),
	)
	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	// Membership lifecycle. Join dispatches on the community's policy:
	// open communities grant membership directly, gated ones open a
	// verification request.
	g.POST("/communities/:id/join", ch.Join, limit)
	g.GET("/membership", ch.MyMembership)

	// Verification requests: read state, vote, withdraw.
	g.GET("/verification/requests/:id", vh.Get)
	g.GET("/verification/requests/:id/progress", vh.Progress)
	g.POST("/verification/requests/:id/votes", vh.Vote, limit)
	g.DELETE("/verification/requests/:id", vh.Cancel, limit)

	// Referral tracking for the caller's own invite code.
	g.GET("/invites/mine", ih.Mine)
	g.POST("/invites/:code/redeem", ih.Redeem, limit)
}
