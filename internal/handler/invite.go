package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/koinonia/community/internal/repository"
	"github.com/koinonia/community/internal/service"
)

// InviteHandler serves referral codes: the owner's code and stats, the
// public scan endpoint, and explicit redemption for accounts that
// registered without a code.
type InviteHandler struct {
	Invites *service.InviteService
}

func NewInviteHandler(inv *service.InviteService) *InviteHandler {
	return &InviteHandler{Invites: inv}
}

// Mine returns the caller's invite code, creating one on first access,
// together with scan and conversion counters.
func (h *InviteHandler) Mine(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Invites.EnsureCode(ctx, uid); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue code failed"})
	}
	stats, err := h.Invites.Stats(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, stats)
}

// Scan records a hit on an invite link. Public and unauthenticated.
// Unknown codes are swallowed so the endpoint leaks nothing about
// which codes exist; the response is identical either way.
func (h *InviteHandler) Scan(c echo.Context) error {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid code"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Invites.RecordScan(ctx, code); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "scan failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// Redeem attributes the authenticated caller to an invite code. Each
// account can be attributed once; later attempts conflict.
func (h *InviteHandler) Redeem(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid code"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Invites.RecordRedemption(ctx, code, uid); err != nil {
		switch {
		case errors.Is(err, repository.ErrCodeNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "code not found"})
		case errors.Is(err, repository.ErrAlreadyRedeemed):
			return c.JSON(http.StatusConflict, echo.Map{"error": "account already attributed"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "redeem failed"})
		}
	}
	return c.JSON(http.StatusCreated, echo.Map{"ok": true})
}
