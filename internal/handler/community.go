package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/koinonia/community/internal/model"
	"github.com/koinonia/community/internal/repository"
	"github.com/koinonia/community/internal/service"
)

// CommunityHandler serves the community catalog and the join entry
// point. Joining dispatches on the community's policy: verification-
// gated communities get a pending request, open communities grant
// membership immediately.
type CommunityHandler struct {
	Communities *repository.CommunityRepo
	Memberships *repository.MembershipRepo
	Verify      *service.VerificationService
}

func NewCommunityHandler(c *repository.CommunityRepo, m *repository.MembershipRepo, v *service.VerificationService) *CommunityHandler {
	return &CommunityHandler{Communities: c, Memberships: m, Verify: v}
}

type communityResp struct {
	ID                   uint64 `json:"id"`
	Name                 string `json:"name"`
	RequiresVerification bool   `json:"requires_verification"`
	MinVerifications     int    `json:"min_verifications_required"`
}

func toCommunityResp(c model.Community) communityResp {
	return communityResp{
		ID:                   c.ID,
		Name:                 c.Name,
		RequiresVerification: c.RequiresVerification,
		MinVerifications:     c.MinVerificationsRequired,
	}
}

// List returns every community with its join policy.
func (h *CommunityHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	cs, err := h.Communities.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]communityResp, 0, len(cs))
	for _, cm := range cs {
		out = append(out, toCommunityResp(cm))
	}
	return c.JSON(http.StatusOK, out)
}

// Get returns a single community.
func (h *CommunityHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	cm, err := h.Communities.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrCommunityNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "community not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, toCommunityResp(cm))
}

type joinReq struct {
	Notes string `json:"notes"`
}

// Join is the single entry point for membership. For a community that
// requires verification it opens a PENDING request (201 with request
// body); for an open community it grants membership directly (200).
func (h *CommunityHandler) Join(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	communityID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req joinReq
	_ = c.Bind(&req) // notes are optional; an empty body is fine

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	cm, err := h.Communities.GetByID(ctx, communityID)
	if err != nil {
		if errors.Is(err, repository.ErrCommunityNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "community not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	if !cm.RequiresVerification {
		if err := h.Verify.DirectJoin(ctx, uid, communityID); err != nil {
			switch {
			case errors.Is(err, service.ErrAlreadyMember):
				return c.JSON(http.StatusConflict, echo.Map{"error": "already a member"})
			case errors.Is(err, repository.ErrAlreadyPending):
				return c.JSON(http.StatusConflict, echo.Map{"error": "cancel your pending verification request first"})
			case errors.Is(err, service.ErrVerificationRequired):
				// Policy flipped between our read and the service's own
				// re-check; the client should re-fetch and join again.
				return c.JSON(http.StatusConflict, echo.Map{"error": "community now requires verification"})
			default:
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "join failed"})
			}
		}
		return c.JSON(http.StatusOK, echo.Map{
			"community_id": communityID,
			"status":       model.MembershipVerified,
		})
	}

	vr, err := h.Verify.OpenRequest(ctx, uid, communityID, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyPending):
			return c.JSON(http.StatusConflict, echo.Map{"error": "a pending request already exists"})
		case errors.Is(err, service.ErrAlreadyMember):
			return c.JSON(http.StatusConflict, echo.Map{"error": "already a member"})
		case errors.Is(err, service.ErrPolicyNotRequired):
			return c.JSON(http.StatusConflict, echo.Map{"error": "community no longer requires verification"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "open request failed"})
		}
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"request_id":   vr.ID,
		"community_id": vr.CommunityID,
		"status":       vr.Status,
		"created_at":   vr.CreatedAt,
	})
}

// MyMembership returns the caller's current membership state. Users
// with no history get status NONE rather than 404.
func (h *CommunityHandler) MyMembership(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	m, err := h.Memberships.GetByUser(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":       m.Status,
		"community_id": m.CommunityID,
		"requested_at": m.RequestedAt,
		"verified_at":  m.VerifiedAt,
	})
}
