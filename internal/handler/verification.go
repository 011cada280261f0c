package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/koinonia/community/internal/repository"
	"github.com/koinonia/community/internal/service"
)

// VerificationHandler exposes the request lifecycle: casting votes,
// reading progress, cancelling, the admin override and the stale-request
// sweep.
type VerificationHandler struct {
	Verify     *service.VerificationService
	RequestTTL time.Duration
}

func NewVerificationHandler(v *service.VerificationService, requestTTL time.Duration) *VerificationHandler {
	return &VerificationHandler{Verify: v, RequestTTL: requestTTL}
}

type voteReq struct {
	Decision string `json:"decision"` // APPROVE or REJECT
	Notes    string `json:"notes"`
}

// Vote records the caller's attestation on a pending request. The
// service applies the whole vote-and-maybe-resolve sequence in one
// transaction, so concurrent qualifying votes resolve the request
// exactly once.
func (h *VerificationHandler) Vote(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	requestID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req voteReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	res, err := h.Verify.CastVote(ctx, requestID, uid, req.Decision, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidDecision):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "decision must be APPROVE or REJECT"})
		case errors.Is(err, repository.ErrRequestNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "request not found"})
		case errors.Is(err, service.ErrRequestNotPending):
			return c.JSON(http.StatusConflict, echo.Map{"error": "request already resolved"})
		case errors.Is(err, repository.ErrAlreadyVoted):
			return c.JSON(http.StatusConflict, echo.Map{"error": "already voted on this request"})
		case errors.Is(err, service.ErrSelfVote):
			return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot vote on your own request"})
		case errors.Is(err, service.ErrNotEligible):
			return c.JSON(http.StatusForbidden, echo.Map{"error": "not an eligible verifier for this community"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "vote failed"})
		}
	}
	return c.JSON(http.StatusOK, res)
}

// Progress returns the verification state of a request: tally so far,
// threshold, and the display names of members who approved.
func (h *VerificationHandler) Progress(c echo.Context) error {
	requestID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	p, err := h.Verify.Progress(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrRequestNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "request not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, p)
}

// Get returns the raw request record.
func (h *VerificationHandler) Get(c echo.Context) error {
	requestID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	vr, err := h.Verify.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrRequestNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "request not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"request_id":   vr.ID,
		"user_id":      vr.UserID,
		"community_id": vr.CommunityID,
		"status":       vr.Status,
		"notes":        vr.Notes,
		"created_at":   vr.CreatedAt,
		"resolved_at":  vr.ResolvedAt,
	})
}

// Cancel lets the requester withdraw their own pending request.
func (h *VerificationHandler) Cancel(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	requestID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	if err := h.Verify.CancelRequest(ctx, requestID, uid); err != nil {
		switch {
		case errors.Is(err, repository.ErrRequestNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "request not found"})
		case errors.Is(err, service.ErrNotOwner):
			return c.JSON(http.StatusForbidden, echo.Map{"error": "not your request"})
		case errors.Is(err, service.ErrRequestNotPending):
			return c.JSON(http.StatusConflict, echo.Map{"error": "request already resolved"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cancel failed"})
		}
	}
	return c.NoContent(http.StatusNoContent)
}

type resolveReq struct {
	Decision string `json:"decision"` // APPROVE or REJECT
}

// AdminResolve force-resolves a pending request, bypassing the quorum.
// Admin only; the router enforces the role.
func (h *VerificationHandler) AdminResolve(c echo.Context) error {
	requestID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req resolveReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	var approve bool
	switch req.Decision {
	case "APPROVE":
		approve = true
	case "REJECT":
		approve = false
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "decision must be APPROVE or REJECT"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	if err := h.Verify.AdminResolve(ctx, requestID, approve); err != nil {
		switch {
		case errors.Is(err, repository.ErrRequestNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "request not found"})
		case errors.Is(err, service.ErrRequestNotPending):
			return c.JSON(http.StatusConflict, echo.Map{"error": "request already resolved"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "resolve failed"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"request_id": requestID, "decision": req.Decision})
}

// Expire sweeps PENDING requests older than the configured TTL and
// marks them EXPIRED. Safe to call repeatedly. Admin only.
func (h *VerificationHandler) Expire(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	n, err := h.Verify.ExpireStaleRequests(ctx, h.RequestTTL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "expire sweep failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"expired": n})
}
