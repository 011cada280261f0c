package service

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/koinonia/community/internal/database"
	"github.com/koinonia/community/internal/model"
	"github.com/koinonia/community/internal/queue"
	"github.com/koinonia/community/internal/quorum"
	"github.com/koinonia/community/internal/repository"
)

// CommunityStore is the read access the service needs to community
// verification policies.
type CommunityStore interface {
	GetByID(ctx context.Context, id uint64) (model.Community, error)
}

// MembershipStore mutates the single membership row each user holds.
// The ForUpdate variant must lock the row for the remainder of the
// transaction in the context.
type MembershipStore interface {
	GetByUser(ctx context.Context, userID uint64) (model.Membership, error)
	GetByUserForUpdate(ctx context.Context, userID uint64) (model.Membership, error)
	SetRequested(ctx context.Context, userID, communityID uint64, at time.Time) error
	SetVerified(ctx context.Context, userID, communityID uint64, at time.Time) error
	SetRejected(ctx context.Context, userID, communityID uint64) error
	ClearToNone(ctx context.Context, userID uint64) error
}

// RequestStore persists verification requests. Create must be
// insert-or-fail on the open-request uniqueness (ErrAlreadyPending);
// GetByIDForUpdate must lock the request row.
type RequestStore interface {
	Create(ctx context.Context, req *model.VerificationRequest) error
	GetByID(ctx context.Context, id uint64) (model.VerificationRequest, error)
	GetByIDForUpdate(ctx context.Context, id uint64) (model.VerificationRequest, error)
	Resolve(ctx context.Context, id uint64, status string, at time.Time) (bool, error)
	ListStalePendingForUpdate(ctx context.Context, cutoff time.Time) ([]model.VerificationRequest, error)
}

// VoteStore persists votes. Create must be insert-or-fail on the
// (request, verifier) uniqueness (ErrAlreadyVoted).
type VoteStore interface {
	Create(ctx context.Context, v *model.Vote) error
	ListByRequest(ctx context.Context, requestID uint64) ([]model.Vote, error)
	ListDetailsByRequest(ctx context.Context, requestID uint64) ([]repository.VoteDetail, error)
}

// VoteResult is returned to the caller of CastVote: the request status
// after the vote was applied plus the tally at commit time.
type VoteResult struct {
	RequestID  uint64 `json:"request_id"`
	Status     string `json:"status"`
	Approvals  int    `json:"approvals"`
	Rejections int    `json:"rejections"`
	Required   int    `json:"required"`
}

// Progress is the read-only projection of a request's verification state.
type Progress struct {
	RequestID uint64   `json:"request_id"`
	Status    string   `json:"status"`
	Current   int      `json:"current"`
	Required  int      `json:"required"`
	Remaining int      `json:"remaining"`
	Verifiers []string `json:"verifiers"`
}

// VerificationService orchestrates request lifecycle and vote
// application. Every mutating operation runs in a single transaction
// through the runner, with the request row locked first, so quorum
// resolution happens exactly once no matter how many verifiers submit
// the qualifying vote concurrently.
type VerificationService struct {
	runner      database.Runner
	communities CommunityStore
	memberships MembershipStore
	requests    RequestStore
	votes       VoteStore

	// minTenure is how long a member must have been VERIFIED before
	// their votes count. Re-checked on every vote, never cached.
	minTenure time.Duration

	// publish, when non-nil, is invoked after a commit that verified a
	// membership. Failures are logged and ignored; eventing is best
	// effort and never rolls back the decision.
	publish func(ctx context.Context, ev queue.MembershipVerifiedEvent) error

	clock func() time.Time
}

// NewVerificationService wires a VerificationService. publish may be
// nil to disable eventing.
func NewVerificationService(
	runner database.Runner,
	communities CommunityStore,
	memberships MembershipStore,
	requests RequestStore,
	votes VoteStore,
	minTenure time.Duration,
	publish func(ctx context.Context, ev queue.MembershipVerifiedEvent) error,
) *VerificationService {
	if runner == nil || communities == nil || memberships == nil || requests == nil || votes == nil {
		panic("nil dependency passed to NewVerificationService")
	}
	return &VerificationService{
		runner:      runner,
		communities: communities,
		memberships: memberships,
		requests:    requests,
		votes:       votes,
		minTenure:   minTenure,
		publish:     publish,
		clock:       func() time.Time { return time.Now().UTC() },
	}
}

// OpenRequest opens a PENDING verification request for the user and
// moves their membership to REQUESTED in the same transaction. It
// fails with repository.ErrAlreadyPending when an open request already
// exists, ErrAlreadyMember when the user is already verified somewhere,
// and ErrPolicyNotRequired when the community does not gate membership
// on verification (callers should use DirectJoin).
func (s *VerificationService) OpenRequest(ctx context.Context, userID, communityID uint64, notes string) (model.VerificationRequest, error) {
	community, err := s.communities.GetByID(ctx, communityID)
	if err != nil {
		return model.VerificationRequest{}, err
	}
	if !community.RequiresVerification {
		return model.VerificationRequest{}, ErrPolicyNotRequired
	}
	req := model.VerificationRequest{UserID: userID, CommunityID: communityID, Notes: notes}
	err = s.runner.Exec(ctx, func(ctx context.Context) error {
		membership, err := s.memberships.GetByUserForUpdate(ctx, userID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		switch membership.Status {
		case model.MembershipVerified:
			return ErrAlreadyMember
		case model.MembershipRequested:
			// One non-NONE membership per user: a REQUESTED membership
			// means an open request already exists.
			return repository.ErrAlreadyPending
		}
		if err := s.requests.Create(ctx, &req); err != nil {
			return err
		}
		return s.memberships.SetRequested(ctx, userID, communityID, s.clock())
	})
	if err != nil {
		return model.VerificationRequest{}, err
	}
	return req, nil
}

// DirectJoin verifies the user immediately, the degenerate one-step
// quorum used by communities that do not require verification. A user
// with an open verification request anywhere must cancel it before
// joining directly (repository.ErrAlreadyPending).
func (s *VerificationService) DirectJoin(ctx context.Context, userID, communityID uint64) error {
	community, err := s.communities.GetByID(ctx, communityID)
	if err != nil {
		return err
	}
	if community.RequiresVerification {
		return ErrVerificationRequired
	}
	return s.runner.Exec(ctx, func(ctx context.Context) error {
		membership, err := s.memberships.GetByUserForUpdate(ctx, userID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		switch membership.Status {
		case model.MembershipVerified:
			return ErrAlreadyMember
		case model.MembershipRequested:
			// An open request elsewhere would later resolve on top of
			// this membership; the user must cancel it first.
			return repository.ErrAlreadyPending
		}
		return s.memberships.SetVerified(ctx, userID, communityID, s.clock())
	})
}

// CastVote applies a verifier's attestation to a pending request.
//
// The whole operation runs in one transaction with the request row
// locked from the first read: concurrent votes on the same request
// serialize on that lock, so either a later voter sees the request
// already resolved (ErrRequestNotPending) or exactly one transaction
// crosses the threshold and flips request and membership together.
func (s *VerificationService) CastVote(ctx context.Context, requestID, verifierID uint64, decision, notes string) (VoteResult, error) {
	if decision != model.DecisionApprove && decision != model.DecisionReject {
		return VoteResult{}, ErrInvalidDecision
	}
	var result VoteResult
	var approvedEvent *queue.MembershipVerifiedEvent
	err := s.runner.Exec(ctx, func(ctx context.Context) error {
		req, err := s.requests.GetByIDForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != model.RequestPending {
			return ErrRequestNotPending
		}
		community, err := s.communities.GetByID(ctx, req.CommunityID)
		if err != nil {
			return err
		}
		now := s.clock()
		if err := s.checkEligibility(ctx, verifierID, req.CommunityID, now); err != nil {
			return err
		}
		if verifierID == req.UserID {
			return ErrSelfVote
		}
		vote := model.Vote{RequestID: requestID, VerifierID: verifierID, Decision: decision, Notes: notes}
		if err := s.votes.Create(ctx, &vote); err != nil {
			return err
		}
		all, err := s.votes.ListByRequest(ctx, requestID)
		if err != nil {
			return err
		}
		approvals, rejections := quorum.Tally(all)
		status := model.RequestPending
		if quorum.Evaluate(all, community.MinVerificationsRequired) == quorum.Approved {
			if _, err := s.requests.Resolve(ctx, requestID, model.RequestApproved, now); err != nil {
				return err
			}
			if err := s.memberships.SetVerified(ctx, req.UserID, req.CommunityID, now); err != nil {
				return err
			}
			status = model.RequestApproved
			approvedEvent = &queue.MembershipVerifiedEvent{
				RequestID:     requestID,
				UserID:        req.UserID,
				CommunityID:   req.CommunityID,
				CommunityName: community.Name,
				ApproveCount:  approvals,
				Threshold:     community.MinVerificationsRequired,
				VerifiedAt:    now.Format(time.RFC3339),
			}
		}
		result = VoteResult{
			RequestID:  requestID,
			Status:     status,
			Approvals:  approvals,
			Rejections: rejections,
			Required:   community.MinVerificationsRequired,
		}
		return nil
	})
	if err != nil {
		return VoteResult{}, err
	}
	if approvedEvent != nil && s.publish != nil {
		if err := s.publish(ctx, *approvedEvent); err != nil {
			log.Printf("verification: publish membership.verified failed: %v", err)
		}
	}
	return result, nil
}

// checkEligibility verifies that the voter is a VERIFIED member of the
// request's community and has held that status for at least minTenure.
func (s *VerificationService) checkEligibility(ctx context.Context, verifierID, communityID uint64, now time.Time) error {
	membership, err := s.memberships.GetByUser(ctx, verifierID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotEligible
		}
		return err
	}
	if membership.Status != model.MembershipVerified || membership.CommunityID != communityID {
		return ErrNotEligible
	}
	if membership.VerifiedAt == nil || membership.VerifiedAt.After(now.Add(-s.minTenure)) {
		return ErrNotEligible
	}
	return nil
}

// CancelRequest lets the requester withdraw a PENDING request. The
// request becomes CANCELLED and the membership returns to NONE in the
// same transaction.
func (s *VerificationService) CancelRequest(ctx context.Context, requestID, byUserID uint64) error {
	return s.runner.Exec(ctx, func(ctx context.Context) error {
		req, err := s.requests.GetByIDForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.UserID != byUserID {
			return ErrNotOwner
		}
		if req.Status != model.RequestPending {
			return ErrRequestNotPending
		}
		if _, err := s.requests.Resolve(ctx, requestID, model.RequestCancelled, s.clock()); err != nil {
			return err
		}
		return s.memberships.ClearToNone(ctx, req.UserID)
	})
}

// AdminResolve is the administrative override: the only path to a
// REJECTED request. Approvals bypass quorum entirely.
func (s *VerificationService) AdminResolve(ctx context.Context, requestID uint64, approve bool) error {
	var approvedEvent *queue.MembershipVerifiedEvent
	err := s.runner.Exec(ctx, func(ctx context.Context) error {
		req, err := s.requests.GetByIDForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != model.RequestPending {
			return ErrRequestNotPending
		}
		now := s.clock()
		if approve {
			if _, err := s.requests.Resolve(ctx, requestID, model.RequestApproved, now); err != nil {
				return err
			}
			if err := s.memberships.SetVerified(ctx, req.UserID, req.CommunityID, now); err != nil {
				return err
			}
			community, err := s.communities.GetByID(ctx, req.CommunityID)
			if err != nil {
				return err
			}
			approvedEvent = &queue.MembershipVerifiedEvent{
				RequestID:     requestID,
				UserID:        req.UserID,
				CommunityID:   req.CommunityID,
				CommunityName: community.Name,
				Threshold:     community.MinVerificationsRequired,
				VerifiedAt:    now.Format(time.RFC3339),
			}
			return nil
		}
		if _, err := s.requests.Resolve(ctx, requestID, model.RequestRejected, now); err != nil {
			return err
		}
		return s.memberships.SetRejected(ctx, req.UserID, req.CommunityID)
	})
	if err != nil {
		return err
	}
	if approvedEvent != nil && s.publish != nil {
		if err := s.publish(ctx, *approvedEvent); err != nil {
			log.Printf("verification: publish membership.verified failed: %v", err)
		}
	}
	return nil
}

// ExpireStaleRequests moves PENDING requests older than olderThan to
// EXPIRED and returns their memberships to NONE. It is idempotent: a
// second run finds nothing PENDING and changes no rows. Returns the
// number of requests expired.
func (s *VerificationService) ExpireStaleRequests(ctx context.Context, olderThan time.Duration) (int, error) {
	expired := 0
	err := s.runner.Exec(ctx, func(ctx context.Context) error {
		now := s.clock()
		stale, err := s.requests.ListStalePendingForUpdate(ctx, now.Add(-olderThan))
		if err != nil {
			return err
		}
		for _, req := range stale {
			ok, err := s.requests.Resolve(ctx, req.ID, model.RequestExpired, now)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := s.memberships.ClearToNone(ctx, req.UserID); err != nil {
				return err
			}
			expired++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return expired, nil
}

// Progress returns the current tally for a request together with the
// verifiers who have voted so far. Plain reads, no locking.
func (s *VerificationService) Progress(ctx context.Context, requestID uint64) (Progress, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return Progress{}, err
	}
	community, err := s.communities.GetByID(ctx, req.CommunityID)
	if err != nil {
		return Progress{}, err
	}
	details, err := s.votes.ListDetailsByRequest(ctx, requestID)
	if err != nil {
		return Progress{}, err
	}
	current := 0
	verifiers := make([]string, 0, len(details))
	for _, d := range details {
		if d.Decision == model.DecisionApprove {
			current++
		}
		verifiers = append(verifiers, d.VerifierName)
	}
	remaining := community.MinVerificationsRequired - current
	if remaining < 0 {
		remaining = 0
	}
	return Progress{
		RequestID: requestID,
		Status:    req.Status,
		Current:   current,
		Required:  community.MinVerificationsRequired,
		Remaining: remaining,
		Verifiers: verifiers,
	}, nil
}

// GetRequest returns a single request for display.
func (s *VerificationService) GetRequest(ctx context.Context, requestID uint64) (model.VerificationRequest, error) {
	return s.requests.GetByID(ctx, requestID)
}
