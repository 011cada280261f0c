package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koinonia/community/internal/model"
	"github.com/koinonia/community/internal/queue"
	"github.com/koinonia/community/internal/repository"
)

// ----- in-memory fakes -----

// passRunner executes the function directly. The fakes are guarded by
// their own mutexes, so the transaction boundary collapses to a call.
type passRunner struct{}

func (passRunner) Exec(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeCommunities struct {
	mu sync.Mutex
	m  map[uint64]model.Community
}

func (f *fakeCommunities) GetByID(_ context.Context, id uint64) (model.Community, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.m[id]
	if !ok {
		return model.Community{}, repository.ErrCommunityNotFound
	}
	return c, nil
}

type fakeMemberships struct {
	mu sync.Mutex
	m  map[uint64]model.Membership
}

func (f *fakeMemberships) get(userID uint64) (model.Membership, error) {
	m, ok := f.m[userID]
	if !ok {
		return model.Membership{}, sql.ErrNoRows
	}
	return m, nil
}

func (f *fakeMemberships) GetByUser(_ context.Context, userID uint64) (model.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.get(userID)
}

func (f *fakeMemberships) GetByUserForUpdate(_ context.Context, userID uint64) (model.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.get(userID)
}

func (f *fakeMemberships) SetRequested(_ context.Context, userID, communityID uint64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[userID] = model.Membership{
		UserID: userID, CommunityID: communityID,
		Status: model.MembershipRequested, RequestedAt: &at, UpdatedAt: at,
	}
	return nil
}

func (f *fakeMemberships) SetVerified(_ context.Context, userID, communityID uint64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[userID] = model.Membership{
		UserID: userID, CommunityID: communityID,
		Status: model.MembershipVerified, VerifiedAt: &at, UpdatedAt: at,
	}
	return nil
}

func (f *fakeMemberships) SetRejected(_ context.Context, userID, communityID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[userID] = model.Membership{
		UserID: userID, CommunityID: communityID, Status: model.MembershipRejected,
	}
	return nil
}

func (f *fakeMemberships) ClearToNone(_ context.Context, userID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[userID] = model.Membership{UserID: userID, Status: model.MembershipNone}
	return nil
}

type fakeRequests struct {
	mu     sync.Mutex
	nextID uint64
	m      map[uint64]model.VerificationRequest
}

func (f *fakeRequests) Create(_ context.Context, req *model.VerificationRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.m {
		if r.UserID == req.UserID && r.CommunityID == req.CommunityID && r.Status == model.RequestPending {
			return repository.ErrAlreadyPending
		}
	}
	f.nextID++
	req.ID = f.nextID
	req.Status = model.RequestPending
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	f.m[req.ID] = *req
	return nil
}

func (f *fakeRequests) GetByID(_ context.Context, id uint64) (model.VerificationRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.m[id]
	if !ok {
		return model.VerificationRequest{}, repository.ErrRequestNotFound
	}
	return r, nil
}

func (f *fakeRequests) GetByIDForUpdate(ctx context.Context, id uint64) (model.VerificationRequest, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeRequests) Resolve(_ context.Context, id uint64, status string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.m[id]
	if !ok || r.Status != model.RequestPending {
		return false, nil
	}
	r.Status = status
	r.ResolvedAt = &at
	f.m[id] = r
	return true, nil
}

func (f *fakeRequests) ListStalePendingForUpdate(_ context.Context, cutoff time.Time) ([]model.VerificationRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.VerificationRequest
	for _, r := range f.m {
		// Inclusive cutoff, matching the repository's created_at <= ?.
		if r.Status == model.RequestPending && !r.CreatedAt.After(cutoff) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeVotes struct {
	mu     sync.Mutex
	nextID uint64
	votes  []model.Vote
	names  map[uint64]string
}

func (f *fakeVotes) Create(_ context.Context, v *model.Vote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ex := range f.votes {
		if ex.RequestID == v.RequestID && ex.VerifierID == v.VerifierID {
			return repository.ErrAlreadyVoted
		}
	}
	f.nextID++
	v.ID = f.nextID
	v.CastAt = time.Now().UTC()
	f.votes = append(f.votes, *v)
	return nil
}

func (f *fakeVotes) ListByRequest(_ context.Context, requestID uint64) ([]model.Vote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Vote
	for _, v := range f.votes {
		if v.RequestID == requestID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeVotes) ListDetailsByRequest(_ context.Context, requestID uint64) ([]repository.VoteDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.VoteDetail
	for _, v := range f.votes {
		if v.RequestID == requestID {
			out = append(out, repository.VoteDetail{
				VerifierID:   v.VerifierID,
				VerifierName: f.names[v.VerifierID],
				Decision:     v.Decision,
				CastAt:       v.CastAt,
			})
		}
	}
	return out, nil
}

// ----- fixture -----

type fixture struct {
	svc         *VerificationService
	communities *fakeCommunities
	memberships *fakeMemberships
	requests    *fakeRequests
	votes       *fakeVotes
	published   []queue.MembershipVerifiedEvent
	now         time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		communities: &fakeCommunities{m: map[uint64]model.Community{}},
		memberships: &fakeMemberships{m: map[uint64]model.Membership{}},
		requests:    &fakeRequests{m: map[uint64]model.VerificationRequest{}},
		votes:       &fakeVotes{names: map[uint64]string{}},
		now:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	fx.svc = NewVerificationService(
		passRunner{}, fx.communities, fx.memberships, fx.requests, fx.votes,
		168*time.Hour,
		func(_ context.Context, ev queue.MembershipVerifiedEvent) error {
			fx.published = append(fx.published, ev)
			return nil
		},
	)
	fx.svc.clock = func() time.Time { return fx.now }
	return fx
}

func (fx *fixture) addCommunity(id uint64, name string, gated bool, threshold int) {
	fx.communities.m[id] = model.Community{
		ID: id, Name: name, RequiresVerification: gated, MinVerificationsRequired: threshold,
	}
}

// addVerifier makes a user a VERIFIED member of the community with
// enough tenure to vote.
func (fx *fixture) addVerifier(userID, communityID uint64, name string) {
	verifiedAt := fx.now.Add(-200 * time.Hour)
	fx.memberships.m[userID] = model.Membership{
		UserID: userID, CommunityID: communityID,
		Status: model.MembershipVerified, VerifiedAt: &verifiedAt,
	}
	fx.votes.names[userID] = name
}

// ----- OpenRequest / DirectJoin -----

func TestOpenRequestCreatesPendingAndMarksRequested(t *testing.T) {
	fx := newFixture(t)
	fx.addCommunity(1, "gophers", true, 2)

	req, err := fx.svc.OpenRequest(context.Background(), 10, 1, "hi")
	if err != nil {
		t.Fatalf("OpenRequest: %v", err)
	}
	if req.Status != model.RequestPending {
		t.Fatalf("status = %q, want PENDING", req.Status)
	}
	m := fx.memberships.m[10]
	if m.Status != model.MembershipRequested || m.CommunityID != 1 {
		t.Fatalf("membership = %+v, want REQUESTED in community 1", m)
	}
}

func TestOpenRequestTwiceFailsAlreadyPending(t *testing.T) {
	fx := newFixture(t)
	fx.addCommunity(1, "gophers", true, 2)

	if _, err := fx.svc.OpenRequest(context.Background(), 10, 1, ""); err != nil {
		t.Fatalf("first OpenRequest: %v", err)
	}
	_, err := fx.svc.OpenRequest(context.Background(), 10, 1, "")
	if !errors.Is(err, repository.ErrAlreadyPending) {
		t.Fatalf("second OpenRequest err = %v, want ErrAlreadyPending", err)
	}
}

func TestOpenRequestWhenVerifiedFailsAlreadyMember(t *testing.T) {
	fx := newFixture(t)
	fx.addCommunity(1, "gophers", true, 2)
	fx.addVerifier(10, 1, "ada")

	_, err := fx.svc.OpenRequest(context.Background(), 10, 1, "")
	if !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("err = %v, want ErrAlreadyMember", err)
	}
}

func TestOpenRequestOnOpenCommunityFails(t *testing.T) {
	fx := newFixture(t)
	fx.addCommunity(2, "open-door", false, 0)

	_, err := fx.svc.OpenRequest(context.Background(), 10, 2, "")
	if !errors.Is(err, ErrPolicyNotRequired) {
		t.Fatalf("err = %v, want ErrPolicyNotRequired", err)
	}
}

func TestDirectJoin(t *testing.T) {
	fx := newFixture(t)
	fx.addCommunity(2, "open-door", false, 0)

	if err := fx.svc.DirectJoin(context.Background(), 10, 2); err != nil {
		t.Fatalf("DirectJoin: %v", err)
	}
	m := fx.memberships.m[10]
	if m.Status != model.MembershipVerified || m.CommunityID != 2 {
		t.Fatalf("membership = %+v, want VERIFIED in community 2", m)
	}

	if err := fx.svc.DirectJoin(context.Background(), 10, 2); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("second DirectJoin err = %v, want ErrAlreadyMember", err)
	}
}

func TestDirectJoinWithOpenRequestFails(t *testing.T) {
	fx := newFixture(t)
	fx.addCommunity(1, "gophers", true, 2)
	fx.addCommunity(2, "open-door", false, 0)
	fx.addVerifier(20, 1, "ada")
	fx.addVerifier(21, 1, "lin")
	reqID := openPending(t, fx, 10, 1)

	// The open request must be cancelled before joining elsewhere;
	// otherwise its later approval would overwrite the new membership.
	if err := fx.svc.DirectJoin(context.Background(), 10, 2); !errors.Is(err, repository.ErrAlreadyPending) {
		t.Fatalf("DirectJoin err = %v, want ErrAlreadyPending", err)
	}
	if m := fx.memberships.m[10]; m.Status != model.MembershipRequested || m.CommunityID != 1 {
		t.Fatalf("membership = %+v, want REQUESTED in community 1", m)
	}

	// After cancelling, the direct join goes through and the old
	// request can never resolve on top of it.
	if err := fx.svc.CancelRequest(context.Background(), reqID, 10); err != nil {
		t.Fatalf("CancelRequest: %v", err)
	}
	if err := fx.svc.DirectJoin(context.Background(), 10, 2); err != nil {
		t.Fatalf("DirectJoin after cancel: %v", err)
	}
	if _, err := fx.svc.CastVote(context.Background(), reqID, 20, model.DecisionApprove, ""); !errors.Is(err, ErrRequestNotPending) {
		t.Fatalf("vote on cancelled request err = %v, want ErrRequestNotPending", err)
	}
	if m := fx.memberships.m[10]; m.Status != model.MembershipVerified || m.CommunityID != 2 {
		t.Fatalf("membership = %+v, want VERIFIED in community 2", m)
	}
}

func TestDirectJoinOnGatedCommunityFails(t *testing.T) {
	fx := newFixture(t)
	fx.addCommunity(1, "gophers", true, 2)

	if err := fx.svc.DirectJoin(context.Background(), 10, 1); !errors.Is(err, ErrVerificationRequired) {
		t.Fatalf("err = %v, want ErrVerificationRequired", err)
	}
}

// ----- CastVote -----

func openPending(t *testing.T, fx *fixture, userID, communityID uint64) uint64 {
	t.Helper()
	req, err := fx.svc.OpenRequest(context.Background(), userID, communityID, "")
	if err != nil {
		t.Fatalf("OpenRequest: %v", err)
	}
	return req.ID
}

func TestCastVoteBelowThresholdStaysPending(t *testing.T) {
	fx := newFixture(t)
	fx.addCommunity(1, "gophers", true, 2)
	fx.addVerifier(20, 1, "ada")
	reqID := openPending(t, fx, 10, 1)

	res, err := fx.svc.CastVote(context.Background(), reqID, 20, model.DecisionApprove, "")
	if err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if res.Status != model.RequestPending || res.Approvals != 1 || res.Required != 2 {
		t.Fatalf("result = %+v, want pending with 1/2 approvals", res)
	}
	if len(fx.published) != 0 {
		t.Fatalf("published %d events before quorum", len(fx.published))
	}
}

func TestCastVoteAtThresholdApprovesOnce(t *testing.T) {
	fx := newFixture(t)
	fx.addCommunity(1, "gophers", true, 2)
	fx.addVerifier(20, 1, "ada")
	fx.addVerifier(21, 1, "lin")
	fx.addVerifier(22, 1, "grace")
	reqID := openPending(t, fx, 10, 1)

	if _, err := fx.svc.CastVote(context.Background(), reqID, 20, model.DecisionApprove, ""); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	res, err := fx.svc.CastVote(context.Background(), reqID, 21, model.DecisionApprove, "")
	if err != nil {
		t.Fatalf("second vote: %v", err)
	}
	if res.Status != model.RequestApproved || res.Approvals != 2 {
		t.Fatalf("result = %+v, want APPROVED with 2 approvals", res)
	}
	if m := fx.memberships.m[10]; m.Status != model.MembershipVerified || m.CommunityID != 1 {
		t.Fatalf("membership = %+v, want VERIFIED", m)
	}
	if len(fx.published) != 1 {
		t.Fatalf("published %d events, want 1", len(fx.published))
	}
	if ev := fx.published[0]; ev.UserID != 10 || ev.CommunityID != 1 || ev.ApproveCount != 2 {
		t.Fatalf("event = %+v", ev)
	}

	// A vote after resolution fails rather than double-resolving.
	if _, err := fx.svc.CastVote(context.Background(), reqID, 22, model.DecisionApprove, ""); !errors.Is(err, ErrRequestNotPending) {
		t.Fatalf("vote after resolve err = %v, want ErrRequestNotPending", err)
	}
	if len(fx.published) != 1 {
		t.Fatalf("published %d events after late vote, want 1", len(fx.published))
	}
}

func TestCastVoteRejectionsDoNotCount(t *testing.T) {
	fx := newFixture(t)
	fx.addCommunity(1, "gophers", true, 2)
	fx.addVerifier(20, 1, "ada")
	fx.addVerifier(21, 1, "lin")
	fx.addVerifier(22, 1, "grace")
	reqID := openPending(t, fx, 10, 1)

	if _, err := fx.svc.CastVote(context.Background(), reqID, 20, model.DecisionReject, ""); err != nil {
		t.Fatalf("reject vote: %v", err)
	}
	if _, err := fx.svc.CastVote(context.Background(), reqID, 21, model.DecisionReject, ""); err != nil {
		t.Fatalf("reject vote: %v", err)
	}
	res, err := fx.svc.CastVote(context.Background(), reqID, 22, model.DecisionApprove, "")
	if err != nil {
		t.Fatalf("approve vote: %v", err)
	}
	if res.Status != model.RequestPending || res.Approvals != 1 || res.Rejections != 2 {
		t.Fatalf("result = %+v, want still pending with 1 approval", res)
	}
}

func TestCastVoteTwiceFailsAlreadyVoted(t *testing.T) {
	fx := newFixture(t)
	fx.addCommunity(1, "gophers", true, 3)
	fx.addVerifier(20, 1, "ada")
	reqID := openPending(t, fx, 10, 1)

	if _, err := fx.svc.CastVote(context.Background(), reqID, 20, model.DecisionApprove, ""); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	// Even switching decisions: the first vote is final.
	_, err := fx.svc.CastVote(context.Background(), reqID, 20, model.DecisionReject, "")
	if !errors.Is(err, repository.ErrAlreadyVoted) {
		t.Fatalf("err = %v, want ErrAlreadyVoted", err)
	}
}

func TestCastVoteConcurrentDuplicatesKeepOneRow(t *testing.T) {
	fx := newFixture(t)
	fx.addCommunity(1, "gophers", true, 5)
	fx.addVerifier(20, 1, "ada")
	reqID := openPending(t, fx, 10, 1)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.svc.CastVote(context.Background(), reqID, 20, model.DecisionApprove, "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded, rejected := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, repository.ErrAlreadyVoted):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || rejected != n-1 {
		t.Fatalf("succeeded=%d rejected=%d, want exactly 1 success and %d AlreadyVoted", succeeded, rejected, n-1)
	}
	votes, _ := fx.votes.ListByRequest(context.Background(), reqID)
	if len(votes) != 1 {
		t.Fatalf("vote rows = %d, want 1", len(votes))
	}
}

func TestCastVoteSelfVoteRejected(t *testing.T) {
	fx := newFixture(t)
	fx.addCommunity(1, "gophers", true, 2)
	reqID := openPending(t, fx, 10, 1)
	// Requester later becomes a verifier of the same community
	// (possible via admin action); still cannot vote on own request.
	fx.addVerifier(10, 1, "self")

	if _, err := fx.svc.CastVote(context.Background(), reqID, 10, model.DecisionApprove, ""); !errors.Is(err, ErrSelfVote) {
		t.Fatalf("err = %v, want ErrSelfVote", err)
	}
}

func TestCastVoteEligibility(t *testing.T) {
	fx := newFixture(t)
	fx.addCommunity(1, "gophers", true, 2)
	fx.addCommunity(2, "rustaceans", true, 2)
	reqID := openPending(t, fx, 10, 1)

	// No membership at all.
	if _, err := fx.svc.CastVote(context.Background(), reqID, 30, model.DecisionApprove, ""); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("stranger err = %v, want ErrNotEligible", err)
	}

	// Verified, but in a different community.
	fx.addVerifier(31, 2, "other")
	if _, err := fx.svc.CastVote(context.Background(), reqID, 31, model.DecisionApprove, ""); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("wrong community err = %v, want ErrNotEligible", err)
	}

	// Verified in the right community but too recently.
	recent := fx.now.Add(-time.Hour)
	fx.memberships.m[32] = model.Membership{
		UserID: 32, CommunityID: 1, Status: model.MembershipVerified, VerifiedAt: &recent,
	}
	if _, err := fx.svc.CastVote(context.Background(), reqID, 32, model.DecisionApprove, ""); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("short tenure err = %v, want ErrNotEligible", err)
	}
}

func TestCastVoteInvalidDecision(t *testing.T) {
	fx := newFixture(t)
	if _, err := fx.svc.CastVote(context.Background(), 1, 20, "MAYBE", ""); !errors.Is(err, ErrInvalidDecision) {
		t.Fatalf("err = %v, want ErrInvalidDecision", err)
	}
}

func TestCastVoteUnknownRequest(t *testing.T) {
	fx := newFixture(t)
	if _, err := fx.svc.CastVote(context.Background(), 404, 20, model.DecisionApprove, ""); !errors.Is(err, repository.ErrRequestNotFound) {
		t.Fatalf("err = %v, want ErrRequestNotFound", err)
	}
}

// ----- Cancel / AdminResolve -----

func TestCancelRequest(t *testing.T) {
	fx := newFixture(t)
	fx.addCommunity(1, "gophers", true, 2)
	reqID := openPending(t, fx, 10, 1)

	if err := fx.svc.CancelRequest(context.Background(), reqID, 99); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("non-owner err = %v, want ErrNotOwner", err)
	}
	if err := fx.svc.CancelRequest(context.Background(), reqID, 10); err != nil {
		t.Fatalf("CancelRequest: %v", err)
	}
	if r := fx.requests.m[reqID]; r.Status != model.RequestCancelled {
		t.Fatalf("request status = %q, want CANCELLED", r.Status)
	}
	if m := fx.memberships.m[10]; m.Status != model.MembershipNone {
		t.Fatalf("membership = %+v, want NONE", m)
	}
	if err := fx.svc.CancelRequest(context.Background(), reqID, 10); !errors.Is(err, ErrRequestNotPending) {
		t.Fatalf("second cancel err = %v, want ErrRequestNotPending", err)
	}
}

func TestAdminResolveApprove(t *testing.T) {
	fx := newFixture(t)
	fx.addCommunity(1, "gophers", true, 2)
	reqID := openPending(t, fx, 10, 1)

	if err := fx.svc.AdminResolve(context.Background(), reqID, true); err != nil {
		t.Fatalf("AdminResolve: %v", err)
	}
	if r := fx.requests.m[reqID]; r.Status != model.RequestApproved {
		t.Fatalf("request status = %q, want APPROVED", r.Status)
	}
	if m := fx.memberships.m[10]; m.Status != model.MembershipVerified {
		t.Fatalf("membership = %+v, want VERIFIED", m)
	}
	if len(fx.published) != 1 {
		t.Fatalf("published %d events, want 1", len(fx.published))
	}
}

func TestAdminResolveReject(t *testing.T) {
	fx := newFixture(t)
	fx.addCommunity(1, "gophers", true, 2)
	reqID := openPending(t, fx, 10, 1)

	if err := fx.svc.AdminResolve(context.Background(), reqID, false); err != nil {
		t.Fatalf("AdminResolve: %v", err)
	}
	if r := fx.requests.m[reqID]; r.Status != model.RequestRejected {
		t.Fatalf("request status = %q, want REJECTED", r.Status)
	}
	if m := fx.memberships.m[10]; m.Status != model.MembershipRejected {
		t.Fatalf("membership = %+v, want REJECTED", m)
	}
	if len(fx.published) != 0 {
		t.Fatalf("published %d events on reject, want 0", len(fx.published))
	}
	if err := fx.svc.AdminResolve(context.Background(), reqID, true); !errors.Is(err, ErrRequestNotPending) {
		t.Fatalf("resolve after resolve err = %v, want ErrRequestNotPending", err)
	}
}

// ----- expiry -----

func TestExpireStaleRequests(t *testing.T) {
	fx := newFixture(t)
	fx.addCommunity(1, "gophers", true, 2)
	oldID := openPending(t, fx, 10, 1)
	freshID := openPending(t, fx, 11, 1)
	borderID := openPending(t, fx, 12, 1)

	old := fx.requests.m[oldID]
	old.CreatedAt = fx.now.Add(-40 * 24 * time.Hour)
	fx.requests.m[oldID] = old
	fresh := fx.requests.m[freshID]
	fresh.CreatedAt = fx.now.Add(-time.Hour)
	fx.requests.m[freshID] = fresh
	// Exactly at the cutoff: expiry is inclusive.
	border := fx.requests.m[borderID]
	border.CreatedAt = fx.now.Add(-30 * 24 * time.Hour)
	fx.requests.m[borderID] = border

	n, err := fx.svc.ExpireStaleRequests(context.Background(), 30*24*time.Hour)
	if err != nil {
		t.Fatalf("ExpireStaleRequests: %v", err)
	}
	if n != 2 {
		t.Fatalf("expired %d, want 2", n)
	}
	if r := fx.requests.m[oldID]; r.Status != model.RequestExpired {
		t.Fatalf("old request status = %q, want EXPIRED", r.Status)
	}
	if r := fx.requests.m[borderID]; r.Status != model.RequestExpired {
		t.Fatalf("cutoff-boundary request status = %q, want EXPIRED", r.Status)
	}
	if r := fx.requests.m[freshID]; r.Status != model.RequestPending {
		t.Fatalf("fresh request status = %q, want PENDING", r.Status)
	}
	if m := fx.memberships.m[10]; m.Status != model.MembershipNone {
		t.Fatalf("membership = %+v, want NONE", m)
	}

	// Idempotent: nothing left to expire.
	n, err = fx.svc.ExpireStaleRequests(context.Background(), 30*24*time.Hour)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if n != 0 {
		t.Fatalf("second sweep expired %d, want 0", n)
	}
}

// ----- progress -----

func TestProgress(t *testing.T) {
	fx := newFixture(t)
	fx.addCommunity(1, "gophers", true, 3)
	fx.addVerifier(20, 1, "ada")
	fx.addVerifier(21, 1, "lin")
	reqID := openPending(t, fx, 10, 1)

	if _, err := fx.svc.CastVote(context.Background(), reqID, 20, model.DecisionApprove, ""); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if _, err := fx.svc.CastVote(context.Background(), reqID, 21, model.DecisionReject, ""); err != nil {
		t.Fatalf("vote: %v", err)
	}

	p, err := fx.svc.Progress(context.Background(), reqID)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if p.Current != 1 || p.Required != 3 || p.Remaining != 2 {
		t.Fatalf("progress = %+v, want 1/3 with 2 remaining", p)
	}
	if len(p.Verifiers) != 2 {
		t.Fatalf("verifiers = %v, want both voters listed", p.Verifiers)
	}
}

func TestProgressUnknownRequest(t *testing.T) {
	fx := newFixture(t)
	if _, err := fx.svc.Progress(context.Background(), 404); !errors.Is(err, repository.ErrRequestNotFound) {
		t.Fatalf("err = %v, want ErrRequestNotFound", err)
	}
}
