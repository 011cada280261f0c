package model

import "time"

// Verification request status values. PENDING is the only non-terminal
// state; all four terminal states are kept for audit and never
// transition again.
const (
	RequestPending   = "PENDING"
	RequestApproved  = "APPROVED"
	RequestRejected  = "REJECTED"
	RequestExpired   = "EXPIRED"
	RequestCancelled = "CANCELLED"
)

// Vote decision values.
const (
	DecisionApprove = "APPROVE"
	DecisionReject  = "REJECT"
)

// VerificationRequest is a user's open ask to become a verified member
// of a community. At most one PENDING request exists per
// (user, community) pair; the database enforces this with a unique key
// over an `active` marker column that is non-NULL only while PENDING.
//
// Fields:
//  ID          – primary key identifier.
//  UserID      – the requesting user.
//  CommunityID – the community being joined.
//  Status      – PENDING, APPROVED, REJECTED, EXPIRED or CANCELLED.
//  Notes       – free text supplied by the requester.
//  CreatedAt   – when the request was opened.
//  ResolvedAt  – when the request left PENDING (nullable).
type VerificationRequest struct {
	ID          uint64     // verification_requests.id
	UserID      uint64     // verification_requests.user_id
	CommunityID uint64     // verification_requests.community_id
	Status      string     // verification_requests.status
	Notes       string     // verification_requests.notes
	CreatedAt   time.Time  // verification_requests.created_at
	ResolvedAt  *time.Time // verification_requests.resolved_at (nullable)
}

// Vote is a verifier's attestation on a pending request. The unique key
// on (request_id, verifier_id) guarantees a verifier votes at most once;
// a second attempt fails rather than overwriting the first.
//
// Fields:
//  ID         – primary key identifier.
//  RequestID  – the request being voted on.
//  VerifierID – the verified member casting the vote.
//  Decision   – APPROVE or REJECT.
//  Notes      – optional free text from the verifier.
//  CastAt     – when the vote was recorded.
type Vote struct {
	ID         uint64    // verification_votes.id
	RequestID  uint64    // verification_votes.request_id
	VerifierID uint64    // verification_votes.verifier_id
	Decision   string    // verification_votes.decision
	Notes      string    // verification_votes.notes
	CastAt     time.Time // verification_votes.cast_at
}
