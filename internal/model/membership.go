package model

import "time"

// Membership status values. A user holds at most one non-NONE
// membership at a time; switching communities requires leaving the
// current one first, which is enforced by the caller.
const (
	MembershipNone      = "NONE"
	MembershipRequested = "REQUESTED"
	MembershipVerified  = "VERIFIED"
	MembershipRejected  = "REJECTED"
)

// Membership tracks a user's relationship with a community. The row is
// created implicitly at NONE, moves to REQUESTED when a verification
// request is opened, and is resolved to VERIFIED or REJECTED exactly
// once when quorum resolves.
//
// Fields:
//  UserID      – owner of the membership (unique, one row per user).
//  CommunityID – community the membership refers to (0 when NONE).
//  Status      – NONE, REQUESTED, VERIFIED or REJECTED.
//  RequestedAt – when the verification request was opened (nullable).
//  VerifiedAt  – when quorum approved the user (nullable).
//  UpdatedAt   – timestamp of last change.
type Membership struct {
	UserID      uint64     // memberships.user_id
	CommunityID uint64     // memberships.community_id (0 when NONE)
	Status      string     // memberships.status
	RequestedAt *time.Time // memberships.requested_at (nullable)
	VerifiedAt  *time.Time // memberships.verified_at (nullable)
	UpdatedAt   time.Time  // memberships.updated_at
}
