// Package queue defines message payloads exchanged over the message broker.
package queue

// MembershipVerifiedEvent is published when a verification request
// reaches quorum (or an admin approves it) and the membership flips to
// VERIFIED. It carries enough information for downstream consumers to
// log, notify, or feed analytics without querying the primary database.
type MembershipVerifiedEvent struct {
	RequestID     uint64 `json:"request_id"`
	UserID        uint64 `json:"user_id"`
	CommunityID   uint64 `json:"community_id"`
	CommunityName string `json:"community_name"`
	ApproveCount  int    `json:"approve_count"`
	Threshold     int    `json:"threshold"`
	VerifiedAt    string `json:"verified_at"`
}
