package model

import "time"

// Community represents an organization users can join. Its verification
// policy is owned by an administrative approval workflow and is
// read-only to this service.
//
// Fields:
//  ID                       – primary key identifier.
//  Name                     – display name of the community.
//  RequiresVerification     – whether joining requires peer attestations.
//  MinVerificationsRequired – approve votes needed to reach quorum (>= 1).
//  CreatedAt                – timestamp of creation.
type Community struct {
	ID                       uint64    // communities.id
	Name                     string    // communities.name
	RequiresVerification     bool      // communities.requires_verification
	MinVerificationsRequired int       // communities.min_verifications_required
	CreatedAt                time.Time // communities.created_at
}
