package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/koinonia/community/internal/database"
	"github.com/koinonia/community/internal/model"
)

// MembershipRepo provides data access to the memberships table. There
// is at most one row per user; a missing row is equivalent to a NONE
// membership. All timestamps are stored in UTC. Methods resolve their
// executor from the context, so the same calls participate in a
// caller-owned transaction when one is in flight.
type MembershipRepo struct {
	db *sql.DB
}

// NewMembershipRepo returns a new MembershipRepo bound to the given database.
func NewMembershipRepo(db *sql.DB) *MembershipRepo { return &MembershipRepo{db: db} }

const membershipCols = `user_id, community_id, status, requested_at, verified_at, updated_at`

func scanMembership(row *sql.Row) (model.Membership, error) {
	var m model.Membership
	var communityID sql.NullInt64
	var requestedAt, verifiedAt sql.NullTime
	err := row.Scan(&m.UserID, &communityID, &m.Status, &requestedAt, &verifiedAt, &m.UpdatedAt)
	if err != nil {
		return model.Membership{}, err
	}
	if communityID.Valid {
		m.CommunityID = uint64(communityID.Int64)
	}
	if requestedAt.Valid {
		t := requestedAt.Time
		m.RequestedAt = &t
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		m.VerifiedAt = &t
	}
	return m, nil
}

// GetByUser returns the membership row for a user. sql.ErrNoRows is
// returned when the user has never interacted with any community;
// callers treat that as a NONE membership.
func (r *MembershipRepo) GetByUser(ctx context.Context, userID uint64) (model.Membership, error) {
	const q = `SELECT ` + membershipCols + ` FROM memberships WHERE user_id = ?`
	return scanMembership(database.Extract(ctx, r.db).QueryRowContext(ctx, q, userID))
}

// GetByUserForUpdate is GetByUser with a row lock. It must be called
// inside a transaction; the lock is held until commit or rollback.
func (r *MembershipRepo) GetByUserForUpdate(ctx context.Context, userID uint64) (model.Membership, error) {
	const q = `SELECT ` + membershipCols + ` FROM memberships WHERE user_id = ? FOR UPDATE`
	return scanMembership(database.Extract(ctx, r.db).QueryRowContext(ctx, q, userID))
}

// SetRequested moves the user's membership to REQUESTED for the given
// community, creating the row when it does not exist yet. Callers must
// have verified inside the same transaction that the current status
// permits the transition.
func (r *MembershipRepo) SetRequested(ctx context.Context, userID, communityID uint64, at time.Time) error {
	const q = `INSERT INTO memberships (user_id, community_id, status, requested_at)
	           VALUES (?, ?, 'REQUESTED', ?)
	           ON DUPLICATE KEY UPDATE
	             community_id = VALUES(community_id),
	             status = 'REQUESTED',
	             requested_at = VALUES(requested_at),
	             verified_at = NULL`
	_, err := database.Extract(ctx, r.db).ExecContext(ctx, q, userID, communityID, at.UTC())
	return err
}

// SetVerified moves the user's membership to VERIFIED for the given
// community, creating the row when absent (the direct-join path for
// communities that do not require verification).
func (r *MembershipRepo) SetVerified(ctx context.Context, userID, communityID uint64, at time.Time) error {
	const q = `INSERT INTO memberships (user_id, community_id, status, verified_at)
	           VALUES (?, ?, 'VERIFIED', ?)
	           ON DUPLICATE KEY UPDATE
	             community_id = VALUES(community_id),
	             status = 'VERIFIED',
	             verified_at = VALUES(verified_at)`
	_, err := database.Extract(ctx, r.db).ExecContext(ctx, q, userID, communityID, at.UTC())
	return err
}

// SetRejected marks the user's membership REJECTED for the given
// community. Only reachable through the administrative override.
func (r *MembershipRepo) SetRejected(ctx context.Context, userID, communityID uint64) error {
	const q = `UPDATE memberships SET status = 'REJECTED', verified_at = NULL
	           WHERE user_id = ? AND community_id = ?`
	_, err := database.Extract(ctx, r.db).ExecContext(ctx, q, userID, communityID)
	return err
}

// ClearToNone resets the user's membership to NONE. Used when a
// request is cancelled or expired.
func (r *MembershipRepo) ClearToNone(ctx context.Context, userID uint64) error {
	const q = `UPDATE memberships
	           SET community_id = NULL, status = 'NONE', requested_at = NULL, verified_at = NULL
	           WHERE user_id = ?`
	_, err := database.Extract(ctx, r.db).ExecContext(ctx, q, userID)
	return err
}
