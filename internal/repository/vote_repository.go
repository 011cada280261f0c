package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/koinonia/community/internal/database"
	"github.com/koinonia/community/internal/model"
)

// VoteRepo provides data access to the verification_votes table. The
// unique key on (request_id, verifier_id) makes Create insert-or-fail:
// there is no window in which two votes from the same verifier can both
// land, and an existing vote is never overwritten.
type VoteRepo struct {
	db *sql.DB
}

// NewVoteRepo returns a new VoteRepo bound to the given database.
func NewVoteRepo(db *sql.DB) *VoteRepo { return &VoteRepo{db: db} }

// Create inserts a vote and populates the generated ID and cast
// timestamp on the provided record. A duplicate-key error is
// translated into ErrAlreadyVoted.
func (r *VoteRepo) Create(ctx context.Context, v *model.Vote) error {
	exec := database.Extract(ctx, r.db)
	const q = `INSERT INTO verification_votes (request_id, verifier_id, decision, notes)
	           VALUES (?, ?, ?, ?)`
	result, err := exec.ExecContext(ctx, q, v.RequestID, v.VerifierID, v.Decision, v.Notes)
	if err != nil {
		if isDuplicate(err) {
			return ErrAlreadyVoted
		}
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	v.ID = uint64(id)
	const sel = `SELECT cast_at FROM verification_votes WHERE id = ?`
	return exec.QueryRowContext(ctx, sel, v.ID).Scan(&v.CastAt)
}

// ListByRequest returns all votes cast on a request ordered by cast
// time. Inside a castVote transaction this sees the just-inserted vote,
// giving the quorum evaluator a consistent snapshot.
func (r *VoteRepo) ListByRequest(ctx context.Context, requestID uint64) ([]model.Vote, error) {
	const q = `SELECT id, request_id, verifier_id, decision, notes, cast_at
	           FROM verification_votes WHERE request_id = ? ORDER BY cast_at, id`
	rows, err := database.Extract(ctx, r.db).QueryContext(ctx, q, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var votes []model.Vote
	for rows.Next() {
		var v model.Vote
		if err := rows.Scan(&v.ID, &v.RequestID, &v.VerifierID, &v.Decision, &v.Notes, &v.CastAt); err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return votes, nil
}

// VoteDetail is a vote joined with the verifier's display name, used by
// the progress projection shown to requesters.
type VoteDetail struct {
	VerifierID   uint64    `json:"verifier_id"`
	VerifierName string    `json:"verifier_name"`
	Decision     string    `json:"decision"`
	CastAt       time.Time `json:"cast_at"`
}

// ListDetailsByRequest returns votes on a request with verifier display
// names resolved. Read-only; runs at standard isolation.
func (r *VoteRepo) ListDetailsByRequest(ctx context.Context, requestID uint64) ([]VoteDetail, error) {
	const q = `SELECT v.verifier_id, u.display_name, v.decision, v.cast_at
	           FROM verification_votes v
	           JOIN users u ON u.id = v.verifier_id
	           WHERE v.request_id = ?
	           ORDER BY v.cast_at, v.id`
	rows, err := database.Extract(ctx, r.db).QueryContext(ctx, q, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	details := make([]VoteDetail, 0)
	for rows.Next() {
		var d VoteDetail
		var name sql.NullString
		if err := rows.Scan(&d.VerifierID, &name, &d.Decision, &d.CastAt); err != nil {
			return nil, err
		}
		if name.Valid {
			d.VerifierName = name.String
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return details, nil
}
