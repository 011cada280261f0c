package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/koinonia/community/internal/database"
	"github.com/koinonia/community/internal/model"
)

// RequestRepo provides data access to the verification_requests table.
// The table carries a stored generated column `active` that is 1 while
// the request is PENDING and NULL afterwards; the unique key
// (user_id, community_id, active) is what keeps at most one open
// request per pair, even under concurrent opens. Terminal rows are
// never deleted.
type RequestRepo struct {
	db *sql.DB
}

// NewRequestRepo returns a new RequestRepo bound to the given database.
func NewRequestRepo(db *sql.DB) *RequestRepo { return &RequestRepo{db: db} }

const requestCols = `id, user_id, community_id, status, notes, created_at, resolved_at`

func scanRequest(row *sql.Row) (model.VerificationRequest, error) {
	var req model.VerificationRequest
	var resolvedAt sql.NullTime
	err := row.Scan(&req.ID, &req.UserID, &req.CommunityID, &req.Status, &req.Notes, &req.CreatedAt, &resolvedAt)
	if err != nil {
		return model.VerificationRequest{}, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		req.ResolvedAt = &t
	}
	return req, nil
}

// Create inserts a new PENDING request and populates the generated ID
// and creation timestamp on the provided record. A duplicate-key error
// on the open-request unique key is translated into ErrAlreadyPending.
func (r *RequestRepo) Create(ctx context.Context, req *model.VerificationRequest) error {
	exec := database.Extract(ctx, r.db)
	const q = `INSERT INTO verification_requests (user_id, community_id, status, notes)
	           VALUES (?, ?, 'PENDING', ?)`
	result, err := exec.ExecContext(ctx, q, req.UserID, req.CommunityID, req.Notes)
	if err != nil {
		if isDuplicate(err) {
			return ErrAlreadyPending
		}
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	req.ID = uint64(id)
	req.Status = model.RequestPending
	// Query back the row to populate the DB-assigned timestamp.
	const sel = `SELECT created_at FROM verification_requests WHERE id = ?`
	return exec.QueryRowContext(ctx, sel, req.ID).Scan(&req.CreatedAt)
}

// GetByID returns a single request. ErrRequestNotFound is returned
// when no request with the given ID exists.
func (r *RequestRepo) GetByID(ctx context.Context, id uint64) (model.VerificationRequest, error) {
	const q = `SELECT ` + requestCols + ` FROM verification_requests WHERE id = ?`
	req, err := scanRequest(database.Extract(ctx, r.db).QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.VerificationRequest{}, ErrRequestNotFound
	}
	return req, err
}

// GetByIDForUpdate is GetByID with a row lock. Every mutation of a
// request starts here: two concurrent callers serialize on this lock,
// so the loser observes the winner's terminal status and backs off.
// Must be called inside a transaction.
func (r *RequestRepo) GetByIDForUpdate(ctx context.Context, id uint64) (model.VerificationRequest, error) {
	const q = `SELECT ` + requestCols + ` FROM verification_requests WHERE id = ? FOR UPDATE`
	req, err := scanRequest(database.Extract(ctx, r.db).QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.VerificationRequest{}, ErrRequestNotFound
	}
	return req, err
}

// Resolve transitions a PENDING request to the given terminal status.
// The status guard in the WHERE clause is a second line of defense
// behind the row lock taken by GetByIDForUpdate; zero affected rows
// means the request was already resolved.
func (r *RequestRepo) Resolve(ctx context.Context, id uint64, status string, at time.Time) (bool, error) {
	const q = `UPDATE verification_requests SET status = ?, resolved_at = ?
	           WHERE id = ? AND status = 'PENDING'`
	result, err := database.Extract(ctx, r.db).ExecContext(ctx, q, status, at.UTC(), id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListStalePendingForUpdate returns all PENDING requests created at or
// before the cutoff, locking each row. Must be called inside a
// transaction; the expiry sweep resolves every returned request before
// committing, which is what makes a repeated sweep a no-op.
func (r *RequestRepo) ListStalePendingForUpdate(ctx context.Context, cutoff time.Time) ([]model.VerificationRequest, error) {
	const q = `SELECT ` + requestCols + ` FROM verification_requests
	           WHERE status = 'PENDING' AND created_at <= ? FOR UPDATE`
	rows, err := database.Extract(ctx, r.db).QueryContext(ctx, q, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var stale []model.VerificationRequest
	for rows.Next() {
		var req model.VerificationRequest
		var resolvedAt sql.NullTime
		if err := rows.Scan(&req.ID, &req.UserID, &req.CommunityID, &req.Status, &req.Notes, &req.CreatedAt, &resolvedAt); err != nil {
			return nil, err
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time
			req.ResolvedAt = &t
		}
		stale = append(stale, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stale, nil
}
