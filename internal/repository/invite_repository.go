package repository

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"

	"github.com/koinonia/community/internal/database"
	"github.com/koinonia/community/internal/model"
)

// InviteRepo provides data access to the invite_codes and
// invite_redemptions tables. Scan counting uses atomic in-place
// increments, never read-modify-write, since many concurrent visitors
// can hit the same code. Redemptions are insert-or-fail under the
// unique key on redeemed_user_id.
type InviteRepo struct {
	db *sql.DB
}

// NewInviteRepo returns a new InviteRepo bound to the given database.
func NewInviteRepo(db *sql.DB) *InviteRepo { return &InviteRepo{db: db} }

const inviteCols = `id, code, owner_user_id, scan_count, last_scanned_at, created_at`

func scanInvite(row *sql.Row) (model.InviteCode, error) {
	var ic model.InviteCode
	var lastScanned sql.NullTime
	err := row.Scan(&ic.ID, &ic.Code, &ic.OwnerUserID, &ic.ScanCount, &lastScanned, &ic.CreatedAt)
	if err != nil {
		return model.InviteCode{}, err
	}
	if lastScanned.Valid {
		t := lastScanned.Time
		ic.LastScannedAt = &t
	}
	return ic, nil
}

// randomCode generates the unguessable token embedded in invite links
// and QR codes: n bytes of secure randomness, hex encoded.
func randomCode(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GetByOwner returns the invite code owned by a user, or ErrCodeNotFound.
func (r *InviteRepo) GetByOwner(ctx context.Context, ownerUserID uint64) (model.InviteCode, error) {
	const q = `SELECT ` + inviteCols + ` FROM invite_codes WHERE owner_user_id = ?`
	ic, err := scanInvite(database.Extract(ctx, r.db).QueryRowContext(ctx, q, ownerUserID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.InviteCode{}, ErrCodeNotFound
	}
	return ic, err
}

// GetByCode returns the invite code with the given token, or ErrCodeNotFound.
func (r *InviteRepo) GetByCode(ctx context.Context, code string) (model.InviteCode, error) {
	const q = `SELECT ` + inviteCols + ` FROM invite_codes WHERE code = ?`
	ic, err := scanInvite(database.Extract(ctx, r.db).QueryRowContext(ctx, q, code))
	if errors.Is(err, sql.ErrNoRows) {
		return model.InviteCode{}, ErrCodeNotFound
	}
	return ic, err
}

// EnsureByOwner returns the owner's invite code, creating one with a
// fresh random token when none exists. Two concurrent first calls race
// on the owner_user_id unique key; the loser re-reads the winner's row.
func (r *InviteRepo) EnsureByOwner(ctx context.Context, ownerUserID uint64) (model.InviteCode, error) {
	ic, err := r.GetByOwner(ctx, ownerUserID)
	if err == nil {
		return ic, nil
	}
	if !errors.Is(err, ErrCodeNotFound) {
		return model.InviteCode{}, err
	}
	code, err := randomCode(16)
	if err != nil {
		return model.InviteCode{}, err
	}
	const q = `INSERT INTO invite_codes (code, owner_user_id) VALUES (?, ?)`
	if _, err := database.Extract(ctx, r.db).ExecContext(ctx, q, code, ownerUserID); err != nil {
		if isDuplicate(err) {
			return r.GetByOwner(ctx, ownerUserID)
		}
		return model.InviteCode{}, err
	}
	return r.GetByOwner(ctx, ownerUserID)
}

// IncrementScan bumps the scan counter for a code in a single atomic
// UPDATE and stamps last_scanned_at. It reports whether a row matched;
// unknown codes are a no-op for the caller.
func (r *InviteRepo) IncrementScan(ctx context.Context, code string) (bool, error) {
	const q = `UPDATE invite_codes
	           SET scan_count = scan_count + 1, last_scanned_at = UTC_TIMESTAMP()
	           WHERE code = ?`
	result, err := database.Extract(ctx, r.db).ExecContext(ctx, q, code)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CreateRedemption attributes a new user to an invite code. The unique
// key on redeemed_user_id makes this first-write-wins: a duplicate is
// translated into ErrAlreadyRedeemed and nothing is written.
func (r *InviteRepo) CreateRedemption(ctx context.Context, codeID, redeemedUserID uint64) error {
	const q = `INSERT INTO invite_redemptions (code_id, redeemed_user_id) VALUES (?, ?)`
	if _, err := database.Extract(ctx, r.db).ExecContext(ctx, q, codeID, redeemedUserID); err != nil {
		if isDuplicate(err) {
			return ErrAlreadyRedeemed
		}
		return err
	}
	return nil
}

// CountRedemptions returns how many registrations were attributed to a code.
func (r *InviteRepo) CountRedemptions(ctx context.Context, codeID uint64) (uint64, error) {
	const q = `SELECT COUNT(*) FROM invite_redemptions WHERE code_id = ?`
	var n uint64
	err := database.Extract(ctx, r.db).QueryRowContext(ctx, q, codeID).Scan(&n)
	return n, err
}
