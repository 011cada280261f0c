package service

import (
	"context"
	"errors"

	"github.com/koinonia/community/internal/database"
	"github.com/koinonia/community/internal/model"
	"github.com/koinonia/community/internal/repository"
)

// InviteStore persists invite codes and redemptions. IncrementScan
// must be a single atomic increment; CreateRedemption must be
// insert-or-fail on the redeeming user (ErrAlreadyRedeemed).
type InviteStore interface {
	EnsureByOwner(ctx context.Context, ownerUserID uint64) (model.InviteCode, error)
	GetByOwner(ctx context.Context, ownerUserID uint64) (model.InviteCode, error)
	GetByCode(ctx context.Context, code string) (model.InviteCode, error)
	IncrementScan(ctx context.Context, code string) (bool, error)
	CreateRedemption(ctx context.Context, codeID, redeemedUserID uint64) error
	CountRedemptions(ctx context.Context, codeID uint64) (uint64, error)
}

// InviteStats is the owner-facing view of how their invite code is doing.
type InviteStats struct {
	Code           string  `json:"code"`
	Scans          uint64  `json:"scans"`
	Redemptions    uint64  `json:"redemptions"`
	ConversionRate float64 `json:"conversion_rate"`
}

// InviteService tracks referral scans, conversions and attribution.
// Counters carry no dependent invariant beyond monotonicity, so scans
// need no transaction; only redemption (lookup + insert) runs in one.
type InviteService struct {
	runner database.Runner
	store  InviteStore
}

// NewInviteService wires an InviteService.
func NewInviteService(runner database.Runner, store InviteStore) *InviteService {
	if runner == nil || store == nil {
		panic("nil dependency passed to NewInviteService")
	}
	return &InviteService{runner: runner, store: store}
}

// EnsureCode returns the caller's invite code, minting one on first use.
func (s *InviteService) EnsureCode(ctx context.Context, ownerUserID uint64) (model.InviteCode, error) {
	return s.store.EnsureByOwner(ctx, ownerUserID)
}

// RecordScan counts a visit to an invite link or QR code. Unknown
// codes are a silent no-op: scanning is not security-sensitive, just a
// counter, and probing an invalid link should not error.
func (s *InviteService) RecordScan(ctx context.Context, code string) error {
	_, err := s.store.IncrementScan(ctx, code)
	return err
}

// RecordRedemption attributes a newly registered user to the invite
// code they followed. First write wins: a user with an existing
// attribution gets repository.ErrAlreadyRedeemed and no state changes.
// Unknown codes fail with repository.ErrCodeNotFound.
func (s *InviteService) RecordRedemption(ctx context.Context, code string, newUserID uint64) error {
	return s.runner.Exec(ctx, func(ctx context.Context) error {
		ic, err := s.store.GetByCode(ctx, code)
		if err != nil {
			return err
		}
		return s.store.CreateRedemption(ctx, ic.ID, newUserID)
	})
}

// Stats returns scan/redemption counts and the conversion rate for the
// owner's code, creating the code when the owner has none yet. The
// rate is a percentage and defends against divide-by-zero: zero scans
// means a rate of zero regardless of redemptions.
func (s *InviteService) Stats(ctx context.Context, ownerUserID uint64) (InviteStats, error) {
	ic, err := s.store.EnsureByOwner(ctx, ownerUserID)
	if err != nil {
		return InviteStats{}, err
	}
	redemptions, err := s.store.CountRedemptions(ctx, ic.ID)
	if err != nil {
		return InviteStats{}, err
	}
	stats := InviteStats{Code: ic.Code, Scans: ic.ScanCount, Redemptions: redemptions}
	if ic.ScanCount > 0 {
		stats.ConversionRate = float64(redemptions) / float64(ic.ScanCount) * 100
	}
	return stats, nil
}

// ConversionRate returns the redemptions/scans percentage for an
// owner's code. Owners without a code have a rate of zero.
func (s *InviteService) ConversionRate(ctx context.Context, ownerUserID uint64) (float64, error) {
	ic, err := s.store.GetByOwner(ctx, ownerUserID)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if ic.ScanCount == 0 {
		return 0, nil
	}
	redemptions, err := s.store.CountRedemptions(ctx, ic.ID)
	if err != nil {
		return 0, err
	}
	return float64(redemptions) / float64(ic.ScanCount) * 100, nil
}
