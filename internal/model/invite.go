package model

import "time"

// InviteCode is a referral token owned by a single user. Scans are
// counted with atomic increments; the count only ever increases.
//
// Fields:
//  ID            – primary key identifier.
//  Code          – unique random hex token embedded in QR codes and links.
//  OwnerUserID   – referring user (unique, one code per owner).
//  ScanCount     – number of times the code was scanned or the link opened.
//  LastScannedAt – timestamp of the most recent scan (nullable).
//  CreatedAt     – timestamp of creation.
type InviteCode struct {
	ID            uint64     // invite_codes.id
	Code          string     // invite_codes.code
	OwnerUserID   uint64     // invite_codes.owner_user_id
	ScanCount     uint64     // invite_codes.scan_count
	LastScannedAt *time.Time // invite_codes.last_scanned_at (nullable)
	CreatedAt     time.Time  // invite_codes.created_at
}

// InviteRedemption attributes a newly registered user to the invite
// code they followed. The unique key on redeemed_user_id means a user
// is attributed to at most one referrer, first write wins.
//
// Fields:
//  ID             – primary key identifier.
//  CodeID         – the invite code that converted.
//  RedeemedUserID – the new user being attributed (unique).
//  CreatedAt      – when the conversion was recorded.
type InviteRedemption struct {
	ID             uint64    // invite_redemptions.id
	CodeID         uint64    // invite_redemptions.code_id
	RedeemedUserID uint64    // invite_redemptions.redeemed_user_id
	CreatedAt      time.Time // invite_redemptions.created_at
}
