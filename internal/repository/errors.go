// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services and handlers to distinguish between different failure
// scenarios without string matching. Uniqueness violations coming back
// from MySQL (error 1062) are translated into the matching sentinel at
// the repository boundary so callers never see driver errors for
// expected conflicts.
package repository

import (
	"errors"
	"strings"
)

// ErrRequestNotFound is returned when a verification request does not
// exist. Handlers should translate this into an HTTP 404 response.
var ErrRequestNotFound = errors.New("verification request not found")

// ErrCommunityNotFound is returned when a referenced community does not
// exist.
var ErrCommunityNotFound = errors.New("community not found")

// ErrCodeNotFound is returned when an invite code does not exist.
var ErrCodeNotFound = errors.New("invite code not found")

// ErrAlreadyPending is returned when opening a verification request
// while one is already PENDING for the same (user, community) pair. The
// unique key over the open-request marker column enforces this even
// under concurrent opens.
var ErrAlreadyPending = errors.New("verification request already pending")

// ErrAlreadyVoted is returned when a verifier attempts a second vote on
// the same request. The first vote is final; this is never treated as
// an update.
var ErrAlreadyVoted = errors.New("already voted on this request")

// ErrAlreadyRedeemed is returned when a user who already has a referrer
// attribution redeems another invite code. First write wins.
var ErrAlreadyRedeemed = errors.New("user already redeemed an invite")

// isDuplicate reports whether err is a MySQL duplicate-key error (1062).
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "1062")
}
