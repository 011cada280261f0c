// Package service orchestrates the membership verification core:
// opening and resolving verification requests, accepting votes,
// evaluating quorum and tracking invite referrals. Services own all
// transaction boundaries; repositories only execute statements against
// whatever executor the service put in the context.
package service

import "errors"

// ErrAlreadyMember is returned when a user tries to join a community
// they are already a verified member of.
var ErrAlreadyMember = errors.New("already a verified member")

// ErrPolicyNotRequired is returned by OpenRequest when the community
// does not require verification. Callers should take the direct-join
// path instead.
var ErrPolicyNotRequired = errors.New("community does not require verification")

// ErrVerificationRequired is the converse: DirectJoin was called for a
// community whose policy requires peer verification.
var ErrVerificationRequired = errors.New("community requires verification")

// ErrRequestNotPending is returned when a mutation targets a request
// that has already left PENDING. Callers should re-fetch state, not
// retry the same mutation.
var ErrRequestNotPending = errors.New("request is not pending")

// ErrNotOwner is returned when someone other than the requester tries
// to cancel a request.
var ErrNotOwner = errors.New("not the request owner")

// ErrNotEligible is returned when the voter is not a verified member of
// the request's community, or has not held verified status long enough.
var ErrNotEligible = errors.New("voter is not eligible")

// ErrSelfVote is returned when a requester votes on their own request.
var ErrSelfVote = errors.New("cannot vote on own request")

// ErrInvalidDecision is returned for a vote decision other than
// APPROVE or REJECT.
var ErrInvalidDecision = errors.New("invalid vote decision")
