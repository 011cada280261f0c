// Package quorum holds the pure decision rule for membership
// verification. It has no side effects and no knowledge of storage or
// transactions; callers are responsible for feeding it a consistent
// snapshot of the votes and applying the outcome atomically.
package quorum

import "github.com/koinonia/community/internal/model"

// Outcome is the result of evaluating a request's votes against the
// community threshold.
type Outcome int

const (
	// StillPending means the approve count has not reached the threshold.
	StillPending Outcome = iota
	// Approved means the approve count reached the threshold.
	Approved
)

// Tally counts approve and reject votes. Reject votes never count
// toward approval; the policy has no rejection threshold, so a request
// can sit PENDING under any number of rejects until it is expired or
// administratively resolved.
func Tally(votes []model.Vote) (approve, reject int) {
	for _, v := range votes {
		switch v.Decision {
		case model.DecisionApprove:
			approve++
		case model.DecisionReject:
			reject++
		}
	}
	return approve, reject
}

// Evaluate decides whether the votes cast so far resolve the request.
// A threshold below 1 is treated as 1: a community that requires
// verification always needs at least one attestation.
func Evaluate(votes []model.Vote, threshold int) Outcome {
	if threshold < 1 {
		threshold = 1
	}
	approve, _ := Tally(votes)
	if approve >= threshold {
		return Approved
	}
	return StillPending
}
