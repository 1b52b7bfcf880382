// Package loyalty holds the error taxonomy shared by the loyalty engine's
// services and mapped to HTTP codes by the handlers.
package loyalty

import "errors"

var (
	// ErrProgramNotFound is returned when a program is absent or not
	// visible to the caller.
	ErrProgramNotFound = errors.New("loyalty program not found")

	// ErrMembershipNotFound is returned when a membership is absent or not
	// owned by the caller.
	ErrMembershipNotFound = errors.New("loyalty membership not found")

	// ErrRedemptionNotFound is returned when a redemption is absent or not
	// owned by the caller.
	ErrRedemptionNotFound = errors.New("loyalty redemption not found")

	// ErrProgramNotActive rejects ledger mutations for any program whose
	// status is not exactly active.
	ErrProgramNotActive = errors.New("loyalty program is not active")

	// ErrInvalidState rejects a lifecycle transition that is illegal for
	// the current status (e.g. resuming a never-activated program).
	ErrInvalidState = errors.New("operation not allowed in current state")

	// ErrInvalidToken rejects a counter token outside the current token and
	// the grace-window previous token.
	ErrInvalidToken = errors.New("invalid counter token")

	// ErrInsufficientBalance rejects a redeem below the reward threshold,
	// including the loser of a concurrent double-redeem.
	ErrInsufficientBalance = errors.New("balance below reward threshold")

	// ErrConflictingRequest is returned when a concurrent mutation lost a
	// race, e.g. submitting while an open request already exists.
	ErrConflictingRequest = errors.New("conflicting request in progress")

	// ErrExternalService wraps issuing-service failures. It is logged and
	// surfaced as a soft failure; it never fails the ledger mutation that
	// triggered the call.
	ErrExternalService = errors.New("external service failure")
)
