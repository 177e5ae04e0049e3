package orchestrator

import "errors"

// Errors surfaced to callers. Sub-call transport/logical failures are never
// returned verbatim to the caller; they are bucketed per §7 into one of the
// sentinels below, with detail retained only in the event log.
var (
	// ErrAnonymousCaller rejects a flow entered without an authenticated
	// principal.
	ErrAnonymousCaller = errors.New("orchestrator: anonymous caller")

	// ErrPermissionDenied rejects a caller that is not the resource owner.
	ErrPermissionDenied = errors.New("orchestrator: permission denied")

	// ErrNotFound rejects a reference to an unknown pool or account.
	ErrNotFound = errors.New("orchestrator: entity not found")

	// ErrInvalidStatus rejects a flow entered against an account or pool in
	// the wrong lifecycle state.
	ErrInvalidStatus = errors.New("orchestrator: illegal status for this operation")

	// ErrValidation rejects a request whose arguments violate a pool's
	// configured term/amount bounds.
	ErrValidation = errors.New("orchestrator: request fails validation")

	// ErrCapacityInsufficient rejects a stake that would breach the pool's
	// pool_size invariant.
	ErrCapacityInsufficient = errors.New("orchestrator: pool capacity insufficient")

	// ErrSystem is the single user-visible message for any sub-call
	// transport or logical failure. Internal detail lives in the event log,
	// never in the error returned to the caller.
	ErrSystem = errors.New("a system error has occurred. Please try again")

	// ErrTooEarly rejects an early_unstake attempted before
	// can_early_unstake_time, or a maturity_unstake attempted before
	// stake_deadline.
	ErrTooEarly = errors.New("orchestrator: too early for this operation")
)
