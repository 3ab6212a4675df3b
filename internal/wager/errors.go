package wager

import "errors"

// User-facing errors. Handlers report these inline; none of them leaves any
// session state mutated.
var (
	ErrScopeBusy         = errors.New("an active session already exists for this scope")
	ErrNotFound          = errors.New("no open session for this scope")
	ErrExpired           = errors.New("the join window has closed")
	ErrAlreadyJoined     = errors.New("user already joined this session")
	ErrFull              = errors.New("session is at maximum capacity")
	ErrInvalidStake      = errors.New("stake is outside the allowed range")
	ErrInsufficientFunds = errors.New("insufficient balance to cover the stake")
	ErrNotInitiator      = errors.New("only the initiator can trigger resolution")
	ErrQuorumNotMet      = errors.New("not enough participants to resolve")
)

// ErrDegeneratePool is raised by settlement when the round is unsatisfiable,
// e.g. every pool-bet participant on one side. The lifecycle controller turns
// it into a refund, never a crash.
var ErrDegeneratePool = errors.New("degenerate pool: nothing to redistribute")
