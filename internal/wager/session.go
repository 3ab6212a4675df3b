// Package wager implements the multiplayer wager session engine: a time-boxed
// join window over a shared ledger, a participant-count-dependent outcome, and
// an atomic loss-free settlement that splits a currency pool among winners.
//
// One engine serves every game mode (cooperative heist, elimination roulette,
// gang raid, two-sided pool betting); the modes differ only in their Config.
package wager

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Mode selects the outcome and settlement rules for a session.
type Mode string

const (
	// ModeCooperative is an all-win-or-all-lose round: success probability
	// grows with the head count, winners are paid from an exogenous reward
	// range, and failed rounds burn every stake.
	ModeCooperative Mode = "cooperative"
	// ModeElimination draws exactly one loser uniformly; the survivors split
	// the pot equally after the house cut.
	ModeElimination Mode = "elimination"
	// ModeRaid pits an attacker group against an external treasury. Winners
	// get their stakes back plus a share of the plundered pool.
	ModeRaid Mode = "raid"
	// ModePoolBet is a two-sided pool: the winning side splits the losing
	// side's pool proportionally to their own stakes.
	ModePoolBet Mode = "pool_bet"
)

// Side is a pool-bet participant's chosen side. SideNone for all other modes.
type Side int

const (
	SideNone Side = iota
	SideA
	SideB
)

// RewardSource selects where winner payouts come from.
type RewardSource int

const (
	// RewardFromPool redistributes the losers' stakes among the winners.
	RewardFromPool RewardSource = iota
	// RewardExogenous pays winners from a reward unrelated to the stakes
	// (a per-head reward range, or an external pool supplied at resolution).
	RewardExogenous
)

// Config holds the mode parameters of a session. Zero values fall back to
// sensible behavior where noted.
type Config struct {
	Mode Mode

	// FixedStake > 0 means every participant pays exactly this amount.
	// Otherwise stakes are free-form within [MinBet, MaxBet].
	FixedStake int64
	MinBet     int64
	MaxBet     int64

	MinParticipants int
	MaxParticipants int

	// Success curve for cooperative and raid modes, in whole percent:
	// chance = min(MaxSuccess, BaseSuccess + (n-1)*PerMemberBonus).
	BaseSuccess    int
	PerMemberBonus int
	MaxSuccess     int

	// HouseCutPercent of the distributable pool is retained, floor division.
	HouseCutPercent int

	JoinWindow time.Duration

	RewardSource RewardSource
	// Per-head reward range for cooperative exogenous payouts.
	RewardMin int64
	RewardMax int64

	// SideAWeight is side A's win weight in percent for pool betting.
	// Zero means an even 50/50 draw.
	SideAWeight int

	// CooldownAction, when set, gets a cooldown of Cooldown applied to every
	// participant of a resolved (not refunded) session.
	CooldownAction string
	Cooldown       time.Duration
}

// Participant is one user's seat in a session. Join order is significant:
// equal-split remainders go to the earliest joiners.
type Participant struct {
	UserID   int64
	Stake    int64
	Side     Side
	JoinedAt time.Time
}

// State is a session's lifecycle state.
type State int32

const (
	StateOpen State = iota
	StateResolving
	StateResolved
	StateRefunded
	// statePending is a session whose initiator stake is still being
	// reserved. It claims the scope but rejects joins and resolution, so no
	// outside stake can enter a session that may yet fail to open.
	statePending
)

func (s State) String() string {
	switch s {
	case statePending:
		return "pending"
	case StateOpen:
		return "open"
	case StateResolving:
		return "resolving"
	case StateResolved:
		return "resolved"
	case StateRefunded:
		return "refunded"
	}
	return "unknown"
}

// PoolFunc supplies the exogenous pool for a raid-style session at resolution
// time and applies any external treasury effects for the given outcome. It
// runs inside the engine's failure containment: an error forces a full refund.
// The returned rollback reverses those treasury effects when settlement fails
// after the hook has run; it may be nil when there is nothing to undo.
type PoolFunc func(ctx context.Context, success bool) (int64, RollbackFunc, error)

// RollbackFunc undoes a PoolFunc's external treasury effects.
type RollbackFunc func(ctx context.Context) error

// FormatFunc renders the chat announcement for a finished session.
type FormatFunc func(*Result) string

// Session is the unit of concurrency control: at most one non-terminal
// session exists per scope key at any time.
type Session struct {
	ScopeKey    string
	Config      Config
	InitiatorID int64
	CreatedAt   time.Time
	ClosesAt    time.Time

	mu           sync.Mutex
	state        State
	participants []Participant
	// joined tracks committed and pending seats for duplicate checks.
	joined map[int64]bool
	// pending holds seats whose ledger reservation is still in flight; they
	// count toward capacity but never toward settlement.
	pending map[int64]int64

	timer      *time.Timer
	rng        *rand.Rand
	poolFn     PoolFunc
	formatFn   FormatFunc
	onResolved func(*Result)
}

// SessionOption customizes a session at creation.
type SessionOption func(*Session)

// WithRand sets the session's random source. Tests use this for deterministic
// outcomes; the default is a time-seeded source.
func WithRand(rng *rand.Rand) SessionOption {
	return func(s *Session) { s.rng = rng }
}

// WithExternalPool binds the exogenous pool supplier for raid-style sessions.
func WithExternalPool(fn PoolFunc) SessionOption {
	return func(s *Session) { s.poolFn = fn }
}

// WithFormatter overrides the default announcement text.
func WithFormatter(fn FormatFunc) SessionOption {
	return func(s *Session) { s.formatFn = fn }
}

// WithOnResolved registers a callback invoked after a session reaches a
// terminal state and all ledger effects are committed. Best effort.
func WithOnResolved(fn func(*Result)) SessionOption {
	return func(s *Session) { s.onResolved = fn }
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Participants returns a snapshot of the committed participants in join order.
func (s *Session) Participants() []Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// ParticipantCount returns the number of committed participants.
func (s *Session) ParticipantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants)
}

// TimeRemaining returns the time left in the join window, floored at zero.
func (s *Session) TimeRemaining() time.Duration {
	remaining := time.Until(s.ClosesAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Pool returns the sum of all committed stakes.
func (s *Session) Pool() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, p := range s.participants {
		total += p.Stake
	}
	return total
}

// SidePools returns the per-side stake totals and head counts for pool-bet
// sessions.
func (s *Session) SidePools() (poolA, poolB int64, countA, countB int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants {
		switch p.Side {
		case SideA:
			poolA += p.Stake
			countA++
		case SideB:
			poolB += p.Stake
			countB++
		}
	}
	return poolA, poolB, countA, countB
}

func (s *Session) snapshotLocked() []Participant {
	out := make([]Participant, len(s.participants))
	copy(out, s.participants)
	return out
}

func (s *Session) terminalLocked() bool {
	return s.state == StateResolved || s.state == StateRefunded
}

// validStake checks a stake against the session's stake model.
func (c Config) validStake(stake int64) bool {
	if c.FixedStake > 0 {
		return stake == c.FixedStake
	}
	return stake >= c.MinBet && stake <= c.MaxBet
}
