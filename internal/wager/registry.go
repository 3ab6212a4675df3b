package wager

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Ledger is the external balance store. Both operations are atomic per user;
// the engine never relies on cross-user transactions and compensates with
// credits when a reservation must be unwound.
type Ledger interface {
	// Reserve provisionally debits a participant's stake. It returns
	// ErrInsufficientFunds when the balance cannot cover the amount.
	Reserve(ctx context.Context, userID int64, amount int64) error
	// Credit returns currency to a user. Balances have no upper bound, so a
	// credit only fails on infrastructure errors.
	Credit(ctx context.Context, userID int64, amount int64) error
}

// CooldownStore records per-user, per-action expiry timestamps.
type CooldownStore interface {
	SetCooldown(ctx context.Context, userID int64, action string, d time.Duration) error
}

// Notifier delivers session announcements. Delivery is best effort: failures
// are logged by the implementation and never affect settlement.
type Notifier interface {
	Announce(scopeKey string, text string)
}

// Engine is the process-wide session registry and lifecycle controller. It
// enforces one live session per scope key and drives every session from open
// through resolving to resolved or refunded.
type Engine struct {
	ledger    Ledger
	cooldowns CooldownStore
	notifier  Notifier

	mu       sync.Mutex
	sessions map[string]*Session
}

// New creates a wager engine over the given collaborators.
func New(ledger Ledger, cooldowns CooldownStore, notifier Notifier) *Engine {
	return &Engine{
		ledger:    ledger,
		cooldowns: cooldowns,
		notifier:  notifier,
		sessions:  make(map[string]*Session),
	}
}

// Get returns the live session for a scope key, if any.
func (e *Engine) Get(scopeKey string) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[scopeKey]
	return s, ok
}

// CreateSession opens a session and performs the initiator's first join. The
// scope is claimed under the registry lock before the ledger reservation, so
// two concurrent creates for the same scope can never both succeed. The
// session is published in a pending state that rejects joins until the
// initiator's reservation lands; if it fails, the claim is released with no
// outside stake to account for.
func (e *Engine) CreateSession(ctx context.Context, scopeKey string, cfg Config, initiator int64, stake int64, side Side, opts ...SessionOption) (*Session, error) {
	if !cfg.validStake(stake) {
		return nil, ErrInvalidStake
	}
	if cfg.Mode == ModePoolBet && side == SideNone {
		return nil, ErrInvalidStake
	}

	now := time.Now()
	s := &Session{
		ScopeKey:    scopeKey,
		Config:      cfg,
		InitiatorID: initiator,
		CreatedAt:   now,
		ClosesAt:    now.Add(cfg.JoinWindow),
		state:       statePending,
		joined:      make(map[int64]bool),
		pending:     make(map[int64]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(now.UnixNano()))
	}

	e.mu.Lock()
	if existing, ok := e.sessions[scopeKey]; ok {
		existing.mu.Lock()
		terminal := existing.terminalLocked()
		existing.mu.Unlock()
		if !terminal {
			e.mu.Unlock()
			return nil, ErrScopeBusy
		}
	}
	e.sessions[scopeKey] = s
	e.mu.Unlock()

	if err := e.ledger.Reserve(ctx, initiator, stake); err != nil {
		e.remove(scopeKey, s)
		if errors.Is(err, ErrInsufficientFunds) {
			return nil, ErrInsufficientFunds
		}
		return nil, fmt.Errorf("failed to reserve initiator stake: %w", err)
	}

	// The session opens and its timer starts only after the first stake is
	// committed, so it can neither admit joiners nor time out while holding
	// an unaccounted reservation.
	s.mu.Lock()
	s.state = StateOpen
	s.participants = append(s.participants, Participant{UserID: initiator, Stake: stake, Side: side, JoinedAt: now})
	s.joined[initiator] = true
	s.timer = time.AfterFunc(time.Until(s.ClosesAt), func() { e.onDeadline(scopeKey, s) })
	s.mu.Unlock()

	log.Info().
		Str("scope", scopeKey).
		Str("mode", string(cfg.Mode)).
		Int64("initiator", initiator).
		Int64("stake", stake).
		Msg("Wager session opened")

	return s, nil
}

// Join adds a participant to an open session. Capacity, duplicate and stake
// checks happen under the session lock before the ledger reservation; the
// seat is held as pending across the reservation and committed only if the
// session is still open afterwards, otherwise the reservation is compensated
// with an immediate credit.
func (e *Engine) Join(ctx context.Context, scopeKey string, userID int64, stake int64, side Side) (*Session, int, error) {
	e.mu.Lock()
	s, ok := e.sessions[scopeKey]
	e.mu.Unlock()
	if !ok {
		return nil, 0, ErrNotFound
	}

	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return nil, 0, ErrNotFound
	}
	if !time.Now().Before(s.ClosesAt) {
		s.mu.Unlock()
		return nil, 0, ErrExpired
	}
	if s.joined[userID] {
		s.mu.Unlock()
		return nil, 0, ErrAlreadyJoined
	}
	if len(s.participants)+len(s.pending) >= s.Config.MaxParticipants {
		s.mu.Unlock()
		return nil, 0, ErrFull
	}
	if !s.Config.validStake(stake) {
		s.mu.Unlock()
		return nil, 0, ErrInvalidStake
	}
	if s.Config.Mode == ModePoolBet && side == SideNone {
		s.mu.Unlock()
		return nil, 0, ErrInvalidStake
	}
	s.pending[userID] = stake
	s.joined[userID] = true
	s.mu.Unlock()

	if err := e.ledger.Reserve(ctx, userID, stake); err != nil {
		s.mu.Lock()
		delete(s.pending, userID)
		delete(s.joined, userID)
		s.mu.Unlock()
		if errors.Is(err, ErrInsufficientFunds) {
			return nil, 0, ErrInsufficientFunds
		}
		return nil, 0, fmt.Errorf("failed to reserve stake: %w", err)
	}

	s.mu.Lock()
	delete(s.pending, userID)
	if s.state != StateOpen || !time.Now().Before(s.ClosesAt) {
		// The session expired or started resolving while the reservation was
		// in flight; hand the stake straight back.
		delete(s.joined, userID)
		s.mu.Unlock()
		if err := e.ledger.Credit(ctx, userID, stake); err != nil {
			log.Error().Err(err).
				Str("scope", scopeKey).
				Int64("user_id", userID).
				Int64("stake", stake).
				Msg("Failed to compensate late join reservation")
		}
		return nil, 0, ErrExpired
	}
	s.participants = append(s.participants, Participant{UserID: userID, Stake: stake, Side: side, JoinedAt: time.Now()})
	count := len(s.participants)
	s.mu.Unlock()

	log.Info().
		Str("scope", scopeKey).
		Int64("user_id", userID).
		Int64("stake", stake).
		Int("participants", count).
		Msg("Wager session joined")

	return s, count, nil
}

// remove drops a session from the registry if it is still the registered one.
func (e *Engine) remove(scopeKey string, s *Session) {
	e.mu.Lock()
	if e.sessions[scopeKey] == s {
		delete(e.sessions, scopeKey)
	}
	e.mu.Unlock()
}
