package wager

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Result describes a finished session. Outcome and Table are nil for refunds.
type Result struct {
	ScopeKey     string
	Mode         Mode
	State        State
	Reason       string
	Outcome      *Outcome
	Table        *Table
	Participants []Participant
}

// Trigger forces early resolution of an open session. Only the initiator may
// trigger, quorum must be met, and pool-bet rounds only resolve at their
// deadline. The state flip to resolving happens under the session lock, so a
// deadline firing at the same instant observes the flip and becomes a no-op.
func (e *Engine) Trigger(ctx context.Context, scopeKey string, userID int64) (*Result, error) {
	e.mu.Lock()
	s, ok := e.sessions[scopeKey]
	e.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if s.Config.Mode == ModePoolBet {
		// Pool betting has no early trigger; the round always runs to its
		// deadline.
		s.mu.Unlock()
		return nil, ErrNotInitiator
	}
	if userID != s.InitiatorID {
		s.mu.Unlock()
		return nil, ErrNotInitiator
	}
	if len(s.participants) < s.Config.MinParticipants {
		s.mu.Unlock()
		return nil, ErrQuorumNotMet
	}
	s.state = StateResolving
	if s.timer != nil {
		s.timer.Stop()
	}
	parts := s.snapshotLocked()
	s.mu.Unlock()

	return e.resolve(ctx, s, parts), nil
}

// onDeadline fires once per session when the join window elapses. Sessions
// below quorum refund; everything else resolves. A session that a concurrent
// Trigger already moved out of the open state is left alone.
func (e *Engine) onDeadline(scopeKey string, s *Session) {
	ctx := context.Background()

	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return
	}
	s.state = StateResolving
	parts := s.snapshotLocked()
	belowQuorum := len(parts) < s.Config.MinParticipants
	s.mu.Unlock()

	if belowQuorum {
		e.refund(ctx, s, parts, "not enough participants before the deadline")
		return
	}
	e.resolve(ctx, s, parts)
}

// undoExternalPool reverses the pool hook's treasury effects when settlement
// cannot complete, so a refunded round never strands externally moved funds.
func (e *Engine) undoExternalPool(ctx context.Context, s *Session, undo RollbackFunc) {
	if undo == nil {
		return
	}
	if err := undo(ctx); err != nil {
		log.Error().Err(err).Str("scope", s.ScopeKey).Msg("Failed to roll back external pool")
	}
}

// resolve runs the outcome draw, settlement and ledger commit for a session
// already in the resolving state. Every failure path inside it falls back to
// a full refund: a settlement bug can void a round but never destroy funds.
func (e *Engine) resolve(ctx context.Context, s *Session, parts []Participant) *Result {
	out, err := ResolveOutcome(s.Config, parts, s.rng)
	if err != nil {
		return e.refund(ctx, s, parts, "round is void")
	}

	var externalPool int64
	var undoPool RollbackFunc
	if s.poolFn != nil {
		externalPool, undoPool, err = s.poolFn(ctx, out.Success)
		if err != nil {
			log.Error().Err(err).Str("scope", s.ScopeKey).Msg("External pool hook failed")
			return e.refund(ctx, s, parts, "round failed, stakes returned")
		}
	}

	table, err := Settle(s.Config, parts, out, externalPool, s.rng)
	if err != nil {
		e.undoExternalPool(ctx, s, undoPool)
		return e.refund(ctx, s, parts, "round is void")
	}

	// The table is complete; commit the credits. A failure mid-commit voids
	// the round and returns every reserved stake instead of leaving a
	// half-applied result.
	for _, p := range table.Payouts {
		if p.Credit <= 0 {
			continue
		}
		if err := e.ledger.Credit(ctx, p.UserID, p.Credit); err != nil {
			log.Error().Err(err).
				Str("scope", s.ScopeKey).
				Int64("user_id", p.UserID).
				Int64("credit", p.Credit).
				Msg("Settlement credit failed, refunding the round")
			e.undoExternalPool(ctx, s, undoPool)
			return e.refund(ctx, s, parts, "settlement failed, stakes returned")
		}
	}

	// Cooldowns commit only after every credit has landed.
	if s.Config.CooldownAction != "" && s.Config.Cooldown > 0 {
		for _, p := range parts {
			if err := e.cooldowns.SetCooldown(ctx, p.UserID, s.Config.CooldownAction, s.Config.Cooldown); err != nil {
				log.Warn().Err(err).
					Str("scope", s.ScopeKey).
					Int64("user_id", p.UserID).
					Msg("Failed to set cooldown")
			}
		}
	}

	s.mu.Lock()
	s.state = StateResolved
	s.mu.Unlock()
	e.remove(s.ScopeKey, s)

	res := &Result{
		ScopeKey:     s.ScopeKey,
		Mode:         s.Config.Mode,
		State:        StateResolved,
		Outcome:      &out,
		Table:        table,
		Participants: parts,
	}

	log.Info().
		Str("scope", s.ScopeKey).
		Str("mode", string(s.Config.Mode)).
		Int("participants", len(parts)).
		Int64("pool", table.Pool).
		Int64("house_cut", table.HouseCut).
		Int64("credits", table.TotalCredits()).
		Bool("success", out.Success).
		Msg("Wager session resolved")

	e.finish(s, res)
	return res
}

// refund returns every reserved stake and records the session as refunded.
// Credit failures are logged and the loop keeps going: one user's broken
// refund must not hold everyone else's stakes hostage.
func (e *Engine) refund(ctx context.Context, s *Session, parts []Participant, reason string) *Result {
	for _, p := range parts {
		if err := e.ledger.Credit(ctx, p.UserID, p.Stake); err != nil {
			log.Error().Err(err).
				Str("scope", s.ScopeKey).
				Int64("user_id", p.UserID).
				Int64("stake", p.Stake).
				Msg("Refund credit failed")
		}
	}

	s.mu.Lock()
	s.state = StateRefunded
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
	e.remove(s.ScopeKey, s)

	res := &Result{
		ScopeKey:     s.ScopeKey,
		Mode:         s.Config.Mode,
		State:        StateRefunded,
		Reason:       reason,
		Participants: parts,
	}

	log.Info().
		Str("scope", s.ScopeKey).
		Str("mode", string(s.Config.Mode)).
		Int("participants", len(parts)).
		Str("reason", reason).
		Msg("Wager session refunded")

	e.finish(s, res)
	return res
}

// finish delivers the announcement and the resolved callback. Both are best
// effort and run after all ledger effects are committed.
func (e *Engine) finish(s *Session, res *Result) {
	if e.notifier != nil {
		text := defaultAnnouncement(res)
		if s.formatFn != nil {
			text = s.formatFn(res)
		}
		if text != "" {
			e.notifier.Announce(s.ScopeKey, text)
		}
	}
	if s.onResolved != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("scope", s.ScopeKey).Msg("Resolved callback panicked")
				}
			}()
			s.onResolved(res)
		}()
	}
}

// RefundAll voids every open session, returning all reserved stakes. Called
// on shutdown so no stake is ever stranded in memory.
func (e *Engine) RefundAll(ctx context.Context) int {
	e.mu.Lock()
	open := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		open = append(open, s)
	}
	e.mu.Unlock()

	refunded := 0
	for _, s := range open {
		s.mu.Lock()
		if s.state != StateOpen {
			s.mu.Unlock()
			continue
		}
		s.state = StateResolving
		if s.timer != nil {
			s.timer.Stop()
		}
		parts := s.snapshotLocked()
		s.mu.Unlock()

		e.refund(ctx, s, parts, "bot is shutting down, stakes returned")
		refunded++
	}
	return refunded
}

func defaultAnnouncement(res *Result) string {
	if res.State == StateRefunded {
		return fmt.Sprintf("❌ Round cancelled: %s", res.Reason)
	}
	if res.Table != nil && len(res.Table.Payouts) > 0 {
		return fmt.Sprintf("✅ Round finished: %d winner(s) share %d", len(res.Table.Payouts), res.Table.TotalCredits())
	}
	return "❌ Round finished: the house wins"
}

// Remaining formats a join-window countdown for announcements.
func Remaining(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	return d.Round(time.Second).String()
}
