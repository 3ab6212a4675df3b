package wager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLedger is an in-memory Ledger with hooks for failure injection and for
// blocking a reservation to simulate in-flight joins.
type fakeLedger struct {
	mu           sync.Mutex
	balances     map[int64]int64
	creditTotal  int64
	failCredits  int // fail this many credit calls, then succeed
	blockReserve map[int64]chan struct{}
}

func newFakeLedger(balances map[int64]int64) *fakeLedger {
	return &fakeLedger{balances: balances, blockReserve: make(map[int64]chan struct{})}
}

func (l *fakeLedger) Reserve(ctx context.Context, userID int64, amount int64) error {
	l.mu.Lock()
	gate := l.blockReserve[userID]
	l.mu.Unlock()
	if gate != nil {
		<-gate
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[userID] < amount {
		return ErrInsufficientFunds
	}
	l.balances[userID] -= amount
	return nil
}

func (l *fakeLedger) Credit(ctx context.Context, userID int64, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failCredits > 0 {
		l.failCredits--
		return errors.New("ledger unavailable")
	}
	l.balances[userID] += amount
	l.creditTotal += amount
	return nil
}

func (l *fakeLedger) balance(userID int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

func (l *fakeLedger) credited() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.creditTotal
}

type fakeCooldowns struct {
	mu  sync.Mutex
	set map[int64]string
}

func newFakeCooldowns() *fakeCooldowns {
	return &fakeCooldowns{set: make(map[int64]string)}
}

func (c *fakeCooldowns) SetCooldown(ctx context.Context, userID int64, action string, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set[userID] = action
	return nil
}

func (c *fakeCooldowns) has(userID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.set[userID]
	return ok
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Announce(scopeKey string, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
}

func newTestEngine(balances map[int64]int64) (*Engine, *fakeLedger, *fakeCooldowns) {
	ledger := newFakeLedger(balances)
	cooldowns := newFakeCooldowns()
	return New(ledger, cooldowns, &fakeNotifier{}), ledger, cooldowns
}

func heistConfig() Config {
	return Config{
		Mode:            ModeCooperative,
		FixedStake:      500,
		MinParticipants: 2,
		MaxParticipants: 8,
		BaseSuccess:     40,
		PerMemberBonus:  10,
		MaxSuccess:      90,
		JoinWindow:      time.Minute,
		RewardSource:    RewardExogenous,
		RewardMin:       550,
		RewardMax:       850,
		CooldownAction:  "heist",
		Cooldown:        6 * time.Hour,
	}
}

func rouletteConfig() Config {
	return Config{
		Mode:            ModeElimination,
		FixedStake:      100,
		MinParticipants: 2,
		MaxParticipants: 6,
		HouseCutPercent: 5,
		JoinWindow:      time.Minute,
	}
}

func TestCreateSessionScopeBusy(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(map[int64]int64{1: 10_000, 2: 10_000})

	_, err := engine.CreateSession(ctx, "chat:1", heistConfig(), 1, 500, SideNone)
	require.NoError(t, err)

	_, err = engine.CreateSession(ctx, "chat:1", heistConfig(), 2, 500, SideNone)
	assert.ErrorIs(t, err, ErrScopeBusy)

	// A different scope is unaffected.
	_, err = engine.CreateSession(ctx, "chat:2", heistConfig(), 2, 500, SideNone)
	assert.NoError(t, err)
}

func TestCreateSessionInsufficientFundsFreesScope(t *testing.T) {
	ctx := context.Background()
	engine, ledger, _ := newTestEngine(map[int64]int64{1: 100, 2: 10_000})

	_, err := engine.CreateSession(ctx, "chat:1", heistConfig(), 1, 500, SideNone)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(100), ledger.balance(1))

	// The failed create must not leave the scope claimed.
	_, err = engine.CreateSession(ctx, "chat:1", heistConfig(), 2, 500, SideNone)
	assert.NoError(t, err)
}

func TestJoinRejectedWhileInitiatorStakePending(t *testing.T) {
	ctx := context.Background()
	engine, ledger, _ := newTestEngine(map[int64]int64{1: 100, 2: 10_000})

	gate := make(chan struct{})
	ledger.mu.Lock()
	ledger.blockReserve[1] = gate
	ledger.mu.Unlock()

	createErr := make(chan error, 1)
	go func() {
		_, err := engine.CreateSession(ctx, "chat:1", heistConfig(), 1, 500, SideNone)
		createErr <- err
	}()

	require.Eventually(t, func() bool {
		_, ok := engine.Get("chat:1")
		return ok
	}, time.Second, time.Millisecond)

	// The scope is claimed but not joinable until the initiator's stake
	// lands, so no other stake can ride on a create that may still fail.
	_, _, err := engine.Join(ctx, "chat:1", 2, 500, SideNone)
	assert.ErrorIs(t, err, ErrNotFound)

	close(gate)
	require.ErrorIs(t, <-createErr, ErrInsufficientFunds)

	assert.Equal(t, int64(10_000), ledger.balance(2))

	// The failed create released the scope for the next round.
	_, err = engine.CreateSession(ctx, "chat:1", heistConfig(), 2, 500, SideNone)
	assert.NoError(t, err)
}

func TestCreateSessionInvalidStake(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(map[int64]int64{1: 10_000})

	_, err := engine.CreateSession(ctx, "chat:1", heistConfig(), 1, 300, SideNone)
	assert.ErrorIs(t, err, ErrInvalidStake)
}

func TestJoinValidation(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(map[int64]int64{1: 10_000, 2: 10_000, 3: 50})

	_, _, err := engine.Join(ctx, "chat:1", 2, 500, SideNone)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = engine.CreateSession(ctx, "chat:1", heistConfig(), 1, 500, SideNone)
	require.NoError(t, err)

	_, _, err = engine.Join(ctx, "chat:1", 1, 500, SideNone)
	assert.ErrorIs(t, err, ErrAlreadyJoined)

	_, _, err = engine.Join(ctx, "chat:1", 2, 400, SideNone)
	assert.ErrorIs(t, err, ErrInvalidStake)

	_, _, err = engine.Join(ctx, "chat:1", 3, 500, SideNone)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, count, err := engine.Join(ctx, "chat:1", 2, 500, SideNone)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestJoinFull(t *testing.T) {
	ctx := context.Background()
	cfg := rouletteConfig()
	cfg.MaxParticipants = 2

	balances := map[int64]int64{1: 1000, 2: 1000, 3: 1000}
	engine, _, _ := newTestEngine(balances)

	_, err := engine.CreateSession(ctx, "chat:1", cfg, 1, 100, SideNone)
	require.NoError(t, err)
	_, _, err = engine.Join(ctx, "chat:1", 2, 100, SideNone)
	require.NoError(t, err)

	_, _, err = engine.Join(ctx, "chat:1", 3, 100, SideNone)
	assert.ErrorIs(t, err, ErrFull)
}

func TestQuorumRefundAtDeadline(t *testing.T) {
	ctx := context.Background()
	cfg := heistConfig()
	cfg.JoinWindow = 30 * time.Millisecond

	engine, ledger, cooldowns := newTestEngine(map[int64]int64{1: 10_000})

	s, err := engine.CreateSession(ctx, "chat:1", cfg, 1, 500, SideNone)
	require.NoError(t, err)
	require.Equal(t, int64(9_500), ledger.balance(1))

	require.Eventually(t, func() bool {
		return s.State() == StateRefunded
	}, time.Second, 5*time.Millisecond)

	// The stake comes back in full and no cooldown applies to a voided round.
	assert.Equal(t, int64(10_000), ledger.balance(1))
	assert.False(t, cooldowns.has(1))

	_, ok := engine.Get("chat:1")
	assert.False(t, ok, "refunded session must leave the registry")
}

func TestTriggerGuards(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(map[int64]int64{1: 10_000, 2: 10_000})

	_, err := engine.Trigger(ctx, "chat:1", 1)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = engine.CreateSession(ctx, "chat:1", heistConfig(), 1, 500, SideNone)
	require.NoError(t, err)

	_, err = engine.Trigger(ctx, "chat:1", 2)
	assert.ErrorIs(t, err, ErrNotInitiator)

	_, err = engine.Trigger(ctx, "chat:1", 1)
	assert.ErrorIs(t, err, ErrQuorumNotMet)
}

func TestCooperativeSuccessPaysRewardRange(t *testing.T) {
	ctx := context.Background()
	cfg := heistConfig()
	// Force a deterministic success.
	cfg.BaseSuccess = 100
	cfg.MaxSuccess = 100
	cfg.PerMemberBonus = 0

	balances := map[int64]int64{1: 10_000, 2: 10_000, 3: 10_000}
	engine, ledger, cooldowns := newTestEngine(balances)

	_, err := engine.CreateSession(ctx, "chat:1", cfg, 1, 500, SideNone)
	require.NoError(t, err)
	_, _, err = engine.Join(ctx, "chat:1", 2, 500, SideNone)
	require.NoError(t, err)
	_, _, err = engine.Join(ctx, "chat:1", 3, 500, SideNone)
	require.NoError(t, err)

	res, err := engine.Trigger(ctx, "chat:1", 1)
	require.NoError(t, err)
	require.Equal(t, StateResolved, res.State)
	require.True(t, res.Outcome.Success)

	for _, id := range []int64{1, 2, 3} {
		gain := ledger.balance(id) - (10_000 - 500)
		assert.GreaterOrEqual(t, gain, int64(550), "user %d reward below range", id)
		assert.LessOrEqual(t, gain, int64(850), "user %d reward above range", id)
		assert.True(t, cooldowns.has(id), "user %d missing cooldown", id)
	}
}

func TestCooperativeFailureBurnsStakes(t *testing.T) {
	ctx := context.Background()
	cfg := heistConfig()
	// Force a deterministic failure.
	cfg.BaseSuccess = 0
	cfg.MaxSuccess = 0
	cfg.PerMemberBonus = 0

	balances := map[int64]int64{1: 10_000, 2: 10_000}
	engine, ledger, cooldowns := newTestEngine(balances)

	_, err := engine.CreateSession(ctx, "chat:1", cfg, 1, 500, SideNone)
	require.NoError(t, err)
	_, _, err = engine.Join(ctx, "chat:1", 2, 500, SideNone)
	require.NoError(t, err)

	res, err := engine.Trigger(ctx, "chat:1", 1)
	require.NoError(t, err)
	require.Equal(t, StateResolved, res.State)
	require.False(t, res.Outcome.Success)

	for _, id := range []int64{1, 2} {
		assert.Equal(t, int64(9_500), ledger.balance(id))
		assert.True(t, cooldowns.has(id))
	}
}

func TestEliminationConservation(t *testing.T) {
	ctx := context.Background()
	balances := map[int64]int64{1: 1000, 2: 1000, 3: 1000, 4: 1000}
	engine, ledger, _ := newTestEngine(balances)

	_, err := engine.CreateSession(ctx, "chat:1", rouletteConfig(), 1, 100, SideNone)
	require.NoError(t, err)
	for _, id := range []int64{2, 3, 4} {
		_, _, err = engine.Join(ctx, "chat:1", id, 100, SideNone)
		require.NoError(t, err)
	}

	res, err := engine.Trigger(ctx, "chat:1", 1)
	require.NoError(t, err)
	require.Equal(t, StateResolved, res.State)

	// Pool 400, 5% cut: exactly 380 credited back, 20 retained.
	assert.Equal(t, int64(380), ledger.credited())
	assert.Equal(t, int64(20), res.Table.HouseCut)

	// The loser got nothing back.
	assert.Equal(t, int64(900), ledger.balance(res.Outcome.LoserID))
}

func TestIdempotentResolution(t *testing.T) {
	ctx := context.Background()
	cfg := rouletteConfig()
	cfg.JoinWindow = 40 * time.Millisecond

	balances := map[int64]int64{1: 1000, 2: 1000, 3: 1000, 4: 1000}
	engine, ledger, _ := newTestEngine(balances)

	_, err := engine.CreateSession(ctx, "chat:1", cfg, 1, 100, SideNone)
	require.NoError(t, err)
	for _, id := range []int64{2, 3, 4} {
		_, _, err = engine.Join(ctx, "chat:1", id, 100, SideNone)
		require.NoError(t, err)
	}

	// Hammer Trigger from many goroutines while the deadline fires.
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			engine.Trigger(ctx, "chat:1", 1)
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		_, ok := engine.Get("chat:1")
		return !ok
	}, time.Second, 5*time.Millisecond)

	// Exactly one settlement: 380 credited total, never doubled.
	assert.Equal(t, int64(380), ledger.credited())
}

func TestJoinDuringResolutionIsCompensated(t *testing.T) {
	ctx := context.Background()
	cfg := heistConfig()
	cfg.MinParticipants = 1
	cfg.BaseSuccess = 0
	cfg.MaxSuccess = 0
	cfg.PerMemberBonus = 0

	balances := map[int64]int64{1: 10_000, 2: 10_000}
	engine, ledger, _ := newTestEngine(balances)

	_, err := engine.CreateSession(ctx, "chat:1", cfg, 1, 500, SideNone)
	require.NoError(t, err)

	// Hold user 2's reservation in flight while the initiator resolves.
	gate := make(chan struct{})
	ledger.mu.Lock()
	ledger.blockReserve[2] = gate
	ledger.mu.Unlock()

	joinErr := make(chan error, 1)
	go func() {
		_, _, err := engine.Join(ctx, "chat:1", 2, 500, SideNone)
		joinErr <- err
	}()

	// Give the join a moment to claim its pending seat.
	require.Eventually(t, func() bool {
		s, ok := engine.Get("chat:1")
		if !ok {
			return false
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.pending) == 1
	}, time.Second, time.Millisecond)

	_, err = engine.Trigger(ctx, "chat:1", 1)
	require.NoError(t, err)

	close(gate)
	err = <-joinErr
	assert.ErrorIs(t, err, ErrExpired)

	// The in-flight reservation was compensated in full.
	assert.Equal(t, int64(10_000), ledger.balance(2))
}

func TestPoolBetVoidRefundsOneSidedRound(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		Mode:            ModePoolBet,
		MinBet:          100,
		MaxBet:          5000,
		MinParticipants: 2,
		MaxParticipants: 50,
		HouseCutPercent: 10,
		JoinWindow:      40 * time.Millisecond,
	}
	balances := map[int64]int64{1: 1000, 2: 1000}
	engine, ledger, _ := newTestEngine(balances)

	s, err := engine.CreateSession(ctx, "chat:1", cfg, 1, 300, SideA)
	require.NoError(t, err)
	_, _, err = engine.Join(ctx, "chat:1", 2, 200, SideA)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.State() == StateRefunded
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, int64(1000), ledger.balance(1))
	assert.Equal(t, int64(1000), ledger.balance(2))
}

func TestPoolBetResolvesAtDeadline(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		Mode:            ModePoolBet,
		MinBet:          100,
		MaxBet:          5000,
		MinParticipants: 2,
		MaxParticipants: 50,
		HouseCutPercent: 10,
		JoinWindow:      40 * time.Millisecond,
		SideAWeight:     100, // deterministic winner for the test
	}
	balances := map[int64]int64{1: 1000, 2: 1000}
	engine, ledger, _ := newTestEngine(balances)

	s, err := engine.CreateSession(ctx, "chat:1", cfg, 1, 300, SideA)
	require.NoError(t, err)
	_, _, err = engine.Join(ctx, "chat:1", 2, 500, SideB)
	require.NoError(t, err)

	// Pool betting never resolves early, even for the initiator.
	_, err = engine.Trigger(ctx, "chat:1", 1)
	assert.ErrorIs(t, err, ErrNotInitiator)

	require.Eventually(t, func() bool {
		return s.State() == StateResolved
	}, time.Second, 5*time.Millisecond)

	// Losing pool 500, cut 50: winner gets stake 300 + share 450.
	assert.Equal(t, int64(1000-300+300+450), ledger.balance(1))
	assert.Equal(t, int64(500), ledger.balance(2))
}

func TestExternalPoolErrorRefunds(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		Mode:            ModeRaid,
		FixedStake:      100,
		MinParticipants: 2,
		MaxParticipants: 8,
		BaseSuccess:     100,
		MaxSuccess:      100,
		JoinWindow:      time.Minute,
		RewardSource:    RewardExogenous,
	}
	balances := map[int64]int64{1: 1000, 2: 1000}
	engine, ledger, _ := newTestEngine(balances)

	_, err := engine.CreateSession(ctx, "raid:1:2", cfg, 1, 100, SideNone,
		WithExternalPool(func(ctx context.Context, success bool) (int64, RollbackFunc, error) {
			return 0, nil, errors.New("treasury unavailable")
		}))
	require.NoError(t, err)
	_, _, err = engine.Join(ctx, "raid:1:2", 2, 100, SideNone)
	require.NoError(t, err)

	res, err := engine.Trigger(ctx, "raid:1:2", 1)
	require.NoError(t, err)
	require.Equal(t, StateRefunded, res.State)

	assert.Equal(t, int64(1000), ledger.balance(1))
	assert.Equal(t, int64(1000), ledger.balance(2))
}

func TestCreditFailureRollsBackExternalPool(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		Mode:            ModeRaid,
		FixedStake:      100,
		MinParticipants: 2,
		MaxParticipants: 8,
		BaseSuccess:     100,
		MaxSuccess:      100,
		JoinWindow:      time.Minute,
		RewardSource:    RewardExogenous,
	}
	balances := map[int64]int64{1: 1000, 2: 1000}
	engine, ledger, _ := newTestEngine(balances)

	rolledBack := false
	_, err := engine.CreateSession(ctx, "raid:1:2", cfg, 1, 100, SideNone,
		WithExternalPool(func(ctx context.Context, success bool) (int64, RollbackFunc, error) {
			return 600, func(ctx context.Context) error {
				rolledBack = true
				return nil
			}, nil
		}))
	require.NoError(t, err)
	_, _, err = engine.Join(ctx, "raid:1:2", 2, 100, SideNone)
	require.NoError(t, err)

	// The pool hook has already moved treasury funds when the first
	// settlement credit fails; the round must undo the hook before refunding.
	ledger.mu.Lock()
	ledger.failCredits = 1
	ledger.mu.Unlock()

	res, err := engine.Trigger(ctx, "raid:1:2", 1)
	require.NoError(t, err)
	require.Equal(t, StateRefunded, res.State)

	assert.True(t, rolledBack, "external pool was not rolled back")
	assert.Equal(t, int64(1000), ledger.balance(1))
	assert.Equal(t, int64(1000), ledger.balance(2))
}

func TestCreditFailureRefundsRound(t *testing.T) {
	ctx := context.Background()
	balances := map[int64]int64{1: 1000, 2: 1000, 3: 1000, 4: 1000}
	engine, ledger, _ := newTestEngine(balances)

	_, err := engine.CreateSession(ctx, "chat:1", rouletteConfig(), 1, 100, SideNone)
	require.NoError(t, err)
	for _, id := range []int64{2, 3, 4} {
		_, _, err = engine.Join(ctx, "chat:1", id, 100, SideNone)
		require.NoError(t, err)
	}

	// The first settlement credit fails; every stake must come back.
	ledger.mu.Lock()
	ledger.failCredits = 1
	ledger.mu.Unlock()

	res, err := engine.Trigger(ctx, "chat:1", 1)
	require.NoError(t, err)
	require.Equal(t, StateRefunded, res.State)

	for _, id := range []int64{1, 2, 3, 4} {
		assert.Equal(t, int64(1000), ledger.balance(id), "user %d stake not returned", id)
	}
}

func TestRefundAllOnShutdown(t *testing.T) {
	ctx := context.Background()
	balances := map[int64]int64{1: 1000, 2: 1000, 3: 1000}
	engine, ledger, _ := newTestEngine(balances)

	_, err := engine.CreateSession(ctx, "chat:1", rouletteConfig(), 1, 100, SideNone)
	require.NoError(t, err)
	_, err = engine.CreateSession(ctx, "chat:2", rouletteConfig(), 2, 100, SideNone)
	require.NoError(t, err)
	_, _, err = engine.Join(ctx, "chat:2", 3, 100, SideNone)
	require.NoError(t, err)

	refunded := engine.RefundAll(ctx)
	assert.Equal(t, 2, refunded)

	for _, id := range []int64{1, 2, 3} {
		assert.Equal(t, int64(1000), ledger.balance(id))
	}
}
