package wager

import "math/rand"

// Payout is one winner's row in a settlement table. Credit is the full amount
// returned to the ledger, including the winner's own stake in modes where the
// stake is not part of the distributable pool.
type Payout struct {
	UserID int64
	Stake  int64
	Credit int64
}

// Table is the exact result of settling a session: applying every credit in
// Payouts plus retaining HouseCut accounts for the entire pool with zero
// currency drift.
type Table struct {
	Pool          int64
	HouseCut      int64
	Distributable int64
	Payouts       []Payout
}

// TotalCredits returns the sum of all credits in the table.
func (t *Table) TotalCredits() int64 {
	var total int64
	for _, p := range t.Payouts {
		total += p.Credit
	}
	return total
}

// houseCut retains percent of pool, floor division.
func houseCut(pool int64, percent int) int64 {
	if percent <= 0 {
		return 0
	}
	return pool * int64(percent) / 100
}

// SplitEqual divides distributable into len(winners) equal shares. The first
// remainder winners in stable join order each get one extra unit, so the
// shares always sum to distributable exactly.
func SplitEqual(distributable int64, winners int) []int64 {
	if winners <= 0 {
		return nil
	}
	base := distributable / int64(winners)
	remainder := distributable - base*int64(winners)
	shares := make([]int64, winners)
	for i := range shares {
		shares[i] = base
		if int64(i) < remainder {
			shares[i]++
		}
	}
	return shares
}

// SplitProportional divides distributable among winners proportionally to
// their stakes, floor division per winner. The residual goes to the winner
// with the lowest user id so the shares sum to distributable exactly.
func SplitProportional(distributable int64, winners []Participant) []int64 {
	if len(winners) == 0 {
		return nil
	}
	var stakeTotal int64
	for _, w := range winners {
		stakeTotal += w.Stake
	}
	if stakeTotal <= 0 {
		return nil
	}

	shares := make([]int64, len(winners))
	var assigned int64
	lowest := 0
	for i, w := range winners {
		shares[i] = w.Stake * distributable / stakeTotal
		assigned += shares[i]
		if w.UserID < winners[lowest].UserID {
			lowest = i
		}
	}
	shares[lowest] += distributable - assigned
	return shares
}

// stakePool sums all participant stakes.
func stakePool(parts []Participant) int64 {
	var total int64
	for _, p := range parts {
		total += p.Stake
	}
	return total
}

// Settle computes the payout table for a resolved session. It is pure apart
// from the random source, which only cooperative exogenous rewards consume.
// externalPool is the plundered amount for raid-style sessions and ignored
// elsewhere. The caller applies the table to the ledger only after it has
// been computed in full.
func Settle(cfg Config, parts []Participant, out Outcome, externalPool int64, rng *rand.Rand) (*Table, error) {
	switch cfg.Mode {
	case ModeCooperative:
		return settleCooperative(cfg, parts, out, rng)
	case ModeElimination:
		return settleElimination(cfg, parts, out)
	case ModeRaid:
		return settleRaid(cfg, parts, out, externalPool)
	case ModePoolBet:
		return settlePoolBet(cfg, parts, out)
	}
	return nil, ErrDegeneratePool
}

func settleCooperative(cfg Config, parts []Participant, out Outcome, rng *rand.Rand) (*Table, error) {
	table := &Table{Pool: stakePool(parts)}
	if !out.Success {
		// Stakes are burned; nothing to distribute.
		return table, nil
	}

	if cfg.RewardSource == RewardExogenous {
		// Each winner draws an individual reward from the configured range;
		// stakes stay burned and the pool is untouched.
		span := cfg.RewardMax - cfg.RewardMin
		if span < 0 {
			return nil, ErrDegeneratePool
		}
		for _, p := range parts {
			reward := cfg.RewardMin
			if span > 0 {
				reward += rng.Int63n(span + 1)
			}
			table.Payouts = append(table.Payouts, Payout{UserID: p.UserID, Stake: p.Stake, Credit: reward})
		}
		return table, nil
	}

	// Flat per-head split of the pot itself.
	table.HouseCut = houseCut(table.Pool, cfg.HouseCutPercent)
	table.Distributable = table.Pool - table.HouseCut
	shares := SplitEqual(table.Distributable, len(parts))
	for i, p := range parts {
		table.Payouts = append(table.Payouts, Payout{UserID: p.UserID, Stake: p.Stake, Credit: shares[i]})
	}
	return table, nil
}

func settleElimination(cfg Config, parts []Participant, out Outcome) (*Table, error) {
	winners := make([]Participant, 0, len(parts)-1)
	for _, p := range parts {
		if p.UserID != out.LoserID {
			winners = append(winners, p)
		}
	}
	if len(winners) == 0 {
		return nil, ErrDegeneratePool
	}

	table := &Table{Pool: stakePool(parts)}
	table.HouseCut = houseCut(table.Pool, cfg.HouseCutPercent)
	table.Distributable = table.Pool - table.HouseCut

	// The pool already contains the winners' stakes, so the share is the
	// whole credit.
	shares := SplitEqual(table.Distributable, len(winners))
	for i, w := range winners {
		table.Payouts = append(table.Payouts, Payout{UserID: w.UserID, Stake: w.Stake, Credit: shares[i]})
	}
	return table, nil
}

func settleRaid(cfg Config, parts []Participant, out Outcome, externalPool int64) (*Table, error) {
	table := &Table{Pool: externalPool}
	if !out.Success {
		return table, nil
	}
	if externalPool <= 0 {
		return nil, ErrDegeneratePool
	}

	table.HouseCut = houseCut(table.Pool, cfg.HouseCutPercent)
	table.Distributable = table.Pool - table.HouseCut

	// Raiders' own stakes never entered the plundered pool, so they come
	// back on top of the share.
	shares := SplitProportional(table.Distributable, parts)
	if shares == nil {
		return nil, ErrDegeneratePool
	}
	for i, p := range parts {
		table.Payouts = append(table.Payouts, Payout{UserID: p.UserID, Stake: p.Stake, Credit: p.Stake + shares[i]})
	}
	return table, nil
}

func settlePoolBet(cfg Config, parts []Participant, out Outcome) (*Table, error) {
	var winners []Participant
	var losingPool int64
	for _, p := range parts {
		if p.Side == out.WinningSide {
			winners = append(winners, p)
		} else {
			losingPool += p.Stake
		}
	}
	if len(winners) == 0 || losingPool <= 0 {
		return nil, ErrDegeneratePool
	}

	table := &Table{Pool: losingPool}
	table.HouseCut = houseCut(table.Pool, cfg.HouseCutPercent)
	table.Distributable = table.Pool - table.HouseCut

	// Winners' stakes were never part of the losing pool: stake comes back
	// plus the proportional share.
	shares := SplitProportional(table.Distributable, winners)
	if shares == nil {
		return nil, ErrDegeneratePool
	}
	for i, w := range winners {
		table.Payouts = append(table.Payouts, Payout{UserID: w.UserID, Stake: w.Stake, Credit: w.Stake + shares[i]})
	}
	return table, nil
}
