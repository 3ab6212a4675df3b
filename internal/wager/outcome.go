package wager

import "math/rand"

// Outcome is the resolver's verdict for a session. Which fields are set
// depends on the mode: Success/Probability for cooperative and raid,
// LoserID for elimination, WinningSide for pool betting.
type Outcome struct {
	Mode        Mode
	Success     bool
	Probability int
	LoserID     int64
	WinningSide Side
}

// SuccessProbability returns the success chance in whole percent for a
// cooperative or raid session with the given participant count:
// min(MaxSuccess, BaseSuccess + (n-1)*PerMemberBonus).
func SuccessProbability(cfg Config, participantCount int) int {
	chance := cfg.BaseSuccess + (participantCount-1)*cfg.PerMemberBonus
	if chance > cfg.MaxSuccess {
		chance = cfg.MaxSuccess
	}
	if chance < 0 {
		chance = 0
	}
	return chance
}

// drawSuccess rolls 1-100 against the head-count-adjusted success chance.
func drawSuccess(cfg Config, participantCount int, rng *rand.Rand) (bool, int) {
	chance := SuccessProbability(cfg, participantCount)
	roll := rng.Intn(100) + 1
	return roll <= chance, chance
}

// drawLoser picks one participant uniformly at random.
func drawLoser(parts []Participant, rng *rand.Rand) int64 {
	return parts[rng.Intn(len(parts))].UserID
}

// drawWinningSide draws the winning side with side A's weight in percent.
// A zero weight means an even draw.
func drawWinningSide(weightA int, rng *rand.Rand) Side {
	if weightA <= 0 {
		weightA = 50
	}
	if rng.Intn(100) < weightA {
		return SideA
	}
	return SideB
}

// ResolveOutcome maps (config, participants, RNG) to an outcome. It is pure
// apart from consuming the random source. A pool-bet round with an empty side
// is void and fails with ErrDegeneratePool; the caller refunds it.
func ResolveOutcome(cfg Config, parts []Participant, rng *rand.Rand) (Outcome, error) {
	out := Outcome{Mode: cfg.Mode}

	switch cfg.Mode {
	case ModeCooperative, ModeRaid:
		out.Success, out.Probability = drawSuccess(cfg, len(parts), rng)

	case ModeElimination:
		if len(parts) < 2 {
			return out, ErrDegeneratePool
		}
		out.LoserID = drawLoser(parts, rng)

	case ModePoolBet:
		var countA, countB int
		for _, p := range parts {
			switch p.Side {
			case SideA:
				countA++
			case SideB:
				countB++
			}
		}
		if countA == 0 || countB == 0 {
			return out, ErrDegeneratePool
		}
		out.WinningSide = drawWinningSide(cfg.SideAWeight, rng)
		out.Success = true

	default:
		return out, ErrDegeneratePool
	}

	return out, nil
}
