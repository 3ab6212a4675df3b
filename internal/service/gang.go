package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"telegram-wager-bot/internal/model"
	"telegram-wager-bot/internal/repository"
)

// Gang-related errors surfaced to handlers.
var (
	ErrGangNotFound  = errors.New("gang not found")
	ErrAlreadyInGang = errors.New("already in a gang")
	ErrBankTooPoor   = errors.New("target gang bank is empty")
)

// GangService manages gangs and owns the raid treasury rules: how much a
// successful raid steals, how the loot is divided between the attacker bank
// and the raiders, and what a failed raid costs.
type GangService struct {
	repo *repository.GangRepository

	stealMinPercent  int
	stealMaxPercent  int
	bankSharePercent int
	failPenaltyPct   int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGangService creates a new GangService instance.
func NewGangService(repo *repository.GangRepository, stealMin, stealMax, bankShare, failPenalty int) *GangService {
	return &GangService{
		repo:             repo,
		stealMinPercent:  stealMin,
		stealMaxPercent:  stealMax,
		bankSharePercent: bankShare,
		failPenaltyPct:   failPenalty,
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateGang founds a gang in a chat with the founder as its first member.
func (s *GangService) CreateGang(ctx context.Context, chatID int64, name string, founderID int64) (*model.Gang, error) {
	// A user may found a gang only if not already in one.
	if _, err := s.repo.GetByMember(ctx, chatID, founderID); err == nil {
		return nil, ErrAlreadyInGang
	} else if !errors.Is(err, repository.ErrGangNotFound) {
		return nil, err
	}

	gang, err := s.repo.Create(ctx, chatID, name, founderID)
	if err != nil {
		if errors.Is(err, repository.ErrGangNameTaken) {
			return nil, fmt.Errorf("gang %q already exists in this chat", name)
		}
		return nil, err
	}
	return gang, nil
}

// JoinGang enrolls a user into an existing gang.
func (s *GangService) JoinGang(ctx context.Context, chatID int64, name string, userID int64) (*model.Gang, error) {
	gang, err := s.repo.GetByName(ctx, chatID, name)
	if err != nil {
		if errors.Is(err, repository.ErrGangNotFound) {
			return nil, ErrGangNotFound
		}
		return nil, err
	}

	if err := s.repo.AddMember(ctx, chatID, gang.ID, userID); err != nil {
		if errors.Is(err, repository.ErrAlreadyInGang) {
			return nil, ErrAlreadyInGang
		}
		return nil, err
	}
	return gang, nil
}

// GangOf returns the gang a user belongs to in a chat.
func (s *GangService) GangOf(ctx context.Context, chatID int64, userID int64) (*model.Gang, error) {
	gang, err := s.repo.GetByMember(ctx, chatID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrGangNotFound) {
			return nil, ErrGangNotFound
		}
		return nil, err
	}
	return gang, nil
}

// GangByName returns the gang with the given name in a chat.
func (s *GangService) GangByName(ctx context.Context, chatID int64, name string) (*model.Gang, error) {
	gang, err := s.repo.GetByName(ctx, chatID, name)
	if err != nil {
		if errors.Is(err, repository.ErrGangNotFound) {
			return nil, ErrGangNotFound
		}
		return nil, err
	}
	return gang, nil
}

// Deposit moves coins into a gang's bank. The caller is responsible for
// debiting the depositor first.
func (s *GangService) Deposit(ctx context.Context, gangID int64, amount int64) (*model.Gang, error) {
	return s.repo.CreditBank(ctx, gangID, amount)
}

// Plunder executes a successful raid against the target gang: a random cut
// of the target bank is stolen, a configured share lands in the attacker
// bank, and the rest is returned as the raiders' pool. The returned undo
// reverses both bank movements so a raid that later fails to settle can put
// the loot back before refunding stakes.
func (s *GangService) Plunder(ctx context.Context, attackerGangID, targetGangID int64) (int64, func(context.Context) error, error) {
	target, err := s.repo.GetByID(ctx, targetGangID)
	if err != nil {
		return 0, nil, err
	}
	if target.Bank <= 0 {
		return 0, nil, ErrBankTooPoor
	}

	s.mu.Lock()
	span := s.stealMaxPercent - s.stealMinPercent
	pct := s.stealMinPercent
	if span > 0 {
		pct += s.rng.Intn(span + 1)
	}
	s.mu.Unlock()

	loot := target.Bank * int64(pct) / 100
	if loot <= 0 {
		return 0, nil, ErrBankTooPoor
	}

	ok, err := s.repo.TryDebitBank(ctx, targetGangID, loot)
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		// Bank shrank since the read, nothing left worth stealing.
		return 0, nil, ErrBankTooPoor
	}

	bankShare := loot * int64(s.bankSharePercent) / 100
	if bankShare > 0 {
		if _, err := s.repo.CreditBank(ctx, attackerGangID, bankShare); err != nil {
			// Put the loot back so the raid can refund cleanly.
			if _, rbErr := s.repo.CreditBank(ctx, targetGangID, loot); rbErr != nil {
				log.Error().Err(rbErr).Int64("gang_id", targetGangID).Msg("Failed to return loot after credit failure")
			}
			return 0, nil, err
		}
	}

	raidersPool := loot - bankShare
	undo := func(ctx context.Context) error {
		returned := raidersPool
		if bankShare > 0 {
			ok, err := s.repo.TryDebitBank(ctx, attackerGangID, bankShare)
			if err != nil {
				return err
			}
			if ok {
				returned += bankShare
			} else {
				// The attacker bank already spent its share; return what
				// could be reclaimed rather than minting the difference.
				log.Warn().
					Int64("attacker_gang", attackerGangID).
					Int64("bank_share", bankShare).
					Msg("Attacker bank spent its raid share before rollback")
			}
		}
		_, err := s.repo.CreditBank(ctx, targetGangID, returned)
		return err
	}

	log.Info().
		Int64("attacker_gang", attackerGangID).
		Int64("target_gang", targetGangID).
		Int64("loot", loot).
		Int("steal_percent", pct).
		Msg("Raid plundered target bank")

	return raidersPool, undo, nil
}

// Penalize charges the attacker bank after a failed raid. The returned undo
// re-credits the penalty if the round cannot settle.
func (s *GangService) Penalize(ctx context.Context, attackerGangID int64) (func(context.Context) error, error) {
	attacker, err := s.repo.GetByID(ctx, attackerGangID)
	if err != nil {
		return nil, err
	}

	penalty := attacker.Bank * int64(s.failPenaltyPct) / 100
	if penalty <= 0 {
		return nil, nil
	}

	if _, err := s.repo.TryDebitBank(ctx, attackerGangID, penalty); err != nil {
		return nil, err
	}

	log.Info().
		Int64("attacker_gang", attackerGangID).
		Int64("penalty", penalty).
		Msg("Failed raid cost the attacker bank")

	undo := func(ctx context.Context) error {
		_, err := s.repo.CreditBank(ctx, attackerGangID, penalty)
		return err
	}
	return undo, nil
}
