package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"telegram-wager-bot/internal/model"
	"telegram-wager-bot/internal/pkg/lock"
	"telegram-wager-bot/internal/repository"
	"telegram-wager-bot/internal/wager"
)

// LedgerService moves coins between user balances and wager pools. It
// implements wager.Ledger: reservations debit atomically and report
// wager.ErrInsufficientFunds, credits add unconditionally. Every movement
// leaves a transaction record.
type LedgerService struct {
	userRepo *repository.UserRepository
	txRepo   *repository.TransactionRepository
	userLock *lock.UserLock
}

// NewLedgerService creates a new LedgerService instance.
func NewLedgerService(
	userRepo *repository.UserRepository,
	txRepo *repository.TransactionRepository,
	userLock *lock.UserLock,
) *LedgerService {
	return &LedgerService{
		userRepo: userRepo,
		txRepo:   txRepo,
		userLock: userLock,
	}
}

// Reserve withdraws amount from the user's balance into a wager pool.
// Returns wager.ErrInsufficientFunds when the balance does not cover it.
func (s *LedgerService) Reserve(ctx context.Context, userID int64, amount int64) error {
	return s.userLock.WithLock(userID, func() error {
		ok, err := s.userRepo.TryDebit(ctx, userID, amount)
		if err != nil {
			return fmt.Errorf("failed to reserve stake: %w", err)
		}
		if !ok {
			return wager.ErrInsufficientFunds
		}

		desc := "stake reserved"
		if _, err := s.txRepo.Create(ctx, userID, -amount, model.TxTypeStake, &desc); err != nil {
			// Balance already moved, the record is best effort.
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to record stake transaction")
		}
		return nil
	})
}

// Credit returns amount to the user's balance after settlement or refund.
func (s *LedgerService) Credit(ctx context.Context, userID int64, amount int64) error {
	return s.userLock.WithLock(userID, func() error {
		if _, err := s.userRepo.UpdateBalance(ctx, userID, amount); err != nil {
			return fmt.Errorf("failed to credit payout: %w", err)
		}

		desc := "wager payout"
		if _, err := s.txRepo.Create(ctx, userID, amount, model.TxTypePayout, &desc); err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to record payout transaction")
		}
		return nil
	})
}
