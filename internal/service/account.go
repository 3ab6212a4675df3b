// Package service provides business logic implementations.
package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"telegram-wager-bot/internal/model"
	"telegram-wager-bot/internal/repository"
)

// AccountService handles user account operations.
type AccountService struct {
	userRepo       *repository.UserRepository
	txRepo         *repository.TransactionRepository
	initialBalance int64
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(
	userRepo *repository.UserRepository,
	txRepo *repository.TransactionRepository,
	initialBalance int64,
) *AccountService {
	return &AccountService{
		userRepo:       userRepo,
		txRepo:         txRepo,
		initialBalance: initialBalance,
	}
}

// EnsureUser ensures a user exists, creating one if necessary.
// Returns the user and whether it was newly created.
func (s *AccountService) EnsureUser(ctx context.Context, telegramID int64, username string) (*model.User, bool, error) {
	user, created, err := s.userRepo.GetOrCreate(ctx, telegramID, username, s.initialBalance)
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure user: %w", err)
	}

	if created {
		desc := "starting balance"
		if _, err := s.txRepo.Create(ctx, telegramID, s.initialBalance, model.TxTypeInitial, &desc); err != nil {
			log.Error().Err(err).Int64("user_id", telegramID).Msg("Failed to record initial transaction")
		}
		return user, true, nil
	}

	// Update username if it changed
	if user.Username != username && username != "" {
		if err := s.userRepo.UpdateUsername(ctx, telegramID, username); err != nil {
			log.Warn().Err(err).Int64("user_id", telegramID).Msg("Failed to update username")
		}
		user.Username = username
	}

	return user, false, nil
}

// GetBalance retrieves a user's current balance.
func (s *AccountService) GetBalance(ctx context.Context, telegramID int64) (int64, error) {
	user, err := s.userRepo.GetByID(ctx, telegramID)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return user.Balance, nil
}

// GetUser retrieves a user by their Telegram ID.
func (s *AccountService) GetUser(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.userRepo.GetByID(ctx, telegramID)
}

// Exists reports whether the user has a registered account.
func (s *AccountService) Exists(ctx context.Context, telegramID int64) (bool, error) {
	return s.userRepo.Exists(ctx, telegramID)
}
