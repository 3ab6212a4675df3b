package service

import (
	"context"
	"fmt"
	"time"

	"telegram-wager-bot/internal/repository"
)

// CooldownService gates how often a user may start or join an action. It
// implements wager.CooldownStore so settled rounds can arm the next cooldown.
type CooldownService struct {
	repo *repository.CooldownRepository
}

// NewCooldownService creates a new CooldownService instance.
func NewCooldownService(repo *repository.CooldownRepository) *CooldownService {
	return &CooldownService{repo: repo}
}

// SetCooldown blocks the action for the user for the given duration.
func (s *CooldownService) SetCooldown(ctx context.Context, userID int64, action string, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if err := s.repo.Set(ctx, userID, action, time.Now().Add(d)); err != nil {
		return fmt.Errorf("failed to set cooldown: %w", err)
	}
	return nil
}

// Remaining reports how long until the user may start the action again.
// Zero means the action is available.
func (s *CooldownService) Remaining(ctx context.Context, userID int64, action string) (time.Duration, error) {
	return s.repo.Remaining(ctx, userID, action)
}
