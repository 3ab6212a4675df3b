package handler

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v3"

	"telegram-wager-bot/internal/service"
)

// AccountHandler handles account-related commands.
type AccountHandler struct {
	accountService *service.AccountService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountService *service.AccountService) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

// HandleStart handles the /start command.
// Creates an account with the starting balance if the user is new.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	username := displayName(sender)

	user, created, err := h.accountService.EnsureUser(ctx, sender.ID, username)
	if err != nil {
		return c.Reply("❌ Could not create your account, try again later")
	}

	if created {
		return c.Reply(fmt.Sprintf(
			"🎉 Welcome @%s!\n\n"+
				"Your account is ready with %d coins.\n\n"+
				"Commands:\n"+
				"/balance - your coins\n"+
				"/heist easy|medium|hard - plan a heist\n"+
				"/rr <bet> - russian roulette\n"+
				"/gang create <name> - found a gang\n"+
				"/raid <gang> - raid another gang\n"+
				"/toto a|b <amount> - pool betting",
			username, user.Balance,
		))
	}

	return c.Reply(fmt.Sprintf(
		"👋 Welcome back @%s!\n\nBalance: %d coins",
		username, user.Balance,
	))
}

// HandleBalance handles the /balance command.
// Displays the user's current balance.
func (h *AccountHandler) HandleBalance(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	balance, err := h.accountService.GetBalance(ctx, sender.ID)
	if err != nil {
		// User might not exist yet, register on the spot
		user, _, err := h.accountService.EnsureUser(ctx, sender.ID, displayName(sender))
		if err != nil {
			return c.Reply("❌ Could not fetch your balance, try again later")
		}
		balance = user.Balance
	}

	return c.Reply(fmt.Sprintf("💰 Balance: %d coins", balance))
}
