package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"telegram-wager-bot/internal/service"
	"telegram-wager-bot/internal/wager"
)

// GangHandler handles gang management commands.
type GangHandler struct {
	gangService    *service.GangService
	accountService *service.AccountService
	ledger         *service.LedgerService
}

// NewGangHandler creates a new GangHandler.
func NewGangHandler(
	gangService *service.GangService,
	accountService *service.AccountService,
	ledger *service.LedgerService,
) *GangHandler {
	return &GangHandler{
		gangService:    gangService,
		accountService: accountService,
		ledger:         ledger,
	}
}

// HandleGang handles the /gang command with subcommands.
// Usage: /gang create <name> | join <name> | deposit <amount> | info
func (h *GangHandler) HandleGang(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	chat := c.Chat()
	if sender == nil || chat == nil {
		return nil
	}

	if chat.Type == tele.ChatPrivate {
		return c.Reply("❌ Gangs live in group chats")
	}

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: /gang create <name> | join <name> | deposit <amount> | info")
	}

	name := displayName(sender)
	if _, _, err := h.accountService.EnsureUser(ctx, sender.ID, name); err != nil {
		return c.Reply("❌ Could not register you, try again later")
	}

	switch args[0] {
	case "create":
		return h.handleCreate(c, args[1:])
	case "join":
		return h.handleJoin(c, args[1:])
	case "deposit":
		return h.handleDeposit(c, args[1:])
	case "info":
		return h.handleInfo(c)
	default:
		return c.Reply("❌ Usage: /gang create <name> | join <name> | deposit <amount> | info")
	}
}

func (h *GangHandler) handleCreate(c tele.Context, args []string) error {
	ctx := context.Background()
	if len(args) < 1 {
		return c.Reply("❌ Usage: /gang create <name>")
	}
	gangName := strings.Join(args, " ")

	gang, err := h.gangService.CreateGang(ctx, c.Chat().ID, gangName, c.Sender().ID)
	if err != nil {
		if errors.Is(err, service.ErrAlreadyInGang) {
			return c.Reply("❌ You are already in a gang")
		}
		return c.Reply(fmt.Sprintf("❌ Could not found the gang: %v", err))
	}

	return c.Send(fmt.Sprintf("🏴 Gang %s founded! Recruit with /gang join %s", gang.Name, gang.Name))
}

func (h *GangHandler) handleJoin(c tele.Context, args []string) error {
	ctx := context.Background()
	if len(args) < 1 {
		return c.Reply("❌ Usage: /gang join <name>")
	}
	gangName := strings.Join(args, " ")

	gang, err := h.gangService.JoinGang(ctx, c.Chat().ID, gangName, c.Sender().ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGangNotFound):
			return c.Reply(fmt.Sprintf("❌ No gang called %q around here", gangName))
		case errors.Is(err, service.ErrAlreadyInGang):
			return c.Reply("❌ You are already in a gang")
		default:
			return c.Reply("❌ Could not join, try again later")
		}
	}

	return c.Send(fmt.Sprintf("🏴 @%s joined %s!", displayName(c.Sender()), gang.Name))
}

func (h *GangHandler) handleDeposit(c tele.Context, args []string) error {
	ctx := context.Background()
	sender := c.Sender()

	if len(args) < 1 {
		return c.Reply("❌ Usage: /gang deposit <amount>")
	}
	amount, err := parseBet(args[0])
	if err != nil {
		return c.Reply("❌ Enter a valid amount")
	}

	gang, err := h.gangService.GangOf(ctx, c.Chat().ID, sender.ID)
	if err != nil {
		if errors.Is(err, service.ErrGangNotFound) {
			return c.Reply("❌ You are not in a gang")
		}
		return c.Reply("❌ Could not look up your gang, try again later")
	}

	// Move the coins off the user's balance first, then into the bank.
	if err := h.ledger.Reserve(ctx, sender.ID, amount); err != nil {
		if errors.Is(err, wager.ErrInsufficientFunds) {
			return c.Reply("❌ Not enough coins")
		}
		return c.Reply("❌ Deposit failed, try again later")
	}

	gang, err = h.gangService.Deposit(ctx, gang.ID, amount)
	if err != nil {
		// Put the coins back rather than lose them.
		_ = h.ledger.Credit(ctx, sender.ID, amount)
		return c.Reply("❌ Deposit failed, try again later")
	}

	return c.Send(fmt.Sprintf("🏦 @%s deposited %d coins. %s's bank holds %d.",
		displayName(sender), amount, gang.Name, gang.Bank))
}

func (h *GangHandler) handleInfo(c tele.Context) error {
	ctx := context.Background()

	gang, err := h.gangService.GangOf(ctx, c.Chat().ID, c.Sender().ID)
	if err != nil {
		if errors.Is(err, service.ErrGangNotFound) {
			return c.Reply("❌ You are not in a gang. Found one with /gang create <name>")
		}
		return c.Reply("❌ Could not look up your gang, try again later")
	}

	return c.Reply(fmt.Sprintf("🏴 %s\n🏦 Bank: %d coins", gang.Name, gang.Bank))
}
