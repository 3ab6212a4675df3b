package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	tele "gopkg.in/telebot.v3"

	"telegram-wager-bot/internal/wager"
)

// rouletteScope returns the scope key for a chat's roulette round.
func rouletteScope(chatID int64) string {
	return fmt.Sprintf("rr:%d", chatID)
}

// HandleRoulette handles the /rr command: start an elimination roulette round
// where every player pays the same bet and exactly one loses it.
// Usage: /rr <bet>
func (h *WagerHandler) HandleRoulette(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	chat := c.Chat()
	if sender == nil || chat == nil {
		return nil
	}

	if chat.Type == tele.ChatPrivate {
		return c.Reply("❌ Roulette needs opponents, try it in a group chat")
	}

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: /rr <bet>\nExample: /rr 100")
	}

	rrCfg := h.cfg.Wagers.Roulette
	bet, err := parseBet(args[0])
	if err != nil {
		return c.Reply("❌ Enter a valid bet amount")
	}
	if bet < rrCfg.MinBet || bet > rrCfg.MaxBet {
		return c.Reply(fmt.Sprintf("❌ Bets run from %d to %d coins", rrCfg.MinBet, rrCfg.MaxBet))
	}

	name, err := h.ensureRegistered(ctx, sender)
	if err != nil {
		return c.Reply("❌ Could not register you, try again later")
	}

	// The starter picks the bet; everyone who joins pays the same.
	cfg := wager.Config{
		Mode:            wager.ModeElimination,
		FixedStake:      bet,
		MinParticipants: rrCfg.MinPlayers,
		MaxParticipants: rrCfg.MaxPlayers,
		HouseCutPercent: rrCfg.HouseCutPercent,
		JoinWindow:      time.Duration(rrCfg.JoinWindowSeconds) * time.Second,
	}

	scopeKey := rouletteScope(chat.ID)
	h.notifier.Bind(scopeKey, chat.ID)

	s, err := h.engine.CreateSession(ctx, scopeKey, cfg, sender.ID, bet, wager.SideNone,
		wager.WithFormatter(h.formatRouletteResult),
		wager.WithOnResolved(func(*wager.Result) { h.notifier.Unbind(scopeKey) }),
	)
	if err != nil {
		h.notifier.Unbind(scopeKey)
		switch {
		case errors.Is(err, wager.ErrScopeBusy):
			return c.Reply("❌ A roulette round is already loading in this chat")
		case errors.Is(err, wager.ErrInsufficientFunds):
			return c.Reply(fmt.Sprintf("❌ You need %d coins for that bet", bet))
		default:
			return c.Reply("❌ Could not start the round, try again later")
		}
	}

	msg := fmt.Sprintf(
		"🔫 @%s spins the cylinder!\n"+
			"💵 Buy-in: %d coins | 👥 %d-%d players\n"+
			"😵 One player eats the bullet, survivors split the pot (%d%% house cut)\n"+
			"⏰ Chamber closes in %s",
		name, bet, rrCfg.MinPlayers, rrCfg.MaxPlayers,
		rrCfg.HouseCutPercent, wager.Remaining(s.TimeRemaining()),
	)

	return c.Send(msg, joinKeyboard(scopeKey, true))
}

// formatRouletteResult renders the roulette settlement announcement.
func (h *WagerHandler) formatRouletteResult(res *wager.Result) string {
	ctx := context.Background()

	if res.State == wager.StateRefunded {
		return fmt.Sprintf("🔫 Roulette cancelled: %s. All bets returned.", res.Reason)
	}

	msg := fmt.Sprintf("🔫 Click... BANG! %s eats the bullet.\n", h.mention(ctx, res.Outcome.LoserID))
	for _, p := range res.Table.Payouts {
		msg += fmt.Sprintf("  %s survives with %d coins\n", h.mention(ctx, p.UserID), p.Credit)
	}
	if res.Table.HouseCut > 0 {
		msg += fmt.Sprintf("  🏦 House keeps %d\n", res.Table.HouseCut)
	}
	return msg
}
