package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"telegram-wager-bot/internal/wager"
)

// totoPresetAmounts are the quick-bet buttons under a toto round.
var totoPresetAmounts = []int64{100, 250, 500, 1000, 2500, 5000}

// totoScope returns the scope key for a chat's toto round.
func totoScope(chatID int64) string {
	return fmt.Sprintf("toto:%d", chatID)
}

// parseSide maps a side argument to a wager side.
func parseSide(arg string) (wager.Side, bool) {
	switch strings.ToLower(arg) {
	case "a":
		return wager.SideA, true
	case "b":
		return wager.SideB, true
	}
	return wager.SideNone, false
}

func sideLabel(side wager.Side) string {
	if side == wager.SideA {
		return "🅰️"
	}
	return "🅱️"
}

// HandleToto handles the /toto command. The first bet opens the round; later
// bets join it. Without arguments it shows the standings.
// Usage: /toto a|b <amount>
func (h *WagerHandler) HandleToto(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	chat := c.Chat()
	if sender == nil || chat == nil {
		return nil
	}

	if chat.Type == tele.ChatPrivate {
		return c.Reply("❌ Toto runs in group chats")
	}

	scopeKey := totoScope(chat.ID)
	args := c.Args()

	if len(args) == 0 {
		return h.replyTotoStatus(c, scopeKey)
	}
	if len(args) < 2 {
		return c.Reply("❌ Usage: /toto a|b <amount>\nExample: /toto a 500")
	}

	side, ok := parseSide(args[0])
	if !ok {
		return c.Reply("❌ Pick a side: a or b")
	}

	totoCfg := h.cfg.Wagers.Toto
	bet, err := parseBet(args[1])
	if err != nil {
		return c.Reply("❌ Enter a valid bet amount")
	}
	if bet < totoCfg.MinBet || bet > totoCfg.MaxBet {
		return c.Reply(fmt.Sprintf("❌ Bets run from %d to %d coins", totoCfg.MinBet, totoCfg.MaxBet))
	}

	if _, err := h.ensureRegistered(ctx, sender); err != nil {
		return c.Reply("❌ Could not register you, try again later")
	}

	if _, ok := h.engine.Get(scopeKey); !ok {
		return h.openTotoRound(c, scopeKey, sender.ID, side, bet)
	}

	_, _, err = h.engine.Join(ctx, scopeKey, sender.ID, bet, side)
	if err != nil {
		return c.Reply(joinErrorText(err))
	}

	return h.replyTotoStatus(c, scopeKey)
}

// openTotoRound creates the pool-bet session with the opener's bet as the
// first stake.
func (h *WagerHandler) openTotoRound(c tele.Context, scopeKey string, userID int64, side wager.Side, bet int64) error {
	ctx := context.Background()
	totoCfg := h.cfg.Wagers.Toto

	cfg := wager.Config{
		Mode:            wager.ModePoolBet,
		MinBet:          totoCfg.MinBet,
		MaxBet:          totoCfg.MaxBet,
		MinParticipants: 2,
		MaxParticipants: totoCfg.MaxBettors,
		HouseCutPercent: totoCfg.HouseCutPercent,
		JoinWindow:      time.Duration(totoCfg.JoinWindowSeconds) * time.Second,
	}

	h.notifier.Bind(scopeKey, c.Chat().ID)

	s, err := h.engine.CreateSession(ctx, scopeKey, cfg, userID, bet, side,
		wager.WithFormatter(h.formatTotoResult),
		wager.WithOnResolved(func(*wager.Result) { h.notifier.Unbind(scopeKey) }),
	)
	if err != nil {
		h.notifier.Unbind(scopeKey)
		switch {
		case errors.Is(err, wager.ErrScopeBusy):
			// Lost the race to another opener, just show the standings.
			return h.replyTotoStatus(c, scopeKey)
		case errors.Is(err, wager.ErrInsufficientFunds):
			return c.Reply("❌ Not enough coins for that bet")
		default:
			return c.Reply("❌ Could not open the round, try again later")
		}
	}

	msg := fmt.Sprintf(
		"🎟 Toto round is open!\n"+
			"💵 Bets %d-%d coins, one bet per player\n"+
			"🏆 Winners split the losing pool by stake (%d%% house cut)\n"+
			"⏰ Betting closes in %s",
		totoCfg.MinBet, totoCfg.MaxBet, totoCfg.HouseCutPercent,
		wager.Remaining(s.TimeRemaining()),
	)

	return c.Send(msg, totoKeyboard(scopeKey))
}

// totoKeyboard builds the preset-amount betting keyboard, one row per side.
func totoKeyboard(scopeKey string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}

	var rowA, rowB []tele.InlineButton
	for _, amount := range totoPresetAmounts {
		rowA = append(rowA, tele.InlineButton{
			Text: fmt.Sprintf("🅰️ %d", amount),
			Data: EncodeCallback("bet", fmt.Sprintf("%s:a:%d", scopeKey, amount)),
		})
		rowB = append(rowB, tele.InlineButton{
			Text: fmt.Sprintf("🅱️ %d", amount),
			Data: EncodeCallback("bet", fmt.Sprintf("%s:b:%d", scopeKey, amount)),
		})
	}

	// Three buttons per row keeps the panel readable.
	markup.InlineKeyboard = [][]tele.InlineButton{
		rowA[:3], rowA[3:], rowB[:3], rowB[3:],
	}
	return markup
}

// handleTotoBetCallback places a preset bet from the inline keyboard.
// The param packs "toto:<chat>:<side>:<amount>".
func (h *WagerHandler) handleTotoBetCallback(c tele.Context, param string) error {
	ctx := context.Background()
	sender := c.Sender()

	parts := strings.Split(param, ":")
	if len(parts) != 4 {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Unknown action"})
	}
	scopeKey := parts[0] + ":" + parts[1]
	side, ok := parseSide(parts[2])
	if !ok {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Unknown action"})
	}
	bet, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Unknown action"})
	}

	if _, err := h.ensureRegistered(ctx, sender); err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Could not register you", ShowAlert: true})
	}

	s, count, err := h.engine.Join(ctx, scopeKey, sender.ID, bet, side)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: joinErrorText(err), ShowAlert: true})
	}

	poolA, poolB, countA, countB := s.SidePools()
	h.notifier.Announce(scopeKey, fmt.Sprintf(
		"🎟 %d bets in: %s %d coins (%d players) vs %s %d coins (%d players), %s left",
		count, sideLabel(wager.SideA), poolA, countA, sideLabel(wager.SideB), poolB, countB,
		wager.Remaining(s.TimeRemaining()),
	))

	return c.Respond(&tele.CallbackResponse{
		Text: fmt.Sprintf("✅ %d coins on %s", bet, sideLabel(side)),
	})
}

// replyTotoStatus shows the current round standings, or usage when no round
// is open.
func (h *WagerHandler) replyTotoStatus(c tele.Context, scopeKey string) error {
	s, ok := h.engine.Get(scopeKey)
	if !ok {
		return c.Reply("🎟 No toto round open. Start one with /toto a|b <amount>")
	}

	poolA, poolB, countA, countB := s.SidePools()
	msg := fmt.Sprintf(
		"🎟 Toto standings:\n"+
			"  %s %d coins (%d players)\n"+
			"  %s %d coins (%d players)\n"+
			"⏰ Betting closes in %s",
		sideLabel(wager.SideA), poolA, countA,
		sideLabel(wager.SideB), poolB, countB,
		wager.Remaining(s.TimeRemaining()),
	)
	return c.Reply(msg)
}

// formatTotoResult renders the toto settlement announcement.
func (h *WagerHandler) formatTotoResult(res *wager.Result) string {
	ctx := context.Background()

	if res.State == wager.StateRefunded {
		return fmt.Sprintf("🎟 Toto round voided: %s. All bets returned.", res.Reason)
	}

	msg := fmt.Sprintf("🎟 Side %s takes it!\n", sideLabel(res.Outcome.WinningSide))
	for _, p := range res.Table.Payouts {
		msg += fmt.Sprintf("  %s collects %d coins (bet %d)\n", h.mention(ctx, p.UserID), p.Credit, p.Stake)
	}
	if res.Table.HouseCut > 0 {
		msg += fmt.Sprintf("  🏦 House keeps %d\n", res.Table.HouseCut)
	}
	return msg
}
