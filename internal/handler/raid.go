package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"telegram-wager-bot/internal/service"
	"telegram-wager-bot/internal/wager"
)

// raidScope returns the scope key for an attacker/target gang pair. The pair
// is the unit of exclusivity: the same two gangs cannot have two raids in
// flight, while unrelated raids may run concurrently.
func raidScope(attackerGangID, targetGangID int64) string {
	return fmt.Sprintf("raid:%d:%d", attackerGangID, targetGangID)
}

// parseRaidScope extracts the gang pair from a raid scope key.
func parseRaidScope(scopeKey string) (attackerGangID, targetGangID int64, ok bool) {
	parts := strings.Split(scopeKey, ":")
	if len(parts) != 3 || parts[0] != "raid" {
		return 0, 0, false
	}
	attackerGangID, err1 := strconv.ParseInt(parts[1], 10, 64)
	targetGangID, err2 := strconv.ParseInt(parts[2], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return attackerGangID, targetGangID, true
}

// HandleRaid handles the /raid command: rally your gang against another
// gang's bank.
// Usage: /raid <gang name>
func (h *WagerHandler) HandleRaid(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	chat := c.Chat()
	if sender == nil || chat == nil {
		return nil
	}

	if chat.Type == tele.ChatPrivate {
		return c.Reply("❌ Raids happen in group chats")
	}

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: /raid <gang name>")
	}
	targetName := strings.Join(args, " ")

	name, err := h.ensureRegistered(ctx, sender)
	if err != nil {
		return c.Reply("❌ Could not register you, try again later")
	}

	remaining, err := h.cooldowns.Remaining(ctx, sender.ID, "raid")
	if err == nil && remaining > 0 {
		return c.Reply(fmt.Sprintf("⏰ Your gang is laying low for another %s", wager.Remaining(remaining)))
	}

	attacker, err := h.gangService.GangOf(ctx, chat.ID, sender.ID)
	if err != nil {
		if errors.Is(err, service.ErrGangNotFound) {
			return c.Reply("❌ You need a gang first: /gang create <name>")
		}
		return c.Reply("❌ Could not look up your gang, try again later")
	}

	target, err := h.gangService.GangByName(ctx, chat.ID, targetName)
	if err != nil {
		if errors.Is(err, service.ErrGangNotFound) {
			return c.Reply(fmt.Sprintf("❌ No gang called %q around here", targetName))
		}
		return c.Reply("❌ Could not look up the target, try again later")
	}

	if target.ID == attacker.ID {
		return c.Reply("❌ You cannot raid your own gang")
	}
	if target.Bank <= 0 {
		return c.Reply(fmt.Sprintf("❌ %s's bank is empty, nothing to steal", target.Name))
	}

	raidCfg := h.cfg.Wagers.Raid
	cfg := wager.Config{
		Mode:            wager.ModeRaid,
		FixedStake:      raidCfg.Stake,
		MinParticipants: raidCfg.MinRaiders,
		MaxParticipants: raidCfg.MaxRaiders,
		BaseSuccess:     raidCfg.BaseSuccess,
		PerMemberBonus:  raidCfg.PerMemberBonus,
		MaxSuccess:      raidCfg.MaxSuccess,
		JoinWindow:      time.Duration(raidCfg.JoinWindowSeconds) * time.Second,
		RewardSource:    wager.RewardExogenous,
		CooldownAction:  "raid",
		Cooldown:        time.Duration(raidCfg.CooldownHours) * time.Hour,
	}

	scopeKey := raidScope(attacker.ID, target.ID)
	h.notifier.Bind(scopeKey, chat.ID)

	attackerID, targetID := attacker.ID, target.ID
	s, err := h.engine.CreateSession(ctx, scopeKey, cfg, sender.ID, raidCfg.Stake, wager.SideNone,
		wager.WithExternalPool(func(ctx context.Context, success bool) (int64, wager.RollbackFunc, error) {
			if !success {
				undo, err := h.gangService.Penalize(ctx, attackerID)
				return 0, undo, err
			}
			return h.gangService.Plunder(ctx, attackerID, targetID)
		}),
		wager.WithFormatter(func(res *wager.Result) string {
			return h.formatRaidResult(res, attacker.Name, target.Name)
		}),
		wager.WithOnResolved(func(*wager.Result) { h.notifier.Unbind(scopeKey) }),
	)
	if err != nil {
		h.notifier.Unbind(scopeKey)
		switch {
		case errors.Is(err, wager.ErrScopeBusy):
			return c.Reply("❌ A raid between these gangs is already underway")
		case errors.Is(err, wager.ErrInsufficientFunds):
			return c.Reply(fmt.Sprintf("❌ You need %d coins to gear up", raidCfg.Stake))
		default:
			return c.Reply("❌ Could not start the raid, try again later")
		}
	}

	chance := wager.SuccessProbability(cfg, s.ParticipantCount())
	msg := fmt.Sprintf(
		"⚔️ @%s rallies %s against %s!\n"+
			"💵 Gear up for %d coins | 👥 %d-%d raiders (%s members only)\n"+
			"🎯 Current odds: %d%% (each raider +%d%%)\n"+
			"⏰ The crew rolls out in %s",
		name, attacker.Name, target.Name,
		raidCfg.Stake, raidCfg.MinRaiders, raidCfg.MaxRaiders, attacker.Name,
		chance, raidCfg.PerMemberBonus, wager.Remaining(s.TimeRemaining()),
	)

	return c.Send(msg, joinKeyboard(scopeKey, true))
}

// canJoinRaid checks that the sender belongs to the attacking gang.
func (h *WagerHandler) canJoinRaid(ctx context.Context, chatID int64, userID int64, scopeKey string) bool {
	attackerGangID, _, ok := parseRaidScope(scopeKey)
	if !ok {
		return false
	}
	gang, err := h.gangService.GangOf(ctx, chatID, userID)
	if err != nil {
		return false
	}
	return gang.ID == attackerGangID
}

// formatRaidResult renders the raid settlement announcement.
func (h *WagerHandler) formatRaidResult(res *wager.Result, attackerName, targetName string) string {
	ctx := context.Background()

	if res.State == wager.StateRefunded {
		return fmt.Sprintf("⚔️ The raid on %s is off: %s. Stakes returned.", targetName, res.Reason)
	}

	if !res.Outcome.Success {
		return fmt.Sprintf(
			"🚨 %s's raid on %s failed! The raiders lost their gear and %s's bank took the heat (odds were %d%%).",
			attackerName, targetName, attackerName, res.Outcome.Probability,
		)
	}

	msg := fmt.Sprintf(
		"⚔️ %s plundered %s! (odds were %d%%)\n🏦 Half the loot went to %s's bank.\n",
		attackerName, targetName, res.Outcome.Probability, attackerName,
	)
	for _, p := range res.Table.Payouts {
		msg += fmt.Sprintf("  %s pockets %d coins (stake back + %d loot)\n",
			h.mention(ctx, p.UserID), p.Credit, p.Credit-p.Stake)
	}
	return msg
}
