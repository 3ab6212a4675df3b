package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	tele "gopkg.in/telebot.v3"

	"telegram-wager-bot/internal/wager"
)

// mention resolves a user's @name for announcements, best effort.
func (h *WagerHandler) mention(ctx context.Context, userID int64) string {
	user, err := h.accountService.GetUser(ctx, userID)
	if err != nil || user.Username == "" {
		return fmt.Sprintf("User%d", userID)
	}
	return "@" + user.Username
}

// heistScope returns the scope key for a chat's heist round.
func heistScope(chatID int64) string {
	return fmt.Sprintf("heist:%d", chatID)
}

// HandleHeist handles the /heist command: start a cooperative heist crew.
// Usage: /heist easy|medium|hard
func (h *WagerHandler) HandleHeist(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	chat := c.Chat()
	if sender == nil || chat == nil {
		return nil
	}

	if chat.Type == tele.ChatPrivate {
		return c.Reply("❌ Heists need a crew, try it in a group chat")
	}

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: /heist easy|medium|hard")
	}

	tierName := args[0]
	tier, ok := h.cfg.Wagers.Heist.Tiers[tierName]
	if !ok {
		return c.Reply("❌ Unknown difficulty, pick easy, medium or hard")
	}

	name, err := h.ensureRegistered(ctx, sender)
	if err != nil {
		return c.Reply("❌ Could not register you, try again later")
	}

	remaining, err := h.cooldowns.Remaining(ctx, sender.ID, "heist")
	if err == nil && remaining > 0 {
		return c.Reply(fmt.Sprintf("⏰ You are lying low for another %s", wager.Remaining(remaining)))
	}

	heistCfg := h.cfg.Wagers.Heist
	cfg := wager.Config{
		Mode:            wager.ModeCooperative,
		FixedStake:      tier.Stake,
		MinParticipants: heistCfg.MinCrew,
		MaxParticipants: heistCfg.MaxCrew,
		BaseSuccess:     tier.BaseSuccess,
		PerMemberBonus:  tier.PerMemberBonus,
		MaxSuccess:      tier.MaxSuccess,
		JoinWindow:      time.Duration(heistCfg.JoinWindowSeconds) * time.Second,
		RewardSource:    wager.RewardExogenous,
		RewardMin:       tier.RewardMin,
		RewardMax:       tier.RewardMax,
		CooldownAction:  "heist",
		Cooldown:        time.Duration(heistCfg.CooldownHours) * time.Hour,
	}

	scopeKey := heistScope(chat.ID)
	h.notifier.Bind(scopeKey, chat.ID)

	s, err := h.engine.CreateSession(ctx, scopeKey, cfg, sender.ID, tier.Stake, wager.SideNone,
		wager.WithFormatter(h.formatHeistResult),
		wager.WithOnResolved(func(*wager.Result) { h.notifier.Unbind(scopeKey) }),
	)
	if err != nil {
		h.notifier.Unbind(scopeKey)
		switch {
		case errors.Is(err, wager.ErrScopeBusy):
			return c.Reply("❌ A heist is already being planned in this chat")
		case errors.Is(err, wager.ErrInsufficientFunds):
			return c.Reply(fmt.Sprintf("❌ You need %d coins to plan this job", tier.Stake))
		default:
			return c.Reply("❌ Could not start the heist, try again later")
		}
	}

	chance := wager.SuccessProbability(cfg, s.ParticipantCount())
	msg := fmt.Sprintf(
		"🎭 @%s is planning a %s heist!\n"+
			"💵 Entry: %d coins | 👥 %d-%d crew\n"+
			"🎯 Current odds: %d%% (each extra hand +%d%%)\n"+
			"⏰ Crew locks in %s",
		name, tierName, tier.Stake, heistCfg.MinCrew, heistCfg.MaxCrew,
		chance, tier.PerMemberBonus, wager.Remaining(s.TimeRemaining()),
	)

	return c.Send(msg, joinKeyboard(scopeKey, true))
}

// formatHeistResult renders the heist settlement announcement.
func (h *WagerHandler) formatHeistResult(res *wager.Result) string {
	ctx := context.Background()

	if res.State == wager.StateRefunded {
		return fmt.Sprintf("🎭 The heist is off: %s. Everyone got their coins back.", res.Reason)
	}

	if !res.Outcome.Success {
		return fmt.Sprintf(
			"🚨 The job went sideways! %d crew members walked away with nothing (odds were %d%%).",
			len(res.Participants), res.Outcome.Probability,
		)
	}

	msg := fmt.Sprintf("💰 The heist paid off! (odds were %d%%)\n", res.Outcome.Probability)
	for _, p := range res.Table.Payouts {
		msg += fmt.Sprintf("  %s grabbed %d coins\n", h.mention(ctx, p.UserID), p.Credit)
	}
	return msg
}
