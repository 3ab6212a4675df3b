// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"telegram-wager-bot/internal/config"
	"telegram-wager-bot/internal/service"
	"telegram-wager-bot/internal/wager"
)

const (
	// CallbackPrefix is the prefix for all wager callback data.
	CallbackPrefix = "wg_"
)

// WagerHandler handles the four wager commands and their inline buttons.
type WagerHandler struct {
	cfg            *config.Config
	engine         *wager.Engine
	accountService *service.AccountService
	cooldowns      *service.CooldownService
	gangService    *service.GangService
	notifier       *ChatNotifier
}

// NewWagerHandler creates a new WagerHandler.
func NewWagerHandler(
	cfg *config.Config,
	engine *wager.Engine,
	accountService *service.AccountService,
	cooldowns *service.CooldownService,
	gangService *service.GangService,
	notifier *ChatNotifier,
) *WagerHandler {
	return &WagerHandler{
		cfg:            cfg,
		engine:         engine,
		accountService: accountService,
		cooldowns:      cooldowns,
		gangService:    gangService,
		notifier:       notifier,
	}
}

// EncodeCallback encodes an action and parameter into callback data.
func EncodeCallback(action string, param string) string {
	if param != "" {
		return fmt.Sprintf("%s%s_%s", CallbackPrefix, action, param)
	}
	return fmt.Sprintf("%s%s", CallbackPrefix, action)
}

// DecodeCallback decodes callback data into action and parameter.
func DecodeCallback(data string) (action string, param string) {
	if !strings.HasPrefix(data, CallbackPrefix) {
		return "", ""
	}

	content := strings.TrimPrefix(data, CallbackPrefix)
	parts := strings.SplitN(content, "_", 2)
	action = parts[0]
	if len(parts) > 1 {
		param = parts[1]
	}
	return action, param
}

// displayName picks a readable name for a Telegram sender.
func displayName(sender *tele.User) string {
	if sender.Username != "" {
		return sender.Username
	}
	return sender.FirstName
}

// ensureRegistered makes sure the sender has an account and returns the name
// used in announcements.
func (h *WagerHandler) ensureRegistered(ctx context.Context, sender *tele.User) (string, error) {
	name := displayName(sender)
	if _, _, err := h.accountService.EnsureUser(ctx, sender.ID, name); err != nil {
		return "", err
	}
	return name, nil
}

// joinErrorText maps engine join errors to user-facing callback text.
func joinErrorText(err error) string {
	switch {
	case errors.Is(err, wager.ErrNotFound), errors.Is(err, wager.ErrExpired):
		return "❌ This round is already closed"
	case errors.Is(err, wager.ErrAlreadyJoined):
		return "❌ You are already in"
	case errors.Is(err, wager.ErrFull):
		return "❌ The round is full"
	case errors.Is(err, wager.ErrInsufficientFunds):
		return "❌ Not enough coins"
	case errors.Is(err, wager.ErrInvalidStake):
		return "❌ Invalid stake for this round"
	default:
		return "❌ Could not join, try again"
	}
}

// joinKeyboard builds the [Join] [Go now] keyboard for a scope.
func joinKeyboard(scopeKey string, withTrigger bool) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}

	row := []tele.InlineButton{
		{
			Text: "🙋 Join",
			Data: EncodeCallback("join", scopeKey),
		},
	}
	if withTrigger {
		row = append(row, tele.InlineButton{
			Text: "🚀 Go now",
			Data: EncodeCallback("go", scopeKey),
		})
	}

	markup.InlineKeyboard = [][]tele.InlineButton{row}
	return markup
}

// HandleCallback routes wager inline button presses.
func (h *WagerHandler) HandleCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil || c.Sender() == nil || c.Chat() == nil {
		return nil
	}

	// telebot prepends \f to callback data for unique-button routing; the raw
	// data path is what we encode ourselves.
	data := strings.TrimPrefix(callback.Data, "\f")
	action, param := DecodeCallback(data)

	switch action {
	case "join":
		return h.handleJoinCallback(c, param)
	case "go":
		return h.handleTriggerCallback(c, param)
	case "bet":
		return h.handleTotoBetCallback(c, param)
	default:
		return c.Respond(&tele.CallbackResponse{Text: "❌ Unknown action"})
	}
}

// handleJoinCallback joins the sender into the session identified by scope.
// The stake comes from the session config (fixed-stake modes only).
func (h *WagerHandler) handleJoinCallback(c tele.Context, scopeKey string) error {
	ctx := context.Background()
	sender := c.Sender()

	s, ok := h.engine.Get(scopeKey)
	if !ok {
		return c.Respond(&tele.CallbackResponse{Text: "❌ This round is already closed", ShowAlert: true})
	}

	stake := s.Config.FixedStake
	if stake <= 0 {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Use the bet buttons for this round"})
	}

	name, err := h.ensureRegistered(ctx, sender)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Could not register you", ShowAlert: true})
	}

	// Mode-specific join gates.
	if s.Config.Mode == wager.ModeRaid && !h.canJoinRaid(ctx, c.Chat().ID, sender.ID, scopeKey) {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Only the attacking gang can join this raid", ShowAlert: true})
	}
	if action := s.Config.CooldownAction; action != "" {
		remaining, err := h.cooldowns.Remaining(ctx, sender.ID, action)
		if err == nil && remaining > 0 {
			return c.Respond(&tele.CallbackResponse{
				Text:      fmt.Sprintf("⏰ On cooldown for %s", wager.Remaining(remaining)),
				ShowAlert: true,
			})
		}
	}

	_, count, err := h.engine.Join(ctx, scopeKey, sender.ID, stake, wager.SideNone)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: joinErrorText(err), ShowAlert: true})
	}

	h.notifier.Announce(scopeKey, fmt.Sprintf(
		"🙋 @%s is in! %d/%d seats taken, %s left",
		name, count, s.Config.MaxParticipants, wager.Remaining(s.TimeRemaining()),
	))

	return c.Respond(&tele.CallbackResponse{Text: "✅ You are in"})
}

// handleTriggerCallback lets the initiator resolve a round before the window
// closes.
func (h *WagerHandler) handleTriggerCallback(c tele.Context, scopeKey string) error {
	ctx := context.Background()
	sender := c.Sender()

	_, err := h.engine.Trigger(ctx, scopeKey, sender.ID)
	if err != nil {
		switch {
		case errors.Is(err, wager.ErrNotFound):
			return c.Respond(&tele.CallbackResponse{Text: "❌ This round is already closed"})
		case errors.Is(err, wager.ErrNotInitiator):
			return c.Respond(&tele.CallbackResponse{Text: "❌ Only the starter can do that"})
		case errors.Is(err, wager.ErrQuorumNotMet):
			return c.Respond(&tele.CallbackResponse{Text: "❌ Not enough players yet", ShowAlert: true})
		default:
			return c.Respond(&tele.CallbackResponse{Text: "❌ Could not start, try again"})
		}
	}

	// The engine announces the result through the notifier.
	return c.Respond(&tele.CallbackResponse{Text: "🎬 Here we go"})
}

// parseBet parses a free-form bet argument.
func parseBet(arg string) (int64, error) {
	bet, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || bet <= 0 {
		return 0, fmt.Errorf("invalid bet %q", arg)
	}
	return bet, nil
}
