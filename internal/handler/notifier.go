package handler

import (
	"sync"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"
)

// ChatNotifier delivers wager announcements to the chat a session was started
// in. Scope keys are bound to chats at session creation; delivery is best
// effort and never blocks the engine.
type ChatNotifier struct {
	bot *tele.Bot

	mu    sync.Mutex
	chats map[string]int64
}

// NewChatNotifier creates a new ChatNotifier.
func NewChatNotifier(bot *tele.Bot) *ChatNotifier {
	return &ChatNotifier{
		bot:   bot,
		chats: make(map[string]int64),
	}
}

// Bind associates a scope key with the chat its announcements go to.
func (n *ChatNotifier) Bind(scopeKey string, chatID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.chats[scopeKey] = chatID
}

// Unbind drops the binding for a scope key.
func (n *ChatNotifier) Unbind(scopeKey string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.chats, scopeKey)
}

// Announce sends text to the chat bound to the scope key.
func (n *ChatNotifier) Announce(scopeKey string, text string) {
	n.mu.Lock()
	chatID, ok := n.chats[scopeKey]
	n.mu.Unlock()
	if !ok {
		log.Warn().Str("scope", scopeKey).Msg("No chat bound for announcement")
		return
	}

	if _, err := n.bot.Send(&tele.Chat{ID: chatID}, text); err != nil {
		log.Error().Err(err).Str("scope", scopeKey).Int64("chat_id", chatID).Msg("Failed to send announcement")
	}
}
