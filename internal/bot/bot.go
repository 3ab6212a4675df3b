// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-wager-bot/internal/config"
	"telegram-wager-bot/internal/handler"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config

	// Handlers
	accountHandler *handler.AccountHandler
	wagerHandler   *handler.WagerHandler
	gangHandler    *handler.GangHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config         *config.Config
	AccountHandler *handler.AccountHandler
	WagerHandler   *handler.WagerHandler
	GangHandler    *handler.GangHandler
}

// NewTelebot creates the underlying telebot instance from configuration.
func NewTelebot(cfg *config.Config) (*tele.Bot, error) {
	if cfg.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  cfg.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return teleBot, nil
}

// New creates a new Bot instance around an existing telebot instance.
func New(teleBot *tele.Bot, deps *Dependencies) (*Bot, error) {
	if teleBot == nil {
		return nil, fmt.Errorf("telebot instance is required")
	}

	b := &Bot{
		bot:            teleBot,
		cfg:            deps.Config,
		accountHandler: deps.AccountHandler,
		wagerHandler:   deps.WagerHandler,
		gangHandler:    deps.GangHandler,
	}

	// Register middleware
	b.registerMiddleware()

	// Register handlers
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	// Whitelist middleware - check if chat is allowed
	b.bot.Use(WhitelistMiddleware(b.cfg))

	// Logging middleware
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command and callback handlers.
func (b *Bot) registerHandlers() {
	// Account handlers
	b.bot.Handle("/start", b.accountHandler.HandleStart)
	b.bot.Handle("/balance", b.accountHandler.HandleBalance)

	// Wager round handlers
	b.bot.Handle("/heist", b.wagerHandler.HandleHeist)
	b.bot.Handle("/rr", b.wagerHandler.HandleRoulette)
	b.bot.Handle("/raid", b.wagerHandler.HandleRaid)
	b.bot.Handle("/toto", b.wagerHandler.HandleToto)

	// Gang handler
	b.bot.Handle("/gang", b.gangHandler.HandleGang)

	// Generic callback handler for join/trigger/bet buttons
	b.bot.Handle(tele.OnCallback, b.handleCallback)
}

// handleCallback routes callbacks to the wager handler.
func (b *Bot) handleCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil {
		return nil
	}

	// Telebot v3 may add a \f prefix to callback data
	data := strings.TrimPrefix(callback.Data, "\f")

	if strings.HasPrefix(data, handler.CallbackPrefix) {
		return b.wagerHandler.HandleCallback(c)
	}

	log.Debug().Str("data", data).Msg("Ignoring unknown callback")
	return nil
}

// Start starts the bot polling.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// GetBot returns the underlying telebot instance.
func (b *Bot) GetBot() *tele.Bot {
	return b.bot
}
