// Package main is the entry point for the Telegram Wager Bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"telegram-wager-bot/internal/bot"
	"telegram-wager-bot/internal/config"
	"telegram-wager-bot/internal/handler"
	"telegram-wager-bot/internal/pkg/db"
	"telegram-wager-bot/internal/pkg/lock"
	"telegram-wager-bot/internal/repository"
	"telegram-wager-bot/internal/service"
	"telegram-wager-bot/internal/wager"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	txRepo := repository.NewTransactionRepository(dbPool.Pool)
	cooldownRepo := repository.NewCooldownRepository(dbPool.Pool)
	gangRepo := repository.NewGangRepository(dbPool.Pool)

	// Initialize user lock
	userLock := lock.NewUserLock()

	// Initialize services
	accountService := service.NewAccountService(userRepo, txRepo, cfg.Wagers.InitialBalance)
	ledgerService := service.NewLedgerService(userRepo, txRepo, userLock)
	cooldownService := service.NewCooldownService(cooldownRepo)
	gangService := service.NewGangService(
		gangRepo,
		cfg.Wagers.Raid.StealMinPercent,
		cfg.Wagers.Raid.StealMaxPercent,
		cfg.Wagers.Raid.BankSharePercent,
		cfg.Wagers.Raid.FailPenaltyPct,
	)

	// Initialize Telegram bot
	teleBot, err := bot.NewTelebot(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Telegram bot")
	}

	// Initialize wager engine with chat announcements
	notifier := handler.NewChatNotifier(teleBot)
	engine := wager.New(ledgerService, cooldownService, notifier)

	// Initialize handlers
	accountHandler := handler.NewAccountHandler(accountService)
	wagerHandler := handler.NewWagerHandler(cfg, engine, accountService, cooldownService, gangService, notifier)
	gangHandler := handler.NewGangHandler(gangService, accountService, ledgerService)

	// Wire up the bot
	telegramBot, err := bot.New(teleBot, &bot.Dependencies{
		Config:         cfg,
		AccountHandler: accountHandler,
		WagerHandler:   wagerHandler,
		GangHandler:    gangHandler,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start bot in a goroutine
	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Stop polling first so no new rounds open, then refund every
	// stake still held by an open round.
	telegramBot.Stop()

	refundCtx, refundCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer refundCancel()
	if refunded := engine.RefundAll(refundCtx); refunded > 0 {
		log.Info().Int("sessions", refunded).Msg("Refunded open wager rounds")
	}

	log.Info().Msg("Bot stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: Create users table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			telegram_id BIGINT PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			balance BIGINT NOT NULL DEFAULT 1000,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_users_balance ON users(balance DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: users table created")

	// Migration 2: Create transactions table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(telegram_id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			type VARCHAR(50) NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_transactions_type_time ON transactions(type, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: transactions table created")

	// Migration 3: Create cooldowns table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS cooldowns (
			user_id BIGINT NOT NULL,
			action VARCHAR(50) NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, action)
		);
		CREATE INDEX IF NOT EXISTS idx_cooldowns_expires ON cooldowns(expires_at);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: cooldowns table created")

	// Migration 4: Create gangs table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS gangs (
			id BIGSERIAL PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			name VARCHAR(255) NOT NULL,
			bank BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (chat_id, name)
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: gangs table created")

	// Migration 5: Create gang_members table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS gang_members (
			gang_id BIGINT NOT NULL REFERENCES gangs(id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL,
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (gang_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_gang_members_user ON gang_members(user_id);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 5: gang_members table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
