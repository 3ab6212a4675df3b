// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Whitelist WhitelistConfig `mapstructure:"whitelist"`
	Wagers    WagersConfig    `mapstructure:"wagers"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// WagersConfig holds per-mode wager configuration.
type WagersConfig struct {
	InitialBalance int64          `mapstructure:"initial_balance"`
	Heist          HeistConfig    `mapstructure:"heist"`
	Roulette       RouletteConfig `mapstructure:"roulette"`
	Raid           RaidConfig     `mapstructure:"raid"`
	Toto           TotoConfig     `mapstructure:"toto"`
}

// HeistTier is one difficulty level of the cooperative heist.
type HeistTier struct {
	Stake          int64 `mapstructure:"stake"`
	BaseSuccess    int   `mapstructure:"base_success"`
	PerMemberBonus int   `mapstructure:"per_member_bonus"`
	MaxSuccess     int   `mapstructure:"max_success"`
	RewardMin      int64 `mapstructure:"reward_min"`
	RewardMax      int64 `mapstructure:"reward_max"`
}

// HeistConfig holds cooperative heist configuration.
type HeistConfig struct {
	MinCrew           int                  `mapstructure:"min_crew"`
	MaxCrew           int                  `mapstructure:"max_crew"`
	JoinWindowSeconds int                  `mapstructure:"join_window_seconds"`
	CooldownHours     int                  `mapstructure:"cooldown_hours"`
	Tiers             map[string]HeistTier `mapstructure:"tiers"`
}

// RouletteConfig holds elimination roulette configuration.
type RouletteConfig struct {
	MinBet            int64 `mapstructure:"min_bet"`
	MaxBet            int64 `mapstructure:"max_bet"`
	MinPlayers        int   `mapstructure:"min_players"`
	MaxPlayers        int   `mapstructure:"max_players"`
	JoinWindowSeconds int   `mapstructure:"join_window_seconds"`
	HouseCutPercent   int   `mapstructure:"house_cut_percent"`
}

// RaidConfig holds gang raid configuration.
type RaidConfig struct {
	Stake             int64 `mapstructure:"stake"`
	MinRaiders        int   `mapstructure:"min_raiders"`
	MaxRaiders        int   `mapstructure:"max_raiders"`
	JoinWindowSeconds int   `mapstructure:"join_window_seconds"`
	BaseSuccess       int   `mapstructure:"base_success"`
	PerMemberBonus    int   `mapstructure:"per_member_bonus"`
	MaxSuccess        int   `mapstructure:"max_success"`
	StealMinPercent   int   `mapstructure:"steal_min_percent"`
	StealMaxPercent   int   `mapstructure:"steal_max_percent"`
	BankSharePercent  int   `mapstructure:"bank_share_percent"`
	FailPenaltyPct    int   `mapstructure:"fail_penalty_percent"`
	CooldownHours     int   `mapstructure:"cooldown_hours"`
}

// TotoConfig holds pool betting configuration.
type TotoConfig struct {
	MinBet            int64 `mapstructure:"min_bet"`
	MaxBet            int64 `mapstructure:"max_bet"`
	MaxBettors        int   `mapstructure:"max_bettors"`
	JoinWindowSeconds int   `mapstructure:"join_window_seconds"`
	HouseCutPercent   int   `mapstructure:"house_cut_percent"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Enable environment variable override
	// Environment variables use underscore separator and uppercase
	// e.g., BOT_TOKEN, DATABASE_HOST, DATABASE_PORT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional - env vars can provide all config)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we can use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "wagerbot")
	v.SetDefault("database.name", "wagerbot")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("wagers.initial_balance", 1000)

	// Heist defaults
	v.SetDefault("wagers.heist.min_crew", 2)
	v.SetDefault("wagers.heist.max_crew", 8)
	v.SetDefault("wagers.heist.join_window_seconds", 120)
	v.SetDefault("wagers.heist.cooldown_hours", 6)
	v.SetDefault("wagers.heist.tiers", map[string]any{
		"easy": map[string]any{
			"stake": 200, "base_success": 60, "per_member_bonus": 5,
			"max_success": 85, "reward_min": 250, "reward_max": 350,
		},
		"medium": map[string]any{
			"stake": 500, "base_success": 45, "per_member_bonus": 5,
			"max_success": 75, "reward_min": 700, "reward_max": 1100,
		},
		"hard": map[string]any{
			"stake": 1000, "base_success": 30, "per_member_bonus": 7,
			"max_success": 65, "reward_min": 1800, "reward_max": 2800,
		},
	})

	// Roulette defaults
	v.SetDefault("wagers.roulette.min_bet", 50)
	v.SetDefault("wagers.roulette.max_bet", 5000)
	v.SetDefault("wagers.roulette.min_players", 2)
	v.SetDefault("wagers.roulette.max_players", 6)
	v.SetDefault("wagers.roulette.join_window_seconds", 90)
	v.SetDefault("wagers.roulette.house_cut_percent", 5)

	// Raid defaults
	v.SetDefault("wagers.raid.stake", 100)
	v.SetDefault("wagers.raid.min_raiders", 2)
	v.SetDefault("wagers.raid.max_raiders", 8)
	v.SetDefault("wagers.raid.join_window_seconds", 120)
	v.SetDefault("wagers.raid.base_success", 40)
	v.SetDefault("wagers.raid.per_member_bonus", 10)
	v.SetDefault("wagers.raid.max_success", 90)
	v.SetDefault("wagers.raid.steal_min_percent", 10)
	v.SetDefault("wagers.raid.steal_max_percent", 30)
	v.SetDefault("wagers.raid.bank_share_percent", 50)
	v.SetDefault("wagers.raid.fail_penalty_percent", 15)
	v.SetDefault("wagers.raid.cooldown_hours", 12)

	// Toto defaults
	v.SetDefault("wagers.toto.min_bet", 100)
	v.SetDefault("wagers.toto.max_bet", 5000)
	v.SetDefault("wagers.toto.max_bettors", 50)
	v.SetDefault("wagers.toto.join_window_seconds", 1800)
	v.SetDefault("wagers.toto.house_cut_percent", 10)
}

// IsChatAllowed checks if a chat ID is in the whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(c.Whitelist.Chats) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}
