// Package model defines the data models for the wager bot.
package model

import "time"

// User represents a Telegram user account and its coin balance.
type User struct {
	TelegramID int64     `db:"telegram_id"`
	Username   string    `db:"username"`
	Balance    int64     `db:"balance"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// Transaction represents a balance change record.
type Transaction struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	Amount      int64     `db:"amount"`
	Type        string    `db:"type"`
	Description *string   `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

// Cooldown records when a user may next start a given action.
type Cooldown struct {
	UserID    int64     `db:"user_id"`
	Action    string    `db:"action"`
	ExpiresAt time.Time `db:"expires_at"`
}

// Gang is a named crew with a shared bank, the raid target and beneficiary.
type Gang struct {
	ID        int64     `db:"id"`
	ChatID    int64     `db:"chat_id"`
	Name      string    `db:"name"`
	Bank      int64     `db:"bank"`
	CreatedAt time.Time `db:"created_at"`
}

// GangMember links a user to a gang within a chat.
type GangMember struct {
	GangID   int64     `db:"gang_id"`
	UserID   int64     `db:"user_id"`
	JoinedAt time.Time `db:"joined_at"`
}

// Transaction types for categorizing balance changes.
const (
	TxTypeInitial = "initial" // Initial balance on account creation
	TxTypeStake   = "stake"   // Stake reserved into a wager pool
	TxTypeRefund  = "refund"  // Stake returned from a voided round
	TxTypePayout  = "payout"  // Winnings credited after settlement
)
