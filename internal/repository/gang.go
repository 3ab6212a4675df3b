package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"telegram-wager-bot/internal/model"
)

// Gang-related repository errors.
var (
	ErrGangNotFound  = errors.New("gang not found")
	ErrGangNameTaken = errors.New("gang name already taken in this chat")
	ErrAlreadyInGang = errors.New("user is already in a gang")
)

// GangRepository handles gang and membership persistence.
type GangRepository struct {
	pool *pgxpool.Pool
}

// NewGangRepository creates a new GangRepository instance.
func NewGangRepository(pool *pgxpool.Pool) *GangRepository {
	return &GangRepository{pool: pool}
}

// Create creates a gang in a chat and enrolls the founder as its first member.
func (r *GangRepository) Create(ctx context.Context, chatID int64, name string, founderID int64) (*model.Gang, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertGang = `
		INSERT INTO gangs (chat_id, name, bank, created_at)
		VALUES ($1, $2, 0, NOW())
		ON CONFLICT (chat_id, name) DO NOTHING
		RETURNING id, chat_id, name, bank, created_at
	`

	var gang model.Gang
	err = tx.QueryRow(ctx, insertGang, chatID, name).Scan(
		&gang.ID,
		&gang.ChatID,
		&gang.Name,
		&gang.Bank,
		&gang.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGangNameTaken
		}
		return nil, fmt.Errorf("failed to create gang: %w", err)
	}

	const insertMember = `
		INSERT INTO gang_members (gang_id, user_id, joined_at)
		VALUES ($1, $2, NOW())
	`
	if _, err := tx.Exec(ctx, insertMember, gang.ID, founderID); err != nil {
		return nil, fmt.Errorf("failed to enroll founder: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit gang creation: %w", err)
	}

	return &gang, nil
}

// GetByID retrieves a gang by its ID.
func (r *GangRepository) GetByID(ctx context.Context, gangID int64) (*model.Gang, error) {
	const query = `
		SELECT id, chat_id, name, bank, created_at
		FROM gangs
		WHERE id = $1
	`

	var gang model.Gang
	err := r.pool.QueryRow(ctx, query, gangID).Scan(
		&gang.ID,
		&gang.ChatID,
		&gang.Name,
		&gang.Bank,
		&gang.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGangNotFound
		}
		return nil, fmt.Errorf("failed to get gang: %w", err)
	}

	return &gang, nil
}

// GetByName retrieves a gang by chat and name.
func (r *GangRepository) GetByName(ctx context.Context, chatID int64, name string) (*model.Gang, error) {
	const query = `
		SELECT id, chat_id, name, bank, created_at
		FROM gangs
		WHERE chat_id = $1 AND name = $2
	`

	var gang model.Gang
	err := r.pool.QueryRow(ctx, query, chatID, name).Scan(
		&gang.ID,
		&gang.ChatID,
		&gang.Name,
		&gang.Bank,
		&gang.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGangNotFound
		}
		return nil, fmt.Errorf("failed to get gang: %w", err)
	}

	return &gang, nil
}

// GetByMember retrieves the gang a user belongs to within a chat.
func (r *GangRepository) GetByMember(ctx context.Context, chatID int64, userID int64) (*model.Gang, error) {
	const query = `
		SELECT g.id, g.chat_id, g.name, g.bank, g.created_at
		FROM gangs g
		JOIN gang_members m ON m.gang_id = g.id
		WHERE g.chat_id = $1 AND m.user_id = $2
	`

	var gang model.Gang
	err := r.pool.QueryRow(ctx, query, chatID, userID).Scan(
		&gang.ID,
		&gang.ChatID,
		&gang.Name,
		&gang.Bank,
		&gang.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGangNotFound
		}
		return nil, fmt.Errorf("failed to get gang by member: %w", err)
	}

	return &gang, nil
}

// AddMember enrolls a user into a gang. A user may only belong to one gang
// per chat.
func (r *GangRepository) AddMember(ctx context.Context, chatID int64, gangID int64, userID int64) error {
	// Reject if the user is already in any gang of this chat.
	existing, err := r.GetByMember(ctx, chatID, userID)
	if err != nil && !errors.Is(err, ErrGangNotFound) {
		return err
	}
	if existing != nil {
		return ErrAlreadyInGang
	}

	const query = `
		INSERT INTO gang_members (gang_id, user_id, joined_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (gang_id, user_id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, gangID, userID); err != nil {
		return fmt.Errorf("failed to add gang member: %w", err)
	}

	return nil
}

// Members lists the user IDs enrolled in a gang.
func (r *GangRepository) Members(ctx context.Context, gangID int64) ([]int64, error) {
	const query = `
		SELECT user_id
		FROM gang_members
		WHERE gang_id = $1
		ORDER BY joined_at
	`

	rows, err := r.pool.Query(ctx, query, gangID)
	if err != nil {
		return nil, fmt.Errorf("failed to list gang members: %w", err)
	}
	defer rows.Close()

	var members []int64
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan gang member: %w", err)
		}
		members = append(members, userID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating gang members: %w", err)
	}

	return members, nil
}

// CreditBank adds amount to a gang's bank. Amount may be negative only via
// TryDebitBank, which enforces the balance floor.
func (r *GangRepository) CreditBank(ctx context.Context, gangID int64, amount int64) (*model.Gang, error) {
	const query = `
		UPDATE gangs
		SET bank = bank + $2
		WHERE id = $1
		RETURNING id, chat_id, name, bank, created_at
	`

	var gang model.Gang
	err := r.pool.QueryRow(ctx, query, gangID, amount).Scan(
		&gang.ID,
		&gang.ChatID,
		&gang.Name,
		&gang.Bank,
		&gang.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGangNotFound
		}
		return nil, fmt.Errorf("failed to credit gang bank: %w", err)
	}

	return &gang, nil
}

// TryDebitBank atomically subtracts amount from a gang's bank if and only if
// the bank covers it. Returns false when the balance was insufficient.
func (r *GangRepository) TryDebitBank(ctx context.Context, gangID int64, amount int64) (bool, error) {
	const query = `
		UPDATE gangs
		SET bank = bank - $2
		WHERE id = $1 AND bank >= $2
	`

	result, err := r.pool.Exec(ctx, query, gangID, amount)
	if err != nil {
		return false, fmt.Errorf("failed to debit gang bank: %w", err)
	}

	return result.RowsAffected() > 0, nil
}
