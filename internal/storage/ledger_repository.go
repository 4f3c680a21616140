package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pushgate/internal/models"
	"github.com/pushgate/internal/types"
)

// LedgerRepository appends and counts push attempts. Rows are never updated.
type LedgerRepository struct{}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{}
}

// Append inserts an entry. With an idempotency key, a repeat of an existing
// (account, key) pair inserts nothing and reports false.
func (r *LedgerRepository) Append(ctx context.Context, q DBTX, e *models.PushLedgerEntry) (bool, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO push_ledger (id, account_id, channel_type, content_count,
			status, error_message, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_id, idempotency_key) WHERE idempotency_key IS NOT NULL
		DO NOTHING
		RETURNING id
	`

	var id string
	err := q.QueryRow(ctx, query,
		e.ID,
		e.AccountID,
		e.ChannelType,
		e.ContentCount,
		e.Status,
		e.ErrorMessage,
		e.IdempotencyKey,
		e.CreatedAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return true, nil
}

// CountSuccessSince counts the account's successful pushes at or after since
func (r *LedgerRepository) CountSuccessSince(ctx context.Context, q DBTX, accountID string, since time.Time) (int, error) {
	if !validUUIDs(accountID) {
		return 0, nil
	}

	var n int
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM push_ledger
		WHERE account_id = $1 AND status = $2 AND created_at >= $3`,
		accountID, types.PushStatusSuccess, since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pushes: %w", err)
	}
	return n, nil
}

// ListSince returns the account's entries at or after since, oldest first
func (r *LedgerRepository) ListSince(ctx context.Context, q DBTX, accountID string, since time.Time) ([]*models.PushLedgerEntry, error) {
	if !validUUIDs(accountID) {
		return []*models.PushLedgerEntry{}, nil
	}

	rows, err := q.Query(ctx, `
		SELECT id, account_id, channel_type, content_count, status,
			error_message, idempotency_key, created_at
		FROM push_ledger
		WHERE account_id = $1 AND created_at >= $2
		ORDER BY created_at ASC, id ASC`,
		accountID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.PushLedgerEntry, 0)
	for rows.Next() {
		var e models.PushLedgerEntry
		if err := rows.Scan(
			&e.ID,
			&e.AccountID,
			&e.ChannelType,
			&e.ContentCount,
			&e.Status,
			&e.ErrorMessage,
			&e.IdempotencyKey,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}
	return entries, nil
}
