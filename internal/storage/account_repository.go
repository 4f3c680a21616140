package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/pushgate/internal/errors"
	"github.com/pushgate/internal/models"
	"github.com/pushgate/internal/types"
)

const accountColumns = `id, email, name, tier, daily_push_limit, keyword_limit,
	is_active, is_superuser, created_at, updated_at`

// AccountRepository owns the entitlement records. It is the only writer of
// tier and quota columns.
type AccountRepository struct{}

// NewAccountRepository creates a new account repository
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{}
}

// Create inserts a new account
func (r *AccountRepository) Create(ctx context.Context, q DBTX, account *models.Account) error {
	if err := validateTier(account.Tier); err != nil {
		return err
	}
	if account.ID == "" {
		account.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	query := `
		INSERT INTO accounts (id, email, name, tier, daily_push_limit, keyword_limit,
			is_active, is_superuser, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := q.Exec(ctx, query,
		account.ID,
		account.Email,
		account.Name,
		account.Tier,
		account.DailyPushLimit,
		account.KeywordLimit,
		account.IsActive,
		account.IsSuperuser,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetByID retrieves an account. A missing account is a NOT_FOUND error.
func (r *AccountRepository) GetByID(ctx context.Context, q DBTX, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.getOne(ctx, q, query, id)
}

// GetForUpdate retrieves an account and locks its row until the surrounding
// transaction ends.
func (r *AccountRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, tx, query, id)
}

func (r *AccountRepository) getOne(ctx context.Context, q DBTX, query, id string) (*models.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		// not a key the table could hold
		return nil, apperrors.NewNotFoundError("account", id)
	}

	account, err := scanAccount(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("account", id)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// ListActive returns all active accounts, oldest first
func (r *AccountRepository) ListActive(ctx context.Context, q DBTX) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE is_active = TRUE
		ORDER BY created_at ASC, id ASC`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]*models.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// ChangeTier moves an account to tier and resets both limits to the tier
// defaults in a single statement.
func (r *AccountRepository) ChangeTier(ctx context.Context, q DBTX, id string, tier types.Tier) (*models.Account, error) {
	if err := validateTier(tier); err != nil {
		return nil, err
	}
	quota := types.TierQuotas[tier]

	query := `
		UPDATE accounts
		SET tier = $2, daily_push_limit = $3, keyword_limit = $4, updated_at = $5
		WHERE id = $1
		RETURNING ` + accountColumns

	account, err := scanAccount(q.QueryRow(ctx, query, id, tier, quota.DailyPushLimit, quota.KeywordLimit, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("account", id)
		}
		return nil, fmt.Errorf("failed to change tier: %w", err)
	}
	return account, nil
}

// SetLimits overrides the quota columns without touching the tier
func (r *AccountRepository) SetLimits(ctx context.Context, q DBTX, id string, dailyPushLimit, keywordLimit int) error {
	if dailyPushLimit < 0 {
		return apperrors.NewInvalidParameterError("dailyPushLimit", "must not be negative")
	}
	if keywordLimit < 0 {
		return apperrors.NewInvalidParameterError("keywordLimit", "must not be negative")
	}

	query := `
		UPDATE accounts
		SET daily_push_limit = $2, keyword_limit = $3, updated_at = $4
		WHERE id = $1
	`
	return r.execOne(ctx, q, "set limits", id, query, id, dailyPushLimit, keywordLimit, time.Now().UTC())
}

// SetActive enables or disables an account
func (r *AccountRepository) SetActive(ctx context.Context, q DBTX, id string, active bool) error {
	query := `UPDATE accounts SET is_active = $2, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, q, "set active", id, query, id, active, time.Now().UTC())
}

// Delete removes an account; settings, rules, channels and ledger rows go
// with it.
func (r *AccountRepository) Delete(ctx context.Context, q DBTX, id string) error {
	return r.execOne(ctx, q, "delete account", id, `DELETE FROM accounts WHERE id = $1`, id)
}

func (r *AccountRepository) execOne(ctx context.Context, q DBTX, op, id, query string, args ...any) error {
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("account", id)
	}
	return nil
}

// Stats aggregates account and ledger counts. since marks the start of
// "today" for the daily figures.
func (r *AccountRepository) Stats(ctx context.Context, q DBTX, since time.Time) (*models.SystemStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_active),
			COUNT(*) FILTER (WHERE tier = 'free'),
			COUNT(*) FILTER (WHERE tier = 'premium'),
			COUNT(*) FILTER (WHERE is_superuser),
			COUNT(*) FILTER (WHERE created_at >= $1),
			(SELECT COUNT(*) FROM push_ledger WHERE created_at >= $1)
		FROM accounts
	`

	var stats models.SystemStats
	err := q.QueryRow(ctx, query, since.UTC()).Scan(
		&stats.TotalAccounts,
		&stats.ActiveAccounts,
		&stats.FreeAccounts,
		&stats.PremiumAccounts,
		&stats.Superusers,
		&stats.TodayNewAccounts,
		&stats.TodayPushCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to collect stats: %w", err)
	}
	return &stats, nil
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.Name,
		&a.Tier,
		&a.DailyPushLimit,
		&a.KeywordLimit,
		&a.IsActive,
		&a.IsSuperuser,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// validateTier validates the account tier
func validateTier(tier types.Tier) error {
	if tier.Valid() {
		return nil
	}
	allowed := make([]string, len(types.Tiers))
	for i, t := range types.Tiers {
		allowed[i] = string(t)
	}
	return &types.ServiceError{
		Code:    "INVALID_TIER",
		Message: fmt.Sprintf("invalid tier: %s (must be 'free' or 'premium')", tier),
		Details: map[string]interface{}{
			"tier":          tier,
			"allowed_tiers": allowed,
		},
	}
}
