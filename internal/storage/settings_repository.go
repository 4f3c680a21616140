package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pushgate/internal/models"
)

// SettingsRepository handles per-account delivery preferences
type SettingsRepository struct{}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository() *SettingsRepository {
	return &SettingsRepository{}
}

// Get returns the account's settings, or nil when none were saved
func (r *SettingsRepository) Get(ctx context.Context, q DBTX, accountID string) (*models.AccountSettings, error) {
	if _, err := uuid.Parse(accountID); err != nil {
		return nil, nil
	}

	query := `
		SELECT account_id, report_mode, timezone, push_window_enabled,
			push_window_start, push_window_end, created_at, updated_at
		FROM account_settings
		WHERE account_id = $1
	`

	var s models.AccountSettings
	var windowEnabled bool
	var windowStart, windowEnd *string

	err := q.QueryRow(ctx, query, accountID).Scan(
		&s.AccountID,
		&s.ReportMode,
		&s.Timezone,
		&windowEnabled,
		&windowStart,
		&windowEnd,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	if windowEnabled && windowStart != nil && windowEnd != nil {
		s.PushWindow = &models.PushWindow{Start: *windowStart, End: *windowEnd}
	}
	return &s, nil
}

// Upsert creates or replaces the account's settings
func (r *SettingsRepository) Upsert(ctx context.Context, q DBTX, s *models.AccountSettings) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	var windowStart, windowEnd *string
	if s.PushWindow != nil {
		windowStart = &s.PushWindow.Start
		windowEnd = &s.PushWindow.End
	}

	query := `
		INSERT INTO account_settings (account_id, report_mode, timezone,
			push_window_enabled, push_window_start, push_window_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_id) DO UPDATE SET
			report_mode = EXCLUDED.report_mode,
			timezone = EXCLUDED.timezone,
			push_window_enabled = EXCLUDED.push_window_enabled,
			push_window_start = EXCLUDED.push_window_start,
			push_window_end = EXCLUDED.push_window_end,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at
	`

	err := q.QueryRow(ctx, query,
		s.AccountID,
		s.ReportMode,
		s.Timezone,
		s.PushWindow != nil,
		windowStart,
		windowEnd,
		s.CreatedAt,
		s.UpdatedAt,
	).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert settings: %w", err)
	}
	return nil
}

// Delete removes the account's settings so defaults apply again
func (r *SettingsRepository) Delete(ctx context.Context, q DBTX, accountID string) error {
	if _, err := q.Exec(ctx, `DELETE FROM account_settings WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("failed to delete settings: %w", err)
	}
	return nil
}
