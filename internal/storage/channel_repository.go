package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pushgate/internal/models"
)

// ChannelRepository handles notification channel persistence
type ChannelRepository struct{}

// NewChannelRepository creates a new channel repository
func NewChannelRepository() *ChannelRepository {
	return &ChannelRepository{}
}

// Create inserts a channel
func (r *ChannelRepository) Create(ctx context.Context, q DBTX, ch *models.NotificationChannel) error {
	if ch.ID == "" {
		ch.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	ch.CreatedAt = now
	ch.UpdatedAt = now

	query := `
		INSERT INTO notification_channels (id, account_id, channel_type, config,
			enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := q.Exec(ctx, query,
		ch.ID,
		ch.AccountID,
		ch.ChannelType,
		[]byte(ch.Config),
		ch.Enabled,
		ch.CreatedAt,
		ch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create channel: %w", err)
	}
	return nil
}

// ListByAccount returns the account's channels, optionally only enabled ones
func (r *ChannelRepository) ListByAccount(ctx context.Context, q DBTX, accountID string, enabledOnly bool) ([]*models.NotificationChannel, error) {
	if !validUUIDs(accountID) {
		return []*models.NotificationChannel{}, nil
	}

	query := `
		SELECT id, account_id, channel_type, config, enabled, created_at, updated_at
		FROM notification_channels
		WHERE account_id = $1 AND (enabled OR NOT $2)
		ORDER BY created_at ASC, id ASC
	`

	rows, err := q.Query(ctx, query, accountID, enabledOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	channels := make([]*models.NotificationChannel, 0)
	for rows.Next() {
		var ch models.NotificationChannel
		var config []byte
		if err := rows.Scan(
			&ch.ID,
			&ch.AccountID,
			&ch.ChannelType,
			&config,
			&ch.Enabled,
			&ch.CreatedAt,
			&ch.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		ch.Config = config
		channels = append(channels, &ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channels: %w", err)
	}
	return channels, nil
}

// SetEnabled toggles a channel owned by the account
func (r *ChannelRepository) SetEnabled(ctx context.Context, q DBTX, accountID, channelID string, enabled bool) (bool, error) {
	if !validUUIDs(accountID, channelID) {
		return false, nil
	}

	tag, err := q.Exec(ctx, `
		UPDATE notification_channels SET enabled = $3, updated_at = $4
		WHERE id = $1 AND account_id = $2`,
		channelID, accountID, enabled, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to update channel: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
