package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushgate/internal/models"
	"github.com/pushgate/internal/storage"
)

// ConfigAggregator assembles the per-account bundle a dispatcher reads once
// per scheduling cycle. It only reads and keeps no state between calls.
type ConfigAggregator struct {
	accounts AccountRepository
	settings SettingsRepository
	channels ChannelRepository
	rules    *KeywordRuleModel
	defaults models.SettingsDefaults
	now      func() time.Time
	logger   zerolog.Logger
}

// NewConfigAggregator creates a new config aggregator
func NewConfigAggregator(
	accounts AccountRepository,
	settings SettingsRepository,
	channels ChannelRepository,
	rules *KeywordRuleModel,
	defaults models.SettingsDefaults,
	logger zerolog.Logger,
) *ConfigAggregator {
	return &ConfigAggregator{
		accounts: accounts,
		settings: settings,
		channels: channels,
		rules:    rules,
		defaults: defaults,
		now:      time.Now,
		logger:   logger.With().Str("service", "config_aggregator").Logger(),
	}
}

// ListActiveAccounts returns every account with IsActive set
func (a *ConfigAggregator) ListActiveAccounts(ctx context.Context, q storage.DBTX) ([]*models.Account, error) {
	accounts, err := a.accounts.ListActive(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list active accounts: %w", err)
	}
	return accounts, nil
}

// GetSettings returns the account's settings, or nil when it has none
func (a *ConfigAggregator) GetSettings(ctx context.Context, q storage.DBTX, accountID string) (*models.AccountSettings, error) {
	s, err := a.settings.Get(ctx, q, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return s, nil
}

// GetRules returns the account's rules in evaluation order
func (a *ConfigAggregator) GetRules(ctx context.Context, q storage.DBTX, accountID string) ([]*models.KeywordRule, error) {
	return a.rules.ListRules(ctx, q, accountID)
}

// GetChannels returns the account's channels
func (a *ConfigAggregator) GetChannels(ctx context.Context, q storage.DBTX, accountID string, enabledOnly bool) ([]*models.NotificationChannel, error) {
	channels, err := a.channels.ListByAccount(ctx, q, accountID, enabledOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to get channels: %w", err)
	}
	return channels, nil
}

// GetFilterWords returns the content of the account's filtered rules
func (a *ConfigAggregator) GetFilterWords(ctx context.Context, q storage.DBTX, accountID string) ([]string, error) {
	return a.rules.ListFilterWords(ctx, q, accountID)
}

// Snapshot composes everything a dispatcher needs for one account. Pass a
// transaction as q for a consistent view across the reads.
func (a *ConfigAggregator) Snapshot(ctx context.Context, q storage.DBTX, accountID string) (*models.DeliveryConfig, error) {
	account, err := a.accounts.GetByID(ctx, q, accountID)
	if err != nil {
		return nil, err
	}

	settings, err := a.GetSettings(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	rules, err := a.GetRules(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	channels, err := a.GetChannels(ctx, q, accountID, true)
	if err != nil {
		return nil, err
	}
	words, err := a.GetFilterWords(ctx, q, accountID)
	if err != nil {
		return nil, err
	}

	a.logger.Debug().
		Str("accountId", accountID).
		Int("rules", len(rules)).
		Int("channels", len(channels)).
		Bool("defaultSettings", settings == nil).
		Msg("built delivery snapshot")

	return &models.DeliveryConfig{
		Account:     account,
		Settings:    settings,
		Effective:   models.Effective(settings, a.defaults),
		Rules:       rules,
		Channels:    channels,
		FilterWords: words,
		GeneratedAt: a.now().UTC(),
	}, nil
}
