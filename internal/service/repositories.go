package service

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pushgate/internal/models"
	"github.com/pushgate/internal/storage"
	"github.com/pushgate/internal/types"
)

// Repository interfaces for dependency injection. Every call takes the
// caller's storage session.

// AccountRepository reads and administers entitlement records
type AccountRepository interface {
	Create(ctx context.Context, q storage.DBTX, account *models.Account) error
	GetByID(ctx context.Context, q storage.DBTX, id string) (*models.Account, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*models.Account, error)
	ListActive(ctx context.Context, q storage.DBTX) ([]*models.Account, error)
	ChangeTier(ctx context.Context, q storage.DBTX, id string, tier types.Tier) (*models.Account, error)
	SetLimits(ctx context.Context, q storage.DBTX, id string, dailyPushLimit, keywordLimit int) error
	SetActive(ctx context.Context, q storage.DBTX, id string, active bool) error
	Stats(ctx context.Context, q storage.DBTX, since time.Time) (*models.SystemStats, error)
}

// SettingsRepository reads and writes per-account settings
type SettingsRepository interface {
	Get(ctx context.Context, q storage.DBTX, accountID string) (*models.AccountSettings, error)
	Upsert(ctx context.Context, q storage.DBTX, s *models.AccountSettings) error
}

// KeywordRepository persists keyword rules
type KeywordRepository interface {
	Create(ctx context.Context, q storage.DBTX, rule *models.KeywordRule) error
	ListByAccount(ctx context.Context, q storage.DBTX, accountID string) ([]*models.KeywordRule, error)
	ListFilterWords(ctx context.Context, q storage.DBTX, accountID string) ([]string, error)
	Count(ctx context.Context, q storage.DBTX, accountID string) (int, error)
	Delete(ctx context.Context, q storage.DBTX, accountID, ruleID string) (bool, error)
}

// ChannelRepository persists notification channels
type ChannelRepository interface {
	Create(ctx context.Context, q storage.DBTX, ch *models.NotificationChannel) error
	ListByAccount(ctx context.Context, q storage.DBTX, accountID string, enabledOnly bool) ([]*models.NotificationChannel, error)
}

// LedgerRepository appends and counts push attempts
type LedgerRepository interface {
	Append(ctx context.Context, q storage.DBTX, e *models.PushLedgerEntry) (bool, error)
	CountSuccessSince(ctx context.Context, q storage.DBTX, accountID string, since time.Time) (int, error)
}

var (
	_ AccountRepository  = (*storage.AccountRepository)(nil)
	_ SettingsRepository = (*storage.SettingsRepository)(nil)
	_ KeywordRepository  = (*storage.KeywordRepository)(nil)
	_ ChannelRepository  = (*storage.ChannelRepository)(nil)
	_ LedgerRepository   = (*storage.LedgerRepository)(nil)
)
