package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/pushgate/internal/errors"
	"github.com/pushgate/internal/models"
	"github.com/pushgate/internal/ratelimit"
	"github.com/pushgate/internal/storage"
	"github.com/pushgate/internal/types"
)

// AccountService handles administrative changes to accounts
type AccountService struct {
	accounts AccountRepository
	settings SettingsRepository
	channels ChannelRepository
	window   *ratelimit.DayWindow
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewAccountService creates a new account service
func NewAccountService(
	accounts AccountRepository,
	settings SettingsRepository,
	channels ChannelRepository,
	window *ratelimit.DayWindow,
	validate *validator.Validate,
	logger zerolog.Logger,
) *AccountService {
	if window == nil {
		window = ratelimit.NewDayWindow(ratelimit.ResetLocal, nil)
	}
	return &AccountService{
		accounts: accounts,
		settings: settings,
		channels: channels,
		window:   window,
		validate: validate,
		logger:   logger.With().Str("service", "account").Logger(),
	}
}

// CreateAccount registers an active account with the tier's default limits
func (s *AccountService) CreateAccount(ctx context.Context, q storage.DBTX, email, name, tier string) (*models.Account, error) {
	t, err := types.ParseTier(tier)
	if err != nil {
		return nil, errors.NewInvalidParameterError("tier", err.Error())
	}
	account, err := models.NewAccount(email, name, t)
	if err != nil {
		return nil, err
	}
	if err := s.validate.Struct(account); err != nil {
		return nil, errors.NewValidationError("account", err)
	}
	if err := s.accounts.Create(ctx, q, account); err != nil {
		return nil, err
	}
	return account, nil
}

// ChangeTier moves the account to tier and resets its limits to that tier's
// defaults.
func (s *AccountService) ChangeTier(ctx context.Context, q storage.DBTX, accountID, tier string) (*models.Account, error) {
	t, err := types.ParseTier(tier)
	if err != nil {
		return nil, errors.NewInvalidParameterError("tier", err.Error())
	}

	account, err := s.accounts.ChangeTier(ctx, q, accountID, t)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("accountId", accountID).
		Str("tier", string(t)).
		Int("dailyPushLimit", account.DailyPushLimit).
		Int("keywordLimit", account.KeywordLimit).
		Msg("account tier changed")
	return account, nil
}

// SetLimits overrides the account's quotas while keeping its tier
func (s *AccountService) SetLimits(ctx context.Context, q storage.DBTX, accountID string, dailyPushLimit, keywordLimit int) error {
	return s.accounts.SetLimits(ctx, q, accountID, dailyPushLimit, keywordLimit)
}

// SetActive enables or disables the account
func (s *AccountService) SetActive(ctx context.Context, q storage.DBTX, accountID string, active bool) error {
	if err := s.accounts.SetActive(ctx, q, accountID, active); err != nil {
		return err
	}
	s.logger.Info().Str("accountId", accountID).Bool("active", active).Msg("account status changed")
	return nil
}

// SaveSettings validates and stores the account's delivery preferences
func (s *AccountService) SaveSettings(ctx context.Context, q storage.DBTX, settings *models.AccountSettings) error {
	if err := s.validate.Struct(settings); err != nil {
		return errors.NewValidationError("settings", err)
	}
	if err := s.settings.Upsert(ctx, q, settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// AddChannel validates and stores a notification channel
func (s *AccountService) AddChannel(ctx context.Context, q storage.DBTX, ch *models.NotificationChannel) error {
	if err := s.validate.Struct(ch); err != nil {
		return errors.NewValidationError("channel", err)
	}
	if err := s.channels.Create(ctx, q, ch); err != nil {
		return fmt.Errorf("failed to add channel: %w", err)
	}
	return nil
}

// Stats returns system-wide account and push counts for today
func (s *AccountService) Stats(ctx context.Context, q storage.DBTX) (*models.SystemStats, error) {
	stats, err := s.accounts.Stats(ctx, q, s.window.Start(""))
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}
