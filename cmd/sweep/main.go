// Package main provides a dry-run sweep over active accounts. For each account
// it prints the delivery snapshot and the current push decision as JSON lines,
// without admitting or recording anything.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/pushgate/internal/circuitbreaker"
	"github.com/pushgate/internal/config"
	"github.com/pushgate/internal/logging"
	"github.com/pushgate/internal/models"
	"github.com/pushgate/internal/ratelimit"
	"github.com/pushgate/internal/service"
	"github.com/pushgate/internal/storage"
	"github.com/pushgate/internal/types"
)

// sweepLine is one output record
type sweepLine struct {
	AccountID  string                 `json:"accountId"`
	Email      string                 `json:"email"`
	Tier       types.Tier             `json:"tier"`
	Decision   service.Decision       `json:"decision"`
	TodayCount int                    `json:"todayCount"`
	Config     *models.DeliveryConfig `json:"config,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

func main() {
	var (
		accountID = flag.String("account", "", "Sweep a single account instead of all active accounts")
		limit     = flag.Int("limit", 0, "Stop after this many accounts (0 means no limit)")
		withCfg   = flag.Bool("config", true, "Include the delivery snapshot in the output")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	postgres, err := storage.NewPostgresDB(ctx, &cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Postgres")
	}
	defer postgres.Close()

	var locker ratelimit.Locker = ratelimit.NewLocalLocker()
	if cfg.Redis.Enabled() {
		client, err := storage.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer client.Close()

		redisLocker, err := ratelimit.NewRedisLocker(client)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create Redis locker")
		}
		breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("admission-lock"), logger)
		locker = ratelimit.NewGuardedLocker(redisLocker, breaker)
		logger.Info().Str("host", cfg.Redis.Host).Msg("Using Redis admission locks")
	}

	policy, err := ratelimit.ParseResetPolicy(cfg.Quota.ResetZone)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid reset zone")
	}

	validate := validator.New()
	accounts := storage.NewAccountRepository()
	settings := storage.NewSettingsRepository()
	channels := storage.NewChannelRepository()
	rules := service.NewKeywordRuleModel(accounts, storage.NewKeywordRepository(), validate, logger)

	evaluator := service.NewEligibilityEvaluator(accounts, settings, storage.NewLedgerRepository(),
		service.EvaluatorConfig{
			Window:   ratelimit.NewDayWindow(policy, time.Local),
			Locker:   locker,
			LockTTL:  cfg.Quota.LockTTL,
			LockWait: cfg.Quota.LockWait,
		}, validate, logger)

	aggregator := service.NewConfigAggregator(accounts, settings, channels, rules,
		models.SettingsDefaults{
			ReportMode: types.ReportMode(cfg.Settings.ReportMode),
			Timezone:   cfg.Settings.Timezone,
		}, logger)

	s := &sweeper{
		pool:       postgres.Pool(),
		evaluator:  evaluator,
		aggregator: aggregator,
		limiter:    rate.NewLimiter(rate.Limit(cfg.Sweep.Rate), cfg.Sweep.Burst),
		withConfig: *withCfg,
		out:        json.NewEncoder(os.Stdout),
		logger:     logger,
	}

	if err := s.run(ctx, *accountID, *limit); err != nil {
		logger.Fatal().Err(err).Msg("Sweep failed")
	}
}

type sweeper struct {
	pool       storage.DBTX
	evaluator  *service.EligibilityEvaluator
	aggregator *service.ConfigAggregator
	limiter    *rate.Limiter
	withConfig bool
	out        *json.Encoder
	logger     zerolog.Logger
}

func (s *sweeper) run(ctx context.Context, accountID string, limit int) error {
	ids := []string{accountID}
	if accountID == "" {
		active, err := s.aggregator.ListActiveAccounts(ctx, s.pool)
		if err != nil {
			return err
		}
		ids = ids[:0]
		for _, a := range active {
			ids = append(ids, a.ID)
		}
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	start := time.Now()
	allowed := 0
	for _, id := range ids {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		line := s.sweepOne(ctx, id)
		if line.Decision.Allowed {
			allowed++
		}
		if err := s.out.Encode(line); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}

	s.logger.Info().
		Int("accounts", len(ids)).
		Int("allowed", allowed).
		Dur("elapsed", time.Since(start)).
		Msg("Sweep completed")
	return nil
}

func (s *sweeper) sweepOne(ctx context.Context, accountID string) sweepLine {
	line := sweepLine{AccountID: accountID}

	snapshot, err := s.aggregator.Snapshot(ctx, s.pool, accountID)
	if err != nil {
		line.Error = err.Error()
		s.logger.Warn().Err(err).Str("accountId", accountID).Msg("Failed to build snapshot")
		return line
	}
	line.Email = snapshot.Account.Email
	line.Tier = snapshot.Account.Tier
	if s.withConfig {
		line.Config = snapshot
	}

	if line.Decision, err = s.evaluator.CanPush(ctx, s.pool, accountID); err != nil {
		line.Error = err.Error()
		return line
	}
	if line.TodayCount, err = s.evaluator.TodayPushCount(ctx, s.pool, accountID); err != nil {
		line.Error = err.Error()
	}
	return line
}
