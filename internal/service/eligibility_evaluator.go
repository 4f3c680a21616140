package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/pushgate/internal/errors"
	"github.com/pushgate/internal/models"
	"github.com/pushgate/internal/ratelimit"
	"github.com/pushgate/internal/retry"
	"github.com/pushgate/internal/storage"
)

// Denial reasons returned in a Decision
const (
	ReasonAccountNotFound = "account not found"
	ReasonAccountDisabled = "account disabled"
)

var errLockHeld = stderrors.New("admission lock held")

// Decision is the answer to "may this account receive another push now".
// Reason is empty when Allowed is true.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// quotaExhausted builds the denial for an account at or over its limit
func quotaExhausted(count, limit int) Decision {
	return Decision{Reason: fmt.Sprintf("quota exhausted: %d/%d", count, limit)}
}

// evaluate applies the eligibility rule to a loaded account. count is the
// number of successful pushes since the start of the account's day.
func evaluate(account *models.Account, count int) Decision {
	switch {
	case account == nil:
		return Decision{Reason: ReasonAccountNotFound}
	case !account.IsActive:
		return Decision{Reason: ReasonAccountDisabled}
	case account.IsPremium():
		return Decision{Allowed: true}
	case count >= account.DailyPushLimit:
		return quotaExhausted(count, account.DailyPushLimit)
	default:
		return Decision{Allowed: true}
	}
}

// Outcome is what a dispatcher reports after attempting an admitted push
type Outcome struct {
	ChannelType    string
	ContentCount   int
	Success        bool
	ErrorMessage   string
	IdempotencyKey string
}

// Admission is a per-account slot obtained from Admit. While an allowed
// admission is open no other admission for the account can be granted.
type Admission struct {
	AccountID string
	Decision  Decision

	key        string
	token      string
	acquiredAt time.Time
	closed     bool
}

// Held reports whether the admission still owns its account's slot
func (a *Admission) Held() bool {
	return a != nil && a.token != "" && !a.closed
}

// EvaluatorConfig configures the eligibility evaluator
type EvaluatorConfig struct {
	// Window decides where "today" starts. Defaults to the local clock.
	Window *ratelimit.DayWindow
	// Locker serializes admissions per account. Defaults to an in-process locker.
	Locker ratelimit.Locker
	// LockTTL bounds how long a crashed dispatcher can hold an admission.
	LockTTL time.Duration
	// LockWait is how long Admit waits for a busy account before giving up.
	LockWait time.Duration
	// Monitor, when set, receives every Admit outcome.
	Monitor *AdmissionMonitor
}

// EligibilityEvaluator gates pushes against tier-based daily quotas
type EligibilityEvaluator struct {
	accounts AccountRepository
	settings SettingsRepository
	ledger   LedgerRepository
	window   *ratelimit.DayWindow
	locker   ratelimit.Locker
	lockTTL  time.Duration
	lockWait time.Duration
	monitor  *AdmissionMonitor
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewEligibilityEvaluator creates a new eligibility evaluator
func NewEligibilityEvaluator(
	accounts AccountRepository,
	settings SettingsRepository,
	ledger LedgerRepository,
	cfg EvaluatorConfig,
	validate *validator.Validate,
	logger zerolog.Logger,
) *EligibilityEvaluator {
	if cfg.Window == nil {
		cfg.Window = ratelimit.NewDayWindow(ratelimit.ResetLocal, nil)
	}
	if cfg.Locker == nil {
		cfg.Locker = ratelimit.NewLocalLocker()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = ratelimit.DefaultLockTTL
	}
	return &EligibilityEvaluator{
		accounts: accounts,
		settings: settings,
		ledger:   ledger,
		window:   cfg.Window,
		locker:   cfg.Locker,
		lockTTL:  cfg.LockTTL,
		lockWait: cfg.LockWait,
		monitor:  cfg.Monitor,
		validate: validate,
		logger:   logger.With().Str("service", "eligibility").Logger(),
	}
}

// CanPush decides whether the account may receive another push now.
// Policy denials come back as a Decision; only storage failures are errors.
func (e *EligibilityEvaluator) CanPush(ctx context.Context, q storage.DBTX, accountID string) (Decision, error) {
	account, err := e.accounts.GetByID(ctx, q, accountID)
	if err != nil {
		if errors.IsNotFound(err) {
			return evaluate(nil, 0), nil
		}
		return Decision{}, fmt.Errorf("failed to load account: %w", err)
	}
	if !account.IsActive || account.IsPremium() {
		return evaluate(account, 0), nil
	}

	count, err := e.TodayPushCount(ctx, q, accountID)
	if err != nil {
		return Decision{}, err
	}
	return evaluate(account, count), nil
}

// TodayPushCount counts the account's successful pushes since the start of
// its quota day.
func (e *EligibilityEvaluator) TodayPushCount(ctx context.Context, q storage.DBTX, accountID string) (int, error) {
	since, err := e.dayStart(ctx, q, accountID)
	if err != nil {
		return 0, err
	}
	count, err := e.ledger.CountSuccessSince(ctx, q, accountID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count today's pushes: %w", err)
	}
	return count, nil
}

func (e *EligibilityEvaluator) dayStart(ctx context.Context, q storage.DBTX, accountID string) (time.Time, error) {
	if e.window.Policy() != ratelimit.ResetAccount {
		return e.window.Start(""), nil
	}
	settings, err := e.settings.Get(ctx, q, accountID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load settings: %w", err)
	}
	if settings == nil {
		return e.window.Start(""), nil
	}
	return e.window.Start(settings.Timezone), nil
}

// RecordPush appends one ledger entry for a push attempt. It reports false
// when the record's idempotency key was already used for the account.
// The entry is durable once q commits.
func (e *EligibilityEvaluator) RecordPush(ctx context.Context, q storage.DBTX, rec models.PushRecord) (bool, error) {
	if err := e.validate.Struct(rec); err != nil {
		return false, errors.NewValidationError("push record", err)
	}

	recorded, err := e.ledger.Append(ctx, q, rec.Entry(e.window.Now()))
	if err != nil {
		return false, fmt.Errorf("failed to record push: %w", err)
	}
	if !recorded {
		e.logger.Debug().
			Str("accountId", rec.AccountID).
			Str("idempotencyKey", rec.IdempotencyKey).
			Msg("duplicate push record ignored")
	}
	return recorded, nil
}

// Admit takes the account's admission slot, waiting up to the configured
// lock wait, and evaluates CanPush while holding it. A denied admission is
// released before returning. An allowed one must be finished with Complete
// or Release.
func (e *EligibilityEvaluator) Admit(ctx context.Context, q storage.DBTX, accountID string) (*Admission, error) {
	key := ratelimit.AdmissionKey(accountID)
	start := time.Now()

	var token string
	result := retry.WithExponentialBackoff(ctx, retry.LockWaitConfig(e.lockWait), func(ctx context.Context, _ int) error {
		t, ok, err := e.locker.TryAcquire(ctx, key, e.lockTTL)
		if err != nil {
			return fmt.Errorf("%w: %w", retry.ErrGiveUp, err)
		}
		if !ok {
			return errLockHeld
		}
		token = t
		return nil
	})
	if !result.Success {
		switch {
		case stderrors.Is(result.LastError, errLockHeld):
			e.observe(AdmissionBusy, time.Since(start))
			return nil, errors.NewAdmissionBusyError(accountID, result.LastError)
		case ctx.Err() != nil:
			e.observe(AdmissionFailed, time.Since(start))
			return nil, ctx.Err()
		default:
			e.observe(AdmissionFailed, time.Since(start))
			return nil, errors.NewCacheError("acquire admission lock", result.LastError)
		}
	}

	adm := &Admission{
		AccountID:  accountID,
		key:        key,
		token:      token,
		acquiredAt: time.Now(),
	}
	waited := adm.acquiredAt.Sub(start)

	decision, err := e.CanPush(ctx, q, accountID)
	if err != nil {
		e.release(ctx, adm)
		e.observe(AdmissionFailed, waited)
		return nil, err
	}
	adm.Decision = decision
	if !decision.Allowed {
		e.release(ctx, adm)
		e.observe(AdmissionDenied, waited)
		return adm, nil
	}
	e.observe(AdmissionAllowed, waited)
	return adm, nil
}

// Complete records the outcome of an admitted push and frees the slot.
// q must autocommit (a pool): the slot is freed as soon as the row is
// written, so a row still pending in a transaction would let the next
// admission count without it. Inside a transaction use Record, commit, then
// Release.
//
// If the lease expired while the push was in flight the row is still
// recorded and an ADMISSION_EXPIRED error is returned alongside it.
func (e *EligibilityEvaluator) Complete(ctx context.Context, q storage.DBTX, adm *Admission, out Outcome) (bool, error) {
	if _, inTx := q.(pgx.Tx); inTx {
		return false, errors.NewInvalidParameterError("session", "Complete needs an autocommitting session; use Record and Release after commit")
	}
	recorded, err := e.Record(ctx, q, adm, out)
	if err != nil {
		if adm.Held() {
			e.release(ctx, adm)
		}
		return false, err
	}
	return recorded, e.Release(ctx, adm)
}

// Record writes the outcome of an admitted push without freeing the slot.
// The admission stays held until Release, which the caller invokes after the
// session commits (or rolls back).
func (e *EligibilityEvaluator) Record(ctx context.Context, q storage.DBTX, adm *Admission, out Outcome) (bool, error) {
	if !adm.Held() {
		return false, errors.NewInvalidParameterError("admission", "not held")
	}
	return e.RecordPush(ctx, q, models.PushRecord{
		AccountID:      adm.AccountID,
		ChannelType:    out.ChannelType,
		ContentCount:   out.ContentCount,
		Success:        out.Success,
		ErrorMessage:   out.ErrorMessage,
		IdempotencyKey: out.IdempotencyKey,
	})
}

// Release frees an admission's slot. It returns ADMISSION_EXPIRED when the
// lease had already lapsed, meaning another admission may have been granted
// meanwhile. Releasing a closed admission is a no-op.
func (e *EligibilityEvaluator) Release(ctx context.Context, adm *Admission) error {
	if !adm.Held() {
		return nil
	}
	if e.release(ctx, adm) {
		return nil
	}
	return errors.NewAdmissionExpiredError(adm.AccountID, time.Since(adm.acquiredAt))
}

func (e *EligibilityEvaluator) observe(result AdmissionResult, wait time.Duration) {
	if e.monitor != nil {
		e.monitor.Record(result, wait)
	}
}

// release frees the lock and reports whether the lease was still ours.
// Store errors are logged and treated as held; the TTL reclaims the key.
func (e *EligibilityEvaluator) release(ctx context.Context, adm *Admission) bool {
	adm.closed = true
	// release even if the caller's context is already done
	ctx = context.WithoutCancel(ctx)

	ok, err := e.locker.Release(ctx, adm.key, adm.token)
	switch {
	case err != nil:
		e.logger.Warn().Err(err).Str("accountId", adm.AccountID).Msg("failed to release admission lock")
	case !ok:
		e.logger.Warn().
			Str("accountId", adm.AccountID).
			Dur("held", time.Since(adm.acquiredAt)).
			Msg("admission lock expired before release")
		return false
	}
	return true
}
