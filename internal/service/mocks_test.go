package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/pushgate/internal/errors"
	"github.com/pushgate/internal/models"
	"github.com/pushgate/internal/storage"
	"github.com/pushgate/internal/types"
)

// memStore backs every mock repository. Sessions passed to it are ignored.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	settings map[string]*models.AccountSettings
	rules    []*models.KeywordRule
	channels []*models.NotificationChannel
	ledger   []*models.PushLedgerEntry
	seq      int64

	failWith error
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[string]*models.Account),
		settings: make(map[string]*models.AccountSettings),
	}
}

func (s *memStore) addAccount(tier types.Tier, active bool) *models.Account {
	a, _ := models.NewAccount(fmt.Sprintf("%s@example.com", uuid.NewString()[:8]), "test", tier)
	a.ID = uuid.NewString()
	a.IsActive = active
	s.mu.Lock()
	s.accounts[a.ID] = a
	s.mu.Unlock()
	return a
}

func (s *memStore) addLedger(accountID string, status types.PushStatus, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = append(s.ledger, &models.PushLedgerEntry{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		ChannelType: types.ChannelTelegram,
		Status:      status,
		CreatedAt:   at,
	})
}

func (s *memStore) ledgerLen(accountID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.ledger {
		if e.AccountID == accountID {
			n++
		}
	}
	return n
}

// pendingTx stands in for a pgx.Tx: ledger rows appended through it stay
// invisible to other sessions until commit.
type pendingTx struct {
	pgx.Tx
	store   *memStore
	pending []*models.PushLedgerEntry
}

func (s *memStore) begin() *pendingTx {
	return &pendingTx{store: s}
}

func (tx *pendingTx) commit() {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	tx.store.ledger = append(tx.store.ledger, tx.pending...)
	tx.pending = nil
}

type mockAccountRepo struct{ *memStore }

func (m mockAccountRepo) Create(ctx context.Context, q storage.DBTX, account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	m.accounts[account.ID] = account
	return nil
}

func (m mockAccountRepo) GetByID(ctx context.Context, q storage.DBTX, id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	if a, ok := m.accounts[id]; ok {
		return a, nil
	}
	return nil, errors.NewNotFoundError("account", id)
}

func (m mockAccountRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*models.Account, error) {
	return m.GetByID(ctx, nil, id)
}

func (m mockAccountRepo) ListActive(ctx context.Context, q storage.DBTX) ([]*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Account
	for _, a := range m.accounts {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m mockAccountRepo) ChangeTier(ctx context.Context, q storage.DBTX, id string, tier types.Tier) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, errors.NewNotFoundError("account", id)
	}
	quota := types.TierQuotas[tier]
	a.Tier = tier
	a.DailyPushLimit = quota.DailyPushLimit
	a.KeywordLimit = quota.KeywordLimit
	return a, nil
}

func (m mockAccountRepo) SetLimits(ctx context.Context, q storage.DBTX, id string, daily, keywords int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return errors.NewNotFoundError("account", id)
	}
	a.DailyPushLimit = daily
	a.KeywordLimit = keywords
	return nil
}

func (m mockAccountRepo) SetActive(ctx context.Context, q storage.DBTX, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return errors.NewNotFoundError("account", id)
	}
	a.IsActive = active
	return nil
}

func (m mockAccountRepo) Stats(ctx context.Context, q storage.DBTX, since time.Time) (*models.SystemStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var st models.SystemStats
	for _, a := range m.accounts {
		st.TotalAccounts++
		if a.IsActive {
			st.ActiveAccounts++
		}
		switch a.Tier {
		case types.TierFree:
			st.FreeAccounts++
		case types.TierPremium:
			st.PremiumAccounts++
		}
		if a.IsSuperuser {
			st.Superusers++
		}
		if !a.CreatedAt.Before(since) {
			st.TodayNewAccounts++
		}
	}
	for _, e := range m.ledger {
		if !e.CreatedAt.Before(since) {
			st.TodayPushCount++
		}
	}
	return &st, nil
}

type mockSettingsRepo struct{ *memStore }

// copySettings mimics a row round trip: callers never share the stored value
func copySettings(s *models.AccountSettings) *models.AccountSettings {
	if s == nil {
		return nil
	}
	out := *s
	if s.PushWindow != nil {
		w := *s.PushWindow
		out.PushWindow = &w
	}
	return &out
}

func (m mockSettingsRepo) Get(ctx context.Context, q storage.DBTX, accountID string) (*models.AccountSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySettings(m.settings[accountID]), nil
}

func (m mockSettingsRepo) Upsert(ctx context.Context, q storage.DBTX, s *models.AccountSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[s.AccountID] = copySettings(s)
	return nil
}

type mockKeywordRepo struct{ *memStore }

func (m mockKeywordRepo) Create(ctx context.Context, q storage.DBTX, rule *models.KeywordRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	m.seq++
	rule.Seq = m.seq
	m.rules = append(m.rules, rule)
	return nil
}

// ListByAccount returns insertion order; the model sorts
func (m mockKeywordRepo) ListByAccount(ctx context.Context, q storage.DBTX, accountID string) ([]*models.KeywordRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := make([]*models.KeywordRule, 0)
	for _, r := range m.rules {
		if r.AccountID == accountID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m mockKeywordRepo) ListFilterWords(ctx context.Context, q storage.DBTX, accountID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0)
	for _, r := range m.rules {
		if r.AccountID == accountID && r.IsFiltered {
			out = append(out, r.Content)
		}
	}
	return out, nil
}

func (m mockKeywordRepo) Count(ctx context.Context, q storage.DBTX, accountID string) (int, error) {
	rules, err := m.ListByAccount(ctx, q, accountID)
	return len(rules), err
}

func (m mockKeywordRepo) Delete(ctx context.Context, q storage.DBTX, accountID, ruleID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rules {
		if r.ID == ruleID && r.AccountID == accountID {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type mockChannelRepo struct{ *memStore }

func (m mockChannelRepo) Create(ctx context.Context, q storage.DBTX, ch *models.NotificationChannel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	m.channels = append(m.channels, ch)
	return nil
}

func (m mockChannelRepo) ListByAccount(ctx context.Context, q storage.DBTX, accountID string, enabledOnly bool) ([]*models.NotificationChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.NotificationChannel, 0)
	for _, ch := range m.channels {
		if ch.AccountID == accountID && (ch.Enabled || !enabledOnly) {
			out = append(out, ch)
		}
	}
	return out, nil
}

type mockLedgerRepo struct{ *memStore }

func (m mockLedgerRepo) Append(ctx context.Context, q storage.DBTX, e *models.PushLedgerEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return false, m.failWith
	}
	if e.IdempotencyKey != nil {
		for _, existing := range m.ledger {
			if existing.AccountID == e.AccountID && existing.IdempotencyKey != nil && *existing.IdempotencyKey == *e.IdempotencyKey {
				return false, nil
			}
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if tx, ok := q.(*pendingTx); ok {
		tx.pending = append(tx.pending, e)
		return true, nil
	}
	m.ledger = append(m.ledger, e)
	return true, nil
}

func (m mockLedgerRepo) CountSuccessSince(ctx context.Context, q storage.DBTX, accountID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.ledger {
		if e.AccountID == accountID && e.Status == types.PushStatusSuccess && !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

var testValidate = validator.New()

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
