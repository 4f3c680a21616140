package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushgate/internal/errors"
	"github.com/pushgate/internal/models"
	"github.com/pushgate/internal/ratelimit"
	"github.com/pushgate/internal/types"
)

func newTestAccountService(store *memStore) *AccountService {
	window := ratelimit.NewDayWindow(ratelimit.ResetLocal, time.UTC).
		WithClock(func() time.Time { return testNow })
	return NewAccountService(mockAccountRepo{store}, mockSettingsRepo{store}, mockChannelRepo{store}, window, testValidate, testLogger())
}

func TestCreateAccount(t *testing.T) {
	svc := newTestAccountService(newMemStore())

	account, err := svc.CreateAccount(context.Background(), nil, "ops@example.com", "Ops", "premium")
	require.NoError(t, err)
	assert.Equal(t, 100, account.DailyPushLimit)
	assert.Equal(t, 500, account.KeywordLimit)
	assert.True(t, account.IsActive)

	_, err = svc.CreateAccount(context.Background(), nil, "not-an-email", "x", "free")
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))

	_, err = svc.CreateAccount(context.Background(), nil, "a@example.com", "x", "gold")
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestChangeTierSetsPairedDefaults(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestAccountService(store)
	account := store.addAccount(types.TierFree, true)

	require.NoError(t, svc.SetLimits(ctx, nil, account.ID, 3, 7))

	up, err := svc.ChangeTier(ctx, nil, account.ID, "premium")
	require.NoError(t, err)
	assert.Equal(t, types.TierPremium, up.Tier)
	assert.Equal(t, 100, up.DailyPushLimit)
	assert.Equal(t, 500, up.KeywordLimit)

	down, err := svc.ChangeTier(ctx, nil, account.ID, "free")
	require.NoError(t, err)
	assert.Equal(t, 10, down.DailyPushLimit)
	assert.Equal(t, 50, down.KeywordLimit)

	_, err = svc.ChangeTier(ctx, nil, account.ID, "enterprise")
	assert.Error(t, err)

	_, err = svc.ChangeTier(ctx, nil, "ghost", "free")
	assert.True(t, errors.IsNotFound(err))
}

func TestSetActive(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestAccountService(store)
	eval := newTestEvaluator(store, EvaluatorConfig{})
	account := store.addAccount(types.TierPremium, true)

	require.NoError(t, svc.SetActive(ctx, nil, account.ID, false))
	d, err := eval.CanPush(ctx, nil, account.ID)
	require.NoError(t, err)
	assert.Equal(t, ReasonAccountDisabled, d.Reason)
}

func TestSaveSettingsValidation(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestAccountService(store)
	account := store.addAccount(types.TierFree, true)

	good := &models.AccountSettings{
		AccountID:  account.ID,
		ReportMode: types.ReportModeCurrent,
		Timezone:   "Asia/Tokyo",
		PushWindow: &models.PushWindow{Start: "07:30", End: "21:00"},
	}
	require.NoError(t, svc.SaveSettings(ctx, nil, good))
	assert.Equal(t, good, store.settings[account.ID])

	bad := []*models.AccountSettings{
		{AccountID: account.ID, ReportMode: "weekly", Timezone: "UTC"},
		{AccountID: account.ID, ReportMode: types.ReportModeDaily, Timezone: "Nowhere/Else"},
		{AccountID: account.ID, ReportMode: types.ReportModeDaily, Timezone: "UTC", PushWindow: &models.PushWindow{Start: "7am", End: "21:00"}},
	}
	for _, s := range bad {
		err := svc.SaveSettings(ctx, nil, s)
		assert.True(t, errors.HasCategory(err, errors.CategoryValidation), "%+v", s)
	}
}

func TestAddChannel(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestAccountService(store)
	account := store.addAccount(types.TierFree, true)

	require.NoError(t, svc.AddChannel(ctx, nil, &models.NotificationChannel{
		AccountID:   account.ID,
		ChannelType: types.ChannelDingTalk,
		Config:      json.RawMessage(`{"webhook":"https://example.invalid"}`),
		Enabled:     true,
	}))

	err := svc.AddChannel(ctx, nil, &models.NotificationChannel{AccountID: account.ID, ChannelType: types.ChannelEmail})
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
	assert.Len(t, store.channels, 1)
}

func TestStats(t *testing.T) {
	store := newMemStore()
	svc := newTestAccountService(store)

	free := store.addAccount(types.TierFree, true)
	premium := store.addAccount(types.TierPremium, false)
	premium.IsSuperuser = true
	premium.CreatedAt = testNow.Add(-time.Hour)
	free.CreatedAt = testNow.Add(-48 * time.Hour)

	store.addLedger(free.ID, types.PushStatusSuccess, testNow.Add(-time.Hour))
	store.addLedger(free.ID, types.PushStatusFailed, testNow.Add(-time.Hour))
	store.addLedger(free.ID, types.PushStatusSuccess, testNow.Add(-30*time.Hour))

	stats, err := svc.Stats(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.SystemStats{
		TotalAccounts:    2,
		ActiveAccounts:   1,
		FreeAccounts:     1,
		PremiumAccounts:  1,
		Superusers:       1,
		TodayNewAccounts: 1,
		TodayPushCount:   2,
	}, *stats)
}
