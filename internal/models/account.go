// Package models provides data models for the push entitlement core.
package models

import (
	"time"

	"github.com/pushgate/internal/types"
)

// Account is an entitlement record: who may receive pushes and how many.
type Account struct {
	ID             string     `json:"id" db:"id"`
	Email          string     `json:"email" db:"email" validate:"required,email,max=255"`
	Name           string     `json:"name" db:"name" validate:"max=100"`
	Tier           types.Tier `json:"tier" db:"tier"`
	DailyPushLimit int        `json:"dailyPushLimit" db:"daily_push_limit" validate:"gte=0"`
	KeywordLimit   int        `json:"keywordLimit" db:"keyword_limit" validate:"gte=0"`
	IsActive       bool       `json:"isActive" db:"is_active"`
	IsSuperuser    bool       `json:"isSuperuser" db:"is_superuser"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time  `json:"updatedAt" db:"updated_at"`
}

// NewAccount returns an active account whose limits are seeded from the tier
// defaults.
func NewAccount(email, name string, tier types.Tier) (*Account, error) {
	quota, err := tier.Quota()
	if err != nil {
		return nil, err
	}
	return &Account{
		Email:          email,
		Name:           name,
		Tier:           tier,
		DailyPushLimit: quota.DailyPushLimit,
		KeywordLimit:   quota.KeywordLimit,
		IsActive:       true,
	}, nil
}

// IsPremium reports whether pushes for this account bypass the daily quota
func (a *Account) IsPremium() bool {
	return a.Tier == types.TierPremium
}

// SystemStats is an aggregate view over all accounts
type SystemStats struct {
	TotalAccounts    int `json:"totalAccounts"`
	ActiveAccounts   int `json:"activeAccounts"`
	FreeAccounts     int `json:"freeAccounts"`
	PremiumAccounts  int `json:"premiumAccounts"`
	Superusers       int `json:"superusers"`
	TodayNewAccounts int `json:"todayNewAccounts"`
	TodayPushCount   int `json:"todayPushCount"`
}
