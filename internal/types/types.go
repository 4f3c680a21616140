// Package types provides common type definitions for the push entitlement core.
package types

import "fmt"

// Tier represents the service tier level of an account
type Tier string

const (
	// TierFree represents the free service tier with a daily push quota
	TierFree Tier = "free"
	// TierPremium represents the paid service tier; pushes are not quota-limited
	TierPremium Tier = "premium"
)

// TierQuota holds the default limits paired with a tier
type TierQuota struct {
	DailyPushLimit int `json:"dailyPushLimit"`
	KeywordLimit   int `json:"keywordLimit"`
}

// TierQuotas is the reference policy applied whenever an account enters a tier.
var TierQuotas = map[Tier]TierQuota{
	TierFree:    {DailyPushLimit: 10, KeywordLimit: 50},
	TierPremium: {DailyPushLimit: 100, KeywordLimit: 500},
}

// Tiers lists every valid tier in a stable order
var Tiers = []Tier{TierFree, TierPremium}

// Valid reports whether t is one of the known tiers
func (t Tier) Valid() bool {
	_, ok := TierQuotas[t]
	return ok
}

// Quota returns the default limits for the tier
func (t Tier) Quota() (TierQuota, error) {
	q, ok := TierQuotas[t]
	if !ok {
		return TierQuota{}, fmt.Errorf("unknown tier %q", string(t))
	}
	return q, nil
}

// ParseTier converts a stored or user-supplied string into a Tier
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", fmt.Errorf("invalid tier: %s (must be 'free' or 'premium')", s)
	}
	return t, nil
}

// ReportMode controls how the dispatcher builds a report for an account
type ReportMode string

const (
	// ReportModeDaily summarizes the whole day
	ReportModeDaily ReportMode = "daily"
	// ReportModeCurrent reports the current ranking snapshot
	ReportModeCurrent ReportMode = "current"
	// ReportModeIncremental reports only items new since the last push
	ReportModeIncremental ReportMode = "incremental"
)

// Valid reports whether m is a known report mode
func (m ReportMode) Valid() bool {
	switch m {
	case ReportModeDaily, ReportModeCurrent, ReportModeIncremental:
		return true
	default:
		return false
	}
}

// PushStatus represents the outcome of a push attempt
type PushStatus string

const (
	// PushStatusSuccess marks a delivered push; only these count against quota
	PushStatusSuccess PushStatus = "success"
	// PushStatusFailed marks a failed delivery attempt
	PushStatusFailed PushStatus = "failed"
)

// StatusFor maps a delivery outcome to its ledger status
func StatusFor(success bool) PushStatus {
	if success {
		return PushStatusSuccess
	}
	return PushStatusFailed
}

// Known channel type tags. The column is a free string; these are the values
// the dispatcher understands today.
const (
	ChannelFeishu   = "feishu"
	ChannelTelegram = "telegram"
	ChannelDingTalk = "dingtalk"
	ChannelEmail    = "email"
	ChannelNtfy     = "ntfy"
	ChannelBark     = "bark"
	ChannelSlack    = "slack"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
