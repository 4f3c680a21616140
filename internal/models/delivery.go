package models

import "time"

// DeliveryConfig is the read-only bundle a dispatcher needs for one account
// in one scheduling cycle.
type DeliveryConfig struct {
	Account     *Account               `json:"account"`
	Settings    *AccountSettings       `json:"settings,omitempty"`
	Effective   EffectiveSettings      `json:"effective"`
	Rules       []*KeywordRule         `json:"rules"`
	Channels    []*NotificationChannel `json:"channels"`
	FilterWords []string               `json:"filterWords"`
	GeneratedAt time.Time              `json:"generatedAt"`
}
