package models

import (
	"encoding/json"
	"time"
)

// NotificationChannel is a delivery target. Config is opaque to the core.
type NotificationChannel struct {
	ID          string          `json:"id" db:"id"`
	AccountID   string          `json:"accountId" db:"account_id" validate:"required"`
	ChannelType string          `json:"channelType" db:"channel_type" validate:"required,max=20"`
	Config      json.RawMessage `json:"config" db:"config" validate:"required"`
	Enabled     bool            `json:"enabled" db:"enabled"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}
