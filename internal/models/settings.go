package models

import (
	"time"

	"github.com/pushgate/internal/types"
)

// PushWindow restricts deliveries to a local clock range, "HH:MM" each end.
type PushWindow struct {
	Start string `json:"start" validate:"required,datetime=15:04"`
	End   string `json:"end" validate:"required,datetime=15:04"`
}

// AccountSettings holds per-account delivery preferences. An account without
// a settings row uses the system defaults.
type AccountSettings struct {
	AccountID  string           `json:"accountId" db:"account_id" validate:"required"`
	ReportMode types.ReportMode `json:"reportMode" db:"report_mode" validate:"required,oneof=daily current incremental"`
	Timezone   string           `json:"timezone" db:"timezone" validate:"required,timezone"`
	PushWindow *PushWindow      `json:"pushWindow,omitempty" validate:"omitempty"`
	CreatedAt  time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time        `json:"updatedAt" db:"updated_at"`
}

// SettingsDefaults are applied when an account has no settings row
type SettingsDefaults struct {
	ReportMode types.ReportMode
	Timezone   string
}

// EffectiveSettings is the settings view a dispatcher acts on
type EffectiveSettings struct {
	ReportMode types.ReportMode `json:"reportMode"`
	Timezone   string           `json:"timezone"`
	PushWindow *PushWindow      `json:"pushWindow,omitempty"`
	Defaulted  bool             `json:"defaulted"`
}

// Effective resolves stored settings against the defaults. s may be nil.
func Effective(s *AccountSettings, defaults SettingsDefaults) EffectiveSettings {
	if s == nil {
		return EffectiveSettings{
			ReportMode: defaults.ReportMode,
			Timezone:   defaults.Timezone,
			Defaulted:  true,
		}
	}
	return EffectiveSettings{
		ReportMode: s.ReportMode,
		Timezone:   s.Timezone,
		PushWindow: s.PushWindow,
	}
}
