package models

import (
	"time"

	"github.com/pushgate/internal/types"
)

// PushLedgerEntry is an immutable record of one push attempt
type PushLedgerEntry struct {
	ID             string           `json:"id" db:"id"`
	AccountID      string           `json:"accountId" db:"account_id"`
	ChannelType    string           `json:"channelType" db:"channel_type"`
	ContentCount   int              `json:"contentCount" db:"content_count"`
	Status         types.PushStatus `json:"status" db:"status"`
	ErrorMessage   *string          `json:"errorMessage,omitempty" db:"error_message"`
	IdempotencyKey *string          `json:"idempotencyKey,omitempty" db:"idempotency_key"`
	CreatedAt      time.Time        `json:"createdAt" db:"created_at"`
}

// PushRecord describes an attempt outcome to append to the ledger.
// IdempotencyKey, when set, makes retries of the same record a no-op.
type PushRecord struct {
	AccountID      string `validate:"required"`
	ChannelType    string `validate:"required,max=50"`
	ContentCount   int    `validate:"gte=0"`
	Success        bool
	ErrorMessage   string
	IdempotencyKey string `validate:"max=128"`
}

// Entry converts the record into a ledger row stamped at now (UTC)
func (r PushRecord) Entry(now time.Time) *PushLedgerEntry {
	e := &PushLedgerEntry{
		AccountID:    r.AccountID,
		ChannelType:  r.ChannelType,
		ContentCount: r.ContentCount,
		Status:       types.StatusFor(r.Success),
		CreatedAt:    now.UTC(),
	}
	if r.ErrorMessage != "" {
		msg := r.ErrorMessage
		e.ErrorMessage = &msg
	}
	if r.IdempotencyKey != "" {
		key := r.IdempotencyKey
		e.IdempotencyKey = &key
	}
	return e
}
