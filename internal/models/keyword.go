package models

import "time"

// KeywordRule is one content-matching directive owned by an account.
//
// IsRequired and IsFiltered are independent flags. Both set at once is stored
// as given; the matching engine decides what it means.
type KeywordRule struct {
	ID         string    `json:"id" db:"id"`
	AccountID  string    `json:"accountId" db:"account_id" validate:"required"`
	Content    string    `json:"content" db:"content" validate:"required,max=500"`
	GroupOrder int       `json:"groupOrder" db:"group_order"`
	IsRequired bool      `json:"isRequired" db:"is_required"`
	IsFiltered bool      `json:"isFiltered" db:"is_filtered"`
	MaxCount   int       `json:"maxCount" db:"max_count" validate:"gte=0"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	Seq        int64     `json:"-" db:"seq"`
}

// RuleBefore reports whether a sorts before b in evaluation order:
// group first, then creation time, then insertion sequence.
func RuleBefore(a, b *KeywordRule) bool {
	if a.GroupOrder != b.GroupOrder {
		return a.GroupOrder < b.GroupOrder
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Seq < b.Seq
}
