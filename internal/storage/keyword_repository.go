package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pushgate/internal/models"
)

const keywordColumns = `id, account_id, content, group_order, is_required,
	is_filtered, max_count, created_at, seq`

// KeywordRepository handles keyword rule persistence
type KeywordRepository struct{}

// NewKeywordRepository creates a new keyword repository
func NewKeywordRepository() *KeywordRepository {
	return &KeywordRepository{}
}

// Create inserts a rule and fills in its ID, CreatedAt and Seq
func (r *KeywordRepository) Create(ctx context.Context, q DBTX, rule *models.KeywordRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO keyword_rules (id, account_id, content, group_order,
			is_required, is_filtered, max_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq
	`

	err := q.QueryRow(ctx, query,
		rule.ID,
		rule.AccountID,
		rule.Content,
		rule.GroupOrder,
		rule.IsRequired,
		rule.IsFiltered,
		rule.MaxCount,
		rule.CreatedAt,
	).Scan(&rule.Seq)
	if err != nil {
		return fmt.Errorf("failed to create keyword rule: %w", err)
	}
	return nil
}

// ListByAccount returns the account's rules in evaluation order
func (r *KeywordRepository) ListByAccount(ctx context.Context, q DBTX, accountID string) ([]*models.KeywordRule, error) {
	if _, err := uuid.Parse(accountID); err != nil {
		return []*models.KeywordRule{}, nil
	}

	query := `SELECT ` + keywordColumns + `
		FROM keyword_rules
		WHERE account_id = $1
		ORDER BY group_order ASC, created_at ASC, seq ASC`

	rows, err := q.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list keyword rules: %w", err)
	}
	defer rows.Close()

	rules := make([]*models.KeywordRule, 0)
	for rows.Next() {
		var k models.KeywordRule
		if err := rows.Scan(
			&k.ID,
			&k.AccountID,
			&k.Content,
			&k.GroupOrder,
			&k.IsRequired,
			&k.IsFiltered,
			&k.MaxCount,
			&k.CreatedAt,
			&k.Seq,
		); err != nil {
			return nil, fmt.Errorf("failed to scan keyword rule: %w", err)
		}
		rules = append(rules, &k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating keyword rules: %w", err)
	}
	return rules, nil
}

// ListFilterWords returns the content of the account's filtered rules
func (r *KeywordRepository) ListFilterWords(ctx context.Context, q DBTX, accountID string) ([]string, error) {
	if _, err := uuid.Parse(accountID); err != nil {
		return []string{}, nil
	}

	rows, err := q.Query(ctx, `
		SELECT content FROM keyword_rules
		WHERE account_id = $1 AND is_filtered = TRUE
		ORDER BY seq ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list filter words: %w", err)
	}
	defer rows.Close()

	words := make([]string, 0)
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("failed to scan filter word: %w", err)
		}
		words = append(words, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating filter words: %w", err)
	}
	return words, nil
}

// Count returns how many rules the account holds
func (r *KeywordRepository) Count(ctx context.Context, q DBTX, accountID string) (int, error) {
	if _, err := uuid.Parse(accountID); err != nil {
		return 0, nil
	}

	var n int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM keyword_rules WHERE account_id = $1`, accountID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count keyword rules: %w", err)
	}
	return n, nil
}

// Delete removes one of the account's rules. It reports whether a row went.
func (r *KeywordRepository) Delete(ctx context.Context, q DBTX, accountID, ruleID string) (bool, error) {
	if !validUUIDs(accountID, ruleID) {
		return false, nil
	}

	tag, err := q.Exec(ctx, `DELETE FROM keyword_rules WHERE id = $1 AND account_id = $2`, ruleID, accountID)
	if err != nil {
		return false, fmt.Errorf("failed to delete keyword rule: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func validUUIDs(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}
