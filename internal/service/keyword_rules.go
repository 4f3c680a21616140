package service

import (
	"bufio"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/pushgate/internal/errors"
	"github.com/pushgate/internal/models"
	"github.com/pushgate/internal/storage"
)

// Rule notation markers
const (
	requiredPrefix = "+"
	filteredPrefix = "!"
	maxCountMarker = "@"
	literalEscape  = "\\"
	commentPrefix  = "#"
)

// leadingMarkers are the characters with meaning at the start of a rule or line
const leadingMarkers = requiredPrefix + filteredPrefix + literalEscape + commentPrefix + maxCountMarker

// KeywordRuleModel owns the ordered keyword rule set of each account
type KeywordRuleModel struct {
	accounts AccountRepository
	rules    KeywordRepository
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewKeywordRuleModel creates a new keyword rule model
func NewKeywordRuleModel(accounts AccountRepository, rules KeywordRepository, validate *validator.Validate, logger zerolog.Logger) *KeywordRuleModel {
	return &KeywordRuleModel{
		accounts: accounts,
		rules:    rules,
		validate: validate,
		logger:   logger.With().Str("service", "keyword_rules").Logger(),
	}
}

// ListRules returns the account's rules by group, then creation time, then
// insertion sequence. An unknown account has no rules.
func (m *KeywordRuleModel) ListRules(ctx context.Context, q storage.DBTX, accountID string) ([]*models.KeywordRule, error) {
	rules, err := m.rules.ListByAccount(ctx, q, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	slices.SortStableFunc(rules, func(a, b *models.KeywordRule) int {
		switch {
		case models.RuleBefore(a, b):
			return -1
		case models.RuleBefore(b, a):
			return 1
		default:
			return 0
		}
	})
	return rules, nil
}

// ListFilterWords returns the content of every filtered rule. Order carries
// no meaning.
func (m *KeywordRuleModel) ListFilterWords(ctx context.Context, q storage.DBTX, accountID string) ([]string, error) {
	words, err := m.rules.ListFilterWords(ctx, q, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list filter words: %w", err)
	}
	return words, nil
}

// CountRules returns how many rules the account holds
func (m *KeywordRuleModel) CountRules(ctx context.Context, q storage.DBTX, accountID string) (int, error) {
	n, err := m.rules.Count(ctx, q, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to count rules: %w", err)
	}
	return n, nil
}

// CreateRule validates and stores a rule. The account's keyword limit is
// not checked here; see CreateRuleWithinLimit.
func (m *KeywordRuleModel) CreateRule(ctx context.Context, q storage.DBTX, rule *models.KeywordRule) error {
	rule.Content = strings.TrimSpace(rule.Content)
	if err := m.validate.Struct(rule); err != nil {
		return errors.NewValidationError("keyword rule", err)
	}
	if err := m.rules.Create(ctx, q, rule); err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// CreateRuleWithinLimit stores a rule unless the account already holds its
// keyword limit. The account row stays locked until tx ends, so concurrent
// creations for one account are serialized.
func (m *KeywordRuleModel) CreateRuleWithinLimit(ctx context.Context, tx pgx.Tx, rule *models.KeywordRule) error {
	account, err := m.accounts.GetForUpdate(ctx, tx, rule.AccountID)
	if err != nil {
		return err
	}

	count, err := m.CountRules(ctx, tx, account.ID)
	if err != nil {
		return err
	}
	if count >= account.KeywordLimit {
		return errors.NewKeywordLimitError(account.ID, count, account.KeywordLimit)
	}
	return m.CreateRule(ctx, tx, rule)
}

// DeleteRule removes one of the account's rules
func (m *KeywordRuleModel) DeleteRule(ctx context.Context, q storage.DBTX, accountID, ruleID string) error {
	deleted, err := m.rules.Delete(ctx, q, accountID, ruleID)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if !deleted {
		return errors.NewNotFoundError("keyword rule", ruleID)
	}
	return nil
}

// ImportRules parses a word list and creates its rules in order through the
// limited surface. Blank lines separate groups; group numbering continues
// after the account's highest existing group. A line holding only "@N" sets
// the max count of every rule in its group that has none. Lines starting
// with "#" are comments.
func (m *KeywordRuleModel) ImportRules(ctx context.Context, tx pgx.Tx, accountID, text string) ([]*models.KeywordRule, error) {
	existing, err := m.ListRules(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	firstGroup := 0
	if n := len(existing); n > 0 {
		firstGroup = existing[n-1].GroupOrder + 1
	}

	groups, err := ParseRuleList(text)
	if err != nil {
		return nil, err
	}

	created := make([]*models.KeywordRule, 0)
	for i, group := range groups {
		for _, rule := range group {
			rule.AccountID = accountID
			rule.GroupOrder = firstGroup + i
			if err := m.CreateRuleWithinLimit(ctx, tx, rule); err != nil {
				return nil, err
			}
			created = append(created, rule)
		}
	}

	m.logger.Info().
		Str("accountId", accountID).
		Int("groups", len(groups)).
		Int("rules", len(created)).
		Msg("imported keyword rules")
	return created, nil
}

// ParseRuleList splits a word list into groups of parsed rules
func ParseRuleList(text string) ([][]*models.KeywordRule, error) {
	var groups [][]*models.KeywordRule
	var current []*models.KeywordRule
	groupMax := 0

	flush := func() {
		if len(current) == 0 {
			groupMax = 0
			return
		}
		for _, r := range current {
			if r.MaxCount == 0 {
				r.MaxCount = groupMax
			}
		}
		groups = append(groups, current)
		current = nil
		groupMax = 0
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, commentPrefix):
		case strings.HasPrefix(line, maxCountMarker):
			n, err := strconv.Atoi(strings.TrimPrefix(line, maxCountMarker))
			if err != nil || n < 0 {
				return nil, errors.NewInvalidParameterError(fmt.Sprintf("line %d", lineNo), "max count must be a non-negative integer")
			}
			groupMax = n
		default:
			rule, err := ParseRule(line)
			if err != nil {
				return nil, errors.NewInvalidParameterError(fmt.Sprintf("line %d", lineNo), err.Error())
			}
			current = append(current, rule)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rule list: %w", err)
	}
	flush()
	return groups, nil
}

// ParseRule parses one rule in word-list notation: an optional "+"
// (required) or "!" (filtered) prefix, the content, and an optional "@N"
// max count suffix. A backslash right after the prefix is dropped and turns
// off marker handling for the character that follows it.
func ParseRule(line string) (*models.KeywordRule, error) {
	s := strings.TrimSpace(line)
	rule := &models.KeywordRule{}

	switch {
	case strings.HasPrefix(s, requiredPrefix):
		rule.IsRequired = true
		s = strings.TrimPrefix(s, requiredPrefix)
	case strings.HasPrefix(s, filteredPrefix):
		rule.IsFiltered = true
		s = strings.TrimPrefix(s, filteredPrefix)
	}
	s = strings.TrimPrefix(s, literalEscape)

	if content, n, ok := splitMaxCount(s); ok {
		rule.MaxCount = n
		s = content
	}

	rule.Content = strings.TrimSpace(s)
	if rule.Content == "" {
		return nil, fmt.Errorf("empty rule %q", line)
	}
	return rule, nil
}

// splitMaxCount splits a trailing "@N" off s. A marker at position 0 is
// content, not a suffix.
func splitMaxCount(s string) (string, int, bool) {
	i := strings.LastIndex(s, maxCountMarker)
	if i <= 0 {
		return s, 0, false
	}
	n, err := strconv.Atoi(s[i+1:])
	if err != nil || n < 0 {
		return s, 0, false
	}
	return s[:i], n, true
}

// FormatRule renders a rule in word-list notation so that ParseRule returns
// it unchanged. Content starting with a marker is escaped, and content that
// itself ends in "@N" always gets an explicit suffix. A rule that is both
// required and filtered renders with the filter marker.
func FormatRule(rule *models.KeywordRule) string {
	var b strings.Builder
	switch {
	case rule.IsFiltered:
		b.WriteString(filteredPrefix)
	case rule.IsRequired:
		b.WriteString(requiredPrefix)
	}
	if rule.Content != "" && strings.ContainsRune(leadingMarkers, rune(rule.Content[0])) {
		b.WriteString(literalEscape)
	}
	b.WriteString(rule.Content)

	_, _, trailing := splitMaxCount(rule.Content)
	if rule.MaxCount > 0 || trailing {
		b.WriteString(maxCountMarker)
		b.WriteString(strconv.Itoa(rule.MaxCount))
	}
	return b.String()
}

// FormatRules renders rules as a word list, one group per paragraph.
// rules must already be in evaluation order.
func FormatRules(rules []*models.KeywordRule) string {
	var b strings.Builder
	for i, r := range rules {
		if i > 0 {
			b.WriteByte('\n')
			if r.GroupOrder != rules[i-1].GroupOrder {
				b.WriteByte('\n')
			}
		}
		b.WriteString(FormatRule(r))
	}
	return b.String()
}
