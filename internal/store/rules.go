package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
)

// AddRule inserts an auto-response rule and returns its id. Regex patterns
// must compile; a bad pattern is rejected here so matching never sees one.
func (s *Store) AddRule(ctx context.Context, rule *AutoRule) (int64, error) {
	if rule.MatchType == "" {
		rule.MatchType = MatchContains
	}
	if rule.MatchType == MatchRegex {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			return 0, fmt.Errorf("invalid rule regex %q: %w", rule.Pattern, err)
		}
	}
	var id int64
	err := s.write(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			"INSERT INTO auto_rules (pattern, response, match_type) VALUES (?, ?, ?)",
			rule.Pattern, rule.Response, rule.MatchType)
		if err != nil {
			return fmt.Errorf("add rule: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// ListRules returns rules in id order. With enabledOnly, disabled rules are
// excluded.
func (s *Store) ListRules(ctx context.Context, enabledOnly bool) ([]*AutoRule, error) {
	q := "SELECT id, pattern, response, match_type, enabled, hit_count, created_at FROM auto_rules"
	if enabledOnly {
		q += " WHERE enabled = 1"
	}
	q += " ORDER BY id"
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []*AutoRule
	for rows.Next() {
		var r AutoRule
		var enabled int
		var created sql.NullString
		if err := rows.Scan(&r.ID, &r.Pattern, &r.Response, &r.MatchType,
			&enabled, &r.HitCount, &created); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.Enabled = enabled != 0
		r.CreatedAt = parseTime(created)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// DeleteRule removes a rule. Returns false if no rule had that id.
func (s *Store) DeleteRule(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := s.write(ctx, func() error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM auto_rules WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("delete rule: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted = n > 0
		return nil
	})
	return deleted, err
}

// IncrementRuleHit bumps a rule's hit counter.
func (s *Store) IncrementRuleHit(ctx context.Context, id int64) error {
	return s.write(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			"UPDATE auto_rules SET hit_count = hit_count + 1 WHERE id = ?", id)
		return err
	})
}

// SetRulesEnabled flips every rule on or off at once (/auto pause|resume).
func (s *Store) SetRulesEnabled(ctx context.Context, enabled bool) error {
	return s.write(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			"UPDATE auto_rules SET enabled = ?", boolInt(enabled))
		return err
	})
}

// SeedDefaultRules inserts the configured default rules, but only into an
// empty table so user edits survive restarts.
func (s *Store) SeedDefaultRules(ctx context.Context, rules []*AutoRule) error {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM auto_rules").Scan(&count); err != nil {
		return fmt.Errorf("count rules: %w", err)
	}
	if count > 0 {
		return nil
	}
	for _, r := range rules {
		if _, err := s.AddRule(ctx, r); err != nil {
			s.log.Warn("skipping bad default rule", "pattern", r.Pattern, "error", err)
		}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
