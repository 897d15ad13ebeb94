package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// Pattern is a learned behaviour: when TriggerConditions hold, take Actions.
type Pattern struct {
	ID                int64          `json:"id"`
	PatternType       string         `json:"pattern_type"`
	PatternName       string         `json:"pattern_name"`
	TriggerConditions map[string]any `json:"trigger_conditions"`
	Actions           []string       `json:"actions"`
	ProjectID         *int64         `json:"project_id,omitempty"`
	Source            string         `json:"source"`
	Confidence        float64        `json:"confidence"`
	SessionCount      int            `json:"session_count"`
	TimesApplied      int            `json:"times_applied"`
	TimesSucceeded    int            `json:"times_succeeded"`
	Promoted          bool           `json:"promoted"`
	PromotedAt        *string        `json:"promoted_at,omitempty"`
	CreatedAt         string         `json:"created_at"`
	UpdatedAt         string         `json:"updated_at"`
}

// RecordPatternParams holds the input for recording a pattern.
type RecordPatternParams struct {
	PatternType       string         `json:"pattern_type"`
	PatternName       string         `json:"pattern_name"`
	TriggerConditions map[string]any `json:"trigger_conditions,omitempty"`
	Actions           []string       `json:"actions,omitempty"`
	ProjectID         *int64         `json:"project_id,omitempty"`
	Source            string         `json:"source,omitempty"`
	SessionKey        string         `json:"session_key,omitempty"`
}

// PatternFilter narrows ListPatterns. A set ProjectID includes global
// patterns. ActiveAbove, when positive, keeps promoted patterns and those
// with confidence at or above it.
type PatternFilter struct {
	ProjectID   *int64
	PatternType string
	ActiveAbove float64
	Limit       int
}

const patternColumns = `id, pattern_type, pattern_name, trigger_conditions, actions, project_id, source,
	confidence, session_count, times_applied, times_succeeded, promoted, promoted_at, created_at, updated_at`

func scanPattern(r rowScanner) (*Pattern, error) {
	var p Pattern
	var triggers, actions string
	var project sql.NullInt64
	var promotedAt sql.NullString
	if err := r.Scan(&p.ID, &p.PatternType, &p.PatternName, &triggers, &actions, &project, &p.Source,
		&p.Confidence, &p.SessionCount, &p.TimesApplied, &p.TimesSucceeded, &p.Promoted,
		&promotedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.TriggerConditions = decodeJSON[map[string]any](triggers)
	if p.TriggerConditions == nil {
		p.TriggerConditions = map[string]any{}
	}
	p.Actions = orEmpty(decodeJSON[[]string](actions))
	p.ProjectID = nullInt(project)
	p.PromotedAt = nullString(promotedAt)
	return &p, nil
}

// RecordPattern records a new pattern at the starting confidence.
func (s *Store) RecordPattern(ctx context.Context, p RecordPatternParams) (*Pattern, error) {
	p.PatternName = strings.TrimSpace(p.PatternName)
	if p.PatternName == "" {
		return nil, invalid("pattern_name", "must not be empty")
	}
	if err := checkEnum("pattern_type", p.PatternType, PatternTypes); err != nil {
		return nil, err
	}
	p.Source = enumOr(p.Source, "learned")
	if err := checkEnum("source", p.Source, PatternSources); err != nil {
		return nil, err
	}
	triggers := "{}"
	if len(p.TriggerConditions) > 0 {
		b, err := json.Marshal(p.TriggerConditions)
		if err != nil {
			return nil, invalid("trigger_conditions", "not encodable: %v", err)
		}
		triggers = string(b)
	}

	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if p.ProjectID != nil {
			if err := mustExist(ctx, tx, "projects", "project", *p.ProjectID); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO behavior_patterns (pattern_type, pattern_name, trigger_conditions, actions, project_id, source, confidence)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.PatternType, p.PatternName, triggers, encodeJSON(orEmpty(p.Actions)), p.ProjectID, p.Source, StartingConfidence,
		)
		if err != nil {
			return fmt.Errorf("memory: record pattern: %w", err)
		}
		id, _ = res.LastInsertId()
		return patternKind.seeSession(ctx, tx, id, p.SessionKey)
	})
	if err != nil {
		return nil, err
	}
	return s.GetPattern(ctx, id)
}

// GetPattern returns a pattern by id.
func (s *Store) GetPattern(ctx context.Context, id int64) (*Pattern, error) {
	p, err := scanPattern(s.db.QueryRowContext(ctx, "SELECT "+patternColumns+" FROM behavior_patterns WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, notFound("pattern", id)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get pattern: %w", err)
	}
	return p, nil
}

// ApplyPattern records that a pattern was followed and whether it worked.
func (s *Store) ApplyPattern(ctx context.Context, id int64, succeeded bool, sessionKey string) (*Pattern, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return patternKind.apply(ctx, tx, id, succeeded, sessionKey, s.cfg.ConfidenceAlpha)
	})
	if err != nil {
		return nil, err
	}
	return s.GetPattern(ctx, id)
}

// ConfirmPattern counts a new session for a pattern. It never promotes.
func (s *Store) ConfirmPattern(ctx context.Context, id int64, sessionKey string) (*Pattern, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return patternKind.confirm(ctx, tx, id, sessionKey)
	})
	if err != nil {
		return nil, err
	}
	return s.GetPattern(ctx, id)
}

// ListPatterns returns patterns, promoted first, then by confidence.
func (s *Store) ListPatterns(ctx context.Context, f PatternFilter) ([]Pattern, error) {
	return listPatterns(ctx, s.db, f)
}

func listPatterns(ctx context.Context, q dbtx, f PatternFilter) ([]Pattern, error) {
	query := "SELECT " + patternColumns + " FROM behavior_patterns WHERE 1=1"
	var args []any
	if f.ProjectID != nil {
		query += " AND (project_id = ? OR project_id IS NULL)"
		args = append(args, *f.ProjectID)
	}
	if f.PatternType != "" {
		if err := checkEnum("pattern_type", f.PatternType, PatternTypes); err != nil {
			return nil, err
		}
		query += " AND pattern_type = ?"
		args = append(args, f.PatternType)
	}
	if f.ActiveAbove > 0 {
		query += " AND (promoted = 1 OR confidence >= ?)"
		args = append(args, f.ActiveAbove)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query += " ORDER BY promoted DESC, confidence DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: list patterns: %w", err)
	}
	defer rows.Close()

	out := []Pattern{}
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// DeletePattern removes a pattern, promoted or not.
func (s *Store) DeletePattern(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM behavior_patterns WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("memory: delete pattern: %w", err)
		}
		return affectedOrNotFound(res, "pattern", id)
	})
}
