package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Skill is a learned, confidence-weighted piece of knowledge, scoped to a
// project or global when ProjectID is nil.
type Skill struct {
	ID             int64   `json:"id"`
	SkillType      string  `json:"skill_type"`
	Skill          string  `json:"skill"`
	Context        string  `json:"context,omitempty"`
	ProjectID      *int64  `json:"project_id,omitempty"`
	ToolName       string  `json:"tool_name,omitempty"`
	SourceType     string  `json:"source_type,omitempty"`
	Confidence     float64 `json:"confidence"`
	SessionCount   int     `json:"session_count"`
	TimesApplied   int     `json:"times_applied"`
	TimesSucceeded int     `json:"times_succeeded"`
	Promoted       bool    `json:"promoted"`
	PromotedAt     *string `json:"promoted_at,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

// SuccessRate is times_succeeded / times_applied, or 0 before any apply.
func (s Skill) SuccessRate() float64 {
	if s.TimesApplied == 0 {
		return 0
	}
	return float64(s.TimesSucceeded) / float64(s.TimesApplied)
}

// LearnSkillParams holds the input for recording a skill.
type LearnSkillParams struct {
	SkillType  string `json:"skill_type"`
	Skill      string `json:"skill"`
	Context    string `json:"context,omitempty"`
	ProjectID  *int64 `json:"project_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	SourceType string `json:"source_type,omitempty"`
	SessionKey string `json:"session_key,omitempty"`
}

// SkillFilter narrows ListSkills. A set ProjectID includes global skills.
type SkillFilter struct {
	ProjectID     *int64
	SkillType     string
	MinConfidence float64
	PromotedOnly  bool
	Limit         int
}

const skillColumns = `id, skill_type, skill, COALESCE(context, ''), project_id, COALESCE(tool_name, ''),
	COALESCE(source_type, ''), confidence, session_count, times_applied, times_succeeded, promoted,
	promoted_at, created_at, updated_at`

func scanSkill(r rowScanner) (*Skill, error) {
	var s Skill
	var project sql.NullInt64
	var promotedAt sql.NullString
	if err := r.Scan(&s.ID, &s.SkillType, &s.Skill, &s.Context, &project, &s.ToolName, &s.SourceType,
		&s.Confidence, &s.SessionCount, &s.TimesApplied, &s.TimesSucceeded, &s.Promoted,
		&promotedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.ProjectID = nullInt(project)
	s.PromotedAt = nullString(promotedAt)
	return &s, nil
}

// LearnSkill records a new skill at the starting confidence.
func (s *Store) LearnSkill(ctx context.Context, p LearnSkillParams) (*Skill, error) {
	p.Skill = strings.TrimSpace(p.Skill)
	if p.Skill == "" {
		return nil, invalid("skill", "must not be empty")
	}
	if err := checkEnum("skill_type", p.SkillType, SkillTypes); err != nil {
		return nil, err
	}

	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if p.ProjectID != nil {
			if err := mustExist(ctx, tx, "projects", "project", *p.ProjectID); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO learned_skills (skill_type, skill, context, project_id, tool_name, source_type, confidence)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.SkillType, p.Skill, nullableString(p.Context), p.ProjectID,
			nullableString(p.ToolName), nullableString(p.SourceType), StartingConfidence,
		)
		if err != nil {
			return fmt.Errorf("memory: learn skill: %w", err)
		}
		id, _ = res.LastInsertId()
		return skillKind.seeSession(ctx, tx, id, p.SessionKey)
	})
	if err != nil {
		return nil, err
	}
	return s.GetSkill(ctx, id)
}

// GetSkill returns a skill by id.
func (s *Store) GetSkill(ctx context.Context, id int64) (*Skill, error) {
	sk, err := scanSkill(s.db.QueryRowContext(ctx, "SELECT "+skillColumns+" FROM learned_skills WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, notFound("skill", id)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get skill: %w", err)
	}
	return sk, nil
}

// ApplySkill records that a skill was used and whether it worked.
func (s *Store) ApplySkill(ctx context.Context, id int64, succeeded bool, sessionKey string) (*Skill, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return skillKind.apply(ctx, tx, id, succeeded, sessionKey, s.cfg.ConfidenceAlpha)
	})
	if err != nil {
		return nil, err
	}
	return s.GetSkill(ctx, id)
}

// ConfirmSkill counts a new session for a skill. It never promotes.
func (s *Store) ConfirmSkill(ctx context.Context, id int64, sessionKey string) (*Skill, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return skillKind.confirm(ctx, tx, id, sessionKey)
	})
	if err != nil {
		return nil, err
	}
	return s.GetSkill(ctx, id)
}

// ListSkills returns skills ordered by confidence, highest first.
func (s *Store) ListSkills(ctx context.Context, f SkillFilter) ([]Skill, error) {
	return listSkills(ctx, s.db, f)
}

func listSkills(ctx context.Context, q dbtx, f SkillFilter) ([]Skill, error) {
	query := "SELECT " + skillColumns + " FROM learned_skills WHERE confidence >= ?"
	args := []any{f.MinConfidence}
	if f.ProjectID != nil {
		query += " AND (project_id = ? OR project_id IS NULL)"
		args = append(args, *f.ProjectID)
	}
	if f.SkillType != "" {
		if err := checkEnum("skill_type", f.SkillType, SkillTypes); err != nil {
			return nil, err
		}
		query += " AND skill_type = ?"
		args = append(args, f.SkillType)
	}
	if f.PromotedOnly {
		query += " AND promoted = 1"
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query += " ORDER BY promoted DESC, confidence DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: list skills: %w", err)
	}
	defer rows.Close()

	out := []Skill{}
	for rows.Next() {
		sk, err := scanSkill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sk)
	}
	return out, rows.Err()
}

// DeleteSkill removes a skill, promoted or not.
func (s *Store) DeleteSkill(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM learned_skills WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("memory: delete skill: %w", err)
		}
		return affectedOrNotFound(res, "skill", id)
	})
}
