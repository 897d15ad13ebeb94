package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Learning is an insight worth carrying into future sessions.
type Learning struct {
	ID          int64  `json:"id"`
	ProjectID   int64  `json:"project_id"`
	ComponentID *int64 `json:"component_id,omitempty"`
	Category    string `json:"category"`
	Insight     string `json:"insight"`
	Context     string `json:"context,omitempty"`
	Source      string `json:"source"`
	Verified    bool   `json:"verified"`
	CreatedAt   string `json:"created_at"`
}

// LogLearningParams holds the input for recording a learning.
type LogLearningParams struct {
	ProjectID   int64  `json:"project_id"`
	ComponentID *int64 `json:"component_id,omitempty"`
	Category    string `json:"category,omitempty"`
	Insight     string `json:"insight"`
	Context     string `json:"context,omitempty"`
	Source      string `json:"source,omitempty"`
	Verified    bool   `json:"verified,omitempty"`
}

const learningColumns = "id, project_id, component_id, category, insight, COALESCE(context, ''), source, verified, created_at"

func scanLearning(r rowScanner) (*Learning, error) {
	var l Learning
	var comp sql.NullInt64
	if err := r.Scan(&l.ID, &l.ProjectID, &comp, &l.Category, &l.Insight, &l.Context, &l.Source, &l.Verified, &l.CreatedAt); err != nil {
		return nil, err
	}
	l.ComponentID = nullInt(comp)
	return &l, nil
}

// LogLearning records a learning.
func (s *Store) LogLearning(ctx context.Context, p LogLearningParams) (*Learning, error) {
	p.Insight = strings.TrimSpace(p.Insight)
	if p.Insight == "" {
		return nil, invalid("insight", "must not be empty")
	}
	p.Category = enumOr(p.Category, "other")
	if err := checkEnum("category", p.Category, LearningCategories); err != nil {
		return nil, err
	}
	p.Source = enumOr(p.Source, "experience")
	if err := checkEnum("source", p.Source, LearningSources); err != nil {
		return nil, err
	}

	var id int64
	err := s.write(ctx, func(tx *sql.Tx, ix *indexBatch) error {
		if err := mustExist(ctx, tx, "projects", "project", p.ProjectID); err != nil {
			return err
		}
		if err := checkProjectRefs(ctx, tx, p.ProjectID, p.ComponentID, nil); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO learnings (project_id, component_id, category, insight, context, source, verified)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ProjectID, p.ComponentID, p.Category, p.Insight, nullableString(p.Context), p.Source, p.Verified,
		)
		if err != nil {
			return fmt.Errorf("memory: log learning: %w", err)
		}
		id, _ = res.LastInsertId()
		if err := touchProject(ctx, tx, p.ProjectID); err != nil {
			return err
		}
		return ix.put(ctx, "learning", id)
	})
	if err != nil {
		return nil, err
	}
	return scanLearning(s.db.QueryRowContext(ctx, "SELECT "+learningColumns+" FROM learnings WHERE id = ?", id))
}

// ListLearnings returns a project's learnings, newest first. An empty
// category matches all.
func (s *Store) ListLearnings(ctx context.Context, projectID int64, category string, limit int) ([]Learning, error) {
	if category != "" {
		if err := checkEnum("category", category, LearningCategories); err != nil {
			return nil, err
		}
	}
	if limit <= 0 {
		limit = s.cfg.RecentLearnings
	}
	return listLearnings(ctx, s.db, projectID, category, limit)
}

func listLearnings(ctx context.Context, q dbtx, projectID int64, category string, limit int) ([]Learning, error) {
	query := "SELECT " + learningColumns + " FROM learnings WHERE project_id = ?"
	args := []any{projectID}
	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: list learnings: %w", err)
	}
	defer rows.Close()

	out := []Learning{}
	for rows.Next() {
		l, err := scanLearning(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// VerifyLearning marks a learning as verified.
func (s *Store) VerifyLearning(ctx context.Context, id int64) error {
	return s.write(ctx, func(tx *sql.Tx, _ *indexBatch) error {
		res, err := tx.ExecContext(ctx, "UPDATE learnings SET verified = 1 WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("memory: verify learning: %w", err)
		}
		return affectedOrNotFound(res, "learning", id)
	})
}

// DeleteLearning removes a learning.
func (s *Store) DeleteLearning(ctx context.Context, id int64) error {
	return s.write(ctx, func(tx *sql.Tx, _ *indexBatch) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM learnings WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("memory: delete learning: %w", err)
		}
		return affectedOrNotFound(res, "learning", id)
	})
}
