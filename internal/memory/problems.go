package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Problem is an issue logged against a component. SolvedAt is stamped once
// when the status first becomes solved and cleared if it leaves solved.
type Problem struct {
	ID            int64   `json:"id"`
	ComponentID   int64   `json:"component_id"`
	ComponentName string  `json:"component_name"`
	ProjectID     int64   `json:"project_id"`
	Title         string  `json:"title"`
	Description   string  `json:"description,omitempty"`
	Status        string  `json:"status"`
	Severity      string  `json:"severity"`
	RootCause     string  `json:"root_cause,omitempty"`
	CreatedAt     string  `json:"created_at"`
	SolvedAt      *string `json:"solved_at,omitempty"`
}

// LogProblemParams holds the input for logging a problem.
type LogProblemParams struct {
	ComponentID int64  `json:"component_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Severity    string `json:"severity,omitempty"`
}

// UpdateProblemParams holds partial update fields for a problem.
type UpdateProblemParams struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	Severity    *string `json:"severity,omitempty"`
	RootCause   *string `json:"root_cause,omitempty"`
}

const problemSelect = `
	SELECT pr.id, pr.component_id, c.name, c.project_id, pr.title, COALESCE(pr.description, ''),
	       pr.status, pr.severity, COALESCE(pr.root_cause, ''), pr.created_at, pr.solved_at
	FROM problems pr JOIN components c ON c.id = pr.component_id`

// severityOrder sorts critical first.
const severityOrder = `CASE pr.severity WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END`

// solvedAtExpr stamps solved_at on the edge into solved only. SQLite
// evaluates the right-hand side against the pre-update row.
const solvedAtExpr = `solved_at = CASE
	WHEN ? = 'solved' AND status <> 'solved' THEN datetime('now')
	WHEN ? <> 'solved' THEN NULL
	ELSE solved_at END`

func scanProblem(r rowScanner) (*Problem, error) {
	var p Problem
	var solved sql.NullString
	if err := r.Scan(&p.ID, &p.ComponentID, &p.ComponentName, &p.ProjectID, &p.Title, &p.Description,
		&p.Status, &p.Severity, &p.RootCause, &p.CreatedAt, &solved); err != nil {
		return nil, err
	}
	p.SolvedAt = nullString(solved)
	return &p, nil
}

// LogProblem opens a problem on a component.
func (s *Store) LogProblem(ctx context.Context, p LogProblemParams) (*Problem, error) {
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		return nil, invalid("title", "must not be empty")
	}
	p.Severity = enumOr(p.Severity, "medium")
	if err := checkEnum("severity", p.Severity, Severities); err != nil {
		return nil, err
	}

	var id int64
	err := s.write(ctx, func(tx *sql.Tx, ix *indexBatch) error {
		projectID, err := componentProjectID(ctx, tx, p.ComponentID)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO problems (component_id, title, description, severity) VALUES (?, ?, ?, ?)",
			p.ComponentID, p.Title, nullableString(p.Description), p.Severity,
		)
		if err != nil {
			return fmt.Errorf("memory: log problem: %w", err)
		}
		id, _ = res.LastInsertId()
		if err := touchProject(ctx, tx, projectID); err != nil {
			return err
		}
		return ix.put(ctx, "problem", id)
	})
	if err != nil {
		return nil, err
	}
	return s.GetProblem(ctx, id)
}

// GetProblem returns a problem by id.
func (s *Store) GetProblem(ctx context.Context, id int64) (*Problem, error) {
	return getProblem(ctx, s.db, id)
}

func getProblem(ctx context.Context, q dbtx, id int64) (*Problem, error) {
	p, err := scanProblem(q.QueryRowContext(ctx, problemSelect+" WHERE pr.id = ?", id))
	if err == sql.ErrNoRows {
		return nil, notFound("problem", id)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get problem: %w", err)
	}
	return p, nil
}

// UpdateProblem applies a partial update; every field is validated before
// anything is written.
func (s *Store) UpdateProblem(ctx context.Context, id int64, p UpdateProblemParams) (*Problem, error) {
	var u updateSet
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return nil, invalid("title", "must not be empty")
		}
		u.set("title", title)
	}
	if p.Severity != nil {
		if err := checkEnum("severity", *p.Severity, Severities); err != nil {
			return nil, err
		}
		u.set("severity", *p.Severity)
	}
	if p.Status != nil {
		if err := checkEnum("status", *p.Status, ProblemStatuses); err != nil {
			return nil, err
		}
		u.expr(solvedAtExpr, *p.Status, *p.Status)
		u.set("status", *p.Status)
	}
	if p.Description != nil {
		u.set("description", nullableString(*p.Description))
	}
	if p.RootCause != nil {
		u.set("root_cause", nullableString(*p.RootCause))
	}
	if u.empty() {
		return s.GetProblem(ctx, id)
	}

	err := s.write(ctx, func(tx *sql.Tx, ix *indexBatch) error {
		res, err := u.exec(ctx, tx, "problems", id)
		if err != nil {
			return fmt.Errorf("memory: update problem: %w", err)
		}
		if err := affectedOrNotFound(res, "problem", id); err != nil {
			return err
		}
		return ix.put(ctx, "problem", id)
	})
	if err != nil {
		return nil, err
	}
	return s.GetProblem(ctx, id)
}

// ListProblems returns a project's problems, optionally filtered by status,
// most severe and then most recent first.
func (s *Store) ListProblems(ctx context.Context, projectID int64, statuses ...string) ([]Problem, error) {
	for _, st := range statuses {
		if err := checkEnum("status", st, ProblemStatuses); err != nil {
			return nil, err
		}
	}
	return listProblems(ctx, s.db, projectID, statuses...)
}

// ListOpenProblems returns problems that are open or under investigation.
func (s *Store) ListOpenProblems(ctx context.Context, projectID int64) ([]Problem, error) {
	return listProblems(ctx, s.db, projectID, "open", "investigating")
}

func listProblems(ctx context.Context, q dbtx, projectID int64, statuses ...string) ([]Problem, error) {
	query := problemSelect + " WHERE c.project_id = ?"
	args := []any{projectID}
	if len(statuses) > 0 {
		query += " AND pr.status IN (" + placeholders(len(statuses)) + ")"
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += " ORDER BY " + severityOrder + ", pr.created_at DESC, pr.id DESC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: list problems: %w", err)
	}
	defer rows.Close()

	out := []Problem{}
	for rows.Next() {
		p, err := scanProblem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// DeleteProblem removes a problem with its attempts and solution. Todos
// blocked by it and sessions focused on it are detached.
func (s *Store) DeleteProblem(ctx context.Context, id int64) error {
	return s.write(ctx, func(tx *sql.Tx, _ *indexBatch) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM problems WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("memory: delete problem: %w", err)
		}
		return affectedOrNotFound(res, "problem", id)
	})
}
