package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Project is the root of every other record.
type Project struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// UpdateProjectParams holds partial update fields for a project.
type UpdateProjectParams struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
}

const projectColumns = "id, name, COALESCE(description, ''), status, created_at, updated_at"

func scanProject(r rowScanner) (*Project, error) {
	var p Project
	if err := r.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProject inserts a project. Names are unique.
func (s *Store) CreateProject(ctx context.Context, name, description string) (*Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "must not be empty")
	}

	var id int64
	err := s.write(ctx, func(tx *sql.Tx, ix *indexBatch) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO projects (name, description) VALUES (?, ?)", name, nullableString(description))
		if isUniqueViolation(err) {
			return &ConflictError{Entity: "project", Reason: fmt.Sprintf("name %q already exists", name)}
		}
		if err != nil {
			return fmt.Errorf("memory: create project: %w", err)
		}
		id, _ = res.LastInsertId()
		return ix.put(ctx, "project", id)
	})
	if err != nil {
		return nil, err
	}
	return s.GetProject(ctx, id)
}

// GetProject returns a project by id.
func (s *Store) GetProject(ctx context.Context, id int64) (*Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, notFound("project", id)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get project: %w", err)
	}
	return p, nil
}

// GetProjectByName resolves a project by its unique name.
func (s *Store) GetProjectByName(ctx context.Context, name string) (*Project, error) {
	return projectByName(ctx, s.db, name)
}

func projectByName(ctx context.Context, q dbtx, name string) (*Project, error) {
	p, err := scanProject(q.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE name = ?", name))
	if err == sql.ErrNoRows {
		return nil, notFound("project", name)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get project %q: %w", name, err)
	}
	return p, nil
}

// ListProjects returns projects ordered by most recent activity. An empty
// status lists all of them.
func (s *Store) ListProjects(ctx context.Context, status string) ([]Project, error) {
	query := "SELECT " + projectColumns + " FROM projects"
	var args []any
	if status != "" {
		if err := checkEnum("status", status, ProjectStatuses); err != nil {
			return nil, err
		}
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY updated_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: list projects: %w", err)
	}
	defer rows.Close()

	out := []Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpdateProject applies a partial update. Nothing is written when any field
// is invalid.
func (s *Store) UpdateProject(ctx context.Context, id int64, p UpdateProjectParams) (*Project, error) {
	var u updateSet
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, invalid("name", "must not be empty")
		}
		u.set("name", name)
	}
	if p.Status != nil {
		if err := checkEnum("status", *p.Status, ProjectStatuses); err != nil {
			return nil, err
		}
		u.set("status", *p.Status)
	}
	if p.Description != nil {
		u.set("description", nullableString(*p.Description))
	}
	if u.empty() {
		return s.GetProject(ctx, id)
	}
	u.expr("updated_at = datetime('now')")

	err := s.write(ctx, func(tx *sql.Tx, ix *indexBatch) error {
		res, err := u.exec(ctx, tx, "projects", id)
		if isUniqueViolation(err) {
			return &ConflictError{Entity: "project", Reason: fmt.Sprintf("name %q already exists", *p.Name)}
		}
		if err != nil {
			return fmt.Errorf("memory: update project: %w", err)
		}
		if err := affectedOrNotFound(res, "project", id); err != nil {
			return err
		}
		return ix.put(ctx, "project", id)
	})
	if err != nil {
		return nil, err
	}
	return s.GetProject(ctx, id)
}

// DeleteProject removes a project and, through the schema's cascades,
// everything it owns. Index units for removed rows are evicted as well.
func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	return s.write(ctx, func(tx *sql.Tx, _ *indexBatch) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("memory: delete project: %w", err)
		}
		return affectedOrNotFound(res, "project", id)
	})
}

// touchProject bumps updated_at so ListProjects reflects recent activity.
func touchProject(ctx context.Context, tx *sql.Tx, projectID int64) error {
	_, err := tx.ExecContext(ctx, "UPDATE projects SET updated_at = datetime('now') WHERE id = ?", projectID)
	return err
}
