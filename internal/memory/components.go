package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Component is a named part of a project. Components nest through an
// optional parent; the parent chain is always acyclic.
type Component struct {
	ID                int64  `json:"id"`
	ProjectID         int64  `json:"project_id"`
	ParentComponentID *int64 `json:"parent_component_id,omitempty"`
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	Status            string `json:"status"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

// CreateComponentParams holds the input for creating a component.
type CreateComponentParams struct {
	ProjectID         int64  `json:"project_id"`
	ParentComponentID *int64 `json:"parent_component_id,omitempty"`
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	Status            string `json:"status,omitempty"`
}

// UpdateComponentParams holds partial update fields for a component.
// ClearParent detaches the component from its parent.
type UpdateComponentParams struct {
	Name              *string `json:"name,omitempty"`
	Description       *string `json:"description,omitempty"`
	Status            *string `json:"status,omitempty"`
	ParentComponentID *int64  `json:"parent_component_id,omitempty"`
	ClearParent       bool    `json:"clear_parent,omitempty"`
}

const componentColumns = "id, project_id, parent_component_id, name, COALESCE(description, ''), status, created_at, updated_at"

func scanComponent(r rowScanner) (*Component, error) {
	var c Component
	var parent sql.NullInt64
	if err := r.Scan(&c.ID, &c.ProjectID, &parent, &c.Name, &c.Description, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.ParentComponentID = nullInt(parent)
	return &c, nil
}

// CreateComponent inserts a component under a project, optionally nested
// under a parent of the same project.
func (s *Store) CreateComponent(ctx context.Context, p CreateComponentParams) (*Component, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, invalid("name", "must not be empty")
	}
	p.Status = enumOr(p.Status, "in_progress")
	if err := checkEnum("status", p.Status, ComponentStatuses); err != nil {
		return nil, err
	}

	var id int64
	err := s.write(ctx, func(tx *sql.Tx, ix *indexBatch) error {
		if err := mustExist(ctx, tx, "projects", "project", p.ProjectID); err != nil {
			return err
		}
		if p.ParentComponentID != nil {
			parentProject, err := componentProjectID(ctx, tx, *p.ParentComponentID)
			if err != nil {
				return err
			}
			if parentProject != p.ProjectID {
				return invalid("parent_component_id", "parent %d belongs to another project", *p.ParentComponentID)
			}
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO components (project_id, parent_component_id, name, description, status)
			VALUES (?, ?, ?, ?, ?)`,
			p.ProjectID, p.ParentComponentID, p.Name, nullableString(p.Description), p.Status,
		)
		if isUniqueViolation(err) {
			return &ConflictError{Entity: "component", Reason: fmt.Sprintf("name %q already exists in project %d", p.Name, p.ProjectID)}
		}
		if err != nil {
			return fmt.Errorf("memory: create component: %w", err)
		}
		id, _ = res.LastInsertId()
		if err := touchProject(ctx, tx, p.ProjectID); err != nil {
			return err
		}
		return ix.put(ctx, "component", id)
	})
	if err != nil {
		return nil, err
	}
	return s.GetComponent(ctx, id)
}

// GetComponent returns a component by id.
func (s *Store) GetComponent(ctx context.Context, id int64) (*Component, error) {
	c, err := scanComponent(s.db.QueryRowContext(ctx, "SELECT "+componentColumns+" FROM components WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, notFound("component", id)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get component: %w", err)
	}
	return c, nil
}

// GetComponentByName resolves a component by name within a project.
func (s *Store) GetComponentByName(ctx context.Context, projectID int64, name string) (*Component, error) {
	c, err := scanComponent(s.db.QueryRowContext(ctx,
		"SELECT "+componentColumns+" FROM components WHERE project_id = ? AND name = ?", projectID, name))
	if err == sql.ErrNoRows {
		return nil, notFound("component", name)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get component %q: %w", name, err)
	}
	return c, nil
}

// ListComponents returns a project's components ordered by name.
func (s *Store) ListComponents(ctx context.Context, projectID int64) ([]Component, error) {
	return listComponents(ctx, s.db, projectID)
}

func listComponents(ctx context.Context, q dbtx, projectID int64) ([]Component, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+componentColumns+" FROM components WHERE project_id = ? ORDER BY name", projectID)
	if err != nil {
		return nil, fmt.Errorf("memory: list components: %w", err)
	}
	defer rows.Close()

	out := []Component{}
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpdateComponent applies a partial update. Re-parenting is rejected with a
// ValidationError when the new parent is in another project or when the
// parent chain would loop back to the component itself.
func (s *Store) UpdateComponent(ctx context.Context, id int64, p UpdateComponentParams) (*Component, error) {
	var u updateSet
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, invalid("name", "must not be empty")
		}
		u.set("name", name)
	}
	if p.Status != nil {
		if err := checkEnum("status", *p.Status, ComponentStatuses); err != nil {
			return nil, err
		}
		u.set("status", *p.Status)
	}
	if p.Description != nil {
		u.set("description", nullableString(*p.Description))
	}
	if p.ClearParent && p.ParentComponentID != nil {
		return nil, invalid("parent_component_id", "cannot both set and clear the parent")
	}
	if p.ClearParent {
		u.set("parent_component_id", nil)
	}

	err := s.write(ctx, func(tx *sql.Tx, ix *indexBatch) error {
		projectID, err := componentProjectID(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.ParentComponentID != nil {
			if err := checkParentChain(ctx, tx, id, projectID, *p.ParentComponentID); err != nil {
				return err
			}
			u.set("parent_component_id", *p.ParentComponentID)
		}
		if u.empty() {
			return nil
		}
		u.expr("updated_at = datetime('now')")
		if _, err := u.exec(ctx, tx, "components", id); err != nil {
			if isUniqueViolation(err) {
				return &ConflictError{Entity: "component", Reason: "name already exists in project"}
			}
			return fmt.Errorf("memory: update component: %w", err)
		}
		return ix.put(ctx, "component", id)
	})
	if err != nil {
		return nil, err
	}
	return s.GetComponent(ctx, id)
}

// checkParentChain walks upward from the proposed parent. Reaching id means
// the new edge would close a cycle.
func checkParentChain(ctx context.Context, q dbtx, id, projectID, parentID int64) error {
	if parentID == id {
		return invalid("parent_component_id", "component %d cannot be its own parent", id)
	}
	parentProject, err := componentProjectID(ctx, q, parentID)
	if err != nil {
		return err
	}
	if parentProject != projectID {
		return invalid("parent_component_id", "parent %d belongs to another project", parentID)
	}

	seen := map[int64]bool{}
	cur := sql.NullInt64{Int64: parentID, Valid: true}
	for cur.Valid {
		if cur.Int64 == id {
			return invalid("parent_component_id", "parent %d would create a cycle", parentID)
		}
		if seen[cur.Int64] {
			break
		}
		seen[cur.Int64] = true
		if err := q.QueryRowContext(ctx,
			"SELECT parent_component_id FROM components WHERE id = ?", cur.Int64,
		).Scan(&cur); err != nil {
			if err == sql.ErrNoRows {
				break
			}
			return fmt.Errorf("memory: walk component chain: %w", err)
		}
	}
	return nil
}

// DeleteComponent removes a component. Its changes and problems cascade;
// children, todos, learnings and session focus are detached.
func (s *Store) DeleteComponent(ctx context.Context, id int64) error {
	return s.write(ctx, func(tx *sql.Tx, _ *indexBatch) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM components WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("memory: delete component: %w", err)
		}
		return affectedOrNotFound(res, "component", id)
	})
}

func componentProjectID(ctx context.Context, q dbtx, id int64) (int64, error) {
	var projectID int64
	err := q.QueryRowContext(ctx, "SELECT project_id FROM components WHERE id = ?", id).Scan(&projectID)
	if err == sql.ErrNoRows {
		return 0, notFound("component", id)
	}
	if err != nil {
		return 0, fmt.Errorf("memory: lookup component: %w", err)
	}
	return projectID, nil
}
