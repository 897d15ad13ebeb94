package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Todo is a unit of pending work in a project. CompletedAt is stamped once
// on the transition into done.
type Todo struct {
	ID                 int64   `json:"id"`
	ProjectID          int64   `json:"project_id"`
	ComponentID        *int64  `json:"component_id,omitempty"`
	Title              string  `json:"title"`
	Description        string  `json:"description,omitempty"`
	Priority           string  `json:"priority"`
	Status             string  `json:"status"`
	DueDate            string  `json:"due_date,omitempty"`
	BlockedByProblemID *int64  `json:"blocked_by_problem_id,omitempty"`
	CreatedAt          string  `json:"created_at"`
	CompletedAt        *string `json:"completed_at,omitempty"`
}

// AddTodoParams holds the input for adding a todo.
type AddTodoParams struct {
	ProjectID          int64  `json:"project_id"`
	ComponentID        *int64 `json:"component_id,omitempty"`
	Title              string `json:"title"`
	Description        string `json:"description,omitempty"`
	Priority           string `json:"priority,omitempty"`
	DueDate            string `json:"due_date,omitempty"`
	BlockedByProblemID *int64 `json:"blocked_by_problem_id,omitempty"`
}

// UpdateTodoParams holds partial update fields for a todo.
type UpdateTodoParams struct {
	Title              *string `json:"title,omitempty"`
	Description        *string `json:"description,omitempty"`
	Priority           *string `json:"priority,omitempty"`
	Status             *string `json:"status,omitempty"`
	DueDate            *string `json:"due_date,omitempty"`
	BlockedByProblemID *int64  `json:"blocked_by_problem_id,omitempty"`
	ClearBlocked       bool    `json:"clear_blocked,omitempty"`
}

// TodoFilter narrows ListTodos. Empty slices match everything; closed todos
// (done, cancelled) are skipped unless IncludeClosed is set or Statuses
// names them.
type TodoFilter struct {
	Statuses      []string
	Priorities    []string
	IncludeClosed bool
	Limit         int
}

const todoColumns = `id, project_id, component_id, title, COALESCE(description, ''), priority, status,
	COALESCE(due_date, ''), blocked_by_problem_id, created_at, completed_at`

// todoOrder sorts by priority (critical first), then oldest first.
const todoOrder = ` ORDER BY CASE priority WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END, created_at, id`

const completedAtExpr = `completed_at = CASE
	WHEN ? = 'done' AND status <> 'done' THEN datetime('now')
	WHEN ? <> 'done' THEN NULL
	ELSE completed_at END`

func scanTodo(r rowScanner) (*Todo, error) {
	var t Todo
	var comp, blocked sql.NullInt64
	var completed sql.NullString
	if err := r.Scan(&t.ID, &t.ProjectID, &comp, &t.Title, &t.Description, &t.Priority, &t.Status,
		&t.DueDate, &blocked, &t.CreatedAt, &completed); err != nil {
		return nil, err
	}
	t.ComponentID = nullInt(comp)
	t.BlockedByProblemID = nullInt(blocked)
	t.CompletedAt = nullString(completed)
	return &t, nil
}

// AddTodo creates a pending todo. A component or blocking problem, when
// given, must belong to the same project.
func (s *Store) AddTodo(ctx context.Context, p AddTodoParams) (*Todo, error) {
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		return nil, invalid("title", "must not be empty")
	}
	p.Priority = enumOr(p.Priority, "medium")
	if err := checkEnum("priority", p.Priority, Priorities); err != nil {
		return nil, err
	}

	var id int64
	err := s.write(ctx, func(tx *sql.Tx, ix *indexBatch) error {
		if err := mustExist(ctx, tx, "projects", "project", p.ProjectID); err != nil {
			return err
		}
		if err := checkProjectRefs(ctx, tx, p.ProjectID, p.ComponentID, p.BlockedByProblemID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO todos (project_id, component_id, title, description, priority, due_date, blocked_by_problem_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ProjectID, p.ComponentID, p.Title, nullableString(p.Description), p.Priority,
			nullableString(p.DueDate), p.BlockedByProblemID,
		)
		if err != nil {
			return fmt.Errorf("memory: add todo: %w", err)
		}
		id, _ = res.LastInsertId()
		if err := touchProject(ctx, tx, p.ProjectID); err != nil {
			return err
		}
		return ix.put(ctx, "todo", id)
	})
	if err != nil {
		return nil, err
	}
	return s.GetTodo(ctx, id)
}

// GetTodo returns a todo by id.
func (s *Store) GetTodo(ctx context.Context, id int64) (*Todo, error) {
	t, err := scanTodo(s.db.QueryRowContext(ctx, "SELECT "+todoColumns+" FROM todos WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, notFound("todo", id)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get todo: %w", err)
	}
	return t, nil
}

// UpdateTodo applies a partial update, validating every field first.
func (s *Store) UpdateTodo(ctx context.Context, id int64, p UpdateTodoParams) (*Todo, error) {
	var u updateSet
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return nil, invalid("title", "must not be empty")
		}
		u.set("title", title)
	}
	if p.Priority != nil {
		if err := checkEnum("priority", *p.Priority, Priorities); err != nil {
			return nil, err
		}
		u.set("priority", *p.Priority)
	}
	if p.Status != nil {
		if err := checkEnum("status", *p.Status, TodoStatuses); err != nil {
			return nil, err
		}
		u.expr(completedAtExpr, *p.Status, *p.Status)
		u.set("status", *p.Status)
	}
	if p.ClearBlocked && p.BlockedByProblemID != nil {
		return nil, invalid("blocked_by_problem_id", "cannot both set and clear the blocker")
	}
	if p.Description != nil {
		u.set("description", nullableString(*p.Description))
	}
	if p.DueDate != nil {
		u.set("due_date", nullableString(*p.DueDate))
	}
	if p.ClearBlocked {
		u.set("blocked_by_problem_id", nil)
	}

	err := s.write(ctx, func(tx *sql.Tx, ix *indexBatch) error {
		var projectID int64
		if err := tx.QueryRowContext(ctx, "SELECT project_id FROM todos WHERE id = ?", id).Scan(&projectID); err != nil {
			if err == sql.ErrNoRows {
				return notFound("todo", id)
			}
			return fmt.Errorf("memory: lookup todo: %w", err)
		}
		if p.BlockedByProblemID != nil {
			if err := checkProjectRefs(ctx, tx, projectID, nil, p.BlockedByProblemID); err != nil {
				return err
			}
			u.set("blocked_by_problem_id", *p.BlockedByProblemID)
		}
		if u.empty() {
			return nil
		}
		if _, err := u.exec(ctx, tx, "todos", id); err != nil {
			return fmt.Errorf("memory: update todo: %w", err)
		}
		return ix.put(ctx, "todo", id)
	})
	if err != nil {
		return nil, err
	}
	return s.GetTodo(ctx, id)
}

// ListTodos returns a project's todos, highest priority first.
func (s *Store) ListTodos(ctx context.Context, projectID int64, f TodoFilter) ([]Todo, error) {
	for _, st := range f.Statuses {
		if err := checkEnum("status", st, TodoStatuses); err != nil {
			return nil, err
		}
	}
	for _, pr := range f.Priorities {
		if err := checkEnum("priority", pr, Priorities); err != nil {
			return nil, err
		}
	}
	return listTodos(ctx, s.db, projectID, f)
}

func listTodos(ctx context.Context, q dbtx, projectID int64, f TodoFilter) ([]Todo, error) {
	query := "SELECT " + todoColumns + " FROM todos WHERE project_id = ?"
	args := []any{projectID}
	if len(f.Statuses) > 0 {
		query += " AND status IN (" + placeholders(len(f.Statuses)) + ")"
		for _, st := range f.Statuses {
			args = append(args, st)
		}
	} else if !f.IncludeClosed {
		query += " AND status NOT IN ('done', 'cancelled')"
	}
	if len(f.Priorities) > 0 {
		query += " AND priority IN (" + placeholders(len(f.Priorities)) + ")"
		for _, pr := range f.Priorities {
			args = append(args, pr)
		}
	}
	query += todoOrder
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: list todos: %w", err)
	}
	defer rows.Close()

	out := []Todo{}
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// DeleteTodo removes a todo.
func (s *Store) DeleteTodo(ctx context.Context, id int64) error {
	return s.write(ctx, func(tx *sql.Tx, _ *indexBatch) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM todos WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("memory: delete todo: %w", err)
		}
		return affectedOrNotFound(res, "todo", id)
	})
}

func checkProjectRefs(ctx context.Context, q dbtx, projectID int64, componentID, problemID *int64) error {
	if componentID != nil {
		owner, err := componentProjectID(ctx, q, *componentID)
		if err != nil {
			return err
		}
		if owner != projectID {
			return invalid("component_id", "component %d belongs to another project", *componentID)
		}
	}
	if problemID != nil {
		problem, err := getProblem(ctx, q, *problemID)
		if err != nil {
			return err
		}
		if problem.ProjectID != projectID {
			return invalid("blocked_by_problem_id", "problem %d belongs to another project", *problemID)
		}
	}
	return nil
}
