package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// secretMask replaces the value of a secret variable unless the caller
// asks to reveal it.
const secretMask = "********"

// ─── Variables ───────────────────────────────────────────────────────────────

// Variable is a named project value: a server address, an endpoint, a
// credential. Variables are never indexed for search.
type Variable struct {
	ID          int64  `json:"id"`
	ProjectID   int64  `json:"project_id"`
	Name        string `json:"name"`
	Value       string `json:"value,omitempty"`
	Category    string `json:"category"`
	IsSecret    bool   `json:"is_secret"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// SetVariableParams holds the input for creating a variable.
type SetVariableParams struct {
	ProjectID   int64  `json:"project_id"`
	Name        string `json:"name"`
	Value       string `json:"value,omitempty"`
	Category    string `json:"category,omitempty"`
	IsSecret    bool   `json:"is_secret,omitempty"`
	Description string `json:"description,omitempty"`
}

// UpdateVariableParams holds partial update fields for a variable.
type UpdateVariableParams struct {
	Name        *string `json:"name,omitempty"`
	Value       *string `json:"value,omitempty"`
	Category    *string `json:"category,omitempty"`
	IsSecret    *bool   `json:"is_secret,omitempty"`
	Description *string `json:"description,omitempty"`
}

const variableColumns = "id, project_id, name, COALESCE(value, ''), category, is_secret, COALESCE(description, ''), created_at, updated_at"

func scanVariable(r rowScanner, reveal bool) (*Variable, error) {
	var v Variable
	if err := r.Scan(&v.ID, &v.ProjectID, &v.Name, &v.Value, &v.Category, &v.IsSecret,
		&v.Description, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	if v.IsSecret && !reveal && v.Value != "" {
		v.Value = secretMask
	}
	return &v, nil
}

// CreateVariable adds a variable to a project. Names are unique per project.
func (s *Store) CreateVariable(ctx context.Context, p SetVariableParams) (*Variable, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, invalid("name", "must not be empty")
	}
	p.Category = enumOr(p.Category, "custom")
	if err := checkEnum("category", p.Category, VariableCategories); err != nil {
		return nil, err
	}

	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := mustExist(ctx, tx, "projects", "project", p.ProjectID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO project_variables (project_id, name, value, category, is_secret, description)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.ProjectID, p.Name, nullableString(p.Value), p.Category, p.IsSecret, nullableString(p.Description),
		)
		if isUniqueViolation(err) {
			return &ConflictError{Entity: "variable", Reason: fmt.Sprintf("name %q already exists in project %d", p.Name, p.ProjectID)}
		}
		if err != nil {
			return fmt.Errorf("memory: create variable: %w", err)
		}
		id, _ = res.LastInsertId()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetVariable(ctx, id, false)
}

// GetVariable returns a variable. Secret values are masked unless reveal.
func (s *Store) GetVariable(ctx context.Context, id int64, reveal bool) (*Variable, error) {
	v, err := scanVariable(s.db.QueryRowContext(ctx, "SELECT "+variableColumns+" FROM project_variables WHERE id = ?", id), reveal)
	if err == sql.ErrNoRows {
		return nil, notFound("variable", id)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get variable: %w", err)
	}
	return v, nil
}

// ListVariables returns a project's variables by category and name. An
// empty category matches all.
func (s *Store) ListVariables(ctx context.Context, projectID int64, category string, reveal bool) ([]Variable, error) {
	query := "SELECT " + variableColumns + " FROM project_variables WHERE project_id = ?"
	args := []any{projectID}
	if category != "" {
		if err := checkEnum("category", category, VariableCategories); err != nil {
			return nil, err
		}
		query += " AND category = ?"
		args = append(args, category)
	}
	query += " ORDER BY category, name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: list variables: %w", err)
	}
	defer rows.Close()

	out := []Variable{}
	for rows.Next() {
		v, err := scanVariable(rows, reveal)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// UpdateVariable applies a partial update.
func (s *Store) UpdateVariable(ctx context.Context, id int64, p UpdateVariableParams) (*Variable, error) {
	var u updateSet
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, invalid("name", "must not be empty")
		}
		u.set("name", name)
	}
	if p.Category != nil {
		if err := checkEnum("category", *p.Category, VariableCategories); err != nil {
			return nil, err
		}
		u.set("category", *p.Category)
	}
	if p.Value != nil {
		u.set("value", nullableString(*p.Value))
	}
	if p.IsSecret != nil {
		u.set("is_secret", *p.IsSecret)
	}
	if p.Description != nil {
		u.set("description", nullableString(*p.Description))
	}
	if u.empty() {
		return s.GetVariable(ctx, id, false)
	}
	u.expr("updated_at = datetime('now')")

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := u.exec(ctx, tx, "project_variables", id)
		if isUniqueViolation(err) {
			return &ConflictError{Entity: "variable", Reason: fmt.Sprintf("name %q already exists", derefString(p.Name))}
		}
		if err != nil {
			return fmt.Errorf("memory: update variable: %w", err)
		}
		return affectedOrNotFound(res, "variable", id)
	})
	if err != nil {
		return nil, err
	}
	return s.GetVariable(ctx, id, false)
}

// DeleteVariable removes a variable.
func (s *Store) DeleteVariable(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM project_variables WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("memory: delete variable: %w", err)
		}
		return affectedOrNotFound(res, "variable", id)
	})
}

// ─── Methods ─────────────────────────────────────────────────────────────────

// Method is a project's standard way of doing something: an auth flow, a
// deploy procedure, a convention. Methods are searchable.
type Method struct {
	ID                 int64    `json:"id"`
	ProjectID          int64    `json:"project_id"`
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	Category           string   `json:"category"`
	Steps              []string `json:"steps"`
	CodeExample        string   `json:"code_example,omitempty"`
	RelatedComponentID *int64   `json:"related_component_id,omitempty"`
	CreatedAt          string   `json:"created_at"`
	UpdatedAt          string   `json:"updated_at"`
}

// CreateMethodParams holds the input for recording a method.
type CreateMethodParams struct {
	ProjectID          int64    `json:"project_id"`
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	Category           string   `json:"category,omitempty"`
	Steps              []string `json:"steps,omitempty"`
	CodeExample        string   `json:"code_example,omitempty"`
	RelatedComponentID *int64   `json:"related_component_id,omitempty"`
}

// UpdateMethodParams holds partial update fields for a method.
// ClearComponent detaches the related component.
type UpdateMethodParams struct {
	Name               *string   `json:"name,omitempty"`
	Description        *string   `json:"description,omitempty"`
	Category           *string   `json:"category,omitempty"`
	Steps              *[]string `json:"steps,omitempty"`
	CodeExample        *string   `json:"code_example,omitempty"`
	RelatedComponentID *int64    `json:"related_component_id,omitempty"`
	ClearComponent     bool      `json:"clear_component,omitempty"`
}

const methodColumns = `id, project_id, name, description, category, steps, COALESCE(code_example, ''),
	related_component_id, created_at, updated_at`

func scanMethod(r rowScanner) (*Method, error) {
	var m Method
	var steps string
	var comp sql.NullInt64
	if err := r.Scan(&m.ID, &m.ProjectID, &m.Name, &m.Description, &m.Category, &steps,
		&m.CodeExample, &comp, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Steps = orEmpty(decodeJSON[[]string](steps))
	m.RelatedComponentID = nullInt(comp)
	return &m, nil
}

// CreateMethod records a method. A related component must belong to the
// same project.
func (s *Store) CreateMethod(ctx context.Context, p CreateMethodParams) (*Method, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	if p.Name == "" {
		return nil, invalid("name", "must not be empty")
	}
	if p.Description == "" {
		return nil, invalid("description", "must not be empty")
	}
	p.Category = enumOr(p.Category, "other")
	if err := checkEnum("category", p.Category, MethodCategories); err != nil {
		return nil, err
	}

	var id int64
	err := s.write(ctx, func(tx *sql.Tx, ix *indexBatch) error {
		if err := mustExist(ctx, tx, "projects", "project", p.ProjectID); err != nil {
			return err
		}
		if p.RelatedComponentID != nil {
			if err := componentInProject(ctx, tx, *p.RelatedComponentID, p.ProjectID, "related_component_id"); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO project_methods (project_id, name, description, category, steps, code_example, related_component_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ProjectID, p.Name, p.Description, p.Category, encodeJSON(orEmpty(p.Steps)),
			nullableString(p.CodeExample), p.RelatedComponentID,
		)
		if isUniqueViolation(err) {
			return &ConflictError{Entity: "method", Reason: fmt.Sprintf("name %q already exists in project %d", p.Name, p.ProjectID)}
		}
		if err != nil {
			return fmt.Errorf("memory: create method: %w", err)
		}
		id, _ = res.LastInsertId()
		return ix.put(ctx, "method", id)
	})
	if err != nil {
		return nil, err
	}
	return s.GetMethod(ctx, id)
}

// GetMethod returns a method by id.
func (s *Store) GetMethod(ctx context.Context, id int64) (*Method, error) {
	m, err := scanMethod(s.db.QueryRowContext(ctx, "SELECT "+methodColumns+" FROM project_methods WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, notFound("method", id)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get method: %w", err)
	}
	return m, nil
}

// ListMethods returns a project's methods by category and name.
func (s *Store) ListMethods(ctx context.Context, projectID int64, category string) ([]Method, error) {
	query := "SELECT " + methodColumns + " FROM project_methods WHERE project_id = ?"
	args := []any{projectID}
	if category != "" {
		if err := checkEnum("category", category, MethodCategories); err != nil {
			return nil, err
		}
		query += " AND category = ?"
		args = append(args, category)
	}
	query += " ORDER BY category, name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: list methods: %w", err)
	}
	defer rows.Close()

	out := []Method{}
	for rows.Next() {
		m, err := scanMethod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// UpdateMethod applies a partial update; every field is validated before
// anything is written.
func (s *Store) UpdateMethod(ctx context.Context, id int64, p UpdateMethodParams) (*Method, error) {
	if p.ClearComponent && p.RelatedComponentID != nil {
		return nil, invalid("related_component_id", "cannot set and clear in one update")
	}
	var u updateSet
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, invalid("name", "must not be empty")
		}
		u.set("name", name)
	}
	if p.Description != nil {
		desc := strings.TrimSpace(*p.Description)
		if desc == "" {
			return nil, invalid("description", "must not be empty")
		}
		u.set("description", desc)
	}
	if p.Category != nil {
		if err := checkEnum("category", *p.Category, MethodCategories); err != nil {
			return nil, err
		}
		u.set("category", *p.Category)
	}
	if p.Steps != nil {
		u.set("steps", encodeJSON(orEmpty(*p.Steps)))
	}
	if p.CodeExample != nil {
		u.set("code_example", nullableString(*p.CodeExample))
	}
	if p.ClearComponent {
		u.set("related_component_id", nil)
	}
	if p.RelatedComponentID != nil {
		u.set("related_component_id", *p.RelatedComponentID)
	}
	if u.empty() {
		return s.GetMethod(ctx, id)
	}
	u.expr("updated_at = datetime('now')")

	err := s.write(ctx, func(tx *sql.Tx, ix *indexBatch) error {
		if p.RelatedComponentID != nil {
			var projectID int64
			err := tx.QueryRowContext(ctx, "SELECT project_id FROM project_methods WHERE id = ?", id).Scan(&projectID)
			if err == sql.ErrNoRows {
				return notFound("method", id)
			}
			if err != nil {
				return fmt.Errorf("memory: lookup method: %w", err)
			}
			if err := componentInProject(ctx, tx, *p.RelatedComponentID, projectID, "related_component_id"); err != nil {
				return err
			}
		}
		res, err := u.exec(ctx, tx, "project_methods", id)
		if isUniqueViolation(err) {
			return &ConflictError{Entity: "method", Reason: fmt.Sprintf("name %q already exists", derefString(p.Name))}
		}
		if err != nil {
			return fmt.Errorf("memory: update method: %w", err)
		}
		if err := affectedOrNotFound(res, "method", id); err != nil {
			return err
		}
		return ix.put(ctx, "method", id)
	})
	if err != nil {
		return nil, err
	}
	return s.GetMethod(ctx, id)
}

// DeleteMethod removes a method and its index unit.
func (s *Store) DeleteMethod(ctx context.Context, id int64) error {
	return s.write(ctx, func(tx *sql.Tx, _ *indexBatch) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM project_methods WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("memory: delete method: %w", err)
		}
		return affectedOrNotFound(res, "method", id)
	})
}

// componentInProject returns NotFoundError for a missing component and
// ValidationError when it belongs to another project.
func componentInProject(ctx context.Context, q dbtx, componentID, projectID int64, field string) error {
	owner, err := componentProjectID(ctx, q, componentID)
	if err != nil {
		return err
	}
	if owner != projectID {
		return invalid(field, "component %d belongs to project %d, not %d", componentID, owner, projectID)
	}
	return nil
}
