package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Change records one modification to a component: which field moved from
// which value to which, and why.
type Change struct {
	ID            int64  `json:"id"`
	ComponentID   int64  `json:"component_id"`
	ComponentName string `json:"component_name"`
	ProjectID     int64  `json:"project_id"`
	FieldName     string `json:"field_name"`
	OldValue      string `json:"old_value,omitempty"`
	NewValue      string `json:"new_value,omitempty"`
	ChangeType    string `json:"change_type"`
	Reason        string `json:"reason,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// LogChangeParams holds the input for logging a change.
type LogChangeParams struct {
	ComponentID int64  `json:"component_id"`
	FieldName   string `json:"field_name"`
	OldValue    string `json:"old_value,omitempty"`
	NewValue    string `json:"new_value,omitempty"`
	ChangeType  string `json:"change_type,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

const changeSelect = `
	SELECT ch.id, ch.component_id, c.name, c.project_id, ch.field_name,
	       COALESCE(ch.old_value, ''), COALESCE(ch.new_value, ''), ch.change_type,
	       COALESCE(ch.reason, ''), ch.created_at
	FROM changes ch JOIN components c ON c.id = ch.component_id`

func scanChange(r rowScanner) (*Change, error) {
	var c Change
	if err := r.Scan(&c.ID, &c.ComponentID, &c.ComponentName, &c.ProjectID, &c.FieldName,
		&c.OldValue, &c.NewValue, &c.ChangeType, &c.Reason, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// LogChange appends a change to a component's history.
func (s *Store) LogChange(ctx context.Context, p LogChangeParams) (*Change, error) {
	p.FieldName = strings.TrimSpace(p.FieldName)
	if p.FieldName == "" {
		return nil, invalid("field_name", "must not be empty")
	}
	p.ChangeType = enumOr(p.ChangeType, "other")
	if err := checkEnum("change_type", p.ChangeType, ChangeTypes); err != nil {
		return nil, err
	}

	var id int64
	err := s.write(ctx, func(tx *sql.Tx, ix *indexBatch) error {
		projectID, err := componentProjectID(ctx, tx, p.ComponentID)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO changes (component_id, field_name, old_value, new_value, change_type, reason)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.ComponentID, p.FieldName, nullableString(p.OldValue), nullableString(p.NewValue),
			p.ChangeType, nullableString(p.Reason),
		)
		if err != nil {
			return fmt.Errorf("memory: log change: %w", err)
		}
		id, _ = res.LastInsertId()
		if err := touchProject(ctx, tx, projectID); err != nil {
			return err
		}
		return ix.put(ctx, "change", id)
	})
	if err != nil {
		return nil, err
	}
	return scanChange(s.db.QueryRowContext(ctx, changeSelect+" WHERE ch.id = ?", id))
}

// RecentChanges returns a project's changes newer than window, newest first.
func (s *Store) RecentChanges(ctx context.Context, projectID int64, window time.Duration, limit int) ([]Change, error) {
	if window <= 0 {
		window = s.cfg.RecencyWindow
	}
	return recentChanges(ctx, s.db, projectID, window, limit)
}

func recentChanges(ctx context.Context, q dbtx, projectID int64, window time.Duration, limit int) ([]Change, error) {
	query := changeSelect + " WHERE c.project_id = ? AND ch.created_at >= ? ORDER BY ch.created_at DESC, ch.id DESC"
	args := []any{projectID, since(window)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return queryChanges(ctx, q, query, args...)
}

// ComponentChanges returns the full history of one component, newest first.
func (s *Store) ComponentChanges(ctx context.Context, componentID int64, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = 50
	}
	return queryChanges(ctx, s.db,
		changeSelect+" WHERE ch.component_id = ? ORDER BY ch.created_at DESC, ch.id DESC LIMIT ?", componentID, limit)
}

func queryChanges(ctx context.Context, q dbtx, query string, args ...any) ([]Change, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: query changes: %w", err)
	}
	defer rows.Close()

	out := []Change{}
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// GetChange returns one change.
func (s *Store) GetChange(ctx context.Context, id int64) (*Change, error) {
	c, err := scanChange(s.db.QueryRowContext(ctx, changeSelect+" WHERE ch.id = ?", id))
	if err == sql.ErrNoRows {
		return nil, notFound("change", id)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get change: %w", err)
	}
	return c, nil
}

// DeleteChange removes one entry from a component's history.
func (s *Store) DeleteChange(ctx context.Context, id int64) error {
	return s.write(ctx, func(tx *sql.Tx, _ *indexBatch) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM changes WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("memory: delete change: %w", err)
		}
		return affectedOrNotFound(res, "change", id)
	})
}
