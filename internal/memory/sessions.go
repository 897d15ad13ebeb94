package memory

import (
	"context"
	"database/sql"
	"fmt"
)

// Session is a bounded period of work on a project. A project has at most
// one active session (EndedAt nil) at a time.
type Session struct {
	ID               int64    `json:"id"`
	ProjectID        int64    `json:"project_id"`
	FocusComponentID *int64   `json:"focus_component_id,omitempty"`
	FocusProblemID   *int64   `json:"focus_problem_id,omitempty"`
	StartedAt        string   `json:"started_at"`
	EndedAt          *string  `json:"ended_at,omitempty"`
	Summary          string   `json:"summary,omitempty"`
	Outcomes         []string `json:"outcomes"`
	DurationMinutes  *int64   `json:"duration_minutes,omitempty"`
}

const sessionColumns = `id, project_id, focus_component_id, focus_problem_id, started_at, ended_at,
	COALESCE(summary, ''), outcomes, duration_minutes`

func scanSession(r rowScanner) (*Session, error) {
	var s Session
	var comp, prob, dur sql.NullInt64
	var ended sql.NullString
	var outcomes string
	if err := r.Scan(&s.ID, &s.ProjectID, &comp, &prob, &s.StartedAt, &ended, &s.Summary, &outcomes, &dur); err != nil {
		return nil, err
	}
	s.FocusComponentID = nullInt(comp)
	s.FocusProblemID = nullInt(prob)
	s.EndedAt = nullString(ended)
	s.DurationMinutes = nullInt(dur)
	s.Outcomes = orEmpty(decodeJSON[[]string](outcomes))
	return &s, nil
}

// StartSession opens a work session. It fails with ConflictError while
// another session of the project is still active.
func (s *Store) StartSession(ctx context.Context, projectID int64, focusComponentID, focusProblemID *int64) (*Session, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := mustExist(ctx, tx, "projects", "project", projectID); err != nil {
			return err
		}
		if err := checkProjectRefs(ctx, tx, projectID, focusComponentID, focusProblemID); err != nil {
			return err
		}
		var active int64
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM sessions WHERE project_id = ? AND ended_at IS NULL", projectID).Scan(&active)
		if err == nil {
			return &ConflictError{Entity: "session", Reason: fmt.Sprintf("session %d is still active", active)}
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("memory: lookup active session: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO sessions (project_id, focus_component_id, focus_problem_id) VALUES (?, ?, ?)",
			projectID, focusComponentID, focusProblemID,
		)
		if err != nil {
			return fmt.Errorf("memory: start session: %w", err)
		}
		id, _ = res.LastInsertId()
		return touchProject(ctx, tx, projectID)
	})
	if err != nil {
		return nil, err
	}
	return s.GetSession(ctx, id)
}

// EndSession closes an active session and records its duration.
func (s *Store) EndSession(ctx context.Context, id int64, summary string, outcomes []string) (*Session, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var ended sql.NullString
		err := tx.QueryRowContext(ctx, "SELECT ended_at FROM sessions WHERE id = ?", id).Scan(&ended)
		if err == sql.ErrNoRows {
			return notFound("session", id)
		}
		if err != nil {
			return fmt.Errorf("memory: lookup session: %w", err)
		}
		if ended.Valid {
			return invalid("session", "session %d already ended at %s", id, ended.String)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE sessions SET
				ended_at = datetime('now'),
				summary = ?,
				outcomes = ?,
				duration_minutes = CAST(ROUND((julianday('now') - julianday(started_at)) * 1440) AS INTEGER)
			WHERE id = ?`,
			nullableString(summary), encodeJSON(orEmpty(outcomes)), id,
		)
		if err != nil {
			return fmt.Errorf("memory: end session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetSession(ctx, id)
}

// GetSession returns a session by id.
func (s *Store) GetSession(ctx context.Context, id int64) (*Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, notFound("session", id)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get session: %w", err)
	}
	return sess, nil
}

// CurrentSession returns the project's active session, or nil when none is
// active.
func (s *Store) CurrentSession(ctx context.Context, projectID int64) (*Session, error) {
	return activeSession(ctx, s.db, projectID)
}

func activeSession(ctx context.Context, q dbtx, projectID int64) (*Session, error) {
	sess, err := scanSession(q.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE project_id = ? AND ended_at IS NULL ORDER BY started_at DESC, id DESC LIMIT 1",
		projectID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: current session: %w", err)
	}
	return sess, nil
}

// RecentSessions returns a project's sessions, newest first.
func (s *Store) RecentSessions(ctx context.Context, projectID int64, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE project_id = ? ORDER BY started_at DESC, id DESC LIMIT ?",
		projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: recent sessions: %w", err)
	}
	defer rows.Close()

	out := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

// DeleteSession removes a session record, active or ended.
func (s *Store) DeleteSession(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("memory: delete session: %w", err)
		}
		return affectedOrNotFound(res, "session", id)
	})
}
