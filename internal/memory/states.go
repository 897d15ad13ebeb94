package memory

import (
	"context"
	"database/sql"
	"fmt"
)

// State is one immutable session-state snapshot. States chain backward
// through PreviousStateID for handoff between sessions.
type State struct {
	ID                   int64    `json:"id"`
	ProjectID            int64    `json:"project_id"`
	StateType            string   `json:"state_type"`
	PreviousStateID      *int64   `json:"previous_state_id,omitempty"`
	FocusSummary         string   `json:"focus_summary,omitempty"`
	ActiveProblemIDs     []int64  `json:"active_problem_ids"`
	ActiveComponentIDs   []int64  `json:"active_component_ids"`
	PendingDecisions     []string `json:"pending_decisions"`
	KeyFacts             []string `json:"key_facts"`
	ToolCallsThisSession int      `json:"tool_calls_this_session"`
	EstimatedTokens      int      `json:"estimated_tokens"`
	CreatedAt            string   `json:"created_at"`
}

// StatePayload is the caller-supplied content of a snapshot.
type StatePayload struct {
	FocusSummary         string   `json:"focus_summary,omitempty"`
	ActiveProblemIDs     []int64  `json:"active_problem_ids,omitempty"`
	ActiveComponentIDs   []int64  `json:"active_component_ids,omitempty"`
	PendingDecisions     []string `json:"pending_decisions,omitempty"`
	KeyFacts             []string `json:"key_facts,omitempty"`
	ToolCallsThisSession int      `json:"tool_calls_this_session,omitempty"`
	EstimatedTokens      int      `json:"estimated_tokens,omitempty"`
}

// SaveStateParams holds the input for appending a snapshot.
type SaveStateParams struct {
	ProjectID       int64  `json:"project_id"`
	StateType       string `json:"state_type"`
	PreviousStateID *int64 `json:"previous_state_id,omitempty"`
	StatePayload
}

const stateColumns = `id, project_id, state_type, previous_state_id, COALESCE(focus_summary, ''),
	active_problem_ids, active_component_ids, pending_decisions, key_facts,
	tool_calls_this_session, estimated_tokens, created_at`

func scanState(r rowScanner) (*State, error) {
	var st State
	var prev sql.NullInt64
	var problems, components, decisions, facts string
	if err := r.Scan(&st.ID, &st.ProjectID, &st.StateType, &prev, &st.FocusSummary,
		&problems, &components, &decisions, &facts,
		&st.ToolCallsThisSession, &st.EstimatedTokens, &st.CreatedAt); err != nil {
		return nil, err
	}
	st.PreviousStateID = nullInt(prev)
	st.ActiveProblemIDs = orEmpty(decodeJSON[[]int64](problems))
	st.ActiveComponentIDs = orEmpty(decodeJSON[[]int64](components))
	st.PendingDecisions = orEmpty(decodeJSON[[]string](decisions))
	st.KeyFacts = orEmpty(decodeJSON[[]string](facts))
	return &st, nil
}

// SaveState appends a snapshot. A previous state, when given, must belong to
// the same project.
func (s *Store) SaveState(ctx context.Context, p SaveStateParams) (*State, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = saveState(ctx, tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetState(ctx, id)
}

func saveState(ctx context.Context, tx *sql.Tx, p SaveStateParams) (int64, error) {
	if err := checkEnum("state_type", p.StateType, StateTypes); err != nil {
		return 0, err
	}
	if p.ToolCallsThisSession < 0 || p.EstimatedTokens < 0 {
		return 0, invalid("payload", "counters must not be negative")
	}
	if err := mustExist(ctx, tx, "projects", "project", p.ProjectID); err != nil {
		return 0, err
	}
	if p.PreviousStateID != nil {
		var owner int64
		err := tx.QueryRowContext(ctx, "SELECT project_id FROM session_state WHERE id = ?", *p.PreviousStateID).Scan(&owner)
		if err == sql.ErrNoRows {
			return 0, notFound("state", *p.PreviousStateID)
		}
		if err != nil {
			return 0, fmt.Errorf("memory: lookup previous state: %w", err)
		}
		if owner != p.ProjectID {
			return 0, invalid("previous_state_id", "state %d belongs to project %d", *p.PreviousStateID, owner)
		}
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO session_state (project_id, state_type, previous_state_id, focus_summary,
		                           active_problem_ids, active_component_ids, pending_decisions, key_facts,
		                           tool_calls_this_session, estimated_tokens)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ProjectID, p.StateType, p.PreviousStateID, nullableString(p.FocusSummary),
		encodeJSON(orEmpty(p.ActiveProblemIDs)), encodeJSON(orEmpty(p.ActiveComponentIDs)),
		encodeJSON(orEmpty(p.PendingDecisions)), encodeJSON(orEmpty(p.KeyFacts)),
		p.ToolCallsThisSession, p.EstimatedTokens,
	)
	if err != nil {
		return 0, fmt.Errorf("memory: save state: %w", err)
	}
	return res.LastInsertId()
}

// GetState returns a snapshot by id.
func (s *Store) GetState(ctx context.Context, id int64) (*State, error) {
	return getState(ctx, s.db, id)
}

func getState(ctx context.Context, q dbtx, id int64) (*State, error) {
	st, err := scanState(q.QueryRowContext(ctx, "SELECT "+stateColumns+" FROM session_state WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, notFound("state", id)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get state: %w", err)
	}
	return st, nil
}

// StateChain walks backward from stateID, newest first, returning at most
// maxDepth snapshots. It stops at the root without error.
func (s *Store) StateChain(ctx context.Context, stateID int64, maxDepth int) ([]State, error) {
	var out []State
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = stateChain(ctx, tx, stateID, maxDepth)
		return err
	})
	return out, err
}

func stateChain(ctx context.Context, q dbtx, stateID int64, maxDepth int) ([]State, error) {
	if maxDepth <= 0 {
		maxDepth = 5
	}
	out := []State{}
	seen := map[int64]bool{}
	next := &stateID
	for next != nil && len(out) < maxDepth && !seen[*next] {
		seen[*next] = true
		st, err := getState(ctx, q, *next)
		if IsNotFound(err) && len(out) > 0 {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
		next = st.PreviousStateID
	}
	return out, nil
}

// LatestState returns the project's newest snapshot, or nil if it has none.
func (s *Store) LatestState(ctx context.Context, projectID int64) (*State, error) {
	return latestState(ctx, s.db, projectID)
}

func latestState(ctx context.Context, q dbtx, projectID int64) (*State, error) {
	st, err := scanState(q.QueryRowContext(ctx,
		"SELECT "+stateColumns+" FROM session_state WHERE project_id = ? ORDER BY id DESC LIMIT 1", projectID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: latest state: %w", err)
	}
	return st, nil
}

// DeleteState removes one snapshot. Snapshots that pointed at it become
// chain roots and tool usage recorded against it keeps no state.
func (s *Store) DeleteState(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM session_state WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("memory: delete state: %w", err)
		}
		return affectedOrNotFound(res, "state", id)
	})
}
