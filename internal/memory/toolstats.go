package memory

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// minRecommendRate is the lowest success rate a recommended tool may have.
const minRecommendRate = 0.5

// Tool is a registry entry for an external tool and its usage record.
type Tool struct {
	ID             int64    `json:"id"`
	MCPServer      string   `json:"mcp_server"`
	ToolName       string   `json:"tool_name"`
	EffectiveFor   []string `json:"effective_for"`
	Gotchas        []string `json:"gotchas"`
	TimesUsed      int      `json:"times_used"`
	TimesSucceeded int      `json:"times_succeeded"`
	LastUsed       *string  `json:"last_used,omitempty"`
	CreatedAt      string   `json:"created_at"`
}

// RegisterToolParams holds the input for registering a tool.
type RegisterToolParams struct {
	MCPServer    string   `json:"mcp_server"`
	ToolName     string   `json:"tool_name"`
	EffectiveFor []string `json:"effective_for,omitempty"`
	Gotchas      []string `json:"gotchas,omitempty"`
}

// ToolUse is one observed tool invocation.
type ToolUse struct {
	MCPServer      string `json:"mcp_server"`
	ToolName       string `json:"tool_name"`
	Succeeded      bool   `json:"succeeded"`
	TaskType       string `json:"task_type,omitempty"`
	ProjectID      *int64 `json:"project_id,omitempty"`
	SessionStateID *int64 `json:"session_state_id,omitempty"`
}

// ToolUsage is one recorded invocation. Tool carries the registry entry
// after the use was counted.
type ToolUsage struct {
	ID             int64   `json:"id"`
	ToolRegistryID int64   `json:"tool_registry_id"`
	MCPServer      string  `json:"mcp_server"`
	ToolName       string  `json:"tool_name"`
	ProjectID      *int64  `json:"project_id,omitempty"`
	SessionStateID *int64  `json:"session_state_id,omitempty"`
	TaskType       *string `json:"task_type,omitempty"`
	WasUseful      bool    `json:"was_useful"`
	UserCorrection *string `json:"user_correction,omitempty"`
	CreatedAt      string  `json:"created_at"`
	Tool           *Tool   `json:"tool,omitempty"`
}

// UsageFilter narrows UsagePatterns. Zero fields match everything.
type UsageFilter struct {
	ProjectID *int64
	MCPServer string
	ToolName  string
	TaskType  string
	Limit     int
}

// Recommendation is a tool ranked for a task type.
type Recommendation struct {
	Tool
	SuccessRate float64 `json:"success_rate"`
	Uses        int     `json:"uses"`
}

const toolColumns = "id, mcp_server, tool_name, effective_for, gotchas, times_used, times_succeeded, last_used, created_at"

func scanTool(r rowScanner) (*Tool, error) {
	var t Tool
	var effective, gotchas string
	var last sql.NullString
	if err := r.Scan(&t.ID, &t.MCPServer, &t.ToolName, &effective, &gotchas,
		&t.TimesUsed, &t.TimesSucceeded, &last, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.EffectiveFor = orEmpty(decodeJSON[[]string](effective))
	t.Gotchas = orEmpty(decodeJSON[[]string](gotchas))
	t.LastUsed = nullString(last)
	return &t, nil
}

// RegisterTool adds a tool or merges new effective_for and gotcha entries
// into an existing one.
func (s *Store) RegisterTool(ctx context.Context, p RegisterToolParams) (*Tool, error) {
	p.MCPServer = strings.TrimSpace(p.MCPServer)
	p.ToolName = strings.TrimSpace(p.ToolName)
	if p.MCPServer == "" {
		return nil, invalid("mcp_server", "must not be empty")
	}
	if p.ToolName == "" {
		return nil, invalid("tool_name", "must not be empty")
	}
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = ensureTool(ctx, tx, p.MCPServer, p.ToolName)
		if err != nil {
			return err
		}
		t, err := scanTool(tx.QueryRowContext(ctx, "SELECT "+toolColumns+" FROM tool_registry WHERE id = ?", id))
		if err != nil {
			return fmt.Errorf("memory: load tool: %w", err)
		}
		_, err = tx.ExecContext(ctx, "UPDATE tool_registry SET effective_for = ?, gotchas = ? WHERE id = ?",
			encodeJSON(mergeStrings(t.EffectiveFor, p.EffectiveFor)), encodeJSON(mergeStrings(t.Gotchas, p.Gotchas)), id)
		if err != nil {
			return fmt.Errorf("memory: register tool: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return scanTool(s.db.QueryRowContext(ctx, "SELECT "+toolColumns+" FROM tool_registry WHERE id = ?", id))
}

func ensureTool(ctx context.Context, tx *sql.Tx, server, name string) (int64, error) {
	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO tool_registry (mcp_server, tool_name) VALUES (?, ?)", server, name,
	); err != nil {
		return 0, fmt.Errorf("memory: ensure tool: %w", err)
	}
	var id int64
	err := tx.QueryRowContext(ctx,
		"SELECT id FROM tool_registry WHERE mcp_server = ? AND tool_name = ?", server, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("memory: ensure tool: %w", err)
	}
	return id, nil
}

func mergeStrings(have, add []string) []string {
	out := slices.Clone(have)
	for _, v := range add {
		v = strings.TrimSpace(v)
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// RecordToolUse counts one invocation of a tool, registering it on first
// sight. The returned usage id can be passed to RateToolUse.
func (s *Store) RecordToolUse(ctx context.Context, u ToolUse) (*ToolUsage, error) {
	if strings.TrimSpace(u.MCPServer) == "" || strings.TrimSpace(u.ToolName) == "" {
		return nil, invalid("tool", "mcp_server and tool_name are required")
	}
	var id, usageID int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if u.ProjectID != nil {
			if err := mustExist(ctx, tx, "projects", "project", *u.ProjectID); err != nil {
				return err
			}
		}
		if u.SessionStateID != nil {
			if err := mustExist(ctx, tx, "session_state", "state", *u.SessionStateID); err != nil {
				return err
			}
		}
		var err error
		id, err = ensureTool(ctx, tx, strings.TrimSpace(u.MCPServer), strings.TrimSpace(u.ToolName))
		if err != nil {
			return err
		}
		won := 0
		if u.Succeeded {
			won = 1
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE tool_registry SET times_used = times_used + 1, times_succeeded = times_succeeded + ?,
				last_used = datetime('now')
			WHERE id = ?`, won, id,
		); err != nil {
			return fmt.Errorf("memory: count tool use: %w", err)
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO tool_usage (tool_registry_id, project_id, session_state_id, task_type, was_useful)
			VALUES (?, ?, ?, ?, ?)`,
			id, u.ProjectID, u.SessionStateID, nullableString(u.TaskType), won)
		if err != nil {
			return fmt.Errorf("memory: record tool use: %w", err)
		}
		usageID, _ = res.LastInsertId()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.getToolUsage(ctx, usageID)
}

// RateToolUse revises whether a recorded use was useful and keeps the
// tool's success count in step with the change.
func (s *Store) RateToolUse(ctx context.Context, usageID int64, wasUseful bool, correction string) (*ToolUsage, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var toolID int64
		var was bool
		err := tx.QueryRowContext(ctx,
			"SELECT tool_registry_id, was_useful FROM tool_usage WHERE id = ?", usageID).Scan(&toolID, &was)
		if err == sql.ErrNoRows {
			return notFound("tool usage", usageID)
		}
		if err != nil {
			return fmt.Errorf("memory: load tool usage: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE tool_usage SET was_useful = ?, user_correction = ? WHERE id = ?",
			wasUseful, nullableString(correction), usageID,
		); err != nil {
			return fmt.Errorf("memory: rate tool use: %w", err)
		}
		delta := 0
		switch {
		case wasUseful && !was:
			delta = 1
		case !wasUseful && was:
			delta = -1
		}
		if delta == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE tool_registry SET times_succeeded = MAX(0, times_succeeded + ?) WHERE id = ?", delta, toolID,
		); err != nil {
			return fmt.Errorf("memory: rate tool use: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.getToolUsage(ctx, usageID)
}

const usageSelect = `SELECT u.id, u.tool_registry_id, r.mcp_server, r.tool_name, u.project_id, u.session_state_id,
	u.task_type, u.was_useful, u.user_correction, u.created_at
	FROM tool_usage u JOIN tool_registry r ON r.id = u.tool_registry_id`

func scanToolUsage(r rowScanner) (*ToolUsage, error) {
	var u ToolUsage
	var project, state sql.NullInt64
	var task, correction sql.NullString
	if err := r.Scan(&u.ID, &u.ToolRegistryID, &u.MCPServer, &u.ToolName, &project, &state,
		&task, &u.WasUseful, &correction, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.ProjectID = nullInt(project)
	u.SessionStateID = nullInt(state)
	u.TaskType = nullString(task)
	u.UserCorrection = nullString(correction)
	return &u, nil
}

func (s *Store) getToolUsage(ctx context.Context, id int64) (*ToolUsage, error) {
	u, err := scanToolUsage(s.db.QueryRowContext(ctx, usageSelect+" WHERE u.id = ?", id))
	if err == sql.ErrNoRows {
		return nil, notFound("tool usage", id)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get tool usage: %w", err)
	}
	u.Tool, err = scanTool(s.db.QueryRowContext(ctx, "SELECT "+toolColumns+" FROM tool_registry WHERE id = ?", u.ToolRegistryID))
	if err != nil {
		return nil, fmt.Errorf("memory: get tool usage: %w", err)
	}
	return u, nil
}

// UsagePatterns lists recorded uses newest first. Limit defaults to 100.
func (s *Store) UsagePatterns(ctx context.Context, f UsageFilter) ([]ToolUsage, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	query := usageSelect + " WHERE 1=1"
	var args []any
	if f.ProjectID != nil {
		query += " AND u.project_id = ?"
		args = append(args, *f.ProjectID)
	}
	if f.MCPServer != "" {
		query += " AND r.mcp_server = ?"
		args = append(args, f.MCPServer)
	}
	if f.ToolName != "" {
		query += " AND r.tool_name = ?"
		args = append(args, f.ToolName)
	}
	if f.TaskType != "" {
		query += " AND u.task_type = ?"
		args = append(args, f.TaskType)
	}
	query += " ORDER BY u.created_at DESC, u.id DESC LIMIT ?"
	args = append(args, f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: usage patterns: %w", err)
	}
	defer rows.Close()

	out := []ToolUsage{}
	for rows.Next() {
		u, err := scanToolUsage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// RecommendTools ranks tools for a task type by historical success rate.
// A tool qualifies when it was used for the task type or lists it in
// effective_for, and its success rate is at least 0.5. An empty task type
// ranks every tool by its overall rate.
func (s *Store) RecommendTools(ctx context.Context, taskType string, limit int) ([]Recommendation, error) {
	return recommendTools(ctx, s.db, taskType, limit)
}

func recommendTools(ctx context.Context, q dbtx, taskType string, limit int) ([]Recommendation, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := q.QueryContext(ctx, `
		SELECT `+prefixed("r.", toolColumns)+`,
		       COUNT(u.id), COALESCE(SUM(u.was_useful), 0)
		FROM tool_registry r
		LEFT JOIN tool_usage u ON u.tool_registry_id = r.id AND u.task_type = ?
		GROUP BY r.id`, taskType)
	if err != nil {
		return nil, fmt.Errorf("memory: recommend tools: %w", err)
	}
	defer rows.Close()

	out := []Recommendation{}
	for rows.Next() {
		var t Tool
		var effective, gotchas string
		var last sql.NullString
		var uses, useful int
		if err := rows.Scan(&t.ID, &t.MCPServer, &t.ToolName, &effective, &gotchas,
			&t.TimesUsed, &t.TimesSucceeded, &last, &t.CreatedAt, &uses, &useful); err != nil {
			return nil, err
		}
		t.EffectiveFor = orEmpty(decodeJSON[[]string](effective))
		t.Gotchas = orEmpty(decodeJSON[[]string](gotchas))
		t.LastUsed = nullString(last)

		rec := Recommendation{Tool: t, Uses: uses}
		switch {
		case taskType != "" && uses > 0:
			rec.SuccessRate = float64(useful) / float64(uses)
		case taskType == "" || slices.Contains(t.EffectiveFor, taskType):
			rec.Uses = t.TimesUsed
			if t.TimesUsed == 0 {
				rec.SuccessRate = minRecommendRate
			} else {
				rec.SuccessRate = float64(t.TimesSucceeded) / float64(t.TimesUsed)
			}
		default:
			continue
		}
		if rec.SuccessRate >= minRecommendRate {
			out = append(out, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SuccessRate != out[j].SuccessRate {
			return out[i].SuccessRate > out[j].SuccessRate
		}
		if out[i].Uses != out[j].Uses {
			return out[i].Uses > out[j].Uses
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
