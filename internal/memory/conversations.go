package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Conversation summarizes one exchange with the assistant.
type Conversation struct {
	ID                       int64    `json:"id"`
	ProjectID                int64    `json:"project_id"`
	SessionID                string   `json:"session_id,omitempty"`
	UserPromptSummary        string   `json:"user_prompt_summary"`
	AssistantResponseSummary string   `json:"assistant_response_summary,omitempty"`
	KeyDecisions             []string `json:"key_decisions"`
	ProblemsReferenced       []int64  `json:"problems_referenced"`
	SolutionsCreated         []int64  `json:"solutions_created"`
	TokensUsed               int      `json:"tokens_used"`
	CreatedAt                string   `json:"created_at"`
}

// LogConversationParams holds the input for logging a conversation.
type LogConversationParams struct {
	ProjectID                int64    `json:"project_id"`
	SessionID                string   `json:"session_id,omitempty"`
	UserPromptSummary        string   `json:"user_prompt_summary"`
	AssistantResponseSummary string   `json:"assistant_response_summary,omitempty"`
	KeyDecisions             []string `json:"key_decisions,omitempty"`
	ProblemsReferenced       []int64  `json:"problems_referenced,omitempty"`
	SolutionsCreated         []int64  `json:"solutions_created,omitempty"`
	TokensUsed               int      `json:"tokens_used,omitempty"`
}

const conversationColumns = `id, project_id, COALESCE(session_id, ''), user_prompt_summary,
	COALESCE(assistant_response_summary, ''), key_decisions, problems_referenced, solutions_created,
	tokens_used, created_at`

func scanConversation(r rowScanner) (*Conversation, error) {
	var c Conversation
	var decisions, problems, solutions string
	if err := r.Scan(&c.ID, &c.ProjectID, &c.SessionID, &c.UserPromptSummary, &c.AssistantResponseSummary,
		&decisions, &problems, &solutions, &c.TokensUsed, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.KeyDecisions = orEmpty(decodeJSON[[]string](decisions))
	c.ProblemsReferenced = orEmpty(decodeJSON[[]int64](problems))
	c.SolutionsCreated = orEmpty(decodeJSON[[]int64](solutions))
	return &c, nil
}

// LogConversation records a conversation summary.
func (s *Store) LogConversation(ctx context.Context, p LogConversationParams) (*Conversation, error) {
	p.UserPromptSummary = strings.TrimSpace(p.UserPromptSummary)
	if p.UserPromptSummary == "" {
		return nil, invalid("user_prompt_summary", "must not be empty")
	}
	if p.TokensUsed < 0 {
		return nil, invalid("tokens_used", "must not be negative")
	}

	var id int64
	err := s.write(ctx, func(tx *sql.Tx, ix *indexBatch) error {
		if err := mustExist(ctx, tx, "projects", "project", p.ProjectID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (project_id, session_id, user_prompt_summary, assistant_response_summary,
			                           key_decisions, problems_referenced, solutions_created, tokens_used)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ProjectID, nullableString(p.SessionID), p.UserPromptSummary, nullableString(p.AssistantResponseSummary),
			encodeJSON(orEmpty(p.KeyDecisions)), encodeJSON(orEmpty(p.ProblemsReferenced)),
			encodeJSON(orEmpty(p.SolutionsCreated)), p.TokensUsed,
		)
		if err != nil {
			return fmt.Errorf("memory: log conversation: %w", err)
		}
		id, _ = res.LastInsertId()
		return ix.put(ctx, "conversation", id)
	})
	if err != nil {
		return nil, err
	}
	return scanConversation(s.db.QueryRowContext(ctx, "SELECT "+conversationColumns+" FROM conversations WHERE id = ?", id))
}

// ListConversations returns a project's conversations newest first,
// optionally limited to one client session.
func (s *Store) ListConversations(ctx context.Context, projectID int64, sessionID string, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	query := "SELECT " + conversationColumns + " FROM conversations WHERE project_id = ?"
	args := []any{projectID}
	if sessionID != "" {
		query += " AND session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: list conversations: %w", err)
	}
	defer rows.Close()

	out := []Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// GetConversation returns one conversation.
func (s *Store) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	c, err := scanConversation(s.db.QueryRowContext(ctx, "SELECT "+conversationColumns+" FROM conversations WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, notFound("conversation", id)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get conversation: %w", err)
	}
	return c, nil
}

// DeleteConversation removes one conversation summary.
func (s *Store) DeleteConversation(ctx context.Context, id int64) error {
	return s.write(ctx, func(tx *sql.Tx, _ *indexBatch) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("memory: delete conversation: %w", err)
		}
		return affectedOrNotFound(res, "conversation", id)
	})
}

func orEmpty[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
