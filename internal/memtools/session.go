package memtools

import (
	"context"
	"fmt"

	"github.com/HendryAvila/flowstate/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// SessionStartTool handles the flowstate_session_start MCP tool.
type SessionStartTool struct {
	store *memory.Store
}

// NewSessionStartTool creates a SessionStartTool.
func NewSessionStartTool(store *memory.Store) *SessionStartTool {
	return &SessionStartTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_session_start.
func (t *SessionStartTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"session_start",
		append([]mcp.ToolOption{
			mcp.WithDescription(
				"Start a work session on a project. A project has one active session at a time; "+
					"end the current one with "+Prefix+"session_end first.",
			),
			mcp.WithNumber("focus_component_id", mcp.Description("Component this session focuses on")),
			mcp.WithNumber("focus_problem_id", mcp.Description("Problem this session focuses on")),
		}, projectParams()...)...,
	)
}

// Handle processes the flowstate_session_start tool call.
func (t *SessionStartTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, res := resolveProject(ctx, t.store, req)
	if res != nil {
		return res, nil
	}
	sess, err := t.store.StartSession(ctx, projectID, optIDArg(req, "focus_component_id"), optIDArg(req, "focus_problem_id"))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(sess), nil
}

// ─── SessionEndTool ─────────────────────────────────────────────────────────

// SessionEndTool handles the flowstate_session_end MCP tool.
type SessionEndTool struct {
	store *memory.Store
}

// NewSessionEndTool creates a SessionEndTool.
func NewSessionEndTool(store *memory.Store) *SessionEndTool {
	return &SessionEndTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_session_end.
func (t *SessionEndTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"session_end",
		mcp.WithDescription("End a work session with a summary of what got done. The duration is computed for you."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("summary", mcp.Description("What happened this session")),
		mcp.WithArray("outcomes", mcp.Description("Concrete outcomes"), mcp.Items(map[string]any{"type": "string"})),
	)
}

// Handle processes the flowstate_session_end tool call.
func (t *SessionEndTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	sess, err := t.store.EndSession(ctx, id, req.GetString("summary", ""), stringsArg(req, "outcomes"))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(sess), nil
}

// ─── SessionCurrentTool ─────────────────────────────────────────────────────

// SessionCurrentTool handles the flowstate_session_current MCP tool.
type SessionCurrentTool struct {
	store *memory.Store
}

// NewSessionCurrentTool creates a SessionCurrentTool.
func NewSessionCurrentTool(store *memory.Store) *SessionCurrentTool {
	return &SessionCurrentTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_session_current.
func (t *SessionCurrentTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"session_current",
		append([]mcp.ToolOption{
			mcp.WithDescription("Show the active session of a project, if any, and the most recent finished ones."),
			mcp.WithNumber("recent", mcp.Description("How many finished sessions to include (default 3)")),
		}, projectParams()...)...,
	)
}

// Handle processes the flowstate_session_current tool call.
func (t *SessionCurrentTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, res := resolveProject(ctx, t.store, req)
	if res != nil {
		return res, nil
	}
	active, err := t.store.CurrentSession(ctx, projectID)
	if err != nil {
		return errorResult(err), nil
	}
	recent, err := t.store.RecentSessions(ctx, projectID, intArg(req, "recent", 3))
	if err != nil {
		return errorResult(err), nil
	}
	if active == nil && len(recent) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No sessions yet for project #%d.", projectID)), nil
	}
	return jsonResult(struct {
		Active *memory.Session  `json:"active"`
		Recent []memory.Session `json:"recent"`
	}{active, recent}), nil
}

// ─── SessionDeleteTool ──────────────────────────────────────────────────────

// SessionDeleteTool handles the flowstate_session_delete MCP tool.
type SessionDeleteTool struct {
	store *memory.Store
}

// NewSessionDeleteTool creates a SessionDeleteTool.
func NewSessionDeleteTool(store *memory.Store) *SessionDeleteTool {
	return &SessionDeleteTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_session_delete.
func (t *SessionDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"session_delete",
		mcp.WithDescription("Delete a work session, active or ended."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Session id")),
	)
}

// Handle processes the flowstate_session_delete tool call.
func (t *SessionDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	if err := t.store.DeleteSession(ctx, id); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Session #%d deleted", id)), nil
}
