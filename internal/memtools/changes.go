package memtools

import (
	"context"
	"fmt"
	"time"

	"github.com/HendryAvila/flowstate/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// ChangeLogTool handles the flowstate_change_log MCP tool.
type ChangeLogTool struct {
	store *memory.Store
}

// NewChangeLogTool creates a ChangeLogTool.
func NewChangeLogTool(store *memory.Store) *ChangeLogTool {
	return &ChangeLogTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_change_log.
func (t *ChangeLogTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"change_log",
		mcp.WithDescription("Record a change to a component: which field moved from what to what, and why."),
		mcp.WithNumber("component_id", mcp.Required(), mcp.Description("Component id")),
		mcp.WithString("field_name", mcp.Required(), mcp.Description("What changed (e.g. 'timeout', 'db driver')")),
		mcp.WithString("old_value", mcp.Description("Previous value")),
		mcp.WithString("new_value", mcp.Description("New value")),
		mcp.WithString("change_type", mcp.Description(enumDesc("Kind of change (default other)", memory.ChangeTypes))),
		mcp.WithString("reason", mcp.Description("Why it changed")),
	)
}

// Handle processes the flowstate_change_log tool call.
func (t *ChangeLogTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	componentID, res := idArg(req, "component_id")
	if res != nil {
		return res, nil
	}
	ch, err := t.store.LogChange(ctx, memory.LogChangeParams{
		ComponentID: componentID,
		FieldName:   req.GetString("field_name", ""),
		OldValue:    req.GetString("old_value", ""),
		NewValue:    req.GetString("new_value", ""),
		ChangeType:  req.GetString("change_type", ""),
		Reason:      req.GetString("reason", ""),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(ch), nil
}

// ─── ChangesRecentTool ──────────────────────────────────────────────────────

// ChangesRecentTool handles the flowstate_changes_recent MCP tool.
type ChangesRecentTool struct {
	store *memory.Store
}

// NewChangesRecentTool creates a ChangesRecentTool.
func NewChangesRecentTool(store *memory.Store) *ChangesRecentTool {
	return &ChangesRecentTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_changes_recent.
func (t *ChangesRecentTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"changes_recent",
		append([]mcp.ToolOption{
			mcp.WithDescription("List a project's changes inside a recency window, newest first. Pass component_id to see one component's full history instead."),
			mcp.WithNumber("hours", mcp.Description("Window in hours (default from config, usually 48)")),
			mcp.WithNumber("component_id", mcp.Description("Show the history of one component")),
			mcp.WithNumber("limit", mcp.Description("Max results (default 50)")),
		}, projectParams()...)...,
	)
}

// Handle processes the flowstate_changes_recent tool call.
func (t *ChangesRecentTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := intArg(req, "limit", 50)
	if componentID := optIDArg(req, "component_id"); componentID != nil {
		changes, err := t.store.ComponentChanges(ctx, *componentID, limit)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(changes), nil
	}

	projectID, res := resolveProject(ctx, t.store, req)
	if res != nil {
		return res, nil
	}
	window := time.Duration(intArg(req, "hours", 0)) * time.Hour
	changes, err := t.store.RecentChanges(ctx, projectID, window, limit)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(changes), nil
}

// ─── ChangeDeleteTool ───────────────────────────────────────────────────────

// ChangeDeleteTool handles the flowstate_change_delete MCP tool.
type ChangeDeleteTool struct {
	store *memory.Store
}

// NewChangeDeleteTool creates a ChangeDeleteTool.
func NewChangeDeleteTool(store *memory.Store) *ChangeDeleteTool {
	return &ChangeDeleteTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_change_delete.
func (t *ChangeDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"change_delete",
		mcp.WithDescription("Delete a change that was logged by mistake."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Change id")),
	)
}

// Handle processes the flowstate_change_delete tool call.
func (t *ChangeDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	if err := t.store.DeleteChange(ctx, id); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Change #%d deleted", id)), nil
}

// ─── ComponentHistoryTool ───────────────────────────────────────────────────

// ComponentHistoryTool handles the flowstate_component_history MCP tool.
type ComponentHistoryTool struct {
	store *memory.Store
}

// NewComponentHistoryTool creates a ComponentHistoryTool.
func NewComponentHistoryTool(store *memory.Store) *ComponentHistoryTool {
	return &ComponentHistoryTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_component_history.
func (t *ComponentHistoryTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"component_history",
		mcp.WithDescription("Everything recorded against one component: changes of the last N days, every problem with its solution, and its learnings."),
		mcp.WithNumber("component_id", mcp.Required(), mcp.Description("Component id")),
		mcp.WithNumber("days", mcp.Description("Change window in days (default 30)")),
	)
}

// Handle processes the flowstate_component_history tool call.
func (t *ComponentHistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "component_id")
	if res != nil {
		return res, nil
	}
	h, err := t.store.ComponentHistory(ctx, id, intArg(req, "days", 0))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(h), nil
}
