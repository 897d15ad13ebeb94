package memtools

import (
	"context"
	"time"

	"github.com/HendryAvila/flowstate/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// ContextTool handles the flowstate_context MCP tool.
type ContextTool struct {
	store *memory.Store
}

// NewContextTool creates a ContextTool.
func NewContextTool(store *memory.Store) *ContextTool {
	return &ContextTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_context.
func (t *ContextTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"context",
		mcp.WithDescription(
			"Get a project's working context: open problems, recent changes, priority todos, recent learnings, active session. "+
				"Call this FIRST at the start of every session. The lean view is a few hundred tokens; ask for full only when you need the detail.",
		),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
		mcp.WithString("detail", mcp.Description("lean (default) or full")),
		mcp.WithNumber("hours", mcp.Description("Recency window for changes in hours (default from config, usually 48)")),
		mcp.WithBoolean("include_attachments", mcp.Description("Include attachment metadata in the full view")),
		mcp.WithString("format", mcp.Description("text (default) or json")),
	)
}

// Handle processes the flowstate_context tool call.
func (t *ContextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project := req.GetString("project", "")
	if project == "" {
		return mcp.NewToolResultError("validation: project: must not be empty"), nil
	}
	window := time.Duration(intArg(req, "hours", 0)) * time.Hour
	asJSON := req.GetString("format", "text") == "json"

	if req.GetString("detail", "lean") == "full" {
		c, err := t.store.Assemble(ctx, project, window, boolArg(req, "include_attachments", false))
		if err != nil {
			return errorResult(err), nil
		}
		if asJSON {
			return jsonResult(c), nil
		}
		text := memory.FormatContext(c)
		return mcp.NewToolResultText(text + memory.TokenFooter(memory.EstimateTokens(text))), nil
	}

	lean, err := t.store.AssembleLean(ctx, project, window)
	if err != nil {
		return errorResult(err), nil
	}
	if asJSON {
		return jsonResult(lean), nil
	}
	return mcp.NewToolResultText(memory.FormatLean(lean) + memory.TokenFooter(lean.EstimatedTokens)), nil
}
