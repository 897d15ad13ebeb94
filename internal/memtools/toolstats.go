package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/HendryAvila/flowstate/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// ToolRegisterTool handles the flowstate_tool_register MCP tool.
type ToolRegisterTool struct {
	store *memory.Store
}

// NewToolRegisterTool creates a ToolRegisterTool.
func NewToolRegisterTool(store *memory.Store) *ToolRegisterTool {
	return &ToolRegisterTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_tool_register.
func (t *ToolRegisterTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"tool_register",
		mcp.WithDescription("Register an external tool with the task types it is good for and its gotchas. Re-registering merges the lists."),
		mcp.WithString("mcp_server", mcp.Required(), mcp.Description("Server that exposes the tool")),
		mcp.WithString("tool_name", mcp.Required(), mcp.Description("Tool name")),
		mcp.WithArray("effective_for", mcp.Description("Task types it works well for"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("gotchas", mcp.Description("Known pitfalls"), mcp.Items(map[string]any{"type": "string"})),
	)
}

// Handle processes the flowstate_tool_register tool call.
func (t *ToolRegisterTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tool, err := t.store.RegisterTool(ctx, memory.RegisterToolParams{
		MCPServer:    req.GetString("mcp_server", ""),
		ToolName:     req.GetString("tool_name", ""),
		EffectiveFor: stringsArg(req, "effective_for"),
		Gotchas:      stringsArg(req, "gotchas"),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(tool), nil
}

// ─── ToolUseRecordTool ──────────────────────────────────────────────────────

// ToolUseRecordTool handles the flowstate_tool_use_record MCP tool.
type ToolUseRecordTool struct {
	store *memory.Store
}

// NewToolUseRecordTool creates a ToolUseRecordTool.
func NewToolUseRecordTool(store *memory.Store) *ToolUseRecordTool {
	return &ToolUseRecordTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_tool_use_record.
func (t *ToolUseRecordTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"tool_use_record",
		mcp.WithDescription("Record one use of an external tool and whether it succeeded. Unknown tools are registered on first use."),
		mcp.WithString("mcp_server", mcp.Required(), mcp.Description("Server that exposes the tool")),
		mcp.WithString("tool_name", mcp.Required(), mcp.Description("Tool name")),
		mcp.WithBoolean("succeeded", mcp.Required(), mcp.Description("Whether the call did what you needed")),
		mcp.WithString("task_type", mcp.Description("Kind of work the tool was used for")),
		mcp.WithNumber("project_id", mcp.Description("Project the use belongs to")),
		mcp.WithNumber("session_state_id", mcp.Description("Snapshot the use belongs to")),
	)
}

// Handle processes the flowstate_tool_use_record tool call.
func (t *ToolUseRecordTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	use, err := t.store.RecordToolUse(ctx, memory.ToolUse{
		MCPServer:      req.GetString("mcp_server", ""),
		ToolName:       req.GetString("tool_name", ""),
		Succeeded:      boolArg(req, "succeeded", false),
		TaskType:       req.GetString("task_type", ""),
		ProjectID:      optIDArg(req, "project_id"),
		SessionStateID: optIDArg(req, "session_state_id"),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Recorded use #%d of %s/%s: %d/%d succeeded",
		use.ID, use.MCPServer, use.ToolName, use.Tool.TimesSucceeded, use.Tool.TimesUsed)), nil
}

// ─── ToolUseRateTool ────────────────────────────────────────────────────────

// ToolUseRateTool handles the flowstate_tool_use_rate MCP tool.
type ToolUseRateTool struct {
	store *memory.Store
}

// NewToolUseRateTool creates a ToolUseRateTool.
func NewToolUseRateTool(store *memory.Store) *ToolUseRateTool {
	return &ToolUseRateTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_tool_use_rate.
func (t *ToolUseRateTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"tool_use_rate",
		mcp.WithDescription("Revise whether a recorded tool use was useful, for example after the user corrected it. The tool's success count follows."),
		mcp.WithNumber("usage_id", mcp.Required(), mcp.Description("Id returned by flowstate_tool_use_record")),
		mcp.WithBoolean("was_useful", mcp.Required(), mcp.Description("Whether the use actually helped")),
		mcp.WithString("user_correction", mcp.Description("What the user did instead")),
	)
}

// Handle processes the flowstate_tool_use_rate tool call.
func (t *ToolUseRateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "usage_id")
	if res != nil {
		return res, nil
	}
	if _, ok := req.GetArguments()["was_useful"].(bool); !ok {
		return mcp.NewToolResultError("validation: was_useful: a boolean is required"), nil
	}
	use, err := t.store.RateToolUse(ctx, id, boolArg(req, "was_useful", false), req.GetString("user_correction", ""))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(use), nil
}

// ─── ToolUsageListTool ──────────────────────────────────────────────────────

// ToolUsageListTool handles the flowstate_tool_usage_list MCP tool.
type ToolUsageListTool struct {
	store *memory.Store
}

// NewToolUsageListTool creates a ToolUsageListTool.
func NewToolUsageListTool(store *memory.Store) *ToolUsageListTool {
	return &ToolUsageListTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_tool_usage_list.
func (t *ToolUsageListTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"tool_usage_list",
		mcp.WithDescription("List recorded tool uses, newest first, to see which tools are used for what and how often they help."),
		mcp.WithNumber("project_id", mcp.Description("Only uses in this project")),
		mcp.WithString("mcp_server", mcp.Description("Only tools of this server")),
		mcp.WithString("tool_name", mcp.Description("Only this tool")),
		mcp.WithString("task_type", mcp.Description("Only uses for this kind of work")),
		mcp.WithNumber("limit", mcp.Description("Max results (default 100)")),
	)
}

// Handle processes the flowstate_tool_usage_list tool call.
func (t *ToolUsageListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uses, err := t.store.UsagePatterns(ctx, memory.UsageFilter{
		ProjectID: optIDArg(req, "project_id"),
		MCPServer: req.GetString("mcp_server", ""),
		ToolName:  req.GetString("tool_name", ""),
		TaskType:  req.GetString("task_type", ""),
		Limit:     intArg(req, "limit", 0),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(uses), nil
}

// ─── ToolRecommendTool ──────────────────────────────────────────────────────

// ToolRecommendTool handles the flowstate_tool_recommend MCP tool.
type ToolRecommendTool struct {
	store *memory.Store
}

// NewToolRecommendTool creates a ToolRecommendTool.
func NewToolRecommendTool(store *memory.Store) *ToolRecommendTool {
	return &ToolRecommendTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_tool_recommend.
func (t *ToolRecommendTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"tool_recommend",
		mcp.WithDescription("Recommend tools for a task type, ranked by how often they worked for it."),
		mcp.WithString("task_type", mcp.Description("Kind of work ahead")),
		mcp.WithNumber("limit", mcp.Description("Max results (default 5)")),
	)
}

// Handle processes the flowstate_tool_recommend tool call.
func (t *ToolRecommendTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskType := req.GetString("task_type", "")
	recs, err := t.store.RecommendTools(ctx, taskType, intArg(req, "limit", 0))
	if err != nil {
		return errorResult(err), nil
	}
	if len(recs) == 0 {
		return mcp.NewToolResultText("No tool has a good enough track record yet."), nil
	}

	var b strings.Builder
	if taskType != "" {
		fmt.Fprintf(&b, "## Tools for %s\n\n", taskType)
	} else {
		b.WriteString("## Tools\n\n")
	}
	for i, r := range recs {
		fmt.Fprintf(&b, "%d. %s/%s (%.0f%% over %d uses)\n", i+1, r.MCPServer, r.ToolName, r.SuccessRate*100, r.Uses)
		if len(r.Gotchas) > 0 {
			fmt.Fprintf(&b, "   gotchas: %s\n", strings.Join(r.Gotchas, "; "))
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}
