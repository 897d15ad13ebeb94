package memtools

import (
	"context"
	"fmt"

	"github.com/HendryAvila/flowstate/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// ProblemLogTool handles the flowstate_problem_log MCP tool.
type ProblemLogTool struct {
	store *memory.Store
}

// NewProblemLogTool creates a ProblemLogTool.
func NewProblemLogTool(store *memory.Store) *ProblemLogTool {
	return &ProblemLogTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_problem_log.
func (t *ProblemLogTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"problem_log",
		mcp.WithDescription(
			"Log a problem against a component. Call this as soon as something breaks, "+
				"then record every approach you try with "+Prefix+"attempt_log.",
		),
		mcp.WithNumber("component_id", mcp.Required(), mcp.Description("Component id")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Short, searchable title")),
		mcp.WithString("description", mcp.Description("Symptoms, error text, reproduction")),
		mcp.WithString("severity", mcp.Description(enumDesc("Severity (default medium)", memory.Severities))),
	)
}

// Handle processes the flowstate_problem_log tool call.
func (t *ProblemLogTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	componentID, res := idArg(req, "component_id")
	if res != nil {
		return res, nil
	}
	p, err := t.store.LogProblem(ctx, memory.LogProblemParams{
		ComponentID: componentID,
		Title:       req.GetString("title", ""),
		Description: req.GetString("description", ""),
		Severity:    req.GetString("severity", ""),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(p), nil
}

// ─── ProblemGetTool ─────────────────────────────────────────────────────────

// ProblemGetTool handles the flowstate_problem_get MCP tool.
type ProblemGetTool struct {
	store *memory.Store
}

// NewProblemGetTool creates a ProblemGetTool.
func NewProblemGetTool(store *memory.Store) *ProblemGetTool {
	return &ProblemGetTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_problem_get.
func (t *ProblemGetTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"problem_get",
		mcp.WithDescription("Fetch one problem by id."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Problem id")),
	)
}

// Handle processes the flowstate_problem_get tool call.
func (t *ProblemGetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	p, err := t.store.GetProblem(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(p), nil
}

// ─── ProblemUpdateTool ──────────────────────────────────────────────────────

// ProblemUpdateTool handles the flowstate_problem_update MCP tool.
type ProblemUpdateTool struct {
	store *memory.Store
}

// NewProblemUpdateTool creates a ProblemUpdateTool.
func NewProblemUpdateTool(store *memory.Store) *ProblemUpdateTool {
	return &ProblemUpdateTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_problem_update.
func (t *ProblemUpdateTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"problem_update",
		mcp.WithDescription("Update a problem. Use "+Prefix+"problem_solve to record the resolution itself."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Problem id")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("status", mcp.Description(enumDesc("New status", memory.ProblemStatuses))),
		mcp.WithString("severity", mcp.Description(enumDesc("New severity", memory.Severities))),
		mcp.WithString("root_cause", mcp.Description("Root cause, once known")),
	)
}

// Handle processes the flowstate_problem_update tool call.
func (t *ProblemUpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	p, err := t.store.UpdateProblem(ctx, id, memory.UpdateProblemParams{
		Title:       optStringArg(req, "title"),
		Description: optStringArg(req, "description"),
		Status:      optStringArg(req, "status"),
		Severity:    optStringArg(req, "severity"),
		RootCause:   optStringArg(req, "root_cause"),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(p), nil
}

// ─── ProblemListOpenTool ────────────────────────────────────────────────────

// ProblemListOpenTool handles the flowstate_problem_list_open MCP tool.
type ProblemListOpenTool struct {
	store *memory.Store
}

// NewProblemListOpenTool creates a ProblemListOpenTool.
func NewProblemListOpenTool(store *memory.Store) *ProblemListOpenTool {
	return &ProblemListOpenTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_problem_list_open.
func (t *ProblemListOpenTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"problem_list_open",
		append([]mcp.ToolOption{
			mcp.WithDescription("List a project's open and investigating problems, most severe first. Pass status to list other states."),
			mcp.WithArray("status",
				mcp.Description(enumDesc("Statuses to include instead of the open ones", memory.ProblemStatuses)),
				mcp.Items(map[string]any{"type": "string"}),
			),
		}, projectParams()...)...,
	)
}

// Handle processes the flowstate_problem_list_open tool call.
func (t *ProblemListOpenTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, res := resolveProject(ctx, t.store, req)
	if res != nil {
		return res, nil
	}
	var (
		problems []memory.Problem
		err      error
	)
	if statuses := stringsArg(req, "status"); len(statuses) > 0 {
		problems, err = t.store.ListProblems(ctx, projectID, statuses...)
	} else {
		problems, err = t.store.ListOpenProblems(ctx, projectID)
	}
	if err != nil {
		return errorResult(err), nil
	}
	if len(problems) == 0 {
		return mcp.NewToolResultText("No matching problems."), nil
	}
	return jsonResult(problems), nil
}

// ─── ProblemDeleteTool ──────────────────────────────────────────────────────

// ProblemDeleteTool handles the flowstate_problem_delete MCP tool.
type ProblemDeleteTool struct {
	store *memory.Store
}

// NewProblemDeleteTool creates a ProblemDeleteTool.
func NewProblemDeleteTool(store *memory.Store) *ProblemDeleteTool {
	return &ProblemDeleteTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_problem_delete.
func (t *ProblemDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"problem_delete",
		mcp.WithDescription("Delete a problem with its attempts and solution."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Problem id")),
	)
}

// Handle processes the flowstate_problem_delete tool call.
func (t *ProblemDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	if err := t.store.DeleteProblem(ctx, id); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Problem #%d deleted", id)), nil
}
