package memtools

import (
	"context"
	"fmt"

	"github.com/HendryAvila/flowstate/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// ProjectCreateTool handles the flowstate_project_create MCP tool.
type ProjectCreateTool struct {
	store *memory.Store
}

// NewProjectCreateTool creates a ProjectCreateTool.
func NewProjectCreateTool(store *memory.Store) *ProjectCreateTool {
	return &ProjectCreateTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_project_create.
func (t *ProjectCreateTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"project_create",
		mcp.WithDescription("Create a project. Every component, problem, todo and learning belongs to one. Names are unique."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Unique project name")),
		mcp.WithString("description", mcp.Description("What the project is")),
	)
}

// Handle processes the flowstate_project_create tool call.
func (t *ProjectCreateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := t.store.CreateProject(ctx, req.GetString("name", ""), req.GetString("description", ""))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(p), nil
}

// ─── ProjectListTool ────────────────────────────────────────────────────────

// ProjectListTool handles the flowstate_project_list MCP tool.
type ProjectListTool struct {
	store *memory.Store
}

// NewProjectListTool creates a ProjectListTool.
func NewProjectListTool(store *memory.Store) *ProjectListTool {
	return &ProjectListTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_project_list.
func (t *ProjectListTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"project_list",
		mcp.WithDescription("List projects, optionally filtered by status."),
		mcp.WithString("status", mcp.Description(enumDesc("Status filter", memory.ProjectStatuses))),
	)
}

// Handle processes the flowstate_project_list tool call.
func (t *ProjectListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := t.store.ListProjects(ctx, req.GetString("status", ""))
	if err != nil {
		return errorResult(err), nil
	}
	if len(projects) == 0 {
		return mcp.NewToolResultText("No projects yet. Create one with " + Prefix + "project_create."), nil
	}
	return jsonResult(projects), nil
}

// ─── ProjectGetTool ─────────────────────────────────────────────────────────

// ProjectGetTool handles the flowstate_project_get MCP tool.
type ProjectGetTool struct {
	store *memory.Store
}

// NewProjectGetTool creates a ProjectGetTool.
func NewProjectGetTool(store *memory.Store) *ProjectGetTool {
	return &ProjectGetTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_project_get.
func (t *ProjectGetTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"project_get",
		append([]mcp.ToolOption{
			mcp.WithDescription("Fetch one project by name or id."),
		}, projectParams()...)...,
	)
}

// Handle processes the flowstate_project_get tool call.
func (t *ProjectGetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := resolveProject(ctx, t.store, req)
	if res != nil {
		return res, nil
	}
	p, err := t.store.GetProject(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(p), nil
}

// ─── ProjectUpdateTool ──────────────────────────────────────────────────────

// ProjectUpdateTool handles the flowstate_project_update MCP tool.
type ProjectUpdateTool struct {
	store *memory.Store
}

// NewProjectUpdateTool creates a ProjectUpdateTool.
func NewProjectUpdateTool(store *memory.Store) *ProjectUpdateTool {
	return &ProjectUpdateTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_project_update.
func (t *ProjectUpdateTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"project_update",
		mcp.WithDescription("Update a project's name, description or status. Only the fields you pass change."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Project id")),
		mcp.WithString("name", mcp.Description("New unique name")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("status", mcp.Description(enumDesc("New status", memory.ProjectStatuses))),
	)
}

// Handle processes the flowstate_project_update tool call.
func (t *ProjectUpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	p, err := t.store.UpdateProject(ctx, id, memory.UpdateProjectParams{
		Name:        optStringArg(req, "name"),
		Description: optStringArg(req, "description"),
		Status:      optStringArg(req, "status"),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(p), nil
}

// ─── ProjectDeleteTool ──────────────────────────────────────────────────────

// ProjectDeleteTool handles the flowstate_project_delete MCP tool.
type ProjectDeleteTool struct {
	store *memory.Store
}

// NewProjectDeleteTool creates a ProjectDeleteTool.
func NewProjectDeleteTool(store *memory.Store) *ProjectDeleteTool {
	return &ProjectDeleteTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_project_delete.
func (t *ProjectDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"project_delete",
		mcp.WithDescription("Delete a project and everything under it. This cannot be undone."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Project id")),
	)
}

// Handle processes the flowstate_project_delete tool call.
func (t *ProjectDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	if err := t.store.DeleteProject(ctx, id); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Project #%d deleted", id)), nil
}
