package memtools

import (
	"context"
	"fmt"

	"github.com/HendryAvila/flowstate/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// ComponentCreateTool handles the flowstate_component_create MCP tool.
type ComponentCreateTool struct {
	store *memory.Store
}

// NewComponentCreateTool creates a ComponentCreateTool.
func NewComponentCreateTool(store *memory.Store) *ComponentCreateTool {
	return &ComponentCreateTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_component_create.
func (t *ComponentCreateTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"component_create",
		append([]mcp.ToolOption{
			mcp.WithDescription("Add a component to a project. Components may nest under a parent of the same project."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Component name, unique within the project")),
			mcp.WithString("description", mcp.Description("What the component does")),
			mcp.WithString("status", mcp.Description(enumDesc("Status (default in_progress)", memory.ComponentStatuses))),
			mcp.WithNumber("parent_component_id", mcp.Description("Parent component id")),
		}, projectParams()...)...,
	)
}

// Handle processes the flowstate_component_create tool call.
func (t *ComponentCreateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, res := resolveProject(ctx, t.store, req)
	if res != nil {
		return res, nil
	}
	c, err := t.store.CreateComponent(ctx, memory.CreateComponentParams{
		ProjectID:         projectID,
		ParentComponentID: optIDArg(req, "parent_component_id"),
		Name:              req.GetString("name", ""),
		Description:       req.GetString("description", ""),
		Status:            req.GetString("status", ""),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(c), nil
}

// ─── ComponentListTool ──────────────────────────────────────────────────────

// ComponentListTool handles the flowstate_component_list MCP tool.
type ComponentListTool struct {
	store *memory.Store
}

// NewComponentListTool creates a ComponentListTool.
func NewComponentListTool(store *memory.Store) *ComponentListTool {
	return &ComponentListTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_component_list.
func (t *ComponentListTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"component_list",
		append([]mcp.ToolOption{
			mcp.WithDescription("List the components of a project."),
		}, projectParams()...)...,
	)
}

// Handle processes the flowstate_component_list tool call.
func (t *ComponentListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, res := resolveProject(ctx, t.store, req)
	if res != nil {
		return res, nil
	}
	comps, err := t.store.ListComponents(ctx, projectID)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(comps), nil
}

// ─── ComponentUpdateTool ────────────────────────────────────────────────────

// ComponentUpdateTool handles the flowstate_component_update MCP tool.
type ComponentUpdateTool struct {
	store *memory.Store
}

// NewComponentUpdateTool creates a ComponentUpdateTool.
func NewComponentUpdateTool(store *memory.Store) *ComponentUpdateTool {
	return &ComponentUpdateTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_component_update.
func (t *ComponentUpdateTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"component_update",
		mcp.WithDescription("Update a component. Re-parenting is rejected when it would create a cycle."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Component id")),
		mcp.WithString("name", mcp.Description("New name")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("status", mcp.Description(enumDesc("New status", memory.ComponentStatuses))),
		mcp.WithNumber("parent_component_id", mcp.Description("New parent component id")),
		mcp.WithBoolean("clear_parent", mcp.Description("Detach from the current parent")),
	)
}

// Handle processes the flowstate_component_update tool call.
func (t *ComponentUpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	c, err := t.store.UpdateComponent(ctx, id, memory.UpdateComponentParams{
		Name:              optStringArg(req, "name"),
		Description:       optStringArg(req, "description"),
		Status:            optStringArg(req, "status"),
		ParentComponentID: optIDArg(req, "parent_component_id"),
		ClearParent:       boolArg(req, "clear_parent", false),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(c), nil
}

// ─── ComponentDeleteTool ────────────────────────────────────────────────────

// ComponentDeleteTool handles the flowstate_component_delete MCP tool.
type ComponentDeleteTool struct {
	store *memory.Store
}

// NewComponentDeleteTool creates a ComponentDeleteTool.
func NewComponentDeleteTool(store *memory.Store) *ComponentDeleteTool {
	return &ComponentDeleteTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_component_delete.
func (t *ComponentDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"component_delete",
		mcp.WithDescription("Delete a component with its changes and problems."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Component id")),
	)
}

// Handle processes the flowstate_component_delete tool call.
func (t *ComponentDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	if err := t.store.DeleteComponent(ctx, id); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Component #%d deleted", id)), nil
}
