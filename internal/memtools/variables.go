package memtools

import (
	"context"
	"fmt"

	"github.com/HendryAvila/flowstate/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// VariableSetTool handles the flowstate_variable_set MCP tool.
type VariableSetTool struct {
	store *memory.Store
}

// NewVariableSetTool creates a VariableSetTool.
func NewVariableSetTool(store *memory.Store) *VariableSetTool {
	return &VariableSetTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_variable_set.
func (t *VariableSetTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"variable_set",
		append([]mcp.ToolOption{
			mcp.WithDescription("Store a named project value such as a server address or endpoint. Secret values are masked when listed."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Variable name, unique per project")),
			mcp.WithString("value", mcp.Description("Value")),
			mcp.WithString("category", mcp.Description(enumDesc("Category", memory.VariableCategories)+" (default custom)")),
			mcp.WithBoolean("is_secret", mcp.Description("Mask the value in listings")),
			mcp.WithString("description", mcp.Description("What the value is for")),
		}, projectParams()...)...,
	)
}

// Handle processes the flowstate_variable_set tool call.
func (t *VariableSetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, res := resolveProject(ctx, t.store, req)
	if res != nil {
		return res, nil
	}
	v, err := t.store.CreateVariable(ctx, memory.SetVariableParams{
		ProjectID:   projectID,
		Name:        req.GetString("name", ""),
		Value:       req.GetString("value", ""),
		Category:    req.GetString("category", ""),
		IsSecret:    boolArg(req, "is_secret", false),
		Description: req.GetString("description", ""),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(v), nil
}

// ─── VariableListTool ───────────────────────────────────────────────────────

// VariableListTool handles the flowstate_variable_list MCP tool.
type VariableListTool struct {
	store *memory.Store
}

// NewVariableListTool creates a VariableListTool.
func NewVariableListTool(store *memory.Store) *VariableListTool {
	return &VariableListTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_variable_list.
func (t *VariableListTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"variable_list",
		append([]mcp.ToolOption{
			mcp.WithDescription("List a project's variables by category and name."),
			mcp.WithString("category", mcp.Description(enumDesc("Category", memory.VariableCategories))),
			mcp.WithBoolean("reveal", mcp.Description("Show secret values in clear")),
		}, projectParams()...)...,
	)
}

// Handle processes the flowstate_variable_list tool call.
func (t *VariableListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, res := resolveProject(ctx, t.store, req)
	if res != nil {
		return res, nil
	}
	vars, err := t.store.ListVariables(ctx, projectID, req.GetString("category", ""), boolArg(req, "reveal", false))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(vars), nil
}

// ─── VariableUpdateTool ─────────────────────────────────────────────────────

// VariableUpdateTool handles the flowstate_variable_update MCP tool.
type VariableUpdateTool struct {
	store *memory.Store
}

// NewVariableUpdateTool creates a VariableUpdateTool.
func NewVariableUpdateTool(store *memory.Store) *VariableUpdateTool {
	return &VariableUpdateTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_variable_update.
func (t *VariableUpdateTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"variable_update",
		mcp.WithDescription("Update a variable. Only the fields passed are changed."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Variable id")),
		mcp.WithString("name", mcp.Description("New name")),
		mcp.WithString("value", mcp.Description("New value")),
		mcp.WithString("category", mcp.Description(enumDesc("Category", memory.VariableCategories))),
		mcp.WithBoolean("is_secret", mcp.Description("Mask the value in listings")),
		mcp.WithString("description", mcp.Description("New description")),
	)
}

// Handle processes the flowstate_variable_update tool call.
func (t *VariableUpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	p := memory.UpdateVariableParams{
		Name:        optStringArg(req, "name"),
		Value:       optStringArg(req, "value"),
		Category:    optStringArg(req, "category"),
		Description: optStringArg(req, "description"),
	}
	if v, ok := req.GetArguments()["is_secret"].(bool); ok {
		p.IsSecret = &v
	}
	v, err := t.store.UpdateVariable(ctx, id, p)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(v), nil
}

// ─── VariableDeleteTool ─────────────────────────────────────────────────────

// VariableDeleteTool handles the flowstate_variable_delete MCP tool.
type VariableDeleteTool struct {
	store *memory.Store
}

// NewVariableDeleteTool creates a VariableDeleteTool.
func NewVariableDeleteTool(store *memory.Store) *VariableDeleteTool {
	return &VariableDeleteTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_variable_delete.
func (t *VariableDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"variable_delete",
		mcp.WithDescription("Delete a variable."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Variable id")),
	)
}

// Handle processes the flowstate_variable_delete tool call.
func (t *VariableDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	if err := t.store.DeleteVariable(ctx, id); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Variable #%d deleted", id)), nil
}

// ─── MethodRecordTool ───────────────────────────────────────────────────────

// MethodRecordTool handles the flowstate_method_record MCP tool.
type MethodRecordTool struct {
	store *memory.Store
}

// NewMethodRecordTool creates a MethodRecordTool.
func NewMethodRecordTool(store *memory.Store) *MethodRecordTool {
	return &MethodRecordTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_method_record.
func (t *MethodRecordTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"method_record",
		append([]mcp.ToolOption{
			mcp.WithDescription("Record how this project does something: an auth flow, a deploy procedure, a convention. Methods are searchable."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Method name, unique per project")),
			mcp.WithString("description", mcp.Required(), mcp.Description("What the method achieves")),
			mcp.WithString("category", mcp.Description(enumDesc("Category", memory.MethodCategories)+" (default other)")),
			mcp.WithArray("steps", mcp.Description("Ordered steps"), mcp.Items(map[string]any{"type": "string"})),
			mcp.WithString("code_example", mcp.Description("Example code")),
			mcp.WithNumber("related_component_id", mcp.Description("Component the method belongs to")),
		}, projectParams()...)...,
	)
}

// Handle processes the flowstate_method_record tool call.
func (t *MethodRecordTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, res := resolveProject(ctx, t.store, req)
	if res != nil {
		return res, nil
	}
	m, err := t.store.CreateMethod(ctx, memory.CreateMethodParams{
		ProjectID:          projectID,
		Name:               req.GetString("name", ""),
		Description:        req.GetString("description", ""),
		Category:           req.GetString("category", ""),
		Steps:              stringsArg(req, "steps"),
		CodeExample:        req.GetString("code_example", ""),
		RelatedComponentID: optIDArg(req, "related_component_id"),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(m), nil
}

// ─── MethodListTool ─────────────────────────────────────────────────────────

// MethodListTool handles the flowstate_method_list MCP tool.
type MethodListTool struct {
	store *memory.Store
}

// NewMethodListTool creates a MethodListTool.
func NewMethodListTool(store *memory.Store) *MethodListTool {
	return &MethodListTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_method_list.
func (t *MethodListTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"method_list",
		append([]mcp.ToolOption{
			mcp.WithDescription("List a project's methods by category and name."),
			mcp.WithString("category", mcp.Description(enumDesc("Category", memory.MethodCategories))),
		}, projectParams()...)...,
	)
}

// Handle processes the flowstate_method_list tool call.
func (t *MethodListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, res := resolveProject(ctx, t.store, req)
	if res != nil {
		return res, nil
	}
	methods, err := t.store.ListMethods(ctx, projectID, req.GetString("category", ""))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(methods), nil
}

// ─── MethodUpdateTool ───────────────────────────────────────────────────────

// MethodUpdateTool handles the flowstate_method_update MCP tool.
type MethodUpdateTool struct {
	store *memory.Store
}

// NewMethodUpdateTool creates a MethodUpdateTool.
func NewMethodUpdateTool(store *memory.Store) *MethodUpdateTool {
	return &MethodUpdateTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_method_update.
func (t *MethodUpdateTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"method_update",
		mcp.WithDescription("Update a method. Only the fields passed are changed; clear_component detaches the related component."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Method id")),
		mcp.WithString("name", mcp.Description("New name")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("category", mcp.Description(enumDesc("Category", memory.MethodCategories))),
		mcp.WithArray("steps", mcp.Description("Replacement steps"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("code_example", mcp.Description("New code example")),
		mcp.WithNumber("related_component_id", mcp.Description("New related component")),
		mcp.WithBoolean("clear_component", mcp.Description("Detach the related component")),
	)
}

// Handle processes the flowstate_method_update tool call.
func (t *MethodUpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	p := memory.UpdateMethodParams{
		Name:               optStringArg(req, "name"),
		Description:        optStringArg(req, "description"),
		Category:           optStringArg(req, "category"),
		CodeExample:        optStringArg(req, "code_example"),
		RelatedComponentID: optIDArg(req, "related_component_id"),
		ClearComponent:     boolArg(req, "clear_component", false),
	}
	if _, ok := req.GetArguments()["steps"]; ok {
		steps := stringsArg(req, "steps")
		p.Steps = &steps
	}
	m, err := t.store.UpdateMethod(ctx, id, p)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(m), nil
}

// ─── MethodDeleteTool ───────────────────────────────────────────────────────

// MethodDeleteTool handles the flowstate_method_delete MCP tool.
type MethodDeleteTool struct {
	store *memory.Store
}

// NewMethodDeleteTool creates a MethodDeleteTool.
func NewMethodDeleteTool(store *memory.Store) *MethodDeleteTool {
	return &MethodDeleteTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_method_delete.
func (t *MethodDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"method_delete",
		mcp.WithDescription("Delete a method."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Method id")),
	)
}

// Handle processes the flowstate_method_delete tool call.
func (t *MethodDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	if err := t.store.DeleteMethod(ctx, id); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Method #%d deleted", id)), nil
}
