package memtools

import (
	"context"
	"fmt"

	"github.com/HendryAvila/flowstate/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// TodoAddTool handles the flowstate_todo_add MCP tool.
type TodoAddTool struct {
	store *memory.Store
}

// NewTodoAddTool creates a TodoAddTool.
func NewTodoAddTool(store *memory.Store) *TodoAddTool {
	return &TodoAddTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_todo_add.
func (t *TodoAddTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"todo_add",
		append([]mcp.ToolOption{
			mcp.WithDescription("Add a todo to a project. A todo blocked by a problem is created in the blocked state."),
			mcp.WithString("title", mcp.Required(), mcp.Description("What needs doing")),
			mcp.WithString("description", mcp.Description("Details")),
			mcp.WithString("priority", mcp.Description(enumDesc("Priority (default medium)", memory.Priorities))),
			mcp.WithString("due_date", mcp.Description("Due date, YYYY-MM-DD")),
			mcp.WithNumber("component_id", mcp.Description("Component the todo belongs to")),
			mcp.WithNumber("blocked_by_problem_id", mcp.Description("Problem that blocks this todo")),
		}, projectParams()...)...,
	)
}

// Handle processes the flowstate_todo_add tool call.
func (t *TodoAddTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, res := resolveProject(ctx, t.store, req)
	if res != nil {
		return res, nil
	}
	todo, err := t.store.AddTodo(ctx, memory.AddTodoParams{
		ProjectID:          projectID,
		ComponentID:        optIDArg(req, "component_id"),
		Title:              req.GetString("title", ""),
		Description:        req.GetString("description", ""),
		Priority:           req.GetString("priority", ""),
		DueDate:            req.GetString("due_date", ""),
		BlockedByProblemID: optIDArg(req, "blocked_by_problem_id"),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(todo), nil
}

// ─── TodoListTool ───────────────────────────────────────────────────────────

// TodoListTool handles the flowstate_todo_list MCP tool.
type TodoListTool struct {
	store *memory.Store
}

// NewTodoListTool creates a TodoListTool.
func NewTodoListTool(store *memory.Store) *TodoListTool {
	return &TodoListTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_todo_list.
func (t *TodoListTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"todo_list",
		append([]mcp.ToolOption{
			mcp.WithDescription("List a project's todos, most urgent first. Done and cancelled todos are hidden unless asked for."),
			mcp.WithArray("status",
				mcp.Description(enumDesc("Statuses to include", memory.TodoStatuses)),
				mcp.Items(map[string]any{"type": "string"}),
			),
			mcp.WithArray("priority",
				mcp.Description(enumDesc("Priorities to include", memory.Priorities)),
				mcp.Items(map[string]any{"type": "string"}),
			),
			mcp.WithBoolean("include_closed", mcp.Description("Include done and cancelled todos")),
			mcp.WithNumber("limit", mcp.Description("Max results")),
		}, projectParams()...)...,
	)
}

// Handle processes the flowstate_todo_list tool call.
func (t *TodoListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, res := resolveProject(ctx, t.store, req)
	if res != nil {
		return res, nil
	}
	todos, err := t.store.ListTodos(ctx, projectID, memory.TodoFilter{
		Statuses:      stringsArg(req, "status"),
		Priorities:    stringsArg(req, "priority"),
		IncludeClosed: boolArg(req, "include_closed", false),
		Limit:         intArg(req, "limit", 0),
	})
	if err != nil {
		return errorResult(err), nil
	}
	if len(todos) == 0 {
		return mcp.NewToolResultText("No matching todos."), nil
	}
	return jsonResult(todos), nil
}

// ─── TodoUpdateTool ─────────────────────────────────────────────────────────

// TodoUpdateTool handles the flowstate_todo_update MCP tool.
type TodoUpdateTool struct {
	store *memory.Store
}

// NewTodoUpdateTool creates a TodoUpdateTool.
func NewTodoUpdateTool(store *memory.Store) *TodoUpdateTool {
	return &TodoUpdateTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_todo_update.
func (t *TodoUpdateTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"todo_update",
		mcp.WithDescription("Update a todo. Setting status to done stamps its completion time."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Todo id")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("priority", mcp.Description(enumDesc("New priority", memory.Priorities))),
		mcp.WithString("status", mcp.Description(enumDesc("New status", memory.TodoStatuses))),
		mcp.WithString("due_date", mcp.Description("New due date, YYYY-MM-DD")),
		mcp.WithNumber("blocked_by_problem_id", mcp.Description("Problem that now blocks this todo")),
		mcp.WithBoolean("clear_blocked", mcp.Description("Remove the blocking problem")),
	)
}

// Handle processes the flowstate_todo_update tool call.
func (t *TodoUpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	todo, err := t.store.UpdateTodo(ctx, id, memory.UpdateTodoParams{
		Title:              optStringArg(req, "title"),
		Description:        optStringArg(req, "description"),
		Priority:           optStringArg(req, "priority"),
		Status:             optStringArg(req, "status"),
		DueDate:            optStringArg(req, "due_date"),
		BlockedByProblemID: optIDArg(req, "blocked_by_problem_id"),
		ClearBlocked:       boolArg(req, "clear_blocked", false),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(todo), nil
}

// ─── TodoDeleteTool ─────────────────────────────────────────────────────────

// TodoDeleteTool handles the flowstate_todo_delete MCP tool.
type TodoDeleteTool struct {
	store *memory.Store
}

// NewTodoDeleteTool creates a TodoDeleteTool.
func NewTodoDeleteTool(store *memory.Store) *TodoDeleteTool {
	return &TodoDeleteTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_todo_delete.
func (t *TodoDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"todo_delete",
		mcp.WithDescription("Delete a todo."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Todo id")),
	)
}

// Handle processes the flowstate_todo_delete tool call.
func (t *TodoDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	if err := t.store.DeleteTodo(ctx, id); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Todo #%d deleted", id)), nil
}
