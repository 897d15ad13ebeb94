// Package memtools provides the MCP tool handlers for FlowState.
//
// Each tool handler follows the same pattern:
// - A struct with dependencies (memory.Store, search.Retriever) injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// Domain failures are returned as tool error results whose text starts with
// the error kind ("not found:", "validation:", "conflict:"), never as Go
// errors, so the client can tell them apart from transport failures.
package memtools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/HendryAvila/flowstate/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// Prefix is prepended to every tool name.
const Prefix = "flowstate_"

// Tool is implemented by every handler in this package.
type Tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// idArg extracts a required id argument.
func idArg(req mcp.CallToolRequest, key string) (int64, *mcp.CallToolResult) {
	v, ok := req.GetArguments()[key].(float64)
	if !ok || v <= 0 {
		return 0, mcp.NewToolResultError(fmt.Sprintf("validation: %s: a positive id is required", key))
	}
	return int64(v), nil
}

// optIDArg extracts an optional id argument; absent or non-positive is nil.
func optIDArg(req mcp.CallToolRequest, key string) *int64 {
	v, ok := req.GetArguments()[key].(float64)
	if !ok || v <= 0 {
		return nil
	}
	id := int64(v)
	return &id
}

// floatArg extracts a float argument.
func floatArg(req mcp.CallToolRequest, key string, defaultVal float64) float64 {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return v
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// optStringArg returns a pointer when the key is present, even if empty, so
// updates can clear a field.
func optStringArg(req mcp.CallToolRequest, key string) *string {
	v, ok := req.GetArguments()[key].(string)
	if !ok {
		return nil
	}
	return &v
}

// stringsArg accepts a JSON array of strings or a comma-separated string.
func stringsArg(req mcp.CallToolRequest, key string) []string {
	switch v := req.GetArguments()[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case string:
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// idsArg accepts a JSON array of numbers.
func idsArg(req mcp.CallToolRequest, key string) []int64 {
	arr, ok := req.GetArguments()[key].([]any)
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(arr))
	for _, item := range arr {
		if f, ok := item.(float64); ok && f > 0 {
			out = append(out, int64(f))
		}
	}
	return out
}

// objectArg extracts a JSON object argument.
func objectArg(req mcp.CallToolRequest, key string) map[string]any {
	v, _ := req.GetArguments()[key].(map[string]any)
	return v
}

// errorResult converts a store error into a tool error result. Typed errors
// already start with their kind.
func errorResult(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, memory.ErrNotFound), errors.Is(err, memory.ErrValidation), errors.Is(err, memory.ErrConflict):
		return mcp.NewToolResultError(err.Error())
	default:
		return mcp.NewToolResultError("internal: " + err.Error())
	}
}

// jsonResult renders v as indented JSON.
func jsonResult(v any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError("internal: encode result: " + err.Error())
	}
	return mcp.NewToolResultText(string(b))
}

// resolveProject accepts either "project_id" or a "project" name.
func resolveProject(ctx context.Context, store *memory.Store, req mcp.CallToolRequest) (int64, *mcp.CallToolResult) {
	if id := optIDArg(req, "project_id"); id != nil {
		return *id, nil
	}
	name := strings.TrimSpace(req.GetString("project", ""))
	if name == "" {
		return 0, mcp.NewToolResultError("validation: project: 'project' or 'project_id' is required")
	}
	p, err := store.GetProjectByName(ctx, name)
	if err != nil {
		return 0, errorResult(err)
	}
	return p.ID, nil
}

// projectParams are the schema options shared by project-scoped tools.
func projectParams() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("project", mcp.Description("Project name (or pass project_id)")),
		mcp.WithNumber("project_id", mcp.Description("Project id (or pass project)")),
	}
}

func enumDesc(label string, values []string) string {
	return fmt.Sprintf("%s: %s", label, strings.Join(values, ", "))
}
