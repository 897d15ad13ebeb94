// Package resources implements the FlowState MCP resources.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (flowstate://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/HendryAvila/flowstate/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	projectsURI        = "flowstate://projects"
	projectContextTmpl = "flowstate://projects/{name}/context"
)

// Handler manages FlowState resource endpoints.
type Handler struct {
	store *memory.Store
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(store *memory.Store) *Handler {
	return &Handler{store: store}
}

// ProjectsResource returns the MCP resource definition for the project list.
func (h *Handler) ProjectsResource() mcp.Resource {
	return mcp.NewResource(
		projectsURI,
		"FlowState Projects",
		mcp.WithResourceDescription("Every tracked project with its status"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleProjects returns the project list as JSON.
func (h *Handler) HandleProjects(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	projects, err := h.store.ListProjects(ctx, "")
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonResource(req.Params.URI, projects)
}

// ProjectContextTemplate returns the resource template for a project's
// lean context.
func (h *Handler) ProjectContextTemplate() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(
		projectContextTmpl,
		"FlowState Project Context",
		mcp.WithTemplateDescription("Compact working context of one project: blockers, top todos and last activity"),
		mcp.WithTemplateMIMEType("application/json"),
	)
}

// HandleProjectContext returns the lean context of the project named in
// the URI.
func (h *Handler) HandleProjectContext(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	name, err := projectFromURI(req.Params.URI)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	lean, err := h.store.AssembleLean(ctx, name, h.store.Config().RecencyWindow)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonResource(req.Params.URI, lean)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
