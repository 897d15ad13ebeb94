package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/HendryAvila/flowstate/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// ─── LinkTool ───────────────────────────────────────────────────────────────

// LinkTool handles the flowstate_link MCP tool.
type LinkTool struct {
	store *memory.Store
}

// NewLinkTool creates a LinkTool with the given memory store.
func NewLinkTool(store *memory.Store) *LinkTool {
	return &LinkTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_link.
func (t *LinkTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"link",
		mcp.WithDescription(
			"Create a typed relationship between any two items, e.g. a problem similar_to an older problem, "+
				"or a learning derived_from a solution. Both items must exist.",
		),
		mcp.WithString("source_type", mcp.Required(), mcp.Description(enumDesc("Source item type", memory.ContentTypes))),
		mcp.WithNumber("source_id", mcp.Required(), mcp.Description("Source item id")),
		mcp.WithString("target_type", mcp.Required(), mcp.Description(enumDesc("Target item type", memory.ContentTypes))),
		mcp.WithNumber("target_id", mcp.Required(), mcp.Description("Target item id")),
		mcp.WithString("relationship", mcp.Description(enumDesc("Relationship (default related_to)", memory.Relationships))),
		mcp.WithString("notes", mcp.Description("Why they are related")),
	)
}

// Handle processes the flowstate_link tool call.
func (t *LinkTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceID, res := idArg(req, "source_id")
	if res != nil {
		return res, nil
	}
	targetID, res := idArg(req, "target_id")
	if res != nil {
		return res, nil
	}
	x, err := t.store.Link(ctx, memory.LinkParams{
		SourceType:   req.GetString("source_type", ""),
		SourceID:     sourceID,
		TargetType:   req.GetString("target_type", ""),
		TargetID:     targetID,
		Relationship: req.GetString("relationship", ""),
		Notes:        req.GetString("notes", ""),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Linked %s #%d -[%s]-> %s #%d (ID: %d)",
		x.SourceType, x.SourceID, x.Relationship, x.TargetType, x.TargetID, x.ID)), nil
}

// ─── RelatedTool ────────────────────────────────────────────────────────────

// RelatedTool handles the flowstate_related MCP tool.
type RelatedTool struct {
	store *memory.Store
}

// NewRelatedTool creates a RelatedTool with the given memory store.
func NewRelatedTool(store *memory.Store) *RelatedTool {
	return &RelatedTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_related.
func (t *RelatedTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"related",
		mcp.WithDescription("List everything linked to an item, in both directions."),
		mcp.WithString("content_type", mcp.Required(), mcp.Description(enumDesc("Item type", memory.ContentTypes))),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Item id")),
	)
}

// Handle processes the flowstate_related tool call.
func (t *RelatedTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	contentType := req.GetString("content_type", "")
	related, err := t.store.FindRelated(ctx, contentType, id)
	if err != nil {
		return errorResult(err), nil
	}
	if len(related) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No links found for %s #%d.", contentType, id)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Links for %s #%d\n\n", contentType, id)
	for _, r := range related {
		if r.Direction == "outgoing" {
			fmt.Fprintf(&b, "→ [%s] %s #%d %s\n", r.Relationship, r.TargetType, r.TargetID, r.Title)
		} else {
			fmt.Fprintf(&b, "← [%s] %s #%d %s\n", r.Relationship, r.SourceType, r.SourceID, r.Title)
		}
		if r.Notes != "" {
			fmt.Fprintf(&b, "    %s\n", r.Notes)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}
