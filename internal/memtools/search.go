package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/HendryAvila/flowstate/internal/memory"
	"github.com/HendryAvila/flowstate/internal/search"
	"github.com/mark3labs/mcp-go/mcp"
)

// SearchTool handles the flowstate_search MCP tool.
type SearchTool struct {
	store     *memory.Store
	retriever *search.Retriever
}

// NewSearchTool creates a SearchTool.
func NewSearchTool(store *memory.Store, retriever *search.Retriever) *SearchTool {
	return &SearchTool{store: store, retriever: retriever}
}

// Definition returns the MCP tool definition for flowstate_search.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"search",
		mcp.WithDescription(
			"Search everything FlowState remembers: problems, solutions, attempts, learnings, changes, todos. "+
				"Keyword and semantic matches are blended; when the semantic index is down you still get keyword results. "+
				"Search BEFORE debugging: the fix may already be recorded.",
		),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language or keywords")),
		mcp.WithString("project", mcp.Description("Restrict to one project by name")),
		mcp.WithNumber("project_id", mcp.Description("Restrict to one project by id")),
		mcp.WithArray("content_types",
			mcp.Description(enumDesc("Restrict to content types", memory.ContentTypes)),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithNumber("limit", mcp.Description("Max results (default 10)")),
		mcp.WithString("detail_level",
			mcp.Description(enumDesc("How much text per hit (default standard)", memory.DetailLevelValues())),
		),
	)
}

// Handle processes the flowstate_search tool call.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(req.GetString("query", ""))
	if query == "" {
		return mcp.NewToolResultError("validation: query: must not be empty"), nil
	}

	q := search.Query{
		Text:         query,
		ContentTypes: stringsArg(req, "content_types"),
		Limit:        intArg(req, "limit", 10),
	}
	if _, ok := req.GetArguments()["project_id"]; ok || req.GetString("project", "") != "" {
		projectID, res := resolveProject(ctx, t.store, req)
		if res != nil {
			return res, nil
		}
		q.ProjectID = &projectID
	}

	resp, err := t.retriever.Search(ctx, q)
	if err != nil {
		return errorResult(err), nil
	}

	level := memory.ParseDetailLevel(req.GetString("detail_level", ""))
	return mcp.NewToolResultText(formatResults(resp, level)), nil
}

func formatResults(resp *search.Response, level string) string {
	var b strings.Builder
	if resp.Degraded != nil {
		fmt.Fprintf(&b, "Note: %s. Showing keyword matches only.\n\n", resp.Degraded.Error())
	}
	if len(resp.Results) == 0 {
		b.WriteString("No memories found matching your query.")
		return b.String()
	}

	fmt.Fprintf(&b, "Found %d results:\n\n", len(resp.Results))
	for i, r := range resp.Results {
		fmt.Fprintf(&b, "[%d] %s #%d - %s (score %.2f, %s)\n", i+1, r.ContentType, r.ContentID, r.Title, r.Score, r.Source)
		if snippet := memory.SnippetFor(level, r.Snippet); snippet != "" {
			fmt.Fprintf(&b, "    %s\n", strings.ReplaceAll(snippet, "\n", "\n    "))
		}
		b.WriteString("\n")
	}
	if level == memory.DetailSummary {
		b.WriteString("Use detail_level=standard or full to see snippets.\n")
	}
	b.WriteString(memory.TokenFooter(memory.EstimateTokens(b.String())))
	return b.String()
}
