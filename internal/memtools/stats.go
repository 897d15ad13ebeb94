package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/HendryAvila/flowstate/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// StatsTool handles the flowstate_stats MCP tool.
type StatsTool struct {
	store *memory.Store
}

// NewStatsTool creates a StatsTool with the given memory store.
func NewStatsTool(store *memory.Store) *StatsTool {
	return &StatsTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_stats.
func (t *StatsTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"stats",
		mcp.WithDescription("Show how much FlowState remembers and the health of its search index."),
	)
}

// Handle processes the flowstate_stats tool call.
func (t *StatsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := t.store.Stats(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	var sb strings.Builder
	sb.WriteString("## FlowState Statistics\n\n")
	fmt.Fprintf(&sb, "- **Projects**: %d (%d components)\n", st.Projects, st.Components)
	fmt.Fprintf(&sb, "- **Problems**: %d (%d open), %d attempts, %d solutions\n", st.Problems, st.OpenProblems, st.Attempts, st.Solutions)
	fmt.Fprintf(&sb, "- **Todos**: %d\n", st.Todos)
	fmt.Fprintf(&sb, "- **Learnings**: %d, conversations: %d, sessions: %d\n", st.Learnings, st.Conversations, st.Sessions)
	fmt.Fprintf(&sb, "- **Skills**: %d, patterns: %d (%d promoted)\n", st.Skills, st.Patterns, st.Promoted)
	fmt.Fprintf(&sb, "- **Snapshots**: %d, tools: %d\n", st.States, st.Tools)
	fmt.Fprintf(&sb, "- **Index**: %d units", st.IndexedUnits)
	if st.PendingEvicts > 0 {
		fmt.Fprintf(&sb, ", %d vector evictions pending", st.PendingEvicts)
	}
	if st.DegradedEmbeds > 0 {
		fmt.Fprintf(&sb, ", %d embeds skipped while the embedder was down", st.DegradedEmbeds)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "- **Database**: %s\n", st.DBPath)

	return mcp.NewToolResultText(sb.String()), nil
}

// ─── ReindexTool ────────────────────────────────────────────────────────────

// ReindexTool handles the flowstate_reindex MCP tool.
type ReindexTool struct {
	store *memory.Store
}

// NewReindexTool creates a ReindexTool.
func NewReindexTool(store *memory.Store) *ReindexTool {
	return &ReindexTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_reindex.
func (t *ReindexTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"reindex",
		mcp.WithDescription("Rebuild the search index from every stored item, re-embedding when the semantic index is configured."),
	)
}

// Handle processes the flowstate_reindex tool call.
func (t *ReindexTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.store.Reindex(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Reindexed %d units (%d embedded, %d skipped)", res.Units, res.Embedded, res.Skipped)), nil
}
