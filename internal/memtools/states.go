package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/HendryAvila/flowstate/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// statePayloadParams are the snapshot fields shared by state_save and
// session_finalize.
func statePayloadParams() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("focus_summary", mcp.Description("What you were working on")),
		mcp.WithArray("active_problem_ids", mcp.Description("Problems in flight"), mcp.Items(map[string]any{"type": "number"})),
		mcp.WithArray("active_component_ids", mcp.Description("Components in flight"), mcp.Items(map[string]any{"type": "number"})),
		mcp.WithArray("pending_decisions", mcp.Description("Decisions still open"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("key_facts", mcp.Description("Facts the next session must know"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithNumber("tool_calls_this_session", mcp.Description("Tool calls made so far")),
		mcp.WithNumber("estimated_tokens", mcp.Description("Tokens spent so far")),
	}
}

func statePayload(req mcp.CallToolRequest) memory.StatePayload {
	return memory.StatePayload{
		FocusSummary:         req.GetString("focus_summary", ""),
		ActiveProblemIDs:     idsArg(req, "active_problem_ids"),
		ActiveComponentIDs:   idsArg(req, "active_component_ids"),
		PendingDecisions:     stringsArg(req, "pending_decisions"),
		KeyFacts:             stringsArg(req, "key_facts"),
		ToolCallsThisSession: intArg(req, "tool_calls_this_session", 0),
		EstimatedTokens:      intArg(req, "estimated_tokens", 0),
	}
}

// ─── StateSaveTool ──────────────────────────────────────────────────────────

// StateSaveTool handles the flowstate_state_save MCP tool.
type StateSaveTool struct {
	store *memory.Store
}

// NewStateSaveTool creates a StateSaveTool.
func NewStateSaveTool(store *memory.Store) *StateSaveTool {
	return &StateSaveTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_state_save.
func (t *StateSaveTool) Definition() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Save a session-state snapshot. Chain snapshots with previous_state_id so the next session can pick up where this one stopped. " +
				"Save a checkpoint before long operations and a handoff before the context runs out.",
		),
		mcp.WithString("state_type", mcp.Required(), mcp.Description(enumDesc("Snapshot type", memory.StateTypes))),
		mcp.WithNumber("previous_state_id", mcp.Description("Snapshot this one follows")),
	}
	opts = append(opts, statePayloadParams()...)
	opts = append(opts, projectParams()...)
	return mcp.NewTool(Prefix+"state_save", opts...)
}

// Handle processes the flowstate_state_save tool call.
func (t *StateSaveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, res := resolveProject(ctx, t.store, req)
	if res != nil {
		return res, nil
	}
	st, err := t.store.SaveState(ctx, memory.SaveStateParams{
		ProjectID:       projectID,
		StateType:       req.GetString("state_type", ""),
		PreviousStateID: optIDArg(req, "previous_state_id"),
		StatePayload:    statePayload(req),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(st), nil
}

// ─── StateChainTool ─────────────────────────────────────────────────────────

// StateChainTool handles the flowstate_state_chain MCP tool.
type StateChainTool struct {
	store *memory.Store
}

// NewStateChainTool creates a StateChainTool.
func NewStateChainTool(store *memory.Store) *StateChainTool {
	return &StateChainTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_state_chain.
func (t *StateChainTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"state_chain",
		mcp.WithDescription("Walk a snapshot's history backward, newest first."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Snapshot id to start from")),
		mcp.WithNumber("depth", mcp.Description("Max snapshots to return (default 5)")),
	)
}

// Handle processes the flowstate_state_chain tool call.
func (t *StateChainTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	chain, err := t.store.StateChain(ctx, id, intArg(req, "depth", 0))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(chain), nil
}

// ─── StateLatestTool ────────────────────────────────────────────────────────

// StateLatestTool handles the flowstate_state_latest MCP tool.
type StateLatestTool struct {
	store *memory.Store
}

// NewStateLatestTool creates a StateLatestTool.
func NewStateLatestTool(store *memory.Store) *StateLatestTool {
	return &StateLatestTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_state_latest.
func (t *StateLatestTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"state_latest",
		append([]mcp.ToolOption{
			mcp.WithDescription("Fetch the most recent snapshot of a project."),
		}, projectParams()...)...,
	)
}

// Handle processes the flowstate_state_latest tool call.
func (t *StateLatestTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, res := resolveProject(ctx, t.store, req)
	if res != nil {
		return res, nil
	}
	st, err := t.store.LatestState(ctx, projectID)
	if err != nil {
		return errorResult(err), nil
	}
	if st == nil {
		return mcp.NewToolResultText("No snapshots saved for this project yet."), nil
	}
	return jsonResult(st), nil
}

// ─── StateGetTool ───────────────────────────────────────────────────────────

// StateGetTool handles the flowstate_state_get MCP tool.
type StateGetTool struct {
	store *memory.Store
}

// NewStateGetTool creates a StateGetTool.
func NewStateGetTool(store *memory.Store) *StateGetTool {
	return &StateGetTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_state_get.
func (t *StateGetTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"state_get",
		mcp.WithDescription("Restore one snapshot by id, for resuming from a point other than the latest."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Snapshot id")),
	)
}

// Handle processes the flowstate_state_get tool call.
func (t *StateGetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	st, err := t.store.GetState(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(st), nil
}

// ─── StateDeleteTool ────────────────────────────────────────────────────────

// StateDeleteTool handles the flowstate_state_delete MCP tool.
type StateDeleteTool struct {
	store *memory.Store
}

// NewStateDeleteTool creates a StateDeleteTool.
func NewStateDeleteTool(store *memory.Store) *StateDeleteTool {
	return &StateDeleteTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_state_delete.
func (t *StateDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"state_delete",
		mcp.WithDescription("Delete a snapshot. Snapshots that followed it start a new chain."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Snapshot id")),
	)
}

// Handle processes the flowstate_state_delete tool call.
func (t *StateDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	if err := t.store.DeleteState(ctx, id); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Snapshot #%d deleted", id)), nil
}

// ─── SessionInitializeTool ──────────────────────────────────────────────────

// SessionInitializeTool handles the flowstate_session_initialize MCP tool.
type SessionInitializeTool struct {
	store *memory.Store
}

// NewSessionInitializeTool creates a SessionInitializeTool.
func NewSessionInitializeTool(store *memory.Store) *SessionInitializeTool {
	return &SessionInitializeTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_session_initialize.
func (t *SessionInitializeTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"session_initialize",
		append([]mcp.ToolOption{
			mcp.WithDescription(
				"Brief yourself at the start of a session: the last snapshot and its history, confident skills, " +
					"recommended tools for the task type, and active patterns.",
			),
			mcp.WithString("task_type", mcp.Description("Kind of work ahead (e.g. debugging, refactor) to rank tools")),
			mcp.WithString("format", mcp.Description("text (default) or json")),
		}, projectParams()...)...,
	)
}

// Handle processes the flowstate_session_initialize tool call.
func (t *SessionInitializeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, res := resolveProject(ctx, t.store, req)
	if res != nil {
		return res, nil
	}
	brief, err := t.store.InitializeSession(ctx, projectID, req.GetString("task_type", ""))
	if err != nil {
		return errorResult(err), nil
	}
	if req.GetString("format", "text") == "json" {
		return jsonResult(brief), nil
	}
	return mcp.NewToolResultText(formatBriefing(brief)), nil
}

func formatBriefing(b *memory.Briefing) string {
	var sb strings.Builder
	sb.WriteString("## Session Briefing\n\n")

	if b.LatestState == nil {
		sb.WriteString("No previous snapshot. Starting fresh.\n\n")
	} else {
		st := b.LatestState
		fmt.Fprintf(&sb, "### Last snapshot #%d (%s, %s)\n", st.ID, st.StateType, st.CreatedAt)
		if st.FocusSummary != "" {
			fmt.Fprintf(&sb, "Focus: %s\n", st.FocusSummary)
		}
		for _, f := range st.KeyFacts {
			fmt.Fprintf(&sb, "- fact: %s\n", f)
		}
		for _, d := range st.PendingDecisions {
			fmt.Fprintf(&sb, "- pending: %s\n", d)
		}
		if len(b.Chain) > 1 {
			fmt.Fprintf(&sb, "History: %d earlier snapshots\n", len(b.Chain)-1)
		}
		sb.WriteString("\n")
	}

	if len(b.Skills) > 0 {
		sb.WriteString("### Skills\n")
		for _, s := range b.Skills {
			mark := ""
			if s.Promoted {
				mark = " ★"
			}
			fmt.Fprintf(&sb, "- #%d [%s] %s (%.2f)%s\n", s.ID, s.SkillType, s.Skill, s.Confidence, mark)
		}
		sb.WriteString("\n")
	}

	if len(b.Tools) > 0 {
		sb.WriteString("### Recommended tools\n")
		for _, r := range b.Tools {
			fmt.Fprintf(&sb, "- %s/%s (%.0f%% over %d uses)\n", r.MCPServer, r.ToolName, r.SuccessRate*100, r.Uses)
		}
		sb.WriteString("\n")
	}

	if len(b.Patterns) > 0 {
		sb.WriteString("### Active patterns\n")
		for _, p := range b.Patterns {
			fmt.Fprintf(&sb, "- #%d %s: %s\n", p.ID, p.PatternName, strings.Join(p.Actions, "; "))
		}
	}
	return sb.String()
}

// ─── SessionFinalizeTool ────────────────────────────────────────────────────

// SessionFinalizeTool handles the flowstate_session_finalize MCP tool.
type SessionFinalizeTool struct {
	store *memory.Store
}

// NewSessionFinalizeTool creates a SessionFinalizeTool.
func NewSessionFinalizeTool(store *memory.Store) *SessionFinalizeTool {
	return &SessionFinalizeTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_session_finalize.
func (t *SessionFinalizeTool) Definition() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Close out a session: save an end snapshot after the given one and promote every skill and pattern " +
				"that has earned it, in one step.",
		),
		mcp.WithNumber("state_id", mcp.Required(), mcp.Description("Latest snapshot of this session")),
	}
	opts = append(opts, statePayloadParams()...)
	return mcp.NewTool(Prefix+"session_finalize", opts...)
}

// Handle processes the flowstate_session_finalize tool call.
func (t *SessionFinalizeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stateID, res := idArg(req, "state_id")
	if res != nil {
		return res, nil
	}
	fin, err := t.store.FinalizeSession(ctx, stateID, statePayload(req))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(fin), nil
}

// ─── PromoteTool ────────────────────────────────────────────────────────────

// PromoteTool handles the flowstate_promote MCP tool.
type PromoteTool struct {
	store *memory.Store
}

// NewPromoteTool creates a PromoteTool.
func NewPromoteTool(store *memory.Store) *PromoteTool {
	return &PromoteTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_promote.
func (t *PromoteTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"promote",
		mcp.WithDescription(
			"Promote skills and patterns seen in enough sessions with a high enough success rate. "+
				"Pass decay_below to also drop unpromoted knowledge whose confidence fell under that floor.",
		),
		mcp.WithNumber("min_sessions", mcp.Description("Distinct sessions required; 0 or omitted uses the configured value")),
		mcp.WithNumber("min_success_rate", mcp.Description("Success rate required, 0..1; 0 or omitted uses the configured value")),
		mcp.WithNumber("decay_below", mcp.Description("Confidence floor for decay, 0..1")),
	)
}

// Handle processes the flowstate_promote tool call.
func (t *PromoteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	promo, err := t.store.PromoteSweep(ctx, memory.PromotionThresholds{
		MinSessions:    intArg(req, "min_sessions", 0),
		MinSuccessRate: floatArg(req, "min_success_rate", 0),
	})
	if err != nil {
		return errorResult(err), nil
	}
	out := struct {
		Promoted *memory.Promotion `json:"promoted"`
		Decayed  *memory.Decay     `json:"decayed,omitempty"`
	}{Promoted: promo}

	if _, ok := req.GetArguments()["decay_below"]; ok {
		decay, err := t.store.DecaySweep(ctx, floatArg(req, "decay_below", 0))
		if err != nil {
			return errorResult(err), nil
		}
		out.Decayed = decay
	}
	return jsonResult(out), nil
}
