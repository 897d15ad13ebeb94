package memtools

import (
	"context"
	"fmt"

	"github.com/HendryAvila/flowstate/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// sessionKey returns the caller's session key, falling back to the server's.
func sessionKey(req mcp.CallToolRequest, fallback string) string {
	if k := req.GetString("session_key", ""); k != "" {
		return k
	}
	return fallback
}

func sessionKeyParam() mcp.ToolOption {
	return mcp.WithString("session_key", mcp.Description("Session identifier used to count distinct sessions (default: this server's session)"))
}

// ─── SkillLearnTool ─────────────────────────────────────────────────────────

// SkillLearnTool handles the flowstate_skill_learn MCP tool.
type SkillLearnTool struct {
	store      *memory.Store
	sessionKey string
}

// NewSkillLearnTool creates a SkillLearnTool.
func NewSkillLearnTool(store *memory.Store, sessionKey string) *SkillLearnTool {
	return &SkillLearnTool{store: store, sessionKey: sessionKey}
}

// Definition returns the MCP tool definition for flowstate_skill_learn.
func (t *SkillLearnTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"skill_learn",
		mcp.WithDescription(
			"Record a skill: something that works (a tool capability, a user preference, an approach, a gotcha). "+
				"Skills start at moderate confidence and are promoted once they keep working across sessions.",
		),
		mcp.WithString("skill_type", mcp.Required(), mcp.Description(enumDesc("Skill type", memory.SkillTypes))),
		mcp.WithString("skill", mcp.Required(), mcp.Description("The skill, stated as an instruction")),
		mcp.WithString("context", mcp.Description("When it applies")),
		mcp.WithNumber("project_id", mcp.Description("Project scope (omit for a global skill)")),
		mcp.WithString("tool_name", mcp.Description("Tool the skill is about")),
		mcp.WithString("source_type", mcp.Description("Where the skill came from")),
		sessionKeyParam(),
	)
}

// Handle processes the flowstate_skill_learn tool call.
func (t *SkillLearnTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, err := t.store.LearnSkill(ctx, memory.LearnSkillParams{
		SkillType:  req.GetString("skill_type", ""),
		Skill:      req.GetString("skill", ""),
		Context:    req.GetString("context", ""),
		ProjectID:  optIDArg(req, "project_id"),
		ToolName:   req.GetString("tool_name", ""),
		SourceType: req.GetString("source_type", ""),
		SessionKey: sessionKey(req, t.sessionKey),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(s), nil
}

// ─── SkillApplyTool ─────────────────────────────────────────────────────────

// SkillApplyTool handles the flowstate_skill_apply MCP tool.
type SkillApplyTool struct {
	store      *memory.Store
	sessionKey string
}

// NewSkillApplyTool creates a SkillApplyTool.
func NewSkillApplyTool(store *memory.Store, sessionKey string) *SkillApplyTool {
	return &SkillApplyTool{store: store, sessionKey: sessionKey}
}

// Definition returns the MCP tool definition for flowstate_skill_apply.
func (t *SkillApplyTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"skill_apply",
		mcp.WithDescription("Report that you applied a skill and whether it worked. This moves its confidence."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Skill id")),
		mcp.WithBoolean("succeeded", mcp.Required(), mcp.Description("Whether applying it worked")),
		sessionKeyParam(),
	)
}

// Handle processes the flowstate_skill_apply tool call.
func (t *SkillApplyTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	s, err := t.store.ApplySkill(ctx, id, boolArg(req, "succeeded", false), sessionKey(req, t.sessionKey))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(s), nil
}

// ─── SkillConfirmTool ───────────────────────────────────────────────────────

// SkillConfirmTool handles the flowstate_skill_confirm MCP tool.
type SkillConfirmTool struct {
	store      *memory.Store
	sessionKey string
}

// NewSkillConfirmTool creates a SkillConfirmTool.
func NewSkillConfirmTool(store *memory.Store, sessionKey string) *SkillConfirmTool {
	return &SkillConfirmTool{store: store, sessionKey: sessionKey}
}

// Definition returns the MCP tool definition for flowstate_skill_confirm.
func (t *SkillConfirmTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"skill_confirm",
		mcp.WithDescription("Note that a skill was seen in this session without applying it. Counts toward promotion."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Skill id")),
		sessionKeyParam(),
	)
}

// Handle processes the flowstate_skill_confirm tool call.
func (t *SkillConfirmTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	s, err := t.store.ConfirmSkill(ctx, id, sessionKey(req, t.sessionKey))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(s), nil
}

// ─── SkillListTool ──────────────────────────────────────────────────────────

// SkillListTool handles the flowstate_skill_list MCP tool.
type SkillListTool struct {
	store *memory.Store
}

// NewSkillListTool creates a SkillListTool.
func NewSkillListTool(store *memory.Store) *SkillListTool {
	return &SkillListTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_skill_list.
func (t *SkillListTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"skill_list",
		mcp.WithDescription("List skills, promoted first, then by confidence. A project filter includes global skills."),
		mcp.WithNumber("project_id", mcp.Description("Project scope")),
		mcp.WithString("skill_type", mcp.Description(enumDesc("Skill type filter", memory.SkillTypes))),
		mcp.WithNumber("min_confidence", mcp.Description("Lowest confidence to include, 0..1")),
		mcp.WithBoolean("promoted_only", mcp.Description("Only promoted skills")),
		mcp.WithNumber("limit", mcp.Description("Max results (default 20)")),
	)
}

// Handle processes the flowstate_skill_list tool call.
func (t *SkillListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	skills, err := t.store.ListSkills(ctx, memory.SkillFilter{
		ProjectID:     optIDArg(req, "project_id"),
		SkillType:     req.GetString("skill_type", ""),
		MinConfidence: floatArg(req, "min_confidence", 0),
		PromotedOnly:  boolArg(req, "promoted_only", false),
		Limit:         intArg(req, "limit", 0),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(skills), nil
}

// ─── SkillDeleteTool ────────────────────────────────────────────────────────

// SkillDeleteTool handles the flowstate_skill_delete MCP tool.
type SkillDeleteTool struct {
	store *memory.Store
}

// NewSkillDeleteTool creates a SkillDeleteTool.
func NewSkillDeleteTool(store *memory.Store) *SkillDeleteTool {
	return &SkillDeleteTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_skill_delete.
func (t *SkillDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"skill_delete",
		mcp.WithDescription("Delete a skill that is wrong or obsolete."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Skill id")),
	)
}

// Handle processes the flowstate_skill_delete tool call.
func (t *SkillDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	if err := t.store.DeleteSkill(ctx, id); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Skill #%d deleted", id)), nil
}

// ─── PatternRecordTool ──────────────────────────────────────────────────────

// PatternRecordTool handles the flowstate_pattern_record MCP tool.
type PatternRecordTool struct {
	store      *memory.Store
	sessionKey string
}

// NewPatternRecordTool creates a PatternRecordTool.
func NewPatternRecordTool(store *memory.Store, sessionKey string) *PatternRecordTool {
	return &PatternRecordTool{store: store, sessionKey: sessionKey}
}

// Definition returns the MCP tool definition for flowstate_pattern_record.
func (t *PatternRecordTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"pattern_record",
		mcp.WithDescription("Record a behaviour pattern: when the trigger conditions hold, take the listed actions."),
		mcp.WithString("pattern_type", mcp.Required(), mcp.Description(enumDesc("Pattern type", memory.PatternTypes))),
		mcp.WithString("pattern_name", mcp.Required(), mcp.Description("Short name")),
		mcp.WithObject("trigger_conditions", mcp.Description("When the pattern applies, as a JSON object")),
		mcp.WithArray("actions", mcp.Description("What to do"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithNumber("project_id", mcp.Description("Project scope (omit for a global pattern)")),
		mcp.WithString("source", mcp.Description(enumDesc("Origin (default learned)", memory.PatternSources))),
		sessionKeyParam(),
	)
}

// Handle processes the flowstate_pattern_record tool call.
func (t *PatternRecordTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := t.store.RecordPattern(ctx, memory.RecordPatternParams{
		PatternType:       req.GetString("pattern_type", ""),
		PatternName:       req.GetString("pattern_name", ""),
		TriggerConditions: objectArg(req, "trigger_conditions"),
		Actions:           stringsArg(req, "actions"),
		ProjectID:         optIDArg(req, "project_id"),
		Source:            req.GetString("source", ""),
		SessionKey:        sessionKey(req, t.sessionKey),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(p), nil
}

// ─── PatternApplyTool ───────────────────────────────────────────────────────

// PatternApplyTool handles the flowstate_pattern_apply MCP tool.
type PatternApplyTool struct {
	store      *memory.Store
	sessionKey string
}

// NewPatternApplyTool creates a PatternApplyTool.
func NewPatternApplyTool(store *memory.Store, sessionKey string) *PatternApplyTool {
	return &PatternApplyTool{store: store, sessionKey: sessionKey}
}

// Definition returns the MCP tool definition for flowstate_pattern_apply.
func (t *PatternApplyTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"pattern_apply",
		mcp.WithDescription("Report that you followed a pattern and whether it worked."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Pattern id")),
		mcp.WithBoolean("succeeded", mcp.Required(), mcp.Description("Whether following it worked")),
		sessionKeyParam(),
	)
}

// Handle processes the flowstate_pattern_apply tool call.
func (t *PatternApplyTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	p, err := t.store.ApplyPattern(ctx, id, boolArg(req, "succeeded", false), sessionKey(req, t.sessionKey))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(p), nil
}

// ─── PatternConfirmTool ─────────────────────────────────────────────────────

// PatternConfirmTool handles the flowstate_pattern_confirm MCP tool.
type PatternConfirmTool struct {
	store      *memory.Store
	sessionKey string
}

// NewPatternConfirmTool creates a PatternConfirmTool.
func NewPatternConfirmTool(store *memory.Store, sessionKey string) *PatternConfirmTool {
	return &PatternConfirmTool{store: store, sessionKey: sessionKey}
}

// Definition returns the MCP tool definition for flowstate_pattern_confirm.
func (t *PatternConfirmTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"pattern_confirm",
		mcp.WithDescription("Note that a pattern was observed in this session. Counts toward promotion."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Pattern id")),
		sessionKeyParam(),
	)
}

// Handle processes the flowstate_pattern_confirm tool call.
func (t *PatternConfirmTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	p, err := t.store.ConfirmPattern(ctx, id, sessionKey(req, t.sessionKey))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(p), nil
}

// ─── PatternListTool ────────────────────────────────────────────────────────

// PatternListTool handles the flowstate_pattern_list MCP tool.
type PatternListTool struct {
	store *memory.Store
}

// NewPatternListTool creates a PatternListTool.
func NewPatternListTool(store *memory.Store) *PatternListTool {
	return &PatternListTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_pattern_list.
func (t *PatternListTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"pattern_list",
		mcp.WithDescription("List behaviour patterns. active_above keeps promoted patterns and those at or above the given confidence."),
		mcp.WithNumber("project_id", mcp.Description("Project scope (includes global patterns)")),
		mcp.WithString("pattern_type", mcp.Description(enumDesc("Pattern type filter", memory.PatternTypes))),
		mcp.WithNumber("active_above", mcp.Description("Confidence floor, 0..1")),
		mcp.WithNumber("limit", mcp.Description("Max results (default 20)")),
	)
}

// Handle processes the flowstate_pattern_list tool call.
func (t *PatternListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	patterns, err := t.store.ListPatterns(ctx, memory.PatternFilter{
		ProjectID:   optIDArg(req, "project_id"),
		PatternType: req.GetString("pattern_type", ""),
		ActiveAbove: floatArg(req, "active_above", 0),
		Limit:       intArg(req, "limit", 0),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(patterns), nil
}

// ─── PatternDeleteTool ──────────────────────────────────────────────────────

// PatternDeleteTool handles the flowstate_pattern_delete MCP tool.
type PatternDeleteTool struct {
	store *memory.Store
}

// NewPatternDeleteTool creates a PatternDeleteTool.
func NewPatternDeleteTool(store *memory.Store) *PatternDeleteTool {
	return &PatternDeleteTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_pattern_delete.
func (t *PatternDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"pattern_delete",
		mcp.WithDescription("Delete a pattern."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Pattern id")),
	)
}

// Handle processes the flowstate_pattern_delete tool call.
func (t *PatternDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	if err := t.store.DeletePattern(ctx, id); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Pattern #%d deleted", id)), nil
}
