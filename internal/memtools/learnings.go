package memtools

import (
	"context"
	"fmt"

	"github.com/HendryAvila/flowstate/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// LearningLogTool handles the flowstate_learning_log MCP tool.
type LearningLogTool struct {
	store *memory.Store
}

// NewLearningLogTool creates a LearningLogTool.
func NewLearningLogTool(store *memory.Store) *LearningLogTool {
	return &LearningLogTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_learning_log.
func (t *LearningLogTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"learning_log",
		append([]mcp.ToolOption{
			mcp.WithDescription(
				"Save an insight worth carrying into future sessions: a gotcha, a pattern, a performance finding. "+
					"Call this PROACTIVELY after you learn something non-obvious.",
			),
			mcp.WithString("insight", mcp.Required(), mcp.Description("The insight, one or two sentences")),
			mcp.WithString("category", mcp.Description(enumDesc("Category (default other)", memory.LearningCategories))),
			mcp.WithString("context", mcp.Description("Where it applies")),
			mcp.WithString("source", mcp.Description(enumDesc("Where it came from (default experience)", memory.LearningSources))),
			mcp.WithNumber("component_id", mcp.Description("Component it is about")),
			mcp.WithBoolean("verified", mcp.Description("Already confirmed")),
		}, projectParams()...)...,
	)
}

// Handle processes the flowstate_learning_log tool call.
func (t *LearningLogTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, res := resolveProject(ctx, t.store, req)
	if res != nil {
		return res, nil
	}
	l, err := t.store.LogLearning(ctx, memory.LogLearningParams{
		ProjectID:   projectID,
		ComponentID: optIDArg(req, "component_id"),
		Category:    req.GetString("category", ""),
		Insight:     req.GetString("insight", ""),
		Context:     req.GetString("context", ""),
		Source:      req.GetString("source", ""),
		Verified:    boolArg(req, "verified", false),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(l), nil
}

// ─── LearningListTool ───────────────────────────────────────────────────────

// LearningListTool handles the flowstate_learning_list MCP tool.
type LearningListTool struct {
	store *memory.Store
}

// NewLearningListTool creates a LearningListTool.
func NewLearningListTool(store *memory.Store) *LearningListTool {
	return &LearningListTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_learning_list.
func (t *LearningListTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"learning_list",
		append([]mcp.ToolOption{
			mcp.WithDescription("List a project's learnings, newest first."),
			mcp.WithString("category", mcp.Description(enumDesc("Category filter", memory.LearningCategories))),
			mcp.WithNumber("limit", mcp.Description("Max results (default from config)")),
		}, projectParams()...)...,
	)
}

// Handle processes the flowstate_learning_list tool call.
func (t *LearningListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, res := resolveProject(ctx, t.store, req)
	if res != nil {
		return res, nil
	}
	ls, err := t.store.ListLearnings(ctx, projectID, req.GetString("category", ""), intArg(req, "limit", 0))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(ls), nil
}

// ─── LearningVerifyTool ─────────────────────────────────────────────────────

// LearningVerifyTool handles the flowstate_learning_verify MCP tool.
type LearningVerifyTool struct {
	store *memory.Store
}

// NewLearningVerifyTool creates a LearningVerifyTool.
func NewLearningVerifyTool(store *memory.Store) *LearningVerifyTool {
	return &LearningVerifyTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_learning_verify.
func (t *LearningVerifyTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"learning_verify",
		mcp.WithDescription("Mark a learning as verified once it has held up in practice."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Learning id")),
	)
}

// Handle processes the flowstate_learning_verify tool call.
func (t *LearningVerifyTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	if err := t.store.VerifyLearning(ctx, id); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Learning #%d verified", id)), nil
}

// ─── LearningDeleteTool ─────────────────────────────────────────────────────

// LearningDeleteTool handles the flowstate_learning_delete MCP tool.
type LearningDeleteTool struct {
	store *memory.Store
}

// NewLearningDeleteTool creates a LearningDeleteTool.
func NewLearningDeleteTool(store *memory.Store) *LearningDeleteTool {
	return &LearningDeleteTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_learning_delete.
func (t *LearningDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"learning_delete",
		mcp.WithDescription("Delete a learning that turned out to be wrong."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Learning id")),
	)
}

// Handle processes the flowstate_learning_delete tool call.
func (t *LearningDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	if err := t.store.DeleteLearning(ctx, id); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Learning #%d deleted", id)), nil
}

// ─── ConversationLogTool ────────────────────────────────────────────────────

// ConversationLogTool handles the flowstate_conversation_log MCP tool.
type ConversationLogTool struct {
	store *memory.Store
}

// NewConversationLogTool creates a ConversationLogTool.
func NewConversationLogTool(store *memory.Store) *ConversationLogTool {
	return &ConversationLogTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_conversation_log.
func (t *ConversationLogTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"conversation_log",
		append([]mcp.ToolOption{
			mcp.WithDescription("Summarize an exchange: what was asked, what was decided, which problems and solutions it touched."),
			mcp.WithString("user_prompt_summary", mcp.Required(), mcp.Description("What the user asked")),
			mcp.WithString("assistant_response_summary", mcp.Description("What was answered or done")),
			mcp.WithArray("key_decisions", mcp.Description("Decisions made"), mcp.Items(map[string]any{"type": "string"})),
			mcp.WithArray("problems_referenced", mcp.Description("Problem ids discussed"), mcp.Items(map[string]any{"type": "number"})),
			mcp.WithArray("solutions_created", mcp.Description("Solution ids created"), mcp.Items(map[string]any{"type": "number"})),
			mcp.WithString("session_id", mcp.Description("Client session identifier")),
			mcp.WithNumber("tokens_used", mcp.Description("Tokens spent on the exchange")),
		}, projectParams()...)...,
	)
}

// Handle processes the flowstate_conversation_log tool call.
func (t *ConversationLogTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, res := resolveProject(ctx, t.store, req)
	if res != nil {
		return res, nil
	}
	c, err := t.store.LogConversation(ctx, memory.LogConversationParams{
		ProjectID:                projectID,
		SessionID:                req.GetString("session_id", ""),
		UserPromptSummary:        req.GetString("user_prompt_summary", ""),
		AssistantResponseSummary: req.GetString("assistant_response_summary", ""),
		KeyDecisions:             stringsArg(req, "key_decisions"),
		ProblemsReferenced:       idsArg(req, "problems_referenced"),
		SolutionsCreated:         idsArg(req, "solutions_created"),
		TokensUsed:               intArg(req, "tokens_used", 0),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(c), nil
}

// ─── ConversationListTool ───────────────────────────────────────────────────

// ConversationListTool handles the flowstate_conversation_list MCP tool.
type ConversationListTool struct {
	store *memory.Store
}

// NewConversationListTool creates a ConversationListTool.
func NewConversationListTool(store *memory.Store) *ConversationListTool {
	return &ConversationListTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_conversation_list.
func (t *ConversationListTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"conversation_list",
		append([]mcp.ToolOption{
			mcp.WithDescription("List a project's logged exchanges, newest first."),
			mcp.WithString("session_id", mcp.Description("Only exchanges of this client session")),
			mcp.WithNumber("limit", mcp.Description("Max results (default 20)")),
		}, projectParams()...)...,
	)
}

// Handle processes the flowstate_conversation_list tool call.
func (t *ConversationListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, res := resolveProject(ctx, t.store, req)
	if res != nil {
		return res, nil
	}
	convs, err := t.store.ListConversations(ctx, projectID, req.GetString("session_id", ""), intArg(req, "limit", 0))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(convs), nil
}

// ─── ConversationDeleteTool ─────────────────────────────────────────────────

// ConversationDeleteTool handles the flowstate_conversation_delete MCP tool.
type ConversationDeleteTool struct {
	store *memory.Store
}

// NewConversationDeleteTool creates a ConversationDeleteTool.
func NewConversationDeleteTool(store *memory.Store) *ConversationDeleteTool {
	return &ConversationDeleteTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_conversation_delete.
func (t *ConversationDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"conversation_delete",
		mcp.WithDescription("Delete a logged exchange."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Conversation id")),
	)
}

// Handle processes the flowstate_conversation_delete tool call.
func (t *ConversationDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := idArg(req, "id")
	if res != nil {
		return res, nil
	}
	if err := t.store.DeleteConversation(ctx, id); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Conversation #%d deleted", id)), nil
}
