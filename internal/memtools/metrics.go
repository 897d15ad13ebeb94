package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/HendryAvila/flowstate/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// MetricLogTool handles the flowstate_metric_log MCP tool.
type MetricLogTool struct {
	store *memory.Store
}

// NewMetricLogTool creates a MetricLogTool.
func NewMetricLogTool(store *memory.Store) *MetricLogTool {
	return &MetricLogTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_metric_log.
func (t *MetricLogTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"metric_log",
		mcp.WithDescription(
			"Record how well one of your own behaviours worked, such as when a checkpoint was taken or which tool was picked. "+
				"Set should_adjust with a suggested_adjustment when it should change; repeated suggestions surface in flowstate_tuning_suggestions.",
		),
		mcp.WithString("metric_type", mcp.Required(), mcp.Description(enumDesc("Metric type", memory.MetricTypes))),
		mcp.WithString("context", mcp.Description("Situation the behaviour happened in")),
		mcp.WithString("action_taken", mcp.Description("What was done")),
		mcp.WithString("outcome", mcp.Description("What came of it")),
		mcp.WithNumber("effectiveness_score", mcp.Description("How well it worked, 0..1")),
		mcp.WithString("user_feedback", mcp.Description("What the user said about it")),
		mcp.WithBoolean("should_adjust", mcp.Description("Whether the behaviour should change")),
		mcp.WithString("suggested_adjustment", mcp.Description("How it should change")),
		mcp.WithNumber("project_id", mcp.Description("Project the metric belongs to")),
		mcp.WithNumber("session_state_id", mcp.Description("Snapshot the metric belongs to")),
	)
}

// Handle processes the flowstate_metric_log tool call.
func (t *MetricLogTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p := memory.LogMetricParams{
		ProjectID:           optIDArg(req, "project_id"),
		SessionStateID:      optIDArg(req, "session_state_id"),
		MetricType:          req.GetString("metric_type", ""),
		Context:             req.GetString("context", ""),
		ActionTaken:         req.GetString("action_taken", ""),
		Outcome:             req.GetString("outcome", ""),
		UserFeedback:        req.GetString("user_feedback", ""),
		ShouldAdjust:        boolArg(req, "should_adjust", false),
		SuggestedAdjustment: req.GetString("suggested_adjustment", ""),
	}
	if _, ok := req.GetArguments()["effectiveness_score"]; ok {
		score := floatArg(req, "effectiveness_score", 0)
		p.EffectivenessScore = &score
	}
	m, err := t.store.LogMetric(ctx, p)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(m), nil
}

// ─── MetricListTool ─────────────────────────────────────────────────────────

// MetricListTool handles the flowstate_metric_list MCP tool.
type MetricListTool struct {
	store *memory.Store
}

// NewMetricListTool creates a MetricListTool.
func NewMetricListTool(store *memory.Store) *MetricListTool {
	return &MetricListTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_metric_list.
func (t *MetricListTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"metric_list",
		mcp.WithDescription("List recorded metrics, newest first."),
		mcp.WithNumber("project_id", mcp.Description("Only metrics of this project")),
		mcp.WithNumber("session_state_id", mcp.Description("Only metrics of this snapshot")),
		mcp.WithString("metric_type", mcp.Description(enumDesc("Metric type", memory.MetricTypes))),
		mcp.WithNumber("limit", mcp.Description("Max results (default 100)")),
	)
}

// Handle processes the flowstate_metric_list tool call.
func (t *MetricListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metrics, err := t.store.Metrics(ctx, memory.MetricFilter{
		ProjectID:      optIDArg(req, "project_id"),
		SessionStateID: optIDArg(req, "session_state_id"),
		MetricType:     req.GetString("metric_type", ""),
		Limit:          intArg(req, "limit", 0),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(metrics), nil
}

// ─── TuningSuggestionsTool ──────────────────────────────────────────────────

// TuningSuggestionsTool handles the flowstate_tuning_suggestions MCP tool.
type TuningSuggestionsTool struct {
	store *memory.Store
}

// NewTuningSuggestionsTool creates a TuningSuggestionsTool.
func NewTuningSuggestionsTool(store *memory.Store) *TuningSuggestionsTool {
	return &TuningSuggestionsTool{store: store}
}

// Definition returns the MCP tool definition for flowstate_tuning_suggestions.
func (t *TuningSuggestionsTool) Definition() mcp.Tool {
	return mcp.NewTool(Prefix+"tuning_suggestions",
		mcp.WithDescription("Adjustments that metrics suggested at least twice, most frequent first."),
		mcp.WithNumber("project_id", mcp.Description("Only metrics of this project")),
	)
}

// Handle processes the flowstate_tuning_suggestions tool call.
func (t *TuningSuggestionsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	suggestions, err := t.store.TuningSuggestions(ctx, optIDArg(req, "project_id"))
	if err != nil {
		return errorResult(err), nil
	}
	if len(suggestions) == 0 {
		return mcp.NewToolResultText("No tuning suggestions yet."), nil
	}
	var b strings.Builder
	b.WriteString("# Tuning suggestions\n\n")
	for _, s := range suggestions {
		fmt.Fprintf(&b, "- **%s**: %s (%dx", s.MetricType, s.SuggestedAdjustment, s.Occurrences)
		if s.AvgEffectiveness != nil {
			fmt.Fprintf(&b, ", avg effectiveness %.2f", *s.AvgEffectiveness)
		}
		b.WriteString(")\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}
