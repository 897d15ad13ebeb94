package memory

import (
	"slices"
	"strings"
)

// Allowed enum values, mirrored by CHECK constraints in the schema.
var (
	ProjectStatuses    = []string{"active", "paused", "completed", "archived"}
	ComponentStatuses  = []string{"planning", "in_progress", "testing", "complete", "deprecated"}
	ChangeTypes        = []string{"config", "code", "architecture", "dependency", "documentation", "other"}
	ProblemStatuses    = []string{"open", "investigating", "blocked", "solved", "wont_fix"}
	Severities         = []string{"low", "medium", "high", "critical"}
	Outcomes           = []string{"success", "failure", "partial", "abandoned", "pending"}
	Confidences        = []string{"attempted", "worked_once", "verified", "proven", "deprecated"}
	Priorities         = []string{"low", "medium", "high", "critical"}
	TodoStatuses       = []string{"pending", "in_progress", "blocked", "done", "cancelled"}
	LearningCategories = []string{"pattern", "gotcha", "best_practice", "tool_tip", "architecture", "performance", "security", "other"}
	LearningSources    = []string{"experience", "documentation", "conversation", "error", "research"}
	SkillTypes         = []string{"tool_capability", "user_preference", "approach", "gotcha", "project_specific"}
	PatternTypes       = []string{"tool_sequence", "response_style", "checkpoint_trigger", "task_approach"}
	PatternSources     = []string{"default", "learned", "user_defined"}
	StateTypes         = []string{"start", "checkpoint", "handoff", "end"}
	Relationships      = []string{"similar_to", "derived_from", "contradicts", "depends_on", "supersedes", "related_to"}
	ContentTypes       = []string{"project", "component", "change", "problem", "attempt", "solution", "todo", "learning", "conversation", "method"}
	MetricTypes        = []string{"checkpoint_timing", "tool_choice", "response_quality", "prediction_accuracy", "user_satisfaction"}
	VariableCategories = []string{"server", "credentials", "config", "environment", "endpoint", "custom"}
	MethodCategories   = []string{"auth", "deployment", "testing", "architecture", "workflow", "convention", "api", "security", "other"}
)

// checkEnum returns a ValidationError when v is not one of allowed.
func checkEnum(field, v string, allowed []string) error {
	if slices.Contains(allowed, v) {
		return nil
	}
	return invalid(field, "%q is not one of %s", v, strings.Join(allowed, ", "))
}

// enumOr returns v, or def when v is empty.
func enumOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

