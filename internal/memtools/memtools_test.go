package memtools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/HendryAvila/flowstate/internal/memory"
	"github.com/HendryAvila/flowstate/internal/search"
	"github.com/mark3labs/mcp-go/mcp"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

// newTestStore creates a memory.Store in a temp directory for testing.
func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	cfg := memory.DefaultConfig()
	cfg.DataDir = t.TempDir()
	store, err := memory.New(cfg)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func mustNotError(t *testing.T, r *mcp.CallToolResult, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected Go error: %v", err)
	}
	if r.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(r))
	}
}

func mustBeToolError(t *testing.T, r *mcp.CallToolResult, err error, wantPrefix string) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected Go error: %v", err)
	}
	if !r.IsError {
		t.Fatalf("expected tool error, got: %s", resultText(r))
	}
	if !strings.HasPrefix(resultText(r), wantPrefix) {
		t.Errorf("error = %q, want prefix %q", resultText(r), wantPrefix)
	}
}

// decode unmarshals a JSON tool result into v.
func decode(t *testing.T, r *mcp.CallToolResult, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(resultText(r)), v); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
}

type fixture struct {
	store     *memory.Store
	project   *memory.Project
	component *memory.Component
}

func seedProject(t *testing.T, store *memory.Store) fixture {
	t.Helper()
	ctx := context.Background()
	p, err := store.CreateProject(ctx, "flowstate", "memory engine")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	c, err := store.CreateComponent(ctx, memory.CreateComponentParams{ProjectID: p.ID, Name: "API"})
	if err != nil {
		t.Fatalf("create component: %v", err)
	}
	return fixture{store: store, project: p, component: c}
}

func seedProblem(t *testing.T, f fixture, title, severity string) *memory.Problem {
	t.Helper()
	p, err := f.store.LogProblem(context.Background(), memory.LogProblemParams{
		ComponentID: f.component.ID, Title: title, Severity: severity,
	})
	if err != nil {
		t.Fatalf("log problem: %v", err)
	}
	return p
}

// ─── Registry ───────────────────────────────────────────────────────────────

func TestAll_UniquePrefixedNames(t *testing.T) {
	store := newTestStore(t)
	tools := All(store, search.NewRetriever(store, nil, search.Options{}), "test-session")

	seen := make(map[string]bool, len(tools))
	for _, tool := range tools {
		name := tool.Definition().Name
		if !strings.HasPrefix(name, Prefix) {
			t.Errorf("tool %q lacks prefix %q", name, Prefix)
		}
		if seen[name] {
			t.Errorf("duplicate tool name %q", name)
		}
		seen[name] = true
	}
	for _, want := range []string{
		"flowstate_context", "flowstate_search", "flowstate_problem_solve", "flowstate_session_initialize",
		"flowstate_attempt_delete", "flowstate_solution_delete", "flowstate_change_delete",
		"flowstate_conversation_delete", "flowstate_session_delete", "flowstate_state_delete",
		"flowstate_state_get", "flowstate_conversation_list", "flowstate_component_history",
		"flowstate_metric_log", "flowstate_tuning_suggestions", "flowstate_tool_use_rate",
		"flowstate_variable_set", "flowstate_method_record",
	} {
		if !seen[want] {
			t.Errorf("missing tool %q", want)
		}
	}
}

func TestDefinitions_RequiredParams(t *testing.T) {
	store := newTestStore(t)
	tests := []struct {
		tool     Tool
		required string
	}{
		{NewProjectCreateTool(store), "name"},
		{NewProblemLogTool(store), "component_id"},
		{NewAttemptOutcomeTool(store), "outcome"},
		{NewContextTool(store), "project"},
		{NewSkillApplyTool(store, "k"), "succeeded"},
		{NewSolutionDeleteTool(store), "problem_id"},
		{NewToolUseRateTool(store), "was_useful"},
		{NewMetricLogTool(store), "metric_type"},
		{NewMethodRecordTool(store), "description"},
		{NewComponentHistoryTool(store), "component_id"},
	}
	for _, tt := range tests {
		def := tt.tool.Definition()
		found := false
		for _, r := range def.InputSchema.Required {
			if r == tt.required {
				found = true
			}
		}
		if !found {
			t.Errorf("%s: %q should be required", def.Name, tt.required)
		}
	}
}

// ─── Projects and components ────────────────────────────────────────────────

func TestProjectTools_CreateGetDuplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r, err := NewProjectCreateTool(store).Handle(ctx, makeReq(map[string]interface{}{
		"name": "alpha", "description": "first",
	}))
	mustNotError(t, r, err)
	var p memory.Project
	decode(t, r, &p)
	if p.Name != "alpha" || p.Status != "active" {
		t.Errorf("project = %+v", p)
	}

	r, err = NewProjectGetTool(store).Handle(ctx, makeReq(map[string]interface{}{"project": "alpha"}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), `"description": "first"`) {
		t.Errorf("get by name = %s", resultText(r))
	}

	r, err = NewProjectCreateTool(store).Handle(ctx, makeReq(map[string]interface{}{"name": "alpha"}))
	mustBeToolError(t, r, err, "conflict:")

	r, err = NewProjectGetTool(store).Handle(ctx, makeReq(map[string]interface{}{"project": "missing"}))
	mustBeToolError(t, r, err, "not found:")
}

func TestProjectListTool_Empty(t *testing.T) {
	store := newTestStore(t)
	r, err := NewProjectListTool(store).Handle(context.Background(), makeReq(nil))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "No projects yet") {
		t.Errorf("got %q", resultText(r))
	}
}

func TestComponentUpdateTool_RejectsCycle(t *testing.T) {
	store := newTestStore(t)
	f := seedProject(t, store)
	ctx := context.Background()

	r, err := NewComponentCreateTool(store).Handle(ctx, makeReq(map[string]interface{}{
		"project_id": float64(f.project.ID), "name": "Handlers", "parent_component_id": float64(f.component.ID),
	}))
	mustNotError(t, r, err)
	var child memory.Component
	decode(t, r, &child)

	r, err = NewComponentUpdateTool(store).Handle(ctx, makeReq(map[string]interface{}{
		"id": float64(f.component.ID), "parent_component_id": float64(child.ID),
	}))
	mustBeToolError(t, r, err, "validation:")
}

func TestUpdateTools_MissingID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, tool := range []Tool{
		NewProjectUpdateTool(store),
		NewComponentDeleteTool(store),
		NewProblemGetTool(store),
		NewTodoUpdateTool(store),
		NewSkillDeleteTool(store),
	} {
		r, err := tool.Handle(ctx, makeReq(map[string]interface{}{}))
		mustBeToolError(t, r, err, "validation:")
	}
}

// ─── Problems and attempts ──────────────────────────────────────────────────

func TestProblemSolveTool_SecondSolveConflicts(t *testing.T) {
	store := newTestStore(t)
	f := seedProject(t, store)
	prob := seedProblem(t, f, "Timeout on upstream call", "high")
	ctx := context.Background()
	solve := NewProblemSolveTool(store)

	r, err := solve.Handle(ctx, makeReq(map[string]interface{}{
		"problem_id": float64(prob.ID), "summary": "raise timeout", "key_insight": "upstream is slow at startup",
	}))
	mustNotError(t, r, err)

	r, err = solve.Handle(ctx, makeReq(map[string]interface{}{
		"problem_id": float64(prob.ID), "summary": "again",
	}))
	mustBeToolError(t, r, err, "conflict:")

	r, err = solve.Handle(ctx, makeReq(map[string]interface{}{
		"problem_id": float64(prob.ID), "summary": "circuit breaker", "update": true,
	}))
	mustNotError(t, r, err)
	var sol memory.Solution
	decode(t, r, &sol)
	if sol.Summary != "circuit breaker" {
		t.Errorf("summary = %q", sol.Summary)
	}
}

func TestProblemTreeTool_RendersBranches(t *testing.T) {
	store := newTestStore(t)
	f := seedProject(t, store)
	prob := seedProblem(t, f, "Timeout on upstream call", "high")
	ctx := context.Background()
	logAttempt := NewAttemptLogTool(store)

	r, err := logAttempt.Handle(ctx, makeReq(map[string]interface{}{
		"problem_id": float64(prob.ID), "description": "raise timeout",
	}))
	mustNotError(t, r, err)
	var root memory.Attempt
	decode(t, r, &root)

	r, err = logAttempt.Handle(ctx, makeReq(map[string]interface{}{
		"problem_id": float64(prob.ID), "description": "add retry", "parent_attempt_id": float64(root.ID),
	}))
	mustNotError(t, r, err)

	r, err = NewAttemptOutcomeTool(store).Handle(ctx, makeReq(map[string]interface{}{
		"attempt_id": float64(root.ID), "outcome": "failure", "notes": "still times out",
	}))
	mustNotError(t, r, err)

	r, err = NewProblemTreeTool(store).Handle(ctx, makeReq(map[string]interface{}{"problem_id": float64(prob.ID)}))
	mustNotError(t, r, err)
	text := resultText(r)
	for _, want := range []string{"Timeout on upstream call", "└── #", "raise timeout (failure", "    └── #", "add retry (pending"} {
		if !strings.Contains(text, want) {
			t.Errorf("tree missing %q:\n%s", want, text)
		}
	}
}

func TestAttemptOutcomeTool_RejectsUnknownOutcome(t *testing.T) {
	store := newTestStore(t)
	f := seedProject(t, store)
	prob := seedProblem(t, f, "Flaky test", "low")
	a, err := store.LogAttempt(context.Background(), prob.ID, "rerun", nil)
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewAttemptOutcomeTool(store).Handle(context.Background(), makeReq(map[string]interface{}{
		"attempt_id": float64(a.ID), "outcome": "meh",
	}))
	mustBeToolError(t, r, err, "validation: outcome")
}

func TestProblemListOpenTool(t *testing.T) {
	store := newTestStore(t)
	f := seedProject(t, store)
	seedProblem(t, f, "Minor glitch", "low")
	seedProblem(t, f, "Data loss", "critical")
	ctx := context.Background()

	r, err := NewProblemListOpenTool(store).Handle(ctx, makeReq(map[string]interface{}{"project": "flowstate"}))
	mustNotError(t, r, err)
	var problems []memory.Problem
	decode(t, r, &problems)
	if len(problems) != 2 || problems[0].Title != "Data loss" {
		t.Errorf("problems = %+v, want critical first", problems)
	}

	r, err = NewProblemListOpenTool(store).Handle(ctx, makeReq(map[string]interface{}{
		"project": "flowstate", "status": []interface{}{"solved"},
	}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "No matching problems") {
		t.Errorf("got %q", resultText(r))
	}
}

// ─── Todos and learnings ────────────────────────────────────────────────────

func TestTodoTools_AddListComplete(t *testing.T) {
	store := newTestStore(t)
	seedProject(t, store)
	ctx := context.Background()

	r, err := NewTodoAddTool(store).Handle(ctx, makeReq(map[string]interface{}{
		"project": "flowstate", "title": "write docs", "priority": "high",
	}))
	mustNotError(t, r, err)
	var todo memory.Todo
	decode(t, r, &todo)

	r, err = NewTodoUpdateTool(store).Handle(ctx, makeReq(map[string]interface{}{
		"id": float64(todo.ID), "status": "done",
	}))
	mustNotError(t, r, err)
	decode(t, r, &todo)
	if todo.CompletedAt == nil {
		t.Error("completed_at not stamped")
	}

	r, err = NewTodoListTool(store).Handle(ctx, makeReq(map[string]interface{}{"project": "flowstate"}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "No matching todos") {
		t.Errorf("done todo should be hidden, got %s", resultText(r))
	}

	r, err = NewTodoListTool(store).Handle(ctx, makeReq(map[string]interface{}{
		"project": "flowstate", "include_closed": true,
	}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "write docs") {
		t.Errorf("include_closed should show done todo, got %s", resultText(r))
	}
}

func TestLearningTools_LogAndList(t *testing.T) {
	store := newTestStore(t)
	seedProject(t, store)
	ctx := context.Background()

	r, err := NewLearningLogTool(store).Handle(ctx, makeReq(map[string]interface{}{
		"project": "flowstate", "insight": "WAL mode needs a busy timeout", "category": "gotcha",
	}))
	mustNotError(t, r, err)

	r, err = NewLearningLogTool(store).Handle(ctx, makeReq(map[string]interface{}{
		"project": "flowstate", "insight": "x", "category": "folklore",
	}))
	mustBeToolError(t, r, err, "validation: category")

	r, err = NewLearningListTool(store).Handle(ctx, makeReq(map[string]interface{}{"project": "flowstate"}))
	mustNotError(t, r, err)
	var ls []memory.Learning
	decode(t, r, &ls)
	if len(ls) != 1 || ls[0].Category != "gotcha" {
		t.Errorf("learnings = %+v", ls)
	}
}

func TestConversationLogTool_ArrayArgs(t *testing.T) {
	store := newTestStore(t)
	seedProject(t, store)
	r, err := NewConversationLogTool(store).Handle(context.Background(), makeReq(map[string]interface{}{
		"project":             "flowstate",
		"user_prompt_summary": "why is login slow",
		"key_decisions":       []interface{}{"add index", "cache sessions"},
		"problems_referenced": []interface{}{float64(1), float64(2)},
	}))
	mustNotError(t, r, err)
	var c memory.Conversation
	decode(t, r, &c)
	if len(c.KeyDecisions) != 2 || len(c.ProblemsReferenced) != 2 {
		t.Errorf("conversation = %+v", c)
	}
}

// ─── Sessions ───────────────────────────────────────────────────────────────

func TestSessionTools_OneActivePerProject(t *testing.T) {
	store := newTestStore(t)
	seedProject(t, store)
	ctx := context.Background()
	start := NewSessionStartTool(store)

	r, err := start.Handle(ctx, makeReq(map[string]interface{}{"project": "flowstate"}))
	mustNotError(t, r, err)
	var sess memory.Session
	decode(t, r, &sess)

	r, err = start.Handle(ctx, makeReq(map[string]interface{}{"project": "flowstate"}))
	mustBeToolError(t, r, err, "conflict:")

	r, err = NewSessionEndTool(store).Handle(ctx, makeReq(map[string]interface{}{
		"id": float64(sess.ID), "summary": "done", "outcomes": []interface{}{"shipped"},
	}))
	mustNotError(t, r, err)
	decode(t, r, &sess)
	if sess.EndedAt == nil || len(sess.Outcomes) != 1 {
		t.Errorf("ended session = %+v", sess)
	}

	r, err = NewSessionCurrentTool(store).Handle(ctx, makeReq(map[string]interface{}{"project": "flowstate"}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), `"active": null`) {
		t.Errorf("no session should be active: %s", resultText(r))
	}
}

// ─── Context ────────────────────────────────────────────────────────────────

func TestContextTool_LeanByDefault(t *testing.T) {
	store := newTestStore(t)
	f := seedProject(t, store)
	seedProblem(t, f, "Database connection pool exhausted under sustained load", "critical")
	ctx := context.Background()

	r, err := NewContextTool(store).Handle(ctx, makeReq(map[string]interface{}{"project": "flowstate"}))
	mustNotError(t, r, err)
	lean := resultText(r)
	if !strings.Contains(lean, "## flowstate") || !strings.Contains(lean, "Blocking:") {
		t.Errorf("lean context = %s", lean)
	}
	if !strings.Contains(lean, "tokens") {
		t.Error("lean context should carry a token footer")
	}

	r, err = NewContextTool(store).Handle(ctx, makeReq(map[string]interface{}{"project": "flowstate", "detail": "full"}))
	mustNotError(t, r, err)
	full := resultText(r)
	for _, want := range []string{"### Components", "### Open Problems", "**API**"} {
		if !strings.Contains(full, want) {
			t.Errorf("full context missing %q:\n%s", want, full)
		}
	}
	if strings.Contains(lean, "### Components") {
		t.Errorf("lean context should not list components:\n%s", lean)
	}
}

func TestContextTool_UnknownProject(t *testing.T) {
	store := newTestStore(t)
	r, err := NewContextTool(store).Handle(context.Background(), makeReq(map[string]interface{}{"project": "ghost"}))
	mustBeToolError(t, r, err, "not found:")
}

// ─── Search and links ───────────────────────────────────────────────────────

func TestSearchTool_TokenOnlyIsFlagged(t *testing.T) {
	store := newTestStore(t)
	f := seedProject(t, store)
	seedProblem(t, f, "Timeout on upstream call", "high")
	tool := NewSearchTool(store, search.NewRetriever(store, nil, search.Options{}))

	r, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{"query": "timeout"}))
	mustNotError(t, r, err)
	text := resultText(r)
	if !strings.Contains(text, "problem #") || !strings.Contains(text, "Timeout on upstream call") {
		t.Errorf("expected problem hit, got:\n%s", text)
	}
	if !strings.Contains(text, "degraded:") {
		t.Errorf("token-only search should be flagged degraded:\n%s", text)
	}
}

func TestSearchTool_EmptyQuery(t *testing.T) {
	store := newTestStore(t)
	tool := NewSearchTool(store, search.NewRetriever(store, nil, search.Options{}))
	r, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{"query": "   "}))
	mustBeToolError(t, r, err, "validation: query")
}

func TestSearchTool_SummaryOmitsSnippets(t *testing.T) {
	store := newTestStore(t)
	f := seedProject(t, store)
	_, err := store.LogProblem(context.Background(), memory.LogProblemParams{
		ComponentID: f.component.ID, Title: "Timeout on upstream call", Description: "the gateway gives up after 30s",
	})
	if err != nil {
		t.Fatal(err)
	}
	tool := NewSearchTool(store, search.NewRetriever(store, nil, search.Options{}))

	r, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{"query": "timeout", "detail_level": "summary"}))
	mustNotError(t, r, err)
	if strings.Contains(resultText(r), "gateway gives up") {
		t.Errorf("summary should omit snippets:\n%s", resultText(r))
	}
}

func TestLinkAndRelatedTools(t *testing.T) {
	store := newTestStore(t)
	f := seedProject(t, store)
	a := seedProblem(t, f, "Timeout on login", "high")
	b := seedProblem(t, f, "Timeout on checkout", "high")
	ctx := context.Background()

	r, err := NewLinkTool(store).Handle(ctx, makeReq(map[string]interface{}{
		"source_type": "problem", "source_id": float64(b.ID),
		"target_type": "problem", "target_id": float64(a.ID),
		"relationship": "similar_to",
	}))
	mustNotError(t, r, err)

	r, err = NewRelatedTool(store).Handle(ctx, makeReq(map[string]interface{}{
		"content_type": "problem", "id": float64(a.ID),
	}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "← [similar_to] problem") {
		t.Errorf("related = %s", resultText(r))
	}

	r, err = NewLinkTool(store).Handle(ctx, makeReq(map[string]interface{}{
		"source_type": "problem", "source_id": float64(a.ID),
		"target_type": "problem", "target_id": float64(9999),
	}))
	mustBeToolError(t, r, err, "not found:")
}

// ─── Intelligence ───────────────────────────────────────────────────────────

func TestSkillTools_PromotionAcrossSessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r, err := NewSkillLearnTool(store, "s1").Handle(ctx, makeReq(map[string]interface{}{
		"skill_type": "approach", "skill": "bisect flaky tests with -count",
	}))
	mustNotError(t, r, err)
	var skill memory.Skill
	decode(t, r, &skill)

	apply := NewSkillApplyTool(store, "s1")
	for _, key := range []string{"s1", "s2", "s3"} {
		r, err = apply.Handle(ctx, makeReq(map[string]interface{}{
			"id": float64(skill.ID), "succeeded": true, "session_key": key,
		}))
		mustNotError(t, r, err)
	}
	decode(t, r, &skill)
	if skill.SessionCount != 3 || skill.TimesApplied != 3 {
		t.Fatalf("skill = %+v", skill)
	}

	r, err = NewPromoteTool(store).Handle(ctx, makeReq(nil))
	mustNotError(t, r, err)
	var out struct {
		Promoted memory.Promotion `json:"promoted"`
	}
	decode(t, r, &out)
	if len(out.Promoted.Skills) != 1 || !out.Promoted.Skills[0].Promoted {
		t.Errorf("promotion = %+v", out.Promoted)
	}

	r, err = NewSkillListTool(store).Handle(ctx, makeReq(map[string]interface{}{"promoted_only": true}))
	mustNotError(t, r, err)
	var skills []memory.Skill
	decode(t, r, &skills)
	if len(skills) != 1 {
		t.Errorf("promoted skills = %d, want 1", len(skills))
	}
}

func TestSkillApplyTool_UnknownSkill(t *testing.T) {
	store := newTestStore(t)
	r, err := NewSkillApplyTool(store, "s1").Handle(context.Background(), makeReq(map[string]interface{}{
		"id": float64(42), "succeeded": true,
	}))
	mustBeToolError(t, r, err, "not found:")
}

func TestPatternTools_RecordAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r, err := NewPatternRecordTool(store, "s1").Handle(ctx, makeReq(map[string]interface{}{
		"pattern_type":       "checkpoint_trigger",
		"pattern_name":       "save before refactor",
		"trigger_conditions": map[string]interface{}{"task": "refactor"},
		"actions":            []interface{}{"state_save checkpoint"},
	}))
	mustNotError(t, r, err)
	var p memory.Pattern
	decode(t, r, &p)
	if p.Source != "learned" || p.TriggerConditions["task"] != "refactor" {
		t.Errorf("pattern = %+v", p)
	}

	r, err = NewPatternListTool(store).Handle(ctx, makeReq(map[string]interface{}{"active_above": 0.9}))
	mustNotError(t, r, err)
	var ps []memory.Pattern
	decode(t, r, &ps)
	if len(ps) != 0 {
		t.Errorf("fresh pattern should be below 0.9, got %d", len(ps))
	}
}

func TestStateTools_SaveChainAndBrief(t *testing.T) {
	store := newTestStore(t)
	seedProject(t, store)
	ctx := context.Background()
	save := NewStateSaveTool(store)

	r, err := save.Handle(ctx, makeReq(map[string]interface{}{
		"project": "flowstate", "state_type": "start", "focus_summary": "fix login",
	}))
	mustNotError(t, r, err)
	var first memory.State
	decode(t, r, &first)

	r, err = save.Handle(ctx, makeReq(map[string]interface{}{
		"project": "flowstate", "state_type": "handoff", "previous_state_id": float64(first.ID),
		"focus_summary": "login fixed, checkout next", "key_facts": []interface{}{"token TTL is 15m"},
	}))
	mustNotError(t, r, err)
	var second memory.State
	decode(t, r, &second)

	r, err = NewStateChainTool(store).Handle(ctx, makeReq(map[string]interface{}{"id": float64(second.ID)}))
	mustNotError(t, r, err)
	var chain []memory.State
	decode(t, r, &chain)
	if len(chain) != 2 || chain[0].ID != second.ID || chain[1].ID != first.ID {
		t.Errorf("chain = %+v", chain)
	}

	r, err = NewSessionInitializeTool(store).Handle(ctx, makeReq(map[string]interface{}{"project": "flowstate"}))
	mustNotError(t, r, err)
	text := resultText(r)
	if !strings.Contains(text, "login fixed, checkout next") || !strings.Contains(text, "fact: token TTL is 15m") {
		t.Errorf("briefing = %s", text)
	}

	r, err = NewSessionFinalizeTool(store).Handle(ctx, makeReq(map[string]interface{}{
		"state_id": float64(second.ID), "focus_summary": "wrapped up",
	}))
	mustNotError(t, r, err)
	var fin memory.Finalized
	decode(t, r, &fin)
	if fin.State == nil || fin.State.StateType != "end" || fin.State.PreviousStateID == nil || *fin.State.PreviousStateID != second.ID {
		t.Errorf("finalized = %+v", fin)
	}
}

func TestStateLatestTool_Empty(t *testing.T) {
	store := newTestStore(t)
	seedProject(t, store)
	r, err := NewStateLatestTool(store).Handle(context.Background(), makeReq(map[string]interface{}{"project": "flowstate"}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "No snapshots") {
		t.Errorf("got %q", resultText(r))
	}
}

func TestToolStatsTools_RecordAndRecommend(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	record := NewToolUseRecordTool(store)

	uses := []struct {
		tool      string
		succeeded bool
	}{
		{"grep", true}, {"grep", true}, {"grep", false},
		{"guess", false}, {"guess", false},
	}
	for _, u := range uses {
		r, err := record.Handle(ctx, makeReq(map[string]interface{}{
			"mcp_server": "shell", "tool_name": u.tool, "succeeded": u.succeeded, "task_type": "debugging",
		}))
		mustNotError(t, r, err)
	}

	r, err := NewToolRecommendTool(store).Handle(ctx, makeReq(map[string]interface{}{"task_type": "debugging"}))
	mustNotError(t, r, err)
	text := resultText(r)
	if !strings.Contains(text, "shell/grep (67% over 3 uses)") {
		t.Errorf("recommendation = %s", text)
	}
	if strings.Contains(text, "guess") {
		t.Errorf("tool below 50%% should not be recommended: %s", text)
	}
}

// ─── Maintenance ────────────────────────────────────────────────────────────

func TestStatsAndReindexTools(t *testing.T) {
	store := newTestStore(t)
	f := seedProject(t, store)
	seedProblem(t, f, "Timeout", "low")
	ctx := context.Background()

	r, err := NewReindexTool(store).Handle(ctx, makeReq(nil))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "Reindexed 3 units") {
		t.Errorf("reindex = %s", resultText(r))
	}

	r, err = NewStatsTool(store).Handle(ctx, makeReq(nil))
	mustNotError(t, r, err)
	text := resultText(r)
	if !strings.Contains(text, "**Projects**: 1 (1 components)") || !strings.Contains(text, "3 units") {
		t.Errorf("stats = %s", text)
	}
}

// ─── Deletes ────────────────────────────────────────────────────────────────

func TestDeleteTools_DeleteThenNotFound(t *testing.T) {
	store := newTestStore(t)
	f := seedProject(t, store)
	ctx := context.Background()

	pr := seedProblem(t, f, "leak", "high")
	attempt, _ := store.LogAttempt(ctx, pr.ID, "close the body", nil)
	store.MarkSolved(ctx, memory.MarkSolvedParams{ProblemID: pr.ID, WinningAttemptID: &attempt.ID, Summary: "defer Close"})
	change, _ := store.LogChange(ctx, memory.LogChangeParams{ComponentID: f.component.ID, FieldName: "timeout"})
	conv, _ := store.LogConversation(ctx, memory.LogConversationParams{ProjectID: f.project.ID, UserPromptSummary: "hello"})
	sess, _ := store.StartSession(ctx, f.project.ID, nil, nil)
	state, _ := store.SaveState(ctx, memory.SaveStateParams{ProjectID: f.project.ID, StateType: "start"})

	tests := []struct {
		tool Tool
		args map[string]interface{}
		want string
	}{
		{NewAttemptDeleteTool(store), map[string]interface{}{"id": float64(attempt.ID)}, "Attempt #"},
		{NewSolutionDeleteTool(store), map[string]interface{}{"problem_id": float64(pr.ID)}, "Solution of problem #"},
		{NewChangeDeleteTool(store), map[string]interface{}{"id": float64(change.ID)}, "Change #"},
		{NewConversationDeleteTool(store), map[string]interface{}{"id": float64(conv.ID)}, "Conversation #"},
		{NewSessionDeleteTool(store), map[string]interface{}{"id": float64(sess.ID)}, "Session #"},
		{NewStateDeleteTool(store), map[string]interface{}{"id": float64(state.ID)}, "Snapshot #"},
	}
	for _, tt := range tests {
		name := tt.tool.Definition().Name
		r, err := tt.tool.Handle(ctx, makeReq(tt.args))
		mustNotError(t, r, err)
		if !strings.HasPrefix(resultText(r), tt.want) {
			t.Errorf("%s: got %q", name, resultText(r))
		}
		r, err = tt.tool.Handle(ctx, makeReq(tt.args))
		mustBeToolError(t, r, err, "not found:")
	}

	r, err := NewAttemptDeleteTool(store).Handle(ctx, makeReq(nil))
	mustBeToolError(t, r, err, "validation:")
}

// ─── Histories and lookups ──────────────────────────────────────────────────

func TestComponentHistoryTool(t *testing.T) {
	store := newTestStore(t)
	f := seedProject(t, store)
	ctx := context.Background()
	seedProblem(t, f, "leak", "high")
	store.LogChange(ctx, memory.LogChangeParams{ComponentID: f.component.ID, FieldName: "timeout"})

	r, err := NewComponentHistoryTool(store).Handle(ctx, makeReq(map[string]interface{}{"component_id": float64(f.component.ID)}))
	mustNotError(t, r, err)
	var h memory.ComponentHistory
	decode(t, r, &h)
	if h.PeriodDays != 30 || len(h.Changes) != 1 || len(h.Problems) != 1 {
		t.Errorf("unexpected history %+v", h)
	}

	r, err = NewComponentHistoryTool(store).Handle(ctx, makeReq(map[string]interface{}{"component_id": float64(999)}))
	mustBeToolError(t, r, err, "not found:")
}

func TestStateGetAndConversationListTools(t *testing.T) {
	store := newTestStore(t)
	f := seedProject(t, store)
	ctx := context.Background()
	st, _ := store.SaveState(ctx, memory.SaveStateParams{ProjectID: f.project.ID, StateType: "checkpoint",
		StatePayload: memory.StatePayload{FocusSummary: "halfway"}})
	store.LogConversation(ctx, memory.LogConversationParams{ProjectID: f.project.ID, SessionID: "a", UserPromptSummary: "one"})
	store.LogConversation(ctx, memory.LogConversationParams{ProjectID: f.project.ID, SessionID: "b", UserPromptSummary: "two"})

	r, err := NewStateGetTool(store).Handle(ctx, makeReq(map[string]interface{}{"id": float64(st.ID)}))
	mustNotError(t, r, err)
	var got memory.State
	decode(t, r, &got)
	if got.ID != st.ID || got.FocusSummary != "halfway" {
		t.Errorf("unexpected state %+v", got)
	}

	r, err = NewConversationListTool(store).Handle(ctx, makeReq(map[string]interface{}{"project": "flowstate", "session_id": "b"}))
	mustNotError(t, r, err)
	var convs []memory.Conversation
	decode(t, r, &convs)
	if len(convs) != 1 || convs[0].UserPromptSummary != "two" {
		t.Errorf("unexpected conversations %+v", convs)
	}
}

// ─── Variables and methods ──────────────────────────────────────────────────

func TestVariableTools_MaskSecrets(t *testing.T) {
	store := newTestStore(t)
	seedProject(t, store)
	ctx := context.Background()

	r, err := NewVariableSetTool(store).Handle(ctx, makeReq(map[string]interface{}{
		"project": "flowstate", "name": "API_TOKEN", "value": "s3cret", "category": "credentials", "is_secret": true,
	}))
	mustNotError(t, r, err)
	var v memory.Variable
	decode(t, r, &v)

	r, err = NewVariableListTool(store).Handle(ctx, makeReq(map[string]interface{}{"project": "flowstate"}))
	mustNotError(t, r, err)
	if strings.Contains(resultText(r), "s3cret") {
		t.Errorf("secret shown without reveal: %s", resultText(r))
	}
	r, err = NewVariableListTool(store).Handle(ctx, makeReq(map[string]interface{}{"project": "flowstate", "reveal": true}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "s3cret") {
		t.Errorf("secret hidden with reveal: %s", resultText(r))
	}

	r, err = NewVariableUpdateTool(store).Handle(ctx, makeReq(map[string]interface{}{"id": float64(v.ID), "is_secret": false}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "s3cret") {
		t.Errorf("value should show once no longer secret: %s", resultText(r))
	}

	r, err = NewVariableSetTool(store).Handle(ctx, makeReq(map[string]interface{}{"project": "flowstate", "name": "API_TOKEN"}))
	mustBeToolError(t, r, err, "conflict:")

	r, err = NewVariableDeleteTool(store).Handle(ctx, makeReq(map[string]interface{}{"id": float64(v.ID)}))
	mustNotError(t, r, err)
}

func TestMethodTools_RecordUpdateList(t *testing.T) {
	store := newTestStore(t)
	f := seedProject(t, store)
	ctx := context.Background()

	r, err := NewMethodRecordTool(store).Handle(ctx, makeReq(map[string]interface{}{
		"project": "flowstate", "name": "release", "description": "tag and push",
		"category": "deployment", "steps": []interface{}{"tag", "push"},
		"related_component_id": float64(f.component.ID),
	}))
	mustNotError(t, r, err)
	var m memory.Method
	decode(t, r, &m)
	if len(m.Steps) != 2 || m.RelatedComponentID == nil {
		t.Errorf("unexpected method %+v", m)
	}

	r, err = NewMethodUpdateTool(store).Handle(ctx, makeReq(map[string]interface{}{
		"id": float64(m.ID), "steps": []interface{}{"tag", "push", "announce"}, "clear_component": true,
	}))
	mustNotError(t, r, err)
	decode(t, r, &m)
	if len(m.Steps) != 3 || m.RelatedComponentID != nil {
		t.Errorf("update not applied: %+v", m)
	}

	r, err = NewMethodListTool(store).Handle(ctx, makeReq(map[string]interface{}{"project": "flowstate", "category": "deployment"}))
	mustNotError(t, r, err)
	var list []memory.Method
	decode(t, r, &list)
	if len(list) != 1 {
		t.Errorf("expected 1 method, got %d", len(list))
	}

	r, err = NewMethodRecordTool(store).Handle(ctx, makeReq(map[string]interface{}{"project": "flowstate", "name": "x"}))
	mustBeToolError(t, r, err, "validation:")

	r, err = NewMethodDeleteTool(store).Handle(ctx, makeReq(map[string]interface{}{"id": float64(m.ID)}))
	mustNotError(t, r, err)
}

// ─── Metrics and tool ratings ───────────────────────────────────────────────

func TestMetricTools_LogListAndSuggest(t *testing.T) {
	store := newTestStore(t)
	f := seedProject(t, store)
	ctx := context.Background()
	logTool := NewMetricLogTool(store)

	r, err := NewTuningSuggestionsTool(store).Handle(ctx, makeReq(nil))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "No tuning suggestions") {
		t.Errorf("got %q", resultText(r))
	}

	for _, score := range []float64{0.2, 0.4} {
		r, err := logTool.Handle(ctx, makeReq(map[string]interface{}{
			"metric_type": "checkpoint_timing", "effectiveness_score": score,
			"should_adjust": true, "suggested_adjustment": "checkpoint sooner",
			"project_id": float64(f.project.ID),
		}))
		mustNotError(t, r, err)
	}

	r, err = NewMetricListTool(store).Handle(ctx, makeReq(map[string]interface{}{"project_id": float64(f.project.ID)}))
	mustNotError(t, r, err)
	var metrics []memory.Metric
	decode(t, r, &metrics)
	if len(metrics) != 2 {
		t.Errorf("expected 2 metrics, got %d", len(metrics))
	}

	r, err = NewTuningSuggestionsTool(store).Handle(ctx, makeReq(nil))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "**checkpoint_timing**: checkpoint sooner (2x, avg effectiveness 0.30)") {
		t.Errorf("suggestions = %s", resultText(r))
	}

	r, err = logTool.Handle(ctx, makeReq(map[string]interface{}{"metric_type": "checkpoint_timing", "effectiveness_score": 2.0}))
	mustBeToolError(t, r, err, "validation:")
}

func TestToolUseRateTool(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	use, err := store.RecordToolUse(ctx, memory.ToolUse{MCPServer: "shell", ToolName: "grep", Succeeded: true})
	if err != nil {
		t.Fatalf("RecordToolUse: %v", err)
	}

	r, err := NewToolUseRateTool(store).Handle(ctx, makeReq(map[string]interface{}{
		"usage_id": float64(use.ID), "was_useful": false, "user_correction": "used rg instead",
	}))
	mustNotError(t, r, err)
	var rated memory.ToolUsage
	decode(t, r, &rated)
	if rated.WasUseful || rated.Tool == nil || rated.Tool.TimesSucceeded != 0 {
		t.Errorf("unexpected rating %+v", rated)
	}

	r, err = NewToolUsageListTool(store).Handle(ctx, makeReq(map[string]interface{}{"tool_name": "grep"}))
	mustNotError(t, r, err)
	var uses []memory.ToolUsage
	decode(t, r, &uses)
	if len(uses) != 1 || uses[0].UserCorrection == nil {
		t.Errorf("unexpected usage list %+v", uses)
	}

	r, err = NewToolUseRateTool(store).Handle(ctx, makeReq(map[string]interface{}{"usage_id": float64(use.ID)}))
	mustBeToolError(t, r, err, "validation:")
}
