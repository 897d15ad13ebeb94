package memory_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/HendryAvila/flowstate/internal/memory"
)

// TestIntegration_TimeoutInvestigation walks one problem from report to
// solution: two failed attempts, a refinement that works, and the tree and
// search views afterwards.
func TestIntegration_TimeoutInvestigation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p, c := seedComponent(t, s, "payments", "gateway")

	pr, err := s.LogProblem(ctx, memory.LogProblemParams{
		ComponentID: c.ID,
		Title:       "Timeout calling the card processor",
		Description: "Requests hang for 30s under load",
		Severity:    "critical",
	})
	if err != nil {
		t.Fatalf("LogProblem: %v", err)
	}

	retry, _ := s.LogAttempt(ctx, pr.ID, "Retry with exponential backoff", nil)
	s.MarkOutcome(ctx, retry.ID, "failure", "attempted", ptr("retries pile up and make it worse"))
	pool, _ := s.LogAttempt(ctx, pr.ID, "Raise the HTTP connection pool", nil)
	s.MarkOutcome(ctx, pool.ID, "partial", "worked_once", nil)
	breaker, err := s.LogAttempt(ctx, pr.ID, "Add a circuit breaker on top of the larger pool", &pool.ID)
	if err != nil {
		t.Fatalf("LogAttempt child: %v", err)
	}
	if _, err := s.MarkOutcome(ctx, breaker.ID, "success", "verified", nil); err != nil {
		t.Fatalf("MarkOutcome: %v", err)
	}

	if _, err := s.MarkSolved(ctx, memory.MarkSolvedParams{
		ProblemID:        pr.ID,
		WinningAttemptID: &breaker.ID,
		Summary:          "Circuit breaker plus pool of 64",
		KeyInsight:       "Retries amplify a saturated upstream",
	}); err != nil {
		t.Fatalf("MarkSolved: %v", err)
	}

	tree, err := s.Tree(ctx, pr.ID)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if len(tree.Attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(tree.Attempts))
	}
	if len(tree.Roots) != 2 || tree.Roots[0] != retry.ID || tree.Roots[1] != pool.ID {
		t.Errorf("unexpected roots %v", tree.Roots)
	}
	if kids := tree.Children[pool.ID]; len(kids) != 1 || kids[0] != breaker.ID {
		t.Errorf("expected breaker under pool, got %v", kids)
	}
	if tree.Solution == nil || *tree.Solution.WinningAttemptID != breaker.ID {
		t.Errorf("expected winning attempt %d, got %+v", breaker.ID, tree.Solution)
	}
	if tree.Problem.Status != "solved" {
		t.Errorf("problem status %q", tree.Problem.Status)
	}

	// The failed attempt stays findable so the next session does not retry it.
	hits, err := s.TokenSearch(ctx, "backoff", memory.SearchFilter{ProjectID: &p.ID}, 10)
	if err != nil {
		t.Fatalf("TokenSearch: %v", err)
	}
	if len(hits) != 1 || hits[0].ContentType != "attempt" || hits[0].ContentID != retry.ID {
		t.Errorf("expected the failed attempt, got %+v", hits)
	}

	sol, err := s.TokenSearch(ctx, "circuit breaker", memory.SearchFilter{ContentTypes: []string{"solution"}}, 10)
	if err != nil {
		t.Fatalf("TokenSearch solutions: %v", err)
	}
	if len(sol) != 1 {
		t.Errorf("expected the solution, got %+v", sol)
	}
}

func TestIntegration_DeleteProjectEvictsEverything(t *testing.T) {
	vec := newFakeVectors()
	cfg := memory.DefaultConfig()
	cfg.DataDir = t.TempDir()
	s, err := memory.New(cfg, memory.WithVectorIndexer(vec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	p, c := seedComponent(t, s, "legacy", "monolith")
	pr, _ := s.LogProblem(ctx, memory.LogProblemParams{ComponentID: c.ID, Title: "zeppelin deadlock"})
	s.LogAttempt(ctx, pr.ID, "zeppelin lock ordering", nil)
	s.AddTodo(ctx, memory.AddTodoParams{ProjectID: p.ID, Title: "zeppelin cleanup"})
	keep, _ := s.CreateProject(ctx, "keeper", "zeppelin unrelated")

	if n := vec.len(); n != 6 {
		t.Fatalf("expected 6 embedded units, got %d", n)
	}

	if err := s.DeleteProject(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}

	hits, err := s.TokenSearch(ctx, "zeppelin", memory.SearchFilter{}, 10)
	if err != nil {
		t.Fatalf("TokenSearch: %v", err)
	}
	if len(hits) != 1 || hits[0].ContentID != keep.ID {
		t.Errorf("expected only the surviving project, got %+v", hits)
	}
	if n := vec.len(); n != 1 {
		t.Errorf("expected vectors evicted, %d left", n)
	}

	st, _ := s.Stats(ctx)
	if st.PendingEvicts != 0 {
		t.Errorf("expected eviction queue drained, got %d", st.PendingEvicts)
	}
	if st.Components != 0 || st.Problems != 0 || st.Attempts != 0 || st.Todos != 0 {
		t.Errorf("cascade left rows behind: %+v", st)
	}
}

func TestIntegration_CommitFailureLeavesNoPartialWrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, c := seedComponent(t, s, "api", "gateway")

	boom := errors.New("disk on fire")
	s.SetCommitHook(func(tx *sql.Tx) error {
		_ = tx.Rollback()
		return boom
	})
	_, err := s.LogProblem(ctx, memory.LogProblemParams{ComponentID: c.ID, Title: "phantom outage"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected commit error, got %v", err)
	}
	s.SetCommitHook(nil)

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Problems != 0 {
		t.Errorf("problem row survived a failed commit")
	}
	hits, _ := s.TokenSearch(ctx, "phantom", memory.SearchFilter{}, 10)
	if len(hits) != 0 {
		t.Errorf("index unit survived a failed commit: %+v", hits)
	}

	if _, err := s.LogProblem(ctx, memory.LogProblemParams{ComponentID: c.ID, Title: "phantom outage"}); err != nil {
		t.Errorf("store unusable after failed commit: %v", err)
	}
}

func TestIntegration_VectorFailureDegradesButWrites(t *testing.T) {
	vec := newFakeVectors()
	vec.fail = errors.New("ollama: connection refused")
	cfg := memory.DefaultConfig()
	cfg.DataDir = t.TempDir()
	s, err := memory.New(cfg, memory.WithVectorIndexer(vec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if _, err := s.CreateProject(ctx, "api", "keyword search still works"); err != nil {
		t.Fatalf("CreateProject must not fail on embedding errors: %v", err)
	}
	if s.DegradedEmbeds() != 1 {
		t.Errorf("expected 1 degraded embed, got %d", s.DegradedEmbeds())
	}
	hits, _ := s.TokenSearch(ctx, "keyword", memory.SearchFilter{}, 10)
	if len(hits) != 1 {
		t.Errorf("token channel should still index, got %d hits", len(hits))
	}

	res, err := s.Reindex(ctx)
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if res.Units != 1 || res.Embedded != 0 || res.Skipped != 1 {
		t.Errorf("unexpected reindex result %+v", res)
	}
}

func TestIntegration_LeanContextBounded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p, c := seedComponent(t, s, "api", "gateway")

	huge := strings.Repeat("very long problem title ", 200)
	for i := 0; i < 8; i++ {
		s.LogProblem(ctx, memory.LogProblemParams{ComponentID: c.ID, Title: fmt.Sprintf("%d %s", i, huge), Description: huge, Severity: "critical"})
		s.AddTodo(ctx, memory.AddTodoParams{ProjectID: p.ID, Title: huge, Priority: "high"})
	}
	s.LogProblem(ctx, memory.LogProblemParams{ComponentID: c.ID, Title: "minor", Severity: "low"})
	s.LogChange(ctx, memory.LogChangeParams{ComponentID: c.ID, FieldName: "timeout", NewValue: huge})

	lean, err := s.AssembleLean(ctx, "api", 0)
	if err != nil {
		t.Fatalf("AssembleLean: %v", err)
	}
	if len(lean.Blocking) != 3 || len(lean.QuickTodos) != 3 {
		t.Fatalf("expected 3 blockers and 3 todos, got %d and %d", len(lean.Blocking), len(lean.QuickTodos))
	}
	for _, b := range lean.Blocking {
		if n := len([]rune(b.Title)); n > 60 {
			t.Errorf("blocker title not truncated: %d runes", n)
		}
	}
	for _, td := range lean.QuickTodos {
		if n := len([]rune(td)); n > 50 {
			t.Errorf("todo title not truncated: %d runes", n)
		}
	}
	if lean.Counts.OpenProblems != 9 || lean.Counts.PendingTodos != 8 {
		t.Errorf("counts should reflect everything, got %+v", lean.Counts)
	}
	if lean.RecentFocus != "gateway: timeout" {
		t.Errorf("unexpected recent focus %q", lean.RecentFocus)
	}
	if lean.EstimatedTokens == 0 || lean.EstimatedTokens > 400 {
		t.Errorf("lean context should stay small, got ~%d tokens", lean.EstimatedTokens)
	}

	full, err := s.Assemble(ctx, "api", 0, false)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(full.OpenProblems) != 9 {
		t.Errorf("full context should keep every open problem, got %d", len(full.OpenProblems))
	}
	if !strings.Contains(memory.FormatLean(lean), "Blocking:") {
		t.Error("FormatLean should list blockers")
	}

	if _, err := s.AssembleLean(ctx, "ghost", 0); !memory.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestIntegration_AttachmentsDegradeToWarning(t *testing.T) {
	cfg := memory.DefaultConfig()
	cfg.DataDir = t.TempDir()
	s, err := memory.New(cfg, memory.WithAttachmentSource(failingAttachments{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	s.CreateProject(ctx, "api", "")

	c, err := s.Assemble(ctx, "api", 0, true)
	if err != nil {
		t.Fatalf("Assemble must not fail on attachment errors: %v", err)
	}
	if len(c.Warnings) != 1 || !strings.HasPrefix(c.Warnings[0], "attachments unavailable") {
		t.Errorf("expected attachment warning, got %v", c.Warnings)
	}
}

func TestIntegration_PorterStemming(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p, _ := s.CreateProject(ctx, "api", "")
	s.LogLearning(ctx, memory.LogLearningParams{ProjectID: p.ID, Insight: "Connections were timing out under heavy load"})

	for _, q := range []string{"timed", "connection", "loads"} {
		hits, err := s.TokenSearch(ctx, q, memory.SearchFilter{ContentTypes: []string{"learning"}}, 10)
		if err != nil {
			t.Fatalf("TokenSearch(%q): %v", q, err)
		}
		if len(hits) != 1 {
			t.Errorf("TokenSearch(%q): expected stemmed match, got %d", q, len(hits))
		}
	}
}

func TestIntegration_PrefixTerms(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, c := seedComponent(t, s, "api", "gateway")
	if _, err := s.LogProblem(ctx, memory.LogProblemParams{ComponentID: c.ID, Title: "Timeout"}); err != nil {
		t.Fatalf("LogProblem: %v", err)
	}

	for _, q := range []string{"timeo", "Timeo", "time", "timeout"} {
		hits, err := s.TokenSearch(ctx, q, memory.SearchFilter{ContentTypes: []string{"problem"}}, 10)
		if err != nil {
			t.Fatalf("TokenSearch(%q): %v", q, err)
		}
		if len(hits) != 1 {
			t.Errorf("TokenSearch(%q): expected prefix match, got %d", q, len(hits))
		}
	}

	// Words under three runes stay exact so they do not match half the index.
	hits, err := s.TokenSearch(ctx, "ti", memory.SearchFilter{ContentTypes: []string{"problem"}}, 10)
	if err != nil {
		t.Fatalf("TokenSearch(ti): %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("two-rune query should not prefix-match, got %d", len(hits))
	}
}

func TestIntegration_HostileQueries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.CreateProject(ctx, "api", "café naïve résumé")

	queries := []string{
		"",
		"   ",
		`"unbalanced`,
		"NEAR(a b)",
		"col:value",
		"a AND OR NOT",
		"'; DROP TABLE projects; --",
		"*",
		strings.Repeat("word ", 500),
	}
	for _, q := range queries {
		if _, err := s.TokenSearch(ctx, q, memory.SearchFilter{}, 10); err != nil {
			t.Errorf("TokenSearch(%.20q): %v", q, err)
		}
	}

	hits, _ := s.TokenSearch(ctx, "café", memory.SearchFilter{}, 10)
	if len(hits) != 1 {
		t.Errorf("expected unicode match, got %d", len(hits))
	}
	if _, err := s.GetProjectByName(ctx, "api"); err != nil {
		t.Errorf("projects table damaged: %v", err)
	}
}

func TestIntegration_MultiProjectIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, ca := seedComponent(t, s, "alpha", "core")
	b, cb := seedComponent(t, s, "beta", "core")
	s.LogProblem(ctx, memory.LogProblemParams{ComponentID: ca.ID, Title: "shared wording problem"})
	s.LogProblem(ctx, memory.LogProblemParams{ComponentID: cb.ID, Title: "shared wording problem"})

	for _, pid := range []int64{a.ID, b.ID} {
		hits, err := s.TokenSearch(ctx, "wording", memory.SearchFilter{ProjectID: &pid}, 10)
		if err != nil {
			t.Fatalf("TokenSearch: %v", err)
		}
		if len(hits) != 1 || hits[0].ProjectID != pid {
			t.Errorf("project %d: unexpected hits %+v", pid, hits)
		}
	}
	all, _ := s.TokenSearch(ctx, "wording", memory.SearchFilter{}, 10)
	if len(all) != 2 {
		t.Errorf("expected both projects without a filter, got %d", len(all))
	}
}

func TestIntegration_ConcurrentWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p, c := seedComponent(t, s, "api", "gateway")

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := s.LogChange(ctx, memory.LogChangeParams{ComponentID: c.ID, FieldName: fmt.Sprintf("field%d", i)})
			errs <- err
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := s.AddTodo(ctx, memory.AddTodoParams{ProjectID: p.ID, Title: fmt.Sprintf("todo %d", i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent write: %v", err)
		}
	}

	st, _ := s.Stats(ctx)
	if st.Todos != 20 {
		t.Errorf("expected 20 todos, got %d", st.Todos)
	}
	changes, _ := s.ComponentChanges(ctx, c.ID, 100)
	if len(changes) != 20 {
		t.Errorf("expected 20 changes, got %d", len(changes))
	}
}

// ─── Fakes ───────────────────────────────────────────────────────────────────

type fakeVectors struct {
	mu    sync.Mutex
	units map[memory.UnitKey]string
	fail  error
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{units: map[memory.UnitKey]string{}}
}

func (f *fakeVectors) IndexText(_ context.Context, contentType string, contentID, _ int64, text string) error {
	if f.fail != nil {
		return f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.units[memory.UnitKey{ContentType: contentType, ContentID: contentID}] = text
	return nil
}

func (f *fakeVectors) Remove(_ context.Context, contentType string, contentID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.units, memory.UnitKey{ContentType: contentType, ContentID: contentID})
	return nil
}

func (f *fakeVectors) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.units)
}

type failingAttachments struct{}

func (failingAttachments) Attachments(context.Context, int64) ([]memory.Attachment, error) {
	return nil, errors.New("attachment store offline")
}
