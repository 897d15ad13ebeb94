package memory_test

import (
	"context"
	"testing"

	"github.com/HendryAvila/flowstate/internal/memory"
)

// tokenHits returns the number of index units of contentType matching q.
func tokenHits(t *testing.T, s *memory.Store, q, contentType string) int {
	t.Helper()
	hits, err := s.TokenSearch(context.Background(), q, memory.SearchFilter{ContentTypes: []string{contentType}}, 10)
	if err != nil {
		t.Fatalf("TokenSearch(%q): %v", q, err)
	}
	return len(hits)
}

func TestDeleteAttempt_WinnerKeepsSolutionAndOrphansChildren(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, c := seedComponent(t, s, "api", "gateway")
	pr, _ := s.LogProblem(ctx, memory.LogProblemParams{ComponentID: c.ID, Title: "leak"})
	winner, _ := s.LogAttempt(ctx, pr.ID, "close the quokka body", nil)
	child, err := s.LogAttempt(ctx, pr.ID, "also drain it", &winner.ID)
	if err != nil {
		t.Fatalf("LogAttempt: %v", err)
	}
	if _, err := s.MarkSolved(ctx, memory.MarkSolvedParams{ProblemID: pr.ID, WinningAttemptID: &winner.ID, Summary: "defer Close"}); err != nil {
		t.Fatalf("MarkSolved: %v", err)
	}

	if err := s.DeleteAttempt(ctx, winner.ID); err != nil {
		t.Fatalf("DeleteAttempt: %v", err)
	}

	sol, err := s.GetSolution(ctx, pr.ID)
	if err != nil {
		t.Fatalf("GetSolution after deleting the winner: %v", err)
	}
	if sol.WinningAttemptID != nil || sol.Summary != "defer Close" {
		t.Errorf("expected solution kept without a winner, got %+v", sol)
	}
	got, err := s.GetAttempt(ctx, child.ID)
	if err != nil {
		t.Fatalf("GetAttempt child: %v", err)
	}
	if got.ParentAttemptID != nil {
		t.Errorf("child should become a root, parent = %d", *got.ParentAttemptID)
	}
	tree, _ := s.Tree(ctx, pr.ID)
	if len(tree.Roots) != 1 || tree.Roots[0] != child.ID {
		t.Errorf("expected the child as the only root, got %v", tree.Roots)
	}
	if n := tokenHits(t, s, "quokka", "attempt"); n != 0 {
		t.Errorf("deleted attempt still indexed (%d hits)", n)
	}

	if err := s.DeleteAttempt(ctx, winner.ID); !memory.IsNotFound(err) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}

func TestDeleteSolution_AllowsSolvingAgain(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, c := seedComponent(t, s, "api", "gateway")
	pr, _ := s.LogProblem(ctx, memory.LogProblemParams{ComponentID: c.ID, Title: "leak"})
	if _, err := s.MarkSolved(ctx, memory.MarkSolvedParams{ProblemID: pr.ID, Summary: "wombat pooling"}); err != nil {
		t.Fatalf("MarkSolved: %v", err)
	}

	if err := s.DeleteSolution(ctx, pr.ID); err != nil {
		t.Fatalf("DeleteSolution: %v", err)
	}
	if _, err := s.GetSolution(ctx, pr.ID); !memory.IsNotFound(err) {
		t.Errorf("expected solution gone, got %v", err)
	}
	if n := tokenHits(t, s, "wombat", "solution"); n != 0 {
		t.Errorf("deleted solution still indexed (%d hits)", n)
	}
	got, _ := s.GetProblem(ctx, pr.ID)
	if got.Status != "solved" {
		t.Errorf("problem status should be left alone, got %q", got.Status)
	}

	// No conflict now that the row is gone.
	if _, err := s.MarkSolved(ctx, memory.MarkSolvedParams{ProblemID: pr.ID, Summary: "second fix"}); err != nil {
		t.Errorf("MarkSolved after delete: %v", err)
	}
	if err := s.DeleteSolution(ctx, 999); !memory.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestDeleteChange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, c := seedComponent(t, s, "api", "gateway")
	ch, err := s.LogChange(ctx, memory.LogChangeParams{ComponentID: c.ID, FieldName: "timeout", NewValue: "30s", Reason: "narwhal load test"})
	if err != nil {
		t.Fatalf("LogChange: %v", err)
	}
	if got, err := s.GetChange(ctx, ch.ID); err != nil || got.FieldName != "timeout" {
		t.Fatalf("GetChange: %+v, %v", got, err)
	}

	if err := s.DeleteChange(ctx, ch.ID); err != nil {
		t.Fatalf("DeleteChange: %v", err)
	}
	if _, err := s.GetChange(ctx, ch.ID); !memory.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if n := tokenHits(t, s, "narwhal", "change"); n != 0 {
		t.Errorf("deleted change still indexed (%d hits)", n)
	}
	if err := s.DeleteChange(ctx, ch.ID); !memory.IsNotFound(err) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}

func TestDeleteConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p, _ := seedComponent(t, s, "api", "gateway")
	conv, _ := s.LogConversation(ctx, memory.LogConversationParams{ProjectID: p.ID, UserPromptSummary: "why is the ocelot slow"})
	keep, _ := s.LogConversation(ctx, memory.LogConversationParams{ProjectID: p.ID, UserPromptSummary: "other"})

	if err := s.DeleteConversation(ctx, conv.ID); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	if _, err := s.GetConversation(ctx, conv.ID); !memory.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	list, _ := s.ListConversations(ctx, p.ID, "", 10)
	if len(list) != 1 || list[0].ID != keep.ID {
		t.Errorf("expected only the kept conversation, got %+v", list)
	}
	if n := tokenHits(t, s, "ocelot", "conversation"); n != 0 {
		t.Errorf("deleted conversation still indexed (%d hits)", n)
	}
}

func TestDeleteSession_FreesActiveSlot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p, _ := seedComponent(t, s, "api", "gateway")
	sess, err := s.StartSession(ctx, p.ID, nil, nil)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	if err := s.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := s.GetSession(ctx, sess.ID); !memory.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := s.StartSession(ctx, p.ID, nil, nil); err != nil {
		t.Errorf("StartSession after delete: %v", err)
	}
	if err := s.DeleteSession(ctx, sess.ID); !memory.IsNotFound(err) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}

func TestDeleteState_FollowersBecomeRoots(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p, _ := seedComponent(t, s, "api", "gateway")
	first, _ := s.SaveState(ctx, memory.SaveStateParams{ProjectID: p.ID, StateType: "start"})
	second, err := s.SaveState(ctx, memory.SaveStateParams{ProjectID: p.ID, StateType: "checkpoint", PreviousStateID: &first.ID})
	if err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	use, err := s.RecordToolUse(ctx, memory.ToolUse{MCPServer: "fs", ToolName: "grep", Succeeded: true, SessionStateID: &first.ID})
	if err != nil {
		t.Fatalf("RecordToolUse: %v", err)
	}

	if err := s.DeleteState(ctx, first.ID); err != nil {
		t.Fatalf("DeleteState: %v", err)
	}
	if _, err := s.GetState(ctx, first.ID); !memory.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	got, _ := s.GetState(ctx, second.ID)
	if got.PreviousStateID != nil {
		t.Errorf("follower should become a chain root, previous = %d", *got.PreviousStateID)
	}
	uses, _ := s.UsagePatterns(ctx, memory.UsageFilter{})
	if len(uses) != 1 || uses[0].ID != use.ID || uses[0].SessionStateID != nil {
		t.Errorf("tool usage should survive without a state, got %+v", uses)
	}
}

func TestDeleteComponent_TodoSurvivesDetached(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p, c := seedComponent(t, s, "api", "gateway")
	todo, err := s.AddTodo(ctx, memory.AddTodoParams{ProjectID: p.ID, ComponentID: &c.ID, Title: "document retries"})
	if err != nil {
		t.Fatalf("AddTodo: %v", err)
	}
	learning, _ := s.LogLearning(ctx, memory.LogLearningParams{ProjectID: p.ID, ComponentID: &c.ID, Insight: "retries need jitter"})

	if err := s.DeleteComponent(ctx, c.ID); err != nil {
		t.Fatalf("DeleteComponent: %v", err)
	}

	got, err := s.GetTodo(ctx, todo.ID)
	if err != nil {
		t.Fatalf("todo should survive its component: %v", err)
	}
	if got.ComponentID != nil {
		t.Errorf("expected component_id cleared, got %d", *got.ComponentID)
	}
	ls, _ := s.ListLearnings(ctx, p.ID, "", 10)
	if len(ls) != 1 || ls[0].ID != learning.ID || ls[0].ComponentID != nil {
		t.Errorf("expected learning kept and detached, got %+v", ls)
	}
}
