package memory_test

import (
	"context"
	"testing"

	"github.com/HendryAvila/flowstate/internal/memory"
)

func TestComponentHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p, c := seedComponent(t, s, "api", "gateway")
	other, _ := s.CreateComponent(ctx, memory.CreateComponentParams{ProjectID: p.ID, Name: "worker"})

	recent, _ := s.LogChange(ctx, memory.LogChangeParams{ComponentID: c.ID, FieldName: "timeout", NewValue: "30s"})
	old, _ := s.LogChange(ctx, memory.LogChangeParams{ComponentID: c.ID, FieldName: "pool", NewValue: "64"})
	if _, err := s.DB().ExecContext(ctx, "UPDATE changes SET created_at = datetime('now', '-60 days') WHERE id = ?", old.ID); err != nil {
		t.Fatalf("backdate change: %v", err)
	}
	s.LogChange(ctx, memory.LogChangeParams{ComponentID: other.ID, FieldName: "queue"})

	solved, _ := s.LogProblem(ctx, memory.LogProblemParams{ComponentID: c.ID, Title: "leak"})
	s.MarkSolved(ctx, memory.MarkSolvedParams{ProblemID: solved.ID, Summary: "close bodies"})
	open, _ := s.LogProblem(ctx, memory.LogProblemParams{ComponentID: c.ID, Title: "slow"})
	if _, err := s.DB().ExecContext(ctx, "UPDATE problems SET created_at = datetime('now', '-90 days') WHERE id = ?", open.ID); err != nil {
		t.Fatalf("backdate problem: %v", err)
	}
	s.LogProblem(ctx, memory.LogProblemParams{ComponentID: other.ID, Title: "elsewhere"})
	s.LogLearning(ctx, memory.LogLearningParams{ProjectID: p.ID, ComponentID: &c.ID, Insight: "retries need jitter"})
	s.LogLearning(ctx, memory.LogLearningParams{ProjectID: p.ID, Insight: "project-wide"})

	h, err := s.ComponentHistory(ctx, c.ID, 0)
	if err != nil {
		t.Fatalf("ComponentHistory: %v", err)
	}
	if h.Component.ID != c.ID || h.PeriodDays != 30 {
		t.Errorf("unexpected header %+v", h)
	}
	if len(h.Changes) != 1 || h.Changes[0].ID != recent.ID {
		t.Errorf("expected only the recent change, got %+v", h.Changes)
	}
	// Problems are never cut off by the window.
	if len(h.Problems) != 2 {
		t.Errorf("expected both problems, got %+v", h.Problems)
	}
	if len(h.Solutions) != 1 || h.Solutions[0].ProblemID != solved.ID {
		t.Errorf("expected the one solution, got %+v", h.Solutions)
	}
	if len(h.Learnings) != 1 {
		t.Errorf("expected the component learning, got %+v", h.Learnings)
	}

	wide, _ := s.ComponentHistory(ctx, c.ID, 90)
	if len(wide.Changes) != 2 {
		t.Errorf("expected both changes in a 90 day window, got %d", len(wide.Changes))
	}

	if _, err := s.ComponentHistory(ctx, 999, 0); !memory.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestComponentHistory_Empty(t *testing.T) {
	s := newTestStore(t)
	_, c := seedComponent(t, s, "api", "gateway")

	h, err := s.ComponentHistory(context.Background(), c.ID, 7)
	if err != nil {
		t.Fatalf("ComponentHistory: %v", err)
	}
	if h.Changes == nil || h.Problems == nil || h.Solutions == nil || h.Learnings == nil {
		t.Errorf("expected empty slices, not nil: %+v", h)
	}
}
