package memory

import (
	"context"
	"fmt"
)

// Stats is a row count per table plus index health.
type Stats struct {
	Projects       int    `json:"projects"`
	Components     int    `json:"components"`
	Problems       int    `json:"problems"`
	OpenProblems   int    `json:"open_problems"`
	Attempts       int    `json:"attempts"`
	Solutions      int    `json:"solutions"`
	Todos          int    `json:"todos"`
	Learnings      int    `json:"learnings"`
	Conversations  int    `json:"conversations"`
	Sessions       int    `json:"sessions"`
	Skills         int    `json:"skills"`
	Patterns       int    `json:"patterns"`
	Promoted       int    `json:"promoted"`
	States         int    `json:"states"`
	Tools          int    `json:"tools"`
	IndexedUnits   int    `json:"indexed_units"`
	PendingEvicts  int    `json:"pending_evictions"`
	DegradedEmbeds int64  `json:"degraded_embeds"`
	DBPath         string `json:"db_path"`
}

// Stats returns aggregate counts across the store.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DegradedEmbeds: s.DegradedEmbeds(), DBPath: s.DBPath()}
	counts := []struct {
		dst   *int
		query string
	}{
		{&st.Projects, "SELECT COUNT(*) FROM projects"},
		{&st.Components, "SELECT COUNT(*) FROM components"},
		{&st.Problems, "SELECT COUNT(*) FROM problems"},
		{&st.OpenProblems, "SELECT COUNT(*) FROM problems WHERE status IN ('open', 'investigating')"},
		{&st.Attempts, "SELECT COUNT(*) FROM solution_attempts"},
		{&st.Solutions, "SELECT COUNT(*) FROM solutions"},
		{&st.Todos, "SELECT COUNT(*) FROM todos"},
		{&st.Learnings, "SELECT COUNT(*) FROM learnings"},
		{&st.Conversations, "SELECT COUNT(*) FROM conversations"},
		{&st.Sessions, "SELECT COUNT(*) FROM sessions"},
		{&st.Skills, "SELECT COUNT(*) FROM learned_skills"},
		{&st.Patterns, "SELECT COUNT(*) FROM behavior_patterns"},
		{&st.Promoted, "SELECT (SELECT COUNT(*) FROM learned_skills WHERE promoted = 1) + (SELECT COUNT(*) FROM behavior_patterns WHERE promoted = 1)"},
		{&st.States, "SELECT COUNT(*) FROM session_state"},
		{&st.Tools, "SELECT COUNT(*) FROM tool_registry"},
		{&st.IndexedUnits, "SELECT COUNT(*) FROM search_index"},
		{&st.PendingEvicts, "SELECT COUNT(*) FROM index_evictions"},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("memory: stats: %w", err)
		}
	}
	return st, nil
}
