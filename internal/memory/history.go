package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// defaultHistoryDays bounds the change window of ComponentHistory.
const defaultHistoryDays = 30

// ComponentHistory is everything recorded against one component: recent
// changes, every problem with its solution, and the learnings tied to it.
type ComponentHistory struct {
	Component  Component  `json:"component"`
	PeriodDays int        `json:"period_days"`
	Changes    []Change   `json:"changes"`
	Problems   []Problem  `json:"problems"`
	Solutions  []Solution `json:"solutions"`
	Learnings  []Learning `json:"learnings"`
}

// ComponentHistory reads a component's history from one snapshot. Changes
// are limited to the last days (30 when days <= 0); problems and learnings
// are never cut off.
func (s *Store) ComponentHistory(ctx context.Context, componentID int64, days int) (*ComponentHistory, error) {
	if days <= 0 {
		days = defaultHistoryDays
	}
	h := &ComponentHistory{PeriodDays: days}
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		c, err := scanComponent(tx.QueryRowContext(ctx, "SELECT "+componentColumns+" FROM components WHERE id = ?", componentID))
		if err == sql.ErrNoRows {
			return notFound("component", componentID)
		}
		if err != nil {
			return fmt.Errorf("memory: component history: %w", err)
		}
		h.Component = *c

		h.Changes, err = queryChanges(ctx, tx,
			changeSelect+" WHERE ch.component_id = ? AND ch.created_at >= ? ORDER BY ch.created_at DESC, ch.id DESC",
			componentID, since(time.Duration(days)*24*time.Hour))
		if err != nil {
			return err
		}
		if h.Problems, err = componentProblems(ctx, tx, componentID); err != nil {
			return err
		}
		if h.Solutions, err = solutionsFor(ctx, tx, h.Problems); err != nil {
			return err
		}
		h.Learnings, err = componentLearnings(ctx, tx, componentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

func componentProblems(ctx context.Context, q dbtx, componentID int64) ([]Problem, error) {
	rows, err := q.QueryContext(ctx,
		problemSelect+" WHERE pr.component_id = ? ORDER BY pr.created_at DESC, pr.id DESC", componentID)
	if err != nil {
		return nil, fmt.Errorf("memory: component problems: %w", err)
	}
	defer rows.Close()

	out := []Problem{}
	for rows.Next() {
		p, err := scanProblem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func solutionsFor(ctx context.Context, q dbtx, problems []Problem) ([]Solution, error) {
	out := []Solution{}
	if len(problems) == 0 {
		return out, nil
	}
	args := make([]any, len(problems))
	for i, p := range problems {
		args[i] = p.ID
	}
	rows, err := q.QueryContext(ctx,
		"SELECT "+solutionColumns+" FROM solutions WHERE problem_id IN ("+placeholders(len(args))+") ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("memory: component solutions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		sol, err := scanSolution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sol)
	}
	return out, rows.Err()
}

func componentLearnings(ctx context.Context, q dbtx, componentID int64) ([]Learning, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+learningColumns+" FROM learnings WHERE component_id = ? ORDER BY created_at DESC, id DESC", componentID)
	if err != nil {
		return nil, fmt.Errorf("memory: component learnings: %w", err)
	}
	defer rows.Close()

	out := []Learning{}
	for rows.Next() {
		l, err := scanLearning(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}
