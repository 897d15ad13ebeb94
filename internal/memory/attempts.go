package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Attempt is one node in a problem's forest of solution attempts.
type Attempt struct {
	ID              int64  `json:"id"`
	ProblemID       int64  `json:"problem_id"`
	ParentAttemptID *int64 `json:"parent_attempt_id,omitempty"`
	Description     string `json:"description"`
	Outcome         string `json:"outcome"`
	Confidence      string `json:"confidence"`
	Notes           string `json:"notes,omitempty"`
	CreatedAt       string `json:"created_at"`
}

// Solution is the unique resolution of a problem.
type Solution struct {
	ID               int64  `json:"id"`
	ProblemID        int64  `json:"problem_id"`
	WinningAttemptID *int64 `json:"winning_attempt_id,omitempty"`
	Summary          string `json:"summary"`
	CodeSnippet      string `json:"code_snippet,omitempty"`
	KeyInsight       string `json:"key_insight,omitempty"`
	CreatedAt        string `json:"created_at"`
}

// MarkSolvedParams holds the input for resolving a problem. With Update set,
// an existing solution is rewritten instead of rejected.
type MarkSolvedParams struct {
	ProblemID        int64  `json:"problem_id"`
	WinningAttemptID *int64 `json:"winning_attempt_id,omitempty"`
	Summary          string `json:"summary"`
	KeyInsight       string `json:"key_insight,omitempty"`
	CodeSnippet      string `json:"code_snippet,omitempty"`
	Update           bool   `json:"update,omitempty"`
}

// AttemptTree is the full attempt forest of a problem. Attempts are in
// creation order; Children maps a parent id to its child ids in the same
// order. Layout is left to consumers.
type AttemptTree struct {
	Problem  Problem           `json:"problem"`
	Attempts []Attempt         `json:"attempts"`
	Roots    []int64           `json:"roots"`
	Children map[int64][]int64 `json:"children"`
	Solution *Solution         `json:"solution,omitempty"`
}

const attemptColumns = "id, problem_id, parent_attempt_id, description, outcome, confidence, COALESCE(notes, ''), created_at"

const solutionColumns = "id, problem_id, winning_attempt_id, summary, COALESCE(code_snippet, ''), COALESCE(key_insight, ''), created_at"

func scanAttempt(r rowScanner) (*Attempt, error) {
	var a Attempt
	var parent sql.NullInt64
	if err := r.Scan(&a.ID, &a.ProblemID, &parent, &a.Description, &a.Outcome, &a.Confidence, &a.Notes, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.ParentAttemptID = nullInt(parent)
	return &a, nil
}

func scanSolution(r rowScanner) (*Solution, error) {
	var s Solution
	var winner sql.NullInt64
	if err := r.Scan(&s.ID, &s.ProblemID, &winner, &s.Summary, &s.CodeSnippet, &s.KeyInsight, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.WinningAttemptID = nullInt(winner)
	return &s, nil
}

// LogAttempt adds an attempt to a problem. A parent, when given, must be an
// attempt of the same problem.
func (s *Store) LogAttempt(ctx context.Context, problemID int64, description string, parentAttemptID *int64) (*Attempt, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, invalid("description", "must not be empty")
	}

	var id int64
	err := s.write(ctx, func(tx *sql.Tx, ix *indexBatch) error {
		if err := mustExist(ctx, tx, "problems", "problem", problemID); err != nil {
			return err
		}
		if parentAttemptID != nil {
			if err := attemptBelongsTo(ctx, tx, *parentAttemptID, problemID, "parent_attempt_id"); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO solution_attempts (problem_id, parent_attempt_id, description) VALUES (?, ?, ?)",
			problemID, parentAttemptID, description,
		)
		if err != nil {
			return fmt.Errorf("memory: log attempt: %w", err)
		}
		id, _ = res.LastInsertId()
		return ix.put(ctx, "attempt", id)
	})
	if err != nil {
		return nil, err
	}
	return s.GetAttempt(ctx, id)
}

// GetAttempt returns one attempt.
func (s *Store) GetAttempt(ctx context.Context, id int64) (*Attempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx, "SELECT "+attemptColumns+" FROM solution_attempts WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, notFound("attempt", id)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get attempt: %w", err)
	}
	return a, nil
}

// MarkOutcome records the outcome of one attempt without touching its
// siblings. Empty confidence keeps the current value; nil notes keep the
// current notes.
func (s *Store) MarkOutcome(ctx context.Context, attemptID int64, outcome, confidence string, notes *string) (*Attempt, error) {
	if err := checkEnum("outcome", outcome, Outcomes); err != nil {
		return nil, err
	}
	var u updateSet
	u.set("outcome", outcome)
	if confidence != "" {
		if err := checkEnum("confidence", confidence, Confidences); err != nil {
			return nil, err
		}
		u.set("confidence", confidence)
	}
	if notes != nil {
		u.set("notes", nullableString(*notes))
	}

	err := s.write(ctx, func(tx *sql.Tx, ix *indexBatch) error {
		res, err := u.exec(ctx, tx, "solution_attempts", attemptID)
		if err != nil {
			return fmt.Errorf("memory: mark outcome: %w", err)
		}
		if err := affectedOrNotFound(res, "attempt", attemptID); err != nil {
			return err
		}
		return ix.put(ctx, "attempt", attemptID)
	})
	if err != nil {
		return nil, err
	}
	return s.GetAttempt(ctx, attemptID)
}

// MarkSolved creates the problem's solution and flips it to solved in one
// transaction. A second call fails with ConflictError unless p.Update is set.
func (s *Store) MarkSolved(ctx context.Context, p MarkSolvedParams) (*Solution, error) {
	p.Summary = strings.TrimSpace(p.Summary)
	if p.Summary == "" {
		return nil, invalid("summary", "must not be empty")
	}

	var id int64
	err := s.write(ctx, func(tx *sql.Tx, ix *indexBatch) error {
		if err := mustExist(ctx, tx, "problems", "problem", p.ProblemID); err != nil {
			return err
		}
		if p.WinningAttemptID != nil {
			if err := attemptBelongsTo(ctx, tx, *p.WinningAttemptID, p.ProblemID, "winning_attempt_id"); err != nil {
				return err
			}
		}

		var existing int64
		err := tx.QueryRowContext(ctx, "SELECT id FROM solutions WHERE problem_id = ?", p.ProblemID).Scan(&existing)
		switch {
		case err == sql.ErrNoRows:
			res, err := tx.ExecContext(ctx, `
				INSERT INTO solutions (problem_id, winning_attempt_id, summary, code_snippet, key_insight)
				VALUES (?, ?, ?, ?, ?)`,
				p.ProblemID, p.WinningAttemptID, p.Summary, nullableString(p.CodeSnippet), nullableString(p.KeyInsight),
			)
			if isUniqueViolation(err) {
				return &ConflictError{Entity: "solution", Reason: fmt.Sprintf("problem %d already has a solution", p.ProblemID)}
			}
			if err != nil {
				return fmt.Errorf("memory: create solution: %w", err)
			}
			id, _ = res.LastInsertId()
		case err != nil:
			return fmt.Errorf("memory: lookup solution: %w", err)
		case !p.Update:
			return &ConflictError{Entity: "solution", Reason: fmt.Sprintf("problem %d already has a solution", p.ProblemID)}
		default:
			id = existing
			if _, err := tx.ExecContext(ctx, `
				UPDATE solutions SET winning_attempt_id = ?, summary = ?, code_snippet = ?, key_insight = ?
				WHERE id = ?`,
				p.WinningAttemptID, p.Summary, nullableString(p.CodeSnippet), nullableString(p.KeyInsight), id,
			); err != nil {
				return fmt.Errorf("memory: update solution: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE problems SET "+solvedAtExpr+", status = 'solved' WHERE id = ?",
			"solved", "solved", p.ProblemID,
		); err != nil {
			return fmt.Errorf("memory: mark problem solved: %w", err)
		}
		if err := ix.put(ctx, "problem", p.ProblemID); err != nil {
			return err
		}
		return ix.put(ctx, "solution", id)
	})
	if err != nil {
		return nil, err
	}
	return s.GetSolution(ctx, p.ProblemID)
}

// GetSolution returns the solution of a problem.
func (s *Store) GetSolution(ctx context.Context, problemID int64) (*Solution, error) {
	return getSolution(ctx, s.db, problemID)
}

func getSolution(ctx context.Context, q dbtx, problemID int64) (*Solution, error) {
	sol, err := scanSolution(q.QueryRowContext(ctx, "SELECT "+solutionColumns+" FROM solutions WHERE problem_id = ?", problemID))
	if err == sql.ErrNoRows {
		return nil, notFound("solution", problemID)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get solution: %w", err)
	}
	return sol, nil
}

// Tree returns a problem with its whole attempt forest and solution, read
// from one snapshot.
func (s *Store) Tree(ctx context.Context, problemID int64) (*AttemptTree, error) {
	var tree *AttemptTree
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		problem, err := getProblem(ctx, tx, problemID)
		if err != nil {
			return err
		}
		tree = &AttemptTree{Problem: *problem, Attempts: []Attempt{}, Roots: []int64{}, Children: map[int64][]int64{}}

		rows, err := tx.QueryContext(ctx,
			"SELECT "+attemptColumns+" FROM solution_attempts WHERE problem_id = ? ORDER BY created_at, id", problemID)
		if err != nil {
			return fmt.Errorf("memory: list attempts: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			a, err := scanAttempt(rows)
			if err != nil {
				return err
			}
			tree.Attempts = append(tree.Attempts, *a)
			if a.ParentAttemptID == nil {
				tree.Roots = append(tree.Roots, a.ID)
			} else {
				tree.Children[*a.ParentAttemptID] = append(tree.Children[*a.ParentAttemptID], a.ID)
			}
		}
		if err := rows.Err(); err != nil {
			return err
		}

		sol, err := getSolution(ctx, tx, problemID)
		if err != nil && !IsNotFound(err) {
			return err
		}
		tree.Solution = sol
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// attemptBelongsTo returns NotFoundError for a missing attempt and
// ValidationError when it belongs to another problem.
func attemptBelongsTo(ctx context.Context, q dbtx, attemptID, problemID int64, field string) error {
	var owner int64
	err := q.QueryRowContext(ctx, "SELECT problem_id FROM solution_attempts WHERE id = ?", attemptID).Scan(&owner)
	if err == sql.ErrNoRows {
		return notFound("attempt", attemptID)
	}
	if err != nil {
		return fmt.Errorf("memory: lookup attempt: %w", err)
	}
	if owner != problemID {
		return invalid(field, "attempt %d belongs to problem %d, not %d", attemptID, owner, problemID)
	}
	return nil
}

// DeleteAttempt removes one attempt. Its children become roots and a
// solution that named it as the winner keeps its summary with no winner.
func (s *Store) DeleteAttempt(ctx context.Context, id int64) error {
	return s.write(ctx, func(tx *sql.Tx, _ *indexBatch) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM solution_attempts WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("memory: delete attempt: %w", err)
		}
		return affectedOrNotFound(res, "attempt", id)
	})
}

// DeleteSolution removes the solution of a problem. The problem keeps its
// status; reopen it with UpdateProblem when the fix did not hold.
func (s *Store) DeleteSolution(ctx context.Context, problemID int64) error {
	return s.write(ctx, func(tx *sql.Tx, _ *indexBatch) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM solutions WHERE problem_id = ?", problemID)
		if err != nil {
			return fmt.Errorf("memory: delete solution: %w", err)
		}
		return affectedOrNotFound(res, "solution", problemID)
	})
}
