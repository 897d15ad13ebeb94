package memory

import (
	"context"
	"database/sql"
	"fmt"
)

// StartingConfidence is the confidence of freshly recorded knowledge and the
// value used while there is no outcome data.
const StartingConfidence = 0.6

// SmoothConfidence moves prev a fraction alpha toward the observed success
// ratio. The ratio is Laplace-smoothed, (succeeded+1)/(applied+2), so a single
// sample cannot pull it to 0 or 1. The result is clamped to [0,1].
func SmoothConfidence(prev float64, succeeded, applied int, alpha float64) float64 {
	if applied <= 0 {
		if prev < 0 || prev > 1 {
			return StartingConfidence
		}
		return prev
	}
	if alpha <= 0 || alpha > 1 {
		alpha = 0.3
	}
	if succeeded > applied {
		succeeded = applied
	}
	ratio := float64(succeeded+1) / float64(applied+2)
	return clamp01(prev + alpha*(ratio-prev))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// ─── Shared knowledge mechanics ─────────────────────────────────────────────

// knowledgeKind binds a knowledge table to the key used in knowledge_sessions.
type knowledgeKind struct {
	kind   string
	table  string
	entity string
}

var (
	skillKind   = knowledgeKind{kind: "skill", table: "learned_skills", entity: "skill"}
	patternKind = knowledgeKind{kind: "pattern", table: "behavior_patterns", entity: "pattern"}
)

// seeSession records sessionKey against a knowledge row and refreshes its
// session_count. Empty keys are ignored.
func (k knowledgeKind) seeSession(ctx context.Context, tx *sql.Tx, id int64, sessionKey string) error {
	if sessionKey == "" {
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO knowledge_sessions (kind, knowledge_id, session_key) VALUES (?, ?, ?)",
		k.kind, id, sessionKey,
	); err != nil {
		return fmt.Errorf("memory: record %s session: %w", k.entity, err)
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE `+k.table+` SET session_count = MAX(1,
			(SELECT COUNT(*) FROM knowledge_sessions WHERE kind = ? AND knowledge_id = ?))
		WHERE id = ?`, k.kind, id, id)
	if err != nil {
		return fmt.Errorf("memory: update %s session count: %w", k.entity, err)
	}
	return nil
}

// apply records one outcome and moves confidence toward the new ratio.
func (k knowledgeKind) apply(ctx context.Context, tx *sql.Tx, id int64, succeeded bool, sessionKey string, alpha float64) error {
	var conf float64
	var applied, won int
	err := tx.QueryRowContext(ctx,
		"SELECT confidence, times_applied, times_succeeded FROM "+k.table+" WHERE id = ?", id,
	).Scan(&conf, &applied, &won)
	if err == sql.ErrNoRows {
		return notFound(k.entity, id)
	}
	if err != nil {
		return fmt.Errorf("memory: lookup %s: %w", k.entity, err)
	}

	applied++
	if succeeded {
		won++
	}
	next := SmoothConfidence(conf, won, applied, alpha)
	if _, err := tx.ExecContext(ctx, `
		UPDATE `+k.table+` SET times_applied = ?, times_succeeded = ?, confidence = ?, updated_at = datetime('now')
		WHERE id = ?`, applied, won, next, id,
	); err != nil {
		return fmt.Errorf("memory: apply %s: %w", k.entity, err)
	}
	return k.seeSession(ctx, tx, id, sessionKey)
}

// confirm counts a new session for a knowledge row without recording an
// outcome.
func (k knowledgeKind) confirm(ctx context.Context, tx *sql.Tx, id int64, sessionKey string) error {
	if err := mustExist(ctx, tx, k.table, k.entity, id); err != nil {
		return err
	}
	if sessionKey == "" {
		return invalid("session_key", "must not be empty")
	}
	if err := k.seeSession(ctx, tx, id, sessionKey); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, "UPDATE "+k.table+" SET updated_at = datetime('now') WHERE id = ?", id)
	return err
}

// promote flips every eligible row to promoted and returns their ids.
func (k knowledgeKind) promote(ctx context.Context, tx *sql.Tx, t PromotionThresholds) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM `+k.table+`
		WHERE promoted = 0
		  AND session_count >= ?
		  AND times_applied > 0
		  AND CAST(times_succeeded AS REAL) / times_applied >= ?
		ORDER BY id`, t.MinSessions, t.MinSuccessRate)
	if err != nil {
		return nil, fmt.Errorf("memory: select promotable %s: %w", k.entity, err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `
			UPDATE `+k.table+` SET promoted = 1, promoted_at = datetime('now'), updated_at = datetime('now')
			WHERE id = ? AND promoted = 0`, id,
		); err != nil {
			return nil, fmt.Errorf("memory: promote %s %d: %w", k.entity, id, err)
		}
	}
	return ids, nil
}

// decay deletes unpromoted rows whose confidence fell below floor.
func (k knowledgeKind) decay(ctx context.Context, tx *sql.Tx, floor float64) (int64, error) {
	res, err := tx.ExecContext(ctx,
		"DELETE FROM "+k.table+" WHERE promoted = 0 AND confidence < ?", floor)
	if err != nil {
		return 0, fmt.Errorf("memory: decay %s: %w", k.entity, err)
	}
	return res.RowsAffected()
}
