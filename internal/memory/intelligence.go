package memory

import (
	"context"
	"database/sql"
	"fmt"
)

// initChainDepth is how many snapshots InitializeSession walks back.
const initChainDepth = 3

// Promotion lists knowledge promoted by one sweep.
type Promotion struct {
	Skills   []Skill   `json:"skills"`
	Patterns []Pattern `json:"patterns"`
}

// Count is the number of promoted items.
func (p Promotion) Count() int { return len(p.Skills) + len(p.Patterns) }

// Decay counts knowledge removed by a decay sweep.
type Decay struct {
	Skills   int64 `json:"skills"`
	Patterns int64 `json:"patterns"`
}

// Briefing is the read-only composition handed to a starting session.
type Briefing struct {
	ProjectID   int64            `json:"project_id"`
	TaskType    string           `json:"task_type,omitempty"`
	LatestState *State           `json:"latest_state,omitempty"`
	Chain       []State          `json:"chain"`
	Skills      []Skill          `json:"skills"`
	Tools       []Recommendation `json:"tools"`
	Patterns    []Pattern        `json:"patterns"`
}

// Finalized is the outcome of closing a session chain.
type Finalized struct {
	State    *State    `json:"state"`
	Promoted Promotion `json:"promoted"`
}

// PromoteSweep promotes every skill and pattern that meets the thresholds.
// Each field is resolved on its own: a MinSessions or MinSuccessRate of
// zero (or below) is replaced by the configured value, so the caller cannot
// ask for a zero threshold. Promotion is one-way.
func (s *Store) PromoteSweep(ctx context.Context, t PromotionThresholds) (*Promotion, error) {
	t = s.thresholds(t)
	var skillIDs, patternIDs []int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		skillIDs, patternIDs, err = promoteAll(ctx, tx, t)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.promotion(ctx, skillIDs, patternIDs)
}

func (s *Store) thresholds(t PromotionThresholds) PromotionThresholds {
	if t.MinSessions <= 0 {
		t.MinSessions = s.cfg.Promotion.MinSessions
	}
	if t.MinSuccessRate <= 0 {
		t.MinSuccessRate = s.cfg.Promotion.MinSuccessRate
	}
	return t
}

func promoteAll(ctx context.Context, tx *sql.Tx, t PromotionThresholds) ([]int64, []int64, error) {
	skillIDs, err := skillKind.promote(ctx, tx, t)
	if err != nil {
		return nil, nil, err
	}
	patternIDs, err := patternKind.promote(ctx, tx, t)
	if err != nil {
		return nil, nil, err
	}
	return skillIDs, patternIDs, nil
}

func (s *Store) promotion(ctx context.Context, skillIDs, patternIDs []int64) (*Promotion, error) {
	p := &Promotion{Skills: []Skill{}, Patterns: []Pattern{}}
	for _, id := range skillIDs {
		sk, err := s.GetSkill(ctx, id)
		if err != nil {
			return nil, err
		}
		p.Skills = append(p.Skills, *sk)
	}
	for _, id := range patternIDs {
		pt, err := s.GetPattern(ctx, id)
		if err != nil {
			return nil, err
		}
		p.Patterns = append(p.Patterns, *pt)
	}
	if p.Count() > 0 {
		s.log.Info("knowledge promoted", "skills", len(p.Skills), "patterns", len(p.Patterns))
	}
	return p, nil
}

// DecaySweep deletes unpromoted skills and patterns whose confidence fell
// below floor. Promoted knowledge is never removed here.
func (s *Store) DecaySweep(ctx context.Context, floor float64) (*Decay, error) {
	if floor < 0 || floor > 1 {
		return nil, invalid("floor", "must be within [0,1], got %v", floor)
	}
	d := &Decay{}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if d.Skills, err = skillKind.decay(ctx, tx, floor); err != nil {
			return err
		}
		d.Patterns, err = patternKind.decay(ctx, tx, floor)
		return err
	})
	if err != nil {
		return nil, err
	}
	if d.Skills+d.Patterns > 0 {
		s.log.Info("knowledge decayed", "skills", d.Skills, "patterns", d.Patterns, "floor", floor)
	}
	return d, nil
}

// InitializeSession composes what a new session should know: the latest
// snapshot and its chain, applicable skills, tool recommendations for the
// task type, and active patterns. It writes nothing.
func (s *Store) InitializeSession(ctx context.Context, projectID int64, taskType string) (*Briefing, error) {
	b := &Briefing{ProjectID: projectID, TaskType: taskType, Chain: []State{}}
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		if err := mustExist(ctx, tx, "projects", "project", projectID); err != nil {
			return err
		}
		latest, err := latestState(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if latest != nil {
			b.LatestState = latest
			if b.Chain, err = stateChain(ctx, tx, latest.ID, initChainDepth); err != nil {
				return err
			}
		}
		if b.Skills, err = listSkills(ctx, tx, SkillFilter{ProjectID: &projectID, MinConfidence: s.cfg.SkillMinConfidence}); err != nil {
			return err
		}
		if b.Tools, err = recommendTools(ctx, tx, taskType, 5); err != nil {
			return err
		}
		b.Patterns, err = listPatterns(ctx, tx, PatternFilter{ProjectID: &projectID, ActiveAbove: s.cfg.ActivePatternConfidence})
		return err
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// FinalizeSession appends an end snapshot after stateID and runs a promotion
// sweep with the configured thresholds.
func (s *Store) FinalizeSession(ctx context.Context, stateID int64, payload StatePayload) (*Finalized, error) {
	var endID int64
	var skillIDs, patternIDs []int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var projectID int64
		err := tx.QueryRowContext(ctx, "SELECT project_id FROM session_state WHERE id = ?", stateID).Scan(&projectID)
		if err == sql.ErrNoRows {
			return notFound("state", stateID)
		}
		if err != nil {
			return fmt.Errorf("memory: lookup state: %w", err)
		}
		endID, err = saveState(ctx, tx, SaveStateParams{
			ProjectID:       projectID,
			StateType:       "end",
			PreviousStateID: &stateID,
			StatePayload:    payload,
		})
		if err != nil {
			return err
		}
		skillIDs, patternIDs, err = promoteAll(ctx, tx, s.cfg.Promotion)
		return err
	})
	if err != nil {
		return nil, err
	}

	end, err := s.GetState(ctx, endID)
	if err != nil {
		return nil, err
	}
	promoted, err := s.promotion(ctx, skillIDs, patternIDs)
	if err != nil {
		return nil, err
	}
	return &Finalized{State: end, Promoted: *promoted}, nil
}
