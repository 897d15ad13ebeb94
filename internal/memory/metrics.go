package memory

import (
	"context"
	"database/sql"
	"fmt"
)

// minTuningOccurrences is how often the same adjustment must be suggested
// before it is reported as a tuning suggestion.
const minTuningOccurrences = 2

// Metric is one observation about how well the engine's own behaviour
// served the user: a checkpoint that came too late, a tool choice that
// missed.
type Metric struct {
	ID                  int64    `json:"id"`
	ProjectID           *int64   `json:"project_id,omitempty"`
	SessionStateID      *int64   `json:"session_state_id,omitempty"`
	MetricType          string   `json:"metric_type"`
	Context             *string  `json:"context,omitempty"`
	ActionTaken         *string  `json:"action_taken,omitempty"`
	Outcome             *string  `json:"outcome,omitempty"`
	EffectivenessScore  *float64 `json:"effectiveness_score,omitempty"`
	UserFeedback        *string  `json:"user_feedback,omitempty"`
	ShouldAdjust        bool     `json:"should_adjust"`
	SuggestedAdjustment *string  `json:"suggested_adjustment,omitempty"`
	CreatedAt           string   `json:"created_at"`
}

// LogMetricParams holds the input for LogMetric.
type LogMetricParams struct {
	ProjectID           *int64   `json:"project_id,omitempty"`
	SessionStateID      *int64   `json:"session_state_id,omitempty"`
	MetricType          string   `json:"metric_type"`
	Context             string   `json:"context,omitempty"`
	ActionTaken         string   `json:"action_taken,omitempty"`
	Outcome             string   `json:"outcome,omitempty"`
	EffectivenessScore  *float64 `json:"effectiveness_score,omitempty"`
	UserFeedback        string   `json:"user_feedback,omitempty"`
	ShouldAdjust        bool     `json:"should_adjust,omitempty"`
	SuggestedAdjustment string   `json:"suggested_adjustment,omitempty"`
}

// MetricFilter narrows Metrics. Zero fields match everything.
type MetricFilter struct {
	ProjectID      *int64
	SessionStateID *int64
	MetricType     string
	Limit          int
}

// TuningSuggestion is an adjustment that metrics keep asking for.
type TuningSuggestion struct {
	MetricType          string   `json:"metric_type"`
	SuggestedAdjustment string   `json:"suggested_adjustment"`
	Occurrences         int      `json:"occurrences"`
	AvgEffectiveness    *float64 `json:"avg_effectiveness,omitempty"`
}

const metricColumns = `id, project_id, session_state_id, metric_type, context, action_taken, outcome,
	effectiveness_score, user_feedback, should_adjust, suggested_adjustment, created_at`

func scanMetric(r rowScanner) (*Metric, error) {
	var m Metric
	var project, state sql.NullInt64
	var mctx, action, outcome, feedback, adjust sql.NullString
	var score sql.NullFloat64
	if err := r.Scan(&m.ID, &project, &state, &m.MetricType, &mctx, &action, &outcome,
		&score, &feedback, &m.ShouldAdjust, &adjust, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.ProjectID = nullInt(project)
	m.SessionStateID = nullInt(state)
	m.Context = nullString(mctx)
	m.ActionTaken = nullString(action)
	m.Outcome = nullString(outcome)
	m.UserFeedback = nullString(feedback)
	m.SuggestedAdjustment = nullString(adjust)
	if score.Valid {
		m.EffectivenessScore = &score.Float64
	}
	return &m, nil
}

// LogMetric records one metric. The effectiveness score, when given, must
// lie in [0, 1].
func (s *Store) LogMetric(ctx context.Context, p LogMetricParams) (*Metric, error) {
	if err := checkEnum("metric_type", p.MetricType, MetricTypes); err != nil {
		return nil, err
	}
	if sc := p.EffectivenessScore; sc != nil && (*sc < 0 || *sc > 1) {
		return nil, invalid("effectiveness_score", "must be between 0 and 1, got %v", *sc)
	}

	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if p.ProjectID != nil {
			if err := mustExist(ctx, tx, "projects", "project", *p.ProjectID); err != nil {
				return err
			}
		}
		if p.SessionStateID != nil {
			if err := mustExist(ctx, tx, "session_state", "state", *p.SessionStateID); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO algorithm_metrics (project_id, session_state_id, metric_type, context, action_taken,
				outcome, effectiveness_score, user_feedback, should_adjust, suggested_adjustment)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ProjectID, p.SessionStateID, p.MetricType, nullableString(p.Context), nullableString(p.ActionTaken),
			nullableString(p.Outcome), p.EffectivenessScore, nullableString(p.UserFeedback),
			p.ShouldAdjust, nullableString(p.SuggestedAdjustment),
		)
		if err != nil {
			return fmt.Errorf("memory: log metric: %w", err)
		}
		id, _ = res.LastInsertId()
		return nil
	})
	if err != nil {
		return nil, err
	}
	m, err := scanMetric(s.db.QueryRowContext(ctx, "SELECT "+metricColumns+" FROM algorithm_metrics WHERE id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("memory: load metric: %w", err)
	}
	return m, nil
}

// Metrics lists metrics newest first. Limit defaults to 100.
func (s *Store) Metrics(ctx context.Context, f MetricFilter) ([]Metric, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	query := "SELECT " + metricColumns + " FROM algorithm_metrics WHERE 1=1"
	var args []any
	if f.ProjectID != nil {
		query += " AND project_id = ?"
		args = append(args, *f.ProjectID)
	}
	if f.SessionStateID != nil {
		query += " AND session_state_id = ?"
		args = append(args, *f.SessionStateID)
	}
	if f.MetricType != "" {
		if err := checkEnum("metric_type", f.MetricType, MetricTypes); err != nil {
			return nil, err
		}
		query += " AND metric_type = ?"
		args = append(args, f.MetricType)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: list metrics: %w", err)
	}
	defer rows.Close()

	out := []Metric{}
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// TuningSuggestions groups flagged metrics by their suggested adjustment
// and reports those seen at least twice, most frequent first and, among
// equals, least effective first. A nil projectID spans all projects.
func (s *Store) TuningSuggestions(ctx context.Context, projectID *int64) ([]TuningSuggestion, error) {
	query := `
		SELECT metric_type, suggested_adjustment, COUNT(*) AS occurrences, AVG(effectiveness_score) AS avg_eff
		FROM algorithm_metrics
		WHERE should_adjust = 1 AND suggested_adjustment IS NOT NULL`
	var args []any
	if projectID != nil {
		query += " AND project_id = ?"
		args = append(args, *projectID)
	}
	query += `
		GROUP BY metric_type, suggested_adjustment
		HAVING COUNT(*) >= ?
		ORDER BY occurrences DESC, COALESCE(avg_eff, 1) ASC, metric_type`
	args = append(args, minTuningOccurrences)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: tuning suggestions: %w", err)
	}
	defer rows.Close()

	out := []TuningSuggestion{}
	for rows.Next() {
		var t TuningSuggestion
		var avg sql.NullFloat64
		if err := rows.Scan(&t.MetricType, &t.SuggestedAdjustment, &t.Occurrences, &avg); err != nil {
			return nil, err
		}
		if avg.Valid {
			t.AvgEffectiveness = &avg.Float64
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
