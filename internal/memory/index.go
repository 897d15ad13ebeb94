package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ─── Index units ─────────────────────────────────────────────────────────────

// Unit is one searchable piece of content in the derived index.
type Unit struct {
	ContentType string `json:"content_type"`
	ContentID   int64  `json:"content_id"`
	ProjectID   int64  `json:"project_id"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	CreatedAt   string `json:"created_at"`
}

// Text is the string handed to the embedding provider.
func (u Unit) Text() string {
	if u.Body == "" {
		return u.Title
	}
	return u.Title + "\n" + u.Body
}

// UnitKey identifies a unit across both index channels.
type UnitKey struct {
	ContentType string
	ContentID   int64
}

// VectorIndexer is the vector channel. Implementations embed the text
// themselves and may fail; failures never fail the source write.
type VectorIndexer interface {
	IndexText(ctx context.Context, contentType string, contentID, projectID int64, text string) error
	Remove(ctx context.Context, contentType string, contentID int64) error
}

type unitLoader struct {
	alias string
	query string
}

// unitLoaders select (content_id, project_id, title, body, created_at) for
// each content type. Single-row loads append a WHERE on the alias id.
var unitLoaders = map[string]unitLoader{
	"project": {"p", `SELECT p.id, p.id, p.name, COALESCE(p.description, ''), p.created_at FROM projects p`},
	"component": {"c", `SELECT c.id, c.project_id, c.name,
		COALESCE(c.description, ''), c.created_at FROM components c`},
	"change": {"ch", `SELECT ch.id, c.project_id, c.name || ' ' || ch.field_name,
		ch.field_name || ': ' || COALESCE(ch.old_value, '') || ' -> ' || COALESCE(ch.new_value, '') || ' ' || COALESCE(ch.reason, ''),
		ch.created_at
		FROM changes ch JOIN components c ON c.id = ch.component_id`},
	"problem": {"pr", `SELECT pr.id, c.project_id, pr.title,
		COALESCE(pr.description, '') || ' ' || COALESCE(pr.root_cause, ''), pr.created_at
		FROM problems pr JOIN components c ON c.id = pr.component_id`},
	"attempt": {"a", `SELECT a.id, c.project_id, substr(a.description, 1, 80),
		a.description || ' ' || COALESCE(a.notes, ''), a.created_at
		FROM solution_attempts a
		JOIN problems pr ON pr.id = a.problem_id
		JOIN components c ON c.id = pr.component_id`},
	"solution": {"s", `SELECT s.id, c.project_id, s.summary,
		COALESCE(s.key_insight, '') || ' ' || COALESCE(s.code_snippet, ''), s.created_at
		FROM solutions s
		JOIN problems pr ON pr.id = s.problem_id
		JOIN components c ON c.id = pr.component_id`},
	"todo": {"t", `SELECT t.id, t.project_id, t.title, COALESCE(t.description, ''), t.created_at FROM todos t`},
	"learning": {"l", `SELECT l.id, l.project_id, substr(l.insight, 1, 80),
		l.insight || ' ' || COALESCE(l.context, ''), l.created_at FROM learnings l`},
	"conversation": {"cv", `SELECT cv.id, cv.project_id, substr(cv.user_prompt_summary, 1, 80),
		cv.user_prompt_summary || ' ' || COALESCE(cv.assistant_response_summary, '') || ' ' || cv.key_decisions,
		cv.created_at FROM conversations cv`},
	"method": {"m", `SELECT m.id, m.project_id, m.name,
		m.description || ' ' || m.steps || ' ' || COALESCE(m.code_example, ''), m.created_at
		FROM project_methods m`},
}

func scanUnit(contentType string, r rowScanner) (Unit, error) {
	u := Unit{ContentType: contentType}
	err := r.Scan(&u.ContentID, &u.ProjectID, &u.Title, &u.Body, &u.CreatedAt)
	u.Body = strings.TrimSpace(u.Body)
	return u, err
}

// ─── Token channel ───────────────────────────────────────────────────────────

// indexBatch collects units written during one transaction so the vector
// channel can follow after commit.
type indexBatch struct {
	tx    *sql.Tx
	units []Unit
}

// put re-derives the unit for (contentType, id) from its source row and
// upserts it into the token index. A missing source row evicts the unit.
func (b *indexBatch) put(ctx context.Context, contentType string, id int64) error {
	loader, ok := unitLoaders[contentType]
	if !ok {
		return invalid("content_type", "unknown content type %q", contentType)
	}
	u, err := scanUnit(contentType, b.tx.QueryRowContext(ctx, loader.query+" WHERE "+loader.alias+".id = ?", id))
	if err == sql.ErrNoRows {
		return removeUnit(ctx, b.tx, contentType, id)
	}
	if err != nil {
		return fmt.Errorf("memory: load %s %d for index: %w", contentType, id, err)
	}
	if err := upsertUnit(ctx, b.tx, u); err != nil {
		return err
	}
	b.units = append(b.units, u)
	return nil
}

func upsertUnit(ctx context.Context, q dbtx, u Unit) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO search_index (content_type, content_id, project_id, title, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(content_type, content_id) DO UPDATE SET
			project_id = excluded.project_id,
			title      = excluded.title,
			body       = excluded.body,
			updated_at = excluded.updated_at`,
		u.ContentType, u.ContentID, u.ProjectID, u.Title, u.Body, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("memory: index %s %d: %w", u.ContentType, u.ContentID, err)
	}
	return nil
}

func removeUnit(ctx context.Context, q dbtx, contentType string, id int64) error {
	if _, err := q.ExecContext(ctx,
		"DELETE FROM search_index WHERE content_type = ? AND content_id = ?", contentType, id,
	); err != nil {
		return fmt.Errorf("memory: unindex %s %d: %w", contentType, id, err)
	}
	return nil
}

// write runs fn in a write transaction and then brings the vector channel
// up to date with whatever fn indexed or the schema evicted.
func (s *Store) write(ctx context.Context, fn func(tx *sql.Tx, ix *indexBatch) error) error {
	batch := &indexBatch{}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		batch.tx = tx
		return fn(tx, batch)
	})
	if err != nil {
		return err
	}
	s.syncVectors(ctx, batch.units)
	return nil
}

// Index upserts one unit into the token index (and the vector channel when
// configured). The unit text is derived from its source row.
func (s *Store) Index(ctx context.Context, contentType string, contentID int64) error {
	return s.write(ctx, func(tx *sql.Tx, ix *indexBatch) error {
		return ix.put(ctx, contentType, contentID)
	})
}

// RemoveFromIndex evicts one unit from both channels.
func (s *Store) RemoveFromIndex(ctx context.Context, contentType string, contentID int64) error {
	return s.write(ctx, func(tx *sql.Tx, _ *indexBatch) error {
		return removeUnit(ctx, tx, contentType, contentID)
	})
}

// ─── Vector channel ──────────────────────────────────────────────────────────

// syncVectors embeds freshly indexed units and drains queued evictions.
// Every failure here degrades to token-only for the affected item.
func (s *Store) syncVectors(ctx context.Context, units []Unit) {
	if s.vectors != nil {
		for _, u := range units {
			s.embedUnit(ctx, u)
		}
	}
	s.drainEvictions(ctx)
}

func (s *Store) embedUnit(ctx context.Context, u Unit) bool {
	ectx, cancel := context.WithTimeout(ctx, s.cfg.EmbedTimeout)
	defer cancel()
	if err := s.vectors.IndexText(ectx, u.ContentType, u.ContentID, u.ProjectID, u.Text()); err != nil {
		s.degradedEmbeds.Add(1)
		w := &DegradedModeWarning{Channel: "vector", Cause: err}
		s.log.Warn("embedding skipped", "content_type", u.ContentType, "content_id", u.ContentID, "warning", w.Error())
		return false
	}
	return true
}

func (s *Store) drainEvictions(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rows, err := s.db.QueryContext(ctx, "SELECT content_type, content_id FROM index_evictions")
	if err != nil {
		s.log.Warn("read index evictions", "error", err)
		return
	}
	var keys []UnitKey
	for rows.Next() {
		var k UnitKey
		if err := rows.Scan(&k.ContentType, &k.ContentID); err != nil {
			break
		}
		keys = append(keys, k)
	}
	_ = rows.Close()

	for _, k := range keys {
		if s.vectors != nil {
			if err := s.vectors.Remove(ctx, k.ContentType, k.ContentID); err != nil {
				s.log.Warn("vector eviction failed", "content_type", k.ContentType, "content_id", k.ContentID, "error", err)
				continue
			}
		}
		_, _ = s.db.ExecContext(ctx,
			"DELETE FROM index_evictions WHERE content_type = ? AND content_id = ?", k.ContentType, k.ContentID)
	}
}

// DegradedEmbeds reports how many writes fell back to token-only indexing
// since the store was opened.
func (s *Store) DegradedEmbeds() int64 { return s.degradedEmbeds.Load() }

// ─── Reindex ─────────────────────────────────────────────────────────────────

// ReindexResult reports a full index rebuild.
type ReindexResult struct {
	Units    int `json:"units"`
	Embedded int `json:"embedded"`
	Skipped  int `json:"skipped"`
}

// Reindex rebuilds the token index from every source table and, when the
// vector channel is configured, re-embeds every unit.
func (s *Store) Reindex(ctx context.Context) (*ReindexResult, error) {
	var units []Unit
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM search_index"); err != nil {
			return fmt.Errorf("memory: clear index: %w", err)
		}
		for _, ct := range ContentTypes {
			loader := unitLoaders[ct]
			rows, err := tx.QueryContext(ctx, loader.query)
			if err != nil {
				return fmt.Errorf("memory: load %s units: %w", ct, err)
			}
			var batch []Unit
			for rows.Next() {
				u, err := scanUnit(ct, rows)
				if err != nil {
					_ = rows.Close()
					return fmt.Errorf("memory: scan %s unit: %w", ct, err)
				}
				batch = append(batch, u)
			}
			if err := rows.Err(); err != nil {
				_ = rows.Close()
				return err
			}
			_ = rows.Close()
			for _, u := range batch {
				if err := upsertUnit(ctx, tx, u); err != nil {
					return err
				}
			}
			units = append(units, batch...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &ReindexResult{Units: len(units)}
	if s.vectors != nil {
		for _, u := range units {
			if s.embedUnit(ctx, u) {
				res.Embedded++
			} else {
				res.Skipped++
			}
		}
	}
	s.drainEvictions(ctx)
	s.log.Info("reindex complete", "units", res.Units, "embedded", res.Embedded, "skipped", res.Skipped)
	return res, nil
}

// ─── Token search ────────────────────────────────────────────────────────────

// SearchFilter restricts both channels to the same corpus.
type SearchFilter struct {
	ProjectID    *int64
	ContentTypes []string
}

// TokenHit is a token-channel match. Score is normalized to [0,1] against
// the best match of the same query.
type TokenHit struct {
	Unit
	Score float64 `json:"score"`
}

// TokenSearch ranks units by BM25 (title weighted above body) and returns
// at most limit hits, best first. An empty query yields no hits.
func (s *Store) TokenSearch(ctx context.Context, query string, f SearchFilter, limit int) ([]TokenHit, error) {
	match := sanitizeFTS(query)
	if match == "" {
		return []TokenHit{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	sqlq := `
		SELECT si.content_type, si.content_id, si.project_id, si.title, si.body, si.created_at,
		       bm25(memory_fts, 2.0, 1.0) AS rank
		FROM memory_fts
		JOIN search_index si ON si.id = memory_fts.rowid
		WHERE memory_fts MATCH ?`
	args := []any{match}
	sqlq, args = applyFilter(sqlq, args, f)
	sqlq += " ORDER BY rank, si.created_at DESC, si.id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlq, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: token search: %w", err)
	}
	defer rows.Close()

	hits := []TokenHit{}
	best := 0.0
	for rows.Next() {
		var h TokenHit
		var rank float64
		if err := rows.Scan(&h.ContentType, &h.ContentID, &h.ProjectID, &h.Title, &h.Body, &h.CreatedAt, &rank); err != nil {
			return nil, err
		}
		// bm25 is negative; larger magnitude means a better match.
		h.Score = -rank
		if h.Score > best {
			best = h.Score
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range hits {
		if best > 0 {
			hits[i].Score /= best
		} else {
			hits[i].Score = 1
		}
	}
	return hits, nil
}

// LiveUnits returns the indexed units for keys that still exist. Keys whose
// source was deleted are simply absent from the map.
func (s *Store) LiveUnits(ctx context.Context, keys []UnitKey, f SearchFilter) (map[UnitKey]Unit, error) {
	out := make(map[UnitKey]Unit, len(keys))
	for _, k := range keys {
		q := `SELECT si.content_type, si.content_id, si.project_id, si.title, si.body, si.created_at
			FROM search_index si WHERE si.content_type = ? AND si.content_id = ?`
		args := []any{k.ContentType, k.ContentID}
		q, args = applyFilter(q, args, f)
		var u Unit
		err := s.db.QueryRowContext(ctx, q, args...).Scan(&u.ContentType, &u.ContentID, &u.ProjectID, &u.Title, &u.Body, &u.CreatedAt)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("memory: hydrate %s %d: %w", k.ContentType, k.ContentID, err)
		}
		out[k] = u
	}
	return out, nil
}

func applyFilter(q string, args []any, f SearchFilter) (string, []any) {
	if f.ProjectID != nil {
		q += " AND si.project_id = ?"
		args = append(args, *f.ProjectID)
	}
	if len(f.ContentTypes) > 0 {
		q += " AND si.content_type IN (" + placeholders(len(f.ContentTypes)) + ")"
		for _, ct := range f.ContentTypes {
			args = append(args, ct)
		}
	}
	return q, args
}

// minPrefixRunes is the shortest word that is also matched as a prefix.
// Shorter words would expand to most of the vocabulary.
const minPrefixRunes = 3

// sanitizeFTS wraps each word in quotes so FTS5 operators in user input are
// treated as literals, and ORs the words so partial matches still rank.
// Words of minPrefixRunes or more become prefix terms ("timeo" finds
// "timeout").
func sanitizeFTS(query string) string {
	words := strings.Fields(query)
	terms := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ReplaceAll(w, `"`, "")
		if !strings.ContainsFunc(w, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) {
			continue
		}
		term := `"` + w + `"`
		if utf8.RuneCountInString(w) >= minPrefixRunes {
			term += "*"
		}
		terms = append(terms, term)
	}
	return strings.Join(terms, " OR ")
}
