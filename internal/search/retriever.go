// Package search ranks free-text queries over the FlowState index by
// fusing the exact token channel with the optional semantic channel.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/HendryAvila/flowstate/internal/memory"
	"github.com/HendryAvila/flowstate/internal/vector"
)

// Default channel weights for items found by both channels.
const (
	DefaultTokenWeight  = 0.4
	DefaultVectorWeight = 0.6
	minCandidatePool    = 20
	defaultLimit        = 10
)

// Sources of a result.
const (
	SourceToken  = "token"
	SourceVector = "vector"
	SourceBoth   = "both"
)

// TokenSearcher is the exact channel.
type TokenSearcher interface {
	TokenSearch(ctx context.Context, query string, f memory.SearchFilter, limit int) ([]memory.TokenHit, error)
	LiveUnits(ctx context.Context, keys []memory.UnitKey, f memory.SearchFilter) (map[memory.UnitKey]memory.Unit, error)
}

// VectorSearcher is the semantic channel.
type VectorSearcher interface {
	Search(ctx context.Context, query string, f memory.SearchFilter, limit int) ([]vector.Hit, error)
}

// Query is one search request.
type Query struct {
	Text         string
	ProjectID    *int64
	ContentTypes []string
	Limit        int
}

func (q Query) filter() memory.SearchFilter {
	return memory.SearchFilter{ProjectID: q.ProjectID, ContentTypes: q.ContentTypes}
}

// Result is one ranked item.
type Result struct {
	ContentType string  `json:"content_type"`
	ContentID   int64   `json:"content_id"`
	ProjectID   int64   `json:"project_id"`
	Score       float64 `json:"score"`
	Title       string  `json:"title"`
	Snippet     string  `json:"snippet"`
	Source      string  `json:"source"`
	CreatedAt   string  `json:"created_at"`
}

// Response carries ranked results and, when the semantic channel could not
// be used, a degraded-mode warning. Degraded is informational.
type Response struct {
	Results  []Result                    `json:"results"`
	Degraded *memory.DegradedModeWarning `json:"degraded,omitempty"`
}

// Options tune a Retriever.
type Options struct {
	TokenWeight   float64
	VectorWeight  float64
	VectorTimeout time.Duration
	Logger        *slog.Logger
}

// Retriever runs hybrid queries.
type Retriever struct {
	tokens  TokenSearcher
	vectors VectorSearcher
	wToken  float64
	wVector float64
	timeout time.Duration
	log     *slog.Logger
}

// NewRetriever creates a retriever. vectors may be nil, in which case every
// search is token-only and flagged degraded.
func NewRetriever(tokens TokenSearcher, vectors VectorSearcher, opts Options) *Retriever {
	wt, wv := opts.TokenWeight, opts.VectorWeight
	if wt < 0 || wv < 0 || wt+wv == 0 {
		wt, wv = DefaultTokenWeight, DefaultVectorWeight
	}
	sum := wt + wv
	r := &Retriever{
		tokens:  tokens,
		vectors: vectors,
		wToken:  wt / sum,
		wVector: wv / sum,
		timeout: opts.VectorTimeout,
		log:     opts.Logger,
	}
	if r.timeout <= 0 {
		r.timeout = 5 * time.Second
	}
	if r.log == nil {
		r.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// Weights returns the normalized token and vector weights.
func (r *Retriever) Weights() (token, vec float64) { return r.wToken, r.wVector }

// Search ranks q across both channels. It fails only when the token channel
// fails; semantic failures degrade to the token-only ranking.
func (r *Retriever) Search(ctx context.Context, q Query) (*Response, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if strings.TrimSpace(q.Text) == "" {
		return &Response{Results: []Result{}}, nil
	}
	pool := max(limit*2, minCandidatePool)

	tokenHits, err := r.tokens.TokenSearch(ctx, q.Text, q.filter(), pool)
	if err != nil {
		return nil, fmt.Errorf("search: token channel: %w", err)
	}

	resp := &Response{}
	vecHits, warn := r.semantic(ctx, q, pool)
	if warn != nil {
		resp.Degraded = warn
		r.log.Warn("search degraded to token-only", "warning", warn.Error())
	}

	merged := r.merge(tokenHits, vecHits)
	if len(vecHits) > 0 {
		if err := r.hydrate(ctx, q, merged); err != nil {
			return nil, err
		}
	}
	resp.Results = r.rank(merged, limit)
	return resp, nil
}

// TokenOnly ranks q using the token channel alone.
func (r *Retriever) TokenOnly(ctx context.Context, q Query) ([]Result, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	hits, err := r.tokens.TokenSearch(ctx, q.Text, q.filter(), max(limit*2, minCandidatePool))
	if err != nil {
		return nil, fmt.Errorf("search: token channel: %w", err)
	}
	return r.rank(r.merge(hits, nil), limit), nil
}

func (r *Retriever) semantic(ctx context.Context, q Query, pool int) ([]vector.Hit, *memory.DegradedModeWarning) {
	if r.vectors == nil {
		return nil, &memory.DegradedModeWarning{Channel: "vector", Cause: vector.ErrUnavailable}
	}
	vctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	hits, err := r.vectors.Search(vctx, q.Text, q.filter(), pool)
	if err == nil && vctx.Err() != nil {
		err = vctx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("vector search timed out after %s: %w", r.timeout, err)
		}
		return nil, &memory.DegradedModeWarning{Channel: "vector", Cause: err}
	}
	return hits, nil
}

type candidate struct {
	unit     memory.Unit
	token    float64
	vec      float64
	inToken  bool
	inVector bool
}

func (r *Retriever) merge(tokenHits []memory.TokenHit, vecHits []vector.Hit) map[memory.UnitKey]*candidate {
	out := make(map[memory.UnitKey]*candidate, len(tokenHits)+len(vecHits))
	for _, h := range tokenHits {
		k := memory.UnitKey{ContentType: h.ContentType, ContentID: h.ContentID}
		out[k] = &candidate{unit: h.Unit, token: h.Score, inToken: true}
	}

	best := 0.0
	for _, h := range vecHits {
		best = max(best, h.Score)
	}
	for _, h := range vecHits {
		score := 0.0
		if best > 0 {
			score = max(h.Score, 0) / best
		}
		c, ok := out[h.UnitKey]
		if !ok {
			c = &candidate{unit: memory.Unit{ContentType: h.ContentType, ContentID: h.ContentID, ProjectID: h.ProjectID}}
			out[h.UnitKey] = c
		}
		c.vec = score
		c.inVector = true
	}
	return out
}

// hydrate fills vector-only candidates from the live index and drops those
// whose source no longer exists.
func (r *Retriever) hydrate(ctx context.Context, q Query, cands map[memory.UnitKey]*candidate) error {
	var missing []memory.UnitKey
	for k, c := range cands {
		if !c.inToken {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	live, err := r.tokens.LiveUnits(ctx, missing, q.filter())
	if err != nil {
		return fmt.Errorf("search: hydrate: %w", err)
	}
	for _, k := range missing {
		u, ok := live[k]
		if !ok {
			delete(cands, k)
			continue
		}
		cands[k].unit = u
	}
	return nil
}

func (r *Retriever) score(c *candidate) (float64, string) {
	switch {
	case c.inToken && c.inVector:
		return r.wToken*c.token + r.wVector*c.vec, SourceBoth
	case c.inVector:
		return c.vec, SourceVector
	default:
		return c.token, SourceToken
	}
}

// rank sorts by score desc, then created_at desc, then (type, id), and
// truncates to limit.
func (r *Retriever) rank(cands map[memory.UnitKey]*candidate, limit int) []Result {
	out := make([]Result, 0, len(cands))
	for _, c := range cands {
		score, source := r.score(c)
		out = append(out, Result{
			ContentType: c.unit.ContentType,
			ContentID:   c.unit.ContentID,
			ProjectID:   c.unit.ProjectID,
			Score:       score,
			Title:       c.unit.Title,
			Snippet:     memory.Truncate(c.unit.Body, 240),
			Source:      source,
			CreatedAt:   c.unit.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt > b.CreatedAt
		}
		if a.ContentType != b.ContentType {
			return a.ContentType < b.ContentType
		}
		return a.ContentID < b.ContentID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
