package search

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/flowstate/internal/memory"
	"github.com/HendryAvila/flowstate/internal/vector"
)

// keywordEmbedder places text on three axes by keyword so similarity is
// predictable: network, database, ui.
type keywordEmbedder struct {
	fail atomic.Bool
}

func (k *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if k.fail.Load() {
		return nil, errors.New("embedder offline")
	}
	text = strings.ToLower(text)
	v := []float32{0.01, 0.01, 0.01}
	for _, w := range []string{"timeout", "network", "latency", "retry", "timed"} {
		if strings.Contains(text, w) {
			v[0]++
		}
	}
	for _, w := range []string{"query", "index", "sql"} {
		if strings.Contains(text, w) {
			v[1]++
		}
	}
	for _, w := range []string{"button", "css", "layout"} {
		if strings.Contains(text, w) {
			v[2]++
		}
	}
	return v, nil
}

func (k *keywordEmbedder) Dimensions() int { return 3 }

type fixture struct {
	store   *memory.Store
	vectors *vector.Index
	emb     *keywordEmbedder
	project *memory.Project
	comp    *memory.Component
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	emb := &keywordEmbedder{}
	vix, err := vector.Open(filepath.Join(dir, "vectors.db"), emb)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vix.Close() })

	store, err := memory.New(memory.Config{DataDir: dir}, memory.WithVectorIndexer(vix))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	p, err := store.CreateProject(ctx, "P", "")
	require.NoError(t, err)
	c, err := store.CreateComponent(ctx, memory.CreateComponentParams{ProjectID: p.ID, Name: "API"})
	require.NoError(t, err)
	return &fixture{store: store, vectors: vix, emb: emb, project: p, comp: c}
}

func TestRetriever_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	timeout, err := f.store.LogProblem(ctx, memory.LogProblemParams{ComponentID: f.comp.ID, Title: "Timeout", Description: "requests hang on network", Severity: "high"})
	require.NoError(t, err)
	_, err = f.store.LogProblem(ctx, memory.LogProblemParams{ComponentID: f.comp.ID, Title: "Broken button", Description: "css layout shifts"})
	require.NoError(t, err)
	lat, err := f.store.LogLearning(ctx, memory.LogLearningParams{ProjectID: f.project.ID, Insight: "High latency calls need retry; check the sql index first"})
	require.NoError(t, err)

	r := NewRetriever(f.store, f.vectors, Options{})
	resp, err := r.Search(ctx, Query{Text: "timeout", ProjectID: &f.project.ID, Limit: 5})
	require.NoError(t, err)
	assert.Nil(t, resp.Degraded)
	require.NotEmpty(t, resp.Results)

	assert.Equal(t, "problem", resp.Results[0].ContentType)
	assert.Equal(t, timeout.ID, resp.Results[0].ContentID)
	assert.Equal(t, SourceBoth, resp.Results[0].Source)

	// The learning shares no token with the query but is semantically close.
	var found bool
	for _, res := range resp.Results {
		if res.ContentType == "learning" && res.ContentID == lat.ID {
			found = true
			assert.Equal(t, SourceVector, res.Source)
		}
	}
	assert.True(t, found, "semantic-only match missing")
}

func TestRetriever_DeletedSourceNeverReturned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.store.LogProblem(ctx, memory.LogProblemParams{ComponentID: f.comp.ID, Title: "Timeout on login"})
	require.NoError(t, err)
	require.NoError(t, f.store.DeleteProblem(ctx, p.ID))

	r := NewRetriever(f.store, f.vectors, Options{})
	resp, err := r.Search(ctx, Query{Text: "timeout"})
	require.NoError(t, err)
	for _, res := range resp.Results {
		assert.False(t, res.ContentType == "problem" && res.ContentID == p.ID)
	}
	hits := f.vectors.SearchVector([]float32{1, 0, 0}, memory.SearchFilter{ContentTypes: []string{"problem"}}, 10)
	assert.Empty(t, hits, "eviction should reach the vector channel")
}

func TestRetriever_EmbedderDownMatchesTokenOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.LogProblem(ctx, memory.LogProblemParams{ComponentID: f.comp.ID, Title: "Timeout", Severity: "high"})
	require.NoError(t, err)
	_, err = f.store.AddTodo(ctx, memory.AddTodoParams{ProjectID: f.project.ID, Title: "Raise timeout to 30s"})
	require.NoError(t, err)

	f.emb.fail.Store(true)
	r := NewRetriever(f.store, f.vectors, Options{})

	resp, err := r.Search(ctx, Query{Text: "timeout"})
	require.NoError(t, err)
	require.NotNil(t, resp.Degraded)

	tokenOnly, err := r.TokenOnly(ctx, Query{Text: "timeout"})
	require.NoError(t, err)
	assert.Equal(t, tokenOnly, resp.Results)
	assert.Len(t, resp.Results, 2)
}

func TestRetriever_WriteSucceedsWhileEmbedderDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.emb.fail.Store(true)

	p, err := f.store.LogProblem(ctx, memory.LogProblemParams{ComponentID: f.comp.ID, Title: "Timeout"})
	require.NoError(t, err)
	assert.Equal(t, "Timeout", p.Title)
	assert.Positive(t, f.store.DegradedEmbeds())

	r := NewRetriever(f.store, nil, Options{})
	results, err := r.TokenOnly(ctx, Query{Text: "timeout"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, p.ID, results[0].ContentID)
}
