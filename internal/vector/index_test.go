package vector

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/flowstate/internal/memory"
)

// stubEmbedder maps known texts to fixed vectors.
type stubEmbedder struct {
	vecs map[string][]float32
	err  error
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vecs[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (s *stubEmbedder) Dimensions() int { return 3 }

func newTestIndex(t *testing.T, emb Embedder) *Index {
	t.Helper()
	ix, err := Open(filepath.Join(t.TempDir(), "vectors.db"), emb)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func key(ct string, id int64) memory.UnitKey {
	return memory.UnitKey{ContentType: ct, ContentID: id}
}

func TestIndex_UpsertAndSearchVector(t *testing.T) {
	ix := newTestIndex(t, nil)
	ctx := context.Background()

	require.NoError(t, ix.Upsert(ctx, key("problem", 1), 1, []float32{1, 0, 0}))
	require.NoError(t, ix.Upsert(ctx, key("problem", 2), 1, []float32{0, 1, 0}))

	hits := ix.SearchVector([]float32{0.9, 0.1, 0}, memory.SearchFilter{}, 10)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(1), hits[0].ContentID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
	assert.InDelta(t, 0.9939, hits[0].Score, 0.001)
}

func TestIndex_TopKLimit(t *testing.T) {
	ix := newTestIndex(t, nil)
	ctx := context.Background()

	for i := int64(1); i <= 20; i++ {
		require.NoError(t, ix.Upsert(ctx, key("learning", i), 1, []float32{float32(i), 1, 0}))
	}
	hits := ix.SearchVector([]float32{1, 0, 0}, memory.SearchFilter{}, 5)
	require.Len(t, hits, 5)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
	assert.Equal(t, int64(20), hits[0].ContentID)
}

func TestIndex_Filter(t *testing.T) {
	ix := newTestIndex(t, nil)
	ctx := context.Background()

	require.NoError(t, ix.Upsert(ctx, key("problem", 1), 1, []float32{1, 0, 0}))
	require.NoError(t, ix.Upsert(ctx, key("learning", 2), 1, []float32{1, 0, 0}))
	require.NoError(t, ix.Upsert(ctx, key("problem", 3), 2, []float32{1, 0, 0}))

	p1 := int64(1)
	hits := ix.SearchVector([]float32{1, 0, 0}, memory.SearchFilter{ProjectID: &p1}, 10)
	assert.Len(t, hits, 2)

	hits = ix.SearchVector([]float32{1, 0, 0}, memory.SearchFilter{ProjectID: &p1, ContentTypes: []string{"problem"}}, 10)
	require.Len(t, hits, 1)
	assert.Equal(t, key("problem", 1), hits[0].UnitKey)
}

func TestIndex_DimensionMismatchSkipped(t *testing.T) {
	ix := newTestIndex(t, nil)
	ctx := context.Background()

	require.NoError(t, ix.Upsert(ctx, key("todo", 1), 1, []float32{1, 0}))
	require.NoError(t, ix.Upsert(ctx, key("todo", 2), 1, []float32{1, 0, 0}))

	hits := ix.SearchVector([]float32{1, 0, 0}, memory.SearchFilter{}, 10)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(2), hits[0].ContentID)
}

func TestIndex_RequireDimensions(t *testing.T) {
	ix := newTestIndex(t, nil)
	ctx := context.Background()
	ix.RequireDimensions(3)

	require.NoError(t, ix.Upsert(ctx, key("todo", 1), 1, []float32{1, 0, 0}))
	err := ix.Upsert(ctx, key("todo", 2), 1, []float32{1, 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires 3")
	assert.Equal(t, 1, ix.Count())
}

func TestIndex_RemoveAndPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")
	ctx := context.Background()

	ix, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, ix.Upsert(ctx, key("problem", 1), 1, []float32{1, 0, 0}))
	require.NoError(t, ix.Upsert(ctx, key("problem", 2), 1, []float32{0, 1, 0}))
	require.NoError(t, ix.Remove(ctx, "problem", 2))
	require.NoError(t, ix.Remove(ctx, "problem", 99))
	require.NoError(t, ix.Close())

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 1, reopened.Count())

	hits := reopened.SearchVector([]float32{1, 0, 0}, memory.SearchFilter{}, 10)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestIndex_IndexTextAndSearch(t *testing.T) {
	emb := &stubEmbedder{vecs: map[string][]float32{
		"connection timeout": {1, 0, 0},
		"slow query":         {0, 1, 0},
		"request timed out":  {0.95, 0.05, 0},
	}}
	ix := newTestIndex(t, emb)
	ctx := context.Background()

	require.NoError(t, ix.IndexText(ctx, "problem", 1, 1, "connection timeout"))
	require.NoError(t, ix.IndexText(ctx, "problem", 2, 1, "slow query"))

	hits, err := ix.Search(ctx, "request timed out", memory.SearchFilter{}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(1), hits[0].ContentID)
}

func TestIndex_EmbedderFailure(t *testing.T) {
	boom := errors.New("connection refused")
	ix := newTestIndex(t, &stubEmbedder{err: boom})
	ctx := context.Background()

	err := ix.IndexText(ctx, "problem", 1, 1, "anything")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, ix.Count())

	_, err = ix.Search(ctx, "anything", memory.SearchFilter{}, 5)
	assert.ErrorIs(t, err, boom)
}

func TestIndex_NoEmbedder(t *testing.T) {
	ix := newTestIndex(t, nil)
	err := ix.IndexText(context.Background(), "problem", 1, 1, "text")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNormalizeZeroVector(t *testing.T) {
	out := normalize([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, out)
}

func TestBlobRoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 3}
	assert.Equal(t, in, blobToFloat32(float32ToBlob(in), len(in)))
}
