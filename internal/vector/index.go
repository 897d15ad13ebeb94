package vector

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/HendryAvila/flowstate/internal/memory"
	_ "modernc.org/sqlite"
)

// Index is a brute-force cosine index over normalized embeddings. Vectors
// are persisted as SQLite BLOBs and mirrored in memory; at project-memory
// scale an exact scan is fast enough and needs no ANN structure.
//
// Index implements memory.VectorIndexer.
type Index struct {
	db       *sql.DB
	embedder Embedder

	mu      sync.RWMutex
	entries map[memory.UnitKey]entry
	dims    int // required width; 0 accepts any
}

type entry struct {
	projectID int64
	vec       []float32 // normalized
}

// Hit is a vector-channel match. Score is cosine similarity in [-1,1].
type Hit struct {
	memory.UnitKey
	ProjectID int64   `json:"project_id"`
	Score     float64 `json:"score"`
}

// Open opens (or creates) the vector index at path and loads it.
func Open(path string, embedder Embedder) (*Index, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("vector: open %s: %w", path, err)
	}
	ix, err := New(db, embedder)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return ix, nil
}

// New creates an index on an open database, creating its table if needed.
func New(db *sql.DB, embedder Embedder) (*Index, error) {
	ix := &Index{db: db, embedder: embedder, entries: make(map[memory.UnitKey]entry)}
	if err := ix.migrate(); err != nil {
		return nil, fmt.Errorf("vector: migrate: %w", err)
	}
	if err := ix.loadAll(); err != nil {
		return nil, fmt.Errorf("vector: load: %w", err)
	}
	return ix, nil
}

// Close closes the underlying database.
func (ix *Index) Close() error { return ix.db.Close() }

func (ix *Index) migrate() error {
	_, err := ix.db.Exec(`
		CREATE TABLE IF NOT EXISTS vectors (
			content_type TEXT    NOT NULL,
			content_id   INTEGER NOT NULL,
			project_id   INTEGER NOT NULL,
			embedding    BLOB    NOT NULL,
			dimensions   INTEGER NOT NULL,
			PRIMARY KEY (content_type, content_id)
		)`)
	return err
}

func (ix *Index) loadAll() error {
	rows, err := ix.db.Query("SELECT content_type, content_id, project_id, embedding, dimensions FROM vectors")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var k memory.UnitKey
		var e entry
		var blob []byte
		var dims int
		if err := rows.Scan(&k.ContentType, &k.ContentID, &e.projectID, &blob, &dims); err != nil {
			return err
		}
		e.vec = blobToFloat32(blob, dims)
		ix.entries[k] = e
	}
	return rows.Err()
}

// IndexText embeds text and stores it under (contentType, contentID).
func (ix *Index) IndexText(ctx context.Context, contentType string, contentID, projectID int64, text string) error {
	if ix.embedder == nil {
		return ErrUnavailable
	}
	vec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}
	return ix.Upsert(ctx, memory.UnitKey{ContentType: contentType, ContentID: contentID}, projectID, vec)
}

// RequireDimensions makes Upsert reject vectors of any other width. Zero
// accepts any width.
func (ix *Index) RequireDimensions(n int) {
	ix.mu.Lock()
	ix.dims = n
	ix.mu.Unlock()
}

// Upsert stores a vector for key. The vector is normalized on insert so the
// dot product equals cosine similarity.
func (ix *Index) Upsert(ctx context.Context, key memory.UnitKey, projectID int64, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("vector: empty embedding for %s %d", key.ContentType, key.ContentID)
	}
	normalized := normalize(vec)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.dims > 0 && len(vec) != ix.dims {
		return fmt.Errorf("vector: %s %d has %d dimensions, index requires %d", key.ContentType, key.ContentID, len(vec), ix.dims)
	}

	_, err := ix.db.ExecContext(ctx, `
		INSERT INTO vectors (content_type, content_id, project_id, embedding, dimensions)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(content_type, content_id) DO UPDATE SET
			project_id = excluded.project_id, embedding = excluded.embedding, dimensions = excluded.dimensions`,
		key.ContentType, key.ContentID, projectID, float32ToBlob(normalized), len(normalized),
	)
	if err != nil {
		return fmt.Errorf("vector: upsert: %w", err)
	}
	ix.entries[key] = entry{projectID: projectID, vec: normalized}
	return nil
}

// Remove deletes the vector for (contentType, contentID). Removing an
// absent key is not an error.
func (ix *Index) Remove(ctx context.Context, contentType string, contentID int64) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	_, err := ix.db.ExecContext(ctx,
		"DELETE FROM vectors WHERE content_type = ? AND content_id = ?", contentType, contentID)
	if err != nil {
		return fmt.Errorf("vector: remove: %w", err)
	}
	delete(ix.entries, memory.UnitKey{ContentType: contentType, ContentID: contentID})
	return nil
}

// Search embeds query and returns the top limit hits within the filter,
// best first.
func (ix *Index) Search(ctx context.Context, query string, f memory.SearchFilter, limit int) ([]Hit, error) {
	if ix.embedder == nil {
		return nil, ErrUnavailable
	}
	qvec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return ix.SearchVector(qvec, f, limit), nil
}

// SearchVector returns the top limit hits for a query vector, tracked with
// a min-heap. Vectors of a different width are skipped.
func (ix *Index) SearchVector(qvec []float32, f memory.SearchFilter, limit int) []Hit {
	if limit <= 0 {
		limit = 10
	}
	q := normalize(qvec)

	ix.mu.RLock()
	h := &minHeap{}
	for k, e := range ix.entries {
		if len(e.vec) != len(q) || !matches(k, e, f) {
			continue
		}
		hit := Hit{UnitKey: k, ProjectID: e.projectID, Score: dotProduct(q, e.vec)}
		if h.Len() < limit {
			heap.Push(h, hit)
		} else if worse((*h)[0], hit) {
			(*h)[0] = hit
			heap.Fix(h, 0)
		}
	}
	ix.mu.RUnlock()

	out := make([]Hit, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Hit)
	}
	return out
}

// Count returns the number of stored vectors.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

func matches(k memory.UnitKey, e entry, f memory.SearchFilter) bool {
	if f.ProjectID != nil && e.projectID != *f.ProjectID {
		return false
	}
	if len(f.ContentTypes) > 0 && !slices.Contains(f.ContentTypes, k.ContentType) {
		return false
	}
	return true
}

// worse orders hits for the heap: lower score first, and among equal
// scores the larger key, so results are deterministic.
func worse(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	if a.ContentType != b.ContentType {
		return a.ContentType > b.ContentType
	}
	return a.ContentID > b.ContentID
}

// minHeap keeps the worst retained hit at the root.
type minHeap []Hit

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)        { *h = append(*h, x.(Hit)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// ─── math ────────────────────────────────────────────────────────────────────

func normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func float32ToBlob(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func blobToFloat32(b []byte, dims int) []float32 {
	v := make([]float32, dims)
	for i := 0; i < dims && i*4+4 <= len(b); i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
