// Package vector implements the semantic channel of the FlowState index:
// embedding providers and a brute-force cosine index persisted in SQLite.
package vector

import (
	"context"
	"errors"
)

// ErrUnavailable reports that the embedding provider cannot be reached.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Embedder turns text into a dense vector.
// Implementations: OllamaEmbedder.
type Embedder interface {
	// Embed returns the embedding of text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions is the vector width, or 0 while it is not yet known.
	Dimensions() int
}
