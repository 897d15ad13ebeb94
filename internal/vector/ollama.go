package vector

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ollama/ollama/api"
)

// DefaultOllamaModel is used when no model is configured.
const DefaultOllamaModel = "nomic-embed-text"

// OllamaEmbedder embeds text through a local Ollama server. The server
// address comes from OLLAMA_HOST.
type OllamaEmbedder struct {
	client *api.Client
	model  string
	dims   atomic.Int64
}

// NewOllamaEmbedder creates an embedder for model.
func NewOllamaEmbedder(model string) (*OllamaEmbedder, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, fmt.Errorf("vector: create ollama client: %w", err)
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaEmbedder{client: client, model: model}, nil
}

// Model returns the embedding model name.
func (o *OllamaEmbedder) Model() string { return o.model }

// Available checks if Ollama is running and reachable.
func (o *OllamaEmbedder) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := o.client.List(ctx)
	return err == nil
}

// Embed implements Embedder.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.Embed(ctx, &api.EmbedRequest{Model: o.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("%w: ollama embed: %v", ErrUnavailable, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("vector: ollama returned no embedding for model %s", o.model)
	}
	vec := resp.Embeddings[0]
	o.dims.Store(int64(len(vec)))
	return vec, nil
}

// Dimensions implements Embedder. It is known after the first Embed call.
func (o *OllamaEmbedder) Dimensions() int { return int(o.dims.Load()) }
