package simdex

import (
	"context"

	"go.uber.org/zap"

	"github.com/helmline/simdex/internal/domain"
)

// Embedder turns a batch of texts into one vector per text, in input
// order. Implement it to plug in a provider other than OpenAI.
type Embedder interface {
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}

type clientConfig struct {
	apiKey    string
	baseURL   string
	model     string
	indexDir  string
	batchSize int
	embedder  domain.BatchEmbedder
	logger    *zap.Logger
}

// Option configures the Client.
type Option func(*clientConfig)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(c *clientConfig) { c.apiKey = key }
}

// WithBaseURL overrides the embedding API base URL, for
// OpenAI-compatible providers.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) { c.baseURL = url }
}

// WithModel sets the embedding model recorded in built artifacts.
func WithModel(model string) Option {
	return func(c *clientConfig) { c.model = model }
}

// WithIndexDir sets the artifact directory.
func WithIndexDir(dir string) Option {
	return func(c *clientConfig) { c.indexDir = dir }
}

// WithBatchSize bounds texts per embedding request.
func WithBatchSize(n int) Option {
	return func(c *clientConfig) { c.batchSize = n }
}

// WithEmbedder replaces the OpenAI provider with a custom one.
func WithEmbedder(e Embedder) Option {
	return func(c *clientConfig) { c.embedder = &embedderAdapter{inner: e} }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = l }
}

// embedderAdapter wraps the public Embedder to satisfy domain.BatchEmbedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) EmbedBatch(
	ctx context.Context, model string, texts []string,
) ([]domain.IndexedEmbedding, error) {
	vectors, err := a.inner.Embed(ctx, model, texts)
	if err != nil {
		return nil, err
	}
	out := make([]domain.IndexedEmbedding, len(vectors))
	for i, v := range vectors {
		out[i] = domain.IndexedEmbedding{Index: i, Embedding: v}
	}
	return out, nil
}
