// Package simdex embeds the catalog similarity engine in a Go program:
// the same build/query pipeline the API server runs, without the HTTP
// layer.
package simdex

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/helmline/simdex/internal/domain"
	"github.com/helmline/simdex/internal/embedding"
	openaiEmb "github.com/helmline/simdex/internal/transport/openai"
	cataloguc "github.com/helmline/simdex/internal/usecase/catalog"
)

// Product is one catalog record.
type Product = domain.Product

// Match is one query result: a catalog record plus its similarity score.
type Match = domain.Match

// Page is raw extraction output for one catalog page.
type Page = cataloguc.Page

// Status reports index readiness.
type Status = cataloguc.StatusInfo

// Sentinel errors callers may match with errors.Is.
var (
	ErrIndexNotReady   = domain.ErrIndexNotReady
	ErrRateLimited     = domain.ErrRateLimited
	ErrBuildInProgress = domain.ErrBuildInProgress
)

// Client is the simdex SDK entry point.
type Client struct {
	catalog   *cataloguc.Service
	batchSize int
}

// New creates a simdex Client. An OpenAI API key or a custom embedder
// is required; everything else has defaults.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		model:     "text-embedding-3-small",
		indexDir:  "vector_index",
		batchSize: embedding.DefaultBatchSize,
		logger:    zap.NewNop(),
	}
	for _, o := range opts {
		o(cfg)
	}

	provider := cfg.embedder
	if provider == nil {
		if cfg.apiKey == "" {
			return nil, errors.New("simdex: API key required (use WithAPIKey or WithEmbedder)")
		}
		provider = openaiEmb.NewProvider(&openaiEmb.Config{
			APIKey:  cfg.apiKey,
			BaseURL: cfg.baseURL,
			Logger:  cfg.logger,
		})
	}

	client := embedding.NewClient(provider, cfg.logger)
	svc := cataloguc.New(client, cfg.indexDir, cfg.model, cfg.logger)
	svc.LoadArtifact()

	return &Client{catalog: svc, batchSize: cfg.batchSize}, nil
}

// Build embeds the given records and replaces the live index, writing
// the artifact pair under the configured directory.
func (c *Client) Build(ctx context.Context, products []Product) (int, error) {
	return c.catalog.BuildIndex(ctx, products, "", c.batchSize)
}

// BuildFromPages parses raw per-page extraction output and builds the
// index from whatever records it recovers.
func (c *Client) BuildFromPages(ctx context.Context, pages []Page) (int, error) {
	return c.catalog.IndexPages(ctx, pages, "", c.batchSize)
}

// Query returns the k best catalog matches for the given text.
// Returns ErrIndexNotReady until a build has succeeded or an artifact
// was loaded.
func (c *Client) Query(ctx context.Context, text string, k int) ([]Match, error) {
	return c.catalog.Query(ctx, text, k)
}

// Status reports index readiness.
func (c *Client) Status() Status {
	return c.catalog.Status()
}
