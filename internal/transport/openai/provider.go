// Package openai adapts the OpenAI-compatible embeddings API to the
// domain BatchEmbedder contract.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/helmline/simdex/internal/domain"
	"github.com/helmline/simdex/internal/metrics"
)

// Provider issues one CreateEmbeddings call per batch. Retrying is the
// caller's job; this layer only classifies failures.
type Provider struct {
	client *openai.Client
	logger *zap.Logger
}

// Compile-time check: Provider implements domain.BatchEmbedder.
var _ domain.BatchEmbedder = (*Provider)(nil)

// Config holds the embedding provider settings.
type Config struct {
	APIKey  string
	BaseURL string
	Logger  *zap.Logger
}

// NewProvider creates an OpenAI-compatible embedding provider.
func NewProvider(cfg *Config) *Provider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Provider{
		client: openai.NewClientWithConfig(clientCfg),
		logger: cfg.Logger,
	}
}

// EmbedBatch implements domain.BatchEmbedder. The returned embeddings
// keep the provider's index tags and may be in any order.
func (p *Provider) EmbedBatch(
	ctx context.Context, model string, texts []string,
) ([]domain.IndexedEmbedding, error) {
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          openai.EmbeddingModel(model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}

	start := time.Now()
	resp, err := p.client.CreateEmbeddings(ctx, req)
	duration := time.Since(start)

	if err != nil {
		mapped := classifyAPIError(err)
		errType := "api_error"
		if errors.Is(mapped, domain.ErrRateLimited) {
			errType = "rate_limited"
		}
		metrics.EmbeddingRequestsTotal.WithLabelValues(model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(model, errType).Inc()
		return nil, mapped
	}

	if len(resp.Data) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(model, "empty_response").Inc()
		return nil, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProviderError)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(model).Observe(duration.Seconds())

	items := make([]domain.IndexedEmbedding, len(resp.Data))
	for i, d := range resp.Data {
		items[i] = domain.IndexedEmbedding{Index: d.Index, Embedding: d.Embedding}
	}
	return items, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (p *Provider) HealthCheck(ctx context.Context) error {
	if _, err := p.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// classifyAPIError maps provider failures onto the domain taxonomy:
// HTTP 429 becomes a retryable rate-limit error, everything else wraps
// ErrEmbeddingProviderError and is permanent. go-openai does not expose
// the Retry-After header, so the rate-limit error carries no wait hint.
func classifyAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return domain.NewRateLimit(0)
		}
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("embedding API error %d: %s: %w",
			reqErr.HTTPStatusCode, detail, domain.ErrEmbeddingProviderError)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return domain.NewRateLimit(0)
		}
		return fmt.Errorf("embedding API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, domain.ErrEmbeddingProviderError)
	}

	return fmt.Errorf("embedding request failed: %v: %w", err, domain.ErrEmbeddingProviderError)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
