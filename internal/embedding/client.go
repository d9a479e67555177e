// Package embedding turns texts into unit-normalized vectors through a
// batch embedding provider, with bounded retries on provider rate limits.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/helmline/simdex/internal/domain"
)

// DefaultBatchSize is used when the caller passes a non-positive batch size.
const DefaultBatchSize = 128

// retryPolicy bounds rate-limit retries for one batch. A provider hint
// overrides the backoff delay for that attempt; the backoff still
// doubles so a later hintless attempt continues the sequence.
type retryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Client is an order- and length-preserving batched embedding client.
type Client struct {
	provider domain.BatchEmbedder
	retry    retryPolicy
	logger   *zap.Logger
}

// NewClient creates an embedding client with the standard retry policy.
func NewClient(provider domain.BatchEmbedder, logger *zap.Logger) *Client {
	return &Client{
		provider: provider,
		retry:    defaultRetryPolicy(),
		logger:   logger,
	}
}

// Embed embeds texts in contiguous batches of at most batchSize,
// preserving input order. Output length always equals input length; any
// unrecoverable batch error fails the whole call with no partial result.
// Empty input strings are rejected up front. Returned vectors are
// unit-normalized.
func (c *Client) Embed(ctx context.Context, model string, texts []string, batchSize int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("text %d: %w", i, domain.ErrEmptyInput)
		}
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := c.embedBatch(ctx, model, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d..%d: %w", start, end, err)
		}
		out = append(out, vectors...)
	}

	for _, v := range out {
		normalize(v)
	}
	return out, nil
}

// embedBatch calls the provider for one batch, retrying on rate limits
// per the policy and restoring batch-internal order from the index tags.
func (c *Client) embedBatch(ctx context.Context, model string, batch []string) ([][]float32, error) {
	delay := c.retry.BaseDelay

	for attempt := 1; ; attempt++ {
		items, err := c.provider.EmbedBatch(ctx, model, batch)
		if err == nil {
			return orderByIndex(items, len(batch))
		}

		var rl *domain.RateLimitError
		if !errors.As(err, &rl) {
			return nil, err
		}
		if attempt >= c.retry.MaxAttempts {
			return nil, fmt.Errorf("gave up after %d attempts: %w", attempt, domain.ErrRateLimited)
		}

		wait := delay
		if rl.RetryAfter > 0 {
			wait = rl.RetryAfter
		}
		delay *= 2
		if delay > c.retry.MaxDelay {
			delay = c.retry.MaxDelay
		}

		c.logger.Warn("Embedding provider rate limited, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
		)
		if err := c.retry.sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("backoff interrupted: %w", err)
		}
	}
}

// orderByIndex re-sorts a provider response by its index tags so the
// result matches request order. The response must cover the batch
// exactly: one embedding per input, no gaps, no duplicates.
func orderByIndex(items []domain.IndexedEmbedding, n int) ([][]float32, error) {
	if len(items) != n {
		return nil, fmt.Errorf("provider returned %d embeddings for %d inputs: %w",
			len(items), n, domain.ErrEmbeddingProviderError)
	}

	ordered := make([][]float32, n)
	for _, item := range items {
		if item.Index < 0 || item.Index >= n {
			return nil, fmt.Errorf("embedding index %d out of batch range %d: %w",
				item.Index, n, domain.ErrEmbeddingProviderError)
		}
		if ordered[item.Index] != nil {
			return nil, fmt.Errorf("duplicate embedding index %d: %w",
				item.Index, domain.ErrEmbeddingProviderError)
		}
		ordered[item.Index] = item.Embedding
	}
	return ordered, nil
}

// normalize scales v to unit Euclidean norm in place. Normalizing an
// already-unit vector is a no-op beyond rounding; a zero vector is left
// unchanged.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}
