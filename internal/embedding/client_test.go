package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/helmline/simdex/internal/domain"
)

// --- Mocks ---

// reversingProvider returns each batch's embeddings in reversed order,
// embedding text i of the overall call as [i+1, 0].
type reversingProvider struct {
	calls   int
	batches [][]string
}

func (p *reversingProvider) EmbedBatch(
	_ context.Context, _ string, texts []string,
) ([]domain.IndexedEmbedding, error) {
	offset := 0
	for _, b := range p.batches {
		offset += len(b)
	}
	p.calls++
	p.batches = append(p.batches, texts)

	items := make([]domain.IndexedEmbedding, 0, len(texts))
	for i := len(texts) - 1; i >= 0; i-- {
		items = append(items, domain.IndexedEmbedding{
			Index:     i,
			Embedding: []float32{float32(offset + i + 1), 0},
		})
	}
	return items, nil
}

// flakyProvider rate-limits the first failures calls, then succeeds.
type flakyProvider struct {
	failures   int
	retryAfter time.Duration
	calls      int
}

func (p *flakyProvider) EmbedBatch(
	_ context.Context, _ string, texts []string,
) ([]domain.IndexedEmbedding, error) {
	p.calls++
	if p.calls <= p.failures {
		return nil, domain.NewRateLimit(p.retryAfter)
	}
	items := make([]domain.IndexedEmbedding, len(texts))
	for i := range texts {
		items[i] = domain.IndexedEmbedding{Index: i, Embedding: []float32{1, 0}}
	}
	return items, nil
}

func testClient(p domain.BatchEmbedder) (*Client, *[]time.Duration) {
	c := NewClient(p, zap.NewNop())
	var slept []time.Duration
	c.retry.BaseDelay = 2 * time.Second
	c.retry.MaxDelay = 30 * time.Second
	c.retry.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

// --- Tests ---

func TestEmbed_BatchPartition(t *testing.T) {
	p := &reversingProvider{}
	c, _ := testClient(p)

	vectors, err := c.Embed(context.Background(), "m", []string{"a", "b", "c"}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	if p.calls != 2 {
		t.Fatalf("expected 2 batches, got %d", p.calls)
	}
	if len(p.batches[0]) != 2 || len(p.batches[1]) != 1 {
		t.Fatalf("batch sizes = [%d %d], want [2 1]", len(p.batches[0]), len(p.batches[1]))
	}
}

func TestEmbed_OrderPreservedDespiteReversedResponses(t *testing.T) {
	// Text i embeds to axis vector e_i; the provider returns every batch
	// reversed, so matching output order proves re-sorting by index tag.
	p := &axisProvider{reversed: true}
	c, _ := testClient(p)

	vectors, err := c.Embed(context.Background(), "m", []string{"a", "b", "c"}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, v := range vectors {
		if v[i] != 1 {
			t.Errorf("vector %d = %v, want axis %d", i, v, i)
		}
	}
}

// axisProvider embeds overall text i as axis vector e_i of dimension 3.
type axisProvider struct {
	reversed bool
	served   int
}

func (p *axisProvider) EmbedBatch(
	_ context.Context, _ string, texts []string,
) ([]domain.IndexedEmbedding, error) {
	items := make([]domain.IndexedEmbedding, 0, len(texts))
	for i := range texts {
		vec := make([]float32, 3)
		vec[p.served+i] = 1
		items = append(items, domain.IndexedEmbedding{Index: i, Embedding: vec})
	}
	p.served += len(texts)
	if p.reversed {
		for l, r := 0, len(items)-1; l < r; l, r = l+1, r-1 {
			items[l], items[r] = items[r], items[l]
		}
	}
	return items, nil
}

func TestEmbed_BackoffSequence(t *testing.T) {
	p := &flakyProvider{failures: 4}
	c, slept := testClient(p)

	vectors, err := c.Embed(context.Background(), "m", []string{"a"}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 1 {
		t.Fatalf("expected 1 vector, got %d", len(vectors))
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("slept %v, want %v", *slept, want)
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Errorf("delay %d = %v, want %v", i, (*slept)[i], d)
		}
	}
}

func TestEmbed_RateLimitExhausted(t *testing.T) {
	p := &flakyProvider{failures: 100}
	c, slept := testClient(p)

	vectors, err := c.Embed(context.Background(), "m", []string{"a", "b"}, 1)
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if vectors != nil {
		t.Error("expected no partial vectors")
	}
	if p.calls != 5 {
		t.Errorf("provider called %d times, want 5", p.calls)
	}
	if len(*slept) != 4 {
		t.Errorf("slept %d times, want 4", len(*slept))
	}
}

func TestEmbed_RetryAfterHintOverridesBackoff(t *testing.T) {
	p := &flakyProvider{failures: 2, retryAfter: 7 * time.Second}
	c, slept := testClient(p)

	if _, err := c.Embed(context.Background(), "m", []string{"a"}, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []time.Duration{7 * time.Second, 7 * time.Second}
	if len(*slept) != 2 || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
		t.Errorf("slept %v, want %v", *slept, want)
	}
}

func TestEmbed_ProviderErrorNotRetried(t *testing.T) {
	calls := 0
	p := providerFunc(func() ([]domain.IndexedEmbedding, error) {
		calls++
		return nil, fmt.Errorf("boom: %w", domain.ErrEmbeddingProviderError)
	})
	c, slept := testClient(p)

	_, err := c.Embed(context.Background(), "m", []string{"a"}, 10)
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("provider called %d times, want 1", calls)
	}
	if len(*slept) != 0 {
		t.Errorf("slept %v, want no sleeps", *slept)
	}
}

type providerFunc func() ([]domain.IndexedEmbedding, error)

func (f providerFunc) EmbedBatch(context.Context, string, []string) ([]domain.IndexedEmbedding, error) {
	return f()
}

func TestEmbed_RejectsEmptyText(t *testing.T) {
	c, _ := testClient(&reversingProvider{})
	if _, err := c.Embed(context.Background(), "m", []string{"a", ""}, 10); !errors.Is(err, domain.ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestEmbed_EmptyInputList(t *testing.T) {
	c, _ := testClient(&reversingProvider{})
	vectors, err := c.Embed(context.Background(), "m", nil, 10)
	if err != nil || vectors != nil {
		t.Fatalf("empty list: vectors=%v err=%v, want nil/nil", vectors, err)
	}
}

func TestEmbed_IncompleteResponseRejected(t *testing.T) {
	p := providerFunc(func() ([]domain.IndexedEmbedding, error) {
		return []domain.IndexedEmbedding{{Index: 0, Embedding: []float32{1}}}, nil
	})
	c, _ := testClient(p)
	if _, err := c.Embed(context.Background(), "m", []string{"a", "b"}, 10); !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected provider error for short response, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	normalize(v)
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("normalize([3 4]) = %v, want [0.6 0.8]", v)
	}

	// Idempotent.
	normalize(v)
	if math.Abs(float64(v[0])-0.6) > 1e-6 {
		t.Errorf("re-normalize changed vector: %v", v)
	}

	// Zero vector untouched.
	z := []float32{0, 0}
	normalize(z)
	if z[0] != 0 || z[1] != 0 {
		t.Errorf("normalize zero vector = %v", z)
	}
}
