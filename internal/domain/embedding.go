package domain

import "context"

// IndexedEmbedding is one embedding from a batch response, tagged with
// its zero-based position within the request batch. Providers may return
// items in any order; the tag is the only reliable ordering.
type IndexedEmbedding struct {
	Index     int
	Embedding []float32
}

// BatchEmbedder issues a single embedding request for a batch of texts.
// Implementations return exactly one IndexedEmbedding per input text,
// in any order. Rate limiting is reported as a *RateLimitError so the
// caller can retry; any other error is permanent for this request.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, model string, texts []string) ([]IndexedEmbedding, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Match is a single catalog query hit.
type Match struct {
	Product Product `json:"product"`
	Score   float64 `json:"score"`
}
