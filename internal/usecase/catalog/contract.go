package catalog

import "context"

// Embedder is the consumer contract for the batched embedding client.
type Embedder interface {
	Embed(ctx context.Context, model string, texts []string, batchSize int) ([][]float32, error)
}
