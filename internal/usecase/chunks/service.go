// Package chunks is the text-chunk variant of the similarity service:
// the same embedding and index core as the catalog, keyed to raw text
// chunks instead of structured records. The index lives in memory only;
// re-indexing replaces it wholesale.
package chunks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/helmline/simdex/internal/domain"
	"github.com/helmline/simdex/internal/index"
)

// DefaultTopK is used when a query does not specify k.
const DefaultTopK = 5

// Embedder is the consumer contract for the batched embedding client.
type Embedder interface {
	Embed(ctx context.Context, model string, texts []string, batchSize int) ([][]float32, error)
}

// StatusInfo is the chunk service readiness report.
type StatusInfo struct {
	Ready  bool
	Chunks int
	Model  string
}

type snapshot struct {
	index  *index.Flat
	chunks []string
	model  string
}

// Service holds the chunk index behind an atomic snapshot.
type Service struct {
	embed        Embedder
	defaultModel string
	logger       *zap.Logger

	current atomic.Pointer[snapshot]
	buildMu sync.Mutex
}

// New creates the chunk service.
func New(embed Embedder, defaultModel string, logger *zap.Logger) *Service {
	return &Service{embed: embed, defaultModel: defaultModel, logger: logger}
}

// Index replaces the chunk index. An empty chunk list clears it. Blank
// chunks are skipped so the stored chunks stay aligned with the vectors.
// Only one indexing operation runs at a time.
func (s *Service) Index(ctx context.Context, chunks []string, model string, batchSize int) (int, error) {
	if !s.buildMu.TryLock() {
		return 0, domain.ErrBuildInProgress
	}
	defer s.buildMu.Unlock()

	if model == "" {
		model = s.defaultModel
	}

	if len(chunks) == 0 {
		s.current.Store(nil)
		s.logger.Info("Chunk index cleared")
		return 0, nil
	}

	kept := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		if chunk == "" {
			s.logger.Warn("Skipping empty chunk", zap.Int("chunk", i))
			continue
		}
		kept = append(kept, chunk)
	}
	if len(kept) == 0 {
		return 0, fmt.Errorf("no indexable chunks among %d inputs", len(chunks))
	}

	vectors, err := s.embed.Embed(ctx, model, kept, batchSize)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}

	idx := index.New()
	if err := idx.Add(vectors); err != nil {
		return 0, fmt.Errorf("build index: %w", err)
	}

	s.current.Store(&snapshot{index: idx, chunks: kept, model: model})
	s.logger.Info("Chunk index built",
		zap.Int("chunks", idx.Len()),
		zap.String("model", model),
	)
	return idx.Len(), nil
}

// Query returns the k most similar chunks with their scores, in
// descending score order. ErrIndexNotReady when no index is published.
func (s *Service) Query(ctx context.Context, text string, k int) ([]string, []float64, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, nil, domain.ErrIndexNotReady
	}
	if k <= 0 {
		k = DefaultTopK
	}

	vectors, err := s.embed.Embed(ctx, snap.model, []string{text}, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := snap.index.Search(vectors[0], k)
	if err != nil {
		return nil, nil, fmt.Errorf("search: %w", err)
	}

	documents := make([]string, 0, len(hits))
	scores := make([]float64, 0, len(hits))
	for _, hit := range hits {
		if hit.Ordinal < 0 || hit.Ordinal >= len(snap.chunks) {
			continue
		}
		documents = append(documents, snap.chunks[hit.Ordinal])
		scores = append(scores, hit.Score)
	}
	return documents, scores, nil
}

// Status reports readiness, chunk count, and the live model.
func (s *Service) Status() StatusInfo {
	info := StatusInfo{Model: s.defaultModel}
	if snap := s.current.Load(); snap != nil {
		info.Ready = true
		info.Chunks = snap.index.Len()
		info.Model = snap.model
	}
	return info
}
