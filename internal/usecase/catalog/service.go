// Package catalog orchestrates index building and similarity queries for
// the product catalog. The live index is an immutable snapshot swapped
// atomically: queries read one complete (index, catalog, model) triple
// and a rebuild never interleaves with them.
package catalog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/helmline/simdex/internal/artifact"
	parse "github.com/helmline/simdex/internal/catalog"
	"github.com/helmline/simdex/internal/domain"
	"github.com/helmline/simdex/internal/index"
	"github.com/helmline/simdex/internal/metrics"
)

// DefaultTopK is used when a query does not specify k.
const DefaultTopK = 5

// Page is one catalog page worth of raw extraction output plus its
// provenance, fed to the response parser.
type Page struct {
	Content    string
	SourcePDF  string
	SourcePage int
	ImagePath  string
}

// StatusInfo is the service readiness report.
type StatusInfo struct {
	Ready     bool
	Items     int
	Model     string
	LastError string
}

// snapshot is one published (index, catalog, model) triple. Fields are
// never mutated after publication.
type snapshot struct {
	index    *index.Flat
	products []domain.Product
	model    string
}

// Service is the catalog query orchestrator.
type Service struct {
	embed        Embedder
	artifactDir  string
	defaultModel string
	logger       *zap.Logger

	current atomic.Pointer[snapshot]
	buildMu sync.Mutex

	errMu   sync.Mutex
	lastErr string
}

// New creates the catalog service. The artifact directory holds the
// durable pair; defaultModel is used for builds that do not name one.
func New(embed Embedder, artifactDir, defaultModel string, logger *zap.Logger) *Service {
	return &Service{
		embed:        embed,
		artifactDir:  artifactDir,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

// LoadArtifact publishes a previously saved pair if one exists and is
// consistent. A missing or broken artifact is an expected steady state
// for a fresh service: it is recorded as the status reason, not raised.
func (s *Service) LoadArtifact() {
	idx, meta, err := artifact.Load(s.artifactDir)
	if err != nil {
		s.setLastError(err.Error())
		s.logger.Info("No catalog artifact loaded", zap.String("reason", err.Error()))
		return
	}

	s.publish(&snapshot{index: idx, products: meta.Products, model: meta.Model})
	s.setLastError("")
	s.logger.Info("Catalog artifact loaded",
		zap.Int("items", idx.Len()),
		zap.Int("dimensions", idx.Dimension()),
		zap.String("model", meta.Model),
	)
}

// BuildIndex embeds the given records and atomically replaces the live
// index with a freshly built pair. Only one build may run at a time; a
// concurrent build is rejected with ErrBuildInProgress. Records whose
// canonical text is empty are logged and skipped. Any failure aborts the
// whole build and leaves the published snapshot untouched.
func (s *Service) BuildIndex(
	ctx context.Context, products []domain.Product, model string, batchSize int,
) (int, error) {
	if !s.buildMu.TryLock() {
		return 0, domain.ErrBuildInProgress
	}
	defer s.buildMu.Unlock()

	if model == "" {
		model = s.defaultModel
	}

	kept := make([]domain.Product, 0, len(products))
	texts := make([]string, 0, len(products))
	for i, p := range products {
		text := p.CanonicalText()
		if text == "" {
			s.logger.Warn("Skipping record with no describable fields",
				zap.Int("record", i),
				zap.String("source_pdf", p.SourcePDF),
				zap.Int("source_page", p.SourcePage),
			)
			continue
		}
		kept = append(kept, p)
		texts = append(texts, text)
	}
	if len(kept) == 0 {
		err := fmt.Errorf("no indexable records among %d inputs", len(products))
		s.failBuild(err)
		return 0, err
	}

	vectors, err := s.embed.Embed(ctx, model, texts, batchSize)
	if err != nil {
		s.failBuild(err)
		return 0, fmt.Errorf("embed records: %w", err)
	}

	idx := index.New()
	if err := idx.Add(vectors); err != nil {
		s.failBuild(err)
		return 0, fmt.Errorf("build index: %w", err)
	}

	meta := artifact.Metadata{Products: kept, Model: model}
	if err := artifact.Save(s.artifactDir, idx, meta); err != nil {
		s.failBuild(err)
		return 0, fmt.Errorf("save artifact: %w", err)
	}

	s.publish(&snapshot{index: idx, products: kept, model: model})
	s.setLastError("")
	metrics.IndexBuildsTotal.WithLabelValues("success").Inc()
	s.logger.Info("Catalog index built",
		zap.Int("items", idx.Len()),
		zap.Int("skipped", len(products)-len(kept)),
		zap.String("model", model),
	)
	return idx.Len(), nil
}

// IndexPages parses raw extraction output page by page, stamps each
// recovered record with its provenance, and builds the index from the
// result. A page that fails to parse is logged and skipped; the run
// continues with the remaining pages.
func (s *Service) IndexPages(
	ctx context.Context, pages []Page, model string, batchSize int,
) (int, error) {
	var products []domain.Product
	for _, page := range pages {
		recovered, err := parse.ParseProducts(page.Content)
		if err != nil {
			s.logger.Warn("Failed to parse page, skipping",
				zap.String("source_pdf", page.SourcePDF),
				zap.Int("source_page", page.SourcePage),
				zap.Error(err),
			)
			continue
		}
		for i := range recovered {
			recovered[i].SourcePDF = page.SourcePDF
			recovered[i].SourcePage = page.SourcePage
			recovered[i].ImagePath = page.ImagePath
		}
		products = append(products, recovered...)
	}

	return s.BuildIndex(ctx, products, model, batchSize)
}

// Query embeds text with the model recorded in the live snapshot and
// returns the k best catalog matches. Returns ErrIndexNotReady when no
// snapshot is published. Hits whose ordinal falls outside the catalog
// indicate a corrupted artifact and are logged and skipped.
func (s *Service) Query(ctx context.Context, text string, k int) ([]domain.Match, error) {
	snap := s.current.Load()
	if snap == nil {
		metrics.QueriesTotal.WithLabelValues("not_ready").Inc()
		if reason := s.LastError(); reason != "" {
			return nil, fmt.Errorf("%s: %w", reason, domain.ErrIndexNotReady)
		}
		return nil, domain.ErrIndexNotReady
	}
	if k <= 0 {
		k = DefaultTopK
	}

	vectors, err := s.embed.Embed(ctx, snap.model, []string{text}, 1)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := snap.index.Search(vectors[0], k)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("search: %w", err)
	}

	matches := make([]domain.Match, 0, len(hits))
	for _, hit := range hits {
		if hit.Ordinal < 0 || hit.Ordinal >= len(snap.products) {
			s.logger.Warn("Search hit outside catalog range",
				zap.Int("ordinal", hit.Ordinal),
				zap.Int("catalog_size", len(snap.products)),
			)
			continue
		}
		matches = append(matches, domain.Match{
			Product: snap.products[hit.Ordinal],
			Score:   hit.Score,
		})
	}

	metrics.QueriesTotal.WithLabelValues("success").Inc()
	return matches, nil
}

// Lookup returns the record at the given ordinal of the live catalog.
// Unlike query assembly, a direct lookup raises on a bad ordinal.
func (s *Service) Lookup(ordinal int) (domain.Product, error) {
	snap := s.current.Load()
	if snap == nil {
		return domain.Product{}, domain.ErrIndexNotReady
	}
	if ordinal < 0 || ordinal >= len(snap.products) {
		return domain.Product{}, fmt.Errorf("ordinal %d of %d: %w",
			ordinal, len(snap.products), domain.ErrOrdinalOutOfRange)
	}
	return snap.products[ordinal], nil
}

// Status reports readiness, item count, the live model, and the reason
// for the most recent load or build failure.
func (s *Service) Status() StatusInfo {
	info := StatusInfo{Model: s.defaultModel, LastError: s.LastError()}
	if snap := s.current.Load(); snap != nil {
		info.Ready = true
		info.Items = snap.index.Len()
		info.Model = snap.model
	}
	return info
}

// LastError returns the most recent load/build failure reason, or "".
func (s *Service) LastError() string {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.lastErr
}

func (s *Service) publish(snap *snapshot) {
	s.current.Store(snap)
	metrics.IndexSize.Set(float64(snap.index.Len()))
}

func (s *Service) setLastError(msg string) {
	s.errMu.Lock()
	s.lastErr = msg
	s.errMu.Unlock()
}

func (s *Service) failBuild(err error) {
	s.setLastError(err.Error())
	metrics.IndexBuildsTotal.WithLabelValues("error").Inc()
}
