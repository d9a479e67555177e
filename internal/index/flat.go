// Package index provides a flat, exact-search index over unit vectors.
//
// Search is brute force: the query is scored against every stored vector
// by inner product, which equals cosine similarity because vectors are
// unit-normalized before insertion. Datasets here are catalog-sized, so
// exact search beats an approximate structure on both simplicity and
// recall.
package index

import (
	"fmt"
	"sort"

	"github.com/helmline/simdex/internal/domain"
)

// Hit is a single search result: the insertion ordinal of a stored
// vector and its inner-product score against the query.
type Hit struct {
	Ordinal int
	Score   float64
}

// Flat is an append-only flat index. The dimensionality is fixed by the
// first inserted vector and enforced for every later insert and query.
// Flat is not safe for concurrent mutation; the usecase layer publishes
// fully built instances behind an atomic snapshot and never mutates a
// published one.
type Flat struct {
	dim     int
	vectors [][]float32
}

// New creates an empty flat index.
func New() *Flat {
	return &Flat{}
}

// Len returns the number of stored vectors.
func (f *Flat) Len() int { return len(f.vectors) }

// Dimension returns the vector dimensionality, or 0 before the first Add.
func (f *Flat) Dimension() int { return f.dim }

// Add appends vectors in order. The first vector of the first call
// establishes the index dimensionality. On any mismatch the whole call
// fails with ErrVectorDimMismatch and the index is left unchanged.
func (f *Flat) Add(vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}

	dim := f.dim
	if dim == 0 {
		dim = len(vectors[0])
		if dim == 0 {
			return fmt.Errorf("zero-length vector: %w", domain.ErrVectorDimMismatch)
		}
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("vector %d has dimension %d, index has %d: %w",
				i, len(v), dim, domain.ErrVectorDimMismatch)
		}
	}

	f.dim = dim
	f.vectors = append(f.vectors, vectors...)
	return nil
}

// Search scores query against every stored vector and returns the
// min(k, Len()) best hits, sorted by descending score with ties broken
// by ascending ordinal. An empty index or k <= 0 yields an empty result
// without error. A query of the wrong dimensionality fails with
// ErrVectorDimMismatch.
func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if len(f.vectors) == 0 {
		return nil, nil
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("query has dimension %d, index has %d: %w",
			len(query), f.dim, domain.ErrVectorDimMismatch)
	}
	if k <= 0 {
		return nil, nil
	}

	hits := make([]Hit, len(f.vectors))
	for i, v := range f.vectors {
		hits[i] = Hit{Ordinal: i, Score: dot(query, v)}
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].Ordinal < hits[b].Ordinal
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
