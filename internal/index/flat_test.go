package index

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/helmline/simdex/internal/domain"
)

func TestAdd_DimensionMismatchDoesNotMutate(t *testing.T) {
	f := New()
	if err := f.Add([][]float32{{1, 0, 0}}); err != nil {
		t.Fatalf("first add: %v", err)
	}

	err := f.Add([][]float32{{0, 1, 0}, {1, 0}})
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
	if f.Len() != 1 {
		t.Errorf("failed add mutated the index: len = %d, want 1", f.Len())
	}
}

func TestSearch_ExactMatchRanksFirst(t *testing.T) {
	f := New()
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
		{0.6, 0.8, 0},
		{0, 0.8, 0.6},
	}
	if err := f.Add(vectors); err != nil {
		t.Fatalf("add: %v", err)
	}

	hits, err := f.Search([]float32{0, 0, 1}, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].Ordinal != 2 {
		t.Errorf("top hit ordinal = %d, want 2", hits[0].Ordinal)
	}
	if math.Abs(hits[0].Score-1.0) > 1e-6 {
		t.Errorf("top hit score = %f, want ~1.0", hits[0].Score)
	}
}

func TestSearch_KLargerThanIndex(t *testing.T) {
	f := New()
	if err := f.Add([][]float32{{1, 0}, {0, 1}, {0.6, 0.8}, {0.8, 0.6}, {-1, 0}}); err != nil {
		t.Fatalf("add: %v", err)
	}

	hits, err := f.Search([]float32{1, 0}, 100)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 5 {
		t.Errorf("expected all 5 hits, got %d", len(hits))
	}
}

func TestSearch_TiesBrokenByOrdinal(t *testing.T) {
	f := New()
	// Ordinals 1 and 3 score identically against the query.
	if err := f.Add([][]float32{{0, 1}, {1, 0}, {0, -1}, {1, 0}}); err != nil {
		t.Fatalf("add: %v", err)
	}

	hits, err := f.Search([]float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if hits[0].Ordinal != 1 || hits[1].Ordinal != 3 {
		t.Errorf("tie order = [%d %d], want [1 3]", hits[0].Ordinal, hits[1].Ordinal)
	}
}

func TestSearch_EmptyIndexAndBadK(t *testing.T) {
	f := New()
	hits, err := f.Search([]float32{1, 0}, 5)
	if err != nil || hits != nil {
		t.Errorf("empty index: hits=%v err=%v, want nil/nil", hits, err)
	}

	if err := f.Add([][]float32{{1, 0}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	hits, err = f.Search([]float32{1, 0}, 0)
	if err != nil || hits != nil {
		t.Errorf("k=0: hits=%v err=%v, want nil/nil", hits, err)
	}
	if _, err = f.Search([]float32{1, 0, 0}, 3); !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Errorf("wrong query dimension: err=%v, want ErrVectorDimMismatch", err)
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	const (
		n   = 32
		dim = 8
	)
	rng := rand.New(rand.NewSource(42))

	vectors := make([][]float32, n)
	for i := range vectors {
		v := make([]float32, dim)
		var norm float64
		for j := range v {
			v[j] = float32(rng.NormFloat64())
			norm += float64(v[j]) * float64(v[j])
		}
		norm = math.Sqrt(norm)
		for j := range v {
			v[j] = float32(float64(v[j]) / norm)
		}
		vectors[i] = v
	}

	orig := New()
	if err := orig.Add(vectors); err != nil {
		t.Fatalf("add: %v", err)
	}

	var buf bytes.Buffer
	if _, err := orig.WriteTo(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}

	loaded := New()
	if _, err := loaded.ReadFrom(&buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if loaded.Len() != n || loaded.Dimension() != dim {
		t.Fatalf("loaded len=%d dim=%d, want %d/%d", loaded.Len(), loaded.Dimension(), n, dim)
	}

	query := vectors[7]
	before, err := orig.Search(query, 10)
	if err != nil {
		t.Fatalf("search before: %v", err)
	}
	after, err := loaded.Search(query, 10)
	if err != nil {
		t.Fatalf("search after: %v", err)
	}
	if len(before) != len(after) {
		t.Fatalf("result lengths differ: %d vs %d", len(before), len(after))
	}
	for i := range before {
		if before[i].Ordinal != after[i].Ordinal {
			t.Errorf("hit %d ordinal %d vs %d", i, before[i].Ordinal, after[i].Ordinal)
		}
		if math.Abs(before[i].Score-after[i].Score) > 1e-9 {
			t.Errorf("hit %d score %f vs %f", i, before[i].Score, after[i].Score)
		}
	}
}

func TestBinaryRoundTrip_Empty(t *testing.T) {
	var buf bytes.Buffer
	if _, err := New().WriteTo(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded := New()
	if _, err := loaded.ReadFrom(&buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if loaded.Len() != 0 {
		t.Errorf("loaded empty index has len %d", loaded.Len())
	}
}

func TestReadFrom_RejectsGarbage(t *testing.T) {
	loaded := New()
	if _, err := loaded.ReadFrom(bytes.NewReader([]byte("not an index file"))); err == nil {
		t.Error("expected error for garbage input")
	}
}
