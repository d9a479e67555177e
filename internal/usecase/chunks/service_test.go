package chunks

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/helmline/simdex/internal/domain"
)

type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(
	_ context.Context, _ string, texts []string, _ int,
) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := f.vectors[text]; ok {
			out[i] = v
		} else {
			out[i] = []float32{1, 0}
		}
	}
	return out, nil
}

func TestIndexAndQuery(t *testing.T) {
	embed := &fakeEmbedder{vectors: map[string][]float32{
		"alpha": {1, 0},
		"beta":  {0, 1},
	}}
	svc := New(embed, "test-model", zap.NewNop())

	count, err := svc.Index(context.Background(), []string{"alpha", "beta"}, "", 16)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	docs, scores, err := svc.Query(context.Background(), "beta", 1)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 1 || docs[0] != "beta" {
		t.Errorf("docs = %v, want [beta]", docs)
	}
	if len(scores) != 1 || scores[0] < 0.99 {
		t.Errorf("scores = %v, want ~1.0", scores)
	}
}

func TestIndex_EmptyListClears(t *testing.T) {
	svc := New(&fakeEmbedder{}, "test-model", zap.NewNop())

	if _, err := svc.Index(context.Background(), []string{"alpha"}, "", 16); err != nil {
		t.Fatalf("index: %v", err)
	}
	if !svc.Status().Ready {
		t.Fatal("expected ready after indexing")
	}

	count, err := svc.Index(context.Background(), nil, "", 16)
	if err != nil || count != 0 {
		t.Fatalf("clear: count=%d err=%v", count, err)
	}
	if svc.Status().Ready {
		t.Error("expected not ready after clearing")
	}
	if _, _, err := svc.Query(context.Background(), "q", 5); !errors.Is(err, domain.ErrIndexNotReady) {
		t.Errorf("expected ErrIndexNotReady after clear, got %v", err)
	}
}

func TestIndex_SkipsBlankChunks(t *testing.T) {
	svc := New(&fakeEmbedder{}, "test-model", zap.NewNop())
	count, err := svc.Index(context.Background(), []string{"alpha", "", "beta"}, "", 16)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestQuery_NotReady(t *testing.T) {
	svc := New(&fakeEmbedder{}, "test-model", zap.NewNop())
	if _, _, err := svc.Query(context.Background(), "q", 5); !errors.Is(err, domain.ErrIndexNotReady) {
		t.Fatalf("expected ErrIndexNotReady, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	svc := New(&fakeEmbedder{}, "test-model", zap.NewNop())
	info := svc.Status()
	if info.Ready || info.Model != "test-model" {
		t.Fatalf("fresh status = %+v", info)
	}

	if _, err := svc.Index(context.Background(), []string{"a", "b", "c"}, "model-x", 16); err != nil {
		t.Fatalf("index: %v", err)
	}
	info = svc.Status()
	if !info.Ready || info.Chunks != 3 || info.Model != "model-x" {
		t.Errorf("status = %+v", info)
	}
}
