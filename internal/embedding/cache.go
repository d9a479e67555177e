package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/helmline/simdex/internal/cache"
	"github.com/helmline/simdex/internal/domain"
)

const cacheKeyPrefix = "simdex:emb_cache:"

// kv is the consumer interface for the embedding cache.
type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// CachedProvider serves per-text cache hits and forwards only misses to
// the inner provider in a single sub-batch. Cache failures degrade to
// misses; they never fail the embedding call.
type CachedProvider struct {
	inner      domain.BatchEmbedder
	store      kv
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// Compile-time check: CachedProvider implements domain.BatchEmbedder.
var _ domain.BatchEmbedder = (*CachedProvider)(nil)

// NewCachedProvider creates a caching decorator around a provider.
// cacheTotal is a counter vec with label "result" ("hit"/"miss") and may
// be nil.
func NewCachedProvider(
	inner domain.BatchEmbedder,
	store kv,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedProvider {
	return &CachedProvider{
		inner:      inner,
		store:      store,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// EmbedBatch implements domain.BatchEmbedder. The response carries one
// embedding per input with in-order index tags regardless of how the
// inner provider ordered its response.
func (c *CachedProvider) EmbedBatch(
	ctx context.Context, model string, texts []string,
) ([]domain.IndexedEmbedding, error) {
	vectors := make([][]float32, len(texts))

	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if vec, ok := c.getFromCache(ctx, cacheKey(model, text)); ok {
			c.incCache("hit")
			vectors[i] = vec
			continue
		}
		c.incCache("miss")
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		items, err := c.inner.EmbedBatch(ctx, model, missTexts)
		if err != nil {
			return nil, err
		}
		ordered, err := orderByIndex(items, len(missTexts))
		if err != nil {
			return nil, err
		}
		for sub, vec := range ordered {
			i := missIdx[sub]
			vectors[i] = vec
			c.putToCache(ctx, cacheKey(model, texts[i]), vec)
		}
	}

	out := make([]domain.IndexedEmbedding, len(texts))
	for i, vec := range vectors {
		out[i] = domain.IndexedEmbedding{Index: i, Embedding: vec}
	}
	return out, nil
}

func (c *CachedProvider) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

// cacheKey hashes model and text together: vectors from different
// models are not comparable and must never collide in the cache.
func cacheKey(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

func (c *CachedProvider) getFromCache(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *CachedProvider) putToCache(ctx context.Context, key string, vec []float32) {
	if err := c.store.Set(ctx, key, vectorToBytes(vec)); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid cached vector length %d", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
