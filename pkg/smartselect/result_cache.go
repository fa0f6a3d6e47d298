// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package smartselect

import (
	"context"
	"encoding/binary"
	"slices"
	"sync/atomic"
	"time"

	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/classification"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/span"
	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ResultCacheTTL is the default TTL for cached annotation and classification results
const ResultCacheTTL = 2 * time.Minute

const (
	cacheTypeAnnotate = "annotate"
	cacheTypeClassify = "classify"
)

// CachedModel wraps a Model with result caching. Every caller gets its own
// copy of a cached result.
type CachedModel struct {
	model           Model
	name            string
	annotations     *ttlcache.Cache[string, []span.AnnotatedSpan]
	classifications *ttlcache.Cache[string, span.Classification]
	sfGroup         *singleflight.Group
	logger          *zap.Logger

	// Metrics
	hits   atomic.Uint64
	misses atomic.Uint64
	sfHits atomic.Uint64
}

// Name returns the registry name of the wrapped model.
func (c *CachedModel) Name() string {
	return c.name
}

// Model returns the wrapped model.
func (c *CachedModel) Model() Model {
	return c.model
}

// SuggestSelection is not cached; a single selection is cheaper than the lookup
// bookkeeping.
func (c *CachedModel) SuggestSelection(text string, click span.CodepointSpan) span.CodepointSpan {
	return c.model.SuggestSelection(text, click)
}

// Annotate annotates text with caching support
func (c *CachedModel) Annotate(text string) []span.AnnotatedSpan {
	key := c.cacheKey(cacheTypeAnnotate, text, span.CodepointSpan{}, 0)
	return cached(c, c.annotations, cacheTypeAnnotate, key, cloneAnnotations, func() []span.AnnotatedSpan {
		return c.model.Annotate(text)
	})
}

// ClassifyText classifies a span with caching support
func (c *CachedModel) ClassifyText(text string, s span.CodepointSpan, flags classification.InputFlags) span.Classification {
	key := c.cacheKey(cacheTypeClassify, text, s, flags)
	return cached(c, c.classifications, cacheTypeClassify, key, cloneClassification, func() span.Classification {
		return c.model.ClassifyText(text, s, flags)
	})
}

func cached[T any](c *CachedModel, cache *ttlcache.Cache[string, T], kind, key string, clone func(T) T, compute func() T) T {
	if item := cache.Get(key); item != nil {
		c.hits.Add(1)
		RecordCacheHit(kind)
		return clone(item.Value())
	}

	// Use singleflight to deduplicate concurrent identical requests
	result, _, shared := c.sfGroup.Do(kind+key, func() (any, error) {
		c.misses.Add(1)
		RecordCacheMiss(kind)

		start := time.Now()
		v := compute()
		cache.Set(key, v, ttlcache.DefaultTTL)

		c.logger.Debug("Result computed and cached",
			zap.String("model", c.name),
			zap.String("type", kind),
			zap.Duration("duration", time.Since(start)))
		return v, nil
	})
	if shared {
		c.sfHits.Add(1)
		c.logger.Debug("Singleflight hit",
			zap.String("model", c.name),
			zap.String("type", kind))
	}
	return clone(result.(T))
}

func cloneClassification(c span.Classification) span.Classification {
	return slices.Clone(c)
}

func cloneAnnotations(spans []span.AnnotatedSpan) []span.AnnotatedSpan {
	if spans == nil {
		return nil
	}
	out := make([]span.AnnotatedSpan, len(spans))
	for i, a := range spans {
		out[i] = span.AnnotatedSpan{Span: a.Span, Classification: slices.Clone(a.Classification)}
	}
	return out
}

// cacheKey hashes the model name, operation and its inputs.
func (c *CachedModel) cacheKey(kind, text string, s span.CodepointSpan, flags classification.InputFlags) string {
	h := xxhash.New()
	_, _ = h.WriteString(c.name)
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(kind)
	_, _ = h.WriteString("|")

	var buf [8]byte
	for _, v := range []int64{int64(s.Begin), int64(s.End), int64(flags)} {
		binary.BigEndian.PutUint64(buf[:], uint64(v))
		_, _ = h.Write(buf[:])
	}
	_, _ = h.WriteString(text)

	binary.BigEndian.PutUint64(buf[:], h.Sum64())
	return string(buf[:])
}

// Stats returns cache statistics for this model
func (c *CachedModel) Stats() ModelCacheStats {
	return ModelCacheStats{
		Model:            c.name,
		Hits:             c.hits.Load(),
		Misses:           c.misses.Load(),
		SingleflightHits: c.sfHits.Load(),
	}
}

// ModelCacheStats holds cache statistics for one model
type ModelCacheStats struct {
	Model            string `json:"model"`
	Hits             uint64 `json:"hits"`
	Misses           uint64 `json:"misses"`
	SingleflightHits uint64 `json:"singleflight_hits"`
}

// ResultCache holds cached results for all models
type ResultCache struct {
	annotations     *ttlcache.Cache[string, []span.AnnotatedSpan]
	classifications *ttlcache.Cache[string, span.Classification]
	logger          *zap.Logger
	cancel          context.CancelFunc
}

// NewResultCache creates a result cache; ttl <= 0 uses ResultCacheTTL.
func NewResultCache(ttl time.Duration, logger *zap.Logger) *ResultCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = ResultCacheTTL
	}
	annotations := ttlcache.New(
		ttlcache.WithTTL[string, []span.AnnotatedSpan](ttl),
	)
	classifications := ttlcache.New(
		ttlcache.WithTTL[string, span.Classification](ttl),
	)
	go annotations.Start()
	go classifications.Start()

	ctx, cancel := context.WithCancel(context.Background())
	rc := &ResultCache{
		annotations:     annotations,
		classifications: classifications,
		logger:          logger,
		cancel:          cancel,
	}

	// Log cache stats periodically
	go rc.logStats(ctx)

	return rc
}

// WrapModel wraps a model with caching
func (rc *ResultCache) WrapModel(model Model) *CachedModel {
	return &CachedModel{
		model:           model,
		name:            model.Name(),
		annotations:     rc.annotations,
		classifications: rc.classifications,
		sfGroup:         &singleflight.Group{},
		logger:          rc.logger.Named(model.Name()),
	}
}

// Close stops the cache
func (rc *ResultCache) Close() {
	rc.cancel()
	rc.annotations.Stop()
	rc.classifications.Stop()
}

func (rc *ResultCache) logStats(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a, c := rc.annotations.Metrics(), rc.classifications.Metrics()
			hits, misses := a.Hits+c.Hits, a.Misses+c.Misses
			if hits > 0 || misses > 0 {
				hitRate := float64(hits) / float64(hits+misses) * 100
				rc.logger.Info("Result cache stats",
					zap.Uint64("hits", hits),
					zap.Uint64("misses", misses),
					zap.Float64("hit_rate_pct", hitRate),
					zap.Int("annotation_items", rc.annotations.Len()),
					zap.Int("classification_items", rc.classifications.Len()))
			}
		}
	}
}

// Stats returns global cache statistics
func (rc *ResultCache) Stats() map[string]any {
	a, c := rc.annotations.Metrics(), rc.classifications.Metrics()
	return map[string]any{
		"hits":                 a.Hits + c.Hits,
		"misses":               a.Misses + c.Misses,
		"annotation_items":     rc.annotations.Len(),
		"classification_items": rc.classifications.Len(),
	}
}
