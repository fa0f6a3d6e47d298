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
	"runtime"
	"sync"

	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/classification"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/span"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type inference interface {
	SuggestSelection(context string, click span.CodepointSpan) span.CodepointSpan
	ClassifyText(context string, s span.CodepointSpan, flags classification.InputFlags) span.Classification
	Annotate(context string) []span.AnnotatedSpan
}

// Service runs inference against the models of a registry. It is shared by the
// HTTP handlers and the CLI.
type Service struct {
	registry         *ModelRegistry
	cache            *ResultCache
	batchConcurrency int
	logger           *zap.Logger

	mu      sync.Mutex
	wrapped map[string]*CachedModel
}

// NewService creates a service. A nil cache disables result caching and a
// batchConcurrency <= 0 uses the number of CPUs.
func NewService(registry *ModelRegistry, cache *ResultCache, batchConcurrency int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchConcurrency <= 0 {
		batchConcurrency = runtime.NumCPU()
	}
	return &Service{
		registry:         registry,
		cache:            cache,
		batchConcurrency: batchConcurrency,
		logger:           logger,
		wrapped:          make(map[string]*CachedModel),
	}
}

// Registry returns the model registry.
func (s *Service) Registry() *ModelRegistry {
	return s.registry
}

func (s *Service) model(name string) (string, inference, error) {
	m, err := s.registry.Get(name)
	if err != nil {
		return "", nil, err
	}
	if s.cache == nil {
		return m.Name(), m, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.wrapped[m.Name()]
	if !ok || c.Model() != m {
		c = s.cache.WrapModel(m)
		s.wrapped[m.Name()] = c
	}
	return m.Name(), c, nil
}

// CacheStats returns per-model cache statistics.
func (s *Service) CacheStats() []ModelCacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := make([]ModelCacheStats, 0, len(s.wrapped))
	for _, c := range s.wrapped {
		stats = append(stats, c.Stats())
	}
	return stats
}

// SuggestSelection suggests a selection around click.
func (s *Service) SuggestSelection(ctx context.Context, model, text string, click span.CodepointSpan) (span.CodepointSpan, error) {
	if err := ctx.Err(); err != nil {
		return click, err
	}
	name, m, err := s.model(model)
	if err != nil {
		return click, err
	}
	RecordSelectionRequest(name)
	return m.SuggestSelection(text, click), nil
}

// ClassifyText ranks the collections for the span.
func (s *Service) ClassifyText(ctx context.Context, model, text string, sp span.CodepointSpan, flags classification.InputFlags) (span.Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, m, err := s.model(model)
	if err != nil {
		return nil, err
	}
	RecordClassificationRequest(name)
	return m.ClassifyText(text, sp, flags), nil
}

// Annotate annotates a single text.
func (s *Service) Annotate(ctx context.Context, model, text string) ([]span.AnnotatedSpan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, m, err := s.model(model)
	if err != nil {
		return nil, err
	}
	spans := m.Annotate(text)
	RecordAnnotation(name, len(spans))
	return spans, nil
}

// AnnotateBatch annotates texts in parallel. Result i belongs to texts[i].
func (s *Service) AnnotateBatch(ctx context.Context, model string, texts []string) ([][]span.AnnotatedSpan, error) {
	name, m, err := s.model(model)
	if err != nil {
		return nil, err
	}

	results := make([][]span.AnnotatedSpan, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchConcurrency)
	for i, text := range texts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = m.Annotate(text)
			RecordAnnotation(name, len(results[i]))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Debug("Annotated batch",
		zap.String("model", name),
		zap.Int("texts", len(texts)))
	return results, nil
}
