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

// Package classification ranks the collections a selected span may belong to.
// Network scores form the base ranking; input hints and regex matches then
// override the top entry.
package classification

import (
	"time"

	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/features"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/network"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/span"
	"go.uber.org/zap"
)

// Collection names with built-in meaning.
const (
	CollectionURL   = "url"
	CollectionEmail = "email"
	CollectionOther = "other"
	CollectionPhone = "phone"
)

// OverrideScore is the score given to a collection forced by a hint or a
// regex match.
const OverrideScore float32 = 1.0

// InputFlags carry caller knowledge about the selected text.
type InputFlags int

const (
	// IsURL marks the selection as a URL.
	IsURL InputFlags = 0x1
	// IsEmail marks the selection as an email address.
	IsEmail InputFlags = 0x2
)

// Classifier ranks collections for a span of a context.
type Classifier interface {
	// Classify returns the ranking for s, highest score first. An empty result
	// means no classification is available.
	Classify(context string, s span.CodepointSpan, flags InputFlags) span.Classification
}

// Ensure Engine implements Classifier
var _ Classifier = (*Engine)(nil)

// Config holds configuration for the classification engine.
type Config struct {
	// Collections are the network outputs in order.
	Collections []string

	// Regexes is the compiled override table (nil = no overrides)
	Regexes *RegexTable

	// OnRegexOverride is called with the collection forced by a regex match.
	OnRegexOverride func(collection string)

	// Logger for logging (nil = no logging)
	Logger *zap.Logger
}

// Engine runs the sharing network and applies overrides. It is safe for
// concurrent use.
type Engine struct {
	processor   *features.Processor
	scorer      network.Scorer
	collections []string
	regexes     *RegexTable
	onOverride  func(string)
	logger      *zap.Logger
}

// NewEngine creates a classification engine. The scorer must produce one
// output per collection.
func NewEngine(cfg Config, processor *features.Processor, scorer network.Scorer) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	regexes := cfg.Regexes
	if regexes == nil {
		regexes = CompileRegexTable(nil, 0, logger)
	}
	return &Engine{
		processor:   processor,
		scorer:      scorer,
		collections: cfg.Collections,
		regexes:     regexes,
		onOverride:  cfg.OnRegexOverride,
		logger:      logger,
	}
}

// Collections returns the collection names in network output order.
func (e *Engine) Collections() []string {
	return e.collections
}

// Processor returns the feature processor used by the engine.
func (e *Engine) Processor() *features.Processor {
	return e.processor
}

// Classify implements Classifier.
func (e *Engine) Classify(context string, s span.CodepointSpan, flags InputFlags) span.Classification {
	return e.ClassifyIn(e.processor.NewDocument(context), s, flags)
}

// ClassifyIn is Classify over an already tokenized document.
func (e *Engine) ClassifyIn(doc *features.Document, s span.CodepointSpan, flags InputFlags) span.Classification {
	doc = doc.For(e.processor)
	runes := doc.Runes
	if !s.ValidFor(len(runes)) || s.IsEmpty() {
		return nil
	}

	ranking := e.rank(doc, s)
	switch {
	case flags&IsURL != 0:
		return ranking.Promote(CollectionURL, OverrideScore)
	case flags&IsEmail != 0:
		return ranking.Promote(CollectionEmail, OverrideScore)
	}

	if collection, ok := e.regexes.Match(string(runes[s.Begin:s.End])); ok {
		e.logger.Debug("Regex override",
			zap.String("collection", collection),
			zap.Stringer("span", s))
		if e.onOverride != nil {
			e.onOverride(collection)
		}
		return ranking.Promote(collection, OverrideScore)
	}
	return ranking
}

// rank returns the network ranking, or nil when no window can be scored.
func (e *Engine) rank(doc *features.Document, s span.CodepointSpan) span.Classification {
	start := time.Now()
	tokens := doc.Tokens
	fv, ok := e.processor.Extract(tokens, e.processor.FindTokenSpan(tokens, s))
	if !ok {
		return nil
	}
	logits, err := e.scorer.Compute(fv)
	if err != nil {
		e.logger.Debug("Sharing scoring failed", zap.Error(err))
		return nil
	}
	if len(logits) != len(e.collections) {
		e.logger.Debug("Sharing scorer output size mismatch",
			zap.Int("outputs", len(logits)),
			zap.Int("collections", len(e.collections)))
		return nil
	}

	scores := network.Softmax(logits)
	ranking := make(span.Classification, len(scores))
	for i, score := range scores {
		ranking[i] = span.ClassificationResult{Label: e.collections[i], Score: score}
	}
	ranking.SortByScore()

	e.logger.Debug("Classified span",
		zap.Stringer("span", s),
		zap.Int("tokens", len(tokens)),
		zap.Duration("took", time.Since(start)))
	return ranking
}
