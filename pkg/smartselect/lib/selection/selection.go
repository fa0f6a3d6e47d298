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

// Package selection suggests selection boundaries around a click.
package selection

import (
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/features"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/network"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/options"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/span"
	"go.uber.org/zap"
)

// Engine runs the selection network over a feature window and refines its
// suggestions symmetrically. It is safe for concurrent use.
type Engine struct {
	opts      options.SelectionModelOptions
	processor *features.Processor
	scorer    network.Scorer
	brackets  *BracketSet
	logger    *zap.Logger
}

// NewEngine creates a selection engine. The scorer must produce one output
// per label of processor.LabelSpans.
func NewEngine(opts options.SelectionModelOptions, processor *features.Processor, scorer network.Scorer, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		opts:      opts,
		processor: processor,
		scorer:    scorer,
		brackets:  NewBracketSet(opts.BracketPairs),
		logger:    logger,
	}
}

// Processor returns the feature processor used by the engine.
func (e *Engine) Processor() *features.Processor {
	return e.processor
}

// SuggestInternal returns the best scoring selection for a single pass of the
// network, with its probability. When no window can be built the click is
// returned with score 0.
func (e *Engine) SuggestInternal(context string, click span.CodepointSpan) (span.CodepointSpan, float32) {
	return e.SuggestInternalIn(e.processor.NewDocument(context), click)
}

// SuggestInternalIn is SuggestInternal over an already tokenized document.
func (e *Engine) SuggestInternalIn(doc *features.Document, click span.CodepointSpan) (span.CodepointSpan, float32) {
	doc = doc.For(e.processor)
	tokens := doc.Tokens
	center := e.processor.FindTokenSpan(tokens, click)
	if center.IsInvalid() {
		return click, 0
	}
	fv, ok := e.processor.Extract(tokens, center)
	if !ok {
		return click, 0
	}
	logits, err := e.scorer.Compute(fv)
	if err != nil {
		e.logger.Debug("Selection scoring failed", zap.Error(err))
		return click, 0
	}
	labels := e.processor.LabelSpans()
	if len(logits) != len(labels) {
		e.logger.Debug("Selection scorer output size mismatch",
			zap.Int("outputs", len(logits)),
			zap.Int("labels", len(labels)))
		return click, 0
	}
	scores := network.Softmax(logits)

	limit := max(e.opts.Features.MaxSelectionSpan, center.Len())
	best := span.InvalidTokenSpan
	var bestScore float32
	for i, ext := range labels {
		candidate := span.TokenSpan{
			Begin: max(center.Begin-ext.Left, 0),
			End:   min(center.End+ext.Right, len(tokens)),
		}
		if (ext.Left != 0 || ext.Right != 0) && candidate.Len() > limit {
			continue
		}
		if best.IsInvalid() || scores[i] > bestScore ||
			(scores[i] == bestScore && candidate.Len() < best.Len()) {
			best = candidate
			bestScore = scores[i]
		}
	}
	if best.IsInvalid() {
		return click, 0
	}
	return features.TokenSpanToCodepointSpan(tokens, best), bestScore
}

// SuggestSymmetrical grows the selection from click until the network's
// suggestion for the current selection adds nothing new, or the iteration cap
// is reached. Unpaired boundary brackets are then stripped if enabled. The
// result always contains click.
func (e *Engine) SuggestSymmetrical(context string, click span.CodepointSpan) span.CodepointSpan {
	return e.SuggestSymmetricalIn(e.processor.NewDocument(context), click)
}

// SuggestSymmetricalIn is SuggestSymmetrical over an already tokenized
// document.
func (e *Engine) SuggestSymmetricalIn(doc *features.Document, click span.CodepointSpan) span.CodepointSpan {
	doc = doc.For(e.processor)
	current := click
	for i := 0; i < e.opts.SymmetryIterations; i++ {
		suggested, _ := e.SuggestInternalIn(doc, current)
		next := current.Union(suggested)
		if next == current {
			break
		}
		current = next
	}
	if e.opts.StripUnpairedBrackets {
		current = e.brackets.strip(doc.Runes, current)
	}
	return current.Union(click)
}
