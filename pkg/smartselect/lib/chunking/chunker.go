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

// Package chunking splits a context into the token-aligned units that
// annotation works on.
package chunking

import (
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/span"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/tokenizer"
	"go.uber.org/zap"
)

// Chunker splits a context into ordered, non-overlapping codepoint spans.
type Chunker interface {
	// Chunk returns the chunks of context. With an invalid window the whole
	// context is chunked; otherwise only the token nearest click and
	// window.Begin tokens to its left and window.End tokens to its right.
	Chunk(context string, click span.CodepointSpan, window span.TokenSpan) []span.CodepointSpan
}

// Ensure TokenChunker implements Chunker
var _ Chunker = (*TokenChunker)(nil)

// TokenChunker emits one chunk per token.
type TokenChunker struct {
	tokenizer tokenizer.Tokenizer
	logger    *zap.Logger
}

// NewTokenChunker creates a chunker over the given tokenizer.
func NewTokenChunker(tok tokenizer.Tokenizer, logger *zap.Logger) *TokenChunker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenChunker{tokenizer: tok, logger: logger}
}

// Chunk implements Chunker.
func (c *TokenChunker) Chunk(context string, click span.CodepointSpan, window span.TokenSpan) []span.CodepointSpan {
	tokens := c.tokenizer.Tokenize(context)
	if len(tokens) == 0 {
		return nil
	}

	first, last := 0, len(tokens)-1
	if !window.IsInvalid() {
		if window.Begin < 0 || window.End < 0 {
			c.logger.Debug("Negative chunk window", zap.Int("left", window.Begin), zap.Int("right", window.End))
			return nil
		}
		center := nearestToken(tokens, click)
		first = max(center-window.Begin, 0)
		last = min(center+window.End, len(tokens)-1)
	}

	chunks := make([]span.CodepointSpan, 0, last-first+1)
	for _, t := range tokens[first : last+1] {
		chunks = append(chunks, span.CodepointSpan{Begin: t.Start, End: t.End})
	}
	return chunks
}

// nearestToken returns the index of the token containing click.Begin, or
// else the one closest to it.
func nearestToken(tokens []tokenizer.Token, click span.CodepointSpan) int {
	best, bestDist := 0, -1
	for i, t := range tokens {
		var dist int
		switch {
		case click.Begin < t.Start:
			dist = t.Start - click.Begin
		case click.Begin >= t.End:
			dist = click.Begin - t.End + 1
		}
		if bestDist < 0 || dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best
}
