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

// Package span defines the codepoint- and token-indexed value types shared by the
// selection, classification, and annotation engines.
package span

import (
	"fmt"
	"sort"
)

// InvalidIndex marks an unset span boundary.
const InvalidIndex = -1

// CodepointSpan is a half-open [Begin, End) range of Unicode codepoint indices
// into a context string.
type CodepointSpan struct {
	Begin int `json:"begin"`
	End   int `json:"end"`
}

// InvalidCodepointSpan is the sentinel for an unset codepoint span.
var InvalidCodepointSpan = CodepointSpan{Begin: InvalidIndex, End: InvalidIndex}

// IsInvalid reports whether s is the sentinel span.
func (s CodepointSpan) IsInvalid() bool {
	return s == InvalidCodepointSpan
}

// Len returns the number of codepoints covered by s.
func (s CodepointSpan) Len() int {
	return s.End - s.Begin
}

// IsEmpty reports whether s covers no codepoints.
func (s CodepointSpan) IsEmpty() bool {
	return s.End <= s.Begin
}

// ValidFor reports whether s satisfies 0 <= Begin <= End <= length.
func (s CodepointSpan) ValidFor(length int) bool {
	return s.Begin >= 0 && s.Begin <= s.End && s.End <= length
}

// Contains reports whether other lies entirely inside s.
func (s CodepointSpan) Contains(other CodepointSpan) bool {
	return s.Begin <= other.Begin && other.End <= s.End
}

// Union returns the smallest span covering both s and other.
func (s CodepointSpan) Union(other CodepointSpan) CodepointSpan {
	return CodepointSpan{Begin: min(s.Begin, other.Begin), End: max(s.End, other.End)}
}

// Clamp limits s to [0, length]. The second return value is false when the
// clamped span is inverted and therefore unrecoverable.
func (s CodepointSpan) Clamp(length int) (CodepointSpan, bool) {
	c := CodepointSpan{Begin: max(s.Begin, 0), End: min(s.End, length)}
	if c.Begin > c.End {
		return s, false
	}
	return c, true
}

func (s CodepointSpan) String() string {
	return fmt.Sprintf("[%d, %d)", s.Begin, s.End)
}

// TokenSpan is a half-open [Begin, End) range of token indices. When used as a
// relative window, Begin and End count tokens to the left and right of a center.
type TokenSpan struct {
	Begin int `json:"begin"`
	End   int `json:"end"`
}

// InvalidTokenSpan is the sentinel for an unset token span.
var InvalidTokenSpan = TokenSpan{Begin: InvalidIndex, End: InvalidIndex}

// IsInvalid reports whether s is the sentinel span.
func (s TokenSpan) IsInvalid() bool {
	return s == InvalidTokenSpan
}

// Len returns the number of tokens covered by s.
func (s TokenSpan) Len() int {
	return s.End - s.Begin
}

// ClassificationResult is one ranked entry of a Classification.
type ClassificationResult struct {
	// Label is the collection name (e.g. "phone", "url")
	Label string `json:"label"`
	// Score is the confidence score (0.0 to 1.0)
	Score float32 `json:"score"`
}

// Classification is a ranking of collections for a span, ordered by
// descending score with unique labels. An empty Classification means no
// classification is available.
type Classification []ClassificationResult

// Best returns the top ranked entry.
func (c Classification) Best() (ClassificationResult, bool) {
	if len(c) == 0 {
		return ClassificationResult{}, false
	}
	return c[0], true
}

// SortByScore orders c by descending score. Entries with equal scores keep
// their relative order.
func (c Classification) SortByScore() {
	sort.SliceStable(c, func(i, j int) bool {
		return c[i].Score > c[j].Score
	})
}

// Promote returns a new Classification with label ranked first at score,
// followed by the remaining entries of c in their existing order.
func (c Classification) Promote(label string, score float32) Classification {
	out := make(Classification, 0, len(c)+1)
	out = append(out, ClassificationResult{Label: label, Score: score})
	for _, r := range c {
		if r.Label == label {
			continue
		}
		out = append(out, r)
	}
	return out
}

// AnnotatedSpan is a span of the input together with its classification.
type AnnotatedSpan struct {
	Span           CodepointSpan  `json:"span"`
	Classification Classification `json:"classification"`
}

// String renders the span as Span(begin, end, best_label, best_score).
func (a AnnotatedSpan) String() string {
	label := ""
	score := float32(-1)
	if best, ok := a.Classification.Best(); ok {
		label = best.Label
		score = best.Score
	}
	return fmt.Sprintf("Span(%d, %d, %s, %g)", a.Span.Begin, a.Span.End, label, score)
}
