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

package selection

import (
	"errors"
	"testing"

	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/features"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/network"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/options"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/span"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// preferScorer puts all the mass on one label.
type preferScorer struct {
	size  int
	label int
	err   error
}

func (s preferScorer) Compute(features.FeatureVector) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	logits := make([]float32, s.size)
	if s.label >= 0 {
		logits[s.label] = 10
	}
	return logits, nil
}

func (s preferScorer) OutputSize() int { return s.size }

var _ network.Scorer = preferScorer{}

// With MaxSelectionSpan 3 the labels are (0,0) (0,1) (0,2) (1,0) (1,1) (2,0).
const (
	labelNone    = 0
	labelRight1  = 1
	labelBoth1   = 4
	labelLeft2   = 5
	numTestLabel = 6
)

func newTestEngine(t *testing.T, label int, strip bool) *Engine {
	opts := options.DefaultSelectionModelOptions()
	opts.Features.MaxSelectionSpan = 3
	opts.StripUnpairedBrackets = strip
	p := features.NewProcessor(opts.Features)
	require.Len(t, p.LabelSpans(), numTestLabel)
	return NewEngine(opts, p, preferScorer{size: numTestLabel, label: label}, zaptest.NewLogger(t))
}

func TestSuggestInternal(t *testing.T) {
	context := "a b c d e"
	click := span.CodepointSpan{Begin: 4, End: 5}

	tests := []struct {
		name  string
		label int
		want  span.CodepointSpan
	}{
		{"no extension", labelNone, span.CodepointSpan{Begin: 4, End: 5}},
		{"one right", labelRight1, span.CodepointSpan{Begin: 4, End: 7}},
		{"both sides", labelBoth1, span.CodepointSpan{Begin: 2, End: 7}},
		{"two left", labelLeft2, span.CodepointSpan{Begin: 0, End: 5}},
		{"tie prefers smaller span", -1, span.CodepointSpan{Begin: 4, End: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, tt.label, false)
			got, score := e.SuggestInternal(context, click)
			assert.Equal(t, tt.want, got)
			assert.Greater(t, score, float32(0))
		})
	}
}

func TestSuggestInternal_ClipsAtEdges(t *testing.T) {
	e := newTestEngine(t, labelLeft2, false)
	got, _ := e.SuggestInternal("a b c", span.CodepointSpan{Begin: 0, End: 1})
	assert.Equal(t, span.CodepointSpan{Begin: 0, End: 1}, got)
}

func TestSuggestInternal_Fallbacks(t *testing.T) {
	opts := options.DefaultSelectionModelOptions()
	p := features.NewProcessor(opts.Features)
	click := span.CodepointSpan{Begin: 1, End: 2}

	e := NewEngine(opts, p, preferScorer{size: 3}, nil)
	got, score := e.SuggestInternal("hello there", click)
	assert.Equal(t, click, got)
	assert.Zero(t, score)

	e = NewEngine(opts, p, preferScorer{err: errors.New("boom")}, nil)
	got, _ = e.SuggestInternal("hello there", click)
	assert.Equal(t, click, got)

	e = NewEngine(opts, p, preferScorer{size: opts.Features.NumSelectionLabels()}, nil)
	ws := span.CodepointSpan{Begin: 5, End: 6}
	got, _ = e.SuggestInternal("hello there", ws)
	assert.Equal(t, ws, got)
}

func TestSuggestSymmetrical(t *testing.T) {
	context := "a b c d e"
	click := span.CodepointSpan{Begin: 4, End: 5}

	e := newTestEngine(t, labelBoth1, false)
	got := e.SuggestSymmetrical(context, click)
	assert.Equal(t, span.CodepointSpan{Begin: 2, End: 7}, got)
	assert.True(t, got.Contains(click))
	assert.Equal(t, got, e.SuggestSymmetrical(context, got))

	// Growth to the right is re-centred until the span is capped.
	e = newTestEngine(t, labelRight1, false)
	got = e.SuggestSymmetrical(context, click)
	assert.Equal(t, span.CodepointSpan{Begin: 4, End: 9}, got)
	assert.Equal(t, got, e.SuggestSymmetrical(context, got))
}

func TestSuggestSymmetrical_IterationCap(t *testing.T) {
	opts := options.DefaultSelectionModelOptions()
	opts.Features.MaxSelectionSpan = 3
	opts.SymmetryIterations = 1
	p := features.NewProcessor(opts.Features)
	e := NewEngine(opts, p, preferScorer{size: numTestLabel, label: labelRight1}, nil)

	got := e.SuggestSymmetrical("a b c d e", span.CodepointSpan{Begin: 4, End: 5})
	assert.Equal(t, span.CodepointSpan{Begin: 4, End: 7}, got)
}

func TestSuggestSymmetrical_StripsBrackets(t *testing.T) {
	context := "(hello world"
	click := span.CodepointSpan{Begin: 3, End: 4}

	got := newTestEngine(t, labelNone, true).SuggestSymmetrical(context, click)
	assert.Equal(t, span.CodepointSpan{Begin: 1, End: 6}, got)

	got = newTestEngine(t, labelNone, false).SuggestSymmetrical(context, click)
	assert.Equal(t, span.CodepointSpan{Begin: 0, End: 6}, got)

	// A clicked bracket stays selected.
	bracket := span.CodepointSpan{Begin: 0, End: 1}
	got = newTestEngine(t, labelNone, true).SuggestSymmetrical(context, bracket)
	assert.Equal(t, span.CodepointSpan{Begin: 0, End: 6}, got)
}

func TestSuggestSymmetricalIn_ReusesDocument(t *testing.T) {
	e := newTestEngine(t, labelBoth1, true)
	context := "see (one two) three [four"
	doc := e.Processor().NewDocument(context)
	n := len([]rune(context))
	for b := 0; b < n; b++ {
		click := span.CodepointSpan{Begin: b, End: b + 1}
		assert.Equal(t, e.SuggestSymmetrical(context, click), e.SuggestSymmetricalIn(doc, click), "%v", click)
		want, wantScore := e.SuggestInternal(context, click)
		got, gotScore := e.SuggestInternalIn(doc, click)
		assert.Equal(t, want, got)
		assert.Equal(t, wantScore, gotScore)
	}

	// A document tokenized by another processor is re-tokenized.
	foreign := features.NewProcessor(options.DefaultFeatureProcessorOptions()).NewDocument(context)
	click := span.CodepointSpan{Begin: 6, End: 7}
	assert.Equal(t, e.SuggestSymmetrical(context, click), e.SuggestSymmetricalIn(foreign, click))
}
