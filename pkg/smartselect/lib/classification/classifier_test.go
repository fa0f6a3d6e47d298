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

package classification

import (
	"errors"
	"testing"

	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/features"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/options"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/span"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fixedScorer struct {
	logits []float32
	err    error
}

func (s fixedScorer) Compute(features.FeatureVector) ([]float32, error) {
	return s.logits, s.err
}

func (s fixedScorer) OutputSize() int { return len(s.logits) }

var testCollections = []string{CollectionOther, CollectionPhone, CollectionURL, CollectionEmail}

func newTestEngine(t *testing.T, logits []float32, patterns []options.RegexPattern) *Engine {
	logger := zaptest.NewLogger(t)
	return NewEngine(Config{
		Collections: testCollections,
		Regexes:     CompileRegexTable(patterns, 0, logger),
		Logger:      logger,
	}, features.NewProcessor(options.DefaultFeatureProcessorOptions()), fixedScorer{logits: logits})
}

func labels(c span.Classification) []string {
	out := make([]string, len(c))
	for i, r := range c {
		out[i] = r.Label
	}
	return out
}

func TestClassify_NetworkRanking(t *testing.T) {
	e := newTestEngine(t, []float32{0, 2, 1, 1}, nil)
	got := e.Classify("call 555 1234", span.CodepointSpan{Begin: 5, End: 13}, 0)

	require.Len(t, got, 4)
	assert.Equal(t, []string{CollectionPhone, CollectionURL, CollectionEmail, CollectionOther}, labels(got))
	var sum float32
	for i, r := range got {
		sum += r.Score
		if i > 0 {
			assert.LessOrEqual(t, r.Score, got[i-1].Score)
		}
	}
	assert.InDelta(t, 1.0, sum, 1e-5)

	assert.Equal(t, got, e.Classify("call 555 1234", span.CodepointSpan{Begin: 5, End: 13}, 0))
}

func TestClassify_Hints(t *testing.T) {
	e := newTestEngine(t, []float32{5, 0, 0, 0}, []options.RegexPattern{
		{CollectionName: CollectionPhone, Pattern: `.*`},
	})
	s := span.CodepointSpan{Begin: 0, End: 5}

	got := e.Classify("a@b.c", s, IsEmail)
	require.NotEmpty(t, got)
	assert.Equal(t, span.ClassificationResult{Label: CollectionEmail, Score: OverrideScore}, got[0])
	assert.Len(t, got, 4)
	assert.Equal(t, CollectionOther, got[1].Label)

	// URL wins when both hints are set.
	got = e.Classify("a@b.c", s, IsURL|IsEmail)
	assert.Equal(t, CollectionURL, got[0].Label)
	assert.Len(t, got, 4)
}

func TestClassify_RegexOverride(t *testing.T) {
	var overridden []string
	logger := zaptest.NewLogger(t)
	e := NewEngine(Config{
		Collections: testCollections,
		Regexes: CompileRegexTable([]options.RegexPattern{
			{CollectionName: CollectionURL, Pattern: `https?://\S+`},
			{CollectionName: CollectionPhone, Pattern: `[0-9 ]+`},
			{CollectionName: CollectionEmail, Pattern: `[0-9]+`},
		}, 0, logger),
		OnRegexOverride: func(c string) { overridden = append(overridden, c) },
		Logger:          logger,
	}, features.NewProcessor(options.DefaultFeatureProcessorOptions()), fixedScorer{logits: []float32{3, 0, 0, 0}})

	context := "call 555 1234 or see http://example.com now"
	got := e.Classify(context, span.CodepointSpan{Begin: 5, End: 13}, 0)
	assert.Equal(t, []string{CollectionPhone, CollectionOther, CollectionURL, CollectionEmail}, labels(got))
	assert.Equal(t, OverrideScore, got[0].Score)

	got = e.Classify(context, span.CodepointSpan{Begin: 21, End: 39}, 0)
	assert.Equal(t, CollectionURL, got[0].Label)

	// Partial matches do not count.
	got = e.Classify(context, span.CodepointSpan{Begin: 0, End: 8}, 0)
	assert.Equal(t, CollectionOther, got[0].Label)

	assert.Equal(t, []string{CollectionPhone, CollectionURL}, overridden)
}

func TestClassify_Degenerate(t *testing.T) {
	e := newTestEngine(t, []float32{0, 0, 0, 0}, nil)
	assert.Empty(t, e.Classify("hello", span.InvalidCodepointSpan, 0))
	assert.Empty(t, e.Classify("hello", span.CodepointSpan{Begin: 2, End: 9}, 0))
	assert.Empty(t, e.Classify("hello", span.CodepointSpan{Begin: 2, End: 2}, 0))

	// Whitespace-only span has no window but a hint still applies.
	assert.Empty(t, e.Classify("a   b", span.CodepointSpan{Begin: 1, End: 3}, 0))
	got := e.Classify("a   b", span.CodepointSpan{Begin: 1, End: 3}, IsURL)
	assert.Equal(t, span.Classification{{Label: CollectionURL, Score: OverrideScore}}, got)

	broken := NewEngine(Config{Collections: testCollections},
		features.NewProcessor(options.DefaultFeatureProcessorOptions()),
		fixedScorer{err: errors.New("boom")})
	assert.Empty(t, broken.Classify("hello", span.CodepointSpan{Begin: 0, End: 5}, 0))
}

func TestCompileRegexTable(t *testing.T) {
	table := CompileRegexTable([]options.RegexPattern{
		{CollectionName: "bad", Pattern: `(unclosed`},
		{CollectionName: CollectionPhone, Pattern: `\+?[0-9]{3,}`},
		{CollectionName: "lookahead", Pattern: `(?=ab)abc`},
	}, 0, zaptest.NewLogger(t))
	assert.Equal(t, 2, table.Len())

	c, ok := table.Match("+41791234")
	assert.True(t, ok)
	assert.Equal(t, CollectionPhone, c)

	c, ok = table.Match("abc")
	assert.True(t, ok)
	assert.Equal(t, "lookahead", c)

	_, ok = table.Match("12")
	assert.False(t, ok)
}

func TestClassifyIn_ReusesDocument(t *testing.T) {
	e := newTestEngine(t, []float32{0, 2, 1, 1}, []options.RegexPattern{
		{CollectionName: CollectionEmail, Pattern: `\S+@\S+`},
	})
	context := "call 555 1234 or jo@example.com"
	doc := e.Processor().NewDocument(context)
	for _, s := range []span.CodepointSpan{{Begin: 5, End: 13}, {Begin: 17, End: 31}, {Begin: 0, End: 4}, {Begin: 20, End: 90}} {
		for _, flags := range []InputFlags{0, IsURL} {
			assert.Equal(t, e.Classify(context, s, flags), e.ClassifyIn(doc, s, flags), "%v %d", s, flags)
		}
	}
	assert.Equal(t, CollectionEmail, e.ClassifyIn(doc, span.CodepointSpan{Begin: 17, End: 31}, 0)[0].Label)
}
