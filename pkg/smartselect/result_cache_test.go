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
	"testing"
	"time"

	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/classification"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/span"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCachedModel_Annotate(t *testing.T) {
	rc := NewResultCache(time.Minute, zaptest.NewLogger(t))
	defer rc.Close()

	m := &countingModel{name: "m"}
	c := rc.WrapModel(m)

	first := c.Annotate("hello")
	assert.Equal(t, first, c.Annotate("hello"))
	assert.Equal(t, int32(1), m.annotates.Load())

	c.Annotate("hello!")
	assert.Equal(t, int32(2), m.annotates.Load())

	stats := c.Stats()
	assert.Equal(t, "m", stats.Model)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
	assert.Equal(t, 2, rc.Stats()["annotation_items"])
}

func TestCachedModel_ClassifyKeys(t *testing.T) {
	rc := NewResultCache(0, zaptest.NewLogger(t))
	defer rc.Close()

	m := &countingModel{name: "m"}
	c := rc.WrapModel(m)
	s := span.CodepointSpan{Begin: 0, End: 3}

	c.ClassifyText("abc def", s, 0)
	c.ClassifyText("abc def", s, 0)
	assert.Equal(t, int32(1), m.classifies.Load())

	c.ClassifyText("abc def", s, classification.IsURL)
	c.ClassifyText("abc def", span.CodepointSpan{Begin: 4, End: 7}, 0)
	assert.Equal(t, int32(3), m.classifies.Load())

	// Same inputs on a different model are not shared.
	other := &countingModel{name: "other"}
	rc.WrapModel(other).ClassifyText("abc def", s, 0)
	assert.Equal(t, int32(1), other.classifies.Load())

	// Annotate and classify entries do not collide.
	c.Annotate("abc def")
	assert.Equal(t, int32(1), m.annotates.Load())
}

func TestCachedModel_SuggestSelectionPassesThrough(t *testing.T) {
	rc := NewResultCache(time.Minute, zaptest.NewLogger(t))
	defer rc.Close()

	c := rc.WrapModel(&countingModel{name: "m"})
	click := span.CodepointSpan{Begin: 1, End: 2}
	require.Equal(t, click, c.SuggestSelection("abc", click))
	assert.Equal(t, "m", c.Name())
}

func TestCachedModel_ResultsAreCopies(t *testing.T) {
	rc := NewResultCache(time.Minute, zaptest.NewLogger(t))
	defer rc.Close()

	c := rc.WrapModel(&countingModel{name: "m"})
	s := span.CodepointSpan{Begin: 0, End: 3}

	first := c.ClassifyText("abc def", s, 0)
	require.Len(t, first, 1)
	first[0] = span.ClassificationResult{Label: "changed", Score: 0}
	assert.Equal(t, span.Classification{{Label: "other", Score: 1}}, c.ClassifyText("abc def", s, 0))

	spans := c.Annotate("abc")
	require.Len(t, spans, 1)
	spans[0].Span.End = 1
	spans[0].Classification[0].Label = "changed"
	again := c.Annotate("abc")
	require.Len(t, again, 1)
	assert.Equal(t, span.CodepointSpan{Begin: 0, End: 3}, again[0].Span)
	assert.Equal(t, "other", again[0].Classification[0].Label)
}
