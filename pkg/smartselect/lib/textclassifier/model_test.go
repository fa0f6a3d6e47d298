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

package textclassifier

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode"

	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/modelimage"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/network"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/options"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/span"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/textclassifier/fixture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testContexts = []string{
	"Call me at +1 650 253 0000 tomorrow.",
	"Visit www.example.com or mail jo@example.com (today)",
	"  leading and   trailing  ",
	"naïve café, 東京 ok",
	"x",
	"",
}

func newTestModel(t *testing.T, cfg fixture.Config) *Model {
	t.Helper()
	m := NewFromBytes(fixture.Image(cfg), Config{Name: t.Name(), Logger: zaptest.NewLogger(t)})
	require.True(t, m.IsInitialized(), "load error: %v", m.LoadError())
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestUninitializedModel(t *testing.T) {
	m := NewFromBytes([]byte("not a model"), Config{Logger: zaptest.NewLogger(t)})
	require.NotNil(t, m)
	assert.False(t, m.IsInitialized())
	assert.ErrorIs(t, m.LoadError(), modelimage.ErrBadMagic)

	click := span.CodepointSpan{Begin: 2, End: 5}
	assert.Equal(t, click, m.SuggestSelection("hello world", click))
	assert.Empty(t, m.ClassifyText("hello world", click, 0))
	assert.Empty(t, m.ClassifyText("hello world", click, IsEmail))
	assert.Empty(t, m.Annotate("hello world"))
	assert.Nil(t, m.SelectionProcessor())
	assert.NoError(t, m.Close())
}

func TestCorruptedImages(t *testing.T) {
	valid := fixture.Image(fixture.Default())

	for n := 0; n < len(valid); n += 13 {
		require.NotPanics(t, func() {
			m := NewFromBytes(valid[:n], Config{})
			assert.False(t, m.IsInitialized(), "prefix of %d bytes", n)
			assert.Error(t, m.LoadError())
		})
	}

	// Flipped bytes either load or fail cleanly.
	for i := 0; i < len(valid); i += 5 {
		corrupt := append([]byte(nil), valid...)
		corrupt[i] ^= 0xA5
		require.NotPanics(t, func() {
			m := NewFromBytes(corrupt, Config{})
			if m.IsInitialized() {
				_ = m.Annotate("Call me at 555 1234")
			}
			_ = m.Close()
		})
	}
}

func TestLoadFailures(t *testing.T) {
	t.Run("sharing shape mismatch", func(t *testing.T) {
		cfg := fixture.Default()
		cfg.SharingBias = []float32{1, 2, 3}
		m := NewFromBytes(fixture.Image(cfg), Config{Logger: zaptest.NewLogger(t)})
		assert.False(t, m.IsInitialized())
		assert.ErrorIs(t, m.LoadError(), network.ErrShapeMismatch)
	})

	t.Run("selection label count mismatch", func(t *testing.T) {
		cfg := fixture.Default()
		cfg.SelectionBias = []float32{1, 2}
		m := NewFromBytes(fixture.Image(cfg), Config{})
		assert.ErrorIs(t, m.LoadError(), network.ErrShapeMismatch)
	})

	t.Run("invalid options", func(t *testing.T) {
		cfg := fixture.Default()
		cfg.Sharing.Collections = []string{"other", "other", "url", "email"}
		m := NewFromBytes(fixture.Image(cfg), Config{})
		assert.ErrorIs(t, m.LoadError(), options.ErrMalformedOptions)
	})

	t.Run("missing region", func(t *testing.T) {
		img := modelimage.NewBuilder().Add(modelimage.RegionSelectionOptions, nil).Bytes()
		m := NewFromBytes(img, Config{})
		assert.ErrorIs(t, m.LoadError(), modelimage.ErrMissingRegion)
	})

	t.Run("bad regex is dropped", func(t *testing.T) {
		cfg := fixture.Default()
		cfg.Sharing.RegexPatterns = append(cfg.Sharing.RegexPatterns,
			options.RegexPattern{CollectionName: "broken", Pattern: `([`})
		m := newTestModel(t, cfg)
		assert.NoError(t, m.LoadError())
	})
}

func TestConstructors(t *testing.T) {
	image := fixture.Image(fixture.Default())
	dir := t.TempDir()

	path := filepath.Join(dir, "model.tcm")
	require.NoError(t, os.WriteFile(path, image, 0o644))
	m := NewFromPath(path, Config{Logger: zaptest.NewLogger(t)})
	require.True(t, m.IsInitialized())
	assert.Equal(t, path, m.Name())
	opts, ok := m.ModelOptions()
	require.True(t, ok)
	assert.Equal(t, "en", opts.Language)
	require.NoError(t, m.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	m = NewFromFD(f, Config{})
	require.NoError(t, f.Close())
	require.True(t, m.IsInitialized())
	assert.NotEmpty(t, m.Annotate("still mapped after the file is closed"))
	require.NoError(t, m.Close())

	// Embedded at an unaligned offset inside a larger file.
	bundle := filepath.Join(dir, "bundle.bin")
	data := append(make([]byte, 5001), image...)
	data = append(data, make([]byte, 77)...)
	require.NoError(t, os.WriteFile(bundle, data, 0o644))
	f, err = os.Open(bundle)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	m = NewFromFile(f, 5001, int64(len(image)), Config{})
	require.True(t, m.IsInitialized(), "load error: %v", m.LoadError())
	require.NoError(t, m.Close())

	m = NewFromFile(f, 0, int64(len(image)), Config{})
	assert.False(t, m.IsInitialized())

	m = NewFromPath(filepath.Join(dir, "missing.tcm"), Config{})
	assert.False(t, m.IsInitialized())
	assert.Error(t, m.LoadError())

	f2, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f2.Close() }()
	probe, err := ReadSelectionModelOptions(f2)
	require.NoError(t, err)
	assert.Equal(t, int32(1), probe.Version)
}

func TestSuggestSelection_ContainsClick(t *testing.T) {
	m := newTestModel(t, fixture.Default())

	for _, context := range testContexts {
		n := len([]rune(context))
		for b := 0; b <= n; b++ {
			for e := b; e <= min(n, b+4); e++ {
				click := span.CodepointSpan{Begin: b, End: e}
				got := m.SuggestSelection(context, click)
				require.True(t, got.ValidFor(n), "%q %v -> %v", context, click, got)
				require.True(t, got.Contains(click), "%q %v -> %v", context, click, got)
			}
		}
	}
}

func TestSuggestSelection_InvalidInput(t *testing.T) {
	m := newTestModel(t, fixture.Default())

	assert.Equal(t, span.InvalidCodepointSpan, m.SuggestSelection("hello", span.InvalidCodepointSpan))
	inverted := span.CodepointSpan{Begin: 4, End: 1}
	assert.Equal(t, inverted, m.SuggestSelection("hello", inverted))

	// Out-of-range clicks are clamped to the context.
	got := m.SuggestSelection("hello", span.CodepointSpan{Begin: 2, End: 40})
	assert.Equal(t, span.CodepointSpan{Begin: 0, End: 5}, got)
}

func TestSuggestSelection_Symmetric(t *testing.T) {
	cfg := fixture.Default()
	// Labels for a span of 3: (0,0) (0,1) (0,2) (1,0) (1,1) (2,0).
	cfg.SelectionBias = fixture.PreferLabel(cfg.Selection.Features, 4)
	m := newTestModel(t, cfg)

	context := "one two three four five"
	click := span.CodepointSpan{Begin: 9, End: 10}
	got := m.SuggestSelection(context, click)
	assert.Equal(t, span.CodepointSpan{Begin: 4, End: 18}, got)
	assert.Equal(t, got, m.SuggestSelection(context, got))
}

func TestSuggestSelection_Idempotent(t *testing.T) {
	for seed := uint64(1); seed <= 8; seed++ {
		cfg := fixture.Default()
		cfg.Seed = seed
		m := newTestModel(t, cfg)
		for _, context := range testContexts {
			for b := range len([]rune(context)) {
				click := span.CodepointSpan{Begin: b, End: b + 1}
				once := m.SuggestSelection(context, click)
				require.Equal(t, once, m.SuggestSelection(context, once),
					"seed %d %q %v -> %v", seed, context, click, once)
			}
		}
	}
}

func TestClassifyText(t *testing.T) {
	m := newTestModel(t, fixture.Default())
	context := "Visit www.example.com or mail jo@example.com (today)"
	url := span.CodepointSpan{Begin: 6, End: 21}
	email := span.CodepointSpan{Begin: 30, End: 44}
	word := span.CodepointSpan{Begin: 0, End: 5}

	got := m.ClassifyText(context, word, 0)
	require.Len(t, got, 4)
	assert.Equal(t, got, m.ClassifyText(context, word, 0))
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i].Score, got[i-1].Score)
	}

	assert.Equal(t, "url", m.ClassifyText(context, url, 0)[0].Label)
	assert.Equal(t, "email", m.ClassifyText(context, email, 0)[0].Label)

	hinted := m.ClassifyText(context, word, IsEmail)
	assert.Equal(t, span.ClassificationResult{Label: "email", Score: 1}, hinted[0])
	for _, r := range hinted[1:] {
		assert.NotEqual(t, "email", r.Label)
		assert.LessOrEqual(t, r.Score, hinted[0].Score)
	}

	assert.Empty(t, m.ClassifyText(context, span.CodepointSpan{Begin: 40, End: 90}, 0))
}

func TestClassifyText_OverrideHook(t *testing.T) {
	var got []string
	m := NewFromBytes(fixture.Image(fixture.Default()), Config{
		OnRegexOverride: func(c string) { got = append(got, c) },
	})
	require.True(t, m.IsInitialized())
	m.ClassifyText("ring +41 79 123 45 67", span.CodepointSpan{Begin: 5, End: 21}, 0)
	assert.Equal(t, []string{"phone"}, got)
}

func assertCoverage(t *testing.T, context string, spans []span.AnnotatedSpan) {
	t.Helper()
	runes := []rune(context)
	covered := make([]int, len(runes))
	prevEnd := 0
	for i, a := range spans {
		require.True(t, a.Span.ValidFor(len(runes)), "span %d %v", i, a.Span)
		require.False(t, a.Span.IsEmpty(), "span %d %v", i, a.Span)
		require.GreaterOrEqual(t, a.Span.Begin, prevEnd, "span %d overlaps", i)
		prevEnd = a.Span.End
		for j := a.Span.Begin; j < a.Span.End; j++ {
			covered[j]++
		}
	}
	for j, r := range runes {
		if !unicode.IsSpace(r) {
			assert.Equal(t, 1, covered[j], "%q codepoint %d", context, j)
		}
	}
}

func TestAnnotate_Coverage(t *testing.T) {
	cfg := fixture.Default()
	biased := fixture.Default()
	biased.SelectionBias = fixture.PreferLabel(biased.Selection.Features, 1)

	for name, c := range map[string]fixture.Config{"random": cfg, "grow right": biased} {
		t.Run(name, func(t *testing.T) {
			m := newTestModel(t, c)
			for _, context := range testContexts {
				spans := m.Annotate(context)
				assertCoverage(t, context, spans)
				for _, a := range spans {
					assert.NotEmpty(t, a.Classification)
				}
				assert.Equal(t, spans, m.Annotate(context))
			}
		})
	}
}

func TestAnnotate_Labels(t *testing.T) {
	cfg := fixture.Default()
	cfg.SelectionBias = fixture.PreferLabel(cfg.Selection.Features, 0)
	cfg.SharingBias = []float32{3, 0, 0, 0}
	m := newTestModel(t, cfg)

	context := "mail jo@example.com now"
	spans := m.Annotate(context)
	require.Len(t, spans, 3)
	assert.Regexp(t, `^Span\(0, 4, other, 0\.87\d*\)$`, spans[0].String())
	assert.Equal(t, span.CodepointSpan{Begin: 5, End: 19}, spans[1].Span)
	assert.Equal(t, "email", spans[1].Classification[0].Label)
	assert.Equal(t, "other", spans[2].Classification[0].Label)
}

func TestAnnotate_GrowingSelectionSkipsCoveredChunks(t *testing.T) {
	cfg := fixture.Default()
	cfg.SelectionBias = fixture.PreferLabel(cfg.Selection.Features, 2) // (0,2)
	m := newTestModel(t, cfg)

	spans := m.Annotate("a b c d e")
	assertCoverage(t, "a b c d e", spans)
	require.Len(t, spans, 2)
	assert.Equal(t, span.CodepointSpan{Begin: 0, End: 5}, spans[0].Span)
	assert.Equal(t, span.CodepointSpan{Begin: 6, End: 9}, spans[1].Span)
}

func TestAnnotate_LongContext(t *testing.T) {
	if testing.Short() {
		t.Skip("long context")
	}
	m := newTestModel(t, fixture.Default())
	context := strings.Repeat("word (x) jo@example.com ", 5000)

	start := time.Now()
	spans := m.Annotate(context)
	took := time.Since(start)

	assertCoverage(t, context, spans)
	assert.Less(t, took, 10*time.Second)
}

func TestCloseWhileInUse(t *testing.T) {
	m := NewFromBytes(fixture.Image(fixture.Default()), Config{})
	require.True(t, m.IsInitialized())

	results := make([][]span.AnnotatedSpan, 8)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				results[i] = m.Annotate(testContexts[0])
			}
		}()
	}
	require.NoError(t, m.Close())
	wg.Wait()

	for _, spans := range results {
		if len(spans) > 0 {
			assertCoverage(t, testContexts[0], spans)
		}
	}

	assert.False(t, m.IsInitialized())
	assert.ErrorIs(t, m.LoadError(), ErrNotInitialized)
	assert.Empty(t, m.Annotate("hello"))
	require.NoError(t, m.Close())
}
