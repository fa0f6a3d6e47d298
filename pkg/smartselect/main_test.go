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
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/classification"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/options"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/span"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/textclassifier/fixture"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// writeModel writes a fixture image to dir/rel and returns its path.
func writeModel(t *testing.T, dir, rel string, cfg fixture.Config) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, fixture.Image(cfg), 0o644))
	return path
}

func newTestRegistry(t *testing.T, names ...string) *ModelRegistry {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		writeModel(t, dir, name+ModelFileExt, fixture.Default())
	}
	r, err := NewModelRegistry(RegistryConfig{ModelsDir: dir}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Equal(t, len(names), r.Len())
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// countingModel records how often inference runs.
type countingModel struct {
	name       string
	annotates  atomic.Int32
	classifies atomic.Int32
	closed     atomic.Bool
}

func (m *countingModel) Name() string        { return m.name }
func (m *countingModel) IsInitialized() bool { return !m.closed.Load() }

func (m *countingModel) ModelOptions() (options.ModelOptions, bool) {
	return options.ModelOptions{}, false
}

func (m *countingModel) SharingOptions() options.SharingModelOptions {
	return options.SharingModelOptions{Collections: []string{"other"}}
}

func (m *countingModel) SuggestSelection(context string, click span.CodepointSpan) span.CodepointSpan {
	return click
}

func (m *countingModel) ClassifyText(context string, s span.CodepointSpan, flags classification.InputFlags) span.Classification {
	m.classifies.Add(1)
	return span.Classification{{Label: "other", Score: 1}}
}

func (m *countingModel) Annotate(context string) []span.AnnotatedSpan {
	m.annotates.Add(1)
	return []span.AnnotatedSpan{{
		Span:           span.CodepointSpan{Begin: 0, End: len([]rune(context))},
		Classification: span.Classification{{Label: "other", Score: 1}},
	}}
}

func (m *countingModel) Close() error {
	m.closed.Store(true)
	return nil
}
