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
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/span"
	"go.uber.org/zap"
)

// Annotate splits context into labeled spans. The spans are ordered,
// non-overlapping, and together cover every non-whitespace codepoint of
// context. An uninitialized model returns nil.
func (m *Model) Annotate(context string) []span.AnnotatedSpan {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return nil
	}

	chunks := m.chunker.Chunk(context, span.InvalidCodepointSpan, span.InvalidTokenSpan)
	selDoc := m.selection.Processor().NewDocument(context)
	sharingDoc := selDoc.For(m.sharing.Processor())
	var (
		out       []span.AnnotatedSpan
		watermark int
	)
	for _, chunk := range chunks {
		if chunk.End <= watermark {
			continue
		}
		// A selection may have consumed the start of this chunk.
		click := span.CodepointSpan{Begin: max(chunk.Begin, watermark), End: chunk.End}
		selected := m.selection.SuggestSymmetricalIn(selDoc, click)
		if selected.Begin < watermark {
			selected.Begin = click.Begin
		}
		out = append(out, span.AnnotatedSpan{
			Span:           selected,
			Classification: m.sharing.ClassifyIn(sharingDoc, selected, 0),
		})
		watermark = selected.End
	}

	m.logger.Debug("Annotated context",
		zap.Int("chunks", len(chunks)),
		zap.Int("spans", len(out)))
	return out
}
