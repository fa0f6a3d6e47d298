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

// Package features turns a click inside a text into the sparse feature
// window consumed by the scoring networks.
package features

import (
	"sort"
	"strings"
	"unicode"

	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/options"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/span"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/tokenizer"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Feature is one hashed feature id with its weight inside a slot.
type Feature struct {
	ID     int
	Weight float32
}

// Slot is the bag of features for one window position.
type Slot []Feature

// FeatureVector holds one slot per window position: ContextSize left slots,
// the center slot, then ContextSize right slots.
type FeatureVector []Slot

// Extension is a selection label: the number of tokens added on each side of
// the center token span.
type Extension struct {
	Left  int
	Right int
}

const (
	kindPadding  = "p"
	kindChargram = "g"
	kindCase     = "c"
	kindShape    = "s"

	wordBegin = "^"
	wordEnd   = "$"
)

// Processor extracts feature windows. It is immutable and safe for concurrent
// use.
type Processor struct {
	opts      options.FeatureProcessorOptions
	tokenizer *tokenizer.CodepointTokenizer
	labels    []Extension
	paddingID int
}

// NewProcessor creates a processor for the given options. The options must
// already be validated.
func NewProcessor(opts options.FeatureProcessorOptions) *Processor {
	p := &Processor{
		opts:      opts,
		tokenizer: tokenizer.NewCodepointTokenizer(opts.TokenizationCodepointConfig),
	}
	p.paddingID = p.hashID(kindPadding, "")
	for l := 0; l < opts.MaxSelectionSpan; l++ {
		for r := 0; l+r+1 <= opts.MaxSelectionSpan; r++ {
			p.labels = append(p.labels, Extension{Left: l, Right: r})
		}
	}
	return p
}

// Options returns the configuration the processor was built from.
func (p *Processor) Options() options.FeatureProcessorOptions {
	return p.opts
}

// NumSlots returns the number of slots in every extracted window.
func (p *Processor) NumSlots() int {
	return p.opts.NumSlots()
}

// LabelSpans returns the selection labels in network output order: Left in
// the outer loop, Right in the inner one.
func (p *Processor) LabelSpans() []Extension {
	return p.labels
}

// Tokenize splits context into tokens.
func (p *Processor) Tokenize(context string) []tokenizer.Token {
	return p.tokenizer.Tokenize(context)
}

// Document is a context tokenized once by a Processor, so that many windows
// can be extracted from it without re-tokenizing.
type Document struct {
	Runes  []rune
	Tokens []tokenizer.Token

	processor *Processor
}

// NewDocument tokenizes context for repeated use with p.
func (p *Processor) NewDocument(context string) *Document {
	return &Document{
		Runes:     []rune(context),
		Tokens:    p.tokenizer.Tokenize(context),
		processor: p,
	}
}

// For returns d when it was tokenized by p, and otherwise a copy of the same
// text tokenized by p.
func (d *Document) For(p *Processor) *Document {
	if d.processor == p {
		return d
	}
	return p.NewDocument(string(d.Runes))
}

// FindTokenSpan returns the tokens overlapping click. An empty click selects
// the token containing it, or the token ending right at it. Tokens must be in
// order and non-overlapping, as Tokenize returns them.
func (p *Processor) FindTokenSpan(tokens []tokenizer.Token, click span.CodepointSpan) span.TokenSpan {
	if click.IsInvalid() || click.Begin > click.End {
		return span.InvalidTokenSpan
	}
	// First token ending after click.Begin.
	first := sort.Search(len(tokens), func(i int) bool { return tokens[i].End > click.Begin })
	if click.IsEmpty() {
		if first < len(tokens) && tokens[first].Start <= click.Begin {
			return span.TokenSpan{Begin: first, End: first + 1}
		}
		if first > 0 && tokens[first-1].End == click.Begin {
			return span.TokenSpan{Begin: first - 1, End: first}
		}
		return span.InvalidTokenSpan
	}

	// First token starting at or after click.End.
	last := first + sort.Search(len(tokens)-first, func(i int) bool { return tokens[first+i].Start >= click.End })
	if first >= last {
		return span.InvalidTokenSpan
	}
	return span.TokenSpan{Begin: first, End: last}
}

// TokenSpanToCodepointSpan converts a token span into the codepoints it
// covers.
func TokenSpanToCodepointSpan(tokens []tokenizer.Token, ts span.TokenSpan) span.CodepointSpan {
	if ts.Begin < 0 || ts.End > len(tokens) || ts.Begin >= ts.End {
		return span.InvalidCodepointSpan
	}
	return span.CodepointSpan{Begin: tokens[ts.Begin].Start, End: tokens[ts.End-1].End}
}

// Extract builds the feature window around center. It reports false when
// center does not name any token.
func (p *Processor) Extract(tokens []tokenizer.Token, center span.TokenSpan) (FeatureVector, bool) {
	if center.Begin < 0 || center.End > len(tokens) || center.Begin >= center.End {
		return nil, false
	}

	fv := make(FeatureVector, 0, p.NumSlots())
	for i := center.Begin - p.opts.ContextSize; i < center.Begin; i++ {
		fv = append(fv, p.tokenSlot(tokens, i))
	}

	var ids []int
	for i := center.Begin; i < center.End; i++ {
		ids = append(ids, p.tokenFeatures(tokens[i].Value)...)
	}
	fv = append(fv, bag(ids))

	for i := center.End; i < center.End+p.opts.ContextSize; i++ {
		fv = append(fv, p.tokenSlot(tokens, i))
	}
	return fv, true
}

func (p *Processor) tokenSlot(tokens []tokenizer.Token, i int) Slot {
	if i < 0 || i >= len(tokens) {
		return Slot{{ID: p.paddingID, Weight: 1}}
	}
	return bag(p.tokenFeatures(tokens[i].Value))
}

// bag averages ids into a slot, merging repeated ids.
func bag(ids []int) Slot {
	if len(ids) == 0 {
		return Slot{}
	}
	w := 1 / float32(len(ids))
	slot := make(Slot, 0, len(ids))
	index := make(map[int]int, len(ids))
	for _, id := range ids {
		if j, ok := index[id]; ok {
			slot[j].Weight += w
			continue
		}
		index[id] = len(slot)
		slot = append(slot, Feature{ID: id, Weight: w})
	}
	return slot
}

func (p *Processor) tokenFeatures(value string) []int {
	word := []rune(cases.Fold().String(norm.NFKC.String(value)))
	if len(word) > p.opts.MaxWordLength {
		word = word[:p.opts.MaxWordLength]
	}
	bounded := make([]rune, 0, len(word)+2)
	bounded = append(bounded, []rune(wordBegin)...)
	bounded = append(bounded, word...)
	bounded = append(bounded, []rune(wordEnd)...)

	var ids []int
	for _, n := range p.opts.ChargramOrders {
		for i := 0; i+n <= len(bounded); i++ {
			ids = append(ids, p.hashID(kindChargram, string(bounded[i:i+n])))
		}
	}
	if p.opts.ExtractCaseFeature {
		ids = append(ids, p.hashID(kindCase, caseClass(value)))
	}
	if p.opts.ExtractShapeFeature {
		ids = append(ids, p.hashID(kindShape, shapeClass(value)))
	}
	return ids
}

func (p *Processor) hashID(kind, value string) int {
	d := xxhash.New()
	_, _ = d.WriteString(kind)
	_, _ = d.WriteString(":")
	_, _ = d.WriteString(value)
	return int(d.Sum64() % uint64(p.opts.NumBuckets))
}

func caseClass(value string) string {
	var upper, lower int
	firstUpper := false
	for i, r := range []rune(value) {
		switch {
		case unicode.IsUpper(r):
			upper++
			if i == 0 {
				firstUpper = true
			}
		case unicode.IsLower(r):
			lower++
		}
	}
	switch {
	case upper == 0 && lower == 0:
		return "none"
	case upper == 0:
		return "lower"
	case lower == 0:
		return "upper"
	case firstUpper && upper == 1:
		return "title"
	}
	return "mixed"
}

func shapeClass(value string) string {
	var digit, letter, other bool
	for _, r := range value {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLetter(r):
			letter = true
		default:
			other = true
		}
	}
	var b strings.Builder
	if letter {
		b.WriteString("a")
	}
	if digit {
		b.WriteString("d")
	}
	if other {
		b.WriteString("p")
	}
	return b.String()
}
