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

package tokenizer

import (
	"sort"
	"strings"
	"unicode"

	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/options"
)

// Token is a piece of text with its codepoint extent in the source string.
type Token struct {
	Value string
	// Start and End are codepoint offsets, End exclusive.
	Start int
	End   int
}

// Len returns the number of codepoints the token covers.
func (t Token) Len() int {
	return t.End - t.Start
}

// Tokenizer splits text into codepoint-indexed tokens.
type Tokenizer interface {
	// Tokenize returns the tokens of text in order. Separators are not
	// returned as tokens.
	Tokenize(text string) []Token
}

// CodepointTokenizer splits on Unicode whitespace and on codepoint ranges
// configured with a split role.
type CodepointTokenizer struct {
	ranges []options.CodepointRange
}

var _ Tokenizer = (*CodepointTokenizer)(nil)

// NewCodepointTokenizer creates a tokenizer for the given role configuration.
// Ranges should not overlap; when they do the one starting last wins.
func NewCodepointTokenizer(config []options.CodepointRange) *CodepointTokenizer {
	ranges := make([]options.CodepointRange, 0, len(config))
	for _, r := range config {
		if r.Role != options.RoleDefault {
			ranges = append(ranges, r)
		}
	}
	sort.SliceStable(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	return &CodepointTokenizer{ranges: ranges}
}

// Role returns the role of a codepoint.
func (t *CodepointTokenizer) Role(r rune) options.CodepointRole {
	if unicode.IsSpace(r) {
		return options.RoleWhitespaceSeparator
	}
	// Last range with Start <= r.
	i := sort.Search(len(t.ranges), func(i int) bool { return t.ranges[i].Start > int32(r) }) - 1
	if i >= 0 && int32(r) <= t.ranges[i].End {
		return t.ranges[i].Role
	}
	return options.RoleDefault
}

// Tokenize implements Tokenizer.
func (t *CodepointTokenizer) Tokenize(text string) []Token {
	var (
		tokens []Token
		cur    strings.Builder
		start  int
		pos    int
	)
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, Token{Value: cur.String(), Start: start, End: pos})
			cur.Reset()
		}
	}

	for _, r := range text {
		switch t.Role(r) {
		case options.RoleWhitespaceSeparator:
			flush()
		case options.RoleSplitBefore:
			flush()
			start = pos
			cur.WriteRune(r)
		case options.RoleSplitAfter:
			if cur.Len() == 0 {
				start = pos
			}
			cur.WriteRune(r)
			pos++
			flush()
			continue
		default:
			if cur.Len() == 0 {
				start = pos
			}
			cur.WriteRune(r)
		}
		pos++
	}
	flush()
	return tokens
}
