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
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/span"
)

// BracketSet maps bracket codepoints to their counterparts. A codepoint may
// close one pair and open another.
type BracketSet struct {
	counterparts map[rune][]rune
}

// NewBracketSet builds a set from two-codepoint strings, opener first.
// Strings of any other length are ignored.
func NewBracketSet(pairs []string) *BracketSet {
	bs := &BracketSet{counterparts: make(map[rune][]rune, 2*len(pairs))}
	for _, pair := range pairs {
		rs := []rune(pair)
		if len(rs) != 2 {
			continue
		}
		bs.counterparts[rs[0]] = append(bs.counterparts[rs[0]], rs[1])
		bs.counterparts[rs[1]] = append(bs.counterparts[rs[1]], rs[0])
	}
	return bs
}

// StripUnpairedBrackets trims a bracket at either boundary of s when none of
// its counterparts occurs inside s. Each side is trimmed at most once and the
// result is not re-scanned.
func StripUnpairedBrackets(context string, s span.CodepointSpan, brackets *BracketSet) span.CodepointSpan {
	return brackets.strip([]rune(context), s)
}

func (bs *BracketSet) strip(context []rune, s span.CodepointSpan) span.CodepointSpan {
	if !s.ValidFor(len(context)) || s.IsEmpty() {
		return s
	}
	text := context[s.Begin:s.End]
	out := s
	if bs.unpaired(text[0], text) {
		out.Begin++
	}
	if out.End > out.Begin && bs.unpaired(text[len(text)-1], text) {
		out.End--
	}
	return out
}

func (bs *BracketSet) unpaired(r rune, text []rune) bool {
	counterparts, ok := bs.counterparts[r]
	if !ok {
		return false
	}
	for _, c := range text {
		for _, want := range counterparts {
			if c == want {
				return false
			}
		}
	}
	return true
}
