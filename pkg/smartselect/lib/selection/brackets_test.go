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
	"testing"

	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/options"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/span"
	"github.com/stretchr/testify/assert"
)

func TestStripUnpairedBrackets(t *testing.T) {
	brackets := NewBracketSet(options.DefaultBracketPairs)

	tests := []struct {
		context string
		in      span.CodepointSpan
		want    span.CodepointSpan
	}{
		{"(hello", span.CodepointSpan{Begin: 0, End: 6}, span.CodepointSpan{Begin: 1, End: 6}},
		{"(hello)", span.CodepointSpan{Begin: 0, End: 7}, span.CodepointSpan{Begin: 0, End: 7}},
		{"hello(", span.CodepointSpan{Begin: 0, End: 6}, span.CodepointSpan{Begin: 0, End: 5}},
		{"hello)", span.CodepointSpan{Begin: 0, End: 6}, span.CodepointSpan{Begin: 0, End: 5}},
		{")x(", span.CodepointSpan{Begin: 0, End: 3}, span.CodepointSpan{Begin: 1, End: 2}},
		{"say (hi", span.CodepointSpan{Begin: 4, End: 7}, span.CodepointSpan{Begin: 5, End: 7}},
		{"„quote“", span.CodepointSpan{Begin: 0, End: 7}, span.CodepointSpan{Begin: 0, End: 7}},
		{"«ja", span.CodepointSpan{Begin: 0, End: 3}, span.CodepointSpan{Begin: 1, End: 3}},
		{"((a", span.CodepointSpan{Begin: 0, End: 3}, span.CodepointSpan{Begin: 1, End: 3}},
		{"(", span.CodepointSpan{Begin: 0, End: 1}, span.CodepointSpan{Begin: 1, End: 1}},
		{"abc", span.CodepointSpan{Begin: 1, End: 1}, span.CodepointSpan{Begin: 1, End: 1}},
		{"abc", span.InvalidCodepointSpan, span.InvalidCodepointSpan},
		{"abc", span.CodepointSpan{Begin: 0, End: 9}, span.CodepointSpan{Begin: 0, End: 9}},
	}
	for _, tt := range tests {
		t.Run(tt.context, func(t *testing.T) {
			assert.Equal(t, tt.want, StripUnpairedBrackets(tt.context, tt.in, brackets))
		})
	}
}

func TestNewBracketSet_IgnoresMalformedPairs(t *testing.T) {
	brackets := NewBracketSet([]string{"(", "[]x", "<>"})
	assert.Equal(t, span.CodepointSpan{Begin: 0, End: 2},
		StripUnpairedBrackets("(a", span.CodepointSpan{Begin: 0, End: 2}, brackets))
	assert.Equal(t, span.CodepointSpan{Begin: 1, End: 2},
		StripUnpairedBrackets("<a", span.CodepointSpan{Begin: 0, End: 2}, brackets))
}
