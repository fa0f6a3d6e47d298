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
	"time"

	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/options"
	"github.com/dlclark/regexp2"
	"go.uber.org/zap"
)

// DefaultMatchTimeout bounds a single pattern evaluation.
const DefaultMatchTimeout = 50 * time.Millisecond

type compiledPattern struct {
	collection string
	re         *regexp2.Regexp
}

// RegexTable is an ordered list of patterns that force a collection when they
// match a whole span. The first matching pattern wins.
type RegexTable struct {
	patterns []compiledPattern
	logger   *zap.Logger
}

// CompileRegexTable compiles patterns in order. Patterns that fail to compile
// are logged and left out of the table.
func CompileRegexTable(patterns []options.RegexPattern, timeout time.Duration, logger *zap.Logger) *RegexTable {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultMatchTimeout
	}
	t := &RegexTable{logger: logger}
	for i, p := range patterns {
		// Anchored so only a match of the whole span counts.
		re, err := regexp2.Compile(`\A(?:`+p.Pattern+`)\z`, regexp2.None)
		if err != nil {
			logger.Warn("Dropping regex pattern that failed to compile",
				zap.Int("index", i),
				zap.String("collection", p.CollectionName),
				zap.String("pattern", p.Pattern),
				zap.Error(err))
			continue
		}
		re.MatchTimeout = timeout
		t.patterns = append(t.patterns, compiledPattern{collection: p.CollectionName, re: re})
	}
	return t
}

// Len returns the number of usable patterns.
func (t *RegexTable) Len() int {
	return len(t.patterns)
}

// Match returns the collection of the first pattern matching all of text.
func (t *RegexTable) Match(text string) (string, bool) {
	for _, p := range t.patterns {
		ok, err := p.re.MatchString(text)
		if err != nil {
			// Timeouts count as no match.
			t.logger.Debug("Regex evaluation failed",
				zap.String("collection", p.collection),
				zap.Error(err))
			continue
		}
		if ok {
			return p.collection, true
		}
	}
	return "", false
}
