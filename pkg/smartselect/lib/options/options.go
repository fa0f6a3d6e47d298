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

// Package options holds the configuration blocks stored in a model image and
// their protobuf wire-format encoding.
//
// The blocks are decoded field by field with protowire rather than through
// generated message types. Fields absent from the encoded block keep the values
// from the Default* constructors.
package options

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"
)

// ErrMalformedOptions is returned when an options block cannot be decoded or
// fails validation.
var ErrMalformedOptions = errors.New("malformed model options")

// CodepointRole describes how the tokenizer treats a codepoint range.
type CodepointRole int

const (
	// RoleDefault leaves the codepoint inside the surrounding token.
	RoleDefault CodepointRole = iota
	// RoleWhitespaceSeparator ends the current token and is dropped.
	RoleWhitespaceSeparator
	// RoleSplitBefore starts a new token at the codepoint.
	RoleSplitBefore
	// RoleSplitAfter ends the current token after the codepoint.
	RoleSplitAfter
)

// CodepointRange assigns a role to the inclusive range [Start, End].
type CodepointRange struct {
	Start int32
	End   int32
	Role  CodepointRole
}

// ModelOptions is the top-level description of a packaged model.
type ModelOptions struct {
	Language string
	Version  int32
}

// FeatureProcessorOptions configures tokenization and the feature window.
type FeatureProcessorOptions struct {
	// ContextSize is the number of tokens on each side of the center slot.
	ContextSize int
	// MaxSelectionSpan bounds the number of tokens a selection label may cover.
	MaxSelectionSpan int
	// NumBuckets is the size of the hashed feature id space.
	NumBuckets int
	// ChargramOrders lists the character n-gram lengths extracted per token.
	ChargramOrders []int
	// MaxWordLength truncates long tokens before n-gram extraction.
	MaxWordLength       int
	ExtractCaseFeature  bool
	ExtractShapeFeature bool
	// TokenizationCodepointConfig assigns tokenizer roles to codepoint ranges.
	// Unicode whitespace is always a separator, and only whitespace may be
	// given RoleWhitespaceSeparator.
	TokenizationCodepointConfig []CodepointRange
}

// NumSlots returns the number of feature slots in a window.
func (o FeatureProcessorOptions) NumSlots() int {
	return 2*o.ContextSize + 1
}

// NumSelectionLabels returns the number of (left, right) extension pairs with
// left+right+1 <= MaxSelectionSpan.
func (o FeatureProcessorOptions) NumSelectionLabels() int {
	return o.MaxSelectionSpan * (o.MaxSelectionSpan + 1) / 2
}

// SelectionModelOptions configures the smart selection model.
type SelectionModelOptions struct {
	Features FeatureProcessorOptions
	// SymmetryIterations caps the symmetric refinement loop.
	SymmetryIterations    int
	StripUnpairedBrackets bool
	// BracketPairs holds two-codepoint strings, opener then closer.
	BracketPairs []string
}

// RegexPattern maps a regular expression to the collection it forces.
type RegexPattern struct {
	CollectionName string
	Pattern        string
}

// SharingModelOptions configures the smart sharing model.
type SharingModelOptions struct {
	Features FeatureProcessorOptions
	// Collections lists the output labels in network output order.
	Collections   []string
	RegexPatterns []RegexPattern
}

// DefaultFeatureProcessorOptions returns the values used for absent fields.
func DefaultFeatureProcessorOptions() FeatureProcessorOptions {
	return FeatureProcessorOptions{
		ContextSize:         2,
		MaxSelectionSpan:    5,
		NumBuckets:          1000,
		ChargramOrders:      []int{1, 2, 3},
		MaxWordLength:       20,
		ExtractCaseFeature:  true,
		ExtractShapeFeature: true,
	}
}

// DefaultBracketPairs is the bracket set used when a model does not define one.
var DefaultBracketPairs = []string{
	"()", "[]", "{}", "<>",
	"«»", "‹›", "“”", "‘’", "„“",
	"「」", "『』", "（）", "［］", "｛｝", "【】", "〈〉", "《》",
}

// DefaultSelectionModelOptions returns the values used for absent fields.
func DefaultSelectionModelOptions() SelectionModelOptions {
	return SelectionModelOptions{
		Features:              DefaultFeatureProcessorOptions(),
		SymmetryIterations:    5,
		StripUnpairedBrackets: true,
		BracketPairs:          append([]string(nil), DefaultBracketPairs...),
	}
}

// DefaultSharingModelOptions returns the values used for absent fields.
func DefaultSharingModelOptions() SharingModelOptions {
	return SharingModelOptions{
		Features: DefaultFeatureProcessorOptions(),
	}
}

// Validate checks the invariants the feature processor relies on.
func (o FeatureProcessorOptions) Validate() error {
	if o.ContextSize < 0 {
		return fmt.Errorf("%w: context size %d", ErrMalformedOptions, o.ContextSize)
	}
	if o.MaxSelectionSpan < 1 {
		return fmt.Errorf("%w: max selection span %d", ErrMalformedOptions, o.MaxSelectionSpan)
	}
	if o.NumBuckets < 1 {
		return fmt.Errorf("%w: num buckets %d", ErrMalformedOptions, o.NumBuckets)
	}
	if o.MaxWordLength < 1 {
		return fmt.Errorf("%w: max word length %d", ErrMalformedOptions, o.MaxWordLength)
	}
	for _, order := range o.ChargramOrders {
		if order < 1 {
			return fmt.Errorf("%w: chargram order %d", ErrMalformedOptions, order)
		}
	}
	for _, r := range o.TokenizationCodepointConfig {
		if r.Start > r.End || r.Start < 0 {
			return fmt.Errorf("%w: codepoint range [%d, %d]", ErrMalformedOptions, r.Start, r.End)
		}
		if r.Role < RoleDefault || r.Role > RoleSplitAfter {
			return fmt.Errorf("%w: codepoint role %d", ErrMalformedOptions, r.Role)
		}
		// Separators are dropped from the text, so they must be whitespace.
		if r.Role == RoleWhitespaceSeparator {
			for c := r.Start; c <= min(r.End, unicode.MaxRune); c++ {
				if !unicode.IsSpace(rune(c)) {
					return fmt.Errorf("%w: separator range [%d, %d] contains non-space %U",
						ErrMalformedOptions, r.Start, r.End, c)
				}
			}
		}
	}
	return nil
}

// Validate checks the selection options.
func (o SelectionModelOptions) Validate() error {
	if err := o.Features.Validate(); err != nil {
		return fmt.Errorf("selection features: %w", err)
	}
	if o.SymmetryIterations < 1 {
		return fmt.Errorf("%w: symmetry iterations %d", ErrMalformedOptions, o.SymmetryIterations)
	}
	for _, pair := range o.BracketPairs {
		if utf8.RuneCountInString(pair) != 2 {
			return fmt.Errorf("%w: bracket pair %q", ErrMalformedOptions, pair)
		}
	}
	return nil
}

// Validate checks the sharing options.
func (o SharingModelOptions) Validate() error {
	if err := o.Features.Validate(); err != nil {
		return fmt.Errorf("sharing features: %w", err)
	}
	if len(o.Collections) == 0 {
		return fmt.Errorf("%w: no collections", ErrMalformedOptions)
	}
	seen := make(map[string]struct{}, len(o.Collections))
	for _, c := range o.Collections {
		if c == "" {
			return fmt.Errorf("%w: empty collection name", ErrMalformedOptions)
		}
		if _, dup := seen[c]; dup {
			return fmt.Errorf("%w: duplicate collection %q", ErrMalformedOptions, c)
		}
		seen[c] = struct{}{}
	}
	return nil
}
