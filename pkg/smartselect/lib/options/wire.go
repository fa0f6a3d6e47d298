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

package options

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the encoded options blocks.
const (
	modelOptionsLanguage protowire.Number = 1
	modelOptionsVersion  protowire.Number = 2

	rangeStart protowire.Number = 1
	rangeEnd   protowire.Number = 2
	rangeRole  protowire.Number = 3

	featContextSize      protowire.Number = 1
	featMaxSelectionSpan protowire.Number = 2
	featNumBuckets       protowire.Number = 3
	featChargramOrders   protowire.Number = 4
	featMaxWordLength    protowire.Number = 5
	featExtractCase      protowire.Number = 6
	featExtractShape     protowire.Number = 7
	featCodepointConfig  protowire.Number = 8

	selFeatures           protowire.Number = 1
	selSymmetryIterations protowire.Number = 2
	selStripBrackets      protowire.Number = 3
	selBracketPairs       protowire.Number = 4

	shareFeatures     protowire.Number = 1
	shareCollections  protowire.Number = 2
	shareRegexPattern protowire.Number = 3

	regexCollection protowire.Number = 1
	regexPattern    protowire.Number = 2
)

// walkFields calls fn for every field in b. fn returns the number of bytes it
// consumed, or 0 to have the field skipped as unknown.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return wireError(n)
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return wireError(m)
			}
		}
		b = b[m:]
	}
	return nil
}

func wireError(n int) error {
	return fmt.Errorf("%w: %v", ErrMalformedOptions, protowire.ParseError(n))
}

func consumeInt(typ protowire.Type, b []byte) (int, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("%w: wire type %d, want varint", ErrMalformedOptions, typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, wireError(n)
	}
	i := int64(v)
	if i < math.MinInt32 || i > math.MaxInt32 {
		return 0, 0, fmt.Errorf("%w: value %d out of range", ErrMalformedOptions, i)
	}
	return int(i), n, nil
}

func consumeBool(typ protowire.Type, b []byte) (bool, int, error) {
	i, n, err := consumeInt(typ, b)
	return i != 0, n, err
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("%w: wire type %d, want bytes", ErrMalformedOptions, typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, wireError(n)
	}
	return v, n, nil
}

// consumeInts decodes a repeated int field in either packed or unpacked form.
func consumeInts(typ protowire.Type, b []byte, dst []int) ([]int, int, error) {
	if typ == protowire.VarintType {
		v, n, err := consumeInt(typ, b)
		if err != nil {
			return dst, 0, err
		}
		return append(dst, v), n, nil
	}
	packed, n, err := consumeBytes(typ, b)
	if err != nil {
		return dst, 0, err
	}
	for len(packed) > 0 {
		v, m, err := consumeInt(protowire.VarintType, packed)
		if err != nil {
			return dst, 0, err
		}
		dst = append(dst, v)
		packed = packed[m:]
	}
	return dst, n, nil
}

// ParseModelOptions decodes a ModelOptions block.
func ParseModelOptions(b []byte) (*ModelOptions, error) {
	opts := &ModelOptions{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case modelOptionsLanguage:
			v, n, err := consumeBytes(typ, b)
			opts.Language = string(v)
			return n, err
		case modelOptionsVersion:
			v, n, err := consumeInt(typ, b)
			opts.Version = int32(v)
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing model options: %w", err)
	}
	return opts, nil
}

func parseCodepointRange(b []byte) (CodepointRange, error) {
	var r CodepointRange
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case rangeStart:
			v, n, err := consumeInt(typ, b)
			r.Start = int32(v)
			return n, err
		case rangeEnd:
			v, n, err := consumeInt(typ, b)
			r.End = int32(v)
			return n, err
		case rangeRole:
			v, n, err := consumeInt(typ, b)
			r.Role = CodepointRole(v)
			return n, err
		}
		return 0, nil
	})
	return r, err
}

func parseFeatureOptions(b []byte) (FeatureProcessorOptions, error) {
	opts := DefaultFeatureProcessorOptions()
	ordersSeen := false
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case featContextSize:
			v, n, err := consumeInt(typ, b)
			opts.ContextSize = v
			return n, err
		case featMaxSelectionSpan:
			v, n, err := consumeInt(typ, b)
			opts.MaxSelectionSpan = v
			return n, err
		case featNumBuckets:
			v, n, err := consumeInt(typ, b)
			opts.NumBuckets = v
			return n, err
		case featChargramOrders:
			if !ordersSeen {
				opts.ChargramOrders = nil
				ordersSeen = true
			}
			var n int
			var err error
			opts.ChargramOrders, n, err = consumeInts(typ, b, opts.ChargramOrders)
			return n, err
		case featMaxWordLength:
			v, n, err := consumeInt(typ, b)
			opts.MaxWordLength = v
			return n, err
		case featExtractCase:
			v, n, err := consumeBool(typ, b)
			opts.ExtractCaseFeature = v
			return n, err
		case featExtractShape:
			v, n, err := consumeBool(typ, b)
			opts.ExtractShapeFeature = v
			return n, err
		case featCodepointConfig:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			r, err := parseCodepointRange(v)
			if err != nil {
				return 0, err
			}
			opts.TokenizationCodepointConfig = append(opts.TokenizationCodepointConfig, r)
			return n, nil
		}
		return 0, nil
	})
	return opts, err
}

// ParseSelectionModelOptions decodes and validates a SelectionModelOptions block.
func ParseSelectionModelOptions(b []byte) (*SelectionModelOptions, error) {
	opts := DefaultSelectionModelOptions()
	pairsSeen := false
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case selFeatures:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			opts.Features, err = parseFeatureOptions(v)
			return n, err
		case selSymmetryIterations:
			v, n, err := consumeInt(typ, b)
			opts.SymmetryIterations = v
			return n, err
		case selStripBrackets:
			v, n, err := consumeBool(typ, b)
			opts.StripUnpairedBrackets = v
			return n, err
		case selBracketPairs:
			if !pairsSeen {
				opts.BracketPairs = nil
				pairsSeen = true
			}
			v, n, err := consumeBytes(typ, b)
			opts.BracketPairs = append(opts.BracketPairs, string(v))
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing selection options: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &opts, nil
}

func parseRegexPattern(b []byte) (RegexPattern, error) {
	var p RegexPattern
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case regexCollection:
			v, n, err := consumeBytes(typ, b)
			p.CollectionName = string(v)
			return n, err
		case regexPattern:
			v, n, err := consumeBytes(typ, b)
			p.Pattern = string(v)
			return n, err
		}
		return 0, nil
	})
	return p, err
}

// ParseSharingModelOptions decodes and validates a SharingModelOptions block.
func ParseSharingModelOptions(b []byte) (*SharingModelOptions, error) {
	opts := DefaultSharingModelOptions()
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case shareFeatures:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			opts.Features, err = parseFeatureOptions(v)
			return n, err
		case shareCollections:
			v, n, err := consumeBytes(typ, b)
			opts.Collections = append(opts.Collections, string(v))
			return n, err
		case shareRegexPattern:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			p, err := parseRegexPattern(v)
			if err != nil {
				return 0, err
			}
			opts.RegexPatterns = append(opts.RegexPatterns, p)
			return n, nil
		}
		return 0, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing sharing options: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &opts, nil
}

func appendInt(b []byte, num protowire.Number, v int) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(int64(v)))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

// AppendModelOptions appends the wire encoding of o to b.
func AppendModelOptions(b []byte, o ModelOptions) []byte {
	if o.Language != "" {
		b = appendString(b, modelOptionsLanguage, o.Language)
	}
	return appendInt(b, modelOptionsVersion, int(o.Version))
}

func appendFeatureOptions(b []byte, o FeatureProcessorOptions) []byte {
	b = appendInt(b, featContextSize, o.ContextSize)
	b = appendInt(b, featMaxSelectionSpan, o.MaxSelectionSpan)
	b = appendInt(b, featNumBuckets, o.NumBuckets)
	if len(o.ChargramOrders) > 0 {
		var packed []byte
		for _, order := range o.ChargramOrders {
			packed = protowire.AppendVarint(packed, uint64(int64(order)))
		}
		b = appendMessage(b, featChargramOrders, packed)
	}
	b = appendInt(b, featMaxWordLength, o.MaxWordLength)
	b = appendBool(b, featExtractCase, o.ExtractCaseFeature)
	b = appendBool(b, featExtractShape, o.ExtractShapeFeature)
	for _, r := range o.TokenizationCodepointConfig {
		var msg []byte
		msg = appendInt(msg, rangeStart, int(r.Start))
		msg = appendInt(msg, rangeEnd, int(r.End))
		msg = appendInt(msg, rangeRole, int(r.Role))
		b = appendMessage(b, featCodepointConfig, msg)
	}
	return b
}

// AppendSelectionModelOptions appends the wire encoding of o to b.
func AppendSelectionModelOptions(b []byte, o SelectionModelOptions) []byte {
	b = appendMessage(b, selFeatures, appendFeatureOptions(nil, o.Features))
	b = appendInt(b, selSymmetryIterations, o.SymmetryIterations)
	b = appendBool(b, selStripBrackets, o.StripUnpairedBrackets)
	for _, pair := range o.BracketPairs {
		b = appendString(b, selBracketPairs, pair)
	}
	return b
}

// AppendSharingModelOptions appends the wire encoding of o to b.
func AppendSharingModelOptions(b []byte, o SharingModelOptions) []byte {
	b = appendMessage(b, shareFeatures, appendFeatureOptions(nil, o.Features))
	for _, c := range o.Collections {
		b = appendString(b, shareCollections, c)
	}
	for _, p := range o.RegexPatterns {
		var msg []byte
		msg = appendString(msg, regexCollection, p.CollectionName)
		msg = appendString(msg, regexPattern, p.Pattern)
		b = appendMessage(b, shareRegexPattern, msg)
	}
	return b
}
