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

package modelimage

import (
	"encoding/binary"
	"os"
)

// regionAlignment keeps every region start float32/float64 aligned when the
// image itself starts on an aligned address.
const regionAlignment = 8

// Builder assembles a model image. It is used by packaging tools and tests;
// the inference path only reads images.
type Builder struct {
	regions []Region
	payload [][]byte
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends a region. Adding the same kind twice produces an image that
// FromBytes rejects.
func (b *Builder) Add(kind RegionKind, data []byte) *Builder {
	b.regions = append(b.regions, Region{Kind: kind, Length: uint64(len(data))})
	b.payload = append(b.payload, data)
	return b
}

// Bytes lays out the header, the region table, and the regions.
func (b *Builder) Bytes() []byte {
	offset := uint64(tableSize(len(b.regions)))
	for i := range b.regions {
		offset = alignUp(offset)
		b.regions[i].Offset = offset
		offset += b.regions[i].Length
	}

	out := make([]byte, offset)
	copy(out, Magic)
	binary.LittleEndian.PutUint32(out[4:], Version)
	binary.LittleEndian.PutUint32(out[8:], uint32(len(b.regions)))
	for i, r := range b.regions {
		e := out[headerSize+i*regionEntrySize:]
		binary.LittleEndian.PutUint32(e[0:], uint32(r.Kind))
		binary.LittleEndian.PutUint64(e[4:], r.Offset)
		binary.LittleEndian.PutUint64(e[12:], r.Length)
		copy(out[r.Offset:], b.payload[i])
	}
	return out
}

// WriteFile writes the image to path.
func (b *Builder) WriteFile(path string) error {
	return os.WriteFile(path, b.Bytes(), 0o644)
}

func alignUp(v uint64) uint64 {
	return (v + regionAlignment - 1) &^ (regionAlignment - 1)
}
