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

// Package modelimage reads packaged model images: a small header, a region
// table, and the regions it points at. Regions are exposed as borrowed
// sub-slices of the image bytes and stay valid until the Image is closed.
package modelimage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Magic identifies a model image.
const Magic = "TCMI"

// Version is the only image layout version understood by this package.
const Version uint32 = 1

const (
	headerSize      = 12
	regionEntrySize = 20
	maxRegions      = 64
)

var (
	ErrBadMagic           = errors.New("bad model image magic")
	ErrUnsupportedVersion = errors.New("unsupported model image version")
	ErrRegionOutOfBounds  = errors.New("model image region out of bounds")
	ErrMissingRegion      = errors.New("model image region missing")
	ErrTruncated          = errors.New("model image truncated")
	ErrClosed             = errors.New("model image closed")
)

// RegionKind identifies the content of a region.
type RegionKind uint32

const (
	RegionModelOptions     RegionKind = 1
	RegionSelectionOptions RegionKind = 2
	RegionSelectionNetwork RegionKind = 3
	RegionSharingOptions   RegionKind = 4
	RegionSharingNetwork   RegionKind = 5
)

// RequiredRegions must be present for an image to be opened.
var RequiredRegions = []RegionKind{
	RegionSelectionOptions,
	RegionSelectionNetwork,
	RegionSharingOptions,
	RegionSharingNetwork,
}

func (k RegionKind) String() string {
	switch k {
	case RegionModelOptions:
		return "model_options"
	case RegionSelectionOptions:
		return "selection_options"
	case RegionSelectionNetwork:
		return "selection_network"
	case RegionSharingOptions:
		return "sharing_options"
	case RegionSharingNetwork:
		return "sharing_network"
	}
	return fmt.Sprintf("region(%d)", uint32(k))
}

// Region is one entry of the region table. Offset is relative to the start
// of the image.
type Region struct {
	Kind   RegionKind
	Offset uint64
	Length uint64
}

// parseHeader validates the fixed header and returns the number of entries
// in the region table.
func parseHeader(b []byte) (int, error) {
	if len(b) < headerSize {
		return 0, fmt.Errorf("%w: %d bytes, need %d for header", ErrTruncated, len(b), headerSize)
	}
	if string(b[:4]) != Magic {
		return 0, fmt.Errorf("%w: %q", ErrBadMagic, b[:4])
	}
	if v := binary.LittleEndian.Uint32(b[4:8]); v != Version {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	count := binary.LittleEndian.Uint32(b[8:12])
	if count > maxRegions {
		return 0, fmt.Errorf("%w: %d regions", ErrTruncated, count)
	}
	return int(count), nil
}

// tableSize returns the number of bytes occupied by the header and a table
// with count entries.
func tableSize(count int) int {
	return headerSize + count*regionEntrySize
}

// parseRegionTable decodes count entries from table and checks each one
// against the image size.
func parseRegionTable(table []byte, count int, imageSize uint64) ([]Region, error) {
	if len(table) < count*regionEntrySize {
		return nil, fmt.Errorf("%w: region table", ErrTruncated)
	}
	regions := make([]Region, 0, count)
	seen := make(map[RegionKind]struct{}, count)
	for i := 0; i < count; i++ {
		e := table[i*regionEntrySize:]
		r := Region{
			Kind:   RegionKind(binary.LittleEndian.Uint32(e[0:4])),
			Offset: binary.LittleEndian.Uint64(e[4:12]),
			Length: binary.LittleEndian.Uint64(e[12:20]),
		}
		if r.Offset > math.MaxUint64-r.Length || r.Offset+r.Length > imageSize {
			return nil, fmt.Errorf("%w: %s at [%d, +%d) in %d bytes",
				ErrRegionOutOfBounds, r.Kind, r.Offset, r.Length, imageSize)
		}
		if r.Offset < uint64(tableSize(count)) && r.Length > 0 {
			return nil, fmt.Errorf("%w: %s overlaps the region table", ErrRegionOutOfBounds, r.Kind)
		}
		if _, dup := seen[r.Kind]; dup {
			return nil, fmt.Errorf("%w: duplicate %s", ErrRegionOutOfBounds, r.Kind)
		}
		seen[r.Kind] = struct{}{}
		regions = append(regions, r)
	}
	return regions, nil
}
