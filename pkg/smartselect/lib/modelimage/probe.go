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
	"fmt"
	"io"
	"os"

	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/options"
)

// ReadSelectionModelOptions reads only the header, the region table, and the
// model options region of the image in f. Nothing is mapped and no other
// region is validated, so callers can probe an image's capabilities without
// constructing a model.
func ReadSelectionModelOptions(f *os.File) (*options.ModelOptions, error) {
	if f == nil {
		return nil, fmt.Errorf("reading model options: nil file")
	}
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("reading model options: stat file: %w", err)
	}
	return readModelOptions(f, info.Size())
}

func readModelOptions(r io.ReaderAt, size int64) (*options.ModelOptions, error) {
	hdr := make([]byte, headerSize)
	if _, err := r.ReadAt(hdr, 0); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrTruncated, err)
	}
	count, err := parseHeader(hdr)
	if err != nil {
		return nil, err
	}
	table := make([]byte, count*regionEntrySize)
	if count > 0 {
		if _, err := r.ReadAt(table, headerSize); err != nil {
			return nil, fmt.Errorf("%w: reading region table: %v", ErrTruncated, err)
		}
	}
	regions, err := parseRegionTable(table, count, uint64(size))
	if err != nil {
		return nil, err
	}
	for _, region := range regions {
		if region.Kind != RegionModelOptions {
			continue
		}
		buf := make([]byte, region.Length)
		if region.Length > 0 {
			if _, err := r.ReadAt(buf, int64(region.Offset)); err != nil {
				return nil, fmt.Errorf("%w: reading %s: %v", ErrTruncated, region.Kind, err)
			}
		}
		return options.ParseModelOptions(buf)
	}
	return nil, fmt.Errorf("%w: %s", ErrMissingRegion, RegionModelOptions)
}
