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
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/edsrzf/mmap-go"
)

// Image owns the bytes of a model image, either a read-only memory mapping
// or a caller-supplied buffer.
type Image struct {
	data    []byte
	mapping mmap.MMap
	regions map[RegionKind][]byte
	table   []Region
	closed  atomic.Bool
}

// FromBytes validates data as a model image. The image borrows data; the
// caller must keep it unmodified for the lifetime of the Image.
func FromBytes(data []byte) (*Image, error) {
	img := &Image{data: data}
	if err := img.index(); err != nil {
		return nil, err
	}
	return img, nil
}

// FromFile maps size bytes of f starting at offset. The file may be closed
// once FromFile returns; the mapping stays valid until Close.
func FromFile(f *os.File, offset, size int64) (*Image, error) {
	if f == nil {
		return nil, errors.New("mmap: nil file")
	}
	if offset < 0 || size <= 0 {
		return nil, fmt.Errorf("mmap: %w: offset %d size %d", ErrRegionOutOfBounds, offset, size)
	}
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("mmap: stat file: %w", err)
	}
	if offset > info.Size()-size {
		return nil, fmt.Errorf("mmap: %w: [%d, +%d) in %d byte file",
			ErrRegionOutOfBounds, offset, size, info.Size())
	}

	// Mappings must start on a page boundary.
	pageSize := int64(os.Getpagesize())
	aligned := offset - offset%pageSize
	skip := offset - aligned

	m, err := mmap.MapRegion(f, int(size+skip), mmap.RDONLY, 0, aligned)
	if err != nil {
		return nil, fmt.Errorf("mmap: map file: %w", err)
	}

	img := &Image{data: m[skip : skip+size], mapping: m}
	if err := img.index(); err != nil {
		_ = m.Unmap()
		return nil, err
	}
	return img, nil
}

// FromFD maps the whole of f.
func FromFD(f *os.File) (*Image, error) {
	if f == nil {
		return nil, errors.New("mmap: nil file")
	}
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("mmap: stat file: %w", err)
	}
	return FromFile(f, 0, info.Size())
}

// FromPath opens and maps the file at path.
func FromPath(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mmap: open file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return FromFD(f)
}

func (img *Image) index() error {
	count, err := parseHeader(img.data)
	if err != nil {
		return err
	}
	if len(img.data) < tableSize(count) {
		return fmt.Errorf("%w: region table", ErrTruncated)
	}
	table, err := parseRegionTable(img.data[headerSize:tableSize(count)], count, uint64(len(img.data)))
	if err != nil {
		return err
	}
	img.table = table
	img.regions = make(map[RegionKind][]byte, len(table))
	for _, r := range table {
		// Full slice expression keeps appends from reaching the next region.
		img.regions[r.Kind] = img.data[r.Offset : r.Offset+r.Length : r.Offset+r.Length]
	}
	for _, kind := range RequiredRegions {
		if _, ok := img.regions[kind]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingRegion, kind)
		}
	}
	return nil
}

// Region returns a borrowed view of the region of the given kind.
func (img *Image) Region(kind RegionKind) ([]byte, bool) {
	if img.closed.Load() {
		return nil, false
	}
	b, ok := img.regions[kind]
	return b, ok
}

// Regions returns the region table in file order.
func (img *Image) Regions() []Region {
	return append([]Region(nil), img.table...)
}

// Size returns the number of bytes in the image.
func (img *Image) Size() int {
	return len(img.data)
}

// Mapped reports whether the image is backed by a memory mapping.
func (img *Image) Mapped() bool {
	return img.mapping != nil
}

// Close releases the mapping. Views returned by Region must not be used
// afterwards. It is safe to call Close multiple times.
func (img *Image) Close() error {
	if !img.closed.CompareAndSwap(false, true) {
		return nil
	}
	img.regions = nil
	img.data = nil
	if img.mapping != nil {
		if err := img.mapping.Unmap(); err != nil {
			return fmt.Errorf("mmap: unmap: %w", err)
		}
		img.mapping = nil
	}
	return nil
}
