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
	"math"
	"unsafe"
)

// hostLittleEndian is true when float32 values can be read from the image
// without byte swapping.
var hostLittleEndian = func() bool {
	x := uint16(1)
	return *(*byte)(unsafe.Pointer(&x)) == 1
}()

// Float32s returns b as a little-endian float32 slice. When b is suitably
// aligned and the host is little-endian, the result aliases b; otherwise the
// values are decoded into a new slice. The second result reports aliasing.
func Float32s(b []byte) ([]float32, bool) {
	n := len(b) / 4
	if n == 0 {
		return nil, true
	}
	b = b[:n*4]
	if hostLittleEndian && uintptr(unsafe.Pointer(unsafe.SliceData(b)))%unsafe.Alignof(float32(0)) == 0 {
		return unsafe.Slice((*float32)(unsafe.Pointer(unsafe.SliceData(b))), n), true
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, false
}
