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

package network

import (
	"encoding/binary"
	"math"
)

// BuildParams encodes a network region of the given shape with weights in
// [-1, 1) derived deterministically from seed. It produces fixture models for
// tests and tooling.
func BuildParams(shape Shape, seed uint64) []byte {
	weights := make([]float32, shape.params())
	// splitmix64
	state := seed
	for i := range weights {
		state += 0x9E3779B97F4A7C15
		z := state
		z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
		z = (z ^ (z >> 27)) * 0x94D049BB133111EB
		z ^= z >> 31
		weights[i] = float32(z>>40)/float32(1<<24)*2 - 1
	}
	return appendWeights(appendHeader(nil, shape), weights)
}

// EncodeParams encodes a network region from explicit weights. The slices
// must have the sizes implied by shape; hiddenW and hiddenB are empty when
// shape has no hidden layer.
func EncodeParams(shape Shape, embeddings, hiddenW, hiddenB, outW, outB []float32) []byte {
	out := appendHeader(make([]byte, 0, headerSize+shape.params()*4), shape)
	for _, part := range [][]float32{embeddings, hiddenW, hiddenB, outW, outB} {
		out = appendWeights(out, part)
	}
	return out
}

func appendHeader(b []byte, shape Shape) []byte {
	for _, v := range []int{shape.Rows, shape.EmbDim, shape.NumSlots, shape.HiddenDim, shape.OutputDim} {
		b = binary.LittleEndian.AppendUint32(b, uint32(v))
	}
	return b
}

func appendWeights(b []byte, weights []float32) []byte {
	for _, v := range weights {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
	}
	return b
}
