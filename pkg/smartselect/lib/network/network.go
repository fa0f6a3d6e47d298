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

// Package network implements the feed-forward scoring kernel shared by the
// selection and sharing models.
package network

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/features"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/modelimage"
	"github.com/viterin/vek/vek32"
)

// ErrShapeMismatch is returned when network parameters do not fit the
// region they are stored in or the configuration they are used with.
var ErrShapeMismatch = errors.New("network shape mismatch")

// Scorer maps a feature window to one logit per output.
type Scorer interface {
	Compute(fv features.FeatureVector) ([]float32, error)
	OutputSize() int
}

// Shape describes the dimensions of an EmbeddingNetwork.
type Shape struct {
	Rows      int // embedding rows, equal to the feature bucket count
	EmbDim    int
	NumSlots  int
	HiddenDim int // zero for no hidden layer
	OutputDim int
}

// InputDim returns the width of the concatenated slot embeddings.
func (s Shape) InputDim() int {
	return s.NumSlots * s.EmbDim
}

func (s Shape) params() int64 {
	in := int64(s.InputDim())
	n := int64(s.Rows) * int64(s.EmbDim)
	if s.HiddenDim > 0 {
		n += int64(s.HiddenDim)*in + int64(s.HiddenDim)
		in = int64(s.HiddenDim)
	}
	return n + int64(s.OutputDim)*in + int64(s.OutputDim)
}

const (
	headerSize = 20
	maxDim     = 1 << 24
)

// EmbeddingNetwork sums the embeddings of each slot's features, concatenates
// the slots, applies an optional ReLU hidden layer and a linear output layer.
//
// Weights are views into the model image and are never written.
type EmbeddingNetwork struct {
	shape      Shape
	embeddings []float32
	hiddenW    []float32
	hiddenB    []float32
	outW       []float32
	outB       []float32
}

var _ Scorer = (*EmbeddingNetwork)(nil)

// Parse reads a network from a model image region. The region starts with
// five little-endian uint32 values (rows, embedding dim, slots, hidden dim,
// output dim) followed by float32 embeddings, hidden weights and biases, and
// output weights and biases.
func Parse(region []byte) (*EmbeddingNetwork, error) {
	if len(region) < headerSize {
		return nil, fmt.Errorf("%w: %d byte header", ErrShapeMismatch, len(region))
	}
	var dims [5]int
	for i := range dims {
		v := binary.LittleEndian.Uint32(region[i*4:])
		if v > maxDim {
			return nil, fmt.Errorf("%w: dimension %d too large", ErrShapeMismatch, v)
		}
		dims[i] = int(v)
	}
	shape := Shape{Rows: dims[0], EmbDim: dims[1], NumSlots: dims[2], HiddenDim: dims[3], OutputDim: dims[4]}
	if shape.Rows == 0 || shape.EmbDim == 0 || shape.NumSlots == 0 || shape.OutputDim == 0 {
		return nil, fmt.Errorf("%w: empty dimension in %+v", ErrShapeMismatch, shape)
	}
	if want := shape.params() * 4; int64(len(region)-headerSize) != want {
		return nil, fmt.Errorf("%w: %+v needs %d bytes of weights, region has %d",
			ErrShapeMismatch, shape, want, len(region)-headerSize)
	}

	weights, _ := modelimage.Float32s(region[headerSize:])
	net := &EmbeddingNetwork{shape: shape}
	take := func(n int) []float32 {
		v := weights[:n:n]
		weights = weights[n:]
		return v
	}
	net.embeddings = take(shape.Rows * shape.EmbDim)
	in := shape.InputDim()
	if shape.HiddenDim > 0 {
		net.hiddenW = take(shape.HiddenDim * in)
		net.hiddenB = take(shape.HiddenDim)
		in = shape.HiddenDim
	}
	net.outW = take(shape.OutputDim * in)
	net.outB = take(shape.OutputDim)
	return net, nil
}

// Shape returns the network dimensions.
func (n *EmbeddingNetwork) Shape() Shape {
	return n.shape
}

// OutputSize implements Scorer.
func (n *EmbeddingNetwork) OutputSize() int {
	return n.shape.OutputDim
}

// Validate checks the network against the feature window and label count it
// will be used with.
func (n *EmbeddingNetwork) Validate(numBuckets, numSlots, outputs int) error {
	switch {
	case n.shape.Rows != numBuckets:
		return fmt.Errorf("%w: %d embedding rows for %d buckets", ErrShapeMismatch, n.shape.Rows, numBuckets)
	case n.shape.NumSlots != numSlots:
		return fmt.Errorf("%w: %d slots, features produce %d", ErrShapeMismatch, n.shape.NumSlots, numSlots)
	case n.shape.OutputDim != outputs:
		return fmt.Errorf("%w: %d outputs, expected %d", ErrShapeMismatch, n.shape.OutputDim, outputs)
	}
	return nil
}

// Compute implements Scorer.
func (n *EmbeddingNetwork) Compute(fv features.FeatureVector) ([]float32, error) {
	if len(fv) != n.shape.NumSlots {
		return nil, fmt.Errorf("%w: %d slots, network takes %d", ErrShapeMismatch, len(fv), n.shape.NumSlots)
	}
	dim := n.shape.EmbDim
	input := make([]float32, n.shape.InputDim())
	scaled := make([]float32, dim)
	for s, slot := range fv {
		dst := input[s*dim : (s+1)*dim]
		for _, f := range slot {
			if f.ID < 0 || f.ID >= n.shape.Rows {
				return nil, fmt.Errorf("%w: feature id %d out of %d rows", ErrShapeMismatch, f.ID, n.shape.Rows)
			}
			copy(scaled, n.embeddings[f.ID*dim:(f.ID+1)*dim])
			vek32.MulNumber_Inplace(scaled, f.Weight)
			vek32.Add_Inplace(dst, scaled)
		}
	}

	if n.shape.HiddenDim > 0 {
		input = affine(n.hiddenW, n.hiddenB, input)
		for i, v := range input {
			if v < 0 {
				input[i] = 0
			}
		}
	}
	return affine(n.outW, n.outB, input), nil
}

// affine returns w·x + b for a row-major w with len(b) rows.
func affine(w, b, x []float32) []float32 {
	out := make([]float32, len(b))
	in := len(x)
	for i := range out {
		out[i] = vek32.Dot(w[i*in:(i+1)*in], x) + b[i]
	}
	return out
}

// Softmax returns the normalized exponentials of logits.
func Softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	peak := logits[0]
	for _, v := range logits[1:] {
		if v > peak {
			peak = v
		}
	}
	out := make([]float32, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - peak))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}
