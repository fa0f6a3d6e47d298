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

// Package fixture builds small, complete model images for tests and demos.
package fixture

import (
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/modelimage"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/network"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/options"
)

// Config describes a fixture model.
type Config struct {
	Model     *options.ModelOptions
	Selection options.SelectionModelOptions
	Sharing   options.SharingModelOptions

	// SelectionBias, when set, replaces the selection network with one that
	// ignores its input and emits these logits.
	SelectionBias []float32
	// SharingBias does the same for the sharing network.
	SharingBias []float32

	// Seed drives the random weights of networks without a bias.
	Seed      uint64
	EmbDim    int
	HiddenDim int
}

// Default returns a small model with random weights, four collections and
// override patterns for phone numbers, URLs and email addresses.
func Default() Config {
	features := options.DefaultFeatureProcessorOptions()
	features.NumBuckets = 64
	features.MaxSelectionSpan = 3

	sel := options.DefaultSelectionModelOptions()
	sel.Features = features

	return Config{
		Model:     &options.ModelOptions{Language: "en", Version: 1},
		Selection: sel,
		Sharing: options.SharingModelOptions{
			Features:    features,
			Collections: []string{"other", "phone", "url", "email"},
			RegexPatterns: []options.RegexPattern{
				{CollectionName: "url", Pattern: `(?i)(?:https?://|www\.)\S+`},
				{CollectionName: "email", Pattern: `[^@\s]+@[^@\s]+\.[a-z]{2,}`},
				{CollectionName: "phone", Pattern: `\+?[0-9][0-9 ()-]{5,}[0-9]`},
			},
		},
		Seed:      42,
		EmbDim:    4,
		HiddenDim: 8,
	}
}

// PreferLabel returns selection logits that always pick the label with the
// given index.
func PreferLabel(opts options.FeatureProcessorOptions, label int) []float32 {
	logits := make([]float32, opts.NumSelectionLabels())
	logits[label] = 10
	return logits
}

// Image encodes cfg as a model image.
func Image(cfg Config) []byte {
	b := modelimage.NewBuilder()
	if cfg.Model != nil {
		b.Add(modelimage.RegionModelOptions, options.AppendModelOptions(nil, *cfg.Model))
	}
	b.Add(modelimage.RegionSelectionOptions, options.AppendSelectionModelOptions(nil, cfg.Selection))
	b.Add(modelimage.RegionSelectionNetwork,
		networkRegion(cfg, cfg.Selection.Features, cfg.Selection.Features.NumSelectionLabels(), cfg.SelectionBias, 0))
	b.Add(modelimage.RegionSharingOptions, options.AppendSharingModelOptions(nil, cfg.Sharing))
	b.Add(modelimage.RegionSharingNetwork,
		networkRegion(cfg, cfg.Sharing.Features, len(cfg.Sharing.Collections), cfg.SharingBias, 1))
	return b.Bytes()
}

func networkRegion(cfg Config, feats options.FeatureProcessorOptions, outputs int, bias []float32, salt uint64) []byte {
	shape := network.Shape{
		Rows:      feats.NumBuckets,
		EmbDim:    max(cfg.EmbDim, 1),
		NumSlots:  feats.NumSlots(),
		HiddenDim: cfg.HiddenDim,
		OutputDim: outputs,
	}
	if bias == nil {
		return network.BuildParams(shape, cfg.Seed+salt)
	}

	in := shape.InputDim()
	var hiddenW, hiddenB []float32
	if shape.HiddenDim > 0 {
		hiddenW = make([]float32, shape.HiddenDim*in)
		hiddenB = make([]float32, shape.HiddenDim)
		in = shape.HiddenDim
	}
	return network.EncodeParams(shape,
		make([]float32, shape.Rows*shape.EmbDim),
		hiddenW, hiddenB,
		make([]float32, outputs*in),
		bias)
}
