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

package cmd

import (
	"fmt"
	"os"

	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/options"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/textclassifier"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var optionsCmd = &cobra.Command{
	Use:   "options <model.tcm>",
	Short: "Print the options stored in a model image",
	Long: `Print the model options (language, version) of a model image without
loading it. With --full the model is loaded and the selection and sharing
options are printed too.

Examples:
  smartselect options en.tcm
  smartselect options en.tcm --full --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runOptions,
}

func init() {
	rootCmd.AddCommand(optionsCmd)
	optionsCmd.Flags().StringP("output", "o", "yaml", "output format (yaml, json)")
	optionsCmd.Flags().Bool("full", false, "load the model and include selection and sharing options")
}

type featureSummary struct {
	ContextSize      int   `json:"context_size" yaml:"context_size"`
	MaxSelectionSpan int   `json:"max_selection_span" yaml:"max_selection_span"`
	NumBuckets       int   `json:"num_buckets" yaml:"num_buckets"`
	ChargramOrders   []int `json:"chargram_orders" yaml:"chargram_orders"`
	MaxWordLength    int   `json:"max_word_length" yaml:"max_word_length"`
	CodepointRanges  int   `json:"codepoint_ranges" yaml:"codepoint_ranges"`
}

type selectionSummary struct {
	Features              featureSummary `json:"features" yaml:"features"`
	SymmetryIterations    int            `json:"symmetry_iterations" yaml:"symmetry_iterations"`
	StripUnpairedBrackets bool           `json:"strip_unpaired_brackets" yaml:"strip_unpaired_brackets"`
	BracketPairs          []string       `json:"bracket_pairs" yaml:"bracket_pairs"`
}

type sharingSummary struct {
	Features      featureSummary    `json:"features" yaml:"features"`
	Collections   []string          `json:"collections" yaml:"collections"`
	RegexPatterns map[string]string `json:"regex_patterns,omitempty" yaml:"regex_patterns,omitempty"`
}

type optionsOutput struct {
	Language  string            `json:"language,omitempty" yaml:"language,omitempty"`
	Version   int32             `json:"version" yaml:"version"`
	Selection *selectionSummary `json:"selection,omitempty" yaml:"selection,omitempty"`
	Sharing   *sharingSummary   `json:"sharing,omitempty" yaml:"sharing,omitempty"`
}

func summarizeFeatures(o options.FeatureProcessorOptions) featureSummary {
	return featureSummary{
		ContextSize:      o.ContextSize,
		MaxSelectionSpan: o.MaxSelectionSpan,
		NumBuckets:       o.NumBuckets,
		ChargramOrders:   o.ChargramOrders,
		MaxWordLength:    o.MaxWordLength,
		CodepointRanges:  len(o.TokenizationCodepointConfig),
	}
}

func runOptions(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("output")
	if format != "yaml" && format != "json" {
		return fmt.Errorf("unknown output format %q", format)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	modelOpts, err := textclassifier.ReadSelectionModelOptions(f)
	if err != nil {
		return err
	}
	out := optionsOutput{Language: modelOpts.Language, Version: modelOpts.Version}

	if full, _ := cmd.Flags().GetBool("full"); full {
		model := textclassifier.NewFromFD(f, textclassifier.Config{Logger: newLogger()})
		defer func() { _ = model.Close() }()
		if !model.IsInitialized() {
			return fmt.Errorf("loading model %s: %w", args[0], model.LoadError())
		}

		sel := model.SelectionOptions()
		out.Selection = &selectionSummary{
			Features:              summarizeFeatures(sel.Features),
			SymmetryIterations:    sel.SymmetryIterations,
			StripUnpairedBrackets: sel.StripUnpairedBrackets,
			BracketPairs:          sel.BracketPairs,
		}
		sharing := model.SharingOptions()
		out.Sharing = &sharingSummary{
			Features:    summarizeFeatures(sharing.Features),
			Collections: sharing.Collections,
		}
		if len(sharing.RegexPatterns) > 0 {
			out.Sharing.RegexPatterns = make(map[string]string, len(sharing.RegexPatterns))
			for _, p := range sharing.RegexPatterns {
				out.Sharing.RegexPatterns[p.CollectionName] = p.Pattern
			}
		}
	}

	w := cmd.OutOrStdout()
	if format == "json" {
		return writeJSONOut(w, out)
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("encoding options: %w", err)
	}
	_, err = w.Write(data)
	return err
}
