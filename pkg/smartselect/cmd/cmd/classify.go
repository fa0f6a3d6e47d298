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

	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/classification"
	"github.com/spf13/cobra"
)

var classifyCmd = &cobra.Command{
	Use:   "classify [text...]",
	Short: "Rank the collections of a span",
	Long: `Classify the span [begin, end) of text into the model's collections.

Example:
  smartselect classify --model en.tcm --begin 5 --end 19 "mail jo@example.com"`,
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	addModelFlags(classifyCmd)
	addSpanFlags(classifyCmd)
	classifyCmd.Flags().Bool("url", false, "hint that the span is a URL")
	classifyCmd.Flags().Bool("email", false, "hint that the span is an email address")
}

func runClassify(cmd *cobra.Command, args []string) error {
	text, err := readText(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	service, name, closeFn, err := openService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	var flags classification.InputFlags
	if isURL, _ := cmd.Flags().GetBool("url"); isURL {
		flags |= classification.IsURL
	}
	if isEmail, _ := cmd.Flags().GetBool("email"); isEmail {
		flags |= classification.IsEmail
	}
	result, err := service.ClassifyText(cmd.Context(), name, text, spanFlag(cmd), flags)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSONOut(out, smartselect.ClassifyResponse{Model: name, Classification: result})
	}
	for _, r := range result {
		fmt.Fprintf(out, "%s\t%.4f\n", r.Label, r.Score)
	}
	return nil
}
