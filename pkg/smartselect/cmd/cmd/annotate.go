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
	"github.com/spf13/cobra"
)

var annotateCmd = &cobra.Command{
	Use:   "annotate [text...]",
	Short: "Annotate text with classified spans",
	Long: `Split text into spans and classify each one.

With no arguments every line of stdin is annotated separately.

Examples:
  smartselect annotate --model en.tcm "mail jo@example.com tomorrow"
  cat messages.txt | smartselect annotate --model en.tcm --json`,
	RunE: runAnnotate,
}

func init() {
	rootCmd.AddCommand(annotateCmd)
	addModelFlags(annotateCmd)
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	texts, err := readTexts(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	service, name, closeFn, err := openService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	annotations, err := service.AnnotateBatch(cmd.Context(), name, texts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSONOut(out, smartselect.AnnotateResponse{Model: name, Annotations: annotations})
	}
	for i, spans := range annotations {
		if len(texts) > 1 {
			fmt.Fprintf(out, "# %d\n", i)
		}
		for _, a := range spans {
			fmt.Fprintf(out, "%s\t%q\n", a, substring(texts[i], a.Span))
		}
	}
	return nil
}
