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

var suggestCmd = &cobra.Command{
	Use:   "suggest [text...]",
	Short: "Suggest a selection around a click",
	Long: `Expand the clicked span [begin, end) to the entity around it.

Example:
  smartselect suggest --model en.tcm --begin 12 --end 13 "call me at +41 79 123 45 67"`,
	RunE: runSuggest,
}

func init() {
	rootCmd.AddCommand(suggestCmd)
	addModelFlags(suggestCmd)
	addSpanFlags(suggestCmd)
}

func runSuggest(cmd *cobra.Command, args []string) error {
	text, err := readText(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	service, name, closeFn, err := openService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	sel, err := service.SuggestSelection(cmd.Context(), name, text, spanFlag(cmd))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSONOut(out, smartselect.SuggestResponse{Model: name, Begin: sel.Begin, End: sel.End})
	}
	_, err = fmt.Fprintf(out, "%s\t%q\n", sel, substring(text, sel))
	return err
}
