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
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/span"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/textclassifier"
	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// addModelFlags registers the flags shared by the offline inference commands.
func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().String("model", "", "model image to load (required)")
	cmd.Flags().Bool("json", false, "print results as JSON")
	_ = cmd.MarkFlagRequired("model")
}

func addSpanFlags(cmd *cobra.Command) {
	cmd.Flags().Int("begin", 0, "span begin, in codepoints")
	cmd.Flags().Int("end", 0, "span end, in codepoints (exclusive)")
}

// openService loads the --model image into a single-model service.
func openService(cmd *cobra.Command) (*smartselect.Service, string, func(), error) {
	path, _ := cmd.Flags().GetString("model")
	logger := newLogger()

	registry, err := smartselect.NewModelRegistry(smartselect.RegistryConfig{}, logger)
	if err != nil {
		return nil, "", nil, err
	}
	model := textclassifier.NewFromPath(path, textclassifier.Config{
		Name:              "cli",
		RegexMatchTimeout: viper.GetDuration("regex_match_timeout"),
		Logger:            logger,
	})
	if !model.IsInitialized() {
		return nil, "", nil, fmt.Errorf("loading model %s: %w", path, model.LoadError())
	}
	registry.Register(model)

	closeFn := func() {
		_ = registry.Close()
		_ = logger.Sync()
	}
	return smartselect.NewService(registry, nil, 0, logger), model.Name(), closeFn, nil
}

// readTexts returns the joined args as one text, or one text per stdin line.
func readTexts(args []string, stdin io.Reader) ([]string, error) {
	if len(args) > 0 {
		return []string{strings.Join(args, " ")}, nil
	}
	var texts []string
	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		texts = append(texts, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	if len(texts) == 0 {
		return nil, errors.New("no input text")
	}
	return texts, nil
}

func readText(args []string, stdin io.Reader) (string, error) {
	texts, err := readTexts(args, stdin)
	if err != nil {
		return "", err
	}
	return strings.Join(texts, "\n"), nil
}

func spanFlag(cmd *cobra.Command) span.CodepointSpan {
	begin, _ := cmd.Flags().GetInt("begin")
	end, _ := cmd.Flags().GetInt("end")
	return span.CodepointSpan{Begin: begin, End: end}
}

// substring returns the codepoint range s of text, or "" if s is out of range.
func substring(text string, s span.CodepointSpan) string {
	runes := []rune(text)
	if !s.ValidFor(len(runes)) {
		return ""
	}
	return string(runes[s.Begin:s.End])
}

func writeJSONOut(w io.Writer, v any) error {
	data, err := sonic.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
