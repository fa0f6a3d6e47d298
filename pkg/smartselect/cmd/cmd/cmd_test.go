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
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/textclassifier/fixture"
	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "en.tcm")
	require.NoError(t, os.WriteFile(path, fixture.Image(fixture.Default()), 0o644))
	return path
}

// execute runs the root command and resets the flags it touched.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append(args, "--log-style", "noop"))
	t.Cleanup(func() {
		for _, c := range rootCmd.Commands() {
			for _, name := range []string{"json", "full", "url", "email", "begin", "end", "output"} {
				if f := c.Flags().Lookup(name); f != nil {
					_ = f.Value.Set(f.DefValue)
					f.Changed = false
				}
			}
		}
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestOptionsCommand(t *testing.T) {
	path := writeFixture(t)

	out, err := execute(t, "", "options", path)
	require.NoError(t, err)
	var got optionsOutput
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, optionsOutput{Language: "en", Version: 1}, got)

	out, err = execute(t, "", "options", path, "--full", "--output", "json")
	require.NoError(t, err)
	got = optionsOutput{}
	require.NoError(t, sonic.UnmarshalString(out, &got))
	require.NotNil(t, got.Sharing)
	assert.Equal(t, []string{"other", "phone", "url", "email"}, got.Sharing.Collections)
	assert.Contains(t, got.Sharing.RegexPatterns, "email")
	require.NotNil(t, got.Selection)
	assert.Equal(t, 3, got.Selection.Features.MaxSelectionSpan)

	_, err = execute(t, "", "options", path, "--output", "xml")
	require.Error(t, err)
}

func TestAnnotateCommand(t *testing.T) {
	path := writeFixture(t)

	out, err := execute(t, "", "annotate", "--model", path, "mail", "jo@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "jo@example.com")
	assert.True(t, strings.HasPrefix(out, "Span(0, "), out)

	out, err = execute(t, "one two\nwww.example.com\n", "annotate", "--model", path)
	require.NoError(t, err)
	assert.Contains(t, out, "# 0\n")
	assert.Contains(t, out, "# 1\n")
	assert.Contains(t, out, "url")

	_, err = execute(t, "", "annotate", "--model", filepath.Join(t.TempDir(), "missing.tcm"), "x")
	require.Error(t, err)
}

func TestSuggestAndClassifyCommands(t *testing.T) {
	path := writeFixture(t)

	out, err := execute(t, "", "suggest", "--model", path, "--begin", "6", "--end", "7", "--json", "hello world")
	require.NoError(t, err)
	var sel smartselect.SuggestResponse
	require.NoError(t, sonic.UnmarshalString(out, &sel))
	assert.LessOrEqual(t, sel.Begin, 6)
	assert.GreaterOrEqual(t, sel.End, 7)

	out, err = execute(t, "", "classify", "--model", path, "--begin", "0", "--end", "5", "--email", "hello world")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "email\t1.0000\n"), out)
}
