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

// Command smartselect serves and runs smart selection, smart sharing and
// annotation models.
//
// Usage:
//
//	smartselect run                              # Start the server
//	smartselect annotate --model m.tcm "text"    # Annotate text
//	smartselect suggest --model m.tcm --begin 4 --end 5 "text"
//	smartselect classify --model m.tcm --begin 0 --end 5 "text"
//	smartselect options m.tcm                    # Print the model options
package main

import (
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/cmd/cmd"
)

// https://goreleaser.com/cookbooks/using-main.version/
//
// main.version: Current Git tag (the v prefix is stripped) or the name of the snapshot
var version = "dev"

func main() {
	cmd.Version = version
	cmd.Execute()
}
