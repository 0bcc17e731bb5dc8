// Copyright 2024 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command rtlibc drives the runtime from the command line: formatted console
// output, stream copies and synthetic heap workloads, on the host kernel or
// on the in-memory one.
package main

import (
	"os"
)

func main() {
	if err := newCmdMain().Execute(); err != nil {
		os.Exit(1)
	}
}
