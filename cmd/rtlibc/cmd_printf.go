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

package main

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var unescaper = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\\`, `\`)

func (a *app) newCmdPrintf() *cobra.Command {
	return &cobra.Command{
		Use:   "printf [--] FORMAT [ARG...]",
		Short: "Render FORMAT through the runtime Printf",
		Long: "Render FORMAT through the runtime Printf. Arguments that parse as " +
			"integers are passed as integers, the rest as strings. \\n, \\t and \\\\ " +
			"in FORMAT are unescaped.",
		Args: cobra.MinimumNArgs(1),
		RunE: a.run(a.printf),
	}
}

func (a *app) printf(_ *cobra.Command, args []string) error {
	n, err := a.rt.Printf(unescaper.Replace(args[0]), printfArgs(args[1:])...)
	a.log.Debug().Int("bytes", n).Msg("printf")
	return err
}

func printfArgs(args []string) []interface{} {
	out := make([]interface{}, len(args))
	for i, s := range args {
		if v, err := strconv.ParseInt(s, 0, 64); err == nil {
			out[i] = v
		} else if v, err := strconv.ParseUint(s, 0, 64); err == nil {
			out[i] = v
		} else {
			out[i] = s
		}
	}
	return out
}
