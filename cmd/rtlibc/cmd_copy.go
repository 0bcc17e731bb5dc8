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
	"fmt"
	"os"

	"github.com/bytedance/gopkg/lang/mcache"
	"github.com/spf13/cobra"

	"github.com/cloudwego/rtlib/fault"
)

func (a *app) newCmdCopy() *cobra.Command {
	var chunk int
	cmd := &cobra.Command{
		Use:   "copy SRC DST",
		Short: "Copy SRC to DST through runtime streams",
		Long: "Copy SRC to DST through runtime streams. With --sim, SRC is read from " +
			"the host into the in-memory kernel and DST stays in memory.",
		Args: cobra.ExactArgs(2),
	}
	cmd.Flags().IntVar(&chunk, "chunk", 4096, "Bytes moved per read/write call")
	cmd.RunE = a.run(func(cmd *cobra.Command, args []string) error {
		return a.copy(args[0], args[1], chunk)
	})
	return cmd
}

func (a *app) copy(src, dst string, chunk int) error {
	if chunk <= 0 {
		return fmt.Errorf("chunk must be positive, got %d", chunk)
	}
	if a.sim != nil {
		data, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		a.sim.PutFile(src, data)
	}

	in, err := a.rt.Fopen(src, "r")
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := a.rt.Fopen(dst, "w")
	if err != nil {
		return err
	}

	buf := mcache.Malloc(chunk)
	defer mcache.Free(buf)

	var total int64
	for {
		n, rerr := in.ReadElems(buf, 1, len(buf))
		if n > 0 {
			if _, err := out.WriteElems(buf[:n], 1, n); err != nil {
				_ = out.Close()
				return err
			}
			total += int64(n)
		}
		if rerr != nil {
			if fault.KindOf(rerr) == fault.EndOfData {
				break
			}
			_ = out.Close()
			return rerr
		}
	}

	st := a.rt.Heap().Stats()
	if err := out.Flush(); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	a.log.Info().
		Str("src", src).
		Str("dst", dst).
		Int64("bytes", total).
		Int("heap_grows", st.Grows).
		Int("heap_reserved", st.Reserved).
		Bool("sim", a.sim != nil).
		Msg("copied")
	return nil
}
