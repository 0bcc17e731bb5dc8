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
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/cloudwego/rtlib/heap"
)

type heapFlags struct {
	count int
	size  int
	seed  int64
}

func (a *app) newCmdHeap() *cobra.Command {
	var f heapFlags
	cmd := &cobra.Command{
		Use:   "heap",
		Short: "Run a synthetic allocate/release/resize workload and print heap statistics",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().IntVar(&f.count, "count", 64, "Number of allocations")
	cmd.Flags().IntVar(&f.size, "size", 256, "Maximum allocation size in bytes")
	cmd.Flags().Int64Var(&f.seed, "seed", 1, "Random seed")
	cmd.RunE = a.run(func(*cobra.Command, []string) error {
		return a.heapWorkload(f)
	})
	return cmd
}

// heapWorkload allocates count blocks, releases every other one, doubles the
// rest through Realloc and releases everything.
func (a *app) heapWorkload(f heapFlags) error {
	if f.count <= 0 || f.size <= 0 {
		return fmt.Errorf("count and size must be positive, got %d and %d", f.count, f.size)
	}
	rng := rand.New(rand.NewSource(f.seed))
	ptrs := make([]heap.Ptr, 0, f.count)
	release := func() {
		for _, p := range ptrs {
			_ = a.rt.Free(p)
		}
	}

	for i := 0; i < f.count; i++ {
		p, err := a.rt.Malloc(1 + rng.Intn(f.size))
		if err != nil {
			release()
			return err
		}
		ptrs = append(ptrs, p)
	}
	kept := ptrs[:0]
	for i, p := range ptrs {
		if i%2 == 0 {
			if err := a.rt.Free(p); err != nil {
				return err
			}
			continue
		}
		kept = append(kept, p)
	}
	ptrs = kept
	peak := a.rt.Heap().Stats()

	for i, p := range ptrs {
		np, err := a.rt.Realloc(p, 2*a.rt.Heap().Usable(p))
		if err != nil {
			release()
			return err
		}
		ptrs[i] = np
	}
	resized := a.rt.Heap().Stats()
	release()
	st := a.rt.Heap().Stats()

	a.log.Debug().
		Int("live_after_release", peak.Live).
		Int("live_after_resize", resized.Live).
		Msg("heap workload")
	_, err := a.rt.Printf("grows=%d reserved=%d allocs=%d frees=%d live=%d free_spans=%d free_bytes=%d\n",
		st.Grows, st.Reserved, st.Allocs, st.Frees, st.Live, st.FreeSpans, st.FreeBytes)
	return err
}
