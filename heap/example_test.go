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

package heap_test

import (
	"fmt"

	"github.com/cloudwego/rtlib/heap"
	"github.com/cloudwego/rtlib/sys/memsys"
)

func Example() {
	h := heap.New(memsys.New(nil), nil)

	p1, _ := h.Alloc(16) // 32 byte span carved from a fresh page
	_ = h.Free(p1)
	p2, _ := h.Alloc(8) // first fit: reuses the released span

	fmt.Printf("same=%v usable=%d grows=%d\n", p1 == p2, h.Usable(p2), h.Stats().Grows)

	// Output:
	// same=true usable=16 grows=1
}
