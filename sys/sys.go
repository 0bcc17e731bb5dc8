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

// Package sys defines the raw primitives the runtime is built on.
//
// A Kernel is the only thing beneath the heap and the streams: synchronous,
// unbuffered, byte-granular calls that either succeed with a count or handle,
// or fail with an error. There is no retry convention; a short transfer is
// reported as a count smaller than requested and the caller decides what it
// means.
package sys

// Fixed descriptors of the three process-wide channels.
const (
	Stdin  = 0
	Stdout = 1
	Stderr = 2
)

// OpenFlag selects how Open treats the path.
type OpenFlag uint32

const (
	// OpenNone opens an existing path for reading.
	OpenNone OpenFlag = 0x0
	// OpenCreate creates the path, or truncates it if it exists, for writing.
	OpenCreate OpenFlag = 0x1
)

// Stat is the metadata returned for an open descriptor.
type Stat struct {
	// Size is the length of the backing data in bytes, 0 for channels
	// without a fixed size.
	Size int64
	// Unbounded is set for interactive channels (terminals, pipes) whose
	// content is not known up front.
	Unbounded bool
}

// Region is a span of address space returned by Sbrk.
type Region struct {
	// Addr is the address of Mem[0]. It is never 0.
	Addr uintptr
	Mem  []byte
}

// Breaker grows the address space in page-granular steps.
type Breaker interface {
	// Sbrk returns a new region of exactly n bytes, n > 0.
	Sbrk(n int) (Region, error)
}

// Kernel is the full set of raw primitives.
type Kernel interface {
	Breaker

	Read(fd int, p []byte) (n int, err error)
	Write(fd int, p []byte) (n int, err error)
	Open(path string, flags OpenFlag) (fd int, err error)
	Close(fd int) error
	Stat(fd int) (Stat, error)

	// Exit terminates the process. Implementations used in tests may return.
	Exit(status int)
}
