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

// Package libc ties the heap, the streams and the formatting engine to one
// kernel and exposes them through a C runtime shaped surface.
//
// A Runtime owns all state that a C runtime keeps in globals: the heap and
// the three std streams. It is not safe for concurrent use.
package libc

import (
	"io"

	"github.com/bytedance/gopkg/lang/mcache"
	"github.com/rs/zerolog"

	"github.com/cloudwego/rtlib/fault"
	"github.com/cloudwego/rtlib/heap"
	"github.com/cloudwego/rtlib/stdio"
	"github.com/cloudwego/rtlib/sys"
	"github.com/cloudwego/rtlib/xfmt"
)

const (
	// DefaultScratchSize is the capacity of the Printf render buffer,
	// terminator included.
	DefaultScratchSize = 1000

	// streamFormatSize is the capacity of the Fprintf render buffer.
	streamFormatSize = 1024

	// printfErrorMarker replaces the output of a Printf that failed to render.
	printfErrorMarker = "<PRINTF ERROR>\n"
)

// Option configures a Runtime.
type Option struct {
	// PageSize is the heap growth granularity.
	PageSize int

	// ScratchSize bounds a single Printf rendering, terminator included.
	ScratchSize int

	// Logger is shared with the heap. nil disables logging.
	Logger *zerolog.Logger
}

// DefaultOption returns the default values of Option.
func DefaultOption() *Option {
	return &Option{
		PageSize:    heap.DefaultPageSize,
		ScratchSize: DefaultScratchSize,
	}
}

// Runtime is the state of one C style runtime instance.
type Runtime struct {
	k       sys.Kernel
	heap    *heap.Heap
	log     zerolog.Logger
	scratch int

	Stdin  *stdio.Stream
	Stdout *stdio.Stream
	Stderr *stdio.Stream
}

// New returns a Runtime over k. opt may be nil.
func New(k sys.Kernel, opt *Option) *Runtime {
	if opt == nil {
		opt = DefaultOption()
	}
	r := &Runtime{
		k:       k,
		log:     zerolog.Nop(),
		scratch: opt.ScratchSize,
	}
	if r.scratch <= 0 {
		r.scratch = DefaultScratchSize
	}
	if opt.Logger != nil {
		r.log = opt.Logger.With().Str("component", "libc").Logger()
	}
	r.heap = heap.New(k, &heap.Option{PageSize: opt.PageSize, Logger: opt.Logger})
	r.Stdin = stdio.NewStd(k, r.heap, sys.Stdin)
	r.Stdout = stdio.NewStd(k, r.heap, sys.Stdout)
	r.Stderr = stdio.NewStd(k, r.heap, sys.Stderr)
	return r
}

// Kernel returns the kernel the runtime was built on.
func (r *Runtime) Kernel() sys.Kernel { return r.k }

// Heap returns the runtime heap.
func (r *Runtime) Heap() *heap.Heap { return r.heap }

// Malloc allocates n bytes.
func (r *Runtime) Malloc(n int) (heap.Ptr, error) { return r.heap.Alloc(n) }

// Free releases p. Free of heap.Null is a no-op.
func (r *Runtime) Free(p heap.Ptr) error { return r.heap.Free(p) }

// Realloc resizes p to n bytes. See heap.Heap.Realloc.
func (r *Runtime) Realloc(p heap.Ptr, n int) (heap.Ptr, error) { return r.heap.Realloc(p, n) }

// Calloc allocates count*size zeroed bytes.
func (r *Runtime) Calloc(count, size int) (heap.Ptr, error) { return r.heap.Calloc(count, size) }

// Fopen opens path with an fopen style mode, "r" or "w".
func (r *Runtime) Fopen(path, mode string) (*stdio.Stream, error) {
	s, err := stdio.Open(r.k, r.heap, path, mode)
	if err != nil {
		r.log.Debug().Err(err).Str("path", path).Str("mode", mode).Msg("open failed")
		return nil, err
	}
	return s, nil
}

// Fclose closes s without flushing it.
func (r *Runtime) Fclose(s *stdio.Stream) error {
	return s.Close()
}

// Freopen closes s, if any, and opens path in its place. A failure to close
// s does not prevent the open.
func (r *Runtime) Freopen(path, mode string, s *stdio.Stream) (*stdio.Stream, error) {
	if s != nil {
		if err := s.Close(); err != nil {
			r.log.Debug().Err(err).Int("fd", s.Fd()).Msg("freopen: close failed")
		}
	}
	return r.Fopen(path, mode)
}

// Printf renders format into the scratch buffer and writes the result to
// stdout in one transfer. If rendering fails, the literal
// "<PRINTF ERROR>\n" is written instead and the render error is returned
// along with the bytes written.
func (r *Runtime) Printf(format string, args ...interface{}) (int, error) {
	return r.Vprintf(format, xfmt.Args(args...))
}

// Vprintf is Printf over an ArgList.
func (r *Runtime) Vprintf(format string, args *xfmt.ArgList) (int, error) {
	buf := mcache.Malloc(r.scratch)
	defer mcache.Free(buf)

	n, rerr := xfmt.Render(buf, format, args)
	if rerr != nil {
		r.log.Debug().Err(rerr).Str("format", format).Msg("printf render failed")
		var err error
		if n, err = xfmt.Render(buf, printfErrorMarker, nil); err != nil {
			return 0, rerr
		}
	}
	w, err := r.Stdout.WriteElems(buf[:n], 1, n)
	if err != nil {
		return w, err
	}
	return w, rerr
}

// Fprintf renders format into a transient 1024 byte buffer and writes the
// result through s. It returns the bytes written. A rendering that does not
// fit fails with fault.Boundary and writes nothing.
func (r *Runtime) Fprintf(s *stdio.Stream, format string, args ...interface{}) (int, error) {
	return r.Vfprintf(s, format, xfmt.Args(args...))
}

// Vfprintf is Fprintf over an ArgList.
func (r *Runtime) Vfprintf(s *stdio.Stream, format string, args *xfmt.ArgList) (int, error) {
	const op = "libc.Vfprintf"
	if s == nil {
		return 0, fault.New(fault.InvalidArgument, op, "nil stream")
	}
	buf := mcache.Malloc(streamFormatSize)
	defer mcache.Free(buf)

	n, err := xfmt.Vsnprintf(buf, format, args)
	if err != nil {
		return 0, err
	}
	if n >= len(buf) {
		return 0, fault.Errorf(fault.Boundary, op, "rendering needs %d bytes, capacity is %d", n+1, len(buf))
	}
	w, err := s.WriteElems(buf[:n], 1, n)
	if err != nil {
		return w, err
	}
	if w < n {
		return w, fault.Wrap(fault.Transfer, op, io.ErrShortWrite)
	}
	return w, nil
}

// Snprintf renders format into dst, truncating as needed. It returns the
// length of the full rendering. See xfmt.Snprintf.
func (r *Runtime) Snprintf(dst []byte, format string, args ...interface{}) (int, error) {
	return xfmt.Snprintf(dst, format, args...)
}

// Vsnprintf is Snprintf over an ArgList.
func (r *Runtime) Vsnprintf(dst []byte, format string, args *xfmt.ArgList) (int, error) {
	return xfmt.Vsnprintf(dst, format, args)
}

// Appendf renders format onto dst without a capacity limit.
func (r *Runtime) Appendf(dst []byte, format string, args ...interface{}) ([]byte, error) {
	return xfmt.Append(dst, format, args...)
}

// Puts writes str and a newline to stdout.
func (r *Runtime) Puts(str string) error {
	if _, err := r.Stdout.PutString(str); err != nil {
		return err
	}
	_, err := r.Stdout.PutString("\n")
	return err
}

// Putchar writes c to stdout.
func (r *Runtime) Putchar(c byte) (byte, error) {
	if _, err := r.Printf("%c", c); err != nil {
		return 0, err
	}
	return c, nil
}

// Getchar reads one byte from stdin.
func (r *Runtime) Getchar() (byte, error) {
	return r.Stdin.Getc()
}

// Exit terminates the process through the kernel. Pending stream output is
// not flushed.
func (r *Runtime) Exit(status int) {
	st := r.heap.Stats()
	r.log.Debug().Int("status", status).Int("live", st.Live).Int("reserved", st.Reserved).Msg("exit")
	r.k.Exit(status)
}
