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

// Package stdio implements buffered streams over sys.Kernel descriptors.
//
// A Stream opened for reading pulls the whole backing content into a heap
// buffer on the first read and serves every later read from it. A Stream
// opened for writing accumulates bytes in a heap buffer until Flush, which
// hands them to the kernel in one transfer. Close does not flush.
//
// The three std streams bypass the buffer: stdin reads go straight to the
// kernel and stdout/stderr writes are transferred immediately.
//
// Streams are not safe for concurrent use.
package stdio

import (
	"io"
	"math"

	"github.com/cloudwego/rtlib/fault"
	"github.com/cloudwego/rtlib/heap"
	"github.com/cloudwego/rtlib/sys"
)

// Mode is the direction a stream was opened for.
type Mode uint8

const (
	ModeRead Mode = iota
	ModeWrite
)

func (m Mode) String() string {
	if m == ModeWrite {
		return "w"
	}
	return "r"
}

// ParseMode maps an fopen style mode string to a Mode.
func ParseMode(mode string) (Mode, error) {
	switch mode {
	case "r", "rb":
		return ModeRead, nil
	case "w", "wb":
		return ModeWrite, nil
	}
	return ModeRead, fault.Errorf(fault.InvalidArgument, "stdio.Open", "unsupported mode %q", mode)
}

// Seek origins, the same values as io.SeekStart, io.SeekCurrent and io.SeekEnd.
const (
	SeekStart   = io.SeekStart
	SeekCurrent = io.SeekCurrent
	SeekEnd     = io.SeekEnd
)

const (
	flagEOF uint8 = 1 << iota
	flagErr
)

// Stream is a buffered channel over one kernel descriptor.
type Stream struct {
	k  sys.Kernel
	h  *heap.Heap
	fd int

	mode Mode
	size int64 // backing size fetched at open, 0 for unbounded channels

	interactive bool // reads go straight to the kernel
	passthrough bool // writes go straight to the kernel
	std         bool
	closed      bool

	// buf holds the whole content in read mode, the pending bytes in write mode.
	buf    heap.Ptr
	filled int
	loaded bool

	pos   int64
	flags uint8
}

// Open opens path and fetches its size. mode is "r" or "w"; "w" creates or
// truncates the path.
//
// If the size query fails, the descriptor is closed again.
func Open(k sys.Kernel, h *heap.Heap, path string, mode string) (*Stream, error) {
	const op = "stdio.Open"
	m, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}
	flags := sys.OpenNone
	if m == ModeWrite {
		flags = sys.OpenCreate
	}
	fd, err := k.Open(path, flags)
	if err != nil {
		return nil, fault.Wrap(fault.Transfer, op, err)
	}
	st, err := k.Stat(fd)
	if err != nil {
		_ = k.Close(fd)
		return nil, fault.Wrap(fault.Transfer, op, err)
	}
	return &Stream{
		k:           k,
		h:           h,
		fd:          fd,
		mode:        m,
		size:        st.Size,
		interactive: st.Unbounded,
	}, nil
}

// NewStd returns the process-wide stream for sys.Stdin, sys.Stdout or
// sys.Stderr. Std streams cannot be closed.
func NewStd(k sys.Kernel, h *heap.Heap, fd int) *Stream {
	s := &Stream{k: k, h: h, fd: fd, std: true}
	if fd == sys.Stdin {
		s.mode = ModeRead
		s.interactive = true
	} else {
		s.mode = ModeWrite
		s.passthrough = true
	}
	return s
}

func (s *Stream) check(op string, want Mode) error {
	if s == nil {
		return fault.New(fault.InvalidArgument, op, "nil stream")
	}
	if s.closed {
		return fault.New(fault.InvalidArgument, op, "stream closed")
	}
	if s.mode != want {
		return fault.Errorf(fault.InvalidArgument, op, "stream opened with mode %q", s.mode.String())
	}
	return nil
}

func transferLen(op string, size, count, have int) (int, error) {
	if count > math.MaxInt/size {
		return 0, fault.Errorf(fault.InvalidArgument, op, "size %d x %d overflows", size, count)
	}
	n := size * count
	if n > have {
		return 0, fault.Errorf(fault.InvalidArgument, op, "buffer holds %d bytes, need %d", have, n)
	}
	return n, nil
}

// ReadElems reads up to count elements of size bytes into dst and returns the
// number of whole elements transferred.
//
// A zero size or count is a no-op. When the content runs out before count
// elements, the end-of-data flag is set and a fault.EndOfData error is
// returned with the short count. A failed kernel read sets the error flag and
// returns 0 with a fault.Transfer error.
//
// On interactive streams each call is one kernel read. If it returns a partial
// trailing element, those bytes are left in dst past the reported count and
// are not delivered again; use a size of 1 to receive every byte.
func (s *Stream) ReadElems(dst []byte, size, count int) (int, error) {
	const op = "stdio.Read"
	if size <= 0 || count <= 0 {
		if s == nil {
			return 0, fault.New(fault.InvalidArgument, op, "nil stream")
		}
		return 0, nil
	}
	if err := s.check(op, ModeRead); err != nil {
		return 0, err
	}
	want, err := transferLen(op, size, count, len(dst))
	if err != nil {
		return 0, err
	}

	if s.interactive {
		n, err := s.k.Read(s.fd, dst[:want])
		if err != nil {
			s.flags |= flagErr
			return 0, fault.Wrap(fault.Transfer, op, err)
		}
		if n == 0 {
			s.flags |= flagEOF
			return 0, fault.New(fault.EndOfData, op, "channel exhausted")
		}
		return n / size, nil
	}

	if !s.loaded {
		if err := s.load(op); err != nil {
			return 0, err
		}
	}
	n := int64(s.filled) - s.pos
	if n < 0 {
		n = 0
	}
	if n > int64(want) {
		n = int64(want)
	}
	if n > 0 {
		copy(dst, s.h.Bytes(s.buf, s.filled)[s.pos:s.pos+n])
		s.pos += n
	}
	if n < int64(want) {
		s.flags |= flagEOF
		return int(n) / size, fault.Errorf(fault.EndOfData, op, "%d of %d bytes available", n, want)
	}
	return count, nil
}

// load pulls the whole backing content in one kernel read.
func (s *Stream) load(op string) error {
	if s.size <= 0 {
		s.loaded = true
		return nil
	}
	if s.size > int64(heap.MaxAlloc) {
		return fault.Errorf(fault.Exhausted, op, "content of %d bytes", s.size)
	}
	p, err := s.h.Alloc(int(s.size))
	if err != nil {
		return err
	}
	n, err := s.k.Read(s.fd, s.h.Bytes(p, int(s.size)))
	if err != nil {
		_ = s.h.Free(p)
		s.flags |= flagErr
		return fault.Wrap(fault.Transfer, op, err)
	}
	s.buf = p
	s.filled = n
	s.loaded = true
	return nil
}

// WriteElems writes count elements of size bytes from src and returns the
// number of elements accepted.
//
// On std output streams accepted means transferred. On file streams the bytes
// are appended to the pending buffer, which is resized on every call; nothing
// reaches the kernel until Flush. If the buffer cannot grow, the pending bytes
// are kept and a fault.Exhausted error is returned.
func (s *Stream) WriteElems(src []byte, size, count int) (int, error) {
	const op = "stdio.Write"
	if size <= 0 || count <= 0 {
		if s == nil {
			return 0, fault.New(fault.InvalidArgument, op, "nil stream")
		}
		return 0, nil
	}
	if err := s.check(op, ModeWrite); err != nil {
		return 0, err
	}
	n, err := transferLen(op, size, count, len(src))
	if err != nil {
		return 0, err
	}

	if s.passthrough {
		w, err := s.k.Write(s.fd, src[:n])
		if err != nil {
			s.flags |= flagErr
			return 0, fault.Wrap(fault.Transfer, op, err)
		}
		if w < n {
			s.flags |= flagErr
			return w / size, fault.Wrap(fault.Transfer, op, io.ErrShortWrite)
		}
		return count, nil
	}

	end := int(s.pos) + n
	var p heap.Ptr
	if s.buf == heap.Null {
		p, err = s.h.Alloc(n)
	} else {
		p, err = s.h.Realloc(s.buf, end)
	}
	if err != nil {
		return 0, err
	}
	s.buf = p
	copy(s.h.Bytes(p, end)[s.pos:], src[:n])
	s.pos = int64(end)
	return count, nil
}

// Flush transfers the pending bytes in one kernel write, then releases the
// buffer and resets the position to 0. It is a no-op when nothing is pending.
//
// On failure the error flag is set and the pending bytes are kept.
func (s *Stream) Flush() error {
	const op = "stdio.Flush"
	if s == nil {
		return fault.New(fault.InvalidArgument, op, "nil stream")
	}
	if s.closed {
		return fault.New(fault.InvalidArgument, op, "stream closed")
	}
	if s.mode != ModeWrite || s.passthrough || s.buf == heap.Null || s.pos == 0 {
		return nil
	}
	pending := int(s.pos)
	n, err := s.k.Write(s.fd, s.h.Bytes(s.buf, pending))
	if err != nil {
		s.flags |= flagErr
		return fault.Wrap(fault.Transfer, op, err)
	}
	if n < pending {
		s.flags |= flagErr
		return fault.Wrap(fault.Transfer, op, io.ErrShortWrite)
	}
	_ = s.h.Free(s.buf)
	s.buf = heap.Null
	s.pos = 0
	return nil
}

// Close releases the descriptor and the buffer. Pending write bytes are
// dropped; call Flush first. If the kernel close fails the stream stays open.
func (s *Stream) Close() error {
	const op = "stdio.Close"
	if s == nil {
		return fault.New(fault.InvalidArgument, op, "nil stream")
	}
	if s.std {
		return fault.Errorf(fault.InvalidArgument, op, "fd %d is process-wide", s.fd)
	}
	if s.closed {
		return fault.New(fault.InvalidArgument, op, "stream closed")
	}
	if err := s.k.Close(s.fd); err != nil {
		return fault.Wrap(fault.Transfer, op, err)
	}
	_ = s.h.Free(s.buf)
	s.buf = heap.Null
	s.filled = 0
	s.closed = true
	return nil
}

// Seek moves the read position to offset relative to whence and returns the
// new position. The target must lie in [0, size]; otherwise fault.Boundary is
// returned along with the unchanged position. The end-of-data flag is cleared
// in every case.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	const op = "stdio.Seek"
	if s == nil {
		return -1, fault.New(fault.InvalidArgument, op, "nil stream")
	}
	s.flags &^= flagEOF
	if s.closed {
		return s.pos, fault.New(fault.InvalidArgument, op, "stream closed")
	}
	if s.mode != ModeRead {
		return s.pos, fault.New(fault.InvalidArgument, op, "write streams are not seekable")
	}
	var base int64
	switch whence {
	case SeekStart:
	case SeekCurrent:
		base = s.pos
	case SeekEnd:
		base = s.size
	default:
		return s.pos, fault.Errorf(fault.InvalidArgument, op, "whence %d", whence)
	}
	if offset < -base || offset > s.size-base {
		return s.pos, fault.Errorf(fault.Boundary, op, "offset %d from %d outside [0, %d]", offset, base, s.size)
	}
	s.pos = base + offset
	return s.pos, nil
}

// Tell returns the current position, or -1 for a nil stream.
// In write mode it is the number of pending bytes.
func (s *Stream) Tell() int64 {
	if s == nil {
		return -1
	}
	return s.pos
}

// AtEOF reports whether the end-of-data flag is set.
func (s *Stream) AtEOF() bool {
	return s != nil && s.flags&flagEOF != 0
}

// HasError reports whether the error flag is set.
func (s *Stream) HasError() bool {
	return s != nil && s.flags&flagErr != 0
}

// ClearErr resets both status flags.
func (s *Stream) ClearErr() {
	if s != nil {
		s.flags = 0
	}
}

// Fd returns the kernel descriptor, or -1 for a nil stream.
func (s *Stream) Fd() int {
	if s == nil {
		return -1
	}
	return s.fd
}

// Size returns the backing size fetched at open, or 0 for a nil stream.
func (s *Stream) Size() int64 {
	if s == nil {
		return 0
	}
	return s.size
}

// Mode returns the direction of the stream. A nil stream reports ModeRead.
func (s *Stream) Mode() Mode {
	if s == nil {
		return ModeRead
	}
	return s.mode
}

// Pending returns the number of buffered bytes not yet flushed.
func (s *Stream) Pending() int {
	if s == nil || s.mode != ModeWrite || s.passthrough {
		return 0
	}
	return int(s.pos)
}
