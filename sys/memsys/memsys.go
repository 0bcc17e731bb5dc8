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

// Package memsys is an in-memory sys.Kernel.
//
// Files live in a map, the std channels are byte buffers, and Sbrk hands out
// fresh slices at increasing addresses. Every primitive is counted and can be
// made to fail once, which is what the heap and stream tests rely on.
// A Kernel is not safe for concurrent use.
package memsys

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/bytedance/gopkg/lang/dirtmake"

	"github.com/cloudwego/rtlib/sys"
)

// Op names a raw primitive for counting and fault injection.
type Op int

const (
	OpRead Op = iota
	OpWrite
	OpOpen
	OpClose
	OpStat
	OpSbrk
	numOps
)

var opNames = [numOps]string{"read", "write", "open", "close", "stat", "sbrk"}

func (op Op) String() string {
	if op >= 0 && op < numOps {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// baseAddr is where the first Sbrk region starts. Any non-zero, page aligned
// value works; it only has to keep 0 free for the null pointer.
const baseAddr uintptr = 0x10000

var (
	ErrNoMemory  = errors.New("memsys: address space limit reached")
	ErrBadFd     = errors.New("memsys: bad file descriptor")
	errBadLength = errors.New("memsys: non-positive length")
)

// Option configures a Kernel.
type Option struct {
	// HeapLimit caps the total bytes Sbrk may hand out. 0 means no limit.
	HeapLimit int
}

// DefaultOption returns the default values of Option.
func DefaultOption() *Option {
	return &Option{}
}

type file struct {
	data []byte
}

type handle struct {
	f   *file
	off int
}

// Kernel implements sys.Kernel in memory.
type Kernel struct {
	files  map[string]*file
	fds    map[int]*handle
	nextFd int

	stdin    []byte
	stdinOff int
	stdout   []byte
	stderr   []byte

	brk      uintptr
	reserved int
	limit    int

	calls  [numOps]int
	faults [numOps]error

	exited     bool
	exitStatus int
}

var _ sys.Kernel = &Kernel{}

// New returns an empty Kernel. opt may be nil.
func New(opt *Option) *Kernel {
	if opt == nil {
		opt = DefaultOption()
	}
	return &Kernel{
		files:  make(map[string]*file),
		fds:    make(map[int]*handle),
		nextFd: sys.Stderr + 1,
		brk:    baseAddr,
		limit:  opt.HeapLimit,
	}
}

// Fail makes the next call of op return err.
func (k *Kernel) Fail(op Op, err error) {
	k.faults[op] = err
}

func (k *Kernel) enter(op Op) error {
	k.calls[op]++
	if err := k.faults[op]; err != nil {
		k.faults[op] = nil
		return err
	}
	return nil
}

// Calls returns how many times op has been invoked.
func (k *Kernel) Calls(op Op) int {
	return k.calls[op]
}

// Reserved returns the total bytes handed out by Sbrk.
func (k *Kernel) Reserved() int {
	return k.reserved
}

// SetStdin replaces the content served on fd 0.
func (k *Kernel) SetStdin(b []byte) {
	k.stdin = append(k.stdin[:0], b...)
	k.stdinOff = 0
}

// Stdout returns everything written to fd 1 so far.
func (k *Kernel) Stdout() []byte { return k.stdout }

// Stderr returns everything written to fd 2 so far.
func (k *Kernel) Stderr() []byte { return k.stderr }

// PutFile creates or replaces the file at path.
func (k *Kernel) PutFile(path string, b []byte) {
	k.files[path] = &file{data: append([]byte(nil), b...)}
}

// File returns the content of the file at path.
func (k *Kernel) File(path string) ([]byte, bool) {
	f, ok := k.files[path]
	if !ok {
		return nil, false
	}
	return f.data, true
}

// OpenFds returns the number of descriptors opened and not yet closed.
func (k *Kernel) OpenFds() int {
	return len(k.fds)
}

// Exited reports whether Exit was called and with which status.
func (k *Kernel) Exited() (bool, int) {
	return k.exited, k.exitStatus
}

func (k *Kernel) Read(fd int, p []byte) (int, error) {
	if err := k.enter(OpRead); err != nil {
		return 0, err
	}
	if fd == sys.Stdin {
		n := copy(p, k.stdin[k.stdinOff:])
		k.stdinOff += n
		return n, nil
	}
	h, ok := k.fds[fd]
	if !ok {
		return 0, ErrBadFd
	}
	if h.off >= len(h.f.data) {
		return 0, nil
	}
	n := copy(p, h.f.data[h.off:])
	h.off += n
	return n, nil
}

func (k *Kernel) Write(fd int, p []byte) (int, error) {
	if err := k.enter(OpWrite); err != nil {
		return 0, err
	}
	switch fd {
	case sys.Stdout:
		k.stdout = append(k.stdout, p...)
		return len(p), nil
	case sys.Stderr:
		k.stderr = append(k.stderr, p...)
		return len(p), nil
	}
	h, ok := k.fds[fd]
	if !ok {
		return 0, ErrBadFd
	}
	end := h.off + len(p)
	if end > len(h.f.data) {
		if end > cap(h.f.data) {
			nb := make([]byte, end, end*2)
			copy(nb, h.f.data)
			h.f.data = nb
		} else {
			h.f.data = h.f.data[:end]
		}
	}
	copy(h.f.data[h.off:], p)
	h.off = end
	return len(p), nil
}

func (k *Kernel) Open(path string, flags sys.OpenFlag) (int, error) {
	if err := k.enter(OpOpen); err != nil {
		return -1, err
	}
	if path == "" {
		return -1, &fs.PathError{Op: "open", Path: path, Err: fs.ErrInvalid}
	}
	f, ok := k.files[path]
	if flags&sys.OpenCreate != 0 {
		if !ok {
			f = &file{}
			k.files[path] = f
		}
		f.data = f.data[:0]
	} else if !ok {
		return -1, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	fd := k.nextFd
	k.nextFd++
	k.fds[fd] = &handle{f: f}
	return fd, nil
}

func (k *Kernel) Close(fd int) error {
	if err := k.enter(OpClose); err != nil {
		return err
	}
	if _, ok := k.fds[fd]; !ok {
		return ErrBadFd
	}
	delete(k.fds, fd)
	return nil
}

func (k *Kernel) Stat(fd int) (sys.Stat, error) {
	if err := k.enter(OpStat); err != nil {
		return sys.Stat{}, err
	}
	switch fd {
	case sys.Stdin, sys.Stdout, sys.Stderr:
		return sys.Stat{Unbounded: true}, nil
	}
	h, ok := k.fds[fd]
	if !ok {
		return sys.Stat{}, ErrBadFd
	}
	return sys.Stat{Size: int64(len(h.f.data))}, nil
}

// Sbrk returns n fresh bytes directly above the previous region.
// The bytes are not zeroed.
func (k *Kernel) Sbrk(n int) (sys.Region, error) {
	if err := k.enter(OpSbrk); err != nil {
		return sys.Region{}, err
	}
	if n <= 0 {
		return sys.Region{}, errBadLength
	}
	if k.limit > 0 && k.reserved+n > k.limit {
		return sys.Region{}, ErrNoMemory
	}
	r := sys.Region{Addr: k.brk, Mem: dirtmake.Bytes(n, n)}
	k.brk += uintptr(n)
	k.reserved += n
	return r, nil
}

// Exit records status. It returns to the caller.
func (k *Kernel) Exit(status int) {
	k.exited = true
	k.exitStatus = status
}
