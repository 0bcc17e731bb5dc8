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

//go:build linux || darwin || freebsd || netbsd || openbsd

// Package hostsys implements sys.Kernel on the host operating system.
//
// Growth is served by anonymous private mappings, so regions are page aligned
// but not contiguous. Mappings are never returned to the host.
package hostsys

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/cloudwego/rtlib/sys"
)

const createPerm = 0o644

var errBadLength = errors.New("hostsys: non-positive length")

// Kernel forwards every primitive to the host.
type Kernel struct{}

var _ sys.Kernel = Kernel{}

// New returns a host Kernel.
func New() Kernel {
	return Kernel{}
}

func (Kernel) Read(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Read(fd, p)
		if err == unix.EINTR {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, err
	}
}

func (Kernel) Write(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Write(fd, p)
		if err == unix.EINTR {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, err
	}
}

func (Kernel) Open(path string, flags sys.OpenFlag) (int, error) {
	mode := unix.O_RDONLY
	if flags&sys.OpenCreate != 0 {
		mode = unix.O_WRONLY | unix.O_CREAT | unix.O_TRUNC
	}
	fd, err := unix.Open(path, mode|unix.O_CLOEXEC, createPerm)
	if err != nil {
		return -1, err
	}
	return fd, nil
}

func (Kernel) Close(fd int) error {
	return unix.Close(fd)
}

func (Kernel) Stat(fd int) (sys.Stat, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return sys.Stat{}, err
	}
	if uint32(st.Mode)&unix.S_IFMT != unix.S_IFREG {
		return sys.Stat{Unbounded: true}, nil
	}
	return sys.Stat{Size: st.Size}, nil
}

func (Kernel) Sbrk(n int) (sys.Region, error) {
	if n <= 0 {
		return sys.Region{}, errBadLength
	}
	mem, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return sys.Region{}, err
	}
	return sys.Region{Addr: uintptr(unsafe.Pointer(&mem[0])), Mem: mem}, nil
}

func (Kernel) Exit(status int) {
	unix.Exit(status)
}
