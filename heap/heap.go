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

// Package heap implements a first-fit allocator on top of sys.Breaker.
//
// Memory is handed out as Ptr values, addresses inside regions obtained from
// Sbrk. Each span starts with a HeaderSize header holding the span size and a
// state magic, followed by the payload the Ptr points at:
//
//	[8 bytes size][4 bytes magic][4 bytes reserved][payload ...]
//
// Free spans are kept in an insertion-ordered list; released spans and split
// remainders are pushed at its head. Adjacent free spans are never coalesced.
//
// A Heap is not safe for concurrent use.
package heap

import (
	"encoding/binary"
	"sort"

	"github.com/rs/zerolog"

	"github.com/cloudwego/rtlib/fault"
	"github.com/cloudwego/rtlib/sys"
)

const (
	// Align is the alignment of every span and payload.
	Align = 8

	// HeaderSize is the size of the header placed before each payload.
	HeaderSize = 16

	// DefaultPageSize is the default growth granularity.
	DefaultPageSize = 4096

	// MaxAlloc is the largest request Alloc accepts.
	MaxAlloc = int(^uint(0)>>2) - HeaderSize

	allocMagic uint32 = 0xA110CA7E
	freedMagic uint32 = 0xF4EEB10C
)

// Ptr is the address of a payload. The zero value is the null pointer.
type Ptr uintptr

// Null is the null pointer.
const Null Ptr = 0

// Option configures a Heap.
type Option struct {
	// PageSize is the growth granularity. It must be a positive multiple of Align.
	PageSize int

	// Logger receives growth and invalid-release events. nil disables logging.
	Logger *zerolog.Logger
}

// DefaultOption returns the default values of Option.
func DefaultOption() *Option {
	return &Option{PageSize: DefaultPageSize}
}

// Stats is a snapshot of the heap state.
type Stats struct {
	Grows     int // successful Sbrk calls
	Reserved  int // bytes obtained from Sbrk
	Allocs    int // successful allocations, including those made by Realloc and Calloc
	Frees     int // successful releases
	Live      int // allocated spans not yet released
	FreeSpans int // length of the free list
	FreeBytes int // sum of free span sizes, headers included
	LiveBytes int // Reserved - FreeBytes
}

// Span describes a free span, header included.
type Span struct {
	Addr uintptr
	Size int
}

type region struct {
	addr uintptr
	mem  []byte
}

type freeBlock struct {
	addr uintptr
	size int
	next *freeBlock
}

// Heap is a first-fit allocator.
type Heap struct {
	brk      sys.Breaker
	pageSize int
	log      zerolog.Logger

	// regions is sorted by addr.
	regions []region
	free    *freeBlock

	grows    int
	reserved int
	allocs   int
	frees    int
}

// New returns a Heap growing through brk. opt may be nil.
func New(brk sys.Breaker, opt *Option) *Heap {
	if opt == nil {
		opt = DefaultOption()
	}
	pageSize := opt.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	pageSize = alignUp(pageSize, Align)
	h := &Heap{brk: brk, pageSize: pageSize, log: zerolog.Nop()}
	if opt.Logger != nil {
		h.log = opt.Logger.With().Str("component", "heap").Logger()
	}
	return h
}

func alignUp(n, a int) int {
	return (n + a - 1) / a * a
}

// spanSize returns the header-inclusive, aligned size serving n payload bytes.
func spanSize(n int) int {
	return alignUp(n+HeaderSize, Align)
}

// Alloc returns a pointer to at least n usable bytes. The bytes are not zeroed.
//
// It fails with fault.InvalidArgument if n <= 0, and with fault.Exhausted if
// the backing region cannot grow.
func (h *Heap) Alloc(n int) (Ptr, error) {
	if n <= 0 {
		return Null, fault.Errorf(fault.InvalidArgument, "heap.Alloc", "size %d", n)
	}
	if n > MaxAlloc {
		return Null, fault.Errorf(fault.Exhausted, "heap.Alloc", "size %d exceeds %d", n, MaxAlloc)
	}
	need := spanSize(n)

	prev := &h.free
	for b := h.free; b != nil; b = b.next {
		if b.size >= need {
			*prev = b.next
			h.split(b, need)
			return h.take(b), nil
		}
		prev = &b.next
	}

	b, err := h.grow(need)
	if err != nil {
		return Null, err
	}
	h.split(b, need)
	return h.take(b), nil
}

// split keeps the first need bytes in b and pushes the rest onto the free list
// if it can hold a header and a payload.
func (h *Heap) split(b *freeBlock, need int) {
	remain := b.size - need
	if remain <= HeaderSize {
		return
	}
	h.free = &freeBlock{addr: b.addr + uintptr(need), size: remain, next: h.free}
	b.size = need
}

func (h *Heap) take(b *freeBlock) Ptr {
	r := h.locate(b.addr)
	off := int(b.addr - r.addr)
	hdr := r.mem[off : off+HeaderSize]
	binary.LittleEndian.PutUint64(hdr, uint64(b.size))
	binary.LittleEndian.PutUint32(hdr[8:], allocMagic)
	binary.LittleEndian.PutUint32(hdr[12:], 0)
	h.allocs++
	return Ptr(b.addr + HeaderSize)
}

func (h *Heap) grow(need int) (*freeBlock, error) {
	total := alignUp(need, h.pageSize)
	r, err := h.brk.Sbrk(total)
	if err != nil {
		h.log.Debug().Int("size", total).Err(err).Msg("grow failed")
		return nil, fault.Wrap(fault.Exhausted, "heap.Alloc", err)
	}
	if r.Addr == 0 || r.Addr%Align != 0 || len(r.Mem) < total {
		return nil, fault.Errorf(fault.Exhausted, "heap.Alloc", "unusable region at %#x len %d", r.Addr, len(r.Mem))
	}
	i := sort.Search(len(h.regions), func(i int) bool { return h.regions[i].addr > r.Addr })
	h.regions = append(h.regions, region{})
	copy(h.regions[i+1:], h.regions[i:])
	h.regions[i] = region{addr: r.Addr, mem: r.Mem[:total]}

	h.grows++
	h.reserved += total
	h.log.Debug().Uint64("addr", uint64(r.Addr)).Int("size", total).Int("regions", len(h.regions)).Msg("grow")
	return &freeBlock{addr: r.Addr, size: total}, nil
}

// locate returns the region containing addr, or nil.
func (h *Heap) locate(addr uintptr) *region {
	i := sort.Search(len(h.regions), func(i int) bool {
		r := &h.regions[i]
		return r.addr+uintptr(len(r.mem)) > addr
	})
	if i == len(h.regions) || h.regions[i].addr > addr {
		return nil
	}
	return &h.regions[i]
}

// header returns the header bytes and span size of an allocated span.
func (h *Heap) header(p Ptr, op string) ([]byte, int, error) {
	if uintptr(p)%Align != 0 || uintptr(p) < HeaderSize {
		return nil, 0, fault.Errorf(fault.InvalidArgument, op, "misaligned pointer %#x", uintptr(p))
	}
	addr := uintptr(p) - HeaderSize
	r := h.locate(addr)
	if r == nil {
		return nil, 0, fault.Errorf(fault.InvalidArgument, op, "pointer %#x not owned by heap", uintptr(p))
	}
	off := int(addr - r.addr)
	if off+HeaderSize > len(r.mem) {
		return nil, 0, fault.Errorf(fault.InvalidArgument, op, "pointer %#x not owned by heap", uintptr(p))
	}
	hdr := r.mem[off:]
	switch binary.LittleEndian.Uint32(hdr[8:]) {
	case allocMagic:
	case freedMagic:
		return nil, 0, fault.Errorf(fault.InvalidArgument, op, "pointer %#x already released", uintptr(p))
	default:
		return nil, 0, fault.Errorf(fault.InvalidArgument, op, "pointer %#x not allocated by heap", uintptr(p))
	}
	size := int(binary.LittleEndian.Uint64(hdr))
	if size < HeaderSize+Align || size%Align != 0 || size > len(hdr) {
		return nil, 0, fault.Errorf(fault.InvalidArgument, op, "corrupted header at %#x", addr)
	}
	return hdr[:size], size, nil
}

// Free releases the span of p and pushes it at the head of the free list.
// The payload is left as is. Free of Null is a no-op.
//
// Pointers the heap did not return, or already released, are rejected with
// fault.InvalidArgument and leave the heap unchanged.
func (h *Heap) Free(p Ptr) error {
	if p == Null {
		return nil
	}
	span, size, err := h.header(p, "heap.Free")
	if err != nil {
		h.log.Warn().Err(err).Msg("invalid release")
		return err
	}
	binary.LittleEndian.PutUint32(span[8:], freedMagic)
	h.free = &freeBlock{addr: uintptr(p) - HeaderSize, size: size, next: h.free}
	h.frees++
	return nil
}

// Realloc resizes the allocation of p to n bytes.
//
// Null p behaves as Alloc(n). n == 0 releases p and returns Null.
// If the span of p already holds n bytes, p is returned unchanged. Otherwise
// the payload is moved to a new span and p is released; if that allocation
// fails, p is left intact and Null is returned with the error.
func (h *Heap) Realloc(p Ptr, n int) (Ptr, error) {
	if p == Null {
		return h.Alloc(n)
	}
	if n == 0 {
		return Null, h.Free(p)
	}
	if n < 0 {
		return Null, fault.Errorf(fault.InvalidArgument, "heap.Realloc", "size %d", n)
	}
	_, size, err := h.header(p, "heap.Realloc")
	if err != nil {
		return Null, err
	}
	old := size - HeaderSize
	if n <= old {
		return p, nil
	}
	np, err := h.Alloc(n)
	if err != nil {
		return Null, err
	}
	copy(h.Bytes(np, old), h.Bytes(p, old))
	if err := h.Free(p); err != nil {
		return Null, err
	}
	return np, nil
}

// Calloc allocates count*size bytes and zeroes them.
func (h *Heap) Calloc(count, size int) (Ptr, error) {
	if count < 0 || size < 0 || (size > 0 && count > MaxAlloc/size) {
		return Null, fault.Errorf(fault.InvalidArgument, "heap.Calloc", "size %d x %d", count, size)
	}
	n := count * size
	p, err := h.Alloc(n)
	if err != nil {
		return Null, err
	}
	clear(h.Bytes(p, n))
	return p, nil
}

// Usable returns the number of payload bytes available at p,
// or 0 if p is not a live allocation.
func (h *Heap) Usable(p Ptr) int {
	if p == Null {
		return 0
	}
	_, size, err := h.header(p, "heap.Usable")
	if err != nil {
		return 0
	}
	return size - HeaderSize
}

// Bytes returns the first n payload bytes of p. It returns nil if p is not a
// live allocation or n exceeds its usable size.
func (h *Heap) Bytes(p Ptr, n int) []byte {
	if p == Null || n < 0 {
		return nil
	}
	span, size, err := h.header(p, "heap.Bytes")
	if err != nil || n > size-HeaderSize {
		return nil
	}
	return span[HeaderSize : HeaderSize+n : size]
}

// FreeSpans returns the free list in order.
func (h *Heap) FreeSpans() []Span {
	var spans []Span
	for b := h.free; b != nil; b = b.next {
		spans = append(spans, Span{Addr: b.addr, Size: b.size})
	}
	return spans
}

// Stats returns a snapshot of the heap counters.
func (h *Heap) Stats() Stats {
	s := Stats{
		Grows:    h.grows,
		Reserved: h.reserved,
		Allocs:   h.allocs,
		Frees:    h.frees,
		Live:     h.allocs - h.frees,
	}
	for b := h.free; b != nil; b = b.next {
		s.FreeSpans++
		s.FreeBytes += b.size
	}
	s.LiveBytes = s.Reserved - s.FreeBytes
	return s
}
