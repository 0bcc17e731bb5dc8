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

// Package xfmt renders printf style templates into byte buffers.
//
// A directive is
//
//	%[0][width][.precision][l|ll...]verb
//
// with verbs d/i (signed), u (unsigned), x/X/p (hex), c (one byte),
// s (bytes verbatim) and % (literal). Without an l the integer verbs
// truncate their argument to 32 bits; one or more l select 64 bits.
// There are no other flags: '-', '+', ' ' and '#' are unknown verbs.
//
// Numbers are laid out as sign, width padding (counting the sign), precision
// zeros, digits. Zero always renders as "0", even with precision 0.
//
// Every render fails with fault.Malformed on an unknown verb, a missing or
// mistyped argument, or a nil string argument.
package xfmt

import (
	"reflect"
	"unsafe"

	"github.com/cloudwego/rtlib/fault"
)

const op = "xfmt"

// maxWidth bounds width and precision.
const maxWidth = 1 << 20

// ArgList is a cursor over the arguments of a render. Each directive that
// takes an argument consumes the next one.
type ArgList struct {
	args []interface{}
	next int
}

// Args returns an ArgList over args.
func Args(args ...interface{}) *ArgList {
	return &ArgList{args: args}
}

// Remaining returns the number of arguments not consumed yet.
func (l *ArgList) Remaining() int {
	if l == nil {
		return 0
	}
	return len(l.args) - l.next
}

func (l *ArgList) pop() (interface{}, int, bool) {
	if l == nil || l.next >= len(l.args) {
		return nil, 0, false
	}
	i := l.next
	l.next++
	return l.args[i], i, true
}

type lengthClass uint8

const (
	lengthDefault lengthClass = iota
	lengthLong
	lengthLongLong
)

type directive struct {
	zeroFill  bool
	width     int
	precision int // -1 if unspecified
	length    lengthClass
	verb      byte
}

// sink collects rendered bytes. When bounded, bytes past limit are counted
// but not stored.
type sink struct {
	buf     []byte
	bounded bool
	limit   int
	total   int
}

func boundedSink(dst []byte) *sink {
	limit := len(dst) - 1
	if limit < 0 {
		limit = 0
	}
	return &sink{buf: dst[:0], bounded: true, limit: limit}
}

func (s *sink) room() int {
	if !s.bounded {
		return -1
	}
	return s.limit - len(s.buf)
}

func (s *sink) writeByte(c byte) {
	if !s.bounded || len(s.buf) < s.limit {
		s.buf = append(s.buf, c)
	}
	s.total++
}

func (s *sink) write(b []byte) {
	n := len(b)
	if r := s.room(); r >= 0 && n > r {
		n = r
	}
	s.buf = append(s.buf, b[:n]...)
	s.total += len(b)
}

func (s *sink) pad(c byte, count int) {
	if count <= 0 {
		return
	}
	n := count
	if r := s.room(); r >= 0 && n > r {
		n = r
	}
	for i := 0; i < n; i++ {
		s.buf = append(s.buf, c)
	}
	s.total += count
}

// terminate writes a NUL after the stored bytes if dst has room for it.
func (s *sink) terminate(dst []byte) {
	if len(s.buf) < len(dst) {
		dst[len(s.buf)] = 0
	}
}

func (s *sink) overflowed() bool {
	return s.total > len(s.buf)
}

const (
	lowerDigits = "0123456789abcdef"
	upperDigits = "0123456789ABCDEF"
)

func (s *sink) number(d *directive, neg bool, mag uint64, base uint64, digitSet string) {
	// digits are produced least significant first
	var digits [20]byte
	n := 0
	if mag == 0 {
		digits[0] = '0'
		n = 1
	}
	for ; mag > 0; n++ {
		digits[n] = digitSet[mag%base]
		mag /= base
	}

	body := n
	if d.precision > body {
		body = d.precision
	}
	sign := 0
	if neg {
		sign = 1
		s.writeByte('-')
	}
	fill := byte(' ')
	if d.zeroFill {
		fill = '0'
	}
	s.pad(fill, d.width-sign-body)
	s.pad('0', body-n)
	for i := n - 1; i >= 0; i-- {
		s.writeByte(digits[i])
	}
}

func render(s *sink, format string, args *ArgList) error {
	for i := 0; i < len(format); {
		c := format[i]
		i++
		if c != '%' {
			s.writeByte(c)
			continue
		}

		d := directive{precision: -1}
		for ; i < len(format); i++ {
			c = format[i]
			if c == '.' {
				d.precision = 0
			} else if c < '0' || c > '9' {
				break
			} else if d.precision >= 0 {
				d.precision = d.precision*10 + int(c-'0')
			} else if c == '0' && d.width == 0 {
				d.zeroFill = true
			} else {
				d.width = d.width*10 + int(c-'0')
			}
			if d.width > maxWidth || d.precision > maxWidth {
				return fault.Errorf(fault.Malformed, op, "width or precision exceeds %d", maxWidth)
			}
		}
		for ; i < len(format) && format[i] == 'l'; i++ {
			if d.length < lengthLongLong {
				d.length++
			}
		}
		if i >= len(format) {
			return fault.New(fault.Malformed, op, "incomplete directive at end of template")
		}
		d.verb = format[i]
		i++

		if err := s.directive(&d, args); err != nil {
			return err
		}
	}
	return nil
}

func (s *sink) directive(d *directive, args *ArgList) error {
	switch d.verb {
	case '%':
		s.writeByte('%')
		return nil
	case 'd', 'i', 'u', 'x', 'X', 'p', 'c', 's':
	default:
		return fault.Errorf(fault.Malformed, op, "unknown verb %q", d.verb)
	}

	v, idx, ok := args.pop()
	if !ok {
		return fault.Errorf(fault.Malformed, op, "%%%c: missing argument", d.verb)
	}
	switch d.verb {
	case 'd', 'i':
		x, ok := signedArg(v, d.length)
		if !ok {
			return badArg(d.verb, idx, v)
		}
		if x < 0 {
			s.number(d, true, uint64(^x)+1, 10, lowerDigits)
		} else {
			s.number(d, false, uint64(x), 10, lowerDigits)
		}
	case 'u', 'x', 'X':
		x, ok := unsignedArg(v, d.length)
		if !ok {
			return badArg(d.verb, idx, v)
		}
		switch d.verb {
		case 'u':
			s.number(d, false, x, 10, lowerDigits)
		case 'x':
			s.number(d, false, x, 16, lowerDigits)
		default:
			s.number(d, false, x, 16, upperDigits)
		}
	case 'p':
		x, ok := pointerArg(v)
		if !ok {
			return badArg(d.verb, idx, v)
		}
		s.number(d, false, x, 16, lowerDigits)
	case 'c':
		x, ok := unsignedArg(v, lengthLongLong)
		if !ok {
			return badArg(d.verb, idx, v)
		}
		s.writeByte(byte(x))
	case 's':
		b, ok, null := stringArg(v)
		if null {
			return fault.Errorf(fault.Malformed, op, "%%s: argument %d is nil", idx)
		}
		if !ok {
			return badArg(d.verb, idx, v)
		}
		s.write(b)
	}
	return nil
}

func badArg(verb byte, idx int, v interface{}) error {
	return fault.Errorf(fault.Malformed, op, "%%%c: argument %d has type %T", verb, idx, v)
}

func integer(v interface{}) (x uint64, signed bool, ok bool) {
	switch v := v.(type) {
	case int:
		return uint64(v), true, true
	case int64:
		return uint64(v), true, true
	case int32:
		return uint64(v), true, true
	case uint8:
		return uint64(v), false, true
	case uint32:
		return uint64(v), false, true
	case uint64:
		return v, false, true
	case uint:
		return uint64(v), false, true
	case uintptr:
		return uint64(v), false, true
	case nil:
		return 0, false, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return uint64(rv.Int()), true, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint(), false, true
	}
	return 0, false, false
}

func signedArg(v interface{}, l lengthClass) (int64, bool) {
	x, _, ok := integer(v)
	if !ok {
		return 0, false
	}
	if l == lengthDefault {
		return int64(int32(x)), true
	}
	return int64(x), true
}

func unsignedArg(v interface{}, l lengthClass) (uint64, bool) {
	x, _, ok := integer(v)
	if !ok {
		return 0, false
	}
	if l == lengthDefault {
		return uint64(uint32(x)), true
	}
	return x, true
}

func pointerArg(v interface{}) (uint64, bool) {
	switch p := v.(type) {
	case nil:
		return 0, true
	case unsafe.Pointer:
		return uint64(uintptr(p)), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.UnsafePointer, reflect.Map, reflect.Chan, reflect.Func, reflect.Slice:
		return uint64(rv.Pointer()), true
	}
	x, _, ok := integer(v)
	return x, ok
}

// stringArg returns the bytes of a %s argument. null is set for nil
// references.
func stringArg(v interface{}) (b []byte, ok bool, null bool) {
	switch v := v.(type) {
	case nil:
		return nil, false, true
	case string:
		return unsafe.Slice(unsafe.StringData(v), len(v)), true, false
	case []byte:
		if v == nil {
			return nil, false, true
		}
		return v, true, false
	case *string:
		if v == nil {
			return nil, false, true
		}
		return []byte(*v), true, false
	}
	return nil, false, false
}
