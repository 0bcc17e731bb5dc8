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

package xfmt

import (
	"github.com/cloudwego/rtlib/fault"
)

// Render renders format into dst followed by a NUL terminator and returns
// the number of bytes rendered, excluding the terminator.
//
// If the rendering and its terminator do not fit in len(dst), Render fails
// with fault.Boundary. On any failure it returns 0 and dst holds the
// NUL-terminated prefix that fit.
func Render(dst []byte, format string, args *ArgList) (int, error) {
	s := boundedSink(dst)
	err := render(s, format, args)
	s.terminate(dst)
	if err != nil {
		return 0, err
	}
	if len(dst) == 0 || s.overflowed() {
		return 0, fault.Errorf(fault.Boundary, op, "rendering needs %d bytes, capacity is %d", s.total+1, len(dst))
	}
	return s.total, nil
}

// Snprintf renders format into dst, truncating as needed, and NUL-terminates
// it when len(dst) > 0. It returns the length the full rendering would have,
// excluding the terminator, so the output was truncated iff n >= len(dst).
func Snprintf(dst []byte, format string, args ...interface{}) (n int, err error) {
	return Vsnprintf(dst, format, Args(args...))
}

// Vsnprintf is Snprintf over an ArgList.
func Vsnprintf(dst []byte, format string, args *ArgList) (int, error) {
	s := boundedSink(dst)
	err := render(s, format, args)
	s.terminate(dst)
	if err != nil {
		return 0, err
	}
	return s.total, nil
}

// Append renders format onto the end of dst, growing it as needed.
// On failure it returns dst unchanged.
func Append(dst []byte, format string, args ...interface{}) ([]byte, error) {
	return AppendArgs(dst, format, Args(args...))
}

// AppendArgs is Append over an ArgList.
func AppendArgs(dst []byte, format string, args *ArgList) ([]byte, error) {
	s := &sink{buf: dst}
	if err := render(s, format, args); err != nil {
		return dst, err
	}
	return s.buf, nil
}

// Sprintf returns the rendering of format as a string.
func Sprintf(format string, args ...interface{}) (string, error) {
	b, err := Append(nil, format, args...)
	return string(b), err
}
