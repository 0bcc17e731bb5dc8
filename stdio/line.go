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

package stdio

import (
	"io"

	"github.com/cloudwego/rtlib/fault"
)

var (
	_ io.Reader = &Stream{}
	_ io.Writer = &Stream{}
	_ io.Seeker = &Stream{}
)

// Getc reads one byte.
func (s *Stream) Getc() (byte, error) {
	var c [1]byte
	n, err := s.ReadElems(c[:], 1, 1)
	if n == 1 {
		return c[0], nil
	}
	return 0, err
}

// ReadLine reads bytes one at a time into dst until it has stored a '\n' or
// filled dst, and returns the number of bytes stored. Bytes stored before an
// early end are kept; the error is reported only if nothing was stored.
func (s *Stream) ReadLine(dst []byte) (int, error) {
	if len(dst) == 0 {
		return 0, fault.New(fault.InvalidArgument, "stdio.ReadLine", "empty destination")
	}
	i := 0
	for i < len(dst) {
		c, err := s.Getc()
		if err != nil {
			if i == 0 {
				return 0, err
			}
			break
		}
		dst[i] = c
		i++
		if c == '\n' {
			break
		}
	}
	return i, nil
}

// PutString writes str through WriteElems and returns the bytes accepted.
func (s *Stream) PutString(str string) (int, error) {
	return s.WriteElems([]byte(str), 1, len(str))
}

// Read implements io.Reader. The end of the content is reported as io.EOF.
func (s *Stream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := s.ReadElems(p, 1, len(p))
	if fault.KindOf(err) == fault.EndOfData {
		if n == 0 {
			return 0, io.EOF
		}
		return n, nil
	}
	return n, err
}

// Write implements io.Writer.
func (s *Stream) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return s.WriteElems(p, 1, len(p))
}
