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
	"errors"
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/rtlib/fault"
)

type shortInt int16

type handle uintptr

func TestFormatNumbers(t *testing.T) {
	cases := []struct {
		format string
		arg    interface{}
		want   string
	}{
		{"%05d", -42, "-0042"},
		{"%.3d", 7, "007"},
		{"%x", 255, "ff"},
		{"%8.3d", 5, "     005"},
		{"%d", 0, "0"},
		{"%.0d", 0, "0"},
		{"%i", -17, "-17"},
		{"%5d", -42, "-  42"},
		{"%2d", 12345, "12345"},
		{"%06.3d", -5, "-00005"},
		{"%d", math.MinInt32, "-2147483648"},
		{"%d", int64(5000000000), "705032704"},
		{"%ld", int64(5000000000), "5000000000"},
		{"%lld", int64(math.MinInt64), "-9223372036854775808"},
		{"%llld", int64(-1), "-1"},
		{"%u", -1, "4294967295"},
		{"%lu", -1, "18446744073709551615"},
		{"%lu", uint64(math.MaxUint64), "18446744073709551615"},
		{"%X", 0xBEEF, "BEEF"},
		{"%08x", 0xbeef, "0000beef"},
		{"%.6X", 0xab, "0000AB"},
		{"%lx", uint64(0x1122334455667788), "1122334455667788"},
		{"%x", uint64(0x1122334455667788), "55667788"},
		{"%d", shortInt(-3), "-3"},
		{"%u", uint8(200), "200"},
		{"%p", uintptr(0x1000), "1000"},
		{"%p", handle(0xdead), "dead"},
		{"%p", nil, "0"},
		{"%c", 'A', "A"},
		{"%c", byte('z'), "z"},
		{"%5c", 'q', "q"},
	}
	for _, tc := range cases {
		got, err := Sprintf(tc.format, tc.arg)
		if assert.NoError(t, err, tc.format) {
			assert.Equal(t, tc.want, got, "%s %v", tc.format, tc.arg)
		}
	}
}

func TestFormatPointer(t *testing.T) {
	x := 1
	p := unsafe.Pointer(&x)
	got, err := Sprintf("%p", p)
	require.NoError(t, err)
	want, _ := Sprintf("%lx", uint64(uintptr(p)))
	assert.Equal(t, want, got)

	got, err = Sprintf("%p", &x)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFormatStrings(t *testing.T) {
	s := "ptr"
	got, err := Sprintf("[%s|%s|%s|%5s]", "abc", []byte("xy"), &s, "w")
	require.NoError(t, err)
	assert.Equal(t, "[abc|xy|ptr|w]", got)

	got, err = Sprintf("100%% of %s", "it")
	require.NoError(t, err)
	assert.Equal(t, "100% of it", got)

	got, err = Sprintf("no directives")
	require.NoError(t, err)
	assert.Equal(t, "no directives", got)

	got, err = Sprintf("%s", "")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestFormatMalformed(t *testing.T) {
	var nilStr *string
	cases := []struct {
		name   string
		format string
		args   []interface{}
	}{
		{"nil_string", "%s", []interface{}{nil}},
		{"nil_bytes", "%s", []interface{}{[]byte(nil)}},
		{"nil_string_ptr", "%s", []interface{}{nilStr}},
		{"unknown_verb", "%q", []interface{}{1}},
		{"minus_flag", "%-5d", []interface{}{1}},
		{"plus_flag", "%+d", []interface{}{1}},
		{"trailing_percent", "abc%", nil},
		{"trailing_length", "%ll", nil},
		{"missing_arg", "%d %d", []interface{}{1}},
		{"string_for_int", "%d", []interface{}{"x"}},
		{"int_for_string", "%s", []interface{}{5}},
		{"float", "%d", []interface{}{1.5}},
		{"width_too_large", "%2000000d", []interface{}{1}},
		{"precision_too_large", "%.2000000d", []interface{}{1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Sprintf(tc.format, tc.args...)
			require.Error(t, err)
			assert.Equal(t, fault.Malformed, fault.KindOf(err))
			assert.True(t, errors.Is(err, fault.ErrMalformed))
		})
	}
}

func TestRender(t *testing.T) {
	dst := make([]byte, 6)
	n, err := Render(dst, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello\x00", string(dst))

	dst = []byte("XXXXX")
	n, err = Render(dst, "hello", nil)
	assert.Equal(t, 0, n)
	assert.Equal(t, fault.Boundary, fault.KindOf(err))
	assert.Equal(t, "hell\x00", string(dst))

	dst = []byte("XXXXXXXX")
	n, err = Render(dst, "ab%q", nil)
	assert.Equal(t, 0, n)
	assert.Equal(t, fault.Malformed, fault.KindOf(err))
	assert.Equal(t, "ab\x00", string(dst[:3]))

	n, err = Render(nil, "", nil)
	assert.Equal(t, 0, n)
	assert.Equal(t, fault.Boundary, fault.KindOf(err))

	dst = make([]byte, 1)
	n, err = Render(dst, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, byte(0), dst[0])
}

func TestSnprintfTruncation(t *testing.T) {
	dst := []byte("XXXX")
	n, err := Snprintf(dst, "hello %d", 42)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, "hel\x00", string(dst))

	n, err = Snprintf(nil, "hello %d", 42)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	dst = make([]byte, 9)
	n, err = Snprintf(dst, "hello %d", 42)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, "hello 42\x00", string(dst))

	dst = make([]byte, 8)
	n, err = Snprintf(dst, "%1000000d", 1)
	require.NoError(t, err)
	assert.Equal(t, 1000000, n)
	assert.Equal(t, "       \x00", string(dst))

	_, err = Snprintf(dst, "%s", nil)
	assert.Equal(t, fault.Malformed, fault.KindOf(err))
}

func TestSnprintfKeepsSpareCapacity(t *testing.T) {
	backing := []byte("0123456789")
	dst := backing[:4]
	n, err := Snprintf(dst, "abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, "abc\x00456789", string(backing))
}

func TestArgListCursor(t *testing.T) {
	args := Args(1, 2, 3)
	assert.Equal(t, 3, args.Remaining())

	dst := make([]byte, 16)
	n, err := Vsnprintf(dst, "%d", args)
	require.NoError(t, err)
	assert.Equal(t, "1", string(dst[:n]))
	assert.Equal(t, 2, args.Remaining())

	b, err := AppendArgs(nil, "%d,%d", args)
	require.NoError(t, err)
	assert.Equal(t, "2,3", string(b))
	assert.Equal(t, 0, args.Remaining())

	var none *ArgList
	assert.Equal(t, 0, none.Remaining())
	_, err = AppendArgs(nil, "%d", none)
	assert.Equal(t, fault.Malformed, fault.KindOf(err))
}

func TestAppend(t *testing.T) {
	b, err := Append([]byte("x="), "%d", 3)
	require.NoError(t, err)
	assert.Equal(t, "x=3", string(b))

	orig := []byte("keep")
	b, err = Append(orig, "%d%q", 1)
	assert.Error(t, err)
	assert.Equal(t, "keep", string(b))
}
