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

package memsys

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/rtlib/sys"
)

func TestFileRoundTrip(t *testing.T) {
	k := New(nil)

	fd, err := k.Open("a.txt", sys.OpenCreate)
	require.NoError(t, err)
	n, err := k.Write(fd, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.NoError(t, k.Close(fd))

	fd, err = k.Open("a.txt", sys.OpenNone)
	require.NoError(t, err)
	st, err := k.Stat(fd)
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Size)
	assert.False(t, st.Unbounded)

	buf := make([]byte, 8)
	n, err = k.Read(fd, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
	n, err = k.Read(fd, buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	require.NoError(t, k.Close(fd))
	assert.Equal(t, 0, k.OpenFds())
}

func TestOpenMissing(t *testing.T) {
	k := New(nil)
	_, err := k.Open("missing", sys.OpenNone)
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	_, err = k.Open("", sys.OpenCreate)
	assert.True(t, errors.Is(err, fs.ErrInvalid))
}

func TestCreateTruncates(t *testing.T) {
	k := New(nil)
	k.PutFile("f", []byte("old content"))
	fd, err := k.Open("f", sys.OpenCreate)
	require.NoError(t, err)
	data, ok := k.File("f")
	require.True(t, ok)
	assert.Empty(t, data)
	require.NoError(t, k.Close(fd))
}

func TestStdChannels(t *testing.T) {
	k := New(nil)
	k.SetStdin([]byte("ab"))

	p := make([]byte, 1)
	n, _ := k.Read(sys.Stdin, p)
	assert.Equal(t, 1, n)
	assert.Equal(t, byte('a'), p[0])

	_, _ = k.Write(sys.Stdout, []byte("out"))
	_, _ = k.Write(sys.Stderr, []byte("err"))
	assert.Equal(t, "out", string(k.Stdout()))
	assert.Equal(t, "err", string(k.Stderr()))

	st, err := k.Stat(sys.Stdin)
	require.NoError(t, err)
	assert.True(t, st.Unbounded)

	_, err = k.Write(42, []byte("x"))
	assert.ErrorIs(t, err, ErrBadFd)
}

func TestSbrk(t *testing.T) {
	k := New(&Option{HeapLimit: 8192})

	r1, err := k.Sbrk(4096)
	require.NoError(t, err)
	assert.Equal(t, baseAddr, r1.Addr)
	assert.Len(t, r1.Mem, 4096)

	r2, err := k.Sbrk(4096)
	require.NoError(t, err)
	assert.Equal(t, r1.Addr+4096, r2.Addr)

	_, err = k.Sbrk(1)
	assert.ErrorIs(t, err, ErrNoMemory)
	_, err = k.Sbrk(0)
	assert.Error(t, err)

	assert.Equal(t, 4, k.Calls(OpSbrk))
	assert.Equal(t, 8192, k.Reserved())
}

func TestFail(t *testing.T) {
	k := New(nil)
	boom := errors.New("boom")
	k.Fail(OpWrite, boom)

	_, err := k.Write(sys.Stdout, []byte("x"))
	assert.ErrorIs(t, err, boom)
	_, err = k.Write(sys.Stdout, []byte("y"))
	assert.NoError(t, err)
	assert.Equal(t, "y", string(k.Stdout()))
	assert.Equal(t, 2, k.Calls(OpWrite))
	assert.Equal(t, "write", OpWrite.String())
}

func TestExit(t *testing.T) {
	k := New(nil)
	exited, _ := k.Exited()
	assert.False(t, exited)
	k.Exit(3)
	exited, status := k.Exited()
	assert.True(t, exited)
	assert.Equal(t, 3, status)
}
