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

package main

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/rtlib/fault"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newCmdMain()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestPrintfArgs(t *testing.T) {
	got := printfArgs([]string{"7", "0x10", "-3", "abc", "18446744073709551615", ""})
	assert.Equal(t, []interface{}{
		int64(7), int64(16), int64(-3), "abc", uint64(math.MaxUint64), "",
	}, got)
}

func TestCmdPrintf(t *testing.T) {
	out, _, err := execute(t, "--sim", "printf", "--", `%05d|%s|%x\n`, "-42", "ok", "255")
	require.NoError(t, err)
	assert.Equal(t, "-0042|ok|ff\n", out)

	out, _, err = execute(t, "--sim", "printf", "%q")
	assert.Equal(t, fault.Malformed, fault.KindOf(err))
	assert.Equal(t, "<PRINTF ERROR>\n", out)

	_, _, err = execute(t, "--sim", "printf")
	assert.Error(t, err)
}

func TestCmdHeap(t *testing.T) {
	out, _, err := execute(t, "--sim", "heap", "--count", "32", "--size", "128")
	require.NoError(t, err)
	assert.Contains(t, out, "allocs=48 frees=48 live=0")

	_, _, err = execute(t, "--sim", "--heap-limit", "4096", "heap", "--count", "100", "--size", "4096")
	assert.Equal(t, fault.Exhausted, fault.KindOf(err))

	_, _, err = execute(t, "--sim", "heap", "--count", "0")
	assert.Error(t, err)
}

func TestCmdCopySim(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src")
	require.NoError(t, os.WriteFile(src, []byte("0123456789"), 0o644))

	_, logs, err := execute(t, "--sim", "copy", "--chunk", "3", src, "/dst")
	require.NoError(t, err)
	assert.Contains(t, logs, "copied")
	assert.Contains(t, logs, "bytes=10")

	_, _, err = execute(t, "--sim", "copy", filepath.Join(t.TempDir(), "missing"), "/dst")
	assert.Error(t, err)
}

func TestCmdCopyHost(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no host kernel")
	}
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	want := bytes.Repeat([]byte("rtlibc "), 1000)
	require.NoError(t, os.WriteFile(src, want, 0o644))

	_, _, err := execute(t, "copy", src, dst)
	require.NoError(t, err)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestConfigPrecedence(t *testing.T) {
	long := "0123456789abcdefgh"

	file := filepath.Join(t.TempDir(), "rtlibc.yaml")
	require.NoError(t, os.WriteFile(file, []byte("scratch-size: 16\nlog-level: warn\n"), 0o644))
	out, _, err := execute(t, "--sim", "--config", file, "printf", long)
	assert.Equal(t, fault.Boundary, fault.KindOf(err))
	assert.Equal(t, "<PRINTF ERROR>\n", out)

	t.Setenv("RTLIBC_SCRATCH_SIZE", "16")
	out, _, err = execute(t, "--sim", "printf", long)
	assert.Equal(t, fault.Boundary, fault.KindOf(err))
	assert.Equal(t, "<PRINTF ERROR>\n", out)

	out, _, err = execute(t, "--sim", "--scratch-size", "64", "printf", long)
	require.NoError(t, err)
	assert.Equal(t, long, out)

	_, _, err = execute(t, "--sim", "--config", filepath.Join(t.TempDir(), "none.yaml"), "printf", "x")
	assert.Error(t, err)

	_, _, err = execute(t, "--sim", "--log-level", "loud", "printf", "x")
	assert.Error(t, err)
}
