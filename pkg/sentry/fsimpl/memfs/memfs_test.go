// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memfs

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/filecore/pkg/abi/linux"
	"gvisor.dev/filecore/pkg/errors"
	"gvisor.dev/filecore/pkg/errors/linuxerr"
	"gvisor.dev/filecore/pkg/sentry/fs/journal"
	"gvisor.dev/filecore/pkg/sentry/usermem"
)

func newTestFS(t *testing.T, opts Options) *Filesystem {
	t.Helper()
	fs, err := New(opts, journal.New(10, opts.LogSize))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return fs
}

// op runs fn inside one journal operation.
func op(fs *Filesystem, fn func()) {
	fs.Journal().BeginOp()
	defer fs.Journal().EndOp()
	fn()
}

func create(t *testing.T, fs *Filesystem, name string) *Inode {
	t.Helper()
	var ip *Inode
	var err error
	op(fs, func() { ip, err = fs.Create(context.Background(), name, linux.T_FILE, 0, 0) })
	if err != nil {
		t.Fatalf("Create(%q): %v", name, err)
	}
	return ip
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t, DefaultOptions())
	ip := create(t, fs, "data")

	// Large enough to need the indirect block.
	want := pattern(20000)
	var n int64
	var err error
	op(fs, func() {
		ip.Lock()
		n, err = ip.WriteAt(ctx, usermem.BytesIOSequence(want), 0)
		ip.Unlock()
	})
	if n != int64(len(want)) || err != nil {
		t.Fatalf("WriteAt: got (%d, %v), want (%d, nil)", n, err, len(want))
	}

	got := make([]byte, 25000)
	ip.Lock()
	n, err = ip.ReadAt(ctx, usermem.BytesIOSequence(got), 0)
	size := ip.Size()
	ip.Unlock()
	if n != int64(len(want)) || err != nil {
		t.Fatalf("ReadAt: got (%d, %v), want (%d, nil)", n, err, len(want))
	}
	if !bytes.Equal(got[:n], want) {
		t.Errorf("ReadAt returned different content")
	}
	if size != int64(len(want)) {
		t.Errorf("Size: got %d, want %d", size, len(want))
	}

	// Reading at EOF returns nothing.
	ip.Lock()
	n, err = ip.ReadAt(ctx, usermem.BytesIOSequence(got), size)
	ip.Unlock()
	if n != 0 || err != nil {
		t.Errorf("ReadAt(EOF): got (%d, %v), want (0, nil)", n, err)
	}
}

func TestWriteOutOfSpace(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t, Options{BlockSize: 1024, NBlocks: 60, NInodes: 16, NCache: 10, LogSize: 30})
	ip := create(t, fs, "big")

	var n int64
	var err error
	op(fs, func() {
		ip.Lock()
		n, err = ip.WriteAt(ctx, usermem.BytesIOSequence(pattern(30*1024)), 0)
		ip.Unlock()
	})
	if n != 24*1024 || !linuxerr.Equals(linuxerr.ENOSPC, err) {
		t.Errorf("WriteAt on full disk: got (%d, %v), want (%d, ENOSPC)", n, err, 24*1024)
	}
	if got := fs.FreeBlocks(); got != 0 {
		t.Errorf("FreeBlocks: got %d, want 0", got)
	}
}

func TestWriteTooBig(t *testing.T) {
	fs := newTestFS(t, DefaultOptions())
	ip := create(t, fs, "huge")
	var err error
	op(fs, func() {
		ip.Lock()
		_, err = ip.WriteAt(context.Background(), usermem.BytesIOSequence(make([]byte, fs.MaxFileSize()+1)), 0)
		ip.Unlock()
	})
	if !linuxerr.Equals(linuxerr.EFBIG, err) {
		t.Errorf("WriteAt past MaxFileSize: got %v, want EFBIG", err)
	}
}

func TestUnlinkFreesOnLastRelease(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t, DefaultOptions())
	freeBlocks, freeInodes := fs.FreeBlocks(), fs.FreeInodes()

	ip := create(t, fs, "tmp")
	op(fs, func() {
		ip.Lock()
		ip.WriteAt(ctx, usermem.BytesIOSequence(pattern(5000)), 0)
		ip.Unlock()
	})
	var err error
	op(fs, func() { err = fs.Unlink(ctx, "tmp") })
	if err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if got := fs.FreeBlocks(); got == freeBlocks {
		t.Errorf("blocks freed while a reference is still held")
	}
	if _, err := fs.Lookup(ctx, "tmp"); !linuxerr.Equals(linuxerr.ENOENT, err) {
		t.Errorf("Lookup after Unlink: got %v, want ENOENT", err)
	}

	op(fs, func() { ip.Release(ctx) })
	if got := fs.FreeBlocks(); got != freeBlocks {
		t.Errorf("FreeBlocks after last release: got %d, want %d", got, freeBlocks)
	}
	if got := fs.FreeInodes(); got != freeInodes {
		t.Errorf("FreeInodes after last release: got %d, want %d", got, freeInodes)
	}
}

func TestReleaseOutsideOpPanics(t *testing.T) {
	fs := newTestFS(t, DefaultOptions())
	ip := create(t, fs, "f")
	defer func() {
		if recover() == nil {
			t.Errorf("Release outside a journal operation did not panic")
		}
	}()
	ip.Release(context.Background())
}

func TestCreateExisting(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t, DefaultOptions())
	a := create(t, fs, "same")
	b := create(t, fs, "same")
	if a != b {
		t.Errorf("Create of existing file returned a different inode")
	}

	var err error
	op(fs, func() { _, err = fs.Create(ctx, "same", linux.T_DEVICE, 1, 0) })
	if !linuxerr.Equals(linuxerr.EEXIST, err) {
		t.Errorf("Create(device) over a file: got %v, want EEXIST", err)
	}
}

func TestNames(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t, DefaultOptions())
	for _, name := range []string{"b", "/a", "c"} {
		create(t, fs, name)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, fs.Entries()); diff != "" {
		t.Errorf("Entries mismatch (-want +got):\n%s", diff)
	}

	for _, tc := range []struct {
		name string
		err  *errors.Error
	}{
		{name: "averyveryverylongname", err: linuxerr.ENAMETOOLONG},
		{name: "dir/file", err: linuxerr.ENOENT},
		{name: "missing", err: linuxerr.ENOENT},
	} {
		if _, err := fs.Lookup(ctx, tc.name); !linuxerr.Equals(tc.err, err) {
			t.Errorf("Lookup(%q): got %v, want %v", tc.name, err, tc.err)
		}
	}

	root, err := fs.Lookup(ctx, "/")
	if err != nil {
		t.Fatalf("Lookup(/): %v", err)
	}
	root.Lock()
	st := root.Stat()
	root.Unlock()
	want := linux.Stat{Dev: RootDev, Ino: RootIno, Type: linux.T_DIR, Nlink: 1, Size: 3 * direntSize}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Errorf("root Stat mismatch (-want +got):\n%s", diff)
	}
}
