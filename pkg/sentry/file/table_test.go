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

package file

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/filecore/pkg/abi/linux"
	"gvisor.dev/filecore/pkg/errors/linuxerr"
)

func TestAllocCapacity(t *testing.T) {
	e := newTestEnv(2)
	a, err := e.table.Alloc()
	if err != nil {
		t.Fatalf("first Alloc: %v", err)
	}
	if _, err := e.table.Alloc(); err != nil {
		t.Fatalf("second Alloc: %v", err)
	}
	_, err = e.table.Alloc()
	if !linuxerr.Equals(linuxerr.ENFILE, err) {
		t.Fatalf("third Alloc: got %v, want ENFILE", err)
	}
	if got := linuxerr.ClassOf(err); got != linuxerr.ClassResourceExhausted {
		t.Errorf("ClassOf(third Alloc): got %v, want %v", got, linuxerr.ClassResourceExhausted)
	}
	if got := e.table.Live(); got != 2 {
		t.Errorf("Live: got %d, want 2", got)
	}

	e.table.Close(context.Background(), a)
	if _, err := e.table.Alloc(); err != nil {
		t.Errorf("Alloc after Close: %v", err)
	}
}

func TestDupClose(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(4)
	p := &fakePipe{}
	h := e.open(t, PipeEnd{Pipe: p}, writeOnly)

	if got := e.table.Dup(h); got != h {
		t.Errorf("Dup: got %v, want %v", got, h)
	}
	if got := e.table.Refs(h); got != 2 {
		t.Errorf("Refs after Dup: got %d, want 2", got)
	}
	e.table.Close(ctx, h)
	if len(p.closed) != 0 {
		t.Fatalf("pipe closed while a reference remains")
	}
	if got := e.table.Refs(h); got != 1 {
		t.Errorf("Refs after Close: got %d, want 1", got)
	}
	e.table.Close(ctx, h)
	if diff := cmp.Diff([]bool{true}, p.closed); diff != "" {
		t.Errorf("pipe closes mismatch (-want +got):\n%s", diff)
	}
	if got := e.table.Live(); got != 0 {
		t.Errorf("Live: got %d, want 0", got)
	}
}

func mustPanic(t *testing.T, what string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s did not panic", what)
		}
	}()
	fn()
}

func TestStaleHandles(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(1)
	h := e.open(t, PipeEnd{Pipe: &fakePipe{}}, readOnly)
	e.table.Close(ctx, h)

	mustPanic(t, "Dup of closed file", func() { e.table.Dup(h) })
	mustPanic(t, "Close of closed file", func() { e.table.Close(ctx, h) })

	// The slot is reused under a new generation; the old handle stays
	// stale.
	h2 := e.open(t, PipeEnd{Pipe: &fakePipe{}}, readOnly)
	if h2 == h {
		t.Fatalf("reused slot kept generation: %v", h2)
	}
	mustPanic(t, "Dup of stale handle", func() { e.table.Dup(h) })
	mustPanic(t, "Dup of zero handle", func() { e.table.Dup(Handle{}) })
}

func TestLastInodeCloseInOneTransaction(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(4)
	ino := e.newInode()
	h := e.open(t, InodeFile{Inode: ino}, readWrite)
	e.table.Dup(h)

	e.table.Close(ctx, h)
	if ino.releases != 0 || e.journal.begins != 0 {
		t.Fatalf("non-final Close released the inode (releases %d, ops %d)", ino.releases, e.journal.begins)
	}
	e.table.Close(ctx, h)
	if diff := cmp.Diff([]int{1}, ino.releaseDepths); diff != "" {
		t.Errorf("release journal depths mismatch (-want +got):\n%s", diff)
	}
	if e.journal.begins != 1 || e.journal.ends != 1 {
		t.Errorf("journal ops: got (%d begins, %d ends), want (1, 1)", e.journal.begins, e.journal.ends)
	}
}

func TestCloseDeviceReleasesInode(t *testing.T) {
	e := newTestEnv(4)
	ino := e.newInode()
	h := e.open(t, DeviceNode{Major: 2, Inode: ino}, readWrite)
	e.table.Close(context.Background(), h)
	if diff := cmp.Diff([]int{1}, ino.releaseDepths); diff != "" {
		t.Errorf("release journal depths mismatch (-want +got):\n%s", diff)
	}
}

func TestCloseUninstalled(t *testing.T) {
	e := newTestEnv(1)
	h, err := e.table.Alloc()
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	e.table.Close(context.Background(), h)
	if e.journal.begins != 0 {
		t.Errorf("Close of uninstalled file began %d journal ops", e.journal.begins)
	}
	if got := e.table.Live(); got != 0 {
		t.Errorf("Live: got %d, want 0", got)
	}
}

type bogusBacking struct{}

func (bogusBacking) isBacking() {}

func TestInstallUnknownBackingPanics(t *testing.T) {
	e := newTestEnv(1)
	h, err := e.table.Alloc()
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	mustPanic(t, "Install of unknown backing", func() { e.table.Install(h, bogusBacking{}, readOnly) })
	mustPanic(t, "Install of nil backing", func() { e.table.Install(h, nil, readOnly) })
}

func TestConcurrentRefcounts(t *testing.T) {
	const capacity = 8
	ctx := context.Background()
	e := newTestEnv(capacity)

	var maxLive atomic.Int32
	var g errgroup.Group
	for w := 0; w < 16; w++ {
		g.Go(func() error {
			for i := 0; i < 200; i++ {
				h, err := e.table.Alloc()
				if err != nil {
					if !linuxerr.Equals(linuxerr.ENFILE, err) {
						return err
					}
					continue
				}
				e.table.Install(h, PipeEnd{Pipe: &fakePipe{}}, readOnly)
				if live := int32(e.table.Live()); live > maxLive.Load() {
					maxLive.Store(live)
				}
				e.table.Dup(h)
				e.table.Close(ctx, h)
				e.table.Close(ctx, h)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("workers: %v", err)
	}
	if got := maxLive.Load(); got > capacity {
		t.Errorf("live files peaked at %d, capacity %d", got, capacity)
	}
	if got := e.table.Live(); got != 0 {
		t.Errorf("Live after all closes: got %d, want 0", got)
	}
}

func TestFlagsFromOpen(t *testing.T) {
	for _, tc := range []struct {
		mode int
		want Flags
	}{
		{linux.O_RDONLY, readOnly},
		{linux.O_WRONLY, writeOnly},
		{linux.O_RDWR, readWrite},
		{linux.O_RDWR | linux.O_CREATE, readWrite},
	} {
		if got := FlagsFromOpen(tc.mode); got != tc.want {
			t.Errorf("FlagsFromOpen(%#x): got %+v, want %+v", tc.mode, got, tc.want)
		}
	}
}
