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

package kernel

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/filecore/pkg/abi/linux"
	"gvisor.dev/filecore/pkg/errors/linuxerr"
	"gvisor.dev/filecore/pkg/sentry/file"
)

func runTest(t *testing.T, fn func(ctx context.Context, k *Kernel, fdTable *FDTable, f file.Handle)) {
	t.Helper() // Don't show in stacks.
	ctx := context.Background()
	k, _ := newTestKernel(t, func(cfg *Config) { cfg.NOFile = 4 })
	f, err := k.OpenFile(ctx, "null", linux.O_RDWR)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer k.Files().Close(ctx, f)
	fn(ctx, k, k.NewFDTable(), f)
}

// TestFDTableMany fills the table, then checks that removing a descriptor
// makes it the next one allocated.
func TestFDTableMany(t *testing.T) {
	runTest(t, func(ctx context.Context, k *Kernel, fdTable *FDTable, f file.Handle) {
		for i := int32(0); i < 4; i++ {
			fd, err := fdTable.NewFD(k.Files().Dup(f))
			if err != nil || fd != i {
				t.Fatalf("NewFD: got (%d, %v), want (%d, nil)", fd, err, i)
			}
		}

		extra := k.Files().Dup(f)
		if _, err := fdTable.NewFD(extra); !linuxerr.Equals(linuxerr.EMFILE, err) {
			t.Fatalf("NewFD in full table: got %v, want EMFILE", err)
		}
		k.Files().Close(ctx, extra)

		h, ok := fdTable.Remove(2)
		if !ok || h != f {
			t.Fatalf("Remove(2): got (%v, %t), want (%v, true)", h, ok, f)
		}
		k.Files().Close(ctx, h)
		if fd, err := fdTable.NewFD(k.Files().Dup(f)); err != nil || fd != 2 {
			t.Fatalf("NewFD after Remove: got (%d, %v), want (2, nil)", fd, err)
		}
		if got := k.Files().Refs(f); got != 5 {
			t.Errorf("Refs: got %d, want 5", got)
		}

		fdTable.RemoveAll(ctx)
		if got := fdTable.Size(); got != 0 {
			t.Errorf("Size after RemoveAll: got %d, want 0", got)
		}
		if got := k.Files().Refs(f); got != 1 {
			t.Errorf("Refs after RemoveAll: got %d, want 1", got)
		}
	})
}

func TestFDTableGet(t *testing.T) {
	runTest(t, func(ctx context.Context, k *Kernel, fdTable *FDTable, f file.Handle) {
		fd, err := fdTable.NewFD(k.Files().Dup(f))
		if err != nil {
			t.Fatalf("NewFD: %v", err)
		}
		if h, ok := fdTable.Get(fd); !ok || h != f {
			t.Errorf("Get(%d): got (%v, %t), want (%v, true)", fd, h, ok, f)
		}
		for _, bad := range []int32{-1, 1, 4, 100} {
			if _, ok := fdTable.Get(bad); ok {
				t.Errorf("Get(%d): got ok, want not found", bad)
			}
			if _, ok := fdTable.Remove(bad); ok {
				t.Errorf("Remove(%d): got ok, want not found", bad)
			}
		}
		fdTable.RemoveAll(ctx)
	})
}

func TestFDTableFork(t *testing.T) {
	runTest(t, func(ctx context.Context, k *Kernel, fdTable *FDTable, f file.Handle) {
		for i := 0; i < 2; i++ {
			if _, err := fdTable.NewFD(k.Files().Dup(f)); err != nil {
				t.Fatalf("NewFD: %v", err)
			}
		}
		if h, ok := fdTable.Remove(0); ok {
			k.Files().Close(ctx, h)
		}

		clone := fdTable.Fork()
		if diff := cmp.Diff(fdTable.GetFDs(), clone.GetFDs()); diff != "" {
			t.Errorf("GetFDs mismatch (-parent +clone):\n%s", diff)
		}
		if got := k.Files().Refs(f); got != 3 {
			t.Errorf("Refs after Fork: got %d, want 3", got)
		}
		// The clone is independent.
		if h, ok := clone.Remove(1); ok {
			k.Files().Close(ctx, h)
		}
		if _, ok := fdTable.Get(1); !ok {
			t.Errorf("parent lost fd 1 when the clone removed it")
		}
		fdTable.RemoveAll(ctx)
		clone.RemoveAll(ctx)
		if got := k.Files().Refs(f); got != 1 {
			t.Errorf("Refs after RemoveAll: got %d, want 1", got)
		}
	})
}
