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
	"bytes"
	"context"
	"sync"

	"gvisor.dev/filecore/pkg/abi/linux"
	"gvisor.dev/filecore/pkg/errors/linuxerr"
	"gvisor.dev/filecore/pkg/sentry/devices"
	"gvisor.dev/filecore/pkg/sentry/usermem"
)

// fakeJournal counts operations.
type fakeJournal struct {
	mu     sync.Mutex
	depth  int
	begins int
	ends   int
}

func (j *fakeJournal) BeginOp() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.depth++
	j.begins++
}

func (j *fakeJournal) EndOp() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.depth == 0 {
		panic("EndOp without BeginOp")
	}
	j.depth--
	j.ends++
}

func (j *fakeJournal) opDepth() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.depth
}

// fakeInode is a file held in a byte slice.
type fakeInode struct {
	j *fakeJournal

	mu     sync.Mutex
	locked bool
	data   []byte

	// limit, if positive, is the size past which writes come up short.
	limit int

	// panicIO makes ReadAt and WriteAt panic.
	panicIO bool

	// Everything below is protected by mu.
	chunks          []int
	writesOutsideOp int
	releases        int
	releaseDepths   []int
}

func (f *fakeInode) Lock() {
	f.mu.Lock()
	f.locked = true
}

func (f *fakeInode) Unlock() {
	f.locked = false
	f.mu.Unlock()
}

func (f *fakeInode) ReadAt(ctx context.Context, dst usermem.IOSequence, off int64) (int64, error) {
	if !f.locked {
		panic("ReadAt without lock")
	}
	if f.panicIO {
		panic("ReadAt failed")
	}
	if off >= int64(len(f.data)) {
		return 0, nil
	}
	n, err := dst.CopyOut(ctx, f.data[off:])
	return int64(n), err
}

func (f *fakeInode) WriteAt(ctx context.Context, src usermem.IOSequence, off int64) (int64, error) {
	if !f.locked {
		panic("WriteAt without lock")
	}
	if f.panicIO {
		panic("WriteAt failed")
	}
	if f.j.opDepth() != 1 {
		f.writesOutsideOp++
	}
	n := src.NumBytes()
	f.chunks = append(f.chunks, int(n))
	var err error
	if f.limit > 0 && off+n > int64(f.limit) {
		n = max(int64(f.limit)-off, 0)
		err = linuxerr.ENOSPC
	}
	buf := make([]byte, n)
	c, cerr := src.CopyIn(ctx, buf)
	if cerr != nil {
		err = cerr
	}
	if end := off + int64(c); end > int64(len(f.data)) {
		f.data = append(f.data, make([]byte, end-int64(len(f.data)))...)
	}
	copy(f.data[off:], buf[:c])
	return int64(c), err
}

func (f *fakeInode) Stat() linux.Stat {
	return linux.Stat{Dev: 1, Ino: 7, Type: linux.T_FILE, Nlink: 1, Size: uint64(len(f.data))}
}

func (f *fakeInode) Size() int64 {
	return int64(len(f.data))
}

func (f *fakeInode) Release(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	f.releaseDepths = append(f.releaseDepths, f.j.opDepth())
}

// fakePipe is an unbounded, non-blocking pipe.
type fakePipe struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed []bool
}

func (p *fakePipe) Read(ctx context.Context, dst usermem.IOSequence) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, err := dst.CopyOut(ctx, p.buf.Next(int(dst.NumBytes())))
	return int64(n), err
}

func (p *fakePipe) Write(ctx context.Context, src usermem.IOSequence) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := make([]byte, src.NumBytes())
	n, err := src.CopyIn(ctx, b)
	p.buf.Write(b[:n])
	return int64(n), err
}

func (p *fakePipe) Close(writable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = append(p.closed, writable)
}

type testEnv struct {
	table   *Table
	journal *fakeJournal
	devices *devices.Registry
}

func newTestEnv(capacity int) *testEnv {
	j := &fakeJournal{}
	reg := devices.NewRegistry(10)
	reg.Register(devices.NullMajor, devices.NewNull())
	return &testEnv{
		table: NewTable(Options{
			Capacity:    capacity,
			MaxOpBlocks: 10,
			BlockSize:   1024,
			Journal:     j,
			Devices:     reg,
		}),
		journal: j,
		devices: reg,
	}
}

func (e *testEnv) newInode() *fakeInode {
	return &fakeInode{j: e.journal}
}

// open allocates and installs a file, failing the test on error.
func (e *testEnv) open(t interface{ Fatalf(string, ...any) }, b Backing, flags Flags) Handle {
	h, err := e.table.Alloc()
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	e.table.Install(h, b, flags)
	return h
}

var (
	readOnly  = Flags{Readable: true}
	writeOnly = Flags{Writable: true}
	readWrite = Flags{Readable: true, Writable: true}
)
