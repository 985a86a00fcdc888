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
	"fmt"
	"sync"
	"time"

	"gvisor.dev/filecore/pkg/errors/linuxerr"
	"gvisor.dev/filecore/pkg/log"
	"gvisor.dev/filecore/pkg/metric"
)

var (
	filesAllocated = metric.MustCreateNewUint64Metric("/fs/files_allocated", "Number of open files allocated from the file table.")
	filesReleased  = metric.MustCreateNewUint64Metric("/fs/files_released", "Number of open files whose last reference was closed.", metric.NewField("kind", []string{"none", "pipe", "device", "inode"}))
	tableOverflows = metric.MustCreateNewUint64Metric("/fs/file_table_overflows", "Number of allocations that failed because the file table was full.")
)

// overflowLog rate limits the file table overflow warning.
var overflowLog = log.BasicRateLimitedLogger(time.Second)

// object is one slot of a Table.
type object struct {
	// refs is the reference count; the slot is free when it is 0. refs is
	// protected by Table.mu.
	refs int

	// gen is bumped every time the slot is allocated. gen is protected by
	// Table.mu.
	gen uint32

	// readable, writable and backing are set by Install and are immutable
	// until the last Close. They are protected by Table.mu.
	readable bool
	writable bool
	backing  Backing

	// offset is the read/write position of an inode-backed file. offset is
	// protected by the inode lock.
	offset int64
}

// lastRef is the state of an open file whose last reference was dropped,
// captured under Table.mu so that teardown can run without it.
type lastRef struct {
	backing  Backing
	writable bool
}

// teardown releases the backing of a closed file.
func (r lastRef) teardown(ctx context.Context, j Journal) {
	switch b := r.backing.(type) {
	case nil:
		// Never installed.
	case PipeEnd:
		b.Pipe.Close(r.writable)
	case DeviceNode:
		j.BeginOp()
		b.Inode.Release(ctx)
		j.EndOp()
	case InodeFile:
		j.BeginOp()
		b.Inode.Release(ctx)
		j.EndOp()
	default:
		panic(fmt.Sprintf("teardown of unknown backing %T", b))
	}
}

// Options configures a Table.
type Options struct {
	// Capacity is the number of slots.
	Capacity int

	// MaxOpBlocks and BlockSize bound the size of one inode write
	// transaction; see MaxWriteChunk.
	MaxOpBlocks int
	BlockSize   int

	Journal Journal
	Devices Devices
}

// Table is a fixed-size table of open files.
type Table struct {
	journal  Journal
	devices  Devices
	maxChunk int64

	mu sync.Mutex

	// files is protected by mu, except for object.offset.
	files []object

	// live is the number of slots with refs > 0. live is protected by mu.
	live int
}

// NewTable returns an empty Table.
func NewTable(opts Options) *Table {
	if opts.Capacity <= 0 {
		panic(fmt.Sprintf("invalid file table capacity %d", opts.Capacity))
	}
	chunk := MaxWriteChunk(opts.MaxOpBlocks, opts.BlockSize)
	if chunk <= 0 {
		panic(fmt.Sprintf("no room for data in a transaction of %d blocks", opts.MaxOpBlocks))
	}
	return &Table{
		journal:  opts.Journal,
		devices:  opts.Devices,
		maxChunk: int64(chunk),
		files:    make([]object, opts.Capacity),
	}
}

// slot returns the slot named by h.
//
// Preconditions: t.mu is locked.
func (t *Table) slot(h Handle) *object {
	if h.index < 0 || int(h.index) >= len(t.files) {
		panic(fmt.Sprintf("%v: index out of range", h))
	}
	f := &t.files[h.index]
	if f.gen != h.gen || f.refs < 1 {
		panic(fmt.Sprintf("%v: stale handle (slot generation %d, refs %d)", h, f.gen, f.refs))
	}
	return f
}

// Alloc reserves a slot with a single reference. The caller must Install a
// backing. It returns ENFILE if every slot is in use.
func (t *Table) Alloc() (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.files {
		f := &t.files[i]
		if f.refs == 0 {
			f.refs = 1
			f.gen++
			if f.gen == 0 {
				f.gen++
			}
			f.offset = 0
			t.live++
			filesAllocated.Increment()
			return Handle{index: int32(i), gen: f.gen}, nil
		}
	}
	tableOverflows.Increment()
	overflowLog.Warningf("file table overflow: all %d files in use", len(t.files))
	return Handle{}, linuxerr.ENFILE
}

// Install sets the backing and access modes of a freshly allocated file.
// It takes ownership of the backing's reference.
func (t *Table) Install(h Handle, b Backing, flags Flags) {
	if b == nil {
		panic(fmt.Sprintf("%v: Install of nil backing", h))
	}
	kindOf(b)
	t.mu.Lock()
	defer t.mu.Unlock()
	f := t.slot(h)
	if f.backing != nil {
		panic(fmt.Sprintf("%v: Install over %T", h, f.backing))
	}
	f.backing = b
	f.readable = flags.Readable
	f.writable = flags.Writable
}

// Dup adds a reference to h and returns it.
func (t *Table) Dup(h Handle) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slot(h).refs++
	return h
}

// Close drops a reference to h. Dropping the last reference frees the slot
// and releases the backing: a pipe end is closed, and an inode is released
// inside a journal operation.
func (t *Table) Close(ctx context.Context, h Handle) {
	if r, ok := t.decRef(h); ok {
		log.Debugf("%v: last reference closed, releasing %v", h, kindOf(r.backing))
		filesReleased.Increment(kindOf(r.backing).String())
		r.teardown(ctx, t.journal)
	}
}

// decRef drops a reference under t.mu, returning the snapshot to tear down
// when it was the last one.
func (t *Table) decRef(h Handle) (lastRef, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f := t.slot(h)
	f.refs--
	if f.refs > 0 {
		return lastRef{}, false
	}
	r := lastRef{backing: f.backing, writable: f.writable}
	f.backing = nil
	f.readable = false
	f.writable = false
	t.live--
	return r, true
}

// view is the immutable part of an open file, as seen by one operation.
type view struct {
	readable bool
	writable bool
	backing  Backing

	// offset points into the slot; it may only be used under the inode
	// lock.
	offset *int64
}

// get returns a view of the file named by h.
func (t *Table) get(h Handle) view {
	t.mu.Lock()
	defer t.mu.Unlock()
	f := t.slot(h)
	return view{
		readable: f.readable,
		writable: f.writable,
		backing:  f.backing,
		offset:   &f.offset,
	}
}

// Live returns the number of open files.
func (t *Table) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// Capacity returns the number of slots.
func (t *Table) Capacity() int {
	return len(t.files)
}

// Refs returns the reference count of h.
func (t *Table) Refs(h Handle) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slot(h).refs
}

// Kind returns the kind of backing of h.
func (t *Table) Kind(h Handle) Kind {
	return kindOf(t.get(h).backing)
}

// Flags returns the access modes of h.
func (t *Table) Flags(h Handle) Flags {
	f := t.get(h)
	return Flags{Readable: f.readable, Writable: f.writable}
}

// Inode returns the inode of an inode- or device-backed file.
func (t *Table) Inode(h Handle) (Inode, bool) {
	switch b := t.get(h).backing.(type) {
	case InodeFile:
		return b.Inode, true
	case DeviceNode:
		return b.Inode, true
	default:
		return nil, false
	}
}

// Offset returns the offset of an inode-backed file.
func (t *Table) Offset(h Handle) int64 {
	f := t.get(h)
	if ino, ok := f.backing.(InodeFile); ok {
		ino.Inode.Lock()
		defer ino.Inode.Unlock()
	}
	return *f.offset
}
