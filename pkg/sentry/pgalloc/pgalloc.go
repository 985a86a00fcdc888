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

// Package pgalloc contains the page allocator for application memory.
//
// A MemoryFile is a fixed number of page-sized frames carved out of one
// anonymous host mapping. Frames are reference counted; a frame returns to
// the free set when its last reference is dropped.
package pgalloc

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
	"gvisor.dev/filecore/pkg/bitmap"
	"gvisor.dev/filecore/pkg/errors/linuxerr"
	"gvisor.dev/filecore/pkg/hostarch"
	"gvisor.dev/filecore/pkg/log"
	"gvisor.dev/filecore/pkg/metric"
)

var (
	framesAllocated = metric.MustCreateNewUint64Metric("/memory/frames_allocated", "Number of physical frames handed out by the page allocator.")
	framesExhausted = metric.MustCreateNewUint64Metric("/memory/frames_exhausted", "Number of frame allocations that failed for lack of memory.")
)

// FrameID names one frame of a MemoryFile.
type FrameID uint32

// MemoryFile is a memory-backed pool of frames.
type MemoryFile struct {
	// mapping is the host mapping backing every frame. It is immutable after
	// NewMemoryFile.
	mapping []byte

	mu sync.Mutex

	// used tracks allocated frames. used is protected by mu.
	used bitmap.Bitmap

	// refs is the reference count of each frame. refs is protected by mu.
	refs []int32

	// searchHint is where the next allocation starts looking. searchHint is
	// protected by mu.
	searchHint uint32

	// destroyed is set by Destroy. destroyed is protected by mu.
	destroyed bool
}

// NewMemoryFile creates a MemoryFile of frames pages.
func NewMemoryFile(frames int) (*MemoryFile, error) {
	if frames <= 0 {
		return nil, fmt.Errorf("invalid frame count %d", frames)
	}
	mapping, err := unix.Mmap(-1, 0, frames*hostarch.PageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mapping %d frames: %w", frames, err)
	}
	log.Debugf("MemoryFile created with %d frames", frames)
	return &MemoryFile{
		mapping: mapping,
		used:    bitmap.New(uint32(frames)),
		refs:    make([]int32, frames),
	}, nil
}

// Allocate returns a zeroed frame with a single reference. It returns ENOMEM
// if no frames are free.
func (f *MemoryFile) Allocate() (FrameID, error) {
	f.mu.Lock()
	if f.destroyed {
		f.mu.Unlock()
		panic("Allocate on destroyed MemoryFile")
	}
	bit := f.used.FirstZero(f.searchHint)
	if bit == bitmap.NoBit {
		f.mu.Unlock()
		framesExhausted.Increment()
		return 0, linuxerr.ENOMEM
	}
	f.used.Add(bit)
	f.refs[bit] = 1
	f.searchHint = bit + 1
	f.mu.Unlock()

	id := FrameID(bit)
	clear(f.Bytes(id))
	framesAllocated.Increment()
	return id, nil
}

// IncRef adds a reference to id.
func (f *MemoryFile) IncRef(id FrameID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refs[id] <= 0 {
		panic(fmt.Sprintf("IncRef on free frame %d", id))
	}
	f.refs[id]++
}

// DecRef drops a reference to id, freeing it when none remain.
func (f *MemoryFile) DecRef(id FrameID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refs[id] <= 0 {
		panic(fmt.Sprintf("DecRef on free frame %d", id))
	}
	f.refs[id]--
	if f.refs[id] == 0 {
		f.used.Remove(uint32(id))
		if uint32(id) < f.searchHint {
			f.searchHint = uint32(id)
		}
	}
}

// Bytes returns the contents of frame id. The slice aliases the backing
// mapping and stays valid until Destroy.
func (f *MemoryFile) Bytes(id FrameID) []byte {
	off := int(id) * hostarch.PageSize
	return f.mapping[off : off+hostarch.PageSize : off+hostarch.PageSize]
}

// TotalFrames returns the capacity of f.
func (f *MemoryFile) TotalFrames() int {
	return len(f.refs)
}

// UsedFrames returns the number of allocated frames.
func (f *MemoryFile) UsedFrames() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int(f.used.Count())
}

// Destroy releases the host mapping. f must not be used afterwards.
func (f *MemoryFile) Destroy() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed {
		return nil
	}
	f.destroyed = true
	if n := f.used.Count(); n != 0 {
		log.Warningf("MemoryFile destroyed with %d frames still in use", n)
	}
	return unix.Munmap(f.mapping)
}
