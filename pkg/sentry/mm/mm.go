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

// Package mm implements the memory-mapped file regions of an application
// address space.
//
// Lock order:
//
//	MemoryManager.mappingMu
//	  journal operation
//	    inode lock
//	      file.Table.mu
//
// The AddressSpace and MemoryFile locks are leaves.
package mm

import (
	"context"
	"fmt"
	"sync"

	"gvisor.dev/filecore/pkg/hostarch"
	"gvisor.dev/filecore/pkg/metric"
	"gvisor.dev/filecore/pkg/sentry/file"
	"gvisor.dev/filecore/pkg/sentry/pgalloc"
	"gvisor.dev/filecore/pkg/sentry/platform"
)

// NVMA is the default number of mapping slots per MemoryManager.
const NVMA = 16

var (
	mmaps          = metric.MustCreateNewUint64Metric("/mm/mmaps", "Number of successful mmap calls.")
	munmaps        = metric.MustCreateNewUint64Metric("/mm/munmaps", "Number of successful munmap calls.", metric.NewField("result", []string{"shrunk", "freed"}))
	faults         = metric.MustCreateNewUint64Metric("/mm/faults", "Number of application page faults.", metric.NewField("result", []string{"mapped", "efault", "enomem"}))
	writebackBytes = metric.MustCreateNewUint64Metric("/mm/writeback_bytes", "Number of bytes written back to files by munmap.")
	writebackFails = metric.MustCreateNewUint64Metric("/mm/writeback_failures", "Number of munmap writebacks that did not complete.")
)

// MemoryManager owns the mapping slots and the data segment of one
// application.
type MemoryManager struct {
	files  *file.Table
	as     *platform.AddressSpace
	mf     *pgalloc.MemoryFile
	layout layoutAllocator

	// mappingMu serializes changes to the mappings. It is held across file
	// reads in HandleUserFault and file writes in MUnmap.
	mappingMu sync.Mutex

	// vmas is the fixed table of mapping slots. vmas is protected by
	// mappingMu.
	vmas []vma

	// brk is the end of the data segment. brk is protected by mappingMu.
	brk hostarch.Addr

	// released is set by Release. released is protected by mappingMu.
	released bool
}

// Options configures a MemoryManager.
type Options struct {
	// Files is the file table that mapped files live in.
	Files *file.Table

	// AddressSpace holds the application's page tables.
	AddressSpace *platform.AddressSpace

	// NVMA is the number of mapping slots. Zero means NVMA.
	NVMA int

	// Brk is the initial end of the data segment. Mappings are placed
	// above it.
	Brk hostarch.Addr
}

// NewMemoryManager returns a MemoryManager with no mappings.
func NewMemoryManager(opts Options) *MemoryManager {
	n := opts.NVMA
	if n == 0 {
		n = NVMA
	}
	if n < 0 {
		panic(fmt.Sprintf("invalid number of mapping slots %d", n))
	}
	return &MemoryManager{
		files:  opts.Files,
		as:     opts.AddressSpace,
		mf:     opts.AddressSpace.MemoryFile(),
		layout: bumpAllocator{},
		vmas:   make([]vma, n),
		brk:    opts.Brk,
	}
}

// AddressSpace returns the page tables of mm.
func (mm *MemoryManager) AddressSpace() *platform.AddressSpace {
	return mm.as
}

// Brk returns the end of the data segment.
func (mm *MemoryManager) Brk() hostarch.Addr {
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	return mm.brk
}

// Release tears down every mapping, as at process exit. SHARED mappings are
// written back; failures are logged. Every page, including the data
// segment, is unmapped.
func (mm *MemoryManager) Release(ctx context.Context) {
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	if mm.released {
		panic("MemoryManager released twice")
	}
	mm.released = true
	for i := range mm.vmas {
		v := &mm.vmas[i]
		if !v.live() {
			continue
		}
		mm.unmapLocked(ctx, i, v.addr, v.length)
	}
	mm.as.Release()
}

// Fork returns a MemoryManager for a child process whose pages live in as.
// The data segment is copied. Mappings are inherited with their files
// duplicated and are populated again on first touch.
func (mm *MemoryManager) Fork(ctx context.Context, as *platform.AddressSpace) (*MemoryManager, error) {
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	child := NewMemoryManager(Options{
		Files:        mm.files,
		AddressSpace: as,
		NVMA:         len(mm.vmas),
		Brk:          mm.brk,
	})
	end := mm.brk.MustRoundUp()
	for va := hostarch.Addr(0); va < end; va += hostarch.PageSize {
		frame, perms, ok := mm.as.Lookup(va)
		if !ok {
			continue
		}
		nf, err := child.mf.Allocate()
		if err != nil {
			as.Release()
			return nil, err
		}
		copy(child.mf.Bytes(nf), mm.mf.Bytes(frame))
		as.MapPage(va, nf, perms)
	}
	for i := range mm.vmas {
		v := mm.vmas[i]
		if v.live() {
			v.file = mm.files.Dup(v.file)
		}
		child.vmas[i] = v
	}
	return child, nil
}
