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

// Package platform provides the page tables that back an application
// address space.
package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gvisor.dev/filecore/pkg/errors/linuxerr"
	"gvisor.dev/filecore/pkg/hostarch"
	"gvisor.dev/filecore/pkg/sentry/pgalloc"
	"gvisor.dev/filecore/pkg/sentry/usermem"
)

// pte is one installed page translation.
type pte struct {
	frame pgalloc.FrameID
	perms hostarch.AccessType
}

// AddressSpace maps page-aligned virtual addresses to frames of a
// MemoryFile.
//
// AddressSpace implements usermem.IO. Copies never fault pages in; an
// access to a page that is not mapped fails with EFAULT.
type AddressSpace struct {
	mf *pgalloc.MemoryFile

	mu sync.RWMutex

	// pages is protected by mu.
	pages map[hostarch.Addr]pte
}

// NewAddressSpace returns an empty AddressSpace whose pages come from mf.
func NewAddressSpace(mf *pgalloc.MemoryFile) *AddressSpace {
	return &AddressSpace{
		mf:    mf,
		pages: make(map[hostarch.Addr]pte),
	}
}

// MemoryFile returns the MemoryFile that backs as.
func (as *AddressSpace) MemoryFile() *pgalloc.MemoryFile {
	return as.mf
}

// MapPage installs frame at addr. The AddressSpace takes ownership of the
// caller's reference on frame.
//
// Preconditions: addr is page-aligned. at.Any() == true.
func (as *AddressSpace) MapPage(addr hostarch.Addr, frame pgalloc.FrameID, at hostarch.AccessType) {
	if !addr.IsPageAligned() {
		panic(fmt.Sprintf("MapPage: unaligned address %v", addr))
	}
	if !at.Any() {
		panic(fmt.Sprintf("MapPage: no access requested for %v", addr))
	}
	as.mu.Lock()
	defer as.mu.Unlock()
	if _, ok := as.pages[addr]; ok {
		panic(fmt.Sprintf("MapPage: remap of %v", addr))
	}
	as.pages[addr] = pte{frame: frame, perms: at}
}

// Lookup returns the frame and permissions installed at the page containing
// addr.
func (as *AddressSpace) Lookup(addr hostarch.Addr) (pgalloc.FrameID, hostarch.AccessType, bool) {
	as.mu.RLock()
	defer as.mu.RUnlock()
	p, ok := as.pages[addr.RoundDown()]
	return p.frame, p.perms, ok
}

// Unmap removes npages translations starting at addr, dropping the frame
// references they held. Pages that are not mapped are skipped. It returns the
// number of pages actually removed.
//
// Preconditions: addr is page-aligned.
func (as *AddressSpace) Unmap(addr hostarch.Addr, npages uint64) int {
	if !addr.IsPageAligned() {
		panic(fmt.Sprintf("Unmap: unaligned address %v", addr))
	}
	as.mu.Lock()
	var freed []pgalloc.FrameID
	for i := uint64(0); i < npages; i++ {
		va := addr + hostarch.Addr(i*hostarch.PageSize)
		if p, ok := as.pages[va]; ok {
			delete(as.pages, va)
			freed = append(freed, p.frame)
		}
	}
	as.mu.Unlock()

	for _, f := range freed {
		as.mf.DecRef(f)
	}
	return len(freed)
}

// Release unmaps every page.
func (as *AddressSpace) Release() {
	as.mu.Lock()
	pages := as.pages
	as.pages = make(map[hostarch.Addr]pte)
	as.mu.Unlock()

	for _, p := range pages {
		as.mf.DecRef(p.frame)
	}
}

// Populated returns the number of mapped pages.
func (as *AddressSpace) Populated() int {
	as.mu.RLock()
	defer as.mu.RUnlock()
	return len(as.pages)
}

// MappedPages returns the addresses of every mapped page in ascending order.
func (as *AddressSpace) MappedPages() []hostarch.Addr {
	as.mu.RLock()
	addrs := make([]hostarch.Addr, 0, len(as.pages))
	for a := range as.pages {
		addrs = append(addrs, a)
	}
	as.mu.RUnlock()
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// CopyOut implements usermem.IO.CopyOut.
func (as *AddressSpace) CopyOut(ctx context.Context, addr hostarch.Addr, src []byte, opts usermem.IOOpts) (int, error) {
	return as.forEachPage(addr, len(src), hostarch.Write, opts, func(b []byte, done int) {
		copy(b, src[done:])
	})
}

// CopyIn implements usermem.IO.CopyIn.
func (as *AddressSpace) CopyIn(ctx context.Context, addr hostarch.Addr, dst []byte, opts usermem.IOOpts) (int, error) {
	return as.forEachPage(addr, len(dst), hostarch.Read, opts, func(b []byte, done int) {
		copy(dst[done:], b)
	})
}

// forEachPage calls fn with the mapped bytes covering [addr, addr+length),
// one page at a time. It stops with EFAULT at the first page that is not
// mapped or, unless opts.IgnorePermissions, does not permit at.
func (as *AddressSpace) forEachPage(addr hostarch.Addr, length int, at hostarch.AccessType, opts usermem.IOOpts, fn func(b []byte, done int)) (int, error) {
	if _, ok := addr.AddLength(uint64(length)); !ok {
		return 0, linuxerr.EFAULT
	}
	done := 0
	for done < length {
		va := addr + hostarch.Addr(done)
		frame, perms, ok := as.Lookup(va)
		if !ok || (!opts.IgnorePermissions && !perms.SupersetOf(at)) {
			return done, linuxerr.EFAULT
		}
		off := int(va.PageOffset())
		n := hostarch.PageSize - off
		if n > length-done {
			n = length - done
		}
		fn(as.mf.Bytes(frame)[off:off+n], done)
		done += n
	}
	return done, nil
}
