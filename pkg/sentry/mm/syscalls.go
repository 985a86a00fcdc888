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

package mm

import (
	"context"

	"gvisor.dev/filecore/pkg/errors/linuxerr"
	"gvisor.dev/filecore/pkg/hostarch"
	"gvisor.dev/filecore/pkg/log"
	"gvisor.dev/filecore/pkg/sentry/file"
	"gvisor.dev/filecore/pkg/sentry/usermem"
)

// MMapOpts specifies a file mapping.
type MMapOpts struct {
	// File is the file to map. MMap takes its own reference.
	File file.Handle

	// Length is the length of the mapping in bytes. It is rounded up to a
	// page.
	Length uint64

	// Perms is the access the application is allowed.
	Perms hostarch.AccessType

	// Flags holds the sharing mode, MAP_SHARED or MAP_PRIVATE.
	Flags int
}

// MMap establishes a mapping of opts.File and returns its address. No
// pages are populated until they are touched.
func (mm *MemoryManager) MMap(ctx context.Context, opts MMapOpts) (hostarch.Addr, error) {
	if opts.Length == 0 {
		return 0, linuxerr.EINVAL
	}
	length := hostarch.PageRoundUp(opts.Length)
	if length < opts.Length {
		return 0, linuxerr.ENOMEM
	}
	private, ok := sharingFromFlags(opts.Flags)
	if !ok {
		return 0, linuxerr.EINVAL
	}
	if !private && opts.Perms.Read && opts.Perms.Write && !mm.files.Flags(opts.File).Writable {
		return 0, linuxerr.EACCES
	}
	if _, ok := mm.files.Inode(opts.File); !ok {
		return 0, linuxerr.ENODEV
	}

	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	slot := -1
	for i := range mm.vmas {
		if !mm.vmas[i].live() {
			slot = i
			break
		}
	}
	if slot < 0 {
		return 0, linuxerr.ENOMEM
	}
	addr, err := mm.layout.next(mm.vmas, slot, mm.brk, length)
	if err != nil {
		return 0, err
	}
	mm.vmas[slot] = vma{
		file:    mm.files.Dup(opts.File),
		addr:    addr,
		length:  length,
		size:    opts.Length,
		perms:   opts.Perms,
		private: private,
	}
	mmaps.Increment()
	log.Debugf("mmap %v: slot %d at [%v, %v) %v private=%t", opts.File, slot, addr, addr+hostarch.Addr(length), opts.Perms, private)
	return addr, nil
}

// HandleUserFault populates the page containing addr, which the
// application accessed with at.
//
// The page is filled from the start of the file, whatever the offset of
// addr within the mapping, and holds at most min(mapping length, file size)
// bytes; the rest is zero.
func (mm *MemoryManager) HandleUserFault(ctx context.Context, addr hostarch.Addr, at hostarch.AccessType) error {
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	i, ok := mm.findLocked(addr)
	if !ok {
		faults.Increment("efault")
		return linuxerr.EFAULT
	}
	v := &mm.vmas[i]
	if !v.perms.SupersetOf(at) {
		faults.Increment("efault")
		return linuxerr.EFAULT
	}
	page := addr.RoundDown()
	if _, _, ok := mm.as.Lookup(page); ok {
		// Populated by an earlier fault.
		return nil
	}

	frame, err := mm.mf.Allocate()
	if err != nil {
		faults.Increment("enomem")
		return err
	}
	ino, ok := mm.files.Inode(v.file)
	if !ok {
		panic("mapped file has no inode")
	}
	n, err := fillPage(ctx, ino, mm.mf.Bytes(frame), int64(v.size))
	if err != nil {
		log.Warningf("fault at %v: reading %v: %v", addr, v.file, err)
	}
	mm.as.MapPage(page, frame, v.perms)
	faults.Increment("mapped")
	log.Debugf("fault at %v (%v): mapped %d bytes of %v", addr, at, n, v.file)
	return nil
}

// fillPage reads the first min(limit, file size, len(page)) bytes of ino into
// page and returns how many bytes it meant to read.
func fillPage(ctx context.Context, ino file.Inode, page []byte, limit int64) (int64, error) {
	ino.Lock()
	defer ino.Unlock()
	n := min(limit, ino.Size(), int64(len(page)))
	if n <= 0 {
		return 0, nil
	}
	_, err := ino.ReadAt(ctx, usermem.BytesIOSequence(page[:n]), 0)
	return n, err
}

// MUnmap removes length bytes of mapping starting at addr, which must be
// page aligned and lie in a mapping. Only a SHARED mapping unmapped from its
// start is written back to its file, at the file's current offset and no
// further than the length given to MMap; a failed writeback is logged and
// does not fail the unmap.
func (mm *MemoryManager) MUnmap(ctx context.Context, addr hostarch.Addr, length uint64) error {
	if length == 0 || !addr.IsPageAligned() {
		return linuxerr.EINVAL
	}
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	i, ok := mm.findLocked(addr)
	if !ok {
		return linuxerr.EINVAL
	}
	mm.unmapLocked(ctx, i, addr, length)
	return nil
}

// unmapLocked removes [addr, addr+length) from mapping i.
//
// Preconditions: mm.mappingMu is locked. vmas[i] contains addr.
func (mm *MemoryManager) unmapLocked(ctx context.Context, i int, addr hostarch.Addr, length uint64) {
	v := &mm.vmas[i]
	// Nothing beyond the mapping is touched.
	length = min(length, uint64(v.end()-addr))
	if !v.private && addr == v.addr {
		// The page slop past the mapped bytes is never written.
		if n := min(length, v.size); n > 0 {
			mm.writebackLocked(ctx, v, n)
		}
	}
	npages := hostarch.PagesIn(length)
	mm.as.Unmap(addr, npages)

	pageLength := npages * hostarch.PageSize
	if addr == v.addr && pageLength < v.length {
		v.addr += hostarch.Addr(pageLength)
		v.length -= pageLength
		v.size -= min(pageLength, v.size)
		munmaps.Increment("shrunk")
		log.Debugf("munmap [%v, %v): slot %d shrunk to [%v, %v)", addr, addr+hostarch.Addr(length), i, v.addr, v.end())
		return
	}
	h := v.file
	v.file = file.Handle{}
	munmaps.Increment("freed")
	log.Debugf("munmap [%v, %v): slot %d freed", addr, addr+hostarch.Addr(length), i)
	mm.files.Close(ctx, h)
}

// writebackLocked writes the first length bytes of v to its file.
//
// Preconditions: mm.mappingMu is locked.
func (mm *MemoryManager) writebackLocked(ctx context.Context, v *vma, length uint64) {
	src := usermem.IOSequence{
		IO:    mm.as,
		Addrs: hostarch.AddrRange{Start: v.addr, End: v.addr + hostarch.Addr(length)},
		Opts:  usermem.IOOpts{IgnorePermissions: true},
	}
	n, err := mm.files.Write(ctx, v.file, src)
	writebackBytes.IncrementBy(uint64(n))
	if err != nil {
		writebackFails.Increment()
		log.Warningf("munmap of [%v, %v): wrote back %d of %d bytes to %v: %v", v.addr, v.addr+hostarch.Addr(length), n, length, v.file, err)
	}
}

// Sbrk moves the end of the data segment by delta bytes and returns the old
// end. Pages entering the segment are populated immediately.
func (mm *MemoryManager) Sbrk(ctx context.Context, delta int64) (hostarch.Addr, error) {
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	old := mm.brk
	switch {
	case delta > 0:
		end, ok := old.AddLength(uint64(delta))
		if !ok {
			return 0, linuxerr.ENOMEM
		}
		first, last := old.MustRoundUp(), end.MustRoundUp()
		if mm.overlapsLocked(first, last) {
			return 0, linuxerr.ENOMEM
		}
		for va := first; va < last; va += hostarch.PageSize {
			frame, err := mm.mf.Allocate()
			if err != nil {
				mm.as.Unmap(first, uint64(va-first)/hostarch.PageSize)
				return 0, err
			}
			mm.as.MapPage(va, frame, hostarch.ReadWrite)
		}
		mm.brk = end
	case delta < 0:
		if uint64(-delta) > uint64(old) {
			return 0, linuxerr.EINVAL
		}
		end := old - hostarch.Addr(-delta)
		first := end.MustRoundUp()
		mm.as.Unmap(first, hostarch.PagesIn(uint64(old.MustRoundUp()-first)))
		mm.brk = end
	}
	return old, nil
}
