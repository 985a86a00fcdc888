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
	"gvisor.dev/filecore/pkg/sentry/usermem"
)

// CopyOut implements usermem.IO.CopyOut. Unless opts.IgnorePermissions is
// set, pages that are not yet populated are faulted in as for an
// application write.
//
// Copies that fault must not be made with an inode lock held; see
// Populate.
func (mm *MemoryManager) CopyOut(ctx context.Context, addr hostarch.Addr, src []byte, opts usermem.IOOpts) (int, error) {
	if opts.IgnorePermissions {
		return mm.as.CopyOut(ctx, addr, src, opts)
	}
	if err := mm.populate(ctx, addr, len(src), hostarch.Write); err != nil {
		// Copy what is accessible.
		n, _ := mm.as.CopyOut(ctx, addr, src[:mm.accessible(addr, len(src), hostarch.Write)], opts)
		return n, err
	}
	return mm.as.CopyOut(ctx, addr, src, opts)
}

// CopyIn implements usermem.IO.CopyIn.
func (mm *MemoryManager) CopyIn(ctx context.Context, addr hostarch.Addr, dst []byte, opts usermem.IOOpts) (int, error) {
	if opts.IgnorePermissions {
		return mm.as.CopyIn(ctx, addr, dst, opts)
	}
	if err := mm.populate(ctx, addr, len(dst), hostarch.Read); err != nil {
		n, _ := mm.as.CopyIn(ctx, addr, dst[:mm.accessible(addr, len(dst), hostarch.Read)], opts)
		return n, err
	}
	return mm.as.CopyIn(ctx, addr, dst, opts)
}

// Populate faults in every page of ar that is not populated, checking that
// each page permits at. File I/O into application memory calls Populate
// first and then copies through the AddressSpace, since a fault takes the
// lock of the mapped file's inode and the I/O already holds an inode lock.
func (mm *MemoryManager) Populate(ctx context.Context, ar hostarch.AddrRange, at hostarch.AccessType) error {
	if !ar.WellFormed() {
		return linuxerr.EFAULT
	}
	return mm.populate(ctx, ar.Start, int(ar.Length()), at)
}

func (mm *MemoryManager) populate(ctx context.Context, addr hostarch.Addr, length int, at hostarch.AccessType) error {
	if length == 0 {
		return nil
	}
	end, ok := addr.AddLength(uint64(length))
	if !ok {
		return linuxerr.EFAULT
	}
	for va := addr.RoundDown(); va < end; va += hostarch.PageSize {
		_, perms, ok := mm.as.Lookup(va)
		if ok {
			if !perms.SupersetOf(at) {
				return linuxerr.EFAULT
			}
			continue
		}
		if err := mm.HandleUserFault(ctx, max(va, addr), at); err != nil {
			return err
		}
	}
	return nil
}

// accessible returns the length of the prefix of [addr, addr+length) that
// is populated with at least at.
func (mm *MemoryManager) accessible(addr hostarch.Addr, length int, at hostarch.AccessType) int {
	done := 0
	for done < length {
		va := addr + hostarch.Addr(done)
		_, perms, ok := mm.as.Lookup(va)
		if !ok || !perms.SupersetOf(at) {
			break
		}
		done += min(hostarch.PageSize-int(va.PageOffset()), length-done)
	}
	return done
}
