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
	"fmt"

	"gvisor.dev/filecore/pkg/abi/linux"
	"gvisor.dev/filecore/pkg/hostarch"
	"gvisor.dev/filecore/pkg/sentry/file"
)

// vma is one mapping slot. A slot is free when it holds no file; a free
// slot keeps the addr and length it last had.
type vma struct {
	// file is the mapped file. The slot owns one reference on it.
	file file.Handle

	addr   hostarch.Addr
	length uint64

	// size is the number of file bytes the mapping covers: the length
	// requested by mmap, less any prefix unmapped since. size <= length.
	size uint64

	perms hostarch.AccessType

	// private is true for MAP_PRIVATE and false for MAP_SHARED.
	private bool
}

func (v *vma) live() bool {
	return v.file.Valid()
}

func (v *vma) end() hostarch.Addr {
	return v.addr + hostarch.Addr(v.length)
}

func (v *vma) contains(addr hostarch.Addr) bool {
	return v.addr <= addr && addr < v.end()
}

// findLocked returns the index of the live mapping containing addr.
//
// Preconditions: mm.mappingMu is locked.
func (mm *MemoryManager) findLocked(addr hostarch.Addr) (int, bool) {
	for i := range mm.vmas {
		if v := &mm.vmas[i]; v.live() && v.contains(addr) {
			return i, true
		}
	}
	return 0, false
}

// overlapsLocked reports whether [start, end) intersects a live mapping.
//
// Preconditions: mm.mappingMu is locked.
func (mm *MemoryManager) overlapsLocked(start, end hostarch.Addr) bool {
	r := hostarch.AddrRange{Start: start, End: end}
	for i := range mm.vmas {
		v := &mm.vmas[i]
		if v.live() && r.Overlaps(hostarch.AddrRange{Start: v.addr, End: v.end()}) {
			return true
		}
	}
	return false
}

// VMA describes one live mapping.
type VMA struct {
	// Slot is the index of the mapping slot.
	Slot   int
	File   file.Handle
	Range  hostarch.AddrRange
	Perms  hostarch.AccessType
	Shared bool
}

// String renders v like a line of /proc/[pid]/maps.
func (v VMA) String() string {
	share := "p"
	if v.Shared {
		share = "s"
	}
	return fmt.Sprintf("%08x-%08x %s%s %v", uint64(v.Range.Start), uint64(v.Range.End), v.Perms, share, v.File)
}

// VMAs returns the live mappings in slot order.
func (mm *MemoryManager) VMAs() []VMA {
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	var vmas []VMA
	for i := range mm.vmas {
		v := &mm.vmas[i]
		if !v.live() {
			continue
		}
		vmas = append(vmas, VMA{
			Slot:   i,
			File:   v.file,
			Range:  hostarch.AddrRange{Start: v.addr, End: v.end()},
			Perms:  v.perms,
			Shared: !v.private,
		})
	}
	return vmas
}

// sharingFromFlags decodes the sharing mode of mmap flags.
func sharingFromFlags(flags int) (private bool, ok bool) {
	switch flags & linux.MAP_TYPE {
	case linux.MAP_SHARED:
		return false, true
	case linux.MAP_PRIVATE:
		return true, true
	default:
		return false, false
	}
}
