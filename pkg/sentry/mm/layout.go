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
	"gvisor.dev/filecore/pkg/errors/linuxerr"
	"gvisor.dev/filecore/pkg/hostarch"
)

// layoutAllocator chooses the address of a new mapping.
type layoutAllocator interface {
	// next returns the start of a length-byte mapping that will occupy
	// vmas[slot].
	next(vmas []vma, slot int, brk hostarch.Addr, length uint64) (hostarch.Addr, error)
}

// bumpAllocator places slot 0 at the page above brk and every other slot
// where the previous slot ends, whether or not the previous slot is still
// live. A candidate below brk or overlapping a live mapping is moved up.
type bumpAllocator struct{}

// next implements layoutAllocator.next.
func (bumpAllocator) next(vmas []vma, slot int, brk hostarch.Addr, length uint64) (hostarch.Addr, error) {
	base, ok := brk.RoundUp()
	if !ok {
		return 0, linuxerr.ENOMEM
	}
	start := base
	if slot > 0 {
		// The data segment may have grown over a stale slot.
		start = max(vmas[slot-1].end(), base)
	}
	for {
		end, ok := start.AddLength(length)
		if !ok {
			return 0, linuxerr.ENOMEM
		}
		moved := false
		for i := range vmas {
			v := &vmas[i]
			if i == slot || !v.live() {
				continue
			}
			if start < v.end() && v.addr < end {
				start = v.end()
				moved = true
			}
		}
		if !moved {
			return start, nil
		}
	}
}
