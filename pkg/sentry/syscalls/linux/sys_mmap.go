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

package linux

import (
	"context"

	"gvisor.dev/filecore/pkg/abi/linux"
	"gvisor.dev/filecore/pkg/errors/linuxerr"
	"gvisor.dev/filecore/pkg/hostarch"
	"gvisor.dev/filecore/pkg/sentry/arch"
	"gvisor.dev/filecore/pkg/sentry/kernel"
	"gvisor.dev/filecore/pkg/sentry/mm"
)

// Mmap implements syscall mmap(addr, length, prot, flags, fd, offset).
//
// The address hint and offset are ignored: the kernel picks the address
// and mappings always start at the beginning of the file.
func Mmap(ctx context.Context, t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	length := args[1].Int64()
	prot := args[2].Int()
	flags := args[3].Int()
	fd := args[4].Int()

	if length <= 0 {
		return 0, linuxerr.EINVAL
	}
	h, ok := t.FDTable().Get(fd)
	if !ok {
		return 0, linuxerr.EBADF
	}
	opts := mm.MMapOpts{
		File:   h,
		Length: uint64(length),
		Perms: hostarch.AccessType{
			Read:    linux.PROT_READ&prot != 0,
			Write:   linux.PROT_WRITE&prot != 0,
			Execute: linux.PROT_EXEC&prot != 0,
		},
		Flags: int(flags),
	}
	addr, err := t.MemoryManager().MMap(ctx, opts)
	return uintptr(addr), err
}

// Munmap implements syscall munmap(addr, length).
func Munmap(ctx context.Context, t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	return 0, t.MemoryManager().MUnmap(ctx, args[0].Pointer(), args[1].Uint64())
}

// Sbrk implements syscall sbrk(n).
func Sbrk(ctx context.Context, t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	old, err := t.MemoryManager().Sbrk(ctx, int64(args[0].Int()))
	return uintptr(old), err
}
