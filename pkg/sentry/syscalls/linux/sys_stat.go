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
	"gvisor.dev/filecore/pkg/sentry/arch"
	"gvisor.dev/filecore/pkg/sentry/kernel"
	"gvisor.dev/filecore/pkg/sentry/usermem"
)

// Fstat implements syscall fstat(fd, st).
func Fstat(ctx context.Context, t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	fd := args[0].Int()
	addr := args[1].Pointer()

	h, ok := t.FDTable().Get(fd)
	if !ok {
		return 0, linuxerr.EBADF
	}
	ar, ok := addr.ToRange(linux.SizeofStat)
	if !ok {
		return 0, linuxerr.EFAULT
	}
	// The record is copied after the inode is unlocked, so the copy may
	// fault.
	dst := usermem.IOSequence{IO: t.MemoryManager(), Addrs: ar}
	return 0, t.Kernel().Files().Stat(ctx, h, dst)
}
