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

	"gvisor.dev/filecore/pkg/errors/linuxerr"
	"gvisor.dev/filecore/pkg/hostarch"
	"gvisor.dev/filecore/pkg/sentry/arch"
	"gvisor.dev/filecore/pkg/sentry/kernel"
)

// Read implements syscall read(fd, buf, n).
func Read(ctx context.Context, t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	fd := args[0].Int()
	addr := args[1].Pointer()
	size := args[2].Int()

	h, ok := t.FDTable().Get(fd)
	if !ok {
		return 0, linuxerr.EBADF
	}

	// Check that the size is legitimate.
	if size < 0 {
		return 0, linuxerr.EINVAL
	}

	// Get the destination of the read.
	dst, err := t.SingleIOSequence(ctx, addr, int(size), hostarch.Write)
	if err != nil {
		return 0, err
	}

	n, err := t.Kernel().Files().Read(ctx, h, dst)
	return uintptr(n), handleIOError(t, n, err, "read")
}

// Write implements syscall write(fd, buf, n).
func Write(ctx context.Context, t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	fd := args[0].Int()
	addr := args[1].Pointer()
	size := args[2].Int()

	h, ok := t.FDTable().Get(fd)
	if !ok {
		return 0, linuxerr.EBADF
	}

	// Check that the size is legitimate.
	if size < 0 {
		return 0, linuxerr.EINVAL
	}

	// Get the source of the write.
	src, err := t.SingleIOSequence(ctx, addr, int(size), hostarch.Read)
	if err != nil {
		return 0, err
	}

	n, err := t.Kernel().Files().Write(ctx, h, src)
	return uintptr(n), handleIOError(t, n, err, "write")
}
