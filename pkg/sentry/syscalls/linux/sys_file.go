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
	"gvisor.dev/filecore/pkg/sentry/file"
	"gvisor.dev/filecore/pkg/sentry/kernel"
)

// copyInPath copies a path argument.
func copyInPath(ctx context.Context, t *kernel.Task, addr hostarch.Addr) (string, error) {
	path, err := t.CopyInString(ctx, addr, MaxPath)
	if err != nil {
		return "", err
	}
	if len(path) == MaxPath {
		// No NUL within MaxPath bytes.
		return "", linuxerr.ENAMETOOLONG
	}
	return path, nil
}

// newFD installs h in t's table. On failure h is closed.
func newFD(ctx context.Context, t *kernel.Task, h file.Handle) (uintptr, error) {
	fd, err := t.FDTable().NewFD(h)
	if err != nil {
		t.Kernel().Files().Close(ctx, h)
		return 0, err
	}
	return uintptr(fd), nil
}

// Open implements syscall open(path, mode).
func Open(ctx context.Context, t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	addr := args[0].Pointer()
	mode := int(args[1].Int())

	path, err := copyInPath(ctx, t, addr)
	if err != nil {
		return 0, err
	}
	h, err := t.Kernel().OpenFile(ctx, path, mode)
	if err != nil {
		return 0, err
	}
	return newFD(ctx, t, h)
}

// Close implements syscall close(fd).
func Close(ctx context.Context, t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	fd := args[0].Int()

	h, ok := t.FDTable().Remove(fd)
	if !ok {
		return 0, linuxerr.EBADF
	}
	t.Kernel().Files().Close(ctx, h)
	return 0, nil
}

// Dup implements syscall dup(fd).
func Dup(ctx context.Context, t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	fd := args[0].Int()

	h, ok := t.FDTable().Get(fd)
	if !ok {
		return 0, linuxerr.EBADF
	}
	return newFD(ctx, t, t.Kernel().Files().Dup(h))
}

// Mknod implements syscall mknod(path, major, minor).
func Mknod(ctx context.Context, t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	addr := args[0].Pointer()
	major := int16(args[1].Int())
	minor := int16(args[2].Int())

	path, err := copyInPath(ctx, t, addr)
	if err != nil {
		return 0, err
	}
	return 0, t.Kernel().Mknod(ctx, path, major, minor)
}

// Unlink implements syscall unlink(path).
func Unlink(ctx context.Context, t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	addr := args[0].Pointer()

	path, err := copyInPath(ctx, t, addr)
	if err != nil {
		return 0, err
	}
	return 0, t.Kernel().Unlink(ctx, path)
}
