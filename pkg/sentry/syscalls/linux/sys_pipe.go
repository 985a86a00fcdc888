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
	"encoding/binary"

	"gvisor.dev/filecore/pkg/errors/linuxerr"
	"gvisor.dev/filecore/pkg/log"
	"gvisor.dev/filecore/pkg/sentry/arch"
	"gvisor.dev/filecore/pkg/sentry/kernel"
)

// Pipe implements syscall pipe(fds).
func Pipe(ctx context.Context, t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	addr := args[0].Pointer()

	k := t.Kernel()
	r, w, err := k.NewPipe()
	if err != nil {
		return 0, err
	}
	rfd, err := t.FDTable().NewFD(r)
	if err != nil {
		k.Files().Close(ctx, r)
		k.Files().Close(ctx, w)
		return 0, err
	}
	wfd, err := t.FDTable().NewFD(w)
	if err != nil {
		t.FDTable().Remove(rfd)
		k.Files().Close(ctx, r)
		k.Files().Close(ctx, w)
		return 0, err
	}

	var fds [8]byte
	binary.LittleEndian.PutUint32(fds[0:], uint32(rfd))
	binary.LittleEndian.PutUint32(fds[4:], uint32(wfd))
	if err := t.Store(ctx, addr, fds[:]); err != nil {
		log.Debugf("%v: pipe: storing descriptors at %v: %v", t, addr, err)
		t.FDTable().Remove(rfd)
		t.FDTable().Remove(wfd)
		k.Files().Close(ctx, r)
		k.Files().Close(ctx, w)
		return 0, linuxerr.EFAULT
	}
	return 0, nil
}
