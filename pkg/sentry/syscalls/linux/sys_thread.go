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

	"gvisor.dev/filecore/pkg/sentry/arch"
	"gvisor.dev/filecore/pkg/sentry/kernel"
)

// Getpid implements syscall getpid.
func Getpid(ctx context.Context, t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	return uintptr(t.PID()), nil
}

// Fork implements syscall fork. It returns the child's pid to the parent.
// The child is left for the caller to run and exit.
func Fork(ctx context.Context, t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	child, err := t.Fork(ctx)
	if err != nil {
		return 0, err
	}
	return uintptr(child.PID()), nil
}

// Exit implements syscall exit.
func Exit(ctx context.Context, t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	t.Exit(ctx)
	return 0, nil
}
