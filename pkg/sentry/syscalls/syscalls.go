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

// Package syscalls is the interface from the application to the kernel.
//
// Note that the stubs in this package may merely provide the interface, not
// the actual implementation. It just makes writing syscall stubs
// straightforward.
package syscalls

import (
	"context"
	"time"

	"gvisor.dev/filecore/pkg/log"
	"gvisor.dev/filecore/pkg/sentry/arch"
	"gvisor.dev/filecore/pkg/sentry/kernel"
)

// unimplementedLog rate limits reports of unsupported syscalls.
var unimplementedLog = log.BasicRateLimitedLogger(time.Second)

// Supported returns a syscall that is fully supported.
func Supported(name string, fn kernel.SyscallFn) kernel.Syscall {
	return kernel.Syscall{
		Name: name,
		Fn:   fn,
	}
}

// Error returns a syscall handler that will always give the passed error.
func Error(name string, err error) kernel.Syscall {
	return kernel.Syscall{
		Name: name,
		Fn: func(context.Context, *kernel.Task, arch.SyscallArguments) (uintptr, error) {
			return 0, err
		},
	}
}

// ErrorWithEvent gives a syscall function that reports an unimplemented
// syscall and returns the passed error.
func ErrorWithEvent(name string, err error) kernel.Syscall {
	return kernel.Syscall{
		Name: name,
		Fn: func(_ context.Context, t *kernel.Task, _ arch.SyscallArguments) (uintptr, error) {
			unimplementedLog.Warningf("%v: unsupported syscall %s", t, name)
			return 0, err
		},
	}
}
