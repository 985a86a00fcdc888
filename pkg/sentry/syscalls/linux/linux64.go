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

// Package linux provides the syscall table, numbered the way xv6 numbers
// its syscalls.
package linux

import (
	"gvisor.dev/filecore/pkg/abi/linux"
	"gvisor.dev/filecore/pkg/errors/linuxerr"
	"gvisor.dev/filecore/pkg/sentry/kernel"
	"gvisor.dev/filecore/pkg/sentry/syscalls"
)

// MaxPath is the longest path name a syscall accepts, including the
// terminating NUL.
const MaxPath = 128

// Table is the syscall table. The entries that return ENOSYS are those
// syscalls we don't currently support.
var Table = &kernel.SyscallTable{
	Table: map[uintptr]kernel.Syscall{
		linux.SYS_FORK:   syscalls.Supported("fork", Fork),
		linux.SYS_EXIT:   syscalls.Supported("exit", Exit),
		linux.SYS_WAIT:   syscalls.ErrorWithEvent("wait", linuxerr.ENOSYS),
		linux.SYS_PIPE:   syscalls.Supported("pipe", Pipe),
		linux.SYS_READ:   syscalls.Supported("read", Read),
		linux.SYS_KILL:   syscalls.ErrorWithEvent("kill", linuxerr.ENOSYS),
		linux.SYS_EXEC:   syscalls.ErrorWithEvent("exec", linuxerr.ENOSYS),
		linux.SYS_FSTAT:  syscalls.Supported("fstat", Fstat),
		linux.SYS_CHDIR:  syscalls.ErrorWithEvent("chdir", linuxerr.ENOSYS),
		linux.SYS_DUP:    syscalls.Supported("dup", Dup),
		linux.SYS_GETPID: syscalls.Supported("getpid", Getpid),
		linux.SYS_SBRK:   syscalls.Supported("sbrk", Sbrk),
		linux.SYS_SLEEP:  syscalls.ErrorWithEvent("sleep", linuxerr.ENOSYS),
		linux.SYS_UPTIME: syscalls.ErrorWithEvent("uptime", linuxerr.ENOSYS),
		linux.SYS_OPEN:   syscalls.Supported("open", Open),
		linux.SYS_WRITE:  syscalls.Supported("write", Write),
		linux.SYS_MKNOD:  syscalls.Supported("mknod", Mknod),
		linux.SYS_UNLINK: syscalls.Supported("unlink", Unlink),
		linux.SYS_LINK:   syscalls.ErrorWithEvent("link", linuxerr.ENOSYS),
		// The root directory is the only directory.
		linux.SYS_MKDIR:  syscalls.Error("mkdir", linuxerr.EPERM),
		linux.SYS_CLOSE:  syscalls.Supported("close", Close),
		linux.SYS_MMAP:   syscalls.Supported("mmap", Mmap),
		linux.SYS_MUNMAP: syscalls.Supported("munmap", Munmap),
	},
}

func init() {
	kernel.RegisterSyscallTable(Table)
}
