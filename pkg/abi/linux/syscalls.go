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

// System call numbers.
const (
	SYS_FORK   = 1
	SYS_EXIT   = 2
	SYS_WAIT   = 3
	SYS_PIPE   = 4
	SYS_READ   = 5
	SYS_KILL   = 6
	SYS_EXEC   = 7
	SYS_FSTAT  = 8
	SYS_CHDIR  = 9
	SYS_DUP    = 10
	SYS_GETPID = 11
	SYS_SBRK   = 12
	SYS_SLEEP  = 13
	SYS_UPTIME = 14
	SYS_OPEN   = 15
	SYS_WRITE  = 16
	SYS_MKNOD  = 17
	SYS_UNLINK = 18
	SYS_LINK   = 19
	SYS_MKDIR  = 20
	SYS_CLOSE  = 21
	SYS_MMAP   = 22
	SYS_MUNMAP = 23
)
