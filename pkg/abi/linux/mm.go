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

// Package linux contains the constants and types needed to interface with
// the sentry's system call ABI.
package linux

import (
	"strings"

	"golang.org/x/sys/unix"
)

// Protections for mmap(2). These share their values with the host's.
const (
	PROT_NONE  = unix.PROT_NONE
	PROT_READ  = unix.PROT_READ
	PROT_WRITE = unix.PROT_WRITE
	PROT_EXEC  = unix.PROT_EXEC
)

// Flags for mmap(2).
const (
	MAP_SHARED  = unix.MAP_SHARED
	MAP_PRIVATE = unix.MAP_PRIVATE
	MAP_TYPE    = MAP_SHARED | MAP_PRIVATE
)

// MMapFailed is the value returned to the application by a failing mmap(2).
const MMapFailed = ^uintptr(0)

// ProtString renders prot the way /proc/[pid]/maps does.
func ProtString(prot int) string {
	var b strings.Builder
	for _, p := range []struct {
		bit int
		c   byte
	}{{PROT_READ, 'r'}, {PROT_WRITE, 'w'}, {PROT_EXEC, 'x'}} {
		if prot&p.bit != 0 {
			b.WriteByte(p.c)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}
