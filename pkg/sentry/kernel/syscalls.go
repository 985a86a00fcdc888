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

package kernel

import (
	"context"
	"fmt"
	"sync"

	"gvisor.dev/filecore/pkg/sentry/arch"
)

// SyscallFn is a syscall implementation. A non-nil error makes the syscall
// return -1 to the application.
type SyscallFn func(ctx context.Context, t *Task, args arch.SyscallArguments) (uintptr, error)

// Syscall includes the syscall implementation and compatibility information.
type Syscall struct {
	// Name is the syscall name.
	Name string

	// Fn is the implementation of the syscall.
	Fn SyscallFn
}

// SyscallTable is a lookup table of system calls.
type SyscallTable struct {
	// Table is the collection of functions.
	Table map[uintptr]Syscall

	// lookup is a fixed-size array that holds the syscalls (indexed by
	// their numbers). It is used for fast look ups.
	lookup []Syscall
}

// MaxSysno returns the largest system call number.
func (s *SyscallTable) MaxSysno() (max uintptr) {
	for num := range s.Table {
		if num > max {
			max = num
		}
	}
	return max
}

// init initializes the system call table.
func (s *SyscallTable) init() {
	s.lookup = make([]Syscall, s.MaxSysno()+1)
	for num, sc := range s.Table {
		if sc.Fn == nil {
			panic(fmt.Sprintf("syscall %d (%s) has no implementation", num, sc.Name))
		}
		s.lookup[num] = sc
	}
}

// Lookup returns the syscall implementation, if one exists.
func (s *SyscallTable) Lookup(sysno uintptr) (Syscall, bool) {
	if sysno < uintptr(len(s.lookup)) {
		sc := s.lookup[sysno]
		return sc, sc.Fn != nil
	}
	return Syscall{}, false
}

// mapLookup is equivalent to Lookup, except that it only uses the syscall
// table rather than the fast lookup array. This is used for benchmark
// comparisons.
func (s *SyscallTable) mapLookup(sysno uintptr) (Syscall, bool) {
	sc, ok := s.Table[sysno]
	return sc, ok
}

var (
	syscallTableMu sync.RWMutex

	// syscallTable is the registered table. syscallTable is protected by
	// syscallTableMu.
	syscallTable *SyscallTable
)

// RegisterSyscallTable registers the syscall table that tasks use. It
// replaces any previously registered table.
func RegisterSyscallTable(s *SyscallTable) {
	s.init()
	syscallTableMu.Lock()
	defer syscallTableMu.Unlock()
	syscallTable = s
}

// LookupSyscallTable returns the registered syscall table.
func LookupSyscallTable() (*SyscallTable, bool) {
	syscallTableMu.RLock()
	defer syscallTableMu.RUnlock()
	return syscallTable, syscallTable != nil
}
