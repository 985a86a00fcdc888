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

	"gvisor.dev/filecore/pkg/errors/linuxerr"
	"gvisor.dev/filecore/pkg/hostarch"
	"gvisor.dev/filecore/pkg/log"
	"gvisor.dev/filecore/pkg/metric"
	"gvisor.dev/filecore/pkg/sentry/arch"
	"gvisor.dev/filecore/pkg/sentry/mm"
	"gvisor.dev/filecore/pkg/sentry/platform"
)

// InitialDataSize is the size of the data segment a new task starts with.
const InitialDataSize = 4 * hostarch.PageSize

var (
	syscallCount  = metric.MustCreateNewUint64Metric("/syscalls/calls", "Number of syscalls made by tasks.")
	syscallErrors = metric.MustCreateNewUint64Metric("/syscalls/errors", "Number of syscalls that returned -1.")
	unknownCalls  = metric.MustCreateNewUint64Metric("/syscalls/unknown", "Number of calls to syscall numbers with no implementation.")
)

// Task is a single-threaded application process.
//
// A Task's syscalls and memory accesses are made by one goroutine at a
// time.
type Task struct {
	k   *Kernel
	pid int32

	fdTable *FDTable
	mm      *mm.MemoryManager

	mu sync.Mutex

	// exited is set by Exit. exited is protected by mu.
	exited bool
}

// NewTask creates a task with an empty descriptor table and an
// InitialDataSize data segment.
func (k *Kernel) NewTask(ctx context.Context) (*Task, error) {
	m := mm.NewMemoryManager(mm.Options{
		Files:        k.files,
		AddressSpace: platform.NewAddressSpace(k.mf),
		NVMA:         k.config.NVMA,
	})
	if _, err := m.Sbrk(ctx, InitialDataSize); err != nil {
		m.Release(ctx)
		return nil, fmt.Errorf("allocating data segment: %w", err)
	}
	return k.addTask(k.NewFDTable(), m), nil
}

func (k *Kernel) addTask(fdTable *FDTable, m *mm.MemoryManager) *Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	t := &Task{
		k:       k,
		pid:     k.nextPID,
		fdTable: fdTable,
		mm:      m,
	}
	k.nextPID++
	k.tasks[t.pid] = t
	log.Debugf("%v: created", t)
	return t
}

// Fork creates a child of t that shares t's open files and has a copy of
// its memory.
func (t *Task) Fork(ctx context.Context) (*Task, error) {
	m, err := t.mm.Fork(ctx, platform.NewAddressSpace(t.k.mf))
	if err != nil {
		return nil, err
	}
	child := t.k.addTask(t.fdTable.Fork(), m)
	log.Debugf("%v: forked %v", t, child)
	return child, nil
}

// Exit releases t's memory and closes its descriptors.
func (t *Task) Exit(ctx context.Context) {
	t.mu.Lock()
	if t.exited {
		t.mu.Unlock()
		panic(fmt.Sprintf("%v exited twice", t))
	}
	t.exited = true
	t.mu.Unlock()

	t.mm.Release(ctx)
	t.fdTable.RemoveAll(ctx)

	t.k.mu.Lock()
	delete(t.k.tasks, t.pid)
	t.k.mu.Unlock()
	log.Debugf("%v: exited", t)
}

// Exited returns true once Exit has been called.
func (t *Task) Exited() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exited
}

// String implements fmt.Stringer.
func (t *Task) String() string {
	return fmt.Sprintf("task %d", t.pid)
}

// PID returns t's process ID.
func (t *Task) PID() int32 {
	return t.pid
}

// Kernel returns the kernel t runs on.
func (t *Task) Kernel() *Kernel {
	return t.k
}

// FDTable returns t's descriptor table.
func (t *Task) FDTable() *FDTable {
	return t.fdTable
}

// MemoryManager returns t's memory manager.
func (t *Task) MemoryManager() *mm.MemoryManager {
	return t.mm
}

// Syscall runs system call sysno. It returns the value the application
// sees, which is ^uintptr(0) (-1) whenever err is not nil.
func (t *Task) Syscall(ctx context.Context, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	syscallCount.Increment()
	var sc Syscall
	st, ok := LookupSyscallTable()
	if ok {
		sc, ok = st.Lookup(sysno)
	}
	if !ok {
		unknownCalls.Increment()
		log.Warningf("%v: unknown syscall %d", t, sysno)
		syscallErrors.Increment()
		return ^uintptr(0), linuxerr.ENOSYS
	}

	rval, err := sc.Fn(ctx, t, args)
	if err != nil {
		rval = ^uintptr(0)
		syscallErrors.Increment()
	}
	if log.IsLogging(log.Debug) {
		log.Debugf("[%5d] %s(%v, %v, %v, %v) = %#x, err: %v", t.pid, sc.Name, args[0], args[1], args[2], args[3], rval, err)
	}
	return rval, err
}
