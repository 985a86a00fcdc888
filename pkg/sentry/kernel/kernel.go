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

// Package kernel ties the file table, the device switch, the filesystem and
// physical memory together and runs tasks against them.
//
// Lock order (outermost locks must be taken first):
//
//	Kernel.mu
//	  Task.mu
//	    FDTable.mu
//
// Syscalls take the mm, journal and inode locks described in package mm
// without holding any of the above.
package kernel

import (
	"context"
	"fmt"
	"io"
	"sync"

	"gvisor.dev/filecore/pkg/log"
	"gvisor.dev/filecore/pkg/sentry/devices"
	"gvisor.dev/filecore/pkg/sentry/file"
	"gvisor.dev/filecore/pkg/sentry/fs/journal"
	"gvisor.dev/filecore/pkg/sentry/fsimpl/memfs"
	"gvisor.dev/filecore/pkg/sentry/kernel/pipe"
	"gvisor.dev/filecore/pkg/sentry/mm"
	"gvisor.dev/filecore/pkg/sentry/pgalloc"
)

// Config holds the sizes of the kernel's tables.
type Config struct {
	// NFile is the capacity of the system-wide file table.
	NFile int

	// NOFile is the number of descriptors per task.
	NOFile int

	// NVMA is the number of mapping slots per task.
	NVMA int

	// NDev is the number of device majors.
	NDev int

	// MaxOpBlocks is the maximum number of blocks one journal operation
	// may write.
	MaxOpBlocks int

	// FS is the geometry of the root filesystem.
	FS memfs.Options

	// PipeSize is the capacity of a pipe in bytes.
	PipeSize int

	// PhysPages is the number of physical page frames.
	PhysPages int

	// ConsoleIn and ConsoleOut back the console device. A nil stream
	// leaves that direction unsupported.
	ConsoleIn  io.Reader
	ConsoleOut io.Writer
}

// DefaultConfig returns xv6's table sizes.
func DefaultConfig() Config {
	return Config{
		NFile:       100,
		NOFile:      16,
		NVMA:        mm.NVMA,
		NDev:        10,
		MaxOpBlocks: 10,
		FS:          memfs.DefaultOptions(),
		PipeSize:    pipe.DefaultPipeSize,
		PhysPages:   1024,
	}
}

// Kernel owns the system-wide state shared by all tasks.
type Kernel struct {
	config Config

	files   *file.Table
	devices *devices.Registry
	journal *journal.Journal
	fs      *memfs.Filesystem
	mf      *pgalloc.MemoryFile

	mu sync.Mutex

	// nextPID is the pid of the next task. nextPID is protected by mu.
	nextPID int32

	// tasks holds the tasks that have not exited. tasks is protected by mu.
	tasks map[int32]*Task
}

// New boots a kernel: it formats the root filesystem, registers the
// console and null devices and creates their device nodes.
func New(ctx context.Context, cfg Config) (*Kernel, error) {
	j := journal.New(cfg.MaxOpBlocks, cfg.FS.LogSize)
	fs, err := memfs.New(cfg.FS, j)
	if err != nil {
		return nil, fmt.Errorf("creating root filesystem: %w", err)
	}

	devs := devices.NewRegistry(cfg.NDev)
	if err := devs.Register(devices.ConsoleMajor, devices.NewConsole(cfg.ConsoleIn, cfg.ConsoleOut)); err != nil {
		return nil, err
	}
	if err := devs.Register(devices.NullMajor, devices.NewNull()); err != nil {
		return nil, err
	}

	mf, err := pgalloc.NewMemoryFile(cfg.PhysPages)
	if err != nil {
		return nil, fmt.Errorf("creating memory file: %w", err)
	}

	k := &Kernel{
		config:  cfg,
		devices: devs,
		journal: j,
		fs:      fs,
		mf:      mf,
		files: file.NewTable(file.Options{
			Capacity:    cfg.NFile,
			MaxOpBlocks: cfg.MaxOpBlocks,
			BlockSize:   cfg.FS.BlockSize,
			Journal:     j,
			Devices:     devs,
		}),
		nextPID: 1,
		tasks:   make(map[int32]*Task),
	}
	for _, dev := range []struct {
		name  string
		major int16
	}{
		{"console", devices.ConsoleMajor},
		{"null", devices.NullMajor},
	} {
		if err := k.Mknod(ctx, dev.name, dev.major, 0); err != nil {
			mf.Destroy()
			return nil, fmt.Errorf("creating %q: %w", dev.name, err)
		}
	}
	log.Infof("Kernel booted: %d files, %d descriptors per task, %d frames, write chunk %d bytes",
		cfg.NFile, cfg.NOFile, cfg.PhysPages, file.MaxWriteChunk(cfg.MaxOpBlocks, cfg.FS.BlockSize))
	return k, nil
}

// Destroy releases the kernel's physical memory. Every task must have
// exited.
func (k *Kernel) Destroy() error {
	k.mu.Lock()
	n := len(k.tasks)
	k.mu.Unlock()
	if n != 0 {
		panic(fmt.Sprintf("Destroy with %d live tasks", n))
	}
	return k.mf.Destroy()
}

// Config returns the configuration k was booted with.
func (k *Kernel) Config() Config {
	return k.config
}

// Files returns the system-wide file table.
func (k *Kernel) Files() *file.Table {
	return k.files
}

// Devices returns the device switch.
func (k *Kernel) Devices() *devices.Registry {
	return k.devices
}

// Journal returns the journal of the root filesystem.
func (k *Kernel) Journal() *journal.Journal {
	return k.journal
}

// RootFS returns the root filesystem.
func (k *Kernel) RootFS() *memfs.Filesystem {
	return k.fs
}

// MemoryFile returns the physical memory of k.
func (k *Kernel) MemoryFile() *pgalloc.MemoryFile {
	return k.mf
}

// NumTasks returns the number of tasks that have not exited.
func (k *Kernel) NumTasks() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.tasks)
}

// TaskWithID returns the live task with the given pid, or nil.
func (k *Kernel) TaskWithID(pid int32) *Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.tasks[pid]
}
