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

// Package cmd holds implementations of the runfc commands.
package cmd

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"gvisor.dev/filecore/pkg/abi/linux"
	"gvisor.dev/filecore/pkg/hostarch"
	"gvisor.dev/filecore/pkg/sentry/arch"
	"gvisor.dev/filecore/pkg/sentry/kernel"
	"gvisor.dev/filecore/runfc/config"

	// Registers the syscall table.
	_ "gvisor.dev/filecore/pkg/sentry/syscalls/linux"
)

// maxPath matches the longest path open(2) accepts.
const maxPath = 128

// boot starts a kernel sized by conf with a console on in and out.
func boot(ctx context.Context, conf *config.Config, in io.Reader, out io.Writer) (*kernel.Kernel, error) {
	kcfg := conf.KernelConfig()
	kcfg.ConsoleIn = in
	kcfg.ConsoleOut = out
	return kernel.New(ctx, kcfg)
}

// process drives a task through the syscall table the way a user program
// would. Its arguments are staged in a scratch buffer in the task's data
// segment.
type process struct {
	ctx     context.Context
	task    *kernel.Task
	scratch hostarch.Addr
	size    int
}

// newProcess starts a task of k with size bytes of scratch space. The
// scratch space must be allocated before anything is mapped, since the data
// segment cannot grow into a mapping.
func newProcess(ctx context.Context, k *kernel.Kernel, size int) (*process, error) {
	task, err := k.NewTask(ctx)
	if err != nil {
		return nil, err
	}
	p := &process{ctx: ctx, task: task, size: size + maxPath}
	addr, err := p.syscall(linux.SYS_SBRK, uintptr(p.size))
	if err != nil {
		task.Exit(ctx)
		return nil, fmt.Errorf("allocating %d bytes of scratch space: %w", p.size, err)
	}
	p.scratch = hostarch.Addr(addr)
	return p, nil
}

func (p *process) exit() {
	p.syscall(linux.SYS_EXIT)
}

func (p *process) syscall(sysno uintptr, args ...uintptr) (uintptr, error) {
	return p.task.Syscall(p.ctx, sysno, arch.Args(args...))
}

// buffer returns the address of n bytes of scratch space after the path
// area.
func (p *process) buffer(n int) (hostarch.Addr, error) {
	if n > p.size-maxPath {
		return 0, fmt.Errorf("%d bytes do not fit in %d bytes of scratch space", n, p.size-maxPath)
	}
	return p.scratch + maxPath, nil
}

func (p *process) path(name string) (hostarch.Addr, error) {
	if len(name) >= maxPath {
		return 0, fmt.Errorf("path %q is too long", name)
	}
	if err := p.task.Store(p.ctx, p.scratch, append([]byte(name), 0)); err != nil {
		return 0, err
	}
	return p.scratch, nil
}

func (p *process) open(name string, mode int) (int32, error) {
	addr, err := p.path(name)
	if err != nil {
		return -1, err
	}
	fd, err := p.syscall(linux.SYS_OPEN, uintptr(addr), uintptr(mode))
	if err != nil {
		return -1, fmt.Errorf("open(%q): %w", name, err)
	}
	return int32(fd), nil
}

func (p *process) close(fd int32) error {
	_, err := p.syscall(linux.SYS_CLOSE, uintptr(fd))
	return err
}

func (p *process) dup(fd int32) (int32, error) {
	nfd, err := p.syscall(linux.SYS_DUP, uintptr(fd))
	if err != nil {
		return -1, err
	}
	return int32(nfd), nil
}

// write writes data to fd with a single write(2).
func (p *process) write(fd int32, data []byte) (int, error) {
	buf, err := p.buffer(len(data))
	if err != nil {
		return 0, err
	}
	if err := p.task.Store(p.ctx, buf, data); err != nil {
		return 0, err
	}
	n, err := p.syscall(linux.SYS_WRITE, uintptr(fd), uintptr(buf), uintptr(len(data)))
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// read reads at most n bytes from fd with a single read(2).
func (p *process) read(fd int32, n int) ([]byte, error) {
	buf, err := p.buffer(n)
	if err != nil {
		return nil, err
	}
	r, err := p.syscall(linux.SYS_READ, uintptr(fd), uintptr(buf), uintptr(n))
	if err != nil {
		return nil, err
	}
	data := make([]byte, r)
	if err := p.task.Load(p.ctx, buf, data); err != nil {
		return nil, err
	}
	return data, nil
}

// readAll reads fd until end of file.
func (p *process) readAll(fd int32) ([]byte, error) {
	var all []byte
	for {
		data, err := p.read(fd, p.size-maxPath)
		if err != nil {
			return all, err
		}
		if len(data) == 0 {
			return all, nil
		}
		all = append(all, data...)
	}
}

// createFile creates name holding data.
func (p *process) createFile(name string, data []byte) error {
	fd, err := p.open(name, linux.O_CREATE|linux.O_WRONLY|linux.O_TRUNC)
	if err != nil {
		return err
	}
	defer p.close(fd)
	if _, err := p.write(fd, data); err != nil {
		return fmt.Errorf("write(%q): %w", name, err)
	}
	return nil
}

// cat copies name to the console, as cat(1) would.
func (p *process) cat(name string) error {
	fd, err := p.open(name, linux.O_RDONLY)
	if err != nil {
		return err
	}
	defer p.close(fd)
	console, err := p.open("console", linux.O_WRONLY)
	if err != nil {
		return err
	}
	defer p.close(console)
	for {
		data, err := p.read(fd, p.size-maxPath)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return nil
		}
		if _, err := p.write(console, data); err != nil {
			return err
		}
	}
}

// pipe returns the read and write descriptors of a new pipe.
func (p *process) pipe() (int32, int32, error) {
	buf, err := p.buffer(8)
	if err != nil {
		return -1, -1, err
	}
	if _, err := p.syscall(linux.SYS_PIPE, uintptr(buf)); err != nil {
		return -1, -1, err
	}
	var fds [8]byte
	if err := p.task.Load(p.ctx, buf, fds[:]); err != nil {
		return -1, -1, err
	}
	return int32(binary.LittleEndian.Uint32(fds[0:])), int32(binary.LittleEndian.Uint32(fds[4:])), nil
}
