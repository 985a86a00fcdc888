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

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/subcommands"
	"gvisor.dev/filecore/pkg/abi/linux"
	"gvisor.dev/filecore/pkg/hostarch"
	"gvisor.dev/filecore/runfc/cmd/util"
	"gvisor.dev/filecore/runfc/config"
	"gvisor.dev/filecore/runfc/flag"
)

// MMap implements subcommands.Command for the "mmap" command.
type MMap struct {
	name    string
	content string
	touch   string
	private bool
}

// Name implements subcommands.Command.Name.
func (*MMap) Name() string {
	return "mmap"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*MMap) Synopsis() string {
	return "map a file, write to it through memory and unmap it"
}

// Usage implements subcommands.Command.Usage.
func (*MMap) Usage() string {
	return `mmap [flags] - creates a file, maps it, stores to the mapping and unmaps it.

The file is then copied to stdout through the console device. With a
shared mapping the stores reach the file; with -private they do not.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (m *MMap) SetFlags(f *flag.FlagSet) {
	f.StringVar(&m.name, "name", "mapped", "name of the file to create.")
	f.StringVar(&m.content, "content", "hello from a mapped file\n", "initial content of the file.")
	f.StringVar(&m.touch, "touch", "HELLO", "bytes stored at the start of the mapping.")
	f.BoolVar(&m.private, "private", false, "map the file MAP_PRIVATE instead of MAP_SHARED.")
}

// Execute implements subcommands.Command.Execute.
func (m *MMap) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	if err := m.run(ctx, conf, os.Stdout); err != nil {
		util.Fatalf("mmap: %v", err)
	}
	return subcommands.ExitSuccess
}

func (m *MMap) run(ctx context.Context, conf *config.Config, out io.Writer) error {
	if m.content == "" {
		return fmt.Errorf("-content must not be empty")
	}
	if len(m.touch) > len(m.content) {
		return fmt.Errorf("-touch %q is longer than the file", m.touch)
	}
	k, err := boot(ctx, conf, strings.NewReader(""), out)
	if err != nil {
		return err
	}
	defer k.Destroy()
	p, err := newProcess(ctx, k, hostarch.PageSize)
	if err != nil {
		return err
	}
	defer p.exit()

	if err := p.createFile(m.name, []byte(m.content)); err != nil {
		return err
	}
	fd, err := p.open(m.name, linux.O_RDWR)
	if err != nil {
		return err
	}
	defer p.close(fd)

	flags := linux.MAP_SHARED
	if m.private {
		flags = linux.MAP_PRIVATE
	}
	length := uintptr(len(m.content))
	r, err := p.syscall(linux.SYS_MMAP, 0, length, linux.PROT_READ|linux.PROT_WRITE, uintptr(flags), uintptr(fd), 0)
	if err != nil {
		return fmt.Errorf("mmap: %w", err)
	}
	addr := hostarch.Addr(r)
	for _, v := range p.task.MemoryManager().VMAs() {
		fmt.Fprintf(out, "%v\n", v)
	}

	// The first load faults the page in from the file.
	mapped := make([]byte, len(m.content))
	if err := p.task.Load(ctx, addr, mapped); err != nil {
		return fmt.Errorf("load from %v: %w", addr, err)
	}
	fmt.Fprintf(out, "mapped at %v: %q\n", addr, mapped)
	if err := p.task.Store(ctx, addr, []byte(m.touch)); err != nil {
		return fmt.Errorf("store to %v: %w", addr, err)
	}
	if _, err := p.syscall(linux.SYS_MUNMAP, uintptr(addr), length); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}

	fmt.Fprintf(out, "%s after munmap:\n", m.name)
	return p.cat(m.name)
}
