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
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/subcommands"
	"gvisor.dev/filecore/pkg/abi/linux"
	"gvisor.dev/filecore/pkg/sentry/file"
	"gvisor.dev/filecore/runfc/cmd/util"
	"gvisor.dev/filecore/runfc/config"
	"gvisor.dev/filecore/runfc/flag"
)

// Copy implements subcommands.Command for the "copy" command.
type Copy struct {
	dst string
}

// Name implements subcommands.Command.Name.
func (*Copy) Name() string {
	return "copy"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Copy) Synopsis() string {
	return "copy a host file into the file system with one write and read it back"
}

// Usage implements subcommands.Command.Usage.
func (*Copy) Usage() string {
	return `copy [-dst <name>] <host file> - writes the host file into the root file system.

The file is written with a single write(2), which the kernel splits into
journal transactions, and then read back and compared.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *Copy) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.dst, "dst", "", "name of the copy, default is the base name of the host file.")
}

// Execute implements subcommands.Command.Execute.
func (c *Copy) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	data, err := os.ReadFile(f.Arg(0))
	if err != nil {
		util.Fatalf("reading %q: %v", f.Arg(0), err)
	}
	dst := c.dst
	if dst == "" {
		dst = filepath.Base(f.Arg(0))
	}
	if err := c.run(ctx, conf, dst, data, os.Stdout); err != nil {
		util.Fatalf("copy: %v", err)
	}
	return subcommands.ExitSuccess
}

func (c *Copy) run(ctx context.Context, conf *config.Config, dst string, data []byte, out io.Writer) error {
	k, err := boot(ctx, conf, strings.NewReader(""), io.Discard)
	if err != nil {
		return err
	}
	defer k.Destroy()
	p, err := newProcess(ctx, k, len(data))
	if err != nil {
		return err
	}
	defer p.exit()

	fd, err := p.open(dst, linux.O_CREATE|linux.O_WRONLY|linux.O_TRUNC)
	if err != nil {
		return err
	}
	before := k.Journal().Stats()
	n, err := p.write(fd, data)
	after := k.Journal().Stats()
	p.close(fd)
	if err != nil {
		return fmt.Errorf("write(%q) of %d bytes: %w", dst, len(data), err)
	}

	fd, err = p.open(dst, linux.O_RDONLY)
	if err != nil {
		return err
	}
	defer p.close(fd)
	back, err := p.readAll(fd)
	if err != nil {
		return fmt.Errorf("read(%q): %w", dst, err)
	}
	if !bytes.Equal(back, data) {
		return fmt.Errorf("read back %d bytes that differ from the %d written", len(back), len(data))
	}

	fmt.Fprintf(out, "copied %d bytes to %q\n", n, dst)
	fmt.Fprintf(out, "transactions: %d of at most %d bytes, %d commits, %d blocks logged\n",
		after.Ops-before.Ops, file.MaxWriteChunk(conf.MaxOpBlocks, conf.BlockSize), after.Commits-before.Commits, after.BlocksLogged-before.BlocksLogged)
	fmt.Fprintf(out, "free blocks: %d, free inodes: %d\n", k.RootFS().FreeBlocks(), k.RootFS().FreeInodes())
	return nil
}
