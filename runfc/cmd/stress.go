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
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/filecore/pkg/abi/linux"
	"gvisor.dev/filecore/pkg/errors/linuxerr"
	"gvisor.dev/filecore/pkg/hostarch"
	"gvisor.dev/filecore/pkg/log"
	"gvisor.dev/filecore/pkg/sentry/kernel"
	"gvisor.dev/filecore/runfc/cmd/util"
	"gvisor.dev/filecore/runfc/config"
	"gvisor.dev/filecore/runfc/flag"
)

// Stress implements subcommands.Command for the "stress" command.
type Stress struct {
	workers    int
	iterations int
	files      int
	timeout    time.Duration
}

// Name implements subcommands.Command.Name.
func (*Stress) Name() string {
	return "stress"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stress) Synopsis() string {
	return "open, dup, read and close files from many tasks at once"
}

// Usage implements subcommands.Command.Usage.
func (*Stress) Usage() string {
	return `stress [flags] - runs tasks that share the file table concurrently.

Opens that find the file table or a descriptor table full are retried
with exponential backoff. Use a small --nfile to see retries.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Stress) SetFlags(f *flag.FlagSet) {
	f.IntVar(&s.workers, "workers", 8, "number of concurrent tasks.")
	f.IntVar(&s.iterations, "iterations", 100, "number of open/dup/read/close rounds per task.")
	f.IntVar(&s.files, "files", 4, "number of files the tasks share.")
	f.DurationVar(&s.timeout, "timeout", 30*time.Second, "how long one open may be retried.")
}

// Execute implements subcommands.Command.Execute.
func (s *Stress) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	if err := s.run(ctx, conf, os.Stdout); err != nil {
		util.Fatalf("stress: %v", err)
	}
	return subcommands.ExitSuccess
}

// stressResult counts what the workers did.
type stressResult struct {
	rounds  atomic.Uint64
	retries atomic.Uint64
	bytes   atomic.Uint64
}

func (s *Stress) run(ctx context.Context, conf *config.Config, out io.Writer) error {
	if s.workers <= 0 || s.iterations <= 0 || s.files <= 0 {
		return fmt.Errorf("-workers, -iterations and -files must be positive")
	}
	k, err := boot(ctx, conf, strings.NewReader(""), io.Discard)
	if err != nil {
		return err
	}
	defer k.Destroy()

	setup, err := newProcess(ctx, k, hostarch.PageSize)
	if err != nil {
		return err
	}
	for i := 0; i < s.files; i++ {
		if err := setup.createFile(stressFile(i), []byte(strings.Repeat(stressFile(i), 16))); err != nil {
			setup.exit()
			return err
		}
	}
	setup.exit()

	var res stressResult
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < s.workers; w++ {
		w := w
		g.Go(func() error {
			return s.worker(gctx, k, w, &res)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	js := k.Journal().Stats()
	fmt.Fprintf(out, "%d rounds by %d tasks in %v, %d bytes read\n", res.rounds.Load(), s.workers, time.Since(start).Round(time.Millisecond), res.bytes.Load())
	fmt.Fprintf(out, "retries after a full table: %d\n", res.retries.Load())
	fmt.Fprintf(out, "open files: %d of %d, tasks: %d\n", k.Files().Live(), k.Files().Capacity(), k.NumTasks())
	fmt.Fprintf(out, "journal: %d ops, %d commits, %d waits\n", js.Ops, js.Commits, js.Waits)
	return nil
}

func stressFile(i int) string {
	return fmt.Sprintf("stress%d", i)
}

// worker runs the rounds of task w.
func (s *Stress) worker(ctx context.Context, k *kernel.Kernel, w int, res *stressResult) error {
	p, err := newProcess(ctx, k, hostarch.PageSize)
	if err != nil {
		return fmt.Errorf("task %d: %w", w, err)
	}
	defer p.exit()

	for i := 0; i < s.iterations; i++ {
		name := stressFile((w + i) % s.files)
		var fd, dup int32
		if err := s.retry(ctx, res, func() (err error) {
			fd, err = p.open(name, linux.O_RDONLY)
			return err
		}); err != nil {
			return fmt.Errorf("task %d: %w", w, err)
		}
		if err := s.retry(ctx, res, func() (err error) {
			dup, err = p.dup(fd)
			return err
		}); err != nil {
			p.close(fd)
			return fmt.Errorf("task %d: dup: %w", w, err)
		}
		// The two descriptors share one offset.
		data, err := p.read(dup, 8)
		if err == nil {
			res.bytes.Add(uint64(len(data)))
			data, err = p.read(fd, hostarch.PageSize)
			res.bytes.Add(uint64(len(data)))
		}
		p.close(fd)
		p.close(dup)
		if err != nil {
			return fmt.Errorf("task %d: read(%q): %w", w, name, err)
		}
		res.rounds.Add(1)
	}
	return nil
}

// retry calls op until it succeeds, fails with an error that releasing
// resources cannot cure, or s.timeout passes.
func (s *Stress) retry(ctx context.Context, res *stressResult, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Microsecond
	b.MaxInterval = 10 * time.Millisecond
	b.MaxElapsedTime = s.timeout
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !linuxerr.IsResourceExhausted(err) {
			return backoff.Permanent(err)
		}
		res.retries.Add(1)
		log.Debugf("retrying after %v", err)
		return err
	}, backoff.WithContext(b, ctx))
}
