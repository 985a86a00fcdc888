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
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"gvisor.dev/filecore/pkg/abi/linux"
	"gvisor.dev/filecore/pkg/hostarch"
	"gvisor.dev/filecore/pkg/metric"
	"gvisor.dev/filecore/runfc/cmd/util"
	"gvisor.dev/filecore/runfc/config"
	"gvisor.dev/filecore/runfc/flag"
)

// Metrics implements subcommands.Command for the "metrics" command.
type Metrics struct {
	filter   string
	workload bool
}

// Name implements subcommands.Command.Name.
func (*Metrics) Name() string {
	return "metrics"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Metrics) Synopsis() string {
	return "run a short workload and print metric data in Prometheus format"
}

// Usage implements subcommands.Command.Usage.
func (*Metrics) Usage() string {
	return `metrics [-filter=<prefix>] [-workload=false] - prints metric data in Prometheus text format
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (m *Metrics) SetFlags(f *flag.FlagSet) {
	f.StringVar(&m.filter, "filter", "", "if set, only metrics whose name starts with this prefix are printed, e.g. filecore_mm_.")
	f.BoolVar(&m.workload, "workload", true, "run a workload of file, pipe and mapping syscalls first.")
}

// Execute implements subcommands.Command.Execute.
func (m *Metrics) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	if m.workload {
		if err := metricsWorkload(ctx, conf); err != nil {
			util.Fatalf("workload: %v", err)
		}
	}
	if err := m.export(os.Stdout); err != nil {
		util.Fatalf("exporting metrics: %v", err)
	}
	return subcommands.ExitSuccess
}

// export writes the selected metric families to out.
func (m *Metrics) export(out io.Writer) error {
	families, err := metric.Registry().Gather()
	if err != nil {
		return err
	}
	var selected []*dto.MetricFamily
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), m.filter) {
			selected = append(selected, mf)
		}
	}
	for _, mf := range selected {
		if _, err := expfmt.MetricFamilyToText(out, mf); err != nil {
			return err
		}
	}
	return nil
}

// metricsWorkload touches every metric-carrying path once: file writes and
// reads, a pipe, a shared mapping with a fault and writeback, and an
// unsupported syscall.
func metricsWorkload(ctx context.Context, conf *config.Config) error {
	k, err := boot(ctx, conf, strings.NewReader(""), io.Discard)
	if err != nil {
		return err
	}
	defer k.Destroy()
	p, err := newProcess(ctx, k, 2*hostarch.PageSize)
	if err != nil {
		return err
	}
	defer p.exit()

	data := []byte(strings.Repeat("metrics workload\n", 200))
	if err := p.createFile("workload", data); err != nil {
		return err
	}
	fd, err := p.open("workload", linux.O_RDWR)
	if err != nil {
		return err
	}
	defer p.close(fd)

	r, w, err := p.pipe()
	if err != nil {
		return fmt.Errorf("pipe: %w", err)
	}
	if _, err := p.write(w, data[:64]); err != nil {
		return fmt.Errorf("write to pipe: %w", err)
	}
	p.close(w)
	if _, err := p.readAll(r); err != nil {
		return fmt.Errorf("read from pipe: %w", err)
	}
	p.close(r)

	addr, err := p.syscall(linux.SYS_MMAP, 0, hostarch.PageSize, linux.PROT_READ|linux.PROT_WRITE, linux.MAP_SHARED, uintptr(fd), 0)
	if err != nil {
		return fmt.Errorf("mmap: %w", err)
	}
	if err := p.task.Store(ctx, hostarch.Addr(addr), []byte("METRICS")); err != nil {
		return err
	}
	if _, err := p.syscall(linux.SYS_MUNMAP, addr, hostarch.PageSize); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	// Unsupported syscalls fail and are counted.
	p.syscall(linux.SYS_UPTIME)
	return nil
}
