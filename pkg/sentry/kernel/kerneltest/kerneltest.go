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

// Package kerneltest provides a booted kernel and tasks for tests.
package kerneltest

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"gvisor.dev/filecore/pkg/hostarch"
	"gvisor.dev/filecore/pkg/sentry/kernel"
)

// Options configures Boot.
type Options struct {
	// ConsoleInput is what the console device reads.
	ConsoleInput string

	// Config, if set, adjusts the default configuration.
	Config func(*kernel.Config)
}

// Boot returns a kernel that is destroyed when the test ends, and the
// buffer that collects console output.
func Boot(t testing.TB, opts Options) (*kernel.Kernel, *bytes.Buffer) {
	t.Helper()
	var console bytes.Buffer
	cfg := kernel.DefaultConfig()
	cfg.PhysPages = 128
	cfg.ConsoleIn = strings.NewReader(opts.ConsoleInput)
	cfg.ConsoleOut = &console
	if opts.Config != nil {
		opts.Config(&cfg)
	}
	k, err := kernel.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("kernel.New: %v", err)
	}
	t.Cleanup(func() {
		if err := k.Destroy(); err != nil {
			t.Errorf("Destroy: %v", err)
		}
	})
	return k, &console
}

// NewTask returns a task of k that exits when the test ends, unless it
// has exited already.
func NewTask(t testing.TB, k *kernel.Kernel) *kernel.Task {
	t.Helper()
	ctx := context.Background()
	task, err := k.NewTask(ctx)
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	t.Cleanup(func() {
		if !task.Exited() {
			task.Exit(ctx)
		}
	})
	return task
}

// Alloc grows task's data segment by n bytes and returns their address.
func Alloc(t testing.TB, task *kernel.Task, n int) hostarch.Addr {
	t.Helper()
	addr, err := task.MemoryManager().Sbrk(context.Background(), int64(n))
	if err != nil {
		t.Fatalf("Sbrk(%d): %v", n, err)
	}
	return addr
}

// String stores s NUL-terminated in task's memory and returns its address.
func String(t testing.TB, task *kernel.Task, s string) hostarch.Addr {
	t.Helper()
	addr := Alloc(t, task, len(s)+1)
	if err := task.Store(context.Background(), addr, append([]byte(s), 0)); err != nil {
		t.Fatalf("Store: %v", err)
	}
	return addr
}
