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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gvisor.dev/filecore/runfc/config"
	"gvisor.dev/filecore/runfc/flag"
)

func testConfig(t *testing.T, args ...string) *config.Config {
	t.Helper()
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	config.RegisterFlags(testFlags)
	if err := testFlags.Parse(args); err != nil {
		t.Fatalf("Parse(%v): %v", args, err)
	}
	conf, err := config.NewFromFlags(testFlags)
	if err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	return conf
}

func TestMMap(t *testing.T) {
	for _, tc := range []struct {
		name    string
		private bool
		want    string
	}{
		{name: "shared", want: "HELLO from a mapped file\n"},
		{name: "private", private: true, want: "hello from a mapped file\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m := &MMap{
				name:    "mapped",
				content: "hello from a mapped file\n",
				touch:   "HELLO",
				private: tc.private,
			}
			var out bytes.Buffer
			if err := m.run(context.Background(), testConfig(t), &out); err != nil {
				t.Fatalf("run: %v", err)
			}
			got := out.String()
			if !strings.Contains(got, `: "hello from a mapped file\n"`) {
				t.Errorf("output does not show the faulted-in data:\n%s", got)
			}
			if !strings.HasSuffix(got, "mapped after munmap:\n"+tc.want) {
				t.Errorf("output: got\n%s\nwant it to end with the file content %q", got, tc.want)
			}
		})
	}
}

func TestMMapInvalid(t *testing.T) {
	m := &MMap{name: "f", content: "abc", touch: "abcd"}
	if err := m.run(context.Background(), testConfig(t), &bytes.Buffer{}); err == nil {
		t.Errorf("run with -touch longer than the file: got nil, want error")
	}
}

func TestCopy(t *testing.T) {
	// Large enough to need several transactions and the indirect block.
	data := bytes.Repeat([]byte("0123456789abcdef"), 1000)
	src := filepath.Join(t.TempDir(), "src")
	if err := os.WriteFile(src, data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	hostData, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	var out bytes.Buffer
	c := &Copy{}
	if err := c.run(context.Background(), testConfig(t), "copied", hostData, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, `copied 16000 bytes to "copied"`) {
		t.Errorf("output: got\n%s\nwant the byte count", got)
	}
	// 16000 bytes in chunks of 3072.
	if !strings.Contains(got, "transactions: 6 of at most 3072 bytes") {
		t.Errorf("output: got\n%s\nwant 6 transactions", got)
	}
}

func TestCopyTooLarge(t *testing.T) {
	// A 1 KiB block file holds at most 268 blocks.
	data := make([]byte, 269*1024)
	err := (&Copy{}).run(context.Background(), testConfig(t, "--phys-pages=256"), "big", data, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "partial write") {
		t.Errorf("run: got %v, want a partial write error", err)
	}
}

func TestStress(t *testing.T) {
	// Fewer file slots than workers, so opens have to wait for each other.
	conf := testConfig(t, "--nfile=3")
	s := &Stress{workers: 6, iterations: 20, files: 2, timeout: 10 * time.Second}
	var out bytes.Buffer
	if err := s.run(context.Background(), conf, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"120 rounds by 6 tasks",
		"open files: 0 of 3, tasks: 0",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output: got\n%s\nwant it to contain %q", got, want)
		}
	}
}

func TestMetrics(t *testing.T) {
	if err := metricsWorkload(context.Background(), testConfig(t)); err != nil {
		t.Fatalf("metricsWorkload: %v", err)
	}
	var out bytes.Buffer
	m := &Metrics{filter: "filecore_mm_"}
	if err := m.export(&out); err != nil {
		t.Fatalf("export: %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"# TYPE filecore_mm_mmaps counter",
		"filecore_mm_writeback_bytes",
		`filecore_mm_munmaps{result="freed"}`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("export: got\n%s\nwant it to contain %q", got, want)
		}
	}
	if strings.Contains(got, "filecore_syscalls_") {
		t.Errorf("export: got\n%s\nwant only filecore_mm_ metrics", got)
	}
}
