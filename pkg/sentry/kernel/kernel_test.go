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
	"bytes"
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/filecore/pkg/abi/linux"
	"gvisor.dev/filecore/pkg/errors/linuxerr"
	"gvisor.dev/filecore/pkg/sentry/file"
	"gvisor.dev/filecore/pkg/sentry/usermem"
)

func newTestKernel(t *testing.T, mod func(*Config)) (*Kernel, *bytes.Buffer) {
	t.Helper()
	var console bytes.Buffer
	cfg := DefaultConfig()
	cfg.PhysPages = 64
	cfg.ConsoleOut = &console
	if mod != nil {
		mod(&cfg)
	}
	k, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { k.mf.Destroy() })
	return k, &console
}

func TestBootCreatesDeviceNodes(t *testing.T) {
	k, _ := newTestKernel(t, nil)
	if diff := cmp.Diff([]string{"console", "null"}, k.RootFS().Entries()); diff != "" {
		t.Errorf("root entries mismatch (-want +got):\n%s", diff)
	}
	if got := k.Files().Live(); got != 0 {
		t.Errorf("Live files after boot: got %d, want 0", got)
	}
}

func TestOpenFile(t *testing.T) {
	ctx := context.Background()
	k, console := newTestKernel(t, nil)

	if _, err := k.OpenFile(ctx, "missing", linux.O_RDONLY); !linuxerr.Equals(linuxerr.ENOENT, err) {
		t.Errorf("OpenFile(missing): got %v, want ENOENT", err)
	}
	if _, err := k.OpenFile(ctx, "/", linux.O_RDWR); !linuxerr.Equals(linuxerr.EISDIR, err) {
		t.Errorf("OpenFile(/, O_RDWR): got %v, want EISDIR", err)
	}

	h, err := k.OpenFile(ctx, "console", linux.O_WRONLY)
	if err != nil {
		t.Fatalf("OpenFile(console): %v", err)
	}
	if got := k.Files().Kind(h); got != file.KindDevice {
		t.Errorf("console kind: got %v, want %v", got, file.KindDevice)
	}
	if _, err := k.Files().Write(ctx, h, usermem.BytesIOSequence([]byte("hi\n"))); err != nil {
		t.Errorf("Write to console: %v", err)
	}
	if got, want := console.String(), "hi\n"; got != want {
		t.Errorf("console output: got %q, want %q", got, want)
	}
	k.Files().Close(ctx, h)

	h, err = k.OpenFile(ctx, "f", linux.O_CREATE|linux.O_RDWR)
	if err != nil {
		t.Fatalf("OpenFile(f, O_CREATE): %v", err)
	}
	if _, err := k.Files().Write(ctx, h, usermem.BytesIOSequence([]byte("content"))); err != nil {
		t.Fatalf("Write: %v", err)
	}
	k.Files().Close(ctx, h)

	h, err = k.OpenFile(ctx, "f", linux.O_RDWR|linux.O_TRUNC)
	if err != nil {
		t.Fatalf("OpenFile(f, O_TRUNC): %v", err)
	}
	defer k.Files().Close(ctx, h)
	var st [linux.SizeofStat]byte
	if err := k.Files().Stat(ctx, h, usermem.BytesIOSequence(st[:])); err != nil {
		t.Fatalf("Stat: %v", err)
	}
	var s linux.Stat
	s.UnmarshalBytes(st[:])
	if s.Size != 0 || s.Type != linux.T_FILE {
		t.Errorf("Stat after O_TRUNC: got %+v, want an empty regular file", s)
	}
}

func TestOpenFileBadMajor(t *testing.T) {
	ctx := context.Background()
	k, _ := newTestKernel(t, nil)
	if err := k.Mknod(ctx, "bad", 42, 0); err != nil {
		t.Fatalf("Mknod: %v", err)
	}
	if _, err := k.OpenFile(ctx, "bad", linux.O_RDWR); !linuxerr.Equals(linuxerr.ENXIO, err) {
		t.Errorf("OpenFile(bad): got %v, want ENXIO", err)
	}
	// An unregistered major in range opens, but I/O fails.
	if err := k.Mknod(ctx, "unregistered", 5, 0); err != nil {
		t.Fatalf("Mknod: %v", err)
	}
	h, err := k.OpenFile(ctx, "unregistered", linux.O_RDWR)
	if err != nil {
		t.Fatalf("OpenFile(unregistered): %v", err)
	}
	defer k.Files().Close(ctx, h)
	if _, err := k.Files().Read(ctx, h, usermem.BytesIOSequence(make([]byte, 1))); !linuxerr.Equals(linuxerr.ENODEV, err) {
		t.Errorf("Read: got %v, want ENODEV", err)
	}
	if got := k.Files().Live(); got != 1 {
		t.Errorf("Live: got %d, want 1", got)
	}
}

func TestOpenFileTableFull(t *testing.T) {
	ctx := context.Background()
	k, _ := newTestKernel(t, func(cfg *Config) { cfg.NFile = 1 })
	h, err := k.OpenFile(ctx, "null", linux.O_RDONLY)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := k.OpenFile(ctx, "null", linux.O_RDONLY); !linuxerr.Equals(linuxerr.ENFILE, err) {
		t.Fatalf("OpenFile with a full table: got %v, want ENFILE", err)
	}
	k.Files().Close(ctx, h)
	// A pipe needs two slots.
	if _, _, err := k.NewPipe(); !linuxerr.Equals(linuxerr.ENFILE, err) {
		t.Fatalf("NewPipe with one slot: got %v, want ENFILE", err)
	}
	if got := k.Files().Live(); got != 0 {
		t.Errorf("Live after failed NewPipe: got %d, want 0", got)
	}
}

func TestNewPipe(t *testing.T) {
	ctx := context.Background()
	k, _ := newTestKernel(t, nil)
	r, w, err := k.NewPipe()
	if err != nil {
		t.Fatalf("NewPipe: %v", err)
	}
	if got, want := k.Files().Flags(r), (file.Flags{Readable: true}); got != want {
		t.Errorf("read end flags: got %+v, want %+v", got, want)
	}
	if _, err := k.Files().Write(ctx, w, usermem.BytesIOSequence([]byte("ping"))); err != nil {
		t.Fatalf("Write: %v", err)
	}
	k.Files().Close(ctx, w)
	buf := make([]byte, 8)
	n, err := k.Files().Read(ctx, r, usermem.BytesIOSequence(buf))
	if err != nil || string(buf[:n]) != "ping" {
		t.Errorf("Read: got (%q, %v), want (ping, nil)", buf[:n], err)
	}
	if n, err := k.Files().Read(ctx, r, usermem.BytesIOSequence(buf)); n != 0 || err != nil {
		t.Errorf("Read after writer closed: got (%d, %v), want (0, nil)", n, err)
	}
	k.Files().Close(ctx, r)
}

func TestUnlinkKeepsOpenFile(t *testing.T) {
	ctx := context.Background()
	k, _ := newTestKernel(t, nil)
	h, err := k.OpenFile(ctx, "f", linux.O_CREATE|linux.O_RDWR)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	free := k.RootFS().FreeInodes()
	if err := k.Unlink(ctx, "f"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if _, err := k.Files().Write(ctx, h, usermem.BytesIOSequence([]byte("still here"))); err != nil {
		t.Errorf("Write to unlinked file: %v", err)
	}
	if got := k.RootFS().FreeInodes(); got != free {
		t.Errorf("FreeInodes while open: got %d, want %d", got, free)
	}
	k.Files().Close(ctx, h)
	if got := k.RootFS().FreeInodes(); got != free+1 {
		t.Errorf("FreeInodes after last close: got %d, want %d", got, free+1)
	}
}
