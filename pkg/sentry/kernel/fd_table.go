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
	"fmt"
	"sync"

	"gvisor.dev/filecore/pkg/errors/linuxerr"
	"gvisor.dev/filecore/pkg/sentry/file"
)

// FDTable maps a task's descriptors to open files. Each installed
// descriptor owns one reference on its file.
type FDTable struct {
	files *file.Table

	// mu protects below.
	mu sync.Mutex

	// descriptors is indexed by fd; an invalid Handle is an unused fd.
	descriptors []file.Handle

	// used is the number of valid entries in descriptors.
	used int
}

// NewFDTable returns an empty FDTable of k's per-task size.
func (k *Kernel) NewFDTable() *FDTable {
	return &FDTable{
		files:       k.files,
		descriptors: make([]file.Handle, k.config.NOFile),
	}
}

// Size returns the number of descriptors in use.
func (f *FDTable) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.used
}

// NewFD installs h at the lowest free descriptor, taking ownership of the
// caller's reference. It returns EMFILE if every descriptor is in use; the
// reference then stays with the caller.
func (f *FDTable) NewFD(h file.Handle) (int32, error) {
	if !h.Valid() {
		panic("NewFD of invalid handle")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for fd, d := range f.descriptors {
		if !d.Valid() {
			f.descriptors[fd] = h
			f.used++
			return int32(fd), nil
		}
	}
	return -1, linuxerr.EMFILE
}

// Get returns the file installed at fd. The handle stays usable until fd is
// removed.
func (f *FDTable) Get(fd int32) (file.Handle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fd < 0 || int(fd) >= len(f.descriptors) {
		return file.Handle{}, false
	}
	h := f.descriptors[fd]
	return h, h.Valid()
}

// Remove clears fd and returns the file it held. The caller inherits the
// descriptor's reference.
func (f *FDTable) Remove(fd int32) (file.Handle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fd < 0 || int(fd) >= len(f.descriptors) {
		return file.Handle{}, false
	}
	h := f.descriptors[fd]
	if !h.Valid() {
		return file.Handle{}, false
	}
	f.descriptors[fd] = file.Handle{}
	f.used--
	return h, true
}

// GetFDs returns the descriptors in use in ascending order.
func (f *FDTable) GetFDs() []int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	fds := make([]int32, 0, f.used)
	for fd, h := range f.descriptors {
		if h.Valid() {
			fds = append(fds, int32(fd))
		}
	}
	return fds
}

// Fork returns an independent FDTable with the same descriptors, each
// holding a new reference.
func (f *FDTable) Fork() *FDTable {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := &FDTable{
		files:       f.files,
		descriptors: make([]file.Handle, len(f.descriptors)),
		used:        f.used,
	}
	for fd, h := range f.descriptors {
		if h.Valid() {
			clone.descriptors[fd] = f.files.Dup(h)
		}
	}
	return clone
}

// RemoveAll closes every descriptor.
func (f *FDTable) RemoveAll(ctx context.Context) {
	f.mu.Lock()
	var hs []file.Handle
	for fd, h := range f.descriptors {
		if h.Valid() {
			hs = append(hs, h)
			f.descriptors[fd] = file.Handle{}
		}
	}
	f.used = 0
	f.mu.Unlock()

	// Closing may start a journal operation; do it without f.mu.
	for _, h := range hs {
		f.files.Close(ctx, h)
	}
}

// String is a stringer for FDTable.
func (f *FDTable) String() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var b bytes.Buffer
	for fd, h := range f.descriptors {
		if h.Valid() {
			b.WriteString(fmt.Sprintf("\tfd:%d => %v (%v)\n", fd, h, f.files.Kind(h)))
		}
	}
	return b.String()
}
