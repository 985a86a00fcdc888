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

// Package devices implements the character device switch: a table of
// read/write operations indexed by major device number.
package devices

import (
	"context"
	"fmt"
	"sync"

	"gvisor.dev/filecore/pkg/errors/linuxerr"
	"gvisor.dev/filecore/pkg/log"
	"gvisor.dev/filecore/pkg/sentry/usermem"
)

// Reserved major device numbers.
const (
	ConsoleMajor = 1
	NullMajor    = 2
)

// Ops are the operations of one device. Either may be nil.
type Ops struct {
	// Name identifies the device in logs.
	Name string

	// Read copies up to dst.NumBytes() bytes from the device into dst.
	Read func(ctx context.Context, dst usermem.IOSequence) (int64, error)

	// Write copies src to the device.
	Write func(ctx context.Context, src usermem.IOSequence) (int64, error)
}

// Registry maps major numbers to device operations.
type Registry struct {
	mu sync.RWMutex

	// ops is indexed by major number. ops is protected by mu.
	ops []*Ops
}

// NewRegistry returns a Registry with room for majors [0, ndev).
func NewRegistry(ndev int) *Registry {
	return &Registry{ops: make([]*Ops, ndev)}
}

// Register installs ops for major.
func (r *Registry) Register(major int16, ops Ops) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if major < 0 || int(major) >= len(r.ops) {
		return fmt.Errorf("major %d outside [0, %d): %w", major, len(r.ops), linuxerr.ENXIO)
	}
	if r.ops[major] != nil {
		return fmt.Errorf("major %d already registered to %q: %w", major, r.ops[major].Name, linuxerr.EEXIST)
	}
	r.ops[major] = &ops
	log.Infof("Registered device %q as major %d", ops.Name, major)
	return nil
}

// Lookup returns the operations registered for major. It returns false for
// majors that are out of range or not registered.
func (r *Registry) Lookup(major int16) (Ops, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if major < 0 || int(major) >= len(r.ops) || r.ops[major] == nil {
		return Ops{}, false
	}
	return *r.ops[major], true
}
