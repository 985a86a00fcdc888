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
	"context"

	"gvisor.dev/filecore/pkg/errors/linuxerr"
	"gvisor.dev/filecore/pkg/hostarch"
	"gvisor.dev/filecore/pkg/sentry/usermem"
)

// Load copies len(dst) bytes at addr into dst as an application load would,
// faulting in pages that are not yet populated.
func (t *Task) Load(ctx context.Context, addr hostarch.Addr, dst []byte) error {
	_, err := t.mm.CopyIn(ctx, addr, dst, usermem.IOOpts{})
	return err
}

// Store copies src to addr as an application store would.
func (t *Task) Store(ctx context.Context, addr hostarch.Addr, src []byte) error {
	_, err := t.mm.CopyOut(ctx, addr, src, usermem.IOOpts{})
	return err
}

// CopyInString copies a NUL-terminated string of at most maxlen bytes
// from addr.
func (t *Task) CopyInString(ctx context.Context, addr hostarch.Addr, maxlen int) (string, error) {
	return usermem.CopyStringIn(ctx, t.mm, addr, maxlen, usermem.IOOpts{})
}

// SingleIOSequence returns an IOSequence for length bytes at addr that
// permits at. Every page is faulted in first, so the sequence can be used
// with an inode locked.
func (t *Task) SingleIOSequence(ctx context.Context, addr hostarch.Addr, length int, at hostarch.AccessType) (usermem.IOSequence, error) {
	if length < 0 {
		return usermem.IOSequence{}, linuxerr.EINVAL
	}
	ar, ok := addr.ToRange(uint64(length))
	if !ok {
		return usermem.IOSequence{}, linuxerr.EFAULT
	}
	if err := t.mm.Populate(ctx, ar, at); err != nil {
		return usermem.IOSequence{}, err
	}
	return usermem.IOSequence{
		IO:    t.mm.AddressSpace(),
		Addrs: ar,
	}, nil
}
