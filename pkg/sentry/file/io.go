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

package file

import (
	"context"
	"fmt"

	"gvisor.dev/filecore/pkg/abi/linux"
	"gvisor.dev/filecore/pkg/errors/linuxerr"
	"gvisor.dev/filecore/pkg/metric"
	"gvisor.dev/filecore/pkg/sentry/usermem"
)

var (
	bytesRead    = metric.MustCreateNewUint64Metric("/fs/bytes_read", "Bytes read from open files.", metric.NewField("kind", []string{"pipe", "device", "inode"}))
	bytesWritten = metric.MustCreateNewUint64Metric("/fs/bytes_written", "Bytes written to open files.", metric.NewField("kind", []string{"pipe", "device", "inode"}))
)

// Read reads from h into dst. Pipe reads may block. An inode read starts at
// the file offset and advances it; a read that stops early at the end of the
// file is not an error.
func (t *Table) Read(ctx context.Context, h Handle, dst usermem.IOSequence) (int64, error) {
	f := t.get(h)
	if !f.readable {
		return 0, linuxerr.EBADF
	}

	var n int64
	var err error
	switch b := f.backing.(type) {
	case PipeEnd:
		n, err = b.Pipe.Read(ctx, dst)
	case DeviceNode:
		ops, ok := t.devices.Lookup(b.Major)
		if !ok || ops.Read == nil {
			return 0, linuxerr.ENODEV
		}
		n, err = ops.Read(ctx, dst)
	case InodeFile:
		n, err = readInode(ctx, b.Inode, f.offset, dst)
	default:
		panic(fmt.Sprintf("%v: read with backing %T", h, b))
	}
	if n > 0 {
		bytesRead.IncrementBy(uint64(n), kindOf(f.backing).String())
	}
	return n, err
}

// Write writes src to h. Pipe writes may block. Inode writes are split by
// writeInode.
func (t *Table) Write(ctx context.Context, h Handle, src usermem.IOSequence) (int64, error) {
	f := t.get(h)
	if !f.writable {
		return 0, linuxerr.EBADF
	}

	var n int64
	var err error
	switch b := f.backing.(type) {
	case PipeEnd:
		n, err = b.Pipe.Write(ctx, src)
	case DeviceNode:
		ops, ok := t.devices.Lookup(b.Major)
		if !ok || ops.Write == nil {
			return 0, linuxerr.ENODEV
		}
		n, err = ops.Write(ctx, src)
	case InodeFile:
		n, err = t.writeInode(ctx, b.Inode, f.offset, src)
	default:
		panic(fmt.Sprintf("%v: write with backing %T", h, b))
	}
	if n > 0 {
		bytesWritten.IncrementBy(uint64(n), kindOf(f.backing).String())
	}
	return n, err
}

// Stat copies the metadata of an inode- or device-backed file to dst.
func (t *Table) Stat(ctx context.Context, h Handle, dst usermem.IOSequence) error {
	var ino Inode
	switch b := t.get(h).backing.(type) {
	case InodeFile:
		ino = b.Inode
	case DeviceNode:
		ino = b.Inode
	case PipeEnd, nil:
		return linuxerr.EBADF
	default:
		panic(fmt.Sprintf("%v: stat with backing %T", h, b))
	}

	st := statInode(ino)
	var buf [linux.SizeofStat]byte
	st.MarshalBytes(buf[:])
	if n, err := dst.CopyOut(ctx, buf[:]); err != nil || n != len(buf) {
		return linuxerr.EFAULT
	}
	return nil
}

// readInode reads from ino at *off and advances *off.
func readInode(ctx context.Context, ino Inode, off *int64, dst usermem.IOSequence) (int64, error) {
	ino.Lock()
	defer ino.Unlock()
	n, err := ino.ReadAt(ctx, dst, *off)
	if n > 0 {
		*off += n
	}
	return n, err
}

func statInode(ino Inode) linux.Stat {
	ino.Lock()
	defer ino.Unlock()
	return ino.Stat()
}
