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

	"golang.org/x/sys/unix"
	"gvisor.dev/filecore/pkg/metric"
	"gvisor.dev/filecore/pkg/sentry/usermem"
)

var (
	writeChunks   = metric.MustCreateNewUint64Metric("/fs/write_chunks", "Number of transactions used by inode writes.")
	partialWrites = metric.MustCreateNewUint64Metric("/fs/partial_writes", "Number of inode writes that stopped after a short chunk.")
)

// ErrPartialWrite is returned (wrapped) by Write when an inode write stopped
// early. The bytes before the failure are durable and the file offset
// reflects them.
var ErrPartialWrite error = partialWriteError{}

type partialWriteError struct{}

// Error implements error.Error.
func (partialWriteError) Error() string { return "partial write" }

// Errno returns the errno reported to the application.
func (partialWriteError) Errno() unix.Errno { return unix.EIO }

// PartialWrite marks the error as leaving a durable prefix.
func (partialWriteError) PartialWrite() bool { return true }

// MaxWriteChunk returns the most bytes one transaction may write to an
// inode: a transaction of maxOpBlocks blocks must also cover the inode
// block, an indirect block and two blocks of slop for unaligned writes, and
// each data block may need an allocation bitmap block.
func MaxWriteChunk(maxOpBlocks, blockSize int) int {
	return ((maxOpBlocks - 1 - 1 - 2) / 2) * blockSize
}

// writeInode writes src to ino at *off, at most t.maxChunk bytes per
// journal operation.
func (t *Table) writeInode(ctx context.Context, ino Inode, off *int64, src usermem.IOSequence) (int64, error) {
	n := src.NumBytes()
	var done int64
	for done < n {
		want := min(n-done, t.maxChunk)

		r, err := t.writeChunk(ctx, ino, off, src.DropFirst64(done).TakeFirst64(want))
		writeChunks.Increment()

		if r > 0 {
			done += r
		}
		if r != want {
			partialWrites.Increment()
			if err != nil {
				return done, fmt.Errorf("%w: %d of %d bytes written: %v", ErrPartialWrite, done, n, err)
			}
			return done, fmt.Errorf("%w: %d of %d bytes written", ErrPartialWrite, done, n)
		}
	}
	return done, nil
}

// writeChunk writes src to ino at *off in one journal operation and
// advances *off.
func (t *Table) writeChunk(ctx context.Context, ino Inode, off *int64, src usermem.IOSequence) (int64, error) {
	t.journal.BeginOp()
	defer t.journal.EndOp()
	ino.Lock()
	defer ino.Unlock()
	n, err := ino.WriteAt(ctx, src, *off)
	if n > 0 {
		*off += n
	}
	return n, err
}
