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

// Package file implements the system-wide table of open files.
//
// An open file is one of a fixed number of slots in a Table. Each slot is
// reference counted and backed by a pipe end, a device or an inode. The
// Table dispatches read, write and stat to the backing, splitting inode
// writes into pieces that fit in one journal transaction.
//
// Lock order:
//
// journal operation (BeginOp)
//
//	Inode lock
//	  Table.mu
package file

import (
	"context"
	"fmt"

	"gvisor.dev/filecore/pkg/abi/linux"
	"gvisor.dev/filecore/pkg/sentry/devices"
	"gvisor.dev/filecore/pkg/sentry/usermem"
)

// Inode is the filesystem side of an inode-backed file.
type Inode interface {
	// Lock and Unlock serialize access to the inode, including the offset
	// of every open file backed by it.
	Lock()
	Unlock()

	// ReadAt reads into dst from offset off. Reading at or past the end of
	// the file returns 0.
	//
	// Preconditions: the inode is locked.
	ReadAt(ctx context.Context, dst usermem.IOSequence, off int64) (int64, error)

	// WriteAt writes src at offset off. It returns the number of bytes
	// written; a short count comes with an error.
	//
	// Preconditions: the inode is locked. In a journal operation.
	WriteAt(ctx context.Context, src usermem.IOSequence, off int64) (int64, error)

	// Stat returns the inode's metadata.
	//
	// Preconditions: the inode is locked.
	Stat() linux.Stat

	// Size returns the file size in bytes.
	//
	// Preconditions: the inode is locked.
	Size() int64

	// Release drops the file's reference to the inode.
	//
	// Preconditions: in a journal operation. The inode is not locked.
	Release(ctx context.Context)
}

// Pipe is one end of a pipe.
type Pipe interface {
	// Read and Write may block until the peer acts or closes.
	Read(ctx context.Context, dst usermem.IOSequence) (int64, error)
	Write(ctx context.Context, src usermem.IOSequence) (int64, error)

	// Close closes the write end if writable is set, otherwise the read end.
	Close(writable bool)
}

// Devices looks up device operations by major number.
type Devices interface {
	Lookup(major int16) (devices.Ops, bool)
}

// Journal brackets inode mutations.
type Journal interface {
	BeginOp()
	EndOp()
}

// Backing is what an open file refers to. It is one of PipeEnd, DeviceNode
// or InodeFile.
type Backing interface {
	isBacking()
}

// PipeEnd backs a file with one end of a pipe.
type PipeEnd struct {
	Pipe Pipe
}

// DeviceNode backs a file with a device. I/O goes to the device registered
// for Major; the inode supplies metadata and is released on last close.
type DeviceNode struct {
	Major int16
	Inode Inode
}

// InodeFile backs a file with an inode.
type InodeFile struct {
	Inode Inode
}

func (PipeEnd) isBacking()    {}
func (DeviceNode) isBacking() {}
func (InodeFile) isBacking()  {}

// Kind names the backing of a file.
type Kind int

// Kinds of backing.
const (
	KindNone Kind = iota
	KindPipe
	KindDevice
	KindInode
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindPipe:
		return "pipe"
	case KindDevice:
		return "device"
	case KindInode:
		return "inode"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func kindOf(b Backing) Kind {
	switch b.(type) {
	case nil:
		return KindNone
	case PipeEnd:
		return KindPipe
	case DeviceNode:
		return KindDevice
	case InodeFile:
		return KindInode
	default:
		panic(fmt.Sprintf("unknown backing %T", b))
	}
}

// Flags are the access modes of an open file. They are fixed when the file
// is installed.
type Flags struct {
	Readable bool
	Writable bool
}

// FlagsFromOpen returns the access modes for an open(2) mode.
func FlagsFromOpen(mode int) Flags {
	return Flags{
		Readable: mode&linux.O_WRONLY == 0,
		Writable: mode&linux.O_WRONLY != 0 || mode&linux.O_RDWR != 0,
	}
}

// Handle names a slot in a Table together with the generation of the open
// file occupying it. The zero Handle names nothing.
type Handle struct {
	index int32
	gen   uint32
}

// Valid returns true if h was returned by Alloc.
func (h Handle) Valid() bool {
	return h.gen != 0
}

// String implements fmt.Stringer.
func (h Handle) String() string {
	return fmt.Sprintf("file#%d.%d", h.index, h.gen)
}
