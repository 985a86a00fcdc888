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

// Package memfs provides a block filesystem held entirely in memory.
//
// The disk is an array of blocks laid out as boot, superblock, log, inode
// table, allocation bitmap and data. Files address up to NDirect direct
// blocks and one indirect block. Every modified block is recorded with the
// journal, so mutations must happen between Journal.BeginOp and
// Journal.EndOp. The single root directory keeps its entries in a btree.
//
// Lock order:
//
// Inode.mu (root directory first)
//
//	Filesystem.allocMu
//	Filesystem.icacheMu
package memfs

import (
	"fmt"
	"sync"

	"gvisor.dev/filecore/pkg/abi/linux"
	"gvisor.dev/filecore/pkg/bitmap"
	"gvisor.dev/filecore/pkg/log"
	"gvisor.dev/filecore/pkg/metric"
	"gvisor.dev/filecore/pkg/sentry/fs/journal"
)

const (
	// NDirect is the number of direct block addresses in an inode.
	NDirect = 12

	// RootIno is the inode number of the root directory.
	RootIno = 1

	// RootDev is the device number reported for every inode.
	RootDev = 1

	// dinodeSize is the on-disk size of one inode.
	dinodeSize = 64

	// direntSize is the on-disk size of one directory entry.
	direntSize = 16

	// DirSiz is the longest permitted file name.
	DirSiz = 14
)

var (
	blocksAllocated = metric.MustCreateNewUint64Metric("/fs/blocks_allocated", "Number of data blocks allocated.")
	blocksFreed     = metric.MustCreateNewUint64Metric("/fs/blocks_freed", "Number of data blocks freed.")
	inodesAllocated = metric.MustCreateNewUint64Metric("/fs/inodes_allocated", "Number of on-disk inodes allocated.")
)

// Options configures a Filesystem.
type Options struct {
	// BlockSize is the size of a disk block in bytes.
	BlockSize int

	// NBlocks is the size of the disk in blocks.
	NBlocks int

	// NInodes is the number of on-disk inodes.
	NInodes int

	// NCache is the capacity of the in-memory inode cache.
	NCache int

	// LogSize is the number of blocks reserved for the log.
	LogSize int
}

// DefaultOptions returns xv6's file system geometry.
func DefaultOptions() Options {
	return Options{
		BlockSize: 1024,
		NBlocks:   2000,
		NInodes:   200,
		NCache:    50,
		LogSize:   30,
	}
}

// Filesystem is an in-memory block filesystem.
type Filesystem struct {
	opts    Options
	journal *journal.Journal

	// nIndirect is the number of addresses in an indirect block.
	nIndirect int

	// Disk layout, in block numbers.
	inodeStart uint32
	bmapStart  uint32
	dataStart  uint32

	// disk holds every block. Data blocks are protected by the lock of the
	// inode that owns them; metadata blocks are never read back.
	disk []byte

	allocMu sync.Mutex

	// blocks has one bit per disk block. blocks is protected by allocMu.
	blocks bitmap.Bitmap

	// blockHint is where block allocation resumes. It is protected by
	// allocMu.
	blockHint uint32

	// inodes has one bit per on-disk inode. inodes is protected by allocMu.
	inodes bitmap.Bitmap

	// dinodes is the on-disk inode table. An entry is protected by the
	// lock of its cached Inode, or by allocMu while it is free.
	dinodes []dinode

	icacheMu sync.Mutex

	// icache is the in-memory inode cache. Entries with ref 0 may be
	// recycled. icache is protected by icacheMu.
	icache []*Inode

	// root is the root directory. It holds a permanent reference.
	root *Inode
}

// New creates an empty filesystem whose mutations are recorded with j.
func New(opts Options, j *journal.Journal) (*Filesystem, error) {
	if opts.BlockSize <= 0 || opts.BlockSize%dinodeSize != 0 {
		return nil, fmt.Errorf("invalid block size %d", opts.BlockSize)
	}
	if opts.NInodes < 2 || opts.NCache < 1 {
		return nil, fmt.Errorf("invalid inode counts: %d on disk, %d cached", opts.NInodes, opts.NCache)
	}
	ipb := opts.BlockSize / dinodeSize
	nInodeBlocks := opts.NInodes/ipb + 1
	nBitmap := opts.NBlocks/(opts.BlockSize*8) + 1
	nMeta := 2 + opts.LogSize + nInodeBlocks + nBitmap
	if nMeta >= opts.NBlocks {
		return nil, fmt.Errorf("disk of %d blocks too small for %d metadata blocks", opts.NBlocks, nMeta)
	}

	fs := &Filesystem{
		opts:       opts,
		journal:    j,
		nIndirect:  opts.BlockSize / 4,
		inodeStart: uint32(2 + opts.LogSize),
		bmapStart:  uint32(2 + opts.LogSize + nInodeBlocks),
		dataStart:  uint32(nMeta),
		disk:       make([]byte, opts.NBlocks*opts.BlockSize),
		blocks:     bitmap.New(uint32(opts.NBlocks)),
		inodes:     bitmap.New(uint32(opts.NInodes)),
		dinodes:    make([]dinode, opts.NInodes),
		icache:     make([]*Inode, 0, opts.NCache),
	}
	for b := uint32(0); b < fs.dataStart; b++ {
		fs.blocks.Add(b)
	}
	fs.blockHint = fs.dataStart
	// Inode 0 is never used.
	fs.inodes.Add(0)

	// The root directory is created outside any operation, like mkfs does.
	fs.inodes.Add(RootIno)
	fs.dinodes[RootIno] = dinode{typ: linux.T_DIR, nlink: 1}
	root, err := fs.iget(RootIno)
	if err != nil {
		return nil, err
	}
	root.entries = newDirectory()
	fs.root = root

	log.Infof("memfs: %d blocks (%d data, starting at %d), %d inodes, log of %d", opts.NBlocks, opts.NBlocks-nMeta, fs.dataStart, opts.NInodes, opts.LogSize)
	return fs, nil
}

// Journal returns the journal that records fs's mutations.
func (fs *Filesystem) Journal() *journal.Journal {
	return fs.journal
}

// BlockSize returns the block size of fs.
func (fs *Filesystem) BlockSize() int {
	return fs.opts.BlockSize
}

// MaxFileSize returns the largest file size in bytes.
func (fs *Filesystem) MaxFileSize() int64 {
	return int64(NDirect+fs.nIndirect) * int64(fs.opts.BlockSize)
}

// Root returns the root directory.
func (fs *Filesystem) Root() *Inode {
	return fs.root
}

// FreeBlocks returns the number of unallocated blocks.
func (fs *Filesystem) FreeBlocks() int {
	fs.allocMu.Lock()
	defer fs.allocMu.Unlock()
	return int(fs.blocks.Size() - fs.blocks.Count())
}

// FreeInodes returns the number of unallocated on-disk inodes.
func (fs *Filesystem) FreeInodes() int {
	fs.allocMu.Lock()
	defer fs.allocMu.Unlock()
	return int(fs.inodes.Size() - fs.inodes.Count())
}

// block returns the contents of block b.
func (fs *Filesystem) block(b uint32) []byte {
	bs := fs.opts.BlockSize
	off := int(b) * bs
	return fs.disk[off : off+bs : off+bs]
}

// balloc allocates a zeroed disk block, returning 0 if the disk is full.
func (fs *Filesystem) balloc() uint32 {
	fs.allocMu.Lock()
	b := fs.blocks.FirstZero(fs.blockHint)
	if b == bitmap.NoBit {
		fs.allocMu.Unlock()
		log.Warningf("memfs: out of blocks")
		return 0
	}
	fs.blocks.Add(b)
	fs.blockHint = b + 1
	fs.allocMu.Unlock()

	fs.journal.LogWrite(fs.bitmapBlock(b))
	clear(fs.block(b))
	fs.journal.LogWrite(b)
	blocksAllocated.Increment()
	return b
}

// bfree frees disk block b.
func (fs *Filesystem) bfree(b uint32) {
	fs.allocMu.Lock()
	if !fs.blocks.Contains(b) {
		fs.allocMu.Unlock()
		panic(fmt.Sprintf("freeing free block %d", b))
	}
	fs.blocks.Remove(b)
	if b < fs.blockHint {
		fs.blockHint = b
	}
	fs.allocMu.Unlock()

	fs.journal.LogWrite(fs.bitmapBlock(b))
	blocksFreed.Increment()
}

// bitmapBlock returns the bitmap block holding the bit for block b.
func (fs *Filesystem) bitmapBlock(b uint32) uint32 {
	return fs.bmapStart + b/uint32(fs.opts.BlockSize*8)
}

// inodeBlock returns the inode table block holding inode ino.
func (fs *Filesystem) inodeBlock(ino uint32) uint32 {
	return fs.inodeStart + ino/uint32(fs.opts.BlockSize/dinodeSize)
}
