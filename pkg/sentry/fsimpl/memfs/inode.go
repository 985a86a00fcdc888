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

package memfs

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/btree"
	"gvisor.dev/filecore/pkg/abi/linux"
	"gvisor.dev/filecore/pkg/bitmap"
	"gvisor.dev/filecore/pkg/errors/linuxerr"
	"gvisor.dev/filecore/pkg/log"
	"gvisor.dev/filecore/pkg/sentry/usermem"
)

// dinode is an on-disk inode.
type dinode struct {
	typ   linux.InodeType
	major int16
	minor int16
	nlink int16
	size  uint32
	addrs [NDirect + 1]uint32
}

// Inode is a cached inode.
//
// The ref count and identity (fs, ino) are protected by
// Filesystem.icacheMu. Everything else is protected by mu, which is held
// between Lock and Unlock.
type Inode struct {
	fs  *Filesystem
	ino uint32
	ref int

	mu sync.Mutex

	// valid is true once d has been loaded from the inode table.
	valid bool
	d     dinode

	// entries holds the directory entries of a directory inode.
	entries *btree.BTreeG[dirent]
}

// iget returns the cached inode for ino with an added reference. It does not
// lock the inode or read it from disk.
func (fs *Filesystem) iget(ino uint32) (*Inode, error) {
	fs.icacheMu.Lock()
	defer fs.icacheMu.Unlock()

	var empty *Inode
	for _, ip := range fs.icache {
		if ip.ref > 0 && ip.ino == ino {
			ip.ref++
			return ip, nil
		}
		if empty == nil && ip.ref == 0 {
			empty = ip
		}
	}
	if empty == nil {
		if len(fs.icache) == cap(fs.icache) {
			return nil, linuxerr.ENFILE
		}
		empty = &Inode{fs: fs}
		fs.icache = append(fs.icache, empty)
	}
	empty.ino = ino
	empty.ref = 1
	empty.valid = false
	empty.entries = nil
	return empty, nil
}

// ialloc allocates an on-disk inode of type typ and returns it referenced
// and unlocked.
//
// Preconditions: in a journal operation.
func (fs *Filesystem) ialloc(typ linux.InodeType) (*Inode, error) {
	fs.allocMu.Lock()
	bit := fs.inodes.FirstZero(1)
	if bit == bitmap.NoBit {
		fs.allocMu.Unlock()
		log.Warningf("memfs: out of inodes")
		return nil, linuxerr.ENOSPC
	}
	fs.inodes.Add(bit)
	fs.dinodes[bit] = dinode{typ: typ}
	fs.allocMu.Unlock()

	fs.journal.LogWrite(fs.inodeBlock(bit))
	inodesAllocated.Increment()
	ip, err := fs.iget(bit)
	if err != nil {
		fs.ifree(bit)
		return nil, err
	}
	return ip, nil
}

// ifree returns on-disk inode ino to the free set.
func (fs *Filesystem) ifree(ino uint32) {
	fs.allocMu.Lock()
	fs.dinodes[ino] = dinode{}
	fs.inodes.Remove(ino)
	fs.allocMu.Unlock()
	fs.journal.LogWrite(fs.inodeBlock(ino))
}

// Ino returns the inode number.
func (ip *Inode) Ino() uint32 {
	return ip.ino
}

// Lock locks ip, loading it from the inode table if necessary.
func (ip *Inode) Lock() {
	ip.mu.Lock()
	if !ip.valid {
		ip.d = ip.fs.dinodes[ip.ino]
		ip.valid = true
		if ip.d.typ == linux.T_NONE {
			ip.mu.Unlock()
			panic(fmt.Sprintf("inode %d has no type", ip.ino))
		}
	}
}

// Unlock unlocks ip.
func (ip *Inode) Unlock() {
	ip.mu.Unlock()
}

// update copies ip to the inode table.
//
// Preconditions: ip is locked. In a journal operation.
func (ip *Inode) update() {
	ip.fs.dinodes[ip.ino] = ip.d
	ip.fs.journal.LogWrite(ip.fs.inodeBlock(ip.ino))
}

// Type returns the inode type.
//
// Preconditions: ip is locked.
func (ip *Inode) Type() linux.InodeType {
	return ip.d.typ
}

// Major returns the device major number of a device inode.
//
// Preconditions: ip is locked.
func (ip *Inode) Major() int16 {
	return ip.d.major
}

// Size returns the file size in bytes.
//
// Preconditions: ip is locked.
func (ip *Inode) Size() int64 {
	return int64(ip.d.size)
}

// Stat returns the metadata of ip.
//
// Preconditions: ip is locked.
func (ip *Inode) Stat() linux.Stat {
	return linux.Stat{
		Dev:   RootDev,
		Ino:   ip.ino,
		Type:  ip.d.typ,
		Nlink: ip.d.nlink,
		Size:  uint64(ip.d.size),
	}
}

// IncRef adds a reference to ip.
func (ip *Inode) IncRef() {
	ip.fs.icacheMu.Lock()
	defer ip.fs.icacheMu.Unlock()
	if ip.ref < 1 {
		panic(fmt.Sprintf("IncRef on unreferenced inode %d", ip.ino))
	}
	ip.ref++
}

// Release drops a reference to ip. If that was the last reference and the
// inode has no links, its content is freed and the on-disk inode returned
// to the free set.
//
// Preconditions: in a journal operation. ip is not locked.
func (ip *Inode) Release(ctx context.Context) {
	fs := ip.fs
	if !fs.journal.InOp() {
		panic(fmt.Sprintf("release of inode %d outside of a journal operation", ip.ino))
	}

	ip.mu.Lock()
	fs.icacheMu.Lock()
	last := ip.ref == 1
	fs.icacheMu.Unlock()
	if last && ip.valid && ip.d.nlink == 0 {
		// ref == 1 means no other process can have ip locked, so this
		// cannot block for long.
		ip.truncate()
		ip.d.typ = linux.T_NONE
		ip.update()
		ip.valid = false
		fs.ifree(ip.ino)
		log.Debugf("memfs: freed inode %d", ip.ino)
	}
	ip.mu.Unlock()

	fs.icacheMu.Lock()
	ip.ref--
	fs.icacheMu.Unlock()
}

// bmap returns the disk block holding block bn of ip, allocating it if
// alloc is set. It returns 0 if the block is not allocated or the disk is
// full.
//
// Preconditions: ip is locked. In a journal operation if alloc is set.
func (ip *Inode) bmap(bn uint32, alloc bool) uint32 {
	fs := ip.fs
	if bn < NDirect {
		addr := ip.d.addrs[bn]
		if addr == 0 && alloc {
			addr = fs.balloc()
			ip.d.addrs[bn] = addr
		}
		return addr
	}
	bn -= NDirect
	if bn >= uint32(fs.nIndirect) {
		panic(fmt.Sprintf("bmap: block %d out of range", bn+NDirect))
	}

	ind := ip.d.addrs[NDirect]
	if ind == 0 {
		if !alloc {
			return 0
		}
		if ind = fs.balloc(); ind == 0 {
			return 0
		}
		ip.d.addrs[NDirect] = ind
	}
	entries := fs.block(ind)
	addr := binary.LittleEndian.Uint32(entries[bn*4:])
	if addr == 0 && alloc {
		if addr = fs.balloc(); addr != 0 {
			binary.LittleEndian.PutUint32(entries[bn*4:], addr)
			fs.journal.LogWrite(ind)
		}
	}
	return addr
}

// truncate discards the contents of ip.
//
// Preconditions: ip is locked. In a journal operation.
func (ip *Inode) truncate() {
	fs := ip.fs
	for i := 0; i < NDirect; i++ {
		if ip.d.addrs[i] != 0 {
			fs.bfree(ip.d.addrs[i])
			ip.d.addrs[i] = 0
		}
	}
	if ind := ip.d.addrs[NDirect]; ind != 0 {
		entries := fs.block(ind)
		for j := 0; j < fs.nIndirect; j++ {
			if addr := binary.LittleEndian.Uint32(entries[j*4:]); addr != 0 {
				fs.bfree(addr)
			}
		}
		fs.bfree(ind)
		ip.d.addrs[NDirect] = 0
	}
	ip.d.size = 0
	ip.update()
}

// Truncate discards the contents of a regular file.
//
// Preconditions: ip is locked. In a journal operation.
func (ip *Inode) Truncate() {
	ip.truncate()
}

// ReadAt copies up to dst.NumBytes() bytes starting at off into dst. Reading
// at or past the end of the file returns 0.
//
// Preconditions: ip is locked.
func (ip *Inode) ReadAt(ctx context.Context, dst usermem.IOSequence, off int64) (int64, error) {
	size := int64(ip.d.size)
	n := dst.NumBytes()
	if off < 0 {
		return 0, linuxerr.EINVAL
	}
	if off >= size || n == 0 {
		return 0, nil
	}
	if off+n > size {
		n = size - off
	}

	bs := int64(ip.fs.opts.BlockSize)
	var done int64
	for done < n {
		pos := off + done
		m := min(n-done, bs-pos%bs)
		var c int
		var err error
		if addr := ip.bmap(uint32(pos/bs), false); addr != 0 {
			c, err = dst.DropFirst64(done).CopyOut(ctx, ip.fs.block(addr)[pos%bs:pos%bs+m])
		} else {
			// A hole reads as zeroes.
			c, err = dst.DropFirst64(done).CopyOut(ctx, make([]byte, m))
		}
		done += int64(c)
		if err != nil {
			return done, err
		}
	}
	return done, nil
}

// WriteAt copies src.NumBytes() bytes from src into the file at off,
// extending the file if needed. It returns the number of bytes written; if
// that is short, the error says why.
//
// Preconditions: ip is locked. In a journal operation.
func (ip *Inode) WriteAt(ctx context.Context, src usermem.IOSequence, off int64) (int64, error) {
	n := src.NumBytes()
	if off < 0 || off > int64(ip.d.size) {
		return 0, linuxerr.EINVAL
	}
	if off+n > ip.fs.MaxFileSize() {
		return 0, linuxerr.EFBIG
	}

	bs := int64(ip.fs.opts.BlockSize)
	var done int64
	var err error
	for done < n {
		pos := off + done
		addr := ip.bmap(uint32(pos/bs), true)
		if addr == 0 {
			err = linuxerr.ENOSPC
			break
		}
		m := min(n-done, bs-pos%bs)
		var c int
		c, err = src.DropFirst64(done).CopyIn(ctx, ip.fs.block(addr)[pos%bs:pos%bs+m])
		if c > 0 {
			ip.fs.journal.LogWrite(addr)
		}
		done += int64(c)
		if err != nil {
			break
		}
	}
	if off+done > int64(ip.d.size) {
		ip.d.size = uint32(off + done)
	}
	// Write the inode back even if the size did not change, since bmap may
	// have added blocks.
	ip.update()
	return done, err
}
