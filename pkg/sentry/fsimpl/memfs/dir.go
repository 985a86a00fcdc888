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
	"strings"

	"github.com/google/btree"
	"gvisor.dev/filecore/pkg/abi/linux"
	"gvisor.dev/filecore/pkg/errors/linuxerr"
)

// dirent is one directory entry.
type dirent struct {
	name string
	ino  uint32
}

func direntLess(a, b dirent) bool {
	return a.name < b.name
}

func newDirectory() *btree.BTreeG[dirent] {
	return btree.NewG(8, direntLess)
}

// cleanName strips leading slashes from name. The namespace is flat, so any
// remaining slash names a directory that does not exist.
func cleanName(name string) (string, error) {
	name = strings.TrimLeft(name, "/")
	switch {
	case name == "" || name == ".":
		return "", nil
	case strings.Contains(name, "/"):
		return "", linuxerr.ENOENT
	case len(name) > DirSiz:
		return "", linuxerr.ENAMETOOLONG
	}
	return name, nil
}

// setDirSize keeps the root directory's size in step with its entries.
//
// Preconditions: dp is locked. In a journal operation.
func (dp *Inode) setDirSize() {
	dp.d.size = uint32(dp.entries.Len() * direntSize)
	dp.update()
}

// Lookup returns the inode named name, referenced and unlocked. The empty
// name and "/" name the root directory.
func (fs *Filesystem) Lookup(ctx context.Context, name string) (*Inode, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	if name == "" {
		fs.root.IncRef()
		return fs.root, nil
	}
	dp := fs.root
	dp.Lock()
	defer dp.Unlock()
	de, ok := dp.entries.Get(dirent{name: name})
	if !ok {
		return nil, linuxerr.ENOENT
	}
	return fs.iget(de.ino)
}

// Create returns the inode named name, creating it with type typ if it does
// not exist. Creating a regular file over an existing file or device returns
// the existing inode; any other existing name is EEXIST. The inode is
// returned referenced and unlocked.
//
// Preconditions: in a journal operation.
func (fs *Filesystem) Create(ctx context.Context, name string, typ linux.InodeType, major, minor int16) (*Inode, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, linuxerr.EEXIST
	}
	dp := fs.root
	dp.Lock()
	defer dp.Unlock()

	if de, ok := dp.entries.Get(dirent{name: name}); ok {
		ip, err := fs.iget(de.ino)
		if err != nil {
			return nil, err
		}
		ip.Lock()
		existing := ip.d.typ
		ip.Unlock()
		if typ == linux.T_FILE && (existing == linux.T_FILE || existing == linux.T_DEVICE) {
			return ip, nil
		}
		ip.Release(ctx)
		return nil, linuxerr.EEXIST
	}

	ip, err := fs.ialloc(typ)
	if err != nil {
		return nil, err
	}
	ip.Lock()
	ip.d.major = major
	ip.d.minor = minor
	ip.d.nlink = 1
	ip.update()
	ip.Unlock()

	dp.entries.ReplaceOrInsert(dirent{name: name, ino: ip.ino})
	dp.setDirSize()
	return ip, nil
}

// Unlink removes the entry name. The inode is freed once its last reference
// is released.
//
// Preconditions: in a journal operation.
func (fs *Filesystem) Unlink(ctx context.Context, name string) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	if name == "" {
		return linuxerr.EISDIR
	}
	dp := fs.root
	dp.Lock()
	de, ok := dp.entries.Get(dirent{name: name})
	if !ok {
		dp.Unlock()
		return linuxerr.ENOENT
	}
	ip, err := fs.iget(de.ino)
	if err != nil {
		dp.Unlock()
		return err
	}
	ip.Lock()
	ip.d.nlink--
	ip.update()
	ip.Unlock()
	dp.entries.Delete(de)
	dp.setDirSize()
	dp.Unlock()

	ip.Release(ctx)
	return nil
}

// Entries returns the names in the root directory in order.
func (fs *Filesystem) Entries() []string {
	dp := fs.root
	dp.Lock()
	defer dp.Unlock()
	names := make([]string, 0, dp.entries.Len())
	dp.entries.Ascend(func(de dirent) bool {
		names = append(names, de.name)
		return true
	})
	return names
}
