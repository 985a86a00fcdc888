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

	"gvisor.dev/filecore/pkg/abi/linux"
	"gvisor.dev/filecore/pkg/errors/linuxerr"
	"gvisor.dev/filecore/pkg/sentry/file"
	"gvisor.dev/filecore/pkg/sentry/fsimpl/memfs"
	"gvisor.dev/filecore/pkg/sentry/kernel/pipe"
)

// OpenFile opens the file named path with open(2) mode bits and returns a
// new open file holding the only reference.
func (k *Kernel) OpenFile(ctx context.Context, path string, mode int) (file.Handle, error) {
	b, err := k.openInode(ctx, path, mode)
	if err != nil {
		return file.Handle{}, err
	}
	h, err := k.files.Alloc()
	if err != nil {
		k.journal.BeginOp()
		b.ip.Release(ctx)
		k.journal.EndOp()
		return file.Handle{}, err
	}
	k.files.Install(h, b.backing(), file.FlagsFromOpen(mode))
	return h, nil
}

// opened is an inode resolved by open(2).
type opened struct {
	ip    *memfs.Inode
	typ   linux.InodeType
	major int16
}

func (o opened) backing() file.Backing {
	if o.typ == linux.T_DEVICE {
		return file.DeviceNode{Major: o.major, Inode: o.ip}
	}
	return file.InodeFile{Inode: o.ip}
}

func (k *Kernel) openInode(ctx context.Context, path string, mode int) (opened, error) {
	k.journal.BeginOp()
	defer k.journal.EndOp()

	var ip *memfs.Inode
	var err error
	if mode&linux.O_CREATE != 0 {
		ip, err = k.fs.Create(ctx, path, linux.T_FILE, 0, 0)
	} else {
		ip, err = k.fs.Lookup(ctx, path)
	}
	if err != nil {
		return opened{}, err
	}

	ip.Lock()
	o := opened{ip: ip, typ: ip.Type(), major: ip.Major()}
	switch {
	case o.typ == linux.T_DIR && mode != linux.O_RDONLY:
		err = linuxerr.EISDIR
	case o.typ == linux.T_DEVICE && (o.major < 0 || int(o.major) >= k.config.NDev):
		err = linuxerr.ENXIO
	case o.typ == linux.T_FILE && mode&linux.O_TRUNC != 0:
		ip.Truncate()
	}
	ip.Unlock()
	if err != nil {
		ip.Release(ctx)
		return opened{}, err
	}
	return o, nil
}

// Mknod creates a device node.
func (k *Kernel) Mknod(ctx context.Context, path string, major, minor int16) error {
	k.journal.BeginOp()
	defer k.journal.EndOp()
	ip, err := k.fs.Create(ctx, path, linux.T_DEVICE, major, minor)
	if err != nil {
		return err
	}
	ip.Release(ctx)
	return nil
}

// Unlink removes path. Open files keep the inode alive.
func (k *Kernel) Unlink(ctx context.Context, path string) error {
	k.journal.BeginOp()
	defer k.journal.EndOp()
	return k.fs.Unlink(ctx, path)
}

// NewPipe returns the read and write ends of a new pipe.
func (k *Kernel) NewPipe() (r, w file.Handle, err error) {
	if r, err = k.files.Alloc(); err != nil {
		return file.Handle{}, file.Handle{}, err
	}
	if w, err = k.files.Alloc(); err != nil {
		// Nothing is installed yet, so this only frees the slot.
		k.files.Close(context.Background(), r)
		return file.Handle{}, file.Handle{}, err
	}
	p := pipe.NewPipe(k.config.PipeSize)
	k.files.Install(r, file.PipeEnd{Pipe: p}, file.Flags{Readable: true})
	k.files.Install(w, file.PipeEnd{Pipe: p}, file.Flags{Writable: true})
	return r, w, nil
}
