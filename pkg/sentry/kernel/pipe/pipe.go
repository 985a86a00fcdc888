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

// Package pipe provides an in-memory implementation of a unidirectional
// pipe.
//
// A Pipe is a fixed-size ring shared by one read end and one write end.
// Reads block until data is available or the write end is closed; writes
// block until space is available and fail once the read end is closed.
package pipe

import (
	"context"
	"fmt"
	"sync"

	"gvisor.dev/filecore/pkg/errors/linuxerr"
	"gvisor.dev/filecore/pkg/log"
	"gvisor.dev/filecore/pkg/sentry/usermem"
)

// DefaultPipeSize is the default size of a pipe in bytes.
const DefaultPipeSize = 512

// Pipe is an encapsulation of a platform-independent pipe.
type Pipe struct {
	// mu protects all pipe internal state.
	mu sync.Mutex

	// cond is signalled whenever data, space or an end's state changes.
	cond sync.Cond

	// data is the ring buffer. Byte i of the stream lives at
	// data[i % len(data)].
	data []byte

	// nread and nwrite are the total bytes read and written.
	nread  uint64
	nwrite uint64

	// readOpen and writeOpen record whether each end is still open.
	readOpen  bool
	writeOpen bool
}

// NewPipe returns a Pipe of size bytes with both ends open.
func NewPipe(size int) *Pipe {
	if size <= 0 {
		panic(fmt.Sprintf("invalid pipe size %d", size))
	}
	p := &Pipe{
		data:      make([]byte, size),
		readOpen:  true,
		writeOpen: true,
	}
	p.cond.L = &p.mu
	return p
}

// wait blocks on p.cond until woken or ctx is done.
//
// Preconditions: p.mu is locked.
func (p *Pipe) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return linuxerr.EINTR
	}
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	p.cond.Wait()
	stop()
	if ctx.Err() != nil {
		return linuxerr.EINTR
	}
	return nil
}

// Read reads up to dst.NumBytes() bytes. It blocks until at least one byte
// is available or the write end is closed, in which case it returns 0.
func (p *Pipe) Read(ctx context.Context, dst usermem.IOSequence) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.nread == p.nwrite && p.writeOpen {
		if err := p.wait(ctx); err != nil {
			return 0, err
		}
	}

	var done int64
	want := dst.NumBytes()
	for done < want && p.nread != p.nwrite {
		// Copy the longest contiguous run of buffered bytes.
		start := int(p.nread % uint64(len(p.data)))
		end := len(p.data)
		if avail := int(p.nwrite - p.nread); start+avail < end {
			end = start + avail
		}
		if rem := int(want - done); end-start > rem {
			end = start + rem
		}
		n, err := dst.DropFirst64(done).CopyOut(ctx, p.data[start:end])
		p.nread += uint64(n)
		done += int64(n)
		if err != nil {
			p.cond.Broadcast()
			return done, err
		}
	}
	p.cond.Broadcast()
	return done, nil
}

// Write writes all of src, blocking while the pipe is full. If the read end
// is closed, it returns the bytes written so far and EPIPE.
func (p *Pipe) Write(ctx context.Context, src usermem.IOSequence) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var done int64
	want := src.NumBytes()
	for done < want {
		if !p.readOpen {
			return done, linuxerr.EPIPE
		}
		if p.nwrite == p.nread+uint64(len(p.data)) {
			p.cond.Broadcast()
			if err := p.wait(ctx); err != nil {
				return done, err
			}
			continue
		}
		start := int(p.nwrite % uint64(len(p.data)))
		end := len(p.data)
		if free := len(p.data) - int(p.nwrite-p.nread); start+free < end {
			end = start + free
		}
		if rem := int(want - done); end-start > rem {
			end = start + rem
		}
		n, err := src.DropFirst64(done).CopyIn(ctx, p.data[start:end])
		p.nwrite += uint64(n)
		done += int64(n)
		if err != nil {
			p.cond.Broadcast()
			return done, err
		}
	}
	p.cond.Broadcast()
	return done, nil
}

// Close closes the write end if writable is set, or the read end otherwise.
func (p *Pipe) Close(writable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if writable {
		p.writeOpen = false
	} else {
		p.readOpen = false
	}
	p.cond.Broadcast()
	if !p.readOpen && !p.writeOpen {
		log.Debugf("pipe: both ends closed with %d bytes unread", p.nwrite-p.nread)
	}
}

// Buffered returns the number of bytes waiting to be read.
func (p *Pipe) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.nwrite - p.nread)
}
