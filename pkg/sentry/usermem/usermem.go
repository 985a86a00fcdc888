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

// Package usermem governs access to user memory.
package usermem

import (
	"context"
	"errors"
	"io"

	"gvisor.dev/filecore/pkg/errors/linuxerr"
	"gvisor.dev/filecore/pkg/hostarch"
)

// IO provides access to the contents of a virtual memory space.
type IO interface {
	// CopyOut copies len(src) bytes from src to the memory mapped at addr. It
	// returns the number of bytes copied. If the number of bytes copied is <
	// len(src), it returns a non-nil error explaining why.
	//
	// Preconditions: The caller must not hold mm.MemoryManager.mappingMu or
	// any following locks in the lock order.
	CopyOut(ctx context.Context, addr hostarch.Addr, src []byte, opts IOOpts) (int, error)

	// CopyIn copies len(dst) bytes from the memory mapped at addr to dst.
	// It returns the number of bytes copied. If the number of bytes copied is
	// < len(dst), it returns a non-nil error explaining why.
	//
	// Preconditions: As for CopyOut.
	CopyIn(ctx context.Context, addr hostarch.Addr, dst []byte, opts IOOpts) (int, error)
}

// IOOpts contains options applicable to all IO methods.
type IOOpts struct {
	// If IgnorePermissions is true, protections set by mmap(2) are ignored.
	// Kernel copies set this; accesses made on behalf of the application
	// do not.
	IgnorePermissions bool
}

// IOReadWriter is an io.ReadWriter that reads from / writes to addresses
// starting at addr in IO. The preconditions that apply to IO.CopyIn and
// IO.CopyOut also apply to IOReadWriter.Read and IOReadWriter.Write
// respectively.
type IOReadWriter struct {
	Ctx  context.Context
	IO   IO
	Addr hostarch.Addr
	Opts IOOpts
}

// Read implements io.Reader.Read.
//
// Note that an address space does not have an "end of file", so Read never
// returns io.EOF. Attempts to read unmapped memory return EFAULT.
func (rw *IOReadWriter) Read(dst []byte) (int, error) {
	n, err := rw.IO.CopyIn(rw.Ctx, rw.Addr, dst, rw.Opts)
	return n, rw.advance(n, err)
}

// Write implements io.Writer.Write.
func (rw *IOReadWriter) Write(src []byte) (int, error) {
	n, err := rw.IO.CopyOut(rw.Ctx, rw.Addr, src, rw.Opts)
	return n, rw.advance(n, err)
}

func (rw *IOReadWriter) advance(n int, err error) error {
	end, ok := rw.Addr.AddLength(uint64(n))
	if ok {
		rw.Addr = end
		return err
	}
	// Disallow wraparound.
	rw.Addr = ^hostarch.Addr(0)
	if err != nil {
		err = linuxerr.EFAULT
	}
	return err
}

// copyStringIncrement is the maximum number of bytes that are copied from
// virtual memory at a time by CopyStringIn.
const copyStringIncrement = 64

// CopyStringIn copies a NUL-terminated string of unknown length from the
// memory mapped at addr in uio and returns it as a string (not including the
// trailing NUL). If the length of the string, including the terminating NUL,
// would exceed maxlen, CopyStringIn returns the string truncated to maxlen and
// ENAMETOOLONG.
//
// Preconditions: As for IO.CopyIn. maxlen >= 0.
func CopyStringIn(ctx context.Context, uio IO, addr hostarch.Addr, maxlen int, opts IOOpts) (string, error) {
	buf := make([]byte, maxlen)
	var done int
	for done < maxlen {
		start, ok := addr.AddLength(uint64(done))
		if !ok {
			return string(buf[:done]), linuxerr.EFAULT
		}
		readlen := copyStringIncrement
		if readlen > maxlen-done {
			readlen = maxlen - done
		}
		end, ok := start.AddLength(uint64(readlen))
		if !ok {
			return string(buf[:done]), linuxerr.EFAULT
		}
		// Don't cross a page boundary in one copy, so that a string ending
		// just before an unmapped page is still read in full.
		if start.RoundDown() != end.RoundDown() {
			end = end.RoundDown()
		}
		n, err := uio.CopyIn(ctx, start, buf[done:done+int(end-start)], opts)
		for i, c := range buf[done : done+n] {
			if c == 0 {
				return string(buf[:done+i]), nil
			}
		}
		done += n
		if err != nil {
			return string(buf[:done]), err
		}
	}
	return string(buf), linuxerr.ENAMETOOLONG
}

// IOSequence holds arguments to IO methods: one contiguous range of
// addresses in IO.
type IOSequence struct {
	IO    IO
	Addrs hostarch.AddrRange
	Opts  IOOpts
}

// NumBytes returns the number of bytes covered by s.
func (s IOSequence) NumBytes() int64 {
	return int64(s.Addrs.Length())
}

// DropFirst returns a copy of s with the first n bytes removed.
//
// Preconditions: 0 <= n.
func (s IOSequence) DropFirst(n int) IOSequence {
	return s.DropFirst64(int64(n))
}

// DropFirst64 is equivalent to DropFirst but takes an int64.
func (s IOSequence) DropFirst64(n int64) IOSequence {
	if n >= s.NumBytes() {
		s.Addrs.Start = s.Addrs.End
		return s
	}
	s.Addrs.Start += hostarch.Addr(n)
	return s
}

// TakeFirst returns a copy of s limited to its first n bytes.
func (s IOSequence) TakeFirst(n int) IOSequence {
	return s.TakeFirst64(int64(n))
}

// TakeFirst64 is equivalent to TakeFirst but takes an int64.
func (s IOSequence) TakeFirst64(n int64) IOSequence {
	if n < s.NumBytes() {
		s.Addrs.End = s.Addrs.Start + hostarch.Addr(n)
	}
	return s
}

// CopyOut copies src into the memory described by s.
//
// If s.NumBytes() < len(src), the copy is truncated to s.NumBytes(), and a
// nil error is returned.
func (s IOSequence) CopyOut(ctx context.Context, src []byte) (int, error) {
	if int64(len(src)) > s.NumBytes() {
		src = src[:s.NumBytes()]
	}
	if len(src) == 0 {
		return 0, nil
	}
	return s.IO.CopyOut(ctx, s.Addrs.Start, src, s.Opts)
}

// CopyIn copies from the memory described by s into dst.
//
// If s.NumBytes() < len(dst), the copy is truncated to s.NumBytes(), and a
// nil error is returned.
func (s IOSequence) CopyIn(ctx context.Context, dst []byte) (int, error) {
	if int64(len(dst)) > s.NumBytes() {
		dst = dst[:s.NumBytes()]
	}
	if len(dst) == 0 {
		return 0, nil
	}
	return s.IO.CopyIn(ctx, s.Addrs.Start, dst, s.Opts)
}

// Reader returns an io.Reader that reads from s. Reads beyond the end of s
// return io.EOF.
func (s IOSequence) Reader(ctx context.Context) io.Reader {
	return &ioSequenceReadWriter{ctx, s}
}

// Writer returns an io.Writer that writes to s. Writes beyond the end of s
// return ErrEndOfIOSequence.
func (s IOSequence) Writer(ctx context.Context) io.Writer {
	return &ioSequenceReadWriter{ctx, s}
}

// ErrEndOfIOSequence is returned by IOSequence.Writer().Write() when
// attempting to write beyond the end of the IOSequence.
var ErrEndOfIOSequence = errors.New("write beyond end of IOSequence")

type ioSequenceReadWriter struct {
	ctx context.Context
	s   IOSequence
}

// Read implements io.Reader.Read.
func (rw *ioSequenceReadWriter) Read(dst []byte) (int, error) {
	n, err := rw.s.CopyIn(rw.ctx, dst)
	rw.s = rw.s.DropFirst(n)
	if err == nil && rw.s.NumBytes() == 0 {
		err = io.EOF
	}
	return n, err
}

// Write implements io.Writer.Write.
func (rw *ioSequenceReadWriter) Write(src []byte) (int, error) {
	n, err := rw.s.CopyOut(rw.ctx, src)
	rw.s = rw.s.DropFirst(n)
	if err == nil && n < len(src) {
		err = ErrEndOfIOSequence
	}
	return n, err
}
