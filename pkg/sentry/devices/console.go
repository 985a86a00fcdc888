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

package devices

import (
	"context"
	"errors"
	"io"
	"sync"

	"gvisor.dev/filecore/pkg/sentry/usermem"
)

// console serializes access to the host streams behind the console device.
type console struct {
	mu  sync.Mutex
	in  io.Reader
	out io.Writer
}

// NewConsole returns console device operations that read from in and write
// to out. Either may be nil, leaving that direction unsupported.
func NewConsole(in io.Reader, out io.Writer) Ops {
	c := &console{in: in, out: out}
	ops := Ops{Name: "console"}
	if in != nil {
		ops.Read = c.read
	}
	if out != nil {
		ops.Write = c.write
	}
	return ops
}

func (c *console) read(ctx context.Context, dst usermem.IOSequence) (int64, error) {
	buf := make([]byte, dst.NumBytes())
	c.mu.Lock()
	n, err := c.in.Read(buf)
	c.mu.Unlock()
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	copied, err := dst.CopyOut(ctx, buf[:n])
	return int64(copied), err
}

func (c *console) write(ctx context.Context, src usermem.IOSequence) (int64, error) {
	buf := make([]byte, src.NumBytes())
	n, err := src.CopyIn(ctx, buf)
	c.mu.Lock()
	w, werr := c.out.Write(buf[:n])
	c.mu.Unlock()
	if werr != nil {
		return int64(w), werr
	}
	return int64(w), err
}
