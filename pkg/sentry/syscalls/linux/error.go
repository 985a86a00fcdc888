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

package linux

import (
	"gvisor.dev/filecore/pkg/log"
	"gvisor.dev/filecore/pkg/metric"
	"gvisor.dev/filecore/pkg/sentry/kernel"
)

var partialResultMetric = metric.MustCreateNewUint64Metric("/syscalls/partial_result", "Number of reads and writes that transferred some bytes and then failed.", metric.NewField("op", []string{"read", "write"}))

// handleIOError decides what a read or write that transferred n bytes and
// then stopped with err returns to the application.
//
// A read that transferred anything reports its count and drops err, so
// the application sees the error on its next call. A write that stopped
// short fails as a whole; the bytes written before the failure stay
// written.
func handleIOError(t *kernel.Task, n int64, err error, op string) error {
	if err == nil {
		return nil
	}
	if n == 0 {
		// Typical syscall error.
		return err
	}
	partialResultMetric.Increment(op)
	log.Debugf("%v: %s stopped after %d bytes: %v", t, op, n, err)
	if op == "read" {
		return nil
	}
	return err
}
