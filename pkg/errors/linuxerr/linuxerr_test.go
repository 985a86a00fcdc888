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

package linuxerr

import (
	"fmt"
	"testing"

	"golang.org/x/sys/unix"
	"gvisor.dev/filecore/pkg/errors"
)

type shortWrite struct{}

func (shortWrite) Error() string      { return "short" }
func (shortWrite) PartialWrite() bool { return true }

func TestErrorFromUnix(t *testing.T) {
	for _, tc := range []struct {
		errno unix.Errno
		want  *errors.Error
	}{
		{unix.EBADF, EBADF},
		{unix.ENFILE, ENFILE},
		{unix.EACCES, EACCES},
		{unix.EFAULT, EFAULT},
	} {
		got := ErrorFromUnix(tc.errno)
		if got != tc.want {
			t.Errorf("ErrorFromUnix(%v): got %v, want %v", tc.errno, got, tc.want)
		}
		if ToUnix(tc.want) != tc.errno {
			t.Errorf("ToUnix(%v): got %v, want %v", tc.want, ToUnix(tc.want), tc.errno)
		}
	}
	if err := ErrorFromUnix(0); err != nil {
		t.Errorf("ErrorFromUnix(0): got %v, want nil", err)
	}
}

func TestEquals(t *testing.T) {
	wrapped := fmt.Errorf("mmap: %w", EACCES)
	if !Equals(EACCES, wrapped) {
		t.Errorf("Equals(EACCES, %v): got false, want true", wrapped)
	}
	if !Equals(EACCES, unix.EACCES) {
		t.Errorf("Equals(EACCES, unix.EACCES): got false, want true")
	}
	if Equals(EACCES, EBADF) {
		t.Errorf("Equals(EACCES, EBADF): got true, want false")
	}
	if !Equals(nil, nil) {
		t.Errorf("Equals(nil, nil): got false, want true")
	}
}

func TestClassOf(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want Class
	}{
		{ENFILE, ClassResourceExhausted},
		{fmt.Errorf("vma: %w", ENOMEM), ClassResourceExhausted},
		{EBADF, ClassPermissionDenied},
		{EACCES, ClassPermissionDenied},
		{ENODEV, ClassInvalidHandle},
		{EINVAL, ClassInvalidHandle},
		{shortWrite{}, ClassPartialWrite},
		{EPIPE, ClassOther},
		{nil, ClassOther},
	} {
		if got := ClassOf(tc.err); got != tc.want {
			t.Errorf("ClassOf(%v): got %v, want %v", tc.err, got, tc.want)
		}
	}
}
